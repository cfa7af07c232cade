package evm

import (
	"context"
	"math/big"
)

// ExactAuthorization is the EIP-3009 TransferWithAuthorization message the
// client signed.
type ExactAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`       // smallest unit, decimal string
	ValidAfter  string `json:"validAfter"`  // unix seconds, decimal string
	ValidBefore string `json:"validBefore"` // unix seconds, decimal string
	Nonce       string `json:"nonce"`       // 32-byte hex
}

// ExactPayload is the exact-scheme payment payload for EVM networks.
type ExactPayload struct {
	Signature     string             `json:"signature,omitempty"`
	Authorization ExactAuthorization `json:"authorization"`
}

// FacilitatorSigner is the chain adapter an exact scheme settles through.
// Side effects are confined to WriteContract and SendTransaction; every
// other call is a read.
type FacilitatorSigner interface {
	// Address returns the facilitator's settlement wallet address.
	Address() string

	// ReadContract performs an eth_call against a contract function.
	ReadContract(ctx context.Context, address string, abiJSON []byte, functionName string, args ...interface{}) (interface{}, error)

	// VerifyTypedData verifies an EIP-712 signature claimed to come from
	// address. Handles EOA, deployed EIP-1271 wallets, and ERC-6492 wrapped
	// signatures from undeployed wallets.
	VerifyTypedData(ctx context.Context, address string, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}, signature []byte) (bool, error)

	// WriteContract submits a state-changing contract call and returns the
	// transaction hash.
	WriteContract(ctx context.Context, address string, abiJSON []byte, functionName string, args ...interface{}) (string, error)

	// SendTransaction submits a raw transaction with pre-encoded calldata.
	// Used for smart wallet factory deployment.
	SendTransaction(ctx context.Context, to string, data []byte) (string, error)

	// WaitForTransactionReceipt blocks until the transaction is mined.
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error)

	// GetBalance reads an ERC-20 balance.
	GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error)
}

// TypedDataDomain is the EIP-712 domain separator.
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// TypedDataField is one field of an EIP-712 type definition.
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TransactionReceipt is the mined-transaction outcome a settle path
// inspects.
type TransactionReceipt struct {
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
}

// AssetInfo describes an EIP-3009 capable ERC-20 token.
type AssetInfo struct {
	Address  string
	Name     string
	Version  string
	Decimals int
}

// NetworkConfig is the per-chain configuration.
type NetworkConfig struct {
	ChainID      *big.Int
	DefaultAsset AssetInfo
}

// ERC6492Signature is a decoded ERC-6492 wrapped signature. A zero Factory
// means the signature was not wrapped.
type ERC6492Signature struct {
	Factory         [20]byte
	FactoryCalldata []byte
	InnerSignature  []byte
}

// ToMap converts the payload to the generic map shape carried inside a
// payment payload.
func (p *ExactPayload) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"authorization": map[string]interface{}{
			"from":        p.Authorization.From,
			"to":          p.Authorization.To,
			"value":       p.Authorization.Value,
			"validAfter":  p.Authorization.ValidAfter,
			"validBefore": p.Authorization.ValidBefore,
			"nonce":       p.Authorization.Nonce,
		},
	}
	if p.Signature != "" {
		result["signature"] = p.Signature
	}
	return result
}

// PayloadFromMap decodes the generic payload map into an ExactPayload.
func PayloadFromMap(data map[string]interface{}) (*ExactPayload, error) {
	payload := &ExactPayload{}

	if sig, ok := data["signature"].(string); ok {
		payload.Signature = sig
	}

	if auth, ok := data["authorization"].(map[string]interface{}); ok {
		if from, ok := auth["from"].(string); ok {
			payload.Authorization.From = from
		}
		if to, ok := auth["to"].(string); ok {
			payload.Authorization.To = to
		}
		if value, ok := auth["value"].(string); ok {
			payload.Authorization.Value = value
		}
		if validAfter, ok := auth["validAfter"].(string); ok {
			payload.Authorization.ValidAfter = validAfter
		}
		if validBefore, ok := auth["validBefore"].(string); ok {
			payload.Authorization.ValidBefore = validBefore
		}
		if nonce, ok := auth["nonce"].(string); ok {
			payload.Authorization.Nonce = nonce
		}
	}

	return payload, nil
}
