package svm

import (
	"context"
	"encoding/json"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

// ExactPayload is the exact-scheme payment payload for Solana networks: a
// partially-signed transaction awaiting the facilitator's fee-payer
// signature.
type ExactPayload struct {
	Transaction string `json:"transaction"` // base64 encoded
}

// FacilitatorSigner is the chain adapter an exact scheme verifies and
// settles through. SignTransaction and SimulateTransaction leave chain
// state untouched; SendTransaction submits, ConfirmTransaction blocks
// until the submitted transaction lands or times out.
type FacilitatorSigner interface {
	// GetAddress returns the facilitator's fee-payer public key for a
	// network.
	GetAddress(ctx context.Context, network string) solana.PublicKey

	// SignTransaction co-signs the transaction with the fee-payer key.
	SignTransaction(ctx context.Context, tx *solana.Transaction, network string) error

	// SimulateTransaction simulates the fully-signed transaction with
	// signature verification enabled. A non-nil error means the
	// transaction would fail if submitted.
	SimulateTransaction(ctx context.Context, tx *solana.Transaction, network string) error

	// SendTransaction submits the signed transaction.
	SendTransaction(ctx context.Context, tx *solana.Transaction, network string) (solana.Signature, error)

	// ConfirmTransaction waits until the transaction is confirmed.
	ConfirmTransaction(ctx context.Context, signature solana.Signature, network string) error
}

// AssetInfo describes an SPL token.
type AssetInfo struct {
	Address  string // mint address
	Symbol   string
	Decimals int
}

// NetworkConfig is the per-cluster configuration.
type NetworkConfig struct {
	Name         string
	CAIP2        string
	DefaultAsset AssetInfo
}

func (p *ExactPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"transaction": p.Transaction,
	}
}

// PayloadFromMap decodes the generic payload map into an ExactPayload.
func PayloadFromMap(data map[string]interface{}) (*ExactPayload, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload data: %w", err)
	}

	var payload ExactPayload
	if err := json.Unmarshal(jsonBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if payload.Transaction == "" {
		return nil, fmt.Errorf("missing transaction field in payload")
	}
	return &payload, nil
}
