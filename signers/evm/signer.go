// Package evm provides an ECDSA-key-backed implementation of the EVM
// facilitator signer over a JSON-RPC connection.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	mechevm "github.com/regent-ai/x402-facilitator/mechanisms/evm"
)

const (
	// defaultGasLimit is used when gas estimation fails.
	defaultGasLimit = uint64(300_000)

	receiptPollInterval = 500 * time.Millisecond
	receiptPollTimeout  = 60 * time.Second
)

// Signer settles payments from a single wallet against a single RPC
// endpoint. One instance serves one chain.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	client     *ethclient.Client

	chainIDOnce sync.Once
	chainID     *big.Int
	chainIDErr  error
}

// NewSigner creates a facilitator signer from a hex-encoded private key and
// an RPC endpoint.
func NewSigner(privateKeyHex string, rpcURL string) (*Signer, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}

	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		client:     client,
	}, nil
}

// Address returns the settlement wallet address.
func (s *Signer) Address() string {
	return s.address.Hex()
}

func (s *Signer) getChainID(ctx context.Context) (*big.Int, error) {
	s.chainIDOnce.Do(func() {
		s.chainID, s.chainIDErr = s.client.ChainID(ctx)
	})
	return s.chainID, s.chainIDErr
}

// ReadContract performs an eth_call against a contract function.
func (s *Signer) ReadContract(
	ctx context.Context,
	contractAddress string,
	abiBytes []byte,
	functionName string,
	args ...interface{},
) (interface{}, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiBytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := contractABI.Pack(functionName, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack method call: %w", err)
	}

	addr := common.HexToAddress(contractAddress)
	result, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}

	outputs, err := contractABI.Unpack(functionName, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}

	if len(outputs) == 0 {
		return nil, nil
	}
	if len(outputs) == 1 {
		return outputs[0], nil
	}
	return outputs, nil
}

// VerifyTypedData verifies an EIP-712 signature claimed to come from
// address. Plain 65-byte signatures from addresses without code are
// checked by recovery; everything else (deployed EIP-1271 wallets and
// ERC-6492 wrapped signatures) goes through the universal validator
// contract.
func (s *Signer) VerifyTypedData(
	ctx context.Context,
	address string,
	domain mechevm.TypedDataDomain,
	dataTypes map[string][]mechevm.TypedDataField,
	primaryType string,
	message map[string]interface{},
	signature []byte,
) (bool, error) {
	digest, err := mechevm.HashTypedData(domain, dataTypes, primaryType, message)
	if err != nil {
		return false, err
	}

	signer := common.HexToAddress(address)

	if len(signature) == 65 && !mechevm.IsERC6492Signature(signature) {
		code, err := s.client.CodeAt(ctx, signer, nil)
		if err == nil && len(code) == 0 {
			return recoverMatches(digest, signature, signer)
		}
	}

	return s.validateWithUniversalValidator(ctx, signer, digest, signature)
}

func recoverMatches(digest []byte, signature []byte, expected common.Address) (bool, error) {
	// crypto.SigToPub expects the recovery id in the last byte, not the
	// Ethereum 27/28 form.
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return false, nil
	}
	return crypto.PubkeyToAddress(*pubKey) == expected, nil
}

func (s *Signer) validateWithUniversalValidator(ctx context.Context, signer common.Address, digest []byte, signature []byte) (bool, error) {
	var hash [32]byte
	copy(hash[:], digest)

	result, err := s.ReadContract(ctx, mechevm.UniversalSigValidatorAddress, mechevm.UniversalSigValidatorABI, "isValidSig", signer, hash, signature)
	if err != nil {
		return false, err
	}
	valid, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected validator result type %T", result)
	}
	return valid, nil
}

// WriteContract submits a state-changing contract call and returns the
// transaction hash.
func (s *Signer) WriteContract(
	ctx context.Context,
	contractAddress string,
	abiBytes []byte,
	functionName string,
	args ...interface{},
) (string, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiBytes)))
	if err != nil {
		return "", fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := contractABI.Pack(functionName, args...)
	if err != nil {
		return "", fmt.Errorf("failed to pack method call: %w", err)
	}

	addr := common.HexToAddress(contractAddress)
	return s.sendTx(ctx, &addr, data)
}

// SendTransaction submits a raw transaction with pre-encoded calldata.
func (s *Signer) SendTransaction(ctx context.Context, to string, data []byte) (string, error) {
	addr := common.HexToAddress(to)
	return s.sendTx(ctx, &addr, data)
}

func (s *Signer) sendTx(ctx context.Context, to *common.Address, data []byte) (string, error) {
	chainID, err := s.getChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get chain id: %w", err)
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From: s.address,
		To:   to,
		Data: data,
	})
	if err != nil {
		gasLimit = defaultGasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	return signedTx.Hash().Hex(), nil
}

// WaitForTransactionReceipt polls until the transaction is mined.
func (s *Signer) WaitForTransactionReceipt(ctx context.Context, txHash string) (*mechevm.TransactionReceipt, error) {
	hash := common.HexToHash(txHash)
	deadline := time.Now().Add(receiptPollTimeout)

	for {
		receipt, err := s.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return &mechevm.TransactionReceipt{
				Status:      receipt.Status,
				BlockNumber: receipt.BlockNumber.Uint64(),
				TxHash:      receipt.TxHash.Hex(),
			}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get receipt: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for receipt of %s", txHash)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}
}

// GetBalance reads an ERC-20 balance.
func (s *Signer) GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error) {
	result, err := s.ReadContract(ctx, tokenAddress, mechevm.ERC20BalanceOfABI, "balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	balance, ok := result.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balance type %T", result)
	}
	return balance, nil
}
