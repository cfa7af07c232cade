// Package svm provides a keypair-backed implementation of the Solana
// facilitator signer over per-cluster RPC connections.
package svm

import (
	"context"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	mechsvm "github.com/regent-ai/x402-facilitator/mechanisms/svm"
)

// Signer sponsors and submits payment transactions as the fee payer. One
// instance serves every cluster it holds an RPC client for.
type Signer struct {
	privateKey solana.PrivateKey
	clients    map[string]*rpc.Client
}

// NewSigner creates a facilitator signer from a base58-encoded private key
// and a map of network name (CAIP-2 or legacy) to RPC endpoint URL.
func NewSigner(privateKeyBase58 string, rpcURLs map[string]string) (*Signer, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if len(rpcURLs) == 0 {
		return nil, fmt.Errorf("at least one rpc endpoint is required")
	}

	clients := make(map[string]*rpc.Client, len(rpcURLs))
	for network, url := range rpcURLs {
		clients[network] = rpc.New(url)
	}

	return &Signer{
		privateKey: privateKey,
		clients:    clients,
	}, nil
}

// GetAddress returns the fee-payer public key.
func (s *Signer) GetAddress(ctx context.Context, network string) solana.PublicKey {
	return s.privateKey.PublicKey()
}

// getRPC resolves the RPC client for a network, accepting either the name
// the client was registered under or any alias of the same cluster.
func (s *Signer) getRPC(network string) (*rpc.Client, error) {
	if client, ok := s.clients[network]; ok {
		return client, nil
	}
	if config, err := mechsvm.GetNetworkConfig(network); err == nil {
		if client, ok := s.clients[config.CAIP2]; ok {
			return client, nil
		}
		if client, ok := s.clients[config.Name]; ok {
			return client, nil
		}
	}
	return nil, fmt.Errorf("no rpc client configured for network %s", network)
}

// SignTransaction adds the fee-payer signature to the transaction at the
// index of the fee-payer account.
func (s *Signer) SignTransaction(ctx context.Context, tx *solana.Transaction, network string) error {
	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	signature, err := s.privateKey.Sign(messageBytes)
	if err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}

	accountIndex, err := tx.GetAccountIndex(s.privateKey.PublicKey())
	if err != nil {
		return fmt.Errorf("failed to get account index: %w", err)
	}

	if len(tx.Signatures) <= int(accountIndex) {
		newSignatures := make([]solana.Signature, accountIndex+1)
		copy(newSignatures, tx.Signatures)
		tx.Signatures = newSignatures
	}
	tx.Signatures[accountIndex] = signature

	return nil
}

// SimulateTransaction simulates the fully-signed transaction with
// signature verification enabled.
func (s *Signer) SimulateTransaction(ctx context.Context, tx *solana.Transaction, network string) error {
	rpcClient, err := s.getRPC(network)
	if err != nil {
		return err
	}

	opts := rpc.SimulateTransactionOpts{
		SigVerify:              true,
		ReplaceRecentBlockhash: false,
		Commitment:             mechsvm.DefaultCommitment,
	}
	result, err := rpcClient.SimulateTransactionWithOpts(ctx, tx, &opts)
	if err != nil {
		return fmt.Errorf("simulation request failed: %w", err)
	}
	if result != nil && result.Value != nil && result.Value.Err != nil {
		return fmt.Errorf("simulation failed: %v", result.Value.Err)
	}
	return nil
}

// SendTransaction submits the signed transaction.
func (s *Signer) SendTransaction(ctx context.Context, tx *solana.Transaction, network string) (solana.Signature, error) {
	rpcClient, err := s.getRPC(network)
	if err != nil {
		return solana.Signature{}, err
	}
	return rpcClient.SendTransaction(ctx, tx)
}

// ConfirmTransaction polls until the transaction is confirmed, failed, or
// the attempt budget is exhausted. Signature status is checked first since
// it propagates faster than full transaction lookups.
func (s *Signer) ConfirmTransaction(ctx context.Context, signature solana.Signature, network string) error {
	rpcClient, err := s.getRPC(network)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < mechsvm.MaxConfirmAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		statuses, err := rpcClient.GetSignatureStatuses(ctx, true, signature)
		if err == nil && statuses != nil && statuses.Value != nil && len(statuses.Value) > 0 {
			status := statuses.Value[0]
			if status != nil {
				if status.Err != nil {
					return fmt.Errorf("transaction failed on-chain: %v", status.Err)
				}
				if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
					status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
					return nil
				}
			}
		}

		// Fall back to getTransaction when signature status is not
		// available yet.
		if err != nil {
			txResult, txErr := rpcClient.GetTransaction(ctx, signature, &rpc.GetTransactionOpts{
				Encoding:   solana.EncodingBase58,
				Commitment: mechsvm.DefaultCommitment,
			})
			if txErr == nil && txResult != nil && txResult.Meta != nil {
				if txResult.Meta.Err != nil {
					return fmt.Errorf("transaction failed on-chain: %v", txResult.Meta.Err)
				}
				return nil
			}
		}

		time.Sleep(mechsvm.ConfirmRetryDelay)
	}

	return fmt.Errorf("transaction confirmation timed out after %d attempts", mechsvm.MaxConfirmAttempts)
}
