package svm

import (
	"context"

	solana "github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	facilitator "github.com/regent-ai/x402-facilitator"
)

// ExactScheme settles exact-amount payments on Solana clusters. The client
// submits a partially-signed transaction transferring SPL tokens to the
// recipient's associated token account; the facilitator validates its
// shape instruction by instruction, co-signs as fee payer, and submits.
type ExactScheme struct {
	signer FacilitatorSigner
	log    *logrus.Logger
}

type Option func(*ExactScheme)

func WithLogger(log *logrus.Logger) Option {
	return func(s *ExactScheme) { s.log = log }
}

func NewExactScheme(signer FacilitatorSigner, opts ...Option) *ExactScheme {
	s := &ExactScheme{
		signer: signer,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ExactScheme) Scheme() string {
	return SchemeExact
}

func (s *ExactScheme) CaipFamily() facilitator.Network {
	return "solana:*"
}

// GetExtra advertises the fee-payer address clients must name when they
// build a sponsored transaction.
func (s *ExactScheme) GetExtra(network facilitator.Network) map[string]interface{} {
	return map[string]interface{}{
		"feePayer": s.signer.GetAddress(context.Background(), string(network)).String(),
	}
}

func (s *ExactScheme) GetSigners(network facilitator.Network) []string {
	return []string{s.signer.GetAddress(context.Background(), string(network)).String()}
}

func (s *ExactScheme) Verify(ctx context.Context, payload facilitator.PaymentPayloadV2, requirements facilitator.PaymentRequirementsV2) (facilitator.VerifyResponse, error) {
	params, err := exactParamsV2(payload, requirements)
	if err != nil {
		return facilitator.VerifyResponse{IsValid: false, InvalidReason: ErrTransaction}, nil
	}
	return s.verify(ctx, params)
}

func (s *ExactScheme) Settle(ctx context.Context, payload facilitator.PaymentPayloadV2, requirements facilitator.PaymentRequirementsV2) (facilitator.SettleResponse, error) {
	params, err := exactParamsV2(payload, requirements)
	if err != nil {
		return facilitator.SettleResponse{
			Success:     false,
			ErrorReason: ErrTransaction,
			Network:     requirements.Network,
			Transaction: "",
		}, nil
	}
	return s.settle(ctx, params)
}

func exactParamsV2(payload facilitator.PaymentPayloadV2, requirements facilitator.PaymentRequirementsV2) (*exactParams, error) {
	exact, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return nil, err
	}
	return &exactParams{
		payloadScheme:  payload.Accepted.Scheme,
		payloadNetwork: string(payload.Accepted.Network),
		scheme:         requirements.Scheme,
		network:        string(requirements.Network),
		asset:          requirements.Asset,
		payTo:          requirements.PayTo,
		amount:         requirements.Amount,
		extra:          requirements.Extra,
		payload:        exact,
	}, nil
}

// exactParams is the normalized request both protocol versions reduce to
// before entering the shared verify and settle paths.
type exactParams struct {
	payloadScheme  string
	payloadNetwork string
	scheme         string
	network        string
	asset          string
	payTo          string
	amount         string
	extra          map[string]interface{}
	payload        *ExactPayload
}

func (s *ExactScheme) verify(ctx context.Context, params *exactParams) (facilitator.VerifyResponse, error) {
	payer := ""
	invalid := func(reason string) (facilitator.VerifyResponse, error) {
		return facilitator.VerifyResponse{IsValid: false, InvalidReason: reason, Payer: payer}, nil
	}

	if params.payloadScheme != SchemeExact || params.scheme != SchemeExact {
		return invalid(facilitator.ErrUnsupportedScheme)
	}

	// Clients build transactions assuming a sponsor, so the facilitator
	// must always be the declared fee payer.
	feePayer, ok := params.extra["feePayer"].(string)
	if !ok || feePayer == "" {
		return invalid(ErrMissingFeePayer)
	}

	tx, err := DecodeTransaction(params.payload.Transaction)
	if err != nil {
		return invalid(ErrTransaction)
	}

	// Strict shape contract: compute-limit, compute-price, transfer and
	// nothing else. Extra instructions riding along are rejected outright.
	if len(tx.Message.Instructions) != 3 {
		return invalid(ErrInstructionsLength)
	}
	if code := verifyComputeLimitInstruction(tx, tx.Message.Instructions[0]); code != "" {
		return invalid(code)
	}
	if code := verifyComputePriceInstruction(tx, tx.Message.Instructions[1]); code != "" {
		return invalid(code)
	}

	authority, code := transferAuthority(tx, tx.Message.Instructions[2])
	if code != "" {
		return invalid(code)
	}
	payer = authority

	if params.payloadNetwork != params.network {
		return invalid(facilitator.ErrNetworkMismatch)
	}

	if code := s.verifyTransferInstruction(tx, tx.Message.Instructions[2], params, feePayer); code != "" {
		return invalid(code)
	}

	// Co-sign and simulate with signature verification on. Simulation is
	// the only reliable check of the payer's token balance and account
	// state, since SPL balances are not read directly.
	if err := s.signer.SignTransaction(ctx, tx, params.network); err != nil {
		return invalid(facilitator.ErrSimulationFailed)
	}
	if err := s.signer.SimulateTransaction(ctx, tx, params.network); err != nil {
		return invalid(facilitator.ErrSimulationFailed)
	}

	return facilitator.VerifyResponse{IsValid: true, Payer: payer}, nil
}

func (s *ExactScheme) verifyTransferInstruction(tx *solana.Transaction, inst solana.CompiledInstruction, params *exactParams, feePayer string) string {
	transferChecked, accounts, tokenProgram, code := decodeTransferChecked(tx, inst)
	if code != "" {
		return code
	}

	// A transaction whose transfer authority is the fee payer would drain
	// the facilitator's own funds under the guise of a user payment.
	authority := accounts[3].PublicKey.String()
	if authority == feePayer {
		return ErrFeePayerTransferringFunds
	}

	mint := accounts[1].PublicKey.String()
	if mint != params.asset {
		return ErrMintMismatch
	}

	payToPubkey, err := solana.PublicKeyFromBase58(params.payTo)
	if err != nil {
		return ErrRecipientMismatch
	}
	mintPubkey, err := solana.PublicKeyFromBase58(params.asset)
	if err != nil {
		return ErrMintMismatch
	}

	expectedDest, err := associatedTokenAccount(payToPubkey, mintPubkey, tokenProgram)
	if err != nil {
		return ErrATANotFound
	}
	dest := transferChecked.GetDestinationAccount().PublicKey
	if !dest.Equals(expectedDest) {
		return ErrRecipientMismatch
	}

	required, err := parseAmount(params.amount)
	if err != nil {
		return ErrAmountInsufficient
	}
	if *transferChecked.Amount < required {
		return ErrAmountInsufficient
	}

	return ""
}

func (s *ExactScheme) settle(ctx context.Context, params *exactParams) (facilitator.SettleResponse, error) {
	network := facilitator.Network(params.network)

	verification, err := s.verify(ctx, params)
	if err != nil {
		return facilitator.SettleResponse{
			Success:     false,
			ErrorReason: facilitator.ErrTransactionFailed,
			Network:     network,
			Transaction: "",
		}, nil
	}
	if !verification.IsValid {
		return facilitator.SettleResponse{
			Success:     false,
			ErrorReason: verification.InvalidReason,
			Payer:       verification.Payer,
			Network:     network,
			Transaction: "",
		}, nil
	}

	failed := func(reason, transaction string) (facilitator.SettleResponse, error) {
		return facilitator.SettleResponse{
			Success:     false,
			ErrorReason: reason,
			Payer:       verification.Payer,
			Network:     network,
			Transaction: transaction,
		}, nil
	}

	// Decode fresh and re-sign: the signature produced for verification's
	// simulation is never reused for the live submission.
	tx, err := DecodeTransaction(params.payload.Transaction)
	if err != nil {
		return failed(ErrTransaction, "")
	}
	if err := s.signer.SignTransaction(ctx, tx, params.network); err != nil {
		return failed(facilitator.ErrTransactionFailed, "")
	}

	signature, err := s.signer.SendTransaction(ctx, tx, params.network)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"network": params.network,
			"payer":   verification.Payer,
			"error":   err.Error(),
		}).Error("transaction submission failed")
		return failed(facilitator.ErrTransactionFailed, "")
	}

	if err := s.signer.ConfirmTransaction(ctx, signature, params.network); err != nil {
		// The signature is still returned so the caller can track the
		// unconfirmed transaction.
		return failed(facilitator.ErrTransactionFailed, signature.String())
	}

	return facilitator.SettleResponse{
		Success:     true,
		Payer:       verification.Payer,
		Network:     network,
		Transaction: signature.String(),
	}, nil
}
