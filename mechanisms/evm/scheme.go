package evm

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	facilitator "github.com/regent-ai/x402-facilitator"
)

// ExactScheme settles exact-amount payments on EVM networks using EIP-3009
// transferWithAuthorization. One instance serves every eip155 chain the
// signer can reach.
type ExactScheme struct {
	signer        FacilitatorSigner
	log           *logrus.Logger
	deployWallets bool
}

type Option func(*ExactScheme)

func WithLogger(log *logrus.Logger) Option {
	return func(s *ExactScheme) { s.log = log }
}

// WithWalletDeployment enables deploying ERC-4337 wallets from ERC-6492
// wrapped signatures before settlement.
func WithWalletDeployment(enabled bool) Option {
	return func(s *ExactScheme) { s.deployWallets = enabled }
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
	return "eip155:*"
}

func (s *ExactScheme) GetExtra(network facilitator.Network) map[string]interface{} {
	return nil
}

func (s *ExactScheme) GetSigners(network facilitator.Network) []string {
	return []string{s.signer.Address()}
}

func (s *ExactScheme) Verify(ctx context.Context, payload facilitator.PaymentPayloadV2, requirements facilitator.PaymentRequirementsV2) (facilitator.VerifyResponse, error) {
	params, err := exactParamsV2(payload, requirements)
	if err != nil {
		return facilitator.VerifyResponse{IsValid: false, InvalidReason: ErrInvalidSignature}, nil
	}
	return s.verify(ctx, params)
}

func (s *ExactScheme) Settle(ctx context.Context, payload facilitator.PaymentPayloadV2, requirements facilitator.PaymentRequirementsV2) (facilitator.SettleResponse, error) {
	params, err := exactParamsV2(payload, requirements)
	if err != nil {
		return facilitator.SettleResponse{
			Success:     false,
			ErrorReason: ErrInvalidSignature,
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

func (p *exactParams) eip712Domain() (name, version string, ok bool) {
	if p.extra == nil {
		return "", "", false
	}
	name, nameOK := p.extra["name"].(string)
	version, versionOK := p.extra["version"].(string)
	if !nameOK || !versionOK || name == "" || version == "" {
		return "", "", false
	}
	return name, version, true
}

func (s *ExactScheme) verify(ctx context.Context, params *exactParams) (facilitator.VerifyResponse, error) {
	auth := params.payload.Authorization
	payer := ""
	if auth.From != "" {
		payer = common.HexToAddress(auth.From).Hex()
	}

	invalid := func(reason string) (facilitator.VerifyResponse, error) {
		return facilitator.VerifyResponse{IsValid: false, InvalidReason: reason, Payer: payer}, nil
	}

	if params.payloadScheme != SchemeExact || params.scheme != SchemeExact {
		return invalid(facilitator.ErrUnsupportedScheme)
	}

	domainName, domainVersion, ok := params.eip712Domain()
	if !ok {
		return invalid(ErrMissingEIP712)
	}

	if params.payloadNetwork != params.network {
		return invalid(facilitator.ErrNetworkMismatch)
	}

	config, err := GetNetworkConfig(params.network)
	if err != nil {
		return invalid(facilitator.ErrNetworkMismatch)
	}

	message, err := AuthorizationMessage(auth)
	if err != nil {
		return invalid(ErrInvalidSignature)
	}
	signature, err := HexToBytes(params.payload.Signature)
	if err != nil || len(signature) == 0 {
		return invalid(ErrInvalidSignature)
	}

	domain := TypedDataDomain{
		Name:              domainName,
		Version:           domainVersion,
		ChainID:           config.ChainID,
		VerifyingContract: common.HexToAddress(params.asset).Hex(),
	}
	valid, err := s.signer.VerifyTypedData(ctx, payer, domain, TransferWithAuthorizationTypes, "TransferWithAuthorization", message, signature)
	if err != nil || !valid {
		return invalid(ErrInvalidSignature)
	}

	if !strings.EqualFold(auth.To, params.payTo) {
		return invalid(ErrRecipientMismatch)
	}

	now := time.Now().Unix()
	validBefore := message["validBefore"].(*big.Int)
	validAfter := message["validAfter"].(*big.Int)
	value := message["value"].(*big.Int)

	if validBefore.Cmp(big.NewInt(now+ValidBeforeBuffer)) < 0 {
		return invalid(ErrValidBefore)
	}
	if validAfter.Cmp(big.NewInt(now)) > 0 {
		return invalid(ErrValidAfter)
	}

	required, ok := new(big.Int).SetString(params.amount, 10)
	if !ok {
		return invalid(ErrValue)
	}

	// Balance is checked best-effort: a failed read is skipped rather than
	// rejecting the payment, since settlement fails on-chain anyway when
	// funds are truly absent.
	balance, err := s.signer.GetBalance(ctx, payer, params.asset)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"network": params.network,
			"payer":   payer,
			"error":   err.Error(),
		}).Warn("balance check failed, skipping")
	} else if balance.Cmp(required) < 0 {
		return invalid(facilitator.ErrInsufficientFunds)
	}

	if value.Cmp(required) < 0 {
		return invalid(ErrValue)
	}

	return facilitator.VerifyResponse{IsValid: true, Payer: payer}, nil
}

func (s *ExactScheme) settle(ctx context.Context, params *exactParams) (facilitator.SettleResponse, error) {
	network := facilitator.Network(params.network)

	// Chain state may have moved since the client's verify call, so the
	// full verification runs again before any funds move.
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

	failed := func(reason, txHash string) (facilitator.SettleResponse, error) {
		return facilitator.SettleResponse{
			Success:     false,
			ErrorReason: reason,
			Payer:       verification.Payer,
			Network:     network,
			Transaction: txHash,
		}, nil
	}

	signature, err := HexToBytes(params.payload.Signature)
	if err != nil {
		return failed(ErrInvalidSignature, "")
	}

	if IsERC6492Signature(signature) {
		wrapped, err := DecodeERC6492Signature(signature)
		if err != nil {
			return failed(ErrInvalidSignature, "")
		}
		signature = wrapped.InnerSignature
		if s.deployWallets && wrapped.Factory != [20]byte{} {
			s.deployWallet(ctx, params, wrapped)
		}
	}

	auth := params.payload.Authorization
	message, err := AuthorizationMessage(auth)
	if err != nil {
		return failed(ErrInvalidSignature, "")
	}

	var nonce [32]byte
	copy(nonce[:], message["nonce"].([]byte))
	args := []interface{}{
		common.HexToAddress(auth.From),
		common.HexToAddress(auth.To),
		message["value"].(*big.Int),
		message["validAfter"].(*big.Int),
		message["validBefore"].(*big.Int),
		nonce,
	}

	transferABI := TransferWithAuthorizationBytesABI
	if len(signature) == 65 {
		// EOA signatures use the split v/r/s entrypoint.
		var r, sig [32]byte
		copy(r[:], signature[0:32])
		copy(sig[:], signature[32:64])
		args = append(args, signature[64], r, sig)
		transferABI = TransferWithAuthorizationVRSABI
	} else {
		args = append(args, signature)
	}

	asset := common.HexToAddress(params.asset).Hex()
	txHash, err := s.signer.WriteContract(ctx, asset, transferABI, FunctionTransferWithAuthorization, args...)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"network": params.network,
			"payer":   verification.Payer,
			"error":   err.Error(),
		}).Error("transferWithAuthorization submission failed")
		return failed(facilitator.ErrTransactionFailed, "")
	}

	receipt, err := s.signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return failed(facilitator.ErrTransactionFailed, "")
	}
	if receipt.Status != TxStatusSuccess {
		// The hash is still returned so the caller can inspect the
		// reverted transaction.
		return failed(facilitator.ErrInvalidTransactionState, txHash)
	}

	return facilitator.SettleResponse{
		Success:     true,
		Payer:       verification.Payer,
		Network:     network,
		Transaction: txHash,
	}, nil
}

// deployWallet submits the ERC-6492 factory calldata to create the payer's
// smart wallet. Reverts are non-fatal: most factories are idempotent and
// the wallet may already exist.
func (s *ExactScheme) deployWallet(ctx context.Context, params *exactParams, wrapped *ERC6492Signature) {
	factory := common.BytesToAddress(wrapped.Factory[:]).Hex()
	fields := logrus.Fields{
		"network": params.network,
		"factory": factory,
	}

	txHash, err := s.signer.SendTransaction(ctx, factory, wrapped.FactoryCalldata)
	if err != nil {
		s.log.WithFields(fields).WithError(err).Warn("smart wallet deployment failed, continuing settlement")
		return
	}
	if _, err := s.signer.WaitForTransactionReceipt(ctx, txHash); err != nil {
		s.log.WithFields(fields).WithError(err).Warn("smart wallet deployment unconfirmed, continuing settlement")
	}
}
