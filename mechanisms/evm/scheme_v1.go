package evm

import (
	"context"
	"encoding/json"

	facilitator "github.com/regent-ai/x402-facilitator"
)

// ExactSchemeV1 serves legacy clients: bare network names, flat payload
// shapes, maxAmountRequired. It reduces both to the same normalized form
// the current scheme verifies and settles.
type ExactSchemeV1 struct {
	inner *ExactScheme
}

func NewExactSchemeV1(signer FacilitatorSigner, opts ...Option) *ExactSchemeV1 {
	return &ExactSchemeV1{inner: NewExactScheme(signer, opts...)}
}

func (s *ExactSchemeV1) Scheme() string {
	return SchemeExact
}

func (s *ExactSchemeV1) CaipFamily() facilitator.Network {
	return "eip155:*"
}

func (s *ExactSchemeV1) GetExtra(network facilitator.Network) map[string]interface{} {
	return nil
}

func (s *ExactSchemeV1) GetSigners(network facilitator.Network) []string {
	return s.inner.GetSigners(network)
}

func (s *ExactSchemeV1) Verify(ctx context.Context, payload facilitator.PaymentPayloadV1, requirements facilitator.PaymentRequirementsV1) (facilitator.VerifyResponse, error) {
	params, err := exactParamsV1(payload, requirements)
	if err != nil {
		return facilitator.VerifyResponse{IsValid: false, InvalidReason: ErrInvalidSignature}, nil
	}
	return s.inner.verify(ctx, params)
}

func (s *ExactSchemeV1) Settle(ctx context.Context, payload facilitator.PaymentPayloadV1, requirements facilitator.PaymentRequirementsV1) (facilitator.SettleResponse, error) {
	params, err := exactParamsV1(payload, requirements)
	if err != nil {
		return facilitator.SettleResponse{
			Success:     false,
			ErrorReason: ErrInvalidSignature,
			Network:     facilitator.Network(requirements.Network),
			Transaction: "",
		}, nil
	}
	return s.inner.settle(ctx, params)
}

func exactParamsV1(payload facilitator.PaymentPayloadV1, requirements facilitator.PaymentRequirementsV1) (*exactParams, error) {
	exact, err := PayloadFromMap(payload.Payload)
	if err != nil {
		return nil, err
	}

	var extra map[string]interface{}
	if requirements.Extra != nil {
		if err := json.Unmarshal(*requirements.Extra, &extra); err != nil {
			return nil, err
		}
	}

	return &exactParams{
		payloadScheme:  payload.Scheme,
		payloadNetwork: payload.Network,
		scheme:         requirements.Scheme,
		network:        requirements.Network,
		asset:          requirements.Asset,
		payTo:          requirements.PayTo,
		amount:         requirements.MaxAmountRequired,
		extra:          extra,
		payload:        exact,
	}, nil
}
