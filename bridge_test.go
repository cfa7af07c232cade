package facilitator

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func payloadV2Bytes(t *testing.T, requirements PaymentRequirementsV2) []byte {
	t.Helper()
	data, err := json.Marshal(PaymentPayloadV2{
		X402Version: 2,
		Payload:     map[string]interface{}{"signature": "0xab"},
		Accepted:    requirements,
	})
	require.NoError(t, err)
	return data
}

func requirementsV2Bytes(t *testing.T, requirements PaymentRequirementsV2) []byte {
	t.Helper()
	data, err := json.Marshal(requirements)
	require.NoError(t, err)
	return data
}

func baseSepoliaRequirements() PaymentRequirementsV2 {
	return PaymentRequirementsV2{
		Scheme:  "exact",
		Network: "eip155:84532",
		Asset:   "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Amount:  "1000",
		PayTo:   "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
	}
}

func TestFacilitatorVerify(t *testing.T) {
	scheme := &stubScheme{
		name:       "exact",
		family:     "eip155:*",
		verifyResp: VerifyResponse{IsValid: true, Payer: "0xPayer"},
	}
	registry := NewRegistry().Register("eip155:*", scheme)
	f := New(registry, WithLogger(quietLogger()))

	requirements := baseSepoliaRequirements()
	reqBytes := requirementsV2Bytes(t, requirements)

	t.Run("dispatches to the registered mechanism", func(t *testing.T) {
		resp, err := f.Verify(context.Background(), payloadV2Bytes(t, requirements), reqBytes)
		require.NoError(t, err)
		assert.True(t, resp.IsValid)
		assert.Equal(t, "0xPayer", resp.Payer)
		assert.Equal(t, 1, scheme.verifyCalls)
	})

	t.Run("malformed payload bytes", func(t *testing.T) {
		resp, err := f.Verify(context.Background(), []byte("{not json"), reqBytes)
		require.NoError(t, err)
		assert.False(t, resp.IsValid)
		assert.Equal(t, ErrUnsupportedVersion, resp.InvalidReason)
	})

	t.Run("missing version tag", func(t *testing.T) {
		resp, err := f.Verify(context.Background(), []byte(`{"payload":{}}`), reqBytes)
		require.NoError(t, err)
		assert.False(t, resp.IsValid)
		assert.Equal(t, ErrUnsupportedVersion, resp.InvalidReason)
	})

	t.Run("future version tag", func(t *testing.T) {
		resp, err := f.Verify(context.Background(), []byte(`{"x402Version":7,"payload":{}}`), reqBytes)
		require.NoError(t, err)
		assert.False(t, resp.IsValid)
		assert.Equal(t, ErrUnsupportedVersion, resp.InvalidReason)
	})

	t.Run("undecodable requirements bytes", func(t *testing.T) {
		resp, err := f.Verify(context.Background(), payloadV2Bytes(t, requirements), []byte("{not json"))
		require.NoError(t, err)
		assert.False(t, resp.IsValid)
		assert.Equal(t, ErrMalformedRequirements, resp.InvalidReason)
	})

	t.Run("undecodable requirements bytes on settle", func(t *testing.T) {
		resp, err := f.Settle(context.Background(), payloadV2Bytes(t, requirements), []byte("{not json"))
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Equal(t, ErrMalformedRequirements, resp.ErrorReason)
	})

	t.Run("unregistered network", func(t *testing.T) {
		other := baseSepoliaRequirements()
		other.Network = "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
		other.Asset = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
		other.PayTo = "DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy"
		resp, err := f.Verify(context.Background(), payloadV2Bytes(t, other), requirementsV2Bytes(t, other))
		require.NoError(t, err)
		assert.False(t, resp.IsValid)
		assert.Equal(t, ErrNetworkMismatch, resp.InvalidReason)
	})

	t.Run("unknown scheme on a known network", func(t *testing.T) {
		other := baseSepoliaRequirements()
		other.Scheme = "subscription"
		resp, err := f.Verify(context.Background(), payloadV2Bytes(t, other), requirementsV2Bytes(t, other))
		require.NoError(t, err)
		assert.False(t, resp.IsValid)
		assert.Equal(t, ErrUnsupportedScheme, resp.InvalidReason)
	})
}

func TestFacilitatorVerifyGuardrails(t *testing.T) {
	scheme := &stubScheme{name: "exact", family: "eip155:*", verifyResp: VerifyResponse{IsValid: true}}
	f := New(NewRegistry().Register("eip155:*", scheme), WithLogger(quietLogger()))

	tests := []struct {
		name   string
		mutate func(*PaymentRequirementsV2)
		reason string
	}{
		{
			name:   "placeholder payTo role",
			mutate: func(r *PaymentRequirementsV2) { r.PayTo = "merchant" },
			reason: ErrUnsupportedPayToRole,
		},
		{
			name:   "asset is not an address",
			mutate: func(r *PaymentRequirementsV2) { r.Asset = "usdc" },
			reason: ErrInvalidAsset,
		},
		{
			name:   "payTo is not an address",
			mutate: func(r *PaymentRequirementsV2) { r.PayTo = "0x1234" },
			reason: ErrInvalidPayTo,
		},
		{
			name:   "bare network name",
			mutate: func(r *PaymentRequirementsV2) { r.Network = "base-sepolia" },
			reason: ErrNetworkMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requirements := baseSepoliaRequirements()
			tt.mutate(&requirements)
			resp, err := f.Verify(context.Background(), payloadV2Bytes(t, requirements), requirementsV2Bytes(t, requirements))
			require.NoError(t, err)
			assert.False(t, resp.IsValid)
			assert.Equal(t, tt.reason, resp.InvalidReason)
			assert.Equal(t, 0, scheme.verifyCalls, "guardrail rejections must not reach the mechanism")
		})
	}
}

func TestFacilitatorV1Routing(t *testing.T) {
	legacy := &stubSchemeV1{
		name:       "exact",
		family:     "eip155:*",
		verifyResp: VerifyResponse{IsValid: true, Payer: "0xLegacyPayer"},
		settleResp: SettleResponse{Success: true, Transaction: "0xabc", Network: "base-sepolia"},
	}
	f := New(NewRegistry().RegisterV1("base-sepolia", legacy), WithLogger(quietLogger()))

	payload, err := json.Marshal(PaymentPayloadV1{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "base-sepolia",
		Payload:     map[string]interface{}{"signature": "0xab"},
	})
	require.NoError(t, err)
	requirements, err := json.Marshal(PaymentRequirementsV1{
		Scheme:            "exact",
		Network:           "base-sepolia",
		MaxAmountRequired: "1000",
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
	})
	require.NoError(t, err)

	t.Run("verify reaches the legacy mechanism", func(t *testing.T) {
		resp, err := f.Verify(context.Background(), payload, requirements)
		require.NoError(t, err)
		assert.True(t, resp.IsValid)
		assert.Equal(t, "0xLegacyPayer", resp.Payer)
		assert.Equal(t, 1, legacy.verifyCalls)
	})

	t.Run("settle reaches the legacy mechanism", func(t *testing.T) {
		resp, err := f.Settle(context.Background(), payload, requirements)
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, "0xabc", resp.Transaction)
		assert.Equal(t, 1, legacy.settleCalls)
	})

	t.Run("unregistered legacy network", func(t *testing.T) {
		payload, err := json.Marshal(PaymentPayloadV1{X402Version: 1, Scheme: "exact", Network: "avalanche", Payload: map[string]interface{}{}})
		require.NoError(t, err)
		requirements, err := json.Marshal(PaymentRequirementsV1{Scheme: "exact", Network: "avalanche", PayTo: "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"})
		require.NoError(t, err)
		resp, verr := f.Verify(context.Background(), payload, requirements)
		require.NoError(t, verr)
		assert.False(t, resp.IsValid)
		assert.Equal(t, ErrNetworkMismatch, resp.InvalidReason)
	})
}

func TestFacilitatorSettleHooks(t *testing.T) {
	requirements := baseSepoliaRequirements()
	payload := payloadV2Bytes(t, requirements)
	reqBytes := requirementsV2Bytes(t, requirements)

	newFacilitator := func(scheme *stubScheme) (*Facilitator, *Extension) {
		registry := NewRegistry().Register("eip155:*", scheme)
		ext := registry.RegisterExtension("observer")
		return New(registry, WithLogger(quietLogger())), ext
	}

	t.Run("success fires before and after hooks", func(t *testing.T) {
		scheme := &stubScheme{name: "exact", family: "eip155:*", settleResp: SettleResponse{Success: true, Transaction: "0xabc"}}
		f, ext := newFacilitator(scheme)

		var stages []string
		ext.OnBeforeSettle(func(ev SettleEvent) error {
			assert.Nil(t, ev.Result)
			stages = append(stages, "before")
			return nil
		})
		ext.OnAfterSettle(func(ev SettleEvent) error {
			require.NotNil(t, ev.Result)
			assert.Equal(t, "0xabc", ev.Result.Transaction)
			stages = append(stages, "after")
			return nil
		})
		ext.OnSettleFailure(func(ev SettleEvent) error {
			stages = append(stages, "failure")
			return nil
		})

		resp, err := f.Settle(context.Background(), payload, reqBytes)
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, []string{"before", "after"}, stages)
	})

	t.Run("failed settlement fires the failure hook", func(t *testing.T) {
		scheme := &stubScheme{name: "exact", family: "eip155:*", settleResp: SettleResponse{Success: false, ErrorReason: ErrTransactionFailed}}
		f, ext := newFacilitator(scheme)

		var stages []string
		ext.OnAfterSettle(func(ev SettleEvent) error {
			stages = append(stages, "after")
			return nil
		})
		ext.OnSettleFailure(func(ev SettleEvent) error {
			stages = append(stages, "failure")
			return nil
		})

		resp, err := f.Settle(context.Background(), payload, reqBytes)
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Equal(t, []string{"failure"}, stages)
	})

	t.Run("panicking hook does not break settlement", func(t *testing.T) {
		scheme := &stubScheme{name: "exact", family: "eip155:*", settleResp: SettleResponse{Success: true, Transaction: "0xdef"}}
		f, ext := newFacilitator(scheme)

		ext.OnBeforeSettle(func(SettleEvent) error { panic("observer exploded") })

		resp, err := f.Settle(context.Background(), payload, reqBytes)
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, "0xdef", resp.Transaction)
	})

	t.Run("hook error is swallowed", func(t *testing.T) {
		scheme := &stubScheme{name: "exact", family: "eip155:*", settleResp: SettleResponse{Success: true}}
		f, ext := newFacilitator(scheme)

		ext.OnAfterSettle(func(SettleEvent) error { return assert.AnError })

		resp, err := f.Settle(context.Background(), payload, reqBytes)
		require.NoError(t, err)
		assert.True(t, resp.Success)
	})
}

func TestFacilitatorSettleCache(t *testing.T) {
	requirements := baseSepoliaRequirements()
	payload := payloadV2Bytes(t, requirements)
	reqBytes := requirementsV2Bytes(t, requirements)

	t.Run("repeated payload settles once", func(t *testing.T) {
		scheme := &stubScheme{name: "exact", family: "eip155:*", settleResp: SettleResponse{Success: true, Transaction: "0xabc"}}
		f := New(NewRegistry().Register("eip155:*", scheme),
			WithLogger(quietLogger()),
			WithSettlementCache(time.Minute))

		first, err := f.Settle(context.Background(), payload, reqBytes)
		require.NoError(t, err)
		second, err := f.Settle(context.Background(), payload, reqBytes)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, scheme.settleCalls)
	})

	t.Run("failures are not cached", func(t *testing.T) {
		scheme := &stubScheme{name: "exact", family: "eip155:*", settleResp: SettleResponse{Success: false, ErrorReason: ErrTransactionFailed}}
		f := New(NewRegistry().Register("eip155:*", scheme),
			WithLogger(quietLogger()),
			WithSettlementCache(time.Minute))

		_, err := f.Settle(context.Background(), payload, reqBytes)
		require.NoError(t, err)
		_, err = f.Settle(context.Background(), payload, reqBytes)
		require.NoError(t, err)

		assert.Equal(t, 2, scheme.settleCalls)
	})

	t.Run("different payloads settle independently", func(t *testing.T) {
		scheme := &stubScheme{name: "exact", family: "eip155:*", settleResp: SettleResponse{Success: true}}
		f := New(NewRegistry().Register("eip155:*", scheme),
			WithLogger(quietLogger()),
			WithSettlementCache(time.Minute))

		other := baseSepoliaRequirements()
		other.Amount = "2000"

		_, err := f.Settle(context.Background(), payload, reqBytes)
		require.NoError(t, err)
		_, err = f.Settle(context.Background(), payloadV2Bytes(t, other), requirementsV2Bytes(t, other))
		require.NoError(t, err)

		assert.Equal(t, 2, scheme.settleCalls)
	})
}
