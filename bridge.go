package facilitator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Facilitator is the version bridge: it detects the protocol version of an
// incoming payload, applies pre-dispatch guardrails, resolves the mechanism
// through the registry, and fires settlement lifecycle hooks. Callers see
// one consistent verify/settle contract regardless of protocol version.
//
// Construct one at process start and pass it into the serving layer; there
// is no ambient singleton.
type Facilitator struct {
	registry *Registry
	log      *logrus.Logger
	cache    *SettlementCache
}

type Option func(*Facilitator)

// WithLogger replaces the default logger.
func WithLogger(log *logrus.Logger) Option {
	return func(f *Facilitator) { f.log = log }
}

// WithSettlementCache enables a best-effort idempotency guard that
// deduplicates concurrent settle attempts for the same payload bytes.
// On-chain replay protection remains authoritative; the guard only reduces
// redundant submissions under client retries.
func WithSettlementCache(ttl time.Duration) Option {
	return func(f *Facilitator) { f.cache = NewSettlementCache(ttl) }
}

func New(registry *Registry, opts ...Option) *Facilitator {
	f := &Facilitator{
		registry: registry,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Registry exposes the underlying registry, for extension registration.
func (f *Facilitator) Registry() *Registry { return f.registry }

// Verify validates a payment payload against requirements. It never
// mutates chain state. Errors are reserved for unexpected faults; protocol
// rejections come back as IsValid=false with a reason code.
func (f *Facilitator) Verify(ctx context.Context, payloadBytes, requirementsBytes []byte) (VerifyResponse, error) {
	version, err := DetectVersion(payloadBytes)
	if err != nil {
		return VerifyResponse{IsValid: false, InvalidReason: ErrUnsupportedVersion}, nil
	}

	switch version {
	case 1:
		payload, err := decodePayloadV1(payloadBytes)
		if err != nil {
			return VerifyResponse{IsValid: false, InvalidReason: ErrUnsupportedVersion}, nil
		}
		requirements, err := decodeRequirementsV1(requirementsBytes)
		if err != nil {
			return VerifyResponse{IsValid: false, InvalidReason: ErrMalformedRequirements}, nil
		}

		scheme, reason := f.resolveV1(requirements.Scheme, Network(requirements.Network))
		if scheme == nil {
			return VerifyResponse{IsValid: false, InvalidReason: reason}, nil
		}
		return scheme.Verify(ctx, *payload, *requirements)

	case 2:
		payload, err := decodePayloadV2(payloadBytes)
		if err != nil {
			return VerifyResponse{IsValid: false, InvalidReason: ErrUnsupportedVersion}, nil
		}
		requirements, err := decodeRequirementsV2(requirementsBytes)
		if err != nil {
			return VerifyResponse{IsValid: false, InvalidReason: ErrMalformedRequirements}, nil
		}

		if reason := checkRequirements(*requirements); reason != "" {
			return VerifyResponse{IsValid: false, InvalidReason: reason}, nil
		}

		scheme, reason := f.resolveV2(requirements.Scheme, requirements.Network)
		if scheme == nil {
			return VerifyResponse{IsValid: false, InvalidReason: reason}, nil
		}
		return scheme.Verify(ctx, *payload, *requirements)

	default:
		return VerifyResponse{IsValid: false, InvalidReason: ErrUnsupportedVersion}, nil
	}
}

// Settle executes at most one on-chain transfer for the payload. It always
// returns a SettleResponse; internal faults are mapped to error reasons.
func (f *Facilitator) Settle(ctx context.Context, payloadBytes, requirementsBytes []byte) (SettleResponse, error) {
	if f.cache == nil {
		return f.settle(ctx, payloadBytes, requirementsBytes)
	}

	key := SettlementKey(payloadBytes)
	for {
		status, cached, done := f.cache.CheckAndMark(key)
		switch status {
		case SettlementCached:
			f.log.WithField("key", key).Debug("returning cached settlement result")
			return *cached, nil
		case SettlementInFlight:
			result, err := f.cache.WaitForResult(ctx, key, done)
			if err != nil {
				return SettleResponse{Success: false, ErrorReason: ErrTransactionFailed}, err
			}
			if result != nil {
				return *result, nil
			}
			// The in-flight attempt failed without caching; try again.
			continue
		}

		result, err := f.settle(ctx, payloadBytes, requirementsBytes)
		if err == nil && result.Success {
			f.cache.Complete(key, &result, done)
		} else {
			f.cache.Fail(key, done)
		}
		return result, err
	}
}

func (f *Facilitator) settle(ctx context.Context, payloadBytes, requirementsBytes []byte) (SettleResponse, error) {
	version, err := DetectVersion(payloadBytes)
	if err != nil {
		return SettleResponse{Success: false, ErrorReason: ErrUnsupportedVersion}, nil
	}

	switch version {
	case 1:
		payload, err := decodePayloadV1(payloadBytes)
		if err != nil {
			return SettleResponse{Success: false, ErrorReason: ErrUnsupportedVersion}, nil
		}
		requirements, err := decodeRequirementsV1(requirementsBytes)
		if err != nil {
			return SettleResponse{Success: false, ErrorReason: ErrMalformedRequirements}, nil
		}

		scheme, reason := f.resolveV1(requirements.Scheme, Network(requirements.Network))
		if scheme == nil {
			return SettleResponse{Success: false, ErrorReason: reason, Network: Network(requirements.Network)}, nil
		}
		return scheme.Settle(ctx, *payload, *requirements)

	case 2:
		return f.settleV2(ctx, payloadBytes, requirementsBytes)

	default:
		return SettleResponse{Success: false, ErrorReason: ErrUnsupportedVersion}, nil
	}
}

func (f *Facilitator) settleV2(ctx context.Context, payloadBytes, requirementsBytes []byte) (SettleResponse, error) {
	payload, err := decodePayloadV2(payloadBytes)
	if err != nil {
		return SettleResponse{Success: false, ErrorReason: ErrUnsupportedVersion}, nil
	}
	requirements, err := decodeRequirementsV2(requirementsBytes)
	if err != nil {
		return SettleResponse{Success: false, ErrorReason: ErrMalformedRequirements}, nil
	}

	if reason := checkRequirements(*requirements); reason != "" {
		return SettleResponse{Success: false, ErrorReason: reason, Network: requirements.Network}, nil
	}

	scheme, reason := f.resolveV2(requirements.Scheme, requirements.Network)
	if scheme == nil {
		return SettleResponse{Success: false, ErrorReason: reason, Network: requirements.Network}, nil
	}

	log := f.log.WithFields(logrus.Fields{
		"scheme":  requirements.Scheme,
		"network": requirements.Network,
	})
	event := SettleEvent{
		Ctx:          ctx,
		Payload:      *payload,
		Requirements: *requirements,
		Timestamp:    time.Now(),
	}
	f.registry.fireSettleHooks(log, "beforeSettle", event)

	result, settleErr := scheme.Settle(ctx, *payload, *requirements)
	event.Result = &result

	if settleErr != nil || !result.Success {
		f.registry.fireSettleHooks(log, "settleFailure", event)
	} else {
		f.registry.fireSettleHooks(log, "afterSettle", event)
	}
	return result, settleErr
}

// Supported reports the facilitator's capabilities per protocol version.
func (f *Facilitator) Supported() SupportedResponse {
	return f.registry.Supported()
}

func (f *Facilitator) resolveV1(schemeName string, network Network) (SchemeV1, string) {
	scheme := f.registry.resolveV1(schemeName, network)
	if scheme != nil {
		return scheme, ""
	}
	if f.registry.schemesV1For(network) == nil {
		return nil, ErrNetworkMismatch
	}
	return nil, ErrUnsupportedScheme
}

func (f *Facilitator) resolveV2(schemeName string, network Network) (Scheme, string) {
	scheme := f.registry.resolve(schemeName, network)
	if scheme != nil {
		return scheme, ""
	}
	if f.registry.schemesFor(network) == nil {
		return nil, ErrNetworkMismatch
	}
	return nil, ErrUnsupportedScheme
}
