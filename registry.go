package facilitator

import (
	"context"
	"sync"
)

// SchemeV1 is a payment mechanism serving legacy requests: flat payload
// shapes, bare network names, maxAmountRequired.
type SchemeV1 interface {
	Scheme() string

	// CaipFamily returns the network family pattern this mechanism serves,
	// e.g. "eip155:*" or "solana:*".
	CaipFamily() Network

	// GetExtra returns mechanism data advertised per supported kind, such as
	// the Solana fee payer. Nil when the mechanism has nothing to advertise.
	GetExtra(network Network) map[string]interface{}

	// GetSigners returns the addresses this mechanism signs or pays with on
	// the given network.
	GetSigners(network Network) []string

	Verify(ctx context.Context, payload PaymentPayloadV1, requirements PaymentRequirementsV1) (VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayloadV1, requirements PaymentRequirementsV1) (SettleResponse, error)
}

// Scheme is a payment mechanism serving current (v2) requests with CAIP-2
// networks and nested accepted requirements.
type Scheme interface {
	Scheme() string
	CaipFamily() Network
	GetExtra(network Network) map[string]interface{}
	GetSigners(network Network) []string

	Verify(ctx context.Context, payload PaymentPayloadV2, requirements PaymentRequirementsV2) (VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayloadV2, requirements PaymentRequirementsV2) (SettleResponse, error)
}

// legacyNetworkNames maps CAIP-2 identifiers to the bare names v1 clients
// use. Registered v2 networks with an alias here are advertised under the
// synthetic "1" kinds key.
var legacyNetworkNames = map[Network]string{
	"eip155:8453":  "base",
	"eip155:84532": "base-sepolia",
	"solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp": "solana",
	"solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1": "solana-devnet",
	"solana:4uhcVJyU9pJkvQyS88uRDiswHXSCkY3z": "solana-testnet",
}

// Registry maps (scheme name, network pattern) pairs to mechanism
// instances. Patterns may be exact CAIP-2 identifiers or family wildcards;
// exact matches win over wildcard matches. Registration happens once at
// startup and is immutable afterwards.
type Registry struct {
	mu sync.RWMutex

	schemesV1 map[Network]map[string]SchemeV1
	schemes   map[Network]map[string]Scheme

	extensions []*Extension
}

func NewRegistry() *Registry {
	return &Registry{
		schemesV1: make(map[Network]map[string]SchemeV1),
		schemes:   make(map[Network]map[string]Scheme),
	}
}

// RegisterV1 binds a legacy mechanism to a network pattern.
func (r *Registry) RegisterV1(pattern Network, scheme SchemeV1) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.schemesV1[pattern] == nil {
		r.schemesV1[pattern] = make(map[string]SchemeV1)
	}
	r.schemesV1[pattern][scheme.Scheme()] = scheme
	return r
}

// Register binds a mechanism to a network pattern.
func (r *Registry) Register(pattern Network, scheme Scheme) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.schemes[pattern] == nil {
		r.schemes[pattern] = make(map[string]Scheme)
	}
	r.schemes[pattern][scheme.Scheme()] = scheme
	return r
}

// RegisterExtension registers a named extension and returns its handle for
// attaching settlement lifecycle hooks. Registering the same name twice
// returns the existing handle.
func (r *Registry) RegisterExtension(name string) *Extension {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ext := range r.extensions {
		if ext.name == name {
			return ext
		}
	}
	ext := &Extension{name: name}
	r.extensions = append(r.extensions, ext)
	return ext
}

// resolve finds the mechanism registered for a scheme on a network.
// Exact network match is tried before pattern matching.
func (r *Registry) resolve(scheme string, network Network) Scheme {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return findByNetworkAndScheme(r.schemes, scheme, network)
}

func (r *Registry) resolveV1(scheme string, network Network) SchemeV1 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return findByNetworkAndScheme(r.schemesV1, scheme, network)
}

// findByNetworkAndScheme locates a mechanism for a network/scheme pair,
// preferring an exact network key over pattern matches.
func findByNetworkAndScheme[T any](networkMap map[Network]map[string]T, scheme string, network Network) T {
	var zero T

	if schemeMap, ok := networkMap[network]; ok {
		if impl, ok := schemeMap[scheme]; ok {
			return impl
		}
	}

	for registered, schemeMap := range networkMap {
		if network.Match(registered) || registered.Match(network) {
			if impl, ok := schemeMap[scheme]; ok {
				return impl
			}
		}
	}

	return zero
}

// schemesFor returns the scheme map registered for a network, preferring an
// exact key over pattern matches. Used to distinguish an unknown network
// from an unknown scheme on a known network.
func (r *Registry) schemesFor(network Network) map[string]Scheme {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return findSchemesByNetwork(r.schemes, network)
}

func (r *Registry) schemesV1For(network Network) map[string]SchemeV1 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return findSchemesByNetwork(r.schemesV1, network)
}

func findSchemesByNetwork[T any](networkMap map[Network]map[string]T, network Network) map[string]T {
	if schemeMap, ok := networkMap[network]; ok {
		return schemeMap
	}
	for registered, schemeMap := range networkMap {
		if network.Match(registered) || registered.Match(network) {
			return schemeMap
		}
	}
	return nil
}

// Supported aggregates every registered (scheme, network) pair, keyed by
// protocol version tag. Legacy bare network names are injected under "1"
// for every v2 registration that has an alias, so v1 clients can discover
// capabilities even when only CAIP-2 networks are registered.
func (r *Registry) Supported() SupportedResponse {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := map[string][]SupportedKind{
		"1": {},
		"2": {},
	}
	seenV1 := make(map[string]bool)
	var signers []string
	seenSigner := make(map[string]bool)

	addSigners := func(addrs []string) {
		for _, a := range addrs {
			if a != "" && !seenSigner[a] {
				seenSigner[a] = true
				signers = append(signers, a)
			}
		}
	}

	for network, schemeMap := range r.schemesV1 {
		for name, scheme := range schemeMap {
			key := name + "|" + string(network)
			if seenV1[key] {
				continue
			}
			seenV1[key] = true
			kinds["1"] = append(kinds["1"], SupportedKind{
				Scheme:  name,
				Network: string(network),
				Extra:   scheme.GetExtra(network),
			})
			addSigners(scheme.GetSigners(network))
		}
	}

	for network, schemeMap := range r.schemes {
		for name, scheme := range schemeMap {
			kinds["2"] = append(kinds["2"], SupportedKind{
				Scheme:  name,
				Network: string(network),
				Extra:   scheme.GetExtra(network),
			})
			addSigners(scheme.GetSigners(network))

			legacy, ok := legacyNetworkNames[network]
			if !ok {
				continue
			}
			key := name + "|" + legacy
			if seenV1[key] {
				continue
			}
			seenV1[key] = true
			kinds["1"] = append(kinds["1"], SupportedKind{
				Scheme:  name,
				Network: legacy,
				Extra:   scheme.GetExtra(network),
			})
		}
	}

	names := make([]string, 0, len(r.extensions))
	for _, ext := range r.extensions {
		names = append(names, ext.name)
	}
	if signers == nil {
		signers = []string{}
	}

	return SupportedResponse{
		Kinds:      kinds,
		Extensions: names,
		Signers:    signers,
	}
}
