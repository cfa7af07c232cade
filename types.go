package facilitator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Network is a blockchain network identifier. V2 requests use CAIP-2 form
// ("eip155:84532", "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"); registration
// patterns may use a family wildcard ("eip155:*").
type Network string

// Parse splits a CAIP-2 network into its namespace and reference.
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.Split(string(n), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid network format: %s", n)
	}
	return parts[0], parts[1], nil
}

// Match reports whether the network matches a pattern. Matching is
// bidirectional over the ":*" wildcard so "eip155:1" matches "eip155:*"
// and vice versa.
func (n Network) Match(pattern Network) bool {
	if n == pattern {
		return true
	}
	if strings.HasSuffix(string(pattern), ":*") {
		return strings.HasPrefix(string(n), strings.TrimSuffix(string(pattern), "*"))
	}
	if strings.HasSuffix(string(n), ":*") {
		return strings.HasPrefix(string(pattern), strings.TrimSuffix(string(n), "*"))
	}
	return false
}

// IsWildcard reports whether the network is a family pattern rather than a
// concrete chain identifier.
func (n Network) IsWildcard() bool {
	return strings.HasSuffix(string(n), ":*")
}

// PaymentRequirementsV1 is the legacy flat requirements shape: bare network
// names ("base-sepolia") and a maxAmountRequired field.
type PaymentRequirementsV1 struct {
	Scheme            string           `json:"scheme"`
	Network           string           `json:"network"`
	MaxAmountRequired string           `json:"maxAmountRequired"`
	Resource          string           `json:"resource,omitempty"`
	Description       string           `json:"description,omitempty"`
	MimeType          string           `json:"mimeType,omitempty"`
	PayTo             string           `json:"payTo"`
	MaxTimeoutSeconds int              `json:"maxTimeoutSeconds,omitempty"`
	Asset             string           `json:"asset"`
	OutputSchema      *json.RawMessage `json:"outputSchema,omitempty"`
	Extra             *json.RawMessage `json:"extra,omitempty"`
}

// PaymentPayloadV1 carries scheme and network at the top level.
type PaymentPayloadV1 struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Payload     map[string]interface{} `json:"payload"`
}

// PaymentRequirementsV2 is the current requirements shape: CAIP-2 networks
// and an amount field. Extra carries mechanism data such as the EIP-712
// domain name/version (EVM) or the designated feePayer (Solana).
type PaymentRequirementsV2 struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// PaymentPayloadV2 nests the accepted payment method the client chose.
type PaymentPayloadV2 struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
	Accepted    PaymentRequirementsV2  `json:"accepted"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// ResourceInfo describes the resource the payment unlocks.
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// VerifyResponse is the stateless verification result. Payer is set when
// the payload identified a payer, even for some rejections.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the settlement result. Transaction may be populated on
// failure when the transfer landed on-chain but reverted, so callers can
// inspect the failed transaction.
type SettleResponse struct {
	Success     bool    `json:"success"`
	ErrorReason string  `json:"errorReason,omitempty"`
	Payer       string  `json:"payer,omitempty"`
	Transaction string  `json:"transaction"`
	Network     Network `json:"network"`
}

// SupportedKind is one (scheme, network) pair a facilitator serves.
type SupportedKind struct {
	Scheme  string                 `json:"scheme"`
	Network string                 `json:"network"`
	Extra   map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse aggregates capabilities per protocol version tag.
// Kinds["1"] lists legacy bare network names, Kinds["2"] CAIP-2 networks.
type SupportedResponse struct {
	Kinds      map[string][]SupportedKind `json:"kinds"`
	Extensions []string                   `json:"extensions"`
	Signers    []string                   `json:"signers"`
}

func decodePayloadV1(data []byte) (*PaymentPayloadV1, error) {
	var p PaymentPayloadV1
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeRequirementsV1(data []byte) (*PaymentRequirementsV1, error) {
	var r PaymentRequirementsV1
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func decodePayloadV2(data []byte) (*PaymentPayloadV2, error) {
	var p PaymentPayloadV2
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeRequirementsV2(data []byte) (*PaymentRequirementsV2, error) {
	var r PaymentRequirementsV2
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
