package facilitator

import "regexp"

var (
	evmAddressRegex    = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	solanaAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

	// payToRoleNames are placeholder role identifiers some resource servers
	// emit instead of a resolved address. They must be rejected before a
	// mechanism tries to treat them as on-chain addresses.
	payToRoleNames = map[string]bool{
		"merchant": true,
		"payee":    true,
		"receiver": true,
		"seller":   true,
	}
)

// checkRequirements applies fast syntactic guardrails to v2 requirements
// before dispatching to a mechanism. Returns an empty string when the
// requirements pass, or the rejection reason code.
func checkRequirements(requirements PaymentRequirementsV2) string {
	namespace, _, err := requirements.Network.Parse()
	if err != nil {
		return ErrNetworkMismatch
	}

	if payToRoleNames[requirements.PayTo] {
		return ErrUnsupportedPayToRole
	}

	switch namespace {
	case "eip155":
		if !evmAddressRegex.MatchString(requirements.Asset) {
			return ErrInvalidAsset
		}
		if !evmAddressRegex.MatchString(requirements.PayTo) {
			return ErrInvalidPayTo
		}
	case "solana":
		if !solanaAddressRegex.MatchString(requirements.Asset) {
			return ErrInvalidAsset
		}
		if !solanaAddressRegex.MatchString(requirements.PayTo) {
			return ErrInvalidPayTo
		}
	}

	return ""
}
