package facilitator

// Reason codes shared across payment mechanisms. Mechanism-specific codes
// live with their scheme packages.
const (
	ErrUnsupportedScheme       = "unsupported_scheme"
	ErrNetworkMismatch         = "network_mismatch"
	ErrInsufficientFunds       = "insufficient_funds"
	ErrInvalidTransactionState = "invalid_transaction_state"
	ErrTransactionFailed       = "transaction_failed"
	ErrSimulationFailed        = "transaction_simulation_failed"

	// Pre-dispatch guardrail codes, applied to v2 requests only.
	ErrUnsupportedPayToRole = "unsupported_payto_role"
	ErrInvalidAsset         = "invalid_asset"
	ErrInvalidPayTo         = "invalid_payto"

	// Boundary codes for requests rejected before any mechanism dispatch:
	// payloads whose version tag is not recognized, and requirements bytes
	// that do not decode into the version's shape.
	ErrUnsupportedVersion    = "unsupported_version"
	ErrMalformedRequirements = "malformed_payment_requirements"
)
