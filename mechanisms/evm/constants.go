package evm

const (
	// SchemeExact is the scheme identifier.
	SchemeExact = "exact"

	FunctionTransferWithAuthorization = "transferWithAuthorization"

	TxStatusSuccess = 1
	TxStatusFailed  = 0

	// ValidBeforeBuffer is the number of seconds a payload must remain
	// valid past now, tolerating block-time drift between submission and
	// inclusion.
	ValidBeforeBuffer = 6

	// ERC6492MagicValue trails every ERC-6492 wrapped signature.
	// bytes32(uint256(keccak256("erc6492.invalid.signature")) - 1)
	ERC6492MagicValue = "0x6492649264926492649264926492649264926492649264926492649264926492"

	// EIP1271MagicValue is returned by isValidSignature on success.
	EIP1271MagicValue = "0x1626ba7e"

	// UniversalSigValidatorAddress is the canonical ERC-6492 validator,
	// deployed at the same address on all EVM chains via CREATE2.
	UniversalSigValidatorAddress = "0x164af34fAF9879394370C7f09064127C043A35E9"

	// Error codes
	ErrInvalidSignature   = "invalid_exact_evm_payload_signature"
	ErrRecipientMismatch  = "invalid_exact_evm_payload_recipient_mismatch"
	ErrValidBefore        = "invalid_exact_evm_payload_authorization_valid_before"
	ErrValidAfter         = "invalid_exact_evm_payload_authorization_valid_after"
	ErrValue              = "invalid_exact_evm_payload_authorization_value"
	ErrMissingEIP712      = "missing_eip712_domain"
)

var (
	// TransferWithAuthorizationVRSABI is the EIP-3009 entrypoint taking a
	// split v/r/s signature, used for 65-byte EOA signatures.
	TransferWithAuthorizationVRSABI = []byte(`[
		{
			"inputs": [
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "validAfter", "type": "uint256"},
				{"name": "validBefore", "type": "uint256"},
				{"name": "nonce", "type": "bytes32"},
				{"name": "v", "type": "uint8"},
				{"name": "r", "type": "bytes32"},
				{"name": "s", "type": "bytes32"}
			],
			"name": "transferWithAuthorization",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// TransferWithAuthorizationBytesABI takes an opaque bytes signature,
	// used for smart wallet (EIP-1271) signatures.
	TransferWithAuthorizationBytesABI = []byte(`[
		{
			"inputs": [
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "validAfter", "type": "uint256"},
				{"name": "validBefore", "type": "uint256"},
				{"name": "nonce", "type": "bytes32"},
				{"name": "signature", "type": "bytes"}
			],
			"name": "transferWithAuthorization",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// ERC20BalanceOfABI reads a token balance.
	ERC20BalanceOfABI = []byte(`[
		{
			"inputs": [
				{"name": "account", "type": "address"}
			],
			"name": "balanceOf",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// UniversalSigValidatorABI validates EOA, EIP-1271, and ERC-6492
	// signatures in one eth_call.
	UniversalSigValidatorABI = []byte(`[
		{
			"inputs": [
				{"name": "_signer", "type": "address"},
				{"name": "_hash", "type": "bytes32"},
				{"name": "_signature", "type": "bytes"}
			],
			"name": "isValidSig",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)
)
