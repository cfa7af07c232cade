package svm

import (
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

const (
	// SchemeExact is the scheme identifier.
	SchemeExact = "exact"

	// MaxComputeUnitPriceMicrolamports caps the priority fee a client may
	// request on the facilitator's dime (5 lamports per compute unit).
	MaxComputeUnitPriceMicrolamports uint64 = 5_000_000

	// MaxConfirmAttempts bounds the confirmation polling loop.
	MaxConfirmAttempts = 30

	// ConfirmRetryDelay is the fixed wait between confirmation polls.
	ConfirmRetryDelay = time.Second

	// Compute-budget instruction discriminators.
	computeUnitLimitDiscriminator byte = 2
	computeUnitPriceDiscriminator byte = 3

	// Error codes
	ErrMissingFeePayer           = "invalid_exact_svm_payload_missing_fee_payer"
	ErrTransaction               = "invalid_exact_svm_payload_transaction"
	ErrInstructionsLength        = "invalid_exact_svm_payload_transaction_instructions_length"
	ErrComputeLimitInstruction   = "invalid_exact_svm_payload_transaction_instructions_compute_limit_instruction"
	ErrComputePriceInstruction   = "invalid_exact_svm_payload_transaction_instructions_compute_price_instruction"
	ErrComputePriceTooHigh       = "invalid_exact_svm_payload_transaction_instructions_compute_price_instruction_too_high"
	ErrNoTransferInstruction     = "invalid_exact_svm_payload_no_transfer_instruction"
	ErrFeePayerTransferringFunds = "invalid_exact_svm_payload_transaction_fee_payer_transferring_funds"
	ErrMintMismatch              = "invalid_exact_svm_payload_mint_mismatch"
	ErrRecipientMismatch         = "invalid_exact_svm_payload_recipient_mismatch"
	ErrAmountInsufficient        = "invalid_exact_svm_payload_amount_insufficient"
	ErrATANotFound               = "invalid_exact_svm_payload_ata_not_found"
)

// DefaultCommitment is used for simulation and confirmation checks.
var DefaultCommitment = rpc.CommitmentConfirmed
