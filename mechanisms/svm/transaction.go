package svm

import (
	"encoding/base64"
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
)

// DecodeTransaction decodes a base64-encoded wire transaction.
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid transaction encoding: %w", err)
	}
	return tx, nil
}

// instructionProgramID resolves the program a compiled instruction
// targets. The index comes straight off the wire and may point past the
// account table.
func instructionProgramID(tx *solana.Transaction, inst solana.CompiledInstruction) (solana.PublicKey, bool) {
	if int(inst.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
		return solana.PublicKey{}, false
	}
	return tx.Message.AccountKeys[inst.ProgramIDIndex], true
}

// resolveInstructionAccounts resolves the instruction's account metas after
// validating every wire-supplied account index against the account table.
func resolveInstructionAccounts(tx *solana.Transaction, inst solana.CompiledInstruction) ([]*solana.AccountMeta, error) {
	for _, index := range inst.Accounts {
		if int(index) >= len(tx.Message.AccountKeys) {
			return nil, fmt.Errorf("account index %d out of range", index)
		}
	}
	return inst.ResolveInstructionAccounts(&tx.Message)
}

// verifyComputeLimitInstruction checks that the instruction is a
// well-formed SetComputeUnitLimit on the compute-budget program. Returns an
// error code, or "" when valid.
func verifyComputeLimitInstruction(tx *solana.Transaction, inst solana.CompiledInstruction) string {
	progID, ok := instructionProgramID(tx, inst)
	if !ok || !progID.Equals(solana.ComputeBudget) {
		return ErrComputeLimitInstruction
	}
	if len(inst.Data) < 1 || inst.Data[0] != computeUnitLimitDiscriminator {
		return ErrComputeLimitInstruction
	}

	accounts, err := resolveInstructionAccounts(tx, inst)
	if err != nil {
		return ErrComputeLimitInstruction
	}
	if _, err := computebudget.DecodeInstruction(accounts, inst.Data); err != nil {
		return ErrComputeLimitInstruction
	}
	return ""
}

// verifyComputePriceInstruction checks that the instruction is a
// well-formed SetComputeUnitPrice whose priority fee does not exceed the
// configured ceiling.
func verifyComputePriceInstruction(tx *solana.Transaction, inst solana.CompiledInstruction) string {
	progID, ok := instructionProgramID(tx, inst)
	if !ok || !progID.Equals(solana.ComputeBudget) {
		return ErrComputePriceInstruction
	}
	if len(inst.Data) < 1 || inst.Data[0] != computeUnitPriceDiscriminator {
		return ErrComputePriceInstruction
	}

	accounts, err := resolveInstructionAccounts(tx, inst)
	if err != nil {
		return ErrComputePriceInstruction
	}
	decoded, err := computebudget.DecodeInstruction(accounts, inst.Data)
	if err != nil {
		return ErrComputePriceInstruction
	}

	priceInst, ok := decoded.Impl.(*computebudget.SetComputeUnitPrice)
	if !ok {
		return ErrComputePriceInstruction
	}
	if priceInst.MicroLamports > MaxComputeUnitPriceMicrolamports {
		return ErrComputePriceTooHigh
	}
	return ""
}

// decodeTransferChecked decodes a TransferChecked instruction and its
// resolved account list. The program must be the legacy SPL-Token or
// Token-2022 program.
func decodeTransferChecked(tx *solana.Transaction, inst solana.CompiledInstruction) (*token.TransferChecked, []*solana.AccountMeta, solana.PublicKey, string) {
	progID, ok := instructionProgramID(tx, inst)
	if !ok {
		return nil, nil, progID, ErrNoTransferInstruction
	}
	if !progID.Equals(solana.TokenProgramID) && !progID.Equals(solana.Token2022ProgramID) {
		return nil, nil, progID, ErrNoTransferInstruction
	}

	accounts, err := resolveInstructionAccounts(tx, inst)
	if err != nil {
		return nil, nil, progID, ErrNoTransferInstruction
	}
	// TransferChecked accounts: [source, mint, destination, authority, ...]
	if len(accounts) < 4 {
		return nil, nil, progID, ErrNoTransferInstruction
	}

	decoded, err := token.DecodeInstruction(accounts, inst.Data)
	if err != nil {
		return nil, nil, progID, ErrNoTransferInstruction
	}
	transferChecked, ok := decoded.Impl.(*token.TransferChecked)
	if !ok {
		return nil, nil, progID, ErrNoTransferInstruction
	}
	return transferChecked, accounts, progID, ""
}

// transferAuthority extracts the transfer authority (the payer) from the
// transfer instruction.
func transferAuthority(tx *solana.Transaction, inst solana.CompiledInstruction) (string, string) {
	_, accounts, _, code := decodeTransferChecked(tx, inst)
	if code != "" {
		return "", code
	}
	return accounts[3].PublicKey.String(), ""
}

// associatedTokenAccount derives the ATA for an owner and mint under the
// given token program. Token-2022 mints derive different addresses than
// legacy mints, so the program is part of the seed.
func associatedTokenAccount(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindProgramAddress(
		[][]byte{
			owner.Bytes(),
			tokenProgram.Bytes(),
			mint.Bytes(),
		},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	return address, err
}

// parseAmount parses a base-unit token amount.
func parseAmount(amount string) (uint64, error) {
	return strconv.ParseUint(amount, 10, 64)
}
