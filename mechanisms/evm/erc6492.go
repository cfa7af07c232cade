package evm

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var erc6492WrapperArgs = abi.Arguments{
	{Name: "factory", Type: mustABIType("address")},
	{Name: "factoryCalldata", Type: mustABIType("bytes")},
	{Name: "signature", Type: mustABIType("bytes")},
}

func mustABIType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// IsERC6492Signature reports whether the signature carries the ERC-6492
// magic suffix marking a wrapped counterfactual-wallet signature.
func IsERC6492Signature(signature []byte) bool {
	magic, err := HexToBytes(ERC6492MagicValue)
	if err != nil || len(signature) < len(magic) {
		return false
	}
	return bytes.Equal(signature[len(signature)-len(magic):], magic)
}

// DecodeERC6492Signature unwraps an ERC-6492 signature into its factory
// address, factory calldata and inner signature. The input must carry
// the magic suffix.
func DecodeERC6492Signature(signature []byte) (*ERC6492Signature, error) {
	if !IsERC6492Signature(signature) {
		return nil, fmt.Errorf("signature does not have ERC-6492 magic suffix")
	}

	wrapped := signature[:len(signature)-32]
	values, err := erc6492WrapperArgs.Unpack(wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ERC-6492 wrapper: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected ERC-6492 wrapper arity: %d", len(values))
	}

	factory, ok := values[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected factory type %T", values[0])
	}
	factoryCalldata, ok := values[1].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected factory calldata type %T", values[1])
	}
	innerSignature, ok := values[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected inner signature type %T", values[2])
	}

	decoded := &ERC6492Signature{
		FactoryCalldata: factoryCalldata,
		InnerSignature:  innerSignature,
	}
	copy(decoded.Factory[:], factory.Bytes())
	return decoded, nil
}

// EncodeERC6492Signature wraps a signature in the ERC-6492 envelope.
func EncodeERC6492Signature(factory common.Address, factoryCalldata []byte, innerSignature []byte) ([]byte, error) {
	wrapped, err := erc6492WrapperArgs.Pack(factory, factoryCalldata, innerSignature)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ERC-6492 wrapper: %w", err)
	}
	magic, err := HexToBytes(ERC6492MagicValue)
	if err != nil {
		return nil, err
	}
	return append(wrapped, magic...), nil
}
