package evm

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsERC6492Signature(t *testing.T) {
	magic, err := HexToBytes(ERC6492MagicValue)
	require.NoError(t, err)

	plain, err := HexToBytes("0x" + strings.Repeat("ab", 65))
	require.NoError(t, err)
	assert.False(t, IsERC6492Signature(plain))
	assert.False(t, IsERC6492Signature(nil))
	assert.True(t, IsERC6492Signature(append(make([]byte, 96), magic...)))
}

func TestERC6492SignatureRoundTrip(t *testing.T) {
	factory := common.HexToAddress("0x00000000000000000000000000000000000000fa")
	calldata := []byte{0x01, 0x02, 0x03}
	inner, err := HexToBytes("0x" + strings.Repeat("cd", 65))
	require.NoError(t, err)

	wrapped, err := EncodeERC6492Signature(factory, calldata, inner)
	require.NoError(t, err)
	require.True(t, IsERC6492Signature(wrapped))

	decoded, err := DecodeERC6492Signature(wrapped)
	require.NoError(t, err)
	assert.Equal(t, factory.Bytes(), decoded.Factory[:])
	assert.Equal(t, calldata, decoded.FactoryCalldata)
	assert.Equal(t, inner, decoded.InnerSignature)
}

func TestDecodeERC6492SignatureRejectsUnwrapped(t *testing.T) {
	plain, err := HexToBytes("0x" + strings.Repeat("ab", 65))
	require.NoError(t, err)

	_, err = DecodeERC6492Signature(plain)
	assert.Error(t, err)
}
