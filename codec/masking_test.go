package codec

import (
	"testing"

	"github.com/pallas-trace/pallas/endian"
	"github.com/stretchr/testify/require"
)

func TestByteWidth(t *testing.T) {
	require.Equal(t, 0, byteWidth(0))
	require.Equal(t, 1, byteWidth(0xFF))
	require.Equal(t, 2, byteWidth(0x100))
	require.Equal(t, 2, byteWidth(0xFFFF))
	require.Equal(t, 8, byteWidth(0xFFFFFFFFFFFFFFFF))
}

func TestEncodeDecodeMaskingAllZeros(t *testing.T) {
	engine := endian.GetLittleEndianEngine()
	values := []uint64{0, 0, 0, 0}

	encoded := encodeMasking(engine, values)
	require.Empty(t, encoded)

	decoded, err := decodeMasking(engine, encoded, len(values))
	require.NoError(t, err)
	require.Equal(t, values, decoded)
}

func TestEncodeDecodeMaskingFullWidth(t *testing.T) {
	engine := endian.GetLittleEndianEngine()
	values := []uint64{1, 0xFFFFFFFFFFFFFFFF, 42}

	encoded := encodeMasking(engine, values)
	require.Len(t, encoded, len(values)*8)

	decoded, err := decodeMasking(engine, encoded, len(values))
	require.NoError(t, err)
	require.Equal(t, values, decoded)
}
