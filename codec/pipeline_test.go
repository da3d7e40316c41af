package codec

import (
	"testing"

	"github.com/pallas-trace/pallas/format"
	"github.com/pallas-trace/pallas/params"
	"github.com/stretchr/testify/require"
)

func TestPipelineRoundTripNoneEncodingNoneCompression(t *testing.T) {
	p, err := params.New()
	require.NoError(t, err)

	pipeline := New(p)
	values := []uint64{1, 2, 3, 1000, 0, 42}

	encoded, err := pipeline.Encode(values)
	require.NoError(t, err)

	decoded, err := pipeline.Decode(encoded, len(values))
	require.NoError(t, err)
	require.Equal(t, values, decoded)
}

func TestPipelineRoundTripMaskingEncoding(t *testing.T) {
	p, err := params.New(params.WithEncoding(format.EncodingMasking))
	require.NoError(t, err)

	pipeline := New(p)
	values := []uint64{1, 2, 3, 255, 42}

	encoded, err := pipeline.Encode(values)
	require.NoError(t, err)

	decoded, err := pipeline.Decode(encoded, len(values))
	require.NoError(t, err)
	require.Equal(t, values, decoded)
}

func TestPipelineRoundTripZstdCompression(t *testing.T) {
	p, err := params.New(params.WithCompression(format.CompressionZSTD))
	require.NoError(t, err)

	pipeline := New(p)
	values := make([]uint64, 500)
	for i := range values {
		values[i] = uint64(i % 17)
	}

	encoded, err := pipeline.Encode(values)
	require.NoError(t, err)

	decoded, err := pipeline.Decode(encoded, len(values))
	require.NoError(t, err)
	require.Equal(t, values, decoded)
}

func TestPipelineEmptyValues(t *testing.T) {
	p, err := params.New()
	require.NoError(t, err)

	pipeline := New(p)
	encoded, err := pipeline.Encode(nil)
	require.NoError(t, err)

	decoded, err := pipeline.Decode(encoded, 0)
	require.NoError(t, err)
	require.Empty(t, decoded)
}

func TestPipelineHistogramIsLossyButBounded(t *testing.T) {
	p, err := params.New(params.WithCompression(format.CompressionHistogram))
	require.NoError(t, err)

	pipeline := New(p)
	values := []uint64{100, 200, 300, 400, 500}

	encoded, err := pipeline.Encode(values)
	require.NoError(t, err)

	decoded, err := pipeline.Decode(encoded, len(values))
	require.NoError(t, err)
	require.Len(t, decoded, len(values))

	for i, v := range values {
		require.InDelta(t, v, decoded[i], 2)
	}
}

func TestPipelineZFPRoundTripWithinBound(t *testing.T) {
	p, err := params.New(params.WithCompression(format.CompressionZFP))
	require.NoError(t, err)

	pipeline := New(p)
	values := []uint64{1000, 5000, 10000, 20000}

	encoded, err := pipeline.Encode(values)
	require.NoError(t, err)

	decoded, err := pipeline.Decode(encoded, len(values))
	require.NoError(t, err)
	for i, v := range values {
		require.InDelta(t, v, decoded[i], 1)
	}
}

func TestPipelineSZRoundTripWithinBound(t *testing.T) {
	p, err := params.New(params.WithCompression(format.CompressionSZ))
	require.NoError(t, err)

	pipeline := New(p)
	values := []uint64{10, 20, 30, 40, 50}

	encoded, err := pipeline.Encode(values)
	require.NoError(t, err)

	decoded, err := pipeline.Decode(encoded, len(values))
	require.NoError(t, err)
	for i, v := range values {
		require.InDelta(t, v, decoded[i], 1)
	}
}

func TestPipelineConstantValues(t *testing.T) {
	p, err := params.New(params.WithCompression(format.CompressionHistogram))
	require.NoError(t, err)

	pipeline := New(p)
	values := []uint64{7, 7, 7, 7}

	encoded, err := pipeline.Encode(values)
	require.NoError(t, err)

	decoded, err := pipeline.Decode(encoded, len(values))
	require.NoError(t, err)
	require.Equal(t, values, decoded)
}
