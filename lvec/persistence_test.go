package lvec

import (
	"testing"

	"github.com/pallas-trace/pallas/codec"
	"github.com/pallas-trace/pallas/params"
	"github.com/stretchr/testify/require"
)

func testPipeline(t *testing.T) *codec.Pipeline {
	t.Helper()
	p, err := params.New()
	require.NoError(t, err)
	return codec.New(p)
}

func TestLinkedVectorHeaderRoundTripEmpty(t *testing.T) {
	v := New(4)
	header := v.WriteHeader(0)

	parsed, err := ParseLinkedVectorHeader(header, 4, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 0, parsed.Size())
}

func TestLinkedVectorHeaderRoundTripSingleton(t *testing.T) {
	v := New(4)
	v.Add(77)
	header := v.WriteHeader(0)

	parsed, err := ParseLinkedVectorHeader(header, 4, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, parsed.Size())

	got, err := parsed.At(0)
	require.NoError(t, err)
	require.Equal(t, uint64(77), got)
}

func TestLinkedVectorHeaderAndPayloadRoundTrip(t *testing.T) {
	v := New(4)
	for i := uint64(0); i < 10; i++ {
		v.Add(i * 3)
	}

	pipeline := testPipeline(t)

	header := v.WriteHeader(1000)
	payload, err := v.EncodePayload(pipeline)
	require.NoError(t, err)
	require.NotNil(t, payload)

	loader := func(offset uint64) ([]byte, error) {
		require.Equal(t, uint64(1000), offset)
		return payload, nil
	}

	parsed, err := ParseLinkedVectorHeader(header, 4, loader, pipeline)
	require.NoError(t, err)
	require.Equal(t, 10, parsed.Size())

	materialized, err := parsed.Materialize()
	require.NoError(t, err)

	want, err := v.Materialize()
	require.NoError(t, err)
	require.Equal(t, want, materialized)
}

func TestLinkedDurationVectorHeaderAndPayloadRoundTrip(t *testing.T) {
	dv := NewDurationVector(4)
	for i := uint64(0); i < 6; i++ {
		dv.Add(i * 10)
	}
	dv.FinalUpdateStats()

	pipeline := testPipeline(t)

	header := dv.WriteHeader(500)
	payload, err := dv.EncodePayload(pipeline)
	require.NoError(t, err)

	loader := func(offset uint64) ([]byte, error) {
		require.Equal(t, uint64(500), offset)
		return payload, nil
	}

	parsed, err := ParseLinkedDurationVectorHeader(header, 4, loader, pipeline)
	require.NoError(t, err)
	require.Equal(t, dv.Size(), parsed.Size())
	require.Equal(t, dv.Min(), parsed.Min())
	require.Equal(t, dv.Max(), parsed.Max())
	require.InDelta(t, dv.Mean(), parsed.Mean(), 1e-9)

	got, err := parsed.At(3)
	require.NoError(t, err)
	require.Equal(t, uint64(30), got)
}
