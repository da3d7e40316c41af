package lvec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinkedDurationVectorDeferredStats(t *testing.T) {
	dv := NewDurationVector(4)

	dv.Add(10) // provisional, no stats folded yet
	require.Equal(t, float64(0), dv.Mean())

	dv.Add(20) // folds the 10 in; 20 becomes provisional
	require.Equal(t, uint64(10), dv.Min())
	require.Equal(t, uint64(10), dv.Max())
	require.Equal(t, float64(10), dv.Mean())

	dv.Add(30) // folds the 20 in; 30 becomes provisional
	require.Equal(t, uint64(10), dv.Min())
	require.Equal(t, uint64(20), dv.Max())
	require.Equal(t, float64(15), dv.Mean())
}

func TestLinkedDurationVectorFinalUpdateStats(t *testing.T) {
	dv := NewDurationVector(4)
	dv.Add(10)
	dv.Add(20)
	dv.Add(30)

	dv.FinalUpdateStats()
	require.Equal(t, uint64(10), dv.Min())
	require.Equal(t, uint64(30), dv.Max())
	require.InDelta(t, 20.0, dv.Mean(), 1e-9)
}

func TestLinkedDurationVectorBackPatch(t *testing.T) {
	dv := NewDurationVector(4)
	dv.Add(1000) // raw enter timestamp, to be overwritten with a duration

	h := dv.LastHandle()
	dv.Set(h, 42) // leave arrives, overwrite with resolved duration

	back, err := dv.Back()
	require.NoError(t, err)
	require.Equal(t, uint64(42), back)

	dv.Add(999) // folds the resolved 42 into stats, not the raw 1000
	require.Equal(t, uint64(42), dv.Min())
	require.Equal(t, uint64(42), dv.Max())
}

func TestLinkedDurationVectorAddToBackpatchesEnclosingSequence(t *testing.T) {
	dv := NewDurationVector(4)
	h := dv.Add(0)

	dv.AddTo(h, 15)
	dv.AddTo(h, 5)

	back, err := dv.Back()
	require.NoError(t, err)
	require.Equal(t, uint64(20), back)
}

func TestLinkedDurationVectorEmptyMean(t *testing.T) {
	dv := NewDurationVector(4)
	require.Equal(t, float64(0), dv.Mean())
}

func TestNewDurationVectorFromHeaderSeedsStats(t *testing.T) {
	loader := func() ([]uint64, error) { return []uint64{1, 2, 3}, nil }
	dv := NewDurationVectorFromHeader(3, 4, 1, 3, 2.0, loader)

	require.Equal(t, uint64(1), dv.Min())
	require.Equal(t, uint64(3), dv.Max())
	require.InDelta(t, 2.0, dv.Mean(), 1e-9)

	got, err := dv.At(1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), got)
}
