package writer

import (
	"testing"

	"github.com/pallas-trace/pallas/params"
	"github.com/pallas-trace/pallas/thread"
	"github.com/pallas-trace/pallas/token"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T, opts ...params.Option) (*Writer, *thread.Thread) {
	t.Helper()
	p, err := params.New(opts...)
	require.NoError(t, err)

	th := thread.New(1, nil)
	return New(th, p, nil), th
}

func ev(tag byte) token.Event {
	return token.Event{Record: 1, EventSize: 1, Payload: []byte{tag}}
}

// TestBasicLoopDetection verifies that recording E1 E2 E3 three times
// back to back collapses into a single Loop token whose iteration count
// grows with each repetition.
func TestBasicLoopDetection(t *testing.T) {
	w, th := newTestWriter(t)

	e1, e2, e3 := ev(1), ev(2), ev(3)
	ts := uint64(10)
	step := func(e token.Event) {
		_, err := w.StoreEvent(Plain, e, ts, nil)
		require.NoError(t, err)
		ts += 10
	}

	step(e1)
	step(e2)
	step(e3)
	step(e1)
	step(e2)
	step(e3)

	root := w.sequenceStack[0]
	require.Len(t, root, 1)
	require.Equal(t, token.Loop, root[0].Kind())

	loop, err := th.Loop(root[0].ID())
	require.NoError(t, err)
	require.Equal(t, []uint32{2}, loop.NbIterations)

	body, err := th.Sequence(loop.RepeatedToken.ID())
	require.NoError(t, err)
	require.Len(t, body.Tokens, 3)

	step(e1)
	step(e2)
	step(e3)

	root = w.sequenceStack[0]
	require.Len(t, root, 1)
	require.Equal(t, []uint32{3}, loop.NbIterations)
}

// TestSeparatedLoops verifies that two separated runs of the same
// three-event loop body, with an unrelated event between them, produce
// two distinct loop occurrences sharing one body sequence.
func TestSeparatedLoops(t *testing.T) {
	w, th := newTestWriter(t)

	e1, e2, e3, e4 := ev(1), ev(2), ev(3), ev(4)
	ts := uint64(10)
	step := func(e token.Event) {
		_, err := w.StoreEvent(Plain, e, ts, nil)
		require.NoError(t, err)
		ts += 10
	}

	for _, e := range []token.Event{e1, e2, e3, e1, e2, e3} {
		step(e)
	}
	step(e4)
	for _, e := range []token.Event{e1, e2, e3, e1, e2, e3} {
		step(e)
	}

	root := w.sequenceStack[0]
	require.Len(t, root, 3)
	require.Equal(t, token.Loop, root[0].Kind())
	require.Equal(t, token.Event, root[1].Kind())
	require.Equal(t, token.Loop, root[2].Kind())
	require.Equal(t, root[0], root[2])

	loop, err := th.Loop(root[0].ID())
	require.NoError(t, err)
	require.Equal(t, []uint32{2, 2}, loop.NbIterations)

	body, err := th.Sequence(loop.RepeatedToken.ID())
	require.NoError(t, err)
	require.Equal(t, 4, body.Durations.Size())
}

// TestNestedBlocks verifies that an Enter/Leave pair repeated three times
// collapses its body into one Sequence and the repetitions into one Loop.
func TestNestedBlocks(t *testing.T) {
	w, _ := newTestWriter(t)

	eA, eB := ev(0xA), ev(0xB)
	ts := uint64(10)
	enterLeave := func() {
		_, err := w.StoreEvent(BlockStart, eA, ts, nil)
		require.NoError(t, err)
		ts += 10
		_, err = w.StoreEvent(Plain, eB, ts, nil)
		require.NoError(t, err)
		ts += 10
		_, err = w.StoreEvent(BlockEnd, eA, ts, nil)
		require.NoError(t, err)
		ts += 10
	}

	for i := 0; i < 3; i++ {
		enterLeave()
	}

	root := w.sequenceStack[0]
	require.Len(t, root, 1)
	require.Equal(t, token.Loop, root[0].Kind())
}

func TestStoreEventRejectsOversizedEvent(t *testing.T) {
	w, _ := newTestWriter(t)

	bad := token.Event{Record: 1, EventSize: 5, Payload: []byte{1}}
	_, err := w.StoreEvent(Plain, bad, 10, nil)
	require.Error(t, err)
}

func TestAttributesRecorded(t *testing.T) {
	w, th := newTestWriter(t)
	e := ev(7)

	occ, err := w.StoreEvent(Plain, e, 10, []byte("first"))
	require.NoError(t, err)
	require.Equal(t, uint64(0), occ)

	_, err = w.StoreEvent(Plain, e, 20, nil)
	require.NoError(t, err)

	id := th.GetEventID(e)
	summary, err := th.EventSummary(id)
	require.NoError(t, err)

	got, err := summary.AttributesForOccurrence(0)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), got)

	_, err = summary.AttributesForOccurrence(1)
	require.Error(t, err)
}

func TestCloseForceClosesUnmatchedBlocks(t *testing.T) {
	w, th := newTestWriter(t)

	_, err := w.StoreEvent(BlockStart, ev(1), 10, nil)
	require.NoError(t, err)
	_, err = w.StoreEvent(Plain, ev(2), 20, nil)
	require.NoError(t, err)

	require.Equal(t, 1, w.curDepth)

	require.NoError(t, w.Close())
	require.Equal(t, 0, w.curDepth)

	root, err := th.Sequence(0)
	require.NoError(t, err)
	require.Equal(t, 1, root.Durations.Size())
}

func TestCloseFinalizesEventDurationStats(t *testing.T) {
	w, th := newTestWriter(t)
	e := ev(1)

	ts := uint64(10)
	for i := 0; i < 3; i++ {
		_, err := w.StoreEvent(Plain, e, ts, nil)
		require.NoError(t, err)
		ts += 10
	}

	require.NoError(t, w.Close())

	id := th.GetEventID(e)
	summary, err := th.EventSummary(id)
	require.NoError(t, err)
	// The first two occurrences both resolve to a real 10ns duration; the
	// third is still open when the thread closes, so FinalUpdateStats
	// folds in whatever its provisional cell held at that point (its raw
	// relative timestamp, 20).
	require.Equal(t, uint64(10), summary.Durations.Min())
	require.Equal(t, uint64(20), summary.Durations.Max())
}
