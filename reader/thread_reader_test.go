package reader

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pallas-trace/pallas/errs"
	"github.com/pallas-trace/pallas/thread"
	"github.com/pallas-trace/pallas/token"
)

// buildReaderTestThread constructs a Thread whose root sequence is
// [Event(enter), Loop(body=Sequence[Event(enter)], iterations=[3])]: one
// Loop occurrence repeating its body three times, giving four total
// occurrences of the same Event (durations 10, 20, 5, 7) and exercising
// entry into both a Loop and its body Sequence.
func buildReaderTestThread(t *testing.T) *thread.Thread {
	t.Helper()

	th := thread.New(1, nil)

	enter := token.Event{Record: 1, EventSize: 1, Payload: []byte{1}}
	enterID := th.GetEventID(enter)
	enterSummary, err := th.EventSummary(enterID)
	require.NoError(t, err)
	enterSummary.Durations.Add(10)
	enterSummary.Durations.Add(20)
	enterSummary.Durations.Add(5)
	enterSummary.Durations.Add(7)
	enterSummary.Durations.FinalUpdateStats()

	bodyTokens := []token.Token{token.New(token.Event, enterID)}
	bodyID := th.GetSequenceIDFromArray(bodyTokens)
	body, err := th.Sequence(bodyID)
	require.NoError(t, err)
	body.Durations.Add(100)
	body.Durations.Add(200)
	body.Durations.Add(300)
	body.Durations.FinalUpdateStats()

	loop := th.NewLoop(token.New(token.Sequence, bodyID))
	loop.NbIterations = []uint32{3}

	root := []token.Token{
		token.New(token.Event, enterID),
		loop.SelfID,
	}
	th.LoadSequence(0, 0, root)

	return th
}

func TestThreadReaderForwardFullyUnrolled(t *testing.T) {
	th := buildReaderTestThread(t)
	r := New(th, nil)

	enterTok := token.New(token.Event, 0)
	loopTok := token.New(token.Loop, 0)
	bodyTok := token.New(token.Sequence, 1) // id 0 is the thread's root sequence

	cur, err := r.PollCurToken()
	require.NoError(t, err)
	require.Equal(t, enterTok, cur)

	crossed, err := r.MoveToNextToken(UnrollAll) // cross root event, occurrence 0
	require.NoError(t, err)
	require.Equal(t, enterTok, crossed)
	require.Equal(t, uint64(10), r.ReferentialTimestamp())

	cur, err = r.PollCurToken()
	require.NoError(t, err)
	require.Equal(t, loopTok, cur)

	crossed, err = r.MoveToNextToken(UnrollAll) // enter loop
	require.NoError(t, err)
	require.Equal(t, loopTok, crossed)
	require.Equal(t, uint64(10), r.ReferentialTimestamp())

	cur, err = r.PollCurToken()
	require.NoError(t, err)
	require.Equal(t, bodyTok, cur)

	// Three loop repetitions, each entering the body sequence and then
	// crossing its one Event.
	expectedTotals := []uint64{30, 35, 42} // 10+20, +5, +7

	for i, want := range expectedTotals {
		crossed, err = r.MoveToNextToken(UnrollAll) // enter body
		require.NoError(t, err)
		require.Equal(t, bodyTok, crossed)

		crossed, err = r.MoveToNextToken(UnrollAll) // cross enter event
		require.NoError(t, err)
		require.Equal(t, enterTok, crossed)
		require.Equal(t, want, r.ReferentialTimestamp(), "repetition %d", i)
	}

	// Crossing the loop's last repetition pops the body, the loop, and
	// the root sequence in the same call, landing at end of trace.
	require.True(t, r.AtEnd())

	_, err = r.PollCurToken()
	require.ErrorIs(t, err, errs.ErrEndOfTrace)
}

func TestThreadReaderBackwardSymmetry(t *testing.T) {
	th := buildReaderTestThread(t)
	r := New(th, nil)

	const steps = 8
	for i := 0; i < steps; i++ {
		_, err := r.MoveToNextToken(UnrollAll)
		require.NoError(t, err)
	}
	require.True(t, r.AtEnd())
	require.Equal(t, uint64(42), r.ReferentialTimestamp())

	for i := 0; i < steps; i++ {
		_, err := r.MoveToPrevToken(UnrollAll)
		require.NoError(t, err)
	}

	require.False(t, r.AtEnd())
	require.Equal(t, uint64(0), r.ReferentialTimestamp())
	require.Equal(t, 1, r.Depth())

	cur, err := r.PollCurToken()
	require.NoError(t, err)
	require.Equal(t, token.New(token.Event, 0), cur)

	for _, tok := range []token.Token{
		token.New(token.Event, 0),
		token.New(token.Sequence, 1),
		token.New(token.Loop, 0),
	} {
		require.Zero(t, r.tokenCount[tok])
	}
}

func TestThreadReaderNoUnrollFlatWalk(t *testing.T) {
	th := buildReaderTestThread(t)
	r := New(th, nil)

	enterTok := token.New(token.Event, 0)
	loopTok := token.New(token.Loop, 0)

	crossed, err := r.MoveToNextToken(NoUnroll)
	require.NoError(t, err)
	require.Equal(t, enterTok, crossed)
	require.Equal(t, uint64(10), r.ReferentialTimestamp())

	crossed, err = r.MoveToNextToken(NoUnroll)
	require.NoError(t, err)
	require.Equal(t, loopTok, crossed)
	require.Equal(t, uint64(10+600), r.ReferentialTimestamp()) // 10 (event) + 100+200+300 (loop's one occurrence, three iterations)
	require.True(t, r.AtEnd())

	_, err = r.MoveToPrevToken(NoUnroll)
	require.NoError(t, err)
	require.Equal(t, uint64(10), r.ReferentialTimestamp())

	_, err = r.MoveToPrevToken(NoUnroll)
	require.NoError(t, err)
	require.Equal(t, uint64(0), r.ReferentialTimestamp())
}

func TestThreadReaderEventOccurrenceAndAttributes(t *testing.T) {
	th := buildReaderTestThread(t)
	enterID := uint32(0)
	summary, err := th.EventSummary(enterID)
	require.NoError(t, err)
	summary.AppendAttributes(1, []byte("mid-loop"))

	r := New(th, nil)
	occ, err := r.GetEventOccurrence()
	require.NoError(t, err)
	require.Equal(t, uint64(0), occ.Occurrence)
	require.Equal(t, uint64(10), occ.Duration)

	_, err = r.MoveToNextToken(UnrollAll) // cross root event, occurrence 0
	require.NoError(t, err)
	_, err = r.MoveToNextToken(UnrollAll) // enter loop
	require.NoError(t, err)
	_, err = r.MoveToNextToken(UnrollAll) // enter body
	require.NoError(t, err)

	occ, err = r.GetEventOccurrence()
	require.NoError(t, err)
	require.Equal(t, uint64(1), occ.Occurrence)

	attrs, err := r.GetEventAttributeList(token.New(token.Event, enterID), 1)
	require.NoError(t, err)
	require.Equal(t, "mid-loop", string(attrs))

	_, err = r.GetEventAttributeList(token.New(token.Event, enterID), 0)
	require.Error(t, err)
}

func TestThreadReaderSnapshotRestore(t *testing.T) {
	th := buildReaderTestThread(t)
	r := New(th, nil)

	_, err := r.MoveToNextToken(UnrollAll) // cross root event, ts=10
	require.NoError(t, err)

	snap := r.Snapshot()

	_, err = r.MoveToNextToken(UnrollAll) // enter loop
	require.NoError(t, err)
	_, err = r.MoveToNextToken(UnrollAll) // enter body
	require.NoError(t, err)
	_, err = r.MoveToNextToken(UnrollAll) // cross enter event, occurrence 1, ts=30
	require.NoError(t, err)
	require.NotEqual(t, snap.referentialTimestamp, r.ReferentialTimestamp())

	require.NoError(t, r.Restore(snap))
	require.Equal(t, uint64(10), r.ReferentialTimestamp())

	var zero Snapshot
	require.Error(t, r.Restore(zero))
}

func TestThreadReaderEnterLeaveBlockExplicit(t *testing.T) {
	th := buildReaderTestThread(t)
	r := New(th, nil)

	require.Error(t, r.EnterBlock()) // current token is an Event, not iterable

	_, err := r.MoveToNextToken(NoUnroll) // cross Event, land on Loop
	require.NoError(t, err)

	require.NoError(t, r.EnterBlock())
	require.Equal(t, 2, r.Depth())

	require.NoError(t, r.LeaveBlock())
	require.Equal(t, 1, r.Depth())

	require.Error(t, r.LeaveBlock()) // root frame cannot be left
}

func TestThreadReaderRejectsInvalidFlags(t *testing.T) {
	th := buildReaderTestThread(t)
	r := New(th, nil)

	_, err := r.MoveToNextToken(UnrollFlags(0xF0))
	require.Error(t, err)
}
