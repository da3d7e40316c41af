package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pallas-trace/pallas/archive"
	"github.com/pallas-trace/pallas/format"
	"github.com/pallas-trace/pallas/params"
	"github.com/pallas-trace/pallas/reader"
	"github.com/pallas-trace/pallas/thread"
	"github.com/pallas-trace/pallas/token"
)

func TestGlobalHeaderRoundTrip(t *testing.T) {
	h := GlobalHeader{
		GroupID:            0,
		ABIVersion:         ABIVersion,
		Params:             params.Default(),
		StringCount:        3,
		RegionCount:        2,
		AttributeCount:     1,
		LocationGroupCount: 4,
		LocationCount:      5,
		NbThreads:          6,
	}

	parsed, err := ParseGlobalHeader(h.Bytes())
	require.NoError(t, err)
	require.Equal(t, h, parsed)
}

func TestGlobalHeaderRejectsABIMismatch(t *testing.T) {
	h := GlobalHeader{ABIVersion: ABIVersion + 1, Params: params.Default()}

	_, err := ParseGlobalHeader(h.Bytes())
	require.Error(t, err)
}

func TestGlobalHeaderRejectsShortBuffer(t *testing.T) {
	_, err := ParseGlobalHeader([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestArchiveHeaderRoundTrip(t *testing.T) {
	h := ArchiveHeader{GroupID: 100, StringCount: 1, RegionCount: 2, AttributeCount: 3, GroupCount: 4, CommCount: 5, NbThreads: 6}

	parsed, err := ParseArchiveHeader(h.Bytes())
	require.NoError(t, err)
	require.Equal(t, h, parsed)
}

func TestThreadHeaderRoundTrip(t *testing.T) {
	h := ThreadHeader{
		ID: 7, ParentArchiveID: 100, NbEvents: 2, NbSequences: 3, NbLoops: 1,
		AttributeCodec: 1, SideFileCodec: 2, Checksum: 0xdeadbeef,
	}

	parsed, err := ParseThreadHeader(h.Bytes())
	require.NoError(t, err)
	require.Equal(t, h, parsed)
}

// buildTestTrace constructs a tiny in-memory GlobalArchive with one
// process Archive and one hand-built Thread owning two distinct events
// (the second repeated in a loop), exercising every entity kind Write and
// Open need to round-trip.
func buildTestTrace(t *testing.T) *archive.GlobalArchive {
	t.Helper()

	ga := archive.NewGlobalArchive(nil)
	require.NoError(t, ga.AddString(1, "main"))
	require.NoError(t, ga.DefineLocationGroup(100, "node0", 0, false))
	require.NoError(t, ga.DefineLocation(1, "thread0", 100))

	a := ga.NewArchive(100)
	require.NoError(t, a.AddString(2, "enter"))

	th := thread.New(7, nil)

	enter := token.Event{Record: 1, EventSize: 3, Payload: []byte{1, 2, 3}}
	enterID := th.GetEventID(enter)
	enterSummary, err := th.EventSummary(enterID)
	require.NoError(t, err)
	enterSummary.RecordOccurrence(100)
	enterSummary.RecordOccurrence(250)
	enterSummary.Durations.FinalUpdateStats()
	enterSummary.AppendAttributes(0, []byte("attrs-for-occurrence-0"))

	bodyTokens := []token.Token{token.New(token.Event, enterID)}
	bodyID := th.GetSequenceIDFromArray(bodyTokens)
	body, err := th.Sequence(bodyID)
	require.NoError(t, err)
	body.Durations.Add(150)
	body.Durations.Add(175)
	body.Durations.FinalUpdateStats()

	loop := th.NewLoop(token.New(token.Sequence, bodyID))
	loop.NbIterations = []uint32{2, 3}

	a.AdoptThread(th)

	return ga
}

func TestWriteOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ga := buildTestTrace(t)
	p := params.Default()

	require.NoError(t, Write(ga, dir, "trace1", p))

	reopened, err := Open(dir, "trace1", nil)
	require.NoError(t, err)

	_, ok := reopened.GetString(1)
	require.True(t, ok)

	loc, ok := reopened.GetLocation(1)
	require.True(t, ok)
	require.Equal(t, "thread0", loc.Name)

	archives := reopened.Archives()
	require.Len(t, archives, 1)
	a := archives[0]
	require.Equal(t, uint32(100), a.GroupID)

	_, ok = a.GetString(2)
	require.True(t, ok)

	threads := a.Threads()
	require.Len(t, threads, 1)
	th := threads[0]
	require.Equal(t, thread.ID(7), th.ID)
	require.Equal(t, 1, th.NumEvents())
	require.Equal(t, 2, th.NumSequences())
	require.Equal(t, 1, th.NumLoops())

	enterSummary, err := th.EventSummary(0)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, enterSummary.Event.Bytes())
	require.Equal(t, uint64(2), enterSummary.NbOccurrences)

	durations, err := enterSummary.Durations.Materialize()
	require.NoError(t, err)
	require.Equal(t, []uint64{100, 250}, durations)

	attrs, err := enterSummary.AttributesForOccurrence(0)
	require.NoError(t, err)
	require.Equal(t, "attrs-for-occurrence-0", string(attrs))

	body, err := th.Sequence(1)
	require.NoError(t, err)
	require.Equal(t, []token.Token{token.New(token.Event, 0)}, body.Tokens)

	bodyDurations, err := body.Durations.Materialize()
	require.NoError(t, err)
	require.Equal(t, []uint64{150, 175}, bodyDurations)

	loop, err := th.Loop(0)
	require.NoError(t, err)
	require.Equal(t, token.New(token.Sequence, 1), loop.RepeatedToken)
	require.Equal(t, []uint32{2, 3}, loop.NbIterations)
}

func TestWriteOpenRoundTripWithSideFileCompression(t *testing.T) {
	dir := t.TempDir()
	ga := buildTestTrace(t)
	p := params.Default()

	require.NoError(t, Write(ga, dir, "trace1", p, WithSideFileCompression(2)))

	reopened, err := Open(dir, "trace1", nil)
	require.NoError(t, err)

	th := reopened.Archives()[0].Threads()[0]
	enterSummary, err := th.EventSummary(0)
	require.NoError(t, err)

	durations, err := enterSummary.Durations.Materialize()
	require.NoError(t, err)
	require.Equal(t, []uint64{100, 250}, durations)
}

// TestWriteOpenRoundTripWithReaderTraversal exercises the full on-disk
// path with a non-default codec pipeline (ZSTD compression over Masking
// encoding, and a bounded BasicTruncated loop detector) and then replays
// the reopened thread with a ThreadReader, checking that the reader's
// reconstructed occurrence durations match what was written, verified
// against storage-reloaded data rather than a hand-built Thread.
func TestWriteOpenRoundTripWithReaderTraversal(t *testing.T) {
	dir := t.TempDir()
	ga := buildTestTrace(t)

	// buildTestTrace never populates the thread's root sequence (it only
	// exercises entity-level round-tripping), so give it one here: the
	// event followed by the loop, matching what a real recording session
	// would have produced.
	th0 := ga.Archives()[0].Threads()[0]
	th0.LoadSequence(0, 0, []token.Token{
		token.New(token.Event, 0),
		token.New(token.Loop, 0),
	})

	p, err := params.New(
		params.WithCompression(format.CompressionZSTD),
		params.WithEncoding(format.EncodingMasking),
		params.WithLoopFinding(format.LoopFindingBasicTruncated),
		params.WithMaxLoopLength(8),
	)
	require.NoError(t, err)

	require.NoError(t, Write(ga, dir, "trace1", p))

	reopened, err := Open(dir, "trace1", nil)
	require.NoError(t, err)

	th := reopened.Archives()[0].Threads()[0]
	r := reader.New(th, nil)

	crossed, err := r.MoveToNextToken(reader.UnrollAll) // cross root event, occurrence 0
	require.NoError(t, err)
	require.Equal(t, token.New(token.Event, 0), crossed)
	require.Equal(t, uint64(100), r.ReferentialTimestamp())

	// Still positioned on the Loop token itself (not yet entered): its
	// occurrence aggregates the body sequence's first two recorded
	// durations, matching NbIterations[0] == 2.
	loopOcc, err := r.GetLoopOccurrence()
	require.NoError(t, err)
	require.Equal(t, uint64(0), loopOcc.Occurrence)
	require.Equal(t, uint64(150+175), loopOcc.Duration)

	crossed, err = r.MoveToNextToken(reader.UnrollAll) // enter loop
	require.NoError(t, err)
	require.Equal(t, token.New(token.Loop, 0), crossed)
	require.Equal(t, uint64(100), r.ReferentialTimestamp())

	// Now positioned on the loop body's Sequence token: its own
	// occurrence duration is the one recorded directly against it, not
	// the Loop's aggregate above.
	seqOcc, err := r.GetSequenceOccurrence(false)
	require.NoError(t, err)
	require.Equal(t, uint64(0), seqOcc.Occurrence)
	require.Equal(t, uint64(150), seqOcc.Duration)

	require.NoError(t, r.EnterBlock()) // descend into the body sequence

	crossed, err = r.MoveToNextToken(reader.UnrollAll) // cross the body's event, occurrence 1
	require.NoError(t, err)
	require.Equal(t, token.New(token.Event, 0), crossed)
	require.Equal(t, uint64(100+250), r.ReferentialTimestamp())
}
