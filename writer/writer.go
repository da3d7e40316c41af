// Package writer implements the online per-thread grammar builder: it
// turns a flat stream of StoreEvent calls into a Thread's Sequence/Loop
// grammar with online loop detection and deferred duration bookkeeping.
package writer

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pallas-trace/pallas/errs"
	"github.com/pallas-trace/pallas/lvec"
	"github.com/pallas-trace/pallas/params"
	"github.com/pallas-trace/pallas/thread"
	"github.com/pallas-trace/pallas/token"
)

// MaxCallstackDepth bounds how many nested BlockStart events a Writer
// tolerates before treating further nesting as a fatal-bug-class error.
const MaxCallstackDepth = 256

// BlockKind tells StoreEvent how the event it is recording relates to
// sequence nesting.
type BlockKind uint8

const (
	// Plain is an ordinary leaf event, neither opening nor closing a
	// nested sequence.
	Plain BlockKind = iota
	// BlockStart opens a new nested sequence (an "enter").
	BlockStart
	// BlockEnd closes the innermost open sequence (a "leave").
	BlockEnd
)

// durationCell is an (index,chunk) handle into some Thread-owned
// LinkedDurationVector, the idiomatic stand-in for a raw pointer into a
// duration cell.
type durationCell struct {
	vec    *lvec.LinkedDurationVector
	handle lvec.Handle
}

// Writer is the online per-thread grammar builder. A Writer owns exactly
// one Thread, is single-writer, and does no internal locking on its hot
// path.
type Writer struct {
	thread *thread.Thread
	params params.Parameters
	log    *slog.Logger

	sequenceStack          [][]token.Token
	sequenceStartTimestamp []uint64
	curDepth               int

	haveLast      bool
	lastTimestamp uint64
	lastDuration  durationCell

	incompleteDurations []durationCell

	haveFirst      bool
	firstTimestamp uint64
}

// New creates a Writer over the given Thread. log defaults to
// slog.Default() if nil.
func New(t *thread.Thread, p params.Parameters, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}

	return &Writer{
		thread:                 t,
		params:                 p,
		log:                    log,
		sequenceStack:          [][]token.Token{nil},
		sequenceStartTimestamp: make([]uint64, MaxCallstackDepth),
	}
}

// resolve turns a caller-supplied absolute timestamp into the
// anchor-relative nanosecond value Pallas stores, capturing the anchor
// timestamp on the very first call.
func (w *Writer) resolve(ts uint64) uint64 {
	if !w.haveFirst {
		w.firstTimestamp = ts
		w.haveFirst = true
	}

	return ts - w.firstTimestamp
}

// StoreEvent records one occurrence of e at absolute timestamp ts,
// returning the occurrence index assigned to it within its EventSummary.
// attrs, if non-empty, is appended to the event's attribute log under
// that occurrence index.
//
// StoreEvent resolves and stores the new event's own duration bookkeeping
// before running the loop detector, so that a freshly appended token
// already has a valid (if still provisional) duration cell by the time
// the detector needs to sum its contribution.
func (w *Writer) StoreEvent(kind BlockKind, e token.Event, ts uint64, attrs []byte) (uint64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	rel := w.resolve(ts)

	if kind == BlockStart {
		if w.curDepth+1 >= MaxCallstackDepth {
			panic(fmt.Sprintf("writer: %v: depth %d", errs.ErrCallstackOverflow, w.curDepth+1))
		}

		w.curDepth++
		w.sequenceStartTimestamp[w.curDepth] = rel
		w.sequenceStack = append(w.sequenceStack, nil)
	}

	eventID := w.thread.GetEventID(e)
	summary, err := w.thread.EventSummary(eventID)
	if err != nil {
		return 0, err
	}

	occurrence := summary.NbOccurrences
	summary.NbOccurrences++
	w.storeTimestamp(summary.Durations, rel)

	if len(attrs) > 0 {
		summary.AppendAttributes(occurrence, attrs)
	}

	w.appendToken(token.New(token.Event, eventID))

	if kind == BlockEnd {
		if err := w.closeSequence(); err != nil {
			return occurrence, err
		}
	}

	return occurrence, nil
}

// StoreEventNow is StoreEvent using the wall clock as the timestamp
// source, for callers that do not track their own monotonic clock.
func (w *Writer) StoreEventNow(kind BlockKind, e token.Event, attrs []byte) (uint64, error) {
	return w.StoreEvent(kind, e, uint64(time.Now().UnixNano()), attrs)
}

// storeTimestamp back-patches the previous provisional cell with the
// now-known delta, propagates that delta to every still-open ancestor
// duration, then appends ts as the new provisional cell of vec.
func (w *Writer) storeTimestamp(vec *lvec.LinkedDurationVector, ts uint64) lvec.Handle {
	if w.haveLast {
		delta := ts - w.lastTimestamp
		w.lastDuration.vec.Set(w.lastDuration.handle, delta)

		for _, ic := range w.incompleteDurations {
			ic.vec.AddTo(ic.handle, delta)
		}
		w.incompleteDurations = w.incompleteDurations[:0]
	}

	h := vec.Add(ts)
	w.lastDuration = durationCell{vec: vec, handle: h}
	w.haveLast = true
	w.lastTimestamp = ts

	return h
}

// appendToken appends tok to the current innermost sequence and runs the
// configured loop detector over it.
func (w *Writer) appendToken(tok token.Token) {
	w.sequenceStack[w.curDepth] = append(w.sequenceStack[w.curDepth], tok)
	w.runLoopDetector()
}

// closeSequence finalizes the innermost open sequence's duration, dedups
// it into the Thread, pops the callstack, and appends the resulting
// Sequence token to the new top (which may itself trigger loop
// detection).
func (w *Writer) closeSequence() error {
	if w.curDepth == 0 {
		return errs.ErrCallstackUnderflow
	}

	d := w.curDepth
	duration := w.lastTimestamp - w.sequenceStartTimestamp[d]
	cur := w.sequenceStack[d]

	seqID := w.thread.GetSequenceIDFromArray(cur)
	seq, err := w.thread.Sequence(seqID)
	if err != nil {
		return err
	}
	seq.Durations.Add(duration)
	seq.InvalidateTokenCount()

	w.sequenceStack = w.sequenceStack[:d]
	w.curDepth--

	w.appendToken(token.New(token.Sequence, seqID))

	return nil
}

// Close force-closes any sequence still open on the callstack (logging a
// warning, since a well-formed recorder should have matched every enter
// with a leave), then folds every duration vector the thread owns in its
// final provisional element.
func (w *Writer) Close() error {
	for w.curDepth > 0 {
		w.log.Warn("pallas: force-closing unmatched sequence at thread close",
			"depth", w.curDepth)

		if err := w.closeSequence(); err != nil {
			return err
		}
	}

	root, err := w.thread.Sequence(0)
	if err != nil {
		return err
	}
	root.Tokens = w.sequenceStack[0]
	root.InvalidateTokenCount()
	root.Durations.Add(w.lastTimestamp)
	root.Durations.FinalUpdateStats()

	for i := 0; i < w.thread.NumEvents(); i++ {
		s, err := w.thread.EventSummary(uint32(i))
		if err != nil {
			return err
		}
		s.Durations.FinalUpdateStats()
	}

	for i := 1; i < w.thread.NumSequences(); i++ {
		s, err := w.thread.Sequence(uint32(i))
		if err != nil {
			return err
		}
		s.Durations.FinalUpdateStats()
	}

	return nil
}

// FirstTimestamp returns the absolute timestamp this writer's first
// StoreEvent/StoreEventNow call anchored all relative timestamps to. It
// panics if no event has been stored yet.
func (w *Writer) FirstTimestamp() uint64 {
	if !w.haveFirst {
		panic("pallas: FirstTimestamp called before any event was stored")
	}

	return w.firstTimestamp
}
