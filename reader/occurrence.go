package reader

import (
	"github.com/pallas-trace/pallas/errs"
	"github.com/pallas-trace/pallas/summary"
	"github.com/pallas-trace/pallas/token"
)

// EventOccurrence is one materialised occurrence of an Event, as observed
// at the reader's current position.
type EventOccurrence struct {
	Token      token.Token
	Occurrence uint64
	Timestamp  uint64
	Duration   uint64
	Summary    *summary.EventSummary
}

// GetEventOccurrence materialises the occurrence the reader is currently
// positioned on. The current token must be an Event.
func (r *ThreadReader) GetEventOccurrence() (EventOccurrence, error) {
	tok, err := r.PollCurToken()
	if err != nil {
		return EventOccurrence{}, err
	}
	if tok.Kind() != token.Event {
		return EventOccurrence{}, errs.ErrInvalidTokenKind
	}

	s, err := r.thread.EventSummary(tok.ID())
	if err != nil {
		return EventOccurrence{}, err
	}

	occ := r.tokenCount[tok]

	dur, err := s.Durations.At(int(occ))
	if err != nil {
		return EventOccurrence{}, err
	}

	return EventOccurrence{
		Token:      tok,
		Occurrence: occ,
		Timestamp:  r.referentialTimestamp,
		Duration:   dur,
		Summary:    s,
	}, nil
}

// SequenceOccurrence is one materialised occurrence of a Sequence.
type SequenceOccurrence struct {
	Token      token.Token
	Occurrence uint64
	Timestamp  uint64
	Duration   uint64
	Sequence   *token.Sequence

	// Snapshot is non-nil only when requested: a deep copy of the
	// reader's traversal state at the moment of this occurrence, for
	// callers building a random-access index on top of the sequential
	// reader.
	Snapshot *Snapshot
}

// GetSequenceOccurrence materialises the occurrence the reader is
// currently positioned on. The current token must be a Sequence. If
// withSnapshot is true, the returned value's Snapshot field is populated.
func (r *ThreadReader) GetSequenceOccurrence(withSnapshot bool) (SequenceOccurrence, error) {
	tok, err := r.PollCurToken()
	if err != nil {
		return SequenceOccurrence{}, err
	}
	if tok.Kind() != token.Sequence {
		return SequenceOccurrence{}, errs.ErrInvalidTokenKind
	}

	seq, err := r.thread.Sequence(tok.ID())
	if err != nil {
		return SequenceOccurrence{}, err
	}

	occ := r.tokenCount[tok]

	dur, err := seq.Durations.At(int(occ))
	if err != nil {
		return SequenceOccurrence{}, err
	}

	out := SequenceOccurrence{
		Token:      tok,
		Occurrence: occ,
		Timestamp:  r.referentialTimestamp,
		Duration:   dur,
		Sequence:   seq,
	}

	if withSnapshot {
		snap := r.Snapshot()
		out.Snapshot = &snap
	}

	return out, nil
}

// LoopOccurrence is one materialised occurrence of a Loop.
type LoopOccurrence struct {
	Token      token.Token
	Occurrence uint64
	Timestamp  uint64
	Duration   uint64
	Loop       *token.Loop
}

// GetLoopOccurrence materialises the occurrence the reader is currently
// positioned on. The current token must be a Loop.
func (r *ThreadReader) GetLoopOccurrence() (LoopOccurrence, error) {
	tok, err := r.PollCurToken()
	if err != nil {
		return LoopOccurrence{}, err
	}
	if tok.Kind() != token.Loop {
		return LoopOccurrence{}, errs.ErrInvalidTokenKind
	}

	l, err := r.thread.Loop(tok.ID())
	if err != nil {
		return LoopOccurrence{}, err
	}

	occ := r.tokenCount[tok]

	dur, err := r.tokenDuration(tok, occ)
	if err != nil {
		return LoopOccurrence{}, err
	}

	return LoopOccurrence{
		Token:      tok,
		Occurrence: occ,
		Timestamp:  r.referentialTimestamp,
		Duration:   dur,
		Loop:       l,
	}, nil
}

// GetEventAttributeList returns the attribute-list payload recorded for
// the given occurrence of eventToken, delegating to the owning
// EventSummary's own append-only log. Returns errs.ErrDefinitionNotFound
// if no attributes were ever appended for that occurrence.
func (r *ThreadReader) GetEventAttributeList(eventToken token.Token, occurrenceIndex uint64) ([]byte, error) {
	if eventToken.Kind() != token.Event {
		return nil, errs.ErrInvalidTokenKind
	}

	s, err := r.thread.EventSummary(eventToken.ID())
	if err != nil {
		return nil, err
	}

	return s.AttributesForOccurrence(occurrenceIndex)
}
