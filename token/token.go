// Package token defines Pallas's grammar primitives: the tagged Token
// referent and the three structures it can point to — Event, Sequence,
// and Loop.
//
// A Token never owns data. It is a 32-bit (kind, id) pair that indexes
// into one of a Thread's three arrays; Sequence and Loop values living
// in this package hold their own data but are otherwise inert, so that
// package thread can own dedup and package writer can own construction
// without either depending on a wider object graph.
package token

import (
	"fmt"

	"github.com/pallas-trace/pallas/errs"
	"github.com/pallas-trace/pallas/lvec"
)

// Kind identifies what a Token refers to.
type Kind uint8

const (
	// Invalid marks the zero Token; no Thread array is indexed.
	Invalid Kind = iota
	// Event marks a Token that indexes a Thread's events array (by way
	// of an EventSummary's id, see package summary).
	Event
	// Sequence marks a Token that indexes a Thread's sequences array.
	Sequence
	// Loop marks a Token that indexes a Thread's loops array.
	Loop
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "Invalid"
	case Event:
		return "Event"
	case Sequence:
		return "Sequence"
	case Loop:
		return "Loop"
	default:
		return "Unknown"
	}
}

// kindShift and idMask implement the 2-bit kind / 30-bit id packing.
const (
	kindShift = 30
	idMask    = 1<<kindShift - 1
)

// Token is a 32-bit (kind, id) pair. Ids are per-kind and per-Thread,
// dense starting from 0, and never reused. Token equality is structural: two Tokens are equal iff their kind and
// id both match, which is exactly Go's == on the underlying uint32.
type Token uint32

// New packs kind and id into a Token. Panics if id does not fit in 30
// bits or kind is out of range; both are programmer errors, never data
// from an untrusted source.
func New(kind Kind, id uint32) Token {
	if kind > Loop {
		panic(fmt.Sprintf("token: %v: %v", errs.ErrInvalidTokenKind, kind))
	}
	if id > idMask {
		panic(fmt.Sprintf("token: id %d exceeds 30 bits", id))
	}

	return Token(uint32(kind)<<kindShift | id)
}

// Kind returns the token's kind.
func (t Token) Kind() Kind { return Kind(uint32(t) >> kindShift) }

// ID returns the token's 30-bit id.
func (t Token) ID() uint32 { return uint32(t) & idMask }

// IsValid reports whether the token is anything other than the zero
// Invalid token.
func (t Token) IsValid() bool { return t.Kind() != Invalid }

func (t Token) String() string {
	if !t.IsValid() {
		return "Invalid"
	}

	return fmt.Sprintf("%s(%d)", t.Kind(), t.ID())
}

// MaxEventPayload is the largest payload an Event can carry; event_size
// (a u8) must leave the record/size header out of the 256-byte budget.
const MaxEventPayload = 253

// Event is the opaque, self-describing byte template a recorder emits.
// Two Events are considered the same EventSummary iff their full
// EventSize bytes of Payload compare equal byte-for-byte.
type Event struct {
	Record    uint16
	EventSize uint8
	Payload   []byte
}

// Validate checks Event's size invariant.
func (e Event) Validate() error {
	if int(e.EventSize) > len(e.Payload) || e.EventSize > MaxEventPayload {
		return errs.ErrEventSizeOutOfRange
	}

	return nil
}

// Bytes returns the exact dedup key: the first EventSize bytes of
// Payload.
func (e Event) Bytes() []byte { return e.Payload[:e.EventSize] }

// Sequence is a factored-out token substring, or equivalently a matched
// enter/leave scope once one has been collapsed into the grammar.
type Sequence struct {
	ID   uint32
	Hash uint32 // 32-bit hash of Tokens, see package internal/hash.

	Tokens    []Token
	Durations *lvec.LinkedDurationVector

	// tokenCount lazily caches, for the fully unrolled sequence, how many
	// times each distinct Token appears. Built on first call to
	// TokenCount.
	tokenCount map[Token]int
}

// NewSequence creates a writer-owned Sequence from its deduped id, hash
// and token vector.
func NewSequence(id, hash uint32, tokens []Token) *Sequence {
	return &Sequence{
		ID:        id,
		Hash:      hash,
		Tokens:    tokens,
		Durations: lvec.NewDurationVector(0),
	}
}

// TokenAt returns the i-th token in the sequence. Out-of-range is a
// fatal-bug-class error.
func (s *Sequence) TokenAt(i int) (Token, error) {
	if i < 0 || i >= len(s.Tokens) {
		return Invalid.token(), errs.ErrTokenIndexOutOfRange
	}

	return s.Tokens[i], nil
}

// TokenCount returns, building and caching it on first call, how many
// times each distinct Token appears when this Sequence is fully unrolled
// one level (i.e. counting each occurrence of a child token once; it does
// not recurse into child Sequences/Loops).
func (s *Sequence) TokenCount() map[Token]int {
	if s.tokenCount != nil {
		return s.tokenCount
	}

	counts := make(map[Token]int, len(s.Tokens))
	for _, t := range s.Tokens {
		counts[t]++
	}
	s.tokenCount = counts

	return counts
}

// InvalidateTokenCount discards the cached token-count map, forcing the
// next TokenCount call to rebuild it. Thread.LoadSequence and the writer
// call it after replacing or extending a Sequence's Tokens.
func (s *Sequence) InvalidateTokenCount() { s.tokenCount = nil }

// Loop is a run-length encoding of adjacent repetitions of a single
// Sequence (the loop "body").
type Loop struct {
	SelfID        Token // always Kind() == Loop
	RepeatedToken Token // always Kind() == Sequence

	// NbIterations holds one element per occurrence of the loop in its
	// parent's token stream; the value is how many body repetitions that
	// occurrence contains.
	NbIterations []uint32
}

// NewLoop creates a Loop over the given body sequence token.
func NewLoop(selfID, repeatedToken Token) *Loop {
	return &Loop{SelfID: selfID, RepeatedToken: repeatedToken}
}

// token is a tiny helper so Kind values can build an Invalid Token
// without importing this package's own New (which validates id bounds
// that don't apply to the always-zero Invalid token).
func (k Kind) token() Token { return Token(uint32(k) << kindShift) }
