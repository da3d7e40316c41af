// Package reader implements ThreadReader, the callstack-based iterator
// that walks a Thread's grammar token-by-token and reconstructs
// per-occurrence timestamps and durations.
package reader

import (
	"log/slog"

	"github.com/pallas-trace/pallas/errs"
	"github.com/pallas-trace/pallas/thread"
	"github.com/pallas-trace/pallas/token"
)

// UnrollFlags controls whether move/poll operations descend into a
// Sequence or Loop's children or treat it as a single opaque step.
type UnrollFlags uint8

const (
	// NoUnroll treats every Sequence and Loop as a single flat step,
	// walking the compressed grammar rather than the original stream.
	NoUnroll UnrollFlags = 0
	// UnrollSequence descends into Sequence tokens.
	UnrollSequence UnrollFlags = 1 << 0
	// UnrollLoop descends into Loop tokens.
	UnrollLoop UnrollFlags = 1 << 1
	// UnrollAll descends into both, walking the fully unrolled original
	// event stream.
	UnrollAll = UnrollSequence | UnrollLoop
)

// frame is one level of the reader's callstack: the iterable (a Sequence
// or Loop token) currently open, and the position within it.
type frame struct {
	iterable token.Token
	index    int
}

// ThreadReader walks one Thread's grammar. The zero value is not usable;
// construct with New.
type ThreadReader struct {
	thread *thread.Thread
	log    *slog.Logger

	callstack    []frame
	currentFrame int // -1 after end of trace.

	// tokenCount tracks, for every distinct Token this reader has crossed,
	// how many times it has occurred so far — the running occurrence
	// index used to look up the matching duration cell. Pallas's
	// occurrence semantics are frame-independent (an Event or Sequence's
	// durations are indexed by a single trace-wide occurrence count
	// regardless of nesting depth), so one flat map on the reader is
	// sufficient and simple to snapshot/restore as a unit.
	tokenCount map[token.Token]uint64

	referentialTimestamp uint64
}

// New creates a ThreadReader positioned at the start of t's root sequence.
// log defaults to slog.Default() if nil.
func New(t *thread.Thread, log *slog.Logger) *ThreadReader {
	if log == nil {
		log = slog.Default()
	}

	r := &ThreadReader{
		thread:       t,
		log:          log,
		tokenCount:   make(map[token.Token]uint64),
		currentFrame: -1,
	}

	root, err := t.Sequence(0)
	if err == nil && len(root.Tokens) > 0 {
		r.callstack = []frame{{iterable: token.New(token.Sequence, 0), index: 0}}
		r.currentFrame = 0
	}

	return r
}

// ReferentialTimestamp returns the reader's reconstructed absolute
// timestamp at the current callstack frame.
func (r *ThreadReader) ReferentialTimestamp() uint64 { return r.referentialTimestamp }

// AtEnd reports whether the reader has stepped past the end of the
// trace.
func (r *ThreadReader) AtEnd() bool { return r.currentFrame < 0 }

// Depth returns the number of open callstack frames (1 at the root,
// growing by one per entered block). Zero only once AtEnd and the root
// sequence itself was empty.
func (r *ThreadReader) Depth() int { return len(r.callstack) }

// PollCurToken returns the token at the reader's current position.
func (r *ThreadReader) PollCurToken() (token.Token, error) {
	if r.currentFrame < 0 {
		return token.Token(0), errs.ErrEndOfTrace
	}

	f := r.callstack[r.currentFrame]

	return r.thread.GetToken(f.iterable, f.index)
}

// PollNextToken peeks at the token that MoveToNextToken(flags) would make
// current, without mutating the reader's state.
func (r *ThreadReader) PollNextToken(flags UnrollFlags) (token.Token, error) {
	if err := validateFlags(flags); err != nil {
		return token.Token(0), err
	}

	tok, err := r.PollCurToken()
	if err != nil {
		return token.Token(0), err
	}

	if r.canEnter(tok, flags) {
		return r.thread.GetToken(tok, 0)
	}

	stack, cur, err := r.advanceWithinOrPop(cloneFrames(r.callstack), r.currentFrame, false)
	if err != nil {
		return token.Token(0), err
	}
	if cur < 0 {
		return token.Token(0), errs.ErrEndOfTrace
	}

	return r.thread.GetToken(stack[cur].iterable, stack[cur].index)
}

// MoveToNextToken advances the reader by one token: it either enters a
// child iterable, advances the current frame's index, or leaves one or
// more exhausted blocks. It returns the token just crossed, the same
// token PollCurToken would have returned before the call.
//
// Entering a block carries no duration of its own: the time accumulates
// from the children as the reader steps through them, so crediting both
// would double-count. Only a token that is fully crossed in one step — an
// Event, or a Sequence/Loop the flags do not unroll — advances
// referentialTimestamp and its own occurrence count.
func (r *ThreadReader) MoveToNextToken(flags UnrollFlags) (token.Token, error) {
	if err := validateFlags(flags); err != nil {
		return token.Token(0), err
	}

	tok, err := r.PollCurToken()
	if err != nil {
		return token.Token(0), err
	}

	if r.canEnter(tok, flags) {
		r.callstack = append(r.callstack, frame{iterable: tok, index: 0})
		r.currentFrame++

		return tok, nil
	}

	if err := r.creditForward(tok); err != nil {
		return token.Token(0), err
	}

	stack, cur, err := r.advanceWithinOrPop(r.callstack, r.currentFrame, true)
	if err != nil {
		return token.Token(0), err
	}

	r.callstack = stack
	r.currentFrame = cur

	return tok, nil
}

// PollPrevToken peeks at the token that MoveToPrevToken(flags) would make
// current, without mutating the reader's state.
func (r *ThreadReader) PollPrevToken(flags UnrollFlags) (token.Token, error) {
	if err := validateFlags(flags); err != nil {
		return token.Token(0), err
	}

	if r.currentFrame < 0 {
		stack, cur, err := r.resumeFromEnd(cloneFrames(r.callstack), flags, false)
		if err != nil {
			return token.Token(0), err
		}

		return r.thread.GetToken(stack[cur].iterable, stack[cur].index)
	}

	if r.callstack[r.currentFrame].index == 0 {
		if r.currentFrame == 0 {
			return token.Token(0), errs.ErrEndOfTrace
		}

		parent := r.callstack[r.currentFrame-1]

		return r.thread.GetToken(parent.iterable, parent.index)
	}

	stack, cur, err := r.descendToPrevConcrete(cloneFrames(r.callstack), r.currentFrame, flags, false)
	if err != nil {
		return token.Token(0), err
	}

	return r.thread.GetToken(stack[cur].iterable, stack[cur].index)
}

// MoveToPrevToken steps the reader backward by exactly one token,
// symmetric to MoveToNextToken: it restores tokenCount (decrementing)
// and subtracts the landed token's duration from referentialTimestamp,
// undoing precisely what the corresponding forward step applied.
func (r *ThreadReader) MoveToPrevToken(flags UnrollFlags) (token.Token, error) {
	if err := validateFlags(flags); err != nil {
		return token.Token(0), err
	}

	if r.currentFrame < 0 {
		stack, cur, err := r.resumeFromEnd(r.callstack, flags, true)
		if err != nil {
			return token.Token(0), err
		}

		return r.landBackward(stack, cur)
	}

	if r.callstack[r.currentFrame].index == 0 {
		if r.currentFrame == 0 {
			return token.Token(0), errs.ErrEndOfTrace
		}

		r.callstack = r.callstack[:r.currentFrame]
		r.currentFrame--

		f := r.callstack[r.currentFrame]

		return r.thread.GetToken(f.iterable, f.index)
	}

	stack, cur, err := r.descendToPrevConcrete(r.callstack, r.currentFrame, flags, true)
	if err != nil {
		return token.Token(0), err
	}

	return r.landBackward(stack, cur)
}

// landBackward installs stack/cur as the reader's new position and
// credits (subtracts) the duration of the token landed on.
func (r *ThreadReader) landBackward(stack []frame, cur int) (token.Token, error) {
	r.callstack = stack
	r.currentFrame = cur

	landed, err := r.thread.GetToken(stack[cur].iterable, stack[cur].index)
	if err != nil {
		return token.Token(0), err
	}

	if err := r.creditBackward(landed); err != nil {
		return token.Token(0), err
	}

	return landed, nil
}

// EnterBlock explicitly pushes a frame for the current token, which must
// be a Sequence or Loop, regardless of unroll flags.
func (r *ThreadReader) EnterBlock() error {
	tok, err := r.PollCurToken()
	if err != nil {
		return err
	}

	if tok.Kind() != token.Sequence && tok.Kind() != token.Loop {
		return errs.ErrInvalidTokenKind
	}

	r.callstack = append(r.callstack, frame{iterable: tok, index: 0})
	r.currentFrame++

	return nil
}

// LeaveBlock explicitly pops the innermost open frame. It carries no
// duration of its own (the structural counterpart to EnterBlock), but it
// does complete this occurrence of the popped frame's iterable, just
// like the implicit pop inside MoveToNextToken.
func (r *ThreadReader) LeaveBlock() error {
	if r.currentFrame <= 0 {
		return errs.ErrCallstackUnderflow
	}

	popped := r.callstack[r.currentFrame]
	r.callstack = r.callstack[:r.currentFrame]
	r.currentFrame--
	r.tokenCount[popped.iterable]++

	return nil
}

// advanceWithinOrPop increments the index of the frame at cur, popping
// exhausted frames until it finds one with room or falls off the root.
// No duration credit happens here: whatever time elapsed inside a popped
// block was already accounted for token by token as the reader visited
// its children. Popping a frame does complete that occurrence of its
// iterable though, so when mutate is true its occurrence count advances
// — otherwise a later re-entry of the same Loop token would keep reading
// the same NbIterations slot instead of the next one.
func (r *ThreadReader) advanceWithinOrPop(stack []frame, cur int, mutate bool) ([]frame, int, error) {
	for {
		length, err := r.blockLen(stack[cur].iterable)
		if err != nil {
			return stack, cur, err
		}

		if stack[cur].index+1 < length {
			stack[cur].index++

			return stack, cur, nil
		}

		if mutate {
			r.tokenCount[stack[cur].iterable]++
		}

		if cur == 0 {
			return stack, -1, nil
		}

		stack = stack[:cur]
		cur--
	}
}

// descendToPrevConcrete moves one token backward from stack[cur], landing
// on the single concrete token (Event, or Sequence/Loop not unrolled)
// immediately preceding it, descending into however many trailing blocks
// close over on the way — the exact mirror of advanceWithinOrPop's
// popping, since a forward step credits only one concrete token no matter
// how many blocks it leaves.
func (r *ThreadReader) descendToPrevConcrete(stack []frame, cur int, flags UnrollFlags, mutate bool) ([]frame, int, error) {
	candidateIndex := stack[cur].index - 1

	candidate, err := r.thread.GetToken(stack[cur].iterable, candidateIndex)
	if err != nil {
		return stack, cur, err
	}
	stack[cur].index = candidateIndex

	return r.enterLadder(stack, cur, candidate, flags, mutate)
}

// resumeFromEnd reconstructs the position MoveToPrevToken lands on when
// called right after the reader ran off the end of the trace: the root
// frame's index still holds the trace's last top-level slot (it is never
// incremented past length-1 on the forward step that reaches the end), so
// resuming just re-descends from there.
func (r *ThreadReader) resumeFromEnd(stack []frame, flags UnrollFlags, mutate bool) ([]frame, int, error) {
	if len(stack) == 0 {
		return stack, -1, errs.ErrEndOfTrace
	}

	candidate, err := r.thread.GetToken(stack[0].iterable, stack[0].index)
	if err != nil {
		return stack, -1, err
	}

	return r.enterLadder(stack, 0, candidate, flags, mutate)
}

// enterLadder repeatedly descends into candidate (and then its own last
// child, and so on) for as long as flags allow unrolling it, pushing one
// frame per level and stopping at the first concrete token. Each level
// re-enters an occurrence that a prior forward step already completed
// (advanceWithinOrPop incremented its occurrence count on the way out),
// so the occurrence re-entered here is always the most recently
// completed one — tokenCount[candidate]-1 — and mutate rewinds that
// count back down to it, the exact mirror of the increment.
func (r *ThreadReader) enterLadder(stack []frame, cur int, candidate token.Token, flags UnrollFlags, mutate bool) ([]frame, int, error) {
	for r.canEnter(candidate, flags) {
		count := r.tokenCount[candidate]
		if count == 0 {
			return stack, cur, errs.ErrCallstackUnderflow
		}
		occ := count - 1

		length, err := r.lengthForOccurrence(candidate, occ)
		if err != nil {
			return stack, cur, err
		}

		if mutate {
			r.tokenCount[candidate] = occ
		}

		stack = append(stack[:cur+1:cur+1], frame{iterable: candidate, index: length - 1})
		cur++

		next, err := r.thread.GetToken(candidate, length-1)
		if err != nil {
			return stack, cur, err
		}
		candidate = next
	}

	return stack, cur, nil
}

// creditForward adds tok's duration at its current occurrence count to
// referentialTimestamp and advances that count.
func (r *ThreadReader) creditForward(tok token.Token) error {
	occ := r.tokenCount[tok]

	dur, err := r.tokenDuration(tok, occ)
	if err != nil {
		return err
	}

	r.referentialTimestamp += dur
	r.tokenCount[tok] = occ + 1

	return nil
}

// creditBackward undoes creditForward for tok: it rewinds the occurrence
// count by one and subtracts the duration at that (now current) count.
func (r *ThreadReader) creditBackward(tok token.Token) error {
	occ, ok := r.tokenCount[tok]
	if !ok || occ == 0 {
		return errs.ErrCallstackUnderflow
	}
	occ--

	dur, err := r.tokenDuration(tok, occ)
	if err != nil {
		return err
	}

	r.referentialTimestamp -= dur
	r.tokenCount[tok] = occ

	return nil
}

// tokenDuration resolves the duration contribution of one full occurrence
// of tok: for Event/Sequence, the duration cell at that occurrence index;
// for Loop, the sum over its body sequence's durations for every
// iteration of that occurrence (the reader-side twin of
// thread.Thread.GetSequenceDuration's Loop branch).
func (r *ThreadReader) tokenDuration(tok token.Token, occurrence uint64) (uint64, error) {
	switch tok.Kind() {
	case token.Event:
		s, err := r.thread.EventSummary(tok.ID())
		if err != nil {
			return 0, err
		}

		return s.Durations.At(int(occurrence))

	case token.Sequence:
		seq, err := r.thread.Sequence(tok.ID())
		if err != nil {
			return 0, err
		}

		return seq.Durations.At(int(occurrence))

	case token.Loop:
		l, err := r.thread.Loop(tok.ID())
		if err != nil {
			return 0, err
		}
		if int(occurrence) >= len(l.NbIterations) {
			return 0, errs.ErrSequenceIndexOutOfRange
		}

		body, err := r.thread.Sequence(l.RepeatedToken.ID())
		if err != nil {
			return 0, err
		}

		offset := 0
		for i := 0; i < int(occurrence); i++ {
			offset += int(l.NbIterations[i])
		}

		var sum uint64
		for k := 0; k < int(l.NbIterations[occurrence]); k++ {
			v, err := body.Durations.At(offset + k)
			if err != nil {
				return 0, err
			}
			sum += v
		}

		return sum, nil

	default:
		return 0, errs.ErrInvalidTokenKind
	}
}

// canEnter reports whether flags allow descending into tok.
func (r *ThreadReader) canEnter(tok token.Token, flags UnrollFlags) bool {
	switch tok.Kind() {
	case token.Sequence:
		return flags&UnrollSequence != 0
	case token.Loop:
		return flags&UnrollLoop != 0
	default:
		return false
	}
}

// blockLen returns the number of child slots in iterable for the
// occurrence currently open: a Sequence's body is the same length every
// occurrence, but a Loop's is the repeat count of this specific
// occurrence (NbIterations[occurrence]), not the number of occurrences
// the Loop token itself has. The occurrence in progress is whatever
// tokenCount[iterable] currently holds, since that only advances once
// the occurrence is complete (see advanceWithinOrPop).
func (r *ThreadReader) blockLen(iterable token.Token) (int, error) {
	return r.lengthForOccurrence(iterable, r.tokenCount[iterable])
}

// lengthForOccurrence returns the child-slot count of iterable's given
// occurrence: a Sequence's fixed token count, or a Loop's iteration
// count for that one occurrence.
func (r *ThreadReader) lengthForOccurrence(iterable token.Token, occurrence uint64) (int, error) {
	switch iterable.Kind() {
	case token.Sequence:
		seq, err := r.thread.Sequence(iterable.ID())
		if err != nil {
			return 0, err
		}

		return len(seq.Tokens), nil

	case token.Loop:
		l, err := r.thread.Loop(iterable.ID())
		if err != nil {
			return 0, err
		}
		if int(occurrence) >= len(l.NbIterations) {
			return 0, errs.ErrSequenceIndexOutOfRange
		}

		return int(l.NbIterations[occurrence]), nil

	default:
		return 0, errs.ErrInvalidTokenKind
	}
}

func validateFlags(flags UnrollFlags) error {
	if flags&^UnrollAll != 0 {
		return errs.ErrInvalidUnrollFlags
	}

	return nil
}

func cloneFrames(stack []frame) []frame {
	clone := make([]frame, len(stack))
	copy(clone, stack)

	return clone
}
