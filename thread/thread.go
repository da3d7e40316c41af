// Package thread implements Thread, the per-thread grammar container that
// owns every EventSummary, Sequence, and Loop a ThreadWriter has produced,
// and the structural queries (dedup, token lookup) built on top of them.
package thread

import (
	"log/slog"

	"github.com/pallas-trace/pallas/errs"
	"github.com/pallas-trace/pallas/internal/hash"
	"github.com/pallas-trace/pallas/summary"
	"github.com/pallas-trace/pallas/token"
)

// ID identifies a Thread within its owning Archive.
type ID uint32

// Thread owns the three grammar arrays for one trace thread: events,
// sequences, and loops. Sequence #0 is reserved as the thread's root
// sequence, the whole trace unrolled one level.
type Thread struct {
	ID ID

	events    []*summary.EventSummary
	sequences []*token.Sequence
	loops     []*token.Loop

	log *slog.Logger
}

// New creates a Thread with its root sequence (id 0) pre-allocated.
func New(id ID, log *slog.Logger) *Thread {
	if log == nil {
		log = slog.Default()
	}

	t := &Thread{ID: id, log: log}
	t.sequences = append(t.sequences, token.NewSequence(0, 0, nil))

	return t
}

// RootSequence returns the thread's reserved sequence #0.
func (t *Thread) RootSequence() *token.Sequence { return t.sequences[0] }

// GetEventID performs a byte-wise linear dedup search for e. On a miss it
// appends a new EventSummary and returns its id.
func (t *Thread) GetEventID(e token.Event) uint32 {
	key := e.Bytes()
	for _, existing := range t.events {
		if len(existing.Event.Bytes()) == len(key) && bytesEqual(existing.Event.Bytes(), key) {
			return existing.ID
		}
	}

	id := uint32(len(t.events))
	t.events = append(t.events, summary.New(id, e))

	return id
}

// EventSummary returns the EventSummary for a given id.
func (t *Thread) EventSummary(id uint32) (*summary.EventSummary, error) {
	if int(id) >= len(t.events) {
		return nil, errs.ErrUnknownEventID
	}

	return t.events[id], nil
}

// GetSequenceIDFromArray performs a hash-based dedup search for tokens.
// Hash collisions (same hash, different tokens) are logged and treated as
// non-matches.
func (t *Thread) GetSequenceIDFromArray(tokens []token.Token) uint32 {
	raw := make([]uint32, len(tokens))
	for i, tok := range tokens {
		raw[i] = uint32(tok)
	}
	h := hash.Tokens(raw)

	for _, existing := range t.sequences {
		if existing.Hash != h {
			continue
		}
		if tokensEqual(existing.Tokens, tokens) {
			return existing.ID
		}

		t.log.Warn("pallas: sequence hash collision", "hash", h, "thread", t.ID)
	}

	id := uint32(len(t.sequences))
	seq := token.NewSequence(id, h, tokens)
	t.sequences = append(t.sequences, seq)

	return id
}

// LoadEvent appends e as the next EventSummary in id order, bypassing the
// dedup search GetEventID performs. Used by the storage engine when
// reopening a trace, where the on-disk records are already deduped and
// must land back at their original ids.
func (t *Thread) LoadEvent(e token.Event) *summary.EventSummary {
	id := uint32(len(t.events))
	s := summary.New(id, e)
	t.events = append(t.events, s)

	return s
}

// LoadSequence installs tokens/hash at id, reusing the pre-allocated root
// sequence (id 0) in place rather than appending a duplicate, and
// appending a new Sequence for every id after it. Used by the storage
// engine when reopening a trace.
func (t *Thread) LoadSequence(id, hash uint32, tokens []token.Token) *token.Sequence {
	if int(id) < len(t.sequences) {
		seq := t.sequences[id]
		seq.Hash = hash
		seq.Tokens = tokens
		seq.InvalidateTokenCount()

		return seq
	}

	seq := token.NewSequence(id, hash, tokens)
	t.sequences = append(t.sequences, seq)

	return seq
}

// Sequence returns the Sequence for a given id.
func (t *Thread) Sequence(id uint32) (*token.Sequence, error) {
	if int(id) >= len(t.sequences) {
		return nil, errs.ErrUnknownSequenceID
	}

	return t.sequences[id], nil
}

// NumEvents, NumSequences and NumLoops let a writer or storage engine
// iterate every grammar entity the thread owns without exposing the
// backing slices themselves.
func (t *Thread) NumEvents() int    { return len(t.events) }
func (t *Thread) NumSequences() int { return len(t.sequences) }
func (t *Thread) NumLoops() int     { return len(t.loops) }

// NewLoop creates and registers a new Loop with the given repeated body
// token, returning its Token.
func (t *Thread) NewLoop(repeatedToken token.Token) *token.Loop {
	id := uint32(len(t.loops))
	selfID := token.New(token.Loop, id)
	l := token.NewLoop(selfID, repeatedToken)
	t.loops = append(t.loops, l)

	return l
}

// Loop returns the Loop for a given id.
func (t *Thread) Loop(id uint32) (*token.Loop, error) {
	if int(id) >= len(t.loops) {
		return nil, errs.ErrUnknownLoopID
	}

	return t.loops[id], nil
}

// GetToken resolves the structural query get_token(iterable, i): for a
// Sequence it returns tokens[i]; for a Loop it returns the repeated body
// token regardless of i, since a loop's body is a single sub-sequence per
// iteration.
func (t *Thread) GetToken(iterable token.Token, i int) (token.Token, error) {
	switch iterable.Kind() {
	case token.Sequence:
		seq, err := t.Sequence(iterable.ID())
		if err != nil {
			return token.Token(0), err
		}
		return seq.TokenAt(i)
	case token.Loop:
		l, err := t.Loop(iterable.ID())
		if err != nil {
			return token.Token(0), err
		}
		return l.RepeatedToken, nil
	default:
		return token.Token(0), errs.ErrInvalidTokenKind
	}
}

// GetSequenceDuration walks tokens backwards, keeping a local per-token
// occurrence count, and sums each token's already-recorded duration
// contribution. The very last element of tokens may be an Event whose
// duration cell still holds a raw, not-yet-resolved timestamp (the writer
// hasn't seen the next event yet); when ignoreLast is true that one
// contribution is treated as zero instead of read, and the caller is
// expected to register the resulting sum as an incomplete duration so the
// real delta is added in once it resolves.
func (t *Thread) GetSequenceDuration(tokens []token.Token, ignoreLast bool) (uint64, error) {
	n := len(tokens)
	counts := make(map[token.Token]int, n)
	var sum uint64

	for i := n - 1; i >= 0; i-- {
		tok := tokens[i]
		counts[tok]++
		count := counts[tok]
		skip := ignoreLast && i == n-1 && tok.Kind() == token.Event

		switch tok.Kind() {
		case token.Event:
			if skip {
				continue
			}

			summary, err := t.EventSummary(tok.ID())
			if err != nil {
				return 0, err
			}

			v, err := summary.Durations.At(int(summary.NbOccurrences) - count)
			if err != nil {
				return 0, err
			}
			sum += v

		case token.Sequence:
			seq, err := t.Sequence(tok.ID())
			if err != nil {
				return 0, err
			}

			v, err := seq.Durations.At(seq.Durations.Size() - count)
			if err != nil {
				return 0, err
			}
			sum += v

		case token.Loop:
			l, err := t.Loop(tok.ID())
			if err != nil {
				return 0, err
			}

			idx := len(l.NbIterations) - count
			if idx < 0 || idx >= len(l.NbIterations) {
				return 0, errs.ErrSequenceIndexOutOfRange
			}
			iterations := l.NbIterations[idx]

			body, err := t.Sequence(l.RepeatedToken.ID())
			if err != nil {
				return 0, err
			}

			size := body.Durations.Size()
			for k := 0; k < int(iterations); k++ {
				v, err := body.Durations.At(size - 1 - k)
				if err != nil {
					return 0, err
				}
				sum += v
			}

		default:
			return 0, errs.ErrInvalidTokenKind
		}
	}

	return sum, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func tokensEqual(a, b []token.Token) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
