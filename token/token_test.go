package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenPacking(t *testing.T) {
	tok := New(Sequence, 12345)
	require.Equal(t, Sequence, tok.Kind())
	require.Equal(t, uint32(12345), tok.ID())
	require.True(t, tok.IsValid())
}

func TestTokenInvalidZeroValue(t *testing.T) {
	var tok Token
	require.False(t, tok.IsValid())
	require.Equal(t, Invalid, tok.Kind())
}

func TestTokenEqualityIsStructural(t *testing.T) {
	a := New(Event, 7)
	b := New(Event, 7)
	c := New(Event, 8)
	d := New(Loop, 7)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.NotEqual(t, a, d)
}

func TestTokenNewPanicsOnOversizedID(t *testing.T) {
	require.Panics(t, func() { New(Event, 1<<30) })
}

func TestTokenNewPanicsOnInvalidKind(t *testing.T) {
	require.Panics(t, func() { New(Kind(99), 1) })
}

func TestEventValidate(t *testing.T) {
	e := Event{Record: 1, EventSize: 4, Payload: []byte{1, 2, 3, 4}}
	require.NoError(t, e.Validate())
	require.Equal(t, []byte{1, 2, 3, 4}, e.Bytes())

	bad := Event{Record: 1, EventSize: 10, Payload: []byte{1, 2}}
	require.Error(t, bad.Validate())
}

func TestSequenceTokenAt(t *testing.T) {
	s := NewSequence(1, 0xCAFE, []Token{New(Event, 0), New(Event, 1)})

	tok, err := s.TokenAt(1)
	require.NoError(t, err)
	require.Equal(t, New(Event, 1), tok)

	_, err = s.TokenAt(5)
	require.Error(t, err)
}

func TestSequenceTokenCount(t *testing.T) {
	tokens := []Token{New(Event, 0), New(Event, 1), New(Event, 0)}
	s := NewSequence(1, 0, tokens)

	counts := s.TokenCount()
	require.Equal(t, 2, counts[New(Event, 0)])
	require.Equal(t, 1, counts[New(Event, 1)])

	// cached: mutating Tokens after the fact doesn't change it until
	// explicitly invalidated.
	s.Tokens = append(s.Tokens, New(Event, 1))
	require.Equal(t, 1, s.TokenCount()[New(Event, 1)])

	s.InvalidateTokenCount()
	require.Equal(t, 2, s.TokenCount()[New(Event, 1)])
}

func TestLoopNbIterations(t *testing.T) {
	l := NewLoop(New(Loop, 0), New(Sequence, 3))
	l.NbIterations = append(l.NbIterations, 2, 3)

	require.Equal(t, New(Sequence, 3), l.RepeatedToken)
	require.Equal(t, []uint32{2, 3}, l.NbIterations)
}
