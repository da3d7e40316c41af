package writer

import (
	"github.com/pallas-trace/pallas/format"
	"github.com/pallas-trace/pallas/token"
)

// runLoopDetector runs once per token append, against the sequence
// currently open at w.curDepth, and stops at the first successful
// factoring.
func (w *Writer) runLoopDetector() {
	algo := w.params.LoopFindingAlgorithm
	if algo == format.LoopFindingNone {
		return
	}

	cur := w.sequenceStack[w.curDepth]
	k := len(cur) - 1
	if k < 0 {
		return
	}

	if algo == format.LoopFindingFilter {
		w.detectLoopFilter(cur, k)
		return
	}

	maxLen := k + 1
	if algo == format.LoopFindingBasicTruncated && int(w.params.MaxLoopLength) < maxLen {
		maxLen = int(w.params.MaxLoopLength)
	}

	for l := 1; l <= maxLen; l++ {
		if w.tryExtendLoop(k, l) || w.tryNewLoop(k, l) {
			return
		}
	}
}

// detectLoopFilter only tries candidate lengths ending at the last token,
// i.e. positions i where cur[i] == cur[k].
func (w *Writer) detectLoopFilter(cur []token.Token, k int) {
	last := cur[k]

	for i := k - 1; i >= 0; i-- {
		if cur[i] != last {
			continue
		}

		l := k - i
		if w.tryExtendLoop(k, l) || w.tryNewLoop(k, l) {
			return
		}
	}
}

// tryExtendLoop extends an existing loop token sitting just before the
// candidate body if its body sequence matches the last l tokens.
func (w *Writer) tryExtendLoop(k, l int) bool {
	cur := w.sequenceStack[w.curDepth]
	if k-l < 0 {
		return false
	}

	candidate := cur[k-l]
	if candidate.Kind() != token.Loop {
		return false
	}

	loop, err := w.thread.Loop(candidate.ID())
	if err != nil {
		return false
	}

	body, err := w.thread.Sequence(loop.RepeatedToken.ID())
	if err != nil {
		return false
	}

	if !tokensEqual(body.Tokens, cur[k-l+1:k+1]) {
		return false
	}

	loop.NbIterations[len(loop.NbIterations)-1]++

	span := cur[k-l+1 : k+1]
	dur, err := w.thread.GetSequenceDuration(span, true)
	if err != nil {
		w.log.Error("pallas: loop extension duration computation failed", "error", err)
		return false
	}

	h := body.Durations.Add(dur)
	if tailIsOpenEvent(span) {
		w.incompleteDurations = append(w.incompleteDurations, durationCell{vec: body.Durations, handle: h})
	}
	body.InvalidateTokenCount()

	w.sequenceStack[w.curDepth] = cur[:k-l+1]

	return true
}

// tryNewLoop detects a fresh back-to-back duplication of length l and
// collapses it into a Loop token: the existing Loop over the same body
// sequence if there is one, otherwise a new Loop.
func (w *Writer) tryNewLoop(k, l int) bool {
	cur := w.sequenceStack[w.curDepth]
	if k+1 < 2*l {
		return false
	}

	first := cur[k-2*l+1 : k-l+1]
	second := cur[k-l+1 : k+1]
	if !tokensEqual(first, second) {
		return false
	}

	bodyTokens := make([]token.Token, l)
	copy(bodyTokens, second)

	seqID := w.thread.GetSequenceIDFromArray(bodyTokens)
	body, err := w.thread.Sequence(seqID)
	if err != nil {
		return false
	}

	// A body that already has a Loop gets this run as a further occurrence
	// of that Loop, keeping the body's durations indexed by NbIterations.
	bodyTok := token.New(token.Sequence, seqID)
	var loop *token.Loop
	for i := 0; i < w.thread.NumLoops(); i++ {
		if existing, err := w.thread.Loop(uint32(i)); err == nil && existing.RepeatedToken == bodyTok {
			loop = existing
			break
		}
	}
	if loop == nil {
		loop = w.thread.NewLoop(bodyTok)
	}

	// first-iteration duration = (both halves together) minus the second
	// half, computed as one backward walk so repeated tokens within the
	// window are indexed consistently; both sides share the same
	// still-provisional tail contribution (the very last Event appended),
	// so it cancels out of the subtraction regardless of ignoreLast.
	combined := cur[k-2*l+1 : k+1]
	combinedDur, errCombined := w.thread.GetSequenceDuration(combined, true)
	secondDur, errSecond := w.thread.GetSequenceDuration(second, true)

	switch {
	case errCombined != nil:
		w.log.Error("pallas: new loop combined duration failed", "error", errCombined)
	case errSecond != nil:
		w.log.Error("pallas: new loop second-iteration duration failed", "error", errSecond)
	default:
		body.Durations.Add(combinedDur - secondDur)
		h := body.Durations.Add(secondDur)
		if tailIsOpenEvent(second) {
			w.incompleteDurations = append(w.incompleteDurations, durationCell{vec: body.Durations, handle: h})
		}
	}

	loop.NbIterations = append(loop.NbIterations, 2)
	body.InvalidateTokenCount()

	replaced := make([]token.Token, 0, k-2*l+2)
	replaced = append(replaced, cur[:k-2*l+1]...)
	replaced = append(replaced, loop.SelfID)
	w.sequenceStack[w.curDepth] = replaced

	return true
}

// tailIsOpenEvent reports whether span's last token is an Event, meaning
// its duration cell is still an unresolved provisional timestamp that the
// writer will back-patch once the next event's delta resolves it. A
// Sequence or Loop tail token, by contrast, already carries its final
// duration value the moment it is appended.
func tailIsOpenEvent(span []token.Token) bool {
	return len(span) > 0 && span[len(span)-1].Kind() == token.Event
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
