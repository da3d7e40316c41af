package reader

import (
	"github.com/pallas-trace/pallas/errs"
	"github.com/pallas-trace/pallas/token"
)

// Snapshot is a deep copy of a ThreadReader's traversal state, letting a
// caller checkpoint a position and return to it later. The zero value is
// not a valid snapshot; it only ever comes from ThreadReader.Snapshot.
type Snapshot struct {
	callstack            []frame
	currentFrame         int
	tokenCount           map[token.Token]uint64
	referentialTimestamp uint64
	taken                bool
}

// Snapshot captures the reader's current traversal state so it can be
// restored later, or handed off as the seed for an independently
// advancing second reader.
func (r *ThreadReader) Snapshot() Snapshot {
	counts := make(map[token.Token]uint64, len(r.tokenCount))
	for k, v := range r.tokenCount {
		counts[k] = v
	}

	return Snapshot{
		callstack:            cloneFrames(r.callstack),
		currentFrame:         r.currentFrame,
		tokenCount:           counts,
		referentialTimestamp: r.referentialTimestamp,
		taken:                true,
	}
}

// Restore resets the reader to a previously captured Snapshot, returning
// errs.ErrNoSnapshot if snap was never populated by Snapshot.
func (r *ThreadReader) Restore(snap Snapshot) error {
	if !snap.taken {
		return errs.ErrNoSnapshot
	}

	r.callstack = cloneFrames(snap.callstack)
	r.currentFrame = snap.currentFrame

	r.tokenCount = make(map[token.Token]uint64, len(snap.tokenCount))
	for k, v := range snap.tokenCount {
		r.tokenCount[k] = v
	}

	r.referentialTimestamp = snap.referentialTimestamp

	return nil
}
