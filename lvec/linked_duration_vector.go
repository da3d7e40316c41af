package lvec

// LinkedDurationVector is a LinkedVector specialized for event/sequence
// durations. Its running min/max/sum are updated one element behind the
// most recent Add: the last-pushed value is always provisional, since the
// writer records a raw timestamp first and only learns the true duration
// once the matching "leave" event arrives and back-patches this cell
// in place. Folding a still-provisional value into
// the statistics would record a stale or bogus number, so Add always
// statistics the *previous* last element instead of the one it just
// pushed.
type LinkedDurationVector struct {
	vec *LinkedVector

	min        uint64
	max        uint64
	sum        uint64
	statsCount int
}

// NewDurationVector creates an empty, writer-owned LinkedDurationVector.
func NewDurationVector(chunkSize int) *LinkedDurationVector {
	return &LinkedDurationVector{vec: New(chunkSize)}
}

// NewDurationVectorFromHeader creates a reader-owned LinkedDurationVector
// whose payload is decoded lazily, seeding its statistics from the header
// fields written at close (min, max, mean over n-1 or n elements depending
// on whether FinalUpdateStats ran before the vector was persisted).
func NewDurationVectorFromHeader(size int, chunkSize int, min, max uint64, mean float64, loader Loader) *LinkedDurationVector {
	dv := &LinkedDurationVector{vec: NewFromHeader(size, chunkSize, loader)}
	dv.min = min
	dv.max = max
	if size > 0 {
		dv.statsCount = size
		dv.sum = uint64(mean * float64(size))
	}

	return dv
}

// Size returns the number of durations stored, including the still
// provisional last element.
func (dv *LinkedDurationVector) Size() int { return dv.vec.Size() }

// Add appends val as the new provisional last element, folding the
// previously-provisional element into the running statistics first.
func (dv *LinkedDurationVector) Add(val uint64) Handle {
	if dv.vec.Size() > 0 {
		prev, _ := dv.vec.Back()
		dv.foldStats(prev)
	}

	return dv.vec.Add(val)
}

func (dv *LinkedDurationVector) foldStats(val uint64) {
	if dv.statsCount == 0 {
		dv.min = val
		dv.max = val
	} else {
		dv.min = min(dv.min, val)
		dv.max = max(dv.max, val)
	}
	dv.sum += val
	dv.statsCount++
}

// FinalUpdateStats folds the current last element into the running
// statistics. Called once by the writer at thread close, after which no
// further Add calls are expected.
func (dv *LinkedDurationVector) FinalUpdateStats() {
	if dv.vec.Size() == 0 {
		return
	}

	last, _ := dv.vec.Back()
	dv.foldStats(last)
}

// At returns the duration at pos.
func (dv *LinkedDurationVector) At(pos int) (uint64, error) { return dv.vec.At(pos) }

// Front returns the first duration.
func (dv *LinkedDurationVector) Front() (uint64, error) { return dv.vec.Front() }

// Back returns the last (possibly still provisional) duration.
func (dv *LinkedDurationVector) Back() (uint64, error) { return dv.vec.Back() }

// LastHandle addresses the most recently added, still-provisional cell.
func (dv *LinkedDurationVector) LastHandle() Handle { return dv.vec.LastHandle() }

// Set overwrites the element addressed by h. Used to back-patch the raw
// timestamp initially stored in the last cell with the resolved duration.
func (dv *LinkedDurationVector) Set(h Handle, val uint64) { dv.vec.Set(h, val) }

// AddTo adds delta to the element addressed by h. Used to back-patch the
// durations of sequences/loops still open on the callstack when an inner
// event's duration resolves.
func (dv *LinkedDurationVector) AddTo(h Handle, delta uint64) { dv.vec.AddTo(h, delta) }

// Min returns the minimum duration folded into the statistics so far.
func (dv *LinkedDurationVector) Min() uint64 { return dv.min }

// Max returns the maximum duration folded into the statistics so far.
func (dv *LinkedDurationVector) Max() uint64 { return dv.max }

// Mean returns the arithmetic mean of every duration folded into the
// statistics so far. Returns 0 if none have been folded yet.
func (dv *LinkedDurationVector) Mean() float64 {
	if dv.statsCount == 0 {
		return 0
	}

	return float64(dv.sum) / float64(dv.statsCount)
}

// Materialize decodes (if necessary) and returns every duration.
func (dv *LinkedDurationVector) Materialize() ([]uint64, error) { return dv.vec.Materialize() }

// All iterates over every duration in insertion order.
func (dv *LinkedDurationVector) All() func(func(uint64) bool) { return dv.vec.All() }
