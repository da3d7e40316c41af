// Package lvec implements the append-only numeric vectors Pallas uses for
// per-occurrence timestamps, durations, and iteration counts.
//
// A LinkedVector never reallocates an existing chunk: it grows by
// appending new fixed-size chunks, giving amortized O(1) Add and
// O(n/chunkSize) random access. This matches the access pattern of a
// trace thread, which appends millions of durations but reads them back
// almost exclusively through sequential replay (see package reader) or a
// handful of random probes (see package writer's back-patching).
package lvec

import (
	"iter"

	"github.com/pallas-trace/pallas/errs"
	"github.com/pallas-trace/pallas/internal/pool"
)

// DefaultChunkSize is the number of elements held by each chunk.
const DefaultChunkSize = 1000

// Loader lazily supplies the decoded payload for a vector that was parsed
// from a header but not yet materialized: only the header is read up
// front, the payload offset is remembered, and the payload is decoded
// lazily on first access. Implementations are expected to retry once on a
// transient I/O error (missing file handle, closed file) before giving up.
type Loader func() ([]uint64, error)

// Handle addresses a single element for later in-place mutation, without
// exposing a raw pointer across the package boundary. It stays valid for
// the lifetime of the vector it was obtained from.
type Handle struct {
	chunk  int
	offset int
}

// LinkedVector is a growable sequence of uint64, organized as a sequence
// of fixed-size chunks so existing data is never copied on growth.
type LinkedVector struct {
	chunks    [][]uint64
	size      int
	chunkSize int

	loader Loader
	loaded bool
}

// New creates an empty, writer-owned LinkedVector with the given chunk
// size (DefaultChunkSize if size <= 0).
func New(chunkSize int) *LinkedVector {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &LinkedVector{chunkSize: chunkSize}
}

// NewFromHeader creates a reader-owned LinkedVector of the given size
// whose payload is decoded lazily via loader the first time it is needed.
// A nil loader is valid for size 0 or 1, where the value (if any) lives
// entirely in the header (see Header).
func NewFromHeader(size int, chunkSize int, loader Loader) *LinkedVector {
	v := New(chunkSize)
	v.size = size
	v.loader = loader
	// size 0 or 1 have nothing to lazily load; mark loaded so ensureLoaded
	// doesn't invoke a possibly-nil loader.
	if loader == nil {
		v.loaded = true
	}

	return v
}

// Size returns the number of elements in the vector.
func (v *LinkedVector) Size() int { return v.size }

// ensureLoaded materializes the vector's chunks from its Loader the first
// time any read touches it.
func (v *LinkedVector) ensureLoaded() error {
	if v.loaded {
		return nil
	}

	values, err := v.loader()
	if err != nil {
		return err
	}
	if len(values) != v.size {
		return errs.ErrCodecLengthMismatch
	}

	for i := 0; i < len(values); i += v.chunkSize {
		end := min(i+v.chunkSize, len(values))
		chunk := make([]uint64, end-i)
		copy(chunk, values[i:end])
		v.chunks = append(v.chunks, chunk)
	}
	v.loaded = true

	return nil
}

// Add appends val and returns a Handle that can later overwrite or
// accumulate into this exact cell (used by the writer to back-patch
// durations once the next timestamp arrives).
func (v *LinkedVector) Add(val uint64) Handle {
	chunkIdx := v.size / v.chunkSize
	offset := v.size % v.chunkSize

	if chunkIdx == len(v.chunks) {
		v.chunks = append(v.chunks, make([]uint64, 0, v.chunkSize))
	}
	v.chunks[chunkIdx] = append(v.chunks[chunkIdx], val)
	v.size++

	return Handle{chunk: chunkIdx, offset: offset}
}

// At returns the element at pos.
func (v *LinkedVector) At(pos int) (uint64, error) {
	if pos < 0 || pos >= v.size {
		return 0, errs.ErrSequenceIndexOutOfRange
	}
	if err := v.ensureLoaded(); err != nil {
		return 0, err
	}

	chunkIdx := pos / v.chunkSize
	offset := pos % v.chunkSize

	return v.chunks[chunkIdx][offset], nil
}

// Set overwrites the element addressed by h with val.
func (v *LinkedVector) Set(h Handle, val uint64) {
	v.chunks[h.chunk][h.offset] = val
}

// AddTo adds delta to the element addressed by h. Used for back-patching
// the durations of enclosing sequences that were still open when an inner
// event's duration became known.
func (v *LinkedVector) AddTo(h Handle, delta uint64) {
	v.chunks[h.chunk][h.offset] += delta
}

// Front returns the first element.
func (v *LinkedVector) Front() (uint64, error) { return v.At(0) }

// Back returns the last element.
func (v *LinkedVector) Back() (uint64, error) { return v.At(v.size - 1) }

// LastHandle returns a Handle addressing the most recently added element.
// On an empty vector the returned Handle addresses no element and a
// Set/AddTo through it panics; callers only use it right after Add.
func (v *LinkedVector) LastHandle() Handle {
	return Handle{chunk: (v.size - 1) / v.chunkSize, offset: (v.size - 1) % v.chunkSize}
}

// All returns an iterator over every element in insertion order.
func (v *LinkedVector) All() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		if err := v.ensureLoaded(); err != nil {
			return
		}
		for _, chunk := range v.chunks {
			for _, val := range chunk {
				if !yield(val) {
					return
				}
			}
		}
	}
}

// Materialize decodes (if necessary) and returns every element as a single
// contiguous slice. Used by the codec layer when re-encoding a vector.
func (v *LinkedVector) Materialize() ([]uint64, error) {
	if err := v.ensureLoaded(); err != nil {
		return nil, err
	}

	out := make([]uint64, 0, v.size)
	for _, chunk := range v.chunks {
		out = append(out, chunk...)
	}

	return out, nil
}

// materializeScratch flattens the vector's chunks into a pooled buffer for
// a single immediate encode call. Unlike Materialize, the returned slice
// must not outlive the call to cleanup: EncodePayload hands it straight to
// Pipeline.Encode, which only reads from it, and returns it to the pool the
// moment the encoded byte payload comes back.
func (v *LinkedVector) materializeScratch() ([]uint64, func(), error) {
	if err := v.ensureLoaded(); err != nil {
		return nil, nil, err
	}

	scratch, cleanup := pool.GetUint64Slice(v.size)
	n := 0
	for _, chunk := range v.chunks {
		n += copy(scratch[n:], chunk)
	}

	return scratch, cleanup, nil
}
