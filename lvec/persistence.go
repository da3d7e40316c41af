package lvec

import (
	"encoding/binary"
	"math"

	"github.com/pallas-trace/pallas/codec"
	"github.com/pallas-trace/pallas/errs"
)

// headerSize0 is just the size field.
const headerSize0 = 8

// headerSize1 is size plus the single inline value.
const headerSize1 = 8 + 8

// headerSizeN is size, min, max, mean (as bits), and the value-file
// offset.
const headerSizeN = 8 + 8 + 8 + 8 + 8

// WriteHeader serializes the three-tier LinkedVector header: just the
// size if empty, size+value if singleton, or size+offset (this vector
// carries no running statistics of its own) if larger. valueOffset is
// ignored unless the vector has 2+ elements.
func (v *LinkedVector) WriteHeader(valueOffset uint64) []byte {
	switch v.size {
	case 0:
		buf := make([]byte, headerSize0)
		binary.LittleEndian.PutUint64(buf, 0)
		return buf
	case 1:
		buf := make([]byte, headerSize1)
		binary.LittleEndian.PutUint64(buf[0:8], 1)
		val, _ := v.At(0)
		binary.LittleEndian.PutUint64(buf[8:16], val)
		return buf
	default:
		buf := make([]byte, 8+8)
		binary.LittleEndian.PutUint64(buf[0:8], uint64(v.size))
		binary.LittleEndian.PutUint64(buf[8:16], valueOffset)
		return buf
	}
}

// EncodePayload runs the vector's materialized contents through pipeline,
// returning nil if size < 2 (nothing is written to the value file in that
// case; the header carries the data directly).
func (v *LinkedVector) EncodePayload(pipeline *codec.Pipeline) ([]byte, error) {
	if v.size < 2 {
		return nil, nil
	}

	values, cleanup, err := v.materializeScratch()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return pipeline.Encode(values)
}

// ParseLinkedVectorHeader parses a header written by WriteHeader. For
// size 0 or 1 the vector is fully loaded already; for size >= 2, loader is
// invoked lazily with the given pipeline once a read touches the vector.
func ParseLinkedVectorHeader(header []byte, chunkSize int, loader func(valueOffset uint64) ([]byte, error), pipeline *codec.Pipeline) (*LinkedVector, error) {
	if len(header) < 8 {
		return nil, errs.ErrInvalidHeaderSize
	}

	size := binary.LittleEndian.Uint64(header)
	switch size {
	case 0:
		return New(chunkSize), nil
	case 1:
		if len(header) < headerSize1 {
			return nil, errs.ErrInvalidHeaderSize
		}
		v := New(chunkSize)
		v.Add(binary.LittleEndian.Uint64(header[8:16]))
		return v, nil
	default:
		if len(header) < 16 {
			return nil, errs.ErrInvalidHeaderSize
		}
		offset := binary.LittleEndian.Uint64(header[8:16])

		return NewFromHeader(int(size), chunkSize, func() ([]uint64, error) {
			framed, err := loader(offset)
			if err != nil {
				return nil, err
			}

			return pipeline.Decode(framed, int(size))
		}), nil
	}
}

// WriteHeader serializes the LinkedDurationVector header, which
// additionally carries the running (min, max, mean) for size >= 2.
func (dv *LinkedDurationVector) WriteHeader(valueOffset uint64) []byte {
	switch dv.vec.size {
	case 0:
		buf := make([]byte, headerSize0)
		binary.LittleEndian.PutUint64(buf, 0)
		return buf
	case 1:
		buf := make([]byte, headerSize1)
		binary.LittleEndian.PutUint64(buf[0:8], 1)
		val, _ := dv.vec.At(0)
		binary.LittleEndian.PutUint64(buf[8:16], val)
		return buf
	default:
		buf := make([]byte, headerSizeN)
		binary.LittleEndian.PutUint64(buf[0:8], uint64(dv.vec.size))
		binary.LittleEndian.PutUint64(buf[8:16], dv.min)
		binary.LittleEndian.PutUint64(buf[16:24], dv.max)
		binary.LittleEndian.PutUint64(buf[24:32], math.Float64bits(dv.Mean()))
		binary.LittleEndian.PutUint64(buf[32:40], valueOffset)
		return buf
	}
}

// EncodePayload runs the duration vector's materialized contents through
// pipeline, returning nil if size < 2.
func (dv *LinkedDurationVector) EncodePayload(pipeline *codec.Pipeline) ([]byte, error) {
	return dv.vec.EncodePayload(pipeline)
}

// ParseLinkedDurationVectorHeader parses a header written by
// LinkedDurationVector.WriteHeader.
func ParseLinkedDurationVectorHeader(header []byte, chunkSize int, loader func(valueOffset uint64) ([]byte, error), pipeline *codec.Pipeline) (*LinkedDurationVector, error) {
	if len(header) < 8 {
		return nil, errs.ErrInvalidHeaderSize
	}

	size := binary.LittleEndian.Uint64(header)
	switch size {
	case 0:
		return NewDurationVector(chunkSize), nil
	case 1:
		if len(header) < headerSize1 {
			return nil, errs.ErrInvalidHeaderSize
		}
		dv := NewDurationVector(chunkSize)
		dv.Add(binary.LittleEndian.Uint64(header[8:16]))
		return dv, nil
	default:
		if len(header) < headerSizeN {
			return nil, errs.ErrInvalidHeaderSize
		}
		min := binary.LittleEndian.Uint64(header[8:16])
		max := binary.LittleEndian.Uint64(header[16:24])
		mean := math.Float64frombits(binary.LittleEndian.Uint64(header[24:32]))
		offset := binary.LittleEndian.Uint64(header[32:40])

		return NewDurationVectorFromHeader(int(size), chunkSize, min, max, mean, func() ([]uint64, error) {
			framed, err := loader(offset)
			if err != nil {
				return nil, err
			}

			return pipeline.Decode(framed, int(size))
		}), nil
	}
}
