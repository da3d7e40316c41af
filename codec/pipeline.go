// Package codec implements Pallas's numeric codec pipeline: the
// encode-then-compress transform applied to the payload of every
// LinkedVector/LinkedDurationVector persisted to disk. Sequence token
// vectors and Loop iteration counts are written by package storage as raw
// uint32 arrays and do not pass through it.
//
// A Pipeline is built once from a params.Parameters and reused across
// every array written or read under that configuration. Encode always
// returns a self-framed buffer ([8-byte length][payload]); Decode takes
// that buffer back apart given the element count the caller already
// knows from the owning structure's header.
package codec

import (
	"fmt"

	"github.com/pallas-trace/pallas/compress"
	"github.com/pallas-trace/pallas/endian"
	"github.com/pallas-trace/pallas/errs"
	"github.com/pallas-trace/pallas/format"
	"github.com/pallas-trace/pallas/params"
)

// Pipeline encodes and decodes u64 arrays according to one
// params.Parameters configuration.
type Pipeline struct {
	params params.Parameters
	engine endian.EndianEngine
}

// New builds a Pipeline from p. Assumes p has already passed
// params.Parameters.Validate (params.New guarantees this).
func New(p params.Parameters) *Pipeline {
	return &Pipeline{params: p, engine: endian.GetLittleEndianEngine()}
}

// Encode runs values through the configured encode-then-compress pipeline
// and returns a self-framed buffer: an 8-byte little-endian length
// followed by that many bytes of payload.
func (p *Pipeline) Encode(values []uint64) ([]byte, error) {
	var payload []byte
	var err error

	if p.params.CompressionAlgorithm.Lossy() {
		payload, err = encodeLossy(p.params.CompressionAlgorithm, values)
	} else {
		payload, err = p.encodeLossless(values)
	}
	if err != nil {
		return nil, err
	}

	framed := make([]byte, 8+len(payload))
	p.engine.PutUint64(framed, uint64(len(payload)))
	copy(framed[8:], payload)

	return framed, nil
}

// Decode reverses Encode, given the number of elements n the caller
// already knows (from the owning vector's own size field).
func (p *Pipeline) Decode(framed []byte, n int) ([]uint64, error) {
	if len(framed) < 8 {
		return nil, errs.ErrInvalidHeaderSize
	}

	length := p.engine.Uint64(framed)
	if uint64(len(framed)-8) < length {
		return nil, errs.ErrCodecLengthMismatch
	}
	payload := framed[8 : 8+length]

	if p.params.CompressionAlgorithm.Lossy() {
		return decodeLossy(p.params.CompressionAlgorithm, payload, n)
	}

	return p.decodeLossless(payload, n)
}

func (p *Pipeline) encodeLossless(values []uint64) ([]byte, error) {
	encoded, err := p.encode(values)
	if err != nil {
		return nil, err
	}

	if p.params.CompressionAlgorithm == format.CompressionNone {
		return encoded, nil
	}

	codec, err := compress.GetCodec(compress.ZSTD)
	if err != nil {
		return nil, err
	}

	return codec.Compress(encoded)
}

func (p *Pipeline) decodeLossless(payload []byte, n int) ([]uint64, error) {
	encoded := payload

	if p.params.CompressionAlgorithm != format.CompressionNone {
		codec, err := compress.GetCodec(compress.ZSTD)
		if err != nil {
			return nil, err
		}

		decoded, err := codec.Decompress(payload)
		if err != nil {
			return nil, err
		}
		encoded = decoded
	}

	return p.decode(encoded, n)
}

// encode applies the format.EncodingType transform, independent of the
// compression stage.
func (p *Pipeline) encode(values []uint64) ([]byte, error) {
	switch p.params.EncodingAlgorithm {
	case format.EncodingNone:
		return p.encodeRaw(values), nil
	case format.EncodingMasking:
		return encodeMasking(p.engine, values), nil
	case format.EncodingLeadingZeros:
		return nil, fmt.Errorf("pallas: %w: LeadingZeros encoding not yet implemented", errs.ErrInvalidEncoding)
	default:
		return nil, errs.ErrInvalidEncoding
	}
}

func (p *Pipeline) decode(data []byte, n int) ([]uint64, error) {
	switch p.params.EncodingAlgorithm {
	case format.EncodingNone:
		return p.decodeRaw(data, n)
	case format.EncodingMasking:
		return decodeMasking(p.engine, data, n)
	case format.EncodingLeadingZeros:
		return nil, fmt.Errorf("pallas: %w: LeadingZeros encoding not yet implemented", errs.ErrInvalidEncoding)
	default:
		return nil, errs.ErrInvalidEncoding
	}
}

func (p *Pipeline) encodeRaw(values []uint64) []byte {
	buf := make([]byte, 0, len(values)*8)
	for _, v := range values {
		buf = p.engine.AppendUint64(buf, v)
	}

	return buf
}

func (p *Pipeline) decodeRaw(data []byte, n int) ([]uint64, error) {
	if len(data) != n*8 {
		return nil, errs.ErrCodecLengthMismatch
	}

	out := make([]uint64, n)
	for i := range out {
		out[i] = p.engine.Uint64(data[i*8:])
	}

	return out, nil
}
