package storage

import (
	"encoding/binary"

	"github.com/pallas-trace/pallas/errs"
	"github.com/pallas-trace/pallas/format"
	"github.com/pallas-trace/pallas/params"
)

// paramsSize is the fixed on-disk size of an encoded params.Parameters
// value, as embedded in the global header.
const paramsSize = 1 + 1 + 1 + 1 + 8 + 1 + 1 + 1

// encodeParameters serializes p into the fixed-size layout every global
// header embeds.
func encodeParameters(p params.Parameters) []byte {
	buf := make([]byte, paramsSize)
	buf[0] = byte(p.CompressionAlgorithm)
	buf[1] = byte(p.EncodingAlgorithm)
	buf[2] = p.ZstdCompressionLevel
	buf[3] = byte(p.LoopFindingAlgorithm)
	binary.LittleEndian.PutUint64(buf[4:12], p.MaxLoopLength)
	buf[12] = byte(p.TimestampStorage)
	buf[13] = boolByte(p.StoreHashing)
	buf[14] = boolByte(p.StoreTimestamps)

	return buf
}

// decodeParameters parses the layout written by encodeParameters and runs
// the usual Validate pass before returning it, so a corrupt or
// self-contradictory on-disk combination surfaces as an error rather than
// a silently-misbehaving codec pipeline.
func decodeParameters(buf []byte) (params.Parameters, error) {
	if len(buf) < paramsSize {
		return params.Parameters{}, errs.ErrInvalidHeaderSize
	}

	p := params.Parameters{
		CompressionAlgorithm: format.CompressionType(buf[0]),
		EncodingAlgorithm:    format.EncodingType(buf[1]),
		ZstdCompressionLevel: buf[2],
		LoopFindingAlgorithm: format.LoopFindingAlgorithm(buf[3]),
		MaxLoopLength:        binary.LittleEndian.Uint64(buf[4:12]),
		TimestampStorage:     format.TimestampStorageMode(buf[12]),
		StoreHashing:         buf[13] != 0,
		StoreTimestamps:      buf[14] != 0,
	}

	if err := p.Validate(); err != nil {
		return params.Parameters{}, err
	}

	return p, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
