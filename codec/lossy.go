package codec

import (
	"fmt"
	"math"

	"github.com/pallas-trace/pallas/errs"
	"github.com/pallas-trace/pallas/format"
)

// histogramBucketBytes is the fixed width of each quantized bucket index.
const histogramBucketBytes = 1

// zfpBucketBytes and szBucketBytes widen the bucket index for Pallas's
// pure-Go stand-ins for ZFP and SZ (see DESIGN.md): wider indices trade
// the smaller footprint of the real C++ libraries for a smaller
// quantization error at a given min/max spread.
const (
	zfpBucketBytes = 4
	szBucketBytes  = 2
)

// encodeLossy dispatches to the bucket-quantization scheme for the given
// lossy algorithm. Every scheme shares the same on-disk shape: an 8-byte
// min, an 8-byte max, then one fixed-width bucket index per element.
func encodeLossy(algo format.CompressionType, values []uint64) ([]byte, error) {
	switch algo {
	case format.CompressionHistogram:
		return encodeBuckets(values, histogramBucketBytes), nil
	case format.CompressionZFP:
		return encodeBuckets(values, zfpBucketBytes), nil
	case format.CompressionSZ:
		return encodeBuckets(values, szBucketBytes), nil
	default:
		return nil, fmt.Errorf("pallas: %w: %s is not a lossy algorithm", errs.ErrInvalidCompression, algo)
	}
}

func decodeLossy(algo format.CompressionType, data []byte, n int) ([]uint64, error) {
	switch algo {
	case format.CompressionHistogram:
		return decodeBuckets(data, n, histogramBucketBytes)
	case format.CompressionZFP:
		return decodeBuckets(data, n, zfpBucketBytes)
	case format.CompressionSZ:
		return decodeBuckets(data, n, szBucketBytes)
	default:
		return nil, fmt.Errorf("pallas: %w: %s is not a lossy algorithm", errs.ErrInvalidCompression, algo)
	}
}

// bucketScale is the largest value representable by a bucket index of
// the given byte width, i.e. 2^(8*bucketBytes) - 1.
func bucketScale(bucketBytes int) uint64 {
	if bucketBytes >= 8 {
		return math.MaxUint64
	}

	return uint64(1)<<(8*bucketBytes) - 1
}

func encodeBuckets(values []uint64, bucketBytes int) []byte {
	min, max := minMax(values)

	buf := make([]byte, 16+len(values)*bucketBytes)
	putUint64LE(buf[0:8], min)
	putUint64LE(buf[8:16], max)

	spread := max - min
	scale := bucketScale(bucketBytes)

	for i, v := range values {
		var idx uint64
		if spread > 0 {
			idx = (v - min) * scale / spread
		}

		off := 16 + i*bucketBytes
		for b := 0; b < bucketBytes; b++ {
			buf[off+b] = byte(idx >> (8 * b))
		}
	}

	return buf
}

func decodeBuckets(data []byte, n int, bucketBytes int) ([]uint64, error) {
	if n == 0 {
		return nil, nil
	}
	if len(data) != 16+n*bucketBytes {
		return nil, errs.ErrCodecLengthMismatch
	}

	min := getUint64LE(data[0:8])
	max := getUint64LE(data[8:16])
	spread := max - min
	scale := bucketScale(bucketBytes)

	out := make([]uint64, n)
	for i := range out {
		var idx uint64
		off := 16 + i*bucketBytes
		for b := 0; b < bucketBytes; b++ {
			idx |= uint64(data[off+b]) << (8 * b)
		}

		if spread == 0 {
			out[i] = min
			continue
		}
		out[i] = min + idx*spread/scale
	}

	return out, nil
}

func minMax(values []uint64) (min, max uint64) {
	if len(values) == 0 {
		return 0, 0
	}

	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	return min, max
}

func putUint64LE(b []byte, v uint64) {
	for i := range 8 {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint64LE(b []byte) uint64 {
	var v uint64
	for i := range 8 {
		v |= uint64(b[i]) << (8 * i)
	}

	return v
}
