// Package params holds the immutable configuration that a Pallas writer
// and reader agree on for one archive: codec choices and loop-detector
// tuning, persisted verbatim in the global header.
//
// A Parameters value is built once, with functional options, and then
// threaded explicitly into the writer/reader/storage constructors. It is
// never read from a process-global variable. An environment/JSON loader
// that turns PALLAS_* variables into a Parameters value is out of scope
// for this package; callers that need it build their own loader and
// hand this package the resulting value.
package params

import (
	"fmt"

	"github.com/pallas-trace/pallas/format"
	"github.com/pallas-trace/pallas/internal/options"
)

// Parameters is the immutable, already-settled configuration for one
// archive. The zero value is not valid; construct with New.
type Parameters struct {
	CompressionAlgorithm format.CompressionType
	EncodingAlgorithm    format.EncodingType
	ZstdCompressionLevel uint8

	LoopFindingAlgorithm format.LoopFindingAlgorithm
	MaxLoopLength        uint64

	TimestampStorage format.TimestampStorageMode

	// StoreHashing is the header flag STORE_HASHING, carried in the
	// global header. Storage does not write Sequence.Hash to disk and does
	// not recompute it on load, whatever this flag says: reopened
	// Sequences carry Hash 0.
	StoreHashing bool

	// StoreTimestamps is the header flag STORE_TIMESTAMPS, carried in the
	// global header. No writer or storage code reads it; the on-disk
	// duration vectors are the same either way.
	StoreTimestamps bool
}

// Option configures a Parameters value during New.
type Option = options.Option[*Parameters]

// Default returns the recommended default configuration: no compression,
// no encoding transform, the Basic loop detector (the simplest correct
// choice despite its quadratic cost), STORE_HASHING enabled and
// STORE_TIMESTAMPS disabled.
func Default() Parameters {
	return Parameters{
		CompressionAlgorithm: format.CompressionNone,
		EncodingAlgorithm:    format.EncodingNone,
		ZstdCompressionLevel: 3,
		LoopFindingAlgorithm: format.LoopFindingBasic,
		MaxLoopLength:        0,
		TimestampStorage:     format.TimestampStorageDelta,
		StoreHashing:         true,
		StoreTimestamps:      false,
	}
}

// New builds a Parameters value from the given options, starting from
// Default(). It validates the combination (e.g. lossy compression forbids
// a non-None encoding) before returning.
func New(opts ...Option) (Parameters, error) {
	p := Default()
	if err := options.Apply(&p, opts...); err != nil {
		return Parameters{}, err
	}

	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}

	return p, nil
}

// Validate checks that lossy compression is only ever paired with
// EncodingNone.
func (p Parameters) Validate() error {
	if p.CompressionAlgorithm.Lossy() && p.EncodingAlgorithm != format.EncodingNone {
		return fmt.Errorf("pallas: %s compression requires EncodingNone, got %s",
			p.CompressionAlgorithm, p.EncodingAlgorithm)
	}

	if p.LoopFindingAlgorithm == format.LoopFindingBasicTruncated && p.MaxLoopLength == 0 {
		return fmt.Errorf("pallas: BasicTruncated loop finding requires MaxLoopLength > 0")
	}

	return nil
}

// WithCompression sets the compression stage of the codec pipeline.
func WithCompression(c format.CompressionType) Option {
	return options.NoError(func(p *Parameters) { p.CompressionAlgorithm = c })
}

// WithEncoding sets the encoding stage of the codec pipeline.
func WithEncoding(e format.EncodingType) Option {
	return options.NoError(func(p *Parameters) { p.EncodingAlgorithm = e })
}

// WithZstdLevel sets ZstdCompressionLevel, which is stored in the global
// header. The codec pipeline's ZSTD stage does not read it: it compresses
// with package compress's shared ZSTD codec at that codec's fixed level.
func WithZstdLevel(level uint8) Option {
	return options.NoError(func(p *Parameters) { p.ZstdCompressionLevel = level })
}

// WithLoopFinding sets the loop-detection algorithm.
func WithLoopFinding(l format.LoopFindingAlgorithm) Option {
	return options.NoError(func(p *Parameters) { p.LoopFindingAlgorithm = l })
}

// WithMaxLoopLength sets the candidate loop length bound used by
// format.LoopFindingBasicTruncated.
func WithMaxLoopLength(n uint64) Option {
	return options.NoError(func(p *Parameters) { p.MaxLoopLength = n })
}

// WithTimestampStorage sets the timestamp-persistence debugging mode.
func WithTimestampStorage(t format.TimestampStorageMode) Option {
	return options.NoError(func(p *Parameters) { p.TimestampStorage = t })
}

// WithStoreHashing sets the STORE_HASHING header flag (see StoreHashing).
func WithStoreHashing(enabled bool) Option {
	return options.NoError(func(p *Parameters) { p.StoreHashing = enabled })
}

// WithStoreTimestamps sets the STORE_TIMESTAMPS header flag (see StoreTimestamps).
func WithStoreTimestamps(enabled bool) Option {
	return options.NoError(func(p *Parameters) { p.StoreTimestamps = enabled })
}
