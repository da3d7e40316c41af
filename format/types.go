// Package format defines the small enumerations persisted in a Pallas
// archive header: which codec stages were used to write it and how its
// loop detector was configured. These values are read back verbatim by
// the storage engine so a reader never has to guess the writer's choices.
package format

type (
	// CompressionType identifies the second stage of the codec pipeline
	// (see package codec): the general-purpose or lossy-numeric compressor
	// applied after encoding.
	CompressionType uint8

	// EncodingType identifies the first stage of the codec pipeline: a
	// format-aware transform applied to a u64 array before compression.
	EncodingType uint8

	// LoopFindingAlgorithm selects the online loop-detection strategy a
	// ThreadWriter runs after every token append.
	LoopFindingAlgorithm uint8

	// TimestampStorageMode controls whether a writer's in-flight raw
	// timestamps are ever persisted verbatim, for debugging trace
	// construction itself.
	TimestampStorageMode uint8
)

const (
	CompressionNone      CompressionType = 0x1 // CompressionNone applies no compression.
	CompressionZSTD      CompressionType = 0x2 // CompressionZSTD applies Zstandard compression.
	CompressionHistogram CompressionType = 0x3 // CompressionHistogram applies lossy bucket quantization.
	CompressionZFP       CompressionType = 0x4 // CompressionZFP applies lossy fixed-precision quantization (ZFP-style).
	CompressionSZ        CompressionType = 0x5 // CompressionSZ applies lossy error-bounded quantization (SZ-style).
)

const (
	EncodingNone         EncodingType = 0x1 // EncodingNone stores elements as raw little-endian u64s.
	EncodingMasking      EncodingType = 0x2 // EncodingMasking drops the common high zero bytes of every element.
	EncodingLeadingZeros EncodingType = 0x3 // EncodingLeadingZeros is reserved for a future bit-packed variant.
)

const (
	LoopFindingNone           LoopFindingAlgorithm = 0x0 // LoopFindingNone disables loop detection entirely.
	LoopFindingBasic          LoopFindingAlgorithm = 0x1 // LoopFindingBasic is the unbounded O(n^2) detector; the default.
	LoopFindingBasicTruncated LoopFindingAlgorithm = 0x2 // LoopFindingBasicTruncated bounds candidate loop length by MaxLoopLength.
	LoopFindingFilter         LoopFindingAlgorithm = 0x3 // LoopFindingFilter only checks lengths ending at the last token.
)

const (
	TimestampStorageNone      TimestampStorageMode = 0x0 // TimestampStorageNone never persists in-flight raw timestamps.
	TimestampStorageDelta     TimestampStorageMode = 0x1 // TimestampStorageDelta persists durations only (the normal mode).
	TimestampStorageTimestamp TimestampStorageMode = 0x2 // TimestampStorageTimestamp additionally persists absolute timestamps for debugging.
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZSTD:
		return "ZSTD"
	case CompressionHistogram:
		return "Histogram"
	case CompressionZFP:
		return "ZFP"
	case CompressionSZ:
		return "SZ"
	default:
		return "Unknown"
	}
}

// Lossy reports whether the compression stage discards precision. The codec
// layer forbids combining a lossy compressor with any non-None encoding.
func (c CompressionType) Lossy() bool {
	switch c {
	case CompressionHistogram, CompressionZFP, CompressionSZ:
		return true
	default:
		return false
	}
}

func (e EncodingType) String() string {
	switch e {
	case EncodingNone:
		return "None"
	case EncodingMasking:
		return "Masking"
	case EncodingLeadingZeros:
		return "LeadingZeros"
	default:
		return "Unknown"
	}
}

func (l LoopFindingAlgorithm) String() string {
	switch l {
	case LoopFindingNone:
		return "None"
	case LoopFindingBasic:
		return "Basic"
	case LoopFindingBasicTruncated:
		return "BasicTruncated"
	case LoopFindingFilter:
		return "Filter"
	default:
		return "Unknown"
	}
}

func (t TimestampStorageMode) String() string {
	switch t {
	case TimestampStorageNone:
		return "None"
	case TimestampStorageDelta:
		return "Delta"
	case TimestampStorageTimestamp:
		return "Timestamp"
	default:
		return "Unknown"
	}
}
