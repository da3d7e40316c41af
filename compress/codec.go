package compress

import "fmt"

// Compressor compresses an arbitrary byte payload.
//
// This is Pallas's general-purpose, byte-oriented codec: it has no notion
// of what the bytes mean. It backs the storage engine's side-file framing
// (attribute logs, duration side-files) and is one building block the
// numeric codec pipeline (see package codec) composes for its ZSTD stage.
type Compressor interface {
	// Compress compresses data and returns the compressed result. The
	// returned slice is newly allocated; the input is not modified.
	Compress(data []byte) ([]byte, error)
}

// Decompressor decompresses a payload produced by the matching Compressor.
type Decompressor interface {
	// Decompress reverses Compress. Returns an error if data is corrupted
	// or was not produced by the matching algorithm.
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions.
type Codec interface {
	Compressor
	Decompressor
}

// Algorithm selects one of the byte-level codecs this package provides.
// Unlike format.CompressionType (which configures the numeric-array codec
// pipeline in package codec), Algorithm only ever wraps opaque bytes, so
// it is local to this package rather than part of the on-disk archive
// header.
type Algorithm uint8

const (
	// None applies no compression.
	None Algorithm = iota
	// ZSTD applies Zstandard compression (github.com/klauspost/compress/zstd,
	// or github.com/valyala/gozstd behind the nobuild cgo variant).
	ZSTD
	// S2 applies klauspost/compress/s2, used for the attribute-log side
	// files where decompression speed matters more than ratio.
	S2
	// LZ4 applies pierrec/lz4, used for duration side-file transport
	// framing (see storage.WithSideFileCompression).
	LZ4
)

func (a Algorithm) String() string {
	switch a {
	case None:
		return "None"
	case ZSTD:
		return "ZSTD"
	case S2:
		return "S2"
	case LZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// CreateCodec is a factory function that creates a Codec for the given
// Algorithm.
func CreateCodec(algo Algorithm, target string) (Codec, error) {
	switch algo {
	case None:
		return NewNoOpCompressor(), nil
	case ZSTD:
		return NewZstdCompressor(), nil
	case S2:
		return NewS2Compressor(), nil
	case LZ4:
		return NewLZ4Compressor(), nil
	default:
		return nil, fmt.Errorf("invalid %s compression: %s", target, algo)
	}
}

var builtinCodecs = map[Algorithm]Codec{
	None: NewNoOpCompressor(),
	ZSTD: NewZstdCompressor(),
	S2:   NewS2Compressor(),
	LZ4:  NewLZ4Compressor(),
}

// GetCodec retrieves a built-in Codec for the given Algorithm.
func GetCodec(algo Algorithm) (Codec, error) {
	if codec, ok := builtinCodecs[algo]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression algorithm: %s", algo)
}
