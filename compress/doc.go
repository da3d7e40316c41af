// Package compress provides general-purpose byte-level compression codecs
// used for Pallas's side-file framing: attribute logs, duration
// side-files, and other blobs that the numeric codec pipeline (package codec) doesn't
// itself understand.
//
// # Supported algorithms
//
//   - None: no compression, returns the input unchanged.
//   - ZSTD: best ratio, used by the numeric codec pipeline's ZSTD stage.
//   - S2: fast decompression, used for attribute-log side files that a
//     reader re-scans frequently.
//   - LZ4: very fast decompression, used for duration side-file transport
//     framing where read latency dominates.
//
// # Architecture
//
//	type Compressor interface {
//	    Compress(data []byte) ([]byte, error)
//	}
//
//	type Decompressor interface {
//	    Decompress(data []byte) ([]byte, error)
//	}
//
//	type Codec interface {
//	    Compressor
//	    Decompressor
//	}
//
// Construct a Codec either directly (NewZstdCompressor, NewS2Compressor,
// NewLZ4Compressor, NewNoOpCompressor) or through CreateCodec/GetCodec with
// an Algorithm value.
package compress
