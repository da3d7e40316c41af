// Package hash wraps xxHash64 for the places Pallas needs a stable,
// non-cryptographic hash: grammar-sequence deduplication (Tokens) and
// storage's per-thread content checksum (Checksum).
package hash

import (
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// ID computes the xxHash64 of the given string.
func ID(data string) uint64 {
	return xxhash.Sum64String(data)
}

// Checksum computes the xxHash64 of an arbitrary byte blob, used by
// package storage for its per-thread on-disk content checksum.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Tokens computes a 32-bit hash of a raw token slice, used by Thread to
// dedup Sequences. The seed is fixed so the hash is stable across runs
// and across a write/read round-trip of the same token array.
//
// Tokens are packed uint32 values; we hash their in-memory (native
// byte order) representation directly rather than converting through a string to
// avoid an allocation on the writer's hot path.
func Tokens(tokens []uint32) uint32 {
	if len(tokens) == 0 {
		return uint32(xxhash.Sum64(nil))
	}

	b := unsafe.Slice((*byte)(unsafe.Pointer(&tokens[0])), len(tokens)*4)

	return uint32(xxhash.Sum64(b))
}
