// Package errs holds the sentinel errors shared across Pallas's packages.
//
// Callers should compare against these with errors.Is, since most call
// sites wrap them with fmt.Errorf("...: %w", ...) for extra context.
package errs

import "errors"

// Header / codec errors.
var (
	ErrInvalidHeaderSize  = errors.New("pallas: invalid header size")
	ErrArchiveVersionMismatch = errors.New("pallas: archive ABI version mismatch")
	ErrInvalidCompression = errors.New("pallas: invalid compression algorithm")
	ErrInvalidEncoding    = errors.New("pallas: invalid encoding algorithm")
	ErrLossyEncodingMix   = errors.New("pallas: lossy compression requires encoding=None")
	ErrCodecLengthMismatch = errors.New("pallas: decoded length does not match expected element count")
)

// Token / grammar errors are a fatal-bug class: returned here and
// promoted to a panic at the nearest public entry point.
var (
	ErrInvalidTokenKind       = errors.New("pallas: invalid token kind")
	ErrTokenIndexOutOfRange   = errors.New("pallas: token index out of range")
	ErrSequenceIndexOutOfRange = errors.New("pallas: sequence index out of range")
	ErrEventSizeOutOfRange    = errors.New("pallas: event size exceeds 256 bytes")
	ErrCallstackOverflow      = errors.New("pallas: callstack exceeded maximum depth")
	ErrCallstackUnderflow     = errors.New("pallas: attempted to pop an empty callstack")
	ErrUnknownEventID         = errors.New("pallas: unknown event id")
	ErrUnknownSequenceID      = errors.New("pallas: unknown sequence id")
	ErrUnknownLoopID          = errors.New("pallas: unknown loop id")
)

// Recoverable errors (logged by the caller, operation continues).
var (
	ErrDuplicateDefinition  = errors.New("pallas: duplicate definition reference")
	ErrHashCollision        = errors.New("pallas: sequence hash collision")
	ErrUnmatchedEnterLeave  = errors.New("pallas: unmatched enter/leave at thread close")
)

// Definition / archive lookup errors.
var (
	ErrDefinitionNotFound = errors.New("pallas: definition not found")
	ErrThreadNotFound     = errors.New("pallas: thread not found")
	ErrArchiveNotFound    = errors.New("pallas: archive not found")
	ErrArchiveClosed      = errors.New("pallas: archive is closed")
)

// I/O errors. Storage operations wrap the underlying os/io error with one
// of these so callers can distinguish "which phase failed" without parsing
// error strings.
var (
	ErrStorageWrite = errors.New("pallas: storage write failed")
	ErrStorageRead  = errors.New("pallas: storage read failed")
	ErrStorageOpen  = errors.New("pallas: storage open failed")
)

// Reader errors.
var (
	ErrEndOfTrace      = errors.New("pallas: end of trace")
	ErrInvalidUnrollFlags = errors.New("pallas: invalid unroll flags")
	ErrNoSnapshot      = errors.New("pallas: reader has no snapshot to restore")
)
