package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/pallas-trace/pallas/errs"
	"github.com/pallas-trace/pallas/params"
)

// GlobalHeader is the fixed-size record written to <trace_name>.pallas:
// group_id, ABI version byte, serialised Parameters, table sizes
// (strings, regions, attributes, location_groups, locations), and
// nb_threads. The two boolean flags (STORE_HASHING, STORE_TIMESTAMPS) are
// carried inside the embedded Parameters
// (params.Parameters.StoreHashing/StoreTimestamps) rather than written a
// second time.
type GlobalHeader struct {
	GroupID     uint32
	ABIVersion  uint8
	Params      params.Parameters
	StringCount uint32
	RegionCount uint32
	AttributeCount    uint32
	LocationGroupCount uint32
	LocationCount      uint32
	NbThreads          uint32
}

const globalHeaderFixedSize = 4 + 1 + paramsSize + 4*6

// Bytes serializes h.
func (h GlobalHeader) Bytes() []byte {
	buf := make([]byte, globalHeaderFixedSize)
	off := 0

	binary.LittleEndian.PutUint32(buf[off:], h.GroupID)
	off += 4
	buf[off] = h.ABIVersion
	off++

	pbuf := encodeParameters(h.Params)
	copy(buf[off:], pbuf)
	off += len(pbuf)

	for _, v := range []uint32{h.StringCount, h.RegionCount, h.AttributeCount, h.LocationGroupCount, h.LocationCount, h.NbThreads} {
		binary.LittleEndian.PutUint32(buf[off:], v)
		off += 4
	}

	return buf
}

// ParseGlobalHeader parses a GlobalHeader and rejects an ABI mismatch
// before the caller can act on anything else in it: readers must refuse
// mismatched versions.
func ParseGlobalHeader(buf []byte) (GlobalHeader, error) {
	if len(buf) < globalHeaderFixedSize {
		return GlobalHeader{}, errs.ErrInvalidHeaderSize
	}

	var h GlobalHeader
	off := 0

	h.GroupID = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.ABIVersion = buf[off]
	off++

	if h.ABIVersion != ABIVersion {
		return GlobalHeader{}, fmt.Errorf("%w: got %d, want %d", errs.ErrArchiveVersionMismatch, h.ABIVersion, ABIVersion)
	}

	p, err := decodeParameters(buf[off : off+paramsSize])
	if err != nil {
		return GlobalHeader{}, err
	}
	h.Params = p
	off += paramsSize

	fields := []*uint32{&h.StringCount, &h.RegionCount, &h.AttributeCount, &h.LocationGroupCount, &h.LocationCount, &h.NbThreads}
	for _, f := range fields {
		*f = binary.LittleEndian.Uint32(buf[off:])
		off += 4
	}

	return h, nil
}

// ArchiveHeader is the fixed-size record written to
// archive_<id>/archive.pallas: the same shape as GlobalHeader but without
// the ABI byte or Parameters, and scoped to the process-local definition
// tables (strings, regions, attributes, groups, comms).
type ArchiveHeader struct {
	GroupID         uint32
	StringCount     uint32
	RegionCount     uint32
	AttributeCount  uint32
	GroupCount      uint32
	CommCount       uint32
	NbThreads       uint32
}

const archiveHeaderSize = 4 * 7

// Bytes serializes h.
func (h ArchiveHeader) Bytes() []byte {
	buf := make([]byte, archiveHeaderSize)
	vals := []uint32{h.GroupID, h.StringCount, h.RegionCount, h.AttributeCount, h.GroupCount, h.CommCount, h.NbThreads}
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}

	return buf
}

// ParseArchiveHeader parses an ArchiveHeader.
func ParseArchiveHeader(buf []byte) (ArchiveHeader, error) {
	if len(buf) < archiveHeaderSize {
		return ArchiveHeader{}, errs.ErrInvalidHeaderSize
	}

	var h ArchiveHeader
	fields := []*uint32{&h.GroupID, &h.StringCount, &h.RegionCount, &h.AttributeCount, &h.GroupCount, &h.CommCount, &h.NbThreads}
	for i, f := range fields {
		*f = binary.LittleEndian.Uint32(buf[i*4:])
	}

	return h, nil
}

// ThreadHeader is the fixed-size record written to thread_<tid>/thread.pallas:
// id, parent_archive_id, nb_events, nb_sequences, nb_loops.
// AttributeCodec/SideFileCodec record the compress.Algorithm a writer
// used for this thread's attribute_buffer and duration side-files, so a
// later Open reopens them the same way; without it a reader would have no
// way to know which codec produced the bytes on disk. Checksum is the
// xxhash64 digest of the thread's three .pallas files concatenated in
// directory order (event, sequence, loop), a per-section integrity check
// in the same spirit as a per-section CRC32.
type ThreadHeader struct {
	ID              uint32
	ParentArchiveID uint32
	NbEvents        uint32
	NbSequences     uint32
	NbLoops         uint32
	AttributeCodec  uint8
	SideFileCodec   uint8
	Checksum        uint64
}

const threadHeaderSize = 4*5 + 1 + 1 + 8

// Bytes serializes h.
func (h ThreadHeader) Bytes() []byte {
	buf := make([]byte, threadHeaderSize)
	off := 0

	vals := []uint32{h.ID, h.ParentArchiveID, h.NbEvents, h.NbSequences, h.NbLoops}
	for _, v := range vals {
		binary.LittleEndian.PutUint32(buf[off:], v)
		off += 4
	}

	buf[off] = h.AttributeCodec
	off++
	buf[off] = h.SideFileCodec
	off++

	binary.LittleEndian.PutUint64(buf[off:], h.Checksum)

	return buf
}

// ParseThreadHeader parses a ThreadHeader.
func ParseThreadHeader(buf []byte) (ThreadHeader, error) {
	if len(buf) < threadHeaderSize {
		return ThreadHeader{}, errs.ErrInvalidHeaderSize
	}

	var h ThreadHeader
	off := 0

	fields := []*uint32{&h.ID, &h.ParentArchiveID, &h.NbEvents, &h.NbSequences, &h.NbLoops}
	for _, f := range fields {
		*f = binary.LittleEndian.Uint32(buf[off:])
		off += 4
	}

	h.AttributeCodec = buf[off]
	off++
	h.SideFileCodec = buf[off]
	off++

	h.Checksum = binary.LittleEndian.Uint64(buf[off:])

	return h, nil
}
