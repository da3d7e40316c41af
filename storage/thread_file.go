package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pallas-trace/pallas/codec"
	"github.com/pallas-trace/pallas/compress"
	"github.com/pallas-trace/pallas/errs"
	"github.com/pallas-trace/pallas/internal/hash"
	"github.com/pallas-trace/pallas/internal/pool"
	"github.com/pallas-trace/pallas/lvec"
	"github.com/pallas-trace/pallas/params"
	"github.com/pallas-trace/pallas/summary"
	"github.com/pallas-trace/pallas/thread"
	"github.com/pallas-trace/pallas/token"
)

// writeThread serializes every array t owns to
// <dir>/archive_<groupID>/thread_<id>/*. Events and Sequences share the
// layout: a fixed prefix, then the LinkedDurationVector header inline,
// with the multi-element payload appended to the matching side-file.
// Loops have no duration vector of their own.
func writeThread(dir string, groupID uint32, t *thread.Thread, pipeline *codec.Pipeline, opts writeOptions) error {
	td := threadDir(dir, groupID, uint32(t.ID))
	if err := os.MkdirAll(td, 0o755); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorageOpen, err)
	}

	durSide, err := createSideFileForWrite(threadFilePath(dir, groupID, uint32(t.ID), "event_durations.dat"), opts.SideFileCodec)
	if err != nil {
		return err
	}
	defer durSide.Close()

	eventBuf := pool.GetBlobBuffer()
	defer pool.PutBlobBuffer(eventBuf)
	nbEvents := t.NumEvents()
	for i := 0; i < nbEvents; i++ {
		s, err := t.EventSummary(uint32(i))
		if err != nil {
			return err
		}
		if err := encodeEventSummary(eventBuf, s, pipeline, durSide, opts); err != nil {
			return err
		}
	}
	if err := writeFile(threadFilePath(dir, groupID, uint32(t.ID), "event.pallas"), eventBuf.Bytes()); err != nil {
		return err
	}

	seqSide, err := createSideFileForWrite(threadFilePath(dir, groupID, uint32(t.ID), "sequence_durations.dat"), opts.SideFileCodec)
	if err != nil {
		return err
	}
	defer seqSide.Close()

	seqBuf := pool.GetBlobBuffer()
	defer pool.PutBlobBuffer(seqBuf)
	nbSequences := t.NumSequences()
	for i := 0; i < nbSequences; i++ {
		seq, err := t.Sequence(uint32(i))
		if err != nil {
			return err
		}
		if err := encodeSequence(seqBuf, seq, pipeline, seqSide); err != nil {
			return err
		}
	}
	if err := writeFile(threadFilePath(dir, groupID, uint32(t.ID), "sequence.pallas"), seqBuf.Bytes()); err != nil {
		return err
	}

	loopBuf := pool.GetBlobBuffer()
	defer pool.PutBlobBuffer(loopBuf)
	nbLoops := t.NumLoops()
	for i := 0; i < nbLoops; i++ {
		l, err := t.Loop(uint32(i))
		if err != nil {
			return err
		}
		encodeLoop(loopBuf, l)
	}
	if err := writeFile(threadFilePath(dir, groupID, uint32(t.ID), "loop.pallas"), loopBuf.Bytes()); err != nil {
		return err
	}

	checksum := threadChecksum(eventBuf.Bytes(), seqBuf.Bytes(), loopBuf.Bytes())

	hdr := ThreadHeader{
		ID:              uint32(t.ID),
		ParentArchiveID: groupID,
		NbEvents:        uint32(nbEvents),
		NbSequences:     uint32(nbSequences),
		NbLoops:         uint32(nbLoops),
		AttributeCodec:  uint8(opts.AttributeCodec),
		SideFileCodec:   uint8(opts.SideFileCodec),
		Checksum:        checksum,
	}

	return writeFile(threadHeaderPath(dir, groupID, uint32(t.ID)), hdr.Bytes())
}

// threadChecksum is the xxhash64 digest of a thread's three .pallas files
// concatenated in directory order, a per-section integrity check in the
// same spirit as a per-section CRC32.
func threadChecksum(event, seq, loop []byte) uint64 {
	buf := make([]byte, 0, len(event)+len(seq)+len(loop))
	buf = append(buf, event...)
	buf = append(buf, seq...)
	buf = append(buf, loop...)

	return hash.Checksum(buf)
}

func encodeEventSummary(buf *pool.ByteBuffer, s *summary.EventSummary, pipeline *codec.Pipeline, side *sideFile, opts writeOptions) error {
	var fixed [2 + 1]byte
	binary.LittleEndian.PutUint16(fixed[0:2], s.Event.Record)
	fixed[2] = s.Event.EventSize
	buf.Write(fixed[:])
	buf.Write(s.Event.Bytes())

	attrs := s.AttributeBufferBytes()
	var compressedAttrs []byte
	if len(attrs) > 0 {
		c, err := compress.GetCodec(opts.AttributeCodec)
		if err != nil {
			return err
		}
		compressedAttrs, err = c.Compress(attrs)
		if err != nil {
			return fmt.Errorf("%w: %v", errs.ErrStorageWrite, err)
		}
	}

	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(len(compressedAttrs)))
	buf.Write(sizeBuf[:])
	buf.Write(compressedAttrs)

	var occBuf [8]byte
	binary.LittleEndian.PutUint64(occBuf[:], s.NbOccurrences)
	buf.Write(occBuf[:])

	return writeDurationVector(buf, s.Durations, pipeline, side)
}

func encodeSequence(buf *pool.ByteBuffer, seq *token.Sequence, pipeline *codec.Pipeline, side *sideFile) error {
	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(len(seq.Tokens)))
	buf.Write(sizeBuf[:])

	for _, tok := range seq.Tokens {
		var tb [4]byte
		binary.LittleEndian.PutUint32(tb[:], uint32(tok))
		buf.Write(tb[:])
	}

	return writeDurationVector(buf, seq.Durations, pipeline, side)
}

func encodeLoop(buf *pool.ByteBuffer, l *token.Loop) {
	var repeated [4]byte
	binary.LittleEndian.PutUint32(repeated[:], uint32(l.RepeatedToken))
	buf.Write(repeated[:])

	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(len(l.NbIterations)))
	buf.Write(sizeBuf[:])

	for _, n := range l.NbIterations {
		var nb [4]byte
		binary.LittleEndian.PutUint32(nb[:], n)
		buf.Write(nb[:])
	}
}

// writeDurationVector appends dv's header inline to buf and, if dv has
// 2+ elements, its codec-encoded payload to side, recording the returned
// offset in the header.
func writeDurationVector(buf *pool.ByteBuffer, dv *lvec.LinkedDurationVector, pipeline *codec.Pipeline, side *sideFile) error {
	payload, err := dv.EncodePayload(pipeline)
	if err != nil {
		return err
	}

	var offset uint64
	if payload != nil {
		offset, err = side.Append(payload)
		if err != nil {
			return err
		}
	}

	hdr := dv.WriteHeader(offset)
	lenPrefix := make([]byte, 8)
	binary.LittleEndian.PutUint64(lenPrefix, uint64(len(hdr)))
	buf.Write(lenPrefix)
	buf.Write(hdr)

	return nil
}

// readDurationVector parses a header writeDurationVector wrote and wires
// its lazy loader to side.
func readDurationVector(r *bytes.Reader, pipeline *codec.Pipeline, side *sideFile) (*lvec.LinkedDurationVector, error) {
	var lenPrefix [8]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}

	hdr := make([]byte, binary.LittleEndian.Uint64(lenPrefix[:]))
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}

	return lvec.ParseLinkedDurationVectorHeader(hdr, lvec.DefaultChunkSize, side.ReadAt, pipeline)
}

// readThread reconstructs a Thread from disk, reading event/sequence/loop
// arrays eagerly (headers only; duration payloads stay lazy via the side
// files) and installing each array entry at its original id through
// Thread's Load* methods, bypassing the writer-side dedup search so ids
// come back exactly as Loop.RepeatedToken and Token references expect.
func readThread(dir string, groupID, threadID uint32, pipeline *codec.Pipeline, _ params.Parameters, log *slog.Logger) (*thread.Thread, error) {
	hdrBytes, err := os.ReadFile(threadHeaderPath(dir, groupID, threadID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}
	hdr, err := ParseThreadHeader(hdrBytes)
	if err != nil {
		return nil, err
	}

	t := thread.New(thread.ID(hdr.ID), log)
	attrCodec := compress.Algorithm(hdr.AttributeCodec)
	sideCodec := compress.Algorithm(hdr.SideFileCodec)

	durSide := openSideFileForRead(threadFilePath(dir, groupID, threadID, "event_durations.dat"), sideCodec)
	defer durSide.Close()

	eventBytes, err := os.ReadFile(threadFilePath(dir, groupID, threadID, "event.pallas"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}
	r := bytes.NewReader(eventBytes)
	for i := uint32(0); i < hdr.NbEvents; i++ {
		if err := decodeEventSummary(t, r, pipeline, durSide, attrCodec); err != nil {
			return nil, err
		}
	}

	seqSide := openSideFileForRead(threadFilePath(dir, groupID, threadID, "sequence_durations.dat"), sideCodec)
	defer seqSide.Close()

	seqBytes, err := os.ReadFile(threadFilePath(dir, groupID, threadID, "sequence.pallas"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}
	r = bytes.NewReader(seqBytes)
	for i := uint32(0); i < hdr.NbSequences; i++ {
		if err := decodeSequence(t, i, r, pipeline, seqSide); err != nil {
			return nil, err
		}
	}

	loopBytes, err := os.ReadFile(threadFilePath(dir, groupID, threadID, "loop.pallas"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}
	r = bytes.NewReader(loopBytes)
	for i := uint32(0); i < hdr.NbLoops; i++ {
		if err := decodeLoop(t, r); err != nil {
			return nil, err
		}
	}

	if got := threadChecksum(eventBytes, seqBytes, loopBytes); got != hdr.Checksum {
		return nil, fmt.Errorf("%w: thread %d content checksum mismatch", errs.ErrStorageRead, hdr.ID)
	}

	return t, nil
}

func decodeEventSummary(t *thread.Thread, r *bytes.Reader, pipeline *codec.Pipeline, side *sideFile, attrCodec compress.Algorithm) error {
	var fixed [3]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}
	record := binary.LittleEndian.Uint16(fixed[0:2])
	size := fixed[2]

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}

	var sizeBuf [8]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}
	attrLen := binary.LittleEndian.Uint64(sizeBuf[:])

	var attrs []byte
	if attrLen > 0 {
		compressed := make([]byte, attrLen)
		if _, err := io.ReadFull(r, compressed); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
		}

		c, err := compress.GetCodec(attrCodec)
		if err != nil {
			return err
		}
		attrs, err = c.Decompress(compressed)
		if err != nil {
			return fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
		}
	}

	var occBuf [8]byte
	if _, err := io.ReadFull(r, occBuf[:]); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}
	nbOccurrences := binary.LittleEndian.Uint64(occBuf[:])

	dv, err := readDurationVector(r, pipeline, side)
	if err != nil {
		return err
	}

	ev := token.Event{Record: record, EventSize: size, Payload: payload}
	s := t.LoadEvent(ev)
	s.Durations = dv
	s.NbOccurrences = nbOccurrences
	// attrs is the summary's framed log: per record an 8-byte occurrence,
	// a 4-byte length, then the payload. Replay each record as written.
	for pos := 0; pos+8+4 <= len(attrs); {
		occ := binary.LittleEndian.Uint64(attrs[pos : pos+8])
		n := int(binary.LittleEndian.Uint32(attrs[pos+8 : pos+12]))
		pos += 8 + 4
		if pos+n > len(attrs) {
			return fmt.Errorf("%w: truncated attribute record", errs.ErrStorageRead)
		}
		s.AppendAttributes(occ, attrs[pos:pos+n])
		pos += n
	}

	return nil
}

func decodeSequence(t *thread.Thread, id uint32, r *bytes.Reader, pipeline *codec.Pipeline, side *sideFile) error {
	var sizeBuf [8]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}
	size := binary.LittleEndian.Uint64(sizeBuf[:])

	tokens := make([]token.Token, size)
	for i := range tokens {
		var tb [4]byte
		if _, err := io.ReadFull(r, tb[:]); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
		}
		tokens[i] = token.Token(binary.LittleEndian.Uint32(tb[:]))
	}

	dv, err := readDurationVector(r, pipeline, side)
	if err != nil {
		return err
	}

	seq := t.LoadSequence(id, 0, tokens)
	seq.Durations = dv

	return nil
}

func decodeLoop(t *thread.Thread, r *bytes.Reader) error {
	var repeated [4]byte
	if _, err := io.ReadFull(r, repeated[:]); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}
	repeatedToken := token.Token(binary.LittleEndian.Uint32(repeated[:]))

	var sizeBuf [8]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}
	size := binary.LittleEndian.Uint64(sizeBuf[:])

	iterations := make([]uint32, size)
	for i := range iterations {
		var nb [4]byte
		if _, err := io.ReadFull(r, nb[:]); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
		}
		iterations[i] = binary.LittleEndian.Uint32(nb[:])
	}

	l := t.NewLoop(repeatedToken)
	l.NbIterations = iterations

	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorageWrite, err)
	}

	return nil
}
