// Package summary implements EventSummary, the per-distinct-event
// template and statistics record a Thread keeps one of per unique Event
// byte pattern.
package summary

import (
	"encoding/binary"

	"github.com/pallas-trace/pallas/errs"
	"github.com/pallas-trace/pallas/lvec"
	"github.com/pallas-trace/pallas/token"
)

// EventSummary holds the template bytes, occurrence count, per-occurrence
// duration history, and attribute log for one distinct Event.
type EventSummary struct {
	ID    uint32
	Event token.Event

	NbOccurrences uint64
	Durations     *lvec.LinkedDurationVector

	// attributeBuffer is an append-only log of variable-size AttributeList
	// records, each stamped with the occurrence index it belongs to so a
	// reader can binary-advance to a specific occurrence without
	// replaying the whole log.
	attributeBuffer []byte
	attributePos    uint64
}

// New creates a writer-owned EventSummary for the given deduped id and
// template.
func New(id uint32, event token.Event) *EventSummary {
	return &EventSummary{
		ID:        id,
		Event:     event,
		Durations: lvec.NewDurationVector(0),
	}
}

// RecordOccurrence increments the occurrence counter and appends a raw
// enter timestamp as the new provisional duration cell, returning a
// handle the writer later back-patches once the matching leave arrives.
func (s *EventSummary) RecordOccurrence(rawTimestamp uint64) lvec.Handle {
	s.NbOccurrences++

	return s.Durations.Add(rawTimestamp)
}

// attributeRecordHeader is the fixed prefix stamped on every attribute
// record: which occurrence it belongs to, and how many bytes of
// attribute-list payload follow.
type attributeRecordHeader struct {
	Occurrence uint64
	Length     uint32
}

const attributeHeaderSize = 8 + 4

// AppendAttributes appends a new AttributeList payload for the given
// occurrence index to the append-only log.
func (s *EventSummary) AppendAttributes(occurrence uint64, payload []byte) {
	var hdr [attributeHeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[0:8], occurrence)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(payload)))

	s.attributeBuffer = append(s.attributeBuffer, hdr[:]...)
	s.attributeBuffer = append(s.attributeBuffer, payload...)
	s.attributePos += uint64(attributeHeaderSize + len(payload))
}

// AttributesForOccurrence scans the attribute log forward for the record
// stamped with the given occurrence index, returning its payload. Returns
// errs.ErrDefinitionNotFound if no record was ever appended for it.
func (s *EventSummary) AttributesForOccurrence(occurrence uint64) ([]byte, error) {
	pos := 0
	for pos+attributeHeaderSize <= len(s.attributeBuffer) {
		occ := binary.LittleEndian.Uint64(s.attributeBuffer[pos : pos+8])
		length := binary.LittleEndian.Uint32(s.attributeBuffer[pos+8 : pos+12])
		pos += attributeHeaderSize

		if occ == occurrence {
			return s.attributeBuffer[pos : pos+int(length)], nil
		}
		pos += int(length)
	}

	return nil, errs.ErrDefinitionNotFound
}

// AttributeBufferSize returns the number of bytes appended to the
// attribute log so far, used by the storage engine to frame it on disk.
func (s *EventSummary) AttributeBufferSize() uint64 { return s.attributePos }

// AttributeBufferBytes returns the raw attribute log for serialization.
func (s *EventSummary) AttributeBufferBytes() []byte { return s.attributeBuffer }
