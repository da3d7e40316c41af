// Package pallas provides a compressed, HPC-scale trace storage format:
// execution traces are recorded as per-thread grammars (events, repeated
// sequences, run-length-encoded loops) rather than flat event logs,
// keeping both on-disk size and replay cost close to the size of the
// program's control flow instead of its full execution length.
//
// # Basic usage
//
// Recording a trace:
//
//	ga := archive.NewGlobalArchive(nil)
//	ga.AddString(1, "main")
//	ga.DefineLocationGroup(100, "node0", 0, false)
//	ga.DefineLocation(1, "thread0", 100)
//
//	a := ga.NewArchive(100)
//	th := thread.New(1, nil)
//	// ... th.GetEventID / th.GetSequenceIDFromArray / th.NewLoop as tokens arrive ...
//	a.AdoptThread(th)
//
//	err := pallas.Write(ga, dir, "trace1", params.Default())
//
// Reopening and replaying it:
//
//	ga, err := pallas.Open(dir, "trace1", nil)
//	th := ga.Archives()[0].Threads()[0]
//	r := pallas.NewReader(th, nil)
//	for !r.AtEnd() {
//	    tok, err := r.MoveToNextToken(reader.UnrollAll)
//	    // ...
//	}
//
// # Package structure
//
// This package is a thin set of top-level re-exports around the
// lower-level packages that do the actual work: archive (in-memory trace
// model), thread (per-thread event/sequence/loop grammar), storage (disk
// layout, read/write), reader (grammar traversal and occurrence lookup),
// and params/codec/compress (encoding configuration). Use those packages
// directly for anything beyond the common Write/Open/NewReader path.
package pallas

import (
	"log/slog"

	"github.com/pallas-trace/pallas/archive"
	"github.com/pallas-trace/pallas/params"
	"github.com/pallas-trace/pallas/reader"
	"github.com/pallas-trace/pallas/storage"
	"github.com/pallas-trace/pallas/thread"
)

// Write serializes ga to dir under traceName, following the given
// parameters and storage's default attribute/side-file compression. For
// non-default compression (storage.WithAttributeCompression,
// storage.WithSideFileCompression), call storage.Write directly.
func Write(ga *archive.GlobalArchive, dir, traceName string, p params.Parameters) error {
	return storage.Write(ga, dir, traceName, p)
}

// Open reopens a trace previously written with Write. log defaults to
// slog.Default() if nil.
func Open(dir, traceName string, log *slog.Logger) (*archive.GlobalArchive, error) {
	return storage.Open(dir, traceName, log)
}

// NewReader creates a ThreadReader positioned at the start of th's root
// sequence. log defaults to slog.Default() if nil.
func NewReader(th *thread.Thread, log *slog.Logger) *reader.ThreadReader {
	return reader.New(th, log)
}
