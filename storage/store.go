package storage

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pallas-trace/pallas/archive"
	"github.com/pallas-trace/pallas/codec"
	"github.com/pallas-trace/pallas/errs"
	"github.com/pallas-trace/pallas/internal/options"
	"github.com/pallas-trace/pallas/params"
)

// Write persists ga and every Archive/Thread it owns to dir, creating
// <trace_name>.pallas plus the directory tree described in the package
// doc comment. It treats any I/O failure as fatal to the whole operation:
// a partially written tree is never silently accepted as success.
func Write(ga *archive.GlobalArchive, dir, traceName string, p params.Parameters, opts ...options.Option[*writeOptions]) error {
	o := defaultWriteOptions()
	if err := options.Apply(&o, opts...); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorageOpen, err)
	}

	if err := writeGlobalDefs(ga, dir); err != nil {
		return err
	}

	pipeline := codec.New(p)
	archives := ga.Archives()

	for _, a := range archives {
		if err := writeArchive(dir, a, pipeline, o); err != nil {
			return err
		}
	}

	hdr := GlobalHeader{
		GroupID:            0,
		ABIVersion:         ABIVersion,
		Params:             p,
		StringCount:        uint32(len(ga.Strings())),
		RegionCount:        uint32(len(ga.Regions())),
		AttributeCount:     uint32(len(ga.Attributes())),
		LocationGroupCount: uint32(len(ga.LocationGroups())),
		LocationCount:      uint32(len(ga.Locations())),
		NbThreads:          uint32(totalThreads(archives)),
	}

	return writeFile(traceHeaderPath(dir, traceName), hdr.Bytes())
}

func writeArchive(dir string, a *archive.Archive, pipeline *codec.Pipeline, o writeOptions) error {
	ad := archiveDir(dir, a.GroupID)
	if err := os.MkdirAll(ad, 0o755); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorageOpen, err)
	}

	if err := writeArchiveDefs(a, dir); err != nil {
		return err
	}

	threads := a.Threads()
	for _, t := range threads {
		if err := writeThread(dir, a.GroupID, t, pipeline, o); err != nil {
			return err
		}
	}

	hdr := ArchiveHeader{
		GroupID:        a.GroupID,
		StringCount:    uint32(len(a.Strings())),
		RegionCount:    uint32(len(a.Regions())),
		AttributeCount: uint32(len(a.Attributes())),
		GroupCount:     uint32(len(a.Groups())),
		CommCount:      uint32(len(a.Comms())),
		NbThreads:      uint32(len(threads)),
	}

	return writeFile(archiveHeaderPath(dir, a.GroupID), hdr.Bytes())
}

func totalThreads(archives []*archive.Archive) int {
	n := 0
	for _, a := range archives {
		n += len(a.Threads())
	}

	return n
}

// Open reopens a trace written by Write: the global header, every global
// and process-local definition table, and every thread's grammar arrays
// (duration payloads stay lazy, loaded on first access via their
// side-files).
func Open(dir, traceName string, log *slog.Logger) (*archive.GlobalArchive, error) {
	hdrBytes, err := os.ReadFile(traceHeaderPath(dir, traceName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}
	hdr, err := ParseGlobalHeader(hdrBytes)
	if err != nil {
		return nil, err
	}

	ga := archive.NewGlobalArchive(log)
	if err := readGlobalDefs(ga, dir); err != nil {
		return nil, err
	}

	pipeline := codec.New(hdr.Params)

	groupIDs, err := listArchiveDirs(dir)
	if err != nil {
		return nil, err
	}

	for _, groupID := range groupIDs {
		if err := openArchive(ga, dir, groupID, pipeline, hdr.Params, log); err != nil {
			return nil, err
		}
	}

	return ga, nil
}

func openArchive(ga *archive.GlobalArchive, dir string, groupID uint32, pipeline *codec.Pipeline, p params.Parameters, log *slog.Logger) error {
	ahdrBytes, err := os.ReadFile(archiveHeaderPath(dir, groupID))
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}
	if _, err := ParseArchiveHeader(ahdrBytes); err != nil {
		return err
	}

	a := ga.NewArchive(groupID)
	if err := readArchiveDefs(a, dir, groupID); err != nil {
		return err
	}

	threadIDs, err := listThreadDirs(dir, groupID)
	if err != nil {
		return err
	}

	for _, tid := range threadIDs {
		t, err := readThread(dir, groupID, tid, pipeline, p, log)
		if err != nil {
			return err
		}

		a.AdoptThread(t)
	}

	return nil
}
