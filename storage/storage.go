// Package storage implements Pallas's on-disk layout: writing a
// GlobalArchive's definition tables and per-thread grammar arrays to a
// directory tree, and reopening that tree lazily for reading.
//
// Layout:
//
//	<dir>/<trace_name>.pallas
//	<dir>/string.dat, regions.dat, attributes.dat, groups.dat, comms.dat, location_groups.dat, locations.dat
//	<dir>/archive_<id>/archive.pallas
//	<dir>/archive_<id>/string.dat ...
//	<dir>/archive_<id>/thread_<tid>/thread.pallas
//	<dir>/archive_<id>/thread_<tid>/event.pallas
//	<dir>/archive_<id>/thread_<tid>/event_durations.dat
//	<dir>/archive_<id>/thread_<tid>/sequence.pallas
//	<dir>/archive_<id>/thread_<tid>/sequence_durations.dat
//	<dir>/archive_<id>/thread_<tid>/loop.pallas
package storage

import (
	"fmt"
	"path/filepath"
)

// ABIVersion is the compile-time format version stamped into every global
// header, a single byte; readers refuse anything else.
const ABIVersion = 1

func traceHeaderPath(dir, traceName string) string {
	return filepath.Join(dir, traceName+".pallas")
}

func globalDefFilePath(dir, name string) string {
	return filepath.Join(dir, name)
}

func archiveDir(dir string, groupID uint32) string {
	return filepath.Join(dir, fmt.Sprintf("archive_%d", groupID))
}

func archiveHeaderPath(dir string, groupID uint32) string {
	return filepath.Join(archiveDir(dir, groupID), "archive.pallas")
}

func archiveDefFilePath(dir string, groupID uint32, name string) string {
	return filepath.Join(archiveDir(dir, groupID), name)
}

func threadDir(dir string, groupID uint32, threadID uint32) string {
	return filepath.Join(archiveDir(dir, groupID), fmt.Sprintf("thread_%d", threadID))
}

func threadHeaderPath(dir string, groupID, threadID uint32) string {
	return filepath.Join(threadDir(dir, groupID, threadID), "thread.pallas")
}

func threadFilePath(dir string, groupID, threadID uint32, name string) string {
	return filepath.Join(threadDir(dir, groupID, threadID), name)
}
