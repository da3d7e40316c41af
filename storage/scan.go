package storage

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pallas-trace/pallas/errs"
)

// listArchiveDirs lists every archive_<id> directory under dir, returning
// the ids sorted ascending so Open replays archives in a deterministic
// order.
func listArchiveDirs(dir string) ([]uint32, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}

	var ids []uint32
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, ok := parsePrefixedID(e.Name(), "archive_")
		if !ok {
			continue
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

// listThreadDirs lists every thread_<id> directory under an archive's
// directory, sorted ascending.
func listThreadDirs(dir string, groupID uint32) ([]uint32, error) {
	entries, err := os.ReadDir(archiveDir(dir, groupID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}

	var ids []uint32
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, ok := parsePrefixedID(e.Name(), "thread_")
		if !ok {
			continue
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

func parsePrefixedID(name, prefix string) (uint32, bool) {
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}

	n, err := strconv.ParseUint(name[len(prefix):], 10, 32)
	if err != nil {
		return 0, false
	}

	return uint32(n), true
}
