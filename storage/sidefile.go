package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pallas-trace/pallas/compress"
	"github.com/pallas-trace/pallas/errs"
)

// sideFile is one append-only duration payload file
// (event_durations.dat or sequence_durations.dat).
// A writer appends length-prefixed frames sequentially; a reader fetches
// one frame at a remembered offset, reopening the underlying file once on
// a transient error (missing file, closed handle) before giving up.
type sideFile struct {
	path string
	algo compress.Algorithm

	mu   sync.Mutex
	file *os.File
}

// createSideFileForWrite creates (truncating) path for sequential frame
// appends.
func createSideFileForWrite(path string, algo compress.Algorithm) (*sideFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageOpen, err)
	}

	return &sideFile{path: path, algo: algo, file: f}, nil
}

// openSideFileForRead prepares a lazy reader over an existing path. The
// file itself isn't opened until the first Read call.
func openSideFileForRead(path string, algo compress.Algorithm) *sideFile {
	return &sideFile{path: path, algo: algo}
}

// Append compresses payload with the side-file's configured transport
// algorithm (set via WithSideFileCompression, applied on top of the
// codec pipeline's own stage) and writes it as a length-prefixed frame,
// returning the frame's start offset for later use as a LinkedVector
// header's value offset.
func (sf *sideFile) Append(payload []byte) (uint64, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	codec, err := compress.GetCodec(sf.algo)
	if err != nil {
		return 0, err
	}

	framed, err := codec.Compress(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrStorageWrite, err)
	}

	offset, err := sf.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrStorageWrite, err)
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(framed)))

	if _, err := sf.file.Write(lenBuf[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrStorageWrite, err)
	}
	if _, err := sf.file.Write(framed); err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrStorageWrite, err)
	}

	return uint64(offset), nil
}

// ReadAt reads the frame starting at offset and returns its decompressed
// payload, the raw bytes a codec.Pipeline.Decode call expects.
func (sf *sideFile) ReadAt(offset uint64) ([]byte, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	data, err := sf.readAtLocked(offset)
	if err == nil {
		return data, nil
	}
	if !isTransient(err) {
		return nil, err
	}

	// Reopen once and retry.
	if sf.file != nil {
		sf.file.Close()
		sf.file = nil
	}

	return sf.readAtLocked(offset)
}

func (sf *sideFile) readAtLocked(offset uint64) ([]byte, error) {
	if sf.file == nil {
		f, err := os.Open(sf.path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
		}
		sf.file = f
	}

	var lenBuf [4]byte
	if _, err := sf.file.ReadAt(lenBuf[:], int64(offset)); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}

	n := binary.LittleEndian.Uint32(lenBuf[:])
	framed := make([]byte, n)
	if _, err := sf.file.ReadAt(framed, int64(offset)+4); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}

	codec, err := compress.GetCodec(sf.algo)
	if err != nil {
		return nil, err
	}

	payload, err := codec.Decompress(framed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageRead, err)
	}

	return payload, nil
}

// Close releases the underlying file handle, if open.
func (sf *sideFile) Close() error {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	if sf.file == nil {
		return nil
	}

	err := sf.file.Close()
	sf.file = nil

	return err
}

// isTransient reports whether err looks like a missing-file or
// file-closed condition worth a one-shot reopen, as opposed to a genuine
// corruption or permissions error.
func isTransient(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, os.ErrNotExist) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
