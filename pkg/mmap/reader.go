// Package mmap maps local files into memory for read-only scanning.
package mmap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrUnsupported is returned on platforms without mmap support.
var ErrUnsupported = errors.New("mmap: not supported on this platform")

// ErrEmpty is returned for zero-length files, which cannot be mapped.
var ErrEmpty = errors.New("mmap: file is empty")

// File is a read-only memory mapping of a whole file.
type File struct {
	mu       sync.RWMutex
	file     *os.File
	data     []byte
	pageSize int
}

// Open maps path into memory and advises the kernel that it will be read
// sequentially.
func Open(path string) (*File, error) {
	if !Supported {
		return nil, ErrUnsupported
	}

	file, err := os.Open(path) //nolint:gosec // G304: path is the file the caller asked to read
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.Size() == 0 {
		file.Close()
		return nil, ErrEmpty
	}

	data, err := mmap(int(file.Fd()), 0, int(stat.Size()), ProtRead, MapShared)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}

	// Advisory only.
	_ = madvise(data, MadvSequential)

	return &File{file: file, data: data, pageSize: os.Getpagesize()}, nil
}

// Size returns the mapped length.
func (m *File) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data))
}

// ReadAt implements io.ReaderAt over the mapping.
func (m *File) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.data == nil {
		return 0, os.ErrClosed
	}
	if off < 0 || off > int64(len(m.data)) {
		return 0, fmt.Errorf("mmap: offset %d out of range [0, %d]", off, len(m.data))
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// NewReader returns a reader over the mapping starting at offset. Pages
// ahead of offset are prefetched.
func (m *File) NewReader(offset int64) (io.Reader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.data == nil {
		return nil, os.ErrClosed
	}
	if offset < 0 || offset > int64(len(m.data)) {
		return nil, fmt.Errorf("mmap: offset %d out of range [0, %d]", offset, len(m.data))
	}
	m.prefetch(offset, offset+int64(16*m.pageSize))
	return bytes.NewReader(m.data[offset:]), nil
}

// prefetch asks the kernel to page in [start, end).
func (m *File) prefetch(start, end int64) {
	size := int64(len(m.data))
	page := int64(m.pageSize)
	start = (start / page) * page
	if end > size {
		end = size
	}
	if end <= start {
		return
	}
	_ = madvise(m.data[start:end], MadvWillneed)
}

// Close unmaps and closes the file. It is safe to call more than once.
func (m *File) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.data != nil {
		err = munmap(m.data)
		m.data = nil
	}
	if m.file != nil {
		if closeErr := m.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		m.file = nil
	}
	return err
}
