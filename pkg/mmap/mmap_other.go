//go:build !linux && !darwin

package mmap

// Supported reports whether Open can map files on this platform.
const Supported = false

func mmap(int, int64, int, int, int) ([]byte, error) { return nil, ErrUnsupported }

func munmap([]byte) error { return nil }

func madvise([]byte, int) error { return nil }

const (
	ProtRead       = 0
	MapShared      = 0
	MadvSequential = 0
	MadvWillneed   = 0
)
