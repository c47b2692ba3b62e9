//go:build linux

package mmap

import (
	"syscall"
)

// Supported reports whether Open can map files on this platform.
const Supported = true

func mmap(fd int, offset int64, length int, prot int, flags int) ([]byte, error) {
	return syscall.Mmap(fd, offset, length, prot, flags)
}

func munmap(b []byte) error {
	return syscall.Munmap(b)
}

func madvise(b []byte, advice int) error {
	return syscall.Madvise(b, advice)
}

const (
	ProtRead       = syscall.PROT_READ       //nolint:stylecheck
	MapShared      = syscall.MAP_SHARED      //nolint:stylecheck
	MadvSequential = syscall.MADV_SEQUENTIAL //nolint:stylecheck
	MadvWillneed   = syscall.MADV_WILLNEED   //nolint:stylecheck
)
