//go:build darwin

package mmap

import (
	"syscall"
	"unsafe"
)

// Supported reports whether Open can map files on this platform.
const Supported = true

func mmap(fd int, offset int64, length int, prot int, flags int) ([]byte, error) {
	return syscall.Mmap(fd, offset, length, prot, flags)
}

func munmap(b []byte) error {
	return syscall.Munmap(b)
}

// madvise calls the syscall directly; the darwin syscall package has no
// wrapper.
func madvise(b []byte, advice int) error {
	_, _, err := syscall.Syscall(syscall.SYS_MADVISE, uintptr(unsafe.Pointer(&b[0])), uintptr(len(b)), uintptr(advice))
	if err != 0 {
		return err
	}
	return nil
}

const (
	ProtRead  = syscall.PROT_READ  //nolint:stylecheck
	MapShared = syscall.MAP_SHARED //nolint:stylecheck

	MadvSequential = 2 //nolint:stylecheck
	MadvWillneed   = 3 //nolint:stylecheck
)
