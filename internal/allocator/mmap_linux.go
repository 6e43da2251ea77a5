//go:build linux

package allocator

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Replaced in tests.
var (
	mmap   = unix.Mmap
	munmap = unix.Munmap
)

// mapRegion maps size bytes of anonymous private memory. Exhaustion of the
// address space or of the overcommit budget is reported as ErrOutOfMemory.
func mapRegion(size int) ([]byte, error) {
	b, err := mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		if errors.Is(err, unix.ENOMEM) {
			return nil, fmt.Errorf("%w: mmap %d bytes: %v", ErrOutOfMemory, size, err)
		}
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	return b, nil
}

func unmapRegion(b []byte) error {
	return munmap(b)
}
