//go:build !linux

package allocator

// mapRegion falls back to the Go heap. The runtime aborts the process when
// the heap cannot grow, so ErrOutOfMemory is only reported through WithLimit
// on these platforms.
func mapRegion(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func unmapRegion([]byte) error {
	return nil
}
