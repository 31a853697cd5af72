//go:build !unix && !windows

package arena

import "unsafe"

// Without a mapping primitive the region is ordinary Go memory. It is never
// moved by the collector, so addresses stay stable for the arena's lifetime.
func reserve(size int) ([]byte, func([]byte) error, error) {
	return make([]byte, size), nil, nil
}

func baseOf(mem []byte) uintptr { return uintptr(unsafe.Pointer(unsafe.SliceData(mem))) }
