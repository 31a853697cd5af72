//go:build windows

package arena

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func reserve(size int) ([]byte, func([]byte) error, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, nil, err
	}
	mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	release := func(b []byte) error {
		return windows.VirtualFree(baseOf(b), 0, windows.MEM_RELEASE)
	}
	return mem, release, nil
}

func baseOf(mem []byte) uintptr { return uintptr(unsafe.Pointer(unsafe.SliceData(mem))) }
