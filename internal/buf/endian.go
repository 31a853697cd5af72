// Package buf contains little-endian accessors for in-arena structures.
//
// Everything the redirection layer lays out in engine memory (block headers,
// Local* headers, critical-section debug blocks, trampoline slots) is read
// and written through these helpers so the layout code never indexes raw
// bytes by hand.
package buf

import (
	"encoding/binary"
	"unsafe"
)

// PtrSize is the width of a pointer on the build target.
const PtrSize = int(unsafe.Sizeof(uintptr(0)))

// U16LE reads a little-endian uint16 from b. Returns 0 when b is too short.
func U16LE(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32LE reads a little-endian uint32 from b. Returns 0 when b is too short.
func U32LE(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U64LE reads a little-endian uint64 from b. Returns 0 when b is too short.
func U64LE(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Uintptr reads a pointer-sized little-endian word from b.
func Uintptr(b []byte) uintptr {
	if PtrSize == 8 {
		return uintptr(U64LE(b))
	}
	return uintptr(U32LE(b))
}

// PutU16LE writes v to b. It is a no-op when b is too short.
func PutU16LE(b []byte, v uint16) {
	if len(b) >= 2 {
		binary.LittleEndian.PutUint16(b, v)
	}
}

// PutU32LE writes v to b. It is a no-op when b is too short.
func PutU32LE(b []byte, v uint32) {
	if len(b) >= 4 {
		binary.LittleEndian.PutUint32(b, v)
	}
}

// PutU64LE writes v to b. It is a no-op when b is too short.
func PutU64LE(b []byte, v uint64) {
	if len(b) >= 8 {
		binary.LittleEndian.PutUint64(b, v)
	}
}

// PutUintptr writes a pointer-sized word to b.
func PutUintptr(b []byte, v uintptr) {
	if PtrSize == 8 {
		PutU64LE(b, uint64(v))
		return
	}
	PutU32LE(b, uint32(v))
}

// Word returns the i-th pointer-sized word of b.
func Word(b []byte, i int) uintptr {
	s, ok := Slice(b, i*PtrSize, PtrSize)
	if !ok {
		return 0
	}
	return Uintptr(s)
}

// PutWord sets the i-th pointer-sized word of b.
func PutWord(b []byte, i int, v uintptr) {
	if s, ok := Slice(b, i*PtrSize, PtrSize); ok {
		PutUintptr(s, v)
	}
}
