// Package local implements the legacy LocalAlloc family (and GlobalAlloc,
// which kernel32 builds on it) over the isolated process heap.
//
// Every handle is the address just past a private header:
//
//	+0          alloc      separate block, or back-pointer for a separate block
//	+PtrSize    flags      LMEM_* bits, low 16 only
//	+PtrSize+2  lockCount  movable blocks only
//	+PtrSize+4  kind       primary or separate
//
// A movable block that grows gets a separate allocation holding the payload
// while the handle stays put. Fixed blocks never move.
package local

import (
	"sync"

	"github.com/joshuapare/winredir/internal/buf"
	"github.com/joshuapare/winredir/internal/logger"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/arena"
	"github.com/joshuapare/winredir/redir/heap"
	"github.com/joshuapare/winredir/redir/teb"
)

const (
	// HeaderSize precedes every payload; it keeps payloads arena-aligned.
	HeaderSize = uintptr((buf.PtrSize + 8 + arena.Align - 1) &^ (arena.Align - 1))

	offFlags = buf.PtrSize
	offLock  = buf.PtrSize + 2
	offKind  = buf.PtrSize + 4

	// discardedBit is internal state; it lives outside LMEM_VALID_FLAGS.
	discardedBit = types.LMEM_DISCARDED
)

type kind uint16

const (
	kindPrimary  kind = 0x4C50 // "PL"
	kindSeparate kind = 0x4C53 // "SL"
)

type header struct {
	addr      uintptr // payload address the header precedes
	alloc     uintptr
	flags     uint16
	lockCount uint16
	kind      kind
}

func (h *header) movable() bool   { return h.flags&types.LMEM_MOVEABLE != 0 }
func (h *header) discarded() bool { return h.flags&discardedBit != 0 }

// Allocator is the Local*/Global* implementation for one isolation domain.
type Allocator struct {
	mu   sync.Mutex
	heap *heap.Shim
}

// New returns an allocator over the isolated process heap of h.
func New(h *heap.Shim) *Allocator {
	return &Allocator{heap: h}
}

func (a *Allocator) load(p uintptr) (*header, bool) {
	if p < HeaderSize {
		return nil, false
	}
	if a.heap.Enabled() && !a.heap.Owns(p-HeaderSize) {
		return nil, false
	}
	if a.heap.Size(a.heap.ProcessHeap(), 0, p-HeaderSize) == ^uintptr(0) {
		return nil, false
	}
	b, err := a.heap.Bytes(p-HeaderSize, int(HeaderSize))
	if err != nil {
		return nil, false
	}
	h := &header{
		addr:      p,
		alloc:     buf.Word(b, 0),
		flags:     buf.U16LE(b[offFlags:]),
		lockCount: buf.U16LE(b[offLock:]),
		kind:      kind(buf.U16LE(b[offKind:])),
	}
	if h.kind != kindPrimary && h.kind != kindSeparate {
		return nil, false
	}
	return h, true
}

func (a *Allocator) store(h *header) {
	b, err := a.heap.Bytes(h.addr-HeaderSize, int(HeaderSize))
	if err != nil {
		return
	}
	buf.PutWord(b, 0, h.alloc)
	buf.PutU16LE(b[offFlags:], h.flags)
	buf.PutU16LE(b[offLock:], h.lockCount)
	buf.PutU16LE(b[offKind:], uint16(h.kind))
}

// primary resolves a handle or a separate block's payload address to the
// primary header.
func (a *Allocator) primary(p uintptr) (*header, bool) {
	h, ok := a.load(p)
	if !ok {
		return nil, false
	}
	if h.kind == kindSeparate {
		return a.load(h.alloc)
	}
	return h, true
}

// payload returns the address currently holding the user data.
func (h *header) payload() uintptr {
	if h.alloc != 0 {
		return h.alloc
	}
	return h.addr
}

func (a *Allocator) newBlock(flags uint32, bytes uintptr, k kind) uintptr {
	var hf uint32
	if flags&types.LMEM_ZEROINIT != 0 {
		hf = types.HEAP_ZERO_MEMORY
	}
	blk := a.heap.Alloc(a.heap.ProcessHeap(), hf, HeaderSize+bytes)
	if blk == 0 {
		return 0
	}
	a.store(&header{addr: blk + HeaderSize, kind: k})
	return blk + HeaderSize
}

func (a *Allocator) size(p uintptr) uintptr {
	n := a.heap.Size(a.heap.ProcessHeap(), 0, p-HeaderSize)
	if n == ^uintptr(0) || n < HeaderSize {
		return 0
	}
	return n - HeaderSize
}

func (a *Allocator) free(p uintptr) {
	a.heap.Free(a.heap.ProcessHeap(), 0, p-HeaderSize)
}

// Alloc is LocalAlloc.
func (a *Allocator) Alloc(t *teb.Thread, flags uint32, bytes uintptr) uintptr {
	if flags&^0xFFFF != 0 || flags&^types.LMEM_VALID_FLAGS != 0 {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.newBlock(flags, bytes, kindPrimary)
	if p == 0 {
		t.SetLastError(types.ERROR_NOT_ENOUGH_MEMORY)
		return 0
	}
	h := &header{addr: p, flags: uint16(flags &^ types.LMEM_ZEROINIT), kind: kindPrimary}
	if h.movable() && bytes == 0 {
		h.flags |= types.LMEM_DISCARDABLE | discardedBit
	}
	a.store(h)
	logger.WithFn("LocalAlloc").WithField("ptr", p).WithField("size", bytes).Debug("redirected")
	return p
}

// Free is LocalFree. It returns 0 on success and the handle on failure.
func (a *Allocator) Free(t *teb.Thread, hmem uintptr) uintptr {
	if hmem == 0 {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	h, ok := a.primary(hmem)
	if !ok {
		t.SetLastError(types.ERROR_INVALID_HANDLE)
		return hmem
	}
	if h.alloc != 0 {
		a.free(h.alloc)
	}
	h.kind = 0
	a.store(h)
	a.free(h.addr)
	return 0
}

// ReAlloc is LocalReAlloc.
func (a *Allocator) ReAlloc(t *teb.Thread, hmem, bytes uintptr, flags uint32) uintptr {
	if flags&^0xFFFF != 0 {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	h, ok := a.primary(hmem)
	if !ok {
		t.SetLastError(types.ERROR_INVALID_HANDLE)
		return 0
	}

	if flags&types.LMEM_MODIFY != 0 {
		return a.modify(t, h, flags)
	}
	if !h.movable() || h.lockCount > 0 {
		return a.reallocFixed(t, h, bytes, flags)
	}
	if bytes == 0 {
		return a.discard(h)
	}
	return a.reallocSeparate(t, h, bytes, flags)
}

func (a *Allocator) modify(t *teb.Thread, h *header, flags uint32) uintptr {
	want := uint16(flags &^ (types.LMEM_MODIFY | types.LMEM_ZEROINIT))
	if h.alloc != 0 && h.movable() && want&types.LMEM_MOVEABLE == 0 {
		// The payload lives elsewhere; a fixed handle must be the payload.
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return 0
	}
	if h.movable() {
		want |= types.LMEM_MOVEABLE
	}
	h.flags = h.flags&discardedBit | want
	a.store(h)
	return h.addr
}

func (a *Allocator) reallocFixed(t *teb.Thread, h *header, bytes uintptr, flags uint32) uintptr {
	target := h.payload()
	old := a.size(target)
	var hf uint32 = types.HEAP_REALLOC_IN_PLACE_ONLY
	if flags&types.LMEM_ZEROINIT != 0 {
		hf |= types.HEAP_ZERO_MEMORY
	}
	if !h.movable() && h.alloc == 0 && flags&types.LMEM_MOVEABLE != 0 {
		// A fixed block may move when the caller allows it.
		hf &^= types.HEAP_REALLOC_IN_PLACE_ONLY
	}
	blk := a.heap.ReAlloc(a.heap.ProcessHeap(), hf, target-HeaderSize, HeaderSize+bytes)
	if blk == 0 {
		t.SetLastError(types.ERROR_NOT_ENOUGH_MEMORY)
		return 0
	}
	logger.WithFn("LocalReAlloc").WithField("ptr", target).WithField("old", old).WithField("size", bytes).Debug("fixed")
	if blk+HeaderSize != target {
		return blk + HeaderSize
	}
	return h.addr
}

func (a *Allocator) discard(h *header) uintptr {
	if h.alloc != 0 {
		a.free(h.alloc)
		h.alloc = 0
	}
	a.heap.ReAlloc(a.heap.ProcessHeap(), types.HEAP_REALLOC_IN_PLACE_ONLY, h.addr-HeaderSize, HeaderSize)
	h.flags |= types.LMEM_DISCARDABLE | discardedBit
	a.store(h)
	return h.addr
}

func (a *Allocator) reallocSeparate(t *teb.Thread, h *header, bytes uintptr, flags uint32) uintptr {
	var hf uint32
	if flags&types.LMEM_ZEROINIT != 0 {
		hf = types.HEAP_ZERO_MEMORY
	}
	if h.alloc != 0 {
		blk := a.heap.ReAlloc(a.heap.ProcessHeap(), hf, h.alloc-HeaderSize, HeaderSize+bytes)
		if blk == 0 {
			t.SetLastError(types.ERROR_NOT_ENOUGH_MEMORY)
			return 0
		}
		h.alloc = blk + HeaderSize
		h.flags &^= discardedBit
		a.store(h)
		return h.addr
	}

	sep := a.newBlock(flags, bytes, kindSeparate)
	if sep == 0 {
		t.SetLastError(types.ERROR_NOT_ENOUGH_MEMORY)
		return 0
	}
	if !h.discarded() {
		n := min(a.size(h.addr), bytes)
		src, err1 := a.heap.Bytes(h.addr, int(n))
		dst, err2 := a.heap.Bytes(sep, int(n))
		if err1 == nil && err2 == nil {
			copy(dst, src)
		}
	}
	a.store(&header{addr: sep, alloc: h.addr, flags: h.flags &^ discardedBit, kind: kindSeparate})
	h.alloc = sep
	h.flags &^= discardedBit
	a.store(h)
	return h.addr
}

// Lock is LocalLock. Fixed blocks return their own address.
func (a *Allocator) Lock(t *teb.Thread, hmem uintptr) uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()

	h, ok := a.primary(hmem)
	if !ok {
		t.SetLastError(types.ERROR_INVALID_HANDLE)
		return 0
	}
	if !h.movable() {
		return h.addr
	}
	if h.discarded() {
		t.SetLastError(types.ERROR_DISCARDED)
		return 0
	}
	if h.lockCount < 0xFFFF {
		h.lockCount++
	}
	a.store(h)
	return h.payload()
}

// Unlock is LocalUnlock. It returns true while the block remains locked.
// Reaching zero returns false with ERROR_SUCCESS; a block that was not
// locked returns false with ERROR_NOT_LOCKED.
func (a *Allocator) Unlock(t *teb.Thread, hmem uintptr) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	h, ok := a.primary(hmem)
	if !ok {
		t.SetLastError(types.ERROR_INVALID_HANDLE)
		return false
	}
	if !h.movable() || h.lockCount == 0 {
		t.SetLastError(types.ERROR_NOT_LOCKED)
		return false
	}
	h.lockCount--
	a.store(h)
	if h.lockCount == 0 {
		t.SetLastError(types.NO_ERROR)
		return false
	}
	return true
}

// Size is LocalSize: the requested size of whichever block holds the
// payload.
func (a *Allocator) Size(t *teb.Thread, hmem uintptr) uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()

	h, ok := a.primary(hmem)
	if !ok {
		t.SetLastError(types.ERROR_INVALID_HANDLE)
		return 0
	}
	if h.discarded() {
		return 0
	}
	return a.size(h.payload())
}

// Flags is LocalFlags: the discard bits plus the lock count in the low
// byte, or LMEM_INVALID_HANDLE.
func (a *Allocator) Flags(t *teb.Thread, hmem uintptr) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	h, ok := a.primary(hmem)
	if !ok {
		t.SetLastError(types.ERROR_INVALID_HANDLE)
		return types.LMEM_INVALID_HANDLE
	}
	f := uint32(h.flags) & (types.LMEM_DISCARDABLE | discardedBit)
	f |= uint32(min(h.lockCount, types.LMEM_LOCKCOUNT))
	return f
}

// Handle is LocalHandle: it maps a payload address back to its handle.
func (a *Allocator) Handle(t *teb.Thread, mem uintptr) uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()

	h, ok := a.primary(mem)
	if !ok {
		t.SetLastError(types.ERROR_INVALID_HANDLE)
		return 0
	}
	return h.addr
}

// Global* entry points share the Local* implementation. GMEM-only bits
// (GMEM_SHARE, GMEM_DDESHARE) are dropped.

func (a *Allocator) GlobalAlloc(t *teb.Thread, flags uint32, bytes uintptr) uintptr {
	return a.Alloc(t, flags&types.LMEM_VALID_FLAGS, bytes)
}

func (a *Allocator) GlobalFree(t *teb.Thread, hmem uintptr) uintptr { return a.Free(t, hmem) }

func (a *Allocator) GlobalReAlloc(t *teb.Thread, hmem, bytes uintptr, flags uint32) uintptr {
	return a.ReAlloc(t, hmem, bytes, flags&(types.LMEM_VALID_FLAGS|types.LMEM_MODIFY))
}

func (a *Allocator) GlobalLock(t *teb.Thread, hmem uintptr) uintptr { return a.Lock(t, hmem) }

func (a *Allocator) GlobalUnlock(t *teb.Thread, hmem uintptr) bool { return a.Unlock(t, hmem) }

func (a *Allocator) GlobalSize(t *teb.Thread, hmem uintptr) uintptr { return a.Size(t, hmem) }

func (a *Allocator) GlobalFlags(t *teb.Thread, hmem uintptr) uint32 { return a.Flags(t, hmem) }

func (a *Allocator) GlobalHandle(t *teb.Thread, mem uintptr) uintptr { return a.Handle(t, mem) }
