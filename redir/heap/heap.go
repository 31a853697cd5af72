// Package heap redirects heap calls made by the isolated libraries into the
// engine arena.
//
// A heap handle is serviced here when it is the isolated process heap, the
// application's process heap, or a token this package handed out from
// Create. Every other handle goes to the real OS unchanged. Per-pointer
// calls (ReAlloc, Free, Size) additionally require the pointer to lie in
// the arena, so a pointer the real heap produced is always given back to
// the real heap.
package heap

import (
	"fmt"

	"github.com/joshuapare/winredir/internal/logger"
	"github.com/joshuapare/winredir/native"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/arena"
)

// tokenSize is the size of the arena block that stands in for a heap
// created while isolation is on.
const tokenSize = 1

// Shim services heap calls for one isolation domain.
type Shim struct {
	arena   *arena.Arena
	os      native.Heap
	enabled bool

	processHeap types.Handle // isolated process heap token
	appHeap     types.Handle // the application's process heap
}

// New returns a shim over a. When enabled is false every call is forwarded
// to os and ProcessHeap returns the application's heap.
func New(a *arena.Arena, os native.Heap, enabled bool) (*Shim, error) {
	s := &Shim{
		arena:   a,
		os:      os,
		enabled: enabled,
		appHeap: os.GetProcessHeap(),
	}
	if !enabled {
		s.processHeap = s.appHeap
		return s, nil
	}
	tok, err := a.Alloc(tokenSize)
	if err != nil {
		return nil, fmt.Errorf("heap: process heap token: %w", err)
	}
	s.processHeap = types.Handle(tok)
	return s, nil
}

// ProcessHeap returns the handle the isolated libraries see as their
// process heap.
func (s *Shim) ProcessHeap() types.Handle { return s.processHeap }

// Enabled reports whether heap isolation is on.
func (s *Shim) Enabled() bool { return s.enabled }

// Redirected reports whether calls on h are serviced from the arena.
func (s *Shim) Redirected(h types.Handle) bool {
	if !s.enabled {
		return false
	}
	return h == s.processHeap || h == s.appHeap || s.arena.Contains(uintptr(h))
}

// Owns reports whether ptr was handed out by the arena.
func (s *Shim) Owns(ptr uintptr) bool { return ptr != 0 && s.arena.Contains(ptr) }

// Create returns a token instead of a real heap while isolation is on.
func (s *Shim) Create(flags uint32, reserve, commit uintptr) types.Handle {
	if !s.enabled {
		return s.os.RtlCreateHeap(flags, reserve, commit)
	}
	tok, err := s.arena.Alloc(tokenSize)
	if err != nil {
		logger.WithFn("RtlCreateHeap").WithError(err).Debug("token allocation failed")
		return 0
	}
	logger.WithFn("RtlCreateHeap").WithField("heap", fmt.Sprintf("%#x", tok)).Debug("token")
	return types.Handle(tok)
}

// Destroy releases a token. Blocks still allocated against it are not
// reclaimed. It reports success the way RtlDestroyHeap does: true when the
// heap is gone.
func (s *Shim) Destroy(h types.Handle) bool {
	if s.Redirected(h) {
		if h == s.processHeap || h == s.appHeap {
			return true
		}
		// Outstanding blocks leak: there is no per-heap block list.
		if err := s.arena.Free(uintptr(h)); err != nil {
			logger.WithFn("RtlDestroyHeap").WithError(err).Debug("not a token")
			return false
		}
		return true
	}
	return s.os.RtlDestroyHeap(h) == 0
}

// Alloc returns an arena block for redirected heaps. The block is aligned
// to arena.Align and zeroed when HEAP_ZERO_MEMORY is set.
func (s *Shim) Alloc(h types.Handle, flags uint32, size uintptr) uintptr {
	if !s.Redirected(h) {
		p := s.os.RtlAllocateHeap(h, flags, size)
		logger.WithFn("RtlAllocateHeap").WithField("ptr", fmt.Sprintf("%#x", p)).
			WithField("size", size).Debug("native")
		return p
	}
	return s.alloc(flags, size)
}

func (s *Shim) alloc(flags uint32, size uintptr) uintptr {
	if size > uintptr(int(^uint(0)>>1)) {
		return 0
	}
	p, err := s.arena.Alloc(int(size))
	if err != nil {
		logger.WithFn("RtlAllocateHeap").WithError(err).WithField("size", size).Debug("arena exhausted")
		return 0
	}
	if flags&types.HEAP_ZERO_MEMORY != 0 {
		if b, err := s.arena.Bytes(p, int(size)); err == nil {
			clear(b)
		}
	}
	logger.WithFn("RtlAllocateHeap").WithField("ptr", fmt.Sprintf("%#x", p)).WithField("size", size).Debug("redirected")
	return p
}

// ReAlloc resizes ptr. A nil ptr fails, unlike realloc. The arena path is
// taken only when both the heap and the pointer are ours.
func (s *Shim) ReAlloc(h types.Handle, flags uint32, ptr, size uintptr) uintptr {
	if ptr == 0 {
		return 0
	}
	if !s.Redirected(h) || !s.Owns(ptr) {
		return s.os.RtlReAllocateHeap(h, flags, ptr, size)
	}
	old, err := s.arena.RequestedSize(ptr)
	if err != nil {
		return 0
	}
	if size > uintptr(int(^uint(0)>>1)) {
		return 0
	}
	n := int(size)

	if flags&types.HEAP_REALLOC_IN_PLACE_ONLY != 0 {
		if err := s.arena.Resize(ptr, n); err != nil {
			return 0
		}
		s.zeroTail(flags, ptr, old, n)
		return ptr
	}

	p := s.alloc(flags&^types.HEAP_ZERO_MEMORY, size)
	if p == 0 {
		return 0
	}
	src, _ := s.arena.Bytes(ptr, min(old, n))
	dst, _ := s.arena.Bytes(p, min(old, n))
	copy(dst, src)
	s.zeroTail(flags, p, old, n)
	_ = s.arena.Free(ptr)
	logger.WithFn("RtlReAllocateHeap").WithField("ptr", fmt.Sprintf("%#x", p)).WithField("size", size).Debug("redirected")
	return p
}

func (s *Shim) zeroTail(flags uint32, p uintptr, old, n int) {
	if flags&types.HEAP_ZERO_MEMORY == 0 || n <= old {
		return
	}
	if b, err := s.arena.Bytes(p+uintptr(old), n-old); err == nil {
		clear(b)
	}
}

// Free releases ptr.
func (s *Shim) Free(h types.Handle, flags uint32, ptr uintptr) bool {
	if !s.Redirected(h) || !s.Owns(ptr) {
		return s.os.RtlFreeHeap(h, flags, ptr)
	}
	if err := s.arena.Free(ptr); err != nil {
		logger.WithFn("RtlFreeHeap").WithError(err).Debug("bad pointer")
		return false
	}
	logger.WithFn("RtlFreeHeap").WithField("ptr", fmt.Sprintf("%#x", ptr)).Debug("redirected")
	return true
}

// Size returns the requested size of ptr, or ^uintptr(0) on failure.
func (s *Shim) Size(h types.Handle, flags uint32, ptr uintptr) uintptr {
	if !s.Redirected(h) || !s.Owns(ptr) {
		return s.os.RtlSizeHeap(h, flags, ptr)
	}
	n, err := s.arena.RequestedSize(ptr)
	if err != nil {
		return ^uintptr(0)
	}
	return uintptr(n)
}

// Validate always succeeds for redirected heaps.
func (s *Shim) Validate(h types.Handle, flags uint32, ptr uintptr) bool {
	if s.Redirected(h) {
		return true
	}
	return s.os.RtlValidateHeap(h, flags, ptr)
}

// Lock is a no-op for redirected heaps; the arena serializes itself.
func (s *Shim) Lock(h types.Handle) bool {
	if s.Redirected(h) {
		return true
	}
	return s.os.RtlLockHeap(h)
}

// Unlock is a no-op for redirected heaps.
func (s *Shim) Unlock(h types.Handle) bool {
	if s.Redirected(h) {
		return true
	}
	return s.os.RtlUnlockHeap(h)
}

// Compact reports types.HeapCompactLargest for redirected heaps.
func (s *Shim) Compact(h types.Handle, flags uint32) uintptr {
	if s.Redirected(h) {
		return types.HeapCompactLargest
	}
	return s.os.RtlCompactHeap(h, flags)
}

// Walk cannot enumerate the arena and reports STATUS_NO_MORE_ENTRIES.
func (s *Shim) Walk(h types.Handle, entry *types.HeapEntry) types.NTStatus {
	if s.Redirected(h) {
		return types.STATUS_NO_MORE_ENTRIES
	}
	return s.os.RtlWalkHeap(h, entry)
}

// SetInformation is accepted and ignored for every heap. The information
// classes callers set (termination on corruption, low-fragmentation
// compatibility) have no arena counterpart, and applying them to the real
// process heap from the isolated copy breaks some releases.
func (s *Shim) SetInformation(h types.Handle, class uint32, info []byte) types.NTStatus {
	logger.WithFn("RtlSetHeapInformation").WithField("class", class).Debug("ignored")
	return types.STATUS_SUCCESS
}

// FreeString releases a counted string buffer. Buffers in the arena are
// freed here and the string zeroed; others go to the real Rtl routine.
func (s *Shim) FreeString(str *types.CountedString) {
	if str == nil {
		return
	}
	if !s.Owns(str.Buffer) {
		s.os.RtlFreeString(str)
		return
	}
	s.Free(s.processHeap, 0, str.Buffer)
	*str = types.CountedString{}
}

// NewString allocates a NUL-terminated copy of data on the isolated process
// heap and returns a counted string describing it. Length excludes the
// terminator of width term.
func (s *Shim) NewString(data []byte, term int) (types.CountedString, bool) {
	total := len(data) + term
	if total > 0xFFFF {
		return types.CountedString{}, false
	}
	p := s.Alloc(s.processHeap, types.HEAP_ZERO_MEMORY, uintptr(total))
	if p == 0 {
		return types.CountedString{}, false
	}
	b, err := s.Bytes(p, len(data))
	if err != nil {
		return types.CountedString{}, false
	}
	copy(b, data)
	return types.CountedString{Length: uint16(len(data)), MaximumLength: uint16(total), Buffer: p}, true
}

// Bytes returns n bytes at p, which is either arena memory or inside a
// block the real heap handed out.
func (s *Shim) Bytes(p uintptr, n int) ([]byte, error) {
	if s.Owns(p) {
		return s.arena.Bytes(p, n)
	}
	if b := s.os.HeapBytes(p, n); b != nil {
		return b, nil
	}
	return nil, fmt.Errorf("heap: %w: %#x+%d", arena.ErrOutOfRange, p, n)
}
