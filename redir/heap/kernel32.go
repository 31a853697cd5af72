package heap

import (
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/teb"
)

// The kernel32 heap entry points wrap the Rtl routines and add the
// thread's last error.

// HeapCreate creates a heap. HEAP_GENERATE_EXCEPTIONS is accepted and
// ignored.
func (s *Shim) HeapCreate(t *teb.Thread, options uint32, initial, maximum uintptr) types.Handle {
	if maximum != 0 && initial > maximum {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return 0
	}
	h := s.Create(options|types.HEAP_GROWABLE, maximum, initial)
	if h == 0 {
		t.SetLastError(types.ERROR_NOT_ENOUGH_MEMORY)
	}
	return h
}

// HeapDestroy destroys a heap created by HeapCreate.
func (s *Shim) HeapDestroy(t *teb.Thread, h types.Handle) bool {
	if h == 0 {
		t.SetLastError(types.ERROR_INVALID_HANDLE)
		return false
	}
	if !s.Destroy(h) {
		t.SetLastError(types.ERROR_INVALID_HANDLE)
		return false
	}
	return true
}

// HeapAlloc allocates from h.
func (s *Shim) HeapAlloc(t *teb.Thread, h types.Handle, flags uint32, size uintptr) uintptr {
	p := s.Alloc(h, flags, size)
	if p == 0 {
		t.SetLastError(types.ERROR_NOT_ENOUGH_MEMORY)
	}
	return p
}

// HeapReAlloc resizes a block.
func (s *Shim) HeapReAlloc(t *teb.Thread, h types.Handle, flags uint32, ptr, size uintptr) uintptr {
	if ptr == 0 {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return 0
	}
	p := s.ReAlloc(h, flags, ptr, size)
	if p == 0 {
		t.SetLastError(types.ERROR_NOT_ENOUGH_MEMORY)
	}
	return p
}

// HeapFree releases a block. A nil pointer succeeds.
func (s *Shim) HeapFree(t *teb.Thread, h types.Handle, flags uint32, ptr uintptr) bool {
	if ptr == 0 {
		return true
	}
	if !s.Free(h, flags, ptr) {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return false
	}
	return true
}

// HeapSize returns the size of a block, or ^uintptr(0).
func (s *Shim) HeapSize(t *teb.Thread, h types.Handle, flags uint32, ptr uintptr) uintptr {
	n := s.Size(h, flags, ptr)
	if n == ^uintptr(0) {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
	}
	return n
}

// HeapValidate checks a heap or a block.
func (s *Shim) HeapValidate(t *teb.Thread, h types.Handle, flags uint32, ptr uintptr) bool {
	return s.Validate(h, flags, ptr)
}

// HeapLock locks h.
func (s *Shim) HeapLock(t *teb.Thread, h types.Handle) bool {
	if !s.Lock(h) {
		t.SetLastError(types.ERROR_INVALID_HANDLE)
		return false
	}
	return true
}

// HeapUnlock unlocks h.
func (s *Shim) HeapUnlock(t *teb.Thread, h types.Handle) bool {
	if !s.Unlock(h) {
		t.SetLastError(types.ERROR_NOT_LOCKED)
		return false
	}
	return true
}

// HeapCompact returns the largest committed free block.
func (s *Shim) HeapCompact(t *teb.Thread, h types.Handle, flags uint32) uintptr {
	return s.Compact(h, flags)
}

// HeapWalk enumerates h. Redirected heaps report ERROR_NO_MORE_ITEMS at
// once.
func (s *Shim) HeapWalk(t *teb.Thread, h types.Handle, entry *types.HeapEntry) bool {
	if entry == nil {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return false
	}
	st := s.Walk(h, entry)
	switch {
	case st.IsSuccess():
		return true
	case st == types.STATUS_NO_MORE_ENTRIES:
		t.SetLastError(types.ERROR_NO_MORE_ITEMS)
	default:
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
	}
	return false
}

// HeapSetInformation sets heap options.
func (s *Shim) HeapSetInformation(t *teb.Thread, h types.Handle, class uint32, info []byte) bool {
	return s.SetInformation(h, class, info).IsSuccess()
}

// GetProcessHeap returns the isolated process heap.
func (s *Shim) GetProcessHeap(t *teb.Thread) types.Handle { return s.processHeap }
