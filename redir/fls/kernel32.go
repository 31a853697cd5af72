package fls

import (
	"github.com/joshuapare/winredir/internal/ntstatus"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/teb"
)

// FlsAlloc returns a slot index or FLS_OUT_OF_INDEXES.
func (s *State) FlsAlloc(t *teb.Thread, cb types.FlsCallback) uint32 {
	idx, st := s.Alloc(cb)
	if !st.IsSuccess() {
		t.SetLastError(ntstatus.ToLastError(st))
		return types.FLS_OUT_OF_INDEXES
	}
	return idx
}

// FlsFree releases a slot.
func (s *State) FlsFree(t *teb.Thread, idx uint32) bool {
	if st := s.Free(idx); !st.IsSuccess() {
		t.SetLastError(ntstatus.ToLastError(st))
		return false
	}
	return true
}

// FlsGetValue returns the running fiber's value. The last error is cleared
// on success so a stored zero can be told apart from a failure.
func (s *State) FlsGetValue(t *teb.Thread, idx uint32) uintptr {
	v, st := s.GetValue(t.Fiber(), idx)
	t.SetLastError(ntstatus.ToLastError(st))
	return v
}

// FlsSetValue stores a value for the running fiber.
func (s *State) FlsSetValue(t *teb.Thread, idx uint32, v uintptr) bool {
	if st := s.SetValue(t.Fiber(), idx, v); !st.IsSuccess() {
		t.SetLastError(ntstatus.ToLastError(st))
		return false
	}
	return true
}
