// Package critsec initializes and deletes critical sections for the
// isolated libraries without touching the OS's shared debug-info free
// list. Debug-info blocks come from the engine arena and are only ever
// released here.
package critsec

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/winredir/internal/buf"
	"github.com/joshuapare/winredir/internal/logger"
	"github.com/joshuapare/winredir/native"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/arena"
	"github.com/joshuapare/winredir/redir/teb"
)

// DebugInfoSize is the size of an RTL_CRITICAL_SECTION_DEBUG block.
const DebugInfoSize = types.DebugWords * buf.PtrSize

// Shim owns the debug-info blocks of one isolation domain.
type Shim struct {
	arena *arena.Arena
	os    native.Kernel
	cpus  int
}

// New returns a shim. cpus is the processor count the isolated libraries
// observe; spinning is disabled below two.
func New(a *arena.Arena, os native.Kernel, cpus int) *Shim {
	return &Shim{arena: a, os: os, cpus: cpus}
}

func addrOf(cs *types.CriticalSection) uintptr { return uintptr(unsafe.Pointer(cs)) }

// Initialize is RtlInitializeCriticalSectionEx. STATIC_INIT is ignored.
func (s *Shim) Initialize(cs *types.CriticalSection, spin, flags uint32) types.NTStatus {
	if cs == nil {
		return types.STATUS_INVALID_PARAMETER
	}
	log := logger.WithFn("RtlInitializeCriticalSectionEx").WithField("cs", fmt.Sprintf("%#x", addrOf(cs)))
	if flags&types.RTL_CRITICAL_SECTION_FLAG_STATIC_INIT != 0 {
		log.Debug("ignoring static-init flag")
	}

	*cs = types.CriticalSection{LockCount: -1}
	if s.cpus >= 2 {
		cs.SpinCount = uintptr(spin &^ types.SpinCountFlagBits)
	}
	if flags&types.RTL_CRITICAL_SECTION_FLAG_NO_DEBUG_INFO != 0 {
		return types.STATUS_SUCCESS
	}

	p, err := s.arena.Alloc(DebugInfoSize)
	if err != nil {
		// Debug info is optional; the lock works without it.
		log.WithError(err).Debug("no debug info")
		return types.STATUS_SUCCESS
	}
	b, _ := s.arena.Bytes(p, DebugInfoSize)
	clear(b)
	list := p + uintptr(types.DebugWordFlink*buf.PtrSize)
	buf.PutWord(b, types.DebugWordType, types.RTL_CRITSECT_TYPE)
	buf.PutWord(b, types.DebugWordCriticalSection, addrOf(cs))
	buf.PutWord(b, types.DebugWordFlink, list)
	buf.PutWord(b, types.DebugWordBlink, list)
	cs.DebugInfo = p
	log.WithField("debug", fmt.Sprintf("%#x", p)).Debug("redirected")
	return types.STATUS_SUCCESS
}

// Delete is RtlDeleteCriticalSection. A section whose debug info did not
// come from this shim was initialized elsewhere and is handed to the real
// routine.
func (s *Shim) Delete(cs *types.CriticalSection) types.NTStatus {
	if cs == nil {
		return types.STATUS_INVALID_PARAMETER
	}
	if cs.DebugInfo != 0 {
		if !s.arena.Contains(cs.DebugInfo) {
			logger.WithFn("RtlDeleteCriticalSection").Warnf("foreign debug info %#x", cs.DebugInfo)
			return s.os.RtlDeleteCriticalSection(cs)
		}
		if err := s.arena.Free(cs.DebugInfo); err != nil {
			logger.WithFn("RtlDeleteCriticalSection").WithError(err).Debug("bad debug info")
		}
	}
	if cs.LockSemaphore != 0 {
		s.os.NtClose(cs.LockSemaphore)
	}
	*cs = types.CriticalSection{LockCount: -1}
	return types.STATUS_SUCCESS
}

// DebugInfo is a decoded RTL_CRITICAL_SECTION_DEBUG block.
type DebugInfo struct {
	Type            uint16
	CriticalSection uintptr
	Flink, Blink    uintptr
}

// ReadDebugInfo decodes the debug-info block of cs.
func (s *Shim) ReadDebugInfo(cs *types.CriticalSection) (DebugInfo, error) {
	b, err := s.arena.Bytes(cs.DebugInfo, DebugInfoSize)
	if err != nil {
		return DebugInfo{}, err
	}
	return DebugInfo{
		Type:            uint16(buf.Word(b, types.DebugWordType)),
		CriticalSection: buf.Word(b, types.DebugWordCriticalSection),
		Flink:           buf.Word(b, types.DebugWordFlink),
		Blink:           buf.Word(b, types.DebugWordBlink),
	}, nil
}

// kernel32 entry points.

// InitializeCriticalSection cannot fail.
func (s *Shim) InitializeCriticalSection(t *teb.Thread, cs *types.CriticalSection) {
	s.Initialize(cs, 0, 0)
}

// InitializeCriticalSectionAndSpinCount always succeeds.
func (s *Shim) InitializeCriticalSectionAndSpinCount(t *teb.Thread, cs *types.CriticalSection, spin uint32) bool {
	return s.setStatus(t, s.Initialize(cs, spin, 0))
}

// InitializeCriticalSectionEx rejects flag bits outside the documented
// high byte.
func (s *Shim) InitializeCriticalSectionEx(t *teb.Thread, cs *types.CriticalSection, spin, flags uint32) bool {
	if flags&^types.RTL_CRITICAL_SECTION_ALL_FLAG_BITS != 0 {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return false
	}
	return s.setStatus(t, s.Initialize(cs, spin, flags))
}

// DeleteCriticalSection releases cs.
func (s *Shim) DeleteCriticalSection(t *teb.Thread, cs *types.CriticalSection) {
	s.Delete(cs)
}

func (s *Shim) setStatus(t *teb.Thread, st types.NTStatus) bool {
	if st.IsSuccess() {
		return true
	}
	t.SetLastError(types.ERROR_INVALID_PARAMETER)
	return false
}
