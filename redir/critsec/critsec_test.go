package critsec

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/winredir/internal/buf"
	"github.com/joshuapare/winredir/native/sim"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/arena"
	"github.com/joshuapare/winredir/redir/teb"
)

func newTestShim(t *testing.T, cpus int) (*Shim, *sim.OS, *arena.Arena) {
	t.Helper()
	a, err := arena.New(64 << 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	os := sim.New(sim.Options{})
	return New(a, os, cpus), os, a
}

func TestInitialize(t *testing.T) {
	s, _, a := newTestShim(t, 4)
	cs := types.CriticalSection{LockCount: 7, RecursionCount: 3, OwningThread: 9}

	require.Equal(t, types.STATUS_SUCCESS, s.Initialize(&cs, 0x80000400, types.RTL_CRITICAL_SECTION_FLAG_STATIC_INIT))
	assert.Equal(t, int32(-1), cs.LockCount)
	assert.Zero(t, cs.RecursionCount)
	assert.Zero(t, cs.OwningThread)
	assert.Equal(t, uintptr(0x400), cs.SpinCount, "flag bit stripped")

	require.NotZero(t, cs.DebugInfo)
	assert.True(t, a.Contains(cs.DebugInfo))
	di, err := s.ReadDebugInfo(&cs)
	require.NoError(t, err)
	assert.Equal(t, uint16(types.RTL_CRITSECT_TYPE), di.Type)
	assert.Equal(t, uintptr(unsafe.Pointer(&cs)), di.CriticalSection)
	list := cs.DebugInfo + uintptr(types.DebugWordFlink*buf.PtrSize)
	assert.Equal(t, list, di.Flink, "process-locks entry is self-linked")
	assert.Equal(t, list, di.Blink)
}

func TestInitializeOptions(t *testing.T) {
	tests := []struct {
		name      string
		cpus      int
		spin      uint32
		flags     uint32
		wantSpin  uintptr
		wantDebug bool
	}{
		{"single cpu never spins", 1, 4000, 0, 0, true},
		{"multi cpu keeps spin", 2, 4000, 0, 4000, true},
		{"no debug info", 8, 0, types.RTL_CRITICAL_SECTION_FLAG_NO_DEBUG_INFO, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestShim(t, tt.cpus)
			var cs types.CriticalSection
			require.Equal(t, types.STATUS_SUCCESS, s.Initialize(&cs, tt.spin, tt.flags))
			assert.Equal(t, tt.wantSpin, cs.SpinCount)
			assert.Equal(t, tt.wantDebug, cs.DebugInfo != 0)
		})
	}
}

func TestNilSection(t *testing.T) {
	s, _, _ := newTestShim(t, 2)
	assert.Equal(t, types.STATUS_INVALID_PARAMETER, s.Initialize(nil, 0, 0))
	assert.Equal(t, types.STATUS_INVALID_PARAMETER, s.Delete(nil))
}

func TestDeleteFreesDebugInfoAndSemaphore(t *testing.T) {
	s, os, a := newTestShim(t, 2)
	var cs types.CriticalSection
	require.Equal(t, types.STATUS_SUCCESS, s.Initialize(&cs, 0, 0))
	blocks := a.Stats().Blocks

	cs.LockSemaphore = os.CreateEvent(false, false)
	handles := os.OpenHandles()

	require.Equal(t, types.STATUS_SUCCESS, s.Delete(&cs))
	assert.Equal(t, blocks-1, a.Stats().Blocks)
	assert.Equal(t, handles-1, os.OpenHandles())
	assert.Equal(t, types.CriticalSection{LockCount: -1}, cs)
	assert.Zero(t, os.Calls("RtlDeleteCriticalSection"))
}

func TestDeleteForeignDebugInfoForwards(t *testing.T) {
	s, os, _ := newTestShim(t, 2)
	cs := types.CriticalSection{DebugInfo: 0x1000, LockCount: -1}

	s.Delete(&cs)
	assert.Equal(t, 1, os.Calls("RtlDeleteCriticalSection"))
}

func TestKernel32Entry(t *testing.T) {
	s, _, _ := newTestShim(t, 2)
	th := teb.NewThread()
	var cs types.CriticalSection

	assert.False(t, s.InitializeCriticalSectionEx(th, &cs, 0, 0x1))
	assert.Equal(t, types.ERROR_INVALID_PARAMETER, th.LastError())

	assert.True(t, s.InitializeCriticalSectionEx(th, &cs, 10, types.RTL_CRITICAL_SECTION_FLAG_DYNAMIC_SPIN))
	s.DeleteCriticalSection(th, &cs)
	assert.True(t, s.InitializeCriticalSectionAndSpinCount(th, &cs, 10))
	s.InitializeCriticalSection(th, &cs)
	assert.NotZero(t, cs.DebugInfo)
}
