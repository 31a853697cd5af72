package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/winredir/internal/config"
	"github.com/joshuapare/winredir/internal/testutil"
	"github.com/joshuapare/winredir/native/sim"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/domain"
	"github.com/joshuapare/winredir/redir/teb"
)

// Aliases, not defined types: the tables store unnamed method values.
type (
	flsAllocFn = func(*teb.Thread, types.FlsCallback) uint32
	flsFreeFn  = func(*teb.Thread, uint32) bool
	flsSetFn   = func(*teb.Thread, uint32, uintptr) bool
)

func newTestDomain(t *testing.T, mutate ...func(*config.Config)) (*domain.Domain, *sim.OS) {
	t.Helper()
	cfg := config.Default()
	cfg.ArenaSize = 4 << 20
	for _, m := range mutate {
		m(cfg)
	}
	os := testutil.SetupOS(t)
	d, err := domain.New(cfg, os)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d, os
}

func lookup[F any](t *testing.T, d *domain.Domain, lib, name string) F {
	t.Helper()
	fn, ok := d.Lookup(lib, name)
	require.True(t, ok, "%s!%s is redirected", lib, name)
	f, ok := fn.(F)
	require.True(t, ok, "%s!%s has type %T", lib, name, fn)
	return f
}

func TestFlsSlotReuse(t *testing.T) {
	d, _ := newTestDomain(t)
	th := d.CurrentThread()
	alloc := lookup[flsAllocFn](t, d, "kernel32.dll", "FlsAlloc")
	free := lookup[flsFreeFn](t, d, "kernel32.dll", "FlsFree")

	assert.Equal(t, uint32(0), alloc(th, nil))
	assert.Equal(t, uint32(1), alloc(th, nil))
	require.True(t, free(th, 0))
	assert.Equal(t, uint32(0), alloc(th, nil), "lowest free index is reused")
	assert.Equal(t, uint32(2), alloc(th, nil))
}

func TestThreadExitRunsFlsCallbacks(t *testing.T) {
	d, _ := newTestDomain(t)
	th := d.CurrentThread()
	alloc := lookup[flsAllocFn](t, d, "kernel32.dll", "FlsAlloc")
	set := lookup[flsSetFn](t, d, "kernel32.dll", "FlsSetValue")

	var got []uintptr
	idx := alloc(th, func(v uintptr) { got = append(got, v) })
	require.True(t, set(th, idx, 42))
	assert.Equal(t, 1, d.Fls.Live())
	assert.Same(t, th, d.CurrentThread())

	d.ThreadExit(th)
	assert.Equal(t, []uintptr{42}, got)
	assert.Zero(t, d.Fls.Live())
	assert.Zero(t, d.Status().Threads)
}

func TestFiberLifecycle(t *testing.T) {
	d, _ := newTestDomain(t)
	th := d.CurrentThread()
	alloc := lookup[flsAllocFn](t, d, "kernel32.dll", "FlsAlloc")
	set := lookup[flsSetFn](t, d, "kernel32.dll", "FlsSetValue")

	require.NotNil(t, d.ConvertThreadToFiber(th, 1))
	assert.Nil(t, d.ConvertThreadToFiber(th, 1), "already converted")

	var got []uintptr
	idx := alloc(th, func(v uintptr) { got = append(got, v) })
	f := d.CreateFiber(7)
	d.SwitchToFiber(th, f)
	require.True(t, set(th, idx, 5))
	d.SwitchToFiber(th, th.Primary())
	require.True(t, set(th, idx, 6))
	assert.Equal(t, 2, d.Fls.Live())

	d.DeleteFiber(th, f)
	assert.Equal(t, []uintptr{5}, got)
	assert.Equal(t, 1, d.Fls.Live())

	require.NoError(t, d.Close())
	assert.Equal(t, []uintptr{5, 6}, got, "close runs the remaining thread's callbacks")
	assert.Nil(t, d.Thread(th.ID))
	_, err := d.LoadLibrary("kernel32.dll")
	assert.ErrorIs(t, err, domain.ErrClosed)
	assert.NoError(t, d.Close(), "close is idempotent")
}

func TestLoadProbesAndBindsImports(t *testing.T) {
	d, os := newTestDomain(t)

	var exports []string
	for _, n := range d.Tables().Names("kernel32.dll") {
		if n != "FindFirstFileA" {
			exports = append(exports, n)
		}
	}
	exports = append(exports, "Sleep")
	testutil.AddDLL(os, testutil.DLL{Name: "kernel32.dll", Exports: exports})
	testutil.AddDLL(os, testutil.DLL{
		Name:    "app.dll",
		Exports: []string{"Main"},
		Imports: []testutil.Import{{Library: "KERNEL32.dll", Names: []string{"CreateFileW", "Sleep"}}},
	})

	k32, err := d.LoadLibrary("kernel32")
	require.NoError(t, err)
	_, ok := d.Lookup("kernel32.dll", "FindFirstFileA")
	assert.False(t, ok, "shim dropped: this kernel32 does not export it")
	_, ok = d.Lookup("api-ms-win-core-file-l1-1-0.dll", "FindFirstFileA")
	assert.False(t, ok)
	_, ok = d.Lookup("kernel32.dll", "CreateFileW")
	assert.True(t, ok)

	_, err = d.LoadLibrary("app.dll")
	require.NoError(t, err)
	addr, ok := d.Stubs().Lookup("kernel32.dll!CreateFileW")
	require.True(t, ok, "redirected import bound to a stub")
	assert.True(t, d.Arena().Contains(addr))
	_, ok = d.Stubs().Lookup("kernel32.dll!Sleep")
	assert.False(t, ok)

	th := d.CurrentThread()
	assert.Equal(t, addr, d.Loader.GetProcAddress(th, types.Handle(k32.Base), "CreateFileW"))
	assert.Equal(t, k32.Exports["Sleep"], d.Loader.GetProcAddress(th, types.Handle(k32.Base), "Sleep"))

	st := d.Status()
	assert.ElementsMatch(t, []string{"kernel32.dll", "app.dll"}, st.Modules)
	assert.GreaterOrEqual(t, st.Stubs, 1)
}

func TestNtdllOverrideByVersion(t *testing.T) {
	win7, _ := newTestDomain(t, func(c *config.Config) { c.OSVersion = "win7" })
	lookup[func(uintptr, uintptr, uintptr) bool](t, win7, "ntdll.dll", "LdrSetDllManifestProber")
	assert.Contains(t, win7.Tables().Libraries(), "ntdll.dll")

	xp, _ := newTestDomain(t, func(c *config.Config) { c.OSVersion = "xp" })
	lookup[func(uintptr) bool](t, xp, "ntdll.dll", "LdrSetDllManifestProber")
	assert.Len(t, xp.Tables().Set("ntdll.dll"), 1)
}

func TestHeapThroughTables(t *testing.T) {
	d, _ := newTestDomain(t)
	th := d.CurrentThread()
	getHeap := lookup[func(*teb.Thread) types.Handle](t, d, "kernel32.dll", "GetProcessHeap")
	alloc := lookup[func(*teb.Thread, types.Handle, uint32, uintptr) uintptr](t, d, "kernel32.dll", "HeapAlloc")

	h := getHeap(th)
	assert.Equal(t, d.Heap.ProcessHeap(), h)
	p := alloc(th, h, types.HEAP_ZERO_MEMORY, 64)
	require.NotZero(t, p)
	assert.True(t, d.Arena().Contains(p))

	rtlAlloc := lookup[func(types.Handle, uint32, uintptr) uintptr](t, d, "ntdll.dll", "RtlAllocateHeap")
	assert.True(t, d.Arena().Contains(rtlAlloc(h, 0, 8)))
}

func TestRegistryThroughKernelbase(t *testing.T) {
	d, os := newTestDomain(t)
	open := lookup[func(types.Handle, *string, uint32, uint32, *types.Handle) types.Errno](
		t, d, "kernelbase.dll", "RegOpenKeyExW")

	sub := `SOFTWARE\Microsoft\Windows NT\CurrentVersion`
	var key types.Handle
	require.Equal(t, types.ERROR_SUCCESS, open(types.HKEY_LOCAL_MACHINE, &sub, 0, types.KEY_READ, &key))
	assert.Equal(t, types.ERROR_SUCCESS, d.Advapi32.RegCloseKey(key))
	assert.Zero(t, os.OpenHandles())

	assert.NotZero(t, d.Dispatch.RedirectProc("kernelbase.dll", "RegOpenKeyExW"))
}

func TestStatus(t *testing.T) {
	d, _ := newTestDomain(t)
	st := d.Status()
	assert.Equal(t, "win10", st.Version)
	assert.True(t, st.PrivHeap)
	for _, lib := range []string{"kernel32.dll", "ntdll.dll", "advapi32.dll", "rpcrt4.dll"} {
		assert.Positive(t, st.TableSizes[lib], lib)
	}
	assert.Equal(t, 4<<20, st.Arena.Size)
}

func TestInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.OSVersion = "win95"
	_, err := domain.New(cfg, testutil.SetupOS(t))
	assert.ErrorIs(t, err, config.ErrInvalid)
}
