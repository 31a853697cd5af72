package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/arena"
	"github.com/joshuapare/winredir/redir/modules"
	"github.com/joshuapare/winredir/redir/strtab"
	"github.com/joshuapare/winredir/redir/stub"
)

// recorder hands out sequential fake addresses, one per key.
type recorder struct {
	addrs map[string]uintptr
	fail  bool
}

func (r *recorder) Emit(key string, target any) (uintptr, error) {
	if r.fail {
		return 0, errors.New("arena full")
	}
	if a, ok := r.addrs[key]; ok {
		return a, nil
	}
	a := uintptr(0x1000 * (len(r.addrs) + 1))
	r.addrs[key] = a
	return a, nil
}

func shim() {}

func testTables() map[string]strtab.Set {
	k32 := strtab.New("kernel32", []strtab.Import{
		{Name: "CreateFileW", Func: shim},
		{Name: "GetProcAddress", Func: shim},
		{Name: "LoadLibraryW", Func: shim},
	})
	adv := strtab.New("advapi32", []strtab.Import{
		{Name: "RegOpenKeyExW", Func: shim},
	})
	nt := strtab.New("ntdll", []strtab.Import{
		{Name: "NtCreateFile", Func: shim},
		{Name: "LdrSetDllManifestProber", Func: shim},
	})
	ntOld := strtab.New("ntdll-win7", []strtab.Import{
		{Name: "LdrSetDllManifestProber", Func: func(a, b, c uintptr) bool { return true }},
	})
	return map[string]strtab.Set{
		Kernel32: strtab.NewSet(k32),
		Advapi32: strtab.NewSet(adv),
		Ntdll:    strtab.NewSet(ntOld, nt),
	}
}

func newTestDispatcher(v types.WindowsVersion) (*Dispatcher, *recorder) {
	r := &recorder{addrs: map[string]uintptr{}}
	return New(testTables(), r, v), r
}

func TestResolveImportRoutes(t *testing.T) {
	d, r := newTestDispatcher(types.Windows7)
	app := &modules.Module{Name: "app.dll"}

	tests := []struct {
		name   string
		from   string
		symbol string
		key    string
	}{
		{"direct", "KERNEL32.dll", "CreateFileW", "kernel32.dll!CreateFileW"},
		{"no extension", "kernel32", "CreateFileW", "kernel32.dll!CreateFileW"},
		{"kernelbase to kernel32", "kernelbase.dll", "CreateFileW", "kernel32.dll!CreateFileW"},
		{"kernelbase to advapi32", "KernelBase.dll", "RegOpenKeyExW", "advapi32.dll!RegOpenKeyExW"},
		{"api set", "api-ms-win-core-registry-l1-1-0.dll", "RegOpenKeyExW", "advapi32.dll!RegOpenKeyExW"},
		{"ntdll", "ntdll.dll", "NtCreateFile", "ntdll.dll!NtCreateFile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := d.ResolveImport(tt.from, tt.symbol, app)
			require.NotZero(t, addr)
			assert.Equal(t, r.addrs[tt.key], addr)
		})
	}

	assert.Zero(t, d.ResolveImport("kernel32.dll", "Sleep", app), "not redirected")
	assert.Zero(t, d.ResolveImport("user32.dll", "CreateFileW", app), "no table for library")
	assert.Zero(t, d.ResolveImport("advapi32.dll", "CreateFileW", app), "advapi32 does not fall back to kernel32")
}

func TestSharedStubAcrossRoutes(t *testing.T) {
	d, r := newTestDispatcher(types.Windows7)
	a := d.ResolveImport("kernel32.dll", "CreateFileW", nil)
	b := d.ResolveImport("api-ms-win-core-file-l1-1-0.dll", "CreateFileW", nil)
	assert.Equal(t, a, b)
	assert.Len(t, r.addrs, 1)
}

func TestLoaderSymbolsFromKernel32(t *testing.T) {
	k32 := &modules.Module{Name: "kernel32.dll"}

	d, _ := newTestDispatcher(types.Windows7)
	assert.Zero(t, d.ResolveImport("kernelbase.dll", "GetProcAddress", k32))
	assert.Zero(t, d.ResolveImport("api-ms-win-core-libraryloader-l1-1-0.dll", "LoadLibraryW", k32))
	assert.NotZero(t, d.ResolveImport("kernelbase.dll", "CreateFileW", k32), "only loader routines are exempt")
	assert.NotZero(t, d.ResolveImport("kernelbase.dll", "GetProcAddress", &modules.Module{Name: "user32.dll"}))
	assert.NotZero(t, d.RedirectProc("kernelbase.dll", "GetProcAddress"), "GetProcAddress has no importer")

	old, _ := newTestDispatcher(types.WindowsVista)
	assert.NotZero(t, old.ResolveImport("kernelbase.dll", "GetProcAddress", k32))
}

func TestOverrideTablePrecedence(t *testing.T) {
	d, _ := newTestDispatcher(types.Windows7)
	fn, lib, ok := d.Lookup("ntdll.dll", "LdrSetDllManifestProber", "")
	require.True(t, ok)
	assert.Equal(t, Ntdll, lib)
	_, isOverride := fn.(func(a, b, c uintptr) bool)
	assert.True(t, isOverride)

	set, ok := d.Table("NTDLL")
	require.True(t, ok)
	assert.True(t, set.Remove("LdrSetDllManifestProber"))
	_, _, ok = d.Lookup("ntdll.dll", "LdrSetDllManifestProber", "")
	assert.False(t, ok, "removed from every layer")
}

func TestEmitFailureBindsReal(t *testing.T) {
	d, r := newTestDispatcher(types.Windows7)
	r.fail = true
	assert.Zero(t, d.ResolveImport("kernel32.dll", "CreateFileW", nil))
	assert.Zero(t, d.RedirectProc("kernel32.dll", "CreateFileW"))
}

func TestStubTableBacking(t *testing.T) {
	a, err := arena.New(64 << 10)
	require.NoError(t, err)
	defer a.Close()

	stubs := stub.NewTable(a, nil)
	d := New(testTables(), stubs, types.Windows8)

	addr := d.RedirectProc("kernel32.dll", "CreateFileW")
	require.NotZero(t, addr)
	assert.True(t, a.Contains(addr))

	fn, ok := stubs.Resolve(addr)
	require.True(t, ok)
	_, ok = fn.(func())
	assert.True(t, ok)
	assert.Equal(t, types.Windows8, d.Version())
}
