package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/winredir/internal/testutil"
	"github.com/joshuapare/winredir/native/sim"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/arena"
	"github.com/joshuapare/winredir/redir/strtab"
	"github.com/joshuapare/winredir/redir/teb"
)

const sysDir = testutil.SystemDir

type fakeRedirector struct {
	imports map[string]uintptr // "lib!name"
	procs   map[string]uintptr
	seen    []string
}

func (f *fakeRedirector) ResolveImport(from, symbol string, importer *Module) uintptr {
	f.seen = append(f.seen, from+"!"+symbol+"<"+importer.Name)
	return f.imports[from+"!"+symbol]
}

func (f *fakeRedirector) RedirectProc(library, symbol string) uintptr {
	return f.procs[library+"!"+symbol]
}

func newTestLoader(t *testing.T) (*Loader, *sim.OS, *arena.Arena) {
	t.Helper()
	a, err := arena.New(4 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	os := sim.New(sim.Options{})
	return NewLoader(NewRegistry(), NewPEMapper(a), os), os, a
}

func addDLL(os *sim.OS, d testutil.DLL) {
	testutil.AddDLL(os, d)
}

func iatEntry(t *testing.T, m *Module, lib string, i int) uintptr {
	t.Helper()
	for _, d := range m.imports {
		if d.library == lib {
			v, ok := m.word(d.iat + uint32(i*m.ptrSize))
			require.True(t, ok)
			return uintptr(v)
		}
	}
	t.Fatalf("%s does not import %s", m.Name, lib)
	return 0
}

func TestWithDefaultExt(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"kernel32", "kernel32.dll"},
		{"kernel32.dll", "kernel32.dll"},
		{"driver.sys", "driver.sys"},
		{"noext.", "noext"},
		{`C:\dir\lib`, `C:\dir\lib`},
		{"dir/lib", "dir/lib"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, WithDefaultExt(tt.in))
		})
	}
	assert.Equal(t, "kernel32.dll", LibraryName(`C:\Windows\System32\KERNEL32.DLL`))
}

func TestLoadMapsExports(t *testing.T) {
	l, os, _ := newTestLoader(t)
	addDLL(os, testutil.DLL{Name: "core.dll", Exports: []string{"Alpha", "Beta"}})

	m, err := l.Load("CORE")
	require.NoError(t, err)
	assert.Equal(t, "core.dll", m.Name)
	assert.Equal(t, sysDir+"core.dll", m.Path)
	assert.Equal(t, []string{"Alpha", "Beta"}, m.ExportNames())

	for _, name := range []string{"Alpha", "Beta"} {
		addr := m.Exports[name]
		require.True(t, m.Contains(addr), name)
		assert.Equal(t, byte(0xC3), m.image[addr-m.Base], "%s points at its body", name)
	}
	assert.Same(t, m, l.Registry().LookupByBase(m.Base))
	assert.Same(t, m, l.Registry().LookupByPC(m.Exports["Beta"]+1))
	assert.Same(t, m, l.Registry().LookupByName(`c:\elsewhere\Core.dll`))
}

func TestLoadRefCounting(t *testing.T) {
	l, os, a := newTestLoader(t)
	addDLL(os, testutil.DLL{Name: "core.dll", Exports: []string{"Alpha"}})
	before := a.Stats().Blocks

	m1, err := l.Load("core.dll")
	require.NoError(t, err)
	m2, err := l.Load("core")
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Equal(t, 2, m1.Refs())

	assert.False(t, l.Release(m1))
	assert.Equal(t, 1, l.Registry().Len())
	assert.True(t, l.Release(m1))
	assert.Zero(t, l.Registry().Len())
	assert.Equal(t, before, a.Stats().Blocks, "image returned to the arena")
}

func TestImportBinding(t *testing.T) {
	l, os, _ := newTestLoader(t)
	addDLL(os, testutil.DLL{Name: "core.dll", Exports: []string{"Fn1", "Fn2"}})
	addDLL(os, testutil.DLL{
		Name:    "app.dll",
		Exports: []string{"Entry"},
		Imports: []testutil.Import{{Library: "CORE.dll", Names: []string{"Fn2", "Fn1"}}},
	})

	app, err := l.Load("app.dll")
	require.NoError(t, err)
	core := l.Registry().LookupByName("core.dll")
	require.NotNil(t, core, "imported library loaded")
	assert.Equal(t, []string{"CORE.dll"}, app.Imports())

	assert.Equal(t, core.Exports["Fn2"], iatEntry(t, app, "CORE.dll", 0))
	assert.Equal(t, core.Exports["Fn1"], iatEntry(t, app, "CORE.dll", 1))

	assert.True(t, l.Release(app))
	assert.Zero(t, l.Registry().Len(), "dependency released with its importer")
}

func TestImportRedirected(t *testing.T) {
	l, os, _ := newTestLoader(t)
	r := &fakeRedirector{imports: map[string]uintptr{"core.dll!Fn1": 0xD00D}}
	l.SetRedirector(r)
	addDLL(os, testutil.DLL{Name: "core.dll", Exports: []string{"Fn1", "Fn2"}})
	addDLL(os, testutil.DLL{
		Name:    "app.dll",
		Imports: []testutil.Import{{Library: "core.dll", Names: []string{"Fn1", "Fn2"}}},
	})

	app, err := l.Load("app")
	require.NoError(t, err)
	core := l.Registry().LookupByName("core")
	assert.Equal(t, uintptr(0xD00D), iatEntry(t, app, "core.dll", 0))
	assert.Equal(t, core.Exports["Fn2"], iatEntry(t, app, "core.dll", 1))
	assert.Contains(t, r.seen, "core.dll!Fn1<app.dll")
}

func TestImportThroughForwarder(t *testing.T) {
	l, os, _ := newTestLoader(t)
	r := &fakeRedirector{}
	l.SetRedirector(r)
	addDLL(os, testutil.DLL{Name: "impl.dll", Exports: []string{"Real"}})
	addDLL(os, testutil.DLL{
		Name:       "core.dll",
		Forwarders: map[string]string{"Fwd": "IMPL.Real"},
	})
	addDLL(os, testutil.DLL{
		Name:    "app.dll",
		Imports: []testutil.Import{{Library: "core.dll", Names: []string{"Fwd"}}},
	})

	app, err := l.Load("app.dll")
	require.NoError(t, err)
	core := l.Registry().LookupByName("core.dll")
	impl := l.Registry().LookupByName("impl.dll")
	require.NotNil(t, impl, "forwarded-to library loaded")
	assert.Equal(t, "IMPL.Real", core.Forwarders["Fwd"])
	assert.NotContains(t, core.Exports, "Fwd")
	assert.Equal(t, impl.Exports["Real"], iatEntry(t, app, "core.dll", 0))
	assert.Equal(t, []string{"impl.dll!Real<app.dll"}, r.seen, "redirection is asked about the final target")

	th := teb.NewThread()
	assert.Equal(t, impl.Exports["Real"], l.GetProcAddress(th, types.Handle(core.Base), "Fwd"))
}

func TestImportFailureUnwinds(t *testing.T) {
	l, os, a := newTestLoader(t)
	addDLL(os, testutil.DLL{Name: "core.dll", Exports: []string{"Fn1"}})
	addDLL(os, testutil.DLL{
		Name:    "app.dll",
		Imports: []testutil.Import{{Library: "core.dll", Names: []string{"Missing"}}},
	})
	before := a.Stats().Blocks

	_, err := l.Load("app.dll")
	require.ErrorIs(t, err, ErrImportNotFound)
	assert.Zero(t, l.Registry().Len())
	assert.Equal(t, before, a.Stats().Blocks)

	_, err = l.Load("nothere.dll")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, sim.ErrImageNotFound)
}

func TestImportCycle(t *testing.T) {
	l, os, _ := newTestLoader(t)
	addDLL(os, testutil.DLL{
		Name:    "a.dll",
		Exports: []string{"A"},
		Imports: []testutil.Import{{Library: "b.dll", Names: []string{"B"}}},
	})
	addDLL(os, testutil.DLL{
		Name:    "b.dll",
		Exports: []string{"B"},
		Imports: []testutil.Import{{Library: "a.dll", Names: []string{"A"}}},
	})

	a, err := l.Load("a.dll")
	require.NoError(t, err)
	b := l.Registry().LookupByName("b.dll")
	require.NotNil(t, b)
	assert.Equal(t, b.Exports["B"], iatEntry(t, a, "b.dll", 0))
	assert.Equal(t, a.Exports["A"], iatEntry(t, b, "a.dll", 0))
}

func TestOnLoadHookAndProbe(t *testing.T) {
	l, os, _ := newTestLoader(t)
	table := strtab.New("core", []strtab.Import{
		{Name: "Fn1", Func: func() {}},
		{Name: "Newer", Func: func() {}},
	})
	var removed []string
	calls := 0
	l.OnLoad(func(m *Module) {
		calls++
		if m.Name == "core.dll" {
			removed = ProbeExports(table, m)
		}
	})
	addDLL(os, testutil.DLL{Name: "core.dll", Exports: []string{"Fn1"}})

	_, err := l.Load("core")
	require.NoError(t, err)
	_, err = l.Load("core")
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "hooks run on first mapping only")
	assert.Equal(t, []string{"Newer"}, removed)
	_, ok := table.Lookup("Newer")
	assert.False(t, ok)
	_, ok = table.Lookup("Fn1")
	assert.True(t, ok)
}

func TestGetModuleHandle(t *testing.T) {
	l, os, _ := newTestLoader(t)
	addDLL(os, testutil.DLL{Name: "core.dll", Exports: []string{"Fn1"}})
	user32 := os.AddModule(sysDir+"user32.dll", "MessageBoxW")
	m, err := l.Load("core")
	require.NoError(t, err)
	th := teb.NewThread()

	name := "CORE"
	assert.Equal(t, types.Handle(m.Base), l.GetModuleHandleW(th, &name))
	assert.Equal(t, types.Handle(m.Base), l.GetModuleHandleA(th, []byte("core.dll\x00")))
	assert.Zero(t, os.Calls("GetModuleHandle"), "private hit does not reach the real loader")

	assert.Equal(t, user32, l.GetModuleHandleA(th, []byte("user32")))
	exe := os.GetModuleHandle("")
	assert.Equal(t, exe, l.GetModuleHandleW(th, nil))

	missing := "nothere"
	th.SetLastError(types.ERROR_SUCCESS)
	assert.Zero(t, l.GetModuleHandleW(th, &missing))
	assert.Equal(t, types.ERROR_MOD_NOT_FOUND, th.LastError())
}

func TestGetModuleHandleEx(t *testing.T) {
	l, os, _ := newTestLoader(t)
	addDLL(os, testutil.DLL{Name: "core.dll", Exports: []string{"Fn1"}})
	m, err := l.Load("core")
	require.NoError(t, err)
	th := teb.NewThread()
	var h types.Handle

	require.True(t, l.GetModuleHandleExA(th, 0, []byte("core"), 0, &h))
	assert.Equal(t, types.Handle(m.Base), h)
	assert.Equal(t, 2, m.Refs())

	require.True(t, l.GetModuleHandleExA(th, types.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REF, []byte("core"), 0, &h))
	assert.Equal(t, 2, m.Refs())

	flags := uint32(types.GET_MODULE_HANDLE_EX_FLAG_FROM_ADDRESS | types.GET_MODULE_HANDLE_EX_FLAG_PIN)
	require.True(t, l.GetModuleHandleExW(th, flags, nil, m.Exports["Fn1"], &h))
	assert.Equal(t, types.Handle(m.Base), h)
	assert.True(t, m.Pinned())
	assert.False(t, l.Release(m))
	assert.False(t, l.Release(m))
	assert.NotNil(t, l.Registry().LookupByName("core"), "pinned module stays mapped")

	bad := uint32(types.GET_MODULE_HANDLE_EX_FLAG_PIN | types.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REF)
	assert.False(t, l.GetModuleHandleExW(th, bad, nil, 0, &h))
	assert.Equal(t, types.ERROR_INVALID_PARAMETER, th.LastError())

	assert.False(t, l.GetModuleHandleExW(th, types.GET_MODULE_HANDLE_EX_FLAG_FROM_ADDRESS, nil, 0x10, &h))
	assert.Equal(t, types.ERROR_MOD_NOT_FOUND, th.LastError())
	assert.Zero(t, h)
}

func TestGetProcAddress(t *testing.T) {
	l, os, _ := newTestLoader(t)
	r := &fakeRedirector{procs: map[string]uintptr{
		"core.dll!Fn1":           0xAAA0,
		"user32.dll!MessageBoxA": 0xBBB0,
	}}
	l.SetRedirector(r)
	addDLL(os, testutil.DLL{Name: "core.dll", Exports: []string{"Fn1", "Fn2"}})
	user32 := os.AddModule(sysDir+"user32.dll", "MessageBoxA", "MessageBoxW")
	m, err := l.Load("core")
	require.NoError(t, err)
	th := teb.NewThread()
	core := types.Handle(m.Base)

	assert.Equal(t, uintptr(0xAAA0), l.GetProcAddress(th, core, "Fn1"), "redirected symbol")
	assert.Equal(t, m.Exports["Fn2"], l.GetProcAddress(th, core, "Fn2"))
	assert.Zero(t, os.Calls("GetProcAddress"))

	th.SetLastError(types.ERROR_SUCCESS)
	assert.Zero(t, l.GetProcAddress(th, core, "Fn3"))
	assert.Equal(t, types.ERROR_PROC_NOT_FOUND, th.LastError())
	assert.Zero(t, os.Calls("GetProcAddress"), "private miss is not retried on the application copy")

	assert.Equal(t, uintptr(0xBBB0), l.GetProcAddress(th, user32, "MessageBoxA"))
	assert.Equal(t, os.GetProcAddress(user32, "MessageBoxW"), l.GetProcAddress(th, user32, "MessageBoxW"))
}

func TestLoadLibrary(t *testing.T) {
	l, os, _ := newTestLoader(t)
	addDLL(os, testutil.DLL{Name: "core.dll", Exports: []string{"Fn1"}})
	os.AddModule(sysDir+"user32.dll", "MessageBoxW")
	th := teb.NewThread()

	h := l.LoadLibraryA(th, []byte("core\x00"))
	require.NotZero(t, h)
	name := "core.dll"
	assert.Equal(t, h, l.LoadLibraryW(th, &name))
	assert.Equal(t, 2, l.Registry().LookupByBase(uintptr(h)).Refs())

	// The application's copy is never substituted.
	th.SetLastError(types.ERROR_SUCCESS)
	assert.Zero(t, l.LoadLibraryA(th, []byte("user32")))
	assert.Equal(t, types.ERROR_MOD_NOT_FOUND, th.LastError())

	assert.Zero(t, l.LoadLibraryExW(th, &name, types.Handle(4), 0))
	assert.Equal(t, types.ERROR_INVALID_PARAMETER, th.LastError())

	assert.True(t, l.FreeLibrary(th, h))
	assert.True(t, l.FreeLibrary(th, h))
	assert.Nil(t, l.Registry().LookupByName("core"))
	assert.False(t, l.FreeLibrary(th, h))
	assert.Equal(t, types.ERROR_INVALID_HANDLE, th.LastError())
}

func TestGetModuleFileName(t *testing.T) {
	l, os, _ := newTestLoader(t)
	addDLL(os, testutil.DLL{Name: "core.dll", Exports: []string{"Fn1"}})
	m, err := l.Load("core")
	require.NoError(t, err)
	th := teb.NewThread()
	full := sysDir + "core.dll"

	s, n := l.GetModuleFileNameW(th, types.Handle(m.Base), 260)
	assert.Equal(t, full, s)
	assert.Equal(t, uint32(len(full)), n)
	assert.Equal(t, types.ERROR_SUCCESS, th.LastError())

	s, n = l.GetModuleFileNameW(th, types.Handle(m.Base), 8)
	assert.Equal(t, full[:7], s)
	assert.Equal(t, uint32(8), n)
	assert.Equal(t, types.ERROR_INSUFFICIENT_BUFFER, th.LastError())

	b, n := l.GetModuleFileNameA(th, types.Handle(m.Base), uint32(len(full)))
	assert.Equal(t, full[:len(full)-1], string(b), "no room for the terminator")
	assert.Equal(t, uint32(len(full)), n)

	s, _ = l.GetModuleFileNameW(th, 0, 260)
	assert.Equal(t, `C:\app\app.exe`, s)

	_, n = l.GetModuleFileNameW(th, types.Handle(0x1234), 260)
	assert.Zero(t, n)
	assert.Equal(t, types.ERROR_MOD_NOT_FOUND, th.LastError())
}

func TestLdrEntryPoints(t *testing.T) {
	l, os, _ := newTestLoader(t)
	addDLL(os, testutil.DLL{Name: "core.dll", Exports: []string{"Fn1"}})

	var h types.Handle
	name := "core"
	assert.Equal(t, types.STATUS_INVALID_PARAMETER, l.LdrLoadDll(nil, nil, nil, &h))
	require.Equal(t, types.STATUS_SUCCESS, l.LdrLoadDll(nil, nil, &name, &h))
	m := l.Registry().LookupByBase(uintptr(h))
	require.NotNil(t, m)

	missing := "nothere"
	assert.Equal(t, types.STATUS_UNSUCCESSFUL, l.LdrLoadDll(nil, nil, &missing, &h))

	var addr uintptr
	fn := "Fn1"
	assert.Equal(t, types.STATUS_INVALID_PARAMETER, l.LdrGetProcedureAddress(h, nil, 0, &addr))
	require.Equal(t, types.STATUS_SUCCESS, l.LdrGetProcedureAddress(h, &fn, 0, &addr))
	assert.Equal(t, m.Exports["Fn1"], addr)
	nope := "Nope"
	assert.Equal(t, types.STATUS_UNSUCCESSFUL, l.LdrGetProcedureAddress(h, &nope, 0, &addr))
}

func TestRegisterExternal(t *testing.T) {
	l, _, _ := newTestLoader(t)
	ext := &Module{Name: "Engine", Base: 0x7000_0000, Size: 0x1000}
	require.NoError(t, l.Register(ext))
	assert.Equal(t, "engine.dll", ext.Name)
	assert.Same(t, ext, l.Registry().LookupByName("engine"))
	assert.False(t, l.Release(ext), "external modules are never unmapped")
	require.ErrorIs(t, l.Register(&Module{Name: "engine.dll"}), ErrAlreadyLoaded)
}
