package ntshim

import (
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/strtab"
)

// The ignore stubs replace ntdll routines that would register process-wide
// callbacks or tear down state the application owns. They accept and drop
// their arguments (the suffix is the argument size in bytes on x86) and
// report success.

func IgnoreArgs0() bool                           { return true }
func IgnoreArgs4(uintptr) bool                    { return true }
func IgnoreArgs8(uintptr, uintptr) bool           { return true }
func IgnoreArgs12(uintptr, uintptr, uintptr) bool { return true }

// syscalls lists the pass-through routines by their Nt name.
func (s *Shim) syscalls() []strtab.Import {
	return []strtab.Import{
		{Name: "NtCreateFile", Func: s.NtCreateFile},
		{Name: "NtCreateKey", Func: s.NtCreateKey},
		{Name: "NtMapViewOfSection", Func: s.NtMapViewOfSection},
		{Name: "NtOpenFile", Func: s.NtOpenFile},
		{Name: "NtOpenKey", Func: s.NtOpenKey},
		{Name: "NtOpenKeyEx", Func: s.NtOpenKeyEx},
		{Name: "NtOpenProcess", Func: s.NtOpenProcess},
		{Name: "NtOpenProcessToken", Func: s.NtOpenProcessToken},
		{Name: "NtOpenProcessTokenEx", Func: s.NtOpenProcessTokenEx},
		{Name: "NtOpenThread", Func: s.NtOpenThread},
		{Name: "NtOpenThreadToken", Func: s.NtOpenThreadToken},
		{Name: "NtOpenThreadTokenEx", Func: s.NtOpenThreadTokenEx},
		{Name: "NtQueryAttributesFile", Func: s.NtQueryAttributesFile},
		{Name: "NtQueryFullAttributesFile", Func: s.NtQueryFullAttributesFile},
		{Name: "NtSetInformationFile", Func: s.NtSetInformationFile},
		{Name: "NtSetInformationThread", Func: s.NtSetInformationThread},
		{Name: "NtUnmapViewOfSection", Func: s.NtUnmapViewOfSection},
	}
}

// Imports returns the ntdll entries this package provides: every syscall
// under its Nt and Zw names, then the ignore stubs.
func (s *Shim) Imports() []strtab.Import {
	sys := s.syscalls()
	out := make([]strtab.Import, 0, 2*len(sys)+4)
	for _, imp := range sys {
		out = append(out, imp, strtab.Import{Name: "Zw" + imp.Name[2:], Func: imp.Func})
	}
	return append(out,
		strtab.Import{Name: "LdrSetDllManifestProber", Func: IgnoreArgs4},
		strtab.Import{Name: "RtlSetThreadPoolStartFunc", Func: IgnoreArgs8},
		strtab.Import{Name: "RtlSetUnhandledExceptionFilter", Func: IgnoreArgs4},
		strtab.Import{Name: "RtlCleanUpTEBLangLists", Func: IgnoreArgs0},
	)
}

// OverrideImports returns the entries that take precedence over Imports on
// the given release, or nil when there are none. Windows 7 added a third
// argument to LdrSetDllManifestProber.
func OverrideImports(v types.WindowsVersion) []strtab.Import {
	if v < types.Windows7 {
		return nil
	}
	return []strtab.Import{
		{Name: "LdrSetDllManifestProber", Func: IgnoreArgs12},
	}
}
