package modules

import "github.com/joshuapare/winredir/redir/strtab"

// KernelImports returns the kernel32 loader entries.
func (l *Loader) KernelImports() []strtab.Import {
	return []strtab.Import{
		{Name: "FreeLibrary", Func: l.FreeLibrary},
		{Name: "GetModuleFileNameA", Func: l.GetModuleFileNameA},
		{Name: "GetModuleFileNameW", Func: l.GetModuleFileNameW},
		{Name: "GetModuleHandleA", Func: l.GetModuleHandleA},
		{Name: "GetModuleHandleExA", Func: l.GetModuleHandleExA},
		{Name: "GetModuleHandleExW", Func: l.GetModuleHandleExW},
		{Name: "GetModuleHandleW", Func: l.GetModuleHandleW},
		{Name: "GetProcAddress", Func: l.GetProcAddress},
		{Name: "LoadLibraryA", Func: l.LoadLibraryA},
		{Name: "LoadLibraryExA", Func: l.LoadLibraryExA},
		{Name: "LoadLibraryExW", Func: l.LoadLibraryExW},
		{Name: "LoadLibraryW", Func: l.LoadLibraryW},
	}
}

// NtdllImports returns the Ldr entries.
func (l *Loader) NtdllImports() []strtab.Import {
	return []strtab.Import{
		{Name: "LdrGetProcedureAddress", Func: l.LdrGetProcedureAddress},
		{Name: "LdrLoadDll", Func: l.LdrLoadDll},
	}
}
