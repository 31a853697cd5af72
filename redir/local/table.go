package local

import "github.com/joshuapare/winredir/redir/strtab"

// Imports returns the kernel32 Local* and Global* entries.
func (a *Allocator) Imports() []strtab.Import {
	return []strtab.Import{
		{Name: "GlobalAlloc", Func: a.GlobalAlloc},
		{Name: "GlobalFlags", Func: a.GlobalFlags},
		{Name: "GlobalFree", Func: a.GlobalFree},
		{Name: "GlobalHandle", Func: a.GlobalHandle},
		{Name: "GlobalLock", Func: a.GlobalLock},
		{Name: "GlobalReAlloc", Func: a.GlobalReAlloc},
		{Name: "GlobalSize", Func: a.GlobalSize},
		{Name: "GlobalUnlock", Func: a.GlobalUnlock},
		{Name: "LocalAlloc", Func: a.Alloc},
		{Name: "LocalFlags", Func: a.Flags},
		{Name: "LocalFree", Func: a.Free},
		{Name: "LocalHandle", Func: a.Handle},
		{Name: "LocalLock", Func: a.Lock},
		{Name: "LocalReAlloc", Func: a.ReAlloc},
		{Name: "LocalSize", Func: a.Size},
		{Name: "LocalUnlock", Func: a.Unlock},
	}
}
