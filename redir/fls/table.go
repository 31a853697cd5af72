package fls

import "github.com/joshuapare/winredir/redir/strtab"

// Imports returns the kernel32 FLS entries.
func (s *State) Imports() []strtab.Import {
	return []strtab.Import{
		{Name: "FlsAlloc", Func: s.FlsAlloc},
		{Name: "FlsFree", Func: s.FlsFree},
		{Name: "FlsGetValue", Func: s.FlsGetValue},
		{Name: "FlsSetValue", Func: s.FlsSetValue},
	}
}
