package critsec

import (
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/strtab"
)

// NtdllImports returns the Rtl critical-section entries.
func (s *Shim) NtdllImports() []strtab.Import {
	return []strtab.Import{
		{Name: "RtlDeleteCriticalSection", Func: s.Delete},
		{Name: "RtlInitializeCriticalSection", Func: func(cs *types.CriticalSection) types.NTStatus {
			return s.Initialize(cs, 0, 0)
		}},
		{Name: "RtlInitializeCriticalSectionAndSpinCount", Func: func(cs *types.CriticalSection, spin uint32) types.NTStatus {
			return s.Initialize(cs, spin, 0)
		}},
		{Name: "RtlInitializeCriticalSectionEx", Func: s.Initialize},
	}
}

// KernelImports returns the kernel32 critical-section entries.
func (s *Shim) KernelImports() []strtab.Import {
	return []strtab.Import{
		{Name: "DeleteCriticalSection", Func: s.DeleteCriticalSection},
		{Name: "InitializeCriticalSection", Func: s.InitializeCriticalSection},
		{Name: "InitializeCriticalSectionAndSpinCount", Func: s.InitializeCriticalSectionAndSpinCount},
		{Name: "InitializeCriticalSectionEx", Func: s.InitializeCriticalSectionEx},
	}
}
