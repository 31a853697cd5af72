package heap

import "github.com/joshuapare/winredir/redir/strtab"

// NtdllImports returns the Rtl heap and counted-string entries.
func (s *Shim) NtdllImports() []strtab.Import {
	return []strtab.Import{
		{Name: "RtlAllocateHeap", Func: s.Alloc},
		{Name: "RtlCreateHeap", Func: s.Create},
		{Name: "RtlDestroyHeap", Func: s.Destroy},
		{Name: "RtlFreeAnsiString", Func: s.FreeString},
		{Name: "RtlFreeHeap", Func: s.Free},
		{Name: "RtlFreeOemString", Func: s.FreeString},
		{Name: "RtlFreeUnicodeString", Func: s.FreeString},
		{Name: "RtlLockHeap", Func: s.Lock},
		{Name: "RtlReAllocateHeap", Func: s.ReAlloc},
		{Name: "RtlSetHeapInformation", Func: s.SetInformation},
		{Name: "RtlSizeHeap", Func: s.Size},
		{Name: "RtlUnlockHeap", Func: s.Unlock},
		{Name: "RtlValidateHeap", Func: s.Validate},
		{Name: "RtlWalkHeap", Func: s.Walk},
	}
}

// KernelImports returns the kernel32 heap entries.
func (s *Shim) KernelImports() []strtab.Import {
	return []strtab.Import{
		{Name: "GetProcessHeap", Func: s.GetProcessHeap},
		{Name: "HeapAlloc", Func: s.HeapAlloc},
		{Name: "HeapCompact", Func: s.HeapCompact},
		{Name: "HeapCreate", Func: s.HeapCreate},
		{Name: "HeapDestroy", Func: s.HeapDestroy},
		{Name: "HeapFree", Func: s.HeapFree},
		{Name: "HeapLock", Func: s.HeapLock},
		{Name: "HeapReAlloc", Func: s.HeapReAlloc},
		{Name: "HeapSetInformation", Func: s.HeapSetInformation},
		{Name: "HeapSize", Func: s.HeapSize},
		{Name: "HeapUnlock", Func: s.HeapUnlock},
		{Name: "HeapValidate", Func: s.HeapValidate},
		{Name: "HeapWalk", Func: s.HeapWalk},
	}
}
