// Package native declares the real-OS entry points the redirection layer
// forwards to. A shim captures a native.OS once when its isolation domain is
// created and calls it directly, so forwarding never re-enters redirection.
//
// Two backends exist: native/sim, an in-memory NT kernel used by tests and
// the CLI, and native/winnt, which calls ntdll on Windows.
package native

import "github.com/joshuapare/winredir/pkg/types"

// Heap is the ntdll heap surface.
type Heap interface {
	GetProcessHeap() types.Handle
	RtlCreateHeap(flags uint32, reserve, commit uintptr) types.Handle
	// RtlDestroyHeap returns 0 on success and the heap handle on failure.
	RtlDestroyHeap(h types.Handle) types.Handle
	RtlAllocateHeap(h types.Handle, flags uint32, size uintptr) uintptr
	RtlReAllocateHeap(h types.Handle, flags uint32, ptr, size uintptr) uintptr
	RtlFreeHeap(h types.Handle, flags uint32, ptr uintptr) bool
	// RtlSizeHeap returns ^uintptr(0) for a pointer the heap does not own.
	RtlSizeHeap(h types.Handle, flags uint32, ptr uintptr) uintptr
	RtlValidateHeap(h types.Handle, flags uint32, ptr uintptr) bool
	RtlLockHeap(h types.Handle) bool
	RtlUnlockHeap(h types.Handle) bool
	RtlCompactHeap(h types.Handle, flags uint32) uintptr
	RtlWalkHeap(h types.Handle, entry *types.HeapEntry) types.NTStatus
	RtlSetHeapInformation(h types.Handle, class uint32, info []byte) types.NTStatus
	// RtlFreeString releases the buffer of a Unicode, ANSI or OEM string
	// allocated by the OS.
	RtlFreeString(s *types.CountedString)
	// HeapBytes returns a writable view of n bytes at ptr inside a block
	// the OS heap handed out, or nil.
	HeapBytes(ptr uintptr, n int) []byte
}

// Kernel is the raw system-call surface.
type Kernel interface {
	NtClose(h types.Handle) types.NTStatus
	NtDuplicateObject(srcProcess, src, dstProcess types.Handle, access, attributes, options uint32) (types.Handle, types.NTStatus)

	NtCreateFile(access uint32, oa *types.ObjectAttributes, iosb *types.IoStatusBlock, allocationSize int64, attributes, share, disposition, options uint32) (types.Handle, types.NTStatus)
	NtOpenFile(access uint32, oa *types.ObjectAttributes, iosb *types.IoStatusBlock, share, options uint32) (types.Handle, types.NTStatus)
	NtQueryAttributesFile(oa *types.ObjectAttributes, info *types.FileBasicInformation) types.NTStatus
	NtQueryFullAttributesFile(oa *types.ObjectAttributes, info *types.FileNetworkOpenInformation) types.NTStatus
	NtSetInformationFile(h types.Handle, iosb *types.IoStatusBlock, info []byte, class types.FileInformationClass) types.NTStatus
	// NtQueryDirectoryFile returns one entry per call. pattern is honored on
	// the first call for a handle or when restart is set.
	NtQueryDirectoryFile(h types.Handle, iosb *types.IoStatusBlock, info *types.FileDirectoryInformation, pattern string, restart bool) types.NTStatus
	NtCreateNamedPipeFile(access uint32, oa *types.ObjectAttributes, iosb *types.IoStatusBlock, share, disposition, options, quota uint32, timeout int64) (types.Handle, types.NTStatus)

	NtCreateKey(access uint32, oa *types.ObjectAttributes, options uint32) (types.Handle, uint32, types.NTStatus)
	NtOpenKey(access uint32, oa *types.ObjectAttributes) (types.Handle, types.NTStatus)
	NtOpenKeyEx(access uint32, oa *types.ObjectAttributes, options uint32) (types.Handle, types.NTStatus)
	// NtQueryValueKey fills out and returns the length the full result needs.
	NtQueryValueKey(key types.Handle, name string, class types.KeyValueInformationClass, out []byte) (uint32, types.NTStatus)

	NtOpenProcess(access uint32, oa *types.ObjectAttributes, cid *types.ClientID) (types.Handle, types.NTStatus)
	NtOpenThread(access uint32, oa *types.ObjectAttributes, cid *types.ClientID) (types.Handle, types.NTStatus)
	NtOpenProcessTokenEx(process types.Handle, access, attributes uint32) (types.Handle, types.NTStatus)
	NtOpenThreadTokenEx(thread types.Handle, access uint32, openAsSelf bool, attributes uint32) (types.Handle, types.NTStatus)
	// NtQueryTokenUser returns the token user's SID in S-1-... form.
	NtQueryTokenUser(token types.Handle) (string, types.NTStatus)
	NtSetInformationThread(thread types.Handle, class types.ThreadInformationClass, info []byte) types.NTStatus

	NtMapViewOfSection(section, process types.Handle, base, viewSize uintptr, protect uint32) (uintptr, uintptr, types.NTStatus)
	NtUnmapViewOfSection(process types.Handle, base uintptr) types.NTStatus

	// NtWaitForSingleObject takes a relative (negative) timeout in 100ns
	// units; nil waits forever.
	NtWaitForSingleObject(h types.Handle, alertable bool, timeout *int64) types.NTStatus

	RtlDeleteCriticalSection(cs *types.CriticalSection) types.NTStatus

	CurrentProcessID() uintptr
	CurrentThreadID() uintptr
}

// Loader is the application's (real) loader.
type Loader interface {
	GetModuleHandle(name string) types.Handle
	GetProcAddress(mod types.Handle, name string) uintptr
	GetModuleFileName(mod types.Handle) (string, bool)
	// FindImage locates a library image for the private loader. Names
	// without a directory are searched for on the library search path.
	FindImage(name string) (path string, data []byte, err error)
}

// OS is everything a redirection domain forwards to.
type OS interface {
	Heap
	Kernel
	Loader
}
