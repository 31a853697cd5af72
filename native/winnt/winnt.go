//go:build windows

// Package winnt forwards native.OS calls to the real ntdll and kernel32.
package winnt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/joshuapare/winredir/internal/buf"
	"github.com/joshuapare/winredir/internal/textconv"
	"github.com/joshuapare/winredir/native"
	"github.com/joshuapare/winredir/pkg/types"
)

var _ native.OS = (*OS)(nil)

var (
	modNtdll    = windows.NewLazySystemDLL("ntdll.dll")
	modKernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procRtlCreateHeap           = modNtdll.NewProc("RtlCreateHeap")
	procRtlDestroyHeap          = modNtdll.NewProc("RtlDestroyHeap")
	procRtlAllocateHeap         = modNtdll.NewProc("RtlAllocateHeap")
	procRtlReAllocateHeap       = modNtdll.NewProc("RtlReAllocateHeap")
	procRtlFreeHeap             = modNtdll.NewProc("RtlFreeHeap")
	procRtlSizeHeap             = modNtdll.NewProc("RtlSizeHeap")
	procRtlValidateHeap         = modNtdll.NewProc("RtlValidateHeap")
	procRtlLockHeap             = modNtdll.NewProc("RtlLockHeap")
	procRtlUnlockHeap           = modNtdll.NewProc("RtlUnlockHeap")
	procRtlCompactHeap          = modNtdll.NewProc("RtlCompactHeap")
	procRtlWalkHeap             = modNtdll.NewProc("RtlWalkHeap")
	procRtlSetHeapInformation   = modNtdll.NewProc("RtlSetHeapInformation")
	procRtlFreeUnicodeString    = modNtdll.NewProc("RtlFreeUnicodeString")
	procRtlDeleteCriticalSecton = modNtdll.NewProc("RtlDeleteCriticalSection")

	procNtClose                   = modNtdll.NewProc("NtClose")
	procNtDuplicateObject         = modNtdll.NewProc("NtDuplicateObject")
	procNtCreateFile              = modNtdll.NewProc("NtCreateFile")
	procNtOpenFile                = modNtdll.NewProc("NtOpenFile")
	procNtQueryAttributesFile     = modNtdll.NewProc("NtQueryAttributesFile")
	procNtQueryFullAttributesFile = modNtdll.NewProc("NtQueryFullAttributesFile")
	procNtSetInformationFile      = modNtdll.NewProc("NtSetInformationFile")
	procNtQueryDirectoryFile      = modNtdll.NewProc("NtQueryDirectoryFile")
	procNtCreateNamedPipeFile     = modNtdll.NewProc("NtCreateNamedPipeFile")
	procNtCreateKey               = modNtdll.NewProc("NtCreateKey")
	procNtOpenKey                 = modNtdll.NewProc("NtOpenKey")
	procNtOpenKeyEx               = modNtdll.NewProc("NtOpenKeyEx")
	procNtQueryValueKey           = modNtdll.NewProc("NtQueryValueKey")
	procNtOpenProcess             = modNtdll.NewProc("NtOpenProcess")
	procNtOpenThread              = modNtdll.NewProc("NtOpenThread")
	procNtOpenProcessTokenEx      = modNtdll.NewProc("NtOpenProcessTokenEx")
	procNtOpenThreadTokenEx       = modNtdll.NewProc("NtOpenThreadTokenEx")
	procNtQueryInformationToken   = modNtdll.NewProc("NtQueryInformationToken")
	procNtSetInformationThread    = modNtdll.NewProc("NtSetInformationThread")
	procNtMapViewOfSection        = modNtdll.NewProc("NtMapViewOfSection")
	procNtUnmapViewOfSection      = modNtdll.NewProc("NtUnmapViewOfSection")
	procNtWaitForSingleObject     = modNtdll.NewProc("NtWaitForSingleObject")

	procGetProcessHeap   = modKernel32.NewProc("GetProcessHeap")
	procGetModuleHandleW = modKernel32.NewProc("GetModuleHandleW")
)

const (
	fileBothDirectoryInformation = 3
	tokenUserClass               = 1
	viewShare                    = 1

	// FILE_BOTH_DIR_INFORMATION field offsets.
	dirCreationTime   = 8
	dirLastAccessTime = 16
	dirLastWriteTime  = 24
	dirEndOfFile      = 40
	dirAllocationSize = 48
	dirAttributes     = 56
	dirNameLength     = 60
	dirShortLength    = 68
	dirShortName      = 70
	dirFileName       = 94

	dirBufferSize   = 4096
	tokenBufferSize = 256
)

// OS calls the real system. SearchPaths extends the system directory when
// FindImage resolves a bare library name.
type OS struct {
	SearchPaths []string
}

// New returns the real-OS backend.
func New(searchPaths []string) *OS {
	return &OS{SearchPaths: searchPaths}
}

func status(r uintptr) types.NTStatus { return types.NTStatus(uint32(r)) }

func boolean(r uintptr) bool { return byte(r) != 0 }

func ptrOf[T any](p *T) uintptr { return uintptr(unsafe.Pointer(p)) }

// objectAttributes converts to the kernel structure. The returned value
// keeps the name buffer alive for the duration of the call.
func objectAttributes(a *types.ObjectAttributes) (*windows.OBJECT_ATTRIBUTES, types.NTStatus) {
	if a == nil {
		return nil, types.STATUS_SUCCESS
	}
	name, err := windows.NewNTUnicodeString(a.ObjectName)
	if err != nil {
		return nil, types.STATUS_OBJECT_NAME_INVALID
	}
	oa := &windows.OBJECT_ATTRIBUTES{
		RootDirectory: windows.Handle(a.RootDirectory),
		ObjectName:    name,
		Attributes:    a.Attributes,
	}
	oa.Length = uint32(unsafe.Sizeof(*oa))
	if a.SecurityDescriptor != 0 {
		oa.SecurityDescriptor = (*windows.SECURITY_DESCRIPTOR)(unsafe.Pointer(a.SecurityDescriptor))
	}
	return oa, types.STATUS_SUCCESS
}

func copyIOSB(dst *types.IoStatusBlock, src *windows.IO_STATUS_BLOCK) {
	if dst != nil {
		dst.Status = types.NTStatus(src.Status)
		dst.Information = src.Information
	}
}

func (o *OS) GetProcessHeap() types.Handle {
	r, _, _ := procGetProcessHeap.Call()
	return types.Handle(r)
}

func (o *OS) RtlCreateHeap(flags uint32, reserve, commit uintptr) types.Handle {
	r, _, _ := procRtlCreateHeap.Call(uintptr(flags), 0, reserve, commit, 0, 0)
	return types.Handle(r)
}

func (o *OS) RtlDestroyHeap(h types.Handle) types.Handle {
	r, _, _ := procRtlDestroyHeap.Call(uintptr(h))
	return types.Handle(r)
}

func (o *OS) RtlAllocateHeap(h types.Handle, flags uint32, size uintptr) uintptr {
	r, _, _ := procRtlAllocateHeap.Call(uintptr(h), uintptr(flags), size)
	return r
}

func (o *OS) RtlReAllocateHeap(h types.Handle, flags uint32, ptr, size uintptr) uintptr {
	r, _, _ := procRtlReAllocateHeap.Call(uintptr(h), uintptr(flags), ptr, size)
	return r
}

func (o *OS) RtlFreeHeap(h types.Handle, flags uint32, ptr uintptr) bool {
	r, _, _ := procRtlFreeHeap.Call(uintptr(h), uintptr(flags), ptr)
	return boolean(r)
}

func (o *OS) RtlSizeHeap(h types.Handle, flags uint32, ptr uintptr) uintptr {
	r, _, _ := procRtlSizeHeap.Call(uintptr(h), uintptr(flags), ptr)
	return r
}

// HeapBytes views process memory directly; ptr must come from a live heap
// block.
func (o *OS) HeapBytes(ptr uintptr, n int) []byte {
	if ptr == 0 || n < 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)
}

func (o *OS) RtlValidateHeap(h types.Handle, flags uint32, ptr uintptr) bool {
	r, _, _ := procRtlValidateHeap.Call(uintptr(h), uintptr(flags), ptr)
	return boolean(r)
}

func (o *OS) RtlLockHeap(h types.Handle) bool {
	r, _, _ := procRtlLockHeap.Call(uintptr(h))
	return boolean(r)
}

func (o *OS) RtlUnlockHeap(h types.Handle) bool {
	r, _, _ := procRtlUnlockHeap.Call(uintptr(h))
	return boolean(r)
}

func (o *OS) RtlCompactHeap(h types.Handle, flags uint32) uintptr {
	r, _, _ := procRtlCompactHeap.Call(uintptr(h), uintptr(flags))
	return r
}

// heapWalkEntry is RTL_HEAP_WALK_ENTRY; the trailing union is opaque.
type heapWalkEntry struct {
	DataAddress   uintptr
	DataSize      uintptr
	OverheadBytes uint8
	SegmentIndex  uint8
	Flags         uint16
	union         [4]uintptr
}

func (o *OS) RtlWalkHeap(h types.Handle, entry *types.HeapEntry) types.NTStatus {
	if entry == nil {
		return types.STATUS_INVALID_PARAMETER
	}
	w := heapWalkEntry{DataAddress: entry.Data}
	r, _, _ := procRtlWalkHeap.Call(uintptr(h), ptrOf(&w))
	entry.Data = w.DataAddress
	entry.Size = uint32(w.DataSize)
	entry.Overhead = w.OverheadBytes
	entry.RegionIndex = w.SegmentIndex
	entry.Flags = w.Flags
	return status(r)
}

func (o *OS) RtlSetHeapInformation(h types.Handle, class uint32, info []byte) types.NTStatus {
	var p uintptr
	if len(info) > 0 {
		p = uintptr(unsafe.Pointer(&info[0]))
	}
	r, _, _ := procRtlSetHeapInformation.Call(uintptr(h), uintptr(class), p, uintptr(len(info)))
	return status(r)
}

func (o *OS) RtlFreeString(s *types.CountedString) {
	procRtlFreeUnicodeString.Call(ptrOf(s))
}

func (o *OS) RtlDeleteCriticalSection(cs *types.CriticalSection) types.NTStatus {
	r, _, _ := procRtlDeleteCriticalSecton.Call(ptrOf(cs))
	return status(r)
}

func (o *OS) NtClose(h types.Handle) types.NTStatus {
	r, _, _ := procNtClose.Call(uintptr(h))
	return status(r)
}

func (o *OS) NtDuplicateObject(srcProcess, src, dstProcess types.Handle, access, attributes, options uint32) (types.Handle, types.NTStatus) {
	var out windows.Handle
	r, _, _ := procNtDuplicateObject.Call(uintptr(srcProcess), uintptr(src), uintptr(dstProcess),
		ptrOf(&out), uintptr(access), uintptr(attributes), uintptr(options))
	return types.Handle(out), status(r)
}

func (o *OS) NtCreateFile(access uint32, a *types.ObjectAttributes, iosb *types.IoStatusBlock, allocationSize int64, attributes, share, disposition, options uint32) (types.Handle, types.NTStatus) {
	oa, st := objectAttributes(a)
	if !st.IsSuccess() {
		return 0, st
	}
	var h windows.Handle
	var io windows.IO_STATUS_BLOCK
	var alloc uintptr
	if allocationSize != 0 {
		alloc = ptrOf(&allocationSize)
	}
	r, _, _ := procNtCreateFile.Call(ptrOf(&h), uintptr(access), ptrOf(oa), ptrOf(&io), alloc,
		uintptr(attributes), uintptr(share), uintptr(disposition), uintptr(options), 0, 0)
	copyIOSB(iosb, &io)
	return types.Handle(h), status(r)
}

func (o *OS) NtOpenFile(access uint32, a *types.ObjectAttributes, iosb *types.IoStatusBlock, share, options uint32) (types.Handle, types.NTStatus) {
	oa, st := objectAttributes(a)
	if !st.IsSuccess() {
		return 0, st
	}
	var h windows.Handle
	var io windows.IO_STATUS_BLOCK
	r, _, _ := procNtOpenFile.Call(ptrOf(&h), uintptr(access), ptrOf(oa), ptrOf(&io), uintptr(share), uintptr(options))
	copyIOSB(iosb, &io)
	return types.Handle(h), status(r)
}

func (o *OS) NtQueryAttributesFile(a *types.ObjectAttributes, info *types.FileBasicInformation) types.NTStatus {
	oa, st := objectAttributes(a)
	if !st.IsSuccess() {
		return st
	}
	var raw [40]byte
	r, _, _ := procNtQueryAttributesFile.Call(ptrOf(oa), uintptr(unsafe.Pointer(&raw[0])))
	if status(r).IsSuccess() && info != nil {
		*info = types.FileBasicInformation{
			CreationTime:   int64(buf.U64LE(raw[0:])),
			LastAccessTime: int64(buf.U64LE(raw[8:])),
			LastWriteTime:  int64(buf.U64LE(raw[16:])),
			ChangeTime:     int64(buf.U64LE(raw[24:])),
			FileAttributes: buf.U32LE(raw[32:]),
		}
	}
	return status(r)
}

func (o *OS) NtQueryFullAttributesFile(a *types.ObjectAttributes, info *types.FileNetworkOpenInformation) types.NTStatus {
	oa, st := objectAttributes(a)
	if !st.IsSuccess() {
		return st
	}
	var raw [56]byte
	r, _, _ := procNtQueryFullAttributesFile.Call(ptrOf(oa), uintptr(unsafe.Pointer(&raw[0])))
	if status(r).IsSuccess() && info != nil {
		*info = types.FileNetworkOpenInformation{
			CreationTime:   int64(buf.U64LE(raw[0:])),
			LastAccessTime: int64(buf.U64LE(raw[8:])),
			LastWriteTime:  int64(buf.U64LE(raw[16:])),
			ChangeTime:     int64(buf.U64LE(raw[24:])),
			AllocationSize: int64(buf.U64LE(raw[32:])),
			EndOfFile:      int64(buf.U64LE(raw[40:])),
			FileAttributes: buf.U32LE(raw[48:]),
		}
	}
	return status(r)
}

func (o *OS) NtSetInformationFile(h types.Handle, iosb *types.IoStatusBlock, info []byte, class types.FileInformationClass) types.NTStatus {
	var io windows.IO_STATUS_BLOCK
	var p uintptr
	if len(info) > 0 {
		p = uintptr(unsafe.Pointer(&info[0]))
	}
	r, _, _ := procNtSetInformationFile.Call(uintptr(h), ptrOf(&io), p, uintptr(len(info)), uintptr(class))
	copyIOSB(iosb, &io)
	return status(r)
}

func (o *OS) NtQueryDirectoryFile(h types.Handle, iosb *types.IoStatusBlock, info *types.FileDirectoryInformation, pattern string, restart bool) types.NTStatus {
	var io windows.IO_STATUS_BLOCK
	var raw [dirBufferSize]byte
	var name *windows.NTUnicodeString
	if pattern != "" {
		var err error
		if name, err = windows.NewNTUnicodeString(pattern); err != nil {
			return types.STATUS_OBJECT_NAME_INVALID
		}
	}
	var rs uintptr
	if restart {
		rs = 1
	}
	r, _, _ := procNtQueryDirectoryFile.Call(uintptr(h), 0, 0, 0, ptrOf(&io),
		uintptr(unsafe.Pointer(&raw[0])), dirBufferSize, fileBothDirectoryInformation, 1, ptrOf(name), rs)
	copyIOSB(iosb, &io)
	st := status(r)
	if st.IsSuccess() && info != nil {
		nameLen := int(buf.U32LE(raw[dirNameLength:]))
		shortLen := int(raw[dirShortLength])
		*info = types.FileDirectoryInformation{
			FileName:       textconv.WideToString(raw[dirFileName : dirFileName+nameLen]),
			ShortName:      textconv.WideToString(raw[dirShortName : dirShortName+shortLen]),
			FileAttributes: buf.U32LE(raw[dirAttributes:]),
			CreationTime:   int64(buf.U64LE(raw[dirCreationTime:])),
			LastAccessTime: int64(buf.U64LE(raw[dirLastAccessTime:])),
			LastWriteTime:  int64(buf.U64LE(raw[dirLastWriteTime:])),
			EndOfFile:      int64(buf.U64LE(raw[dirEndOfFile:])),
			AllocationSize: int64(buf.U64LE(raw[dirAllocationSize:])),
		}
	}
	return st
}

func (o *OS) NtCreateNamedPipeFile(access uint32, a *types.ObjectAttributes, iosb *types.IoStatusBlock, share, disposition, options, quota uint32, timeout int64) (types.Handle, types.NTStatus) {
	oa, st := objectAttributes(a)
	if !st.IsSuccess() {
		return 0, st
	}
	var h windows.Handle
	var io windows.IO_STATUS_BLOCK
	r, _, _ := procNtCreateNamedPipeFile.Call(ptrOf(&h), uintptr(access), ptrOf(oa), ptrOf(&io),
		uintptr(share), uintptr(disposition), uintptr(options),
		0, 0, 0, 1, uintptr(quota), uintptr(quota), ptrOf(&timeout))
	copyIOSB(iosb, &io)
	return types.Handle(h), status(r)
}

func (o *OS) NtCreateKey(access uint32, a *types.ObjectAttributes, options uint32) (types.Handle, uint32, types.NTStatus) {
	oa, st := objectAttributes(a)
	if !st.IsSuccess() {
		return 0, 0, st
	}
	var h windows.Handle
	var disp uint32
	r, _, _ := procNtCreateKey.Call(ptrOf(&h), uintptr(access), ptrOf(oa), 0, 0, uintptr(options), ptrOf(&disp))
	return types.Handle(h), disp, status(r)
}

func (o *OS) NtOpenKey(access uint32, a *types.ObjectAttributes) (types.Handle, types.NTStatus) {
	oa, st := objectAttributes(a)
	if !st.IsSuccess() {
		return 0, st
	}
	var h windows.Handle
	r, _, _ := procNtOpenKey.Call(ptrOf(&h), uintptr(access), ptrOf(oa))
	return types.Handle(h), status(r)
}

func (o *OS) NtOpenKeyEx(access uint32, a *types.ObjectAttributes, options uint32) (types.Handle, types.NTStatus) {
	oa, st := objectAttributes(a)
	if !st.IsSuccess() {
		return 0, st
	}
	var h windows.Handle
	r, _, _ := procNtOpenKeyEx.Call(ptrOf(&h), uintptr(access), ptrOf(oa), uintptr(options))
	return types.Handle(h), status(r)
}

func (o *OS) NtQueryValueKey(key types.Handle, name string, class types.KeyValueInformationClass, out []byte) (uint32, types.NTStatus) {
	us, err := windows.NewNTUnicodeString(name)
	if err != nil {
		return 0, types.STATUS_OBJECT_NAME_INVALID
	}
	var p uintptr
	if len(out) > 0 {
		p = uintptr(unsafe.Pointer(&out[0]))
	}
	var n uint32
	r, _, _ := procNtQueryValueKey.Call(uintptr(key), ptrOf(us), uintptr(class), p, uintptr(len(out)), ptrOf(&n))
	return n, status(r)
}

func (o *OS) NtOpenProcess(access uint32, a *types.ObjectAttributes, cid *types.ClientID) (types.Handle, types.NTStatus) {
	if a == nil {
		a = &types.ObjectAttributes{}
	}
	oa, st := objectAttributes(a)
	if !st.IsSuccess() {
		return 0, st
	}
	var h windows.Handle
	r, _, _ := procNtOpenProcess.Call(ptrOf(&h), uintptr(access), ptrOf(oa), ptrOf(cid))
	return types.Handle(h), status(r)
}

func (o *OS) NtOpenThread(access uint32, a *types.ObjectAttributes, cid *types.ClientID) (types.Handle, types.NTStatus) {
	if a == nil {
		a = &types.ObjectAttributes{}
	}
	oa, st := objectAttributes(a)
	if !st.IsSuccess() {
		return 0, st
	}
	var h windows.Handle
	r, _, _ := procNtOpenThread.Call(ptrOf(&h), uintptr(access), ptrOf(oa), ptrOf(cid))
	return types.Handle(h), status(r)
}

func (o *OS) NtOpenProcessTokenEx(process types.Handle, access, attributes uint32) (types.Handle, types.NTStatus) {
	var h windows.Handle
	r, _, _ := procNtOpenProcessTokenEx.Call(uintptr(process), uintptr(access), uintptr(attributes), ptrOf(&h))
	return types.Handle(h), status(r)
}

func (o *OS) NtOpenThreadTokenEx(thread types.Handle, access uint32, openAsSelf bool, attributes uint32) (types.Handle, types.NTStatus) {
	var h windows.Handle
	var self uintptr
	if openAsSelf {
		self = 1
	}
	r, _, _ := procNtOpenThreadTokenEx.Call(uintptr(thread), uintptr(access), self, uintptr(attributes), ptrOf(&h))
	return types.Handle(h), status(r)
}

func (o *OS) NtQueryTokenUser(token types.Handle) (string, types.NTStatus) {
	var raw [tokenBufferSize]byte
	var n uint32
	r, _, _ := procNtQueryInformationToken.Call(uintptr(token), tokenUserClass,
		uintptr(unsafe.Pointer(&raw[0])), tokenBufferSize, ptrOf(&n))
	if st := status(r); !st.IsSuccess() {
		return "", st
	}
	tu := (*windows.Tokenuser)(unsafe.Pointer(&raw[0]))
	return tu.User.Sid.String(), types.STATUS_SUCCESS
}

func (o *OS) NtSetInformationThread(thread types.Handle, class types.ThreadInformationClass, info []byte) types.NTStatus {
	var p uintptr
	if len(info) > 0 {
		p = uintptr(unsafe.Pointer(&info[0]))
	}
	r, _, _ := procNtSetInformationThread.Call(uintptr(thread), uintptr(class), p, uintptr(len(info)))
	return status(r)
}

func (o *OS) NtMapViewOfSection(section, process types.Handle, base, viewSize uintptr, protect uint32) (uintptr, uintptr, types.NTStatus) {
	r, _, _ := procNtMapViewOfSection.Call(uintptr(section), uintptr(process), ptrOf(&base), 0, 0, 0,
		ptrOf(&viewSize), viewShare, 0, uintptr(protect))
	return base, viewSize, status(r)
}

func (o *OS) NtUnmapViewOfSection(process types.Handle, base uintptr) types.NTStatus {
	r, _, _ := procNtUnmapViewOfSection.Call(uintptr(process), base)
	return status(r)
}

func (o *OS) NtWaitForSingleObject(h types.Handle, alertable bool, timeout *int64) types.NTStatus {
	var a uintptr
	if alertable {
		a = 1
	}
	r, _, _ := procNtWaitForSingleObject.Call(uintptr(h), a, ptrOf(timeout))
	return status(r)
}

func (o *OS) CurrentProcessID() uintptr { return uintptr(windows.GetCurrentProcessId()) }

func (o *OS) CurrentThreadID() uintptr { return uintptr(windows.GetCurrentThreadId()) }

func (o *OS) GetModuleHandle(name string) types.Handle {
	var p *uint16
	if name != "" {
		var err error
		if p, err = windows.UTF16PtrFromString(name); err != nil {
			return 0
		}
	}
	r, _, _ := procGetModuleHandleW.Call(ptrOf(p))
	return types.Handle(r)
}

func (o *OS) GetProcAddress(mod types.Handle, name string) uintptr {
	addr, err := windows.GetProcAddress(windows.Handle(mod), name)
	if err != nil {
		return 0
	}
	return addr
}

func (o *OS) GetModuleFileName(mod types.Handle) (string, bool) {
	b := make([]uint16, windows.MAX_LONG_PATH)
	n, err := windows.GetModuleFileName(windows.Handle(mod), &b[0], uint32(len(b)))
	if err != nil {
		return "", false
	}
	return windows.UTF16ToString(b[:n]), true
}

// FindImage reads a library image from disk. Bare names are looked up in
// the system directory and then in SearchPaths.
func (o *OS) FindImage(name string) (string, []byte, error) {
	if strings.ContainsAny(name, `\/`) {
		data, err := os.ReadFile(name)
		return name, data, err
	}
	dirs := append([]string(nil), o.SearchPaths...)
	if sys, err := windows.GetSystemDirectory(); err == nil {
		dirs = append([]string{sys}, dirs...)
	}
	for _, d := range dirs {
		p := filepath.Join(d, name)
		if data, err := os.ReadFile(p); err == nil {
			return p, data, nil
		}
	}
	return "", nil, fmt.Errorf("find image %s: %w", name, os.ErrNotExist)
}
