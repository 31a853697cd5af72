// Package ntshim holds the ntdll redirections of an isolation domain.
//
// The Nt routines are straight pass-throughs to the raw system-call surface:
// the private ntdll must reach the kernel without going through any hook the
// application placed on its own ntdll. Each routine is exported under both
// its Nt and Zw name.
//
// Output parameters keep their pointer shape. A nil output where the kernel
// would write fails with STATUS_ACCESS_VIOLATION, as probing a NULL user
// pointer does.
package ntshim

import (
	"fmt"

	"github.com/joshuapare/winredir/internal/logger"
	"github.com/joshuapare/winredir/native"
	"github.com/joshuapare/winredir/pkg/types"
)

// Shim forwards ntdll system calls to the captured kernel.
type Shim struct {
	os native.Kernel
}

// New returns a shim over os.
func New(os native.Kernel) *Shim {
	return &Shim{os: os}
}

// NtCreateFile creates or opens a file. Extended attributes are not
// forwarded.
func (s *Shim) NtCreateFile(out *types.Handle, access uint32, oa *types.ObjectAttributes, iosb *types.IoStatusBlock,
	allocationSize *int64, attributes, share, disposition, options uint32, ea []byte) types.NTStatus {
	if out == nil || oa == nil || iosb == nil {
		return types.STATUS_ACCESS_VIOLATION
	}
	var alloc int64
	if allocationSize != nil {
		alloc = *allocationSize
	}
	if len(ea) != 0 {
		logger.WithFn("NtCreateFile").WithField("ea", len(ea)).Debug("extended attributes dropped")
	}
	h, st := s.os.NtCreateFile(access, oa, iosb, alloc, attributes, share, disposition, options)
	*out = h
	return st
}

// NtOpenFile opens an existing file.
func (s *Shim) NtOpenFile(out *types.Handle, access uint32, oa *types.ObjectAttributes, iosb *types.IoStatusBlock, share, options uint32) types.NTStatus {
	if out == nil || oa == nil || iosb == nil {
		return types.STATUS_ACCESS_VIOLATION
	}
	h, st := s.os.NtOpenFile(access, oa, iosb, share, options)
	*out = h
	return st
}

// NtQueryAttributesFile returns basic attributes by name.
func (s *Shim) NtQueryAttributesFile(oa *types.ObjectAttributes, info *types.FileBasicInformation) types.NTStatus {
	if oa == nil || info == nil {
		return types.STATUS_ACCESS_VIOLATION
	}
	return s.os.NtQueryAttributesFile(oa, info)
}

// NtQueryFullAttributesFile returns network-open attributes by name.
func (s *Shim) NtQueryFullAttributesFile(oa *types.ObjectAttributes, info *types.FileNetworkOpenInformation) types.NTStatus {
	if oa == nil || info == nil {
		return types.STATUS_ACCESS_VIOLATION
	}
	return s.os.NtQueryFullAttributesFile(oa, info)
}

// NtSetInformationFile sets one information class on an open file.
func (s *Shim) NtSetInformationFile(h types.Handle, iosb *types.IoStatusBlock, info []byte, class types.FileInformationClass) types.NTStatus {
	if iosb == nil {
		return types.STATUS_ACCESS_VIOLATION
	}
	return s.os.NtSetInformationFile(h, iosb, info, class)
}

// NtCreateKey creates or opens a registry key. The title index and class
// are accepted and ignored; disposition may be nil.
func (s *Shim) NtCreateKey(out *types.Handle, access uint32, oa *types.ObjectAttributes, titleIndex uint32, class *string, options uint32, disposition *uint32) types.NTStatus {
	if out == nil || oa == nil {
		return types.STATUS_ACCESS_VIOLATION
	}
	h, disp, st := s.os.NtCreateKey(access, oa, options)
	*out = h
	if disposition != nil && st.IsSuccess() {
		*disposition = disp
	}
	return st
}

// NtOpenKey opens a registry key.
func (s *Shim) NtOpenKey(out *types.Handle, access uint32, oa *types.ObjectAttributes) types.NTStatus {
	if out == nil || oa == nil {
		return types.STATUS_ACCESS_VIOLATION
	}
	h, st := s.os.NtOpenKey(access, oa)
	*out = h
	return st
}

// NtOpenKeyEx opens a registry key with open options.
func (s *Shim) NtOpenKeyEx(out *types.Handle, access uint32, oa *types.ObjectAttributes, options uint32) types.NTStatus {
	if out == nil || oa == nil {
		return types.STATUS_ACCESS_VIOLATION
	}
	h, st := s.os.NtOpenKeyEx(access, oa, options)
	*out = h
	return st
}

// NtOpenProcess opens a process by client id.
func (s *Shim) NtOpenProcess(out *types.Handle, access uint32, oa *types.ObjectAttributes, cid *types.ClientID) types.NTStatus {
	if out == nil || oa == nil {
		return types.STATUS_ACCESS_VIOLATION
	}
	h, st := s.os.NtOpenProcess(access, oa, cid)
	*out = h
	return st
}

// NtOpenThread opens a thread by client id.
func (s *Shim) NtOpenThread(out *types.Handle, access uint32, oa *types.ObjectAttributes, cid *types.ClientID) types.NTStatus {
	if out == nil || oa == nil {
		return types.STATUS_ACCESS_VIOLATION
	}
	h, st := s.os.NtOpenThread(access, oa, cid)
	*out = h
	return st
}

// NtOpenProcessToken is NtOpenProcessTokenEx with no handle attributes.
func (s *Shim) NtOpenProcessToken(process types.Handle, access uint32, out *types.Handle) types.NTStatus {
	return s.NtOpenProcessTokenEx(process, access, 0, out)
}

// NtOpenProcessTokenEx opens the primary token of process.
func (s *Shim) NtOpenProcessTokenEx(process types.Handle, access, attributes uint32, out *types.Handle) types.NTStatus {
	if out == nil {
		return types.STATUS_ACCESS_VIOLATION
	}
	h, st := s.os.NtOpenProcessTokenEx(process, access, attributes)
	*out = h
	return st
}

// NtOpenThreadToken is NtOpenThreadTokenEx with no handle attributes.
func (s *Shim) NtOpenThreadToken(thread types.Handle, access uint32, openAsSelf bool, out *types.Handle) types.NTStatus {
	return s.NtOpenThreadTokenEx(thread, access, openAsSelf, 0, out)
}

// NtOpenThreadTokenEx opens the impersonation token of thread.
func (s *Shim) NtOpenThreadTokenEx(thread types.Handle, access uint32, openAsSelf bool, attributes uint32, out *types.Handle) types.NTStatus {
	if out == nil {
		return types.STATUS_ACCESS_VIOLATION
	}
	h, st := s.os.NtOpenThreadTokenEx(thread, access, openAsSelf, attributes)
	*out = h
	return st
}

// NtSetInformationThread sets one information class on a thread.
func (s *Shim) NtSetInformationThread(thread types.Handle, class types.ThreadInformationClass, info []byte) types.NTStatus {
	return s.os.NtSetInformationThread(thread, class, info)
}

// NtMapViewOfSection maps a view of section into process. base and
// viewSize are in/out; zeroBits, commitSize, offset, inherit and allocType
// are passed by the caller's ABI but not honored.
func (s *Shim) NtMapViewOfSection(section, process types.Handle, base *uintptr, zeroBits, commitSize uintptr,
	offset *int64, viewSize *uintptr, inherit, allocType, protect uint32) types.NTStatus {
	if base == nil || viewSize == nil {
		return types.STATUS_ACCESS_VIOLATION
	}
	if offset != nil && *offset != 0 {
		return types.STATUS_INVALID_PARAMETER
	}
	addr, size, st := s.os.NtMapViewOfSection(section, process, *base, *viewSize, protect)
	logger.WithFn("NtMapViewOfSection").WithField("section", fmt.Sprintf("%#x", uintptr(section))).
		WithField("base", fmt.Sprintf("%#x", addr)).WithField("status", st.String()).Debug("mapped")
	if st.IsSuccess() {
		*base, *viewSize = addr, size
	}
	return st
}

// NtUnmapViewOfSection unmaps a view mapped by NtMapViewOfSection.
func (s *Shim) NtUnmapViewOfSection(process types.Handle, base uintptr) types.NTStatus {
	return s.os.NtUnmapViewOfSection(process, base)
}
