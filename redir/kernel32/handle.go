package kernel32

import (
	"fmt"

	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/teb"
)

const (
	// Default in-bound quota of an anonymous pipe.
	defaultPipeQuota = 4096

	// Anonymous pipes time out after 120 seconds, in 100ns units.
	pipeTimeout = -120 * 10_000_000
)

// CloseHandle closes a kernel handle. The process and thread pseudo
// handles close successfully without a system call.
func (s *Shim) CloseHandle(t *teb.Thread, h types.Handle) bool {
	if h == types.CurrentProcess || h == types.CurrentThread {
		return true
	}
	if st := s.os.NtClose(h); !st.IsSuccess() {
		return fail(t, st)
	}
	return true
}

// DuplicateHandle duplicates src from srcProcess into dstProcess. out may
// be nil, which only makes sense with DUPLICATE_CLOSE_SOURCE; the
// duplicate is then closed again.
func (s *Shim) DuplicateHandle(t *teb.Thread, srcProcess, src, dstProcess types.Handle, out *types.Handle,
	access uint32, inherit bool, options uint32) bool {
	var attrs uint32
	if inherit {
		attrs |= types.OBJ_INHERIT
	}
	h, st := s.os.NtDuplicateObject(srcProcess, src, dstProcess, access, attrs, options)
	if !st.IsSuccess() {
		return fail(t, st)
	}
	if out == nil {
		s.os.NtClose(h)
		return true
	}
	*out = h
	return true
}

// CreatePipe creates an anonymous pipe as a uniquely named pipe: a server
// end opened for reading and a client end opened for writing.
func (s *Shim) CreatePipe(t *teb.Thread, read, write *types.Handle, sa *types.SecurityAttributes, size uint32) bool {
	if read == nil || write == nil {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return false
	}
	if size == 0 {
		size = defaultPipeQuota
	}
	name := fmt.Sprintf(`\Device\NamedPipe\Win32Pipes.%08x.%08x`, s.os.CurrentProcessID(), s.pipeSerial.Add(1))
	oa := &types.ObjectAttributes{ObjectName: name, Attributes: types.OBJ_CASE_INSENSITIVE}
	applySecurity(oa, sa)

	var iosb types.IoStatusBlock
	r, st := s.os.NtCreateNamedPipeFile(types.GENERIC_READ|types.FILE_WRITE_ATTRIBUTES|types.SYNCHRONIZE, oa, &iosb,
		types.FILE_SHARE_READ|types.FILE_SHARE_WRITE, types.FILE_CREATE, types.FILE_SYNCHRONOUS_IO_NONALERT,
		size, pipeTimeout)
	if !st.IsSuccess() {
		return fail(t, st)
	}
	w, st := s.os.NtOpenFile(types.GENERIC_WRITE|types.FILE_READ_ATTRIBUTES|types.SYNCHRONIZE, oa, &iosb,
		types.FILE_SHARE_READ, types.FILE_SYNCHRONOUS_IO_NONALERT|types.FILE_NON_DIRECTORY_FILE)
	if !st.IsSuccess() {
		s.os.NtClose(r)
		return fail(t, st)
	}
	*read, *write = r, w
	return true
}

// OpenProcess opens the process with the given id.
func (s *Shim) OpenProcess(t *teb.Thread, access uint32, inherit bool, pid uint32) types.Handle {
	oa := &types.ObjectAttributes{}
	if inherit {
		oa.Attributes |= types.OBJ_INHERIT
	}
	h, st := s.os.NtOpenProcess(access, oa, &types.ClientID{UniqueProcess: uintptr(pid)})
	if !st.IsSuccess() {
		fail(t, st)
		return 0
	}
	return h
}

// WaitTimeout converts a millisecond wait to the kernel's relative timeout:
// nil for INFINITE, otherwise a negative count of 100ns units.
func WaitTimeout(ms uint32) *int64 {
	if ms == types.INFINITE {
		return nil
	}
	d := -int64(ms) * 10_000
	return &d
}

// WaitForSingleObject waits for h to be signaled.
func (s *Shim) WaitForSingleObject(t *teb.Thread, h types.Handle, ms uint32) uint32 {
	return s.WaitForSingleObjectEx(t, h, ms, false)
}

// WaitForSingleObjectEx waits for h, optionally alertably, and returns
// WAIT_OBJECT_0, WAIT_ABANDONED, WAIT_IO_COMPLETION, WAIT_TIMEOUT or
// WAIT_FAILED.
func (s *Shim) WaitForSingleObjectEx(t *teb.Thread, h types.Handle, ms uint32, alertable bool) uint32 {
	st := s.os.NtWaitForSingleObject(h, alertable, WaitTimeout(ms))
	switch st {
	case types.STATUS_WAIT_0:
		return types.WAIT_OBJECT_0
	case types.STATUS_ABANDONED_WAIT_0:
		return types.WAIT_ABANDONED
	case types.STATUS_USER_APC:
		return types.WAIT_IO_COMPLETE
	case types.STATUS_TIMEOUT:
		return types.WAIT_TIMEOUT
	}
	fail(t, st)
	return types.WAIT_FAILED
}
