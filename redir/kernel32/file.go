package kernel32

import (
	"github.com/joshuapare/winredir/internal/logger"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/teb"
)

// dispositions maps CreateFile's creation disposition to NtCreateFile's.
var dispositions = map[uint32]uint32{
	types.CREATE_NEW:        types.FILE_CREATE,
	types.CREATE_ALWAYS:     types.FILE_OVERWRITE_IF,
	types.OPEN_EXISTING:     types.FILE_OPEN,
	types.OPEN_ALWAYS:       types.FILE_OPEN_IF,
	types.TRUNCATE_EXISTING: types.FILE_OVERWRITE,
}

// flagOptions maps FILE_FLAG_* bits to create options.
var flagOptions = []struct {
	flag, option uint32
}{
	{types.FILE_FLAG_WRITE_THROUGH, types.FILE_WRITE_THROUGH},
	{types.FILE_FLAG_NO_BUFFERING, types.FILE_NO_INTERMEDIATE_BUFFERING},
	{types.FILE_FLAG_RANDOM_ACCESS, types.FILE_RANDOM_ACCESS},
	{types.FILE_FLAG_SEQUENTIAL_SCAN, types.FILE_SEQUENTIAL_ONLY},
	{types.FILE_FLAG_DELETE_ON_CLOSE, types.FILE_DELETE_ON_CLOSE},
	{types.FILE_FLAG_OPEN_REPARSE_POINT, types.FILE_OPEN_REPARSE_POINT},
	{types.FILE_FLAG_OPEN_NO_RECALL, types.FILE_OPEN_NO_RECALL},
}

// CreateParams is the NtCreateFile argument set CreateFile derives from
// its Win32 arguments.
type CreateParams struct {
	Access      uint32
	Attributes  uint32
	Disposition uint32
	Options     uint32
	ObjectFlags uint32
}

// TranslateCreate maps CreateFile arguments onto NtCreateFile's. It fails
// for an unknown disposition.
func TranslateCreate(access, disposition, flagsAndAttributes uint32) (CreateParams, bool) {
	disp, ok := dispositions[disposition]
	if !ok {
		return CreateParams{}, false
	}
	p := CreateParams{
		Access:      access | types.SYNCHRONIZE | types.FILE_READ_ATTRIBUTES,
		Attributes:  flagsAndAttributes & types.FILE_ATTRIBUTE_VALID_SET_FLAGS,
		Disposition: disp,
		ObjectFlags: types.OBJ_CASE_INSENSITIVE,
	}
	if flagsAndAttributes&types.FILE_FLAG_OVERLAPPED == 0 {
		p.Options |= types.FILE_SYNCHRONOUS_IO_NONALERT
	}
	if flagsAndAttributes&types.FILE_FLAG_BACKUP_SEMANTICS != 0 {
		p.Options |= types.FILE_OPEN_FOR_BACKUP_INTENT
	} else {
		p.Options |= types.FILE_NON_DIRECTORY_FILE
	}
	for _, fo := range flagOptions {
		if flagsAndAttributes&fo.flag != 0 {
			p.Options |= fo.option
		}
	}
	if flagsAndAttributes&types.FILE_FLAG_DELETE_ON_CLOSE != 0 {
		p.Access |= types.DELETE
	}
	if flagsAndAttributes&types.FILE_FLAG_POSIX_SEMANTICS != 0 {
		p.ObjectFlags &^= types.OBJ_CASE_INSENSITIVE
	}
	return p, true
}

// CreateFileA is CreateFileW with an ANSI name.
func (s *Shim) CreateFileA(t *teb.Thread, name []byte, access, share uint32, sa *types.SecurityAttributes,
	disposition, flagsAndAttributes uint32, template types.Handle) types.Handle {
	n, ok := ansi(t, name)
	if !ok {
		return types.INVALID_HANDLE_VALUE
	}
	return s.CreateFileW(t, n, access, share, sa, disposition, flagsAndAttributes, template)
}

// CreateFileW opens or creates a file. The template handle is ignored. On
// success with CREATE_ALWAYS or OPEN_ALWAYS the last error tells whether
// the file already existed.
func (s *Shim) CreateFileW(t *teb.Thread, name *string, access, share uint32, sa *types.SecurityAttributes,
	disposition, flagsAndAttributes uint32, template types.Handle) types.Handle {
	p, ok := TranslateCreate(access, disposition, flagsAndAttributes)
	if !ok {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return types.INVALID_HANDLE_VALUE
	}
	if name != nil && *name == "" {
		t.SetLastError(types.ERROR_PATH_NOT_FOUND)
		return types.INVALID_HANDLE_VALUE
	}
	oa, ok := s.objectAttributes(t, name, sa, p.ObjectFlags&types.OBJ_CASE_INSENSITIVE != 0)
	if !ok {
		return types.INVALID_HANDLE_VALUE
	}

	var iosb types.IoStatusBlock
	h, st := s.os.NtCreateFile(p.Access, oa, &iosb, 0, p.Attributes, share, p.Disposition, p.Options)
	logger.WithFn("CreateFile").WithField("path", oa.ObjectName).WithField("status", st.String()).Debug("syscall")
	if !st.IsSuccess() {
		if st == types.STATUS_OBJECT_NAME_COLLISION {
			t.SetLastError(types.ERROR_FILE_EXISTS)
		} else {
			fail(t, st)
		}
		return types.INVALID_HANDLE_VALUE
	}
	switch {
	case disposition == types.CREATE_ALWAYS && iosb.Information == types.FILE_OVERWRITTEN,
		disposition == types.OPEN_ALWAYS && iosb.Information == types.FILE_OPENED:
		t.SetLastError(types.ERROR_ALREADY_EXISTS)
	default:
		t.SetLastError(types.ERROR_SUCCESS)
	}
	return h
}

// GetFileAttributesA is GetFileAttributesW with an ANSI name.
func (s *Shim) GetFileAttributesA(t *teb.Thread, name []byte) uint32 {
	n, ok := ansi(t, name)
	if !ok {
		return types.INVALID_FILE_ATTRIBUTES
	}
	return s.GetFileAttributesW(t, n)
}

// GetFileAttributesW returns the attributes of name, or
// INVALID_FILE_ATTRIBUTES.
func (s *Shim) GetFileAttributesW(t *teb.Thread, name *string) uint32 {
	oa, ok := s.objectAttributes(t, name, nil, true)
	if !ok {
		return types.INVALID_FILE_ATTRIBUTES
	}
	var info types.FileBasicInformation
	if st := s.os.NtQueryAttributesFile(oa, &info); !st.IsSuccess() {
		fail(t, st)
		return types.INVALID_FILE_ATTRIBUTES
	}
	return info.FileAttributes
}

// DeleteFileA is DeleteFileW with an ANSI name.
func (s *Shim) DeleteFileA(t *teb.Thread, name []byte) bool {
	n, ok := ansi(t, name)
	if !ok {
		return false
	}
	return s.DeleteFileW(t, n)
}

// DeleteFileW marks a file for deletion; it disappears when the last
// handle to it closes. Directories are refused with ERROR_ACCESS_DENIED.
func (s *Shim) DeleteFileW(t *teb.Thread, name *string) bool {
	oa, ok := s.objectAttributes(t, name, nil, true)
	if !ok {
		return false
	}
	var iosb types.IoStatusBlock
	h, st := s.os.NtOpenFile(types.DELETE|types.SYNCHRONIZE|types.FILE_READ_ATTRIBUTES, oa, &iosb,
		types.FILE_SHARE_READ|types.FILE_SHARE_WRITE|types.FILE_SHARE_DELETE,
		types.FILE_NON_DIRECTORY_FILE|types.FILE_SYNCHRONOUS_IO_NONALERT|types.FILE_OPEN_REPARSE_POINT)
	if !st.IsSuccess() {
		return fail(t, st)
	}
	defer s.os.NtClose(h)
	st = s.os.NtSetInformationFile(h, &iosb, []byte{types.FileDispositionDelete}, types.FileDispositionInformationClass)
	if !st.IsSuccess() {
		return fail(t, st)
	}
	return true
}
