package kernel32

import (
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/teb"
)

// A find handle is the directory handle the search was opened on. The
// shim remembers which handles are searches so FindClose and FindNextFile
// reject anything else.

// FindFirstFileA is FindFirstFileW with an ANSI name.
func (s *Shim) FindFirstFileA(t *teb.Thread, name []byte, data *types.Win32FindData) types.Handle {
	n, ok := ansi(t, name)
	if !ok {
		return types.INVALID_HANDLE_VALUE
	}
	return s.FindFirstFileW(t, n, data)
}

// FindFirstFileW opens a search for name, a directory plus a wildcard
// pattern in the final component, and returns the first match.
func (s *Shim) FindFirstFileW(t *teb.Thread, name *string, data *types.Win32FindData) types.Handle {
	if name == nil || data == nil {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return types.INVALID_HANDLE_VALUE
	}
	if *name == "" {
		t.SetLastError(types.ERROR_PATH_NOT_FOUND)
		return types.INVALID_HANDLE_VALUE
	}
	dirName, pattern := splitSearch(*name)
	if pattern == "" {
		t.SetLastError(types.ERROR_FILE_NOT_FOUND)
		return types.INVALID_HANDLE_VALUE
	}
	oa, ok := s.objectAttributes(t, &dirName, nil, true)
	if !ok {
		return types.INVALID_HANDLE_VALUE
	}

	var iosb types.IoStatusBlock
	h, st := s.os.NtOpenFile(types.FILE_LIST_DIRECTORY|types.SYNCHRONIZE, oa, &iosb,
		types.FILE_SHARE_READ|types.FILE_SHARE_WRITE|types.FILE_SHARE_DELETE,
		types.FILE_DIRECTORY_FILE|types.FILE_SYNCHRONOUS_IO_NONALERT|types.FILE_OPEN_FOR_BACKUP_INTENT)
	if !st.IsSuccess() {
		if st == types.STATUS_OBJECT_NAME_NOT_FOUND || st == types.STATUS_NOT_A_DIRECTORY {
			st = types.STATUS_OBJECT_PATH_NOT_FOUND
		}
		fail(t, st)
		return types.INVALID_HANDLE_VALUE
	}
	if !s.next(t, h, data, pattern, true) {
		s.os.NtClose(h)
		return types.INVALID_HANDLE_VALUE
	}
	s.mu.Lock()
	s.finds[h] = struct{}{}
	s.mu.Unlock()
	return h
}

// FindNextFileA is FindNextFileW; the result is the same structure.
func (s *Shim) FindNextFileA(t *teb.Thread, h types.Handle, data *types.Win32FindData) bool {
	return s.FindNextFileW(t, h, data)
}

// FindNextFileW returns the next match, or fails with ERROR_NO_MORE_FILES.
func (s *Shim) FindNextFileW(t *teb.Thread, h types.Handle, data *types.Win32FindData) bool {
	if !s.isFind(h) {
		t.SetLastError(types.ERROR_INVALID_HANDLE)
		return false
	}
	if data == nil {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return false
	}
	return s.next(t, h, data, "", false)
}

// FindClose ends a search.
func (s *Shim) FindClose(t *teb.Thread, h types.Handle) bool {
	s.mu.Lock()
	_, ok := s.finds[h]
	delete(s.finds, h)
	s.mu.Unlock()
	if !ok {
		t.SetLastError(types.ERROR_INVALID_HANDLE)
		return false
	}
	if st := s.os.NtClose(h); !st.IsSuccess() {
		return fail(t, st)
	}
	return true
}

func (s *Shim) isFind(h types.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.finds[h]
	return ok
}

func (s *Shim) next(t *teb.Thread, h types.Handle, data *types.Win32FindData, pattern string, first bool) bool {
	var iosb types.IoStatusBlock
	var info types.FileDirectoryInformation
	st := s.os.NtQueryDirectoryFile(h, &iosb, &info, pattern, first)
	if !st.IsSuccess() {
		if first && st == types.STATUS_NO_MORE_FILES {
			st = types.STATUS_NO_SUCH_FILE
		}
		return fail(t, st)
	}
	*data = types.Win32FindData{
		FileAttributes:    info.FileAttributes,
		CreationTime:      info.CreationTime,
		LastAccessTime:    info.LastAccessTime,
		LastWriteTime:     info.LastWriteTime,
		FileSize:          uint64(info.EndOfFile),
		FileName:          info.FileName,
		AlternateFileName: info.ShortName,
	}
	return true
}
