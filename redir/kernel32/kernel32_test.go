package kernel32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/winredir/native/sim"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/strtab"
	"github.com/joshuapare/winredir/redir/teb"
)

func newTestShim(t *testing.T) (*Shim, *sim.OS, *teb.Thread) {
	t.Helper()
	os := sim.New(sim.Options{})
	os.MkdirAll(`C:\app`)
	return New(os, `C:\app`), os, teb.NewThread()
}

func str(s string) *string { return &s }

func TestNtPath(t *testing.T) {
	tests := []struct {
		name, cwd, want string
	}{
		{`C:\dir\file.txt`, `C:\app`, `\??\C:\dir\file.txt`},
		{`c:/dir/./x/../file.txt`, `C:\app`, `\??\C:\dir\file.txt`},
		{`file.txt`, `C:\app`, `\??\C:\app\file.txt`},
		{`..\file.txt`, `C:\app\sub`, `\??\C:\app\file.txt`},
		{`\root.txt`, `D:\work`, `\??\D:\root.txt`},
		{`C:`, `C:\app`, `\??\C:\app`},
		{`D:rel`, `C:\app`, `\??\D:\rel`},
		{`C:\`, `C:\app`, `\??\C:\`},
		{`C:\dir\name. `, `C:\app`, `\??\C:\dir\name`},
		{`\\?\C:\raw\..\kept`, `C:\app`, `\??\C:\raw\..\kept`},
		{`\\.\pipe\x`, `C:\app`, `\??\pipe\x`},
		{`\\server\share\a\..\b`, `C:\app`, `\??\UNC\server\share\b`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NtPath(tt.name, tt.cwd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", `\\server`, `\\\share`} {
		_, err := NtPath(bad, `C:\app`)
		assert.ErrorIs(t, err, ErrBadPath, bad)
	}
}

func TestTranslateCreate(t *testing.T) {
	tests := []struct {
		name        string
		disposition uint32
		want        uint32
	}{
		{"CREATE_NEW", types.CREATE_NEW, types.FILE_CREATE},
		{"CREATE_ALWAYS", types.CREATE_ALWAYS, types.FILE_OVERWRITE_IF},
		{"OPEN_EXISTING", types.OPEN_EXISTING, types.FILE_OPEN},
		{"OPEN_ALWAYS", types.OPEN_ALWAYS, types.FILE_OPEN_IF},
		{"TRUNCATE_EXISTING", types.TRUNCATE_EXISTING, types.FILE_OVERWRITE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := TranslateCreate(types.GENERIC_READ, tt.disposition, types.FILE_ATTRIBUTE_NORMAL)
			require.True(t, ok)
			assert.Equal(t, tt.want, p.Disposition)
			assert.Equal(t, uint32(types.GENERIC_READ|types.SYNCHRONIZE|types.FILE_READ_ATTRIBUTES), p.Access)
			assert.Equal(t, uint32(types.FILE_SYNCHRONOUS_IO_NONALERT|types.FILE_NON_DIRECTORY_FILE), p.Options)
			assert.Equal(t, uint32(types.FILE_ATTRIBUTE_NORMAL), p.Attributes)
			assert.Equal(t, uint32(types.OBJ_CASE_INSENSITIVE), p.ObjectFlags)
		})
	}

	_, ok := TranslateCreate(0, 0, 0)
	assert.False(t, ok)
	_, ok = TranslateCreate(0, 6, 0)
	assert.False(t, ok)

	p, ok := TranslateCreate(types.GENERIC_WRITE, types.CREATE_ALWAYS,
		types.FILE_FLAG_DELETE_ON_CLOSE|types.FILE_FLAG_OVERLAPPED|types.FILE_FLAG_BACKUP_SEMANTICS|
			types.FILE_FLAG_WRITE_THROUGH|types.FILE_FLAG_SEQUENTIAL_SCAN|types.FILE_FLAG_POSIX_SEMANTICS|
			types.FILE_ATTRIBUTE_HIDDEN)
	require.True(t, ok)
	assert.NotZero(t, p.Access&types.DELETE, "delete-on-close adds DELETE access")
	assert.NotZero(t, p.Options&types.FILE_DELETE_ON_CLOSE)
	assert.Zero(t, p.Options&types.FILE_SYNCHRONOUS_IO_NONALERT, "overlapped handles are asynchronous")
	assert.NotZero(t, p.Options&types.FILE_OPEN_FOR_BACKUP_INTENT)
	assert.Zero(t, p.Options&types.FILE_NON_DIRECTORY_FILE)
	assert.NotZero(t, p.Options&types.FILE_WRITE_THROUGH)
	assert.NotZero(t, p.Options&types.FILE_SEQUENTIAL_ONLY)
	assert.Zero(t, p.ObjectFlags, "POSIX semantics are case-sensitive")
	assert.Equal(t, uint32(types.FILE_ATTRIBUTE_HIDDEN), p.Attributes, "flag bits are masked out of the attributes")
}

func TestCreateFileLastError(t *testing.T) {
	s, os, th := newTestShim(t)

	h := s.CreateFileW(th, str("new.txt"), types.GENERIC_WRITE, 0, nil, types.CREATE_NEW, types.FILE_ATTRIBUTE_NORMAL, 0)
	require.NotEqual(t, types.INVALID_HANDLE_VALUE, h)
	assert.Equal(t, types.ERROR_SUCCESS, th.LastError())
	assert.True(t, os.Exists(`C:\app\new.txt`))
	require.True(t, s.CloseHandle(th, h))

	h = s.CreateFileW(th, str("new.txt"), types.GENERIC_WRITE, 0, nil, types.CREATE_NEW, 0, 0)
	assert.Equal(t, types.INVALID_HANDLE_VALUE, h)
	assert.Equal(t, types.ERROR_FILE_EXISTS, th.LastError())

	h = s.CreateFileW(th, str("new.txt"), types.GENERIC_WRITE, 0, nil, types.CREATE_ALWAYS, 0, 0)
	require.NotEqual(t, types.INVALID_HANDLE_VALUE, h)
	assert.Equal(t, types.ERROR_ALREADY_EXISTS, th.LastError())
	require.True(t, s.CloseHandle(th, h))

	h = s.CreateFileW(th, str("new.txt"), types.GENERIC_READ, 0, nil, types.OPEN_ALWAYS, 0, 0)
	require.NotEqual(t, types.INVALID_HANDLE_VALUE, h)
	assert.Equal(t, types.ERROR_ALREADY_EXISTS, th.LastError())
	require.True(t, s.CloseHandle(th, h))

	h = s.CreateFileW(th, str(`C:\nope\x.txt`), types.GENERIC_READ, 0, nil, types.OPEN_EXISTING, 0, 0)
	assert.Equal(t, types.INVALID_HANDLE_VALUE, h)
	assert.Equal(t, types.ERROR_PATH_NOT_FOUND, th.LastError())

	h = s.CreateFileW(th, str("missing.txt"), types.GENERIC_READ, 0, nil, types.OPEN_EXISTING, 0, 0)
	assert.Equal(t, types.INVALID_HANDLE_VALUE, h)
	assert.Equal(t, types.ERROR_FILE_NOT_FOUND, th.LastError())

	h = s.CreateFileW(th, str(`C:\app`), types.GENERIC_READ, 0, nil, types.OPEN_EXISTING, 0, 0)
	assert.Equal(t, types.INVALID_HANDLE_VALUE, h)
	assert.Equal(t, types.ERROR_ACCESS_DENIED, th.LastError(), "directories need backup semantics")

	h = s.CreateFileW(th, str(`C:\app`), types.GENERIC_READ, 0, nil, types.OPEN_EXISTING, types.FILE_FLAG_BACKUP_SEMANTICS, 0)
	require.NotEqual(t, types.INVALID_HANDLE_VALUE, h)
	require.True(t, s.CloseHandle(th, h))

	h = s.CreateFileW(th, str("x"), types.GENERIC_READ, 0, nil, 0, 0, 0)
	assert.Equal(t, types.INVALID_HANDLE_VALUE, h)
	assert.Equal(t, types.ERROR_INVALID_PARAMETER, th.LastError())

	h = s.CreateFileW(th, str(""), types.GENERIC_READ, 0, nil, types.OPEN_EXISTING, 0, 0)
	assert.Equal(t, types.INVALID_HANDLE_VALUE, h)
	assert.Equal(t, types.ERROR_PATH_NOT_FOUND, th.LastError())

	assert.Zero(t, os.OpenHandles())
}

func TestCreateFileA(t *testing.T) {
	s, os, th := newTestShim(t)
	h := s.CreateFileA(th, []byte("ansi.txt\x00"), types.GENERIC_WRITE, 0, nil, types.CREATE_ALWAYS, 0, 0)
	require.NotEqual(t, types.INVALID_HANDLE_VALUE, h)
	assert.True(t, os.Exists(`C:\app\ansi.txt`))
	require.True(t, s.CloseHandle(th, h))
}

func TestDeleteOnClose(t *testing.T) {
	s, os, th := newTestShim(t)
	h := s.CreateFileW(th, str("tmp.bin"), types.GENERIC_WRITE, 0, nil, types.CREATE_ALWAYS, types.FILE_FLAG_DELETE_ON_CLOSE, 0)
	require.NotEqual(t, types.INVALID_HANDLE_VALUE, h)
	assert.True(t, os.Exists(`C:\app\tmp.bin`))
	require.True(t, s.CloseHandle(th, h))
	assert.False(t, os.Exists(`C:\app\tmp.bin`))
}

func TestAttributesAndDelete(t *testing.T) {
	s, os, th := newTestShim(t)
	os.WriteFileAt(`C:\app\ro.txt`, []byte("x"), types.FILE_ATTRIBUTE_READONLY)
	os.WriteFileAt(`C:\app\rw.txt`, []byte("x"), types.FILE_ATTRIBUTE_ARCHIVE)

	assert.NotZero(t, s.GetFileAttributesW(th, str("ro.txt"))&types.FILE_ATTRIBUTE_READONLY)
	assert.NotZero(t, s.GetFileAttributesA(th, []byte(`C:\app`))&types.FILE_ATTRIBUTE_DIRECTORY)

	assert.Equal(t, uint32(types.INVALID_FILE_ATTRIBUTES), s.GetFileAttributesW(th, str("gone.txt")))
	assert.Equal(t, types.ERROR_FILE_NOT_FOUND, th.LastError())

	require.True(t, s.DeleteFileW(th, str("rw.txt")))
	assert.False(t, os.Exists(`C:\app\rw.txt`))

	assert.False(t, s.DeleteFileW(th, str("ro.txt")))
	assert.Equal(t, types.ERROR_ACCESS_DENIED, th.LastError())

	assert.False(t, s.DeleteFileA(th, []byte(`C:\app`)))
	assert.Equal(t, types.ERROR_ACCESS_DENIED, th.LastError())

	assert.False(t, s.DeleteFileW(th, str("gone.txt")))
	assert.Equal(t, types.ERROR_FILE_NOT_FOUND, th.LastError())

	assert.Zero(t, os.OpenHandles())
}

func TestFindFiles(t *testing.T) {
	s, os, th := newTestShim(t)
	os.WriteFileAt(`C:\app\data\a.txt`, []byte("aaaa"), types.FILE_ATTRIBUTE_ARCHIVE)
	os.WriteFileAt(`C:\app\data\b.txt`, []byte("bb"), types.FILE_ATTRIBUTE_ARCHIVE)
	os.WriteFileAt(`C:\app\data\c.log`, nil, types.FILE_ATTRIBUTE_ARCHIVE)

	var fd types.Win32FindData
	h := s.FindFirstFileW(th, str(`data\*.txt`), &fd)
	require.NotEqual(t, types.INVALID_HANDLE_VALUE, h)
	names := []string{fd.FileName}
	assert.Equal(t, uint64(4), fd.FileSize)
	for s.FindNextFileW(th, h, &fd) {
		names = append(names, fd.FileName)
	}
	assert.Equal(t, types.ERROR_NO_MORE_FILES, th.LastError())
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)
	require.True(t, s.FindClose(th, h))
	assert.False(t, s.FindClose(th, h))
	assert.Equal(t, types.ERROR_INVALID_HANDLE, th.LastError())

	h = s.FindFirstFileA(th, []byte(`C:\app\data\*`), &fd)
	require.NotEqual(t, types.INVALID_HANDLE_VALUE, h)
	assert.Equal(t, ".", fd.FileName)
	require.True(t, s.FindNextFileA(th, h, &fd))
	assert.Equal(t, "..", fd.FileName)
	require.True(t, s.FindClose(th, h))

	h = s.FindFirstFileW(th, str(`data\*.exe`), &fd)
	assert.Equal(t, types.INVALID_HANDLE_VALUE, h)
	assert.Equal(t, types.ERROR_FILE_NOT_FOUND, th.LastError())

	h = s.FindFirstFileW(th, str(`nodir\*`), &fd)
	assert.Equal(t, types.INVALID_HANDLE_VALUE, h)
	assert.Equal(t, types.ERROR_PATH_NOT_FOUND, th.LastError())

	assert.False(t, s.FindNextFileW(th, 0x1234, &fd))
	assert.Equal(t, types.ERROR_INVALID_HANDLE, th.LastError())

	assert.Zero(t, os.OpenHandles())
}

func TestPipeAndDuplicate(t *testing.T) {
	s, os, th := newTestShim(t)

	var r, w types.Handle
	require.True(t, s.CreatePipe(th, &r, &w, &types.SecurityAttributes{InheritHandle: true}, 0))
	require.Equal(t, types.STATUS_SUCCESS, os.WriteFile(w, []byte("ping")))
	got, st := os.ReadFile(r, 16)
	require.Equal(t, types.STATUS_SUCCESS, st)
	assert.Equal(t, "ping", string(got))

	var r2, w2 types.Handle
	require.True(t, s.CreatePipe(th, &r2, &w2, nil, 0))
	assert.NotEqual(t, r, r2, "every anonymous pipe gets a fresh name")

	var dup types.Handle
	require.True(t, s.DuplicateHandle(th, types.CurrentProcess, w, types.CurrentProcess, &dup, 0, false, types.DUPLICATE_SAME_ACCESS))
	require.True(t, s.CloseHandle(th, w))
	require.Equal(t, types.STATUS_SUCCESS, os.WriteFile(dup, []byte("pong")))

	require.True(t, s.DuplicateHandle(th, types.CurrentProcess, dup, types.CurrentProcess, nil, 0, false,
		types.DUPLICATE_CLOSE_SOURCE|types.DUPLICATE_SAME_ACCESS))
	assert.False(t, s.CloseHandle(th, dup), "source was closed by the duplicate")
	assert.Equal(t, types.ERROR_INVALID_HANDLE, th.LastError())

	assert.False(t, s.CreatePipe(th, nil, &w, nil, 0))
	assert.Equal(t, types.ERROR_INVALID_PARAMETER, th.LastError())

	for _, h := range []types.Handle{r, r2, w2} {
		require.True(t, s.CloseHandle(th, h))
	}
	assert.True(t, s.CloseHandle(th, types.CurrentProcess))
	assert.Zero(t, os.OpenHandles())
}

func TestOpenProcess(t *testing.T) {
	s, os, th := newTestShim(t)
	h := s.OpenProcess(th, types.PROCESS_QUERY_INFORMATION, false, uint32(os.CurrentProcessID()))
	require.NotZero(t, h)
	require.True(t, s.CloseHandle(th, h))

	assert.Zero(t, s.OpenProcess(th, types.PROCESS_QUERY_INFORMATION, false, 0x7777))
	assert.Equal(t, types.ERROR_INVALID_PARAMETER, th.LastError())
}

func TestImports(t *testing.T) {
	s, _, _ := newTestShim(t)
	tab := strtab.New("kernel32", s.Imports())
	for _, n := range []string{"CreateFileW", "FindFirstFileA", "WaitForSingleObject", "CreatePipe"} {
		_, ok := tab.Lookup(n)
		assert.True(t, ok, n)
	}
}
