package advapi32

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/winredir/internal/textconv"
	"github.com/joshuapare/winredir/native/sim"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/strtab"
)

const currentVersion = `SOFTWARE\Microsoft\Windows NT\CurrentVersion`

func newTestShim(t *testing.T) (*Shim, *sim.OS) {
	t.Helper()
	os := sim.New(sim.Options{UserSID: "S-1-5-21-42"})
	return New(os), os
}

func str(s string) *string { return &s }

func TestRootPaths(t *testing.T) {
	s, os := newTestShim(t)

	tests := []struct {
		key  types.Handle
		want string
	}{
		{types.HKEY_LOCAL_MACHINE, `\Registry\Machine`},
		{types.HKEY_USERS, `\Registry\User`},
		{types.HKEY_CLASSES_ROOT, `\Registry\Machine\Software\CLASSES`},
		{types.HKEY_CURRENT_CONFIG, `\Registry\Machine\System\CurrentControlSet\Hardware Profiles\Current`},
		{types.HKEY_CURRENT_USER, `\Registry\User\S-1-5-21-42`},
	}
	for _, tt := range tests {
		got, st := s.RootPath(tt.key)
		require.Equal(t, types.STATUS_SUCCESS, st)
		assert.Equal(t, tt.want, got)
	}

	os.Impersonate(os.CurrentThreadID(), "S-1-5-18")
	got, st := s.RootPath(types.HKEY_CURRENT_USER)
	require.Equal(t, types.STATUS_SUCCESS, st)
	assert.Equal(t, `\Registry\User\S-1-5-18`, got, "the thread token wins over the process token")
	assert.Zero(t, os.OpenHandles())
}

func TestOpenAndQuery(t *testing.T) {
	s, os := newTestShim(t)

	var key types.Handle
	require.Equal(t, types.ERROR_SUCCESS, s.RegOpenKeyExA(types.HKEY_LOCAL_MACHINE, []byte(currentVersion), 0, types.KEY_READ, &key))

	var typ types.RegType
	data := make([]byte, 256)
	size := uint32(len(data))
	require.Equal(t, types.ERROR_SUCCESS, s.RegQueryValueExW(key, str("SystemRoot"), nil, &typ, data, &size))
	assert.Equal(t, types.REG_SZ, typ)
	assert.Equal(t, `C:\Windows`, textconv.WideToString(data[:size]))

	size = 0
	assert.Equal(t, types.ERROR_MORE_DATA, s.RegQueryValueExA(key, []byte("SystemRoot"), nil, nil, nil, &size))
	assert.Equal(t, uint32(len(`C:\Windows`)+1), size, "ANSI size counts narrow bytes")

	size = 0
	assert.Equal(t, types.ERROR_MORE_DATA, s.RegQueryValueExW(key, str("SystemRoot"), nil, nil, nil, &size))
	assert.Equal(t, uint32(2*(len(`C:\Windows`)+1)), size)

	narrow := make([]byte, 64)
	size = uint32(len(narrow))
	require.Equal(t, types.ERROR_SUCCESS, s.RegQueryValueExA(key, []byte("SystemRoot"), nil, &typ, narrow, &size))
	assert.Equal(t, "C:\\Windows\x00", string(narrow[:size]))

	assert.Equal(t, types.ERROR_FILE_NOT_FOUND, s.RegQueryValueExW(key, str("Nope"), nil, nil, data, &size))
	require.Equal(t, types.ERROR_SUCCESS, s.RegCloseKey(key))
	assert.Zero(t, os.OpenHandles(), "predefined root handles are closed after use")
}

func TestMultiStringNarrowing(t *testing.T) {
	s, os := newTestShim(t)

	var key types.Handle
	require.Equal(t, types.ERROR_SUCCESS, s.RegOpenKeyExW(types.HKEY_LOCAL_MACHINE, str(currentVersion+`\Svchost`), 0, types.KEY_READ, &key))

	var typ types.RegType
	out := make([]byte, 1024)
	size := uint32(len(out))
	require.Equal(t, types.ERROR_SUCCESS, s.RegQueryValueExA(key, []byte("NetworkService"), nil, &typ, out, &size))
	assert.Equal(t, types.REG_MULTI_SZ, typ)

	var got []string
	for _, seg := range bytes.Split(out[:size], []byte{0}) {
		if len(seg) > 0 {
			got = append(got, string(seg))
		}
	}
	assert.Equal(t, []string{"CryptSvc", "Dnscache", "LanmanWorkstation", "NlaSvc"}, got)
	assert.True(t, bytes.HasSuffix(out[:size], []byte{0, 0}), "list terminator kept")

	require.Equal(t, types.ERROR_SUCCESS, s.RegCloseKey(key))
	assert.Zero(t, os.OpenHandles())
}

func TestQueryRetriesWhenValueGrows(t *testing.T) {
	s, os := newTestShim(t)
	path := `\Registry\Machine\SOFTWARE\Acme`
	os.SetString(path, "Grow", strings.Repeat("s", 100))

	grown := strings.Repeat("g", 200)
	os.OnQueryValue = func(p, name string) {
		if name == "Grow" {
			os.SetString(path, "Grow", grown)
			os.OnQueryValue = nil
		}
	}

	var key types.Handle
	require.Equal(t, types.ERROR_SUCCESS, s.RegOpenKeyExW(types.HKEY_LOCAL_MACHINE, str(`SOFTWARE\Acme`), 0, types.KEY_READ, &key))

	data := make([]byte, 1024)
	size := uint32(len(data))
	require.Equal(t, types.ERROR_SUCCESS, s.RegQueryValueExW(key, str("Grow"), nil, nil, data, &size))
	assert.Equal(t, grown, textconv.WideToString(data[:size]))
	assert.Equal(t, 3, os.Calls("NtQueryValueKey"), "size query, stale retry, final read")
	require.Equal(t, types.ERROR_SUCCESS, s.RegCloseKey(key))
}

func TestLargeValueNeedsRetry(t *testing.T) {
	s, os := newTestShim(t)
	big := bytes.Repeat([]byte{0xAB}, 500)
	os.SetValue(`\Registry\Machine\SOFTWARE\Acme`, "Blob", types.REG_BINARY, big)

	var key types.Handle
	require.Equal(t, types.ERROR_SUCCESS, s.RegOpenKeyExW(types.HKEY_LOCAL_MACHINE, str(`SOFTWARE\Acme`), 0, types.KEY_READ, &key))

	small := make([]byte, 100)
	size := uint32(len(small))
	assert.Equal(t, types.ERROR_MORE_DATA, s.RegQueryValueExW(key, str("Blob"), nil, nil, small, &size))
	assert.Equal(t, uint32(500), size)

	before := os.Calls("NtQueryValueKey")
	data := make([]byte, 500)
	size = 500
	var typ types.RegType
	require.Equal(t, types.ERROR_SUCCESS, s.RegQueryValueExW(key, str("Blob"), nil, &typ, data, &size))
	assert.Equal(t, big, data)
	assert.Equal(t, types.REG_BINARY, typ)
	assert.Equal(t, 2, os.Calls("NtQueryValueKey")-before, "small query then full read")

	size = 0
	require.Equal(t, types.ERROR_MORE_DATA, s.RegQueryValueExA(key, []byte("Blob"), nil, nil, nil, &size))
	assert.Equal(t, uint32(500), size, "binary data is not narrowed")

	require.Equal(t, types.ERROR_SUCCESS, s.RegQueryValueExW(key, str("Blob"), nil, &typ, nil, nil), "type-only query")
	assert.Equal(t, types.REG_BINARY, typ)
	require.Equal(t, types.ERROR_SUCCESS, s.RegCloseKey(key))
}

func TestOpenKeyEdgeCases(t *testing.T) {
	s, os := newTestShim(t)
	var key types.Handle

	assert.Equal(t, types.ERROR_INVALID_PARAMETER, s.RegOpenKeyExW(types.HKEY_LOCAL_MACHINE, str("x"), 1, types.KEY_READ, &key))
	assert.Equal(t, types.ERROR_INVALID_PARAMETER, s.RegOpenKeyExW(types.HKEY_LOCAL_MACHINE, str("x"), 0, types.KEY_READ, nil))
	assert.Equal(t, types.ERROR_INVALID_PARAMETER, s.RegOpenKeyExW(0x1234, nil, 0, types.KEY_READ, &key))
	assert.Equal(t, types.ERROR_INVALID_FUNCTION, s.RegOpenKeyExW(types.HKEY_PERFORMANCE_DATA, str("x"), 0, types.KEY_READ, &key))
	assert.Equal(t, types.ERROR_FILE_NOT_FOUND, s.RegOpenKeyExW(types.HKEY_LOCAL_MACHINE, str(`SOFTWARE\Missing`), 0, types.KEY_READ, &key))

	// A nil subkey on HKLM hands back the predefined key itself.
	require.Equal(t, types.ERROR_SUCCESS, s.RegOpenKeyExW(types.HKEY_LOCAL_MACHINE, nil, 0, types.KEY_READ, &key))
	assert.Equal(t, types.HKEY_LOCAL_MACHINE, key)

	// An empty subkey on HKLM is a fresh handle to the root.
	require.Equal(t, types.ERROR_SUCCESS, s.RegOpenKeyExW(types.HKEY_LOCAL_MACHINE, str(""), 0, types.KEY_READ, &key))
	assert.False(t, IsPredefined(key))
	require.Equal(t, types.ERROR_SUCCESS, s.RegCloseKey(key))

	// HKEY_CLASSES_ROOT is the other way round.
	require.Equal(t, types.ERROR_SUCCESS, s.RegOpenKeyExW(types.HKEY_CLASSES_ROOT, str(""), 0, types.KEY_READ, &key))
	assert.Equal(t, types.HKEY_CLASSES_ROOT, key)
	require.Equal(t, types.ERROR_SUCCESS, s.RegOpenKeyExW(types.HKEY_CLASSES_ROOT, nil, 0, types.KEY_READ, &key))
	assert.False(t, IsPredefined(key))
	require.Equal(t, types.ERROR_SUCCESS, s.RegCloseKey(key))

	require.Equal(t, types.ERROR_SUCCESS, s.RegCloseKey(types.HKEY_CURRENT_USER))
	assert.Equal(t, types.ERROR_INVALID_HANDLE, s.RegCloseKey(0x9998))
	assert.Equal(t, types.ERROR_INVALID_PARAMETER, s.RegQueryValueExW(0, nil, nil, nil, nil, nil))
	var reserved uint32
	assert.Equal(t, types.ERROR_INVALID_PARAMETER, s.RegQueryValueExW(types.HKEY_LOCAL_MACHINE, nil, &reserved, nil, nil, nil))
	assert.Equal(t, types.ERROR_INVALID_PARAMETER, s.RegQueryValueExW(types.HKEY_LOCAL_MACHINE, nil, nil, nil, make([]byte, 4), nil))

	assert.Zero(t, os.OpenHandles())
}

func TestCurrentUserHive(t *testing.T) {
	s, os := newTestShim(t)
	os.SetString(`\Registry\User\S-1-5-21-42\Environment`, "TEMP", `C:\Temp`)

	var key types.Handle
	require.Equal(t, types.ERROR_SUCCESS, s.RegOpenKeyExW(types.HKEY_CURRENT_USER, str("Environment"), 0, types.KEY_READ, &key))
	out := make([]byte, 64)
	size := uint32(len(out))
	var typ types.RegType
	require.Equal(t, types.ERROR_SUCCESS, s.RegQueryValueExA(key, []byte("TEMP"), nil, &typ, out, &size))
	assert.Equal(t, "C:\\Temp\x00", string(out[:size]))
	require.Equal(t, types.ERROR_SUCCESS, s.RegCloseKey(key))
	assert.Zero(t, os.OpenHandles())
}

func TestImports(t *testing.T) {
	s, _ := newTestShim(t)
	tab := strtab.New("advapi32", s.Imports())
	assert.Equal(t, 5, tab.Len())
}
