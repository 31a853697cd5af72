// Package advapi32 implements the registry entry points of the isolated
// advapi32 directly on the NT key system calls.
//
// The predefined root keys (HKEY_LOCAL_MACHINE and friends) are not real
// handles. Each call that receives one opens the object-manager path it
// stands for, uses that handle, and closes it again before returning.
package advapi32

import (
	"math"

	"github.com/joshuapare/winredir/internal/buf"
	"github.com/joshuapare/winredir/internal/logger"
	"github.com/joshuapare/winredir/internal/ntstatus"
	"github.com/joshuapare/winredir/internal/textconv"
	"github.com/joshuapare/winredir/native"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/strtab"
)

const (
	// maxKeyName bounds a key or value name, in characters.
	maxKeyName = 255

	// initialQuery is the first buffer offered to NtQueryValueKey; most
	// values fit and need no second call.
	initialQuery = 128
)

// Shim holds the registry redirections of one isolation domain.
type Shim struct {
	os native.Kernel
}

// New returns a shim over os.
func New(os native.Kernel) *Shim {
	return &Shim{os: os}
}

// Imports returns the advapi32 entries this package provides.
func (s *Shim) Imports() []strtab.Import {
	return []strtab.Import{
		{Name: "RegCloseKey", Func: s.RegCloseKey},
		{Name: "RegOpenKeyExA", Func: s.RegOpenKeyExA},
		{Name: "RegOpenKeyExW", Func: s.RegOpenKeyExW},
		{Name: "RegQueryValueExA", Func: s.RegQueryValueExA},
		{Name: "RegQueryValueExW", Func: s.RegQueryValueExW},
	}
}

// IsPredefined reports the root keys that stand for an object-manager path.
func IsPredefined(key types.Handle) bool {
	switch key {
	case types.HKEY_LOCAL_MACHINE, types.HKEY_CURRENT_USER, types.HKEY_CURRENT_CONFIG,
		types.HKEY_CLASSES_ROOT, types.HKEY_USERS:
		return true
	}
	return false
}

func isPerformance(key types.Handle) bool {
	return key == types.HKEY_PERFORMANCE_DATA || key == types.HKEY_PERFORMANCE_TEXT ||
		key == types.HKEY_PERFORMANCE_NLSTEXT
}

// RootPath returns the object-manager path of a predefined key. The
// current user's hive is named by the SID of the thread (or, failing that,
// process) token.
func (s *Shim) RootPath(key types.Handle) (string, types.NTStatus) {
	switch key {
	case types.HKEY_LOCAL_MACHINE:
		return `\Registry\Machine`, types.STATUS_SUCCESS
	case types.HKEY_CURRENT_CONFIG:
		return `\Registry\Machine\System\CurrentControlSet\Hardware Profiles\Current`, types.STATUS_SUCCESS
	case types.HKEY_CLASSES_ROOT:
		return `\Registry\Machine\Software\CLASSES`, types.STATUS_SUCCESS
	case types.HKEY_USERS:
		return `\Registry\User`, types.STATUS_SUCCESS
	case types.HKEY_CURRENT_USER:
		sid, st := s.currentUserSID()
		if !st.IsSuccess() {
			return "", st
		}
		return `\Registry\User\` + sid, types.STATUS_SUCCESS
	}
	return "", types.STATUS_INVALID_HANDLE
}

func (s *Shim) currentUserSID() (string, types.NTStatus) {
	tok, st := s.os.NtOpenThreadTokenEx(types.CurrentThread, types.TOKEN_QUERY, true, 0)
	if st == types.STATUS_NO_TOKEN {
		tok, st = s.os.NtOpenProcessTokenEx(types.CurrentProcess, types.TOKEN_QUERY, 0)
	}
	if !st.IsSuccess() {
		return "", st
	}
	defer s.os.NtClose(tok)
	return s.os.NtQueryTokenUser(tok)
}

// resolve turns key into a handle the kernel accepts. For a predefined key
// the handle is freshly opened and release closes it.
func (s *Shim) resolve(key types.Handle) (h types.Handle, release func(), st types.NTStatus) {
	noop := func() {}
	if isPerformance(key) {
		return 0, noop, types.STATUS_NOT_IMPLEMENTED
	}
	if !IsPredefined(key) {
		return key, noop, types.STATUS_SUCCESS
	}
	path, st := s.RootPath(key)
	if !st.IsSuccess() {
		return 0, noop, st
	}
	h, st = s.os.NtOpenKey(types.MAXIMUM_ALLOWED, &types.ObjectAttributes{
		ObjectName: path,
		Attributes: types.OBJ_CASE_INSENSITIVE,
	})
	if !st.IsSuccess() {
		return 0, noop, st
	}
	return h, func() { s.os.NtClose(h) }, types.STATUS_SUCCESS
}

// RegCloseKey closes a key handle. Closing a predefined key succeeds
// without a system call.
func (s *Shim) RegCloseKey(key types.Handle) types.Errno {
	if IsPredefined(key) {
		return types.ERROR_SUCCESS
	}
	return ntstatus.ToLastError(s.os.NtClose(key))
}

// RegOpenKeyExA is RegOpenKeyExW with an ANSI subkey.
func (s *Shim) RegOpenKeyExA(key types.Handle, subKey []byte, options, sam uint32, out *types.Handle) types.Errno {
	if subKey == nil {
		return s.RegOpenKeyExW(key, nil, options, sam, out)
	}
	w, err := textconv.AnsiToString(subKey)
	if err != nil || len([]rune(w)) >= maxKeyName {
		return types.ERROR_INVALID_PARAMETER
	}
	return s.RegOpenKeyExW(key, &w, options, sam, out)
}

// RegOpenKeyExW opens subKey below key. A nil subKey is only accepted
// for a predefined key. For HKEY_CLASSES_ROOT a nil subKey yields a new
// handle and an empty one yields the predefined key itself; every other
// root key behaves the other way round.
func (s *Shim) RegOpenKeyExW(key types.Handle, subKey *string, options, sam uint32, out *types.Handle) types.Errno {
	if options != 0 || out == nil || (subKey == nil && !IsPredefined(key)) {
		return types.ERROR_INVALID_PARAMETER
	}
	parent, release, st := s.resolve(key)
	if !st.IsSuccess() {
		return ntstatus.ToLastError(st)
	}
	defer release()

	classes := key == types.HKEY_CLASSES_ROOT
	empty := subKey != nil && *subKey == ""
	switch {
	case (subKey == nil && classes) || (empty && !classes):
		h, st := s.os.NtDuplicateObject(types.CurrentProcess, parent, types.CurrentProcess, types.SYNCHRONIZE, 0, 0)
		if st.IsSuccess() {
			*out = h
		}
		return ntstatus.ToLastError(st)
	case subKey == nil || empty:
		*out = key
		return types.ERROR_SUCCESS
	}

	h, st := s.os.NtOpenKey(sam, &types.ObjectAttributes{
		RootDirectory: parent,
		ObjectName:    *subKey,
		Attributes:    types.OBJ_CASE_INSENSITIVE,
	})
	logger.WithFn("RegOpenKeyEx").WithField("subkey", *subKey).WithField("status", st.String()).Debug("syscall")
	if st.IsSuccess() {
		*out = h
	}
	return ntstatus.ToLastError(st)
}

// queryPartial asks for KEY_VALUE_PARTIAL_INFORMATION of name, starting
// with a small buffer. While the kernel reports overflow and the data would
// fit capacity, it retries with the size the kernel asked for; the value
// can grow between calls, hence the loop. It returns the buffer, the
// structure size the kernel reported, and the final status.
func (s *Shim) queryPartial(key types.Handle, name string, capacity uint32, wantData bool) ([]byte, uint32, types.NTStatus) {
	kvpi := make([]byte, initialQuery)
	n, st := s.os.NtQueryValueKey(key, name, types.KeyValuePartialInformation, kvpi)
	for wantData && st == types.STATUS_BUFFER_OVERFLOW && n >= types.KeyValuePartialHeaderSize &&
		capacity >= n-types.KeyValuePartialHeaderSize {
		kvpi = make([]byte, n)
		n, st = s.os.NtQueryValueKey(key, name, types.KeyValuePartialInformation, kvpi)
	}
	return kvpi, n, st
}

// RegQueryValueExW reads a value. data may be nil to ask only for the type
// or size; size is in/out and holds the capacity of data on entry. When
// size is too small the call fails with ERROR_MORE_DATA and size holds the
// length needed.
func (s *Shim) RegQueryValueExW(key types.Handle, name *string, reserved *uint32, typ *types.RegType, data []byte, size *uint32) types.Errno {
	if reserved != nil || key == 0 || (data != nil && size == nil) {
		return types.ERROR_INVALID_PARAMETER
	}
	vname := ""
	if name != nil {
		vname = *name
	}
	h, release, st := s.resolve(key)
	if !st.IsSuccess() {
		return ntstatus.ToLastError(st)
	}
	defer release()

	capacity := callerCapacity(data, size)
	kvpi, n, st := s.queryPartial(h, vname, capacity, data != nil)
	if (st.IsSuccess() || st == types.STATUS_BUFFER_OVERFLOW) && n >= types.KeyValuePartialHeaderSize {
		need := n - types.KeyValuePartialHeaderSize
		if data == nil {
			// Only the header was wanted and the kernel wrote it.
			st = types.STATUS_SUCCESS
		}
		if size != nil {
			if capacity < need {
				st = types.STATUS_BUFFER_OVERFLOW
			}
			*size = need
		}
		if st.IsSuccess() {
			if typ != nil {
				*typ = types.RegType(buf.U32LE(kvpi[4:]))
			}
			if data != nil {
				copy(data, kvpi[types.KeyValuePartialHeaderSize:n])
			}
		}
	}
	return ntstatus.ToLastError(st)
}

// RegQueryValueExA is RegQueryValueExW with an ANSI value name. String
// data (REG_SZ, REG_EXPAND_SZ, REG_MULTI_SZ) is returned in the ANSI code
// page and size reports the narrow length; a multi-string is converted one
// segment at a time so its embedded terminators are kept.
func (s *Shim) RegQueryValueExA(key types.Handle, name []byte, reserved *uint32, typ *types.RegType, data []byte, size *uint32) types.Errno {
	var wname *string
	if name != nil {
		w, err := textconv.AnsiToString(name)
		if err != nil || len([]rune(w)) >= maxKeyName {
			return types.ERROR_INVALID_PARAMETER
		}
		wname = &w
	}
	if data != nil && size == nil {
		return types.ERROR_INVALID_PARAMETER
	}

	// The wide data is longer than the narrow result, so it is fetched in
	// full and measured after conversion.
	var t types.RegType
	var wsize uint32
	if e := s.RegQueryValueExW(key, wname, reserved, &t, nil, &wsize); e != types.ERROR_SUCCESS && e != types.ERROR_MORE_DATA {
		return e
	}
	wide := make([]byte, wsize)
	for {
		got := uint32(len(wide))
		e := s.RegQueryValueExW(key, wname, reserved, &t, wide, &got)
		if e == types.ERROR_MORE_DATA {
			wide = make([]byte, got)
			continue
		}
		if e != types.ERROR_SUCCESS {
			return e
		}
		wide = wide[:got]
		break
	}

	out := wide
	if t.IsString() {
		out = textconv.NarrowRegData(wide, t == types.REG_MULTI_SZ)
	}
	if typ != nil {
		*typ = t
	}
	if size == nil {
		return types.ERROR_SUCCESS
	}
	need := uint32(len(out))
	capacity := callerCapacity(data, size)
	*size = need
	if capacity < need {
		return types.ERROR_MORE_DATA
	}
	if data != nil {
		copy(data, out)
	}
	return types.ERROR_SUCCESS
}

// callerCapacity is the usable size of data: the declared size, bounded by
// the slice. Without data the declared size stands alone.
func callerCapacity(data []byte, size *uint32) uint32 {
	if size == nil {
		if data == nil {
			return 0
		}
		return math.MaxUint32
	}
	if data != nil && uint64(len(data)) < uint64(*size) {
		return uint32(len(data))
	}
	return *size
}
