// Package kernel32 implements the file, handle, pipe, process and wait
// entry points of the isolated kernel32 on top of the raw system calls, so
// that none of them reaches the application's kernel32 or kernelbase.
//
// Each wrapper translates its Win32 arguments into object attributes,
// access masks and create options, makes one or more system calls, and
// sets the thread's last error from the resulting status.
package kernel32

import (
	"sync"
	"sync/atomic"

	"github.com/joshuapare/winredir/internal/ntstatus"
	"github.com/joshuapare/winredir/internal/textconv"
	"github.com/joshuapare/winredir/native"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/teb"
)

// Shim holds the kernel32 state of one isolation domain.
type Shim struct {
	os  native.Kernel
	cwd string

	mu    sync.Mutex
	finds map[types.Handle]struct{}

	pipeSerial atomic.Uint32
}

// New returns a shim over os. Relative paths resolve against cwd, which
// must be an absolute drive path such as `C:\app`.
func New(os native.Kernel, cwd string) *Shim {
	if cwd == "" {
		cwd = `C:\`
	}
	return &Shim{os: os, cwd: cwd, finds: make(map[types.Handle]struct{})}
}

// CurrentDirectory returns the directory relative paths resolve against.
func (s *Shim) CurrentDirectory() string { return s.cwd }

// fail sets the last error for st and reports false.
func fail(t *teb.Thread, st types.NTStatus) bool {
	t.SetLastError(ntstatus.ToLastError(st))
	return false
}

// ansi decodes an A-variant argument. nil stays nil.
func ansi(t *teb.Thread, b []byte) (*string, bool) {
	if b == nil {
		return nil, true
	}
	s, err := textconv.AnsiToString(b)
	if err != nil {
		t.SetLastError(types.ERROR_NO_UNICODE_TRANSLATION)
		return nil, false
	}
	return &s, true
}

// objectAttributes builds the attributes for a Win32 path.
func (s *Shim) objectAttributes(t *teb.Thread, name *string, sa *types.SecurityAttributes, caseInsensitive bool) (*types.ObjectAttributes, bool) {
	if name == nil {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return nil, false
	}
	p, err := NtPath(*name, s.cwd)
	if err != nil {
		t.SetLastError(types.ERROR_PATH_NOT_FOUND)
		return nil, false
	}
	oa := &types.ObjectAttributes{ObjectName: p}
	if caseInsensitive {
		oa.Attributes |= types.OBJ_CASE_INSENSITIVE
	}
	applySecurity(oa, sa)
	return oa, true
}

func applySecurity(oa *types.ObjectAttributes, sa *types.SecurityAttributes) {
	if sa == nil {
		return
	}
	oa.SecurityDescriptor = sa.SecurityDescriptor
	if sa.InheritHandle {
		oa.Attributes |= types.OBJ_INHERIT
	}
}
