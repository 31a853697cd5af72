package modules

import (
	"fmt"
	"unicode/utf16"

	"github.com/joshuapare/winredir/internal/logger"
	"github.com/joshuapare/winredir/internal/textconv"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/teb"
)

// A nil name (*string or []byte) stands for a NULL argument throughout.

// GetModuleHandleA is GetModuleHandleW with an ANSI name.
func (l *Loader) GetModuleHandleA(t *teb.Thread, name []byte) types.Handle {
	if name == nil {
		return l.GetModuleHandleW(t, nil)
	}
	s, err := textconv.AnsiToString(name)
	if err != nil {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return 0
	}
	return l.GetModuleHandleW(t, &s)
}

// GetModuleHandleW returns the base of a private module, or asks the
// application's loader. NULL names the executable.
func (l *Loader) GetModuleHandleW(t *teb.Thread, name *string) types.Handle {
	if name != nil {
		if m := l.reg.LookupByName(*name); m != nil {
			logger.WithFn("GetModuleHandle").WithField("module", m.Name).Debug("private")
			return types.Handle(m.Base)
		}
	}
	n := ""
	if name != nil {
		n = *name
	}
	h := l.realGetModuleHandle(n)
	if h == 0 {
		t.SetLastError(types.ERROR_MOD_NOT_FOUND)
	}
	return h
}

// GetModuleHandleExA is GetModuleHandleExW with an ANSI name.
func (l *Loader) GetModuleHandleExA(t *teb.Thread, flags uint32, name []byte, addr uintptr, out *types.Handle) bool {
	if flags&types.GET_MODULE_HANDLE_EX_FLAG_FROM_ADDRESS != 0 || name == nil {
		return l.GetModuleHandleExW(t, flags, nil, addr, out)
	}
	s, err := textconv.AnsiToString(name)
	if err != nil {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return false
	}
	return l.GetModuleHandleExW(t, flags, &s, addr, out)
}

// GetModuleHandleExW looks a module up by name, or by an address inside
// it when GET_MODULE_HANDLE_EX_FLAG_FROM_ADDRESS is set, and adjusts its
// reference count per the PIN and UNCHANGED_REF flags.
func (l *Loader) GetModuleHandleExW(t *teb.Thread, flags uint32, name *string, addr uintptr, out *types.Handle) bool {
	const (
		pinRef = types.GET_MODULE_HANDLE_EX_FLAG_PIN | types.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REF
		known  = pinRef | types.GET_MODULE_HANDLE_EX_FLAG_FROM_ADDRESS
	)
	if out == nil || flags&^known != 0 || flags&pinRef == pinRef {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return false
	}
	*out = 0

	l.reg.mu.Lock()
	var m *Module
	if flags&types.GET_MODULE_HANDLE_EX_FLAG_FROM_ADDRESS != 0 {
		m = l.reg.lookupByPCLocked(addr)
	} else if name != nil {
		m = l.reg.lookupByNameLocked(*name)
	}
	if m != nil {
		switch {
		case flags&types.GET_MODULE_HANDLE_EX_FLAG_PIN != 0:
			m.pinned = true
		case flags&types.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REF == 0:
			m.refs++
		}
		*out = types.Handle(m.Base)
	}
	l.reg.mu.Unlock()
	if m != nil {
		return true
	}

	if flags&types.GET_MODULE_HANDLE_EX_FLAG_FROM_ADDRESS != 0 {
		t.SetLastError(types.ERROR_MOD_NOT_FOUND)
		return false
	}
	n := ""
	if name != nil {
		n = *name
	}
	h := l.realGetModuleHandle(n)
	if h == 0 {
		t.SetLastError(types.ERROR_MOD_NOT_FOUND)
		return false
	}
	*out = h
	return true
}

// GetProcAddress resolves name in mod. For a private module the
// redirector is asked first, then the module's exports and forwarders.
// For an application module the redirector is asked by file name and the
// application's loader answers otherwise.
func (l *Loader) GetProcAddress(t *teb.Thread, mod types.Handle, name string) uintptr {
	addr := l.lookupProc(mod, name)
	if addr == 0 {
		t.SetLastError(types.ERROR_PROC_NOT_FOUND)
	}
	return addr
}

func (l *Loader) lookupProc(mod types.Handle, name string) uintptr {
	if m := l.reg.LookupByBase(uintptr(mod)); m != nil {
		addr := l.ProcAddress(m, name)
		logger.WithFn("GetProcAddress").WithField("module", m.Name).
			WithField("proc", name).WithField("addr", fmt.Sprintf("%#x", addr)).Debug("private")
		return addr
	}
	if l.redirect != nil {
		if p, ok := l.realGetModuleFileName(mod); ok {
			if addr := l.redirect.RedirectProc(LibraryName(p), name); addr != 0 {
				return addr
			}
		}
	}
	return l.realGetProcAddress(mod, name)
}

// LoadLibraryA is LoadLibraryW with an ANSI name.
func (l *Loader) LoadLibraryA(t *teb.Thread, name []byte) types.Handle {
	return l.LoadLibraryExA(t, name, 0, 0)
}

// LoadLibraryW loads name into the isolation domain.
func (l *Loader) LoadLibraryW(t *teb.Thread, name *string) types.Handle {
	return l.LoadLibraryExW(t, name, 0, 0)
}

// LoadLibraryExA is LoadLibraryExW with an ANSI name.
func (l *Loader) LoadLibraryExA(t *teb.Thread, name []byte, file types.Handle, flags uint32) types.Handle {
	if name == nil {
		return l.LoadLibraryExW(t, nil, file, flags)
	}
	s, err := textconv.AnsiToString(name)
	if err != nil {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return 0
	}
	return l.LoadLibraryExW(t, &s, file, flags)
}

// LoadLibraryExW maps name with the private loader. There is no fallback
// to the application's copy: a library the private loader cannot handle
// fails with ERROR_MOD_NOT_FOUND. flags are accepted and ignored.
func (l *Loader) LoadLibraryExW(t *teb.Thread, name *string, file types.Handle, flags uint32) types.Handle {
	if name == nil || *name == "" || file != 0 {
		t.SetLastError(types.ERROR_INVALID_PARAMETER)
		return 0
	}
	m, err := l.Load(*name)
	if err != nil {
		logger.WithFn("LoadLibrary").WithField("name", *name).WithError(err).Debug("private load failed")
		t.SetLastError(types.ERROR_MOD_NOT_FOUND)
		return 0
	}
	return types.Handle(m.Base)
}

// FreeLibrary drops a reference to a private module. Application modules
// were handed out without a reference and are left alone.
func (l *Loader) FreeLibrary(t *teb.Thread, mod types.Handle) bool {
	if m := l.reg.LookupByBase(uintptr(mod)); m != nil {
		l.Release(m)
		return true
	}
	if _, ok := l.realGetModuleFileName(mod); ok && mod != 0 {
		return true
	}
	t.SetLastError(types.ERROR_INVALID_HANDLE)
	return false
}

// GetModuleFileNameW returns the path of mod (0 is the executable) cut to
// size-1 characters, and the count GetModuleFileNameW would return: the
// length on success, size on truncation with ERROR_INSUFFICIENT_BUFFER,
// and 0 on failure.
func (l *Loader) GetModuleFileNameW(t *teb.Thread, mod types.Handle, size uint32) (string, uint32) {
	p, ok := l.moduleFileName(mod)
	if !ok {
		t.SetLastError(types.ERROR_MOD_NOT_FOUND)
		return "", 0
	}
	return truncateName(t, utf16.Encode([]rune(p)), size)
}

// GetModuleFileNameA is GetModuleFileNameW in the ANSI code page.
func (l *Loader) GetModuleFileNameA(t *teb.Thread, mod types.Handle, size uint32) ([]byte, uint32) {
	p, ok := l.moduleFileName(mod)
	if !ok {
		t.SetLastError(types.ERROR_MOD_NOT_FOUND)
		return nil, 0
	}
	b := textconv.StringToAnsi(p)
	if uint32(len(b)) < size {
		t.SetLastError(types.ERROR_SUCCESS)
		return b, uint32(len(b))
	}
	t.SetLastError(types.ERROR_INSUFFICIENT_BUFFER)
	if size == 0 {
		return nil, 0
	}
	return b[:size-1], size
}

func truncateName(t *teb.Thread, units []uint16, size uint32) (string, uint32) {
	if uint32(len(units)) < size {
		t.SetLastError(types.ERROR_SUCCESS)
		return string(utf16.Decode(units)), uint32(len(units))
	}
	t.SetLastError(types.ERROR_INSUFFICIENT_BUFFER)
	if size == 0 {
		return "", 0
	}
	return string(utf16.Decode(units[:size-1])), size
}

func (l *Loader) moduleFileName(mod types.Handle) (string, bool) {
	if mod != 0 {
		if m := l.reg.LookupByBase(uintptr(mod)); m != nil {
			return m.Path, true
		}
	}
	return l.realGetModuleFileName(mod)
}
