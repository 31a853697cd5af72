package modules

import (
	"fmt"
	"strings"

	"github.com/joshuapare/winredir/internal/logger"
	"github.com/joshuapare/winredir/native"
	"github.com/joshuapare/winredir/pkg/types"
)

// maxForwarderHops bounds a chain of forwarded exports.
const maxForwarderHops = 16

// Redirector supplies replacement addresses for redirected symbols. It is
// implemented by the dispatch facade.
type Redirector interface {
	// ResolveImport returns the address to bind for symbol imported from
	// library from by importer, or 0 to bind the real export.
	ResolveImport(from, symbol string, importer *Module) uintptr

	// RedirectProc returns the address GetProcAddress hands out for a
	// redirected symbol of library, or 0.
	RedirectProc(library, symbol string) uintptr
}

// Loader maps private libraries and serves the loader entry points.
type Loader struct {
	reg    *Registry
	mapper *PEMapper
	find   func(name string) (string, []byte, error)

	// The application's loader, captured once so that forwarding never
	// re-enters redirection.
	realGetModuleHandle   func(name string) types.Handle
	realGetProcAddress    func(mod types.Handle, name string) uintptr
	realGetModuleFileName func(mod types.Handle) (string, bool)

	redirect Redirector
	onLoad   []func(*Module)
}

// NewLoader returns a loader over reg that maps images with mapper and
// forwards misses to os.
func NewLoader(reg *Registry, mapper *PEMapper, os native.Loader) *Loader {
	return &Loader{
		reg:                   reg,
		mapper:                mapper,
		find:                  os.FindImage,
		realGetModuleHandle:   os.GetModuleHandle,
		realGetProcAddress:    os.GetProcAddress,
		realGetModuleFileName: os.GetModuleFileName,
	}
}

// Registry returns the loader's module registry.
func (l *Loader) Registry() *Registry { return l.reg }

// SetRedirector installs the symbol redirector. It must be called before
// the first Load.
func (l *Loader) SetRedirector(r Redirector) { l.redirect = r }

// OnLoad registers fn to run after every newly mapped library has been
// bound. Hooks run with the registry write-locked and must not call back
// into the Loader or the Registry.
func (l *Loader) OnLoad(fn func(*Module)) { l.onLoad = append(l.onLoad, fn) }

// Register adds a module mapped outside the private loader. It is never
// unmapped.
func (l *Loader) Register(m *Module) error {
	m.Name = LibraryName(m.Name)
	m.External = true
	if m.refs == 0 {
		m.refs = 1
	}
	if m.Exports == nil {
		m.Exports = make(map[string]uintptr)
	}
	if m.Forwarders == nil {
		m.Forwarders = make(map[string]string)
	}
	l.reg.mu.Lock()
	defer l.reg.mu.Unlock()
	return l.reg.addLocked(m)
}

// Load returns the module for name, mapping and binding it on first use.
// A library that is already loaded gains a reference.
func (l *Loader) Load(name string) (*Module, error) {
	l.reg.mu.Lock()
	defer l.reg.mu.Unlock()
	return l.loadLocked(WithDefaultExt(name))
}

func (l *Loader) loadLocked(name string) (*Module, error) {
	if m := l.reg.lookupByNameLocked(name); m != nil {
		m.refs++
		return m, nil
	}

	p, data, err := l.find(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, name, err)
	}
	m, err := l.mapper.Map(p, data)
	if err != nil {
		return nil, err
	}
	m.refs = 1
	// Registered before binding so that import cycles find it.
	if err := l.reg.addLocked(m); err != nil {
		l.mapper.Unmap(m)
		return nil, fmt.Errorf("modules: %s: %w", m.Name, err)
	}
	if err := l.bindLocked(m); err != nil {
		l.reg.removeLocked(m)
		for _, d := range m.deps {
			l.releaseLocked(d)
		}
		l.mapper.Unmap(m)
		return nil, err
	}

	for _, fn := range l.onLoad {
		fn(m)
	}
	logger.WithFn("load").WithField("module", m.Name).
		WithField("base", fmt.Sprintf("%#x", m.Base)).Debug("mapped")
	return m, nil
}

// bindLocked fills m's import address tables.
func (l *Loader) bindLocked(m *Module) error {
	ordinalFlag := uint64(1) << (8*m.ptrSize - 1)
	for _, desc := range m.imports {
		imp, err := l.loadLocked(WithDefaultExt(desc.library))
		if err != nil {
			return fmt.Errorf("modules: %s imports %s: %w", m.Name, desc.library, err)
		}
		m.deps = append(m.deps, imp)

		for i := uint32(0); ; i++ {
			off := i * uint32(m.ptrSize)
			entry, ok := m.word(desc.lookup + off)
			if !ok {
				return fmt.Errorf("%w: %s: import table outside image", ErrBadImage, m.Name)
			}
			if entry == 0 {
				break
			}
			if entry&ordinalFlag != 0 {
				return fmt.Errorf("%w: %s!#%d", ErrOrdinalImport, imp.Name, uint16(entry))
			}
			// IMAGE_IMPORT_BY_NAME: a 2-byte hint, then the name.
			sym, ok := m.cstring(uint32(entry) + 2)
			if !ok {
				return fmt.Errorf("%w: %s: import name outside image", ErrBadImage, m.Name)
			}
			addr, err := l.resolveImportLocked(m, imp, sym)
			if err != nil {
				return err
			}
			if !m.putWord(desc.iat+off, uint64(addr)) {
				return fmt.Errorf("%w: %s: IAT outside image", ErrBadImage, m.Name)
			}
		}
	}
	return nil
}

// resolveImportLocked finds sym in imp, following forwarders, and gives
// the redirector the final (library, name) pair.
func (l *Loader) resolveImportLocked(importer, imp *Module, sym string) (uintptr, error) {
	target, fn := imp, sym
	for hop := 0; ; hop++ {
		if addr, ok := target.Exports[fn]; ok {
			if l.redirect != nil {
				if dst := l.redirect.ResolveImport(target.Name, fn, importer); dst != 0 {
					logger.WithFn(fn).WithField("from", target.Name).
						WithField("importer", importer.Name).Debug("redirected import")
					return dst, nil
				}
			}
			return addr, nil
		}
		fwd, ok := target.Forwarders[fn]
		if !ok {
			return 0, fmt.Errorf("%w: %s!%s (imported by %s)", ErrImportNotFound, target.Name, fn, importer.Name)
		}
		if hop == maxForwarderHops {
			return 0, fmt.Errorf("%w: %s!%s", ErrForwarderLoop, imp.Name, sym)
		}
		next, nextFn, err := l.forwardLocked(importer, fwd)
		if err != nil {
			return 0, err
		}
		target, fn = next, nextFn
	}
}

// forwardLocked returns the module and symbol a "lib.Func" forwarder
// names. A forwarded-to library that is already loaded is used without
// taking a reference; one loaded here is recorded as a dependency of
// importer.
func (l *Loader) forwardLocked(importer *Module, fwd string) (*Module, string, error) {
	dot := strings.LastIndexByte(fwd, '.')
	if dot <= 0 || dot == len(fwd)-1 {
		return nil, "", fmt.Errorf("%w: malformed forwarder %q", ErrBadImage, fwd)
	}
	lib, fn := fwd[:dot]+".dll", fwd[dot+1:]
	if strings.HasPrefix(fn, "#") {
		return nil, "", fmt.Errorf("%w: %s", ErrOrdinalImport, fwd)
	}
	if m := l.reg.lookupByNameLocked(lib); m != nil {
		return m, fn, nil
	}
	m, err := l.loadLocked(lib)
	if err != nil {
		return nil, "", fmt.Errorf("modules: forwarder %s: %w", fwd, err)
	}
	importer.deps = append(importer.deps, m)
	return m, fn, nil
}

// Release drops a reference to m and unmaps it when none remain. It
// reports whether m was unloaded.
func (l *Loader) Release(m *Module) bool {
	l.reg.mu.Lock()
	defer l.reg.mu.Unlock()
	return l.releaseLocked(m)
}

func (l *Loader) releaseLocked(m *Module) bool {
	if m.External || m.pinned || m.refs <= 0 {
		return false
	}
	m.refs--
	if m.refs > 0 {
		return false
	}
	l.reg.removeLocked(m)
	for _, d := range m.deps {
		l.releaseLocked(d)
	}
	m.deps = nil
	if err := l.mapper.Unmap(m); err != nil {
		logger.WithFn("unload").WithField("module", m.Name).WithError(err).Debug("unmap failed")
	}
	logger.WithFn("unload").WithField("module", m.Name).Debug("unmapped")
	return true
}

// ProcAddress resolves an export of a private module: the redirector
// first, then the export table, then forwarders (loading the target
// library if needed). It returns 0 when the name is not exported.
func (l *Loader) ProcAddress(m *Module, name string) uintptr {
	if l.redirect != nil {
		if addr := l.redirect.RedirectProc(m.Name, name); addr != 0 {
			return addr
		}
	}
	l.reg.mu.Lock()
	defer l.reg.mu.Unlock()
	target, fn := m, name
	for hop := 0; hop <= maxForwarderHops; hop++ {
		if addr, ok := target.Exports[fn]; ok {
			if target != m && l.redirect != nil {
				if dst := l.redirect.RedirectProc(target.Name, fn); dst != 0 {
					return dst
				}
			}
			return addr
		}
		fwd, ok := target.Forwarders[fn]
		if !ok {
			return 0
		}
		next, nextFn, err := l.forwardLocked(m, fwd)
		if err != nil {
			logger.WithFn("GetProcAddress").WithField("forwarder", fwd).WithError(err).Debug("unresolved")
			return 0
		}
		target, fn = next, nextFn
	}
	return 0
}
