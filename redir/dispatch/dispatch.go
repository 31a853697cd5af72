// Package dispatch decides, for an import or a GetProcAddress request,
// which redirection table answers it and hands out the stub address of the
// replacement.
//
// A Dispatcher holds references to the tables of one isolation domain and
// to its stub table; it has no state of its own.
package dispatch

import (
	"strings"

	"github.com/joshuapare/winredir/internal/logger"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/modules"
	"github.com/joshuapare/winredir/redir/strtab"
	"github.com/joshuapare/winredir/redir/stub"
)

// Library names as registry keys.
const (
	Kernel32   = "kernel32.dll"
	Kernelbase = "kernelbase.dll"
	Advapi32   = "advapi32.dll"
	Ntdll      = "ntdll.dll"
	Rpcrt4     = "rpcrt4.dll"

	apiSetPrefix = "api-ms-win-"
)

// loaderSensitive are the kernel32 loader routines that kernel32 itself
// imports from kernelbase on Windows 7 and later. Redirecting those imports
// would route the private kernel32 back into its own shims.
var loaderSensitive = map[string]bool{
	"FreeLibrary":        true,
	"GetModuleFileNameA": true,
	"GetModuleFileNameW": true,
	"GetModuleHandleA":   true,
	"GetModuleHandleExA": true,
	"GetModuleHandleExW": true,
	"GetModuleHandleW":   true,
	"GetProcAddress":     true,
	"LoadLibraryA":       true,
	"LoadLibraryExA":     true,
	"LoadLibraryExW":     true,
	"LoadLibraryW":       true,
}

// Emitter turns a replacement into a callable address. *stub.Table
// implements it.
type Emitter interface {
	Emit(key string, target any) (uintptr, error)
}

var _ Emitter = (*stub.Table)(nil)

// Dispatcher routes symbol lookups to redirection tables.
type Dispatcher struct {
	tables  map[string]strtab.Set
	stubs   Emitter
	version types.WindowsVersion
}

var _ modules.Redirector = (*Dispatcher)(nil)

// New returns a dispatcher over tables, keyed by library name
// ("kernel32.dll"). The map is not copied and must not change afterwards;
// the tables inside it may still have entries removed.
func New(tables map[string]strtab.Set, stubs Emitter, version types.WindowsVersion) *Dispatcher {
	return &Dispatcher{tables: tables, stubs: stubs, version: version}
}

// Version returns the OS release the dispatcher decides for.
func (d *Dispatcher) Version() types.WindowsVersion { return d.version }

// Table returns the table set of library.
func (d *Dispatcher) Table(library string) (strtab.Set, bool) {
	s, ok := d.tables[modules.LibraryName(library)]
	return s, ok
}

// routes lists the libraries whose tables answer for from, in order.
// kernelbase and the API-set contracts took over exports of kernel32 and,
// for the registry, of advapi32.
func routes(from string) []string {
	if from == Kernelbase || strings.HasPrefix(from, apiSetPrefix) {
		return []string{Kernel32, Advapi32}
	}
	return []string{from}
}

// Lookup returns the replacement for symbol imported from library from by
// importer (a library name, empty when unknown), with the library whose
// table matched.
func (d *Dispatcher) Lookup(from, symbol, importer string) (fn any, library string, ok bool) {
	from = modules.LibraryName(from)
	if importer != "" && modules.LibraryName(importer) == Kernel32 &&
		d.version >= types.Windows7 && loaderSensitive[symbol] {
		return nil, "", false
	}
	for _, lib := range routes(from) {
		set, found := d.tables[lib]
		if !found {
			continue
		}
		if fn, ok := set.Lookup(symbol); ok {
			return fn, lib, true
		}
	}
	return nil, "", false
}

// ResolveImport implements modules.Redirector.
func (d *Dispatcher) ResolveImport(from, symbol string, importer *modules.Module) uintptr {
	name := ""
	if importer != nil {
		name = importer.Name
	}
	return d.resolve(from, symbol, name)
}

// RedirectProc implements modules.Redirector. GetProcAddress has no
// importer, so nothing is suppressed.
func (d *Dispatcher) RedirectProc(library, symbol string) uintptr {
	return d.resolve(library, symbol, "")
}

func (d *Dispatcher) resolve(from, symbol, importer string) uintptr {
	fn, lib, ok := d.Lookup(from, symbol, importer)
	if !ok {
		return 0
	}
	// Keyed by the owning table so every route to one replacement shares
	// a stub.
	addr, err := d.stubs.Emit(lib+"!"+symbol, fn)
	if err != nil {
		logger.WithFn(symbol).WithField("library", lib).WithError(err).Warn("no stub, binding real export")
		return 0
	}
	return addr
}
