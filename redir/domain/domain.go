// Package domain assembles one isolation domain: the private environment in
// which a second copy of kernel32, ntdll, advapi32 and rpcrt4 runs beside
// the application's own.
//
// A Domain owns the engine arena, the isolated process heap, the FLS state
// and its fast lock, the private module registry and loader, the
// redirection tables, and the dispatcher the loader consults when it binds
// imports. Everything it forwards goes to the native.OS it was built over.
package domain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/joshuapare/winredir/internal/config"
	"github.com/joshuapare/winredir/internal/logger"
	"github.com/joshuapare/winredir/native"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/advapi32"
	"github.com/joshuapare/winredir/redir/arena"
	"github.com/joshuapare/winredir/redir/critsec"
	"github.com/joshuapare/winredir/redir/dispatch"
	"github.com/joshuapare/winredir/redir/fls"
	"github.com/joshuapare/winredir/redir/heap"
	"github.com/joshuapare/winredir/redir/kernel32"
	"github.com/joshuapare/winredir/redir/local"
	"github.com/joshuapare/winredir/redir/modules"
	"github.com/joshuapare/winredir/redir/ntshim"
	"github.com/joshuapare/winredir/redir/rpcrt4"
	"github.com/joshuapare/winredir/redir/stub"
	"github.com/joshuapare/winredir/redir/teb"
)

var (
	// ErrClosed is returned by operations on a domain after Close.
	ErrClosed = errors.New("domain: closed")
)

// Domain is one private environment.
type Domain struct {
	cfg     *config.Config
	os      native.OS
	version types.WindowsVersion

	arena *arena.Arena
	stubs *stub.Table

	// fastLock guards the FLS state. It belongs to this domain alone and
	// is never the application's FLS lock.
	fastLock sync.Mutex

	Heap     *heap.Shim
	Local    *local.Allocator
	CritSec  *critsec.Shim
	Fls      *fls.State
	Loader   *modules.Loader
	NT       *ntshim.Shim
	Kernel32 *kernel32.Shim
	Advapi32 *advapi32.Shim
	Rpcrt4   *rpcrt4.Shim
	Dispatch *dispatch.Dispatcher

	tables *Tables

	mu      sync.Mutex
	threads map[uintptr]*teb.Thread
	closed  bool
}

// New builds a domain from cfg over os. A nil cfg selects config.Default.
func New(cfg *config.Config, os native.OS) (*Domain, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a, err := arena.New(cfg.ArenaSize)
	if err != nil {
		return nil, fmt.Errorf("domain: arena: %w", err)
	}
	d := &Domain{
		cfg:     cfg,
		os:      os,
		version: cfg.Version(),
		arena:   a,
		stubs:   stub.NewTable(a, nil),
		threads: make(map[uintptr]*teb.Thread),
	}
	if err := d.init(); err != nil {
		_ = a.Close()
		return nil, err
	}
	logger.L.WithField("version", d.version.String()).
		WithField("priv_heap", cfg.PrivHeap).
		WithField("arena", cfg.ArenaSize).Info("isolation domain ready")
	return d, nil
}

func (d *Domain) init() error {
	var err error
	if d.Heap, err = heap.New(d.arena, d.os, d.cfg.PrivHeap); err != nil {
		return err
	}
	if d.Fls, err = fls.New(&d.fastLock, d.cfg.FlsSlots); err != nil {
		return fmt.Errorf("domain: fls: %w", err)
	}
	d.Local = local.New(d.Heap)
	d.CritSec = critsec.New(d.arena, d.os, d.cfg.NumberOfProcessors)
	d.Loader = modules.NewLoader(modules.NewRegistry(), modules.NewPEMapper(d.arena), d.os)
	d.NT = ntshim.New(d.os)
	d.Kernel32 = kernel32.New(d.os, d.cfg.CurrentDirectory)
	d.Advapi32 = advapi32.New(d.os)
	d.Rpcrt4 = rpcrt4.New()

	d.tables = buildTables(d)
	d.Dispatch = dispatch.New(d.tables.sets, d.stubs, d.version)
	d.Loader.SetRedirector(d.Dispatch)
	d.Loader.OnLoad(d.probe)
	return nil
}

// probe drops shims whose real export is missing from a just-mapped copy
// of a redirected library.
func (d *Domain) probe(m *modules.Module) {
	if t := d.tables.probed[m.Name]; t != nil {
		modules.ProbeExports(t, m)
	}
}

// Version returns the OS release the domain emulates.
func (d *Domain) Version() types.WindowsVersion { return d.version }

// Config returns the configuration the domain was built from.
func (d *Domain) Config() *config.Config { return d.cfg }

// Arena returns the engine arena.
func (d *Domain) Arena() *arena.Arena { return d.arena }

// Stubs returns the stub table shared by every redirected entry point.
func (d *Domain) Stubs() *stub.Table { return d.stubs }

// Tables returns the redirection tables.
func (d *Domain) Tables() *Tables { return d.tables }

// LoadLibrary maps name with the private loader.
func (d *Domain) LoadLibrary(name string) (*modules.Module, error) {
	if d.isClosed() {
		return nil, ErrClosed
	}
	return d.Loader.Load(name)
}

// Lookup returns the replacement a program importing symbol from library
// would be bound to.
func (d *Domain) Lookup(library, symbol string) (any, bool) {
	fn, _, ok := d.Dispatch.Lookup(library, symbol, "")
	return fn, ok
}

func (d *Domain) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close runs the FLS exit processing of every thread still registered,
// tears the FLS state down and releases the arena. Module images and
// stubs live in the arena and are gone afterwards.
func (d *Domain) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	threads := make([]*teb.Thread, 0, len(d.threads))
	for _, t := range d.threads {
		threads = append(threads, t)
	}
	d.threads = nil
	d.mu.Unlock()

	for _, t := range threads {
		d.exitFibers(t)
	}
	if n := d.Fls.Teardown(); n > 0 {
		logger.Warnf("domain: %d fls blocks outlived their fibers", n)
	}
	return d.arena.Close()
}

// Status is a snapshot for diagnostics.
type Status struct {
	Version    string         `json:"version"`
	PrivHeap   bool           `json:"priv_heap"`
	Arena      arena.Stats    `json:"arena"`
	Modules    []string       `json:"modules"`
	Threads    int            `json:"threads"`
	FlsBlocks  int            `json:"fls_blocks"`
	Stubs      int            `json:"stubs"`
	TableSizes map[string]int `json:"tables"`
}

// Status reports the domain's current state.
func (d *Domain) Status() Status {
	s := Status{
		Version:    d.version.String(),
		PrivHeap:   d.Heap.Enabled(),
		Arena:      d.arena.Stats(),
		FlsBlocks:  d.Fls.Live(),
		Stubs:      d.stubs.Len(),
		TableSizes: make(map[string]int),
	}
	for _, m := range d.Loader.Registry().Modules() {
		s.Modules = append(s.Modules, m.Name)
	}
	for _, lib := range d.tables.Libraries() {
		s.TableSizes[lib] = len(d.tables.Names(lib))
	}
	d.mu.Lock()
	s.Threads = len(d.threads)
	d.mu.Unlock()
	return s
}
