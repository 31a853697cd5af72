// Package modules is the private loader of an isolation domain: the
// registry of libraries mapped for the isolated copy, a PE mapper that
// places them in the engine arena and binds their imports, and the
// kernel32 and ntdll loader entry points (GetModuleHandle, GetProcAddress,
// LoadLibrary, LdrLoadDll and friends) that consult the registry before
// falling through to the application's loader.
//
// Lookups take the registry's read lock. Loading takes the write lock for
// the whole map-and-bind sequence; nested loads of imported or forwarded
// libraries use the *Locked helpers instead of re-acquiring it.
package modules

import (
	"encoding/binary"
	"path"
	"sort"
	"strings"
	"sync"
)

// Module is one library known to the private loader.
type Module struct {
	Name       string             // lower-case file name, e.g. "kernel32.dll"
	Path       string             // full path the image was read from
	Base       uintptr            // address of the mapped headers
	Size       uintptr            // SizeOfImage
	Exports    map[string]uintptr // export name -> address
	Forwarders map[string]string  // export name -> "lib.Func"

	// External modules were mapped by someone else (the engine itself, or
	// a library registered by the embedder) and are never unmapped.
	External bool

	image   []byte
	ptrSize int
	imports []importDesc
	deps    []*Module
	refs    int
	pinned  bool
}

type importDesc struct {
	library string
	lookup  uint32 // RVA of the import lookup table
	iat     uint32 // RVA of the import address table
}

// Contains reports whether pc lies inside the mapped image.
func (m *Module) Contains(pc uintptr) bool {
	return pc >= m.Base && pc-m.Base < m.Size
}

// Imports returns the libraries m imports from, in directory order.
func (m *Module) Imports() []string {
	libs := make([]string, len(m.imports))
	for i, d := range m.imports {
		libs[i] = d.library
	}
	return libs
}

// Refs returns the load count.
func (m *Module) Refs() int { return m.refs }

// Pinned reports whether m can no longer be unloaded.
func (m *Module) Pinned() bool { return m.pinned }

// ExportNames returns the exported names, forwarded ones included, sorted.
func (m *Module) ExportNames() []string {
	names := make([]string, 0, len(m.Exports)+len(m.Forwarders))
	for n := range m.Exports {
		names = append(names, n)
	}
	for n := range m.Forwarders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HasExport reports whether name is exported, directly or by forwarder.
func (m *Module) HasExport(name string) bool {
	if _, ok := m.Exports[name]; ok {
		return true
	}
	_, ok := m.Forwarders[name]
	return ok
}

// word reads a pointer-sized value at rva.
func (m *Module) word(rva uint32) (uint64, bool) {
	end := uint64(rva) + uint64(m.ptrSize)
	if end > uint64(len(m.image)) {
		return 0, false
	}
	if m.ptrSize == 8 {
		return binary.LittleEndian.Uint64(m.image[rva:]), true
	}
	return uint64(binary.LittleEndian.Uint32(m.image[rva:])), true
}

func (m *Module) putWord(rva uint32, v uint64) bool {
	end := uint64(rva) + uint64(m.ptrSize)
	if end > uint64(len(m.image)) {
		return false
	}
	if m.ptrSize == 8 {
		binary.LittleEndian.PutUint64(m.image[rva:], v)
	} else {
		binary.LittleEndian.PutUint32(m.image[rva:], uint32(v))
	}
	return true
}

// cstring reads a NUL-terminated string at rva.
func (m *Module) cstring(rva uint32) (string, bool) {
	if uint64(rva) >= uint64(len(m.image)) {
		return "", false
	}
	b := m.image[rva:]
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), true
		}
	}
	return "", false
}

// WithDefaultExt applies the loader's extension rule: a bare name with no
// extension gets ".dll", and a trailing dot means "no extension" and is
// dropped. Names with a directory component are left alone.
func WithDefaultExt(name string) string {
	if strings.ContainsAny(name, `\/`) {
		return name
	}
	if strings.HasSuffix(name, ".") {
		return strings.TrimSuffix(name, ".")
	}
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".dll"
}

// LibraryName returns the registry key for a name or path: the file name,
// lower-cased, after the default-extension rule.
func LibraryName(name string) string {
	name = WithDefaultExt(name)
	name = strings.ReplaceAll(name, `\`, "/")
	return strings.ToLower(path.Base(name))
}

// Registry is the set of libraries mapped into one isolation domain.
type Registry struct {
	mu   sync.RWMutex
	mods []*Module
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// LookupByName finds a module by file name or path, case-insensitively.
func (r *Registry) LookupByName(name string) *Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupByNameLocked(name)
}

func (r *Registry) lookupByNameLocked(name string) *Module {
	key := LibraryName(name)
	for _, m := range r.mods {
		if m.Name == key {
			return m
		}
	}
	return nil
}

// LookupByBase finds the module mapped at base.
func (r *Registry) LookupByBase(base uintptr) *Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupByBaseLocked(base)
}

func (r *Registry) lookupByBaseLocked(base uintptr) *Module {
	for _, m := range r.mods {
		if m.Base == base {
			return m
		}
	}
	return nil
}

// LookupByPC finds the module whose image contains pc.
func (r *Registry) LookupByPC(pc uintptr) *Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupByPCLocked(pc)
}

func (r *Registry) lookupByPCLocked(pc uintptr) *Module {
	for _, m := range r.mods {
		if m.Contains(pc) {
			return m
		}
	}
	return nil
}

// Modules returns the registered modules in load order.
func (r *Registry) Modules() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Module, len(r.mods))
	copy(out, r.mods)
	return out
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mods)
}

func (r *Registry) addLocked(m *Module) error {
	if r.lookupByNameLocked(m.Name) != nil {
		return ErrAlreadyLoaded
	}
	r.mods = append(r.mods, m)
	return nil
}

func (r *Registry) removeLocked(m *Module) {
	for i, x := range r.mods {
		if x == m {
			r.mods = append(r.mods[:i], r.mods[i+1:]...)
			return
		}
	}
}
