// Package strtab implements the per-library symbol redirection table: a
// case-sensitive map from exported name to replacement implementation.
//
// A Table is filled once from a static import list and then read by many
// threads. The only later mutation is Remove, applied when a library is
// mapped and turns out not to export something the table shims.
package strtab

import (
	"sort"
	"sync"
)

// Import is one static (name, replacement) pair.
type Import struct {
	Name string
	Func any
}

// Table maps symbol names to replacement functions.
type Table struct {
	name string
	mu   sync.RWMutex
	m    map[string]any
}

// New builds a table sized for imports and populates it.
func New(name string, imports []Import) *Table {
	t := &Table{name: name, m: make(map[string]any, len(imports))}
	for _, imp := range imports {
		if imp.Func == nil {
			continue
		}
		t.m[imp.Name] = imp.Func
	}
	return t
}

// Name returns the library the table redirects, e.g. "kernel32".
func (t *Table) Name() string { return t.name }

// Lookup returns the replacement registered for name. Absence is an
// ordinary result: the caller falls through to the real symbol.
func (t *Table) Lookup(name string) (any, bool) {
	if t == nil {
		return nil, false
	}
	t.mu.RLock()
	fn, ok := t.m[name]
	t.mu.RUnlock()
	return fn, ok
}

// Remove drops name and reports whether it was present.
func (t *Table) Remove(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.m[name]; !ok {
		return false
	}
	delete(t.m, name)
	return true
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// Names returns the entries in sorted order.
func (t *Table) Names() []string {
	t.mu.RLock()
	names := make([]string, 0, len(t.m))
	for n := range t.m {
		names = append(names, n)
	}
	t.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Set layers tables for one library: earlier tables take precedence. It is
// used when an OS release needs a different signature for a handful of
// entries than the general table provides.
type Set []*Table

// NewSet returns the tables in precedence order, skipping nil entries.
func NewSet(tables ...*Table) Set {
	s := make(Set, 0, len(tables))
	for _, t := range tables {
		if t != nil {
			s = append(s, t)
		}
	}
	return s
}

// Lookup consults each table in order.
func (s Set) Lookup(name string) (any, bool) {
	for _, t := range s {
		if fn, ok := t.Lookup(name); ok {
			return fn, true
		}
	}
	return nil, false
}

// Remove drops name from every table in the set.
func (s Set) Remove(name string) bool {
	removed := false
	for _, t := range s {
		if t.Remove(name) {
			removed = true
		}
	}
	return removed
}
