package domain

import (
	"sort"

	"github.com/joshuapare/winredir/redir/dispatch"
	"github.com/joshuapare/winredir/redir/ntshim"
	"github.com/joshuapare/winredir/redir/strtab"
)

// Tables is the set of redirection tables of a domain, keyed by library.
type Tables struct {
	sets map[string]strtab.Set

	// probed are the general tables checked against each newly mapped
	// copy of their library.
	probed map[string]*strtab.Table
}

func concat(lists ...[]strtab.Import) []strtab.Import {
	var n int
	for _, l := range lists {
		n += len(l)
	}
	out := make([]strtab.Import, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

func buildTables(d *Domain) *Tables {
	ntdll := strtab.New("ntdll", concat(
		d.NT.Imports(),
		d.Heap.NtdllImports(),
		d.CritSec.NtdllImports(),
		d.Loader.NtdllImports(),
	))
	var override *strtab.Table
	if imps := ntshim.OverrideImports(d.version); len(imps) > 0 {
		override = strtab.New("ntdll-"+d.version.String(), imps)
	}

	k32 := strtab.New("kernel32", concat(
		d.Kernel32.Imports(),
		d.Heap.KernelImports(),
		d.Local.Imports(),
		d.CritSec.KernelImports(),
		d.Fls.Imports(),
		d.Loader.KernelImports(),
	))
	adv := strtab.New("advapi32", d.Advapi32.Imports())
	rpc := strtab.New("rpcrt4", d.Rpcrt4.Imports())

	return &Tables{
		sets: map[string]strtab.Set{
			dispatch.Ntdll:    strtab.NewSet(override, ntdll),
			dispatch.Kernel32: strtab.NewSet(k32),
			dispatch.Advapi32: strtab.NewSet(adv),
			dispatch.Rpcrt4:   strtab.NewSet(rpc),
		},
		probed: map[string]*strtab.Table{
			dispatch.Kernel32: k32,
			dispatch.Advapi32: adv,
			dispatch.Rpcrt4:   rpc,
		},
	}
}

// Libraries returns the redirected library names, sorted.
func (t *Tables) Libraries() []string {
	libs := make([]string, 0, len(t.sets))
	for lib := range t.sets {
		libs = append(libs, lib)
	}
	sort.Strings(libs)
	return libs
}

// Set returns the table layers of lib.
func (t *Tables) Set(lib string) strtab.Set { return t.sets[lib] }

// Names returns every name redirected for lib across its layers, sorted.
func (t *Tables) Names(lib string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, tab := range t.sets[lib] {
		for _, n := range tab.Names() {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}
