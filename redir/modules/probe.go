package modules

import "github.com/joshuapare/winredir/internal/logger"

// Remover is the part of a redirection table the export probe edits.
type Remover interface {
	Names() []string
	Remove(name string) bool
}

// ProbeExports removes from table every name that m does not export, so
// that GetProcAddress on this OS release reports the absence instead of
// handing out a shim for a function that does not exist. It returns the
// names removed.
func ProbeExports(table Remover, m *Module) []string {
	var removed []string
	for _, name := range table.Names() {
		if m.HasExport(name) {
			continue
		}
		if table.Remove(name) {
			removed = append(removed, name)
		}
	}
	if len(removed) > 0 {
		logger.WithFn("probe").WithField("module", m.Name).
			WithField("removed", removed).Debug("shims without a real export")
	}
	return removed
}
