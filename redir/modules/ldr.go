package modules

import (
	"github.com/joshuapare/winredir/internal/logger"
	"github.com/joshuapare/winredir/pkg/types"
)

// LdrLoadDll loads name with the private loader. The search path and
// characteristics are ignored. A library the private loader cannot
// handle fails with STATUS_UNSUCCESSFUL; the application's ntdll is not
// consulted.
func (l *Loader) LdrLoadDll(searchPath *string, characteristics *uint32, name *string, out *types.Handle) types.NTStatus {
	if name == nil || *name == "" || out == nil {
		return types.STATUS_INVALID_PARAMETER
	}
	m, err := l.Load(*name)
	if err != nil {
		logger.WithFn("LdrLoadDll").WithField("name", *name).WithError(err).Debug("private load failed")
		return types.STATUS_UNSUCCESSFUL
	}
	*out = types.Handle(m.Base)
	return types.STATUS_SUCCESS
}

// LdrGetProcedureAddress resolves name in mod. The ordinal is ignored: the
// private kernel32's GetProcAddress always passes a name.
func (l *Loader) LdrGetProcedureAddress(mod types.Handle, name *string, ordinal uint16, out *uintptr) types.NTStatus {
	if name == nil || out == nil {
		return types.STATUS_INVALID_PARAMETER
	}
	addr := l.lookupProc(mod, *name)
	if addr == 0 {
		return types.STATUS_UNSUCCESSFUL
	}
	*out = addr
	return types.STATUS_SUCCESS
}
