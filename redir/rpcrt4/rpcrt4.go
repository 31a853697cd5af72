// Package rpcrt4 provides the UUID entry points of the isolated rpcrt4.
package rpcrt4

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/joshuapare/winredir/internal/logger"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/strtab"
)

// randomNode is what uuid.NodeInterface reports when no hardware address
// was found and the node id was made up.
const randomNode = "random"

// Shim generates UUIDs. The generator fields exist so tests can force the
// failure and local-only paths.
type Shim struct {
	random     func() (uuid.UUID, error)
	sequential func() (uuid.UUID, error)
	node       func() string
}

// New returns a shim backed by github.com/google/uuid.
func New() *Shim {
	return &Shim{
		random:     uuid.NewRandom,
		sequential: uuid.NewUUID,
		node:       uuid.NodeInterface,
	}
}

// Imports returns the rpcrt4 entries this package provides.
func (s *Shim) Imports() []strtab.Import {
	return []strtab.Import{
		{Name: "UuidCreate", Func: s.UuidCreate},
		{Name: "UuidCreateNil", Func: UuidCreateNil},
		{Name: "UuidCreateSequential", Func: s.UuidCreateSequential},
		{Name: "UuidIsNil", Func: UuidIsNil},
	}
}

// UuidCreate fills out with a random (version 4) UUID.
func (s *Shim) UuidCreate(out *types.GUID) uint32 {
	if out == nil {
		return uint32(types.ERROR_INVALID_PARAMETER)
	}
	u, err := s.random()
	if err != nil {
		logger.WithFn("UuidCreate").WithError(err).Debug("generator failed")
		return types.RPC_S_UUID_NO_ADDRESS
	}
	*out = ToGUID(u)
	return types.RPC_S_OK
}

// UuidCreateSequential fills out with a time-based (version 1) UUID. When
// no network adapter supplied the node id the UUID is still returned, with
// RPC_S_UUID_LOCAL_ONLY.
func (s *Shim) UuidCreateSequential(out *types.GUID) uint32 {
	if out == nil {
		return uint32(types.ERROR_INVALID_PARAMETER)
	}
	u, err := s.sequential()
	if err != nil {
		logger.WithFn("UuidCreateSequential").WithError(err).Debug("generator failed")
		return types.RPC_S_UUID_NO_ADDRESS
	}
	*out = ToGUID(u)
	if s.node() == randomNode {
		return types.RPC_S_UUID_LOCAL_ONLY
	}
	return types.RPC_S_OK
}

// UuidCreateNil zeroes out.
func UuidCreateNil(out *types.GUID) uint32 {
	if out == nil {
		return uint32(types.ERROR_INVALID_PARAMETER)
	}
	*out = types.GUID{}
	return types.RPC_S_OK
}

// UuidIsNil reports whether g is nil; a nil pointer counts as the nil UUID.
func UuidIsNil(g *types.GUID, status *uint32) bool {
	if status != nil {
		*status = types.RPC_S_OK
	}
	return g == nil || *g == types.GUID{}
}

// ToGUID converts the RFC 4122 byte order of u to the GUID layout, whose
// first three fields are integers.
func ToGUID(u uuid.UUID) types.GUID {
	g := types.GUID{
		Data1: binary.BigEndian.Uint32(u[0:4]),
		Data2: binary.BigEndian.Uint16(u[4:6]),
		Data3: binary.BigEndian.Uint16(u[6:8]),
	}
	copy(g.Data4[:], u[8:])
	return g
}

// FromGUID is the inverse of ToGUID.
func FromGUID(g types.GUID) uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], g.Data1)
	binary.BigEndian.PutUint16(u[4:6], g.Data2)
	binary.BigEndian.PutUint16(u[6:8], g.Data3)
	copy(u[8:], g.Data4[:])
	return u
}
