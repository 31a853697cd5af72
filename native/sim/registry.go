package sim

import (
	"bytes"
	"strings"

	"github.com/joshuapare/winredir/internal/buf"
	"github.com/joshuapare/winredir/internal/textconv"
	"github.com/joshuapare/winredir/pkg/types"
)

const (
	registryRoot = "registry"

	queryRights = types.KEY_QUERY_VALUE | types.MAXIMUM_ALLOWED | types.GENERIC_READ | types.GENERIC_ALL
)

type regKey struct {
	name    string
	parent  *regKey
	subkeys map[string]*regKey
	values  map[string]*regValue
}

type regValue struct {
	name string
	typ  types.RegType
	data []byte
}

type keyObject struct {
	key *regKey
}

func newKey(name string, parent *regKey) *regKey {
	k := &regKey{
		name:    name,
		parent:  parent,
		subkeys: make(map[string]*regKey),
		values:  make(map[string]*regValue),
	}
	if parent != nil {
		parent.subkeys[strings.ToLower(name)] = k
	}
	return k
}

// path renders the absolute object-manager path of k.
func (k *regKey) path() string {
	if k.parent == nil {
		return `\` + k.name
	}
	return k.parent.path() + `\` + k.name
}

// newRegistry builds the roots the predefined HKEYs resolve to, plus the
// values a stock Windows install carries that callers commonly probe.
func newRegistry(sid string) *regKey {
	root := newKey("REGISTRY", nil)
	machine := newKey("MACHINE", root)
	user := newKey("USER", root)
	newKey(sid, user)
	newKey(".DEFAULT", user)

	sw := newKey("SOFTWARE", machine)
	newKey("Classes", sw)
	sys := newKey("SYSTEM", machine)
	ccs := newKey("CurrentControlSet", sys)
	hp := newKey("Hardware Profiles", ccs)
	newKey("Current", hp)

	ms := newKey("Microsoft", sw)
	wnt := newKey("Windows NT", ms)
	cv := newKey("CurrentVersion", wnt)
	setValue(cv, "SystemRoot", types.REG_SZ, textconv.StringToWideZ(`C:\Windows`))
	setValue(cv, "CurrentBuildNumber", types.REG_SZ, textconv.StringToWideZ("19045"))
	svc := newKey("Svchost", cv)
	setValue(svc, "NetworkService", types.REG_MULTI_SZ, multiSZ([]string{"CryptSvc", "Dnscache", "LanmanWorkstation", "NlaSvc"}))
	return root
}

func setValue(k *regKey, name string, typ types.RegType, data []byte) {
	k.values[strings.ToLower(name)] = &regValue{name: name, typ: typ, data: bytes.Clone(data)}
}

func multiSZ(items []string) []byte {
	var out []byte
	for _, it := range items {
		out = append(out, textconv.StringToWideZ(it)...)
	}
	return append(out, 0, 0)
}

// walk follows a relative key path from k.
func (k *regKey) walk(parts []string) *regKey {
	for _, p := range parts {
		next, ok := k.subkeys[strings.ToLower(p)]
		if !ok {
			return nil
		}
		k = next
	}
	return k
}

// resolveKeyLocked splits oa into the existing parent key and the final
// component. node is the existing key, or nil.
func (s *OS) resolveKeyLocked(oa *types.ObjectAttributes) (parent *regKey, leaf string, node *regKey, st types.NTStatus) {
	if oa == nil {
		return nil, "", nil, types.STATUS_INVALID_PARAMETER
	}
	var base *regKey
	var parts []string
	if oa.RootDirectory != 0 {
		e, ok := s.handles[oa.RootDirectory]
		if !ok {
			return nil, "", nil, types.STATUS_INVALID_HANDLE
		}
		ko, ok := e.obj.(*keyObject)
		if !ok {
			return nil, "", nil, types.STATUS_OBJECT_TYPE_MISMATCH
		}
		base = ko.key
		if strings.HasPrefix(oa.ObjectName, `\`) {
			return nil, "", nil, types.STATUS_OBJECT_PATH_SYNTAX_BAD
		}
		parts = splitPath(oa.ObjectName)
	} else {
		if !strings.HasPrefix(oa.ObjectName, `\`) {
			return nil, "", nil, types.STATUS_OBJECT_PATH_SYNTAX_BAD
		}
		parts = splitPath(oa.ObjectName)
		if len(parts) == 0 || !strings.EqualFold(parts[0], registryRoot) {
			return nil, "", nil, types.STATUS_OBJECT_PATH_SYNTAX_BAD
		}
		base = s.registry
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return base.parent, base.name, base, types.STATUS_SUCCESS
	}
	parent = base.walk(parts[:len(parts)-1])
	if parent == nil {
		return nil, "", nil, types.STATUS_OBJECT_NAME_NOT_FOUND
	}
	leaf = parts[len(parts)-1]
	return parent, leaf, parent.subkeys[strings.ToLower(leaf)], types.STATUS_SUCCESS
}

// NtCreateKey opens a key, creating the final component if needed.
func (s *OS) NtCreateKey(access uint32, oa *types.ObjectAttributes, options uint32) (types.Handle, uint32, types.NTStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtCreateKey")
	parent, leaf, k, st := s.resolveKeyLocked(oa)
	if !st.IsSuccess() {
		return 0, 0, st
	}
	var disp uint32 = types.REG_OPENED_EXISTING_KEY
	if k == nil {
		k = newKey(leaf, parent)
		disp = types.REG_CREATED_NEW_KEY
	}
	return s.insertLocked(&keyObject{key: k}, access), disp, types.STATUS_SUCCESS
}

// NtOpenKey opens an existing key.
func (s *OS) NtOpenKey(access uint32, oa *types.ObjectAttributes) (types.Handle, types.NTStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtOpenKey")
	return s.openKeyLocked(access, oa)
}

// NtOpenKeyEx opens an existing key; REG_OPTION_OPEN_LINK is the only
// accepted option.
func (s *OS) NtOpenKeyEx(access uint32, oa *types.ObjectAttributes, options uint32) (types.Handle, types.NTStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtOpenKeyEx")
	if options&^types.REG_OPTION_OPEN_LINK != 0 {
		return 0, types.STATUS_INVALID_PARAMETER
	}
	return s.openKeyLocked(access, oa)
}

func (s *OS) openKeyLocked(access uint32, oa *types.ObjectAttributes) (types.Handle, types.NTStatus) {
	_, _, k, st := s.resolveKeyLocked(oa)
	if !st.IsSuccess() {
		return 0, st
	}
	if k == nil {
		return 0, types.STATUS_OBJECT_NAME_NOT_FOUND
	}
	return s.insertLocked(&keyObject{key: k}, access), types.STATUS_SUCCESS
}

// NtQueryValueKey fills out with KEY_VALUE_PARTIAL_INFORMATION. When out
// holds the header but not the data the header is written and
// STATUS_BUFFER_OVERFLOW returned; the result length is always the size the
// complete structure needs.
func (s *OS) NtQueryValueKey(key types.Handle, name string, class types.KeyValueInformationClass, out []byte) (uint32, types.NTStatus) {
	s.mu.Lock()
	n, path, st := s.queryValueLocked(key, name, class, out)
	hook := s.OnQueryValue
	s.mu.Unlock()
	if hook != nil && path != "" {
		hook(path, name)
	}
	return n, st
}

func (s *OS) queryValueLocked(key types.Handle, name string, class types.KeyValueInformationClass, out []byte) (uint32, string, types.NTStatus) {
	s.count("NtQueryValueKey")
	e, ok := s.handles[key]
	if !ok {
		return 0, "", types.STATUS_INVALID_HANDLE
	}
	ko, ok := e.obj.(*keyObject)
	if !ok {
		return 0, "", types.STATUS_OBJECT_TYPE_MISMATCH
	}
	if e.access&queryRights == 0 {
		return 0, "", types.STATUS_ACCESS_DENIED
	}
	if class != types.KeyValuePartialInformation {
		return 0, "", types.STATUS_INVALID_PARAMETER
	}
	path := ko.key.path()
	v, ok := ko.key.values[strings.ToLower(name)]
	if !ok {
		return 0, path, types.STATUS_OBJECT_NAME_NOT_FOUND
	}
	need := uint32(types.KeyValuePartialHeaderSize + len(v.data))
	if len(out) < types.KeyValuePartialHeaderSize {
		return need, path, types.STATUS_BUFFER_TOO_SMALL
	}
	buf.PutU32LE(out[0:], 0)
	buf.PutU32LE(out[4:], uint32(v.typ))
	buf.PutU32LE(out[8:], uint32(len(v.data)))
	if uint32(len(out)) < need {
		return need, path, types.STATUS_BUFFER_OVERFLOW
	}
	copy(out[types.KeyValuePartialHeaderSize:], v.data)
	return need, path, types.STATUS_SUCCESS
}

// SetValue stores a value under an absolute \Registry path, creating keys
// along the way.
func (s *OS) SetValue(path, name string, typ types.RegType, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k := s.createKeyPathLocked(path); k != nil {
		setValue(k, name, typ, data)
	}
}

// SetString stores a REG_SZ value.
func (s *OS) SetString(path, name, value string) {
	s.SetValue(path, name, types.REG_SZ, textconv.StringToWideZ(value))
}

// SetMultiString stores a REG_MULTI_SZ value.
func (s *OS) SetMultiString(path, name string, values []string) {
	s.SetValue(path, name, types.REG_MULTI_SZ, multiSZ(values))
}

// CreateKeyPath creates every missing key along an absolute \Registry path.
func (s *OS) CreateKeyPath(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createKeyPathLocked(path) != nil
}

func (s *OS) createKeyPathLocked(path string) *regKey {
	parts := splitPath(path)
	if len(parts) == 0 || !strings.EqualFold(parts[0], registryRoot) {
		return nil
	}
	k := s.registry
	for _, p := range parts[1:] {
		next, ok := k.subkeys[strings.ToLower(p)]
		if !ok {
			next = newKey(p, k)
		}
		k = next
	}
	return k
}

// KeyPath returns the absolute path of an open key handle.
func (s *OS) KeyPath(h types.Handle) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.handles[h]
	if !ok {
		return "", false
	}
	ko, ok := e.obj.(*keyObject)
	if !ok {
		return "", false
	}
	return ko.key.path(), true
}
