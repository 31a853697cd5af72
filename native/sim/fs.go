package sim

import (
	"bytes"
	"sort"
	"strings"
	"time"

	"github.com/joshuapare/winredir/internal/buf"
	"github.com/joshuapare/winredir/pkg/types"
)

const (
	pipePrefix = `\device\namedpipe\`

	writeRights = types.GENERIC_WRITE | types.FILE_WRITE_DATA | types.FILE_APPEND_DATA

	basicInfoAttrOffset = 32
)

var dosPrefixes = []string{`\??\`, `\dosdevices\`, `\global??\`}

type fsNode struct {
	name     string
	dir      bool
	attrs    uint32
	data     []byte
	created  time.Time
	written  time.Time
	parent   *fsNode
	children map[string]*fsNode

	opens         int
	deletePending bool
}

func newDir(name string, parent *fsNode) *fsNode {
	now := time.Now()
	return &fsNode{
		name:     name,
		dir:      true,
		attrs:    types.FILE_ATTRIBUTE_DIRECTORY,
		created:  now,
		written:  now,
		parent:   parent,
		children: make(map[string]*fsNode),
	}
}

func newFile(name string, parent *fsNode, attrs uint32) *fsNode {
	now := time.Now()
	return &fsNode{
		name:    name,
		attrs:   attrs | types.FILE_ATTRIBUTE_ARCHIVE,
		created: now,
		written: now,
		parent:  parent,
	}
}

func (n *fsNode) attributes() uint32 {
	if n.attrs == 0 {
		return types.FILE_ATTRIBUTE_NORMAL
	}
	return n.attrs
}

func (n *fsNode) detach() {
	if n.parent != nil {
		delete(n.parent.children, strings.ToLower(n.name))
		n.parent = nil
	}
}

type dirSearch struct {
	entries []*fsNode
	names   []string
	pos     int
}

type fileObject struct {
	node          *fsNode
	deleteOnClose bool
	handles       int
	pos           int
	search        *dirSearch
}

func (f *fileObject) ref() { f.handles++ }

func (f *fileObject) unref(s *OS) {
	f.handles--
	if f.handles > 0 {
		return
	}
	n := f.node
	if f.deleteOnClose {
		n.deletePending = true
	}
	n.opens--
	if n.deletePending && n.opens <= 0 {
		n.detach()
	}
}

// splitPath breaks a DOS path below a drive into components.
func splitPath(p string) []string {
	var parts []string
	for _, c := range strings.Split(p, `\`) {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return parts
}

func validName(name string) bool {
	return !strings.ContainsAny(name, `*?<>|"`) && !strings.Contains(name, ":")
}

// resolveLocked finds the node named by oa. It returns the parent directory
// and the final component so callers can create it.
func (s *OS) resolveLocked(oa *types.ObjectAttributes) (parent *fsNode, leaf string, node *fsNode, st types.NTStatus) {
	if oa == nil {
		return nil, "", nil, types.STATUS_INVALID_PARAMETER
	}
	var root *fsNode
	var parts []string
	if oa.RootDirectory != 0 {
		e, ok := s.handles[oa.RootDirectory]
		if !ok {
			return nil, "", nil, types.STATUS_INVALID_HANDLE
		}
		fo, ok := e.obj.(*fileObject)
		if !ok || !fo.node.dir {
			return nil, "", nil, types.STATUS_OBJECT_TYPE_MISMATCH
		}
		root = fo.node
		parts = splitPath(oa.ObjectName)
	} else {
		name := oa.ObjectName
		lower := strings.ToLower(name)
		stripped := false
		for _, p := range dosPrefixes {
			if strings.HasPrefix(lower, p) {
				name = name[len(p):]
				stripped = true
				break
			}
		}
		if !stripped {
			return nil, "", nil, types.STATUS_OBJECT_PATH_SYNTAX_BAD
		}
		if len(name) < 2 || name[1] != ':' {
			return nil, "", nil, types.STATUS_OBJECT_PATH_NOT_FOUND
		}
		drive, ok := s.drives[strings.ToLower(name[:2])]
		if !ok {
			return nil, "", nil, types.STATUS_OBJECT_PATH_NOT_FOUND
		}
		root = drive
		parts = splitPath(name[2:])
	}
	if len(parts) == 0 {
		return nil, "", root, types.STATUS_SUCCESS
	}
	dir := root
	for _, c := range parts[:len(parts)-1] {
		next, ok := dir.children[strings.ToLower(c)]
		if !ok || !next.dir {
			return nil, "", nil, types.STATUS_OBJECT_PATH_NOT_FOUND
		}
		dir = next
	}
	leaf = parts[len(parts)-1]
	if !validName(leaf) {
		return nil, "", nil, types.STATUS_OBJECT_NAME_INVALID
	}
	return dir, leaf, dir.children[strings.ToLower(leaf)], types.STATUS_SUCCESS
}

func isPipeName(oa *types.ObjectAttributes) bool {
	return oa != nil && oa.RootDirectory == 0 && strings.HasPrefix(strings.ToLower(oa.ObjectName), pipePrefix)
}

// NtCreateFile opens or creates a file or directory.
func (s *OS) NtCreateFile(access uint32, oa *types.ObjectAttributes, iosb *types.IoStatusBlock, allocationSize int64, attributes, share, disposition, options uint32) (types.Handle, types.NTStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtCreateFile")
	h, info, st := s.createFileLocked(access, oa, attributes, disposition, options)
	if iosb != nil {
		iosb.Status = st
		iosb.Information = info
	}
	return h, st
}

// NtOpenFile opens an existing file, directory or pipe.
func (s *OS) NtOpenFile(access uint32, oa *types.ObjectAttributes, iosb *types.IoStatusBlock, share, options uint32) (types.Handle, types.NTStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtOpenFile")
	h, info, st := s.createFileLocked(access, oa, 0, types.FILE_OPEN, options)
	if iosb != nil {
		iosb.Status = st
		iosb.Information = info
	}
	return h, st
}

func (s *OS) createFileLocked(access uint32, oa *types.ObjectAttributes, attributes, disposition, options uint32) (types.Handle, uintptr, types.NTStatus) {
	if disposition > types.FILE_OVERWRITE_IF {
		return 0, 0, types.STATUS_INVALID_PARAMETER
	}
	if options&types.FILE_DELETE_ON_CLOSE != 0 && access&types.DELETE == 0 {
		return 0, 0, types.STATUS_INVALID_PARAMETER
	}
	if isPipeName(oa) {
		return s.openPipeClientLocked(access, oa, disposition)
	}
	parent, leaf, node, st := s.resolveLocked(oa)
	if !st.IsSuccess() {
		return 0, 0, st
	}
	var info uintptr
	if node == nil {
		switch disposition {
		case types.FILE_OPEN, types.FILE_OVERWRITE:
			return 0, 0, types.STATUS_OBJECT_NAME_NOT_FOUND
		}
		if options&types.FILE_DIRECTORY_FILE != 0 {
			node = newDir(leaf, parent)
		} else {
			node = newFile(leaf, parent, attributes&types.FILE_ATTRIBUTE_VALID_SET_FLAGS)
		}
		parent.children[strings.ToLower(leaf)] = node
		info = types.FILE_CREATED
	} else {
		if node.deletePending {
			return 0, 0, types.STATUS_DELETE_PENDING
		}
		if disposition == types.FILE_CREATE {
			return 0, 0, types.STATUS_OBJECT_NAME_COLLISION
		}
		if node.dir && options&types.FILE_NON_DIRECTORY_FILE != 0 {
			return 0, 0, types.STATUS_FILE_IS_A_DIRECTORY
		}
		if !node.dir && options&types.FILE_DIRECTORY_FILE != 0 {
			return 0, 0, types.STATUS_NOT_A_DIRECTORY
		}
		if node.attrs&types.FILE_ATTRIBUTE_READONLY != 0 && access&writeRights != 0 {
			return 0, 0, types.STATUS_ACCESS_DENIED
		}
		info = types.FILE_OPENED
		switch disposition {
		case types.FILE_SUPERSEDE, types.FILE_OVERWRITE, types.FILE_OVERWRITE_IF:
			if node.dir {
				return 0, 0, types.STATUS_INVALID_PARAMETER
			}
			node.data = nil
			node.attrs = attributes&types.FILE_ATTRIBUTE_VALID_SET_FLAGS | types.FILE_ATTRIBUTE_ARCHIVE
			node.written = time.Now()
			info = types.FILE_OVERWRITTEN
			if disposition == types.FILE_SUPERSEDE {
				info = types.FILE_SUPERSEDED
			}
		}
	}
	node.opens++
	fo := &fileObject{node: node, deleteOnClose: options&types.FILE_DELETE_ON_CLOSE != 0}
	return s.insertLocked(fo, access), info, types.STATUS_SUCCESS
}

// NtQueryAttributesFile returns basic information without opening a handle.
func (s *OS) NtQueryAttributesFile(oa *types.ObjectAttributes, info *types.FileBasicInformation) types.NTStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtQueryAttributesFile")
	_, _, node, st := s.resolveLocked(oa)
	if !st.IsSuccess() {
		return st
	}
	if node == nil {
		return types.STATUS_OBJECT_NAME_NOT_FOUND
	}
	if info != nil {
		*info = types.FileBasicInformation{
			CreationTime:   types.Filetime(node.created),
			LastAccessTime: types.Filetime(node.written),
			LastWriteTime:  types.Filetime(node.written),
			ChangeTime:     types.Filetime(node.written),
			FileAttributes: node.attributes(),
		}
	}
	return types.STATUS_SUCCESS
}

// NtQueryFullAttributesFile returns network-open information without
// opening a handle.
func (s *OS) NtQueryFullAttributesFile(oa *types.ObjectAttributes, info *types.FileNetworkOpenInformation) types.NTStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtQueryFullAttributesFile")
	_, _, node, st := s.resolveLocked(oa)
	if !st.IsSuccess() {
		return st
	}
	if node == nil {
		return types.STATUS_OBJECT_NAME_NOT_FOUND
	}
	if info != nil {
		size := int64(len(node.data))
		*info = types.FileNetworkOpenInformation{
			CreationTime:   types.Filetime(node.created),
			LastAccessTime: types.Filetime(node.written),
			LastWriteTime:  types.Filetime(node.written),
			ChangeTime:     types.Filetime(node.written),
			AllocationSize: (size + 4095) &^ 4095,
			EndOfFile:      size,
			FileAttributes: node.attributes(),
		}
	}
	return types.STATUS_SUCCESS
}

// NtSetInformationFile supports the basic, disposition and end-of-file
// classes.
func (s *OS) NtSetInformationFile(h types.Handle, iosb *types.IoStatusBlock, info []byte, class types.FileInformationClass) types.NTStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtSetInformationFile")
	st := s.setInformationLocked(h, info, class)
	if iosb != nil {
		iosb.Status = st
		iosb.Information = 0
	}
	return st
}

func (s *OS) setInformationLocked(h types.Handle, info []byte, class types.FileInformationClass) types.NTStatus {
	e, ok := s.handles[h]
	if !ok {
		return types.STATUS_INVALID_HANDLE
	}
	fo, ok := e.obj.(*fileObject)
	if !ok {
		return types.STATUS_OBJECT_TYPE_MISMATCH
	}
	n := fo.node
	switch class {
	case types.FileDispositionInformationClass:
		if len(info) < 1 {
			return types.STATUS_INFO_LENGTH_MISMATCH
		}
		if e.access&(types.DELETE|types.GENERIC_ALL) == 0 {
			return types.STATUS_ACCESS_DENIED
		}
		if info[0] == 0 {
			n.deletePending = false
			return types.STATUS_SUCCESS
		}
		if n.attrs&types.FILE_ATTRIBUTE_READONLY != 0 {
			return types.STATUS_CANNOT_DELETE
		}
		if n.dir && len(n.children) > 0 {
			return types.STATUS_DIRECTORY_NOT_EMPTY
		}
		if n.parent == nil {
			return types.STATUS_CANNOT_DELETE
		}
		n.deletePending = true
	case types.FileBasicInformationClass:
		if len(info) < basicInfoAttrOffset+4 {
			return types.STATUS_INFO_LENGTH_MISMATCH
		}
		if a := buf.U32LE(info[basicInfoAttrOffset:]); a != 0 {
			a &= types.FILE_ATTRIBUTE_VALID_SET_FLAGS &^ types.FILE_ATTRIBUTE_DIRECTORY
			if n.dir {
				a |= types.FILE_ATTRIBUTE_DIRECTORY
			}
			n.attrs = a
		}
	case types.FileEndOfFileInformationClass:
		if len(info) < 8 {
			return types.STATUS_INFO_LENGTH_MISMATCH
		}
		if n.dir {
			return types.STATUS_INVALID_PARAMETER
		}
		size := int(buf.U64LE(info))
		if size < len(n.data) {
			n.data = n.data[:size]
		} else {
			n.data = append(n.data, make([]byte, size-len(n.data))...)
		}
		n.written = time.Now()
	default:
		return types.STATUS_INVALID_INFO_CLASS
	}
	return types.STATUS_SUCCESS
}

// NtQueryDirectoryFile returns the next directory entry matching the
// search pattern. "." and ".." are reported for every directory but a
// drive root.
func (s *OS) NtQueryDirectoryFile(h types.Handle, iosb *types.IoStatusBlock, info *types.FileDirectoryInformation, pattern string, restart bool) types.NTStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtQueryDirectoryFile")
	st := s.queryDirectoryLocked(h, info, pattern, restart)
	if iosb != nil {
		iosb.Status = st
		iosb.Information = 0
	}
	return st
}

func (s *OS) queryDirectoryLocked(h types.Handle, info *types.FileDirectoryInformation, pattern string, restart bool) types.NTStatus {
	e, ok := s.handles[h]
	if !ok {
		return types.STATUS_INVALID_HANDLE
	}
	fo, ok := e.obj.(*fileObject)
	if !ok || !fo.node.dir {
		return types.STATUS_INVALID_PARAMETER
	}
	first := false
	if fo.search == nil || restart {
		first = true
		fo.search = newSearch(fo.node, pattern)
	}
	sr := fo.search
	if sr.pos >= len(sr.entries) {
		if first {
			return types.STATUS_NO_SUCH_FILE
		}
		return types.STATUS_NO_MORE_FILES
	}
	n, name := sr.entries[sr.pos], sr.names[sr.pos]
	sr.pos++
	if info != nil {
		size := int64(len(n.data))
		*info = types.FileDirectoryInformation{
			FileName:       name,
			FileAttributes: n.attributes(),
			CreationTime:   types.Filetime(n.created),
			LastAccessTime: types.Filetime(n.written),
			LastWriteTime:  types.Filetime(n.written),
			EndOfFile:      size,
			AllocationSize: (size + 4095) &^ 4095,
		}
	}
	return types.STATUS_SUCCESS
}

func newSearch(dir *fsNode, pattern string) *dirSearch {
	if pattern == "" {
		pattern = "*"
	}
	sr := &dirSearch{}
	add := func(n *fsNode, name string) {
		if MatchPattern(pattern, name) {
			sr.entries = append(sr.entries, n)
			sr.names = append(sr.names, name)
		}
	}
	if dir.parent != nil {
		add(dir, ".")
		add(dir.parent, "..")
	}
	keys := make([]string, 0, len(dir.children))
	for k, c := range dir.children {
		if !c.deletePending {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		c := dir.children[k]
		add(c, c.name)
	}
	return sr
}

// MatchPattern reports whether name matches a DOS wildcard pattern, where
// '*' matches any run and '?' any single character. Matching ignores case
// and "*.*" matches every name.
func MatchPattern(pattern, name string) bool {
	if pattern == "*.*" {
		pattern = "*"
	}
	p := []rune(strings.ToLower(pattern))
	n := []rune(strings.ToLower(name))
	// star is the pattern index after the last '*', mark the name index it
	// was matched at.
	star, mark := -1, 0
	i, j := 0, 0
	for j < len(n) {
		switch {
		case i < len(p) && (p[i] == '?' || p[i] == n[j]):
			i++
			j++
		case i < len(p) && p[i] == '*':
			star = i + 1
			mark = j
			i++
		case star >= 0:
			mark++
			i = star
			j = mark
		default:
			return false
		}
	}
	for i < len(p) && p[i] == '*' {
		i++
	}
	return i == len(p)
}

// MkdirAll creates a directory path such as C:\Windows\System32.
func (s *OS) MkdirAll(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirAllLocked(path)
}

func (s *OS) mkdirAllLocked(path string) *fsNode {
	if len(path) < 2 || path[1] != ':' {
		return nil
	}
	key := strings.ToLower(path[:2])
	dir, ok := s.drives[key]
	if !ok {
		dir = newDir(strings.ToUpper(path[:2]), nil)
		s.drives[key] = dir
	}
	for _, c := range splitPath(path[2:]) {
		next, ok := dir.children[strings.ToLower(c)]
		if !ok {
			next = newDir(c, dir)
			dir.children[strings.ToLower(c)] = next
		}
		dir = next
	}
	return dir
}

// WriteFileAt creates or replaces a file, making parent directories.
func (s *OS) WriteFileAt(path string, data []byte, attrs uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := strings.LastIndex(path, `\`)
	if i < 0 {
		return
	}
	dir := s.mkdirAllLocked(path[:i])
	if dir == nil {
		return
	}
	name := path[i+1:]
	n := newFile(name, dir, attrs)
	n.data = bytes.Clone(data)
	dir.children[strings.ToLower(name)] = n
}

// Exists reports whether a DOS path names a live file or directory.
func (s *OS) Exists(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _, n, st := s.resolveLocked(&types.ObjectAttributes{ObjectName: `\??\` + path})
	return st.IsSuccess() && n != nil && !n.deletePending
}

// ReadFileAt returns a copy of a file's contents.
func (s *OS) ReadFileAt(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _, n, st := s.resolveLocked(&types.ObjectAttributes{ObjectName: `\??\` + path})
	if !st.IsSuccess() || n == nil || n.dir {
		return nil, false
	}
	return bytes.Clone(n.data), true
}
