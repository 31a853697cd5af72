package sim

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/joshuapare/winredir/pkg/types"
)

const (
	moduleBase   = 0x7FF800000000
	moduleStride = 0x00100000
	procBase     = 0x1000
	procStride   = 0x10
)

// ErrImageNotFound is returned by FindImage when no image matches.
var ErrImageNotFound = errors.New("sim: image not found")

type module struct {
	name  string
	path  string
	base  types.Handle
	procs map[string]uintptr
}

// baseName returns the lower-case file name of a Windows path.
func baseName(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.ToLower(path.Base(p))
}

// withDLL adds the default extension to a bare module name.
func withDLL(name string) string {
	if path.Ext(name) == "" && !strings.HasSuffix(name, ".") {
		return name + ".dll"
	}
	return strings.TrimSuffix(name, ".")
}

func (s *OS) addModuleLocked(p string, exports []string) *module {
	s.nextBase += moduleStride
	m := &module{
		name:  baseName(p),
		path:  p,
		base:  types.Handle(s.nextBase),
		procs: make(map[string]uintptr, len(exports)),
	}
	for i, e := range exports {
		m.procs[e] = s.nextBase + procBase + uintptr(i)*procStride
	}
	s.modules = append(s.modules, m)
	return m
}

// AddModule registers a module loaded by the application's loader.
func (s *OS) AddModule(p string, exports ...string) types.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addModuleLocked(p, exports).base
}

func (s *OS) moduleByBaseLocked(h types.Handle) *module {
	for _, m := range s.modules {
		if m.base == h {
			return m
		}
	}
	return nil
}

// GetModuleHandle finds a loaded module by file name or full path. An
// empty name returns the executable.
func (s *OS) GetModuleHandle(name string) types.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("GetModuleHandle")
	if name == "" {
		return s.exe.base
	}
	full := strings.ContainsAny(name, `\/`)
	want := strings.ToLower(withDLL(name))
	for _, m := range s.modules {
		if full && strings.EqualFold(m.path, withDLL(name)) {
			return m.base
		}
		if !full && m.name == baseName(want) {
			return m.base
		}
	}
	return 0
}

// GetProcAddress returns the address of an export, or 0.
func (s *OS) GetProcAddress(mod types.Handle, name string) uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("GetProcAddress")
	m := s.moduleByBaseLocked(mod)
	if m == nil {
		return 0
	}
	return m.procs[name]
}

// GetModuleFileName returns the full path of a module; 0 names the
// executable.
func (s *OS) GetModuleFileName(mod types.Handle) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("GetModuleFileName")
	if mod == 0 {
		return s.exe.path, true
	}
	m := s.moduleByBaseLocked(mod)
	if m == nil {
		return "", false
	}
	return m.path, true
}

// image is a library file as stored: its path keeps the on-disk spelling.
type image struct {
	path string
	data []byte
}

// AddImage stores a library image at a full path for FindImage.
func (s *OS) AddImage(p string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[strings.ToLower(p)] = image{path: p, data: data}
}

// FindImage returns an image by full path, or searches the library path
// for a bare name. Lookup ignores case; the returned path is the stored
// one.
func (s *OS) FindImage(name string) (string, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("FindImage")
	if strings.ContainsAny(name, `\/`) {
		if img, ok := s.images[strings.ToLower(name)]; ok {
			return img.path, img.data, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrImageNotFound, name)
	}
	dirs := append([]string{path.Dir(strings.ReplaceAll(s.exe.path, `\`, "/"))}, s.searchPaths...)
	for _, d := range dirs {
		d = strings.TrimSuffix(strings.ReplaceAll(d, "/", `\`), `\`)
		if img, ok := s.images[strings.ToLower(d+`\`+name)]; ok {
			return img.path, img.data, nil
		}
	}
	return "", nil, fmt.Errorf("%w: %s", ErrImageNotFound, name)
}
