package modules

import (
	"bytes"
	"fmt"

	"github.com/Binject/debug/pe"

	"github.com/joshuapare/winredir/redir/arena"
)

const (
	dirExport = 0
	dirImport = 1
)

// PEMapper lays PE images out in the engine arena at their section
// addresses. It does not apply relocations or run entry points: the
// mapped copy is used for export lookup and import binding.
type PEMapper struct {
	arena *arena.Arena
}

// NewPEMapper returns a mapper that allocates images from a.
func NewPEMapper(a *arena.Arena) *PEMapper {
	return &PEMapper{arena: a}
}

// Map parses data, maps it, and returns an unregistered module with its
// exports and import directory filled in. path becomes Module.Path.
func (p *PEMapper) Map(path string, data []byte) (*Module, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadImage, path, err)
	}
	defer f.Close()

	var (
		imageSize, headerSize uint32
		dirs                  [16]pe.DataDirectory
		ptrSize               int
	)
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader64:
		imageSize, headerSize, dirs, ptrSize = oh.SizeOfImage, oh.SizeOfHeaders, oh.DataDirectory, 8
	case *pe.OptionalHeader32:
		imageSize, headerSize, dirs, ptrSize = oh.SizeOfImage, oh.SizeOfHeaders, oh.DataDirectory, 4
	default:
		return nil, fmt.Errorf("%w: %s: no optional header", ErrBadImage, path)
	}
	if imageSize == 0 || headerSize > imageSize || int(headerSize) > len(data) {
		return nil, fmt.Errorf("%w: %s: bad image size", ErrBadImage, path)
	}

	base, err := p.arena.Alloc(int(imageSize))
	if err != nil {
		return nil, fmt.Errorf("modules: map %s: %w", path, err)
	}
	img, err := p.arena.Bytes(base, int(imageSize))
	if err != nil {
		p.arena.Free(base)
		return nil, err
	}
	clear(img)
	copy(img, data[:headerSize])

	for _, s := range f.Sections {
		raw, err := s.Data()
		if err != nil {
			p.arena.Free(base)
			return nil, fmt.Errorf("%w: %s: section %s: %w", ErrBadImage, path, s.Name, err)
		}
		if s.VirtualSize != 0 && int(s.VirtualSize) < len(raw) {
			raw = raw[:s.VirtualSize]
		}
		if uint64(s.VirtualAddress)+uint64(len(raw)) > uint64(imageSize) {
			p.arena.Free(base)
			return nil, fmt.Errorf("%w: %s: section %s outside image", ErrBadImage, path, s.Name)
		}
		copy(img[s.VirtualAddress:], raw)
	}

	m := &Module{
		Name:       LibraryName(path),
		Path:       path,
		Base:       base,
		Size:       uintptr(imageSize),
		Exports:    make(map[string]uintptr),
		Forwarders: make(map[string]string),
		image:      img,
		ptrSize:    ptrSize,
	}
	if err := p.readExports(f, m, dirs[dirExport]); err != nil {
		p.arena.Free(base)
		return nil, err
	}
	if dirs[dirImport].Size > 0 {
		descs, _, _, err := f.ImportDirectoryTable()
		if err != nil {
			p.arena.Free(base)
			return nil, fmt.Errorf("%w: %s: imports: %w", ErrBadImage, path, err)
		}
		for _, d := range descs {
			lookup := d.OriginalFirstThunk
			if lookup == 0 {
				lookup = d.FirstThunk
			}
			m.imports = append(m.imports, importDesc{
				library: d.DllName,
				lookup:  lookup,
				iat:     d.FirstThunk,
			})
		}
	}
	return m, nil
}

// readExports fills m.Exports and m.Forwarders. An export whose address
// falls inside the export directory is a forwarder string.
func (p *PEMapper) readExports(f *pe.File, m *Module, dir pe.DataDirectory) error {
	if dir.Size == 0 {
		return nil
	}
	exports, err := f.Exports()
	if err != nil {
		return fmt.Errorf("%w: %s: exports: %w", ErrBadImage, m.Path, err)
	}
	for _, e := range exports {
		if e.Name == "" || e.VirtualAddress == 0 {
			continue
		}
		rva := e.VirtualAddress
		if rva >= dir.VirtualAddress && rva-dir.VirtualAddress < dir.Size {
			if fwd, ok := m.cstring(rva); ok {
				m.Forwarders[e.Name] = fwd
			}
			continue
		}
		m.Exports[e.Name] = m.Base + uintptr(rva)
	}
	return nil
}

// Unmap releases the image of a module mapped by p.
func (p *PEMapper) Unmap(m *Module) error {
	if m.External || m.image == nil {
		return nil
	}
	m.image = nil
	return p.arena.Free(m.Base)
}
