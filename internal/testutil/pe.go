package testutil

import (
	"encoding/binary"
	"sort"
)

// PE32+ layout used by BuildDLL. Everything lives in one section so the
// export and import directories can be found with a single range check.
const (
	peOffset       = 0x40
	fileHeaderSize = 20
	optHeaderSize  = 240
	sectionHdrSize = 40
	fileAlign      = 0x200
	sectionAlign   = 0x1000
	sectionRVA     = 0x1000

	// CodeStride is the spacing of export bodies in the code area.
	CodeStride = 16
)

// Import lists the names a DLL imports from one library.
type Import struct {
	Library string
	Names   []string
}

// DLL describes a synthetic library image.
type DLL struct {
	Name       string
	Exports    []string
	Forwarders map[string]string // export name -> "lib.Func"
	Imports    []Import
}

type layout struct {
	b []byte
}

func (l *layout) off() uint32 { return uint32(len(l.b)) }

func (l *layout) pad(align int) {
	for len(l.b)%align != 0 {
		l.b = append(l.b, 0)
	}
}

func (l *layout) zero(n int) uint32 {
	o := l.off()
	l.b = append(l.b, make([]byte, n)...)
	return o
}

func (l *layout) cstring(s string) uint32 {
	o := l.off()
	l.b = append(l.b, s...)
	l.b = append(l.b, 0)
	return o
}

func (l *layout) put32(at, v uint32) { binary.LittleEndian.PutUint32(l.b[at:], v) }
func (l *layout) put16(at uint32, v uint16) {
	binary.LittleEndian.PutUint16(l.b[at:], v)
}
func (l *layout) put64(at uint32, v uint64) { binary.LittleEndian.PutUint64(l.b[at:], v) }

// BuildDLL returns a minimal x64 DLL image. Each ordinary export gets a
// CodeStride-byte body of RET instructions; forwarded exports point at
// their forwarder string inside the export directory, as the linker emits
// them. Imports are by name with 8-byte thunks.
func BuildDLL(d DLL) []byte {
	type entry struct {
		name    string
		forward string
	}
	entries := make([]entry, 0, len(d.Exports)+len(d.Forwarders))
	for _, e := range d.Exports {
		entries = append(entries, entry{name: e})
	}
	for name, fwd := range d.Forwarders {
		entries = append(entries, entry{name: name, forward: fwd})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	// Section contents, offsets relative to the section start.
	var s layout
	n := uint32(len(entries))
	dir := s.zero(40)
	addrTab := s.zero(int(4 * n))
	nameTab := s.zero(int(4 * n))
	ordTab := s.zero(int(2 * n))
	dllName := s.cstring(d.Name)

	s.put32(dir+12, sectionRVA+dllName)
	s.put32(dir+16, 1) // ordinal base
	s.put32(dir+20, n)
	s.put32(dir+24, n)
	s.put32(dir+28, sectionRVA+addrTab)
	s.put32(dir+32, sectionRVA+nameTab)
	s.put32(dir+36, sectionRVA+ordTab)

	forwardAt := make(map[int]uint32)
	for i, e := range entries {
		at := s.cstring(e.name)
		s.put32(nameTab+4*uint32(i), sectionRVA+at)
		s.put16(ordTab+2*uint32(i), uint16(i))
	}
	for i, e := range entries {
		if e.forward != "" {
			forwardAt[i] = s.cstring(e.forward)
		}
	}
	exportSize := s.off() - dir

	var importDir, importSize uint32
	if len(d.Imports) > 0 {
		s.pad(8)
		importDir = s.zero(20 * (len(d.Imports) + 1))
		importSize = 20 * uint32(len(d.Imports)+1)
		for i, imp := range d.Imports {
			desc := importDir + 20*uint32(i)
			s.pad(8)
			ilt := s.zero(8 * (len(imp.Names) + 1))
			iat := s.zero(8 * (len(imp.Names) + 1))
			for j, name := range imp.Names {
				s.pad(2)
				hint := s.zero(2)
				s.cstring(name)
				s.put64(ilt+8*uint32(j), uint64(sectionRVA+hint))
				s.put64(iat+8*uint32(j), uint64(sectionRVA+hint))
			}
			lib := s.cstring(imp.Library)
			s.put32(desc+0, sectionRVA+ilt)
			s.put32(desc+12, sectionRVA+lib)
			s.put32(desc+16, sectionRVA+iat)
		}
	}

	s.pad(CodeStride)
	for i, e := range entries {
		if e.forward != "" {
			s.put32(addrTab+4*uint32(i), sectionRVA+forwardAt[i])
			continue
		}
		body := s.off()
		for k := 0; k < CodeStride; k++ {
			s.b = append(s.b, 0xC3)
		}
		s.put32(addrTab+4*uint32(i), sectionRVA+body)
	}
	virtualSize := s.off()
	s.pad(fileAlign)
	rawSize := s.off()

	// Headers.
	var h layout
	h.zero(fileAlign)
	h.b[0], h.b[1] = 'M', 'Z'
	h.put32(0x3c, peOffset)
	copy(h.b[peOffset:], "PE\x00\x00")

	fh := uint32(peOffset + 4)
	h.put16(fh+0, 0x8664)
	h.put16(fh+2, 1)
	h.put16(fh+16, optHeaderSize)
	h.put16(fh+18, 0x2022) // executable | large address aware | dll

	oh := fh + fileHeaderSize
	imageSize := alignUp(sectionRVA+virtualSize, sectionAlign)
	h.put16(oh+0, 0x20b)
	h.put32(oh+20, sectionRVA)
	h.put64(oh+24, 0x180000000)
	h.put32(oh+32, sectionAlign)
	h.put32(oh+36, fileAlign)
	h.put16(oh+40, 6)
	h.put16(oh+48, 6)
	h.put32(oh+56, imageSize)
	h.put32(oh+60, fileAlign)
	h.put16(oh+68, 3) // console
	h.put32(oh+108, 16)
	h.put32(oh+112, sectionRVA+dir)
	h.put32(oh+116, exportSize)
	if importSize > 0 {
		h.put32(oh+120, sectionRVA+importDir)
		h.put32(oh+124, importSize)
	}

	sh := oh + optHeaderSize
	copy(h.b[sh:], ".rdata")
	h.put32(sh+8, virtualSize)
	h.put32(sh+12, sectionRVA)
	h.put32(sh+16, rawSize)
	h.put32(sh+20, fileAlign)
	h.put32(sh+36, 0x60000020) // code | execute | read

	return append(h.b, s.b...)
}

func alignUp(v, a uint32) uint32 { return (v + a - 1) &^ (a - 1) }
