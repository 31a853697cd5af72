// Package textconv converts between Go strings and the two string encodings
// the Windows API surface uses: UTF-16LE for W entry points and the ANSI
// code page (Windows-1252) for A entry points.
package textconv

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// AnsiToString decodes ANSI bytes up to the first NUL.
func AnsiToString(b []byte) (string, error) {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	if isASCII(b) {
		return string(b), nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("textconv: ansi decode: %w", err)
	}
	return string(out), nil
}

// StringToAnsi encodes s in the ANSI code page without a terminator.
// Characters with no mapping become '?', as WideCharToMultiByte does with
// the default char.
func StringToAnsi(s string) []byte {
	if isASCII([]byte(s)) {
		return []byte(s)
	}
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// WideToString decodes UTF-16LE bytes up to the first NUL code unit.
func WideToString(b []byte) string {
	b = b[:len(b)&^1]
	for i := 0; i+1 < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			b = b[:i]
			break
		}
	}
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}

// StringToWide encodes s as UTF-16LE without a terminator.
func StringToWide(s string) []byte {
	out, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil
	}
	return out
}

// StringToWideZ encodes s as UTF-16LE followed by a NUL code unit.
func StringToWideZ(s string) []byte {
	return append(StringToWide(s), 0, 0)
}

// NarrowRegData converts the data of a REG_SZ, REG_EXPAND_SZ or REG_MULTI_SZ
// value from UTF-16LE to ANSI. The conversion walks one NUL-terminated
// segment at a time so every embedded terminator of a multi-string survives,
// and stops at the empty segment that ends the list. Data that is not NUL
// terminated is converted in full.
func NarrowRegData(wide []byte, multi bool) []byte {
	wide = wide[:len(wide)&^1]
	out := make([]byte, 0, len(wide)/2)
	pos := 0
	for pos < len(wide) {
		end := pos
		for end+1 < len(wide) && (wide[end] != 0 || wide[end+1] != 0) {
			end += 2
		}
		seg := WideToString(wide[pos:end])
		out = append(out, StringToAnsi(seg)...)
		if end+1 >= len(wide) {
			// Unterminated tail.
			break
		}
		out = append(out, 0)
		pos = end + 2
		if !multi || seg == "" {
			break
		}
	}
	return out
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
