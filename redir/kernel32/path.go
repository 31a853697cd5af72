package kernel32

import (
	"errors"
	"strings"
)

// ErrBadPath is returned by NtPath for names no object path corresponds to.
var ErrBadPath = errors.New("kernel32: invalid path")

const (
	dosDevices = `\??\`
	uncDevices = `\??\UNC\`
)

// NtPath converts a Win32 path to the object-manager path NtCreateFile
// takes, resolving relative names against cwd. "\\?\" names pass through
// untouched; "\\.\" names are device paths and are not normalized.
func NtPath(name, cwd string) (string, error) {
	if name == "" {
		return "", ErrBadPath
	}
	if strings.HasPrefix(name, `\\?\`) {
		return dosDevices + name[4:], nil
	}
	name = strings.ReplaceAll(name, "/", `\`)
	switch {
	case strings.HasPrefix(name, `\\.\`):
		return dosDevices + name[4:], nil
	case strings.HasPrefix(name, `\\`):
		rest := name[2:]
		// \\server\share is the root; only what follows is normalized.
		parts := strings.SplitN(rest, `\`, 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return "", ErrBadPath
		}
		root := parts[0] + `\` + parts[1]
		tail := ""
		if len(parts) == 3 {
			tail = parts[2]
		}
		return uncDevices + root + clean(tail, false), nil
	case len(name) >= 2 && name[1] == ':':
		drive := strings.ToUpper(name[:1])
		rest := name[2:]
		if !strings.HasPrefix(rest, `\`) {
			// Drive-relative: only meaningful for the current drive.
			switch {
			case len(cwd) >= 2 && strings.EqualFold(cwd[:1], drive) && rest == "":
				rest = cwd[2:]
			case len(cwd) >= 2 && strings.EqualFold(cwd[:1], drive):
				rest = cwd[2:] + `\` + rest
			default:
				rest = `\` + rest
			}
		}
		return dosDevices + drive + ":" + clean(rest, true), nil
	case strings.HasPrefix(name, `\`):
		if len(cwd) < 2 || cwd[1] != ':' {
			return "", ErrBadPath
		}
		return dosDevices + strings.ToUpper(cwd[:1]) + ":" + clean(name, true), nil
	default:
		if len(cwd) < 2 || cwd[1] != ':' {
			return "", ErrBadPath
		}
		return NtPath(strings.TrimSuffix(cwd, `\`)+`\`+name, "")
	}
}

// clean collapses "." and ".." components and repeated separators, and
// drops the trailing dots and spaces Win32 strips from each component. The
// result starts with a separator unless it is empty; a trailing separator
// on the input is kept.
func clean(p string, rooted bool) string {
	trailing := strings.HasSuffix(p, `\`) && len(p) > 1
	var out []string
	for _, c := range strings.Split(p, `\`) {
		switch c {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		if t := strings.TrimRight(c, ". "); t != "" {
			c = t
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		if rooted {
			return `\`
		}
		return ""
	}
	s := `\` + strings.Join(out, `\`)
	if trailing {
		s += `\`
	}
	return s
}

// splitSearch splits a FindFirstFile argument into its directory and the
// final-component pattern.
func splitSearch(name string) (dir, pattern string) {
	name = strings.ReplaceAll(name, "/", `\`)
	i := strings.LastIndexByte(name, '\\')
	if i < 0 {
		if len(name) >= 2 && name[1] == ':' {
			return name[:2], name[2:]
		}
		return ".", name
	}
	dir, pattern = name[:i], name[i+1:]
	if dir == "" || (len(dir) == 2 && dir[1] == ':') {
		dir += `\`
	}
	return dir, pattern
}
