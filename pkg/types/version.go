package types

import "fmt"

// WindowsVersion identifies the OS release the isolated libraries came from.
// Several redirection decisions depend on it (the Win7 ntdll override table,
// the kernel32-to-kernelbase forwarding exceptions).
type WindowsVersion int

const (
	WindowsNT4 WindowsVersion = iota
	Windows2000
	WindowsXP
	Windows2003
	WindowsVista
	Windows7
	Windows8
	Windows81
	Windows10
	Windows11
)

var versionNames = map[WindowsVersion]string{
	WindowsNT4:   "nt4",
	Windows2000:  "2000",
	WindowsXP:    "xp",
	Windows2003:  "2003",
	WindowsVista: "vista",
	Windows7:     "7",
	Windows8:     "8",
	Windows81:    "8.1",
	Windows10:    "10",
	Windows11:    "11",
}

func (v WindowsVersion) String() string {
	if s, ok := versionNames[v]; ok {
		return "win" + s
	}
	return fmt.Sprintf("WindowsVersion(%d)", int(v))
}

// ParseWindowsVersion accepts "7", "win7", "8.1", "win10" and so on.
func ParseWindowsVersion(s string) (WindowsVersion, error) {
	for v, name := range versionNames {
		if s == name || s == "win"+name {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown windows version %q", s)
}
