package kernel32

import "github.com/joshuapare/winredir/redir/strtab"

// Imports returns the kernel32 entries this package provides.
func (s *Shim) Imports() []strtab.Import {
	return []strtab.Import{
		{Name: "CloseHandle", Func: s.CloseHandle},
		{Name: "CreateFileA", Func: s.CreateFileA},
		{Name: "CreateFileW", Func: s.CreateFileW},
		{Name: "CreatePipe", Func: s.CreatePipe},
		{Name: "DeleteFileA", Func: s.DeleteFileA},
		{Name: "DeleteFileW", Func: s.DeleteFileW},
		{Name: "DuplicateHandle", Func: s.DuplicateHandle},
		{Name: "FindClose", Func: s.FindClose},
		{Name: "FindFirstFileA", Func: s.FindFirstFileA},
		{Name: "FindFirstFileW", Func: s.FindFirstFileW},
		{Name: "FindNextFileA", Func: s.FindNextFileA},
		{Name: "FindNextFileW", Func: s.FindNextFileW},
		{Name: "GetFileAttributesA", Func: s.GetFileAttributesA},
		{Name: "GetFileAttributesW", Func: s.GetFileAttributesW},
		{Name: "OpenProcess", Func: s.OpenProcess},
		{Name: "WaitForSingleObject", Func: s.WaitForSingleObject},
		{Name: "WaitForSingleObjectEx", Func: s.WaitForSingleObjectEx},
	}
}
