package testutil

import (
	"testing"

	"github.com/joshuapare/winredir/native/sim"
)

// SystemDir is the directory the simulated loader searches for bare
// library names.
const SystemDir = `C:\Windows\System32\`

// DefaultSID is the user SID SetupOS gives the process token.
const DefaultSID = "S-1-5-21-1000"

// SetupOS returns a simulated OS with the given libraries installed in
// SystemDir.
//
// Example:
//
//	os := testutil.SetupOS(t, testutil.DLL{Name: "kernel32.dll", Exports: []string{"Sleep"}})
func SetupOS(t *testing.T, dlls ...DLL) *sim.OS {
	t.Helper()
	os := sim.New(sim.Options{UserSID: DefaultSID})
	for _, d := range dlls {
		AddDLL(os, d)
	}
	return os
}

// AddDLL builds d and stores it in SystemDir, returning its path.
func AddDLL(os *sim.OS, d DLL) string {
	p := SystemDir + d.Name
	os.AddImage(p, BuildDLL(d))
	return p
}
