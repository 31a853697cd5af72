package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/joshuapare/winredir/internal/testutil"
)

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.Bytes()
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	return string(<-done), fnErr
}

// assertJSON checks that output is valid JSON and decodes it into v
func assertJSON(t *testing.T, output string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(output), v); err != nil {
		t.Fatalf("output is not valid JSON: %v\nOutput: %s", err, output)
	}
}

// resetFlags restores the global flags after a test
func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		verbose, quiet, jsonOut = false, false, false
		configPath = ""
		resolveImporter = ""
		statusLoad = nil
	})
}

// writeDLL builds a synthetic image into a temp directory
func writeDLL(t *testing.T, d testutil.DLL) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), d.Name)
	if err := os.WriteFile(p, testutil.BuildDLL(d), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}
