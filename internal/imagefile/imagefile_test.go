package imagefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/winredir/internal/testutil"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestOpenImage(t *testing.T) {
	want := testutil.BuildDLL(testutil.DLL{Name: "core.dll", Exports: []string{"Alpha"}})
	img, err := Open(writeFile(t, "core.dll", want))
	require.NoError(t, err)
	assert.Equal(t, want, img.Data)

	require.NoError(t, img.Close())
	assert.Nil(t, img.Data)
	assert.NoError(t, img.Close(), "second close is a no-op")
}

func TestOpenRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"one byte", []byte{'M'}},
		{"text", []byte("hello world")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(writeFile(t, "x.dll", tt.data))
			assert.ErrorIs(t, err, ErrNotImage)
		})
	}

	_, err := Open(filepath.Join(t.TempDir(), "missing.dll"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
