package ntstatus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joshuapare/winredir/pkg/types"
)

func TestToLastError(t *testing.T) {
	tests := []struct {
		name   string
		status types.NTStatus
		want   types.Errno
	}{
		{"success", types.STATUS_SUCCESS, types.ERROR_SUCCESS},
		{"collision", types.STATUS_OBJECT_NAME_COLLISION, types.ERROR_ALREADY_EXISTS},
		{"overflow", types.STATUS_BUFFER_OVERFLOW, types.ERROR_MORE_DATA},
		{"path not found", types.STATUS_OBJECT_PATH_NOT_FOUND, types.ERROR_PATH_NOT_FOUND},
		{"name not found", types.STATUS_OBJECT_NAME_NOT_FOUND, types.ERROR_FILE_NOT_FOUND},
		{"no memory", types.STATUS_NO_MEMORY, types.ERROR_NOT_ENOUGH_MEMORY},
		{"timeout", types.STATUS_TIMEOUT, types.ERROR_TIMEOUT},
		{"no more entries", types.STATUS_NO_MORE_ENTRIES, types.ERROR_NO_MORE_ITEMS},
		{"unmapped error", types.NTStatus(0xC0DEC0DE), types.ERROR_INVALID_PARAMETER},
		{"unmapped success class", types.NTStatus(0x00001234), types.ERROR_INVALID_PARAMETER},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToLastError(tt.status))
		})
	}
}

func TestToLastErrorIsTotal(t *testing.T) {
	// Sweep a spread of codes across every severity class; none may panic
	// and every unknown one must land on the fallback.
	for hi := uint32(0); hi < 4; hi++ {
		for lo := uint32(0); lo < 0x400; lo += 7 {
			s := types.NTStatus(hi<<30 | 0x00FF0000 | lo)
			got := ToLastError(s)
			if !Known(s) {
				assert.Equal(t, Fallback, got)
			}
		}
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0xC0000035 (STATUS_OBJECT_NAME_COLLISION)", Format(types.STATUS_OBJECT_NAME_COLLISION))
	assert.Equal(t, "0xC0DEC0DE (Unknown ERROR status)", Format(0xC0DEC0DE))
	assert.Equal(t, "0x80FF0001 (Unknown WARNING status)", Format(0x80FF0001))
	assert.Equal(t, "0x40FF0001 (Unknown INFORMATIONAL status)", Format(0x40FF0001))
}
