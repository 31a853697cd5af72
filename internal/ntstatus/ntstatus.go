// Package ntstatus translates native status codes into Win32 last-error
// values and human-readable names.
//
// The translation table is closed. A status that is not listed maps to
// ERROR_INVALID_PARAMETER.
package ntstatus

import (
	"fmt"

	"github.com/joshuapare/winredir/pkg/types"
)

// Fallback is returned by ToLastError for statuses absent from the table.
const Fallback = types.ERROR_INVALID_PARAMETER

var toLastError = map[types.NTStatus]types.Errno{
	types.STATUS_SUCCESS:                types.ERROR_SUCCESS,
	types.STATUS_TIMEOUT:                types.ERROR_TIMEOUT,
	types.STATUS_PENDING:                types.ERROR_IO_PENDING,
	types.STATUS_OBJECT_NAME_EXISTS:     types.ERROR_ALREADY_EXISTS,
	types.STATUS_BUFFER_OVERFLOW:        types.ERROR_MORE_DATA,
	types.STATUS_NO_MORE_FILES:          types.ERROR_NO_MORE_FILES,
	types.STATUS_NO_MORE_ENTRIES:        types.ERROR_NO_MORE_ITEMS,
	types.STATUS_UNSUCCESSFUL:           types.ERROR_GEN_FAILURE,
	types.STATUS_NOT_IMPLEMENTED:        types.ERROR_INVALID_FUNCTION,
	types.STATUS_INFO_LENGTH_MISMATCH:   types.ERROR_BAD_LENGTH,
	types.STATUS_ACCESS_VIOLATION:       types.ERROR_INVALID_ADDRESS,
	types.STATUS_INVALID_HANDLE:         types.ERROR_INVALID_HANDLE,
	types.STATUS_INVALID_CID:            types.ERROR_INVALID_PARAMETER,
	types.STATUS_INVALID_PARAMETER:      types.ERROR_INVALID_PARAMETER,
	types.STATUS_INVALID_PARAMETER_1:    types.ERROR_INVALID_PARAMETER,
	types.STATUS_INVALID_PARAMETER_2:    types.ERROR_INVALID_PARAMETER,
	types.STATUS_INVALID_PARAMETER_3:    types.ERROR_INVALID_PARAMETER,
	types.STATUS_INVALID_PARAMETER_MIX:  types.ERROR_INVALID_PARAMETER,
	types.STATUS_NO_SUCH_FILE:           types.ERROR_FILE_NOT_FOUND,
	types.STATUS_INVALID_DEVICE_REQUEST: types.ERROR_INVALID_FUNCTION,
	types.STATUS_END_OF_FILE:            types.ERROR_HANDLE_EOF,
	types.STATUS_NO_MEMORY:              types.ERROR_NOT_ENOUGH_MEMORY,
	types.STATUS_ACCESS_DENIED:          types.ERROR_ACCESS_DENIED,
	types.STATUS_BUFFER_TOO_SMALL:       types.ERROR_INSUFFICIENT_BUFFER,
	types.STATUS_OBJECT_TYPE_MISMATCH:   types.ERROR_INVALID_HANDLE,
	types.STATUS_OBJECT_NAME_INVALID:    types.ERROR_INVALID_NAME,
	types.STATUS_OBJECT_NAME_NOT_FOUND:  types.ERROR_FILE_NOT_FOUND,
	types.STATUS_OBJECT_NAME_COLLISION:  types.ERROR_ALREADY_EXISTS,
	types.STATUS_OBJECT_PATH_INVALID:    types.ERROR_BAD_PATHNAME,
	types.STATUS_OBJECT_PATH_NOT_FOUND:  types.ERROR_PATH_NOT_FOUND,
	types.STATUS_OBJECT_PATH_SYNTAX_BAD: types.ERROR_BAD_PATHNAME,
	types.STATUS_SHARING_VIOLATION:      types.ERROR_SHARING_VIOLATION,
	types.STATUS_DELETE_PENDING:         types.ERROR_ACCESS_DENIED,
	types.STATUS_PRIVILEGE_NOT_HELD:     types.ERROR_PRIVILEGE_NOT_HELD,
	types.STATUS_PROCEDURE_NOT_FOUND:    types.ERROR_PROC_NOT_FOUND,
	types.STATUS_NO_TOKEN:               types.ERROR_NO_TOKEN,
	types.STATUS_INSUFFICIENT_RESOURCES: types.ERROR_NO_SYSTEM_RESOURCES,
	types.STATUS_FILE_IS_A_DIRECTORY:    types.ERROR_ACCESS_DENIED,
	types.STATUS_NOT_SUPPORTED:          types.ERROR_NOT_SUPPORTED,
	types.STATUS_NOT_A_DIRECTORY:        types.ERROR_DIRECTORY,
	types.STATUS_DIRECTORY_NOT_EMPTY:    types.ERROR_DIR_NOT_EMPTY,
	types.STATUS_CANNOT_DELETE:          types.ERROR_ACCESS_DENIED,
	types.STATUS_MEDIA_WRITE_PROTECTED:  types.ERROR_WRITE_PROTECT,
	types.STATUS_DLL_NOT_FOUND:          types.ERROR_MOD_NOT_FOUND,
	types.STATUS_ENTRYPOINT_NOT_FOUND:   types.ERROR_PROC_NOT_FOUND,
	types.STATUS_INVALID_IMAGE_FORMAT:   types.ERROR_BAD_EXE_FORMAT,
	types.STATUS_PIPE_BROKEN:            types.ERROR_BROKEN_PIPE,
	types.STATUS_KEY_DELETED:            types.ERROR_KEY_DELETED,
	types.STATUS_NOT_FOUND:              types.ERROR_NOT_SUPPORTED,
	types.STATUS_NO_UNICODE_TRANSLATION: types.ERROR_NO_UNICODE_TRANSLATION,
	types.STATUS_HEAP_CORRUPTION:        types.ERROR_INVALID_PARAMETER,
	types.STATUS_INVALID_INFO_CLASS:     types.ERROR_INVALID_PARAMETER,
	types.STATUS_NOT_MAPPED_VIEW:        types.ERROR_INVALID_ADDRESS,
}

// ToLastError maps a native status to the Win32 error the OS would set for
// it. The lookup is total.
func ToLastError(s types.NTStatus) types.Errno {
	if e, ok := toLastError[s]; ok {
		return e
	}
	return Fallback
}

// Known reports whether s has an explicit entry in the translation table.
func Known(s types.NTStatus) bool {
	_, ok := toLastError[s]
	return ok
}

var names = map[types.NTStatus]string{
	types.STATUS_SUCCESS:               "STATUS_SUCCESS",
	types.STATUS_TIMEOUT:               "STATUS_TIMEOUT",
	types.STATUS_PENDING:               "STATUS_PENDING",
	types.STATUS_ABANDONED_WAIT_0:      "STATUS_ABANDONED_WAIT_0",
	types.STATUS_USER_APC:              "STATUS_USER_APC",
	types.STATUS_OBJECT_NAME_EXISTS:    "STATUS_OBJECT_NAME_EXISTS",
	types.STATUS_BUFFER_OVERFLOW:       "STATUS_BUFFER_OVERFLOW",
	types.STATUS_NO_MORE_FILES:         "STATUS_NO_MORE_FILES",
	types.STATUS_NO_MORE_ENTRIES:       "STATUS_NO_MORE_ENTRIES",
	types.STATUS_UNSUCCESSFUL:          "STATUS_UNSUCCESSFUL",
	types.STATUS_NOT_IMPLEMENTED:       "STATUS_NOT_IMPLEMENTED",
	types.STATUS_INFO_LENGTH_MISMATCH:  "STATUS_INFO_LENGTH_MISMATCH",
	types.STATUS_ACCESS_VIOLATION:      "STATUS_ACCESS_VIOLATION",
	types.STATUS_INVALID_HANDLE:        "STATUS_INVALID_HANDLE",
	types.STATUS_INVALID_CID:           "STATUS_INVALID_CID",
	types.STATUS_INVALID_PARAMETER:     "STATUS_INVALID_PARAMETER",
	types.STATUS_NO_SUCH_FILE:          "STATUS_NO_SUCH_FILE",
	types.STATUS_END_OF_FILE:           "STATUS_END_OF_FILE",
	types.STATUS_NO_MEMORY:             "STATUS_NO_MEMORY",
	types.STATUS_ACCESS_DENIED:         "STATUS_ACCESS_DENIED",
	types.STATUS_BUFFER_TOO_SMALL:      "STATUS_BUFFER_TOO_SMALL",
	types.STATUS_OBJECT_TYPE_MISMATCH:  "STATUS_OBJECT_TYPE_MISMATCH",
	types.STATUS_OBJECT_NAME_INVALID:   "STATUS_OBJECT_NAME_INVALID",
	types.STATUS_OBJECT_NAME_NOT_FOUND: "STATUS_OBJECT_NAME_NOT_FOUND",
	types.STATUS_OBJECT_NAME_COLLISION: "STATUS_OBJECT_NAME_COLLISION",
	types.STATUS_OBJECT_PATH_NOT_FOUND: "STATUS_OBJECT_PATH_NOT_FOUND",
	types.STATUS_SHARING_VIOLATION:     "STATUS_SHARING_VIOLATION",
	types.STATUS_PRIVILEGE_NOT_HELD:    "STATUS_PRIVILEGE_NOT_HELD",
	types.STATUS_PROCEDURE_NOT_FOUND:   "STATUS_PROCEDURE_NOT_FOUND",
	types.STATUS_NO_TOKEN:              "STATUS_NO_TOKEN",
	types.STATUS_FILE_IS_A_DIRECTORY:   "STATUS_FILE_IS_A_DIRECTORY",
	types.STATUS_NOT_SUPPORTED:         "STATUS_NOT_SUPPORTED",
	types.STATUS_NOT_A_DIRECTORY:       "STATUS_NOT_A_DIRECTORY",
	types.STATUS_DLL_NOT_FOUND:         "STATUS_DLL_NOT_FOUND",
	types.STATUS_ENTRYPOINT_NOT_FOUND:  "STATUS_ENTRYPOINT_NOT_FOUND",
	types.STATUS_INVALID_IMAGE_FORMAT:  "STATUS_INVALID_IMAGE_FORMAT",
	types.STATUS_PIPE_BROKEN:           "STATUS_PIPE_BROKEN",
	types.STATUS_KEY_DELETED:           "STATUS_KEY_DELETED",
	types.STATUS_NOT_FOUND:             "STATUS_NOT_FOUND",
	types.STATUS_INVALID_INFO_CLASS:    "STATUS_INVALID_INFO_CLASS",
	types.STATUS_NOT_MAPPED_VIEW:       "STATUS_NOT_MAPPED_VIEW",
}

// Format renders s as "0xXXXXXXXX (NAME)", falling back to the severity class
// for codes without a name.
func Format(s types.NTStatus) string {
	if name, ok := names[s]; ok {
		return fmt.Sprintf("0x%08X (%s)", uint32(s), name)
	}
	var sev string
	switch s.Severity() {
	case types.SeveritySuccess:
		sev = "SUCCESS"
	case types.SeverityInformational:
		sev = "INFORMATIONAL"
	case types.SeverityWarning:
		sev = "WARNING"
	default:
		sev = "ERROR"
	}
	return fmt.Sprintf("0x%08X (Unknown %s status)", uint32(s), sev)
}
