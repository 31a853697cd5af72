package types

import "fmt"

// Errno is a Win32 error code as stored in the thread's last-error slot and
// returned directly by the registry API (LSTATUS).
type Errno uint32

const (
	ERROR_SUCCESS                Errno = 0
	NO_ERROR                     Errno = 0
	ERROR_INVALID_FUNCTION       Errno = 1
	ERROR_FILE_NOT_FOUND         Errno = 2
	ERROR_PATH_NOT_FOUND         Errno = 3
	ERROR_ACCESS_DENIED          Errno = 5
	ERROR_INVALID_HANDLE         Errno = 6
	ERROR_NOT_ENOUGH_MEMORY      Errno = 8
	ERROR_INVALID_DATA           Errno = 13
	ERROR_OUTOFMEMORY            Errno = 14
	ERROR_NO_MORE_FILES          Errno = 18
	ERROR_BAD_LENGTH             Errno = 24
	ERROR_GEN_FAILURE            Errno = 31
	ERROR_SHARING_VIOLATION      Errno = 32
	ERROR_HANDLE_EOF             Errno = 38
	ERROR_NOT_SUPPORTED          Errno = 50
	ERROR_FILE_EXISTS            Errno = 80
	ERROR_INVALID_PARAMETER      Errno = 87
	ERROR_BROKEN_PIPE            Errno = 109
	ERROR_CALL_NOT_IMPLEMENTED   Errno = 120
	ERROR_INSUFFICIENT_BUFFER    Errno = 122
	ERROR_INVALID_NAME           Errno = 123
	ERROR_MOD_NOT_FOUND          Errno = 126
	ERROR_PROC_NOT_FOUND         Errno = 127
	ERROR_DIR_NOT_EMPTY          Errno = 145
	ERROR_DISCARDED              Errno = 157
	ERROR_NOT_LOCKED             Errno = 158
	ERROR_BAD_PATHNAME           Errno = 161
	ERROR_ALREADY_EXISTS         Errno = 183
	ERROR_BAD_EXE_FORMAT         Errno = 193
	ERROR_MORE_DATA              Errno = 234
	ERROR_NO_MORE_ITEMS          Errno = 259
	ERROR_DIRECTORY              Errno = 267
	ERROR_INVALID_ADDRESS        Errno = 487
	ERROR_IO_PENDING             Errno = 997
	ERROR_NO_TOKEN               Errno = 1008
	ERROR_KEY_DELETED            Errno = 1018
	ERROR_NO_UNICODE_TRANSLATION Errno = 1113
	ERROR_PRIVILEGE_NOT_HELD     Errno = 1314
	ERROR_NO_SYSTEM_RESOURCES    Errno = 1450
	ERROR_TIMEOUT                Errno = 1460
	ERROR_WRITE_PROTECT          Errno = 19
)

// Error implements error so an Errno can travel through Go error plumbing
// (the CLI and tests) without losing its numeric identity.
func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return fmt.Sprintf("win32 error %d", uint32(e))
}

var errnoNames = map[Errno]string{
	ERROR_SUCCESS:                "ERROR_SUCCESS",
	ERROR_INVALID_FUNCTION:       "ERROR_INVALID_FUNCTION",
	ERROR_FILE_NOT_FOUND:         "ERROR_FILE_NOT_FOUND",
	ERROR_PATH_NOT_FOUND:         "ERROR_PATH_NOT_FOUND",
	ERROR_ACCESS_DENIED:          "ERROR_ACCESS_DENIED",
	ERROR_INVALID_HANDLE:         "ERROR_INVALID_HANDLE",
	ERROR_NOT_ENOUGH_MEMORY:      "ERROR_NOT_ENOUGH_MEMORY",
	ERROR_INVALID_DATA:           "ERROR_INVALID_DATA",
	ERROR_OUTOFMEMORY:            "ERROR_OUTOFMEMORY",
	ERROR_NO_MORE_FILES:          "ERROR_NO_MORE_FILES",
	ERROR_BAD_LENGTH:             "ERROR_BAD_LENGTH",
	ERROR_GEN_FAILURE:            "ERROR_GEN_FAILURE",
	ERROR_SHARING_VIOLATION:      "ERROR_SHARING_VIOLATION",
	ERROR_HANDLE_EOF:             "ERROR_HANDLE_EOF",
	ERROR_NOT_SUPPORTED:          "ERROR_NOT_SUPPORTED",
	ERROR_FILE_EXISTS:            "ERROR_FILE_EXISTS",
	ERROR_INVALID_PARAMETER:      "ERROR_INVALID_PARAMETER",
	ERROR_BROKEN_PIPE:            "ERROR_BROKEN_PIPE",
	ERROR_CALL_NOT_IMPLEMENTED:   "ERROR_CALL_NOT_IMPLEMENTED",
	ERROR_INSUFFICIENT_BUFFER:    "ERROR_INSUFFICIENT_BUFFER",
	ERROR_INVALID_NAME:           "ERROR_INVALID_NAME",
	ERROR_MOD_NOT_FOUND:          "ERROR_MOD_NOT_FOUND",
	ERROR_PROC_NOT_FOUND:         "ERROR_PROC_NOT_FOUND",
	ERROR_DIR_NOT_EMPTY:          "ERROR_DIR_NOT_EMPTY",
	ERROR_DISCARDED:              "ERROR_DISCARDED",
	ERROR_NOT_LOCKED:             "ERROR_NOT_LOCKED",
	ERROR_BAD_PATHNAME:           "ERROR_BAD_PATHNAME",
	ERROR_ALREADY_EXISTS:         "ERROR_ALREADY_EXISTS",
	ERROR_BAD_EXE_FORMAT:         "ERROR_BAD_EXE_FORMAT",
	ERROR_MORE_DATA:              "ERROR_MORE_DATA",
	ERROR_NO_MORE_ITEMS:          "ERROR_NO_MORE_ITEMS",
	ERROR_DIRECTORY:              "ERROR_DIRECTORY",
	ERROR_INVALID_ADDRESS:        "ERROR_INVALID_ADDRESS",
	ERROR_IO_PENDING:             "ERROR_IO_PENDING",
	ERROR_NO_TOKEN:               "ERROR_NO_TOKEN",
	ERROR_KEY_DELETED:            "ERROR_KEY_DELETED",
	ERROR_NO_UNICODE_TRANSLATION: "ERROR_NO_UNICODE_TRANSLATION",
	ERROR_PRIVILEGE_NOT_HELD:     "ERROR_PRIVILEGE_NOT_HELD",
	ERROR_NO_SYSTEM_RESOURCES:    "ERROR_NO_SYSTEM_RESOURCES",
	ERROR_TIMEOUT:                "ERROR_TIMEOUT",
	ERROR_WRITE_PROTECT:          "ERROR_WRITE_PROTECT",
}
