package types

// Handle is an opaque kernel object handle, heap handle, or module base.
type Handle uintptr

// pseudoHandle builds the sign-extended value the OS uses for small negative
// handle constants.
func pseudoHandle(n int) Handle { return Handle(uintptr(n)) }

var (
	// INVALID_HANDLE_VALUE is returned by CreateFile and FindFirstFile on failure.
	INVALID_HANDLE_VALUE = pseudoHandle(-1)

	// CurrentProcess is the GetCurrentProcess() pseudo-handle.
	CurrentProcess = pseudoHandle(-1)

	// CurrentThread is the GetCurrentThread() pseudo-handle.
	CurrentThread = pseudoHandle(-2)
)

// Duplicate options for DuplicateHandle / NtDuplicateObject.
const (
	DUPLICATE_CLOSE_SOURCE = 0x1
	DUPLICATE_SAME_ACCESS  = 0x2
)

// Win32 BOOL.
const (
	FALSE = 0
	TRUE  = 1
)

// BoolOf converts a Go bool to a Win32 BOOL.
func BoolOf(b bool) uint32 {
	if b {
		return TRUE
	}
	return FALSE
}
