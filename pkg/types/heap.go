package types

// HeapCreate / HeapAlloc / HeapReAlloc flags.
const (
	HEAP_NO_SERIALIZE          = 0x00000001
	HEAP_GROWABLE              = 0x00000002
	HEAP_GENERATE_EXCEPTIONS   = 0x00000004
	HEAP_ZERO_MEMORY           = 0x00000008
	HEAP_REALLOC_IN_PLACE_ONLY = 0x00000010
	HEAP_CREATE_ENABLE_EXECUTE = 0x00040000
	HEAP_FREE_CHECKING_ENABLED = 0x00000040
	HEAP_TAIL_CHECKING_ENABLED = 0x00000020
	HEAP_CREATE_ALIGN_16       = 0x00010000
)

// HEAP_INFORMATION_CLASS values accepted by HeapSetInformation.
const (
	HeapCompatibilityInformation      = 0
	HeapEnableTerminationOnCorruption = 1
	HeapOptimizeResources             = 3
)

// HeapCompactLargest is what HeapCompact reports for an isolated heap: the
// largest committed free block is not tracked, so a generous constant is
// returned in its place.
const HeapCompactLargest = 0x00100000

// HeapEntry mirrors PROCESS_HEAP_ENTRY as consumed by HeapWalk.
type HeapEntry struct {
	Data        uintptr
	Size        uint32
	Overhead    uint8
	RegionIndex uint8
	Flags       uint16
}

// LocalAlloc / GlobalAlloc flags. Only the low 16 bits are meaningful.
const (
	LMEM_FIXED          = 0x0000
	LMEM_MOVEABLE       = 0x0002
	LMEM_NOCOMPACT      = 0x0010
	LMEM_NODISCARD      = 0x0020
	LMEM_ZEROINIT       = 0x0040
	LMEM_MODIFY         = 0x0080
	LMEM_DISCARDABLE    = 0x0F00
	LMEM_VALID_FLAGS    = 0x0F72
	LMEM_INVALID_HANDLE = 0x8000
	LMEM_DISCARDED      = 0x4000
	LMEM_LOCKCOUNT      = 0x00FF

	LHND = LMEM_MOVEABLE | LMEM_ZEROINIT
	LPTR = LMEM_FIXED | LMEM_ZEROINIT
)

// GMEM_* share the LMEM_* values; kernel32 implements Global* on top of Local*.
const (
	GMEM_FIXED    = LMEM_FIXED
	GMEM_MOVEABLE = LMEM_MOVEABLE
	GMEM_ZEROINIT = LMEM_ZEROINIT
	GMEM_MODIFY   = LMEM_MODIFY
	GPTR          = LPTR
	GHND          = LHND
)
