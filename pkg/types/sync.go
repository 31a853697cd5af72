package types

// CriticalSection mirrors RTL_CRITICAL_SECTION.
type CriticalSection struct {
	DebugInfo      uintptr
	LockCount      int32
	RecursionCount int32
	OwningThread   Handle
	LockSemaphore  Handle
	SpinCount      uintptr
}

// CriticalSectionDebug field offsets, in pointer words, inside an
// RTL_CRITICAL_SECTION_DEBUG block:
//
//	Type, CreatorBackTraceIndex  (one word, two WORDs)
//	CriticalSection              back-pointer
//	ProcessLocksList.Flink
//	ProcessLocksList.Blink
//	EntryCount, ContentionCount  (one word)
//	Flags, CreatorBackTraceIndexHigh, SpareWORD (one word)
const (
	DebugWordType = iota
	DebugWordCriticalSection
	DebugWordFlink
	DebugWordBlink
	DebugWordCounts
	DebugWordFlags
	DebugWords
)

// RTL_CRITICAL_SECTION_DEBUG.Type value for critical sections.
const RTL_CRITSECT_TYPE = 0

// InitializeCriticalSectionEx flags.
const (
	RTL_CRITICAL_SECTION_FLAG_NO_DEBUG_INFO    = 0x01000000
	RTL_CRITICAL_SECTION_FLAG_DYNAMIC_SPIN     = 0x02000000
	RTL_CRITICAL_SECTION_FLAG_STATIC_INIT      = 0x04000000
	RTL_CRITICAL_SECTION_FLAG_RESOURCE_TYPE    = 0x08000000
	RTL_CRITICAL_SECTION_FLAG_FORCE_DEBUG_INFO = 0x10000000
	RTL_CRITICAL_SECTION_ALL_FLAG_BITS         = 0xFF000000

	// SpinCountFlagBits are the high bits of a spin count that callers may
	// use to smuggle flags; they are stripped before storing.
	SpinCountFlagBits = 0x80000000
)

// Wait results and timeouts.
const (
	WAIT_OBJECT_0    = 0x00000000
	WAIT_ABANDONED   = 0x00000080
	WAIT_IO_COMPLETE = 0x000000C0
	WAIT_TIMEOUT     = 0x00000102
	WAIT_FAILED      = 0xFFFFFFFF
	INFINITE         = 0xFFFFFFFF
)

// FLS_OUT_OF_INDEXES is FlsAlloc's failure return.
const FLS_OUT_OF_INDEXES = 0xFFFFFFFF

// FlsCallback is a PFLS_CALLBACK_FUNCTION.
type FlsCallback func(data uintptr)
