package types

// ClientID mirrors CLIENT_ID.
type ClientID struct {
	UniqueProcess uintptr
	UniqueThread  uintptr
}

// Process access rights.
const (
	PROCESS_TERMINATE                 = 0x0001
	PROCESS_VM_READ                   = 0x0010
	PROCESS_DUP_HANDLE                = 0x0040
	PROCESS_QUERY_INFORMATION         = 0x0400
	PROCESS_QUERY_LIMITED_INFORMATION = 0x1000
	PROCESS_ALL_ACCESS                = 0x1FFFFF
)

// Token access rights.
const (
	TOKEN_QUERY = 0x0008
	TOKEN_READ  = 0x20008
)

// ThreadInformationClass values accepted by NtSetInformationThread.
type ThreadInformationClass uint32

const (
	ThreadHideFromDebugger ThreadInformationClass = 17
)

// RPC status codes returned by the rpcrt4 redirections.
const (
	RPC_S_OK              = 0
	RPC_S_UUID_LOCAL_ONLY = 1824
	RPC_S_UUID_NO_ADDRESS = 1739
)

// Loader flags for LoadLibraryEx / GetModuleHandleEx.
const (
	DONT_RESOLVE_DLL_REFERENCES             = 0x00000001
	LOAD_LIBRARY_AS_DATAFILE                = 0x00000002
	LOAD_WITH_ALTERED_SEARCH_PATH           = 0x00000008
	GET_MODULE_HANDLE_EX_FLAG_PIN           = 0x00000001
	GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REF = 0x00000002
	GET_MODULE_HANDLE_EX_FLAG_FROM_ADDRESS  = 0x00000004
)
