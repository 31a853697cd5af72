package types

import "fmt"

// NTStatus is a native status code as returned by ntdll entry points and raw
// system calls.
type NTStatus uint32

// Severity classes encoded in the top two bits of an NTSTATUS.
const (
	SeveritySuccess       = 0
	SeverityInformational = 1
	SeverityWarning       = 2
	SeverityError         = 3
)

const (
	STATUS_SUCCESS                  NTStatus = 0x00000000
	STATUS_WAIT_0                   NTStatus = 0x00000000
	STATUS_ABANDONED_WAIT_0         NTStatus = 0x00000080
	STATUS_USER_APC                 NTStatus = 0x000000C0
	STATUS_TIMEOUT                  NTStatus = 0x00000102
	STATUS_PENDING                  NTStatus = 0x00000103
	STATUS_BUFFER_OVERFLOW          NTStatus = 0x80000005
	STATUS_NO_MORE_FILES            NTStatus = 0x80000006
	STATUS_NO_MORE_ENTRIES          NTStatus = 0x8000001A
	STATUS_UNSUCCESSFUL             NTStatus = 0xC0000001
	STATUS_NOT_IMPLEMENTED          NTStatus = 0xC0000002
	STATUS_INFO_LENGTH_MISMATCH     NTStatus = 0xC0000004
	STATUS_ACCESS_VIOLATION         NTStatus = 0xC0000005
	STATUS_INVALID_HANDLE           NTStatus = 0xC0000008
	STATUS_INVALID_CID              NTStatus = 0xC000000B
	STATUS_INVALID_PARAMETER        NTStatus = 0xC000000D
	STATUS_NO_SUCH_FILE             NTStatus = 0xC000000F
	STATUS_INVALID_DEVICE_REQUEST   NTStatus = 0xC0000010
	STATUS_END_OF_FILE              NTStatus = 0xC0000011
	STATUS_NO_MEMORY                NTStatus = 0xC0000017
	STATUS_ACCESS_DENIED            NTStatus = 0xC0000022
	STATUS_BUFFER_TOO_SMALL         NTStatus = 0xC0000023
	STATUS_OBJECT_TYPE_MISMATCH     NTStatus = 0xC0000024
	STATUS_OBJECT_NAME_INVALID      NTStatus = 0xC0000033
	STATUS_OBJECT_NAME_NOT_FOUND    NTStatus = 0xC0000034
	STATUS_OBJECT_NAME_COLLISION    NTStatus = 0xC0000035
	STATUS_OBJECT_PATH_INVALID      NTStatus = 0xC0000039
	STATUS_OBJECT_PATH_NOT_FOUND    NTStatus = 0xC000003A
	STATUS_OBJECT_PATH_SYNTAX_BAD   NTStatus = 0xC000003B
	STATUS_SHARING_VIOLATION        NTStatus = 0xC0000043
	STATUS_DELETE_PENDING           NTStatus = 0xC0000056
	STATUS_PRIVILEGE_NOT_HELD       NTStatus = 0xC0000061
	STATUS_PROCEDURE_NOT_FOUND      NTStatus = 0xC000007A
	STATUS_NO_TOKEN                 NTStatus = 0xC000007C
	STATUS_INSUFFICIENT_RESOURCES   NTStatus = 0xC000009A
	STATUS_FILE_IS_A_DIRECTORY      NTStatus = 0xC00000BA
	STATUS_NOT_SUPPORTED            NTStatus = 0xC00000BB
	STATUS_NOT_A_DIRECTORY          NTStatus = 0xC0000103
	STATUS_DLL_NOT_FOUND            NTStatus = 0xC0000135
	STATUS_ENTRYPOINT_NOT_FOUND     NTStatus = 0xC0000139
	STATUS_PIPE_BROKEN              NTStatus = 0xC000014B
	STATUS_KEY_DELETED              NTStatus = 0xC000017C
	STATUS_INVALID_IMAGE_FORMAT     NTStatus = 0xC000007B
	STATUS_NOT_FOUND                NTStatus = 0xC0000225
	STATUS_INVALID_PARAMETER_1      NTStatus = 0xC00000EF
	STATUS_INVALID_PARAMETER_2      NTStatus = 0xC00000F0
	STATUS_INVALID_PARAMETER_3      NTStatus = 0xC00000F1
	STATUS_INVALID_PARAMETER_MIX    NTStatus = 0xC0000030
	STATUS_OBJECT_NAME_EXISTS       NTStatus = 0x40000000
	STATUS_HEAP_CORRUPTION          NTStatus = 0xC0000374
	STATUS_NO_UNICODE_TRANSLATION   NTStatus = 0xC0000717
	STATUS_CANNOT_DELETE            NTStatus = 0xC0000121
	STATUS_DIRECTORY_NOT_EMPTY      NTStatus = 0xC0000101
	STATUS_MEDIA_WRITE_PROTECTED    NTStatus = 0xC00000A2
	STATUS_INVALID_INFO_CLASS       NTStatus = 0xC0000003
	STATUS_NOT_MAPPED_VIEW          NTStatus = 0xC0000019
	STATUS_OBJECT_NAME_NOT_FOUND_EX NTStatus = STATUS_OBJECT_NAME_NOT_FOUND
)

// Severity returns the two-bit severity class.
func (s NTStatus) Severity() uint32 { return uint32(s) >> 30 }

// IsSuccess mirrors NT_SUCCESS: success and informational codes both count.
func (s NTStatus) IsSuccess() bool { return int32(s) >= 0 }

// IsError reports an error-severity status.
func (s NTStatus) IsError() bool { return s.Severity() == SeverityError }

// IsWarning reports a warning-severity status such as STATUS_BUFFER_OVERFLOW.
func (s NTStatus) IsWarning() bool { return s.Severity() == SeverityWarning }

func (s NTStatus) String() string { return fmt.Sprintf("0x%08X", uint32(s)) }
