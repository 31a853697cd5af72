package types

import "time"

// Standard and generic access rights.
const (
	DELETE                   = 0x00010000
	READ_CONTROL             = 0x00020000
	WRITE_DAC                = 0x00040000
	WRITE_OWNER              = 0x00080000
	SYNCHRONIZE              = 0x00100000
	STANDARD_RIGHTS_REQUIRED = 0x000F0000
	MAXIMUM_ALLOWED          = 0x02000000
	GENERIC_READ             = 0x80000000
	GENERIC_WRITE            = 0x40000000
	GENERIC_EXECUTE          = 0x20000000
	GENERIC_ALL              = 0x10000000
)

// File-specific access rights.
const (
	FILE_READ_DATA        = 0x0001
	FILE_LIST_DIRECTORY   = 0x0001
	FILE_WRITE_DATA       = 0x0002
	FILE_APPEND_DATA      = 0x0004
	FILE_READ_EA          = 0x0008
	FILE_WRITE_EA         = 0x0010
	FILE_EXECUTE          = 0x0020
	FILE_TRAVERSE         = 0x0020
	FILE_READ_ATTRIBUTES  = 0x0080
	FILE_WRITE_ATTRIBUTES = 0x0100
)

// Share modes.
const (
	FILE_SHARE_READ   = 0x1
	FILE_SHARE_WRITE  = 0x2
	FILE_SHARE_DELETE = 0x4
)

// Win32 creation dispositions (CreateFile dwCreationDisposition).
const (
	CREATE_NEW        = 1
	CREATE_ALWAYS     = 2
	OPEN_EXISTING     = 3
	OPEN_ALWAYS       = 4
	TRUNCATE_EXISTING = 5
)

// NT create dispositions (NtCreateFile CreateDisposition).
const (
	FILE_SUPERSEDE    = 0
	FILE_OPEN         = 1
	FILE_CREATE       = 2
	FILE_OPEN_IF      = 3
	FILE_OVERWRITE    = 4
	FILE_OVERWRITE_IF = 5
)

// NT create options.
const (
	FILE_DIRECTORY_FILE            = 0x00000001
	FILE_WRITE_THROUGH             = 0x00000002
	FILE_SEQUENTIAL_ONLY           = 0x00000004
	FILE_NO_INTERMEDIATE_BUFFERING = 0x00000008
	FILE_SYNCHRONOUS_IO_ALERT      = 0x00000010
	FILE_SYNCHRONOUS_IO_NONALERT   = 0x00000020
	FILE_NON_DIRECTORY_FILE        = 0x00000040
	FILE_RANDOM_ACCESS             = 0x00000800
	FILE_DELETE_ON_CLOSE           = 0x00001000
	FILE_OPEN_FOR_BACKUP_INTENT    = 0x00004000
	FILE_OPEN_REPARSE_POINT        = 0x00200000
	FILE_OPEN_NO_RECALL            = 0x00400000
)

// IO_STATUS_BLOCK.Information values reported by NtCreateFile.
const (
	FILE_SUPERSEDED  = 0
	FILE_OPENED      = 1
	FILE_CREATED     = 2
	FILE_OVERWRITTEN = 3
	FILE_EXISTS      = 4
	FILE_DOES_NOT_EX = 5
)

// CreateFile dwFlagsAndAttributes flag bits.
const (
	FILE_FLAG_WRITE_THROUGH      = 0x80000000
	FILE_FLAG_OVERLAPPED         = 0x40000000
	FILE_FLAG_NO_BUFFERING       = 0x20000000
	FILE_FLAG_RANDOM_ACCESS      = 0x10000000
	FILE_FLAG_SEQUENTIAL_SCAN    = 0x08000000
	FILE_FLAG_DELETE_ON_CLOSE    = 0x04000000
	FILE_FLAG_BACKUP_SEMANTICS   = 0x02000000
	FILE_FLAG_POSIX_SEMANTICS    = 0x01000000
	FILE_FLAG_OPEN_REPARSE_POINT = 0x00200000
	FILE_FLAG_OPEN_NO_RECALL     = 0x00100000
)

// File attributes.
const (
	FILE_ATTRIBUTE_READONLY  = 0x00000001
	FILE_ATTRIBUTE_HIDDEN    = 0x00000002
	FILE_ATTRIBUTE_SYSTEM    = 0x00000004
	FILE_ATTRIBUTE_DIRECTORY = 0x00000010
	FILE_ATTRIBUTE_ARCHIVE   = 0x00000020
	FILE_ATTRIBUTE_NORMAL    = 0x00000080
	FILE_ATTRIBUTE_TEMPORARY = 0x00000100

	// FILE_ATTRIBUTE_VALID_SET_FLAGS is the mask CreateFile applies before
	// passing attributes to NtCreateFile.
	FILE_ATTRIBUTE_VALID_SET_FLAGS = 0x00007FA7

	INVALID_FILE_ATTRIBUTES = 0xFFFFFFFF
)

// Object attribute flags.
const (
	OBJ_INHERIT          = 0x00000002
	OBJ_CASE_INSENSITIVE = 0x00000040
	OBJ_OPENIF           = 0x00000080
)

// ObjectAttributes mirrors OBJECT_ATTRIBUTES with the name held as a Go
// string; backends convert it to a UNICODE_STRING when they cross into the
// kernel.
type ObjectAttributes struct {
	RootDirectory      Handle
	ObjectName         string
	Attributes         uint32
	SecurityDescriptor uintptr
}

// IoStatusBlock mirrors IO_STATUS_BLOCK.
type IoStatusBlock struct {
	Status      NTStatus
	Information uintptr
}

// FileBasicInformation mirrors FILE_BASIC_INFORMATION.
type FileBasicInformation struct {
	CreationTime   int64
	LastAccessTime int64
	LastWriteTime  int64
	ChangeTime     int64
	FileAttributes uint32
}

// FileNetworkOpenInformation mirrors FILE_NETWORK_OPEN_INFORMATION.
type FileNetworkOpenInformation struct {
	CreationTime   int64
	LastAccessTime int64
	LastWriteTime  int64
	ChangeTime     int64
	AllocationSize int64
	EndOfFile      int64
	FileAttributes uint32
}

// FileInformationClass selects the structure for NtSetInformationFile.
type FileInformationClass uint32

const (
	FileBasicInformationClass       FileInformationClass = 4
	FileDispositionInformationClass FileInformationClass = 13
	FileEndOfFileInformationClass   FileInformationClass = 20
)

// Win32FindData mirrors WIN32_FIND_DATAW.
type Win32FindData struct {
	FileAttributes    uint32
	CreationTime      int64
	LastAccessTime    int64
	LastWriteTime     int64
	FileSize          uint64
	FileName          string
	AlternateFileName string
}

// SecurityAttributes mirrors SECURITY_ATTRIBUTES.
type SecurityAttributes struct {
	SecurityDescriptor uintptr
	InheritHandle      bool
}

// FiletimeEpochDelta is the number of 100ns intervals between 1601-01-01 and
// the Unix epoch.
const FiletimeEpochDelta = 116444736000000000

// Filetime converts t to a FILETIME value in 100ns units since 1601.
func Filetime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()/100 + FiletimeEpochDelta
}

// FileDirectoryInformation is one entry returned by NtQueryDirectoryFile
// (FILE_BOTH_DIR_INFORMATION, reduced to what FindFirstFile consumes).
type FileDirectoryInformation struct {
	FileName       string
	ShortName      string
	FileAttributes uint32
	CreationTime   int64
	LastAccessTime int64
	LastWriteTime  int64
	EndOfFile      int64
	AllocationSize int64
}

// FileDispositionInformation delete flag, one byte.
const FileDispositionDelete = 1

// NtCreateKey dispositions.
const (
	REG_CREATED_NEW_KEY     = 1
	REG_OPENED_EXISTING_KEY = 2
)
