package types

import "fmt"

// RegType is a registry value type (REG_*).
type RegType uint32

const (
	REG_NONE      RegType = 0
	REG_SZ        RegType = 1
	REG_EXPAND_SZ RegType = 2
	REG_BINARY    RegType = 3
	REG_DWORD     RegType = 4
	REG_DWORD_BE  RegType = 5
	REG_LINK      RegType = 6
	REG_MULTI_SZ  RegType = 7
	REG_QWORD     RegType = 11
)

// String returns the REG_* name, or UNKNOWN_TYPE_<n> with n printed as a
// signed 32-bit integer for values outside the table.
func (t RegType) String() string {
	switch t {
	case REG_NONE:
		return "REG_NONE"
	case REG_SZ:
		return "REG_SZ"
	case REG_EXPAND_SZ:
		return "REG_EXPAND_SZ"
	case REG_BINARY:
		return "REG_BINARY"
	case REG_DWORD:
		return "REG_DWORD"
	case REG_DWORD_BE:
		return "REG_DWORD_BE"
	case REG_LINK:
		return "REG_LINK"
	case REG_MULTI_SZ:
		return "REG_MULTI_SZ"
	case REG_QWORD:
		return "REG_QWORD"
	default:
		return fmt.Sprintf("UNKNOWN_TYPE_%d", int32(t))
	}
}

// IsString reports types whose data is a UTF-16 string (or list of strings)
// and therefore needs narrowing in the ANSI entry points.
func (t RegType) IsString() bool {
	return t == REG_SZ || t == REG_EXPAND_SZ || t == REG_MULTI_SZ
}

// hkey builds a predefined key handle. The constants are 32-bit values that
// the OS sign-extends on 64-bit targets.
func hkey(v uint32) Handle { return Handle(uintptr(int32(v))) }

// Predefined registry root keys.
var (
	HKEY_CLASSES_ROOT        = hkey(0x80000000)
	HKEY_CURRENT_USER        = hkey(0x80000001)
	HKEY_LOCAL_MACHINE       = hkey(0x80000002)
	HKEY_USERS               = hkey(0x80000003)
	HKEY_PERFORMANCE_DATA    = hkey(0x80000004)
	HKEY_CURRENT_CONFIG      = hkey(0x80000005)
	HKEY_DYN_DATA            = hkey(0x80000006)
	HKEY_PERFORMANCE_TEXT    = hkey(0x80000050)
	HKEY_PERFORMANCE_NLSTEXT = hkey(0x80000060)
)

// Registry access rights.
const (
	KEY_QUERY_VALUE        = 0x0001
	KEY_SET_VALUE          = 0x0002
	KEY_CREATE_SUB_KEY     = 0x0004
	KEY_ENUMERATE_SUB_KEYS = 0x0008
	KEY_NOTIFY             = 0x0010
	KEY_CREATE_LINK        = 0x0020
	KEY_WOW64_64KEY        = 0x0100
	KEY_WOW64_32KEY        = 0x0200
	KEY_READ               = 0x20019
	KEY_WRITE              = 0x20006
	KEY_ALL_ACCESS         = 0xF003F
)

// RegOpenKeyEx options.
const REG_OPTION_OPEN_LINK = 0x00000008

// KeyValueInformationClass selects the NtQueryValueKey output structure.
type KeyValueInformationClass uint32

const (
	KeyValueBasicInformation   KeyValueInformationClass = 0
	KeyValueFullInformation    KeyValueInformationClass = 1
	KeyValuePartialInformation KeyValueInformationClass = 2
)

// KeyValuePartialHeaderSize is the size of the fixed part of
// KEY_VALUE_PARTIAL_INFORMATION: TitleIndex, Type and DataLength.
const KeyValuePartialHeaderSize = 12

// KeyValuePartial is the decoded form of KEY_VALUE_PARTIAL_INFORMATION.
type KeyValuePartial struct {
	TitleIndex uint32
	Type       RegType
	Data       []byte
}
