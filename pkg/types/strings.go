package types

// CountedString mirrors UNICODE_STRING / ANSI_STRING / OEM_STRING: a length,
// a capacity, and a buffer address.
type CountedString struct {
	Length        uint16
	MaximumLength uint16
	Buffer        uintptr
}

type (
	UnicodeString = CountedString
	AnsiString    = CountedString
	OemString     = CountedString
)

// GUID mirrors the Windows GUID / UUID layout.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}
