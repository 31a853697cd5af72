package modules

import "errors"

var (
	// ErrNotFound indicates that no image could be located for a library.
	ErrNotFound = errors.New("modules: library not found")

	// ErrBadImage indicates an image the mapper cannot handle.
	ErrBadImage = errors.New("modules: unsupported image")

	// ErrImportNotFound indicates an import with no matching export.
	ErrImportNotFound = errors.New("modules: import not found")

	// ErrOrdinalImport indicates an import by ordinal, which is not supported.
	ErrOrdinalImport = errors.New("modules: import by ordinal")

	// ErrForwarderLoop indicates a forwarder chain that does not terminate.
	ErrForwarderLoop = errors.New("modules: forwarder chain too long")

	// ErrAlreadyLoaded indicates a second module with the same name.
	ErrAlreadyLoaded = errors.New("modules: library already registered")
)
