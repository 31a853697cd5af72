package arena

import "errors"

var (
	// ErrNoSpace indicates that the reserved region is exhausted.
	ErrNoSpace = errors.New("arena: no space left in reserved region")

	// ErrBadPointer indicates an address that is not the start of a live block.
	ErrBadPointer = errors.New("arena: not a live block address")

	// ErrBadSize indicates a negative or overflowing size.
	ErrBadSize = errors.New("arena: bad size")

	// ErrWontFit indicates an in-place resize larger than the block capacity.
	ErrWontFit = errors.New("arena: block cannot grow in place")

	// ErrOutOfRange indicates a byte range that leaves the region.
	ErrOutOfRange = errors.New("arena: range outside region")

	// ErrClosed indicates use after Close.
	ErrClosed = errors.New("arena: closed")
)
