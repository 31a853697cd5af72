package arena

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/joshuapare/winredir/internal/buf"
)

const (
	// Align is the alignment of every returned address: two pointer words.
	Align = 2 * buf.PtrSize

	// HeaderSize precedes every block.
	HeaderSize = Align

	// MaxClassSize is the largest capacity served from a size-class list.
	MaxClassSize = 64 << 10

	pageSize = 4096
	inUseBit = 1
)

var numClasses = bits.Len(uint(MaxClassSize / Align))

// Stats describes arena occupancy.
type Stats struct {
	Size      int // reserved bytes
	Used      int // high-water mark of carved bytes
	Live      int // requested bytes in live blocks
	Blocks    int // live blocks
	Allocs    int
	Frees     int
	FreeCache int // blocks parked on free lists
}

// Arena is a contiguous, engine-owned allocation region.
type Arena struct {
	mu      sync.RWMutex
	mem     []byte
	base    uintptr
	top     int
	classes [][]int // header offsets per size class
	large   []int
	release func([]byte) error
	stats   Stats
}

// New reserves size bytes and returns an empty arena over them.
func New(size int) (*Arena, error) {
	size, ok := buf.AlignUp(size, pageSize)
	if !ok || size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadSize, size)
	}
	mem, release, err := reserve(size)
	if err != nil {
		return nil, fmt.Errorf("arena: reserve %d bytes: %w", size, err)
	}
	a := &Arena{
		mem:     mem,
		base:    baseOf(mem),
		classes: make([][]int, numClasses),
		release: release,
	}
	a.stats.Size = len(mem)
	return a, nil
}

// Base returns the lowest address of the region.
func (a *Arena) Base() uintptr { return a.base }

// Size returns the number of reserved bytes, or 0 after Close.
func (a *Arena) Size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.mem)
}

// Contains reports whether addr lies inside the region. It is false for
// every address after Close.
func (a *Arena) Contains(addr uintptr) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.contains(addr)
}

func (a *Arena) contains(addr uintptr) bool {
	return addr >= a.base && addr-a.base < uintptr(len(a.mem))
}

// classFor returns the class index and rounded capacity for n bytes, or
// class -1 for a large block.
func classFor(n int) (int, int, bool) {
	if n <= Align {
		return 0, Align, true
	}
	if n > MaxClassSize {
		c, ok := buf.AlignUp(n, pageSize)
		return -1, c, ok
	}
	k := bits.Len(uint((n - 1) / Align))
	return k, Align << k, true
}

// Alloc returns the address of a block of at least n bytes. The contents
// are not cleared.
func (a *Arena) Alloc(n int) (uintptr, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", ErrBadSize, n)
	}
	class, capacity, ok := classFor(n)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrBadSize, n)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil {
		return 0, ErrClosed
	}

	off, ok := a.takeFree(class, capacity)
	if !ok {
		need := HeaderSize + capacity
		if len(a.mem)-a.top < need {
			return 0, ErrNoSpace
		}
		off = a.top
		a.top += need
		a.stats.Used = a.top
		a.setWord(off, 0, uintptr(capacity))
	}
	capacity = int(a.word(off, 0) &^ inUseBit)
	a.setWord(off, 0, uintptr(capacity)|inUseBit)
	a.setWord(off, 1, uintptr(n))

	a.stats.Allocs++
	a.stats.Blocks++
	a.stats.Live += n
	return a.base + uintptr(off+HeaderSize), nil
}

func (a *Arena) takeFree(class, capacity int) (int, bool) {
	if class >= 0 {
		list := a.classes[class]
		if len(list) == 0 {
			return 0, false
		}
		off := list[len(list)-1]
		a.classes[class] = list[:len(list)-1]
		a.stats.FreeCache--
		return off, true
	}
	for i, off := range a.large {
		if int(a.word(off, 0)) >= capacity {
			a.large = append(a.large[:i], a.large[i+1:]...)
			a.stats.FreeCache--
			return off, true
		}
	}
	return 0, false
}

// Free returns the block at addr to its free list.
func (a *Arena) Free(addr uintptr) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	off, err := a.header(addr)
	if err != nil {
		return err
	}
	capacity := int(a.word(off, 0) &^ inUseBit)
	a.stats.Live -= int(a.word(off, 1))
	a.setWord(off, 0, uintptr(capacity))
	a.setWord(off, 1, 0)

	if class, _, _ := classFor(capacity); class >= 0 {
		a.classes[class] = append(a.classes[class], off)
	} else {
		a.large = append(a.large, off)
	}
	a.stats.Frees++
	a.stats.Blocks--
	a.stats.FreeCache++
	return nil
}

// RequestedSize returns the size passed to Alloc (or the last Resize).
func (a *Arena) RequestedSize(addr uintptr) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	off, err := a.header(addr)
	if err != nil {
		return 0, err
	}
	return int(a.word(off, 1)), nil
}

// Capacity returns the usable size of the block at addr.
func (a *Arena) Capacity(addr uintptr) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	off, err := a.header(addr)
	if err != nil {
		return 0, err
	}
	return int(a.word(off, 0) &^ inUseBit), nil
}

// Resize changes the requested size of a block without moving it.
func (a *Arena) Resize(addr uintptr, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrBadSize, n)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	off, err := a.header(addr)
	if err != nil {
		return err
	}
	if n > int(a.word(off, 0)&^inUseBit) {
		return ErrWontFit
	}
	a.stats.Live += n - int(a.word(off, 1))
	a.setWord(off, 1, uintptr(n))
	return nil
}

// IsBlock reports whether addr is the start of a live block.
func (a *Arena) IsBlock(addr uintptr) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.header(addr)
	return err == nil
}

// Bytes returns a view of n bytes of region memory starting at addr. The
// view must not be used after Close.
func (a *Arena) Bytes(addr uintptr, n int) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if n < 0 || !a.contains(addr) {
		return nil, fmt.Errorf("%w: %#x+%d", ErrOutOfRange, addr, n)
	}
	b, ok := buf.Slice(a.mem, int(addr-a.base), n)
	if !ok {
		return nil, fmt.Errorf("%w: %#x+%d", ErrOutOfRange, addr, n)
	}
	return b, nil
}

// Payload returns the requested-size view of the block at addr.
func (a *Arena) Payload(addr uintptr) ([]byte, error) {
	n, err := a.RequestedSize(addr)
	if err != nil {
		return nil, err
	}
	return a.Bytes(addr, n)
}

// Stats returns a snapshot of occupancy counters.
func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Close releases the reserved region. Addresses handed out earlier become
// invalid.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil {
		return nil
	}
	mem := a.mem
	a.mem = nil
	a.classes = nil
	a.large = nil
	if a.release != nil {
		return a.release(mem)
	}
	return nil
}

// header validates addr and returns the offset of its block header.
func (a *Arena) header(addr uintptr) (int, error) {
	if a.mem == nil {
		return 0, ErrClosed
	}
	if !a.contains(addr) || addr-a.base < uintptr(HeaderSize) || (addr-a.base)%uintptr(Align) != 0 {
		return 0, fmt.Errorf("%w: %#x", ErrBadPointer, addr)
	}
	off := int(addr-a.base) - HeaderSize
	if off >= a.top || a.word(off, 0)&inUseBit == 0 {
		return 0, fmt.Errorf("%w: %#x", ErrBadPointer, addr)
	}
	return off, nil
}

func (a *Arena) word(off, i int) uintptr {
	return buf.Word(a.mem[off:], i)
}

func (a *Arena) setWord(off, i int, v uintptr) {
	buf.PutWord(a.mem[off:], i, v)
}
