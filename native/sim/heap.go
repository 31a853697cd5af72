package sim

import (
	"sort"
	"unsafe"

	"github.com/joshuapare/winredir/pkg/types"
)

const (
	heapBase   = 0x00A00000
	heapStride = 0x00010000

	// maxHeapRequest bounds a single simulated allocation.
	maxHeapRequest = 1 << 30

	// uninitFill marks heap bytes that were not requested zeroed.
	uninitFill = 0xAB

	compactLargest = 0x1000
)

type heap struct {
	blocks map[uintptr]*heapBlock
}

type heapBlock struct {
	mem  []byte
	size uintptr
}

func (s *OS) newHeapLocked() types.Handle {
	s.nextHeap += heapStride
	h := types.Handle(s.nextHeap)
	s.heaps[h] = &heap{blocks: make(map[uintptr]*heapBlock)}
	return h
}

func newBlock(size uintptr, zero bool) (*heapBlock, uintptr) {
	n := size
	if n == 0 {
		n = 1
	}
	mem := make([]byte, n)
	if !zero {
		for i := range mem {
			mem[i] = uninitFill
		}
	}
	return &heapBlock{mem: mem, size: size}, uintptr(unsafe.Pointer(&mem[0]))
}

// Bytes returns the requested extent of a live heap block or mapped view
// starting at addr, or nil.
func (s *OS) Bytes(addr uintptr) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, hp := range s.heaps {
		if b, ok := hp.blocks[addr]; ok {
			return b.mem[:b.size]
		}
	}
	if v, ok := s.views[addr]; ok {
		return v
	}
	return nil
}

// HeapBytes returns n bytes at ptr when they lie inside one live heap
// block.
func (s *OS) HeapBytes(ptr uintptr, n int) []byte {
	if n < 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, hp := range s.heaps {
		for base, b := range hp.blocks {
			if ptr < base || ptr-base >= uintptr(len(b.mem)) {
				continue
			}
			off := int(ptr - base)
			if n > len(b.mem)-off {
				return nil
			}
			return b.mem[off : off+n]
		}
	}
	return nil
}

// GetProcessHeap returns the application's process heap.
func (s *OS) GetProcessHeap() types.Handle {
	return s.processHeap
}

// RtlCreateHeap creates a growable heap; reserve and commit are advisory.
func (s *OS) RtlCreateHeap(flags uint32, reserve, commit uintptr) types.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("RtlCreateHeap")
	return s.newHeapLocked()
}

// RtlDestroyHeap releases a heap and every block in it. The process heap
// cannot be destroyed.
func (s *OS) RtlDestroyHeap(h types.Handle) types.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("RtlDestroyHeap")
	if h == s.processHeap {
		return h
	}
	if _, ok := s.heaps[h]; !ok {
		return h
	}
	delete(s.heaps, h)
	return 0
}

// RtlAllocateHeap allocates size bytes. Memory is zeroed only when
// HEAP_ZERO_MEMORY is passed.
func (s *OS) RtlAllocateHeap(h types.Handle, flags uint32, size uintptr) uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("RtlAllocateHeap")
	hp, ok := s.heaps[h]
	if !ok || size > maxHeapRequest {
		return 0
	}
	b, addr := newBlock(size, flags&types.HEAP_ZERO_MEMORY != 0)
	hp.blocks[addr] = b
	return addr
}

// RtlReAllocateHeap resizes ptr, moving it unless HEAP_REALLOC_IN_PLACE_ONLY
// is set.
func (s *OS) RtlReAllocateHeap(h types.Handle, flags uint32, ptr, size uintptr) uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("RtlReAllocateHeap")
	hp, ok := s.heaps[h]
	if !ok || size > maxHeapRequest {
		return 0
	}
	old, ok := hp.blocks[ptr]
	if !ok {
		return 0
	}
	if flags&types.HEAP_REALLOC_IN_PLACE_ONLY != 0 {
		if size > uintptr(len(old.mem)) {
			return 0
		}
		if flags&types.HEAP_ZERO_MEMORY != 0 && size > old.size {
			clear(old.mem[old.size:size])
		}
		old.size = size
		return ptr
	}
	b, addr := newBlock(size, flags&types.HEAP_ZERO_MEMORY != 0)
	copy(b.mem[:size], old.mem[:old.size])
	delete(hp.blocks, ptr)
	hp.blocks[addr] = b
	return addr
}

// RtlFreeHeap frees ptr. Freeing a nil pointer succeeds.
func (s *OS) RtlFreeHeap(h types.Handle, flags uint32, ptr uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("RtlFreeHeap")
	return s.freeLocked(h, ptr)
}

func (s *OS) freeLocked(h types.Handle, ptr uintptr) bool {
	hp, ok := s.heaps[h]
	if !ok {
		return false
	}
	if ptr == 0 {
		return true
	}
	if _, ok := hp.blocks[ptr]; !ok {
		return false
	}
	delete(hp.blocks, ptr)
	return true
}

// RtlSizeHeap returns the requested size of ptr, or ^uintptr(0).
func (s *OS) RtlSizeHeap(h types.Handle, flags uint32, ptr uintptr) uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("RtlSizeHeap")
	if hp, ok := s.heaps[h]; ok {
		if b, ok := hp.blocks[ptr]; ok {
			return b.size
		}
	}
	return ^uintptr(0)
}

// RtlValidateHeap validates a single block, or the whole heap when ptr is 0.
func (s *OS) RtlValidateHeap(h types.Handle, flags uint32, ptr uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("RtlValidateHeap")
	hp, ok := s.heaps[h]
	if !ok {
		return false
	}
	if ptr == 0 {
		return true
	}
	_, ok = hp.blocks[ptr]
	return ok
}

func (s *OS) RtlLockHeap(h types.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("RtlLockHeap")
	_, ok := s.heaps[h]
	return ok
}

func (s *OS) RtlUnlockHeap(h types.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("RtlUnlockHeap")
	_, ok := s.heaps[h]
	return ok
}

func (s *OS) RtlCompactHeap(h types.Handle, flags uint32) uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("RtlCompactHeap")
	if _, ok := s.heaps[h]; !ok {
		return 0
	}
	return compactLargest
}

// RtlWalkHeap enumerates blocks in address order. A zero entry.Data starts
// the walk.
func (s *OS) RtlWalkHeap(h types.Handle, entry *types.HeapEntry) types.NTStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("RtlWalkHeap")
	hp, ok := s.heaps[h]
	if !ok {
		return types.STATUS_INVALID_HANDLE
	}
	if entry == nil {
		return types.STATUS_INVALID_PARAMETER
	}
	addrs := make([]uintptr, 0, len(hp.blocks))
	for a := range hp.blocks {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	i := 0
	if entry.Data != 0 {
		i = sort.Search(len(addrs), func(k int) bool { return addrs[k] > entry.Data })
	}
	if i >= len(addrs) {
		return types.STATUS_NO_MORE_ENTRIES
	}
	b := hp.blocks[addrs[i]]
	*entry = types.HeapEntry{Data: addrs[i], Size: uint32(b.size), Flags: 0x0004}
	return types.STATUS_SUCCESS
}

func (s *OS) RtlSetHeapInformation(h types.Handle, class uint32, info []byte) types.NTStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("RtlSetHeapInformation")
	if h == 0 {
		return types.STATUS_SUCCESS
	}
	if _, ok := s.heaps[h]; !ok {
		return types.STATUS_INVALID_HANDLE
	}
	return types.STATUS_SUCCESS
}

// RtlFreeString frees a string buffer allocated from the process heap and
// zeroes the descriptor.
func (s *OS) RtlFreeString(str *types.CountedString) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("RtlFreeString")
	if str == nil || str.Buffer == 0 {
		return
	}
	s.freeLocked(s.processHeap, str.Buffer)
	*str = types.CountedString{}
}
