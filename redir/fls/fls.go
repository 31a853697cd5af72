// Package fls keeps fiber-local storage for the isolated libraries apart
// from the application's. Each domain has its own slot bitmap, callback
// table, and list of per-fiber blocks, serialized by the domain's fast
// lock rather than the OS FLS lock.
package fls

import (
	"errors"
	"math/bits"
	"sync"

	"github.com/joshuapare/winredir/internal/logger"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/teb"
)

// ErrBadSize is returned by New for a non-positive slot count.
var ErrBadSize = errors.New("fls: slot count must be positive")

// State is the FLS bookkeeping of one isolation domain.
type State struct {
	mu        *sync.Mutex
	size      int
	bitmap    []uint64
	callbacks []types.FlsCallback
	freeing   []bool // index is running its Free callbacks
	highWater int    // highest index ever allocated, -1 when none
	head      teb.FlsBlock
	closed    bool
}

// New returns an empty state with size slots guarded by lock.
func New(lock *sync.Mutex, size int) (*State, error) {
	if size <= 0 {
		return nil, ErrBadSize
	}
	s := &State{
		mu:        lock,
		size:      size,
		bitmap:    make([]uint64, (size+63)/64),
		callbacks: make([]types.FlsCallback, size),
		freeing:   make([]bool, size),
		highWater: -1,
	}
	s.head.InitHead()
	return s, nil
}

// Size returns the slot capacity.
func (s *State) Size() int { return s.size }

func (s *State) allocated(i int) bool {
	return s.bitmap[i/64]&(1<<(i%64)) != 0
}

func (s *State) validLocked(idx uint32) bool {
	return !s.closed && int64(idx) < int64(s.size) && s.allocated(int(idx))
}

// Alloc takes the lowest free slot and records cb for it.
func (s *State) Alloc(cb types.FlsCallback) (uint32, types.NTStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, types.STATUS_NO_MEMORY
	}
	for w, word := range s.bitmap {
		if word == ^uint64(0) {
			continue
		}
		i := w*64 + bits.TrailingZeros64(^word)
		if i >= s.size {
			break
		}
		s.bitmap[w] |= 1 << (i % 64)
		s.callbacks[i] = cb
		s.highWater = max(s.highWater, i)
		logger.WithFn("FlsAlloc").WithField("index", i).Debug("redirected")
		return uint32(i), types.STATUS_SUCCESS
	}
	return 0, types.STATUS_NO_MEMORY
}

type pending struct {
	cb   types.FlsCallback
	data uintptr
}

func run(calls []pending) {
	for _, c := range calls {
		c.cb(c.data)
	}
}

// Free releases idx. The slot's callback runs once for every live fiber
// block holding a non-zero value there; only then are the values cleared
// and the index returned to the bitmap. Callbacks run without the lock
// held and still see idx allocated. A second Free of idx while callbacks
// run fails.
func (s *State) Free(idx uint32) types.NTStatus {
	s.mu.Lock()
	if !s.validLocked(idx) || s.freeing[idx] {
		s.mu.Unlock()
		return types.STATUS_INVALID_PARAMETER
	}
	i := int(idx)
	s.freeing[i] = true
	var calls []pending
	if cb := s.callbacks[i]; cb != nil {
		for b := s.head.Flink; b != &s.head; b = b.Flink {
			if v := b.Slots[i]; v != 0 {
				calls = append(calls, pending{cb, v})
			}
		}
	}
	s.mu.Unlock()

	run(calls)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.STATUS_SUCCESS
	}
	for b := s.head.Flink; b != &s.head; b = b.Flink {
		b.Slots[i] = 0
	}
	s.bitmap[i/64] &^= 1 << (i % 64)
	s.callbacks[i] = nil
	s.freeing[i] = false
	return types.STATUS_SUCCESS
}

// GetValue returns the value of idx for fiber f. A fiber that never set a
// value has no block and gets STATUS_INVALID_PARAMETER.
func (s *State) GetValue(f *teb.Fiber, idx uint32) (uintptr, types.NTStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked(idx) || f.FlsData == nil {
		return 0, types.STATUS_INVALID_PARAMETER
	}
	return f.FlsData.Slots[idx], types.STATUS_SUCCESS
}

// SetValue stores v at idx for fiber f, creating f's block on first use.
func (s *State) SetValue(f *teb.Fiber, idx uint32, v uintptr) types.NTStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked(idx) {
		return types.STATUS_INVALID_PARAMETER
	}
	s.ensureBlockLocked(f)
	f.FlsData.Slots[idx] = v
	return types.STATUS_SUCCESS
}

func (s *State) ensureBlockLocked(f *teb.Fiber) {
	if f.FlsData != nil {
		return
	}
	b := &teb.FlsBlock{Slots: make([]uintptr, s.size)}
	s.head.InsertTail(b)
	f.FlsData = b
}

// ProcessFiberExit tears down the block data belonging to f: every
// allocated slot up to the high-water mark with a callback and a non-zero
// value has its callback invoked, in index order, and the block is
// unlinked. A nil data instead creates f's block.
func (s *State) ProcessFiberExit(f *teb.Fiber, data *teb.FlsBlock) {
	s.mu.Lock()
	if data == nil {
		if !s.closed {
			s.ensureBlockLocked(f)
		}
		s.mu.Unlock()
		return
	}
	var calls []pending
	for i := 0; i <= s.highWater && i < len(data.Slots); i++ {
		if !s.allocated(i) || s.callbacks[i] == nil || data.Slots[i] == 0 {
			continue
		}
		calls = append(calls, pending{s.callbacks[i], data.Slots[i]})
	}
	data.Unlink()
	if f != nil && f.FlsData == data {
		f.FlsData = nil
	}
	s.mu.Unlock()

	run(calls)
}

// Live returns the number of fiber blocks on the list.
func (s *State) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for b := s.head.Flink; b != &s.head; b = b.Flink {
		n++
	}
	return n
}

// Teardown releases the bitmap and callback table. Blocks still linked are
// dropped without running callbacks; fiber and thread exit should already
// have removed them. It returns how many were dropped.
func (s *State) Teardown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	n := 0
	for !s.head.Empty() {
		s.head.Flink.Unlink()
		n++
	}
	if n > 0 {
		logger.L.WithField("blocks", n).Warn("fls teardown with live fiber blocks")
	}
	s.bitmap = nil
	s.callbacks = nil
	s.freeing = nil
	s.highWater = -1
	s.closed = true
	return n
}
