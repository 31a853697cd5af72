// Package teb models the per-thread and per-fiber environment the isolated
// libraries see: the thread's last-error slot, the running fiber, and the
// fiber's FLS data block.
package teb

import (
	"sync"
	"sync/atomic"

	"github.com/joshuapare/winredir/pkg/types"
)

// FlsBlock is one fiber's slot array, linked into the owning domain's
// circular list. A list head is an FlsBlock whose Slots is nil.
type FlsBlock struct {
	Flink *FlsBlock
	Blink *FlsBlock
	Slots []uintptr
}

// InitHead makes b an empty circular list head.
func (b *FlsBlock) InitHead() {
	b.Flink = b
	b.Blink = b
}

// Empty reports whether the list headed by b has no entries.
func (b *FlsBlock) Empty() bool { return b.Flink == b }

// InsertTail links e before head.
func (b *FlsBlock) InsertTail(e *FlsBlock) {
	prev := b.Blink
	e.Flink = b
	e.Blink = prev
	prev.Flink = e
	b.Blink = e
}

// Unlink removes b from whatever list it is on and self-links it.
func (b *FlsBlock) Unlink() {
	if b.Flink == nil {
		return
	}
	b.Blink.Flink = b.Flink
	b.Flink.Blink = b.Blink
	b.Flink = b
	b.Blink = b
}

// Fiber is a cooperative execution context inside a Thread.
type Fiber struct {
	ID      uintptr
	Param   uintptr
	FlsData *FlsBlock
}

var nextID atomic.Uintptr

// NewFiber returns a fiber with a fresh identifier and no FLS block.
func NewFiber(param uintptr) *Fiber {
	return &Fiber{ID: nextID.Add(1), Param: param}
}

// Thread is the isolated view of one OS thread.
type Thread struct {
	ID uintptr

	mu        sync.Mutex
	lastError types.Errno
	fiber     *Fiber
	primary   *Fiber
	isFiber   bool
}

// NewThread returns a thread running its implicit primary fiber.
func NewThread() *Thread {
	f := NewFiber(0)
	return &Thread{ID: nextID.Add(1), fiber: f, primary: f}
}

// SetLastError stores the thread's last-error value.
func (t *Thread) SetLastError(e types.Errno) {
	t.mu.Lock()
	t.lastError = e
	t.mu.Unlock()
}

// LastError returns the thread's last-error value.
func (t *Thread) LastError() types.Errno {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastError
}

// Fiber returns the fiber currently running on t.
func (t *Thread) Fiber() *Fiber {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fiber
}

// Primary returns the thread's implicit fiber.
func (t *Thread) Primary() *Fiber {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.primary
}

// SwitchTo makes f the running fiber and returns the previous one.
func (t *Thread) SwitchTo(f *Fiber) *Fiber {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.fiber
	t.fiber = f
	return prev
}

// ConvertToFiber marks the thread as fiber-aware (ConvertThreadToFiber).
// It reports false when the thread was already converted.
func (t *Thread) ConvertToFiber(param uintptr) (*Fiber, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isFiber {
		return t.fiber, false
	}
	t.isFiber = true
	t.primary.Param = param
	return t.primary, true
}

// IsFiber reports whether ConvertToFiber has been called.
func (t *Thread) IsFiber() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isFiber
}
