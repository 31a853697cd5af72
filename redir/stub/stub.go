// Package stub turns replacement functions into callable, engine-owned
// addresses. Each stub is a small slot in the arena holding
//
//	mov  <scratch>, imm64(target)
//	jmp  <scratch>
//
// so GetProcAddress can hand out a code address for a redirected symbol and
// later map that address back to the replacement.
package stub

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/joshuapare/winredir/redir/arena"
)

// SlotSize is the arena space reserved per stub.
const SlotSize = 16

// Scratch is the register clobbered by the stub.
const Scratch = RAX

var ErrNotFunc = errors.New("stub: target is not a function")

// Table memoizes stubs by key.
type Table struct {
	mu      sync.Mutex
	arena   *arena.Arena
	enc     Encoder
	byKey   map[string]uintptr
	targets map[uintptr]any
}

// NewTable returns a stub table that allocates slots from a. A nil enc
// selects AMD64.
func NewTable(a *arena.Arena, enc Encoder) *Table {
	if enc == nil {
		enc = AMD64{}
	}
	return &Table{
		arena:   a,
		enc:     enc,
		byKey:   make(map[string]uintptr),
		targets: make(map[uintptr]any),
	}
}

// Emit returns the stub address for key, creating it on first use.
func (t *Table) Emit(key string, target any) (uintptr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if addr, ok := t.byKey[key]; ok {
		return addr, nil
	}

	pc, err := entryOf(target)
	if err != nil {
		return 0, err
	}
	mov, err := t.enc.Encode(MOV, R(Scratch), Imm(uint64(pc)))
	if err != nil {
		return 0, err
	}
	jmp, err := t.enc.Encode(JMP, R(Scratch))
	if err != nil {
		return 0, err
	}
	code := append(mov, jmp...)
	if len(code) > SlotSize {
		return 0, fmt.Errorf("stub: %d-byte sequence exceeds slot", len(code))
	}

	addr, err := t.arena.Alloc(SlotSize)
	if err != nil {
		return 0, fmt.Errorf("stub: %s: %w", key, err)
	}
	slot, err := t.arena.Bytes(addr, SlotSize)
	if err != nil {
		return 0, err
	}
	n := copy(slot, code)
	for i := n; i < len(slot); i++ {
		slot[i] = 0xCC // int3 padding
	}

	t.byKey[key] = addr
	t.targets[addr] = target
	return addr, nil
}

// Resolve maps a stub address back to its target.
func (t *Table) Resolve(addr uintptr) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn, ok := t.targets[addr]
	return fn, ok
}

// Lookup returns the stub already emitted for key.
func (t *Table) Lookup(key string) (uintptr, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	addr, ok := t.byKey[key]
	return addr, ok
}

// Len returns the number of emitted stubs.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byKey)
}

func entryOf(target any) (uintptr, error) {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Func || v.IsNil() {
		return 0, fmt.Errorf("%w: %T", ErrNotFunc, target)
	}
	return v.Pointer(), nil
}
