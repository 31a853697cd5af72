package teb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joshuapare/winredir/pkg/types"
)

func TestCircularList(t *testing.T) {
	var head FlsBlock
	head.InitHead()
	assert.True(t, head.Empty())

	a := &FlsBlock{Slots: make([]uintptr, 4)}
	b := &FlsBlock{Slots: make([]uintptr, 4)}
	head.InsertTail(a)
	head.InsertTail(b)
	assert.False(t, head.Empty())
	assert.Same(t, a, head.Flink)
	assert.Same(t, b, head.Blink)
	assert.Same(t, b, a.Flink)
	assert.Same(t, &head, b.Flink)

	a.Unlink()
	assert.Same(t, b, head.Flink)
	assert.Same(t, &head, b.Blink)
	assert.Same(t, a, a.Flink, "unlinked entry is self-linked")

	b.Unlink()
	assert.True(t, head.Empty())

	var loose FlsBlock
	loose.Unlink() // never linked: no-op
}

func TestThreadLastError(t *testing.T) {
	th := NewThread()
	assert.Equal(t, types.ERROR_SUCCESS, th.LastError())
	th.SetLastError(types.ERROR_NOT_LOCKED)
	assert.Equal(t, types.ERROR_NOT_LOCKED, th.LastError())
}

func TestFiberSwitch(t *testing.T) {
	th := NewThread()
	primary := th.Fiber()
	assert.Same(t, primary, th.Primary())

	f, ok := th.ConvertToFiber(9)
	assert.True(t, ok)
	assert.Same(t, primary, f)
	assert.Equal(t, uintptr(9), f.Param)
	_, ok = th.ConvertToFiber(1)
	assert.False(t, ok)
	assert.True(t, th.IsFiber())

	other := NewFiber(5)
	assert.NotEqual(t, primary.ID, other.ID)
	prev := th.SwitchTo(other)
	assert.Same(t, primary, prev)
	assert.Same(t, other, th.Fiber())
}
