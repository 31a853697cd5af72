package stub

import (
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/winredir/redir/arena"
)

func TestAMD64Encoding(t *testing.T) {
	var enc AMD64

	b, err := enc.Encode(MOV, R(RAX), Imm(0x1122334455667788))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x48, 0xB8, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}, b)

	b, err = enc.Encode(MOV, R(R11), Imm(1))
	require.NoError(t, err)
	assert.Equal(t, byte(0x49), b[0])
	assert.Equal(t, byte(0xBB), b[1])

	b, err = enc.Encode(JMP, R(RAX))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xE0}, b)

	b, err = enc.Encode(JMP, R(R11))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x41, 0xFF, 0xE3}, b)

	_, err = enc.Encode(JMP, Imm(5))
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = enc.Encode(MOV, R(RAX))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func replacement() uint32 { return 7 }

func TestEmitAndResolve(t *testing.T) {
	a, err := arena.New(64 << 10)
	require.NoError(t, err)
	defer a.Close()

	tab := NewTable(a, nil)
	addr, err := tab.Emit("kernel32!FlsAlloc", replacement)
	require.NoError(t, err)
	assert.True(t, a.Contains(addr))

	again, err := tab.Emit("kernel32!FlsAlloc", replacement)
	require.NoError(t, err)
	assert.Equal(t, addr, again, "emission is memoized by key")
	assert.Equal(t, 1, tab.Len())

	code, err := a.Bytes(addr, SlotSize)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x48, 0xB8}, code[:2])
	assert.Equal(t, uint64(reflect.ValueOf(replacement).Pointer()), binary.LittleEndian.Uint64(code[2:10]))
	assert.Equal(t, []byte{0xFF, 0xE0}, code[10:12])
	assert.Equal(t, byte(0xCC), code[15])

	fn, ok := tab.Resolve(addr)
	require.True(t, ok)
	assert.Equal(t, uint32(7), fn.(func() uint32)())

	got, ok := tab.Lookup("kernel32!FlsAlloc")
	assert.True(t, ok)
	assert.Equal(t, addr, got)

	_, ok = tab.Resolve(addr + 1)
	assert.False(t, ok)
}

func TestEmitRejectsNonFunc(t *testing.T) {
	a, err := arena.New(64 << 10)
	require.NoError(t, err)
	defer a.Close()

	tab := NewTable(a, AMD64{})
	_, err = tab.Emit("x", 42)
	assert.ErrorIs(t, err, ErrNotFunc)
	var nilFn func()
	_, err = tab.Emit("y", nilFn)
	assert.ErrorIs(t, err, ErrNotFunc)
}
