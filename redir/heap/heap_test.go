package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/winredir/native/sim"
	"github.com/joshuapare/winredir/pkg/types"
	"github.com/joshuapare/winredir/redir/arena"
	"github.com/joshuapare/winredir/redir/teb"
)

func newTestShim(t *testing.T, enabled bool) (*Shim, *sim.OS, *arena.Arena) {
	t.Helper()
	a, err := arena.New(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	os := sim.New(sim.Options{})
	s, err := New(a, os, enabled)
	require.NoError(t, err)
	return s, os, a
}

func TestClassification(t *testing.T) {
	s, os, _ := newTestShim(t, true)

	assert.True(t, s.Redirected(s.ProcessHeap()))
	assert.True(t, s.Redirected(os.GetProcessHeap()), "application process heap is serviced too")

	tok := s.Create(0, 0, 0)
	require.NotZero(t, tok)
	assert.True(t, s.Redirected(tok))
	assert.Zero(t, os.Calls("RtlCreateHeap"), "no real heap is created for a token")

	other := os.RtlCreateHeap(0, 0, 0)
	assert.False(t, s.Redirected(other))
}

func TestDisabledForwardsEverything(t *testing.T) {
	s, os, _ := newTestShim(t, false)

	assert.Equal(t, os.GetProcessHeap(), s.ProcessHeap())
	assert.False(t, s.Redirected(s.ProcessHeap()))

	h := s.Create(0, 0, 0)
	assert.Equal(t, 1, os.Calls("RtlCreateHeap"))
	p := s.Alloc(h, 0, 32)
	require.NotZero(t, p)
	assert.Equal(t, uintptr(32), os.RtlSizeHeap(h, 0, p))
	assert.True(t, s.Free(h, 0, p))
	assert.True(t, s.Destroy(h))
}

func TestAllocAlignmentAndZero(t *testing.T) {
	s, _, a := newTestShim(t, true)

	for _, n := range []uintptr{0, 1, 15, 16, 100, 4096} {
		p := s.Alloc(s.ProcessHeap(), types.HEAP_ZERO_MEMORY, n)
		require.NotZero(t, p, "size %d", n)
		assert.Zero(t, p%uintptr(arena.Align), "size %d", n)
		assert.True(t, a.Contains(p))
		assert.Equal(t, n, s.Size(s.ProcessHeap(), 0, p))

		b, err := a.Bytes(p, int(n))
		require.NoError(t, err)
		for i := range b {
			require.Zero(t, b[i])
		}
	}
}

func TestZeroMemoryAfterReuse(t *testing.T) {
	s, _, a := newTestShim(t, true)
	h := s.ProcessHeap()

	p := s.Alloc(h, 0, 64)
	b, err := a.Bytes(p, 64)
	require.NoError(t, err)
	for i := range b {
		b[i] = 0xCC
	}
	require.True(t, s.Free(h, 0, p))

	q := s.Alloc(h, types.HEAP_ZERO_MEMORY, 64)
	b, err = a.Bytes(q, 64)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 64), b)
}

func TestReAlloc(t *testing.T) {
	s, os, a := newTestShim(t, true)
	h := s.ProcessHeap()

	assert.Zero(t, s.ReAlloc(h, 0, 0, 16), "nil pointer fails")

	p := s.Alloc(h, 0, 8)
	b, _ := a.Bytes(p, 8)
	copy(b, "abcdefgh")

	q := s.ReAlloc(h, types.HEAP_ZERO_MEMORY, p, 200)
	require.NotZero(t, q)
	assert.Equal(t, uintptr(200), s.Size(h, 0, q))
	nb, _ := a.Bytes(q, 200)
	assert.Equal(t, "abcdefgh", string(nb[:8]))
	assert.Equal(t, make([]byte, 192), nb[8:])

	r := s.ReAlloc(h, 0, q, 4)
	nb, _ = a.Bytes(r, 4)
	assert.Equal(t, "abcd", string(nb))

	t.Run("in place", func(t *testing.T) {
		p := s.Alloc(h, 0, 20) // 32-byte class
		assert.Equal(t, p, s.ReAlloc(h, types.HEAP_REALLOC_IN_PLACE_ONLY, p, 30))
		assert.Zero(t, s.ReAlloc(h, types.HEAP_REALLOC_IN_PLACE_ONLY, p, 4096))
		assert.Equal(t, uintptr(30), s.Size(h, 0, p))
	})

	t.Run("foreign pointer on our heap is forwarded", func(t *testing.T) {
		native := os.RtlAllocateHeap(os.GetProcessHeap(), 0, 16)
		got := s.ReAlloc(os.GetProcessHeap(), 0, native, 32)
		require.NotZero(t, got)
		assert.Equal(t, 1, os.Calls("RtlReAllocateHeap"))
		assert.False(t, a.Contains(got))
	})
}

func TestIsolatedBlockInvisibleToRealHeap(t *testing.T) {
	s, os, _ := newTestShim(t, true)
	app := os.GetProcessHeap()

	p := s.Alloc(app, 0, 48)
	require.NotZero(t, p)
	assert.Zero(t, os.Calls("RtlAllocateHeap"))

	assert.Equal(t, ^uintptr(0), os.RtlSizeHeap(app, 0, p))
	assert.False(t, os.RtlValidateHeap(app, 0, p))

	require.True(t, s.Free(app, 0, p))
	assert.Zero(t, os.Calls("RtlFreeHeap"))
	assert.Equal(t, ^uintptr(0), os.RtlSizeHeap(app, 0, p))
	assert.False(t, os.RtlValidateHeap(app, 0, p))

	// The reverse holds too: a real block freed through the shim goes home.
	native := os.RtlAllocateHeap(app, 0, 16)
	assert.True(t, s.Free(app, 0, native))
	assert.Equal(t, 1, os.Calls("RtlFreeHeap"))
}

func TestNoOpsOnRedirectedHeaps(t *testing.T) {
	s, os, _ := newTestShim(t, true)
	h := s.Create(0, 0, 0)

	assert.True(t, s.Validate(h, 0, 0))
	assert.True(t, s.Lock(h))
	assert.True(t, s.Unlock(h))
	assert.Equal(t, uintptr(types.HeapCompactLargest), s.Compact(h, 0))
	var e types.HeapEntry
	assert.Equal(t, types.STATUS_NO_MORE_ENTRIES, s.Walk(h, &e))
	assert.Equal(t, types.STATUS_SUCCESS, s.SetInformation(os.GetProcessHeap(), types.HeapEnableTerminationOnCorruption, nil))
	assert.Zero(t, os.Calls("RtlSetHeapInformation"))
	assert.Zero(t, os.Calls("RtlLockHeap")+os.Calls("RtlUnlockHeap")+os.Calls("RtlValidateHeap"))
}

// Destroying a token with live blocks leaks them: only the token goes.
func TestDestroyLeaksOutstandingBlocks(t *testing.T) {
	s, _, a := newTestShim(t, true)
	h := s.Create(0, 0, 0)
	p := s.Alloc(h, 0, 64)
	before := a.Stats().Blocks

	require.True(t, s.Destroy(h))
	assert.Equal(t, before-1, a.Stats().Blocks)
	assert.True(t, a.IsBlock(p), "known leak: the block outlives its heap")
}

func TestFreeString(t *testing.T) {
	s, os, _ := newTestShim(t, true)

	str, ok := s.NewString([]byte("h\x00i\x00"), 2)
	require.True(t, ok)
	assert.Equal(t, uint16(4), str.Length)
	assert.Equal(t, uint16(6), str.MaximumLength)
	s.FreeString(&str)
	assert.Equal(t, types.CountedString{}, str)
	assert.Zero(t, os.Calls("RtlFreeString"))

	p := os.RtlAllocateHeap(os.GetProcessHeap(), 0, 8)
	native := types.CountedString{Length: 4, MaximumLength: 8, Buffer: p}
	s.FreeString(&native)
	assert.Equal(t, 1, os.Calls("RtlFreeString"))
}

func TestKernel32LastErrors(t *testing.T) {
	s, _, _ := newTestShim(t, true)
	th := teb.NewThread()
	h := s.GetProcessHeap(th)

	assert.Zero(t, s.HeapAlloc(th, h, 0, 1<<30))
	assert.Equal(t, types.ERROR_NOT_ENOUGH_MEMORY, th.LastError())

	assert.Zero(t, s.HeapReAlloc(th, h, 0, 0, 8))
	assert.Equal(t, types.ERROR_INVALID_PARAMETER, th.LastError())

	var e types.HeapEntry
	assert.False(t, s.HeapWalk(th, h, &e))
	assert.Equal(t, types.ERROR_NO_MORE_ITEMS, th.LastError())

	assert.Zero(t, s.HeapCreate(th, 0, 100, 10))
	assert.Equal(t, types.ERROR_INVALID_PARAMETER, th.LastError())

	assert.True(t, s.HeapFree(th, h, 0, 0))
	th.SetLastError(types.ERROR_SUCCESS)
	p := s.HeapAlloc(th, h, types.HEAP_ZERO_MEMORY, 10)
	require.NotZero(t, p)
	assert.Equal(t, uintptr(10), s.HeapSize(th, h, 0, p))
	assert.True(t, s.HeapFree(th, h, 0, p))
	assert.Equal(t, types.ERROR_SUCCESS, th.LastError())
}
