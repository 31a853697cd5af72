package strtab

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fnA() int { return 1 }
func fnB() int { return 2 }

func TestLookupRegistered(t *testing.T) {
	imports := []Import{
		{"HeapAlloc", fnA},
		{"HeapFree", fnB},
	}
	tab := New("kernel32", imports)
	assert.Equal(t, "kernel32", tab.Name())
	assert.Equal(t, 2, tab.Len())

	for _, imp := range imports {
		fn, ok := tab.Lookup(imp.Name)
		require.True(t, ok, imp.Name)
		assert.Equal(t, imp.Func.(func() int)(), fn.(func() int)())
	}

	_, ok := tab.Lookup("HeapWalkEx")
	assert.False(t, ok, "names never inserted are absent")
	_, ok = tab.Lookup("heapalloc")
	assert.False(t, ok, "lookup is case-sensitive")
}

func TestNilFuncSkipped(t *testing.T) {
	tab := New("x", []Import{{"A", nil}, {"B", fnB}})
	assert.Equal(t, []string{"B"}, tab.Names())
}

func TestRemove(t *testing.T) {
	tab := New("kernel32", []Import{{"FlsAlloc", fnA}, {"FlsFree", fnB}})
	assert.True(t, tab.Remove("FlsAlloc"))
	assert.False(t, tab.Remove("FlsAlloc"))
	_, ok := tab.Lookup("FlsAlloc")
	assert.False(t, ok)
	assert.Equal(t, []string{"FlsFree"}, tab.Names())
}

func TestSetPrecedence(t *testing.T) {
	win7 := New("ntdll-win7", []Import{{"LdrSetDllManifestProber", fnA}})
	general := New("ntdll", []Import{{"LdrSetDllManifestProber", fnB}, {"NtOpenFile", fnB}})
	set := NewSet(win7, nil, general)
	require.Len(t, set, 2)

	fn, ok := set.Lookup("LdrSetDllManifestProber")
	require.True(t, ok)
	assert.Equal(t, 1, fn.(func() int)())

	fn, ok = set.Lookup("NtOpenFile")
	require.True(t, ok)
	assert.Equal(t, 2, fn.(func() int)())

	assert.True(t, set.Remove("LdrSetDllManifestProber"))
	_, ok = set.Lookup("LdrSetDllManifestProber")
	assert.False(t, ok)
}

func TestNilTableLookup(t *testing.T) {
	var tab *Table
	_, ok := tab.Lookup("x")
	assert.False(t, ok)
}

func TestConcurrentReaders(t *testing.T) {
	imports := make([]Import, 100)
	for i := range imports {
		imports[i] = Import{fmt.Sprintf("Fn%d", i), fnA}
	}
	tab := New("t", imports)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				_, ok := tab.Lookup(fmt.Sprintf("Fn%d", (i+g)%100))
				assert.True(t, ok)
			}
		}(g)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		tab.Remove("NotThere")
	}()
	wg.Wait()
}
