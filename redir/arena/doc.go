// Package arena provides the engine-owned memory region that backs every
// isolated allocation.
//
// # Overview
//
// The arena reserves one contiguous block of address space up front (mmap on
// Unix, VirtualAlloc on Windows) and carves allocations out of it with
// segregated free lists. Because every isolated allocation lives inside that
// single range, "is this pointer ours?" is a bounds check:
//
//	if a.Contains(ptr) {
//	    // serviced by the isolated heap
//	}
//
// The heap shim relies on this to tell its own heaps and blocks apart from
// the application's without keeping a membership set.
//
// # Block Layout
//
// Each allocation is preceded by a two-word header:
//
//	word 0: capacity | inUse bit
//	word 1: requested size
//
// The header is exactly one alignment unit (16 bytes on 64-bit targets, 8 on
// 32-bit), so every returned address carries the same alignment guarantee as
// the real HeapAlloc.
//
// # Size Classes
//
// Capacities are rounded up to Align << k for small blocks. Blocks larger
// than MaxClassSize are page-rounded and kept on a first-fit large list.
//
//	Class 0:  Align
//	Class 1:  2 * Align
//	...
//	Class N:  MaxClassSize
//	Large:    page multiples, first fit
//
// Freed blocks return to their class list and are never coalesced; the
// isolated libraries allocate from a small set of recurring sizes.
//
// # Concurrency
//
// All methods are safe for concurrent use; a single mutex guards the lists
// and headers.
package arena
