// Package types defines the Windows ABI vocabulary shared by every redirection
// shim: handles, NTSTATUS and Win32 error codes, flag sets, and the mirrors of
// the OS structures (critical sections, object attributes, find data) that
// cross the boundary between the isolated library copy and the real OS.
//
// Numeric values match the Windows SDK definitions so that an application
// talking to a redirected entry point observes exactly the codes the real
// entry point would produce.
//
// Design goals:
//   - Plain values, no behavior beyond formatting and classification.
//   - Pointer-sized quantities are uintptr so layout tracks the target width.
//   - Structures only carry the fields the shims read or write.
//
// This package has no dependencies beyond the standard library.
package types
