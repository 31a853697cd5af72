// Package sim is an in-memory NT kernel that satisfies native.OS.
//
// It models the subset of ntdll and the loader the redirection layer
// forwards to: heaps backed by Go memory, a drive-letter file system, named
// pipes, a registry tree, processes, threads, tokens, events, sections and a
// module list. Handles are allocated from a single table the way the kernel
// does, so leak checks can count them.
//
// Every exported method takes the OS lock; the test hooks run outside it.
package sim

import (
	"sync"

	"github.com/joshuapare/winredir/native"
	"github.com/joshuapare/winredir/pkg/types"
)

var _ native.OS = (*OS)(nil)

const (
	firstHandle = 0x100
	handleStep  = 4

	defaultPID = 0x1000
	defaultTID = 0x1004

	defaultSID = "S-1-5-21-1000"
)

// Options configures a new simulated OS. Zero values select defaults.
type Options struct {
	ProcessID   uintptr
	ThreadID    uintptr
	UserSID     string
	ExePath     string
	SearchPaths []string
}

// OS is the simulated kernel.
type OS struct {
	mu sync.Mutex

	handles    map[types.Handle]*handleEntry
	nextHandle uintptr

	heaps       map[types.Handle]*heap
	processHeap types.Handle
	nextHeap    uintptr

	drives map[string]*fsNode
	pipes  map[string]*pipe

	registry *regKey

	pid       uintptr
	tid       uintptr
	userSID   string
	processes map[uintptr]*process
	threads   map[uintptr]*thread
	views     map[uintptr][]byte

	exe         *module
	modules     []*module
	nextBase    uintptr
	images      map[string]image
	searchPaths []string

	calls map[string]int

	// OnQueryValue runs after every NtQueryValueKey with the key path and
	// value name, outside the OS lock. Tests use it to change a value
	// between a caller's size probe and its data read.
	OnQueryValue func(path, name string)
}

type handleEntry struct {
	obj    any
	access uint32
}

// New returns a simulated OS with a process heap, a C: drive, the standard
// registry roots, and the current process and thread registered.
func New(opts Options) *OS {
	s := &OS{
		handles:    make(map[types.Handle]*handleEntry),
		nextHandle: firstHandle - handleStep,
		heaps:      make(map[types.Handle]*heap),
		nextHeap:   heapBase,
		drives:     make(map[string]*fsNode),
		pipes:      make(map[string]*pipe),
		processes:  make(map[uintptr]*process),
		threads:    make(map[uintptr]*thread),
		views:      make(map[uintptr][]byte),
		nextBase:   moduleBase,
		images:     make(map[string]image),
		calls:      make(map[string]int),
		pid:        opts.ProcessID,
		tid:        opts.ThreadID,
		userSID:    opts.UserSID,
	}
	if s.pid == 0 {
		s.pid = defaultPID
	}
	if s.tid == 0 {
		s.tid = defaultTID
	}
	if s.userSID == "" {
		s.userSID = defaultSID
	}
	exe := opts.ExePath
	if exe == "" {
		exe = `C:\app\app.exe`
	}
	s.searchPaths = append([]string(nil), opts.SearchPaths...)
	if len(s.searchPaths) == 0 {
		s.searchPaths = []string{`C:\Windows\System32`}
	}

	s.processHeap = s.newHeapLocked()
	s.drives["c:"] = newDir("C:", nil)
	s.registry = newRegistry(s.userSID)
	s.processes[s.pid] = newProcess(s.pid, exe, s.userSID)
	s.threads[s.tid] = newThread(s.tid, s.pid)
	s.exe = s.addModuleLocked(exe, nil)
	return s
}

// Calls reports how many times the named native entry point ran.
func (s *OS) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// OpenHandles reports the number of live entries in the handle table.
func (s *OS) OpenHandles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *OS) count(name string) { s.calls[name]++ }

func (s *OS) insertLocked(obj any, access uint32) types.Handle {
	s.nextHandle += handleStep
	h := types.Handle(s.nextHandle)
	s.handles[h] = &handleEntry{obj: obj, access: access}
	if r, ok := obj.(refCounted); ok {
		r.ref()
	}
	return h
}

// objectLocked resolves h, including the current process and thread
// pseudo-handles.
func (s *OS) objectLocked(h types.Handle) (*handleEntry, bool) {
	switch h {
	case types.CurrentProcess:
		return &handleEntry{obj: &processObject{p: s.processes[s.pid]}, access: types.PROCESS_ALL_ACCESS}, true
	case types.CurrentThread:
		return &handleEntry{obj: &threadObject{t: s.threads[s.currentTIDLocked()]}, access: threadAllAccess}, true
	}
	e, ok := s.handles[h]
	return e, ok
}

func (s *OS) closeLocked(h types.Handle) types.NTStatus {
	e, ok := s.handles[h]
	if !ok {
		return types.STATUS_INVALID_HANDLE
	}
	delete(s.handles, h)
	if r, ok := e.obj.(refCounted); ok {
		r.unref(s)
	}
	return types.STATUS_SUCCESS
}

// refCounted objects track how many handles reference them so the last
// close can run object-specific cleanup.
type refCounted interface {
	ref()
	unref(s *OS)
}

// NtClose closes a handle.
func (s *OS) NtClose(h types.Handle) types.NTStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtClose")
	return s.closeLocked(h)
}

// NtDuplicateObject duplicates src within the current process.
func (s *OS) NtDuplicateObject(srcProcess, src, dstProcess types.Handle, access, attributes, options uint32) (types.Handle, types.NTStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtDuplicateObject")
	if !s.isCurrentProcessLocked(srcProcess) || !s.isCurrentProcessLocked(dstProcess) {
		return 0, types.STATUS_INVALID_HANDLE
	}
	e, ok := s.objectLocked(src)
	if !ok {
		return 0, types.STATUS_INVALID_HANDLE
	}
	if options&types.DUPLICATE_SAME_ACCESS != 0 {
		access = e.access
	}
	dup := s.insertLocked(e.obj, access)
	if options&types.DUPLICATE_CLOSE_SOURCE != 0 {
		s.closeLocked(src)
	}
	return dup, types.STATUS_SUCCESS
}

func (s *OS) isCurrentProcessLocked(h types.Handle) bool {
	if h == types.CurrentProcess {
		return true
	}
	e, ok := s.handles[h]
	if !ok {
		return false
	}
	po, ok := e.obj.(*processObject)
	return ok && po.p.pid == s.pid
}
