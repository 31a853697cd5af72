package sim

import (
	"math"
	"time"
	"unsafe"

	"github.com/joshuapare/winredir/pkg/types"
)

const threadAllAccess = 0x1FFFFF

type process struct {
	pid    uintptr
	image  string
	sid    string
	exited chan struct{}
}

func newProcess(pid uintptr, image, sid string) *process {
	return &process{pid: pid, image: image, sid: sid, exited: make(chan struct{})}
}

type thread struct {
	tid    uintptr
	pid    uintptr
	token  *token
	hidden bool
	exited chan struct{}
}

func newThread(tid, pid uintptr) *thread {
	return &thread{tid: tid, pid: pid, exited: make(chan struct{})}
}

type token struct {
	sid string
}

type (
	processObject struct{ p *process }
	threadObject  struct{ t *thread }
	tokenObject   struct{ t *token }
	sectionObject struct{ data []byte }
)

// event is a kernel event. A manual-reset event closes done when set; an
// auto-reset event posts one token per set.
type event struct {
	manual bool
	done   chan struct{}
	tokens chan struct{}
}

func (s *OS) currentTIDLocked() uintptr { return s.tid }

// CurrentProcessID returns the simulated process id.
func (s *OS) CurrentProcessID() uintptr { return s.pid }

// CurrentThreadID returns the id of the thread the simulation treats as
// current.
func (s *OS) CurrentThreadID() uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tid
}

// AddProcess registers another process.
func (s *OS) AddProcess(pid uintptr, image string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processes[pid] = newProcess(pid, image, s.userSID)
}

// ExitProcess signals every wait on the process.
func (s *OS) ExitProcess(pid uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.processes[pid]; ok {
		select {
		case <-p.exited:
		default:
			close(p.exited)
		}
	}
}

// AddThread registers a thread of pid.
func (s *OS) AddThread(tid, pid uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[tid] = newThread(tid, pid)
}

// SetCurrentThread switches the thread the simulation treats as current.
func (s *OS) SetCurrentThread(tid uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[tid]; !ok {
		s.threads[tid] = newThread(tid, s.pid)
	}
	s.tid = tid
}

// Impersonate gives a thread an impersonation token for sid.
func (s *OS) Impersonate(tid uintptr, sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[tid]; ok {
		t.token = &token{sid: sid}
	}
}

// ThreadHidden reports whether ThreadHideFromDebugger was applied.
func (s *OS) ThreadHidden(tid uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[tid]
	return ok && t.hidden
}

func (s *OS) NtOpenProcess(access uint32, oa *types.ObjectAttributes, cid *types.ClientID) (types.Handle, types.NTStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtOpenProcess")
	if cid == nil {
		return 0, types.STATUS_INVALID_PARAMETER_MIX
	}
	p, ok := s.processes[cid.UniqueProcess]
	if !ok {
		return 0, types.STATUS_INVALID_CID
	}
	return s.insertLocked(&processObject{p: p}, access), types.STATUS_SUCCESS
}

func (s *OS) NtOpenThread(access uint32, oa *types.ObjectAttributes, cid *types.ClientID) (types.Handle, types.NTStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtOpenThread")
	if cid == nil {
		return 0, types.STATUS_INVALID_PARAMETER_MIX
	}
	t, ok := s.threads[cid.UniqueThread]
	if !ok || (cid.UniqueProcess != 0 && cid.UniqueProcess != t.pid) {
		return 0, types.STATUS_INVALID_CID
	}
	return s.insertLocked(&threadObject{t: t}, access), types.STATUS_SUCCESS
}

func (s *OS) NtOpenProcessTokenEx(process types.Handle, access, attributes uint32) (types.Handle, types.NTStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtOpenProcessTokenEx")
	e, ok := s.objectLocked(process)
	if !ok {
		return 0, types.STATUS_INVALID_HANDLE
	}
	po, ok := e.obj.(*processObject)
	if !ok {
		return 0, types.STATUS_OBJECT_TYPE_MISMATCH
	}
	return s.insertLocked(&tokenObject{t: &token{sid: po.p.sid}}, access), types.STATUS_SUCCESS
}

func (s *OS) NtOpenThreadTokenEx(thread types.Handle, access uint32, openAsSelf bool, attributes uint32) (types.Handle, types.NTStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtOpenThreadTokenEx")
	e, ok := s.objectLocked(thread)
	if !ok {
		return 0, types.STATUS_INVALID_HANDLE
	}
	to, ok := e.obj.(*threadObject)
	if !ok {
		return 0, types.STATUS_OBJECT_TYPE_MISMATCH
	}
	if to.t.token == nil {
		return 0, types.STATUS_NO_TOKEN
	}
	return s.insertLocked(&tokenObject{t: to.t.token}, access), types.STATUS_SUCCESS
}

func (s *OS) NtQueryTokenUser(tok types.Handle) (string, types.NTStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtQueryTokenUser")
	e, ok := s.handles[tok]
	if !ok {
		return "", types.STATUS_INVALID_HANDLE
	}
	to, ok := e.obj.(*tokenObject)
	if !ok {
		return "", types.STATUS_OBJECT_TYPE_MISMATCH
	}
	return to.t.sid, types.STATUS_SUCCESS
}

func (s *OS) NtSetInformationThread(th types.Handle, class types.ThreadInformationClass, info []byte) types.NTStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtSetInformationThread")
	e, ok := s.objectLocked(th)
	if !ok {
		return types.STATUS_INVALID_HANDLE
	}
	to, ok := e.obj.(*threadObject)
	if !ok {
		return types.STATUS_OBJECT_TYPE_MISMATCH
	}
	switch class {
	case types.ThreadHideFromDebugger:
		if len(info) != 0 {
			return types.STATUS_INFO_LENGTH_MISMATCH
		}
		to.t.hidden = true
		return types.STATUS_SUCCESS
	}
	return types.STATUS_INVALID_INFO_CLASS
}

// CreateSection returns a handle to a section holding a copy of data.
func (s *OS) CreateSection(data []byte) types.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(&sectionObject{data: append([]byte(nil), data...)}, types.STANDARD_RIGHTS_REQUIRED)
}

// NtMapViewOfSection maps a private copy of the section. A zero viewSize
// maps the whole section; the base hint is ignored.
func (s *OS) NtMapViewOfSection(section, process types.Handle, base, viewSize uintptr, protect uint32) (uintptr, uintptr, types.NTStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtMapViewOfSection")
	if !s.isCurrentProcessLocked(process) {
		return 0, 0, types.STATUS_INVALID_HANDLE
	}
	e, ok := s.handles[section]
	if !ok {
		return 0, 0, types.STATUS_INVALID_HANDLE
	}
	so, ok := e.obj.(*sectionObject)
	if !ok {
		return 0, 0, types.STATUS_OBJECT_TYPE_MISMATCH
	}
	size := uintptr(len(so.data))
	if viewSize == 0 {
		viewSize = size
	}
	if viewSize > size || viewSize == 0 {
		return 0, 0, types.STATUS_INVALID_PARAMETER
	}
	view := make([]byte, viewSize)
	copy(view, so.data)
	addr := uintptr(unsafe.Pointer(&view[0]))
	s.views[addr] = view
	return addr, viewSize, types.STATUS_SUCCESS
}

func (s *OS) NtUnmapViewOfSection(process types.Handle, base uintptr) types.NTStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtUnmapViewOfSection")
	if !s.isCurrentProcessLocked(process) {
		return types.STATUS_INVALID_HANDLE
	}
	if _, ok := s.views[base]; !ok {
		return types.STATUS_NOT_MAPPED_VIEW
	}
	delete(s.views, base)
	return types.STATUS_SUCCESS
}

// CreateEvent returns a handle to a new event.
func (s *OS) CreateEvent(manual, initial bool) types.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := &event{manual: manual, done: make(chan struct{}), tokens: make(chan struct{}, 1)}
	if initial {
		ev.setLocked()
	}
	return s.insertLocked(ev, types.SYNCHRONIZE)
}

func (ev *event) setLocked() {
	if ev.manual {
		select {
		case <-ev.done:
		default:
			close(ev.done)
		}
		return
	}
	select {
	case ev.tokens <- struct{}{}:
	default:
	}
}

// SetEvent signals an event.
func (s *OS) SetEvent(h types.Handle) types.NTStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.handles[h]
	if !ok {
		return types.STATUS_INVALID_HANDLE
	}
	ev, ok := e.obj.(*event)
	if !ok {
		return types.STATUS_OBJECT_TYPE_MISMATCH
	}
	ev.setLocked()
	return types.STATUS_SUCCESS
}

// NtWaitForSingleObject waits on events, processes and threads. Other
// objects are always signaled.
func (s *OS) NtWaitForSingleObject(h types.Handle, alertable bool, timeout *int64) types.NTStatus {
	s.mu.Lock()
	s.count("NtWaitForSingleObject")
	e, ok := s.objectLocked(h)
	s.mu.Unlock()
	if !ok {
		return types.STATUS_INVALID_HANDLE
	}
	var ch <-chan struct{}
	switch o := e.obj.(type) {
	case *event:
		ch = o.done
		if !o.manual {
			ch = o.tokens
		}
	case *processObject:
		ch = o.p.exited
	case *threadObject:
		ch = o.t.exited
	default:
		return types.STATUS_WAIT_0
	}

	if timeout == nil {
		<-ch
		return types.STATUS_WAIT_0
	}
	d := waitDuration(*timeout)
	if d <= 0 {
		select {
		case <-ch:
			return types.STATUS_WAIT_0
		default:
			return types.STATUS_TIMEOUT
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
		return types.STATUS_WAIT_0
	case <-t.C:
		return types.STATUS_TIMEOUT
	}
}

// waitDuration converts an NT timeout: negative values are relative 100ns
// intervals, positive values absolute FILETIMEs, and zero is a poll. An
// absolute time in the past is a poll too.
func waitDuration(t int64) time.Duration {
	switch {
	case t == 0:
		return 0
	case t == math.MinInt64:
		return math.MaxInt64
	case t < 0:
		return ticks(-t)
	}
	now := types.Filetime(time.Now())
	if t <= now {
		return 0
	}
	return ticks(t - now)
}

// ticks converts a non-negative count of 100ns intervals, saturating.
func ticks(n int64) time.Duration {
	if n > math.MaxInt64/100 {
		return math.MaxInt64
	}
	return time.Duration(n) * 100
}

// RtlDeleteCriticalSection releases a critical section initialized by the
// OS: its semaphore handle is closed and the structure reset.
func (s *OS) RtlDeleteCriticalSection(cs *types.CriticalSection) types.NTStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("RtlDeleteCriticalSection")
	if cs == nil {
		return types.STATUS_INVALID_PARAMETER
	}
	if cs.LockSemaphore != 0 {
		s.closeLocked(cs.LockSemaphore)
	}
	*cs = types.CriticalSection{LockCount: -1}
	return types.STATUS_SUCCESS
}
