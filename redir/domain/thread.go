package domain

import (
	"github.com/joshuapare/winredir/redir/teb"
)

// Thread returns the domain's view of OS thread id, creating it on first
// use. It returns nil after Close.
func (d *Domain) Thread(id uintptr) *teb.Thread {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	if t, ok := d.threads[id]; ok {
		return t
	}
	t := teb.NewThread()
	t.ID = id
	d.threads[id] = t
	return t
}

// CurrentThread is Thread for the OS thread making the call.
func (d *Domain) CurrentThread() *teb.Thread {
	return d.Thread(d.os.CurrentThreadID())
}

// ThreadExit runs the FLS callbacks of the fiber t is running and forgets
// t.
func (d *Domain) ThreadExit(t *teb.Thread) {
	d.mu.Lock()
	if d.threads[t.ID] == t {
		delete(d.threads, t.ID)
	}
	d.mu.Unlock()
	d.exitFibers(t)
}

func (d *Domain) exitFibers(t *teb.Thread) {
	f := t.Fiber()
	if f.FlsData != nil {
		d.Fls.ProcessFiberExit(f, f.FlsData)
	}
	if p := t.Primary(); p != f && p.FlsData != nil {
		d.Fls.ProcessFiberExit(p, p.FlsData)
	}
}

// CreateFiber returns a new fiber. Its FLS block is created on its first
// FlsSetValue.
func (d *Domain) CreateFiber(param uintptr) *teb.Fiber {
	return teb.NewFiber(param)
}

// ConvertThreadToFiber marks t fiber-aware and returns its primary fiber,
// or nil when t already was.
func (d *Domain) ConvertThreadToFiber(t *teb.Thread, param uintptr) *teb.Fiber {
	f, ok := t.ConvertToFiber(param)
	if !ok {
		return nil
	}
	return f
}

// SwitchToFiber makes f the running fiber of t.
func (d *Domain) SwitchToFiber(t *teb.Thread, f *teb.Fiber) {
	t.SwitchTo(f)
}

// DeleteFiber runs f's FLS callbacks and releases its block. Deleting the
// running fiber also ends the thread, as it does on Windows.
func (d *Domain) DeleteFiber(t *teb.Thread, f *teb.Fiber) {
	if t != nil && t.Fiber() == f {
		d.ThreadExit(t)
		return
	}
	if f.FlsData != nil {
		d.Fls.ProcessFiberExit(f, f.FlsData)
	}
}
