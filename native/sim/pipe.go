package sim

import (
	"bytes"
	"strings"

	"github.com/joshuapare/winredir/pkg/types"
)

type pipe struct {
	name     string
	toServer bytes.Buffer
	toClient bytes.Buffer
	servers  int
	clients  int
}

type pipeEnd struct {
	p       *pipe
	server  bool
	handles int
}

func (e *pipeEnd) ref() {
	if e.handles == 0 {
		if e.server {
			e.p.servers++
		} else {
			e.p.clients++
		}
	}
	e.handles++
}

func (e *pipeEnd) unref(s *OS) {
	e.handles--
	if e.handles > 0 {
		return
	}
	if e.server {
		e.p.servers--
		if e.p.servers == 0 {
			delete(s.pipes, strings.ToLower(e.p.name))
		}
	} else {
		e.p.clients--
	}
}

// NtCreateNamedPipeFile creates the server end of a named pipe under
// \Device\NamedPipe\.
func (s *OS) NtCreateNamedPipeFile(access uint32, oa *types.ObjectAttributes, iosb *types.IoStatusBlock, share, disposition, options, quota uint32, timeout int64) (types.Handle, types.NTStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("NtCreateNamedPipeFile")
	h, info, st := s.createPipeLocked(access, oa, disposition)
	if iosb != nil {
		iosb.Status = st
		iosb.Information = info
	}
	return h, st
}

func (s *OS) createPipeLocked(access uint32, oa *types.ObjectAttributes, disposition uint32) (types.Handle, uintptr, types.NTStatus) {
	if !isPipeName(oa) {
		return 0, 0, types.STATUS_OBJECT_NAME_INVALID
	}
	key := strings.ToLower(oa.ObjectName)
	p, exists := s.pipes[key]
	var info uintptr = types.FILE_OPENED
	switch {
	case exists && disposition == types.FILE_CREATE:
		return 0, 0, types.STATUS_OBJECT_NAME_COLLISION
	case !exists && disposition == types.FILE_OPEN:
		return 0, 0, types.STATUS_OBJECT_NAME_NOT_FOUND
	case !exists:
		p = &pipe{name: oa.ObjectName}
		s.pipes[key] = p
		info = types.FILE_CREATED
	}
	return s.insertLocked(&pipeEnd{p: p, server: true}, access), info, types.STATUS_SUCCESS
}

func (s *OS) openPipeClientLocked(access uint32, oa *types.ObjectAttributes, disposition uint32) (types.Handle, uintptr, types.NTStatus) {
	p, ok := s.pipes[strings.ToLower(oa.ObjectName)]
	if !ok {
		return 0, 0, types.STATUS_OBJECT_NAME_NOT_FOUND
	}
	if disposition != types.FILE_OPEN && disposition != types.FILE_OPEN_IF {
		return 0, 0, types.STATUS_ACCESS_DENIED
	}
	return s.insertLocked(&pipeEnd{p: p}, access), types.FILE_OPENED, types.STATUS_SUCCESS
}

// WriteFile appends data to a file at the handle's position, or sends it
// to the other end of a pipe.
func (s *OS) WriteFile(h types.Handle, data []byte) types.NTStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.handles[h]
	if !ok {
		return types.STATUS_INVALID_HANDLE
	}
	switch o := e.obj.(type) {
	case *pipeEnd:
		if o.server {
			if o.p.clients == 0 {
				return types.STATUS_PIPE_BROKEN
			}
			o.p.toClient.Write(data)
		} else {
			if o.p.servers == 0 {
				return types.STATUS_PIPE_BROKEN
			}
			o.p.toServer.Write(data)
		}
	case *fileObject:
		if o.node.dir {
			return types.STATUS_INVALID_DEVICE_REQUEST
		}
		if e.access&writeRights == 0 {
			return types.STATUS_ACCESS_DENIED
		}
		n := o.node
		end := o.pos + len(data)
		if end > len(n.data) {
			n.data = append(n.data, make([]byte, end-len(n.data))...)
		}
		copy(n.data[o.pos:], data)
		o.pos = end
	default:
		return types.STATUS_OBJECT_TYPE_MISMATCH
	}
	return types.STATUS_SUCCESS
}

// ReadFile reads up to n bytes. An empty pipe whose writer is gone reports
// STATUS_PIPE_BROKEN; a file at its end reports STATUS_END_OF_FILE.
func (s *OS) ReadFile(h types.Handle, n int) ([]byte, types.NTStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.handles[h]
	if !ok {
		return nil, types.STATUS_INVALID_HANDLE
	}
	switch o := e.obj.(type) {
	case *pipeEnd:
		src, writers := &o.p.toServer, o.p.clients
		if !o.server {
			src, writers = &o.p.toClient, o.p.servers
		}
		if src.Len() == 0 && writers == 0 {
			return nil, types.STATUS_PIPE_BROKEN
		}
		return bytes.Clone(src.Next(n)), types.STATUS_SUCCESS
	case *fileObject:
		if o.node.dir {
			return nil, types.STATUS_INVALID_DEVICE_REQUEST
		}
		data := o.node.data
		if o.pos >= len(data) {
			return nil, types.STATUS_END_OF_FILE
		}
		end := min(o.pos+n, len(data))
		out := bytes.Clone(data[o.pos:end])
		o.pos = end
		return out, types.STATUS_SUCCESS
	}
	return nil, types.STATUS_OBJECT_TYPE_MISMATCH
}
