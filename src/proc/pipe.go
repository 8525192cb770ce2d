package proc

import (
	"sync"

	"github.com/aglotoff/codename-argentum/src/circbuf"
	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/fd"
	"github.com/aglotoff/codename-argentum/src/fdops"
	"github.com/aglotoff/codename-argentum/src/limits"
	"github.com/aglotoff/codename-argentum/src/mem"
	"github.com/aglotoff/codename-argentum/src/waitqueue"
)

// pipeBufsz is the capacity of one pipe's backing circbuf.Circbuf_t,
// matching a typical single-page pipe buffer.
const pipeBufsz = mem.PGSIZE

// Pipe_t is the shared state of one pipe: a circbuf.Circbuf_t guarded
// by mu, with readers and writers blocking on rwait/wwait the way
// struct Pipe blocks in pipe_read/pipe_write. nread/
// nwrit count how many of each end remain open, so the last Close on a
// side can wake the other end with EOF/EPIPE instead of leaving it
// blocked forever.
type Pipe_t struct {
	mu    sync.Mutex
	buf   circbuf.Circbuf_t
	rwait waitqueue.WaitQueue_t
	wwait waitqueue.WaitQueue_t
	nread int
	nwrit int
}

// pipeEnd adapts one direction of a Pipe_t to fdops.Fdops_i: reading
// is valid only on the read end, writing only on the write end,
// mirroring how a kernel hands out two distinct struct File
// objects (one R_READ-only, one R_WRITE-only) backed by the same pipe.
type pipeEnd struct {
	p       *Pipe_t
	reading bool
}

// MakePipe allocates a new pipe and returns its read and write ends as
// a pair of *fd.Fd_t, ready to install into a process's fd table —
// the Go analogue of sys_pipe/pipe_alloc.
func MakePipe() (*fd.Fd_t, *fd.Fd_t, defs.Err_t) {
	if !limits.Syslimit.Pipes.Taken(1) {
		return nil, nil, -defs.ENOMEM
	}
	p := &Pipe_t{nread: 1, nwrit: 1}
	if err := p.buf.Cb_init(pipeBufsz, mem.Physmem); err != 0 {
		limits.Syslimit.Pipes.Given(1)
		return nil, nil, err
	}

	rend := &pipeEnd{p: p, reading: true}
	wend := &pipeEnd{p: p, reading: false}
	rfd := &fd.Fd_t{Fops: rend, Perms: fd.FD_READ}
	wfd := &fd.Fd_t{Fops: wend, Perms: fd.FD_WRITE}
	return rfd, wfd, 0
}

func (e *pipeEnd) Close() defs.Err_t {
	p := e.p
	p.mu.Lock()
	if e.reading {
		p.nread--
	} else {
		p.nwrit--
	}
	closedBoth := p.nread == 0 && p.nwrit == 0
	p.mu.Unlock()

	p.rwait.Wakeup()
	p.wwait.Wakeup()
	if closedBoth {
		p.buf.Cb_release()
		limits.Syslimit.Pipes.Given(1)
	}
	return 0
}

func (e *pipeEnd) Fstat(dst interface{}) defs.Err_t {
	return -defs.ENOSYS
}

func (e *pipeEnd) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if !e.reading {
		return 0, -defs.EINVAL
	}
	p := e.p
	for {
		p.mu.Lock()
		if !p.buf.Empty() {
			n, err := p.buf.Copyout(dst)
			writerGone := p.nwrit == 0
			p.mu.Unlock()
			p.wwait.Wakeup()
			_ = writerGone
			return n, err
		}
		if p.nwrit == 0 {
			p.mu.Unlock()
			return 0, 0
		}
		p.mu.Unlock()
		p.rwait.Sleep(noopLocker{})
	}
}

func (e *pipeEnd) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if e.reading {
		return 0, -defs.EINVAL
	}
	p := e.p
	total := 0
	for src.Remain() > 0 {
		p.mu.Lock()
		if p.nread == 0 {
			p.mu.Unlock()
			return total, -defs.EPIPE
		}
		if p.buf.Full() {
			p.mu.Unlock()
			p.wwait.Sleep(noopLocker{})
			continue
		}
		n, err := p.buf.Copyin(src)
		p.mu.Unlock()
		p.rwait.Wakeup()
		if err != 0 {
			return total, err
		}
		total += n
		if n == 0 {
			break
		}
	}
	return total, 0
}

func (e *pipeEnd) Reopen() defs.Err_t {
	p := e.p
	p.mu.Lock()
	if e.reading {
		p.nread++
	} else {
		p.nwrit++
	}
	p.mu.Unlock()
	return 0
}

func (e *pipeEnd) Lseek(off int, whence int) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}

func (e *pipeEnd) Mmapi(offset int, pages int, shared bool) (*mem.Pg_t, mem.Pa_t, defs.Err_t) {
	return nil, 0, -defs.ENOSYS
}

func (e *pipeEnd) Pollone(pm fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t) {
	p := e.p
	p.mu.Lock()
	defer p.mu.Unlock()
	var r fdops.Ready_t
	if e.reading && (!p.buf.Empty() || p.nwrit == 0) {
		r |= fdops.R_READ
	}
	if !e.reading && (!p.buf.Full() || p.nread == 0) {
		r |= fdops.R_WRITE
	}
	return r, 0
}
