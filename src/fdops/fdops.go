// Package fdops defines the operations every open file description must
// support, independent of what kind of object backs it (inode, pipe,
// console, pending socket). File objects (fd.Fd_t, proc's per-process fd
// table entries, and vm's file-backed mappings) talk to the underlying
// object only through this interface, exactly as
// struct File dispatches file_read/file_write/etc. by file->type.
package fdops

import (
	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/mem"
)

// Userio_i abstracts a source or destination for a read/write transfer:
// either real user memory (vm.Userbuf_t/Useriovec_t) or a kernel-owned
// buffer standing in for one (vm.Fakeubuf_t), so the same Read/Write
// implementation serves syscalls and in-kernel callers alike.
type Userio_i interface {
	Uioread(dst []uint8) (int, defs.Err_t)
	Uiowrite(src []uint8) (int, defs.Err_t)
	Remain() int
	Totalsz() int
}

// Ready_t is a bitmask of poll/select readiness conditions.
type Ready_t int

const (
	R_READ  Ready_t = 1 << 0
	R_WRITE Ready_t = 1 << 1
	R_ERROR Ready_t = 1 << 2
	R_HUP   Ready_t = 1 << 3
)

// Pollmsg_t describes one waiter's interest in a pollable object: the
// conditions it wants to be woken for, and (for a blocking poll) the
// channel to signal when one becomes ready.
type Pollmsg_t struct {
	Events Ready_t
	Dowait bool
	Notif  chan bool
}

// Fdops_i is the operation set of an open file description. Every
// method takes no fd-table-specific state (offset, permission flags
// live in fd.Fd_t/proc's table) — only the object itself. This is
// deliberately smaller than the original kernel's equivalent interface:
// networking and sockets are out of scope, so no Accept/Bind/Connect/
// Sendmsg-style methods are carried.
type Fdops_i interface {
	Close() defs.Err_t
	Fstat(dst interface{}) defs.Err_t
	Read(dst Userio_i) (int, defs.Err_t)
	Write(src Userio_i) (int, defs.Err_t)
	Reopen() defs.Err_t
	Lseek(off int, whence int) (int, defs.Err_t)
	Mmapi(offset int, pages int, shared bool) (*mem.Pg_t, mem.Pa_t, defs.Err_t)
	Pollone(pm Pollmsg_t) (Ready_t, defs.Err_t)
}
