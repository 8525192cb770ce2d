// Package proc implements the process abstraction: Process_t (pid,
// address space, open files, credentials, signal state), the global
// pid table, and the fork/exec/wait/exit/signal operations built on
// top of sched.Thread_t and vm.Vm_t. Grounded on
// kernel/include/kernel/process.h (struct Process) and the process_*/
// signal_* function surface it declares.
package proc

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/goroutineid"

	"github.com/aglotoff/codename-argentum/src/accnt"
	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/fd"
	"github.com/aglotoff/codename-argentum/src/fs"
	"github.com/aglotoff/codename-argentum/src/hashtable"
	"github.com/aglotoff/codename-argentum/src/sched"
	"github.com/aglotoff/codename-argentum/src/spinlock"
	"github.com/aglotoff/codename-argentum/src/tinfo"
	"github.com/aglotoff/codename-argentum/src/vm"
	"github.com/aglotoff/codename-argentum/src/waitqueue"
)

// Sigaction_t mirrors struct sigaction: the handler address (0 means
// SIG_DFL) and the mask to install while the handler runs.
type Sigaction_t struct {
	Handler uintptr
	Mask    uint32
	Flags   int
}

// Pending_t is one queued signal instance, struct
// Signal (kernel/include/kernel/process.h) minus the siginfo_t detail
// this kernel has no use for.
type Pending_t struct {
	Signo int
	Code  int
}

// Process_t is one process: the Go analogue of
// struct Process. Thread is the process's single thread of execution
// (this kernel, like the original's early process model, is one
// thread per process); Vm is its address space; Fds is its open file
// table guarded by fdlock, matching the original's fd[OPEN_MAX] plus
// fd_lock split out from the rest of the process state so a blocking
// read/write on one descriptor doesn't serialize against unrelated fd
// table operations.
type Process_t struct {
	Thread *sched.Thread_t
	Vm     *vm.Vm_t

	Pid  int
	Pgid int

	Parent   *Process_t
	Children []*Process_t

	Name string

	Times accnt.Accnt_t

	// WaitQueue is where a parent blocks in Wait until one of its
	// children becomes a zombie or is reaped.
	WaitQueue waitqueue.WaitQueue_t

	mu     sync.Mutex
	state  int
	Status int

	SignalStub    uintptr
	SignalActions [defs.NSIG]Sigaction_t
	SignalPending []Pending_t
	SignalMask    uint32

	Cred fd.Cred_t
	Cwd  *fd.Cwd_t

	fdlock spinlock.Spinlock_t
	Fds    [defs.OPEN_MAX]*fd.Fd_t

	// Entry and Sp are the program counter and stack pointer Exec
	// computed for the loaded image. This kernel has no trapframe or
	// register-file simulation to resume into (every "CPU" is a plain
	// goroutine), so these are bookkeeping only: a caller that wants to
	// actually run the image reads them back out and starts its own
	// goroutine at Entry with Sp as the initial stack layout.
	Entry uintptr
	Sp    uintptr

	// Brk is the current heap break, 0 until the first Grow call lazily
	// reserves the heap region.
	Brk int
}

// processLock serializes pid allocation and the parent/children tree,
// __process_lock (kernel/include/kernel/process.h).
var processLock spinlock.Spinlock_t

var pidTable = hashtable.MkHash(256)

var nextPid int32 = 1

func init() {
	processLock.Init("proc.processLock")
}

// currentReg maps the running goroutine to the Process_t it is
// executing on behalf of, the same role
// process_current() fills by reading k_thread_current()->process: Go
// has no stable per-goroutine pointer to hang a backlink off, so a
// goroutine-id-keyed registry (mirroring tinfo's Current()) stands in.
var (
	currentMu sync.RWMutex
	current   = map[int64]*Process_t{}
)

// BindCurrent associates the calling goroutine with p, called once
// when a process's thread goroutine starts running.
func BindCurrent(p *Process_t) {
	g := goroutineid.Get()
	currentMu.Lock()
	current[g] = p
	currentMu.Unlock()
}

// UnbindCurrent removes the calling goroutine's process association,
// called when its thread goroutine is about to exit.
func UnbindCurrent() {
	g := goroutineid.Get()
	currentMu.Lock()
	delete(current, g)
	currentMu.Unlock()
}

// Current returns the process the calling goroutine is running on
// behalf of, or nil outside of any process's thread.
func Current() *Process_t {
	g := goroutineid.Get()
	currentMu.RLock()
	p := current[g]
	currentMu.RUnlock()
	return p
}

// Lookup finds the process with the given pid, or nil.
func Lookup(pid int) *Process_t {
	v, ok := pidTable.Get(pid)
	if !ok {
		return nil
	}
	return v.(*Process_t)
}

// State reports p's current lifecycle state (PROCESS_STATE_*).
func (p *Process_t) State() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Process_t) setState(s int) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// process_create builds a brand new process (pid 1's ancestor, or any
// process created directly rather than by forking one), the Go
// analogue of process_create. Its address space
// starts out empty; the caller (Exec or the boot path) is responsible
// for mapping something runnable into it.
func process_create(name string) (*Process_t, defs.Err_t) {
	as, err := vm.NewAddressSpace()
	if err != 0 {
		return nil, err
	}

	p := &Process_t{
		Vm:   as,
		Name: name,
	}
	return finishCreate(p)
}

func finishCreate(p *Process_t) (*Process_t, defs.Err_t) {
	processLock.Lock()
	pid := int(atomic.AddInt32(&nextPid, 1)) - 1
	p.Pid = pid
	if p.Pgid == 0 {
		p.Pgid = pid
	}
	pidTable.Set(pid, p)
	processLock.Unlock()

	note := &tinfo.Tnote_t{Alive: true}
	p.Thread = sched.NewThread(note, p)
	p.state = defs.PROCESS_STATE_ACTIVE
	return p, 0
}

// process_free releases everything process_destroy does not: the
// address space, the fd table, the pid table slot. Called once a
// zombie has been reaped by its parent's Wait, mirroring the
// process_free half of the split.
func process_free(p *Process_t) {
	p.fdlock.Lock()
	for i, f := range p.Fds {
		if f != nil {
			fd.Close_panic(f)
			p.Fds[i] = nil
		}
	}
	p.fdlock.Unlock()

	if p.Vm != nil {
		p.Vm.Destroy()
	}

	processLock.Lock()
	pidTable.Del(p.Pid)
	processLock.Unlock()
}

// AddFd installs f at the lowest unused descriptor slot, returning
// EMFILE if the table is full.
func (p *Process_t) AddFd(f *fd.Fd_t) (int, defs.Err_t) {
	p.fdlock.Lock()
	defer p.fdlock.Unlock()
	for i, slot := range p.Fds {
		if slot == nil {
			p.Fds[i] = f
			return i, 0
		}
	}
	return 0, -defs.EMFILE
}

// GetFd returns the open file at descriptor fdno, or EBADF.
func (p *Process_t) GetFd(fdno int) (*fd.Fd_t, defs.Err_t) {
	p.fdlock.Lock()
	defer p.fdlock.Unlock()
	if fdno < 0 || fdno >= len(p.Fds) || p.Fds[fdno] == nil {
		return nil, -defs.EBADF
	}
	return p.Fds[fdno], 0
}

// CloseFd closes and clears descriptor fdno.
func (p *Process_t) CloseFd(fdno int) defs.Err_t {
	p.fdlock.Lock()
	defer p.fdlock.Unlock()
	if fdno < 0 || fdno >= len(p.Fds) || p.Fds[fdno] == nil {
		return -defs.EBADF
	}
	f := p.Fds[fdno]
	p.Fds[fdno] = nil
	return f.Fops.Close()
}

// fsRoot is the single system-wide filesystem instance every process's
// Cwd and open-by-path syscalls resolve against, installed once at
// boot by SetRootFS (proc has no other way to reach fs.Fs_t without
// importing a boot-sequencing package just for this one pointer).
var fsRoot *fs.Fs_t

// SetRootFS installs the booted filesystem, called once during kernel
// startup before any process is created.
func SetRootFS(fsys *fs.Fs_t) {
	fsRoot = fsys
}

// Cr returns p's filesystem credentials (uid/gid/cmask) as the
// *fd.Cred_t every fs.Fs_t method expects.
func (p *Process_t) Cr() *fd.Cred_t {
	return &p.Cred
}
