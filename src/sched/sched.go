// Package sched holds the kernel's thread bookkeeping: Thread_t and its
// scheduling state, and the suspension-point discipline the kernel's
// scheduler enforces (kernel/sched.c's sched_yield/scheduler,
// kernel/process.c's process_sleep). A real OS context switch saves and
// restores registers; Go already has a scheduler that does that for
// goroutines, so a Thread_t's "context switch" is modeled as parking and
// unparking a goroutine on a channel rather than reimplementing register
// save. The package keeps no run queues and does no time slicing of its
// own: which goroutine runs next is left to the Go runtime, and Tick
// only hands out a ticker. What it does enforce is that a thread
// holding a spinlock never reaches a point that could block
// (AssertNoSpinlock).
package sched

import (
	"runtime"
	"sync"
	"time"

	"github.com/aglotoff/codename-argentum/src/cpu"
	"github.com/aglotoff/codename-argentum/src/stats"
	"github.com/aglotoff/codename-argentum/src/tinfo"
)

// Stats_t counts scheduling events. The fields are stats.Counter_t so
// they compile away to no-ops unless stats.Stats is turned on, the same
// the kernel's convention for per-subsystem counter structs.
type Stats_t struct {
	Yields  stats.Counter_t
	Parks   stats.Counter_t
	Wakeups stats.Counter_t
}

// Stats accumulates scheduling events across every Thread_t.
var Stats Stats_t

// State_t is a thread's scheduling state.
type State_t int

const (
	RUNNABLE State_t = iota
	RUNNING
	SLEEPING
	ZOMBIE
)

// Thread_t is one schedulable thread of execution. Proc is left as an
// untyped pointer (interface{}) rather than *proc.Process_t to avoid a
// sched<->proc import cycle: proc.Process_t holds a *Thread_t and
// creates them with NewThread, while sched only ever needs to carry the
// pointer around, never dereference it.
type Thread_t struct {
	mu    sync.Mutex
	state State_t
	cpu   *cpu.CPU_t
	note  *tinfo.Tnote_t
	resume chan struct{}

	Proc interface{}
}

// NewThread creates a new thread in RUNNABLE state, bound to note for
// its spinlock/IRQ bookkeeping.
func NewThread(note *tinfo.Tnote_t, proc interface{}) *Thread_t {
	return &Thread_t{
		state:  RUNNABLE,
		note:   note,
		resume: make(chan struct{}),
		Proc:   proc,
	}
}

// BindCPU records which logical CPU the thread is currently running on,
// for debugging; spinlock ownership is tracked per Tnote_t, not per CPU.
func (t *Thread_t) BindCPU(c *cpu.CPU_t) {
	t.mu.Lock()
	t.cpu = c
	t.mu.Unlock()
}

// CPU returns the logical CPU the thread last bound to, or nil.
func (t *Thread_t) CPU() *cpu.CPU_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cpu
}

// Note returns the thread's tinfo.Tnote_t, used for spinlock/IRQ
// bookkeeping and for killing the thread.
func (t *Thread_t) Note() *tinfo.Tnote_t {
	return t.note
}

// State reports the thread's current scheduling state.
func (t *Thread_t) State() State_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Thread_t) setState(s State_t) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// AssertNoSpinlock panics if the calling thread holds any spinlock. It
// must be called at every suspension point (wait-queue sleep, blocking
// syscall, voluntary yield): a thread that reaches one while holding a
// spinlock could deadlock against an interrupt handler spinning for
// the same lock, exactly the invariant a comment on
// process_sleep/scheduler call out.
func AssertNoSpinlock(who string) {
	if d := tinfo.Current().SpinDepth(); d != 0 {
		panic(who + ": reached a suspension point while holding a spinlock")
	}
}

// Yield gives up the processor for one round via runtime.Gosched,
// leaving the choice of what runs next to the Go runtime. A thread must
// not be holding a spinlock when it yields.
func Yield() {
	AssertNoSpinlock("sched.Yield")
	Stats.Yields.Inc()
	runtime.Gosched()
}

// Park puts the calling thread to SLEEPING and blocks until Wake(t) is
// called for it, blocking on the thread's own resume channel; kept here
// so the SLEEPING/RUNNABLE state transition is visible in the thread's
// state rather than hidden inside a bare channel receive.
// waitqueue.WaitQueue_t.Sleep does not go through Park: it blocks on a
// per-waiter channel of its own.
func (t *Thread_t) Park() {
	AssertNoSpinlock("sched.Thread_t.Park")
	t.setState(SLEEPING)
	Stats.Parks.Inc()
	<-t.resume
	t.setState(RUNNING)
}

// Wake transitions t back to RUNNABLE and releases one Park call.
func (t *Thread_t) Wake() {
	t.setState(RUNNABLE)
	Stats.Wakeups.Inc()
	select {
	case t.resume <- struct{}{}:
	default:
	}
}

// Tick drives the simulated scheduler clock: callers (normally one
// goroutine per CPU_t) can select on Tick().C to implement round-robin
// preemption at a fixed quantum, mirroring the original's periodic
// timer interrupt calling into the scheduler.
func Tick(quantum time.Duration) *time.Ticker {
	return time.NewTicker(quantum)
}
