// Package spinlock implements the kernel's non-sleeping lock: a thread
// that cannot acquire one spins instead of blocking, because the lock
// may be held for only a few instructions or may protect state an
// interrupt handler touches. Never sleep while holding a Spinlock_t.
//
// This is a direct transliteration of spin_lock/
// spin_unlock/spin_holding (kernel/sync.c): same owner tracking, same
// double-lock and wrong-owner-unlock panics, same irq_save/irq_restore
// bracketing. The ldrex/strex/wfe/sev inline asm has no equivalent in
// portable Go; sync/atomic.CompareAndSwapInt32 plus runtime.Gosched is
// the idiomatic substitute for "spin, yielding the CPU between tries".
package spinlock

import (
	"runtime"
	"sync/atomic"

	"github.com/aglotoff/codename-argentum/src/caller"
	"github.com/aglotoff/codename-argentum/src/cpu"
	"github.com/aglotoff/codename-argentum/src/tinfo"
)

// Locker is the subset of Spinlock_t that waitqueue needs: something it
// can release just before sleeping and reacquire just after waking.
type Locker interface {
	Lock()
	Unlock()
	Holding() bool
}

// Spinlock_t is a mutual-exclusion lock that never sleeps.
type Spinlock_t struct {
	Name string

	locked int32

	// owner identifies the thread currently holding the lock. The
	// original tracks the owning CPU, which is sound on real hardware
	// because exactly one thread ever runs on a given CPU at a time;
	// cpu.CurrentCPU here is only a hashed hint shared by many
	// goroutines (cpu.NCPU is 4, however many threads are actually
	// live), so two unrelated threads hashing to the same CPU_t would
	// false-positive a self-recursion panic against each other. The
	// calling thread's own Tnote_t has no such collision and is the
	// thing that actually must never double-acquire.
	owner *tinfo.Tnote_t

	// Dc, when enabled, records the first caller chain to take this
	// lock from each distinct ancestry, the same debugging aid caller
	// (Callerdump/Distinct_caller_t) gives the rest of the kernel.
	Dc caller.Distinct_caller_t
}

// Init sets the lock's name, used only in panic messages.
func (l *Spinlock_t) Init(name string) {
	l.Name = name
}

// Holding reports whether the calling thread currently holds the lock.
func (l *Spinlock_t) Holding() bool {
	cpu.IrqSave()
	r := atomic.LoadInt32(&l.locked) != 0 && l.owner == tinfo.Current()
	cpu.IrqRestore()
	return r
}

// Lock acquires the spinlock, spinning until it is free. Interrupts
// are disabled (cpu.IrqSave) and the calling thread's spin depth, which
// sched.AssertNoSpinlock checks at suspension points, is raised for as
// long as the lock is held, so the calling thread must not block or
// sleep before calling Unlock.
func (l *Spinlock_t) Lock() {
	cpu.IrqSave()

	me := tinfo.Current()
	if atomic.LoadInt32(&l.locked) != 0 && l.owner == me {
		panic("spinlock: thread already holding " + l.Name)
	}

	for !atomic.CompareAndSwapInt32(&l.locked, 0, 1) {
		runtime.Gosched()
	}

	l.owner = me
	me.SpinEnter()
	if ok, trace := l.Dc.Distinct(); ok {
		_ = trace
	}
}

// Unlock releases the spinlock. Panics if the calling thread is not the
// current owner, mirroring spin_unlock's "cannot release: held by %d".
func (l *Spinlock_t) Unlock() {
	if !l.Holding() {
		panic("spinlock: cannot release " + l.Name + ": not held")
	}

	l.owner = nil
	atomic.StoreInt32(&l.locked, 0)
	tinfo.Current().SpinExit()

	cpu.IrqRestore()
}
