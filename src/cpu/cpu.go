// Package cpu abstracts the small set of per-logical-CPU facilities the
// rest of the kernel needs: a stable "which CPU am I" hint for per-CPU
// free lists and IRQ-disable nesting for spinlock.Spinlock_t. The
// original kernel got these from real hardware (cpu_id(), irq_save());
// here CPU_t is an ordinary struct and "current CPU" is derived from the
// calling goroutine's identity, since the kernel runs as a normal Go
// process with no real cores to ask.
package cpu

import (
	"sync/atomic"

	"github.com/joeycumines/goroutineid"
)

// NCPU is the number of logical CPUs this kernel schedules across. Unlike
// the original, which discovered however many cores the board had, we fix
// it: the whole point of the simulation is a small, reproducible
// multiprocessor, not "however many cores happen to be on the build
// machine".
const NCPU = 4

// CPU_t models one logical CPU: its IRQ-disable nesting depth, mirroring
// struct Cpu (cpu_id, a spinlock-holding bookkeeping
// field). There is no notion of "currently running thread" here since
// goroutines, not CPU_t values, are what Go actually schedules.
type CPU_t struct {
	id       uint
	irqdepth int32
}

// Id returns the logical CPU number, matching cpu_id() in the original.
func (c *CPU_t) Id() uint { return c.id }

var cpus [NCPU]CPU_t

func init() {
	for i := range cpus {
		cpus[i].id = uint(i)
	}
}

// Hint returns a cheap, racy "which CPU slot should I prefer" value in
// [0, NCPU). It need not be exact: callers use it only to spread
// contention across per-CPU free lists and to pick a stable CPU_t for
// the calling goroutine's spinlock bookkeeping.
func Hint() uint {
	return uint(goroutineid.Get()) % NCPU
}

// CurrentCPU returns the logical CPU_t backing the calling goroutine, in
// the same spirit as the original's my_cpu(): every call from the same
// goroutine observes the same CPU_t, so nested Lock/Unlock pairs and
// IrqSave/IrqRestore pairs on that goroutine see consistent state.
func CurrentCPU() *CPU_t {
	return &cpus[Hint()]
}

// IrqSave increments the calling goroutine's logical CPU's IRQ-disable
// nesting depth. It must be paired with IrqRestore. Spinlock.Lock calls
// this so that a thread holding a spinlock is never preempted at a point
// that could deadlock with an interrupt handler touching the same lock.
func IrqSave() { CurrentCPU().IrqSave() }

// IrqRestore decrements the nesting depth raised by IrqSave.
func IrqRestore() { CurrentCPU().IrqRestore() }

// IrqDepth reports the IRQ-disable nesting depth of the calling
// goroutine's logical CPU slot. Hint maps many goroutines onto the same
// NCPU slots, so a nonzero depth means some goroutine on that slot is
// inside a spinlock, not necessarily the caller.
func IrqDepth() int { return CurrentCPU().IrqDepth() }

func (c *CPU_t) IrqSave() {
	atomic.AddInt32(&c.irqdepth, 1)
}

func (c *CPU_t) IrqRestore() {
	if atomic.AddInt32(&c.irqdepth, -1) < 0 {
		panic("cpu: irq depth underflow")
	}
}

func (c *CPU_t) IrqDepth() int {
	return int(atomic.LoadInt32(&c.irqdepth))
}

// AssertNoIrq panics if the calling goroutine's CPU slot has a nonzero
// IRQ depth, which (see IrqDepth) another goroutine sharing the slot
// can cause. Nothing in the kernel calls it: the suspension points use
// sched.AssertNoSpinlock, which checks the calling thread's own spin
// depth.
func AssertNoIrq(who string) {
	if d := IrqDepth(); d != 0 {
		panic(who + ": called while holding a spinlock (irq depth " +
			itoa(d) + ")")
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
