package tinfo

import "sync"
import "sync/atomic"

import "github.com/aglotoff/codename-argentum/src/defs"
import "github.com/joeycumines/goroutineid"

/// Tnote_t stores per-thread state used by the runtime.
type Tnote_t struct {
	// XXX "alive" should be "terminated"
	State    interface{}
	Alive    bool
	Killed   bool
	Isdoomed bool // XXX maybe don't need doomed, but can use killed?
	// protects killed, Killnaps.Cond and Kerr, and is a leaf lock
	sync.Mutex
	Killnaps struct {
		Killch chan bool
		Cond   *sync.Cond
		Kerr   defs.Err_t
	}

	// spindepth counts the spinlocks currently held by this thread.
	// sched.AssertNoSpinlock reads it at every suspension point: a
	// thread may never block while it is nonzero.
	spindepth int32
}

/// Doomed reports whether the thread is marked as doomed.
func (t *Tnote_t) Doomed() bool {
	return t.Isdoomed
}

/// SpinDepth reports how many spinlocks this thread currently holds.
func (t *Tnote_t) SpinDepth() int {
	return int(atomic.LoadInt32(&t.spindepth))
}

/// SpinEnter records that the thread has acquired one more spinlock.
func (t *Tnote_t) SpinEnter() {
	atomic.AddInt32(&t.spindepth, 1)
}

/// SpinExit records that the thread has released a spinlock. Panics on
/// underflow, which would mean Unlock ran without a matching Lock.
func (t *Tnote_t) SpinExit() {
	if atomic.AddInt32(&t.spindepth, -1) < 0 {
		panic("tinfo: spindepth underflow")
	}
}

/// Threadinfo_t tracks all thread notes.
type Threadinfo_t struct {
	Notes map[defs.Tid_t]*Tnote_t
	sync.Mutex
}

/// Init initializes the thread info map.
func (t *Threadinfo_t) Init() {
	t.Notes = make(map[defs.Tid_t]*Tnote_t)
}

// registry maps the calling goroutine's id to its Tnote_t. There is no
// portable equivalent of a per-goroutine g pointer outside a patched
// runtime, so the registry stands in for one: SetCurrent/ClearCurrent
// install and remove an entry keyed by goroutineid.Get(), which stays
// fixed for the lifetime of the goroutine running a kernel thread.
var (
	registryMu sync.RWMutex
	registry   = map[int64]*Tnote_t{}
)

/// Current returns the current thread note.
func Current() *Tnote_t {
	g := goroutineid.Get()
	registryMu.RLock()
	ret, ok := registry[g]
	registryMu.RUnlock()
	if !ok {
		panic("nuts")
	}
	return ret
}

/// SetCurrent installs p as the current thread note.
func SetCurrent(p *Tnote_t) {
	if p == nil {
		panic("nuts")
	}
	g := goroutineid.Get()
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[g]; ok {
		panic("nuts")
	}
	registry[g] = p
}

/// ClearCurrent removes the current thread note.
func ClearCurrent() {
	g := goroutineid.Get()
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[g]; !ok {
		panic("nuts")
	}
	delete(registry, g)
}
