// Package waitqueue implements the kernel's sleeping primitives: a FIFO
// wait queue threads block on, and a Mutex_t built on top of it. This is
// a transliteration of process_sleep/process_wakeup
// and mutex_lock/mutex_unlock (kernel/sync.c, kernel/process.c): a
// thread that cannot proceed enqueues itself, releases the spinlock
// protecting the resource, and blocks until woken; the caller's lock is
// reacquired before Sleep returns, exactly as process_sleep does.
package waitqueue

import (
	"sync"

	"github.com/aglotoff/codename-argentum/src/sched"
	"github.com/aglotoff/codename-argentum/src/spinlock"
	"github.com/aglotoff/codename-argentum/src/tinfo"
)

// waiter is one thread parked on a WaitQueue_t.
type waiter struct {
	note *tinfo.Tnote_t
	ch   chan struct{}
}

// WaitQueue_t is a FIFO queue of sleeping threads. The zero value is an
// empty queue ready to use.
type WaitQueue_t struct {
	mu      sync.Mutex
	waiters []*waiter
}

// Sleep enqueues the calling thread, releases lock (which the caller
// must hold), and blocks until Wakeup runs. lock is reacquired before
// Sleep returns, so the caller always resumes holding it, the same
// contract process_sleep(&queue, &lock) gives its callers.
//
// The caller must re-check its wait condition in a loop after Sleep
// returns: Wakeup releases every waiter, not just one, so a thread can
// wake up to find the condition still false (spurious wakeup, exactly
// as mutex_lock's `while (mutex->process != NULL) process_sleep(...)`
// loop anticipates).
func (wq *WaitQueue_t) Sleep(lock spinlock.Locker) {
	note := tinfo.Current()
	w := &waiter{note: note, ch: make(chan struct{})}

	wq.mu.Lock()
	wq.waiters = append(wq.waiters, w)
	wq.mu.Unlock()

	lock.Unlock()
	sched.AssertNoSpinlock("waitqueue.Sleep")
	<-w.ch
	lock.Lock()
}

// Wakeup releases every thread currently sleeping on the queue. Like
// process_wakeup, it wakes everyone rather than a single waiter,
// pushing the "only one should actually win" decision onto the
// re-checked condition in each waiter's Sleep loop.
func (wq *WaitQueue_t) Wakeup() {
	wq.mu.Lock()
	ws := wq.waiters
	wq.waiters = nil
	wq.mu.Unlock()

	for _, w := range ws {
		close(w.ch)
	}
}

// Empty reports whether any thread is currently sleeping on the queue.
func (wq *WaitQueue_t) Empty() bool {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	return len(wq.waiters) == 0
}

// Mutex_t is a sleeping mutex: a thread that cannot acquire it blocks
// instead of spinning, unlike spinlock.Spinlock_t. Use this when the
// critical section may be long or may itself sleep (filesystem and
// process-table operations), never for code an interrupt handler runs.
type Mutex_t struct {
	lock   spinlock.Spinlock_t
	queue  WaitQueue_t
	holder *tinfo.Tnote_t
	Name   string
}

// Init sets the mutex's name, used only in panic messages.
func (m *Mutex_t) Init(name string) {
	m.Name = name
	m.lock.Init(name + ".lock")
}

// Lock blocks until the mutex is free, then marks it held by the
// calling thread.
func (m *Mutex_t) Lock() {
	m.lock.Lock()
	for m.holder != nil {
		m.queue.Sleep(&m.lock)
	}
	m.holder = tinfo.Current()
	m.lock.Unlock()
}

// Unlock releases the mutex and wakes any threads sleeping on it.
// Panics if the calling thread does not hold the mutex.
func (m *Mutex_t) Unlock() {
	if !m.Holding() {
		panic("waitqueue: mutex " + m.Name + " not held")
	}

	m.lock.Lock()
	m.holder = nil
	m.queue.Wakeup()
	m.lock.Unlock()
}

// Holding reports whether the calling thread holds the mutex.
func (m *Mutex_t) Holding() bool {
	m.lock.Lock()
	h := m.holder
	m.lock.Unlock()
	return h != nil && h == tinfo.Current()
}
