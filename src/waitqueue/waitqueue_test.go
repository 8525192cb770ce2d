package waitqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aglotoff/codename-argentum/src/tinfo"
)

func bindThread(t *testing.T) {
	t.Helper()
	tinfo.SetCurrent(&tinfo.Tnote_t{Alive: true})
	t.Cleanup(tinfo.ClearCurrent)
}

// noopLocker satisfies spinlock.Locker without any real locking, the
// same stand-in proc.Wait uses around p.WaitQueue.Sleep.
type noopLocker struct{}

func (noopLocker) Lock()         {}
func (noopLocker) Unlock()       {}
func (noopLocker) Holding() bool { return true }

func TestWaitQueueWakeupReleasesSleeper(t *testing.T) {
	bindThread(t)

	var wq WaitQueue_t
	assert.True(t, wq.Empty())

	done := make(chan struct{})
	go func() {
		tinfo.SetCurrent(&tinfo.Tnote_t{Alive: true})
		defer tinfo.ClearCurrent()
		wq.Sleep(noopLocker{})
		close(done)
	}()

	require.Eventually(t, func() bool { return !wq.Empty() }, time.Second, time.Millisecond)

	wq.Wakeup()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after Wakeup")
	}
	assert.True(t, wq.Empty())
}

func TestWaitQueueWakeupReleasesEveryWaiter(t *testing.T) {
	bindThread(t)

	var wq WaitQueue_t
	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			tinfo.SetCurrent(&tinfo.Tnote_t{Alive: true})
			defer tinfo.ClearCurrent()
			wq.Sleep(noopLocker{})
		}()
	}

	require.Eventually(t, func() bool {
		wq.mu.Lock()
		defer wq.mu.Unlock()
		return len(wq.waiters) == n
	}, time.Second, time.Millisecond)

	wq.Wakeup()

	waited := make(chan struct{})
	go func() { wg.Wait(); close(waited) }()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("not all waiters woke up")
	}
}

func TestMutexMutualExclusion(t *testing.T) {
	var m Mutex_t
	m.Init("test")

	const n = 20
	var wg sync.WaitGroup
	counter := 0
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			tinfo.SetCurrent(&tinfo.Tnote_t{Alive: true})
			defer tinfo.ClearCurrent()
			for j := 0; j < 50; j++ {
				m.Lock()
				counter++
				m.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, n*50, counter)
}

func TestMutexHoldingAndUnlockPanics(t *testing.T) {
	bindThread(t)

	var m Mutex_t
	m.Init("test")

	assert.False(t, m.Holding())
	assert.Panics(t, func() { m.Unlock() })

	m.Lock()
	assert.True(t, m.Holding())
	m.Unlock()
	assert.False(t, m.Holding())
}
