package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aglotoff/codename-argentum/src/cpu"
	"github.com/aglotoff/codename-argentum/src/tinfo"
)

func bindThread(t *testing.T) *tinfo.Tnote_t {
	t.Helper()
	note := &tinfo.Tnote_t{Alive: true}
	tinfo.SetCurrent(note)
	t.Cleanup(tinfo.ClearCurrent)
	return note
}

func TestNewThreadStartsRunnable(t *testing.T) {
	note := &tinfo.Tnote_t{Alive: true}
	th := NewThread(note, "proc-placeholder")
	assert.Equal(t, RUNNABLE, th.State())
	assert.Same(t, note, th.Note())
	assert.Equal(t, "proc-placeholder", th.Proc)
}

func TestParkBlocksUntilWake(t *testing.T) {
	note := bindThread(t)
	th := NewThread(note, nil)

	woke := make(chan struct{})
	go func() {
		tinfo.SetCurrent(note)
		defer tinfo.ClearCurrent()
		th.Park()
		close(woke)
	}()

	require.Eventually(t, func() bool { return th.State() == SLEEPING }, time.Second, time.Millisecond)

	select {
	case <-woke:
		t.Fatal("Park returned before Wake")
	case <-time.After(10 * time.Millisecond):
	}

	th.Wake()
	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("Park did not return after Wake")
	}
	assert.Equal(t, RUNNING, th.State())
}

func TestAssertNoSpinlockPanicsWhileHeld(t *testing.T) {
	note := bindThread(t)

	assert.NotPanics(t, func() { AssertNoSpinlock("test") })

	note.SpinEnter()
	assert.Panics(t, func() { AssertNoSpinlock("test") })
	note.SpinExit()
	assert.NotPanics(t, func() { AssertNoSpinlock("test") })
}

func TestBindCPURoundTrips(t *testing.T) {
	note := &tinfo.Tnote_t{Alive: true}
	th := NewThread(note, nil)
	assert.Nil(t, th.CPU())

	c := cpu.CurrentCPU()
	th.BindCPU(c)
	assert.Same(t, c, th.CPU())
}
