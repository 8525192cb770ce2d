package proc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/mem"
	"github.com/aglotoff/codename-argentum/src/tinfo"
)

var physInitOnce sync.Once

func initPhys(t *testing.T) {
	t.Helper()
	physInitOnce.Do(func() {
		mem.Phys_init()
	})
}

// bindCaller installs a Tnote_t for the calling goroutine, the minimum
// a test needs to exercise anything that sleeps on a waitqueue or
// takes a spinlock (Wait, Sleep, Fork's processLock use).
func bindCaller(t *testing.T) {
	t.Helper()
	tinfo.SetCurrent(&tinfo.Tnote_t{Alive: true})
	t.Cleanup(tinfo.ClearCurrent)
}

func mkTestProcess(t *testing.T) *Process_t {
	t.Helper()
	initPhys(t)
	bindCaller(t)
	p, err := process_create("test")
	require.Zero(t, err)
	t.Cleanup(func() { process_free(p) })
	return p
}

func TestForkCreatesChildWithOwnPid(t *testing.T) {
	parent := mkTestProcess(t)

	child, err := parent.Fork()
	require.Zero(t, err)
	require.NotNil(t, child)
	defer process_free(child)

	assert.NotEqual(t, parent.Pid, child.Pid)
	assert.Equal(t, parent.Pgid, child.Pgid)
	assert.Same(t, parent, child.Parent)
	assert.Contains(t, parent.Children, child)
	assert.Same(t, child, Lookup(child.Pid))
}

func TestExitThenWaitReapsChild(t *testing.T) {
	parent := mkTestProcess(t)

	child, err := parent.Fork()
	require.Zero(t, err)

	child.Exit(7)
	assert.Equal(t, defs.PROCESS_STATE_ZOMBIE, child.State())

	rpid, status, err := parent.Wait(-1, 0)
	require.Zero(t, err)
	assert.Equal(t, child.Pid, rpid)
	assert.Equal(t, 7, status)

	assert.Empty(t, parent.Children)
	assert.Nil(t, Lookup(child.Pid))
}

func TestWaitNoHangReturnsZeroWithoutBlocking(t *testing.T) {
	parent := mkTestProcess(t)

	child, err := parent.Fork()
	require.Zero(t, err)
	defer func() {
		child.Exit(0)
		parent.Wait(-1, 0)
	}()

	rpid, status, err := parent.Wait(-1, defs.WNOHANG)
	require.Zero(t, err)
	assert.Equal(t, 0, rpid)
	assert.Equal(t, 0, status)
}

func TestWaitWithNoChildrenReturnsECHILD(t *testing.T) {
	p := mkTestProcess(t)
	_, _, err := p.Wait(-1, 0)
	assert.Equal(t, -defs.ECHILD, err)
}

func TestWaitBlocksUntilChildExits(t *testing.T) {
	parent := mkTestProcess(t)

	child, err := parent.Fork()
	require.Zero(t, err)

	done := make(chan struct{})
	var rpid, status int
	go func() {
		tinfo.SetCurrent(&tinfo.Tnote_t{Alive: true})
		defer tinfo.ClearCurrent()
		rpid, status, _ = parent.Wait(-1, 0)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before child exited")
	case <-time.After(20 * time.Millisecond):
	}

	child.Exit(3)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after child exited")
	}
	assert.Equal(t, child.Pid, rpid)
	assert.Equal(t, 3, status)
}

func TestGrowReservesHeapOnFirstCall(t *testing.T) {
	p := mkTestProcess(t)

	old, err := p.Grow(4096)
	require.Zero(t, err)
	assert.Equal(t, heapBase, old)
	assert.Equal(t, heapBase+4096, p.Brk)

	old2, err := p.Grow(4096)
	require.Zero(t, err)
	assert.Equal(t, heapBase+4096, old2)
}

func TestGrowRejectsOverflowPastHeapMax(t *testing.T) {
	p := mkTestProcess(t)
	_, err := p.Grow(heapMax + 1)
	assert.Equal(t, -defs.ENOMEM, err)
}

func TestSignalGenerateAndDeliverPending(t *testing.T) {
	p := mkTestProcess(t)

	require.Zero(t, p.Generate(defs.SIGTERM, 0))
	sig, terminate, handled := p.DeliverPending()
	assert.True(t, handled)
	assert.True(t, terminate)
	assert.Equal(t, defs.SIGTERM, sig.Signo)

	_, _, handled = p.DeliverPending()
	assert.False(t, handled)
}

func TestSignalMaskBlocksDelivery(t *testing.T) {
	p := mkTestProcess(t)

	var old uint32
	require.Zero(t, p.Mask(2, sigmaskbit(defs.SIGTERM), &old))
	require.Zero(t, p.Generate(defs.SIGTERM, 0))

	_, _, handled := p.DeliverPending()
	assert.False(t, handled, "masked signal must stay pending")

	require.Zero(t, p.Mask(2, 0, &old))
	assert.Equal(t, sigmaskbit(defs.SIGTERM), old)
	_, _, handled = p.DeliverPending()
	assert.True(t, handled)
}

func TestSignalActionIgnoreSuppressesTermination(t *testing.T) {
	p := mkTestProcess(t)

	act := &Sigaction_t{Handler: SIG_IGN}
	require.Zero(t, p.Action(defs.SIGTERM, act, nil))
	require.Zero(t, p.Generate(defs.SIGTERM, 0))

	_, terminate, handled := p.DeliverPending()
	assert.True(t, handled)
	assert.False(t, terminate)
}

func TestSignalActionRejectsSigkillAndSigstop(t *testing.T) {
	p := mkTestProcess(t)
	act := &Sigaction_t{Handler: SIG_IGN}
	assert.Equal(t, -defs.EINVAL, p.Action(defs.SIGKILL, act, nil))
	assert.Equal(t, -defs.EINVAL, p.Action(defs.SIGSTOP, act, nil))
}

func TestFdTableAddGetClose(t *testing.T) {
	p := mkTestProcess(t)

	rfd, wfd, err := MakePipe()
	require.Zero(t, err)

	rno, err := p.AddFd(rfd)
	require.Zero(t, err)
	wno, err := p.AddFd(wfd)
	require.Zero(t, err)
	assert.NotEqual(t, rno, wno)

	got, err := p.GetFd(rno)
	require.Zero(t, err)
	assert.Same(t, rfd, got)

	require.Zero(t, p.CloseFd(rno))
	_, err = p.GetFd(rno)
	assert.Equal(t, -defs.EBADF, err)

	require.Zero(t, p.CloseFd(wno))
}

func TestSyscallTableGetpidAndBrk(t *testing.T) {
	p := mkTestProcess(t)

	ret := SyscallTable[SYS_GETPID](p, [6]uintptr{})
	assert.Equal(t, p.Pid, ret)

	ret = SyscallTable[SYS_BRK](p, [6]uintptr{4096})
	assert.Equal(t, heapBase, ret)
}

func TestSyscallTableForkAndWait(t *testing.T) {
	parent := mkTestProcess(t)

	ret := SyscallTable[SYS_FORK](parent, [6]uintptr{})
	require.Greater(t, ret, 0)
	child := Lookup(ret)
	require.NotNil(t, child)

	child.Exit(5)
	rpid := SyscallTable[SYS_WAIT](parent, [6]uintptr{uintptr(ret), 0, 0})
	assert.Equal(t, ret, rpid)
}
