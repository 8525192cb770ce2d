package proc

import (
	"github.com/aglotoff/codename-argentum/src/defs"
)

// initPid is pid 1, the reparenting target for orphaned children,
// matching the init-process convention a kernel assumes but
// never hardcodes by name (process_destroy just walks to the process
// whose pid is 1).
const initPid = 1

// Exit transitions p to a zombie: its children are reparented to pid 1
// (or dropped if pid 1 itself is exiting, i.e. system shutdown), its
// thread is marked doomed, and its parent is woken from any pending
// Wait. process_free (releasing the address space and fd table) is
// deferred until the parent actually reaps it — a zombie keeps those
// around only long enough for the exit status to be collected, exactly
// the analogous process_destroy/process_free split.
func (p *Process_t) Exit(status int) {
	processLock.Lock()
	initp := Lookup(initPid)
	for _, c := range p.Children {
		c.Parent = initp
		if initp != nil {
			initp.Children = append(initp.Children, c)
		}
	}
	p.Children = nil
	processLock.Unlock()

	p.mu.Lock()
	p.Status = status
	p.mu.Unlock()
	p.setState(defs.PROCESS_STATE_ZOMBIE)

	if note := p.Thread.Note(); note != nil {
		note.Isdoomed = true
	}

	if p.Parent != nil {
		p.Parent.WaitQueue.Wakeup()
	}
}

// Wait blocks until a child of p matching pid (or any child, if pid is
// -1) becomes a zombie, then reaps it and returns its pid and exit
// status. WNOHANG in options makes Wait return (0, 0, 0) immediately
// instead of blocking when no matching child has exited yet.
// process_wait's analogue.
func (p *Process_t) Wait(pid int, options int) (int, int, defs.Err_t) {
	for {
		processLock.Lock()
		var zombie *Process_t
		anyMatch := false
		for _, c := range p.Children {
			if pid != -1 && c.Pid != pid {
				continue
			}
			anyMatch = true
			if c.State() == defs.PROCESS_STATE_ZOMBIE {
				zombie = c
				break
			}
		}
		if !anyMatch {
			processLock.Unlock()
			return 0, 0, -defs.ECHILD
		}
		if zombie == nil {
			processLock.Unlock()
			if options&defs.WNOHANG != 0 {
				return 0, 0, 0
			}
			p.WaitQueue.Sleep(noopLocker{})
			continue
		}

		for i, c := range p.Children {
			if c == zombie {
				p.Children = append(p.Children[:i], p.Children[i+1:]...)
				break
			}
		}
		processLock.Unlock()

		zombie.mu.Lock()
		status := zombie.Status
		zombie.mu.Unlock()
		rpid := zombie.Pid
		process_free(zombie)
		return rpid, status, 0
	}
}

// noopLocker lets Wait use waitqueue.WaitQueue_t.Sleep (which expects
// a spinlock.Locker to drop across the sleep) without actually holding
// one: p.WaitQueue's own internal mutex already serializes the sleep
// queue, and the check-then-sleep race this would otherwise open is
// covered by re-checking the child list in the next loop iteration
// after waking, the same re-check-the-condition discipline every
// condition-variable-style wait needs regardless of locking.
type noopLocker struct{}

func (noopLocker) Lock()         {}
func (noopLocker) Unlock()       {}
func (noopLocker) Holding() bool { return true }
