package proc

import (
	"github.com/aglotoff/codename-argentum/src/defs"
)

// SIG_DFL/SIG_IGN are the two reserved handler values a sigaction may
// carry instead of a real address, the same sentinel values libc's
// signal.h reserves.
const (
	SIG_DFL uintptr = 0
	SIG_IGN uintptr = 1
)

// sigmaskbit returns the bitmask for a 1-based signal number.
func sigmaskbit(signo int) uint32 {
	return 1 << uint(signo-1)
}

// Generate queues signo for delivery to p (signal_generate's
// analogue). SIGKILL cannot be caught, blocked, or ignored, so it
// takes effect immediately (p exits with status 128+SIGKILL) rather
// than waiting for DeliverPending's next call. Every other signal,
// SIGSTOP included, is queued; there is no stopped state, and
// DeliverPending's default action for SIGSTOP terminates the process.
func (p *Process_t) Generate(signo int, code int) defs.Err_t {
	if signo <= 0 || signo >= defs.NSIG {
		return -defs.EINVAL
	}

	if signo == defs.SIGKILL {
		p.Exit(128 + signo)
		return 0
	}

	p.mu.Lock()
	p.SignalPending = append(p.SignalPending, Pending_t{Signo: signo, Code: code})
	p.mu.Unlock()

	if p.Thread != nil {
		p.Thread.Wake()
	}
	return 0
}

// Clone copies parent's signal dispositions (but not its pending
// queue) into child, signal_clone's analogue: a forked child starts
// with no signals of its own pending, but keeps the same handlers and
// mask its parent had installed.
func (parent *Process_t) Clone(child *Process_t) {
	child.SignalActions = parent.SignalActions
	child.SignalMask = parent.SignalMask
	child.SignalStub = parent.SignalStub
}

// DeliverPending pops the next unblocked pending signal, if any, and
// reports whether the process should now terminate (a signal whose
// action is SIG_DFL and whose default behavior is to kill the
// process — every signal this kernel implements except SIGCHLD/
// SIGCONT, which default to being ignored). A caught signal (handler
// set to neither SIG_DFL nor SIG_IGN) is left for the caller to splice
// into the process's user-mode return path; that trampoline is part of
// the architecture-specific trap return this kernel's Go simulation
// does not model, so DeliverPending only decides default disposition.
func (p *Process_t) DeliverPending() (sig Pending_t, terminate bool, handled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, s := range p.SignalPending {
		if p.SignalMask&sigmaskbit(s.Signo) != 0 {
			continue
		}
		p.SignalPending = append(p.SignalPending[:i:i], p.SignalPending[i+1:]...)

		act := p.SignalActions[s.Signo]
		switch act.Handler {
		case SIG_IGN:
			return s, false, true
		case SIG_DFL:
			switch s.Signo {
			case defs.SIGCHLD, defs.SIGCONT:
				return s, false, true
			default:
				return s, true, true
			}
		default:
			return s, false, false
		}
	}
	return Pending_t{}, false, false
}

// Action installs act as the handler for signo, returning the
// previous action in old (if non-nil). SIGKILL/SIGSTOP reject any
// change, matching signal_action's original behavior.
func (p *Process_t) Action(signo int, act *Sigaction_t, old *Sigaction_t) defs.Err_t {
	if signo <= 0 || signo >= defs.NSIG {
		return -defs.EINVAL
	}
	if signo == defs.SIGKILL || signo == defs.SIGSTOP {
		return -defs.EINVAL
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if old != nil {
		*old = p.SignalActions[signo]
	}
	if act != nil {
		p.SignalActions[signo] = *act
	}
	return 0
}

// Mask applies how to combine set into p's signal mask (SIG_BLOCK-
// style semantics left to the caller via the how argument: 0 = block,
// 1 = unblock, 2 = setmask, matching sys/signal.h's SIG_* constants),
// returning the prior mask in old.
func (p *Process_t) Mask(how int, set uint32, old *uint32) defs.Err_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old != nil {
		*old = p.SignalMask
	}
	switch how {
	case 0:
		p.SignalMask |= set
	case 1:
		p.SignalMask &^= set
	case 2:
		p.SignalMask = set
	default:
		return -defs.EINVAL
	}
	return 0
}

// Pending reports the set of currently pending signals.
func (p *Process_t) Pending() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var set uint32
	for _, s := range p.SignalPending {
		set |= sigmaskbit(s.Signo)
	}
	return set
}
