package proc

import (
	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/fd"
	"github.com/aglotoff/codename-argentum/src/tinfo"
)

// Fork clones the calling process: a copy-on-write address space
// (vm.Vm_t.Fork), a duplicate fd table (each descriptor copied via
// fd.Copyfd, which takes another reference on the same open file, so
// child and parent share its file position as dup(2) descriptors
// do), and the same
// credentials, cwd, and signal disposition. This is process_copy's
// (kernel/include/kernel/process.h) Go analogue minus the fork flags
// argument, which gated vfork/clone-style sharing this kernel does not
// support.
func (parent *Process_t) Fork() (*Process_t, defs.Err_t) {
	childVm, err := parent.Vm.Fork()
	if err != 0 {
		return nil, err
	}

	child := &Process_t{
		Vm:     childVm,
		Name:   parent.Name,
		Parent: parent,
		Pgid:   parent.Pgid,
		Cred:   parent.Cred,
		Cwd:    parent.Cwd,
		Entry:  parent.Entry,
		Sp:     parent.Sp,
		Brk:    parent.Brk,
	}
	child.SignalActions = parent.SignalActions
	child.SignalMask = parent.SignalMask
	child.SignalStub = parent.SignalStub

	parent.fdlock.Lock()
	for i, f := range parent.Fds {
		if f == nil {
			continue
		}
		nf, e := fd.Copyfd(f)
		if e != 0 {
			parent.fdlock.Unlock()
			childVm.Destroy()
			return nil, e
		}
		child.Fds[i] = nf
	}
	parent.fdlock.Unlock()

	if _, err := finishCreate(child); err != 0 {
		childVm.Destroy()
		return nil, err
	}

	processLock.Lock()
	parent.Children = append(parent.Children, child)
	processLock.Unlock()

	return child, 0
}

// ForkThread starts the child's thread goroutine running fn, binding
// the goroutine's identity to child for the lifetime of the call so
// Current() resolves inside it, mirroring the original scheduler
// handing a freshly forked process straight to the ready queue.
func (child *Process_t) ForkThread(fn func()) {
	go func() {
		note := child.Thread.Note()
		tinfo.SetCurrent(note)
		BindCurrent(child)
		defer UnbindCurrent()
		defer tinfo.ClearCurrent()
		fn()
	}()
}
