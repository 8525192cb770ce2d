package proc

import (
	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/mem"
	"github.com/aglotoff/codename-argentum/src/vm"
)

// heapBase is the fixed start of every process's heap region, placed
// well clear of the program image loadSegment maps and the stack
// execStackTop anchors.
const heapBase = mem.USERMIN + 0x10000000

// heapMax bounds how far Grow can extend the heap: the whole range is
// reserved as one anonymous vmregion on the first call, so later growth
// never needs a second Vmregion_t insert.
const heapMax = 0x10000000

// Grow adjusts p's heap break by n bytes and returns the break's
// address from *before* the adjustment, process_grow's (kernel/include/kernel/process.h) and the traditional
// sbrk(2) return convention. Pages are not pre-faulted; Sys_pgfault
// zero-fills them as the process actually touches the new range.
func (p *Process_t) Grow(n int) (int, defs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Brk == 0 {
		p.Vm.Lock_pmap()
		p.Vm.Vmadd_anon(heapBase, heapMax, mem.Pa_t(vm.PTE_U|vm.PTE_W))
		p.Vm.Unlock_pmap()
		p.Brk = heapBase
	}

	old := p.Brk
	nbrk := old + n
	if nbrk < heapBase || nbrk > heapBase+heapMax {
		return 0, -defs.ENOMEM
	}
	p.Brk = nbrk
	return old, 0
}
