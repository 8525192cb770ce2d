package vm

import (
	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/mem"
)

// NewAddressSpace allocates an empty address space: a fresh top-level
// page table page and no mapped regions, the Go analogue of
// vm_space_create (kernel/include/kernel/vmspace.h).
// There is no higher-half kernel mapping to install — unlike real ARM/
// x86 silicon, this kernel has no separate kernel/user split in the
// page table, since every "CPU" is a goroutine sharing the host
// process's own address space; the Pmap_t built here only ever holds
// user mappings.
func NewAddressSpace() (*Vm_t, defs.Err_t) {
	pmap, p_pmap, ok := mem.Physmem.Pmap_new()
	if !ok {
		return nil, -defs.ENOMEM
	}
	as := &Vm_t{
		Pmap:   pmap,
		P_pmap: p_pmap,
	}
	return as, 0
}

// Fork builds a copy-on-write clone of as, the Go analogue of
// vm_space_clone: every region is duplicated in the
// child's Vmregion_t (Vmregion_t.Clone, which also bumps the refcount
// on any backing file), and every currently-present, privately-mapped
// page has its writable bit cleared in both the parent's and the
// child's page table and PTE_COW set, so the next write by either side
// faults into Sys_pgfault's copy-on-write path instead of silently
// corrupting the other's copy.
//
// Shared mappings (VSANON, or VFILE opened MAP_SHARED) are not COW'd:
// the same physical page is mapped into both tables at the same
// permissions, exactly as a shared mapping should behave across fork.
func (as *Vm_t) Fork() (*Vm_t, defs.Err_t) {
	child, err := NewAddressSpace()
	if err != 0 {
		return nil, err
	}

	as.Lock_pmap()
	defer as.Unlock_pmap()

	child.Vmregion = *as.Vmregion.Clone()

	for _, vmi := range child.Vmregion.regions {
		start := uintptr(vmi.Pgn) << PGSHIFT
		for pg := 0; pg < vmi.Pglen; pg++ {
			va := int(start) + pg<<PGSHIFT
			pte := Pmap_lookup(as.Pmap, va)
			if pte == nil || *pte&PTE_P == 0 {
				continue
			}
			phys := mem.Pa_t(*pte & PTE_ADDR)

			if vmi.Mtype == VSANON || (vmi.Mtype == VFILE && vmi.file.shared) {
				cperms := mem.Pa_t(*pte) &^ (PTE_COW | PTE_WASCOW)
				cpte, cerr := pmap_walk(child.Pmap, va, PTE_U|PTE_W)
				if cerr != 0 {
					child.Uvmfree()
					return nil, -defs.ENOMEM
				}
				*cpte = phys | cperms
				mem.Physmem.Refup(phys)
				continue
			}

			// private mapping: clear W, set COW in the parent's PTE too,
			// so a write by the parent after fork also takes the COW
			// fault path and splits the page rather than mutating the
			// child's shared copy.
			*pte = (*pte &^ (PTE_W | PTE_WASCOW)) | PTE_COW

			cpte, cerr := pmap_walk(child.Pmap, va, PTE_U|PTE_W)
			if cerr != 0 {
				child.Uvmfree()
				return nil, -defs.ENOMEM
			}
			*cpte = *pte
			mem.Physmem.Refup(phys)
		}
		as.Tlbshoot(start, vmi.Pglen)
	}

	return child, 0
}

// Destroy tears down an address space no thread will ever run again:
// every mapped page is dropped and the top-level page table itself is
// released, the Go analogue of vm_space_destroy.
func (as *Vm_t) Destroy() {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	as.Uvmfree()
}
