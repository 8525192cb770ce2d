package vm

import (
	"unsafe"

	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/mem"
)

// This kernel's page table is a plain four-level radix tree over
// mem.Pmap_t pages, the same shape mem/dmap.go's shl/pgbits/mkpg helpers
// describe (mem's are unexported, so pgbits below is vm's own copy of
// the index split). mem defines the hardware-meaningful PTE bits (present,
// writable, user, global, page-cache-disable, page-size, address mask);
// the bits below are software-only, carved out of the bits real x86-64
// hardware reserves for OS use, and exist only so the fault handler can
// tell a copy-on-write page from an ordinary one.

const (
	PGSHIFT = mem.PGSHIFT
	PGOFFSET = mem.PGOFFSET

	PTE_P    = mem.PTE_P
	PTE_W    = mem.PTE_W
	PTE_U    = mem.PTE_U
	PTE_G    = mem.PTE_G
	PTE_PCD  = mem.PTE_PCD
	PTE_PS   = mem.PTE_PS
	PTE_ADDR = mem.PTE_ADDR

	// PTE_A and PTE_D mirror the hardware accessed/dirty bits; kept
	// distinct from mem's hardware set because nothing outside vm's own
	// fault handler needs to know about them.
	PTE_A mem.Pa_t = 1 << 5
	PTE_D mem.Pa_t = 1 << 6

	// PTE_COW and PTE_WASCOW are software-defined bits (available for OS
	// use in any real PTE format) that the page-fault handler uses to
	// track copy-on-write state: COW means "this mapping must copy
	// before writing"; WASCOW means "this page used to be COW but this
	// fault claimed it outright" (recorded for bookkeeping/debugging).
	PTE_COW     mem.Pa_t = 1 << 9
	PTE_WASCOW  mem.Pa_t = 1 << 10
)

// pmap_walk returns a pointer to the PTE that would map va in pmap,
// allocating the intervening page-table levels (with the given perms)
// if they don't exist yet. It returns a nil pte and a non-zero error
// only if a page-table page could not be allocated.
func pmap_walk(pmap *mem.Pmap_t, va int, perms mem.Pa_t) (*mem.Pa_t, defs.Err_t) {
	v := uint(va)
	l4i, l3i, l2i, l1i := pgbits(v)

	cur := pmap
	for _, idx := range []uint{l4i, l3i, l2i} {
		pte := &cur[idx]
		if *pte&PTE_P == 0 {
			next, p_next, ok := mem.Physmem.Pmap_new()
			if !ok {
				return nil, -defs.ENOMEM
			}
			*pte = p_next | perms | PTE_P
			cur = next
		} else {
			cur = pg2pmapConv(mem.Physmem.Dmap(mem.Pa_t(*pte & PTE_ADDR)))
			// propagate any new permission bits up the chain, matching
			// the original's "walk installs the loosest perms seen"
			// convention for intermediate tables.
			*pte |= perms & (PTE_W | PTE_U)
		}
	}
	return &cur[l1i], 0
}

// Pmap_lookup returns a pointer to the PTE mapping va in pmap, or nil if
// any level of the page table is not present. Unlike pmap_walk it never
// allocates.
func Pmap_lookup(pmap *mem.Pmap_t, va int) *mem.Pa_t {
	v := uint(va)
	l4i, l3i, l2i, l1i := pgbits(v)

	cur := pmap
	for _, idx := range []uint{l4i, l3i, l2i} {
		pte := &cur[idx]
		if *pte&PTE_P == 0 {
			return nil
		}
		cur = pg2pmapConv(mem.Physmem.Dmap(mem.Pa_t(*pte & PTE_ADDR)))
	}
	return &cur[l1i]
}

func pg2pmapConv(pg *mem.Pg_t) *mem.Pmap_t {
	return (*mem.Pmap_t)(unsafe.Pointer(pg))
}

// pgbits splits v into its four 9-bit page-table indices, top level
// first.
func pgbits(v uint) (uint, uint, uint, uint) {
	lb := func(c uint) uint {
		return (v >> (12 + 9*c)) & 0x1ff
	}
	return lb(3), lb(2), lb(1), lb(0)
}

// Uvmfree_inner walks every user mapping recorded in vmreg, drops the
// physical pages it references, and releases the page-table pages
// themselves. It is the counterpart of fs_inode_destroy-style teardown,
// but for an address space instead of an inode.
func Uvmfree_inner(pmap *mem.Pmap_t, p_pmap mem.Pa_t, vmreg *Vmregion_t) {
	for _, vmi := range vmreg.regions {
		start := uintptr(vmi.Pgn) << PGSHIFT
		for pg := 0; pg < vmi.Pglen; pg++ {
			va := int(start) + pg<<PGSHIFT
			pte := Pmap_lookup(pmap, va)
			if pte == nil || *pte&PTE_P == 0 {
				continue
			}
			p_old := mem.Pa_t(*pte & PTE_ADDR)
			*pte = 0
			mem.Physmem.Refdown(p_old)
		}
	}
	freeUserPmapLevels(pmap, 3)
}

// freeUserPmapLevels walks the non-leaf levels of pmap, recursively
// freeing any user (PTE_U) page-table pages the teardown above emptied.
// Kernel-only slots (no PTE_U) are never touched: they are shared across
// every address space.
func freeUserPmapLevels(pmap *mem.Pmap_t, level int) {
	if level == 0 {
		return
	}
	for i, pte := range pmap {
		if pte&PTE_U == 0 || pte&PTE_P == 0 {
			continue
		}
		child := pg2pmapConv(mem.Physmem.Dmap(mem.Pa_t(pte & PTE_ADDR)))
		freeUserPmapLevels(child, level-1)
		mem.Physmem.Refdown(mem.Pa_t(pte & PTE_ADDR))
		pmap[i] = 0
	}
}
