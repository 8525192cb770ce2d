package vm

import (
	"sort"

	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/fdops"
	"github.com/aglotoff/codename-argentum/src/mem"
)

// mtype_t classifies a Vminfo_t mapping, mirroring the flags field of
// struct VMSpaceMapEntry (anonymous vs. file-backed,
// private vs. shared).
type mtype_t int

const (
	// VANON is a private, zero-fill-on-demand anonymous mapping (heap,
	// stack, bss). Forked children COW-share its pages with the parent.
	VANON mtype_t = iota
	// VFILE is a private, copy-on-write mapping of a regular file
	// (program text/data segments loaded from an inode).
	VFILE
	// VSANON is a shared anonymous mapping (POSIX MAP_ANON|MAP_SHARED):
	// never COW'd, always mapped eagerly so every sharer sees writes.
	VSANON
)

// Mfile_t describes the backing file of a VFILE mapping: the operations
// used to fault pages in, an optional unpin callback invoked when a
// shared mapping is torn down, and the outstanding mapped-page count.
type Mfile_t struct {
	mfops    fdops.Fdops_i
	unpin    mem.Unpin_i
	mapcount int
}

// Vminfo_t is one contiguous mapped region of an address space: the Go
// analogue of struct VMSpaceMapEntry, generalized with
// the bookkeeping the demand-paging fault handler needs (Mtype, and for
// VFILE mappings, the backing Mfile_t and its starting offset).
type Vminfo_t struct {
	Mtype mtype_t
	Pgn   uintptr
	Pglen int
	Perms uint

	file struct {
		foff   int
		mfile  *Mfile_t
		shared bool
	}
}

// Ptefor returns the PTE slot (allocating page-table levels as needed)
// for the page of this mapping containing va.
func (vmi *Vminfo_t) Ptefor(pmap *mem.Pmap_t, va uintptr) (*mem.Pa_t, bool) {
	perms := mem.Pa_t(PTE_U)
	if vmi.Perms&uint(PTE_W) != 0 {
		perms |= PTE_W
	}
	pte, err := pmap_walk(pmap, int(va), perms)
	if err != 0 {
		return nil, false
	}
	return pte, true
}

// Filepage returns the page backing faultaddr within this VFILE mapping,
// reading it in through the mapping's Fdops_i if it is not already
// cached. Shared mappings keep a single page per file offset (so writes
// through any mapper are visible to all); private mappings are handled
// by the page-fault handler's own COW path and call Filepage only to
// seed the initial (read-only) copy.
func (vmi *Vminfo_t) Filepage(faultaddr uintptr) (*mem.Pg_t, mem.Pa_t, defs.Err_t) {
	if vmi.Mtype != VFILE {
		panic("not a file mapping")
	}
	pg := uintptr(faultaddr)>>PGSHIFT - vmi.Pgn
	off := vmi.file.foff + int(pg)<<PGSHIFT
	return vmi.file.mfile.mfops.Mmapi(off, 1, vmi.file.shared)
}

// Vmregion_t is the sorted, non-overlapping list of mapped regions that
// make up a VMSpace, matching intrusive "areas" list
// off struct VMSpace — except indexed by page number, since unlike a
// linked list a slice lets Lookup binary-search instead of walking.
type Vmregion_t struct {
	regions []*Vminfo_t
}

// Lookup finds the mapping, if any, covering virtual address va.
func (vr *Vmregion_t) Lookup(va uintptr) (*Vminfo_t, bool) {
	pgn := va >> PGSHIFT
	i := sort.Search(len(vr.regions), func(i int) bool {
		return vr.regions[i].Pgn+uintptr(vr.regions[i].Pglen) > pgn
	})
	if i < len(vr.regions) && vr.regions[i].Pgn <= pgn {
		return vr.regions[i], true
	}
	return nil, false
}

// insert adds vmi to the region list, keeping it sorted by starting page
// number. It panics if vmi overlaps an existing mapping — the caller
// (Vmadd_*) is responsible for choosing a free range first, exactly as
// vm_range_alloc finds free space before calling
// vm_space_alloc.
func (vr *Vmregion_t) insert(vmi *Vminfo_t) {
	if vmi.Mtype == VFILE && vmi.file.mfile != nil && vmi.file.mfile.mfops != nil {
		vmi.file.mfile.mfops.Reopen()
	}
	i := sort.Search(len(vr.regions), func(i int) bool {
		return vr.regions[i].Pgn >= vmi.Pgn
	})
	if i < len(vr.regions) && vr.regions[i].Pgn < vmi.Pgn+uintptr(vmi.Pglen) {
		panic("overlapping vm region")
	}
	if i > 0 {
		prev := vr.regions[i-1]
		if prev.Pgn+uintptr(prev.Pglen) > vmi.Pgn {
			panic("overlapping vm region")
		}
	}
	vr.regions = append(vr.regions, nil)
	copy(vr.regions[i+1:], vr.regions[i:])
	vr.regions[i] = vmi
}

// empty finds the first unused page range of at least length bytes at
// or after startva, returning its start and length itself (not the size
// of the free gap found). It implements the search half of
// vm_range_alloc.
func (vr *Vmregion_t) empty(startva, length uintptr) (uintptr, uintptr) {
	want := startva >> PGSHIFT
	for _, vmi := range vr.regions {
		end := vmi.Pgn + uintptr(vmi.Pglen)
		if want+((length+mem.PGOFFSET)>>PGSHIFT) <= vmi.Pgn {
			break
		}
		if want < end {
			want = end
		}
	}
	return want << PGSHIFT, length
}

// Clear drops every region, releasing any open file references they
// held. It does not touch the page table; callers unmap pages (and free
// page-table levels) separately via Uvmfree_inner before calling Clear.
func (vr *Vmregion_t) Clear() {
	for _, vmi := range vr.regions {
		if vmi.Mtype == VFILE && vmi.file.mfile != nil {
			if vmi.file.mfile.unpin != nil {
				vmi.file.mfile.unpin.Unpin(0)
			}
			if vmi.file.mfile.mfops != nil {
				vmi.file.mfile.mfops.Close()
			}
		}
	}
	vr.regions = nil
}

// Clone deep-copies the region list for fork, taking another reference
// on each VFILE mapping's backing file. It does not touch any page
// table: the caller (Vm_t.Fork) walks the returned list and installs
// PTE_COW on the present PTEs in both tables, matching vm_space_clone.
func (vr *Vmregion_t) Clone() *Vmregion_t {
	nr := &Vmregion_t{regions: make([]*Vminfo_t, len(vr.regions))}
	for i, vmi := range vr.regions {
		cp := *vmi
		if cp.Mtype == VFILE && cp.file.mfile != nil {
			cp.file.mfile.mfops.Reopen()
		}
		nr.regions[i] = &cp
	}
	return nr
}
