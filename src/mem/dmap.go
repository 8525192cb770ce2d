package mem

// lowest userspace address

/// VUSER is the first user-space page-table slot, kept as a scaling
/// factor for USERMIN so the address layout still resembles the
/// four-level paging scheme this kernel mimics.
const VUSER int = 0x59

/// USERMIN is the lowest user virtual address.
const USERMIN int = VUSER << 39

func shl(c uint) uint {
	return 12 + 9*c
}

func pgbits(v uint) (uint, uint, uint, uint) {
	lb := func(c uint) uint {
		return (v >> shl(c)) & 0x1ff
	}
	return lb(3), lb(2), lb(1), lb(0)
}

func mkpg(l4 int, l3 int, l2 int, l1 int) int {
	lb := func(c uint) uint {
		var ret uint
		switch c {
		case 3:
			ret = uint(l4) & 0x1ff
		case 2:
			ret = uint(l3) & 0x1ff
		case 1:
			ret = uint(l2) & 0x1ff
		case 0:
			ret = uint(l1) & 0x1ff
		}
		return ret << shl(c)
	}

	return int(lb(3) | lb(2) | lb(1) | lb(0))
}

/// Kent_t records a kernel page-map entry. The original kernel used this
/// to remember which PML4 slots the boot loader/runtime had already wired
/// up so its direct-map installer could detect collisions; we keep the
/// type only so vm's page-table walker (which targets the same slot
/// layout) has somewhere to describe a reserved kernel slot, though this
/// simulation never populates it from real hardware paging structures.
type Kent_t struct {
	Pml4slot int
	Entry    Pa_t
}

/// Zerobpg is a byte representation of the zero page.
var Zerobpg *Bytepg_t

/// P_zeropg is the physical address of Zerobpg.
var P_zeropg Pa_t
