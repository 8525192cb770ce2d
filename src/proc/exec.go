package proc

import (
	"bytes"
	"debug/elf"
	"io"

	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/mem"
	"github.com/aglotoff/codename-argentum/src/stat"
	"github.com/aglotoff/codename-argentum/src/ustr"
	"github.com/aglotoff/codename-argentum/src/vm"
)

// execStackPages sizes the zero-filled stack a freshly exec'd process
// starts with, process_exec carving out a fixed
// stack VMA rather than growing one dynamically.
const execStackPages = 16

// execStackTop is one page below the next untouched gigabyte of user
// address space above USERMIN, leaving the program image itself (text,
// data, bss) all the room below it that a PT_LOAD segment's Vaddr is
// ever likely to ask for.
const execStackTop = mem.USERMIN + 0x40000000

// Exec replaces p's address space with the ELF image at path, the Go
// analogue of process_exec. fs.File_t.Mmapi is an
// explicit ENOSYS stub (demand-paged file mappings are a Non-goal), so
// unlike a real process_exec this loads every PT_LOAD segment eagerly:
// read the whole segment from the backing file into freshly allocated
// physical pages and Page_insert them, rather than registering a
// VFILE vmregion and letting page faults pull pages in on demand.
func (p *Process_t) Exec(path ustr.Ustr, argv, envp []string) defs.Err_t {
	if fsRoot == nil {
		return -defs.ENOENT
	}

	fil, err := fsRoot.Fs_open(path, defs.O_RDONLY, 0, p.Cwd, p.Cr(), 0, 0)
	if err != 0 {
		return err
	}
	defer fil.Fops.Close()

	var st stat.Stat_t
	if err := fil.Fops.Fstat(&st); err != 0 {
		return err
	}
	raw := make([]byte, st.Size())
	var fb vm.Fakeubuf_t
	fb.Fake_init(raw)
	if _, err := fil.Fops.Read(&fb); err != 0 {
		return err
	}

	ef, eerr := elf.NewFile(bytes.NewReader(raw))
	if eerr != nil {
		return -defs.EINVAL
	}
	if eerr := checkExecElf(ef); eerr != 0 {
		return eerr
	}

	newas, aerr := vm.NewAddressSpace()
	if aerr != 0 {
		return aerr
	}

	for _, seg := range ef.Progs {
		if seg.Type != elf.PT_LOAD {
			continue
		}
		if err := loadSegment(newas, seg); err != 0 {
			newas.Destroy()
			return err
		}
	}

	sp, serr := setupExecStack(newas, argv, envp)
	if serr != 0 {
		newas.Destroy()
		return serr
	}

	oldas := p.Vm
	p.Vm = newas
	p.Entry = uintptr(ef.Entry)
	p.Sp = sp
	if n := len(argv); n > 0 {
		p.Name = argv[0]
	}
	if oldas != nil {
		oldas.Destroy()
	}
	return 0
}

// checkExecElf rejects anything process_exec's eager loader has no
// business trying to run: not an executable, or built for some other
// machine than the one cmd/chentry already assumes this kernel targets.
func checkExecElf(ef *elf.File) defs.Err_t {
	if ef.Type != elf.ET_EXEC {
		return -defs.EINVAL
	}
	if ef.Machine != elf.EM_X86_64 {
		return -defs.EINVAL
	}
	return 0
}

// loadSegment copies one PT_LOAD segment's file contents into freshly
// allocated, zeroed physical pages and maps them at the segment's
// virtual address range with permissions taken from the segment's
// ELF flags, recording that range as an anonymous region of as.
func loadSegment(as *vm.Vm_t, seg *elf.Prog) defs.Err_t {
	perms := mem.Pa_t(vm.PTE_U)
	if seg.Flags&elf.PF_W != 0 {
		perms |= vm.PTE_W
	}

	start := int(seg.Vaddr) &^ (mem.PGSIZE - 1)
	end := int(seg.Vaddr+seg.Memsz-1) &^ (mem.PGSIZE - 1)
	npages := (end-start)/mem.PGSIZE + 1

	segStart := int(seg.Vaddr)
	segFileEnd := int(seg.Vaddr + seg.Filesz)
	r := seg.Open()

	as.Lock_pmap()
	defer as.Unlock_pmap()

	as.Vmadd_anon(start, npages*mem.PGSIZE, perms)

	for i := 0; i < npages; i++ {
		va := start + i*mem.PGSIZE
		pageEnd := va + mem.PGSIZE

		pg, p_pg, ok := mem.Physmem.Refpg_new()
		if !ok {
			return -defs.ENOMEM
		}
		dst := mem.Pg2bytes(pg)[:]

		lo := va
		if lo < segStart {
			lo = segStart
		}
		hi := pageEnd
		if hi > segFileEnd {
			hi = segFileEnd
		}
		if hi > lo {
			fileOff := int64(lo - segStart)
			if _, serr := r.Seek(fileOff, io.SeekStart); serr != nil {
				mem.Physmem.Refdown(p_pg)
				return -defs.EIO
			}
			if _, rerr := io.ReadFull(r, dst[lo-va:hi-va]); rerr != nil {
				mem.Physmem.Refdown(p_pg)
				return -defs.EIO
			}
		}

		if _, okins := as.Page_insert(va, p_pg, perms, true, nil); !okins {
			mem.Physmem.Refdown(p_pg)
			return -defs.ENOMEM
		}
		mem.Physmem.Refdown(p_pg)
	}
	return 0
}

// setupExecStack maps the fixed-size stack region and writes argv/envp
// onto its top page: an argc, an argv pointer array, an envp pointer
// array (both NULL-terminated), and the backing strings themselves,
// the usual _start(argc, argv, envp) layout a libc crt0 expects.
func setupExecStack(as *vm.Vm_t, argv, envp []string) (uintptr, defs.Err_t) {
	stackBase := execStackTop - execStackPages*mem.PGSIZE

	as.Lock_pmap()
	defer as.Unlock_pmap()

	as.Vmadd_anon(stackBase, execStackPages*mem.PGSIZE, mem.Pa_t(vm.PTE_U|vm.PTE_W))

	pg, p_pg, ok := mem.Physmem.Refpg_new()
	if !ok {
		return 0, -defs.ENOMEM
	}
	buf := mem.Pg2bytes(pg)[:]

	strs := make([]string, 0, len(argv)+len(envp))
	strs = append(strs, argv...)
	strs = append(strs, envp...)

	// lay the strings out from the end of the page backward
	off := mem.PGSIZE
	strva := make([]int, len(strs))
	for i, s := range strs {
		b := append([]byte(s), 0)
		off -= len(b)
		copy(buf[off:], b)
		strva[i] = execStackTop - mem.PGSIZE + off
	}

	// pointer arrays (argv then envp, each NULL-terminated), below the
	// strings, followed by argc at the very bottom of the used region
	ptrsz := 8
	nptrs := len(argv) + 1 + len(envp) + 1
	ptrsOff := off - nptrs*ptrsz
	ptrsOff &^= ptrsz - 1

	w := ptrsOff
	for i := range argv {
		putle64(buf[w:], uint64(strva[i]))
		w += ptrsz
	}
	putle64(buf[w:], 0)
	w += ptrsz
	for i := range envp {
		putle64(buf[w:], uint64(strva[len(argv)+i]))
		w += ptrsz
	}
	putle64(buf[w:], 0)

	argcOff := ptrsOff - ptrsz
	putle64(buf[argcOff:], uint64(len(argv)))

	vtop := execStackTop - mem.PGSIZE
	if _, ok := as.Page_insert(vtop, p_pg, mem.Pa_t(vm.PTE_U|vm.PTE_W), true, nil); !ok {
		mem.Physmem.Refdown(p_pg)
		return 0, -defs.ENOMEM
	}
	mem.Physmem.Refdown(p_pg)

	return uintptr(vtop + argcOff), 0
}

func putle64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}
