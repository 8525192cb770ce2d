package proc

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/fd"
	"github.com/aglotoff/codename-argentum/src/fdops"
	"github.com/aglotoff/codename-argentum/src/fs"
	"github.com/aglotoff/codename-argentum/src/mem"
	"github.com/aglotoff/codename-argentum/src/ustr"
	"github.com/aglotoff/codename-argentum/src/vm"
)

const testElfVaddr = 0x400000

// execMemDisk_t is a fs.Disk_i backed by a byte slice, standing in for
// the real file-backed ahci_disk_t ufs boots from: these tests only
// need Exec's filesystem reads to work, not a host-visible image.
type execMemDisk_t struct {
	mu   sync.Mutex
	data []byte
}

func (d *execMemDisk_t) Truncate(size int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int64(len(d.data)) < size {
		grown := make([]byte, size)
		copy(grown, d.data)
		d.data = grown
	}
	return nil
}

func (d *execMemDisk_t) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.data[off:], p)
	return len(p), nil
}

func (d *execMemDisk_t) Start(req *fs.Bdev_req_t) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch req.Cmd {
	case fs.BDEV_READ:
		blk := req.Blks.FrontBlock()
		blk.Data = &mem.Bytepg_t{}
		off := blk.Block * fs.BSIZE
		copy(blk.Data[:], d.data[off:off+fs.BSIZE])
	case fs.BDEV_WRITE:
		for b := req.Blks.FrontBlock(); b != nil; b = req.Blks.NextBlock() {
			off := b.Block * fs.BSIZE
			copy(d.data[off:off+fs.BSIZE], b.Data[:])
			b.Done("test")
		}
	}
	return false
}

func (d *execMemDisk_t) Stats() string { return "" }

type execMemBlockmem_t struct{}

func (execMemBlockmem_t) Alloc() (mem.Pa_t, *mem.Bytepg_t, bool) { return 0, &mem.Bytepg_t{}, true }
func (execMemBlockmem_t) Free(mem.Pa_t)                          {}
func (execMemBlockmem_t) Refup(mem.Pa_t)                         {}

type execStubConsole_t struct{}

func (execStubConsole_t) Cons_poll(fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t) { return 0, 0 }
func (execStubConsole_t) Cons_read(fdops.Userio_i, int) (int, defs.Err_t)       { return 0, 0 }
func (execStubConsole_t) Cons_write(fdops.Userio_i, int) (int, defs.Err_t)      { return 0, 0 }

// buildMinimalElf assembles the smallest ET_EXEC/EM_X86_64 image
// debug/elf will parse: a file header plus one PT_LOAD program header
// covering text, with no section headers at all (Exec never reads
// them). Standing in for a real compiled binary in these tests the way
// a hand-assembled image would in usertests.c.
func buildMinimalElf(t *testing.T, entry uint64, text []byte) []byte {
	t.Helper()

	const ehsize = 64
	const phsize = 56

	buf := make([]byte, ehsize+phsize+len(text))

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT

	le := binary.LittleEndian
	le.PutUint16(buf[16:], 2)              // e_type = ET_EXEC
	le.PutUint16(buf[18:], 62)             // e_machine = EM_X86_64
	le.PutUint32(buf[20:], 1)              // e_version
	le.PutUint64(buf[24:], entry)          // e_entry
	le.PutUint64(buf[32:], uint64(ehsize)) // e_phoff
	le.PutUint16(buf[52:], ehsize)         // e_ehsize
	le.PutUint16(buf[54:], phsize)         // e_phentsize
	le.PutUint16(buf[56:], 1)              // e_phnum

	ph := buf[ehsize:]
	le.PutUint32(ph[0:], 1)                     // p_type = PT_LOAD
	le.PutUint32(ph[4:], 5)                     // p_flags = R|X
	le.PutUint64(ph[8:], uint64(ehsize+phsize)) // p_offset
	le.PutUint64(ph[16:], testElfVaddr)         // p_vaddr
	le.PutUint64(ph[24:], testElfVaddr)         // p_paddr
	le.PutUint64(ph[32:], uint64(len(text)))    // p_filesz
	le.PutUint64(ph[40:], uint64(len(text)))    // p_memsz
	le.PutUint64(ph[48:], uint64(mem.PGSIZE))   // p_align

	copy(buf[ehsize+phsize:], text)
	return buf
}

// mkTestFSProcess boots a fresh in-memory filesystem, installs it as
// the process package's root filesystem, and hands back a process
// whose cwd is that filesystem's root. Exec has no other way to reach
// a filesystem (fsRoot is package-global, set once at boot).
func mkTestFSProcess(t *testing.T) *Process_t {
	t.Helper()

	disk := &execMemDisk_t{}
	require.NoError(t, fs.Format(disk, 8, 4, 256))
	_, fsys := fs.StartFS(execMemBlockmem_t{}, disk, execStubConsole_t{}, true)
	SetRootFS(fsys)
	t.Cleanup(func() { SetRootFS(nil) })

	p := mkTestProcess(t)
	p.Cwd = fsys.MkRootCwd()
	return p
}

func writeFile(t *testing.T, cwd *fd.Cwd_t, path string, data []byte) {
	t.Helper()
	f, err := fsRoot.Fs_open(ustr.Ustr(path), defs.O_CREAT|defs.O_RDWR, 0755, cwd, fd.Root(), 0, 0)
	require.Zero(t, err)

	ub := &vm.Fakeubuf_t{}
	ub.Fake_init(data)
	n, err := f.Fops.Write(ub)
	require.Zero(t, err)
	require.Equal(t, len(data), n)
	require.Zero(t, f.Fops.Close())
}

func TestExecLoadsElfAndSetsEntry(t *testing.T) {
	p := mkTestFSProcess(t)

	img := buildMinimalElf(t, testElfVaddr, []byte{0x90, 0x90, 0xc3})
	writeFile(t, p.Cwd, "/prog", img)

	oldVm := p.Vm
	err := p.Exec(ustr.Ustr("/prog"), []string{"prog"}, nil)
	require.Zero(t, err)

	assert.Equal(t, uintptr(testElfVaddr), p.Entry)
	assert.NotSame(t, oldVm, p.Vm)
	assert.Equal(t, "prog", p.Name)
	assert.NotZero(t, p.Sp)

	v, err := p.Vm.Userreadn(testElfVaddr, 1)
	require.Zero(t, err)
	assert.Equal(t, 0x90, v)
}

func TestExecRejectsNonExecutableMachine(t *testing.T) {
	p := mkTestFSProcess(t)

	img := buildMinimalElf(t, testElfVaddr, []byte{0x90})
	// flip e_machine to something this kernel does not target.
	binary.LittleEndian.PutUint16(img[18:], 3)
	writeFile(t, p.Cwd, "/bad", img)

	err := p.Exec(ustr.Ustr("/bad"), nil, nil)
	assert.Equal(t, -defs.EINVAL, err)
}

func TestExecMissingPathReturnsENOENT(t *testing.T) {
	p := mkTestFSProcess(t)
	err := p.Exec(ustr.Ustr("/nope"), nil, nil)
	assert.Equal(t, -defs.ENOENT, err)
}
