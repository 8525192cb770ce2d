package fs

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/fd"
	"github.com/aglotoff/codename-argentum/src/fdops"
	"github.com/aglotoff/codename-argentum/src/mem"
	"github.com/aglotoff/codename-argentum/src/stat"
	"github.com/aglotoff/codename-argentum/src/ustr"
	"github.com/aglotoff/codename-argentum/src/vm"
)

// memDisk_t is a Disk_i backed by a plain byte slice instead of a real
// file, the same role ufs's ahci_disk_t plays for cmd/mkfs but without
// touching the host filesystem, so these tests run against the exact
// block geometry Format lays out without any os.File bookkeeping.
type memDisk_t struct {
	mu   sync.Mutex
	data []byte
}

func (d *memDisk_t) Truncate(size int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int64(len(d.data)) < size {
		grown := make([]byte, size)
		copy(grown, d.data)
		d.data = grown
	}
	return nil
}

func (d *memDisk_t) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.data[off:], p)
	return len(p), nil
}

func (d *memDisk_t) Start(req *Bdev_req_t) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch req.Cmd {
	case BDEV_READ:
		blk := req.Blks.FrontBlock()
		blk.Data = &mem.Bytepg_t{}
		off := blk.Block * BSIZE
		copy(blk.Data[:], d.data[off:off+BSIZE])
	case BDEV_WRITE:
		for b := req.Blks.FrontBlock(); b != nil; b = req.Blks.NextBlock() {
			off := b.Block * BSIZE
			copy(d.data[off:off+BSIZE], b.Data[:])
			b.Done("test")
		}
	case BDEV_FLUSH:
	}
	return false
}

func (d *memDisk_t) Stats() string { return "" }

type memBlockmem_t struct{}

func (memBlockmem_t) Alloc() (mem.Pa_t, *mem.Bytepg_t, bool) { return 0, &mem.Bytepg_t{}, true }
func (memBlockmem_t) Free(mem.Pa_t)                          {}
func (memBlockmem_t) Refup(mem.Pa_t)                         {}

type stubConsole_t struct{}

func (stubConsole_t) Cons_poll(fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t) { return 0, 0 }
func (stubConsole_t) Cons_read(fdops.Userio_i, int) (int, defs.Err_t)       { return 0, 0 }
func (stubConsole_t) Cons_write(fdops.Userio_i, int) (int, defs.Err_t)      { return 0, 0 }

// mkTestFS formats a fresh small filesystem in memory and mounts it,
// returning the Fs_t and the root Cwd_t every syscall-facing test walks
// paths relative to.
func mkTestFS(t *testing.T) (*Fs_t, *fd.Cwd_t) {
	t.Helper()
	disk := &memDisk_t{}
	require.NoError(t, Format(disk, 8, 4, 256))

	_, fsys := StartFS(memBlockmem_t{}, disk, stubConsole_t{}, true)
	cwd := fsys.MkRootCwd()
	return fsys, cwd
}

func writeAll(t *testing.T, f *fd.Fd_t, data []byte) {
	t.Helper()
	ub := &vm.Fakeubuf_t{}
	ub.Fake_init(data)
	n, err := f.Fops.Write(ub)
	require.Zero(t, err)
	require.Equal(t, len(data), n)
}

func readAll(t *testing.T, f *fd.Fd_t, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	ub := &vm.Fakeubuf_t{}
	ub.Fake_init(buf)
	got, err := f.Fops.Read(ub)
	require.Zero(t, err)
	return buf[:got]
}

func TestCreateWriteReadFile(t *testing.T) {
	fsys, cwd := mkTestFS(t)

	f, err := fsys.Fs_open(ustr.Ustr("/hello"), defs.O_CREAT|defs.O_RDWR, 0644, cwd, fd.Root(), 0, 0)
	require.Zero(t, err)

	writeAll(t, f, []byte("hello, world"))
	require.Zero(t, f.Fops.Close())

	f2, err := fsys.Fs_open(ustr.Ustr("/hello"), defs.O_RDONLY, 0, cwd, fd.Root(), 0, 0)
	require.Zero(t, err)
	defer f2.Fops.Close()

	got := readAll(t, f2, 64)
	assert.Equal(t, "hello, world", string(got))
}

func TestMkdirAndLookup(t *testing.T) {
	fsys, cwd := mkTestFS(t)

	require.Zero(t, fsys.Fs_mkdir(ustr.Ustr("/dir"), 0755, cwd, fd.Root()))

	f, err := fsys.Fs_open(ustr.Ustr("/dir/file"), defs.O_CREAT|defs.O_RDWR, 0644, cwd, fd.Root(), 0, 0)
	require.Zero(t, err)
	require.Zero(t, f.Fops.Close())

	var st stat.Stat_t
	require.Zero(t, fsys.Fs_stat(ustr.Ustr("/dir/file"), &st, cwd, fd.Root()))
	assert.Equal(t, uint(0), st.Size())

	_, err = fsys.Fs_open(ustr.Ustr("/dir/missing"), defs.O_RDONLY, 0, cwd, fd.Root(), 0, 0)
	assert.Equal(t, -defs.ENOENT, err)
}

func TestUnlinkRemovesFile(t *testing.T) {
	fsys, cwd := mkTestFS(t)

	f, err := fsys.Fs_open(ustr.Ustr("/gone"), defs.O_CREAT|defs.O_RDWR, 0644, cwd, fd.Root(), 0, 0)
	require.Zero(t, err)
	require.Zero(t, f.Fops.Close())

	require.Zero(t, fsys.Fs_unlink(ustr.Ustr("/gone"), cwd, false, fd.Root()))

	_, err = fsys.Fs_open(ustr.Ustr("/gone"), defs.O_RDONLY, 0, cwd, fd.Root(), 0, 0)
	assert.Equal(t, -defs.ENOENT, err)
}

func TestRenameMovesFile(t *testing.T) {
	fsys, cwd := mkTestFS(t)

	f, err := fsys.Fs_open(ustr.Ustr("/old"), defs.O_CREAT|defs.O_RDWR, 0644, cwd, fd.Root(), 0, 0)
	require.Zero(t, err)
	writeAll(t, f, []byte("payload"))
	require.Zero(t, f.Fops.Close())

	require.Zero(t, fsys.Fs_rename(ustr.Ustr("/old"), ustr.Ustr("/new"), cwd, fd.Root()))

	_, err = fsys.Fs_open(ustr.Ustr("/old"), defs.O_RDONLY, 0, cwd, fd.Root(), 0, 0)
	assert.Equal(t, -defs.ENOENT, err)

	f2, err := fsys.Fs_open(ustr.Ustr("/new"), defs.O_RDONLY, 0, cwd, fd.Root(), 0, 0)
	require.Zero(t, err)
	defer f2.Fops.Close()
	assert.True(t, bytes.Equal([]byte("payload"), readAll(t, f2, 64)))
}

func TestPermissionDeniedForOtherUid(t *testing.T) {
	fsys, cwd := mkTestFS(t)

	// "/" is owned by root with mode 0755, so uid 1 creates its file in
	// a world-writable directory instead.
	require.Zero(t, fsys.Fs_mkdir(ustr.Ustr("/shared"), 0777, cwd, fd.Root()))

	owner := &fd.Cred_t{Uid: 1, Gid: 1}
	f, err := fsys.Fs_open(ustr.Ustr("/shared/private"), defs.O_CREAT|defs.O_RDWR, 0600, cwd, owner, 0, 0)
	require.Zero(t, err)
	require.Zero(t, f.Fops.Close())

	other := &fd.Cred_t{Uid: 2, Gid: 2}
	_, err = fsys.Fs_open(ustr.Ustr("/shared/private"), defs.O_RDONLY, 0, cwd, other, 0, 0)
	assert.Equal(t, -defs.EACCES, err)
}

func TestFsyncSucceeds(t *testing.T) {
	fsys, _ := mkTestFS(t)
	assert.Zero(t, fsys.Fs_sync())
}
