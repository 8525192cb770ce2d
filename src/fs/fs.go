// Package fs implements the kernel's on-disk filesystem: a buffer
// cache, an inode cache, path resolution, and the syscall-facing
// Fs_t operations (open/mkdir/rename/unlink/stat). Grounded on
// kernel/fs/fs.c and kernel/fs/inode.c, with no journaling — writes
// go straight to the buffer cache and are flushed synchronously, so a
// crash mid-rename can leave the two directories inconsistent the way
// a non-journaled xv6-style filesystem would.
package fs

import (
	"sync"

	"github.com/google/uuid"

	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/fd"
	"github.com/aglotoff/codename-argentum/src/fdops"
	"github.com/aglotoff/codename-argentum/src/stat"
	"github.com/aglotoff/codename-argentum/src/ustr"
)

// Console_i is the set of operations Fs_t needs from a console device
// to satisfy opens of /dev/console, kept deliberately tiny: no ioctl,
// no line discipline, just enough to read/write/poll.
type Console_i interface {
	Cons_poll(fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t)
	Cons_read(fdops.Userio_i, int) (int, defs.Err_t)
	Cons_write(fdops.Userio_i, int) (int, defs.Err_t)
}

const rootIno = 1

// Fs_t is the filesystem instance bound to one backing disk.
type Fs_t struct {
	bcache *Bcache_t
	icache *Icache_t
	sb     *Superblock_t
	disk   Disk_i
	cons   Console_i

	imap   *bitmap_t
	bmap   *bitmap_t

	logstart   int
	inodestart int

	// renamelock serializes whole-tree Fs_rename calls against each
	// other (Fs_unlink does not take it); a global lock is often taken
	// across a rename because a path from root could otherwise be
	// invalidated mid-walk by a concurrent rename.
	renamelock sync.Mutex

	// Uuid identifies this particular mount instance, the ext2
	// s_uuid superblock field's analogue. The trimmed Superblock_t
	// this kernel reads off disk carries no such field, so it is
	// generated fresh each time StartFS mounts a filesystem rather
	// than persisted.
	Uuid uuid.UUID
}

func (fs *Fs_t) inodeblk(ino int) int {
	return fs.inodestart + (ino-1)/INOPB
}

func (fs *Fs_t) balloc() int {
	bit := fs.bmap.alloc()
	if bit < 0 {
		return 0
	}
	blk := bit
	if blk == 0 {
		// block 0 is never a valid data block number (0 means "hole"
		// in Inode_t.direct); skip it by reserving bit 0 permanently.
		return fs.balloc()
	}
	return blk
}

func (fs *Fs_t) bfree(blk int) {
	if blk == 0 {
		return
	}
	fs.bmap.free(blk)
}

func (fs *Fs_t) ialloc() int {
	bit := fs.imap.alloc()
	if bit < 0 {
		return 0
	}
	return bit + 1 // inode numbers are 1-based; bit 0 -> ino 1
}

func (fs *Fs_t) ifree(ino int) {
	fs.imap.free(ino - 1)
}

// StartFS brings up a filesystem on top of an already-formatted disk
// image (as written by cmd/mkfs). It returns the freshly read
// superblock alongside the Fs_t for callers that want to inspect raw
// geometry (ufs's test harness discards it).
func StartFS(mem Blockmem_i, disk Disk_i, cons Console_i, apply bool) (*Superblock_t, *Fs_t) {
	bcache := MkBcache(4096, mem, disk)

	sbBlk, _ := bcache.Get_fill(1, "superblock")
	sbBlk.Lock()
	sb := &Superblock_t{Data: sbBlk.Data}
	sbBlk.Unlock()

	fsys := &Fs_t{
		bcache: bcache,
		sb:     sb,
		disk:   disk,
		cons:   cons,
		Uuid:   uuid.New(),
	}
	fsys.logstart = 2
	fsys.inodestart = fsys.logstart + sb.Loglen()

	fsys.imap = &bitmap_t{bc: bcache, startblk: fsys.inodestart + sb.Inodelen(), nbits: sb.Imaplen() * BSIZE * 8, name: "imap"}
	fsys.bmap = &bitmap_t{bc: bcache, startblk: sb.Freeblock(), nbits: sb.Freeblocklen() * BSIZE * 8, name: "bmap"}

	fsys.icache = mkIcache(fsys, 512)

	bcache.Relse(sbBlk, "StartFS")

	return sb, fsys
}

// StopFS flushes all cached state back to disk.
func (fs *Fs_t) StopFS() {
	fs.Fs_sync()
}

// MkRootCwd builds the root directory's Cwd_t, the starting working
// directory every process begins life with.
func (fs *Fs_t) MkRootCwd() *fd.Cwd_t {
	ip, err := fs.icache.Get(rootIno)
	if err != 0 {
		panic("fs: no root inode")
	}
	f := &File_t{fs: fs, ip: ip, Perms: fdops.R_READ | fdops.R_WRITE}
	rootfd := &fd.Fd_t{Fops: f, Perms: fd.FD_READ | fd.FD_WRITE}
	return fd.MkRootCwd(rootfd)
}

// Fs_sync writes every block in the buffer cache to disk, modified or
// not, and waits for the writes to complete.
func (fs *Fs_t) Fs_sync() defs.Err_t {
	fs.bcache.Flush()
	return 0
}

// Fs_syncapply is StartFS's crash-recovery counterpart in a journaled
// filesystem (replaying the log before first use). There is no log
// here, so it is just a name for "make sure the disk reflects the
// cache" at boot, identical to Fs_sync.
func (fs *Fs_t) Fs_syncapply() defs.Err_t {
	return fs.Fs_sync()
}

// Fs_statistics reports cache occupancy for diagnostics.
func (fs *Fs_t) Fs_statistics() string {
	return "blocks cached: " + itoa(fs.bcache.Len()) + ", inodes cached: " + itoa(fs.icache.cache.Len())
}

// Fs_evict drops every unreferenced cached block, used by tests that
// want to force the next block access to hit disk. Cached inodes are
// not dropped.
func (fs *Fs_t) Fs_evict() {
	fs.bcache.cache.Apply(func(b *Bdev_block_t) {
		if b.Ref.Count() == 0 {
			fs.bcache.cache.Remove(b.Block)
		}
	})
}

// Sizes reports how many inodes and blocks are currently cached.
func (fs *Fs_t) Sizes() (int, int) {
	return fs.icache.cache.Len(), fs.bcache.Len()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Fs_stat fills st with the attributes of the inode named by path.
func (fs *Fs_t) Fs_stat(path ustr.Ustr, st *stat.Stat_t, cwd *fd.Cwd_t, cr *fd.Cred_t) defs.Err_t {
	ip, err := fs.namei(cwd.Canonicalpath(path), cr)
	if err != 0 {
		return err
	}
	defer fs.icache.Put(ip)
	ip.Lock.Lock()
	fillStat(ip, st)
	ip.Lock.Unlock()
	return 0
}

func fillStat(ip *Inode_t, st *stat.Stat_t) {
	st.Wino(uint(ip.ino))
	st.Wsize(uint(ip.Size))
	st.Wnlink(uint(ip.Nlink))
	st.Wuid(uint(ip.Uid))
	st.Wgid(uint(ip.Gid))
	mode := uint(ip.Mode)
	if ip.Itype == I_DIR {
		mode |= 1 << 31 // high bit marks directory; reaches user space unmasked, sysChdir tests it
	}
	st.Wmode(mode)
	if ip.Itype == I_DEV {
		st.Wrdev(uint(ip.Major)<<8 | uint(ip.Minor))
	}
	st.Watime(uint(ip.Atime), 0)
	st.Wmtime(uint(ip.Mtime), 0)
	st.Wctime(uint(ip.Ctime), 0)
}
