package fs

import (
	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/waitqueue"
)

// Inode types.
const (
	I_FREE = 0
	I_FILE = 1
	I_DIR  = 2
	I_DEV  = 3
)

// NDIRECT is how many data blocks an inode addresses directly before
// falling back to its single indirect block, the same two-level
// scheme kernel/fs/inode.c uses (direct[] + one
// indirect block of more block numbers).
const NDIRECT = 10

// nindirect is how many block numbers fit in one indirect block.
const nindirect = BSIZE / 4

// Maxfilesize is the largest file size this layout can address.
const Maxfilesize = (NDIRECT + nindirect) * BSIZE

// inodesz is the on-disk size of one inode record: itype, nlink, size,
// major, minor, indirect, mode, uid, gid, atime, mtime, ctime, then
// NDIRECT direct block numbers, each a 4-byte little-endian field
// (fieldr8/fieldw8 below). atime/mtime/ctime are stored as
// Unix seconds, truncating sub-second resolution the same way a
// classic ext2 on-disk inode does.
const inodefields = 12 + NDIRECT
const inodesz = 4 * inodefields

// INOPB is how many inodes fit in one disk block.
const INOPB = BSIZE / inodesz

// Inode_t is a cached in-core inode: struct Inode
// (kernel/fs/inode.c) plus the reference-count/cache-key bookkeeping
// Cache_t needs. Lock serializes all field and data-block access;
// Ref tracks how many callers (open file descriptions, directory
// lookups in flight) currently hold a pointer to it.
type Inode_t struct {
	Lock waitqueue.Mutex_t
	Ref  Objref_t

	ino int

	Itype        int
	Nlink        int
	Size         int
	Major, Minor int
	indirect     int
	direct       [NDIRECT]int

	// Mode holds the permission bits (rwxrwxrwx); Itype, not Mode,
	// carries the file-type distinction (I_FILE/I_DIR/I_DEV), matching
	// fillStat's split of type (high stat bit) from permission bits.
	Mode     int
	Uid, Gid int
	Atime    int64
	Mtime    int64
	Ctime    int64

	dirty bool
}

func (ip *Inode_t) Key() int { return ip.ino }

func (ip *Inode_t) EvictFromCache() {
	// a dirty inode is written back synchronously by Icache_t.Put when
	// each reference is released, and only unreferenced inodes are
	// evicted, so there is nothing to flush on eviction.
}

func (ip *Inode_t) EvictDone() {}

// Ino returns the inode number.
func (ip *Inode_t) Ino() int { return ip.ino }

// load decodes ip's fields from its on-disk record.
func (ip *Inode_t) load(data []uint8) {
	ip.Itype = fieldr8(data, 0)
	ip.Nlink = fieldr8(data, 1)
	ip.Size = fieldr8(data, 2)
	ip.Major = fieldr8(data, 3)
	ip.Minor = fieldr8(data, 4)
	ip.indirect = fieldr8(data, 5)
	ip.Mode = fieldr8(data, 6)
	ip.Uid = fieldr8(data, 7)
	ip.Gid = fieldr8(data, 8)
	ip.Atime = int64(fieldr8(data, 9))
	ip.Mtime = int64(fieldr8(data, 10))
	ip.Ctime = int64(fieldr8(data, 11))
	for i := 0; i < NDIRECT; i++ {
		ip.direct[i] = fieldr8(data, 12+i)
	}
}

// store encodes ip's fields into its on-disk record.
func (ip *Inode_t) store(data []uint8) {
	fieldw8(data, 0, ip.Itype)
	fieldw8(data, 1, ip.Nlink)
	fieldw8(data, 2, ip.Size)
	fieldw8(data, 3, ip.Major)
	fieldw8(data, 4, ip.Minor)
	fieldw8(data, 5, ip.indirect)
	fieldw8(data, 6, ip.Mode)
	fieldw8(data, 7, ip.Uid)
	fieldw8(data, 8, ip.Gid)
	fieldw8(data, 9, int(ip.Atime))
	fieldw8(data, 10, int(ip.Mtime))
	fieldw8(data, 11, int(ip.Ctime))
	for i := 0; i < NDIRECT; i++ {
		fieldw8(data, 12+i, ip.direct[i])
	}
}

// fieldr8/fieldw8 are fieldio.go's fieldr/fieldw sized for inode
// records (4-byte fields) rather than the 8-byte superblock fields.
func fieldr8(data []uint8, n int) int {
	o := n * 4
	b := data[o : o+4]
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16 | int(b[3])<<24
}

func fieldw8(data []uint8, n int, v int) {
	o := n * 4
	b := data[o : o+4]
	b[0] = uint8(v)
	b[1] = uint8(v >> 8)
	b[2] = uint8(v >> 16)
	b[3] = uint8(v >> 24)
}

// bmap returns the disk block number backing file block index fbn,
// allocating a new data block (and, if needed, the indirect block)
// when fbn has never been written before.
func (ip *Inode_t) bmap(fs *Fs_t, fbn int, alloc bool) (int, defs.Err_t) {
	if fbn < NDIRECT {
		if ip.direct[fbn] == 0 {
			if !alloc {
				return 0, 0
			}
			blk := fs.balloc()
			if blk == 0 {
				return 0, -defs.ENOSPC
			}
			ip.direct[fbn] = blk
			ip.dirty = true
		}
		return ip.direct[fbn], 0
	}

	fbn -= NDIRECT
	if fbn >= nindirect {
		return 0, -defs.EFBIG
	}

	if ip.indirect == 0 {
		if !alloc {
			return 0, 0
		}
		blk := fs.balloc()
		if blk == 0 {
			return 0, -defs.ENOSPC
		}
		ip.indirect = blk
		ip.dirty = true
	}

	ib, _ := fs.bcache.Get_fill(ip.indirect, "indirect")
	ib.Lock()
	defer ib.Unlock()
	off := fbn * 4
	cur := fieldr8(ib.Data[:], off/4)
	if cur == 0 {
		if !alloc {
			fs.bcache.Relse(ib, "bmap")
			return 0, 0
		}
		blk := fs.balloc()
		if blk == 0 {
			fs.bcache.Relse(ib, "bmap")
			return 0, -defs.ENOSPC
		}
		fieldw8(ib.Data[:], off/4, blk)
		ib.Write()
		cur = blk
	}
	fs.bcache.Relse(ib, "bmap")
	return cur, 0
}
