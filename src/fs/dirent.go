package fs

import "github.com/aglotoff/codename-argentum/src/ustr"

// DIRSIZ is the maximum length of one path component stored in a
// directory entry.
const DIRSIZ = 28

// direntsz is the on-disk size of one directory entry: a 4-byte inode
// number followed by a fixed DIRSIZ-byte, NUL-padded name.
const direntsz = 4 + DIRSIZ

// NDIRENTS is how many directory entries fit in one disk block.
const NDIRENTS = BSIZE / direntsz

// Dirdata_t views one disk block as a flat array of directory entries,
// the same fixed-size-record layout fs_filldir/
// fs_inode_read_dir walk a block with (kernel/fs/inode.c).
type Dirdata_t struct {
	Data []uint8
}

func (dd Dirdata_t) off(n int) int {
	return n * direntsz
}

// Filename returns the n'th entry's name, or an empty Ustr if the slot
// is unused (inode number zero).
func (dd Dirdata_t) Filename(n int) ustr.Ustr {
	if dd.Ino(n) == 0 {
		return ustr.MkUstr()
	}
	o := dd.off(n)
	return ustr.MkUstrSlice(dd.Data[o+4 : o+direntsz])
}

// Ino returns the n'th entry's inode number.
func (dd Dirdata_t) Ino(n int) int {
	o := dd.off(n)
	b := dd.Data[o : o+4]
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16 | int(b[3])<<24
}

// W writes inode number ino and name into the n'th slot.
func (dd Dirdata_t) W(n int, ino int, name ustr.Ustr) {
	if len(name) > DIRSIZ {
		panic("fs: directory name too long")
	}
	o := dd.off(n)
	b := dd.Data[o : o+4]
	b[0] = uint8(ino)
	b[1] = uint8(ino >> 8)
	b[2] = uint8(ino >> 16)
	b[3] = uint8(ino >> 24)
	nb := dd.Data[o+4 : o+direntsz]
	for i := range nb {
		nb[i] = 0
	}
	copy(nb, name)
}
