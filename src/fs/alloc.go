package fs

// bitmap_t is a disk-backed bit vector: the block bitmap and the inode
// bitmap are both one, read and written through the buffer cache one
// block at a time, grounded on block/inode bitmap
// allocators (kernel/fs/fs.c's balloc/ialloc scanning a bitmap region).
type bitmap_t struct {
	bc      *Bcache_t
	startblk int
	nbits   int
	name    string
}

func (bm *bitmap_t) blkOf(bit int) (block int, byteoff int, bitoff uint) {
	byteidx := bit / 8
	return bm.startblk + byteidx/BSIZE, byteidx % BSIZE, uint(bit % 8)
}

// alloc finds and marks the first clear bit, returning its index.
// Returns -1 if the bitmap is exhausted.
func (bm *bitmap_t) alloc() int {
	for bit := 0; bit < bm.nbits; bit++ {
		blkno, byteoff, bitoff := bm.blkOf(bit)
		b, _ := bm.bc.Get_fill(blkno, bm.name)
		b.Lock()
		free := b.Data[byteoff]&(1<<bitoff) == 0
		if free {
			b.Data[byteoff] |= 1 << bitoff
			b.Write()
		}
		b.Unlock()
		bm.bc.Relse(b, "bitmap.alloc")
		if free {
			return bit
		}
	}
	return -1
}

// free clears bit n.
func (bm *bitmap_t) free(n int) {
	blkno, byteoff, bitoff := bm.blkOf(n)
	b, _ := bm.bc.Get_fill(blkno, bm.name)
	b.Lock()
	b.Data[byteoff] &^= 1 << bitoff
	b.Write()
	b.Unlock()
	bm.bc.Relse(b, "bitmap.free")
}
