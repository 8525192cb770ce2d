package fs

import (
	"io"

	"github.com/aglotoff/codename-argentum/src/mem"
	"github.com/aglotoff/codename-argentum/src/ustr"
)

// FormatWriter is the minimal file interface Format needs: random
// access writes and the ability to fix the final size. *os.File
// satisfies it.
type FormatWriter interface {
	io.WriterAt
	Truncate(size int64) error
}

// Format writes a fresh, empty filesystem image: a superblock
// describing the geometry below, a zeroed inode table and both
// bitmaps, and a single root directory inode ("/") containing "."
// and "..". This is cmd/mkfs's entry point into the package, grounded
// on mkfs.c building the same regions by hand
// before any kernel ever mounts the image.
//
// Layout, in block order: boot(1) | super(1) | log(nlogblks) |
// inodes(ninodeblks) | imap | bmap | data(ndatablks).
func Format(w FormatWriter, nlogblks, ninodeblks, ndatablks int) error {
	logstart := 2
	inodestart := logstart + nlogblks
	ninodes := ninodeblks * INOPB
	imaplen := blocksFor(ninodes)
	imapstart := inodestart + ninodeblks
	ndatabits := ndatablks + imapstart + imaplen + ninodeblks + nlogblks + 2
	bmaplen := blocksFor(ndatabits)
	bmapstart := imapstart + imaplen
	datastart := bmapstart + bmaplen
	lastblock := datastart + ndatablks - 1

	total := int64(lastblock+1) * BSIZE
	if err := w.Truncate(total); err != nil {
		return err
	}

	var sbPage mem.Bytepg_t
	sb := &Superblock_t{Data: &sbPage}
	sb.SetLoglen(nlogblks)
	sb.SetIorphanblock(0)
	sb.SetIorphanlen(0)
	sb.SetImaplen(imaplen)
	sb.SetFreeblock(bmapstart)
	sb.SetFreeblocklen(bmaplen)
	sb.SetInodelen(ninodeblks)
	sb.SetLastblock(lastblock)
	if _, err := w.WriteAt(sbPage[:], int64(1)*BSIZE); err != nil {
		return err
	}

	// mark inode bit 0 (ino 1, the root) used. Bit n of the block
	// bitmap stands for disk block n, so mark every block from 0 up to
	// and including the root directory's data block (boot, super, log,
	// inode table, both bitmaps, root directory) used.
	imapBlock := make([]uint8, BSIZE)
	imapBlock[0] = 0x1
	if _, err := w.WriteAt(imapBlock, int64(imapstart)*BSIZE); err != nil {
		return err
	}
	bmapBlocks := make([]uint8, bmaplen*BSIZE)
	for blk := 0; blk <= datastart; blk++ {
		bmapBlocks[blk/8] |= 1 << uint(blk%8)
	}
	if _, err := w.WriteAt(bmapBlocks, int64(bmapstart)*BSIZE); err != nil {
		return err
	}

	rootDirBlock := datastart
	inodeBlock := make([]uint8, BSIZE)
	root := &Inode_t{ino: rootIno, Itype: I_DIR, Nlink: 1, Size: BSIZE, Mode: 0755}
	root.direct[0] = rootDirBlock
	root.store(inodeBlock[0:inodesz])
	if _, err := w.WriteAt(inodeBlock, int64(inodestart)*BSIZE); err != nil {
		return err
	}

	dirBlock := make([]uint8, BSIZE)
	dd := Dirdata_t{Data: dirBlock}
	dd.W(0, rootIno, []uint8("."))
	dd.W(1, rootIno, []uint8(".."))
	if _, err := w.WriteAt(dirBlock, int64(rootDirBlock)*BSIZE); err != nil {
		return err
	}

	return nil
}

func blocksFor(nbits int) int {
	nbytes := (nbits + 7) / 8
	return (nbytes + BSIZE - 1) / BSIZE
}
