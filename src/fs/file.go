package fs

import (
	"sync"

	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/fdops"
	"github.com/aglotoff/codename-argentum/src/mem"
	"github.com/aglotoff/codename-argentum/src/stat"
)

// File_t is an open file description backed by an inode: the thing
// fd.Fd_t.Fops points at for a regular file, directory, or device
// special opened through Fs_open. Offset is private to this
// description (two Fs_opens of the same path track position
// independently), matching struct File.
type File_t struct {
	mu     sync.Mutex
	fs     *Fs_t
	ip     *Inode_t
	offset int
	append bool

	// Perms reuses fdops.Ready_t's R_READ/R_WRITE bits to record which
	// operations this description is allowed to perform, set once at
	// Fs_open time from the open flags.
	Perms fdops.Ready_t
}

func (f *File_t) Close() defs.Err_t {
	f.fs.icache.Put(f.ip)
	return 0
}

func (f *File_t) Fstat(dst interface{}) defs.Err_t {
	st, ok := dst.(*stat.Stat_t)
	if !ok {
		return -defs.EINVAL
	}
	f.ip.Lock.Lock()
	fillStat(f.ip, st)
	f.ip.Lock.Unlock()
	return 0
}

func (f *File_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if f.Perms&fdops.R_READ == 0 {
		return 0, -defs.EPERM
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.ip.Lock.Lock()
	defer f.ip.Lock.Unlock()

	if f.ip.Itype == I_DIR {
		return 0, -defs.EISDIR
	}

	total := 0
	for dst.Remain() > 0 && f.offset < f.ip.Size {
		fbn := f.offset / BSIZE
		off := f.offset % BSIZE
		blkno, _ := f.ip.bmap(f.fs, fbn, false)
		n := BSIZE - off
		if rem := f.ip.Size - f.offset; n > rem {
			n = rem
		}
		if want := dst.Remain(); n > want {
			n = want
		}

		var chunk []uint8
		if blkno == 0 {
			chunk = make([]uint8, n)
		} else {
			b, _ := f.fs.bcache.Get_fill(blkno, "read")
			b.Lock()
			chunk = append([]uint8(nil), b.Data[off:off+n]...)
			b.Unlock()
			f.fs.bcache.Relse(b, "File_t.Read")
		}

		got, err := dst.Uiowrite(chunk)
		if err != 0 {
			return total, err
		}
		total += got
		f.offset += got
		if got < n {
			break
		}
	}
	return total, 0
}

func (f *File_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if f.Perms&fdops.R_WRITE == 0 {
		return 0, -defs.EPERM
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.ip.Lock.Lock()
	defer f.ip.Lock.Unlock()

	if f.ip.Itype == I_DIR {
		return 0, -defs.EISDIR
	}
	if f.append {
		f.offset = f.ip.Size
	}

	total := 0
	for src.Remain() > 0 {
		if f.offset >= Maxfilesize {
			return total, -defs.EFBIG
		}
		fbn := f.offset / BSIZE
		off := f.offset % BSIZE
		blkno, err := f.ip.bmap(f.fs, fbn, true)
		if err != 0 {
			return total, err
		}
		n := BSIZE - off
		if want := src.Remain(); n > want {
			n = want
		}

		b, _ := f.fs.bcache.Get_fill(blkno, "write")
		b.Lock()
		got, uerr := src.Uioread(b.Data[off : off+n])
		if got > 0 {
			b.Write()
		}
		b.Unlock()
		f.fs.bcache.Relse(b, "File_t.Write")
		if uerr != 0 {
			return total, uerr
		}

		total += got
		f.offset += got
		if f.offset > f.ip.Size {
			f.ip.Size = f.offset
			f.ip.dirty = true
		}
		if got < n {
			break
		}
	}
	return total, 0
}

// direntHdrsz is sizeof(d_ino)+sizeof(d_off)+sizeof(d_reclen)+
// sizeof(d_namelen)+sizeof(d_type): 4+4+2+1+1. d_reclen is always
// direntHdrsz + d_namelen (no padding).
const direntHdrsz = 12

// Getdents translates f's fixed-size on-disk directory entries into
// the variable-length {d_ino, d_off, d_reclen, d_namelen, d_type,
// d_name[]} records userspace expects (fs_filldir,
// kernel/fs/inode.c), writing as many whole records as fit in dst.
// f.offset is reused as a slot index (one fixed on-disk Dirdata_t slot
// per logical entry) rather than a byte offset, since directories have
// no other notion of "read position" worth exposing.
func (f *File_t) Getdents(dst fdops.Userio_i) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ip.Lock.Lock()
	defer f.ip.Lock.Unlock()

	if f.ip.Itype != I_DIR {
		return 0, -defs.ENOTDIR
	}

	slot := f.offset
	total := 0
	wrote := false

	nblks := (f.ip.Size + BSIZE - 1) / BSIZE
	for slot/NDIRENTS < nblks {
		bn := slot / NDIRENTS
		idx := slot % NDIRENTS

		blkno, _ := f.ip.bmap(f.fs, bn, false)
		if blkno == 0 {
			slot++
			continue
		}
		b, _ := f.fs.bcache.Get_fill(blkno, "getdents")
		b.Lock()
		dd := Dirdata_t{Data: b.Data[:]}
		ino := dd.Ino(idx)
		name := dd.Filename(idx)
		b.Unlock()
		f.fs.bcache.Relse(b, "File_t.Getdents")

		if ino == 0 {
			slot++
			continue
		}

		reclen := direntHdrsz + len(name)
		if dst.Remain() < reclen {
			if !wrote {
				return 0, -defs.EINVAL
			}
			break
		}

		rec := make([]uint8, reclen)
		putle32(rec[0:4], uint32(ino))
		putle32(rec[4:8], uint32(slot+1))
		rec[8] = uint8(reclen)
		rec[9] = uint8(reclen >> 8)
		rec[10] = uint8(len(name))
		dtype := uint8(defs.DT_REG)
		if eip, eerr := f.fs.icache.Get(ino); eerr == 0 {
			eip.Lock.Lock()
			switch eip.Itype {
			case I_DIR:
				dtype = defs.DT_DIR
			case I_DEV:
				dtype = defs.DT_CHR
			}
			eip.Lock.Unlock()
			f.fs.icache.Put(eip)
		}
		rec[11] = dtype
		copy(rec[direntHdrsz:], name)

		n, err := dst.Uiowrite(rec)
		if err != 0 {
			return total, err
		}
		if n < reclen {
			return total, -defs.EINVAL
		}
		total += n
		wrote = true
		slot++
	}

	f.offset = slot
	return total, 0
}

func putle32(b []uint8, v uint32) {
	b[0] = uint8(v)
	b[1] = uint8(v >> 8)
	b[2] = uint8(v >> 16)
	b[3] = uint8(v >> 24)
}

func (f *File_t) Reopen() defs.Err_t {
	f.ip.Ref.Incref()
	return 0
}

func (f *File_t) Lseek(off int, whence int) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch whence {
	case defs.SEEK_SET:
		f.offset = off
	case defs.SEEK_CUR:
		f.offset += off
	case defs.SEEK_END:
		f.ip.Lock.Lock()
		f.offset = f.ip.Size + off
		f.ip.Lock.Unlock()
	default:
		return 0, -defs.EINVAL
	}
	if f.offset < 0 {
		f.offset = 0
		return 0, -defs.EINVAL
	}
	return f.offset, 0
}

// Mmapi is a Non-goal (demand-paged mmap of arbitrary files): return
// ENOSYS rather than silently pretend to support it.
func (f *File_t) Mmapi(offset int, pages int, shared bool) (*mem.Pg_t, mem.Pa_t, defs.Err_t) {
	return nil, 0, -defs.ENOSYS
}

func (f *File_t) Pollone(pm fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t) {
	return fdops.R_READ | fdops.R_WRITE, 0
}
