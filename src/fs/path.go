package fs

import (
	"time"
	"unsafe"

	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/fd"
	"github.com/aglotoff/codename-argentum/src/fdops"
	"github.com/aglotoff/codename-argentum/src/ustr"
)

// dirlookup scans dir's data blocks for name, returning its inode
// number or 0 if not found. dir.Lock must be held.
func (fs *Fs_t) dirlookup(dir *Inode_t, name ustr.Ustr) int {
	nblks := (dir.Size + BSIZE - 1) / BSIZE
	for bn := 0; bn < nblks; bn++ {
		blkno, _ := dir.bmap(fs, bn, false)
		if blkno == 0 {
			continue
		}
		b, _ := fs.bcache.Get_fill(blkno, "dir")
		b.Lock()
		dd := Dirdata_t{Data: b.Data[:]}
		for i := 0; i < NDIRENTS; i++ {
			if dd.Ino(i) != 0 && dd.Filename(i).Eq(name) {
				ino := dd.Ino(i)
				b.Unlock()
				fs.bcache.Relse(b, "dirlookup")
				return ino
			}
		}
		b.Unlock()
		fs.bcache.Relse(b, "dirlookup")
	}
	return 0
}

// diradd inserts name -> ino into dir's entries, growing the directory
// by one block if every existing slot is occupied. dir.Lock must be
// held.
func (fs *Fs_t) diradd(dir *Inode_t, name ustr.Ustr, ino int) defs.Err_t {
	nblks := (dir.Size + BSIZE - 1) / BSIZE
	for bn := 0; bn < nblks; bn++ {
		blkno, _ := dir.bmap(fs, bn, true)
		b, _ := fs.bcache.Get_fill(blkno, "dir")
		b.Lock()
		dd := Dirdata_t{Data: b.Data[:]}
		for i := 0; i < NDIRENTS; i++ {
			if dd.Ino(i) == 0 {
				dd.W(i, ino, name)
				b.Write()
				b.Unlock()
				fs.bcache.Relse(b, "diradd")
				return 0
			}
		}
		b.Unlock()
		fs.bcache.Relse(b, "diradd")
	}

	// every block is full: allocate a fresh one
	blkno, err := dir.bmap(fs, nblks, true)
	if err != 0 {
		return err
	}
	b, _ := fs.bcache.Get_zero(blkno, "dir")
	b.Lock()
	dd := Dirdata_t{Data: b.Data[:]}
	dd.W(0, ino, name)
	b.Write()
	b.Unlock()
	fs.bcache.Relse(b, "diradd")
	dir.Size = (nblks + 1) * BSIZE
	dir.dirty = true
	return 0
}

// dirremove clears the entry named name from dir.
func (fs *Fs_t) dirremove(dir *Inode_t, name ustr.Ustr) defs.Err_t {
	nblks := (dir.Size + BSIZE - 1) / BSIZE
	for bn := 0; bn < nblks; bn++ {
		blkno, _ := dir.bmap(fs, bn, false)
		if blkno == 0 {
			continue
		}
		b, _ := fs.bcache.Get_fill(blkno, "dir")
		b.Lock()
		dd := Dirdata_t{Data: b.Data[:]}
		for i := 0; i < NDIRENTS; i++ {
			if dd.Ino(i) != 0 && dd.Filename(i).Eq(name) {
				dd.W(i, 0, ustr.MkUstr())
				b.Write()
				b.Unlock()
				fs.bcache.Relse(b, "dirremove")
				return 0
			}
		}
		b.Unlock()
		fs.bcache.Relse(b, "dirremove")
	}
	return -defs.ENOENT
}

// dirempty reports whether dir contains only "." and ".." (or nothing
// at all), the precondition fs_unlink checks before removing a
// directory.
func (fs *Fs_t) dirempty(dir *Inode_t) bool {
	nblks := (dir.Size + BSIZE - 1) / BSIZE
	for bn := 0; bn < nblks; bn++ {
		blkno, _ := dir.bmap(fs, bn, false)
		if blkno == 0 {
			continue
		}
		b, _ := fs.bcache.Get_fill(blkno, "dir")
		b.Lock()
		dd := Dirdata_t{Data: b.Data[:]}
		for i := 0; i < NDIRENTS; i++ {
			n := dd.Filename(i)
			if dd.Ino(i) != 0 && !n.Isdot() && !n.Isdotdot() {
				b.Unlock()
				fs.bcache.Relse(b, "dirempty")
				return false
			}
		}
		b.Unlock()
		fs.bcache.Relse(b, "dirempty")
	}
	return true
}

// namei resolves an absolute, already-canonicalized path to its inode,
// walking one component at a time the way
// fs_path_lookup does (kernel/fs/inode.c). The returned inode is
// referenced and must be released with fs.icache.Put.
//
// Unlike implementations that look up a name and decide whether to
// hand the caller a reference in the same pass (making the
// reference-count transfer on the final component ambiguous when the
// lookup fails partway through), each step here either returns a
// referenced inode or propagates the error with no partial reference
// left dangling. Ownership of the returned *Inode_t is unconditional
// and singular.
func (fs *Fs_t) namei(path ustr.Ustr, cr *fd.Cred_t) (*Inode_t, defs.Err_t) {
	ip, err := fs.icache.Get(rootIno)
	if err != 0 {
		return nil, err
	}

	comps := splitPath(path)
	if err := checkNames(comps); err != 0 {
		fs.icache.Put(ip)
		return nil, err
	}
	for _, comp := range comps {
		ip.Lock.Lock()
		if ip.Itype != I_DIR {
			ip.Lock.Unlock()
			fs.icache.Put(ip)
			return nil, -defs.ENOTDIR
		}
		if !CanExecute(ip, cr.Uid(), cr.Gid()) {
			ip.Lock.Unlock()
			fs.icache.Put(ip)
			return nil, -defs.EACCES
		}
		next := fs.dirlookup(ip, comp)
		ip.Lock.Unlock()
		if next == 0 {
			fs.icache.Put(ip)
			return nil, -defs.ENOENT
		}
		nip, err := fs.icache.Get(next)
		fs.icache.Put(ip)
		if err != 0 {
			return nil, err
		}
		ip = nip
	}
	return ip, 0
}

// nameiparent resolves all but the last component of path, returning
// the parent directory inode and the final component name.
func (fs *Fs_t) nameiparent(path ustr.Ustr, cr *fd.Cred_t) (*Inode_t, ustr.Ustr, defs.Err_t) {
	comps := splitPath(path)
	if len(comps) == 0 {
		return nil, nil, -defs.EINVAL
	}
	if err := checkNames(comps); err != 0 {
		return nil, nil, err
	}
	last := comps[len(comps)-1]

	ip, err := fs.icache.Get(rootIno)
	if err != 0 {
		return nil, nil, err
	}
	for _, comp := range comps[:len(comps)-1] {
		ip.Lock.Lock()
		if ip.Itype != I_DIR {
			ip.Lock.Unlock()
			fs.icache.Put(ip)
			return nil, nil, -defs.ENOTDIR
		}
		if !CanExecute(ip, cr.Uid(), cr.Gid()) {
			ip.Lock.Unlock()
			fs.icache.Put(ip)
			return nil, nil, -defs.EACCES
		}
		next := fs.dirlookup(ip, comp)
		ip.Lock.Unlock()
		if next == 0 {
			fs.icache.Put(ip)
			return nil, nil, -defs.ENOENT
		}
		nip, err := fs.icache.Get(next)
		fs.icache.Put(ip)
		if err != 0 {
			return nil, nil, err
		}
		ip = nip
	}
	return ip, last, 0
}

func splitPath(p ustr.Ustr) []ustr.Ustr {
	var comps []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				comps = append(comps, p[start:i])
			}
			start = i + 1
		}
	}
	return comps
}

// checkNames rejects any component longer than DIRSIZ can hold, since
// Dirdata_t's fixed-size on-disk records would silently truncate it
// otherwise.
func checkNames(comps []ustr.Ustr) defs.Err_t {
	for _, c := range comps {
		if len(c) > DIRSIZ {
			return -defs.ENAMETOOLONG
		}
	}
	return 0
}

// lockTwo locks two inodes in address order, preventing the deadlock
// that locking them in call order could cause when two threads try to
// lock the same pair of directories in opposite orders (e.g. two
// concurrent renames crossing the same two directories). Grounded on
// convention of lock-ordering inode pairs by pointer
// address for multi-inode operations (rename, link).
func lockTwo(a, b *Inode_t) {
	if a == b {
		a.Lock.Lock()
		return
	}
	if uintptr(unsafe.Pointer(a)) < uintptr(unsafe.Pointer(b)) {
		a.Lock.Lock()
		b.Lock.Lock()
	} else {
		b.Lock.Lock()
		a.Lock.Lock()
	}
}

func unlockTwo(a, b *Inode_t) {
	if a == b {
		a.Lock.Unlock()
		return
	}
	a.Lock.Unlock()
	b.Lock.Unlock()
}

// permOk checks that flags are compatible with ip's type and the
// requested access, the minimal permission model this kernel
// implements: directories can't be opened for writing, and only
// O_RDONLY opens succeed on a directory at all.
func permOk(ip *Inode_t, flags int) defs.Err_t {
	if ip.Itype == I_DIR && (flags&defs.O_ACCMODE) != defs.O_RDONLY {
		return -defs.EISDIR
	}
	return 0
}

// Fs_open resolves path (creating it if O_CREAT is set and it does
// not exist) and returns an open file descriptor for it. a and b are
// the major/minor device numbers used only when creating a device
// special file; regular file/directory creation ignores them. cr
// supplies the uid/gid/cmask a newly created inode is stamped with and
// the credentials every permission check along the way is evaluated
// against; a nil cr means root with no mask, for callers with no
// process context (cmd/mkfs, ufs's host-side test harness).
func (fs *Fs_t) Fs_open(path ustr.Ustr, flags int, mode int, cwd *fd.Cwd_t, cr *fd.Cred_t, a int, b int) (*fd.Fd_t, defs.Err_t) {
	full := cwd.Canonicalpath(path)
	now := time.Now().Unix()

	var ip *Inode_t
	if flags&defs.O_CREAT != 0 {
		dir, name, err := fs.nameiparent(full, cr)
		if err != 0 {
			return nil, err
		}
		dir.Lock.Lock()
		existing := fs.dirlookup(dir, name)
		if existing != 0 {
			dir.Lock.Unlock()
			fs.icache.Put(dir)
			if flags&defs.O_EXCL != 0 {
				return nil, -defs.EEXIST
			}
			var err2 defs.Err_t
			ip, err2 = fs.icache.Get(existing)
			if err2 != 0 {
				return nil, err2
			}
		} else {
			if !CanWrite(dir, cr.Uid(), cr.Gid()) {
				dir.Lock.Unlock()
				fs.icache.Put(dir)
				return nil, -defs.EACCES
			}
			ino := fs.ialloc()
			if ino == 0 {
				dir.Lock.Unlock()
				fs.icache.Put(dir)
				return nil, -defs.ENOSPC
			}
			nip, err2 := fs.icache.Get(ino)
			if err2 != 0 {
				dir.Lock.Unlock()
				fs.icache.Put(dir)
				return nil, err2
			}
			nip.Lock.Lock()
			nip.Itype = I_FILE
			nip.Nlink = 1
			nip.Major, nip.Minor = a, b
			nip.Mode = cr.Mask(mode) & 0777
			nip.Uid, nip.Gid = cr.Uid(), cr.Gid()
			nip.Atime, nip.Mtime, nip.Ctime = now, now, now
			nip.dirty = true
			nip.Lock.Unlock()

			if e := fs.diradd(dir, name, ino); e != 0 {
				dir.Lock.Unlock()
				fs.icache.Put(dir)
				fs.icache.Put(nip)
				return nil, e
			}
			dir.Lock.Unlock()
			fs.icache.Put(dir)
			ip = nip
		}
	} else {
		var err defs.Err_t
		ip, err = fs.namei(full, cr)
		if err != 0 {
			return nil, err
		}
	}

	ip.Lock.Lock()
	if err := permOk(ip, flags); err != 0 {
		ip.Lock.Unlock()
		fs.icache.Put(ip)
		return nil, err
	}
	wantRead := (flags&defs.O_ACCMODE) == defs.O_RDONLY || (flags&defs.O_ACCMODE) == defs.O_RDWR
	wantWrite := (flags&defs.O_ACCMODE) == defs.O_WRONLY || (flags&defs.O_ACCMODE) == defs.O_RDWR
	if wantRead && !CanRead(ip, cr.Uid(), cr.Gid()) {
		ip.Lock.Unlock()
		fs.icache.Put(ip)
		return nil, -defs.EACCES
	}
	if wantWrite && !CanWrite(ip, cr.Uid(), cr.Gid()) {
		ip.Lock.Unlock()
		fs.icache.Put(ip)
		return nil, -defs.EACCES
	}
	if flags&defs.O_TRUNC != 0 && ip.Itype == I_FILE {
		fs.truncate(ip)
		ip.Mtime, ip.Ctime = now, now
	}
	ip.Atime = now
	ip.dirty = true
	ip.Lock.Unlock()

	perms := 0
	switch flags & defs.O_ACCMODE {
	case defs.O_RDONLY:
		perms = fdops.R_READ
	case defs.O_WRONLY:
		perms = fdops.R_WRITE
	case defs.O_RDWR:
		perms = fdops.R_READ | fdops.R_WRITE
	}

	f := &File_t{fs: fs, ip: ip, Perms: fdops.Ready_t(perms), append: flags&defs.O_APPEND != 0}
	fdperms := 0
	if perms&fdops.R_READ != 0 {
		fdperms |= fd.FD_READ
	}
	if perms&fdops.R_WRITE != 0 {
		fdperms |= fd.FD_WRITE
	}
	return &fd.Fd_t{Fops: f, Perms: fdperms}, 0
}

// truncate drops ip's data blocks and resets its size to zero. ip.Lock
// must be held.
func (fs *Fs_t) truncate(ip *Inode_t) {
	for i := 0; i < NDIRECT; i++ {
		if ip.direct[i] != 0 {
			fs.bfree(ip.direct[i])
			ip.direct[i] = 0
		}
	}
	if ip.indirect != 0 {
		b, _ := fs.bcache.Get_fill(ip.indirect, "indirect")
		b.Lock()
		for i := 0; i < nindirect; i++ {
			blk := fieldr8(b.Data[:], i)
			if blk != 0 {
				fs.bfree(blk)
			}
		}
		b.Unlock()
		fs.bcache.Relse(b, "truncate")
		fs.bfree(ip.indirect)
		ip.indirect = 0
	}
	ip.Size = 0
	ip.dirty = true
}

// Fs_mkdir creates a new, empty directory at path, owned by cr's
// uid/gid with mode masked by cr's cmask (nil cr means root, no mask).
func (fs *Fs_t) Fs_mkdir(path ustr.Ustr, mode int, cwd *fd.Cwd_t, cr *fd.Cred_t) defs.Err_t {
	full := cwd.Canonicalpath(path)
	now := time.Now().Unix()
	dir, name, err := fs.nameiparent(full, cr)
	if err != 0 {
		return err
	}
	defer fs.icache.Put(dir)

	dir.Lock.Lock()
	defer dir.Lock.Unlock()

	if fs.dirlookup(dir, name) != 0 {
		return -defs.EEXIST
	}
	if !CanWrite(dir, cr.Uid(), cr.Gid()) {
		return -defs.EACCES
	}

	ino := fs.ialloc()
	if ino == 0 {
		return -defs.ENOSPC
	}
	nip, err2 := fs.icache.Get(ino)
	if err2 != 0 {
		return err2
	}
	defer fs.icache.Put(nip)

	nip.Lock.Lock()
	nip.Itype = I_DIR
	nip.Nlink = 1
	nip.Mode = cr.Mask(mode) & 0777
	nip.Uid, nip.Gid = cr.Uid(), cr.Gid()
	nip.Atime, nip.Mtime, nip.Ctime = now, now, now
	nip.dirty = true
	nip.Lock.Unlock()

	if e := fs.diradd(nip, ustr.MkUstrDot(), ino); e != 0 {
		return e
	}
	if e := fs.diradd(nip, ustr.DotDot, dir.ino); e != 0 {
		return e
	}

	dir.Mtime, dir.Ctime = now, now
	dir.dirty = true
	return fs.diradd(dir, name, ino)
}

// Fs_unlink removes the directory entry at path. isdir must match the
// target's actual type (a directory can only be removed via rmdir,
// and vice versa), mirroring the original's separate unlink/rmdir
// syscalls funneled through one internal operation.
func (fs *Fs_t) Fs_unlink(path ustr.Ustr, cwd *fd.Cwd_t, isdir bool, cr *fd.Cred_t) defs.Err_t {
	full := cwd.Canonicalpath(path)
	dir, name, err := fs.nameiparent(full, cr)
	if err != 0 {
		return err
	}
	defer fs.icache.Put(dir)

	if name.Isdot() || name.Isdotdot() {
		return -defs.EINVAL
	}

	dir.Lock.Lock()
	ino := fs.dirlookup(dir, name)
	if ino == 0 {
		dir.Lock.Unlock()
		return -defs.ENOENT
	}
	if !CanWrite(dir, cr.Uid(), cr.Gid()) {
		dir.Lock.Unlock()
		return -defs.EACCES
	}
	dir.Lock.Unlock()

	ip, err2 := fs.icache.Get(ino)
	if err2 != 0 {
		return err2
	}
	defer fs.icache.Put(ip)

	lockTwo(dir, ip)
	defer unlockTwo(dir, ip)

	if isdir && ip.Itype != I_DIR {
		return -defs.ENOTDIR
	}
	if !isdir && ip.Itype == I_DIR {
		return -defs.EISDIR
	}
	if isdir && !fs.dirempty(ip) {
		return -defs.ENOTEMPTY
	}

	if err := fs.dirremove(dir, name); err != 0 {
		return err
	}

	ip.Nlink--
	ip.dirty = true
	if ip.Nlink == 0 {
		fs.truncate(ip)
		ip.Itype = I_FREE
		fs.icache.writeback(ip)
		fs.ifree(ino)
		fs.icache.Free(ino)
	}
	return 0
}

// Fs_rename moves the entry at oldp to newp, atomically with respect
// to other renames (renamelock) but not with respect to a crash
// mid-operation — see the package doc comment on journaling.
func (fs *Fs_t) Fs_rename(oldp, newp ustr.Ustr, cwd *fd.Cwd_t, cr *fd.Cred_t) defs.Err_t {
	fs.renamelock.Lock()
	defer fs.renamelock.Unlock()

	oldfull := cwd.Canonicalpath(oldp)
	newfull := cwd.Canonicalpath(newp)

	olddir, oldname, err := fs.nameiparent(oldfull, cr)
	if err != 0 {
		return err
	}
	defer fs.icache.Put(olddir)

	olddir.Lock.Lock()
	ino := fs.dirlookup(olddir, oldname)
	canWrite := CanWrite(olddir, cr.Uid(), cr.Gid())
	olddir.Lock.Unlock()
	if ino == 0 {
		return -defs.ENOENT
	}
	if !canWrite {
		return -defs.EACCES
	}

	newdir, newname, err := fs.nameiparent(newfull, cr)
	if err != 0 {
		return err
	}
	defer fs.icache.Put(newdir)

	newdir.Lock.Lock()
	if fs.dirlookup(newdir, newname) != 0 {
		newdir.Lock.Unlock()
		return -defs.EEXIST
	}
	if !CanWrite(newdir, cr.Uid(), cr.Gid()) {
		newdir.Lock.Unlock()
		return -defs.EACCES
	}
	newdir.Lock.Unlock()

	lockTwo(olddir, newdir)
	if err := fs.dirremove(olddir, oldname); err != 0 {
		unlockTwo(olddir, newdir)
		return err
	}
	err = fs.diradd(newdir, newname, ino)
	unlockTwo(olddir, newdir)
	return err
}

// Fs_link adds a second name, newp, for the file already named by
// oldp, bumping its link count. Directories cannot be hard-linked
// (that would make the tree a graph and break dirempty/rmdir), the
// same restriction fs_link enforces.
func (fs *Fs_t) Fs_link(oldp, newp ustr.Ustr, cwd *fd.Cwd_t, cr *fd.Cred_t) defs.Err_t {
	oldfull := cwd.Canonicalpath(oldp)
	ip, err := fs.namei(oldfull, cr)
	if err != 0 {
		return err
	}
	defer fs.icache.Put(ip)

	ip.Lock.Lock()
	if ip.Itype == I_DIR {
		ip.Lock.Unlock()
		return -defs.EPERM
	}
	if ip.Nlink >= defs.LINK_MAX {
		ip.Lock.Unlock()
		return -defs.EMLINK
	}
	ip.Lock.Unlock()

	newfull := cwd.Canonicalpath(newp)
	dir, name, err := fs.nameiparent(newfull, cr)
	if err != 0 {
		return err
	}
	defer fs.icache.Put(dir)

	lockTwo(dir, ip)
	defer unlockTwo(dir, ip)

	if fs.dirlookup(dir, name) != 0 {
		return -defs.EEXIST
	}
	if !CanWrite(dir, cr.Uid(), cr.Gid()) {
		return -defs.EACCES
	}
	if e := fs.diradd(dir, name, ip.ino); e != 0 {
		return e
	}
	ip.Nlink++
	ip.Ctime = time.Now().Unix()
	ip.dirty = true
	return 0
}

// Fs_mknod creates a device special file at path with the given
// major/minor numbers, the dispatch fs_create takes
// when the caller's mode bits mark a char/block device rather than a
// plain file (kernel/fs/inode.c). Unlike Fs_open's O_CREAT path, this
// always creates — EEXIST if the name is already taken.
func (fs *Fs_t) Fs_mknod(path ustr.Ustr, mode int, major, minor int, cwd *fd.Cwd_t, cr *fd.Cred_t) defs.Err_t {
	full := cwd.Canonicalpath(path)
	now := time.Now().Unix()
	dir, name, err := fs.nameiparent(full, cr)
	if err != 0 {
		return err
	}
	defer fs.icache.Put(dir)

	dir.Lock.Lock()
	defer dir.Lock.Unlock()

	if fs.dirlookup(dir, name) != 0 {
		return -defs.EEXIST
	}
	if !CanWrite(dir, cr.Uid(), cr.Gid()) {
		return -defs.EACCES
	}

	ino := fs.ialloc()
	if ino == 0 {
		return -defs.ENOSPC
	}
	nip, err2 := fs.icache.Get(ino)
	if err2 != 0 {
		return err2
	}
	defer fs.icache.Put(nip)

	nip.Lock.Lock()
	nip.Itype = I_DEV
	nip.Nlink = 1
	nip.Major, nip.Minor = major, minor
	nip.Mode = cr.Mask(mode) & 0777
	nip.Uid, nip.Gid = cr.Uid(), cr.Gid()
	nip.Atime, nip.Mtime, nip.Ctime = now, now, now
	nip.dirty = true
	nip.Lock.Unlock()

	return fs.diradd(dir, name, ino)
}

// Fs_chmod changes the permission bits of the inode named by path. Only
// the owner or root may do so, matching fs_chmod
// (kernel/fs/inode.c); the file-type bits implicit in Itype are never
// touched, only the low 9 rwxrwxrwx bits of mode are honored.
func (fs *Fs_t) Fs_chmod(path ustr.Ustr, mode int, cwd *fd.Cwd_t, cr *fd.Cred_t) defs.Err_t {
	full := cwd.Canonicalpath(path)
	ip, err := fs.namei(full, cr)
	if err != 0 {
		return err
	}
	defer fs.icache.Put(ip)

	ip.Lock.Lock()
	defer ip.Lock.Unlock()

	if cr.Uid() != 0 && cr.Uid() != ip.Uid {
		return -defs.EPERM
	}
	ip.Mode = mode & 0777
	ip.Ctime = time.Now().Unix()
	ip.dirty = true
	return 0
}
