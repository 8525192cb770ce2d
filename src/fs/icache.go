package fs

import "github.com/aglotoff/codename-argentum/src/defs"

// Icache_t is the kernel's inode cache: a bounded, reference-counted
// pool of Inode_t built on the same Cache_t generic the buffer cache
// uses, grounded on kernel/fs/inode.c inode table
// (a fixed NINODE array, walked linearly for a free/matching slot).
type Icache_t struct {
	cache *Cache_t[*Inode_t]
	fs    *Fs_t
}

func mkIcache(fs *Fs_t, cap int) *Icache_t {
	return &Icache_t{cache: MkCache[*Inode_t](cap), fs: fs}
}

func inodeRefs(ip *Inode_t) int {
	return ip.Ref.Count()
}

// Get returns the in-core inode for ino, reading it from disk the
// first time it is brought into the cache. The caller owns one
// reference on the returned inode and must release it with Put.
func (ic *Icache_t) Get(ino int) (*Inode_t, defs.Err_t) {
	if v, ok := ic.cache.Lookup(ino); ok {
		v.Ref.Incref()
		return v, 0
	}

	ip := &Inode_t{ino: ino}
	ip.Ref.Incref()

	iblk := ic.fs.inodeblk(ino)
	b, _ := ic.fs.bcache.Get_fill(iblk, "inode")
	b.Lock()
	off := ((ino - 1) % INOPB) * inodesz
	ip.load(b.Data[off : off+inodesz])
	b.Unlock()
	ic.fs.bcache.Relse(b, "icache.Get")

	ic.cache.Insert(ip, inodeRefs)
	return ip, 0
}

// Put releases one reference on ip, writing it back to disk first if
// it was modified while held.
func (ic *Icache_t) Put(ip *Inode_t) {
	ip.Lock.Lock()
	if ip.dirty {
		ic.writeback(ip)
	}
	ip.Lock.Unlock()
	ip.Ref.Decref()
}

// writeback flushes ip's in-core fields to its on-disk record. Caller
// must hold ip.Lock.
func (ic *Icache_t) writeback(ip *Inode_t) {
	iblk := ic.fs.inodeblk(ip.ino)
	b, _ := ic.fs.bcache.Get_fill(iblk, "inode")
	b.Lock()
	off := ((ip.ino - 1) % INOPB) * inodesz
	ip.store(b.Data[off : off+inodesz])
	b.Write()
	b.Unlock()
	ic.fs.bcache.Relse(b, "icache.writeback")
	ip.dirty = false
}

// Free removes an unlinked, no-longer-referenced inode from the cache
// entirely (its on-disk slot has already been cleared by the caller).
func (ic *Icache_t) Free(ino int) {
	ic.cache.Remove(ino)
}
