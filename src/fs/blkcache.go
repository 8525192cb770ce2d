package fs

import (
	"sync"

	"github.com/aglotoff/codename-argentum/src/defs"
)

// Bcache_t is the kernel's buffer cache: a bounded, reference-counted
// pool of Bdev_block_t built on Cache_t, grounded on
// kernel/fs/buf.c (buf_read/buf_release and its LRU list). Every block
// handed out is Incref'd on the way out and must be released with
// Relse, which implements Block_cb_i so Bdev_block_t.Done can call back
// into the cache without importing it.
type Bcache_t struct {
	mu    sync.Mutex
	cache *Cache_t[*Bdev_block_t]
	mem   Blockmem_i
	disk  Disk_i
}

// MkBcache creates a buffer cache holding at most cap blocks at once.
func MkBcache(cap int, mem Blockmem_i, disk Disk_i) *Bcache_t {
	return &Bcache_t{
		cache: MkCache[*Bdev_block_t](cap),
		mem:   mem,
		disk:  disk,
	}
}

func blockRefs(b *Bdev_block_t) int {
	return b.Ref.Count()
}

// get returns the cached block for blocknum, creating and inserting a
// fresh one (page allocated, not yet filled) if it isn't resident.
// Always returns a block with one reference held on behalf of the
// caller.
func (bc *Bcache_t) get(blocknum int, name string) *Bdev_block_t {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if b, ok := bc.cache.Lookup(blocknum); ok {
		b.Ref.Incref()
		return b
	}

	b := MkBlock_newpage(blocknum, name, bc.mem, bc.disk, bc)
	b.Ref = &Objref_t{}
	b.Ref.Incref()
	bc.cache.Insert(b, blockRefs)
	return b
}

// Get_fill returns the block for blocknum, reading it from disk
// whenever its first two bytes are zero, as they are on a block just
// brought into the cache (and on a cached block whose contents start
// with two zero bytes).
func (bc *Bcache_t) Get_fill(blocknum int, name string) (*Bdev_block_t, defs.Err_t) {
	b := bc.get(blocknum, name)
	b.Lock()
	if b.Data[0] == 0 && b.Data[1] == 0 {
		b.Read()
	}
	b.Unlock()
	return b, 0
}

// Get_zero returns the block for blocknum without reading it from
// disk, with its backing page zeroed (including a block that was
// still cached from earlier use), used when a block is about to be
// overwritten wholesale.
func (bc *Bcache_t) Get_zero(blocknum int, name string) (*Bdev_block_t, defs.Err_t) {
	b := bc.get(blocknum, name)
	b.Lock()
	for i := range b.Data {
		b.Data[i] = 0
	}
	b.Unlock()
	return b, 0
}

// Relse decrements blk's reference count and marks it evictable once
// the count reaches zero. It implements Block_cb_i.
func (bc *Bcache_t) Relse(blk *Bdev_block_t, s string) {
	blk.Ref.Decref()
}

// Len reports how many blocks are currently cached.
func (bc *Bcache_t) Len() int {
	return bc.cache.Len()
}

// Flush writes every cached block back to disk (blocks carry no dirty
// flag, so modified or not) and waits for completion, used by Fs_sync.
func (bc *Bcache_t) Flush() {
	bc.cache.Apply(func(b *Bdev_block_t) {
		b.Lock()
		b.Write()
		b.Unlock()
	})
}
