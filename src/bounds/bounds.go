// Package bounds names, per call site, how many heap pages a single
// iteration of a copy-in/copy-out style loop is allowed to allocate
// before it must re-check with res.Resadd_noblock. Each loop in vm that
// allocates while holding a lock (Userbuf_t._tx, Useriovec_t.Iov_init,
// Useriovec_t._tx) is tagged with its own constant here rather than one
// shared number, so the budget for a busy tag can be tuned without
// touching the others.
package bounds

// Bound_t tags one admission-controlled call site.
type Bound_t int

const (
	B_USERBUF_T__TX Bound_t = iota
	B_USERIOVEC_T_IOV_INIT
	B_USERIOVEC_T__TX
	B_FS_INODE_T_READ
	B_FS_INODE_T_WRITE
	B_PROC_T_FORK
	nbounds
)

// cost is the number of heap pages each tag's call site allocates per
// iteration. Most loops allocate at most one page (a copy-in/out chunk);
// fork's address-space clone walks a whole region at a time so it is
// charged more.
var cost = [nbounds]uint{
	B_USERBUF_T__TX:         1,
	B_USERIOVEC_T_IOV_INIT:  1,
	B_USERIOVEC_T__TX:       1,
	B_FS_INODE_T_READ:       1,
	B_FS_INODE_T_WRITE:      1,
	B_PROC_T_FORK:           4,
}

// Bounds returns how many heap pages the call site named by tag may
// charge against the system heap budget for one iteration.
func Bounds(tag Bound_t) uint {
	return cost[tag]
}
