// Package res implements non-blocking admission control against the
// system-wide kernel heap budget (limits.Syslimit.Heappgs). Copy-in/
// copy-out loops call Resadd_noblock before each heap allocation so a
// thread that is about to allocate while holding a spinlock/pmap lock
// either gets the budget or fails fast with ENOHEAP, instead of letting
// an unbounded or malicious-length request grow the kernel heap without
// limit.
package res

import (
	"golang.org/x/sync/semaphore"

	"github.com/aglotoff/codename-argentum/src/limits"
)

// heapSem mirrors limits.Syslimit.Heappgs as a weighted semaphore so
// Resadd_noblock can use the ecosystem's non-blocking TryAcquire instead
// of a hand-rolled compare-and-swap retry loop.
var heapSem = semaphore.NewWeighted(int64(limits.Syslimit.Heappgs))

// Resadd_noblock is a non-blocking admission check: it reports whether n
// heap pages are currently available against the system budget. Callers
// in vm's copy loops call this once per chunk, immediately before
// touching user memory, and bail out with -defs.ENOHEAP instead of
// proceeding when the heap is already under pressure; the reservation
// itself is momentary (acquire-then-release), since the loops' actual
// per-chunk work never holds a heap allocation past the iteration that
// checked for it.
func Resadd_noblock(n uint) bool {
	if n == 0 {
		return true
	}
	if !heapSem.TryAcquire(int64(n)) {
		return false
	}
	heapSem.Release(int64(n))
	return true
}
