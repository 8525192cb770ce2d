package ufs

import (
	"fmt"
	"os"

	"github.com/aglotoff/codename-argentum/src/mem"
)

// tracef_t records every block written to the simulated disk to a
// side log file, for debugging a filesystem corruption by replaying
// exactly which blocks went out and in what order. Enabled only via
// ahci_disk_t.StartTrace; nil by default so normal boots pay nothing.
type tracef_t struct {
	f *os.File
	n int
}

// mkTrace opens (creating if needed) the trace log for this process.
func mkTrace() *tracef_t {
	f, err := os.OpenFile("disk.trace", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		panic(err)
	}
	return &tracef_t{f: f}
}

// write appends one record: the block number written and its first
// few bytes, enough to eyeball whether a write landed where expected.
func (t *tracef_t) write(block int, data *mem.Bytepg_t) {
	t.n++
	fmt.Fprintf(t.f, "%d: block %d %#x %#x %#x %#x\n",
		t.n, block, data[0], data[1], data[2], data[3])
}

// sync records a flush boundary.
func (t *tracef_t) sync() {
	fmt.Fprintf(t.f, "%d: sync\n", t.n)
}

// close flushes and closes the trace log.
func (t *tracef_t) close() {
	t.f.Sync()
	t.f.Close()
}
