package ufs

import "os"

import "golang.org/x/sys/unix"

import "github.com/aglotoff/codename-argentum/src/defs"
import "github.com/aglotoff/codename-argentum/src/fdops"
import "github.com/aglotoff/codename-argentum/src/fs"
import "github.com/aglotoff/codename-argentum/src/mem"

//
// The "driver"
//

// ahci_disk_t simulates a disk backed by a file. Reads and writes go
// through unix.Pread/unix.Pwrite rather than Seek+Read/Write: a
// positioned read or write is one syscall instead of two, so two
// concurrent requests can never interleave a seek from one with the
// read from the other the way a Seek-then-Read/Write pair would
// require a lock to prevent.
type ahci_disk_t struct {
	f *os.File
	t *tracef_t
}

/// StartTrace enables tracing of write operations.
func (ahci *ahci_disk_t) StartTrace() {
	ahci.t = mkTrace()
}

/// Start services a block device request.
func (ahci *ahci_disk_t) Start(req *fs.Bdev_req_t) bool {
	fd := int(ahci.f.Fd())

	switch req.Cmd {
	case fs.BDEV_READ:
		if req.Blks.Len() != 1 {
			panic("read: too many blocks")
		}
		blk := req.Blks.FrontBlock()
		b := make([]byte, fs.BSIZE)
		n, err := unix.Pread(fd, b, int64(blk.Block*fs.BSIZE))
		if n != fs.BSIZE || err != nil {
			panic(err)
		}
		blk.Data = &mem.Bytepg_t{}
		for i, _ := range b {
			blk.Data[i] = uint8(b[i])
		}
	case fs.BDEV_WRITE:
		for b := req.Blks.FrontBlock(); b != nil; b = req.Blks.NextBlock() {
			buf := make([]byte, fs.BSIZE)
			for i, _ := range buf {
				buf[i] = byte(b.Data[i])
			}
			n, err := unix.Pwrite(fd, buf, int64(b.Block*fs.BSIZE))
			if n != fs.BSIZE || err != nil {
				panic(err)
			}
			if ahci.t != nil {
				ahci.t.write(b.Block, b.Data)
			}
			b.Done("Start")
		}
	case fs.BDEV_FLUSH:
		ahci.f.Sync()
		if ahci.t != nil {
			ahci.t.sync()
		}
	}
	return false
}

/// Stats returns statistics for the disk.
func (ahci *ahci_disk_t) Stats() string {
	return ""
}

func (ahci *ahci_disk_t) close() {
	if ahci.t != nil {
		ahci.t.close()
	}
	// ahci.f.Sync()
	err := ahci.f.Close()
	if err != nil {
		panic(err)
	}
}

//
// Glue
//

/// blockmem_t provides memory for disk blocks during tests.
type blockmem_t struct {
}

var blockmem = &blockmem_t{}

/// Alloc returns a zeroed memory page for block operations.
func (bm *blockmem_t) Alloc() (mem.Pa_t, *mem.Bytepg_t, bool) {
	d := &mem.Bytepg_t{}
	return mem.Pa_t(0), d, true
}

/// Free releases a previously allocated page.
func (bm *blockmem_t) Free(pa mem.Pa_t) {
}

/// Refup increments the reference count of a page.
func (bm *blockmem_t) Refup(pa mem.Pa_t) {
}

/// console_t is a stub console driver used in tests.
type console_t struct {
}

var c console_t

/// Cons_poll implements fdops. It always reports not ready.
func (c console_t) Cons_poll(pm fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t) {
	return 0, 0
}

/// Cons_read is a stub read that returns an error.
func (c console_t) Cons_read(ub fdops.Userio_i, offset int) (int, defs.Err_t) {
	return -1, 0
}

/// Cons_write discards the provided data.
func (c console_t) Cons_write(src fdops.Userio_i, off int) (int, defs.Err_t) {
	return 0, 0
}
