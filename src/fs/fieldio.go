package fs

import (
	"encoding/binary"

	"github.com/aglotoff/codename-argentum/src/mem"
)

// fieldsz is the on-disk width of one superblock field.
const fieldsz = 8

// fieldr reads the n'th little-endian uint64 field out of a block's
// backing page, the layout Superblock_t's accessors (Loglen, Imaplen,
// ...) index into.
func fieldr(data *mem.Bytepg_t, n int) int {
	off := n * fieldsz
	return int(binary.LittleEndian.Uint64(data[off : off+fieldsz]))
}

// fieldw writes the n'th on-disk superblock field.
func fieldw(data *mem.Bytepg_t, n int, v int) {
	off := n * fieldsz
	binary.LittleEndian.PutUint64(data[off:off+fieldsz], uint64(v))
}
