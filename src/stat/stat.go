package stat

import "unsafe"

/// Stat_t mirrors a file's stat information.
type Stat_t struct {
	_dev     uint
	_ino     uint
	_mode    uint
	_size    uint
	_rdev    uint
	_uid     uint
	_blocks  uint
	_m_sec   uint
	_m_nsec  uint
	_nlink   uint
	_gid     uint
	_a_sec   uint
	_a_nsec  uint
	_c_sec   uint
	_c_nsec  uint
}

/// Wdev stores the device ID.
func (st *Stat_t) Wdev(v uint) {
	st._dev = v
}

/// Wino stores the inode number.
func (st *Stat_t) Wino(v uint) {
	st._ino = v
}

/// Wmode records the file mode.
func (st *Stat_t) Wmode(v uint) {
	st._mode = v
}

/// Wsize records the file size.
func (st *Stat_t) Wsize(v uint) {
	st._size = v
}

/// Wrdev stores the rdev field.
func (st *Stat_t) Wrdev(v uint) {
	st._rdev = v
}

/// Mode returns the stored mode value.
func (st *Stat_t) Mode() uint {
	return st._mode
}

/// Size returns the stored size.
func (st *Stat_t) Size() uint {
	return st._size
}

/// Rdev returns the stored rdev.
func (st *Stat_t) Rdev() uint {
	return st._rdev
}

/// Rino returns the stored inode number.
func (st *Stat_t) Rino() uint {
	return st._ino
}

/// Wnlink records the hard link count.
func (st *Stat_t) Wnlink(v uint) {
	st._nlink = v
}

/// Nlink returns the stored hard link count.
func (st *Stat_t) Nlink() uint {
	return st._nlink
}

/// Wgid records the owning group ID.
func (st *Stat_t) Wgid(v uint) {
	st._gid = v
}

/// Wuid records the owning user ID.
func (st *Stat_t) Wuid(v uint) {
	st._uid = v
}

/// Uid returns the stored owning user ID.
func (st *Stat_t) Uid() uint {
	return st._uid
}

/// Wmtime records the last-modification time as seconds/nanoseconds.
func (st *Stat_t) Wmtime(sec, nsec uint) {
	st._m_sec = sec
	st._m_nsec = nsec
}

/// Mtime returns the stored last-modification time.
func (st *Stat_t) Mtime() (uint, uint) {
	return st._m_sec, st._m_nsec
}

/// Gid returns the stored group ID.
func (st *Stat_t) Gid() uint {
	return st._gid
}

/// Watime records the last-access time as seconds/nanoseconds.
func (st *Stat_t) Watime(sec, nsec uint) {
	st._a_sec = sec
	st._a_nsec = nsec
}

/// Atime returns the stored last-access time.
func (st *Stat_t) Atime() (uint, uint) {
	return st._a_sec, st._a_nsec
}

/// Wctime records the last-status-change time as seconds/nanoseconds.
func (st *Stat_t) Wctime(sec, nsec uint) {
	st._c_sec = sec
	st._c_nsec = nsec
}

/// Ctime returns the stored last-status-change time.
func (st *Stat_t) Ctime() (uint, uint) {
	return st._c_sec, st._c_nsec
}

/// Bytes exposes the raw bytes of the structure.
func (st *Stat_t) Bytes() []uint8 {
	const sz = unsafe.Sizeof(*st)
	sl := (*[sz]uint8)(unsafe.Pointer(&st._dev))
	return sl[:]
}
