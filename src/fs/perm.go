package fs

// Permission bit layout, classic UNIX rwxrwxrwx packed into the low 9
// bits of Inode_t.Mode, matching the S_IRUSR/S_IWUSR/... bit positions
// of include/sys/stat.h.
const (
	S_IRUSR = 0400
	S_IWUSR = 0200
	S_IXUSR = 0100
	S_IRGRP = 0040
	S_IWGRP = 0020
	S_IXGRP = 0010
	S_IROTH = 0004
	S_IWOTH = 0002
	S_IXOTH = 0001
)

// CanRead reports whether a caller with the given uid/gid may read ip,
// transliterating fs_inode_can_read (kernel/fs/
// inode.c): uid 0 always succeeds; otherwise owner/group/other bits
// apply in that order. ip.Lock must be held by the caller.
func CanRead(ip *Inode_t, uid, gid int) bool {
	if uid == 0 {
		return true
	}
	if uid == ip.Uid {
		return ip.Mode&S_IRUSR != 0
	}
	if gid == ip.Gid {
		return ip.Mode&S_IRGRP != 0
	}
	return ip.Mode&S_IROTH != 0
}

// CanWrite is fs_inode_can_write's transliteration.
func CanWrite(ip *Inode_t, uid, gid int) bool {
	if uid == 0 {
		return true
	}
	if uid == ip.Uid {
		return ip.Mode&S_IWUSR != 0
	}
	if gid == ip.Gid {
		return ip.Mode&S_IWGRP != 0
	}
	return ip.Mode&S_IWOTH != 0
}

// CanExecute is fs_inode_can_execute's transliteration: unlike
// CanRead/CanWrite, uid 0 is not an unconditional bypass here, it still
// requires at least one x-bit set, matching the original's
// `my_process->uid == 0: return inode->mode & (S_IXUSR|S_IXGRP|S_IXOTH)`.
func CanExecute(ip *Inode_t, uid, gid int) bool {
	if uid == 0 {
		return ip.Mode&(S_IXUSR|S_IXGRP|S_IXOTH) != 0
	}
	if uid == ip.Uid {
		return ip.Mode&S_IXUSR != 0
	}
	if gid == ip.Gid {
		return ip.Mode&S_IXGRP != 0
	}
	return ip.Mode&S_IXOTH != 0
}

// Permissions is the generic rwx check fs_permissions (kernel/fs/inode.c)
// offers alongside the three specific Can* checks above: it shifts the
// requested mode bits into the owner/group/other field depending on
// which category the caller falls into, then tests all requested bits
// are set. Kept distinct from Can{Read,Write,Execute} for callers
// (access(2)-style checks) that want to test an arbitrary combination
// of bits rather than one fixed permission.
func Permissions(ip *Inode_t, uid, gid int, mode int) bool {
	if uid == ip.Uid {
		mode <<= 6
	} else if gid == ip.Gid {
		mode <<= 3
	}
	return ip.Mode&mode == mode
}
