package fd

import "sync"

import "github.com/aglotoff/codename-argentum/src/bpath"
import "github.com/aglotoff/codename-argentum/src/defs"
import "github.com/aglotoff/codename-argentum/src/fdops"
import "github.com/aglotoff/codename-argentum/src/ustr"

/// File descriptor permission bits.
const (
	FD_READ    = 0x1 /// read permission
	FD_WRITE   = 0x2 /// write permission
	FD_CLOEXEC = 0x4 /// close-on-exec flag
)

/// Fd_t represents an open file descriptor.
type Fd_t struct {
       // fops is an interface implemented via a "pointer receiver", thus fops
       // is a reference, not a value
       Fops  fdops.Fdops_i /// descriptor operations
       Perms int           /// permission bits
}

/// Copyfd duplicates an open file descriptor by reopening it.
func Copyfd(fd *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{}
	*nfd = *fd
	err := nfd.Fops.Reopen()
	if err != 0 {
		return nil, err
	}
	return nfd, 0
}

/// Close_panic closes the descriptor and panics on failure.
func Close_panic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("must succeed")
	}
}

/// Cred_t carries the credentials a filesystem operation is performed
/// under: the effective uid/gid used for permission checks and the
/// file-mode creation mask applied to new inodes, mirroring
/// struct Process fields (ruid/euid/rgid/egid/cmask)
/// without pulling in the whole process type (fs must not import proc).
/// A nil *Cred_t is treated as uid 0 / gid 0 / cmask 0 — root, no mask —
/// so existing callers that predate credential plumbing (cmd/mkfs,
/// ufs's host-side test harness) keep their old behavior unchanged.
type Cred_t struct {
	Uid, Gid int
	Cmask    int
}

/// Root returns the credentials of the superuser, uid 0 with no mask.
func Root() *Cred_t {
	return &Cred_t{}
}

func (cr *Cred_t) uid() int {
	if cr == nil {
		return 0
	}
	return cr.Uid
}

func (cr *Cred_t) gid() int {
	if cr == nil {
		return 0
	}
	return cr.Gid
}

// Mask applies the credential's file-mode creation mask to mode, the
// same `mode &= ~process_current()->cmask` fs_create
// performs.
func (cr *Cred_t) Mask(mode int) int {
	if cr == nil {
		return mode
	}
	return mode &^ cr.Cmask
}

/// Uid returns the credential's uid, or 0 for a nil (root) credential.
func (cr *Cred_t) Uid() int { return cr.uid() }

/// Gid returns the credential's gid, or 0 for a nil (root) credential.
func (cr *Cred_t) Gid() int { return cr.gid() }

/// Cwd_t tracks the current working directory for a process.
type Cwd_t struct {
       sync.Mutex // to serialize chdirs
       Fd   *Fd_t    /// current directory fd
       Path ustr.Ustr /// canonical path
}

/// Fullpath joins cwd with p if p is not already absolute.
func (cwd *Cwd_t) Fullpath(p ustr.Ustr) ustr.Ustr {
	if p.IsAbsolute() {
		return p
	} else {
		full := append(cwd.Path, '/')
		return append(full, p...)
	}
}

/// Canonicalpath resolves path components relative to cwd.
func (cwd *Cwd_t) Canonicalpath(p ustr.Ustr) ustr.Ustr {
	p1 := cwd.Fullpath(p)
	return bpath.Canonicalize(p1)
}

/// MkRootCwd constructs a Cwd_t rooted at "/".
func MkRootCwd(fd *Fd_t) *Cwd_t {
	c := &Cwd_t{}
	c.Fd = fd
	c.Path = ustr.MkUstrRoot()
	return c
}
