package defs

// Err_t is a kernel error code: zero on success, otherwise the negative
// of one of the errno-style constants below (e.g. -defs.ENOENT),
// matching the convention used throughout vm.Vm_t and fs.Fs_t.
type Err_t int

// Tid_t identifies a thread, unique across the whole system for as long
// as the thread is alive.
type Tid_t int

// Errno codes. Values follow the numbering libc headers
// use for the same names, so on-wire/errno-returning syscalls match what
// a real Argentum libc expects.
const (
	EPERM        Err_t = 1
	ENOENT       Err_t = 2
	ESRCH        Err_t = 3
	EINTR        Err_t = 4
	EIO          Err_t = 5
	E2BIG        Err_t = 7
	EBADF        Err_t = 9
	ECHILD       Err_t = 10
	EAGAIN       Err_t = 11
	ENOMEM       Err_t = 12
	EACCES       Err_t = 13
	EFAULT       Err_t = 14
	ENOTBLK      Err_t = 15
	EBUSY        Err_t = 16
	EEXIST       Err_t = 17
	EXDEV        Err_t = 18
	ENODEV       Err_t = 19
	ENOTDIR      Err_t = 20
	EISDIR       Err_t = 21
	EINVAL       Err_t = 22
	ENFILE       Err_t = 23
	EMFILE       Err_t = 24
	ENOTTY       Err_t = 25
	EFBIG        Err_t = 27
	ENOSPC       Err_t = 28
	ESPIPE       Err_t = 29
	EROFS        Err_t = 30
	EMLINK       Err_t = 31
	EPIPE        Err_t = 32
	EDOM         Err_t = 33
	ERANGE       Err_t = 34
	ENAMETOOLONG Err_t = 36
	ENOSYS       Err_t = 38
	ENOTEMPTY    Err_t = 39
	ENOHEAP      Err_t = 48 // kernel heap admission budget exhausted
)

// File status/open flags, matching the bit layout fcntl.h-style headers
// use so syscall arguments can be passed through unchanged.
const (
	O_RDONLY   int = 0x0000
	O_WRONLY   int = 0x0001
	O_RDWR     int = 0x0002
	O_ACCMODE  int = 0x0003
	O_CREAT    int = 0x0040
	O_EXCL     int = 0x0080
	O_NOCTTY   int = 0x0100
	O_TRUNC    int = 0x0200
	O_APPEND   int = 0x0400
	O_NONBLOCK int = 0x0800
	O_DIRECTORY int = 0x10000
	O_CLOEXEC  int = 0x80000
)

// Seek whence values.
const (
	SEEK_SET int = 0
	SEEK_CUR int = 1
	SEEK_END int = 2
)

// Signal numbers used by the process/signal subsystem (proc package).
const (
	SIGHUP  = 1
	SIGINT  = 2
	SIGQUIT = 3
	SIGILL  = 4
	SIGABRT = 6
	SIGFPE  = 8
	SIGKILL = 9
	SIGSEGV = 11
	SIGPIPE = 13
	SIGALRM = 14
	SIGTERM = 15
	SIGCHLD = 17
	SIGCONT = 18
	SIGSTOP = 19
	NSIG    = 32
)

// Wait() options.
const (
	WNOHANG   int = 1
	WUNTRACED int = 2
)

// OPEN_MAX bounds the size of a process's file-descriptor table.
// LINK_MAX bounds an inode's hard-link count (fs.Fs_link enforces it).
const (
	OPEN_MAX = 64
	LINK_MAX = 32
)

// Process lifecycle states.
const (
	PROCESS_STATE_NONE   = 0
	PROCESS_STATE_ACTIVE = 1
	PROCESS_STATE_ZOMBIE = 2
	PROCESS_STATE_STOPPED = 3
)

// d_type values for the getdents dirent record, matching the standard
// DT_* constants a libc <dirent.h> exposes.
const (
	DT_UNKNOWN = 0
	DT_REG     = 8
	DT_DIR     = 4
	DT_CHR     = 2
)
