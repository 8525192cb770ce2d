package proc

import (
	"time"

	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/fd"
	"github.com/aglotoff/codename-argentum/src/fs"
	"github.com/aglotoff/codename-argentum/src/stat"
)

// Syscall numbers, grouped by subsystem (process control, filesystem,
// then everything else). Argument registers are modeled as a plain
// [6]uintptr rather than real ARM/x86 registers, since this kernel has
// no trap frame to read them out of.
const (
	SYS_FORK = iota
	SYS_EXECV
	SYS_EXIT
	SYS_WAIT
	SYS_GETPID
	SYS_KILL
	SYS_SIGACTION
	SYS_SIGRETURN
	SYS_SIGPROCMASK
	SYS_NANOSLEEP
	SYS_OPEN
	SYS_CLOSE
	SYS_READ
	SYS_WRITE
	SYS_LSEEK
	SYS_STAT
	SYS_FSTAT
	SYS_CHDIR
	SYS_CHMOD
	SYS_MKDIR
	SYS_MKNOD
	SYS_LINK
	SYS_UNLINK
	SYS_RMDIR
	SYS_DUP
	SYS_PIPE
	SYS_GETDENTS
	SYS_IOCTL
	SYS_SOCKET
	SYS_BIND
	SYS_LISTEN
	SYS_ACCEPT
	SYS_CONNECT
	SYS_SEND
	SYS_RECV
	SYS_SETSOCKOPT
	SYS_BRK
	SYS_UNAME
	NR_SYSCALLS
)

// maxPathLen bounds how much of a user string a path-taking syscall
// will copy in before giving up with ENAMETOOLONG; fs.checkNames
// enforces the real per-component DIRSIZ limit once the path is
// resolved.
const maxPathLen = 512

// SyscallTable dispatches a syscall number to its handler, the Go
// analogue of syscall.c switch (and this kernel's
// one concession to not having real registers: args is a fixed array
// rather than however many the calling convention actually passes).
var SyscallTable [NR_SYSCALLS]func(*Process_t, [6]uintptr) int

func init() {
	SyscallTable[SYS_FORK] = sysFork
	SyscallTable[SYS_EXECV] = sysExecv
	SyscallTable[SYS_EXIT] = sysExit
	SyscallTable[SYS_WAIT] = sysWait
	SyscallTable[SYS_GETPID] = sysGetpid
	SyscallTable[SYS_KILL] = sysKill
	SyscallTable[SYS_SIGACTION] = sysSigaction
	SyscallTable[SYS_SIGRETURN] = sysSigreturn
	SyscallTable[SYS_SIGPROCMASK] = sysSigprocmask
	SyscallTable[SYS_NANOSLEEP] = sysNanosleep
	SyscallTable[SYS_OPEN] = sysOpen
	SyscallTable[SYS_CLOSE] = sysClose
	SyscallTable[SYS_READ] = sysRead
	SyscallTable[SYS_WRITE] = sysWrite
	SyscallTable[SYS_LSEEK] = sysLseek
	SyscallTable[SYS_STAT] = sysStat
	SyscallTable[SYS_FSTAT] = sysFstat
	SyscallTable[SYS_CHDIR] = sysChdir
	SyscallTable[SYS_CHMOD] = sysChmod
	SyscallTable[SYS_MKDIR] = sysMkdir
	SyscallTable[SYS_MKNOD] = sysMknod
	SyscallTable[SYS_LINK] = sysLink
	SyscallTable[SYS_UNLINK] = sysUnlink
	SyscallTable[SYS_RMDIR] = sysRmdir
	SyscallTable[SYS_DUP] = sysDup
	SyscallTable[SYS_PIPE] = sysPipe
	SyscallTable[SYS_GETDENTS] = sysGetdents
	SyscallTable[SYS_IOCTL] = sysNosys
	SyscallTable[SYS_SOCKET] = sysNosys
	SyscallTable[SYS_BIND] = sysNosys
	SyscallTable[SYS_LISTEN] = sysNosys
	SyscallTable[SYS_ACCEPT] = sysNosys
	SyscallTable[SYS_CONNECT] = sysNosys
	SyscallTable[SYS_SEND] = sysNosys
	SyscallTable[SYS_RECV] = sysNosys
	SyscallTable[SYS_SETSOCKOPT] = sysNosys
	SyscallTable[SYS_BRK] = sysBrk
	SyscallTable[SYS_UNAME] = sysUname
}

// sysNosys backs every syscall this kernel has no business implementing
// without a network stack (the socket family is numbered here, but no
// networking module exists anywhere else in this tree).
func sysNosys(p *Process_t, args [6]uintptr) int {
	return int(-defs.ENOSYS)
}

func sysFork(p *Process_t, args [6]uintptr) int {
	child, err := p.Fork()
	if err != 0 {
		return int(err)
	}
	return child.Pid
}

func sysExecv(p *Process_t, args [6]uintptr) int {
	path, err := p.Vm.Userstr(int(args[0]), maxPathLen)
	if err != 0 {
		return int(err)
	}
	argv, err := readStrArray(p, int(args[1]))
	if err != 0 {
		return int(err)
	}
	envp, err := readStrArray(p, int(args[2]))
	if err != 0 {
		return int(err)
	}
	if err := p.Exec(path, argv, envp); err != 0 {
		return int(err)
	}
	return 0
}

// readStrArray reads a NULL-terminated array of NULL-terminated user
// strings starting at uva, the argv/envp layout execve(2) expects.
// uva == 0 is treated as an empty array.
func readStrArray(p *Process_t, uva int) ([]string, defs.Err_t) {
	if uva == 0 {
		return nil, 0
	}
	var out []string
	for i := 0; ; i++ {
		ptr, err := p.Vm.Userreadn(uva+i*8, 8)
		if err != 0 {
			return nil, err
		}
		if ptr == 0 {
			return out, 0
		}
		s, err := p.Vm.Userstr(ptr, maxPathLen)
		if err != 0 {
			return nil, err
		}
		out = append(out, s.String())
	}
}

func sysExit(p *Process_t, args [6]uintptr) int {
	p.Exit(int(args[0]))
	return 0
}

func sysWait(p *Process_t, args [6]uintptr) int {
	pid := int(args[0])
	statusUva := int(args[1])
	options := int(args[2])
	rpid, status, err := p.Wait(pid, options)
	if err != 0 {
		return int(err)
	}
	if statusUva != 0 {
		if err := p.Vm.Userwriten(statusUva, 4, status); err != 0 {
			return int(err)
		}
	}
	return rpid
}

func sysGetpid(p *Process_t, args [6]uintptr) int {
	return p.Pid
}

func sysKill(p *Process_t, args [6]uintptr) int {
	target := Lookup(int(args[0]))
	if target == nil {
		return int(-defs.ESRCH)
	}
	return int(target.Generate(int(args[1]), 0))
}

// sysSigaction installs a new handler for args[0], passed as a plain
// (handler, mask, flags) triple rather than a pointer to a struct in
// user memory — this simulation has no stable ABI to marshal against,
// so the registers just carry the fields directly. If args[4] is
// non-zero, the previous action is written there as an 8-byte handler
// at offset 0, a 4-byte mask at offset 8 and 4-byte flags at offset 12.
func sysSigaction(p *Process_t, args [6]uintptr) int {
	signo := int(args[0])
	act := &Sigaction_t{
		Handler: uintptr(args[1]),
		Mask:    uint32(args[2]),
		Flags:   int(args[3]),
	}
	var old Sigaction_t
	if err := p.Action(signo, act, &old); err != 0 {
		return int(err)
	}
	if oldUva := int(args[4]); oldUva != 0 {
		if err := p.Vm.Userwriten(oldUva, 8, int(old.Handler)); err != 0 {
			return int(err)
		}
		if err := p.Vm.Userwriten(oldUva+8, 4, int(old.Mask)); err != 0 {
			return int(err)
		}
		if err := p.Vm.Userwriten(oldUva+12, 4, old.Flags); err != 0 {
			return int(err)
		}
	}
	return 0
}

// sysSigreturn is a no-op in this simulation: the architecture-specific
// trampoline that would restore a pre-signal trap frame does not exist
// here (see DeliverPending's doc comment).
func sysSigreturn(p *Process_t, args [6]uintptr) int {
	return 0
}

func sysSigprocmask(p *Process_t, args [6]uintptr) int {
	how := int(args[0])
	setUva := int(args[1])
	oldUva := int(args[2])
	var set uint32
	if setUva != 0 {
		v, err := p.Vm.Userreadn(setUva, 4)
		if err != 0 {
			return int(err)
		}
		set = uint32(v)
	}
	var old uint32
	if err := p.Mask(how, set, &old); err != 0 {
		return int(err)
	}
	if oldUva != 0 {
		if err := p.Vm.Userwriten(oldUva, 4, int(old)); err != 0 {
			return int(err)
		}
	}
	return 0
}

func sysNanosleep(p *Process_t, args [6]uintptr) int {
	d, _, err := p.Vm.Usertimespec(int(args[0]))
	if err != 0 {
		return int(err)
	}
	time.Sleep(d)
	return 0
}

func sysOpen(p *Process_t, args [6]uintptr) int {
	path, err := p.Vm.Userstr(int(args[0]), maxPathLen)
	if err != 0 {
		return int(err)
	}
	flags := int(args[1])
	mode := int(args[2])
	nfd, err := fsRoot.Fs_open(path, flags, mode, p.Cwd, p.Cr(), 0, 0)
	if err != 0 {
		return int(err)
	}
	fdno, err := p.AddFd(nfd)
	if err != 0 {
		fd.Close_panic(nfd)
		return int(err)
	}
	return fdno
}

func sysClose(p *Process_t, args [6]uintptr) int {
	return int(p.CloseFd(int(args[0])))
}

func sysRead(p *Process_t, args [6]uintptr) int {
	f, err := p.GetFd(int(args[0]))
	if err != 0 {
		return int(err)
	}
	ub := p.Vm.Mkuserbuf(int(args[1]), int(args[2]))
	n, err := f.Fops.Read(ub)
	if err != 0 {
		return int(err)
	}
	return n
}

func sysWrite(p *Process_t, args [6]uintptr) int {
	f, err := p.GetFd(int(args[0]))
	if err != 0 {
		return int(err)
	}
	ub := p.Vm.Mkuserbuf(int(args[1]), int(args[2]))
	n, err := f.Fops.Write(ub)
	if err != 0 {
		return int(err)
	}
	return n
}

func sysLseek(p *Process_t, args [6]uintptr) int {
	f, err := p.GetFd(int(args[0]))
	if err != 0 {
		return int(err)
	}
	off, err := f.Fops.Lseek(int(args[1]), int(args[2]))
	if err != 0 {
		return int(err)
	}
	return off
}

func writeStat(p *Process_t, st *stat.Stat_t, uva int) int {
	if err := p.Vm.K2user(st.Bytes(), uva); err != 0 {
		return int(err)
	}
	return 0
}

func sysStat(p *Process_t, args [6]uintptr) int {
	path, err := p.Vm.Userstr(int(args[0]), maxPathLen)
	if err != 0 {
		return int(err)
	}
	var st stat.Stat_t
	if err := fsRoot.Fs_stat(path, &st, p.Cwd, p.Cr()); err != 0 {
		return int(err)
	}
	return writeStat(p, &st, int(args[1]))
}

func sysFstat(p *Process_t, args [6]uintptr) int {
	f, err := p.GetFd(int(args[0]))
	if err != 0 {
		return int(err)
	}
	var st stat.Stat_t
	if err := f.Fops.Fstat(&st); err != 0 {
		return int(err)
	}
	return writeStat(p, &st, int(args[1]))
}

func sysChdir(p *Process_t, args [6]uintptr) int {
	path, err := p.Vm.Userstr(int(args[0]), maxPathLen)
	if err != 0 {
		return int(err)
	}
	nfd, err := fsRoot.Fs_open(path, defs.O_RDONLY|defs.O_DIRECTORY, 0, p.Cwd, p.Cr(), 0, 0)
	if err != 0 {
		return int(err)
	}
	var st stat.Stat_t
	if err := nfd.Fops.Fstat(&st); err != 0 {
		fd.Close_panic(nfd)
		return int(err)
	}
	if st.Mode()&(1<<31) == 0 {
		fd.Close_panic(nfd)
		return int(-defs.ENOTDIR)
	}

	p.Cwd.Lock()
	old := p.Cwd.Fd
	p.Cwd.Fd = nfd
	p.Cwd.Path = p.Cwd.Canonicalpath(path)
	p.Cwd.Unlock()
	fd.Close_panic(old)
	return 0
}

func sysChmod(p *Process_t, args [6]uintptr) int {
	path, err := p.Vm.Userstr(int(args[0]), maxPathLen)
	if err != 0 {
		return int(err)
	}
	return int(fsRoot.Fs_chmod(path, int(args[1]), p.Cwd, p.Cr()))
}

func sysMkdir(p *Process_t, args [6]uintptr) int {
	path, err := p.Vm.Userstr(int(args[0]), maxPathLen)
	if err != 0 {
		return int(err)
	}
	return int(fsRoot.Fs_mkdir(path, int(args[1]), p.Cwd, p.Cr()))
}

func sysMknod(p *Process_t, args [6]uintptr) int {
	path, err := p.Vm.Userstr(int(args[0]), maxPathLen)
	if err != 0 {
		return int(err)
	}
	major := int(args[2])
	minor := int(args[3])
	return int(fsRoot.Fs_mknod(path, int(args[1]), major, minor, p.Cwd, p.Cr()))
}

func sysLink(p *Process_t, args [6]uintptr) int {
	oldp, err := p.Vm.Userstr(int(args[0]), maxPathLen)
	if err != 0 {
		return int(err)
	}
	newp, err := p.Vm.Userstr(int(args[1]), maxPathLen)
	if err != 0 {
		return int(err)
	}
	return int(fsRoot.Fs_link(oldp, newp, p.Cwd, p.Cr()))
}

func sysUnlink(p *Process_t, args [6]uintptr) int {
	path, err := p.Vm.Userstr(int(args[0]), maxPathLen)
	if err != 0 {
		return int(err)
	}
	return int(fsRoot.Fs_unlink(path, p.Cwd, false, p.Cr()))
}

func sysRmdir(p *Process_t, args [6]uintptr) int {
	path, err := p.Vm.Userstr(int(args[0]), maxPathLen)
	if err != 0 {
		return int(err)
	}
	return int(fsRoot.Fs_unlink(path, p.Cwd, true, p.Cr()))
}

func sysDup(p *Process_t, args [6]uintptr) int {
	f, err := p.GetFd(int(args[0]))
	if err != 0 {
		return int(err)
	}
	nf, err := fd.Copyfd(f)
	if err != 0 {
		return int(err)
	}
	fdno, err := p.AddFd(nf)
	if err != 0 {
		fd.Close_panic(nf)
		return int(err)
	}
	return fdno
}

func sysPipe(p *Process_t, args [6]uintptr) int {
	rfd, wfd, err := MakePipe()
	if err != 0 {
		return int(err)
	}
	rno, err := p.AddFd(rfd)
	if err != 0 {
		fd.Close_panic(rfd)
		fd.Close_panic(wfd)
		return int(err)
	}
	wno, err := p.AddFd(wfd)
	if err != 0 {
		p.CloseFd(rno)
		fd.Close_panic(wfd)
		return int(err)
	}
	uva := int(args[0])
	if err := p.Vm.Userwriten(uva, 4, rno); err != 0 {
		return int(err)
	}
	if err := p.Vm.Userwriten(uva+4, 4, wno); err != 0 {
		return int(err)
	}
	return 0
}

func sysGetdents(p *Process_t, args [6]uintptr) int {
	f, err := p.GetFd(int(args[0]))
	if err != 0 {
		return int(err)
	}
	ft, ok := f.Fops.(*fs.File_t)
	if !ok {
		return int(-defs.ENOTDIR)
	}
	ub := p.Vm.Mkuserbuf(int(args[1]), int(args[2]))
	n, err := ft.Getdents(ub)
	if err != 0 {
		return int(err)
	}
	return n
}

func sysBrk(p *Process_t, args [6]uintptr) int {
	old, err := p.Grow(int(args[0]))
	if err != 0 {
		return int(err)
	}
	return old
}

// utsname fields are NUL-padded, fixed-size strings written directly
// into user memory, matching struct utsname's layout.
const utsnameFieldLen = 65

func sysUname(p *Process_t, args [6]uintptr) int {
	uva := int(args[0])
	fields := []string{"Argentum", "", "0.1.0", "", "arm"}
	for i, s := range fields {
		buf := make([]byte, utsnameFieldLen)
		copy(buf, s)
		if err := p.Vm.K2user(buf, uva+i*utsnameFieldLen); err != 0 {
			return int(err)
		}
	}
	return 0
}
