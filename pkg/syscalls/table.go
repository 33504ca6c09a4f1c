package syscalls

func def(name string, class Class, ret RetKind, args ...ArgKind) Descriptor {
	return Descriptor{Name: name, Args: args, Ret: ret, Class: class, Known: true}
}

// table 按系统调用名称索引；同一张表服务于 amd64 和 arm64，
// 某个架构上不存在的名称不会被查到
var table = buildTable()

func buildTable() map[string]Descriptor {
	// 简写，便于表格对齐
	const (
		i   = ArgInt
		u   = ArgUint
		x   = ArgHex
		o   = ArgOct
		fd  = ArgFD
		dfd = ArgDirFD
		pth = ArgPath
		str = ArgString
		wb  = ArgWriteBuf
		rb  = ArgReadBuf
		sv  = ArgStringVector
		ofl = ArgOpenFlags
		cfl = ArgCloneFlags
		mpr = ArgMmapProt
		mfl = ArgMmapFlags
		acc = ArgAccessMode
		sig = ArgSignal
		ptr = ArgPtr
		pfd = ArgPipeFDs
	)

	return indexTable([]Descriptor{
		// 文件描述符读写
		def("read", ClassDesc, RetInt, fd, rb, u),
		def("write", ClassDesc, RetInt, fd, wb, u),
		def("pread64", ClassDesc, RetInt, fd, rb, u, i),
		def("pwrite64", ClassDesc, RetInt, fd, wb, u, i),
		def("readv", ClassDesc, RetInt, fd, ptr, i),
		def("writev", ClassDesc, RetInt, fd, ptr, i),
		def("close", ClassDesc, RetInt, fd),
		def("close_range", ClassDesc, RetInt, u, u, x),
		def("dup", ClassDesc, RetFD, fd),
		def("dup2", ClassDesc, RetFD, fd, fd),
		def("dup3", ClassDesc, RetFD, fd, fd, ofl),
		def("lseek", ClassDesc, RetInt, fd, i, i),
		def("fcntl", ClassDesc, RetInt, fd, i, x),
		def("ioctl", ClassDesc, RetInt, fd, x, x),
		def("pipe", ClassDesc, RetInt, pfd),
		def("pipe2", ClassDesc, RetInt, pfd, ofl),
		def("fstat", ClassDesc, RetInt, fd, ptr),
		def("fsync", ClassDesc, RetInt, fd),
		def("fdatasync", ClassDesc, RetInt, fd),
		def("ftruncate", ClassDesc, RetInt, fd, i),
		def("getdents64", ClassDesc, RetInt, fd, ptr, u),
		def("sendfile", ClassDesc|ClassNetwork, RetInt, fd, fd, ptr, u),
		def("poll", ClassDesc, RetInt, ptr, u, i),
		def("ppoll", ClassDesc, RetInt, ptr, u, ptr, ptr, u),
		def("select", ClassDesc, RetInt, i, ptr, ptr, ptr, ptr),
		def("pselect6", ClassDesc, RetInt, i, ptr, ptr, ptr, ptr, ptr),
		def("epoll_create1", ClassDesc, RetFD, x),
		def("epoll_ctl", ClassDesc, RetInt, fd, i, fd, ptr),
		def("epoll_wait", ClassDesc, RetInt, fd, ptr, i, i),
		def("epoll_pwait", ClassDesc, RetInt, fd, ptr, i, i, ptr, u),
		def("eventfd2", ClassDesc, RetFD, u, x),
		def("memfd_create", ClassDesc, RetFD, str, x),

		// 文件系统
		def("open", ClassFile|ClassDesc, RetFD, pth, ofl, o),
		def("openat", ClassFile|ClassDesc, RetFD, dfd, pth, ofl, o),
		def("creat", ClassFile|ClassDesc, RetFD, pth, o),
		def("stat", ClassFile, RetInt, pth, ptr),
		def("lstat", ClassFile, RetInt, pth, ptr),
		def("newfstatat", ClassFile|ClassDesc, RetInt, dfd, pth, ptr, x),
		def("statx", ClassFile|ClassDesc, RetInt, dfd, pth, x, x, ptr),
		def("access", ClassFile, RetInt, pth, acc),
		def("faccessat", ClassFile|ClassDesc, RetInt, dfd, pth, acc),
		def("faccessat2", ClassFile|ClassDesc, RetInt, dfd, pth, acc, x),
		def("readlink", ClassFile, RetInt, pth, rb, u),
		def("readlinkat", ClassFile|ClassDesc, RetInt, dfd, pth, rb, u),
		def("unlink", ClassFile, RetInt, pth),
		def("unlinkat", ClassFile|ClassDesc, RetInt, dfd, pth, x),
		def("rename", ClassFile, RetInt, pth, pth),
		def("renameat", ClassFile|ClassDesc, RetInt, dfd, pth, dfd, pth),
		def("renameat2", ClassFile|ClassDesc, RetInt, dfd, pth, dfd, pth, x),
		def("mkdir", ClassFile, RetInt, pth, o),
		def("mkdirat", ClassFile|ClassDesc, RetInt, dfd, pth, o),
		def("rmdir", ClassFile, RetInt, pth),
		def("chdir", ClassFile, RetInt, pth),
		def("fchdir", ClassDesc, RetInt, fd),
		def("getcwd", ClassFile, RetInt, rb, u),
		def("chmod", ClassFile, RetInt, pth, o),
		def("fchmod", ClassDesc, RetInt, fd, o),
		def("fchmodat", ClassFile|ClassDesc, RetInt, dfd, pth, o),
		def("chown", ClassFile, RetInt, pth, i, i),
		def("fchownat", ClassFile|ClassDesc, RetInt, dfd, pth, i, i, x),
		def("link", ClassFile, RetInt, pth, pth),
		def("linkat", ClassFile|ClassDesc, RetInt, dfd, pth, dfd, pth, x),
		def("symlink", ClassFile, RetInt, pth, pth),
		def("symlinkat", ClassFile|ClassDesc, RetInt, pth, dfd, pth),
		def("truncate", ClassFile, RetInt, pth, i),
		def("utimensat", ClassFile|ClassDesc, RetInt, dfd, pth, ptr, x),
		def("mknodat", ClassFile|ClassDesc, RetInt, dfd, pth, o, x),
		def("statfs", ClassFile, RetInt, pth, ptr),
		def("mount", ClassFile, RetInt, str, pth, str, x, ptr),
		def("umount2", ClassFile, RetInt, pth, x),
		def("chroot", ClassFile, RetInt, pth),
		def("getxattr", ClassFile, RetInt, pth, str, ptr, u),
		def("inotify_add_watch", ClassFile|ClassDesc, RetInt, fd, pth, x),

		// 进程
		def("execve", ClassFile|ClassProcess, RetInt, pth, sv, sv),
		def("execveat", ClassFile|ClassDesc|ClassProcess, RetInt, dfd, pth, sv, sv, x),
		def("fork", ClassProcess, RetInt),
		def("vfork", ClassProcess, RetInt),
		def("clone", ClassProcess, RetInt, cfl, ptr, ptr, ptr, x),
		def("clone3", ClassProcess, RetInt, ptr, u),
		def("exit", ClassProcess, RetNone, i),
		def("exit_group", ClassProcess, RetNone, i),
		def("wait4", ClassProcess, RetInt, i, ptr, x, ptr),
		def("waitid", ClassProcess, RetInt, i, i, ptr, x, ptr),
		def("kill", ClassProcess|ClassSignal, RetInt, i, sig),
		def("tkill", ClassSignal, RetInt, i, sig),
		def("tgkill", ClassSignal, RetInt, i, i, sig),
		def("getpid", 0, RetInt),
		def("getppid", 0, RetInt),
		def("gettid", 0, RetInt),
		def("getpgid", 0, RetInt, i),
		def("setpgid", 0, RetInt, i, i),
		def("setsid", 0, RetInt),
		def("prctl", 0, RetInt, i, x, x, x, x),
		def("arch_prctl", 0, RetInt, x, x),
		def("set_tid_address", 0, RetInt, ptr),
		def("set_robust_list", 0, RetInt, ptr, u),
		def("rseq", 0, RetInt, ptr, u, x, x),
		def("prlimit64", 0, RetInt, i, i, ptr, ptr),
		def("getrlimit", 0, RetInt, i, ptr),
		def("setrlimit", 0, RetInt, i, ptr),
		def("getrusage", 0, RetInt, i, ptr),
		def("sched_yield", 0, RetInt),
		def("sched_getaffinity", 0, RetInt, i, u, ptr),
		def("futex", 0, RetInt, ptr, i, i, ptr, ptr, i),
		def("nanosleep", 0, RetInt, ptr, ptr),
		def("clock_nanosleep", 0, RetInt, i, x, ptr, ptr),
		def("uname", 0, RetInt, ptr),
		def("ptrace", ClassProcess, RetInt, i, i, ptr, ptr),
		def("seccomp", 0, RetInt, u, x, ptr),
		def("getrandom", 0, RetInt, ptr, u, x),

		// 身份
		def("getuid", ClassCreds, RetInt),
		def("geteuid", ClassCreds, RetInt),
		def("getgid", ClassCreds, RetInt),
		def("getegid", ClassCreds, RetInt),
		def("setuid", ClassCreds, RetInt, i),
		def("setgid", ClassCreds, RetInt, i),
		def("getgroups", ClassCreds, RetInt, i, ptr),
		def("setgroups", ClassCreds, RetInt, i, ptr),
		def("capget", ClassCreds, RetInt, ptr, ptr),
		def("capset", ClassCreds, RetInt, ptr, ptr),

		// 信号
		def("rt_sigaction", ClassSignal, RetInt, sig, ptr, ptr, u),
		def("rt_sigprocmask", ClassSignal, RetInt, i, ptr, ptr, u),
		def("rt_sigreturn", ClassSignal, RetInt),
		def("rt_sigsuspend", ClassSignal, RetInt, ptr, u),
		def("rt_sigtimedwait", ClassSignal, RetInt, ptr, ptr, ptr, u),
		def("sigaltstack", ClassSignal, RetInt, ptr, ptr),
		def("pause", ClassSignal, RetInt),

		// 内存
		def("brk", ClassMemory, RetHex, x),
		def("mmap", ClassMemory|ClassDesc, RetHex, x, u, mpr, mfl, fd, x),
		def("munmap", ClassMemory, RetInt, x, u),
		def("mprotect", ClassMemory, RetInt, x, u, mpr),
		def("mremap", ClassMemory, RetHex, x, u, u, x, x),
		def("madvise", ClassMemory, RetInt, x, u, i),
		def("msync", ClassMemory, RetInt, x, u, x),
		def("mlock", ClassMemory, RetInt, x, u),
		def("munlock", ClassMemory, RetInt, x, u),

		// 网络
		def("socket", ClassNetwork|ClassDesc, RetFD, i, i, i),
		def("socketpair", ClassNetwork|ClassDesc, RetInt, i, i, i, pfd),
		def("connect", ClassNetwork|ClassDesc, RetInt, fd, ptr, u),
		def("bind", ClassNetwork|ClassDesc, RetInt, fd, ptr, u),
		def("listen", ClassNetwork|ClassDesc, RetInt, fd, i),
		def("accept", ClassNetwork|ClassDesc, RetFD, fd, ptr, ptr),
		def("accept4", ClassNetwork|ClassDesc, RetFD, fd, ptr, ptr, x),
		def("sendto", ClassNetwork|ClassDesc, RetInt, fd, wb, u, x, ptr, u),
		def("recvfrom", ClassNetwork|ClassDesc, RetInt, fd, rb, u, x, ptr, ptr),
		def("sendmsg", ClassNetwork|ClassDesc, RetInt, fd, ptr, x),
		def("recvmsg", ClassNetwork|ClassDesc, RetInt, fd, ptr, x),
		def("shutdown", ClassNetwork|ClassDesc, RetInt, fd, i),
		def("getsockname", ClassNetwork|ClassDesc, RetInt, fd, ptr, ptr),
		def("getpeername", ClassNetwork|ClassDesc, RetInt, fd, ptr, ptr),
		def("setsockopt", ClassNetwork|ClassDesc, RetInt, fd, i, i, ptr, u),
		def("getsockopt", ClassNetwork|ClassDesc, RetInt, fd, i, i, ptr, ptr),
	})
}

func indexTable(ds []Descriptor) map[string]Descriptor {
	m := make(map[string]Descriptor, len(ds))
	for _, d := range ds {
		m[d.Name] = d
	}
	return m
}
