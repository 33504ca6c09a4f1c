package syscalls

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

type flagName struct {
	value uint64
	name  string
}

// 组合标志需要排在它包含的单个标志之前
var openFlags = []flagName{
	{unix.O_TMPFILE, "O_TMPFILE"},
	{unix.O_SYNC, "O_SYNC"},
	{unix.O_CREAT, "O_CREAT"},
	{unix.O_EXCL, "O_EXCL"},
	{unix.O_NOCTTY, "O_NOCTTY"},
	{unix.O_TRUNC, "O_TRUNC"},
	{unix.O_APPEND, "O_APPEND"},
	{unix.O_NONBLOCK, "O_NONBLOCK"},
	{unix.O_DSYNC, "O_DSYNC"},
	{unix.O_ASYNC, "O_ASYNC"},
	{unix.O_DIRECT, "O_DIRECT"},
	{unix.O_LARGEFILE, "O_LARGEFILE"},
	{unix.O_DIRECTORY, "O_DIRECTORY"},
	{unix.O_NOFOLLOW, "O_NOFOLLOW"},
	{unix.O_NOATIME, "O_NOATIME"},
	{unix.O_CLOEXEC, "O_CLOEXEC"},
	{unix.O_PATH, "O_PATH"},
}

var cloneFlags = []flagName{
	{unix.CLONE_VM, "CLONE_VM"},
	{unix.CLONE_FS, "CLONE_FS"},
	{unix.CLONE_FILES, "CLONE_FILES"},
	{unix.CLONE_SIGHAND, "CLONE_SIGHAND"},
	{unix.CLONE_PIDFD, "CLONE_PIDFD"},
	{unix.CLONE_PTRACE, "CLONE_PTRACE"},
	{unix.CLONE_VFORK, "CLONE_VFORK"},
	{unix.CLONE_PARENT, "CLONE_PARENT"},
	{unix.CLONE_THREAD, "CLONE_THREAD"},
	{unix.CLONE_NEWNS, "CLONE_NEWNS"},
	{unix.CLONE_SYSVSEM, "CLONE_SYSVSEM"},
	{unix.CLONE_SETTLS, "CLONE_SETTLS"},
	{unix.CLONE_PARENT_SETTID, "CLONE_PARENT_SETTID"},
	{unix.CLONE_CHILD_CLEARTID, "CLONE_CHILD_CLEARTID"},
	{unix.CLONE_UNTRACED, "CLONE_UNTRACED"},
	{unix.CLONE_CHILD_SETTID, "CLONE_CHILD_SETTID"},
	{unix.CLONE_NEWCGROUP, "CLONE_NEWCGROUP"},
	{unix.CLONE_NEWUTS, "CLONE_NEWUTS"},
	{unix.CLONE_NEWIPC, "CLONE_NEWIPC"},
	{unix.CLONE_NEWUSER, "CLONE_NEWUSER"},
	{unix.CLONE_NEWPID, "CLONE_NEWPID"},
	{unix.CLONE_NEWNET, "CLONE_NEWNET"},
	{unix.CLONE_IO, "CLONE_IO"},
}

var mmapProt = []flagName{
	{unix.PROT_READ, "PROT_READ"},
	{unix.PROT_WRITE, "PROT_WRITE"},
	{unix.PROT_EXEC, "PROT_EXEC"},
	{unix.PROT_GROWSDOWN, "PROT_GROWSDOWN"},
	{unix.PROT_GROWSUP, "PROT_GROWSUP"},
}

var mmapFlags = []flagName{
	{unix.MAP_FIXED_NOREPLACE, "MAP_FIXED_NOREPLACE"},
	{unix.MAP_FIXED, "MAP_FIXED"},
	{unix.MAP_ANONYMOUS, "MAP_ANONYMOUS"},
	{unix.MAP_GROWSDOWN, "MAP_GROWSDOWN"},
	{unix.MAP_DENYWRITE, "MAP_DENYWRITE"},
	{unix.MAP_EXECUTABLE, "MAP_EXECUTABLE"},
	{unix.MAP_LOCKED, "MAP_LOCKED"},
	{unix.MAP_NORESERVE, "MAP_NORESERVE"},
	{unix.MAP_POPULATE, "MAP_POPULATE"},
	{unix.MAP_NONBLOCK, "MAP_NONBLOCK"},
	{unix.MAP_STACK, "MAP_STACK"},
	{unix.MAP_HUGETLB, "MAP_HUGETLB"},
}

var accessModes = []flagName{
	{unix.R_OK, "R_OK"},
	{unix.W_OK, "W_OK"},
	{unix.X_OK, "X_OK"},
}

// FormatFlags 按参数类型把整数格式化为 strace 风格的标志串
// 对非标志类型的参数原样输出十进制
func FormatFlags(kind ArgKind, v uint64) string {
	switch kind {
	case ArgOpenFlags:
		return formatOpenFlags(v)
	case ArgCloneFlags:
		return formatCloneFlags(v)
	case ArgMmapProt:
		if v == 0 {
			return "PROT_NONE"
		}
		return joinFlags(mmapProt, v)
	case ArgMmapFlags:
		return formatMmapFlags(v)
	case ArgAccessMode:
		if v == 0 {
			return "F_OK"
		}
		return joinFlags(accessModes, v)
	case ArgSignal:
		return FormatSignal(syscall.Signal(v))
	}
	return strconv.FormatUint(v, 10)
}

// FormatSignal 返回信号名，如 SIGCHLD；未知信号输出数字
func FormatSignal(s syscall.Signal) string {
	if s == 0 {
		return "0"
	}
	if n := unix.SignalName(s); n != "" {
		return n
	}
	return strconv.Itoa(int(s))
}

func formatOpenFlags(v uint64) string {
	var mode string
	switch v & unix.O_ACCMODE {
	case unix.O_RDONLY:
		mode = "O_RDONLY"
	case unix.O_WRONLY:
		mode = "O_WRONLY"
	case unix.O_RDWR:
		mode = "O_RDWR"
	default:
		mode = "O_ACCMODE"
	}
	rest := v &^ unix.O_ACCMODE
	if rest == 0 {
		return mode
	}
	return mode + "|" + joinFlags(openFlags, rest)
}

func formatCloneFlags(v uint64) string {
	exitSig := v & 0xff
	s := joinFlags(cloneFlags, v&^0xff)
	if exitSig == 0 {
		return s
	}
	if v&^0xff == 0 {
		return FormatSignal(syscall.Signal(exitSig))
	}
	return s + "|" + FormatSignal(syscall.Signal(exitSig))
}

func formatMmapFlags(v uint64) string {
	var typ string
	switch v & 0x3 {
	case unix.MAP_SHARED:
		typ = "MAP_SHARED"
	case unix.MAP_PRIVATE:
		typ = "MAP_PRIVATE"
	case unix.MAP_SHARED_VALIDATE:
		typ = "MAP_SHARED_VALIDATE"
	}
	rest := v &^ 0x3
	switch {
	case rest == 0 && typ == "":
		return "0"
	case rest == 0:
		return typ
	case typ == "":
		return joinFlags(mmapFlags, rest)
	}
	return typ + "|" + joinFlags(mmapFlags, rest)
}

// joinFlags 依次取出表中的标志，剩余的未知位以十六进制输出
func joinFlags(table []flagName, v uint64) string {
	var parts []string
	for _, f := range table {
		if f.value != 0 && v&f.value == f.value {
			parts = append(parts, f.name)
			v &^= f.value
		}
	}
	if v != 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%#x", v))
	}
	return strings.Join(parts, "|")
}
