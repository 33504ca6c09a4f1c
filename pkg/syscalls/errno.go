package syscalls

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// MaxErrno 是内核返回的最大错误码，返回值在 [-MaxErrno, -1] 之间表示失败
const MaxErrno = 4095

// 内核内部的重启错误码，只会在被信号打断的系统调用出口出现
const (
	ERESTARTSYS           = syscall.Errno(512)
	ERESTARTNOINTR        = syscall.Errno(513)
	ERESTARTNOHAND        = syscall.Errno(514)
	ERESTART_RESTARTBLOCK = syscall.Errno(516)
)

// IsError 判断系统调用返回值是否表示失败
// 像 mmap 返回的高位地址同样是负数，但不在错误范围内
func IsError(ret int64) bool {
	return ret < 0 && ret >= -MaxErrno
}

// Errno 从失败的返回值中取出错误码；成功返回 0
func Errno(ret int64) syscall.Errno {
	if !IsError(ret) {
		return 0
	}
	return syscall.Errno(-ret)
}

// ErrnoName 返回错误码的符号名，如 ENOENT
func ErrnoName(e syscall.Errno) string {
	switch e {
	case ERESTARTSYS:
		return "ERESTARTSYS"
	case ERESTARTNOINTR:
		return "ERESTARTNOINTR"
	case ERESTARTNOHAND:
		return "ERESTARTNOHAND"
	case ERESTART_RESTARTBLOCK:
		return "ERESTART_RESTARTBLOCK"
	}
	if n := unix.ErrnoName(e); n != "" {
		return n
	}
	return fmt.Sprintf("errno%d", int(e))
}

// ErrnoDescription 返回错误码的说明，重启错误码给出 strace 风格的说明
func ErrnoDescription(e syscall.Errno) string {
	switch e {
	case ERESTARTSYS:
		return "To be restarted if SA_RESTART is set"
	case ERESTARTNOINTR:
		return "To be restarted"
	case ERESTARTNOHAND:
		return "To be restarted if no handler"
	case ERESTART_RESTARTBLOCK:
		return "Interrupted by signal"
	}
	return e.Error()
}

// ErrnoByName 将 ENOENT 这样的名称解析为错误码，也接受数字
func ErrnoByName(name string) (syscall.Errno, error) {
	var n int
	if _, err := fmt.Sscanf(name, "%d", &n); err == nil && n > 0 && n <= MaxErrno {
		return syscall.Errno(n), nil
	}
	for e := syscall.Errno(1); e <= 133; e++ {
		if unix.ErrnoName(e) == name {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown errno %q", name)
}
