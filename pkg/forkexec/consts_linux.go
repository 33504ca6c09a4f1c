package forkexec

import (
	"golang.org/x/sys/unix"
)

// 定义 syscall 包中缺少的常量
const (
	// SECCOMP_SET_MODE_FILTER 是 seccomp 的过滤器模式
	// 允许使用 BPF 过滤器定义允许的系统调用
	SECCOMP_SET_MODE_FILTER = 1

	// SECCOMP_FILTER_FLAG_TSYNC 表示同步所有线程的 seccomp 过滤器
	SECCOMP_FILTER_FLAG_TSYNC = 1
)

var (
	// empty 用于 execveat(fd, "", AT_EMPTY_PATH)
	empty = []byte("\000")

	// etxtbsyRetryInterval 定义了遇到 ETXTBSY 错误时的重试间隔（1 毫秒）
	etxtbsyRetryInterval = unix.Timespec{
		Nsec: 1 * 1000 * 1000,
	}
)
