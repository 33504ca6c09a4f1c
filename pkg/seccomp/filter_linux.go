// Package seccomp 保存已经编译好的 seccomp 过滤器。
// 跟踪器只在加速模式下使用它：过滤器让未被选中的系统调用直接放行，
// 被选中的系统调用以 SECCOMP_RET_TRACE 通知跟踪器。
package seccomp

import "syscall"

// Filter 是 BPF 格式的 seccomp 过滤器，每条 SockFilter 是一条 BPF 指令
type Filter []syscall.SockFilter

// SockFprog 将 Filter 转换为 seccomp(SECCOMP_SET_MODE_FILTER) 需要的格式
// 空过滤器返回 nil，子进程据此跳过加载步骤
func (f Filter) SockFprog() *syscall.SockFprog {
	if len(f) == 0 {
		return nil
	}
	b := []syscall.SockFilter(f)
	return &syscall.SockFprog{
		Len:    uint16(len(b)),
		Filter: &b[0],
	}
}
