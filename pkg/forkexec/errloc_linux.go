// Package forkexec 提供进程创建和执行的功能
package forkexec

import (
	"fmt"
	"syscall"
)

// ErrorLocation 定义了子进程执行失败的具体位置
type ErrorLocation int

// ChildError 定义了子进程错误的详细信息
// - Err: 系统调用返回的错误码
// - Location: 错误发生的位置
// - Index: 资源限制等列表操作的序号
type ChildError struct {
	Err      syscall.Errno
	Location ErrorLocation
	Index    int
}

// Location 常量按照子进程初始化的顺序排列
const (
	LocClone ErrorLocation = iota + 1 // 克隆（创建）新进程失败
	LocCloseWrite                     // 关闭父进程端失败
	LocGetPid                         // 获取进程 ID 失败
	LocSetGroups                      // 设置用户组失败
	LocSetGid                         // 设置组 ID 失败
	LocSetUid                         // 设置用户 ID 失败
	LocDup3                           // 复制文件描述符失败
	LocFcntl                          // 文件控制操作失败
	LocSetSid                         // 设置会话 ID 失败
	LocIoctl                          // 设置控制终端失败
	LocChdir                          // 改变工作目录失败
	LocSetRlimit                      // 设置资源限制失败
	LocSetNoNewPrivs                  // 禁止获取新特权失败
	LocSyncWrite                      // 同步写入失败
	LocSyncRead                       // 同步读取失败
	LocPtraceMe                       // 启用 ptrace 跟踪失败
	LocStop                           // 停止进程失败
	LocSeccomp                        // 配置 seccomp 失败
	LocExecve                         // 执行新程序失败
)

var locToString = []string{
	"unknown",
	"clone",
	"close_write",
	"getpid",
	"setgroups",
	"setgid",
	"setuid",
	"dup3",
	"fcntl",
	"setsid",
	"ioctl",
	"chdir",
	"setrlimit",
	"set_no_new_privs",
	"sync_write",
	"sync_read",
	"ptrace_me",
	"stop",
	"seccomp",
	"execve",
}

func (e ErrorLocation) String() string {
	if e >= LocClone && e <= LocExecve {
		return locToString[e]
	}
	return "unknown"
}

// Error 实现了 error 接口
// 例如 "execve: no such file or directory"、"setrlimit(1): invalid argument"
func (e ChildError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("%s(%d): %s", e.Location.String(), e.Index, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Location.String(), e.Err.Error())
}

// Unwrap 返回子进程中的错误码
func (e ChildError) Unwrap() error {
	return e.Err
}
