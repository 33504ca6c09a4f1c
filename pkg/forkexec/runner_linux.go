package forkexec

import (
	"syscall"

	"github.com/zqzqsb/systrace/pkg/rlimit"
)

// Runner 是一个配置结构体，包含了执行路径、参数以及资源限制等配置
// 它创建用于 ptrace 跟踪的被跟踪进程
type Runner struct {
	// Args 和 Env 用于子进程的 execve 系统调用
	// Args: 命令行参数数组，Args[0] 是要执行的程序路径
	// Env: 环境变量数组，格式为 "KEY=VALUE"
	Args []string
	Env  []string

	// ExecFile 如果定义了，将使用 execveat(fd, "", AT_EMPTY_PATH) 执行
	// 这允许通过文件描述符而不是路径名来执行程序
	ExecFile uintptr

	// RLimits 定义了进程的资源限制
	// 通过 prlimit64 系统调用设置
	RLimits []rlimit.RLimit

	// Files 定义了新进程的文件描述符映射
	// 索引从 0 开始，通常 0,1,2 分别对应 stdin, stdout, stderr
	Files []uintptr

	// WorkDir 设置子进程的工作目录
	WorkDir string

	// Seccomp 定义了系统调用过滤器
	// 与 Ptrace 一起使用时，过滤器对需要跟踪的系统调用返回 SECCOMP_RET_TRACE
	Seccomp *syscall.SockFprog

	// Credential 保存了子进程要使用的用户和组身份信息
	Credential *syscall.Credential

	// SyncFunc 用于父子进程通过套接字对同步状态
	// 会传入子进程的 PID 作为参数
	// 如果 SyncFunc 返回错误，父进程会通知子进程停止并报告错误
	SyncFunc func(int) error

	// Ptrace 控制子进程调用 ptrace(PTRACE_TRACEME)，并在加载 seccomp 和 execve
	// 之前通过 kill(getpid(), SIGSTOP) 停止，跟踪器因此能看到第一次 execve
	// 跟踪器需要调用 runtime.LockOSThread 来使用 ptrace 系统调用
	Ptrace bool

	// NoNewPrivs 通过 prctl(PR_SET_NO_NEW_PRIVS) 禁用对 setuid 进程的调用
	// 当提供 seccomp 过滤器时自动启用
	NoNewPrivs bool

	// CTTY 指定是否将文件描述符 0 设置为控制终端
	CTTY bool
}
