// Package ptrace 提供了基于 ptrace 的跟踪会话：启动或附加进程，过滤事件并写到输出
package ptrace

import (
	"github.com/zqzqsb/systrace/pkg/filter"
	"github.com/zqzqsb/systrace/pkg/rlimit"
	"github.com/zqzqsb/systrace/pkg/seccomp"
	"github.com/zqzqsb/systrace/pkg/sink"
	"github.com/zqzqsb/systrace/ptracer"
	"github.com/zqzqsb/systrace/runner"
)

var _ runner.Runner = &Runner{}

// Config 是启动和附加共用的跟踪配置
type Config struct {
	// Options 控制跟踪方式，如是否跟踪子进程
	Options ptracer.Options

	// Filter 决定哪些事件写到 Sink，为 nil 时全部写入
	Filter *filter.Filter

	// Injector 在系统调用入口注入错误或终止进程，为 nil 时不注入
	Injector *filter.Injector

	// Sink 接收事件，为 nil 时丢弃
	Sink sink.Sink

	// ShowDetails 控制是否输出事件循环的调试信息
	ShowDetails bool

	// Ptrace 为 nil 时使用系统的 ptrace
	Ptrace ptracer.Ptrace
}

// Runner 定义了启动并跟踪一个命令的规范
type Runner struct {
	Config

	// Args 定义子进程的命令行参数
	// 格式：[程序名, 参数1, 参数2, ...]
	Args []string

	// Env 定义子进程的环境变量
	// 格式：["KEY=VALUE", ...]
	Env []string

	// WorkDir 定义子进程的工作目录
	// 如果为空，则使用当前目录
	WorkDir string

	// ExecFile 是要执行的文件的文件描述符
	// 非 0 时使用 execveat 执行，不需要路径
	ExecFile uintptr

	// Files 定义了子进程的文件描述符映射
	// 索引对应新进程中的文件描述符编号（从0开始）
	Files []uintptr

	// RLimits 定义了通过 prlimit 设置的资源限制
	RLimits []rlimit.RLimit

	// Seccomp 是加载到子进程的过滤器
	// 为空且 Options.Seccomp 为 true 时按 Filter 和 Injector 生成
	Seccomp seccomp.Filter

	// SyncFunc 在子进程停止前以子进程 pid 调用
	SyncFunc func(pid int) error
}

// Attacher 定义了附加到一个正在运行的进程的规范
type Attacher struct {
	Config

	// Pid 是要附加的进程
	Pid int
}
