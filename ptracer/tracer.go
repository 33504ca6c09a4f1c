// Package ptracer 实现基于 ptrace 的系统调用跟踪核心
package ptracer

import (
	"context"
	"fmt"
	"runtime"
	"syscall"
	"time"

	"github.com/zqzqsb/systrace/runner"
)

// TraceAction 定义了 Handler 返回的动作
// 低 16 位是动作，高 16 位是 TraceBan 时写入的 errno
type TraceAction int

const (
	// TraceAllow 不做任何操作
	TraceAllow TraceAction = iota
	// TraceBan 跳过系统调用并在出口返回 WithErrno 指定的错误（默认 ENOSYS）
	TraceBan
	// TraceKill 终止系统调用所在的进程
	TraceKill
)

// WithErrno 设置 TraceBan 的返回错误
func (a TraceAction) WithErrno(errno syscall.Errno) TraceAction {
	return a.Action() | TraceAction(errno&0xffff)<<16
}

// Action 返回不含 errno 的动作
func (a TraceAction) Action() TraceAction {
	return a & 0xffff
}

// Errno 返回 TraceBan 的返回错误
func (a TraceAction) Errno() syscall.Errno {
	return syscall.Errno(a >> 16)
}

// Tracer 定义了一个 ptracer 实例
type Tracer struct {
	Handler
	Runner
	Options
	// Ptrace 为 nil 时使用 NewPtrace()
	Ptrace Ptrace
}

// Options 控制一棵进程树的跟踪方式
type Options struct {
	// FollowForks 跟踪 clone/fork/vfork 产生的线程和进程
	FollowForks bool
	// FollowThreads 附加时同时附加 /proc/<pid>/task 中的其他线程
	FollowThreads bool
	// Seccomp 表示被跟踪进程加载了只对部分系统调用返回 SECCOMP_RET_TRACE 的过滤器，
	// 其余系统调用不产生停止
	Seccomp bool
	// KillOnCancel 在取消时终止被跟踪进程，而不是分离
	KillOnCancel bool

	// StringLimit 是字符串和缓冲区参数最多读取的字节数
	StringLimit int
	// ChunkSize 是单次读取内存的最大字节数
	ChunkSize int
	// MaxVectorItems 是 argv/envp 最多读取的元素个数
	MaxVectorItems int
}

// Runner 表示进程运行器
type Runner interface {
	// Start 启动子进程并返回 pid 和错误（如果失败）
	// 子进程应该启用 ptrace 并在 execve 之前以 SIGSTOP 停止
	Start() (int, error)
}

// Handler 定义了跟踪事件的自定义处理器
type Handler interface {
	// Handle 接收每一个事件，返回对被跟踪线程采取的动作
	// 只有系统调用入口上的 TraceBan 和任意事件上的 TraceKill 会生效
	Handle(*Event) TraceAction

	// Debug 在调试模式下打印调试信息
	Debug(v ...interface{})
}

/*
	Trace 启动并跟踪目标进程及其子进程

实现细节：
 1. 锁定当前线程，所有 ptrace 请求必须来自同一个 OS 线程
 2. 通过 Runner 接口启动目标进程
 3. 运行事件循环直到没有被跟踪的线程

参数：
  - c: 取消时按 KillOnCancel 终止或分离所有线程

返回值：
  - result: 包含主进程的最终状态、资源使用情况和错误信息
*/
func (t *Tracer) Trace(c context.Context) (result runner.Result) {
	// ptrace 是基于线程的（内核进程）
	// Goroutine 1 -----> OS Thread 1  -----> Child Process
	//                   (locked)            (being traced)
	if t.Runner == nil {
		result.Status = runner.StatusRunnerError
		result.Error = "no runner"
		return
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	sTime := time.Now()
	l := NewLoop(t.ptrace(), t.Handler, t.Options)
	pgid, err := l.Launch(t.Runner)
	l.handler.Debug("tracer started:", pgid, err)
	if err != nil {
		l.handler.Debug("failed to start traced process:", err)
		result.Status = runner.StatusRunnerError
		result.Error = err.Error()
		return
	}
	return t.trace(c, l, sTime)
}

/*
	TraceAttach 附加到已经运行的进程并跟踪它

返回值：
  - result: 跟踪结果；附加失败时 Status 为 StatusRunnerError
  - err: 附加失败的原因，可以用 errors.Is 判断 ErrNoSuchProcess、ErrAttachDenied 等
*/
func (t *Tracer) TraceAttach(c context.Context, pid int) (result runner.Result, err error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	sTime := time.Now()
	l := NewLoop(t.ptrace(), t.Handler, t.Options)
	if err = l.Attach(pid); err != nil {
		l.handler.Debug("failed to attach:", pid, err)
		result.Status = runner.StatusRunnerError
		result.Error = err.Error()
		return result, err
	}
	return t.trace(c, l, sTime), nil
}

func (t *Tracer) trace(c context.Context, l *Loop, sTime time.Time) (result runner.Result) {
	var runErr error
	defer func() {
		// 捕获并处理可能的 panic
		if err := recover(); err != nil {
			l.handler.Debug("panic occurred:", err)
			runErr = fmt.Errorf("%v", err)
		}
		l.cleanup(runErr != nil)
		result = l.Result()
		if runErr != nil {
			result.Status = runner.StatusRunnerError
			result.Error = runErr.Error()
		}
		if !l.firstStop.IsZero() {
			// 设置时间：从开始到第一次停止
			result.SetUpTime = l.firstStop.Sub(sTime)
			// 运行时间：从第一次停止到现在
			result.RunningTime = time.Since(l.firstStop)
		}
	}()
	runErr = l.Run(c)
	if runErr != nil {
		l.handler.Debug("trace loop failed:", runErr)
	}
	return
}

func (t *Tracer) ptrace() Ptrace {
	if t.Ptrace != nil {
		return t.Ptrace
	}
	return NewPtrace()
}
