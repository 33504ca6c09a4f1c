package ptracer

import "syscall"

// TraceeState 是被跟踪线程当前所处的状态
type TraceeState int

// TraceeState 常量
const (
	StateAttaching TraceeState = iota
	StateRunning
	StateSyscallEntryStop
	StateSyscallExitStop
	StateSignalStop
	StateExited
	StateDetached
)

var traceeStateString = []string{
	"attaching", "running", "syscall-entry", "syscall-exit", "signal-stop", "exited", "detached",
}

func (s TraceeState) String() string {
	if s >= 0 && int(s) < len(traceeStateString) {
		return traceeStateString[s]
	}
	return "unknown"
}

// Tracee 是一个被跟踪的线程
type Tracee struct {
	Pid  int
	Tgid int

	State TraceeState
	// PendingSignal 在下一次恢复时注入，0 表示不注入
	PendingSignal syscall.Signal

	IP uint64
	SP uint64

	// pending 是等待出口的入口事件，保证入口与出口成对出现
	pending *SyscallEvent
	// banned 表示 pending 对应的系统调用已被跳过，出口需要写入 errno
	banned syscall.Errno
	// expectStop 表示下一次 SIGSTOP 是附加或创建时的初始停止
	expectStop bool
	// optionsSet 表示已经在该线程上设置过 ptrace 选项
	optionsSet bool
	// launched 表示线程属于由跟踪器启动的进程树
	launched bool
	// detachPending 表示线程正在系统调用中，需要在出口后分离
	detachPending bool
}

func newTracee(pid, tgid int, state TraceeState) *Tracee {
	return &Tracee{
		Pid:        pid,
		Tgid:       tgid,
		State:      state,
		expectStop: true,
	}
}

// InSyscall 表示线程已经报告了入口但还没有报告出口
func (t *Tracee) InSyscall() bool {
	return t.pending != nil
}

// Pending 返回等待出口的入口事件
func (t *Tracee) Pending() *SyscallEvent {
	return t.pending
}
