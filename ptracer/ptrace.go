package ptracer

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// ResumeMode 决定被跟踪线程恢复后在哪里再次停止
type ResumeMode int

// ResumeMode 常量
const (
	// ResumeSyscall 在下一个系统调用入口或出口停止（PTRACE_SYSCALL）
	ResumeSyscall ResumeMode = iota
	// ResumeCont 只在信号或 ptrace 事件时停止（PTRACE_CONT）
	ResumeCont
)

// WaitResult 是一次 wait4 的结果
type WaitResult struct {
	Pid    int
	Status unix.WaitStatus
	Rusage unix.Rusage
}

// SyscallOp 是 PTRACE_GET_SYSCALL_INFO 报告的停止类型
type SyscallOp uint8

// SyscallOp 常量，与 PTRACE_SYSCALL_INFO_* 一致
const (
	OpNone    SyscallOp = unix.PTRACE_SYSCALL_INFO_NONE
	OpEntry   SyscallOp = unix.PTRACE_SYSCALL_INFO_ENTRY
	OpExit    SyscallOp = unix.PTRACE_SYSCALL_INFO_EXIT
	OpSeccomp SyscallOp = unix.PTRACE_SYSCALL_INFO_SECCOMP
)

// SyscallInfo 是一次系统调用停止时的寄存器快照
type SyscallInfo struct {
	Op   SyscallOp
	Arch uint32
	IP   uint64
	SP   uint64
	// Nr 和 Args 在入口和 seccomp 停止时有效
	Nr   int
	Args [6]uint64
	// Ret 和 IsError 在出口停止时有效
	Ret     int64
	IsError bool
	// RetData 是 seccomp 停止时过滤器返回值的低 16 位
	RetData uint32
}

// Regs 是从通用寄存器得到的系统调用视图，在内核不支持 PTRACE_GET_SYSCALL_INFO 时使用
type Regs struct {
	Nr   int
	Args [6]uint64
	Ret  int64
	IP   uint64
	SP   uint64
	// EntryHint 为 OpEntry/OpExit 表示寄存器本身能判断方向，OpNone 表示无法判断
	EntryHint SyscallOp
}

// Ptrace 是事件循环使用的全部内核接口
// Linux 实现由 NewPtrace 返回；测试中可以用脚本化的实现替换
type Ptrace interface {
	Attach(pid int) error
	SetOptions(pid int, options int) error
	Resume(pid int, sig syscall.Signal, mode ResumeMode) error
	Detach(pid int, sig syscall.Signal) error
	// Wait 等待调用线程的任意被跟踪线程；nohang 时没有事件返回 Pid 0
	Wait(nohang bool) (WaitResult, error)

	EventMsg(pid int) (uint, error)
	// SigInfo 返回信号停止的 si_signo 和 si_code；组停止时返回 EINVAL
	SigInfo(pid int) (signo, code int32, err error)
	SyscallInfo(pid int) (SyscallInfo, error)
	Regs(pid int) (Regs, error)

	// SkipSyscall 在入口停止时让内核跳过该系统调用
	SkipSyscall(pid int) error
	// SetReturn 在出口停止时改写返回值
	SetReturn(pid int, ret int64) error

	// ReadVM 使用 process_vm_readv 读取，返回实际读取的字节数
	ReadVM(pid int, addr uintptr, buf []byte) (int, error)
	// PeekData 使用 PTRACE_PEEKDATA 逐字读取，返回实际读取的字节数
	PeekData(pid int, addr uintptr, buf []byte) (int, error)

	Signal(tgid, tid int, sig syscall.Signal) error
	Kill(pid int, sig syscall.Signal) error
}
