package ptracer

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/zqzqsb/systrace/pkg/syscalls"
)

// EventKind 是事件循环从一次停止中得到的事件类型
type EventKind int

// EventKind 常量
const (
	EventSyscallStop    EventKind = iota + 1 // 系统调用入口或出口
	EventSignalDelivery                      // 信号即将递送给线程
	EventProcessExited                       // 线程退出或被信号终止
	EventChildSpawned                        // clone/fork/vfork 产生了新的被跟踪线程
	EventExec                                // execve 成功，进程映像已替换
	EventGroupStop                           // 组停止（SIGSTOP 等导致整个进程停止）
	EventAttached                            // 线程进入跟踪
	EventDetached                            // 线程已被分离，继续不受跟踪地运行
)

var eventKindString = []string{
	"invalid", "syscall", "signal", "exited", "spawned", "exec", "group-stop", "attached", "detached",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventKindString) {
		return eventKindString[k]
	}
	return eventKindString[0]
}

// Event 是交给 Handler 的一条记录
type Event struct {
	Kind EventKind
	Pid  int
	Tgid int
	Time time.Time

	// Syscall 仅在 EventSyscallStop 时有效
	Syscall *SyscallEvent

	// Signal 是递送的信号、组停止信号或终止进程的信号
	Signal  syscall.Signal
	SigCode int32

	// ExitStatus 是退出码；Signaled 时为 0
	ExitStatus int
	Signaled   bool
	CoreDump   bool
	// Superseded 表示线程因同组另一线程 execve 而消失，仅在 EventProcessExited 时有效
	Superseded bool

	// Child 是新线程的 tid，仅在 EventChildSpawned 时有效
	Child int
	// OldPid 是执行 execve 的原线程 tid，仅在 EventExec 时有效
	OldPid int
}

func (e *Event) String() string {
	switch e.Kind {
	case EventSyscallStop:
		return fmt.Sprintf("[%d] %s", e.Pid, e.Syscall)
	case EventSignalDelivery:
		return fmt.Sprintf("[%d] --- %s ---", e.Pid, syscalls.FormatSignal(e.Signal))
	case EventGroupStop:
		return fmt.Sprintf("[%d] --- stopped by %s ---", e.Pid, syscalls.FormatSignal(e.Signal))
	case EventProcessExited:
		if e.Superseded {
			return fmt.Sprintf("[%d] +++ superseded by execve +++", e.Pid)
		}
		if e.Signaled {
			return fmt.Sprintf("[%d] +++ killed by %s +++", e.Pid, syscalls.FormatSignal(e.Signal))
		}
		return fmt.Sprintf("[%d] +++ exited with %d +++", e.Pid, e.ExitStatus)
	case EventChildSpawned:
		return fmt.Sprintf("[%d] spawned %d", e.Pid, e.Child)
	case EventExec:
		return fmt.Sprintf("[%d] exec (was %d)", e.Pid, e.OldPid)
	}
	return fmt.Sprintf("[%d] %s", e.Pid, e.Kind)
}

// Direction 表示系统调用停止发生在入口还是出口
type Direction int

// Direction 常量
const (
	DirEntry Direction = iota + 1
	DirExit
)

func (d Direction) String() string {
	switch d {
	case DirEntry:
		return "entry"
	case DirExit:
		return "exit"
	}
	return "unknown"
}

// SyscallEvent 是一次系统调用停止解码后的结果
type SyscallEvent struct {
	// Seq 在一棵进程树内单调递增
	Seq       uint64
	Pid       int
	Direction Direction
	Nr        int
	Name      string
	// Args 是六个原始参数寄存器值
	Args [6]uint64
	// Decoded 按参数形状表解释的参数，长度与形状表一致
	Decoded []Arg
	// Ret、Errno、IsError 仅在出口有效
	Ret     int64
	Errno   syscall.Errno
	IsError bool
	// Injected 表示返回值由跟踪器注入，系统调用没有真正执行
	Injected bool

	Time time.Time
	// Duration 是入口到出口的时间，仅在出口有效
	Duration time.Duration

	desc syscalls.Descriptor
}

// Descriptor 返回该系统调用的参数形状
func (s *SyscallEvent) Descriptor() syscalls.Descriptor {
	return s.desc
}

func (s *SyscallEvent) String() string {
	if s.Direction == DirExit {
		return s.FormatCall() + " " + s.FormatReturn()
	}
	return s.FormatCall()
}

// FormatCall 以 name(arg, ...) 的形式输出调用
func (s *SyscallEvent) FormatCall() string {
	args := make([]string, len(s.Decoded))
	for i, a := range s.Decoded {
		args[i] = a.String()
	}
	return s.Name + "(" + strings.Join(args, ", ") + ")"
}

// FormatReturn 以 = ret 的形式输出返回值
func (s *SyscallEvent) FormatReturn() string {
	if s.Direction != DirExit {
		return "= ?"
	}
	if s.IsError {
		suffix := ""
		if s.Injected {
			suffix = " (INJECTED)"
		}
		return fmt.Sprintf("= -1 %s (%s)%s", syscalls.ErrnoName(s.Errno), syscalls.ErrnoDescription(s.Errno), suffix)
	}
	switch s.desc.Ret {
	case syscalls.RetHex:
		return fmt.Sprintf("= %#x", uint64(s.Ret))
	case syscalls.RetNone:
		return "= ?"
	}
	return "= " + strconv.FormatInt(s.Ret, 10)
}

// Arg 是一个解码后的参数
type Arg struct {
	Kind syscalls.ArgKind
	Raw  uint64
	// Str 是 path/string 参数的内容
	Str string
	// Strs 是字符串数组参数的内容，或 pipe 返回的两个描述符
	Strs []string
	// Data 是缓冲区参数的内容
	Data []byte
	// Truncated 表示内容超过长度限制或只读到了一部分
	Truncated bool
	// Err 是读取内容时的错误，此时只输出地址
	Err error
}

func (a Arg) String() string {
	switch a.Kind {
	case syscalls.ArgInt:
		return strconv.FormatInt(int64(a.Raw), 10)
	case syscalls.ArgUint:
		return strconv.FormatUint(a.Raw, 10)
	case syscalls.ArgOct:
		return fmt.Sprintf("%#o", a.Raw)
	case syscalls.ArgFD:
		return strconv.Itoa(int(int32(a.Raw)))
	case syscalls.ArgDirFD:
		if int32(a.Raw) == unix.AT_FDCWD {
			return "AT_FDCWD"
		}
		return strconv.Itoa(int(int32(a.Raw)))
	case syscalls.ArgPath, syscalls.ArgString:
		if a.Raw == 0 {
			return "NULL"
		}
		if a.Err != nil && a.Str == "" {
			return formatAddr(a.Raw)
		}
		return quote(a.Str, a.Truncated)
	case syscalls.ArgWriteBuf, syscalls.ArgReadBuf:
		if a.Data == nil {
			if a.Raw == 0 {
				return "NULL"
			}
			return formatAddr(a.Raw)
		}
		return quote(string(a.Data), a.Truncated)
	case syscalls.ArgStringVector:
		if a.Raw == 0 {
			return "NULL"
		}
		if a.Strs == nil && a.Err != nil {
			return formatAddr(a.Raw)
		}
		items := make([]string, len(a.Strs))
		for i, s := range a.Strs {
			items[i] = strconv.Quote(s)
		}
		if a.Truncated {
			items = append(items, "...")
		}
		return "[" + strings.Join(items, ", ") + "]"
	case syscalls.ArgPipeFDs:
		if a.Strs == nil {
			return formatAddr(a.Raw)
		}
		return "[" + strings.Join(a.Strs, ", ") + "]"
	case syscalls.ArgOpenFlags, syscalls.ArgCloneFlags, syscalls.ArgMmapProt,
		syscalls.ArgMmapFlags, syscalls.ArgAccessMode, syscalls.ArgSignal:
		return syscalls.FormatFlags(a.Kind, a.Raw)
	case syscalls.ArgPtr:
		if a.Raw == 0 {
			return "NULL"
		}
	}
	return formatAddr(a.Raw)
}

func formatAddr(v uint64) string {
	return fmt.Sprintf("%#x", v)
}

func quote(s string, truncated bool) string {
	q := strconv.Quote(s)
	if truncated {
		q += "..."
	}
	return q
}
