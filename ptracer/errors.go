package ptracer

import (
	"fmt"
	"syscall"

	"gitlab.com/tozd/go/errors"
)

// 跟踪过程中可以用 errors.Is 判断的错误
var (
	// ErrAttachDenied 表示没有权限跟踪目标进程（EPERM/EACCES）
	ErrAttachDenied = errors.New("attach denied")
	// ErrNoSuchProcess 表示目标进程不存在或在附加前已经退出（ESRCH）
	ErrNoSuchProcess = errors.New("no such process")
	// ErrAlreadyTraced 表示目标进程已经被其他跟踪器跟踪
	ErrAlreadyTraced = errors.New("process is already traced")
	// ErrTraceeGone 表示被跟踪线程在操作期间消失
	ErrTraceeGone = errors.New("tracee gone")
	// ErrPartialRead 表示内存读取只得到了部分数据
	ErrPartialRead = errors.New("partial read")
	// ErrInaccessible 表示内存地址不可访问
	ErrInaccessible = errors.New("memory inaccessible")
	// ErrUnpairedExit 表示出现了没有对应入口的系统调用出口
	ErrUnpairedExit = errors.New("syscall exit without entry")
)

// AttachError 是附加到进程失败的错误
type AttachError struct {
	Pid int
	Err error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("attach %d: %v", e.Pid, e.Err)
}

func (e *AttachError) Unwrap() error {
	return e.Err
}

// ResumeError 是恢复被跟踪线程失败的错误
type ResumeError struct {
	Pid int
	Err error
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("resume %d: %v", e.Pid, e.Err)
}

func (e *ResumeError) Unwrap() error {
	return e.Err
}

// ReadKind 是内存读取失败的分类
type ReadKind int

// ReadKind 常量
const (
	ReadPartial      ReadKind = iota + 1 // 只读到一部分
	ReadInaccessible                     // 一个字节都读不到
	ReadTraceeGone                       // 线程已经消失
)

func (k ReadKind) String() string {
	switch k {
	case ReadPartial:
		return "partial"
	case ReadInaccessible:
		return "inaccessible"
	case ReadTraceeGone:
		return "tracee gone"
	}
	return "unknown"
}

// ReadError 是读取被跟踪进程内存失败的错误
// Partial 时 Got 为实际读到的字节数，读到的数据同时随错误返回
type ReadError struct {
	Pid  int
	Addr uintptr
	Want int
	Got  int
	Kind ReadKind
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %d bytes at %#x of %d: %s (got %d): %v", e.Want, e.Addr, e.Pid, e.Kind, e.Got, e.Err)
}

// Unwrap 同时暴露分类哨兵和底层错误码
func (e *ReadError) Unwrap() []error {
	var errs []error
	switch e.Kind {
	case ReadPartial:
		errs = append(errs, ErrPartialRead)
	case ReadInaccessible:
		errs = append(errs, ErrInaccessible)
	case ReadTraceeGone:
		errs = append(errs, ErrTraceeGone)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// WaitError 是等待被跟踪线程失败的错误
type WaitError struct {
	Err error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("wait: %v", e.Err)
}

func (e *WaitError) Unwrap() error {
	return e.Err
}

// attachError 将 PTRACE_ATTACH 的错误码归类
func attachError(pid int, err error, traced bool) error {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return &AttachError{Pid: pid, Err: errors.WithStack(err)}
	}
	switch errno {
	case syscall.ESRCH:
		return &AttachError{Pid: pid, Err: errors.Join(ErrNoSuchProcess, errno)}
	case syscall.EPERM, syscall.EACCES:
		if traced {
			return &AttachError{Pid: pid, Err: errors.Join(ErrAlreadyTraced, errno)}
		}
		return &AttachError{Pid: pid, Err: errors.Join(ErrAttachDenied, errno)}
	}
	return &AttachError{Pid: pid, Err: errors.WithStack(errno)}
}
