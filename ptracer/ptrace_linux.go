package ptracer

import (
	"encoding/binary"
	"syscall"
	"unsafe"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"
)

// ptrace_syscall_info 的大小和字段偏移
const (
	syscallInfoSize = 88

	offOp      = 0
	offArch    = 4
	offIP      = 8
	offSP      = 16
	offNr      = 24
	offArgs    = 32
	offRval    = 24
	offIsError = 32
	offRetData = 80

	sigInfoSize = 128
)

type linuxPtrace struct{}

// NewPtrace 返回基于 ptrace(2) 和 wait4(2) 的实现
// 除 ReadVM 外的所有方法都必须在跟踪线程（附加或启动被跟踪进程的 OS 线程）上调用
func NewPtrace() Ptrace {
	return linuxPtrace{}
}

func ptraceRaw(req, pid int, addr, data uintptr) (uintptr, error) {
	r, _, errno := unix.Syscall6(unix.SYS_PTRACE, uintptr(req), uintptr(pid), addr, data, 0, 0)
	if errno != 0 {
		return r, errno
	}
	return r, nil
}

func (linuxPtrace) Attach(pid int) error {
	return errors.WithStack(unix.PtraceAttach(pid))
}

func (linuxPtrace) SetOptions(pid int, options int) error {
	return errors.WithStack(unix.PtraceSetOptions(pid, options))
}

func (linuxPtrace) Resume(pid int, sig syscall.Signal, mode ResumeMode) error {
	if mode == ResumeCont {
		return errors.WithStack(unix.PtraceCont(pid, int(sig)))
	}
	return errors.WithStack(unix.PtraceSyscall(pid, int(sig)))
}

func (linuxPtrace) Detach(pid int, sig syscall.Signal) error {
	// unix.PtraceDetach 不能携带信号
	_, err := ptraceRaw(unix.PTRACE_DETACH, pid, 0, uintptr(sig))
	return errors.WithStack(err)
}

/*
	Wait 等待任意被当前线程跟踪的线程

实现细节：
 1. pid 为 -1，配合 __WALL 同时等待线程和进程
 2. __WNOTHREAD 只等待当前 OS 线程的子进程/被跟踪者，多棵进程树互不干扰
 3. EINTR 时重试

返回值：
  - WaitResult: nohang 且没有事件时 Pid 为 0
  - error: ECHILD 表示已经没有被跟踪者
*/
func (linuxPtrace) Wait(nohang bool) (WaitResult, error) {
	options := unix.WALL | unix.WNOTHREAD
	if nohang {
		options |= unix.WNOHANG
	}
	for {
		var r WaitResult
		pid, err := unix.Wait4(-1, &r.Status, options, &r.Rusage)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return WaitResult{}, errors.WithStack(err)
		}
		r.Pid = pid
		return r, nil
	}
}

func (linuxPtrace) EventMsg(pid int) (uint, error) {
	msg, err := unix.PtraceGetEventMsg(pid)
	return msg, errors.WithStack(err)
}

func (linuxPtrace) SigInfo(pid int) (int32, int32, error) {
	var buf [sigInfoSize]byte
	if _, err := ptraceRaw(unix.PTRACE_GETSIGINFO, pid, 0, uintptr(unsafe.Pointer(&buf[0]))); err != nil {
		return 0, 0, errors.WithStack(err)
	}
	signo := int32(binary.NativeEndian.Uint32(buf[0:]))
	code := int32(binary.NativeEndian.Uint32(buf[8:]))
	return signo, code, nil
}

// SyscallInfo 使用 PTRACE_GET_SYSCALL_INFO（Linux 5.3+）读取系统调用停止的信息
func (linuxPtrace) SyscallInfo(pid int) (SyscallInfo, error) {
	var buf [syscallInfoSize]byte
	if _, err := ptraceRaw(unix.PTRACE_GET_SYSCALL_INFO, pid, uintptr(len(buf)), uintptr(unsafe.Pointer(&buf[0]))); err != nil {
		return SyscallInfo{}, errors.WithStack(err)
	}
	return parseSyscallInfo(buf[:]), nil
}

func parseSyscallInfo(buf []byte) SyscallInfo {
	le := binary.NativeEndian
	info := SyscallInfo{
		Op:   SyscallOp(buf[offOp]),
		Arch: le.Uint32(buf[offArch:]),
		IP:   le.Uint64(buf[offIP:]),
		SP:   le.Uint64(buf[offSP:]),
	}
	switch info.Op {
	case OpEntry, OpSeccomp:
		info.Nr = int(int64(le.Uint64(buf[offNr:])))
		for i := range info.Args {
			info.Args[i] = le.Uint64(buf[offArgs+8*i:])
		}
		if info.Op == OpSeccomp {
			info.RetData = le.Uint32(buf[offRetData:])
		}
	case OpExit:
		info.Ret = int64(le.Uint64(buf[offRval:]))
		info.IsError = buf[offIsError] != 0
	}
	return info
}

func (linuxPtrace) Regs(pid int) (Regs, error) {
	r, err := getRegs(pid)
	return r, errors.WithStack(err)
}

func (linuxPtrace) SkipSyscall(pid int) error {
	return errors.WithStack(skipSyscall(pid))
}

func (linuxPtrace) SetReturn(pid int, ret int64) error {
	return errors.WithStack(setReturn(pid, ret))
}

/*
	ReadVM 使用 process_vm_readv 从目标进程读取一段连续内存

注意事项：
 1. 读取可能在页边界处提前结束，返回值小于 len(buf) 时调用方需要继续读取
 2. 不要求目标处于 ptrace-stop，但要求与目标同一用户或具有 CAP_SYS_PTRACE
*/
func (linuxPtrace) ReadVM(pid int, addr uintptr, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: addr, Len: len(buf)}}
	n, err := unix.ProcessVMReadv(pid, local, remote, 0)
	if err != nil {
		return n, errors.WithStack(err)
	}
	return n, nil
}

func (linuxPtrace) PeekData(pid int, addr uintptr, buf []byte) (int, error) {
	n, err := unix.PtracePeekData(pid, addr, buf)
	return n, errors.WithStack(err)
}

func (linuxPtrace) Signal(tgid, tid int, sig syscall.Signal) error {
	return errors.WithStack(unix.Tgkill(tgid, tid, sig))
}

func (linuxPtrace) Kill(pid int, sig syscall.Signal) error {
	return errors.WithStack(unix.Kill(pid, sig))
}
