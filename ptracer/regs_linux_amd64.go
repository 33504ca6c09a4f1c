package ptracer

import (
	"golang.org/x/sys/unix"
)

/*
	; x86_64 系统调用参数顺序
	syscall_number -> orig_rax  ; rax 在出口被返回值覆盖
	arg0 -> rdi
	arg1 -> rsi
	arg2 -> rdx
	arg3 -> r10                 ; 不是 rcx
	arg4 -> r8
	arg5 -> r9
	return -> rax
*/
func getRegs(pid int) (Regs, error) {
	var r unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &r); err != nil {
		return Regs{}, err
	}
	regs := Regs{
		Nr:   int(int64(r.Orig_rax)),
		Args: [6]uint64{r.Rdi, r.Rsi, r.Rdx, r.R10, r.R8, r.R9},
		Ret:  int64(r.Rax),
		IP:   r.Rip,
		SP:   r.Rsp,
	}
	// 入口停止时内核将 rax 置为 -ENOSYS
	if regs.Ret == -int64(unix.ENOSYS) {
		regs.EntryHint = OpEntry
	} else {
		regs.EntryHint = OpExit
	}
	return regs, nil
}

// skipSyscall 将 orig_rax 设为 -1，内核不执行该系统调用，出口返回 -ENOSYS
func skipSyscall(pid int) error {
	var r unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &r); err != nil {
		return err
	}
	r.Orig_rax = ^uint64(0)
	return unix.PtraceSetRegs(pid, &r)
}

func setReturn(pid int, ret int64) error {
	var r unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &r); err != nil {
		return err
	}
	r.Rax = uint64(ret)
	return unix.PtraceSetRegs(pid, &r)
}
