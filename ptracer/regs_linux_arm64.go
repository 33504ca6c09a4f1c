package ptracer

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// NT_ARM_SYSTEM_CALL 寄存器集只包含系统调用号
const ntArmSystemCall = 0x404

/*
	; arm64 系统调用参数顺序
	syscall_number -> x8
	arg0..arg5 -> x0..x5
	return -> x0                ; 出口时 arg0 已被覆盖
*/
func getRegs(pid int) (Regs, error) {
	var r unix.PtraceRegsArm64
	if err := unix.PtraceGetRegSetArm64(pid, unix.NT_PRSTATUS, &r); err != nil {
		return Regs{}, err
	}
	return Regs{
		Nr:   int(int64(r.Regs[8])),
		Args: [6]uint64{r.Regs[0], r.Regs[1], r.Regs[2], r.Regs[3], r.Regs[4], r.Regs[5]},
		Ret:  int64(r.Regs[0]),
		IP:   r.Pc,
		SP:   r.Sp,
		// 寄存器无法区分入口和出口
		EntryHint: OpNone,
	}, nil
}

// skipSyscall 通过 NT_ARM_SYSTEM_CALL 将系统调用号设为 -1
func skipSyscall(pid int) error {
	nr := int32(-1)
	iov := unix.Iovec{Base: (*byte)(unsafe.Pointer(&nr))}
	iov.SetLen(int(unsafe.Sizeof(nr)))
	_, err := ptraceRaw(unix.PTRACE_SETREGSET, pid, ntArmSystemCall, uintptr(unsafe.Pointer(&iov)))
	return err
}

func setReturn(pid int, ret int64) error {
	var r unix.PtraceRegsArm64
	if err := unix.PtraceGetRegSetArm64(pid, unix.NT_PRSTATUS, &r); err != nil {
		return err
	}
	r.Regs[0] = uint64(ret)
	return unix.PtraceSetRegSetArm64(pid, unix.NT_PRSTATUS, &r)
}
