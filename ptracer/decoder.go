package ptracer

import (
	"encoding/binary"
	"strconv"
	"time"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/systrace/pkg/syscalls"
)

// StopKind 是交给 Decoder 的系统调用停止类型
type StopKind int

// StopKind 常量
const (
	// StopSyscall 是 PTRACE_SYSCALL 产生的入口或出口停止
	StopSyscall StopKind = iota
	// StopSeccomp 是 seccomp 过滤器返回 SECCOMP_RET_TRACE 产生的停止，视为入口
	StopSeccomp
)

// 参数内容的默认长度限制
const (
	DefaultStringLimit    = 4096
	DefaultMaxVectorItems = 32
)

// Decoder 把一次系统调用停止解码为 SyscallEvent
// 每棵进程树一个 Decoder，只在该树的跟踪线程上使用
type Decoder struct {
	ptrace Ptrace
	mem    *MemoryReader

	// StringLimit 是字符串和缓冲区参数最多读取的字节数
	StringLimit int
	// MaxVectorItems 是 argv/envp 最多读取的元素个数
	MaxVectorItems int

	useInfo bool
	seq     uint64
	debug   func(v ...interface{})
}

// NewDecoder 创建 Decoder，mem 为 nil 时使用 p 新建 MemoryReader
func NewDecoder(p Ptrace, mem *MemoryReader) *Decoder {
	if mem == nil {
		mem = NewMemoryReader(p)
	}
	return &Decoder{
		ptrace:         p,
		mem:            mem,
		StringLimit:    DefaultStringLimit,
		MaxVectorItems: DefaultMaxVectorItems,
		useInfo:        true,
		debug:          func(v ...interface{}) {},
	}
}

/*
	Decode 解码线程 t 当前所处的系统调用停止

实现细节：
 1. 优先使用 PTRACE_GET_SYSCALL_INFO 获取方向、调用号、参数和返回值
 2. 内核返回 EIO/EINVAL 时对整棵树改用通用寄存器
 3. 寄存器无法区分方向时，没有等待出口的入口即视为入口
 4. 出口使用入口时保存的参数（arm64 上 x0 在出口被返回值覆盖）

参数：
  - t: 停止的线程，Decode 不修改其 pending 字段
  - kind: 停止类型

返回值：
  - *SyscallEvent: 解码结果
  - error: 没有对应入口的出口返回 ErrUnpairedExit；线程消失返回 ErrTraceeGone
*/
func (d *Decoder) Decode(t *Tracee, kind StopKind) (*SyscallEvent, error) {
	var (
		dir  Direction
		nr   int
		args [6]uint64
		ret  int64
	)
	info, ok, err := d.syscallInfo(t.Pid)
	if err != nil {
		return nil, err
	}
	if ok {
		t.IP, t.SP = info.IP, info.SP
		switch info.Op {
		case OpEntry, OpSeccomp:
			dir, nr, args = DirEntry, info.Nr, info.Args
		case OpExit:
			dir, ret = DirExit, info.Ret
		default:
			ok = false
		}
	}
	if !ok {
		regs, err := d.ptrace.Regs(t.Pid)
		if err != nil {
			return nil, gone(err)
		}
		t.IP, t.SP = regs.IP, regs.SP
		switch {
		case kind == StopSeccomp:
			dir = DirEntry
		case t.pending != nil:
			dir = DirExit
		case regs.EntryHint == OpExit:
			dir = DirExit
		default:
			dir = DirEntry
		}
		nr, args, ret = regs.Nr, regs.Args, regs.Ret
	}

	if dir == DirEntry {
		return d.entry(t.Pid, nr, args), nil
	}
	if t.pending == nil {
		return nil, errors.WithStack(ErrUnpairedExit)
	}
	return d.exit(t.Pid, t.pending, ret), nil
}

func (d *Decoder) syscallInfo(pid int) (SyscallInfo, bool, error) {
	if !d.useInfo {
		return SyscallInfo{}, false, nil
	}
	info, err := d.ptrace.SyscallInfo(pid)
	switch {
	case err == nil:
		return info, true, nil
	case errors.Is(err, unix.EIO), errors.Is(err, unix.EINVAL):
		d.useInfo = false
		d.debug("PTRACE_GET_SYSCALL_INFO unavailable, falling back to registers:", err)
		return SyscallInfo{}, false, nil
	}
	return SyscallInfo{}, false, gone(err)
}

func (d *Decoder) entry(pid, nr int, args [6]uint64) *SyscallEvent {
	desc := syscalls.Lookup(nr)
	d.seq++
	ev := &SyscallEvent{
		Seq:       d.seq,
		Pid:       pid,
		Direction: DirEntry,
		Nr:        nr,
		Name:      desc.Name,
		Args:      args,
		Time:      time.Now(),
		desc:      desc,
	}
	ev.Decoded = make([]Arg, len(desc.Args))
	for i, k := range desc.Args {
		ev.Decoded[i] = d.decodeArg(pid, k, args, i)
	}
	return ev
}

func (d *Decoder) exit(pid int, entry *SyscallEvent, ret int64) *SyscallEvent {
	d.seq++
	now := time.Now()
	ev := &SyscallEvent{
		Seq:       d.seq,
		Pid:       pid,
		Direction: DirExit,
		Nr:        entry.Nr,
		Name:      entry.Name,
		Args:      entry.Args,
		Ret:       ret,
		Time:      now,
		Duration:  now.Sub(entry.Time),
		desc:      entry.desc,
	}
	if syscalls.IsError(ret) {
		ev.IsError = true
		ev.Errno = syscalls.Errno(ret)
	}
	ev.Decoded = make([]Arg, len(entry.Decoded))
	copy(ev.Decoded, entry.Decoded)
	for i, a := range ev.Decoded {
		if a.Kind.OnExit() {
			ev.Decoded[i] = d.decodeExitArg(pid, a, ev)
		}
	}
	return ev
}

// SetReturn 将出口事件的返回值改写为 ret
func (s *SyscallEvent) SetReturn(ret int64) {
	s.Ret = ret
	s.IsError = syscalls.IsError(ret)
	s.Errno = 0
	if s.IsError {
		s.Errno = syscalls.Errno(ret)
	}
}

func (d *Decoder) decodeArg(pid int, kind syscalls.ArgKind, args [6]uint64, i int) Arg {
	a := Arg{Kind: kind, Raw: args[i]}
	if a.Raw == 0 {
		return a
	}
	addr := uintptr(a.Raw)
	switch kind {
	case syscalls.ArgPath, syscalls.ArgString:
		a.Str, a.Truncated, a.Err = d.mem.ReadString(pid, addr, d.stringLimit())
	case syscalls.ArgWriteBuf:
		var size uint64
		if i+1 < len(args) {
			size = args[i+1]
		}
		a.Data, a.Truncated, a.Err = d.readBuf(pid, addr, size)
	case syscalls.ArgStringVector:
		a.Strs, a.Truncated, a.Err = d.mem.ReadStringVector(pid, addr, d.maxVectorItems(), d.stringLimit())
	}
	return a
}

func (d *Decoder) decodeExitArg(pid int, a Arg, ev *SyscallEvent) Arg {
	if a.Raw == 0 || ev.IsError {
		return a
	}
	addr := uintptr(a.Raw)
	switch a.Kind {
	case syscalls.ArgReadBuf:
		if ev.Ret >= 0 {
			a.Data, a.Truncated, a.Err = d.readBuf(pid, addr, uint64(ev.Ret))
		}
	case syscalls.ArgPipeFDs:
		data, err := d.mem.ReadMemory(pid, addr, 8)
		if err != nil {
			a.Err = err
			return a
		}
		a.Strs = []string{
			strconv.Itoa(int(int32(binary.NativeEndian.Uint32(data[0:])))),
			strconv.Itoa(int(int32(binary.NativeEndian.Uint32(data[4:])))),
		}
	}
	return a
}

// readBuf 读取缓冲区参数，超过 StringLimit 的部分不读取
func (d *Decoder) readBuf(pid int, addr uintptr, size uint64) ([]byte, bool, error) {
	n := size
	limit := uint64(d.stringLimit())
	if n > limit {
		n = limit
	}
	data, err := d.mem.ReadMemory(pid, addr, int(n))
	if err != nil {
		return data, true, err
	}
	return data, size > limit, nil
}

func (d *Decoder) stringLimit() int {
	if d.StringLimit <= 0 {
		return DefaultStringLimit
	}
	return d.StringLimit
}

func (d *Decoder) maxVectorItems() int {
	if d.MaxVectorItems <= 0 {
		return DefaultMaxVectorItems
	}
	return d.MaxVectorItems
}

// gone 将 ESRCH 归类为 ErrTraceeGone
func gone(err error) error {
	if errors.Is(err, unix.ESRCH) {
		return errors.Join(ErrTraceeGone, err)
	}
	return err
}
