package ptracer

import (
	"fmt"
	"sync"
	"syscall"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/zqzqsb/systrace/pkg/syscalls"
)

// 测试中使用的 pid 大于 pid_max 的上限，/proc 中不可能存在
const (
	fakeRoot   = 5000001
	fakeChild  = 5000002
	fakeThread = 5000003
)

type fakeRegion struct {
	pid  int
	addr uintptr
	data []byte
}

type resumeCall struct {
	pid  int
	sig  syscall.Signal
	mode ResumeMode
}

type killCall struct {
	pid int
	sig syscall.Signal
}

// fakePtrace 是按脚本返回停止的 Ptrace 实现
type fakePtrace struct {
	mu sync.Mutex

	waits     []WaitResult
	waitHook  func(WaitResult)
	infos     map[int][]SyscallInfo
	regs      map[int][]Regs
	eventMsgs map[int]uint
	sigCodes  map[int]int32
	sigErrs   map[int]error
	regions   []fakeRegion

	attachErr  error
	infoErr    error
	vmErr      error
	resumeErrs map[int]error

	calls    []string
	resumes  []resumeCall
	detaches []int
	kills    []killCall
	signals  []killCall
	skips    []int
	returns  map[int]int64
	options  map[int]int
	vmReads  []int
	peeks    []int
}

func newFakePtrace() *fakePtrace {
	return &fakePtrace{
		infos:      make(map[int][]SyscallInfo),
		regs:       make(map[int][]Regs),
		eventMsgs:  make(map[int]uint),
		sigCodes:   make(map[int]int32),
		sigErrs:    make(map[int]error),
		resumeErrs: make(map[int]error),
		returns:    make(map[int]int64),
		options:    make(map[int]int),
	}
}

func (f *fakePtrace) log(format string, v ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, v...))
}

func (f *fakePtrace) push(pid int, ws unix.WaitStatus) {
	f.waits = append(f.waits, WaitResult{Pid: pid, Status: ws})
}

// entry 在脚本中加入一次系统调用入口停止
func (f *fakePtrace) entry(pid int, name string, args ...uint64) {
	nr, _ := syscalls.NumberOf(name)
	info := SyscallInfo{Op: OpEntry, Nr: nr}
	copy(info.Args[:], args)
	f.infos[pid] = append(f.infos[pid], info)
	f.push(pid, syscallStatus())
}

// exit 在脚本中加入一次系统调用出口停止
func (f *fakePtrace) exit(pid int, ret int64) {
	f.infos[pid] = append(f.infos[pid], SyscallInfo{Op: OpExit, Ret: ret, IsError: syscalls.IsError(ret)})
	f.push(pid, syscallStatus())
}

func (f *fakePtrace) addMemory(pid int, addr uintptr, data []byte) {
	f.regions = append(f.regions, fakeRegion{pid: pid, addr: addr, data: data})
}

func (f *fakePtrace) Attach(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("attach %d", pid)
	return f.attachErr
}

func (f *fakePtrace) SetOptions(pid int, options int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.options[pid] = options
	return nil
}

func (f *fakePtrace) Resume(pid int, sig syscall.Signal, mode ResumeMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("resume %d %d", pid, sig)
	if err := f.resumeErrs[pid]; err != nil {
		return err
	}
	f.resumes = append(f.resumes, resumeCall{pid: pid, sig: sig, mode: mode})
	return nil
}

func (f *fakePtrace) Detach(pid int, sig syscall.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("detach %d %d", pid, sig)
	f.detaches = append(f.detaches, pid)
	return nil
}

func (f *fakePtrace) Wait(nohang bool) (WaitResult, error) {
	f.mu.Lock()
	if len(f.waits) == 0 {
		f.mu.Unlock()
		if nohang {
			return WaitResult{}, nil
		}
		return WaitResult{}, unix.ECHILD
	}
	wr := f.waits[0]
	f.waits = f.waits[1:]
	hook := f.waitHook
	f.mu.Unlock()
	if hook != nil {
		hook(wr)
	}
	return wr, nil
}

func (f *fakePtrace) EventMsg(pid int) (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eventMsgs[pid], nil
}

func (f *fakePtrace) SigInfo(pid int) (int32, int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sigErrs[pid]; err != nil {
		return 0, 0, err
	}
	return 0, f.sigCodes[pid], nil
}

func (f *fakePtrace) SyscallInfo(pid int) (SyscallInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return SyscallInfo{}, f.infoErr
	}
	q := f.infos[pid]
	if len(q) == 0 {
		return SyscallInfo{}, unix.ESRCH
	}
	f.infos[pid] = q[1:]
	return q[0], nil
}

func (f *fakePtrace) Regs(pid int) (Regs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.regs[pid]
	if len(q) == 0 {
		return Regs{}, unix.ESRCH
	}
	f.regs[pid] = q[1:]
	return q[0], nil
}

func (f *fakePtrace) SkipSyscall(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("skip %d", pid)
	f.skips = append(f.skips, pid)
	return nil
}

func (f *fakePtrace) SetReturn(pid int, ret int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("return %d %d", pid, ret)
	f.returns[pid] = ret
	return nil
}

func (f *fakePtrace) ReadVM(pid int, addr uintptr, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vmReads = append(f.vmReads, len(buf))
	if f.vmErr != nil {
		return 0, f.vmErr
	}
	return f.read(pid, addr, buf)
}

func (f *fakePtrace) PeekData(pid int, addr uintptr, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peeks = append(f.peeks, len(buf))
	return f.read(pid, addr, buf)
}

// read 与 process_vm_readv 一致：从 addr 开始连续可读的部分被复制，第一个字节不可读时返回 EFAULT
func (f *fakePtrace) read(pid int, addr uintptr, buf []byte) (int, error) {
	if pid == 0 {
		return 0, unix.ESRCH
	}
	for _, r := range f.regions {
		if r.pid != pid || addr < r.addr || addr >= r.addr+uintptr(len(r.data)) {
			continue
		}
		return copy(buf, r.data[addr-r.addr:]), nil
	}
	return 0, unix.EFAULT
}

func (f *fakePtrace) Signal(tgid, tid int, sig syscall.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("signal %d %d", tid, sig)
	f.signals = append(f.signals, killCall{pid: tid, sig: sig})
	return nil
}

func (f *fakePtrace) Kill(pid int, sig syscall.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("kill %d %d", pid, sig)
	f.kills = append(f.kills, killCall{pid: pid, sig: sig})
	return nil
}

// 构造 wait 状态
func stoppedStatus(sig syscall.Signal) unix.WaitStatus {
	return unix.WaitStatus(uint32(sig)<<8 | 0x7f)
}

func syscallStatus() unix.WaitStatus {
	return stoppedStatus(syscallTrap)
}

func eventStatus(event int) unix.WaitStatus {
	return unix.WaitStatus(uint32(event)<<16 | uint32(unix.SIGTRAP)<<8 | 0x7f)
}

func exitedStatus(code int) unix.WaitStatus {
	return unix.WaitStatus(uint32(code) << 8)
}

func signaledStatus(sig syscall.Signal) unix.WaitStatus {
	return unix.WaitStatus(uint32(sig))
}

// recorder 记录所有事件，可以为指定系统调用返回动作
type recorder struct {
	mu      sync.Mutex
	events  []*Event
	actions map[string]TraceAction
	onEvent func(*Event)
	t       testing.TB
}

func newRecorder(t testing.TB) *recorder {
	return &recorder{actions: make(map[string]TraceAction), t: t}
}

func (r *recorder) Handle(ev *Event) TraceAction {
	r.mu.Lock()
	r.events = append(r.events, ev)
	hook := r.onEvent
	r.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
	if ev.Kind == EventSyscallStop && ev.Syscall.Direction == DirEntry {
		return r.actions[ev.Syscall.Name]
	}
	if ev.Kind == EventSignalDelivery {
		return r.actions["signal"]
	}
	return TraceAllow
}

func (r *recorder) Debug(v ...interface{}) {
	r.t.Log(v...)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	ks := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		ks = append(ks, e.Kind)
	}
	return ks
}

func (r *recorder) syscalls() []*SyscallEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ss []*SyscallEvent
	for _, e := range r.events {
		if e.Kind == EventSyscallStop {
			ss = append(ss, e.Syscall)
		}
	}
	return ss
}

// fakeRunner 返回固定的 pid
type fakeRunner struct {
	pid int
	err error
}

func (r fakeRunner) Start() (int, error) {
	return r.pid, r.err
}
