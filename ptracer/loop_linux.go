package ptracer

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"syscall"
	"time"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/systrace/runner"
)

// syscallTrap 是设置 PTRACE_O_TRACESYSGOOD 后系统调用停止的停止信号
const syscallTrap = unix.SIGTRAP | 0x80

/*
字段说明：
  ptrace: 内核接口
  reg: 本进程树的线程表，只由事件循环访问
  dec: 本进程树的解码器
  intr: 与取消 goroutine 共享的停止状态
  root: 主进程的线程组 id
  firstStop: 第一次停止的时间
*/

// Loop 是一棵被跟踪进程树的事件循环
// 除 Stop 外的所有方法都必须在同一个锁定的 OS 线程上调用
type Loop struct {
	ptrace  Ptrace
	handler Handler
	opts    Options
	reg     *Registry
	dec     *Decoder
	intr    *interrupter

	root     int
	launched bool

	rootStatus unix.WaitStatus
	rootRusage unix.Rusage
	rootDone   bool
	detached   bool
	disallowed bool
	finished   bool
	syscalls   uint64
	tracees    int
	firstStop  time.Time

	cancelOnce sync.Once
}

// NewLoop 创建事件循环；h 为 nil 时忽略所有事件
func NewLoop(p Ptrace, h Handler, opts Options) *Loop {
	if h == nil {
		h = nopHandler{}
	}
	mem := NewMemoryReader(p)
	mem.Debug = h.Debug
	if opts.ChunkSize > 0 {
		mem.ChunkSize = opts.ChunkSize
	}
	dec := NewDecoder(p, mem)
	dec.debug = h.Debug
	if opts.StringLimit > 0 {
		dec.StringLimit = opts.StringLimit
	}
	if opts.MaxVectorItems > 0 {
		dec.MaxVectorItems = opts.MaxVectorItems
	}
	return &Loop{
		ptrace:  p,
		handler: h,
		opts:    opts,
		reg:     NewRegistry(),
		dec:     dec,
		intr:    newInterrupter(p),
	}
}

// Registry 返回本进程树的线程表
func (l *Loop) Registry() *Registry {
	return l.reg
}

// Done 表示已经没有被跟踪的线程
func (l *Loop) Done() bool {
	return l.finished || l.reg.Len() == 0
}

// Stop 请求停止跟踪，可以在任意 goroutine 中调用
// KillOnCancel 时终止所有进程，否则在每个线程的系统调用结束后分离
func (l *Loop) Stop() {
	l.cancelOnce.Do(func() {
		if l.opts.KillOnCancel {
			l.intr.kill()
			return
		}
		l.intr.stop()
	})
}

/*
	Run 阻塞地处理事件直到没有被跟踪的线程

实现细节：
 1. 启动 goroutine 监听 c，取消时调用 Stop
 2. wait 是唯一的阻塞点；每个停止被完整处理并交给 Handler 后才恢复线程
 3. ECHILD 和空的线程表都是正常结束

返回值：
  - error: wait 失败返回 *WaitError，恢复失败返回 *ResumeError
*/
func (l *Loop) Run(c context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-c.Done():
			l.Stop()
		case <-done:
		}
	}()

	for !l.Done() {
		wr, err := l.ptrace.Wait(false)
		if err != nil {
			if errors.Is(err, unix.ECHILD) {
				l.finished = true
				return nil
			}
			return &WaitError{Err: err}
		}
		if err := l.handle(wr); err != nil {
			return err
		}
	}
	return nil
}

// Poll 非阻塞地处理至多一个事件，返回是否处理了事件
func (l *Loop) Poll(c context.Context) (bool, error) {
	if c.Err() != nil {
		l.Stop()
	}
	if l.Done() {
		return false, nil
	}
	wr, err := l.ptrace.Wait(true)
	if err != nil {
		if errors.Is(err, unix.ECHILD) {
			l.finished = true
			return false, nil
		}
		return false, &WaitError{Err: err}
	}
	if wr.Pid == 0 {
		return false, nil
	}
	return true, l.handle(wr)
}

/*
	handle 处理一次 wait 结果

状态处理：
 1. 退出或被信号终止：移除线程，产生 EventProcessExited
 2. 系统调用停止（SIGTRAP|0x80）：解码并产生 EventSyscallStop
 3. ptrace 事件停止：clone/fork/vfork、exec、seccomp
 4. 其他停止：初始停止、停止请求、组停止或信号递送
*/
func (l *Loop) handle(wr WaitResult) error {
	pid, ws := wr.Pid, wr.Status
	l.handler.Debug("------ process:", pid, "------")

	// 非主线程 execve 后 pid 已经变为线程组 id，需要先重命名
	if ws.Stopped() && ws.StopSignal() == unix.SIGTRAP && ws.TrapCause() == unix.PTRACE_EVENT_EXEC {
		return l.handleExec(pid)
	}

	t, ok := l.reg.Get(pid)
	if ws.Exited() || ws.Signaled() {
		l.handleExit(pid, t, wr)
		return nil
	}
	if !ws.Stopped() {
		return nil
	}
	if !ok {
		// 子线程的初始停止可能早于父线程的 clone 事件
		t = l.adopt(pid)
	}
	if !t.optionsSet {
		if err := l.setOptions(t); err != nil {
			if errors.Is(err, unix.ESRCH) {
				l.drop(t)
				return nil
			}
			return &AttachError{Pid: t.Pid, Err: err}
		}
	}

	sig := ws.StopSignal()
	switch {
	case sig == syscallTrap:
		return l.handleSyscall(t, StopSyscall)
	case sig == unix.SIGTRAP && ws.TrapCause() > 0:
		return l.handleEvent(t, ws.TrapCause())
	}
	return l.handleSignal(t, sig)
}

func (l *Loop) handleExit(pid int, t *Tracee, wr WaitResult) {
	ws := wr.Status
	if pid == l.root {
		l.rootStatus = ws
		l.rootRusage = wr.Rusage
		l.rootDone = true
	}
	if t == nil {
		l.handler.Debug("untracked process exited:", pid)
		return
	}
	l.reg.Remove(pid)
	l.intr.remove(pid)
	t.State = StateExited
	if t.pending != nil {
		l.handler.Debug("process exited inside syscall:", pid, t.pending.Name)
	}

	ev := &Event{Kind: EventProcessExited, Pid: pid, Tgid: t.Tgid}
	if ws.Exited() {
		ev.ExitStatus = ws.ExitStatus()
		l.handler.Debug("process exited:", pid, "status:", ev.ExitStatus)
	} else {
		ev.Signaled = true
		ev.Signal = ws.Signal()
		ev.CoreDump = ws.CoreDump()
		l.handler.Debug("process terminated by signal:", pid, "signal:", ev.Signal)
	}
	l.emit(ev)
}

func (l *Loop) handleEvent(t *Tracee, cause int) error {
	switch cause {
	case unix.PTRACE_EVENT_CLONE, unix.PTRACE_EVENT_FORK, unix.PTRACE_EVENT_VFORK:
		l.handler.Debug("process clone/fork event:", t.Pid)
		if err := l.handleSpawn(t, cause); err != nil {
			return err
		}
	case unix.PTRACE_EVENT_SECCOMP:
		return l.handleSyscall(t, StopSeccomp)
	default:
		l.handler.Debug("process trap:", t.Pid, "event:", cause)
	}
	return l.resume(t, 0)
}

func (l *Loop) handleSpawn(t *Tracee, cause int) error {
	msg, err := l.ptrace.EventMsg(t.Pid)
	if err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		l.handler.Debug("failed to get new child pid:", err)
		return nil
	}
	child := int(msg)
	tgid := child
	if cause == unix.PTRACE_EVENT_CLONE && l.isThread(t, child) {
		tgid = t.Tgid
	}
	if c, ok := l.reg.Get(child); ok {
		// 已经在初始停止时登记
		c.Tgid = tgid
	} else {
		c := newTracee(child, tgid, StateAttaching)
		c.optionsSet = true
		c.launched = t.launched
		l.reg.Add(c)
		l.intr.add(child, tgid)
		l.tracees++
	}
	l.emit(&Event{Kind: EventChildSpawned, Pid: t.Pid, Tgid: t.Tgid, Child: child})
	return nil
}

// isThread 判断 clone 产生的是否是同一线程组的线程
func (l *Loop) isThread(t *Tracee, child int) bool {
	if p := t.pending; p != nil {
		switch p.Name {
		case "clone":
			return p.Args[0]&unix.CLONE_THREAD != 0
		case "clone3":
			// struct clone_args 的第一个字段是 flags
			if data, err := l.dec.mem.ReadMemory(t.Pid, uintptr(p.Args[0]), 8); err == nil {
				return binary.NativeEndian.Uint64(data)&unix.CLONE_THREAD != 0
			}
		}
	}
	tgid, _, err := procStatus(child)
	return err == nil && tgid == t.Tgid
}

/*
	handleExec 处理 PTRACE_EVENT_EXEC

execve 成功时同一线程组的其他线程都已消失；如果执行 execve 的不是主线程，
它会接管主线程的 id，事件消息中是它原来的 id。
*/
func (l *Loop) handleExec(pid int) error {
	old := pid
	if msg, err := l.ptrace.EventMsg(pid); err == nil && msg != 0 {
		old = int(msg)
	}
	for _, o := range l.reg.Threads(pid) {
		if o.Pid != old {
			l.superseded(o)
		}
	}
	t, ok := l.reg.Get(old)
	if old != pid && ok {
		t = l.reg.Rename(old, pid)
		l.intr.rename(old, pid)
	}
	if !ok {
		t = l.adopt(pid)
		t.expectStop = false
	}
	l.handler.Debug("process exec event:", pid, "former:", old)
	l.emit(&Event{Kind: EventExec, Pid: pid, Tgid: pid, OldPid: old})
	if !ok {
		// 没有经过初始停止，在这里登记到 interrupter
		return l.resumeArmed(t)
	}
	return l.resume(t, 0)
}

// superseded 移除因同组线程 execve 而消失的线程，内核不会为它报告退出
func (l *Loop) superseded(t *Tracee) {
	l.reg.Remove(t.Pid)
	l.intr.remove(t.Pid)
	t.State = StateExited
	l.handler.Debug("process superseded by execve:", t.Pid)
	l.emit(&Event{Kind: EventProcessExited, Pid: t.Pid, Tgid: t.Tgid, Superseded: true})
}

func (l *Loop) handleSignal(t *Tracee, sig syscall.Signal) error {
	if sig == unix.SIGSTOP && t.expectStop {
		return l.initialStop(t)
	}
	if sig == unix.SIGSTOP && l.intr.signalled(t.Pid) {
		return l.stopRequested(t)
	}

	_, code, err := l.ptrace.SigInfo(t.Pid)
	switch {
	case errors.Is(err, unix.EINVAL):
		// 组停止没有 siginfo；未使用 PTRACE_SEIZE 时无法保持停止，只能继续运行
		t.State = StateSignalStop
		l.handler.Debug("group stop:", t.Pid, sig)
		l.emit(&Event{Kind: EventGroupStop, Pid: t.Pid, Tgid: t.Tgid, Signal: sig})
		return l.resume(t, 0)
	case errors.Is(err, unix.ESRCH):
		l.drop(t)
		return nil
	}

	t.State = StateSignalStop
	t.PendingSignal = sig
	act := l.emit(&Event{Kind: EventSignalDelivery, Pid: t.Pid, Tgid: t.Tgid, Signal: sig, SigCode: code})
	if act.Action() == TraceKill {
		return l.kill(t)
	}
	return l.resume(t, t.PendingSignal)
}

// initialStop 处理附加或创建后的第一次 SIGSTOP，该信号不递送给线程
func (l *Loop) initialStop(t *Tracee) error {
	t.expectStop = false
	if l.firstStop.IsZero() {
		l.firstStop = time.Now()
	}
	l.handler.Debug("start tracing process:", t.Pid)
	l.emit(&Event{Kind: EventAttached, Pid: t.Pid, Tgid: t.Tgid})
	return l.resumeArmed(t)
}

// resumeArmed 允许向线程发送停止信号后恢复它；停止或终止已经开始时直接分离或终止
func (l *Loop) resumeArmed(t *Tracee) error {
	stopping, killing := l.intr.arm(t.Pid)
	switch {
	case killing:
		// 终止开始后才进入跟踪的进程不在 kill 时的列表中
		if err := l.ptrace.Kill(t.Tgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return &ResumeError{Pid: t.Pid, Err: err}
		}
		return nil
	case stopping:
		return l.detach(t)
	}
	return l.resume(t, 0)
}

// stopRequested 在停止请求的 SIGSTOP 处分离线程；线程还在系统调用中时等到出口再分离
func (l *Loop) stopRequested(t *Tracee) error {
	if t.InSyscall() {
		t.detachPending = true
		return l.resume(t, 0)
	}
	return l.detach(t)
}

/*
	handleSyscall 处理系统调用入口、出口或 seccomp 停止

实现细节：
 1. 出口必须有对应的入口，否则丢弃
 2. 入口上 TraceBan 跳过系统调用，出口时写入 -errno
 3. 出口后如果有待处理的分离请求则分离
*/
func (l *Loop) handleSyscall(t *Tracee, kind StopKind) error {
	ev, err := l.dec.Decode(t, kind)
	switch {
	case errors.Is(err, ErrUnpairedExit):
		l.handler.Debug("dropping syscall exit without entry:", t.Pid)
		t.State = StateSyscallExitStop
		return l.resume(t, 0)
	case errors.Is(err, ErrTraceeGone):
		l.drop(t)
		return nil
	case err != nil:
		l.handler.Debug("failed to decode syscall:", t.Pid, err)
		return l.resume(t, 0)
	}
	if ev.Direction == DirEntry {
		return l.syscallEntry(t, ev)
	}
	return l.syscallExit(t, ev)
}

func (l *Loop) syscallEntry(t *Tracee, ev *SyscallEvent) error {
	if t.pending != nil {
		l.handler.Debug("syscall entry while", t.pending.Name, "is pending:", t.Pid)
	}
	t.pending = ev
	t.State = StateSyscallEntryStop

	act := l.emit(&Event{Kind: EventSyscallStop, Pid: t.Pid, Tgid: t.Tgid, Syscall: ev})
	switch act.Action() {
	case TraceBan:
		// 将系统调用号设置为 -1 以跳过系统调用
		// https://www.kernel.org/doc/Documentation/prctl/seccomp_filter.txt
		errno := act.Errno()
		if errno == 0 {
			errno = unix.ENOSYS
		}
		if err := l.ptrace.SkipSyscall(t.Pid); err != nil {
			if errors.Is(err, unix.ESRCH) {
				l.drop(t)
				return nil
			}
			return &ResumeError{Pid: t.Pid, Err: err}
		}
		t.banned = errno
	case TraceKill:
		return l.kill(t)
	}
	return l.resume(t, 0)
}

func (l *Loop) syscallExit(t *Tracee, ev *SyscallEvent) error {
	if t.banned != 0 {
		ret := -int64(t.banned)
		if err := l.ptrace.SetReturn(t.Pid, ret); err != nil {
			l.handler.Debug("failed to set return value:", t.Pid, err)
		}
		ev.SetReturn(ret)
		ev.Injected = true
		t.banned = 0
	}
	t.pending = nil
	t.State = StateSyscallExitStop
	l.syscalls++

	act := l.emit(&Event{Kind: EventSyscallStop, Pid: t.Pid, Tgid: t.Tgid, Syscall: ev})
	if act.Action() == TraceKill {
		return l.kill(t)
	}
	if t.detachPending {
		return l.detach(t)
	}
	return l.resume(t, 0)
}

// resume 恢复线程；seccomp 模式下没有待完成的系统调用时只在事件上停止
func (l *Loop) resume(t *Tracee, sig syscall.Signal) error {
	mode := ResumeSyscall
	if l.opts.Seccomp && t.pending == nil {
		mode = ResumeCont
	}
	t.PendingSignal = 0
	if err := l.ptrace.Resume(t.Pid, sig, mode); err != nil {
		if errors.Is(err, unix.ESRCH) {
			l.handler.Debug("process vanished before resume:", t.Pid)
			l.drop(t)
			return nil
		}
		return &ResumeError{Pid: t.Pid, Err: err}
	}
	t.State = StateRunning
	return nil
}

func (l *Loop) detach(t *Tracee) error {
	if err := l.ptrace.Detach(t.Pid, 0); err != nil && !errors.Is(err, unix.ESRCH) {
		return &ResumeError{Pid: t.Pid, Err: err}
	}
	l.reg.Remove(t.Pid)
	l.intr.remove(t.Pid)
	t.State = StateDetached
	l.detached = true
	l.handler.Debug("detached:", t.Pid)
	l.emit(&Event{Kind: EventDetached, Pid: t.Pid, Tgid: t.Tgid})
	return nil
}

// kill 因处理器要求终止线程所在的进程，退出事件随后由 wait 报告
func (l *Loop) kill(t *Tracee) error {
	l.disallowed = true
	if err := l.ptrace.Kill(t.Tgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return &ResumeError{Pid: t.Pid, Err: err}
	}
	return nil
}

// drop 移除已经消失的线程
func (l *Loop) drop(t *Tracee) {
	l.reg.Remove(t.Pid)
	l.intr.remove(t.Pid)
	t.State = StateExited
}

// adopt 登记一个尚未登记的线程，它的 ptrace 选项继承自父线程
func (l *Loop) adopt(pid int) *Tracee {
	tgid := pid
	if g, _, err := procStatus(pid); err == nil {
		tgid = g
	}
	t := newTracee(pid, tgid, StateAttaching)
	t.optionsSet = true
	t.launched = l.launched
	l.reg.Add(t)
	l.intr.add(pid, tgid)
	l.tracees++
	l.handler.Debug("adopted process:", pid, "tgid:", tgid)
	return t
}

// setOptions 设置 ptrace 选项，包括 seccomp、退出时终止和多进程跟踪
func (l *Loop) setOptions(t *Tracee) error {
	options := unix.PTRACE_O_TRACESYSGOOD | unix.PTRACE_O_TRACEEXEC
	if t.launched {
		options |= unix.PTRACE_O_EXITKILL
	}
	if l.opts.FollowForks {
		options |= unix.PTRACE_O_TRACECLONE | unix.PTRACE_O_TRACEFORK | unix.PTRACE_O_TRACEVFORK
	}
	if l.opts.Seccomp {
		options |= unix.PTRACE_O_TRACESECCOMP
	}
	if err := l.ptrace.SetOptions(t.Pid, options); err != nil {
		return errors.Errorf("failed to set ptrace options: %w", err)
	}
	t.optionsSet = true
	return nil
}

func (l *Loop) emit(ev *Event) TraceAction {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	return l.handler.Handle(ev)
}

/*
	cleanup 在事件循环结束后回收资源

实现细节：
 1. 出错时终止启动的进程组并等待全部退出，附加的进程尽量分离
 2. 回收已终止的子进程，期间记录主进程的退出状态
*/
func (l *Loop) cleanup(failed bool) {
	nohang := true
	if failed {
		if l.launched {
			l.intr.kill()
			nohang = false
		} else {
			for _, t := range l.reg.Live() {
				l.ptrace.Detach(t.Pid, 0)
			}
		}
	}
	for {
		wr, err := l.ptrace.Wait(nohang)
		if err != nil || wr.Pid <= 0 {
			return
		}
		if wr.Pid == l.root && (wr.Status.Exited() || wr.Status.Signaled()) {
			l.rootStatus = wr.Status
			l.rootRusage = wr.Rusage
			l.rootDone = true
		}
	}
}

// Result 汇总主进程状态和跟踪统计
func (l *Loop) Result() runner.Result {
	result := runner.Result{
		Status:    runner.StatusNormal,
		Syscalls:  l.syscalls,
		Processes: l.tracees,
	}
	if l.rootDone {
		result.Time = time.Duration(l.rootRusage.Utime.Nano())
		result.Memory = runner.Size(l.rootRusage.Maxrss << 10)
	}
	switch {
	case l.disallowed:
		result.Status = runner.StatusDisallowedSyscall
	case l.rootDone && l.rootStatus.Exited():
		result.ExitStatus = l.rootStatus.ExitStatus()
		if result.ExitStatus != 0 {
			result.Status = runner.StatusNonzeroExitStatus
		}
	case l.rootDone && l.rootStatus.Signaled():
		sig := l.rootStatus.Signal()
		result.ExitStatus = int(sig)
		result.Status = runner.StatusSignalled
		if l.intr.isKilling() {
			result.Status = runner.StatusKilled
		}
		result.Error = fmt.Sprintf("process killed by signal %d", sig)
	case l.detached:
		result.Status = runner.StatusDetached
	}
	return result
}

type nopHandler struct{}

func (nopHandler) Handle(*Event) TraceAction { return TraceAllow }

func (nopHandler) Debug(...interface{}) {}
