package sink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/zqzqsb/systrace/pkg/syscalls"
	"github.com/zqzqsb/systrace/ptracer"
)

/*
Text 以 strace 的格式输出事件

一个系统调用在出口时整行输出；另一个线程的事件插入时，
未完成的入口先以 "<unfinished ...>" 输出，出口再以 "<... name resumed>" 输出
*/
type Text struct {
	// ShowPid 在每行前加上 [pid N]，跟踪多个线程时使用
	ShowPid bool

	mu  sync.Mutex
	w   *bufio.Writer
	c   io.Closer
	tty bool

	// 已经解码但尚未输出的入口
	pending map[int]*ptracer.SyscallEvent
	// 已经以 unfinished 输出的入口
	unfinished map[int]bool
}

// NewText 创建输出到 w 的 Text
// w 是终端时每行立即刷新，否则在 Close 时刷新
func NewText(w io.Writer) *Text {
	t := &Text{
		w:          bufio.NewWriter(w),
		c:          closerOf(w),
		pending:    make(map[int]*ptracer.SyscallEvent),
		unfinished: make(map[int]bool),
	}
	if f, ok := w.(*os.File); ok {
		t.tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return t
}

// Emit 输出一个事件
func (t *Text) Emit(ev *ptracer.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.Kind == ptracer.EventSyscallStop {
		t.emitSyscall(ev.Syscall)
	} else {
		// 不返回的系统调用（exit_group 等）在线程退出时输出
		if s := t.pending[ev.Pid]; s != nil && ev.Kind == ptracer.EventProcessExited {
			delete(t.pending, ev.Pid)
			t.line(ev.Pid, s.FormatCall()+" = ?")
		}
		t.flushPending(0)
		if ev.Kind == ptracer.EventExec && ev.OldPid != ev.Pid && t.unfinished[ev.OldPid] {
			// execve 的出口在新的 pid 上报告
			delete(t.unfinished, ev.OldPid)
			t.unfinished[ev.Pid] = true
		}
		if line := t.formatEvent(ev); line != "" {
			t.line(ev.Pid, line)
		}
	}
	if t.tty {
		return t.w.Flush()
	}
	return nil
}

func (t *Text) emitSyscall(s *ptracer.SyscallEvent) {
	t.flushPending(s.Pid)
	if s.Direction == ptracer.DirEntry {
		t.pending[s.Pid] = s
		return
	}
	switch {
	case t.pending[s.Pid] != nil:
		delete(t.pending, s.Pid)
		t.line(s.Pid, s.String())
	case t.unfinished[s.Pid]:
		delete(t.unfinished, s.Pid)
		t.line(s.Pid, fmt.Sprintf("<... %s resumed> %s", s.Name, s.FormatReturn()))
	default:
		// 入口被过滤，只输出出口
		t.line(s.Pid, s.String())
	}
}

// flushPending 把除 pid 以外线程的入口以 unfinished 输出
// pid 为 0 时输出所有入口
func (t *Text) flushPending(pid int) {
	pids := make([]int, 0, len(t.pending))
	for p := range t.pending {
		if p != pid {
			pids = append(pids, p)
		}
	}
	sort.Ints(pids)
	for _, p := range pids {
		t.line(p, t.pending[p].FormatCall()+" <unfinished ...>")
		t.unfinished[p] = true
		delete(t.pending, p)
	}
}

func (t *Text) formatEvent(ev *ptracer.Event) string {
	switch ev.Kind {
	case ptracer.EventSignalDelivery:
		return fmt.Sprintf("--- %s {si_code=%d} ---", syscalls.FormatSignal(ev.Signal), ev.SigCode)
	case ptracer.EventGroupStop:
		return fmt.Sprintf("--- stopped by %s ---", syscalls.FormatSignal(ev.Signal))
	case ptracer.EventProcessExited:
		delete(t.unfinished, ev.Pid)
		if ev.Superseded {
			return "+++ superseded by execve +++"
		}
		if ev.Signaled {
			core := ""
			if ev.CoreDump {
				core = " (core dumped)"
			}
			return fmt.Sprintf("+++ killed by %s%s +++", syscalls.FormatSignal(ev.Signal), core)
		}
		return fmt.Sprintf("+++ exited with %d +++", ev.ExitStatus)
	case ptracer.EventDetached:
		delete(t.unfinished, ev.Pid)
		return "--- detached ---"
	}
	return ""
}

func (t *Text) line(pid int, s string) {
	if t.ShowPid {
		fmt.Fprintf(t.w, "[pid %5d] ", pid)
	}
	t.w.WriteString(s)
	t.w.WriteByte('\n')
}

// Close 输出剩余的入口并刷新缓冲区
func (t *Text) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushPending(0)
	err := t.w.Flush()
	if t.c != nil {
		if cerr := t.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
