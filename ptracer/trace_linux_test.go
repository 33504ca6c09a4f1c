package ptracer

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/zqzqsb/systrace/pkg/forkexec"
	"github.com/zqzqsb/systrace/pkg/syscalls"
	"github.com/zqzqsb/systrace/runner"
)

func requireFile(t *testing.T, path string) {
	if _, err := os.Stat(path); err != nil {
		t.Skipf("%s not available: %v", path, err)
	}
}

func attachedAny(rec *recorder) bool {
	for _, k := range rec.kinds() {
		if k == EventAttached {
			return true
		}
	}
	return false
}

// 跟踪 sh -c '/bin/echo hi; exit 0'：先创建进程，子进程再执行 echo，主进程最后退出
func TestTraceEcho(t *testing.T) {
	requireFile(t, "/bin/sh")
	requireFile(t, "/bin/echo")
	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	require.NoError(t, err)
	defer null.Close()

	rec := newRecorder(t)
	tr := &Tracer{
		Handler: rec,
		Runner: &forkexec.Runner{
			Args:   []string{"/bin/sh", "-c", "/bin/echo hi; exit 0"},
			Env:    []string{"PATH=/bin:/usr/bin"},
			Files:  []uintptr{null.Fd(), null.Fd(), null.Fd()},
			Ptrace: true,
		},
		Options: Options{FollowForks: true},
	}
	c, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result := tr.Trace(c)
	if !attachedAny(rec) {
		t.Skip("ptrace not permitted:", result)
	}
	require.Equal(t, runner.StatusNormal, result.Status, result.String())

	evs := rec.syscalls()
	assertPaired(t, evs)

	root := rec.events[0].Pid
	var (
		spawnEntry = -1
		spawnExit  = -1
		execEntry  = -1
		execExit   = -1
		echoPid    int
	)
	for i, ev := range evs {
		switch {
		case spawnEntry < 0 && ev.Pid == root && syscalls.IsProcessCreation(ev.Name) && ev.Direction == DirEntry:
			spawnEntry = i
		case spawnEntry >= 0 && spawnExit < 0 && ev.Pid == root && syscalls.IsProcessCreation(ev.Name) && ev.Direction == DirExit:
			spawnExit = i
		case execEntry < 0 && ev.Pid != root && ev.Name == "execve" && ev.Direction == DirEntry && ev.Decoded[0].Str == "/bin/echo":
			execEntry = i
			echoPid = ev.Pid
		case execEntry >= 0 && execExit < 0 && ev.Pid == echoPid && ev.Name == "execve" && ev.Direction == DirExit:
			execExit = i
		}
	}
	require.GreaterOrEqual(t, spawnEntry, 0, "no process creation")
	require.Greater(t, spawnExit, spawnEntry)
	require.Greater(t, execEntry, spawnEntry, "no execve of /bin/echo in child")
	require.Greater(t, execExit, execEntry)
	assert.Equal(t, int64(0), evs[execExit].Ret)

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, EventProcessExited, last.Kind)
	assert.Equal(t, root, last.Pid)
	assert.Equal(t, 0, last.ExitStatus)
	assert.GreaterOrEqual(t, result.Processes, 2)
}

func TestTraceBanOpen(t *testing.T) {
	requireFile(t, "/bin/cat")
	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	require.NoError(t, err)
	defer null.Close()

	rec := newRecorder(t)
	tr := &Tracer{
		Handler: &banPath{recorder: rec, path: "/etc/hostname"},
		Runner: &forkexec.Runner{
			Args:   []string{"/bin/cat", "/etc/hostname"},
			Files:  []uintptr{null.Fd(), null.Fd(), null.Fd()},
			Ptrace: true,
		},
	}
	result := tr.Trace(context.Background())
	if !attachedAny(rec) {
		t.Skip("ptrace not permitted:", result)
	}
	// cat 打开文件失败时以 1 退出
	assert.Equal(t, runner.StatusNonzeroExitStatus, result.Status, result.String())

	var injected bool
	for _, ev := range rec.syscalls() {
		if ev.Direction == DirExit && ev.Injected {
			injected = true
			assert.Equal(t, "EACCES", syscalls.ErrnoName(ev.Errno))
		}
	}
	assert.True(t, injected)
}

// banPath 拒绝打开指定路径
type banPath struct {
	*recorder
	path string
}

func (b *banPath) Handle(ev *Event) TraceAction {
	b.recorder.Handle(ev)
	if ev.Kind == EventSyscallStop && ev.Syscall.Direction == DirEntry {
		for _, a := range ev.Syscall.Decoded {
			if a.Kind.NeedsMemory() && a.Str == b.path {
				return TraceBan.WithErrno(syscall.EACCES)
			}
		}
	}
	return TraceAllow
}

func TestTraceAttachMissingProcess(t *testing.T) {
	tr := &Tracer{Handler: newRecorder(t)}
	start := time.Now()
	result, err := tr.TraceAttach(context.Background(), 99999999)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.Error(t, err)
	if errors.Is(err, ErrAttachDenied) {
		t.Skip("ptrace not permitted:", err)
	}
	assert.ErrorIs(t, err, ErrNoSuchProcess)
	assert.Equal(t, runner.StatusRunnerError, result.Status)
}

func TestTraceAttachDetachOnCancel(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skip("failed to start sleep:", err)
	}
	defer func() {
		cmd.Process.Kill()
		cmd.Wait()
	}()
	pid := cmd.Process.Pid

	c, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := newRecorder(t)
	rec.onEvent = func(ev *Event) {
		if ev.Kind == EventAttached {
			time.AfterFunc(200*time.Millisecond, cancel)
		}
	}
	tr := &Tracer{Handler: rec, Options: Options{FollowThreads: true}}
	result, err := tr.TraceAttach(c, pid)
	if errors.Is(err, ErrAttachDenied) {
		t.Skip("ptrace not permitted:", err)
	}
	require.NoError(t, err)
	assert.Equal(t, runner.StatusDetached, result.Status, result.String())
	assertPaired(t, rec.syscalls())

	// 分离后进程继续运行且不再被跟踪
	tgid, tracer, err := procStatus(pid)
	require.NoError(t, err)
	assert.Equal(t, pid, tgid)
	assert.Zero(t, tracer)
}
