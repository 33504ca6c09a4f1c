package sink

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/zqzqsb/systrace/pkg/syscalls"
	"github.com/zqzqsb/systrace/ptracer"
)

func syscallEvent(pid int, dir ptracer.Direction, name string, ret int64, args ...ptracer.Arg) *ptracer.Event {
	s := &ptracer.SyscallEvent{
		Pid:       pid,
		Direction: dir,
		Name:      name,
		Decoded:   args,
		Time:      time.Unix(100, 0),
	}
	for i, a := range args {
		s.Args[i] = a.Raw
	}
	if dir == ptracer.DirExit {
		s.Ret = ret
		if syscalls.IsError(ret) {
			s.IsError = true
			s.Errno = syscalls.Errno(ret)
		}
		s.Duration = time.Millisecond
	}
	return &ptracer.Event{Kind: ptracer.EventSyscallStop, Pid: pid, Tgid: pid, Time: s.Time, Syscall: s}
}

func intArg(v int) ptracer.Arg {
	return ptracer.Arg{Kind: syscalls.ArgInt, Raw: uint64(v)}
}

func strArg(s string) ptracer.Arg {
	return ptracer.Arg{Kind: syscalls.ArgPath, Raw: 0x1000, Str: s}
}

func TestTextPair(t *testing.T) {
	var buf bytes.Buffer
	s := NewText(&buf)
	require.NoError(t, s.Emit(syscallEvent(1, ptracer.DirEntry, "close", 0, intArg(3))))
	assert.Empty(t, buf.String())
	require.NoError(t, s.Emit(syscallEvent(1, ptracer.DirExit, "close", 0, intArg(3))))
	require.NoError(t, s.Close())
	assert.Equal(t, "close(3) = 0\n", buf.String())
}

func TestTextInterleaved(t *testing.T) {
	var buf bytes.Buffer
	s := NewText(&buf)
	s.ShowPid = true
	events := []*ptracer.Event{
		syscallEvent(10, ptracer.DirEntry, "read", 0, intArg(0)),
		syscallEvent(11, ptracer.DirEntry, "close", 0, intArg(4)),
		syscallEvent(11, ptracer.DirExit, "close", 0, intArg(4)),
		syscallEvent(10, ptracer.DirExit, "read", 5, intArg(0)),
	}
	for _, ev := range events {
		require.NoError(t, s.Emit(ev))
	}
	require.NoError(t, s.Close())
	assert.Equal(t, strings.Join([]string{
		"[pid    10] read(0) <unfinished ...>",
		"[pid    11] close(4) = 0",
		"[pid    10] <... read resumed> = 5",
		"",
	}, "\n"), buf.String())
}

func TestTextProcessEvents(t *testing.T) {
	var buf bytes.Buffer
	s := NewText(&buf)
	events := []*ptracer.Event{
		{Kind: ptracer.EventSignalDelivery, Pid: 1, Signal: syscall.SIGCHLD, SigCode: 1},
		{Kind: ptracer.EventChildSpawned, Pid: 1, Child: 2},
		syscallEvent(1, ptracer.DirEntry, "exit_group", 0, intArg(0)),
		{Kind: ptracer.EventProcessExited, Pid: 1, ExitStatus: 0},
		{Kind: ptracer.EventProcessExited, Pid: 2, Signaled: true, Signal: syscall.SIGSEGV, CoreDump: true},
	}
	for _, ev := range events {
		require.NoError(t, s.Emit(ev))
	}
	require.NoError(t, s.Close())
	assert.Equal(t, strings.Join([]string{
		"--- SIGCHLD {si_code=1} ---",
		"exit_group(0) = ?",
		"+++ exited with 0 +++",
		"+++ killed by SIGSEGV (core dumped) +++",
		"",
	}, "\n"), buf.String())
}

// 非主线程 execve：原主线程消失，execve 的出口在主线程 id 上报告
func TestTextExecByThread(t *testing.T) {
	tests := []struct {
		name   string
		events []*ptracer.Event
		want   []string
	}{
		{
			name: "resumed on leader pid",
			events: []*ptracer.Event{
				syscallEvent(12, ptracer.DirEntry, "execve", 0, strArg("/bin/true")),
				{Kind: ptracer.EventProcessExited, Pid: 10, Tgid: 10, Superseded: true},
				{Kind: ptracer.EventExec, Pid: 10, Tgid: 10, OldPid: 12},
				syscallEvent(10, ptracer.DirExit, "execve", 0, strArg("/bin/true")),
			},
			want: []string{
				`[pid    12] execve("/bin/true") <unfinished ...>`,
				"[pid    10] +++ superseded by execve +++",
				"[pid    10] <... execve resumed> = 0",
			},
		},
		{
			name: "leader exec",
			events: []*ptracer.Event{
				syscallEvent(10, ptracer.DirEntry, "execve", 0, strArg("/bin/true")),
				{Kind: ptracer.EventExec, Pid: 10, Tgid: 10, OldPid: 10},
				syscallEvent(10, ptracer.DirExit, "execve", 0, strArg("/bin/true")),
			},
			want: []string{
				`[pid    10] execve("/bin/true") <unfinished ...>`,
				"[pid    10] <... execve resumed> = 0",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			s := NewText(&buf)
			s.ShowPid = true
			for _, ev := range tt.events {
				require.NoError(t, s.Emit(ev))
			}
			require.NoError(t, s.Close())
			assert.Equal(t, strings.Join(append(tt.want, ""), "\n"), buf.String())
		})
	}
}

func TestRecordSuperseded(t *testing.T) {
	tests := []struct {
		name           string
		ev             *ptracer.Event
		wantSuperseded bool
		wantStatus     bool
	}{
		{name: "superseded", ev: &ptracer.Event{Kind: ptracer.EventProcessExited, Pid: 10, Superseded: true}, wantSuperseded: true},
		{name: "exited", ev: &ptracer.Event{Kind: ptracer.EventProcessExited, Pid: 10}, wantStatus: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecord(tt.ev)
			assert.Equal(t, tt.wantSuperseded, r.Superseded)
			assert.Equal(t, tt.wantStatus, r.ExitStatus != nil)
			data, err := json.Marshal(r)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuperseded, strings.Contains(string(data), `"superseded":true`))
		})
	}
}

func TestTextExitOnly(t *testing.T) {
	var buf bytes.Buffer
	s := NewText(&buf)
	require.NoError(t, s.Emit(syscallEvent(1, ptracer.DirExit, "openat", -int64(syscall.ENOENT), strArg("/x"))))
	require.NoError(t, s.Close())
	assert.Equal(t, `openat("/x") = -1 ENOENT (no such file or directory)`+"\n", buf.String())
}

func TestTextCloseFlushesPending(t *testing.T) {
	var buf bytes.Buffer
	s := NewText(&buf)
	require.NoError(t, s.Emit(syscallEvent(1, ptracer.DirEntry, "read", 0, intArg(0))))
	require.NoError(t, s.Close())
	assert.Equal(t, "read(0) <unfinished ...>\n", buf.String())
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSON(&buf)
	require.NoError(t, s.Emit(syscallEvent(3, ptracer.DirEntry, "openat", 0, strArg("/etc/hostname"))))
	require.NoError(t, s.Emit(syscallEvent(3, ptracer.DirExit, "openat", -int64(syscall.EACCES), strArg("/etc/hostname"))))
	require.NoError(t, s.Emit(&ptracer.Event{Kind: ptracer.EventProcessExited, Pid: 3, ExitStatus: 1}))
	require.NoError(t, s.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var entry, exit, exited Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &exit))
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &exited))

	assert.Equal(t, "syscall", entry.Kind)
	assert.Equal(t, "entry", entry.Direction)
	assert.Equal(t, []string{`"/etc/hostname"`}, entry.Args)
	assert.Nil(t, entry.Ret)

	assert.Equal(t, "exit", exit.Direction)
	require.NotNil(t, exit.Ret)
	assert.Equal(t, -int64(syscall.EACCES), *exit.Ret)
	assert.Equal(t, "EACCES", exit.Errno)
	assert.Equal(t, time.Millisecond.Nanoseconds(), exit.Duration)

	assert.Equal(t, "exited", exited.Kind)
	require.NotNil(t, exited.ExitStatus)
	assert.Equal(t, 1, *exited.ExitStatus)
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	s := NewSummary(&buf)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Emit(syscallEvent(1, ptracer.DirEntry, "read", 0)))
		require.NoError(t, s.Emit(syscallEvent(1, ptracer.DirExit, "read", 10)))
	}
	require.NoError(t, s.Emit(syscallEvent(1, ptracer.DirExit, "openat", -int64(syscall.ENOENT))))
	require.NoError(t, s.Emit(&ptracer.Event{Kind: ptracer.EventProcessExited, Pid: 1}))

	stats := s.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, SyscallStat{Name: "read", Calls: 3, Time: 3 * time.Millisecond}, stats[0])
	assert.Equal(t, SyscallStat{Name: "openat", Calls: 1, Errors: 1, Time: time.Millisecond}, stats[1])

	require.NoError(t, s.Close())
	out := buf.String()
	assert.Contains(t, out, "% time")
	assert.Contains(t, out, " 75.00    0.003000        1000         3           read\n")
	assert.Contains(t, out, " 25.00    0.001000        1000         1         1 openat\n")
	assert.Contains(t, out, "100.00    0.004000        1000         4         1 total\n")
}

type memSink struct {
	mu     sync.Mutex
	events []*ptracer.Event
	block  chan struct{}
	err    error
	closed bool
}

func (m *memSink) Emit(ev *ptracer.Event) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

func TestMulti(t *testing.T) {
	a, b := &memSink{}, &memSink{err: errors.New("b failed")}
	m := Multi{a, b}
	ev := syscallEvent(1, ptracer.DirEntry, "read", 0)
	err := m.Emit(ev)
	assert.ErrorContains(t, err, "b failed")
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	require.NoError(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestAsyncDelivers(t *testing.T) {
	m := &memSink{}
	a := NewAsync(m, 0, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, a.Emit(syscallEvent(1, ptracer.DirEntry, "read", 0)))
	}
	require.NoError(t, a.Close())
	assert.Len(t, m.events, 100)
	assert.Zero(t, a.Dropped())
	assert.True(t, m.closed)

	assert.ErrorIs(t, a.Emit(syscallEvent(1, ptracer.DirEntry, "read", 0)), ErrClosed)
	assert.ErrorIs(t, a.Close(), ErrClosed)
}

func TestAsyncDropsOnTimeout(t *testing.T) {
	m := &memSink{block: make(chan struct{})}
	a := NewAsync(m, 1, 5*time.Millisecond)

	start := time.Now()
	// 第一个事件被消费者取走并阻塞，第二个填满队列，其余超时丢弃
	for i := 0; i < 5; i++ {
		require.NoError(t, a.Emit(syscallEvent(1, ptracer.DirEntry, "read", 0)))
	}
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.GreaterOrEqual(t, a.Dropped(), uint64(3))

	close(m.block)
	require.NoError(t, a.Close())
	assert.Equal(t, 5, len(m.events)+int(a.Dropped()))
}

func TestAsyncReportsSinkError(t *testing.T) {
	m := &memSink{err: errors.New("disk full")}
	a := NewAsync(m, 4, time.Second)
	require.NoError(t, a.Emit(syscallEvent(1, ptracer.DirEntry, "read", 0)))
	assert.ErrorContains(t, a.Close(), "disk full")
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")
	s, err := OpenSQLite(path, []string{"/bin/true", "-x"})
	require.NoError(t, err)
	assert.Len(t, s.Session(), 36)

	n := sqliteBatch + 10
	for i := 0; i < n; i++ {
		require.NoError(t, s.Emit(syscallEvent(5, ptracer.DirExit, "close", 0, intArg(i))))
	}
	require.NoError(t, s.Emit(syscallEvent(5, ptracer.DirExit, "openat", -int64(syscall.ENOENT), strArg("/nope"))))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Emit(syscallEvent(5, ptracer.DirExit, "close", 0)), ErrClosed)

	// 第二个会话写入同一个数据库
	s2, err := OpenSQLite(path, []string{"ls"})
	require.NoError(t, err)
	require.NoError(t, s2.Close())

	sessions, err := ListSessions(path)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, s.Session(), sessions[0].ID)
	assert.Equal(t, "/bin/true -x", sessions[0].Command)
	assert.Equal(t, n+1, sessions[0].Events)
	assert.Equal(t, 0, sessions[1].Events)

	all, err := ReadRecords(path, s.Session(), "")
	require.NoError(t, err)
	require.Len(t, all, n+1)
	assert.Equal(t, []string{"0"}, all[0].Args)
	assert.Equal(t, []string{"11"}, all[11].Args)

	opens, err := ReadRecords(path, s.Session(), "openat")
	require.NoError(t, err)
	require.Len(t, opens, 1)
	assert.Equal(t, "ENOENT", opens[0].Errno)
	assert.Equal(t, []string{`"/nope"`}, opens[0].Args)
}

func TestDiscard(t *testing.T) {
	var d Sink = Discard{}
	assert.NoError(t, d.Emit(syscallEvent(1, ptracer.DirEntry, "read", 0)))
	assert.NoError(t, d.Close())
}
