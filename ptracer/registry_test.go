package ptracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Add(newTracee(3, 1, StateRunning))
	r.Add(newTracee(1, 1, StateRunning))
	r.Add(newTracee(2, 2, StateRunning))

	assert.Equal(t, 3, r.Len())
	var pids []int
	for _, tr := range r.Live() {
		pids = append(pids, tr.Pid)
	}
	assert.Equal(t, []int{1, 2, 3}, pids)
	assert.Len(t, r.Threads(1), 2)

	removed := r.Remove(2)
	require.NotNil(t, removed)
	assert.Equal(t, 2, removed.Pid)
	assert.Nil(t, r.Remove(2))
	_, ok := r.Get(2)
	assert.False(t, ok)
}

func TestRegistryRenameMovesPending(t *testing.T) {
	r := NewRegistry()
	leader := newTracee(10, 10, StateRunning)
	thread := newTracee(11, 10, StateSyscallEntryStop)
	entry := &SyscallEvent{Pid: 11, Name: "execve", Direction: DirEntry}
	thread.pending = entry
	r.Add(leader)
	r.Add(thread)

	r.Remove(10)
	renamed := r.Rename(11, 10)
	require.NotNil(t, renamed)
	assert.Equal(t, 10, renamed.Pid)
	assert.Equal(t, 10, renamed.Tgid)
	assert.Equal(t, 10, renamed.Pending().Pid)
	assert.Equal(t, "execve", renamed.Pending().Name)
	assert.True(t, renamed.InSyscall())
	// 已经交给 Handler 的入口事件保持不变
	assert.Equal(t, 11, entry.Pid)
	assert.NotSame(t, entry, renamed.Pending())

	_, ok := r.Get(11)
	assert.False(t, ok)
	got, ok := r.Get(10)
	assert.True(t, ok)
	assert.Same(t, thread, got)
	assert.Nil(t, r.Rename(99, 10))
}

func TestInterrupterStop(t *testing.T) {
	f := newFakePtrace()
	i := newInterrupter(f)
	i.add(1, 1)
	i.add(2, 1)
	i.add(3, 3)
	i.arm(1)
	i.arm(2)

	i.stop()
	i.stop()
	assert.Len(t, f.signals, 2)
	assert.True(t, i.signalled(1))
	assert.True(t, i.signalled(2))
	assert.False(t, i.signalled(3))
	assert.True(t, i.isStopping())

	// 停止开始后才完成初始停止的线程不会再收到信号
	stopping, killing := i.arm(3)
	assert.True(t, stopping)
	assert.False(t, killing)
	assert.Len(t, f.signals, 2)
}

func TestInterrupterKill(t *testing.T) {
	f := newFakePtrace()
	i := newInterrupter(f)
	i.pgid = 1
	i.add(1, 1)
	i.add(2, 1)
	i.add(5, 5)

	i.kill()
	i.kill()
	assert.True(t, i.isKilling())
	assert.Equal(t, killCall{pid: -1, sig: unix.SIGKILL}, f.kills[0])
	assert.Len(t, f.kills, 3)
	assert.Contains(t, f.kills, killCall{pid: 1, sig: unix.SIGKILL})
	assert.Contains(t, f.kills, killCall{pid: 5, sig: unix.SIGKILL})
}

func TestInterrupterRename(t *testing.T) {
	f := newFakePtrace()
	i := newInterrupter(f)
	i.add(11, 10)
	i.arm(11)
	i.rename(11, 10)
	i.stop()
	require.Len(t, f.signals, 1)
	assert.Equal(t, 10, f.signals[0].pid)
}
