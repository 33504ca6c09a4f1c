package libseccomp

import (
	"testing"

	seccompbpf "github.com/elastic/go-seccomp-bpf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultSyscallTraces = []string{
	"execve", "openat", "read", "write", "close", "clone", "exit_group",
}

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name    string
		builder Builder
		wantErr bool
	}{
		{
			name:    "trace only",
			builder: TraceOnly([]string{"openat", "execve"}),
		},
		{
			name: "allow and trace",
			builder: Builder{
				Allow:   []string{"read", "write", "exit_group"},
				Trace:   []string{"openat", "close"},
				Default: ActionKill,
			},
		},
		{
			name:    "empty trace list",
			builder: TraceOnly(nil),
		},
		{
			name:    "invalid syscall",
			builder: TraceOnly([]string{"invalid_syscall"}),
			wantErr: true,
		},
		{
			name:    "duplicate syscalls",
			builder: TraceOnly([]string{"read", "read"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := tt.builder.Build()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, filter)
			assert.NotNil(t, filter.SockFprog())
		})
	}
}

func TestToSeccompAction(t *testing.T) {
	tests := []struct {
		name string
		act  Action
		want seccompbpf.Action
	}{
		{name: "allow", act: ActionAllow, want: seccompbpf.ActionAllow},
		{name: "errno", act: ActionErrno.WithReturnCode(1), want: seccompbpf.ActionErrno},
		{name: "trace", act: ActionTrace, want: seccompbpf.ActionTrace},
		{name: "invalid", act: Action(99), want: seccompbpf.ActionKillProcess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToSeccompAction(tt.act))
		})
	}
}

func TestActionReturnCode(t *testing.T) {
	a := ActionErrno.WithReturnCode(13)
	assert.Equal(t, ActionErrno, a.Action())
	assert.Equal(t, uint16(13), a.ReturnCode())
}

func TestSyscallNameRoundTrip(t *testing.T) {
	for _, name := range []string{"read", "write", "execve", "exit_group", "openat"} {
		no, err := ToSyscallNo(name)
		require.NoError(t, err, name)
		got, err := ToSyscallName(no)
		require.NoError(t, err)
		assert.Equal(t, name, got)
	}

	_, err := ToSyscallName(1 << 20)
	assert.Error(t, err)
	_, err = ToSyscallNo("no_such_call")
	assert.Error(t, err)
}

func TestSyscallNamesSorted(t *testing.T) {
	names := SyscallNames()
	require.NotEmpty(t, names)
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "execve")
}

// BenchmarkBuildFilter 测试过滤器构建的性能
func BenchmarkBuildFilter(b *testing.B) {
	builder := TraceOnly(defaultSyscallTraces)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := builder.Build(); err != nil {
			b.Fatal(err)
		}
	}
}
