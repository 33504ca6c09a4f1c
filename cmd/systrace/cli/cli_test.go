package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zqzqsb/systrace/pkg/config"
	"github.com/zqzqsb/systrace/pkg/sink"
	"github.com/zqzqsb/systrace/ptracer"
	"github.com/zqzqsb/systrace/runner"
)

func TestTraceFlagsApply(t *testing.T) {
	var f traceFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{
		"-s", "4k", "-e", "openat,read", "-P", "/etc/", "-P", "/tmp/x",
		"--inject", "openat:error=ENOENT", "-Z", "-f", "--format", "json",
	}))

	c := config.Default()
	c.Trace.Paths = []string{"/var/"}
	f.apply(cmd, c)
	assert.Equal(t, runner.Size(4096), c.Trace.StringLimit)
	assert.Equal(t, "openat,read", c.Trace.Syscalls)
	assert.Equal(t, []string{"/var/", "/etc/", "/tmp/x"}, c.Trace.Paths)
	assert.Equal(t, []string{"openat:error=ENOENT"}, c.Trace.Inject)
	assert.True(t, c.Trace.Failed)
	assert.True(t, c.Trace.FollowForks)
	assert.Equal(t, config.FormatJSON, c.Output.Format)
	// 未给出的参数保留配置中的值
	assert.False(t, c.Output.Summary)
	assert.Equal(t, "", c.Output.Record)
}

func TestResultError(t *testing.T) {
	tests := []struct {
		name   string
		result runner.Result
		code   int
		err    bool
	}{
		{name: "normal", result: runner.Result{Status: runner.StatusNormal}},
		{name: "detached", result: runner.Result{Status: runner.StatusDetached}},
		{name: "nonzero", result: runner.Result{Status: runner.StatusNonzeroExitStatus, ExitStatus: 3}, code: 3},
		{name: "signalled", result: runner.Result{Status: runner.StatusSignalled, ExitStatus: 9}, code: 137},
		{name: "killed", result: runner.Result{Status: runner.StatusKilled, ExitStatus: 9}, code: 137},
		{name: "disallowed", result: runner.Result{Status: runner.StatusDisallowedSyscall}, code: 1},
		{name: "runner error", result: runner.Result{Status: runner.StatusRunnerError, Error: "boom"}, err: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := resultError(tt.result)
			switch {
			case tt.err:
				assert.EqualError(t, err, "boom")
			case tt.code == 0:
				assert.NoError(t, err)
			default:
				var exit *ExitError
				require.ErrorAs(t, err, &exit)
				assert.Equal(t, tt.code, exit.Code)
			}
		})
	}
}

func TestNewSession(t *testing.T) {
	dir := t.TempDir()
	c := config.Default()
	c.Output.Format = config.FormatJSON
	c.Output.Path = filepath.Join(dir, "trace.json")
	c.Output.Record = filepath.Join(dir, "trace.db")
	c.Trace.Syscalls = "%file"
	c.Trace.Paths = []string{"/etc/"}
	c.Trace.Inject = []string{"openat:error=EACCES"}
	c.Trace.FollowForks = true

	s, err := newSession(c, []string{"true"}, true)
	require.NoError(t, err)
	assert.True(t, s.config.Options.FollowForks)
	assert.True(t, s.config.Options.FollowThreads)
	assert.Equal(t, 32, s.config.Options.StringLimit)
	assert.True(t, s.config.Filter.Syscalls.Contains("openat"))
	assert.False(t, s.config.Filter.Syscalls.Contains("read"))
	assert.True(t, s.config.Filter.Paths.Contains("/etc/passwd"))
	assert.False(t, s.config.Injector.Empty())

	require.NoError(t, s.sink.Emit(&ptracer.Event{Kind: ptracer.EventProcessExited, Pid: 1}))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(c.Output.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"exited"`)

	sessions, err := sink.ListSessions(c.Output.Record)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].Events)
	assert.Equal(t, "true", sessions[0].Command)
}

func TestNewSessionErrors(t *testing.T) {
	c := config.Default()
	c.Trace.Syscalls = "nosuchcall"
	_, err := newSession(c, nil, false)
	assert.Error(t, err)

	c = config.Default()
	c.Trace.Inject = []string{"openat"}
	_, err = newSession(c, nil, false)
	assert.Error(t, err)
}

func TestFormatRecord(t *testing.T) {
	ret := int64(-2)
	zero := 0
	tests := []struct {
		r    sink.Record
		want string
	}{
		{sink.Record{Kind: "syscall", Pid: 7, Direction: "entry", Name: "openat", Args: []string{"AT_FDCWD", `"/x"`}}, `[pid     7] openat(AT_FDCWD, "/x") ...`},
		{sink.Record{Kind: "syscall", Pid: 7, Direction: "exit", Name: "openat", Args: []string{"AT_FDCWD", `"/x"`}, Ret: &ret, Errno: "ENOENT", Injected: true}, `[pid     7] openat(AT_FDCWD, "/x") = -1 ENOENT (INJECTED)`},
		{sink.Record{Kind: "exited", Pid: 7, ExitStatus: &zero}, `[pid     7] +++ exited with 0 +++`},
		{sink.Record{Kind: "exited", Pid: 7, Signal: "SIGKILL"}, `[pid     7] +++ killed by SIGKILL +++`},
		{sink.Record{Kind: "exited", Pid: 7, Superseded: true}, `[pid     7] +++ superseded by execve +++`},
		{sink.Record{Kind: "signal", Pid: 7, Signal: "SIGCHLD"}, `[pid     7] --- SIGCHLD ---`},
		{sink.Record{Kind: "attached", Pid: 7}, `[pid     7] --- attached ---`},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatRecord(tt.r))
		})
	}
}
