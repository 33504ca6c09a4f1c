package cli

import (
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/zqzqsb/systrace/runner"
	"github.com/zqzqsb/systrace/runner/ptrace"
)

var runFlags traceFlags

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Start a command and trace it",
	Long: `Start a command under ptrace and trace it until it exits.

The command inherits stdin, stdout, the environment and the working directory.
Interrupting systrace kills the traced command. systrace exits with the exit
status of the command, or 128+signal when it was killed by a signal.

Examples:
  systrace run -- cat /etc/hostname
  systrace run -f -e %file -P /etc/ -- sh -c 'cat /etc/passwd > /dev/null'
  systrace run --seccomp-bpf -e execve -f -- make
  systrace run --inject openat:error=ENOENT:when=3 -- ls`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runFlags.register(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	runFlags.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	path, err := exec.LookPath(args[0])
	if err != nil {
		return errors.WithStack(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		return errors.WithStack(err)
	}

	s, err := newSession(cfg, args, cfg.Trace.FollowForks)
	if err != nil {
		return err
	}

	r := &ptrace.Runner{
		Config:  s.config,
		Args:    append([]string{path}, args[1:]...),
		Env:     os.Environ(),
		WorkDir: wd,
		Files:   []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd()},
		RLimits: cfg.Limits.PrepareRLimit(),
	}
	r.Options.KillOnCancel = true

	c, cancel := traceContext(runFlags.timeout)
	defer cancel()
	result := r.Run(c)
	if err := s.Close(); err != nil {
		logrus.WithError(err).Warn("failed to flush trace output")
	}
	return resultError(result)
}

// resultError 把跟踪结果转换为命令的退出码
func resultError(result runner.Result) error {
	entry := logrus.WithField("result", result.String())
	switch result.Status {
	case runner.StatusNormal, runner.StatusDetached:
		entry.Debug("trace finished")
		return nil
	case runner.StatusNonzeroExitStatus:
		entry.Debug("trace finished")
		return &ExitError{Code: result.ExitStatus}
	case runner.StatusSignalled, runner.StatusKilled:
		entry.Info("traced process killed")
		return &ExitError{Code: 128 + result.ExitStatus}
	case runner.StatusRunnerError:
		return errors.New(result.Error)
	}
	entry.Warn("trace finished abnormally")
	return &ExitError{Code: 1}
}
