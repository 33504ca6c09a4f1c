package cli

import (
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/zqzqsb/systrace/runner/ptrace"
)

var attachFlags traceFlags

var attachCmd = &cobra.Command{
	Use:   "attach [flags] PID...",
	Short: "Attach to running processes and trace them",
	Long: `Attach to one or more running processes and trace them until they exit
or systrace is interrupted, after which they are detached and keep running.

All threads of each process are traced. Every process is traced by its own
loop, so unrelated processes are traced in parallel.

Examples:
  systrace attach 1234
  systrace attach -f -e %network 1234 5678
  systrace attach -c --timeout 10s 1234`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAttach,
}

func init() {
	rootCmd.AddCommand(attachCmd)
	attachFlags.register(attachCmd)
}

func runAttach(cmd *cobra.Command, args []string) error {
	attachFlags.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	pids := make([]int, len(args))
	for i, a := range args {
		pid, err := strconv.Atoi(a)
		if err != nil || pid <= 0 {
			return errors.Errorf("invalid pid %q", a)
		}
		pids[i] = pid
	}

	s, err := newSession(cfg, append([]string{"attach"}, args...), true)
	if err != nil {
		return err
	}

	c, cancel := traceContext(attachFlags.timeout)
	defer cancel()
	results, err := ptrace.AttachAll(c, s.config, pids)
	if cerr := s.Close(); cerr != nil {
		logrus.WithError(cerr).Warn("failed to flush trace output")
	}
	for i, r := range results {
		logrus.WithFields(logrus.Fields{"pid": pids[i], "result": r.String()}).Debug("trace finished")
	}
	return err
}
