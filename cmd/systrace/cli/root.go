// Package cli 实现 systrace 的命令行界面
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zqzqsb/systrace/pkg/config"
	"github.com/zqzqsb/systrace/pkg/log"
)

var (
	configPath string
	verbose    bool
	logJSON    bool

	// cfg 在 PersistentPreRunE 中加载，命令行参数随后覆盖其中的值
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "systrace",
	Short: "Trace system calls and signals of Linux processes",
	Long: `systrace traces the system calls, signals and process lifecycle of a
command it starts or of processes that are already running, using ptrace.

Examples:
  systrace run -- ls -l /tmp          # trace a command
  systrace run -f -e %process -- make # follow forks, only process syscalls
  systrace attach 1234 5678           # trace running processes until Ctrl-C
  systrace run -c -- git status       # syscall summary table`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		if cmd.Flags().Changed("log-json") {
			cfg.Log.JSON = logJSON
		}
		return log.Init(log.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	},
}

// ExitError 携带被跟踪进程的退出码，main 以该退出码退出
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute 运行根命令
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		if _, ok := err.(*ExitError); !ok {
			rootCmd.PrintErrln("systrace:", err)
		}
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.systrace/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging of the trace loop")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log in JSON format")
}
