package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zqzqsb/systrace/pkg/sink"
)

var showSyscall string

var showCmd = &cobra.Command{
	Use:   "show DATABASE [SESSION]",
	Short: "Show traces recorded with --record",
	Long: `Without a session, list the sessions recorded in the database.
With a session id, print its events in recording order.

Examples:
  systrace show trace.db
  systrace show trace.db 0b7c...          # all events of a session
  systrace show trace.db 0b7c... -e openat`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().StringVarP(&showSyscall, "syscall", "e", "", "only show one syscall")
}

func runShow(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		sessions, err := sink.ListSessions(args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tSTARTED\tEVENTS\tCOMMAND")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.Started.Format("2006-01-02 15:04:05"), s.Events, s.Command)
		}
		return w.Flush()
	}

	records, err := sink.ReadRecords(args[0], args[1], showSyscall)
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Fprintln(os.Stdout, formatRecord(r))
	}
	return nil
}

// formatRecord 以接近文本输出的格式输出一条记录
func formatRecord(r sink.Record) string {
	prefix := fmt.Sprintf("[pid %5d] ", r.Pid)
	switch r.Kind {
	case "syscall":
		call := r.Name + "(" + strings.Join(r.Args, ", ") + ")"
		if r.Direction == "entry" {
			return prefix + call + " ..."
		}
		ret := "= ?"
		if r.Ret != nil {
			ret = fmt.Sprintf("= %d", *r.Ret)
		}
		if r.Errno != "" {
			ret = "= -1 " + r.Errno
		}
		if r.Injected {
			ret += " (INJECTED)"
		}
		return prefix + call + " " + ret
	case "signal":
		return prefix + "--- " + r.Signal + " ---"
	case "exited":
		if r.Superseded {
			return prefix + "+++ superseded by execve +++"
		}
		if r.ExitStatus != nil {
			return prefix + fmt.Sprintf("+++ exited with %d +++", *r.ExitStatus)
		}
		return prefix + "+++ killed by " + r.Signal + " +++"
	case "spawned":
		return prefix + fmt.Sprintf("--- spawned %d ---", r.Child)
	case "exec":
		return prefix + fmt.Sprintf("--- exec (was %d) ---", r.OldPid)
	}
	return prefix + "--- " + r.Kind + " ---"
}
