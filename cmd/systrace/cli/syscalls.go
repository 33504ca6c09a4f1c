package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/zqzqsb/systrace/pkg/seccomp/libseccomp"
	"github.com/zqzqsb/systrace/pkg/syscalls"
)

var syscallsClass string

var syscallsCmd = &cobra.Command{
	Use:   "syscalls",
	Short: "List the syscalls systrace decodes on this architecture",
	Long: `List the syscalls with a known argument layout on the running architecture,
with their numbers and argument kinds. Syscalls not listed are still traced
and printed with six raw hexadecimal arguments.`,
	Args: cobra.NoArgs,
	RunE: runSyscalls,
}

func init() {
	rootCmd.AddCommand(syscallsCmd)
	syscallsCmd.Flags().StringVar(&syscallsClass, "class", "", "only list a class: "+strings.Join(classNames(), ", "))
}

func classNames() []string {
	names := make([]string, 0, len(syscalls.ClassNames))
	for n := range syscalls.ClassNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func runSyscalls(cmd *cobra.Command, args []string) error {
	var names []string
	if syscallsClass != "" {
		class, ok := syscalls.ClassNames[syscallsClass]
		if !ok {
			return errors.Errorf("unknown class %q", syscallsClass)
		}
		names = syscalls.ByClass(class)
	} else {
		for _, d := range syscalls.Described() {
			names = append(names, d.Name)
		}
		sort.Strings(names)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "# %s\n", libseccomp.ArchName())
	fmt.Fprintln(w, "NR\tNAME\tSIGNATURE")
	for _, n := range names {
		nr, _ := syscalls.NumberOf(n)
		fmt.Fprintf(w, "%d\t%s\t%s\n", nr, n, syscalls.LookupName(n).Signature())
	}
	return w.Flush()
}
