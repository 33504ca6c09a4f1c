package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/zqzqsb/systrace/pkg/seccomp/libseccomp"
)

// 构建时通过 ldflags 注入
var (
	version = "dev"
	commit  = "none"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of systrace",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("systrace %s\n", version)
		if commit != "none" {
			fmt.Printf("  commit: %s\n", commit)
		}
		fmt.Printf("  arch:   %s\n", libseccomp.ArchName())
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Printf("  go:     %s\n", info.GoVersion)
		}
	},
}
