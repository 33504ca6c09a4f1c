package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/zqzqsb/systrace/pkg/config"
	"github.com/zqzqsb/systrace/runner"
)

// traceFlags 是 run 和 attach 共用的参数
type traceFlags struct {
	output      string
	format      string
	stringLimit runner.Size
	follow      bool
	trace       string
	paths       []string
	seccomp     bool
	summary     bool
	record      string
	failed      bool
	inject      []string
	timeout     time.Duration
}

func (f *traceFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.output, "output", "o", "", "write the trace to a file instead of stderr")
	fl.StringVar(&f.format, "format", config.FormatText, "output format: text or json")
	fl.VarP(&f.stringLimit, "string-limit", "s", "maximum bytes printed for strings and buffers (e.g. 64, 4k)")
	fl.BoolVarP(&f.follow, "follow", "f", false, "trace child processes and threads")
	fl.StringVarP(&f.trace, "trace", "e", "", "syscalls to trace, e.g. openat,read or %file or !write")
	fl.StringArrayVarP(&f.paths, "path", "P", nil, "only trace syscalls touching the path (dir/ for subtree, dir/* for children)")
	fl.BoolVar(&f.seccomp, "seccomp-bpf", false, "stop only on the traced syscalls using a seccomp filter (run only)")
	fl.BoolVarP(&f.summary, "summary", "c", false, "print a per-syscall summary table instead of the trace")
	fl.StringVar(&f.record, "record", "", "also record the trace into a sqlite database")
	fl.BoolVarP(&f.failed, "failed", "Z", false, "only print syscalls that returned an error")
	fl.StringArrayVar(&f.inject, "inject", nil, "inject a fault, e.g. openat:error=ENOENT:when=2 or unlinkat:kill")
	fl.DurationVar(&f.timeout, "timeout", 0, "stop tracing after the duration")
}

// apply 用显式给出的参数覆盖配置
func (f *traceFlags) apply(cmd *cobra.Command, c *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("output") {
		c.Output.Path = f.output
	}
	if fl.Changed("format") {
		c.Output.Format = f.format
	}
	if fl.Changed("string-limit") {
		c.Trace.StringLimit = f.stringLimit
	}
	if fl.Changed("follow") {
		c.Trace.FollowForks = f.follow
	}
	if fl.Changed("trace") {
		c.Trace.Syscalls = f.trace
	}
	if fl.Changed("path") {
		c.Trace.Paths = append(c.Trace.Paths, f.paths...)
	}
	if fl.Changed("seccomp-bpf") {
		c.Trace.Seccomp = f.seccomp
	}
	if fl.Changed("summary") {
		c.Output.Summary = f.summary
	}
	if fl.Changed("record") {
		c.Output.Record = f.record
	}
	if fl.Changed("failed") {
		c.Trace.Failed = f.failed
	}
	if fl.Changed("inject") {
		c.Trace.Inject = append(c.Trace.Inject, f.inject...)
	}
}
