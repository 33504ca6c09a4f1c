package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/tozd/go/errors"

	"github.com/zqzqsb/systrace/pkg/config"
	"github.com/zqzqsb/systrace/pkg/filter"
	"github.com/zqzqsb/systrace/pkg/log"
	"github.com/zqzqsb/systrace/pkg/sink"
	"github.com/zqzqsb/systrace/ptracer"
	"github.com/zqzqsb/systrace/runner/ptrace"
)

// session 是一次跟踪需要的配置和输出
type session struct {
	config ptrace.Config
	sink   *sink.Async
	record *sink.SQLite
}

/*
	newSession 按配置创建过滤器、注入规则和输出

参数：
  - c: 已经应用了命令行参数的配置
  - command: 记录到数据库中的命令
  - multi: 是否跟踪多个线程，决定文本输出是否带 pid
*/
func newSession(c *config.Config, command []string, multi bool) (*session, error) {
	set, err := filter.ParseSyscallSet(c.Trace.Syscalls)
	if err != nil {
		return nil, err
	}
	paths := filter.NewPathSet()
	if len(c.Trace.Paths) > 0 {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		paths.AddRange(c.Trace.Paths, wd)
	}
	inj, err := filter.ParseInjector(c.Trace.Inject)
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stderr
	if c.Output.Path != "" {
		f, err := os.Create(c.Output.Path)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		out = f
	}

	s := &session{}
	var sinks sink.Multi
	switch {
	case c.Output.Summary:
		sinks = append(sinks, sink.NewSummary(out))
	case c.Output.Format == config.FormatJSON:
		sinks = append(sinks, sink.NewJSON(out))
	default:
		t := sink.NewText(out)
		t.ShowPid = multi
		sinks = append(sinks, t)
	}
	if c.Output.Record != "" {
		if s.record, err = sink.OpenSQLite(c.Output.Record, command); err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, s.record)
	}
	s.sink = sink.NewAsync(sinks, c.Output.QueueLen, c.Output.EmitTimeout)

	s.config = ptrace.Config{
		Options: ptracer.Options{
			FollowForks:    c.Trace.FollowForks,
			FollowThreads:  true,
			Seccomp:        c.Trace.Seccomp,
			StringLimit:    int(c.Trace.StringLimit),
			ChunkSize:      int(c.Trace.ChunkSize),
			MaxVectorItems: c.Trace.MaxVectorItems,
		},
		Filter:      &filter.Filter{Syscalls: set, Paths: paths, Failed: c.Trace.Failed},
		Injector:    inj,
		Sink:        s.sink,
		ShowDetails: logrus.IsLevelEnabled(logrus.DebugLevel),
	}
	return s, nil
}

// Close 等待输出写完
func (s *session) Close() error {
	err := s.sink.Close()
	if s.record != nil {
		log.WithSession(s.record.Session()).Info("trace recorded")
	}
	return err
}

// traceContext 在收到 SIGINT/SIGTERM 或超时后取消
func traceContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	c, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return c, stop
	}
	tc, cancel := context.WithTimeout(c, timeout)
	return tc, func() {
		cancel()
		stop()
	}
}
