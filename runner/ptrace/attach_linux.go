package ptrace

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/zqzqsb/systrace/pkg/log"
	"github.com/zqzqsb/systrace/ptracer"
	"github.com/zqzqsb/systrace/runner"
)

/*
	Run 附加到 Pid 并跟踪直到所有线程退出或 c 被取消

返回值：
  - runner.Result: 跟踪结果；取消后分离时 Status 为 StatusDetached
  - error: 附加失败的原因，可以用 errors.Is 判断 ptracer.ErrNoSuchProcess 等
*/
func (a *Attacher) Run(c context.Context) (runner.Result, error) {
	entry := log.WithTree(a.Pid)
	th := newHandler(a.Config, entry)
	tracer := ptracer.Tracer{
		Handler: th,
		Options: a.Options,
		Ptrace:  a.Ptrace,
	}
	// 附加的进程没有加载过滤器
	tracer.Options.Seccomp = false

	result, err := tracer.TraceAttach(c, a.Pid)
	if err != nil {
		entry.WithError(err).Debug("attach failed")
		return result, err
	}
	entry.WithField("result", result.String()).Debug("trace finished")
	return result, nil
}

/*
	AttachAll 并行跟踪多个互不相关的进程

每个进程由独立的事件循环在各自锁定的 OS 线程上跟踪；
一个进程附加失败不影响其他进程

返回值：
  - []runner.Result: 与 pids 一一对应的结果
  - error: 第一个附加失败的错误
*/
func AttachAll(c context.Context, cfg Config, pids []int) ([]runner.Result, error) {
	results := make([]runner.Result, len(pids))
	var g errgroup.Group
	for i, pid := range pids {
		g.Go(func() error {
			a := &Attacher{Config: cfg, Pid: pid}
			res, err := a.Run(c)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}
