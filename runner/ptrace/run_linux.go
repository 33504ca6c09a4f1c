package ptrace

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/zqzqsb/systrace/pkg/forkexec"
	"github.com/zqzqsb/systrace/ptracer"
	"github.com/zqzqsb/systrace/runner"
)

/*
	Run 启动命令并跟踪它直到所有被跟踪的线程退出或 c 被取消

实现细节：
 1. 设置子进程运行环境（包括参数、环境变量、文件描述符等）
 2. Options.Seccomp 时加载只让选中系统调用停止的过滤器
 3. 创建跟踪器并开始跟踪进程

参数：
  - c: 取消时按 Options.KillOnCancel 终止或分离

返回值：
  - runner.Result: 主进程的退出状态和跟踪统计
*/
func (r *Runner) Run(c context.Context) runner.Result {
	if len(r.Args) == 0 {
		return runner.Result{Status: runner.StatusRunnerError, Error: "no command"}
	}

	filter := r.Seccomp
	if len(filter) == 0 && r.Options.Seccomp {
		f, err := TraceFilter(r.Filter, r.Injector)
		if err != nil {
			return runner.Result{Status: runner.StatusRunnerError, Error: "seccomp: " + err.Error()}
		}
		filter = f
	}
	opts := r.Options
	// 没有过滤器时所有系统调用都停止，按普通方式跟踪
	opts.Seccomp = len(filter) > 0

	// 创建子进程运行器，配置运行环境
	ch := &forkexec.Runner{
		Args:     r.Args,
		Env:      r.Env,
		ExecFile: r.ExecFile,
		RLimits:  r.RLimits,
		Files:    r.Files,
		WorkDir:  r.WorkDir,
		Seccomp:  filter.SockFprog(),
		Ptrace:   true,
		SyncFunc: r.SyncFunc,
	}

	log := logrus.WithField("command", r.Args[0])
	th := newHandler(r.Config, log)
	tracer := ptracer.Tracer{
		Handler: th,
		Runner:  ch,
		Options: opts,
		Ptrace:  r.Ptrace,
	}
	result := tracer.Trace(c)
	log.WithField("result", result.String()).Debug("trace finished")
	return result
}
