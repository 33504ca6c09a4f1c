package ptrace

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/zqzqsb/systrace/pkg/sink"
	"github.com/zqzqsb/systrace/ptracer"
)

// tracerHandler 把事件循环的事件经过过滤写到 Sink，并在入口执行注入规则
type tracerHandler struct {
	Config
	log *logrus.Entry

	emitErrors atomic.Uint64
}

func newHandler(cfg Config, log *logrus.Entry) *tracerHandler {
	if cfg.Sink == nil {
		cfg.Sink = sink.Discard{}
	}
	return &tracerHandler{Config: cfg, log: log}
}

// Debug 输出调试信息
// 只有在 ShowDetails 为 true 时才会输出
func (h *tracerHandler) Debug(v ...interface{}) {
	if h.ShowDetails {
		h.log.Debugln(v...)
	}
}

/*
	Handle 处理一个事件

实现细节：
 1. 系统调用入口先按注入规则决定动作
 2. 通过过滤的事件写到 Sink；Sink 出错不影响跟踪
 3. 线程退出或分离时清理过滤器中的入口记录，execve 换了 pid 时随之移动
*/
func (h *tracerHandler) Handle(ev *ptracer.Event) ptracer.TraceAction {
	action := ptracer.TraceAllow
	switch ev.Kind {
	case ptracer.EventSyscallStop:
		sc := ev.Syscall
		if sc.Direction == ptracer.DirEntry {
			action = h.Injector.Check(sc.Name)
			if action != ptracer.TraceAllow {
				h.Debug("<inject>", sc.Name, action.Action(), action.Errno())
			}
		}
		if h.Filter != nil && !h.Filter.Match(sc) {
			return action
		}
	case ptracer.EventProcessExited, ptracer.EventDetached:
		if h.Filter != nil {
			h.Filter.Forget(ev.Pid)
		}
	case ptracer.EventExec:
		if h.Filter != nil && ev.OldPid != ev.Pid {
			h.Filter.Rename(ev.OldPid, ev.Pid)
		}
	}
	h.emit(ev)
	return action
}

func (h *tracerHandler) emit(ev *ptracer.Event) {
	if err := h.Sink.Emit(ev); err != nil {
		// 只报告第一次失败
		if h.emitErrors.Add(1) == 1 {
			h.log.WithError(err).Warn("failed to write event")
		}
	}
}
