package libseccomp

import (
	libseccomp "github.com/elastic/go-seccomp-bpf"
)

// ToSeccompAction 将 Action 转换为 go-seccomp-bpf 的动作类型
//
// 转换对应关系：
//   - ActionAllow -> libseccomp.ActionAllow
//   - ActionErrno -> libseccomp.ActionErrno
//   - ActionTrace -> libseccomp.ActionTrace
//   - 其他       -> libseccomp.ActionKillProcess
func ToSeccompAction(a Action) libseccomp.Action {
	switch a.Action() {
	case ActionAllow:
		return libseccomp.ActionAllow
	case ActionErrno:
		return libseccomp.ActionErrno
	case ActionTrace:
		return libseccomp.ActionTrace
	default:
		return libseccomp.ActionKillProcess
	}
}
