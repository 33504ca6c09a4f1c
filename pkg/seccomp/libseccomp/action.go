package libseccomp

// Action 定义了 seccomp 过滤器对系统调用的处理动作
// 低 16 位是基本动作，高 16 位保留给附加数据
type Action uint32

// Action 常量从 1 开始，确保 0 值无效
const (
	ActionAllow Action = iota + 1 // 允许系统调用继续执行
	ActionErrno                   // 返回错误码给调用进程
	ActionTrace                   // 通知 ptrace 跟踪器并暂停执行
	ActionKill                    // 立即终止进程
)

// Action 返回基本动作类型（不包含附加数据）
func (a Action) Action() Action {
	return Action(a & 0xffff)
}

// ReturnCode 返回附加数据，ActionErrno 时为错误码
func (a Action) ReturnCode() uint16 {
	return uint16(a >> 16)
}

// WithReturnCode 设置附加数据
func (a Action) WithReturnCode(code uint16) Action {
	return a.Action() | Action(code)<<16
}
