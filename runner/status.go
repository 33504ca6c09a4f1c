package runner

// Status 是跟踪会话的结果状态
type Status int

// 跟踪会话的结果状态
const (
	StatusInvalid Status = iota // 0 未初始化
	// 正常
	StatusNormal // 1 被跟踪的主进程正常退出

	// 运行时结果
	StatusNonzeroExitStatus // 2 非零退出状态
	StatusSignalled         // 3 被信号终止

	// 跟踪器主动结束
	StatusDetached          // 4 跟踪器已分离，进程继续运行
	StatusKilled            // 5 取消时由跟踪器终止
	StatusDisallowedSyscall // 6 处理器要求终止进程

	// 跟踪器错误
	StatusRunnerError // 7 运行器错误
)

var (
	statusString = []string{
		"无效",
		"",
		"非零退出状态",
		"被信号终止",
		"已分离",
		"被跟踪器终止",
		"禁止的系统调用",
		"运行器错误",
	}
)

func (t Status) String() string {
	i := int(t)
	if i >= 0 && i < len(statusString) {
		return statusString[i]
	}
	return statusString[0]
}

func (t Status) Error() string {
	return t.String()
}
