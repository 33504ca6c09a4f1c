package runner

import (
	"fmt"
	"time"
)

// Result 是一次跟踪会话的结果
type Result struct {
	Status            // 结果状态
	ExitStatus int    // 主进程退出状态（如果被信号终止则为信号编号）
	Error      string // 潜在的详细错误信息（用于运行器错误）

	Time   time.Duration // 主进程使用的用户 CPU 时间
	Memory Size          // 主进程的最大常驻内存

	// 跟踪统计
	Syscalls  uint64 // 完成的系统调用（入口与出口成对）数量
	Processes int    // 跟踪过的线程数量（包括主进程）

	// 跟踪器的度量指标
	SetUpTime   time.Duration // 从启动到第一次停止的时间
	RunningTime time.Duration // 从第一次停止到跟踪结束的时间
}

func (r Result) String() string {
	switch r.Status {
	case StatusNormal:
		return fmt.Sprintf("Result[%v %v][%d syscalls %d tasks][%v %v]", r.Time, r.Memory, r.Syscalls, r.Processes, r.SetUpTime, r.RunningTime)

	case StatusSignalled:
		return fmt.Sprintf("Result[Signalled(%d)][%v %v][%d syscalls %d tasks][%v %v]", r.ExitStatus, r.Time, r.Memory, r.Syscalls, r.Processes, r.SetUpTime, r.RunningTime)

	case StatusRunnerError:
		return fmt.Sprintf("Result[RunnerFailed(%s)][%d syscalls %d tasks][%v %v]", r.Error, r.Syscalls, r.Processes, r.SetUpTime, r.RunningTime)

	default:
		return fmt.Sprintf("Result[%v(%s %d)][%v %v][%d syscalls %d tasks][%v %v]", r.Status, r.Error, r.ExitStatus, r.Time, r.Memory, r.Syscalls, r.Processes, r.SetUpTime, r.RunningTime)
	}
}
