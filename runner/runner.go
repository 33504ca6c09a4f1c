// Package runner 定义了一次跟踪会话的运行接口和结果
package runner

import (
	"context"
)

// Runner 接口定义了启动一次跟踪会话的方法
// 实现可能启动新进程，也可能附加到已有进程
type Runner interface {
	Run(context.Context) Result
}
