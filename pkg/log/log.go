// Package log 配置跟踪器使用的 logrus 日志
package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options 是日志配置
type Options struct {
	// Level 是日志级别，如 debug, info, warn
	Level string
	// JSON 为 true 时输出 JSON 格式
	JSON bool
	// Output 默认为标准错误
	Output io.Writer
}

// Init 按配置设置全局 logger
func Init(opts Options) error {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	logrus.SetOutput(out)

	if opts.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: false,
			FullTimestamp:    true,
		})
	}

	level := strings.TrimSpace(opts.Level)
	if level == "" {
		level = "warn"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	return nil
}

// WithTree 返回带有被跟踪进程树字段的日志入口
// 每棵进程树由一个事件循环独立跟踪，日志按 tree 区分
func WithTree(pid int) *logrus.Entry {
	return logrus.WithField("tree", pid)
}

// WithSession 返回带有会话 ID 的日志入口
func WithSession(id string) *logrus.Entry {
	return logrus.WithField("session", id)
}
