// Package sink 把跟踪事件写到终端、文件或数据库
package sink

import (
	"io"
	"os"

	"gitlab.com/tozd/go/errors"

	"github.com/zqzqsb/systrace/ptracer"
)

// ErrClosed 表示向已经关闭的 Sink 写入
var ErrClosed = errors.New("sink closed")

// Sink 接收跟踪事件
// Emit 由事件循环调用，同一个 Sink 可能被多棵进程树的循环并发调用
type Sink interface {
	Emit(*ptracer.Event) error
	Close() error
}

// Multi 把事件依次交给多个 Sink
type Multi []Sink

// Emit 写入所有 Sink，返回合并后的错误
func (m Multi) Emit(ev *ptracer.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close 关闭所有 Sink
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard 丢弃所有事件
type Discard struct{}

// Emit 什么也不做
func (Discard) Emit(*ptracer.Event) error { return nil }

// Close 什么也不做
func (Discard) Close() error { return nil }

// closerOf 返回 Close 时需要关闭的输出，标准输出和标准错误不关闭
func closerOf(w io.Writer) io.Closer {
	if w == os.Stdout || w == os.Stderr {
		return nil
	}
	if c, ok := w.(io.Closer); ok {
		return c
	}
	return nil
}
