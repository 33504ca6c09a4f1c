package sink

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/tozd/go/errors"

	"github.com/zqzqsb/systrace/ptracer"
)

// 默认队列长度和写入超时
const (
	DefaultQueueLen    = 4096
	DefaultEmitTimeout = 100 * time.Millisecond
)

/*
Async 在独立的 goroutine 中写入底层 Sink

实现细节：
 1. Emit 把事件放入有界队列，队列满时最多等待 EmitTimeout
 2. 超时的事件被丢弃并计数，事件循环不会因为输出慢而停住被跟踪进程
 3. 底层 Sink 的第一个错误在 Close 时返回
*/
type Async struct {
	sink    Sink
	timeout time.Duration
	queue   chan *ptracer.Event
	done    chan struct{}
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool

	errOnce sync.Once
	err     error
}

// NewAsync 创建包装 s 的 Async；queueLen、timeout 为 0 时使用默认值
func NewAsync(s Sink, queueLen int, timeout time.Duration) *Async {
	if queueLen <= 0 {
		queueLen = DefaultQueueLen
	}
	if timeout <= 0 {
		timeout = DefaultEmitTimeout
	}
	a := &Async{
		sink:    s,
		timeout: timeout,
		queue:   make(chan *ptracer.Event, queueLen),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for ev := range a.queue {
		if err := a.sink.Emit(ev); err != nil {
			a.errOnce.Do(func() {
				a.err = err
				logrus.WithError(err).Warn("sink emit failed")
			})
		}
	}
}

// Emit 将事件放入队列
func (a *Async) Emit(ev *ptracer.Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- ev:
		return nil
	default:
	}
	timer := time.NewTimer(a.timeout)
	defer timer.Stop()
	select {
	case a.queue <- ev:
	case <-timer.C:
		a.dropped.Add(1)
	}
	return nil
}

// Dropped 返回因超时丢弃的事件数
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Close 等待队列中的事件写完并关闭底层 Sink
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	if n := a.Dropped(); n > 0 {
		logrus.WithField("dropped", n).Warn("events dropped by slow sink")
	}
	return errors.Join(a.err, a.sink.Close())
}
