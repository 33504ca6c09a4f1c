package ptracer

import (
	"sync"
	"syscall"
)

type interruptEntry struct {
	tgid int
	// armed 表示初始停止已经处理，可以向其发送停止信号
	armed     bool
	signalled bool
}

// interrupter 是事件循环与取消 goroutine 之间唯一共享的状态
// 保证停止跟踪时每个线程最多收到一次 SIGSTOP
type interrupter struct {
	mu       sync.Mutex
	ptrace   Ptrace
	live     map[int]*interruptEntry
	stopping bool
	killing  bool
	// pgid 大于 0 时，终止时同时向该进程组发送 SIGKILL
	pgid int
}

func newInterrupter(p Ptrace) *interrupter {
	return &interrupter{ptrace: p, live: make(map[int]*interruptEntry)}
}

func (i *interrupter) add(tid, tgid int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.live[tid] = &interruptEntry{tgid: tgid}
}

// arm 在处理完初始停止后调用
// 返回的 stopping/killing 表示停止或终止已经开始，调用方应立即分离或终止该线程
func (i *interrupter) arm(tid int) (stopping, killing bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.stopping || i.killing {
		return i.stopping, i.killing
	}
	if e, ok := i.live[tid]; ok {
		e.armed = true
	}
	return false, false
}

func (i *interrupter) remove(tid int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.live, tid)
}

func (i *interrupter) rename(oldTid, newTid int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	e, ok := i.live[oldTid]
	if !ok {
		return
	}
	delete(i.live, oldTid)
	e.tgid = newTid
	i.live[newTid] = e
}

func (i *interrupter) isStopping() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stopping
}

func (i *interrupter) isKilling() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.killing
}

// signalled 表示已经为停止跟踪向 tid 发送过 SIGSTOP
func (i *interrupter) signalled(tid int) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	e, ok := i.live[tid]
	return ok && e.signalled
}

/*
	stop 请求分离所有线程

实现细节：
 1. 先设置 stopping，之后完成初始停止的线程在 arm 时直接分离
 2. 向每个已 armed 且未发送过的线程发送一次 SIGSTOP（tgkill），唤醒阻塞在系统调用中的线程
 3. 事件循环在该 SIGSTOP 的信号递送停止处分离线程并丢弃该信号
*/
func (i *interrupter) stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.stopping {
		return
	}
	i.stopping = true
	for tid, e := range i.live {
		if !e.armed || e.signalled {
			continue
		}
		e.signalled = true
		// 线程可能已经退出，ESRCH 可以忽略
		i.ptrace.Signal(e.tgid, tid, syscall.SIGSTOP)
	}
}

// kill 终止所有被跟踪的进程
func (i *interrupter) kill() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.killing {
		return
	}
	i.killing = true
	if i.pgid > 0 {
		i.ptrace.Kill(-i.pgid, syscall.SIGKILL)
	}
	killed := make(map[int]bool)
	for _, e := range i.live {
		if killed[e.tgid] {
			continue
		}
		killed[e.tgid] = true
		i.ptrace.Kill(e.tgid, syscall.SIGKILL)
	}
}
