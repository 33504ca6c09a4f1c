package ptracer

import (
	"bufio"
	"bytes"
	"os"
	"strconv"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"
)

// 附加线程时重复扫描 /proc/<pid>/task 的最大次数
const threadScanRounds = 4

/*
	Launch 通过 Runner 启动一个被跟踪的进程

实现细节：
 1. Runner 创建的子进程调用 PTRACE_TRACEME，并在 execve 之前以 SIGSTOP 停止
 2. 登记主进程，事件循环在第一次停止时设置选项并丢弃该 SIGSTOP
 3. 子进程调用了 setsid，取消时可以按进程组终止

返回值：
  - int: 子进程 pid，也是进程组 id
  - error: 启动失败
*/
func (l *Loop) Launch(r Runner) (int, error) {
	pid, err := r.Start()
	if err != nil {
		return 0, errors.Errorf("start tracee: %w", err)
	}
	l.root = pid
	l.launched = true
	l.intr.pgid = pid

	t := newTracee(pid, pid, StateAttaching)
	t.launched = true
	l.reg.Add(t)
	l.intr.add(pid, pid)
	l.tracees++
	return pid, nil
}

/*
	Attach 附加到一个正在运行的进程

实现细节：
 1. PTRACE_ATTACH 向目标发送 SIGSTOP，事件循环在该停止处设置选项
 2. FollowThreads 时附加 /proc/<pid>/task 中的所有线程，重复扫描直到没有新线程
 3. 不在这里等待停止，因此不会阻塞；目标在停止前退出时由事件循环报告

错误：
  - ErrNoSuchProcess: 目标不存在（ESRCH）
  - ErrAlreadyTraced: 目标已被其他跟踪器跟踪
  - ErrAttachDenied: 没有权限（EPERM/EACCES）
*/
func (l *Loop) Attach(pid int) error {
	if err := l.attachOne(pid); err != nil {
		return err
	}
	tgid := pid
	if g, _, err := procStatus(pid); err == nil {
		tgid = g
	}
	t := newTracee(pid, tgid, StateAttaching)
	l.reg.Add(t)
	l.intr.add(pid, tgid)
	l.tracees++
	if l.root == 0 {
		l.root = tgid
	}
	if l.opts.FollowThreads {
		l.attachThreads(tgid)
	}
	return nil
}

func (l *Loop) attachOne(pid int) error {
	err := l.ptrace.Attach(pid)
	if err == nil {
		return nil
	}
	traced := false
	if errors.Is(err, unix.EPERM) {
		if _, tracer, serr := procStatus(pid); serr == nil && tracer != 0 {
			traced = true
		}
	}
	return attachError(pid, err, traced)
}

// attachThreads 附加线程组中尚未附加的线程，附加期间新建的线程在下一轮扫描中附加
func (l *Loop) attachThreads(tgid int) {
	for round := 0; round < threadScanRounds; round++ {
		tids, err := procTasks(tgid)
		if err != nil {
			l.handler.Debug("failed to list threads:", tgid, err)
			return
		}
		added := 0
		for _, tid := range tids {
			if _, ok := l.reg.Get(tid); ok {
				continue
			}
			if err := l.attachOne(tid); err != nil {
				// 线程可能已经退出
				l.handler.Debug("failed to attach thread:", tid, err)
				continue
			}
			l.reg.Add(newTracee(tid, tgid, StateAttaching))
			l.intr.add(tid, tgid)
			l.tracees++
			added++
		}
		if added == 0 {
			return
		}
	}
}

// procStatus 从 /proc/<pid>/status 读取线程组 id 和跟踪器 pid
func procStatus(pid int) (tgid, tracerPid int, err error) {
	f, err := os.Open("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return 0, 0, errors.WithStack(err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		line := s.Bytes()
		switch {
		case bytes.HasPrefix(line, []byte("Tgid:")):
			tgid, _ = strconv.Atoi(string(bytes.TrimSpace(line[len("Tgid:"):])))
		case bytes.HasPrefix(line, []byte("TracerPid:")):
			tracerPid, _ = strconv.Atoi(string(bytes.TrimSpace(line[len("TracerPid:"):])))
		}
	}
	if err := s.Err(); err != nil {
		return 0, 0, errors.WithStack(err)
	}
	if tgid == 0 {
		return 0, 0, errors.Errorf("no Tgid in status of %d", pid)
	}
	return tgid, tracerPid, nil
}

// procTasks 列出线程组的所有线程
func procTasks(tgid int) ([]int, error) {
	entries, err := os.ReadDir("/proc/" + strconv.Itoa(tgid) + "/task")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	tids := make([]int, 0, len(entries))
	for _, e := range entries {
		if tid, err := strconv.Atoi(e.Name()); err == nil {
			tids = append(tids, tid)
		}
	}
	return tids, nil
}
