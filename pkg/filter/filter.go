package filter

import (
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/zqzqsb/systrace/pkg/syscalls"
	"github.com/zqzqsb/systrace/ptracer"
)

// Filter 决定一个系统调用事件是否交给输出
// 零值匹配所有事件
type Filter struct {
	// Syscalls 为 nil 时匹配全部系统调用
	Syscalls *SyscallSet
	// Paths 为空时不按路径过滤
	Paths *PathSet
	// Failed 只输出失败的系统调用，入口不单独输出
	Failed bool

	mu sync.Mutex
	// 入口的判断结果，出口沿用，保证入口和出口一起出现或一起被过滤
	pending map[int]bool
}

/*
	Match 判断事件是否需要输出

实现细节：
 1. 入口按系统调用名称和路径判断，结果按 pid 记录
 2. 出口沿用入口的结果；Failed 模式下只有失败的出口会输出

参数：
  - ev: 解码后的系统调用事件

返回值：
  - bool: 是否输出
*/
func (f *Filter) Match(ev *ptracer.SyscallEvent) bool {
	if ev.Direction == ptracer.DirEntry {
		ok := f.matchCall(ev)
		f.mu.Lock()
		if f.pending == nil {
			f.pending = make(map[int]bool)
		}
		f.pending[ev.Pid] = ok
		f.mu.Unlock()
		return ok && !f.Failed
	}

	f.mu.Lock()
	ok, found := f.pending[ev.Pid]
	delete(f.pending, ev.Pid)
	f.mu.Unlock()
	if !found {
		ok = f.matchCall(ev)
	}
	if f.Failed {
		return ok && ev.IsError
	}
	return ok
}

// Forget 丢弃线程的入口记录，线程退出或分离时调用
func (f *Filter) Forget(pid int) {
	f.mu.Lock()
	delete(f.pending, pid)
	f.mu.Unlock()
}

// Rename 把 oldPid 的入口记录移到 newPid，非主线程 execve 后出口在主线程 id 上报告
func (f *Filter) Rename(oldPid, newPid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok, found := f.pending[oldPid]
	if !found {
		return
	}
	delete(f.pending, oldPid)
	f.pending[newPid] = ok
}

func (f *Filter) matchCall(ev *ptracer.SyscallEvent) bool {
	if !f.Syscalls.Contains(ev.Name) {
		return false
	}
	if f.Paths == nil || f.Paths.Empty() {
		return true
	}
	for _, p := range Paths(ev) {
		if f.Paths.Contains(p) {
			return true
		}
	}
	return false
}

/*
	Paths 返回系统调用涉及的绝对路径

包括路径参数（按前一个 dirfd 参数或工作目录解析）和文件描述符参数指向的路径
*/
func Paths(ev *ptracer.SyscallEvent) []string {
	var ret []string
	for i, a := range ev.Decoded {
		switch a.Kind {
		case syscalls.ArgPath:
			if a.Raw == 0 || (a.Err != nil && a.Str == "") {
				continue
			}
			dirfd := -1
			if i > 0 && ev.Decoded[i-1].Kind == syscalls.ArgDirFD {
				if fd := int32(ev.Decoded[i-1].Raw); fd != unix.AT_FDCWD {
					dirfd = int(fd)
				}
			}
			ret = append(ret, absPath(ev.Pid, dirfd, a.Str))
		case syscalls.ArgFD:
			fd := int32(a.Raw)
			if fd < 0 {
				continue
			}
			if p := procLink(ev.Pid, "fd/"+strconv.Itoa(int(fd))); len(p) > 0 && p[0] == '/' {
				ret = append(ret, p)
			}
		}
	}
	return ret
}
