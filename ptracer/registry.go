package ptracer

import "sort"

// Registry 记录一棵进程树中所有被跟踪的线程
// 只由该树的事件循环访问，不加锁
type Registry struct {
	tracees map[int]*Tracee
}

// NewRegistry 创建空的 Registry
func NewRegistry() *Registry {
	return &Registry{tracees: make(map[int]*Tracee)}
}

// Add 加入一个线程，相同 pid 的旧记录被覆盖
func (r *Registry) Add(t *Tracee) {
	r.tracees[t.Pid] = t
}

// Get 按 tid 查找线程
func (r *Registry) Get(pid int) (*Tracee, bool) {
	t, ok := r.tracees[pid]
	return t, ok
}

// Remove 删除线程并返回被删除的记录
func (r *Registry) Remove(pid int) *Tracee {
	t := r.tracees[pid]
	delete(r.tracees, pid)
	return t
}

/*
	Rename 在非主线程执行 execve 后更新线程 id

execve 成功后，执行它的线程接管线程组主线程的 id，其他线程全部消失。
旧 id 上等待出口的 execve 入口需要随线程一起移动，才能与出口配对；
入口事件已经交给了 Handler，因此移动的是它的副本。

参数：
  - oldPid: 执行 execve 的线程原来的 tid
  - newPid: 线程组 id
*/
func (r *Registry) Rename(oldPid, newPid int) *Tracee {
	t, ok := r.tracees[oldPid]
	if !ok {
		return nil
	}
	delete(r.tracees, oldPid)
	t.Pid = newPid
	t.Tgid = newPid
	if t.pending != nil {
		p := *t.pending
		p.Pid = newPid
		t.pending = &p
	}
	r.tracees[newPid] = t
	return t
}

// Live 返回按 pid 排序的所有线程
func (r *Registry) Live() []*Tracee {
	ts := make([]*Tracee, 0, len(r.tracees))
	for _, t := range r.tracees {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Pid < ts[j].Pid })
	return ts
}

// Threads 返回属于线程组 tgid 的所有线程
func (r *Registry) Threads(tgid int) []*Tracee {
	var ts []*Tracee
	for _, t := range r.Live() {
		if t.Tgid == tgid {
			ts = append(ts, t)
		}
	}
	return ts
}

// Len 返回线程数
func (r *Registry) Len() int {
	return len(r.tracees)
}
