package ptrace

import (
	"sort"

	"github.com/zqzqsb/systrace/pkg/filter"
	"github.com/zqzqsb/systrace/pkg/seccomp"
	"github.com/zqzqsb/systrace/pkg/seccomp/libseccomp"
	"github.com/zqzqsb/systrace/pkg/syscalls"
)

/*
	TraceFilter 生成只让需要的系统调用停止的 seccomp 过滤器

需要停止的系统调用包括：
  - 过滤器选中的系统调用
  - 注入规则涉及的系统调用
  - execve 和进程创建，保证事件循环看到映像替换和新进程

参数：
  - f: 为 nil 或选中全部系统调用时返回 nil，此时跟踪所有系统调用更直接
*/
func TraceFilter(f *filter.Filter, inj *filter.Injector) (seccomp.Filter, error) {
	if f == nil || f.Syscalls.All() {
		return nil, nil
	}
	names := make(map[string]bool)
	for _, n := range f.Syscalls.Names() {
		names[n] = true
	}
	for _, n := range inj.Names() {
		names[n] = true
	}
	for _, n := range []string{"execve", "execveat", "clone", "clone3", "fork", "vfork"} {
		names[n] = true
	}

	list := make([]string, 0, len(names))
	for n := range names {
		if syscalls.Exists(n) {
			list = append(list, n)
		}
	}
	sort.Strings(list)
	b := libseccomp.TraceOnly(list)
	return b.Build()
}
