package filter

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"gitlab.com/tozd/go/errors"

	"github.com/zqzqsb/systrace/pkg/syscalls"
	"github.com/zqzqsb/systrace/ptracer"
)

// Rule 是一条注入规则
type Rule struct {
	Syscalls *SyscallSet
	// Kill 为 true 时终止进程，否则以 Errno 失败
	Kill  bool
	Errno syscall.Errno
	// When 为 N 时前 N-1 次调用正常执行，从第 N 次开始注入；0 表示每次都注入
	When int
}

/*
	ParseRule 解析注入规则

格式：
  - "open,openat:error=ENOENT"  每次都返回 ENOENT
  - "unlink:error=EPERM:when=3" 从第三次调用开始返回 EPERM
  - "%network:kill"             终止进程
*/
func ParseRule(expr string) (*Rule, error) {
	parts := strings.Split(expr, ":")
	if len(parts) < 2 {
		return nil, errors.Errorf("invalid inject rule %q: expected syscall:action", expr)
	}
	set, err := ParseSyscallSet(parts[0])
	if err != nil {
		return nil, errors.Errorf("invalid inject rule %q: %w", expr, err)
	}
	r := &Rule{Syscalls: set}
	for _, p := range parts[1:] {
		k, v, _ := strings.Cut(p, "=")
		switch k {
		case "kill":
			r.Kill = true
		case "error":
			if r.Errno, err = syscalls.ErrnoByName(v); err != nil {
				return nil, errors.Errorf("invalid inject rule %q: %w", expr, err)
			}
		case "when":
			if r.When, err = strconv.Atoi(v); err != nil || r.When < 1 {
				return nil, errors.Errorf("invalid inject rule %q: bad when %q", expr, v)
			}
		default:
			return nil, errors.Errorf("invalid inject rule %q: unknown key %q", expr, k)
		}
	}
	if !r.Kill && r.Errno == 0 {
		return nil, errors.Errorf("invalid inject rule %q: need error= or kill", expr)
	}
	return r, nil
}

/*
	Injector 为每个系统调用维护倒计数

计数器归零前放行，归零后按规则禁止或终止
*/
type Injector struct {
	rules []*Rule

	mu     sync.Mutex
	counts map[*Rule]map[string]int
}

// NewInjector 创建新的 Injector
func NewInjector(rules ...*Rule) *Injector {
	return &Injector{
		rules:  rules,
		counts: make(map[*Rule]map[string]int),
	}
}

// ParseInjector 从多条规则表达式创建 Injector
func ParseInjector(exprs []string) (*Injector, error) {
	var rules []*Rule
	for _, e := range exprs {
		r, err := ParseRule(e)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return NewInjector(rules...), nil
}

// Empty 表示没有任何规则
func (j *Injector) Empty() bool {
	return j == nil || len(j.rules) == 0
}

// Names 返回所有规则涉及的系统调用
func (j *Injector) Names() []string {
	if j.Empty() {
		return nil
	}
	seen := make(map[string]bool)
	var ret []string
	for _, r := range j.rules {
		for _, n := range r.Syscalls.Names() {
			if !seen[n] {
				seen[n] = true
				ret = append(ret, n)
			}
		}
	}
	sort.Strings(ret)
	return ret
}

/*
	Check 在系统调用入口调用，返回对该系统调用的动作

第一条匹配的规则生效；同一规则对不同系统调用分别计数
*/
func (j *Injector) Check(name string) ptracer.TraceAction {
	if j.Empty() {
		return ptracer.TraceAllow
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, r := range j.rules {
		if !r.Syscalls.Contains(name) {
			continue
		}
		if r.When > 0 {
			c, ok := j.counts[r]
			if !ok {
				c = make(map[string]int)
				j.counts[r] = c
			}
			c[name]++
			if c[name] < r.When {
				return ptracer.TraceAllow
			}
		}
		if r.Kill {
			return ptracer.TraceKill
		}
		return ptracer.TraceBan.WithErrno(r.Errno)
	}
	return ptracer.TraceAllow
}
