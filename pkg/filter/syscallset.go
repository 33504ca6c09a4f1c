// Package filter 决定哪些系统调用事件被输出，以及哪些系统调用被注入错误
package filter

import (
	"sort"
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/zqzqsb/systrace/pkg/syscalls"
)

// SyscallSet 是一组系统调用名称
// Negate 为 true 时表示除 names 以外的全部系统调用
type SyscallSet struct {
	names  map[string]bool
	Negate bool
}

/*
	ParseSyscallSet 解析 -e trace= 形式的表达式

	支持的格式：
	  "open,read"       -> 只包含 open 和 read
	  "%file,%process"  -> 按类别展开
	  "!write"          -> 除 write 以外的全部
	  "all"             -> 全部

	未知的系统调用名称或类别返回错误
*/
func ParseSyscallSet(expr string) (*SyscallSet, error) {
	s := &SyscallSet{names: make(map[string]bool)}
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "!") {
		s.Negate = true
		expr = expr[1:]
	}
	for _, item := range strings.Split(expr, ",") {
		item = strings.TrimSpace(item)
		switch {
		case item == "":
			continue
		case item == "all":
			s.Negate = !s.Negate
			s.names = make(map[string]bool)
			return s, nil
		case strings.HasPrefix(item, "%"):
			class, ok := syscalls.ClassNames[item[1:]]
			if !ok {
				return nil, errors.Errorf("unknown syscall class %q", item)
			}
			for _, name := range syscalls.ByClass(class) {
				s.names[name] = true
			}
		default:
			if !syscalls.Exists(item) {
				return nil, errors.Errorf("unknown syscall %q", item)
			}
			s.names[item] = true
		}
	}
	return s, nil
}

// Contains 判断系统调用是否在集合中
func (s *SyscallSet) Contains(name string) bool {
	if s == nil {
		return true
	}
	return s.names[name] != s.Negate
}

// All 判断集合是否包含全部系统调用
func (s *SyscallSet) All() bool {
	return s == nil || (s.Negate && len(s.names) == 0)
}

// Names 返回集合展开后的名称，按字母排序
// 用于生成 seccomp 过滤器中需要跟踪的系统调用列表
func (s *SyscallSet) Names() []string {
	var ret []string
	if s == nil || s.Negate {
		for _, name := range syscalls.Names() {
			if s.Contains(name) {
				ret = append(ret, name)
			}
		}
		return ret
	}
	for name := range s.names {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}
