package syscalls

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zqzqsb/systrace/pkg/seccomp/libseccomp"
)

// Lookup 返回系统调用号在当前架构上的参数形状
// 未知的系统调用号命名为 syscall_<nr>，参数按六个十六进制数处理
func Lookup(nr int) Descriptor {
	name, err := libseccomp.ToSyscallName(nr)
	if err != nil {
		return generic(fmt.Sprintf("syscall_%d", nr))
	}
	return LookupName(name)
}

// LookupName 按名称查找参数形状
func LookupName(name string) Descriptor {
	if d, ok := table[name]; ok {
		return d
	}
	return generic(name)
}

// NumberOf 返回名称在当前架构上的系统调用号
func NumberOf(name string) (int, bool) {
	no, err := libseccomp.ToSyscallNo(name)
	return no, err == nil
}

// Exists 判断名称在当前架构上是否存在
func Exists(name string) bool {
	_, ok := NumberOf(name)
	return ok
}

// Names 返回当前架构上全部系统调用名称，按字母排序
func Names() []string {
	return libseccomp.SyscallNames()
}

// Described 返回表中有参数形状、并且在当前架构上存在的系统调用
func Described() []Descriptor {
	ret := make([]Descriptor, 0, len(table))
	for name, d := range table {
		if Exists(name) {
			ret = append(ret, d)
		}
	}
	sort.Slice(ret, func(a, b int) bool { return ret[a].Name < ret[b].Name })
	return ret
}

// ByClass 返回属于类别 c 且在当前架构上存在的系统调用名称
func ByClass(c Class) []string {
	var names []string
	for name, d := range table {
		if d.Class&c != 0 && Exists(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IsProcessCreation 判断系统调用是否创建新的进程或线程
func IsProcessCreation(name string) bool {
	switch name {
	case "clone", "clone3", "fork", "vfork":
		return true
	}
	return false
}

// IsExec 判断系统调用是否替换进程映像
func IsExec(name string) bool {
	return name == "execve" || name == "execveat"
}

// Signature 返回形如 openat(dirfd, path, open_flags, oct) 的描述
func (d Descriptor) Signature() string {
	if !d.Known {
		return d.Name + "(...)"
	}
	args := make([]string, len(d.Args))
	for i, a := range d.Args {
		args[i] = a.String()
	}
	return d.Name + "(" + strings.Join(args, ", ") + ")"
}

func generic(name string) Descriptor {
	return Descriptor{
		Name: name,
		Args: []ArgKind{ArgHex, ArgHex, ArgHex, ArgHex, ArgHex, ArgHex},
	}
}
