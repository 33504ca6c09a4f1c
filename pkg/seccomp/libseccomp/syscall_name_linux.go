package libseccomp

import (
	"fmt"
	"sort"

	"github.com/elastic/go-seccomp-bpf/arch"
)

// info 是当前系统架构（如 x86_64, aarch64）的系统调用表
// info.SyscallNumbers 是系统调用号到名称的映射
var info, errInfo = arch.GetInfo("")

// numbers 是名称到系统调用号的反向映射，在首次使用前构建
var numbers = func() map[string]int {
	m := make(map[string]int)
	if errInfo != nil {
		return m
	}
	for no, name := range info.SyscallNumbers {
		m[name] = no
	}
	return m
}()

// ArchName 返回当前架构在 go-seccomp-bpf 中的名称
func ArchName() string {
	if errInfo != nil {
		return "unknown"
	}
	return info.Name
}

// ToSyscallName 将系统调用号转换为对应的系统调用名称
//
// 错误情况：
//   - 获取系统架构信息失败
//   - 系统调用号在当前架构上不存在
func ToSyscallName(sysno int) (string, error) {
	if errInfo != nil {
		return "", errInfo
	}
	n, ok := info.SyscallNumbers[sysno]
	if !ok {
		return "", fmt.Errorf("syscall no %d does not exist", sysno)
	}
	return n, nil
}

// ToSyscallNo 将系统调用名称转换为当前架构上的系统调用号
func ToSyscallNo(name string) (int, error) {
	if errInfo != nil {
		return 0, errInfo
	}
	no, ok := numbers[name]
	if !ok {
		return 0, fmt.Errorf("syscall %q does not exist on %s", name, info.Name)
	}
	return no, nil
}

// SyscallNames 返回当前架构上全部系统调用名称，按字母排序
func SyscallNames() []string {
	names := make([]string, 0, len(numbers))
	for name := range numbers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
