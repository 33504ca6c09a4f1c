// Package libseccomp 使用 go-seccomp-bpf 构建 seccomp 过滤器，
// 并提供当前架构的系统调用号与名称的映射
package libseccomp

import (
	"syscall"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"

	"github.com/zqzqsb/systrace/pkg/seccomp"
)

// Builder 用于构建 seccomp 过滤器
type Builder struct {
	Allow   []string // 允许执行的系统调用列表
	Trace   []string // 需要通知跟踪器的系统调用列表
	Default Action   // 默认动作（当系统调用不在上述列表中时）
}

// TraceOnly 返回只跟踪给定系统调用、其余全部放行的 Builder
// 用于 seccomp-bpf 加速模式：被跟踪进程只在感兴趣的系统调用上停止
func TraceOnly(names []string) Builder {
	return Builder{
		Trace:   names,
		Default: ActionAllow,
	}
}

// Build 构建过滤器
//
// 过程：
//  1. 创建过滤策略
//  2. 编译为 BPF 程序
//  3. 转换为内核可读格式
func (b *Builder) Build() (seccomp.Filter, error) {
	policy := libseccomp.Policy{
		DefaultAction: ToSeccompAction(b.Default),
	}
	if len(b.Allow) > 0 {
		policy.Syscalls = append(policy.Syscalls, libseccomp.SyscallGroup{
			Action: libseccomp.ActionAllow,
			Names:  b.Allow,
		})
	}
	if len(b.Trace) > 0 {
		policy.Syscalls = append(policy.Syscalls, libseccomp.SyscallGroup{
			Action: libseccomp.ActionTrace,
			Names:  b.Trace,
		})
	}

	program, err := policy.Assemble()
	if err != nil {
		return nil, err
	}
	return ExportBPF(program)
}

// ExportBPF 将 BPF 指令序列汇编为内核使用的 SockFilter 格式
func ExportBPF(filter []bpf.Instruction) (seccomp.Filter, error) {
	raw, err := bpf.Assemble(filter)
	if err != nil {
		return nil, err
	}
	return sockFilter(raw), nil
}

func sockFilter(raw []bpf.RawInstruction) []syscall.SockFilter {
	filter := make([]syscall.SockFilter, 0, len(raw))
	for _, instruction := range raw {
		filter = append(filter, syscall.SockFilter{
			Code: instruction.Op,
			Jt:   instruction.Jt,
			Jf:   instruction.Jf,
			K:    instruction.K,
		})
	}
	return filter
}
