// Package rlimit 提供了通过 prlimit 系统调用设置被跟踪进程资源限制的数据结构
package rlimit

import (
	"fmt"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// RLimits 定义了在 exec 之前应用到被跟踪进程的资源限制，零值表示不限制
type RLimits struct {
	CPU          uint64 `yaml:"cpu"`           // CPU 时间限制（秒）
	CPUHard      uint64 `yaml:"cpu_hard"`      // 硬性 CPU 时间限制（秒）
	Data         uint64 `yaml:"data"`          // 数据段大小限制（字节）
	FileSize     uint64 `yaml:"file_size"`     // 文件大小限制（字节）
	Stack        uint64 `yaml:"stack"`         // 栈大小限制（字节）
	AddressSpace uint64 `yaml:"address_space"` // 地址空间限制（字节）
	OpenFile     uint64 `yaml:"open_file"`     // 打开文件数量限制
	Processes    uint64 `yaml:"processes"`     // 同一用户的进程数量限制
	DisableCore  bool   `yaml:"disable_core"`  // 是否禁用 core dump
}

// RLimit 是 Linux prlimit 定义的单个资源限制
type RLimit struct {
	// Res 是资源类型（例如 syscall.RLIMIT_CPU）
	Res int
	// Rlim 是应用到该资源的限制
	Rlim syscall.Rlimit
}

func getRlimit(cur, max uint64) syscall.Rlimit {
	return syscall.Rlimit{Cur: cur, Max: max}
}

// PrepareRLimit 将配置转换为子进程中逐个应用的 RLimit 列表
// 列表顺序固定，子进程设置失败时以序号报告
func (r *RLimits) PrepareRLimit() []RLimit {
	var ret []RLimit
	add := func(res int, cur, max uint64) {
		ret = append(ret, RLimit{Res: res, Rlim: getRlimit(cur, max)})
	}

	if r.CPU > 0 {
		cpuHard := r.CPUHard
		if cpuHard < r.CPU {
			cpuHard = r.CPU
		}
		add(syscall.RLIMIT_CPU, r.CPU, cpuHard)
	}
	if r.Data > 0 {
		add(syscall.RLIMIT_DATA, r.Data, r.Data)
	}
	if r.FileSize > 0 {
		add(syscall.RLIMIT_FSIZE, r.FileSize, r.FileSize)
	}
	if r.Stack > 0 {
		add(syscall.RLIMIT_STACK, r.Stack, r.Stack)
	}
	if r.AddressSpace > 0 {
		add(syscall.RLIMIT_AS, r.AddressSpace, r.AddressSpace)
	}
	if r.OpenFile > 0 {
		add(syscall.RLIMIT_NOFILE, r.OpenFile, r.OpenFile)
	}
	if r.Processes > 0 {
		add(unix.RLIMIT_NPROC, r.Processes, r.Processes)
	}
	if r.DisableCore {
		add(syscall.RLIMIT_CORE, 0, 0)
	}
	return ret
}

// String 返回 RLimit 的字符串表示，例如 CPU[1 s:2 s]、Stack[8388608]
func (r RLimit) String() string {
	var t string
	switch r.Res {
	case syscall.RLIMIT_CPU:
		return fmt.Sprintf("CPU[%d s:%d s]", r.Rlim.Cur, r.Rlim.Max)
	case syscall.RLIMIT_NOFILE:
		return fmt.Sprintf("OpenFile[%d:%d]", r.Rlim.Cur, r.Rlim.Max)
	case unix.RLIMIT_NPROC:
		return fmt.Sprintf("Processes[%d:%d]", r.Rlim.Cur, r.Rlim.Max)
	case syscall.RLIMIT_DATA:
		t = "Data"
	case syscall.RLIMIT_FSIZE:
		t = "File"
	case syscall.RLIMIT_STACK:
		t = "Stack"
	case syscall.RLIMIT_AS:
		t = "AddressSpace"
	case syscall.RLIMIT_CORE:
		t = "Core"
	default:
		t = fmt.Sprintf("Resource(%d)", r.Res)
	}
	return fmt.Sprintf("%s[%d]", t, r.Rlim.Cur)
}

func (r *RLimits) String() string {
	var s []string
	for _, l := range r.PrepareRLimit() {
		s = append(s, l.String())
	}
	return fmt.Sprintf("RLimits{%s}", strings.Join(s, ", "))
}
