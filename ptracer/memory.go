package ptracer

import (
	"encoding/binary"
	"os"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/sys/unix"
)

// DefaultChunkSize 是单次读取被跟踪进程内存的默认上限
const DefaultChunkSize = 4096

var pageSize = 4 << 10

func init() {
	pageSize = os.Getpagesize()
}

// MemoryReader 读取被跟踪进程的内存
// 优先使用 process_vm_readv；内核不支持或不允许时改用 PTRACE_PEEKDATA，该决定只影响本实例
type MemoryReader struct {
	ptrace Ptrace
	useVM  bool
	// ChunkSize 是单次系统调用读取的最大字节数，读取不会跨越页边界
	ChunkSize int
	// Debug 在回退到 PTRACE_PEEKDATA 时被调用
	Debug func(v ...interface{})
}

// NewMemoryReader 创建一个使用 p 读取内存的 MemoryReader
func NewMemoryReader(p Ptrace) *MemoryReader {
	return &MemoryReader{ptrace: p, useVM: true, ChunkSize: DefaultChunkSize}
}

// UseVM 表示当前是否使用 process_vm_readv
func (m *MemoryReader) UseVM() bool {
	return m.useVM
}

/*
	ReadMemory 从 pid 的 addr 处读取 n 个字节

实现细节：
 1. 按页边界和 ChunkSize 分块读取
 2. 每块先尝试 process_vm_readv，ENOSYS/EPERM 时回退到 PTRACE_PEEKDATA

返回值：
  - []byte: 成功时长度恰好为 n；部分读取时为已读取的数据
  - error: 读取不完整时为 *ReadError，不会返回被静默截断的数据
*/
func (m *MemoryReader) ReadMemory(pid int, addr uintptr, n int) ([]byte, error) {
	if n <= 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	got, err := m.read(pid, addr, buf)
	if got == n {
		return buf, nil
	}
	if got == 0 {
		return nil, m.readError(pid, addr, n, got, err)
	}
	return buf[:got], m.readError(pid, addr, n, got, err)
}

/*
	ReadString 读取以 NUL 结尾的字符串

参数：
  - pid: 目标线程
  - addr: 字符串地址
  - max: 最多返回的字节数

返回值：
  - string: 不含结尾 NUL 的字符串
  - bool: 字符串长度超过 max 时为 true，此时只返回前 max 个字节
  - error: 在遇到 NUL 之前读取失败时为 *ReadError，已读取的部分同时返回
*/
func (m *MemoryReader) ReadString(pid int, addr uintptr, max int) (string, bool, error) {
	var (
		out   []byte
		buf   = make([]byte, m.chunkSize())
		cur   = addr
		limit = max + 1 // 多读一个字节用于判断是否截断
	)
	for len(out) < limit {
		next := m.chunkAt(cur, limit-len(out))
		n, err := m.readChunk(pid, cur, buf[:next])
		if i := indexNull(buf[:n]); i >= 0 {
			out = append(out, buf[:i]...)
			break
		}
		out = append(out, buf[:n]...)
		if err != nil {
			if len(out) > max {
				return string(out[:max]), true, nil
			}
			return string(out), false, m.readError(pid, addr, limit, len(out), err)
		}
		cur += uintptr(n)
	}
	if len(out) > max {
		return string(out[:max]), true, nil
	}
	return string(out), false, nil
}

/*
	ReadStringVector 读取以 NULL 指针结尾的字符串指针数组（如 argv/envp）

返回值：
  - []string: 读取到的字符串，单个字符串最长 maxLen 字节
  - bool: 数组元素多于 maxItems 或任一字符串被截断时为 true
  - error: 指针数组本身无法读取时为 *ReadError
*/
func (m *MemoryReader) ReadStringVector(pid int, addr uintptr, maxItems, maxLen int) ([]string, bool, error) {
	const word = 8
	// 多读一个指针用于判断是否截断
	raw, err := m.ReadMemory(pid, addr, (maxItems+1)*word)
	if err != nil && len(raw) < word {
		return nil, false, err
	}
	var (
		strs      = []string{}
		truncated bool
		ended     bool
	)
	for i := 0; i+word <= len(raw); i += word {
		ptr := binary.NativeEndian.Uint64(raw[i:])
		if ptr == 0 {
			ended = true
			break
		}
		if len(strs) == maxItems {
			truncated = true
			ended = true
			break
		}
		s, t, serr := m.ReadString(pid, uintptr(ptr), maxLen)
		if serr != nil && s == "" {
			return strs, true, serr
		}
		truncated = truncated || t || serr != nil
		strs = append(strs, s)
	}
	if !ended && err != nil {
		return strs, true, err
	}
	return strs, truncated, nil
}

// read 分块读取直到 buf 填满或出错，返回已读取的字节数
func (m *MemoryReader) read(pid int, addr uintptr, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		cur := addr + uintptr(total)
		next := m.chunkAt(cur, len(buf)-total)
		n, err := m.readChunk(pid, cur, buf[total:total+next])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// chunkAt 计算从 addr 开始的一次读取长度：不超过 rest 和 ChunkSize，也不跨越页边界
func (m *MemoryReader) chunkAt(addr uintptr, rest int) int {
	next := pageSize - int(addr%uintptr(pageSize))
	if cs := m.chunkSize(); next > cs {
		next = cs
	}
	if rest < next {
		next = rest
	}
	return next
}

func (m *MemoryReader) chunkSize() int {
	if m.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return m.ChunkSize
}

func (m *MemoryReader) readChunk(pid int, addr uintptr, buf []byte) (int, error) {
	if m.useVM {
		n, err := m.ptrace.ReadVM(pid, addr, buf)
		switch {
		case err == nil && n > 0:
			return n, nil
		case err == nil:
			return 0, errors.WithStack(unix.EFAULT)
		case errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EPERM):
			m.useVM = false
			if m.Debug != nil {
				m.Debug("process_vm_readv unavailable, falling back to PTRACE_PEEKDATA:", err)
			}
		default:
			return n, err
		}
	}
	n, err := m.ptrace.PeekData(pid, addr, buf)
	if err == nil && n == 0 {
		return 0, errors.WithStack(unix.EFAULT)
	}
	return n, err
}

func (m *MemoryReader) readError(pid int, addr uintptr, want, got int, err error) error {
	kind := ReadPartial
	switch {
	case errors.Is(err, unix.ESRCH):
		kind = ReadTraceeGone
	case got == 0:
		kind = ReadInaccessible
	}
	return &ReadError{Pid: pid, Addr: addr, Want: want, Got: got, Kind: kind, Err: err}
}

// indexNull 返回第一个 NUL 字节的位置，不存在时返回 -1
func indexNull(buff []byte) int {
	for i, v := range buff {
		if v == 0 {
			return i
		}
	}
	return -1
}
