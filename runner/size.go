package runner

import (
	"fmt"
	"strconv"
	"strings"
)

// Size 存储字节数，例如字符串截断长度或内存读取块大小
// 最大大小受64位限制
type Size uint64

// String 实现 stringer 接口用于打印
func (s Size) String() string {
	t := uint64(s)
	switch {
	case t < 1<<10:
		return fmt.Sprintf("%d B", t)
	case t < 1<<20:
		return fmt.Sprintf("%.1f KiB", float64(t)/float64(1<<10))
	case t < 1<<30:
		return fmt.Sprintf("%.1f MiB", float64(t)/float64(1<<20))
	default:
		return fmt.Sprintf("%.1f GiB", float64(t)/float64(1<<30))
	}
}

/*
	Set 从字符串解析大小值，可以直接作为命令行 flag 使用

	支持的格式：
	  "256"   -> 256 字节
	  "4k"    -> 4096 字节
	  "1MiB"  -> 1048576 字节
	  "2gb"   -> 2147483648 字节
*/
func (s *Size) Set(str string) error {
	str = strings.TrimSpace(str)
	str = strings.TrimSuffix(strings.TrimSuffix(str, "b"), "B")
	str = strings.TrimSuffix(str, "i")
	if str == "" {
		return fmt.Errorf("empty size")
	}

	factor := 0
	switch str[len(str)-1] {
	case 'k', 'K':
		factor = 10
		str = str[:len(str)-1]
	case 'm', 'M':
		factor = 20
		str = str[:len(str)-1]
	case 'g', 'G':
		factor = 30
		str = str[:len(str)-1]
	}

	t, err := strconv.ParseUint(strings.TrimSpace(str), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", str, err)
	}
	*s = Size(t << factor)
	return nil
}

// Type 返回 flag 中显示的类型名
func (s *Size) Type() string {
	return "size"
}

// UnmarshalText 使 Size 可以直接出现在配置文件中
func (s *Size) UnmarshalText(b []byte) error {
	return s.Set(string(b))
}

// MarshalText 以字节数输出
func (s Size) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(s), 10)), nil
}

// Byte 返回字节大小
func (s Size) Byte() uint64 {
	return uint64(s)
}

// KiB 返回 KiB 大小
func (s Size) KiB() uint64 {
	return uint64(s) >> 10
}

// MiB 返回 MiB 大小
func (s Size) MiB() uint64 {
	return uint64(s) >> 20
}
