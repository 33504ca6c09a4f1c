package filter

import (
	"os"
	"path/filepath"
	"strconv"
)

/*
PathSet 以分层集合存储路径规则：
	"/etc/passwd"   只匹配该文件
	"/usr/lib/"     匹配该目录下的所有文件
	"/usr/bin/*"    只匹配该目录的直接子项
	"/"             匹配所有路径
*/
type PathSet struct {
	Set        map[string]bool
	SystemRoot bool // 是否匹配根目录下的全部路径
}

// NewPathSet 创建新的路径集
func NewPathSet() *PathSet {
	return &PathSet{Set: make(map[string]bool)}
}

/*
	Contains 判断路径是否命中规则

	例如 Add("/usr/bin/*") 之后检查 "/usr/bin/gcc"：
	1. level=0: 检查 "/usr/bin/gcc"
	2. level=1: 检查 "/usr/bin"，"/usr/bin/*" 命中
	3. 否则继续检查 "/usr/"、"/"
*/
func (s *PathSet) Contains(name string) bool {
	if s.Set[name] {
		return true
	}
	if s.SystemRoot {
		return true
	}
	level := 0
	for level = 0; name != "" && name != "/"; level++ {
		if level == 1 && s.Set[name+"/*"] {
			return true
		}
		if s.Set[name+"/"] {
			return true
		}
		name = dirname(name)
	}
	if level == 1 && s.Set["/*"] {
		return true
	}
	return false
}

// Add 添加单个规则
func (s *PathSet) Add(name string) {
	if name == "/" {
		s.SystemRoot = true
		return
	}
	s.Set[name] = true
}

// AddRange 添加多个规则，相对路径按 workPath 解析为目录规则
func (s *PathSet) AddRange(names []string, workPath string) {
	for _, n := range names {
		if filepath.IsAbs(n) {
			s.Add(n)
		} else {
			s.Set[filepath.Join(workPath, n)+"/"] = true
		}
	}
}

// Empty 表示没有任何规则
func (s *PathSet) Empty() bool {
	return !s.SystemRoot && len(s.Set) == 0
}

// dirname 返回去掉结尾 "/" 之后的父目录
func dirname(path string) string {
	if path == "" {
		return ""
	}
	if path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return filepath.Dir(path)
}

// procLink 读取 /proc/<pid>/ 下的符号链接，如 cwd、fd/3
func procLink(pid int, name string) string {
	fileName := "/proc/self/" + name
	if pid > 0 {
		fileName = "/proc/" + strconv.Itoa(pid) + "/" + name
	}
	s, err := os.Readlink(fileName)
	if err != nil {
		return ""
	}
	return s
}

// absPath 计算相对于进程的绝对路径
// dirfd 为 AT_FDCWD 时相对于工作目录，否则相对于 dirfd 指向的目录
func absPath(pid int, dirfd int, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	base := "cwd"
	if dirfd >= 0 {
		base = "fd/" + strconv.Itoa(dirfd)
	}
	dir := procLink(pid, base)
	if dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}
