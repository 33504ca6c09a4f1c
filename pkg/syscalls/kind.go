// Package syscalls 描述系统调用参数的形状。
//
// 解码器不为每个系统调用写分支代码，而是查表：系统调用名称映射到
// Descriptor，Descriptor 按位置列出每个参数的 ArgKind。ArgKind 决定
// 参数是否需要读取被跟踪进程的内存、在入口还是出口读取，以及如何格式化。
package syscalls

// ArgKind 是单个系统调用参数的解释方式
type ArgKind int

// ArgKind 常量
const (
	ArgInt          ArgKind = iota // 有符号整数
	ArgUint                        // 无符号整数
	ArgHex                         // 十六进制输出的整数
	ArgOct                         // 八进制输出（文件权限）
	ArgFD                          // 文件描述符
	ArgDirFD                       // 目录文件描述符，可能是 AT_FDCWD
	ArgPath                        // 以 NUL 结尾的路径
	ArgString                      // 以 NUL 结尾的字符串
	ArgWriteBuf                    // 由进程写出的缓冲区，长度为下一个参数
	ArgReadBuf                     // 由内核填充的缓冲区，长度为返回值，出口时读取
	ArgStringVector                // char *const[]，如 argv/envp
	ArgOpenFlags                   // open(2) 标志
	ArgCloneFlags                  // clone(2) 标志，低字节为退出信号
	ArgMmapProt                    // mmap(2) 保护位
	ArgMmapFlags                   // mmap(2) 标志
	ArgAccessMode                  // access(2) 模式
	ArgSignal                      // 信号编号
	ArgPtr                         // 不解引用的指针
	ArgPipeFDs                     // int[2]，出口时读取
)

var argKindString = []string{
	"int", "uint", "hex", "oct", "fd", "dirfd", "path", "string",
	"wbuf", "rbuf", "strv", "open_flags", "clone_flags", "mmap_prot",
	"mmap_flags", "access_mode", "signal", "ptr", "pipefds",
}

func (k ArgKind) String() string {
	if k >= 0 && int(k) < len(argKindString) {
		return argKindString[k]
	}
	return "unknown"
}

// NeedsMemory 表示该参数需要读取被跟踪进程的内存
func (k ArgKind) NeedsMemory() bool {
	switch k {
	case ArgPath, ArgString, ArgWriteBuf, ArgReadBuf, ArgStringVector, ArgPipeFDs:
		return true
	}
	return false
}

// OnExit 表示该参数的内容在系统调用返回后才有意义
func (k ArgKind) OnExit() bool {
	return k == ArgReadBuf || k == ArgPipeFDs
}

// RetKind 是返回值的解释方式
type RetKind int

// RetKind 常量
const (
	RetInt  RetKind = iota // 整数
	RetFD                  // 新的文件描述符
	RetHex                 // 地址，如 mmap/brk
	RetNone                // 不返回，如 exit_group
)

// Class 是系统调用所属的类别，用于 %file 这类过滤表达式
type Class uint8

// Class 位
const (
	ClassFile Class = 1 << iota
	ClassDesc
	ClassProcess
	ClassNetwork
	ClassSignal
	ClassMemory
	ClassCreds
)

// ClassNames 是过滤表达式中可用的类别名
var ClassNames = map[string]Class{
	"file":    ClassFile,
	"desc":    ClassDesc,
	"process": ClassProcess,
	"network": ClassNetwork,
	"net":     ClassNetwork,
	"signal":  ClassSignal,
	"memory":  ClassMemory,
	"creds":   ClassCreds,
}

// Descriptor 描述一个系统调用的参数形状
type Descriptor struct {
	Name  string
	Args  []ArgKind
	Ret   RetKind
	Class Class
	// Known 为 false 表示表中没有该系统调用，参数按六个十六进制数输出
	Known bool
}
