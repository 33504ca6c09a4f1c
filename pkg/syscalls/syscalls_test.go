package syscalls

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestIsError(t *testing.T) {
	tests := []struct {
		name string
		ret  int64
		want bool
	}{
		{name: "zero", ret: 0, want: false},
		{name: "positive", ret: 42, want: false},
		{name: "enoent", ret: -2, want: true},
		{name: "lowest errno", ret: -MaxErrno, want: true},
		{name: "below errno range", ret: -MaxErrno - 1, want: false},
		{name: "high mmap address", ret: -0x1000000, want: false},
		{name: "erestartsys", ret: -512, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsError(tt.ret))
		})
	}
	assert.Equal(t, syscall.ENOENT, Errno(-2))
	assert.Equal(t, syscall.Errno(0), Errno(3))
}

func TestErrnoName(t *testing.T) {
	assert.Equal(t, "ENOENT", ErrnoName(syscall.ENOENT))
	assert.Equal(t, "EPERM", ErrnoName(syscall.EPERM))
	assert.Equal(t, "ERESTARTSYS", ErrnoName(ERESTARTSYS))
	assert.Equal(t, "ERESTART_RESTARTBLOCK", ErrnoName(ERESTART_RESTARTBLOCK))
	assert.Equal(t, "errno4000", ErrnoName(4000))
	assert.Equal(t, "To be restarted", ErrnoDescription(ERESTARTNOINTR))
}

func TestErrnoByName(t *testing.T) {
	e, err := ErrnoByName("EACCES")
	require.NoError(t, err)
	assert.Equal(t, syscall.EACCES, e)

	e, err = ErrnoByName("38")
	require.NoError(t, err)
	assert.Equal(t, syscall.Errno(38), e)

	_, err = ErrnoByName("ENOTANERRNO")
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	no, ok := NumberOf("openat")
	require.True(t, ok)

	d := Lookup(no)
	assert.Equal(t, "openat", d.Name)
	assert.True(t, d.Known)
	assert.Equal(t, []ArgKind{ArgDirFD, ArgPath, ArgOpenFlags, ArgOct}, d.Args)
	assert.Equal(t, RetFD, d.Ret)
	assert.Equal(t, "openat(dirfd, path, open_flags, oct)", d.Signature())

	unknown := Lookup(1 << 20)
	assert.Equal(t, "syscall_1048576", unknown.Name)
	assert.False(t, unknown.Known)
	assert.Len(t, unknown.Args, 6)

	// 当前架构存在、但表中没有参数形状的系统调用
	if Exists("kcmp") {
		d := LookupName("kcmp")
		assert.False(t, d.Known)
		assert.Equal(t, "kcmp", d.Name)
	}
}

func TestTableShapes(t *testing.T) {
	for name, d := range table {
		assert.Equal(t, name, d.Name)
		assert.LessOrEqual(t, len(d.Args), 6, name)
		for i, a := range d.Args {
			// 写缓冲区的长度总在下一个参数
			if a == ArgWriteBuf {
				require.Less(t, i+1, len(d.Args), name)
			}
		}
	}
}

func TestByClass(t *testing.T) {
	process := ByClass(ClassProcess)
	assert.Contains(t, process, "execve")
	assert.Contains(t, process, "exit_group")
	assert.NotContains(t, process, "read")

	file := ByClass(ClassFile)
	assert.Contains(t, file, "openat")
	assert.IsIncreasing(t, file)
}

func TestKindHelpers(t *testing.T) {
	assert.True(t, ArgPath.NeedsMemory())
	assert.False(t, ArgFD.NeedsMemory())
	assert.True(t, ArgReadBuf.OnExit())
	assert.False(t, ArgWriteBuf.OnExit())
	assert.True(t, IsProcessCreation("clone3"))
	assert.True(t, IsExec("execveat"))
	assert.False(t, IsExec("open"))
}

func TestFormatFlags(t *testing.T) {
	tests := []struct {
		name string
		kind ArgKind
		v    uint64
		want string
	}{
		{name: "rdonly", kind: ArgOpenFlags, v: unix.O_RDONLY, want: "O_RDONLY"},
		{name: "rdonly cloexec", kind: ArgOpenFlags, v: unix.O_RDONLY | unix.O_CLOEXEC, want: "O_RDONLY|O_CLOEXEC"},
		{name: "wronly creat trunc", kind: ArgOpenFlags, v: unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC, want: "O_WRONLY|O_CREAT|O_TRUNC"},
		{name: "sync is not dsync", kind: ArgOpenFlags, v: unix.O_RDWR | unix.O_SYNC, want: "O_RDWR|O_SYNC"},
		{name: "prot none", kind: ArgMmapProt, v: 0, want: "PROT_NONE"},
		{name: "prot rw", kind: ArgMmapProt, v: unix.PROT_READ | unix.PROT_WRITE, want: "PROT_READ|PROT_WRITE"},
		{name: "map private anon", kind: ArgMmapFlags, v: unix.MAP_PRIVATE | unix.MAP_ANONYMOUS, want: "MAP_PRIVATE|MAP_ANONYMOUS"},
		{name: "clone fork-like", kind: ArgCloneFlags, v: unix.CLONE_CHILD_CLEARTID | unix.CLONE_CHILD_SETTID | uint64(unix.SIGCHLD), want: "CLONE_CHILD_CLEARTID|CLONE_CHILD_SETTID|SIGCHLD"},
		{name: "clone only signal", kind: ArgCloneFlags, v: uint64(unix.SIGCHLD), want: "SIGCHLD"},
		{name: "access f_ok", kind: ArgAccessMode, v: 0, want: "F_OK"},
		{name: "access rx", kind: ArgAccessMode, v: unix.R_OK | unix.X_OK, want: "R_OK|X_OK"},
		{name: "signal", kind: ArgSignal, v: uint64(unix.SIGTERM), want: "SIGTERM"},
		{name: "unknown bits", kind: ArgMmapProt, v: 0x10000000, want: "0x10000000"},
		{name: "plain int", kind: ArgInt, v: 7, want: "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatFlags(tt.kind, tt.v))
		})
	}
}
