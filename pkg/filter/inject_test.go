package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/zqzqsb/systrace/ptracer"
)

func TestParseRule(t *testing.T) {
	tests := []struct {
		expr    string
		kill    bool
		errno   unix.Errno
		when    int
		wantErr bool
	}{
		{expr: "openat:error=ENOENT", errno: unix.ENOENT},
		{expr: "unlinkat:error=EPERM:when=3", errno: unix.EPERM, when: 3},
		{expr: "%network:kill", kill: true},
		{expr: "read:error=13", errno: unix.EACCES},
		{expr: "openat", wantErr: true},
		{expr: "openat:error=EWHAT", wantErr: true},
		{expr: "openat:error=ENOENT:when=0", wantErr: true},
		{expr: "openat:when=2", wantErr: true},
		{expr: "openat:retval=1", wantErr: true},
		{expr: "nosuchcall:kill", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			r, err := ParseRule(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kill, r.Kill)
			assert.Equal(t, tt.errno, r.Errno)
			assert.Equal(t, tt.when, r.When)
		})
	}
}

func TestInjectorCheck(t *testing.T) {
	j, err := ParseInjector([]string{"openat:error=EACCES", "write:kill"})
	require.NoError(t, err)

	a := j.Check("openat")
	assert.Equal(t, ptracer.TraceBan, a.Action())
	assert.Equal(t, unix.EACCES, a.Errno())
	assert.Equal(t, ptracer.TraceKill, j.Check("write"))
	assert.Equal(t, ptracer.TraceAllow, j.Check("read"))
}

func TestInjectorWhen(t *testing.T) {
	j, err := ParseInjector([]string{"openat,close:error=EIO:when=3"})
	require.NoError(t, err)

	// 每个系统调用单独计数
	assert.Equal(t, ptracer.TraceAllow, j.Check("openat"))
	assert.Equal(t, ptracer.TraceAllow, j.Check("close"))
	assert.Equal(t, ptracer.TraceAllow, j.Check("openat"))
	assert.Equal(t, ptracer.TraceBan.WithErrno(unix.EIO), j.Check("openat"))
	assert.Equal(t, ptracer.TraceBan.WithErrno(unix.EIO), j.Check("openat"))
	assert.Equal(t, ptracer.TraceAllow, j.Check("close"))
	assert.Equal(t, ptracer.TraceBan.WithErrno(unix.EIO), j.Check("close"))
}

func TestInjectorEmpty(t *testing.T) {
	var j *Injector
	assert.True(t, j.Empty())
	assert.Equal(t, ptracer.TraceAllow, j.Check("openat"))

	j, err := ParseInjector(nil)
	require.NoError(t, err)
	assert.True(t, j.Empty())
}

func TestInjectorNames(t *testing.T) {
	j, err := ParseInjector([]string{"openat,close:error=EIO", "close,read:kill"})
	require.NoError(t, err)
	assert.Equal(t, []string{"close", "openat", "read"}, j.Names())

	var empty *Injector
	assert.Nil(t, empty.Names())
}
