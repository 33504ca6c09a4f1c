package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeSet(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Size
		wantErr bool
	}{
		{name: "bytes", in: "256", want: 256},
		{name: "kilo", in: "4k", want: 4096},
		{name: "kilo upper", in: "4K", want: 4096},
		{name: "kib suffix", in: "4KiB", want: 4096},
		{name: "mega with b", in: "1mb", want: 1 << 20},
		{name: "giga", in: "2G", want: 2 << 30},
		{name: "spaces", in: " 32 ", want: 32},
		{name: "empty", in: "", wantErr: true},
		{name: "only unit", in: "k", wantErr: true},
		{name: "garbage", in: "abc", wantErr: true},
		{name: "negative", in: "-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Size
			err := s.Set(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s)
		})
	}
}

func TestSizeString(t *testing.T) {
	assert.Equal(t, "512 B", Size(512).String())
	assert.Equal(t, "4.0 KiB", Size(4096).String())
	assert.Equal(t, "1.5 MiB", Size(3<<19).String())
	assert.Equal(t, "2.0 GiB", Size(2<<30).String())
}

func TestSizeText(t *testing.T) {
	var s Size
	require.NoError(t, s.UnmarshalText([]byte("8k")))
	assert.Equal(t, uint64(8), s.KiB())

	b, err := s.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "8192", string(b))
}

func TestResultString(t *testing.T) {
	r := Result{Status: StatusSignalled, ExitStatus: 9, Syscalls: 3, Processes: 1}
	assert.Contains(t, r.String(), "Signalled(9)")

	r = Result{Status: StatusRunnerError, Error: "boom"}
	assert.Contains(t, r.String(), "RunnerFailed(boom)")

	assert.Equal(t, "被信号终止", StatusSignalled.Error())
	assert.Equal(t, "无效", Status(100).String())
}
