package sink

import (
	"encoding/json"
	"io"
	"sync"

	"gitlab.com/tozd/go/errors"

	"github.com/zqzqsb/systrace/ptracer"
)

// JSON 每个事件输出一行 JSON
type JSON struct {
	mu  sync.Mutex
	enc *json.Encoder
	c   io.Closer
}

// NewJSON 创建输出到 w 的 JSON，w 实现 io.Closer 时在 Close 时关闭
func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w), c: closerOf(w)}
}

// Emit 输出一个事件
func (j *JSON) Emit(ev *ptracer.Event) error {
	r := NewRecord(ev)
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(&r); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Close 关闭底层输出
func (j *JSON) Close() error {
	if j.c == nil {
		return nil
	}
	return j.c.Close()
}
