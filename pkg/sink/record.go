package sink

import (
	"time"

	"github.com/zqzqsb/systrace/pkg/syscalls"
	"github.com/zqzqsb/systrace/ptracer"
)

// Record 是事件的扁平化表示，用于 JSON 输出和数据库存储
type Record struct {
	Seq       uint64    `json:"seq,omitempty"`
	Time      time.Time `json:"time"`
	Kind      string    `json:"kind"`
	Pid       int       `json:"pid"`
	Tgid      int       `json:"tgid,omitempty"`
	Direction string    `json:"dir,omitempty"`
	Nr        int       `json:"nr,omitempty"`
	Name      string    `json:"name,omitempty"`
	Args      []string  `json:"args,omitempty"`
	Raw       []uint64  `json:"raw,omitempty"`
	Ret       *int64    `json:"ret,omitempty"`
	Errno     string    `json:"errno,omitempty"`
	Injected  bool      `json:"injected,omitempty"`
	// Duration 是入口到出口的纳秒数
	Duration int64 `json:"duration_ns,omitempty"`

	Signal     string `json:"signal,omitempty"`
	ExitStatus *int   `json:"exit_status,omitempty"`
	Superseded bool   `json:"superseded,omitempty"`
	Child      int    `json:"child,omitempty"`
	OldPid     int    `json:"old_pid,omitempty"`
}

// NewRecord 把事件转换为 Record
func NewRecord(ev *ptracer.Event) Record {
	r := Record{
		Time: ev.Time,
		Kind: ev.Kind.String(),
		Pid:  ev.Pid,
		Tgid: ev.Tgid,
	}
	switch ev.Kind {
	case ptracer.EventSyscallStop:
		s := ev.Syscall
		r.Seq = s.Seq
		r.Time = s.Time
		r.Direction = s.Direction.String()
		r.Nr = s.Nr
		r.Name = s.Name
		r.Raw = append([]uint64(nil), s.Args[:len(s.Decoded)]...)
		r.Args = make([]string, len(s.Decoded))
		for i, a := range s.Decoded {
			r.Args[i] = a.String()
		}
		if s.Direction == ptracer.DirExit {
			ret := s.Ret
			r.Ret = &ret
			r.Duration = s.Duration.Nanoseconds()
			r.Injected = s.Injected
			if s.IsError {
				r.Errno = syscalls.ErrnoName(s.Errno)
			}
		}
	case ptracer.EventSignalDelivery, ptracer.EventGroupStop:
		r.Signal = syscalls.FormatSignal(ev.Signal)
	case ptracer.EventProcessExited:
		switch {
		case ev.Superseded:
			r.Superseded = true
		case ev.Signaled:
			r.Signal = syscalls.FormatSignal(ev.Signal)
		default:
			st := ev.ExitStatus
			r.ExitStatus = &st
		}
	case ptracer.EventChildSpawned:
		r.Child = ev.Child
	case ptracer.EventExec:
		r.OldPid = ev.OldPid
	}
	return r
}
