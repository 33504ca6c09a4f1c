package sink

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zqzqsb/systrace/ptracer"
)

// SyscallStat 是一个系统调用的统计
type SyscallStat struct {
	Name   string
	Calls  int
	Errors int
	Time   time.Duration
}

/*
Summary 统计每个系统调用的调用次数、失败次数和耗时
Close 时按耗时降序输出统计表
*/
type Summary struct {
	mu    sync.Mutex
	w     io.Writer
	stats map[string]*SyscallStat
}

// NewSummary 创建在 Close 时输出到 w 的 Summary
func NewSummary(w io.Writer) *Summary {
	return &Summary{w: w, stats: make(map[string]*SyscallStat)}
}

// Emit 只统计系统调用出口
func (s *Summary) Emit(ev *ptracer.Event) error {
	if ev.Kind != ptracer.EventSyscallStop || ev.Syscall.Direction != ptracer.DirExit {
		return nil
	}
	sc := ev.Syscall
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[sc.Name]
	if !ok {
		st = &SyscallStat{Name: sc.Name}
		s.stats[sc.Name] = st
	}
	st.Calls++
	st.Time += sc.Duration
	if sc.IsError {
		st.Errors++
	}
	return nil
}

// Stats 返回按耗时降序、名称升序排列的统计
func (s *Summary) Stats() []SyscallStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]SyscallStat, 0, len(s.stats))
	for _, st := range s.stats {
		ret = append(ret, *st)
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].Time != ret[j].Time {
			return ret[i].Time > ret[j].Time
		}
		return ret[i].Name < ret[j].Name
	})
	return ret
}

// WriteTo 输出统计表
func (s *Summary) WriteTo(w io.Writer) (int64, error) {
	stats := s.Stats()
	var total SyscallStat
	for _, st := range stats {
		total.Calls += st.Calls
		total.Errors += st.Errors
		total.Time += st.Time
	}

	var b strings.Builder
	sep := "------ ----------- ----------- --------- --------- ----------------\n"
	fmt.Fprintf(&b, "%6s %11s %11s %9s %9s %s\n", "% time", "seconds", "usecs/call", "calls", "errors", "syscall")
	b.WriteString(sep)
	for _, st := range stats {
		writeStatLine(&b, st, total.Time)
	}
	b.WriteString(sep)
	total.Name = "total"
	writeStatLine(&b, total, total.Time)

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func writeStatLine(b *strings.Builder, st SyscallStat, total time.Duration) {
	pct := 0.0
	if total > 0 {
		pct = 100 * float64(st.Time) / float64(total)
	}
	perCall := int64(0)
	if st.Calls > 0 {
		perCall = st.Time.Microseconds() / int64(st.Calls)
	}
	errs := ""
	if st.Errors > 0 {
		errs = fmt.Sprint(st.Errors)
	}
	fmt.Fprintf(b, "%6.2f %11.6f %11d %9d %9s %s\n", pct, st.Time.Seconds(), perCall, st.Calls, errs, st.Name)
}

// Close 输出统计表
func (s *Summary) Close() error {
	_, err := s.WriteTo(s.w)
	return err
}
