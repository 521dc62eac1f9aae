package model

import (
	"fmt"
	"time"
)

// DateLayout 为配置与命令行中使用的日期格式。
const DateLayout = "2006-01-02"

// DateRange 为按天的闭区间 [Start, End]，每次运行重新计算。
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange 将两端截断到 UTC 零点。
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Midnight(start), End: Midnight(end)}
}

// ParseDate 解析 yyyy-mm-dd。
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// Midnight 保留本地日历日期，返回该日的 UTC 零点。
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Len 返回区间内天数；End 早于 Start 时为 0。
func (r DateRange) Len() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Days 按升序返回区间内每一天。
func (r DateRange) Days() []time.Time {
	out := make([]time.Time, 0, r.Len())
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}
