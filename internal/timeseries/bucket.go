package timeseries

import (
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"
)

// Truncate 将时间戳截断到所在窗口的起点（UTC 日历对齐，DAY 为 UTC 零点）
// RAW 原样返回
func Truncate(ts time.Time, g domain.Granularity) time.Time {
	t := ts.UTC()
	y, m, d := t.Date()
	switch g {
	case domain.GranularitySecond:
		return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	case domain.GranularityMinute:
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, time.UTC)
	case domain.GranularityHour:
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, time.UTC)
	case domain.GranularityDay:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// bucket 一个窗口内的读数（按时间升序）
type bucket struct {
	start   time.Time
	samples []sample
}

// groupByWindow 按窗口分组，输入须已按时间升序
func groupByWindow(readings []domain.Reading, g domain.Granularity) []bucket {
	var buckets []bucket
	for _, r := range readings {
		start := Truncate(r.Timestamp, g)
		if n := len(buckets); n == 0 || !buckets[n-1].start.Equal(start) {
			buckets = append(buckets, bucket{start: start})
		}
		last := &buckets[len(buckets)-1]
		last.samples = append(last.samples, newSample(r))
	}
	return buckets
}
