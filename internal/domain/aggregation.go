package domain

import (
	"strings"
	"time"
)

// Granularity 聚合窗口粒度
type Granularity string

const (
	GranularityRaw    Granularity = "RAW"
	GranularitySecond Granularity = "SECOND"
	GranularityMinute Granularity = "MINUTE"
	GranularityHour   Granularity = "HOUR"
	GranularityDay    Granularity = "DAY"
)

// ParseGranularity 解析查询参数，空值视为 RAW，未知值返回 ErrBadRequest
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToUpper(strings.TrimSpace(s))); g {
	case "":
		return GranularityRaw, nil
	case GranularityRaw, GranularitySecond, GranularityMinute, GranularityHour, GranularityDay:
		return g, nil
	default:
		return "", BadRequestf("unknown granularity %q", s)
	}
}

// AggregationType 窗口内归约方式
type AggregationType string

const (
	AggregationAvg   AggregationType = "AVG"
	AggregationMin   AggregationType = "MIN"
	AggregationMax   AggregationType = "MAX"
	AggregationSum   AggregationType = "SUM"
	AggregationCount AggregationType = "COUNT"
	AggregationFirst AggregationType = "FIRST"
	AggregationLast  AggregationType = "LAST"
)

// ParseAggregationType 解析查询参数，空值默认 AVG，未知值返回 ErrBadRequest
func ParseAggregationType(s string) (AggregationType, error) {
	switch a := AggregationType(strings.ToUpper(strings.TrimSpace(s))); a {
	case "":
		return AggregationAvg, nil
	case AggregationAvg, AggregationMin, AggregationMax, AggregationSum,
		AggregationCount, AggregationFirst, AggregationLast:
		return a, nil
	default:
		return "", BadRequestf("unknown aggregation type %q", s)
	}
}

// AggregationWindow 聚合窗口结果，不落库
// Status 仅 FIRST/LAST 有值
type AggregationWindow struct {
	Timestamp time.Time `json:"timestamp"` // 窗口起始时间
	Value     *float64  `json:"value"`
	Status    *Status   `json:"status"`
}

// DataPoint 历史查询返回项（原始点或聚合窗口）
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     *float64  `json:"value"`
	Status    *Status   `json:"status"`
}

// HistoryQuery 历史查询参数
type HistoryQuery struct {
	SensorID        string
	From            time.Time
	To              time.Time
	Granularity     Granularity
	AggregationType AggregationType
}

// Summary 区间统计（报表派生读）
type Summary struct {
	SensorID       string     `json:"sensorId"`
	From           time.Time  `json:"from"`
	To             time.Time  `json:"to"`
	Count          int        `json:"count"`
	Min            *float64   `json:"min"`
	Max            *float64   `json:"max"`
	Avg            *float64   `json:"avg"`
	Last           *float64   `json:"last"`
	LastStatus     *Status    `json:"lastStatus"`
	LastTimestamp  *time.Time `json:"lastTimestamp"`
	NormalCount    int        `json:"normalCount"`
	WarningCount   int        `json:"warningCount"`
	CriticalCount  int        `json:"criticalCount"`
	UndefinedCount int        `json:"undefinedCount"`
}
