package timeseries

import (
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/classifier"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"
)

// sample 读数及其解析结果
type sample struct {
	reading domain.Reading
	value   float64
	numeric bool // 可解析且状态不是 UNDEFINED
}

func newSample(r domain.Reading) sample {
	s := sample{reading: r}
	if r.Status == domain.StatusUndefined {
		return s
	}
	if v, err := classifier.ParseDecimal(r.Value); err == nil {
		s.value = v
		s.numeric = true
	}
	return s
}

func (s sample) valuePtr() *float64 {
	if !s.numeric {
		return nil
	}
	v := s.value
	return &v
}

// reducer 窗口归约，每种 AggregationType 一个实现
// 只返回 Status 的是 FIRST/LAST
type reducer interface {
	reduce(samples []sample) (*float64, *domain.Status)
}

type (
	avgReducer   struct{}
	minReducer   struct{}
	maxReducer   struct{}
	sumReducer   struct{}
	countReducer struct{}
	firstReducer struct{}
	lastReducer  struct{}
)

func reducerFor(a domain.AggregationType) (reducer, error) {
	switch a {
	case domain.AggregationAvg:
		return avgReducer{}, nil
	case domain.AggregationMin:
		return minReducer{}, nil
	case domain.AggregationMax:
		return maxReducer{}, nil
	case domain.AggregationSum:
		return sumReducer{}, nil
	case domain.AggregationCount:
		return countReducer{}, nil
	case domain.AggregationFirst:
		return firstReducer{}, nil
	case domain.AggregationLast:
		return lastReducer{}, nil
	default:
		return nil, domain.BadRequestf("unknown aggregation type %q", a)
	}
}

// numericValues 窗口内可参与数值计算的值
func numericValues(samples []sample) []float64 {
	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.numeric {
			out = append(out, s.value)
		}
	}
	return out
}

func (avgReducer) reduce(samples []sample) (*float64, *domain.Status) {
	vals := numericValues(samples)
	if len(vals) == 0 {
		return nil, nil
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	avg := sum / float64(len(vals))
	return &avg, nil
}

func (minReducer) reduce(samples []sample) (*float64, *domain.Status) {
	vals := numericValues(samples)
	if len(vals) == 0 {
		return nil, nil
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return &m, nil
}

func (maxReducer) reduce(samples []sample) (*float64, *domain.Status) {
	vals := numericValues(samples)
	if len(vals) == 0 {
		return nil, nil
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return &m, nil
}

func (sumReducer) reduce(samples []sample) (*float64, *domain.Status) {
	vals := numericValues(samples)
	if len(vals) == 0 {
		return nil, nil
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return &sum, nil
}

// COUNT 统计窗口内全部读数，包括 UNDEFINED
func (countReducer) reduce(samples []sample) (*float64, *domain.Status) {
	n := float64(len(samples))
	return &n, nil
}

func (firstReducer) reduce(samples []sample) (*float64, *domain.Status) {
	if len(samples) == 0 {
		return nil, nil
	}
	s := samples[0]
	status := s.reading.Status
	return s.valuePtr(), &status
}

func (lastReducer) reduce(samples []sample) (*float64, *domain.Status) {
	if len(samples) == 0 {
		return nil, nil
	}
	s := samples[len(samples)-1]
	status := s.reading.Status
	return s.valuePtr(), &status
}
