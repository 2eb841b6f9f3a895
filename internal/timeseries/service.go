package timeseries

import (
	"context"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/cache"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/metrics"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/repository"

	"go.uber.org/zap"
)

// LatestReader 最新读数缓存（可选快速路径）
type LatestReader interface {
	Get(ctx context.Context, sensorID string) (*domain.Reading, error)
}

// Service 时序查询：原始点、窗口聚合、区间统计、最新值
type Service struct {
	readings repository.ReadingRepository
	latest   LatestReader
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewService 创建查询服务；latest、m 可为 nil
func NewService(readings repository.ReadingRepository, latest LatestReader, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		readings: readings,
		latest:   latest,
		metrics:  m,
		logger:   logger,
	}
}

func validateRange(from, to time.Time) error {
	if from.After(to) {
		return domain.BadRequestf("from %s is after to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return nil
}

// QueryRaw 返回 [from, to] 内的原始读数（时间升序）
func (s *Service) QueryRaw(ctx context.Context, sensorID string, from, to time.Time) ([]domain.Reading, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	defer s.metrics.ObserveQuery("raw", time.Now())
	return s.readings.Range(ctx, sensorID, from, to)
}

// QueryAggregated 按窗口聚合；窗口按起始时间升序，空窗口不返回
func (s *Service) QueryAggregated(ctx context.Context, sensorID string, from, to time.Time,
	granularity domain.Granularity, aggregation domain.AggregationType) ([]domain.AggregationWindow, error) {

	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	if granularity == domain.GranularityRaw || granularity == "" {
		return nil, domain.BadRequestf("aggregation requires a granularity")
	}
	red, err := reducerFor(aggregation)
	if err != nil {
		return nil, err
	}

	defer s.metrics.ObserveQuery("aggregated", time.Now())

	readings, err := s.readings.Range(ctx, sensorID, from, to)
	if err != nil {
		return nil, err
	}

	buckets := groupByWindow(readings, granularity)
	windows := make([]domain.AggregationWindow, 0, len(buckets))
	for _, b := range buckets {
		value, status := red.reduce(b.samples)
		windows = append(windows, domain.AggregationWindow{
			Timestamp: b.start,
			Value:     value,
			Status:    status,
		})
	}
	return windows, nil
}

// Query 历史查询：粒度为空或 RAW 时返回原始点（忽略聚合方式），否则按窗口聚合（默认 AVG）
func (s *Service) Query(ctx context.Context, q domain.HistoryQuery) ([]domain.DataPoint, error) {
	if q.Granularity == "" || q.Granularity == domain.GranularityRaw {
		readings, err := s.QueryRaw(ctx, q.SensorID, q.From, q.To)
		if err != nil {
			return nil, err
		}
		points := make([]domain.DataPoint, 0, len(readings))
		for _, r := range readings {
			smp := newSample(r)
			status := r.Status
			points = append(points, domain.DataPoint{
				Timestamp: r.Timestamp,
				Value:     smp.valuePtr(),
				Status:    &status,
			})
		}
		return points, nil
	}

	aggregation := q.AggregationType
	if aggregation == "" {
		aggregation = domain.AggregationAvg
	}
	windows, err := s.QueryAggregated(ctx, q.SensorID, q.From, q.To, q.Granularity, aggregation)
	if err != nil {
		return nil, err
	}
	points := make([]domain.DataPoint, 0, len(windows))
	for _, w := range windows {
		points = append(points, domain.DataPoint(w))
	}
	return points, nil
}

// Summary 区间统计：最小/最大/平均/最新值及各状态计数
func (s *Service) Summary(ctx context.Context, sensorID string, from, to time.Time) (*domain.Summary, error) {
	readings, err := s.QueryRaw(ctx, sensorID, from, to)
	if err != nil {
		return nil, err
	}

	sum := &domain.Summary{SensorID: sensorID, From: from.UTC(), To: to.UTC(), Count: len(readings)}
	samples := make([]sample, 0, len(readings))
	for _, r := range readings {
		samples = append(samples, newSample(r))
		switch r.Status {
		case domain.StatusNormal:
			sum.NormalCount++
		case domain.StatusWarning:
			sum.WarningCount++
		case domain.StatusCritical:
			sum.CriticalCount++
		case domain.StatusUndefined:
			sum.UndefinedCount++
		}
	}

	sum.Min, _ = minReducer{}.reduce(samples)
	sum.Max, _ = maxReducer{}.reduce(samples)
	sum.Avg, _ = avgReducer{}.reduce(samples)
	if len(samples) > 0 {
		last := samples[len(samples)-1]
		status := last.reading.Status
		ts := last.reading.Timestamp
		sum.Last = last.valuePtr()
		sum.LastStatus = &status
		sum.LastTimestamp = &ts
	}
	return sum, nil
}

// Latest 最新读数：先查缓存，未命中或缓存异常时回源存储
func (s *Service) Latest(ctx context.Context, sensorID string) (*domain.Reading, error) {
	if s.latest != nil {
		r, err := s.latest.Get(ctx, sensorID)
		if err == nil {
			s.metrics.LatestCache(true)
			return r, nil
		}
		s.metrics.LatestCache(false)
		if !cache.IsMiss(err) {
			s.logger.Warn("Failed to read latest reading cache",
				zap.String("sensor_id", sensorID),
				zap.Error(err),
			)
		}
	}
	return s.readings.Latest(ctx, sensorID)
}
