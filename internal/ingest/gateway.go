package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/classifier"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/metrics"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/relvacode/iso8601"
	"go.uber.org/zap"
)

// LiveSink 实时推送入口（fanout.Dispatcher），必须不阻塞
type LiveSink interface {
	Submit(msg domain.LiveMessage) error
}

// LatestWriter 最新读数缓存（cache.LatestStore），持久化成功后同步写入
type LatestWriter interface {
	Put(ctx context.Context, reading *domain.Reading) error
}

// Gateway 上报入口：查传感器 → 分类 → 持久化 → 最新值缓存 → 实时推送
type Gateway struct {
	sensors    repository.SensorRegistry
	readings   repository.ReadingRepository
	live       LiveSink
	latest     LatestWriter
	marginFrac float64
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewGateway 创建上报入口；live、latest、m 可为 nil
func NewGateway(
	sensors repository.SensorRegistry,
	readings repository.ReadingRepository,
	live LiveSink,
	latest LatestWriter,
	warningMarginFraction float64,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Gateway {
	return &Gateway{
		sensors:    sensors,
		readings:   readings,
		live:       live,
		latest:     latest,
		marginFrac: warningMarginFraction,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Handle 处理一条上报请求（MQTT / Stream / HTTP 共用）
// 时间戳为 ISO-8601，无时区按 UTC；为空时取接收时间
func (g *Gateway) Handle(ctx context.Context, req domain.IngestRequest) error {
	sensorID := strings.TrimSpace(req.SensorID)
	if sensorID == "" {
		return domain.BadRequestf("sensorId is required")
	}

	ts := g.now().UTC()
	if raw := strings.TrimSpace(req.Timestamp); raw != "" {
		parsed, err := iso8601.ParseString(raw)
		if err != nil {
			return domain.BadRequestf("invalid timestamp %q: %v", req.Timestamp, err)
		}
		ts = parsed
	}

	if req.TechnicID != nil {
		g.logger.Debug("Ignoring reported technic id, using sensor assignment",
			zap.String("sensor_id", sensorID),
			zap.String("technic_id", *req.TechnicID),
		)
	}

	return g.Ingest(ctx, sensorID, string(req.Value), ts)
}

// Ingest 接收一条读数
//   - 传感器不存在：返回 ErrNotFound
//   - 传感器未激活：不存储不推送，返回 nil
//   - 值无法解析：状态为 UNDEFINED，照常存储
//   - 持久化失败：返回错误，不推送
//   - 缓存与推送问题不影响返回值
func (g *Gateway) Ingest(ctx context.Context, sensorID, rawValue string, ts time.Time) error {
	sensor, err := g.sensors.GetSensorByID(ctx, sensorID)
	if err != nil {
		return fmt.Errorf("failed to resolve sensor %s: %w", sensorID, err)
	}

	if !sensor.IsActive {
		g.metrics.ReadingDropped("inactive")
		g.logger.Debug("Dropping reading for inactive sensor", zap.String("sensor_id", sensorID))
		return nil
	}

	reading := &domain.Reading{
		ID:        uuid.NewString(),
		SensorID:  sensor.ID,
		AssetID:   sensor.CurrentAssetID(),
		Value:     rawValue,
		Timestamp: ts.UTC(),
		Status:    g.classify(sensor, rawValue),
	}

	if err := g.readings.Append(ctx, reading); err != nil {
		g.metrics.ReadingDropped("store_error")
		return fmt.Errorf("failed to store reading for sensor %s: %w", sensorID, err)
	}
	g.metrics.ReadingIngested(string(reading.Status))

	g.cacheLatest(ctx, reading)
	g.dispatch(reading, sensor)
	return nil
}

func (g *Gateway) classify(sensor *domain.Sensor, rawValue string) domain.Status {
	rng, err := classifier.ParseRange(sensor.MinValue, sensor.MaxValue)
	if err != nil {
		g.logger.Warn("Active sensor has invalid calibrated range",
			zap.String("sensor_id", sensor.ID),
			zap.String("min_value", sensor.MinValue),
			zap.String("max_value", sensor.MaxValue),
			zap.Error(err),
		)
		return domain.StatusUndefined
	}
	return classifier.Evaluate(rawValue, rng, g.marginFrac)
}

func (g *Gateway) cacheLatest(ctx context.Context, reading *domain.Reading) {
	if g.latest == nil {
		return
	}
	if err := g.latest.Put(ctx, reading); err != nil {
		g.logger.Warn("Failed to update latest reading cache",
			zap.String("sensor_id", reading.SensorID),
			zap.String("reading_id", reading.ID),
			zap.Error(err),
		)
	}
}

func (g *Gateway) dispatch(reading *domain.Reading, sensor *domain.Sensor) {
	if g.live == nil {
		return
	}
	if err := g.live.Submit(domain.NewLiveMessage(reading, sensor)); err != nil {
		g.logger.Warn("Live message not dispatched",
			zap.String("sensor_id", reading.SensorID),
			zap.String("reading_id", reading.ID),
			zap.Error(err),
		)
	}
}
