package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/metrics"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/repository"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/scope"

	"go.uber.org/zap"
)

const maxIngestBodyBytes = 64 << 10

// Ingester 上报入口（ingest.Gateway）
type Ingester interface {
	Handle(ctx context.Context, req domain.IngestRequest) error
}

// HistoryReader 时序查询（timeseries.Service）
type HistoryReader interface {
	Query(ctx context.Context, q domain.HistoryQuery) ([]domain.DataPoint, error)
	Summary(ctx context.Context, sensorID string, from, to time.Time) (*domain.Summary, error)
	Latest(ctx context.Context, sensorID string) (*domain.Reading, error)
}

// TelemetryHandler 读数上报与查询
type TelemetryHandler struct {
	ingester   Ingester
	sensors    repository.SensorRegistry
	authorizer *scope.Authorizer
	history    HistoryReader
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewTelemetryHandler 创建 TelemetryHandler；ingester 为 nil 时上报接口返回 404
func NewTelemetryHandler(
	ingester Ingester,
	sensors repository.SensorRegistry,
	authorizer *scope.Authorizer,
	history HistoryReader,
	m *metrics.Metrics,
	logger *zap.Logger,
) *TelemetryHandler {
	return &TelemetryHandler{
		ingester:   ingester,
		sensors:    sensors,
		authorizer: authorizer,
		history:    history,
		metrics:    m,
		logger:     logger,
	}
}

// IngestReading 上报一条读数
// POST /api/v1/readings  {sensorId, technicId, value, timestamp} → 202
func (h *TelemetryHandler) IngestReading(w http.ResponseWriter, r *http.Request) {
	if h.ingester == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var req domain.IngestRequest
	if err := readBodyJSON(r, maxIngestBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
		return
	}

	if err := h.ingester.Handle(r.Context(), req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// sensorRef 查询路径中的传感器；AssetID / CompanyID 非空时按设备或公司范围授权
//
//	/api/v1/sensors/{sid}/...
//	/api/v1/assets/{assetId}/sensors/{sid}/...
//	/api/v1/companies/{companyId}/sensors/{sid}/...
type sensorRef struct {
	SensorID  string
	AssetID   string
	CompanyID string
}

// authorizedSensor 解析调用方范围并校验传感器访问权限，失败时已写响应
// 传感器不在路径指定的设备或公司下时返回 404
func (h *TelemetryHandler) authorizedSensor(w http.ResponseWriter, r *http.Request, ref sensorRef) bool {
	ctx := r.Context()
	caller := scope.FromRequest(r)

	var err error
	switch {
	case ref.AssetID != "":
		err = h.authorizer.AuthorizeAsset(ctx, caller, ref.AssetID)
	case ref.CompanyID != "":
		err = h.authorizer.AuthorizeCompany(ctx, caller, ref.CompanyID)
	}
	if err != nil {
		writeError(w, h.logger, r, err)
		return false
	}

	sensor, err := h.sensors.GetSensorByID(ctx, ref.SensorID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return false
	}

	switch {
	case ref.AssetID != "":
		if assetID := sensor.CurrentAssetID(); assetID == nil || *assetID != ref.AssetID {
			err = domain.NotFoundf("sensor %s is not mounted on asset %s", ref.SensorID, ref.AssetID)
		}
	case ref.CompanyID != "":
		if sensor.CompanyID != ref.CompanyID {
			err = domain.NotFoundf("sensor %s does not belong to company %s", ref.SensorID, ref.CompanyID)
		}
	default:
		err = h.authorizer.AuthorizeSensor(ctx, caller, sensor)
	}
	if err != nil {
		writeError(w, h.logger, r, err)
		return false
	}
	return true
}

// timeRange 解析必填的 from/to，任一缺失返回 ErrBadRequest
func timeRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

// GetHistory 历史数据
// GET /api/v1/sensors/{id}/data?from=&to=&granularity=&aggregationType=
func (h *TelemetryHandler) GetHistory(w http.ResponseWriter, r *http.Request, ref sensorRef) {
	from, to, err := timeRange(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	granularity, err := domain.ParseGranularity(r.URL.Query().Get("granularity"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	aggregation, err := domain.ParseAggregationType(r.URL.Query().Get("aggregationType"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if !h.authorizedSensor(w, r, ref) {
		return
	}

	points, err := h.history.Query(r.Context(), domain.HistoryQuery{
		SensorID:        ref.SensorID,
		From:            from,
		To:              to,
		Granularity:     granularity,
		AggregationType: aggregation,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if points == nil {
		points = []domain.DataPoint{}
	}
	writeJSON(w, http.StatusOK, Ok(points))
}

// GetSummary 区间统计
// GET /api/v1/sensors/{id}/summary?from=&to=
func (h *TelemetryHandler) GetSummary(w http.ResponseWriter, r *http.Request, ref sensorRef) {
	from, to, err := timeRange(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if !h.authorizedSensor(w, r, ref) {
		return
	}

	summary, err := h.history.Summary(r.Context(), ref.SensorID, from, to)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(summary))
}

// GetLatest 最新读数
// GET /api/v1/sensors/{id}/latest
func (h *TelemetryHandler) GetLatest(w http.ResponseWriter, r *http.Request, ref sensorRef) {
	if !h.authorizedSensor(w, r, ref) {
		return
	}

	reading, err := h.history.Latest(r.Context(), ref.SensorID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(reading))
}

// Health 健康检查
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
}
