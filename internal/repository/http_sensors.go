package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// registryResponse 注册中心响应（统一 Result 包装）
type registryResponse struct {
	Code    int            `json:"code"`
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Result  *domain.Sensor `json:"result"`
}

// HTTPSensorRegistry 通过注册中心 HTTP API 查询传感器
// GET {baseURL}/api/v1/sensors/{id}
type HTTPSensorRegistry struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPSensorRegistry 创建注册中心客户端，仅对网络错误和 5xx 重试（GET 幂等）
func NewHTTPSensorRegistry(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPSensorRegistry {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Accept", "application/json")

	return &HTTPSensorRegistry{httpClient: client, logger: logger}
}

var _ SensorRegistry = (*HTTPSensorRegistry)(nil)

func (c *HTTPSensorRegistry) GetSensorByID(ctx context.Context, sensorID string) (*domain.Sensor, error) {
	var body registryResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/api/v1/sensors/" + url.PathEscape(sensorID))
	if err != nil {
		return nil, fmt.Errorf("failed to call sensor registry: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, domain.NotFoundf("sensor %s", sensorID)
	case resp.IsError():
		c.logger.Error("Sensor registry returned error",
			zap.String("sensor_id", sensorID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, fmt.Errorf("sensor registry error: status %d", resp.StatusCode())
	}

	if body.Result == nil {
		return nil, domain.NotFoundf("sensor %s", sensorID)
	}
	return body.Result, nil
}
