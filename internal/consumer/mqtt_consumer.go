package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/metrics"

	mqttcommon "github.com/OOO-MoMo/Monitoring-System-sub000/common/mqtt"
	"go.uber.org/zap"
)

// DefaultIngestTopic 上报主题，格式 sensors/{sensorId}/readings
const DefaultIngestTopic = "sensors/+/readings"

// subscriber common/mqtt.Client 的订阅能力
type subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// RetryQueue 入库失败的上报转存处（StreamConsumer.Requeue）
type RetryQueue interface {
	Requeue(ctx context.Context, req domain.IngestRequest) error
}

// MQTTConsumer MQTT 上报消费者
// 回调返回后 paho 即确认 QoS1 消息，入库失败的上报转存到 retry 队列；
// 没有 retry 队列或转存失败时计入 telemetry_readings_dropped_total{reason="mqtt_lost"}
type MQTTConsumer struct {
	client        subscriber
	topic         string
	qos           byte
	handleTimeout time.Duration
	handler       Handler
	retry         RetryQueue
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewMQTTConsumer 创建 MQTT 消费者；retry、m 可为 nil
func NewMQTTConsumer(
	client subscriber,
	topic string,
	qos byte,
	handleTimeout time.Duration,
	handler Handler,
	retry RetryQueue,
	m *metrics.Metrics,
	logger *zap.Logger,
) *MQTTConsumer {
	if topic == "" {
		topic = DefaultIngestTopic
	}
	if handleTimeout <= 0 {
		handleTimeout = 5 * time.Second
	}
	return &MQTTConsumer{
		client:        client,
		topic:         topic,
		qos:           qos,
		handleTimeout: handleTimeout,
		handler:       handler,
		retry:         retry,
		metrics:       m,
		logger:        logger,
	}
}

// Start 订阅上报主题并阻塞到 ctx 取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if err := c.client.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to ingest topic: %w", err)
	}

	c.logger.Info("MQTT consumer started", zap.String("topic", c.topic))

	<-ctx.Done()
	return nil
}

// Stop 取消订阅
func (c *MQTTConsumer) Stop(_ context.Context) error {
	if err := c.client.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.String("topic", c.topic), zap.Error(err))
	}
	c.logger.Info("MQTT consumer stopped")
	return nil
}

// handleMessage 处理一条上报；返回的错误由 MQTT 客户端记录
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	var req domain.IngestRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.metrics.ReadingDropped("malformed")
		return fmt.Errorf("failed to unmarshal message on %s: %w", topic, err)
	}
	// 消息体未带 sensorId 时取主题中的 ID
	if strings.TrimSpace(req.SensorID) == "" {
		req.SensorID = sensorIDFromTopic(topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.handleTimeout)
	defer cancel()

	err := c.handler.Handle(ctx, req)
	if err == nil {
		return nil
	}
	if permanent(err) {
		c.logger.Warn("Dropping rejected reading",
			zap.String("topic", topic),
			zap.String("sensor_id", req.SensorID),
			zap.Error(err),
		)
		return nil
	}
	return c.requeue(req, err)
}

func (c *MQTTConsumer) requeue(req domain.IngestRequest, cause error) error {
	if c.retry == nil {
		c.metrics.ReadingDropped("mqtt_lost")
		return fmt.Errorf("failed to ingest reading for sensor %s: %w", req.SensorID, cause)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.handleTimeout)
	defer cancel()

	if err := c.retry.Requeue(ctx, req); err != nil {
		c.metrics.ReadingDropped("mqtt_lost")
		return fmt.Errorf("failed to ingest reading for sensor %s (%v), requeue failed: %w", req.SensorID, cause, err)
	}
	c.logger.Warn("Reading requeued after ingest failure",
		zap.String("sensor_id", req.SensorID),
		zap.Error(cause),
	)
	return nil
}

// sensorIDFromTopic 主题格式: sensors/{sensorId}/readings
func sensorIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}
