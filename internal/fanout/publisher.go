package fanout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"

	"github.com/go-redis/redis/v8"
)

// Publisher 实时推送端
type Publisher interface {
	Name() string
	Publish(ctx context.Context, msg domain.LiveMessage) error
}

// Topic 传感器实时通道 sensor/{id}/data
func Topic(sensorID string) string {
	return "sensor/" + sensorID + "/data"
}

// mqttPublishClient common/mqtt.Client 的发布能力
type mqttPublishClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTPublisher 发布到 MQTT 主题 sensor/{id}/data（不保留）
type MQTTPublisher struct {
	client mqttPublishClient
	qos    byte
}

func NewMQTTPublisher(client mqttPublishClient, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, qos: qos}
}

func (p *MQTTPublisher) Name() string { return "mqtt" }

func (p *MQTTPublisher) Publish(_ context.Context, msg domain.LiveMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal live message: %w", err)
	}
	return p.client.Publish(Topic(msg.SensorID), p.qos, false, payload)
}

// RedisPublisher 发布到 Redis Pub/Sub 频道 sensor/{id}/data
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Publish(ctx context.Context, msg domain.LiveMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal live message: %w", err)
	}
	if err := p.client.Publish(ctx, Topic(msg.SensorID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", Topic(msg.SensorID), err)
	}
	return nil
}
