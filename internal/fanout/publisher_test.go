package fanout

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMQTTClient struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

func (f *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.topic, f.qos, f.retained, f.payload = topic, qos, retained, payload
	return nil
}

func liveMessage() domain.LiveMessage {
	asset := "asset-1"
	return domain.LiveMessage{
		SensorID:     "sensor-1",
		AssetID:      &asset,
		SerialNumber: "SN-1",
		Value:        "12,5",
		Timestamp:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:       domain.StatusWarning,
		SensorType:   "Temperature",
		Unit:         "°C",
	}
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "sensor/abc/data", Topic("abc"))
}

func TestMQTTPublisher_Payload(t *testing.T) {
	client := &fakeMQTTClient{}
	p := NewMQTTPublisher(client, 1)

	require.NoError(t, p.Publish(context.Background(), liveMessage()))
	assert.Equal(t, "sensor/sensor-1/data", client.topic)
	assert.Equal(t, byte(1), client.qos)
	assert.False(t, client.retained)
	assert.JSONEq(t, `{
		"sensorId":"sensor-1","assetId":"asset-1","serialNumber":"SN-1","value":"12,5",
		"timestamp":"2024-03-01T10:00:00Z","status":"WARNING","sensorType":"Temperature","unit":"°C"
	}`, string(client.payload))
}

func TestMQTTPublisher_NullAsset(t *testing.T) {
	client := &fakeMQTTClient{}
	msg := liveMessage()
	msg.AssetID = nil

	require.NoError(t, NewMQTTPublisher(client, 0).Publish(context.Background(), msg))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(client.payload, &decoded))
	v, ok := decoded["assetId"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestRedisPublisher_Publish(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "sensor/sensor-1/data")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, NewRedisPublisher(client).Publish(ctx, liveMessage()))

	select {
	case msg := <-sub.Channel():
		var got domain.LiveMessage
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "12,5", got.Value)
		assert.Equal(t, domain.StatusWarning, got.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("expected message on redis channel")
	}
}
