package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	commoncfg "github.com/OOO-MoMo/Monitoring-System-sub000/common/config"
)

// 上报来源
const (
	IngestSourceMQTT   = "mqtt"
	IngestSourceStream = "stream"
	IngestSourceHTTP   = "http" // 仅 HTTP 接口，不启动消费者
)

// 存储 / 注册中心后端
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendHTTP     = "http"
)

// Config 遥测服务配置
type Config struct {
	Database commoncfg.DatabaseConfig
	Redis    commoncfg.RedisConfig
	MQTT     commoncfg.MQTTConfig

	HTTP struct {
		Addr string
	}

	Telemetry struct {
		WarningMarginFraction float64       // 告警边距比例，[0, 0.5)
		IngestSource          string        // mqtt | stream | http
		IngestTopic           string        // MQTT 上报主题
		StoreBackend          string        // postgres | memory
		RegistryBackend       string        // postgres | http | memory
		RegistryURL           string        // REGISTRY_BACKEND=http 时必填
		RegistryTimeout       time.Duration // HTTP 注册中心请求超时
		HandleTimeout         time.Duration // 单条上报处理超时
		LatestTTL             time.Duration // sensor:last:{id} 过期时间
		Fanout                struct {
			Shards         int
			QueueSize      int
			PublishTimeout time.Duration
		}
		Stream struct {
			Name      string
			Group     string
			Consumer  string
			BatchSize int64
			Block     time.Duration
		}
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（环境变量 + 默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	// 默认值，DB_* 环境变量覆盖
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "telemetry"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 25
	cfg.Database.MaxIdle = 5
	cfg.Database.ConnMaxLifetime = 30 * time.Minute
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "telemetry-ingest"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	t := &cfg.Telemetry
	var err error
	if t.WarningMarginFraction, err = getEnvFloat("WARNING_MARGIN_FRACTION", 0.1); err != nil {
		return nil, err
	}
	if math.IsNaN(t.WarningMarginFraction) || t.WarningMarginFraction < 0 || t.WarningMarginFraction >= 0.5 {
		return nil, fmt.Errorf("WARNING_MARGIN_FRACTION must be in [0, 0.5), got %v", t.WarningMarginFraction)
	}

	t.IngestSource = getEnv("INGEST_SOURCE", IngestSourceMQTT)
	switch t.IngestSource {
	case IngestSourceMQTT, IngestSourceStream, IngestSourceHTTP:
	default:
		return nil, fmt.Errorf("unknown INGEST_SOURCE %q", t.IngestSource)
	}
	t.IngestTopic = getEnv("INGEST_TOPIC", "sensors/+/readings")

	t.StoreBackend = getEnv("STORE_BACKEND", BackendPostgres)
	switch t.StoreBackend {
	case BackendPostgres, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", t.StoreBackend)
	}

	t.RegistryBackend = getEnv("REGISTRY_BACKEND", BackendPostgres)
	t.RegistryURL = getEnv("REGISTRY_URL", "")
	switch t.RegistryBackend {
	case BackendPostgres, BackendMemory:
	case BackendHTTP:
		if t.RegistryURL == "" {
			return nil, fmt.Errorf("REGISTRY_URL is required when REGISTRY_BACKEND=http")
		}
	default:
		return nil, fmt.Errorf("unknown REGISTRY_BACKEND %q", t.RegistryBackend)
	}

	if t.RegistryTimeout, err = getEnvDuration("REGISTRY_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}
	if t.HandleTimeout, err = getEnvDuration("INGEST_HANDLE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if t.LatestTTL, err = getEnvDuration("LATEST_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	if t.Fanout.Shards, err = getEnvInt("FANOUT_SHARDS", 8); err != nil {
		return nil, err
	}
	if t.Fanout.QueueSize, err = getEnvInt("FANOUT_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if t.Fanout.PublishTimeout, err = getEnvDuration("FANOUT_PUBLISH_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}

	t.Stream.Name = getEnv("INGEST_STREAM", "telemetry:ingest:stream")
	t.Stream.Group = getEnv("INGEST_STREAM_GROUP", "telemetry-ingest")
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "telemetry-ingest-1"
	}
	t.Stream.Consumer = getEnv("INGEST_STREAM_CONSUMER", hostname)
	batch, err := getEnvInt("INGEST_STREAM_BATCH_SIZE", 100)
	if err != nil {
		return nil, err
	}
	t.Stream.BatchSize = int64(batch)
	if t.Stream.Block, err = getEnvDuration("INGEST_STREAM_BLOCK", time.Second); err != nil {
		return nil, err
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
