package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/cache"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/config"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/consumer"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/fanout"
	httpapi "github.com/OOO-MoMo/Monitoring-System-sub000/internal/http"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/ingest"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/metrics"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/repository"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/scope"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/timeseries"

	"github.com/OOO-MoMo/Monitoring-System-sub000/common/database"
	mqttcommon "github.com/OOO-MoMo/Monitoring-System-sub000/common/mqtt"
	rediscommon "github.com/OOO-MoMo/Monitoring-System-sub000/common/redis"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Dependencies 外部连接；为 nil 的连接对应组件不启用
type Dependencies struct {
	DB    *sql.DB
	Redis *redis.Client
	MQTT  *mqttcommon.Client
}

// Connect 按配置建立外部连接
// 存储或注册中心使用 postgres 时连接数据库；Redis 与 MQTT 始终连接
func Connect(cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	t := cfg.Telemetry
	if t.StoreBackend == config.BackendPostgres || t.RegistryBackend == config.BackendPostgres {
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		deps.DB = db
	}

	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	deps.Redis = redisClient

	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, logger)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}
	deps.MQTT = mqttClient

	return deps, nil
}

// Close 关闭所有连接
func (d *Dependencies) Close() {
	if d.MQTT != nil {
		d.MQTT.Disconnect()
	}
	if d.Redis != nil {
		_ = rediscommon.Close(d.Redis)
	}
	if d.DB != nil {
		_ = database.Close(d.DB)
	}
}

// runner 上报消费者
type runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// TelemetryService 遥测服务：上报消费 → 分类入库 → 实时推送，以及 HTTP 查询
type TelemetryService struct {
	config  *config.Config
	logger  *zap.Logger
	deps    *Dependencies
	metrics *metrics.Metrics

	sensors    repository.SensorRegistry
	readings   repository.ReadingRepository
	hub        *fanout.Hub
	dispatcher *fanout.Dispatcher
	gateway    *ingest.Gateway
	history    *timeseries.Service
	router     *httpapi.Router
	consumers  []runner
	server     *Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTelemetryService 按配置组装服务
func NewTelemetryService(cfg *config.Config, deps *Dependencies, logger *zap.Logger) (*TelemetryService, error) {
	if deps == nil {
		deps = &Dependencies{}
	}
	t := cfg.Telemetry
	m := metrics.New()

	s := &TelemetryService{
		config:  cfg,
		logger:  logger,
		deps:    deps,
		metrics: m,
		hub:     fanout.NewHub(),
	}

	// 传感器注册中心
	switch t.RegistryBackend {
	case config.BackendPostgres:
		if deps.DB == nil {
			return nil, fmt.Errorf("registry backend postgres requires a database connection")
		}
		s.sensors = repository.NewPostgresSensorRepository(deps.DB, logger)
	case config.BackendHTTP:
		s.sensors = repository.NewHTTPSensorRegistry(t.RegistryURL, t.RegistryTimeout, logger)
	default:
		s.sensors = repository.NewMemorySensorRepository()
	}

	// 时序存储
	switch t.StoreBackend {
	case config.BackendPostgres:
		if deps.DB == nil {
			return nil, fmt.Errorf("store backend postgres requires a database connection")
		}
		s.readings = repository.NewPostgresReadingRepository(deps.DB, logger)
	default:
		s.readings = repository.NewMemoryReadingRepository()
	}

	var assignments repository.AssignmentRepository
	if deps.DB != nil {
		assignments = repository.NewPostgresAssignmentRepository(deps.DB, logger)
	} else {
		assignments = repository.NewMemoryAssignmentRepository()
	}

	// 最新值缓存由上报入口同步写入；实时推送：进程内 Hub + Redis Pub/Sub + MQTT
	publishers := []fanout.Publisher{s.hub}
	var (
		latestReader timeseries.LatestReader
		latestWriter ingest.LatestWriter
	)
	if deps.Redis != nil {
		latestStore := cache.NewLatestStore(cache.NewRedisKV(deps.Redis), t.LatestTTL)
		latestReader, latestWriter = latestStore, latestStore
		publishers = append(publishers, fanout.NewRedisPublisher(deps.Redis))
	}
	if deps.MQTT != nil {
		publishers = append(publishers, fanout.NewMQTTPublisher(deps.MQTT, 0))
	}
	s.dispatcher = fanout.NewDispatcher(fanout.DispatcherConfig{
		Shards:         t.Fanout.Shards,
		QueueSize:      t.Fanout.QueueSize,
		PublishTimeout: t.Fanout.PublishTimeout,
	}, publishers, m, logger)

	s.gateway = ingest.NewGateway(s.sensors, s.readings, s.dispatcher, latestWriter, t.WarningMarginFraction, m, logger)
	s.history = timeseries.NewService(s.readings, latestReader, m, logger)

	// 上报消费者
	var stream *consumer.StreamConsumer
	if deps.Redis != nil {
		stream = consumer.NewStreamConsumer(consumer.StreamConfig{
			Stream:        t.Stream.Name,
			Group:         t.Stream.Group,
			Consumer:      t.Stream.Consumer,
			BatchSize:     t.Stream.BatchSize,
			Block:         t.Stream.Block,
			HandleTimeout: t.HandleTimeout,
		}, deps.Redis, s.gateway, logger)
	}
	switch t.IngestSource {
	case config.IngestSourceMQTT:
		if deps.MQTT == nil {
			return nil, fmt.Errorf("ingest source mqtt requires an MQTT connection")
		}
		// 入库失败的 MQTT 上报转存到 Stream，由 Stream 消费者重试
		var retry consumer.RetryQueue
		if stream != nil {
			retry = stream
			s.consumers = append(s.consumers, stream)
		} else {
			logger.Warn("No redis connection, MQTT readings that fail to store are dropped")
		}
		s.consumers = append(s.consumers,
			consumer.NewMQTTConsumer(deps.MQTT, t.IngestTopic, cfg.MQTT.QoS, t.HandleTimeout, s.gateway, retry, m, logger))
	case config.IngestSourceStream:
		if stream == nil {
			return nil, fmt.Errorf("ingest source stream requires a redis connection")
		}
		s.consumers = append(s.consumers, stream)
	}

	// HTTP
	s.router = httpapi.NewRouter(logger)
	s.router.RegisterTelemetryRoutes(httpapi.NewTelemetryHandler(
		s.gateway, s.sensors, scope.NewAuthorizer(assignments), s.history, m, logger,
	))
	s.router.RegisterOpsRoutes(httpapi.Health, m.Handler())
	if cfg.HTTP.Addr != "" {
		s.server = NewServer(cfg.HTTP.Addr, s.router, logger)
	}

	return s, nil
}

// Handler HTTP 路由
func (s *TelemetryService) Handler() http.Handler { return s.router }

// Hub 进程内实时订阅
func (s *TelemetryService) Hub() *fanout.Hub { return s.hub }

// Start 启动推送分发器、上报消费者和 HTTP 服务（均在后台运行）
func (s *TelemetryService) Start(ctx context.Context) error {
	s.logger.Info("Starting telemetry service components",
		zap.String("ingest_source", s.config.Telemetry.IngestSource),
		zap.String("store_backend", s.config.Telemetry.StoreBackend),
		zap.String("registry_backend", s.config.Telemetry.RegistryBackend),
	)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// 分发器在 Stop 时排空队列，不随 runCtx 取消
	if err := s.dispatcher.Start(context.WithoutCancel(ctx)); err != nil {
		cancel()
		return fmt.Errorf("failed to start fanout dispatcher: %w", err)
	}

	for _, c := range s.consumers {
		s.wg.Add(1)
		go func(c runner) {
			defer s.wg.Done()
			if err := c.Start(runCtx); err != nil {
				s.logger.Error("Ingest consumer stopped with error", zap.Error(err))
			}
		}(c)
	}

	if s.server != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.server.Start(); err != nil {
				s.logger.Error("HTTP server stopped with error", zap.Error(err))
			}
		}()
	}

	s.logger.Info("Telemetry service started successfully")
	return nil
}

// Stop 依次停止 HTTP、消费者、分发器（排空队列）并关闭连接
func (s *TelemetryService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping telemetry service")

	if s.server != nil {
		if err := s.server.Stop(ctx); err != nil {
			s.logger.Error("Error stopping HTTP server", zap.Error(err))
		}
	}
	for _, c := range s.consumers {
		if err := c.Stop(ctx); err != nil {
			s.logger.Error("Error stopping consumer", zap.Error(err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := s.dispatcher.Stop(timeout); err != nil {
		s.logger.Error("Error stopping fanout dispatcher", zap.Error(err))
	}
	stats := s.dispatcher.Stats()
	s.logger.Info("Fanout dispatcher stopped",
		zap.Int64("submitted", stats.Submitted),
		zap.Int64("published", stats.Published),
		zap.Int64("failed", stats.Failed),
		zap.Int64("dropped", stats.Dropped),
	)

	s.hub.Close()
	s.deps.Close()

	s.logger.Info("Telemetry service stopped")
	return nil
}
