package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"

	rediscommon "github.com/OOO-MoMo/Monitoring-System-sub000/common/redis"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultIngestStream 上报 Stream
const DefaultIngestStream = "telemetry:ingest:stream"

// StreamConfig Redis Streams 消费配置
type StreamConfig struct {
	Stream        string
	Group         string
	Consumer      string
	BatchSize     int64
	Block         time.Duration
	HandleTimeout time.Duration
}

// StreamConsumer Redis Streams 上报消费者
// 处理成功、未知传感器、坏数据均 ACK；入库失败的消息保持 pending，
// 下一轮先重读本消费者的 pending 消息再读新消息
type StreamConsumer struct {
	cfg         StreamConfig
	redisClient *redis.Client
	handler     Handler
	logger      *zap.Logger

	// 启动时为 true，先接管上次退出前未 ACK 的消息
	recovering bool
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(cfg StreamConfig, redisClient *redis.Client, handler Handler, logger *zap.Logger) *StreamConsumer {
	if cfg.Stream == "" {
		cfg.Stream = DefaultIngestStream
	}
	if cfg.Group == "" {
		cfg.Group = "telemetry-ingest"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "telemetry-ingest-1"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Block <= 0 {
		cfg.Block = time.Second
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = 5 * time.Second
	}
	return &StreamConsumer{
		cfg:         cfg,
		redisClient: redisClient,
		handler:     handler,
		logger:      logger,
		recovering:  true,
	}
}

// Requeue 把一条上报写回 Stream，由消费者组重新处理
func (c *StreamConsumer) Requeue(ctx context.Context, req domain.IngestRequest) error {
	if _, err := rediscommon.PublishJSONToStream(ctx, c.redisClient, c.cfg.Stream, req); err != nil {
		return fmt.Errorf("failed to requeue reading for sensor %s: %w", req.SensorID, err)
	}
	return nil
}

// Start 创建消费者组并循环消费，直到 ctx 取消
func (c *StreamConsumer) Start(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, c.cfg.Stream, c.cfg.Group); err != nil {
		return err
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", c.cfg.Stream),
		zap.String("consumer_group", c.cfg.Group),
		zap.String("consumer_name", c.cfg.Consumer),
	)

	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := c.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume stream",
				zap.String("stream", c.cfg.Stream),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}
		backoff = time.Second
	}
}

// Stop 消费循环随 Start 的 ctx 取消退出；未 ACK 的消息留在 pending，下次启动时接管
func (c *StreamConsumer) Stop(_ context.Context) error {
	c.logger.Info("Stream consumer stopped", zap.String("stream", c.cfg.Stream))
	return nil
}

// consumeOnce 读取一批消息并逐条处理，返回处理条数
// 有消息因入库失败未 ACK 时返回错误，由 Start 退避后重试
func (c *StreamConsumer) consumeOnce(ctx context.Context) (int, error) {
	messages, err := c.read(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read from stream %s: %w", c.cfg.Stream, err)
	}

	left := 0
	for _, msg := range messages {
		if err := c.processMessage(ctx, msg); err != nil {
			left++
			c.logger.Error("Failed to process message, leaving it pending",
				zap.String("stream", c.cfg.Stream),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			continue
		}
		if err := rediscommon.Ack(ctx, c.redisClient, c.cfg.Stream, c.cfg.Group, msg.ID); err != nil {
			c.logger.Warn("Failed to ack message",
				zap.String("stream", c.cfg.Stream),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}

	if left > 0 {
		c.recovering = true
		return len(messages), fmt.Errorf("%d of %d messages left pending on %s", left, len(messages), c.cfg.Stream)
	}
	return len(messages), nil
}

// read pending 消息清空前不读新消息
func (c *StreamConsumer) read(ctx context.Context) ([]rediscommon.StreamMessage, error) {
	if c.recovering {
		messages, err := rediscommon.ReadPendingFromStream(ctx, c.redisClient, c.cfg.Stream, c.cfg.Group, c.cfg.Consumer, c.cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		if len(messages) > 0 {
			return messages, nil
		}
		c.recovering = false
	}
	return rediscommon.ReadFromStream(ctx, c.redisClient, c.cfg.Stream, c.cfg.Group, c.cfg.Consumer, c.cfg.BatchSize, c.cfg.Block)
}

// processMessage 只对可重试的错误（入库失败、超时等）返回 error
// 坏数据和未知传感器记录后丢弃
func (c *StreamConsumer) processMessage(ctx context.Context, msg rediscommon.StreamMessage) error {
	data, err := msg.Data()
	if err != nil {
		c.logger.Warn("Dropping malformed stream message", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}

	var req domain.IngestRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.logger.Warn("Dropping undecodable ingest request", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}

	handleCtx, cancel := context.WithTimeout(ctx, c.cfg.HandleTimeout)
	defer cancel()

	if err := c.handler.Handle(handleCtx, req); err != nil {
		if permanent(err) {
			c.logger.Warn("Dropping rejected reading",
				zap.String("message_id", msg.ID),
				zap.String("sensor_id", req.SensorID),
				zap.Error(err),
			)
			return nil
		}
		return err
	}
	return nil
}

// permanent 重试也不会成功的错误
func permanent(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrBadRequest)
}
