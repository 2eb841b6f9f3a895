package fanout

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"
	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/metrics"

	"go.uber.org/zap"
)

var (
	ErrNotStarted     = errors.New("fanout dispatcher not started")
	ErrStopped        = errors.New("fanout dispatcher stopped")
	ErrAlreadyStarted = errors.New("fanout dispatcher already started")
	ErrQueueFull      = errors.New("fanout queue full")
	ErrStopTimeout    = errors.New("timeout waiting for fanout workers to stop")
)

// DispatcherConfig 分发器配置
type DispatcherConfig struct {
	Shards         int           // 分片数（每个分片一个 goroutine）
	QueueSize      int           // 每个分片的队列长度
	PublishTimeout time.Duration // 单次发布超时
}

// Dispatcher 实时推送分发器
// 按传感器ID哈希分片：同一传感器的消息由同一 goroutine 顺序发布，不同传感器并行
// Submit 不阻塞，队列满即丢弃；发布失败只记录，不重试
type Dispatcher struct {
	cfg        DispatcherConfig
	publishers []Publisher
	metrics    *metrics.Metrics
	logger     *zap.Logger

	queues []chan domain.LiveMessage
	wg     sync.WaitGroup
	cancel context.CancelFunc

	lifecycleMu sync.RWMutex
	started     bool
	stopped     bool

	submitted int64
	published int64
	failed    int64
	dropped   int64
}

// Stats 分发统计
type Stats struct {
	Submitted int64
	Published int64
	Failed    int64
	Dropped   int64
}

func NewDispatcher(cfg DispatcherConfig, publishers []Publisher, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	if cfg.Shards <= 0 {
		cfg.Shards = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}

	queues := make([]chan domain.LiveMessage, cfg.Shards)
	for i := range queues {
		queues[i] = make(chan domain.LiveMessage, cfg.QueueSize)
	}

	return &Dispatcher{
		cfg:        cfg,
		publishers: publishers,
		metrics:    m,
		logger:     logger,
		queues:     queues,
	}
}

func (d *Dispatcher) shard(sensorID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sensorID))
	return int(h.Sum32() % uint32(len(d.queues)))
}

// Start 启动分片 worker
func (d *Dispatcher) Start(ctx context.Context) error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	if d.started {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	for i, q := range d.queues {
		d.wg.Add(1)
		go d.worker(runCtx, i, q)
	}
	d.started = true

	d.logger.Info("Fanout dispatcher started",
		zap.Int("shards", d.cfg.Shards),
		zap.Int("queue_size", d.cfg.QueueSize),
		zap.Int("publishers", len(d.publishers)),
	)
	return nil
}

// Submit 提交实时消息，不阻塞调用方
func (d *Dispatcher) Submit(msg domain.LiveMessage) error {
	d.lifecycleMu.RLock()
	defer d.lifecycleMu.RUnlock()

	if !d.started {
		return ErrNotStarted
	}
	if d.stopped {
		return ErrStopped
	}

	select {
	case d.queues[d.shard(msg.SensorID)] <- msg:
		atomic.AddInt64(&d.submitted, 1)
		return nil
	default:
		atomic.AddInt64(&d.dropped, 1)
		d.metrics.FanoutDropped("queue_full")
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int, queue <-chan domain.LiveMessage) {
	defer d.wg.Done()
	for msg := range queue {
		d.publish(ctx, msg)
	}
	d.logger.Debug("Fanout worker exited", zap.Int("shard", id))
}

func (d *Dispatcher) publish(ctx context.Context, msg domain.LiveMessage) {
	for _, p := range d.publishers {
		err := d.publishOne(ctx, p, msg)
		d.metrics.FanoutPublished(p.Name(), err)
		if err != nil {
			atomic.AddInt64(&d.failed, 1)
			d.logger.Warn("Failed to publish live message",
				zap.String("publisher", p.Name()),
				zap.String("sensor_id", msg.SensorID),
				zap.String("topic", Topic(msg.SensorID)),
				zap.Error(err),
			)
			continue
		}
		atomic.AddInt64(&d.published, 1)
	}
}

func (d *Dispatcher) publishOne(ctx context.Context, p Publisher, msg domain.LiveMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panic: %v", r)
		}
	}()
	pubCtx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
	defer cancel()
	return p.Publish(pubCtx, msg)
}

// Stop 停止接收新消息，等待已排队消息发布完成
// 超时后取消未完成的发布
func (d *Dispatcher) Stop(timeout time.Duration) error {
	d.lifecycleMu.Lock()
	if !d.started || d.stopped {
		d.lifecycleMu.Unlock()
		return nil
	}
	d.stopped = true
	for _, q := range d.queues {
		close(q)
	}
	d.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-timer.C:
		d.cancel()
		return ErrStopTimeout
	}
}

// Stats 返回分发统计
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Submitted: atomic.LoadInt64(&d.submitted),
		Published: atomic.LoadInt64(&d.published),
		Failed:    atomic.LoadInt64(&d.failed),
		Dropped:   atomic.LoadInt64(&d.dropped),
	}
}
