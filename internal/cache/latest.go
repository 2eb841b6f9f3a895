package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"
)

// DefaultLatestTTL 最新读数缓存有效期
const DefaultLatestTTL = 24 * time.Hour

const latestLockStripes = 64

// LatestKey sensor:last:{sensorId}
func LatestKey(sensorID string) string {
	return "sensor:last:" + sensorID
}

// LatestStore 每个传感器最新一条读数的热缓存
// 由上报入口在持久化成功后同步写入，作为 Latest 查询的快速路径读取
type LatestStore struct {
	kv  KV
	ttl time.Duration
	// 同一传感器的读-比较-写串行执行
	locks [latestLockStripes]sync.Mutex
}

func NewLatestStore(kv KV, ttl time.Duration) *LatestStore {
	if ttl <= 0 {
		ttl = DefaultLatestTTL
	}
	return &LatestStore{kv: kv, ttl: ttl}
}

func (s *LatestStore) lock(sensorID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sensorID))
	return &s.locks[h.Sum32()%latestLockStripes]
}

// Put 写入已持久化的读数；乱序到达的旧读数不覆盖较新的缓存
// 写入失败时删除缓存，避免 Latest 继续返回旧值
func (s *LatestStore) Put(ctx context.Context, reading *domain.Reading) error {
	mu := s.lock(reading.SensorID)
	mu.Lock()
	defer mu.Unlock()

	key := LatestKey(reading.SensorID)
	if cur, err := s.Get(ctx, reading.SensorID); err == nil && cur.Timestamp.After(reading.Timestamp) {
		return nil
	}

	payload, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal latest reading: %w", err)
	}
	if err := s.kv.Set(ctx, key, string(payload), s.ttl); err != nil {
		if delErr := s.kv.Del(ctx, key); delErr != nil {
			return fmt.Errorf("failed to cache latest reading: %w (invalidate: %v)", err, delErr)
		}
		return fmt.Errorf("failed to cache latest reading: %w", err)
	}
	return nil
}

// Get 读取最新读数，未缓存时返回 ErrMiss
func (s *LatestStore) Get(ctx context.Context, sensorID string) (*domain.Reading, error) {
	raw, err := s.kv.Get(ctx, LatestKey(sensorID))
	if err != nil {
		return nil, err
	}
	var r domain.Reading
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("corrupt latest reading for %s: %w", sensorID, err)
	}
	r.Timestamp = r.Timestamp.UTC()
	return &r, nil
}

// IsMiss 是否为缓存未命中
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}
