package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"

	"github.com/google/uuid"
)

// MemoryReadingRepository 内存时序存储
// 每个传感器一个按时间排序的切片，乱序到达的读数二分插入
type MemoryReadingRepository struct {
	mu       sync.RWMutex
	readings map[string][]domain.Reading // sensorID -> readings (timestamp ASC)
}

func NewMemoryReadingRepository() *MemoryReadingRepository {
	return &MemoryReadingRepository{readings: map[string][]domain.Reading{}}
}

var _ ReadingRepository = (*MemoryReadingRepository)(nil)

func (r *MemoryReadingRepository) Append(_ context.Context, reading *domain.Reading) error {
	if reading.ID == "" {
		reading.ID = uuid.NewString()
	}
	stored := *reading
	stored.Timestamp = stored.Timestamp.UTC()
	if stored.AssetID != nil {
		id := *stored.AssetID
		stored.AssetID = &id
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	series := r.readings[stored.SensorID]
	// 插入到所有时间戳 <= 新值的元素之后，保持同时间戳的写入顺序
	idx := sort.Search(len(series), func(i int) bool {
		return series[i].Timestamp.After(stored.Timestamp)
	})
	series = append(series, domain.Reading{})
	copy(series[idx+1:], series[idx:])
	series[idx] = stored
	r.readings[stored.SensorID] = series
	return nil
}

func (r *MemoryReadingRepository) Range(_ context.Context, sensorID string, from, to time.Time) ([]domain.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	series := r.readings[sensorID]
	lo := sort.Search(len(series), func(i int) bool {
		return !series[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(series), func(i int) bool {
		return series[i].Timestamp.After(to)
	})
	if lo >= hi {
		return []domain.Reading{}, nil
	}

	out := make([]domain.Reading, hi-lo)
	copy(out, series[lo:hi])
	return out, nil
}

func (r *MemoryReadingRepository) Latest(_ context.Context, sensorID string) (*domain.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	series := r.readings[sensorID]
	if len(series) == 0 {
		return nil, domain.NotFoundf("no readings for sensor %s", sensorID)
	}
	last := series[len(series)-1]
	return &last, nil
}
