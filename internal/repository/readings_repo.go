package repository

import (
	"context"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"
)

// ReadingRepository 读数时序存储
// 只追加：没有更新和删除路径
type ReadingRepository interface {
	// Append 追加一条读数，返回后即已持久化
	Append(ctx context.Context, reading *domain.Reading) error

	// Range 查询 [from, to]（两端包含）内的读数，按时间升序
	// 同一时间戳按写入顺序
	Range(ctx context.Context, sensorID string, from, to time.Time) ([]domain.Reading, error)

	// Latest 最近一条读数，无数据时返回 ErrNotFound
	Latest(ctx context.Context, sensorID string) (*domain.Reading, error)
}
