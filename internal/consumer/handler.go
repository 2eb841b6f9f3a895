package consumer

import (
	"context"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"
)

// Handler 上报处理入口（ingest.Gateway）
type Handler interface {
	Handle(ctx context.Context, req domain.IngestRequest) error
}
