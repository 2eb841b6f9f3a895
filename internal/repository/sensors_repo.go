package repository

import (
	"context"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"
)

// SensorRegistry 传感器注册中心（只读）
// 未找到时返回包装 domain.ErrNotFound 的错误
type SensorRegistry interface {
	GetSensorByID(ctx context.Context, sensorID string) (*domain.Sensor, error)
}

// AssignmentRepository 设备（technic）与用户的分配关系（只读）
type AssignmentRepository interface {
	// IsAssignedTo 设备当前是否分配给该用户
	IsAssignedTo(ctx context.Context, assetID, userID string) (bool, error)
	// GetAssetCompany 设备所属公司，未找到返回 ErrNotFound
	GetAssetCompany(ctx context.Context, assetID string) (string, error)
}
