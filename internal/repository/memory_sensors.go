package repository

import (
	"context"
	"sync"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"
)

// MemorySensorRepository 内存版注册中心（本地运行 / 测试用，DB 未启用时）
type MemorySensorRepository struct {
	mu      sync.RWMutex
	sensors map[string]domain.Sensor // sensorID -> Sensor
}

func NewMemorySensorRepository(sensors ...domain.Sensor) *MemorySensorRepository {
	r := &MemorySensorRepository{sensors: map[string]domain.Sensor{}}
	for _, s := range sensors {
		r.sensors[s.ID] = s
	}
	return r
}

var _ SensorRegistry = (*MemorySensorRepository)(nil)

// Put 新增或替换传感器（模拟外部注册中心的变更）
func (r *MemorySensorRepository) Put(s domain.Sensor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensors[s.ID] = s
}

func (r *MemorySensorRepository) GetSensorByID(_ context.Context, sensorID string) (*domain.Sensor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sensors[sensorID]
	if !ok {
		return nil, domain.NotFoundf("sensor %s", sensorID)
	}
	if s.AssetID != nil {
		id := *s.AssetID
		s.AssetID = &id
	}
	return &s, nil
}

// MemoryAssignmentRepository 内存版分配关系
type MemoryAssignmentRepository struct {
	mu        sync.RWMutex
	companies map[string]string          // assetID -> companyID
	assigned  map[string]map[string]bool // assetID -> userID set
}

func NewMemoryAssignmentRepository() *MemoryAssignmentRepository {
	return &MemoryAssignmentRepository{
		companies: map[string]string{},
		assigned:  map[string]map[string]bool{},
	}
}

var _ AssignmentRepository = (*MemoryAssignmentRepository)(nil)

// PutAsset 登记设备及其所属公司
func (r *MemoryAssignmentRepository) PutAsset(assetID, companyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.companies[assetID] = companyID
}

// Assign 将设备分配给用户
func (r *MemoryAssignmentRepository) Assign(assetID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.assigned[assetID] == nil {
		r.assigned[assetID] = map[string]bool{}
	}
	r.assigned[assetID][userID] = true
}

// Unassign 解除分配
func (r *MemoryAssignmentRepository) Unassign(assetID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assigned[assetID], userID)
}

func (r *MemoryAssignmentRepository) IsAssignedTo(_ context.Context, assetID, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.assigned[assetID][userID], nil
}

func (r *MemoryAssignmentRepository) GetAssetCompany(_ context.Context, assetID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.companies[assetID]
	if !ok {
		return "", domain.NotFoundf("asset %s", assetID)
	}
	return c, nil
}
