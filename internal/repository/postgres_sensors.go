package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// validUUID ID 列均为 UUID，非法 ID 不下发到数据库
func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// PostgresSensorRepository 传感器注册中心（sensors + sensor_types 表）
type PostgresSensorRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresSensorRepository 创建传感器Repository
func NewPostgresSensorRepository(db *sql.DB, logger *zap.Logger) *PostgresSensorRepository {
	return &PostgresSensorRepository{db: db, logger: logger}
}

// 确保实现了接口
var _ SensorRegistry = (*PostgresSensorRepository)(nil)

// GetSensorByID 按ID查询传感器（含类型）；非 UUID 的 ID 视为不存在
func (r *PostgresSensorRepository) GetSensorByID(ctx context.Context, sensorID string) (*domain.Sensor, error) {
	if !validUUID(sensorID) {
		return nil, domain.NotFoundf("sensor %s", sensorID)
	}

	query := `
		SELECT
			s.sensor_id::text,
			s.serial_number,
			COALESCE(s.manufacturer, ''),
			COALESCE(s.min_value, ''),
			COALESCE(s.max_value, ''),
			s.production_date,
			s.installation_date,
			s.next_verification_date,
			s.is_active,
			s.company_id::text,
			s.asset_id::text,
			COALESCE(st.type_id::text, ''),
			COALESCE(st.name, ''),
			COALESCE(st.unit, '')
		FROM sensors s
		LEFT JOIN sensor_types st ON s.type_id = st.type_id
		WHERE s.sensor_id = $1
	`

	var (
		s                                 domain.Sensor
		production, installation, nextVer sql.NullTime
		assetID                           sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, sensorID).Scan(
		&s.ID,
		&s.SerialNumber,
		&s.Manufacturer,
		&s.MinValue,
		&s.MaxValue,
		&production,
		&installation,
		&nextVer,
		&s.IsActive,
		&s.CompanyID,
		&assetID,
		&s.Type.ID,
		&s.Type.Name,
		&s.Type.Unit,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("sensor %s", sensorID)
		}
		return nil, fmt.Errorf("failed to query sensor: %w", err)
	}

	if production.Valid {
		s.ProductionDate = &production.Time
	}
	if installation.Valid {
		s.InstallationDate = &installation.Time
	}
	if nextVer.Valid {
		s.NextVerificationDate = &nextVer.Time
	}
	if assetID.Valid && assetID.String != "" {
		s.AssetID = &assetID.String
	}

	return &s, nil
}

// PostgresAssignmentRepository 设备分配关系（assets + asset_assignments 表）
type PostgresAssignmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAssignmentRepository 创建分配关系Repository
func NewPostgresAssignmentRepository(db *sql.DB, logger *zap.Logger) *PostgresAssignmentRepository {
	return &PostgresAssignmentRepository{db: db, logger: logger}
}

var _ AssignmentRepository = (*PostgresAssignmentRepository)(nil)

// IsAssignedTo 查询设备当前是否分配给用户（unassigned_at 为空表示仍有效）
// 非 UUID 的设备或用户 ID 不可能有分配关系
func (r *PostgresAssignmentRepository) IsAssignedTo(ctx context.Context, assetID, userID string) (bool, error) {
	if !validUUID(assetID) || !validUUID(userID) {
		return false, nil
	}

	query := `
		SELECT EXISTS (
			SELECT 1
			FROM asset_assignments
			WHERE asset_id = $1
			  AND user_id = $2
			  AND unassigned_at IS NULL
		)
	`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, assetID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to query asset assignment: %w", err)
	}
	return ok, nil
}

// GetAssetCompany 查询设备所属公司
func (r *PostgresAssignmentRepository) GetAssetCompany(ctx context.Context, assetID string) (string, error) {
	if !validUUID(assetID) {
		return "", domain.NotFoundf("asset %s", assetID)
	}

	var companyID string
	err := r.db.QueryRowContext(ctx,
		`SELECT company_id::text FROM assets WHERE asset_id = $1`,
		assetID,
	).Scan(&companyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.NotFoundf("asset %s", assetID)
		}
		return "", fmt.Errorf("failed to query asset: %w", err)
	}
	return companyID, nil
}
