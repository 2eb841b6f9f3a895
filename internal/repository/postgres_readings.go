package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PostgresReadingRepository 读数时序存储（sensor_readings 表）
// seq 为 BIGSERIAL，用于同一时间戳内按写入顺序排序
type PostgresReadingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresReadingRepository 创建读数Repository
func NewPostgresReadingRepository(db *sql.DB, logger *zap.Logger) *PostgresReadingRepository {
	return &PostgresReadingRepository{db: db, logger: logger}
}

var _ ReadingRepository = (*PostgresReadingRepository)(nil)

const readingColumns = `id::text, sensor_id::text, asset_id::text, value, timestamp, status`

// Append 插入一条读数
func (r *PostgresReadingRepository) Append(ctx context.Context, reading *domain.Reading) error {
	if reading.ID == "" {
		reading.ID = uuid.NewString()
	}

	query := `
		INSERT INTO sensor_readings (id, sensor_id, asset_id, value, timestamp, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		reading.ID,
		reading.SensorID,
		reading.AssetID,
		reading.Value,
		reading.Timestamp.UTC(),
		string(reading.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sensor reading: %w", err)
	}
	return nil
}

// Range 查询 [from, to] 内的读数
func (r *PostgresReadingRepository) Range(ctx context.Context, sensorID string, from, to time.Time) ([]domain.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM sensor_readings
		WHERE sensor_id = $1
		  AND timestamp >= $2
		  AND timestamp <= $3
		ORDER BY timestamp ASC, seq ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sensorID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor readings: %w", err)
	}
	defer rows.Close()

	readings := []domain.Reading{}
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, *reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sensor readings: %w", err)
	}
	return readings, nil
}

// Latest 最近一条读数
func (r *PostgresReadingRepository) Latest(ctx context.Context, sensorID string) (*domain.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM sensor_readings
		WHERE sensor_id = $1
		ORDER BY timestamp DESC, seq DESC
		LIMIT 1
	`
	reading, err := scanReading(r.db.QueryRowContext(ctx, query, sensorID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("no readings for sensor %s", sensorID)
		}
		return nil, err
	}
	return reading, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (*domain.Reading, error) {
	var (
		reading domain.Reading
		assetID sql.NullString
		status  string
	)
	if err := row.Scan(
		&reading.ID,
		&reading.SensorID,
		&assetID,
		&reading.Value,
		&reading.Timestamp,
		&status,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sensor reading: %w", err)
	}
	if assetID.Valid {
		reading.AssetID = &assetID.String
	}
	reading.Timestamp = reading.Timestamp.UTC()
	reading.Status = domain.Status(status)
	return &reading, nil
}
