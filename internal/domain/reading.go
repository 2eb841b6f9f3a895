package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Status 读数分类结果
type Status string

const (
	StatusNormal    Status = "NORMAL"
	StatusWarning   Status = "WARNING"
	StatusCritical  Status = "CRITICAL"
	StatusUndefined Status = "UNDEFINED" // 值无法解析为数字
)

// Valid 是否为已知状态
func (s Status) Valid() bool {
	switch s {
	case StatusNormal, StatusWarning, StatusCritical, StatusUndefined:
		return true
	}
	return false
}

// Reading 读数（对应 sensor_readings 表），写入后不可变
type Reading struct {
	ID        string    `db:"id" json:"id"` // UUID
	SensorID  string    `db:"sensor_id" json:"sensorId"`
	AssetID   *string   `db:"asset_id" json:"assetId"`    // 写入时从传感器冗余
	Value     string    `db:"value" json:"value"`         // 原始字符串，可能无法解析
	Timestamp time.Time `db:"timestamp" json:"timestamp"` // UTC
	Status    Status    `db:"status" json:"status"`
}

// RawValue 上报的原始读数值
// 兼容 JSON 字符串、数字和 null，统一保存为字符串
type RawValue string

// UnmarshalJSON 解析 "12,5" / 12.5 / null
func (v *RawValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*v = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = RawValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = RawValue(n.String())
	return nil
}

// IngestRequest 上报请求（MQTT / Redis Stream / HTTP 共用）
type IngestRequest struct {
	SensorID  string   `json:"sensorId"`
	TechnicID *string  `json:"technicId"` // 仅记录，不参与写入
	Value     RawValue `json:"value"`
	Timestamp string   `json:"timestamp"` // ISO-8601，为空时取接收时间
}

// LiveMessage 实时推送负载（topic: sensor/{id}/data）
type LiveMessage struct {
	SensorID     string    `json:"sensorId"`
	AssetID      *string   `json:"assetId"`
	SerialNumber string    `json:"serialNumber"`
	Value        string    `json:"value"`
	Timestamp    time.Time `json:"timestamp"`
	Status       Status    `json:"status"`
	SensorType   string    `json:"sensorType"`
	Unit         string    `json:"unit"`
}

// NewLiveMessage 由已分类读数和传感器构造推送负载
func NewLiveMessage(r *Reading, s *Sensor) LiveMessage {
	return LiveMessage{
		SensorID:     r.SensorID,
		AssetID:      r.AssetID,
		SerialNumber: s.SerialNumber,
		Value:        r.Value,
		Timestamp:    r.Timestamp,
		Status:       r.Status,
		SensorType:   s.Type.Name,
		Unit:         s.Type.Unit,
	}
}
