package domain

import "time"

// SensorType 传感器类型（名称 + 单位），只是数据，不区分子类
type SensorType struct {
	ID   string `db:"type_id" json:"id,omitempty"`
	Name string `db:"name" json:"name"`
	Unit string `db:"unit" json:"unit"`
}

// Sensor 传感器领域模型（对应 sensors 表，由外部注册中心维护，本服务只读）
type Sensor struct {
	ID           string `db:"sensor_id" json:"id"`               // UUID
	SerialNumber string `db:"serial_number" json:"serialNumber"` // 序列号
	Manufacturer string `db:"manufacturer" json:"manufacturer"`  // 厂家

	// 校准量程（十进制字符串，允许 "," 或 "." 作小数点）
	MinValue string `db:"min_value" json:"minValue"`
	MaxValue string `db:"max_value" json:"maxValue"`

	ProductionDate       *time.Time `db:"production_date" json:"productionDate,omitempty"`
	InstallationDate     *time.Time `db:"installation_date" json:"installationDate,omitempty"`
	NextVerificationDate *time.Time `db:"next_verification_date" json:"nextVerificationDate,omitempty"`

	IsActive  bool    `db:"is_active" json:"isActive"`
	CompanyID string  `db:"company_id" json:"companyId"`       // 所属公司
	AssetID   *string `db:"asset_id" json:"assetId,omitempty"` // 当前挂载的设备（technic），可为空

	Type SensorType `json:"type"`
}

// CurrentAssetID 返回传感器当前挂载的设备ID副本
// 写入 Reading 时以此为准，不信任上报方给出的 technicId
func (s *Sensor) CurrentAssetID() *string {
	if s == nil || s.AssetID == nil || *s.AssetID == "" {
		return nil
	}
	id := *s.AssetID
	return &id
}
