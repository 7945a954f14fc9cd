package models

import (
	"time"

	"gorm.io/datatypes"
)

// GatewayModel stores one gateway's configuration. Credentials holds a
// sealed JSON object and is never stored in clear text.
type GatewayModel struct {
	ID          uint           `gorm:"primaryKey"`
	Code        string         `gorm:"column:code;size:32;not null;uniqueIndex"`
	Mode        string         `gorm:"column:mode;size:10;not null;default:'test'"`
	BaseURL     string         `gorm:"column:base_url;size:255"`
	Enabled     bool           `gorm:"column:enabled;not null;default:false"`
	Credentials []byte         `gorm:"column:credentials"`
	Settings    datatypes.JSON `gorm:"column:settings"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
}

func (GatewayModel) TableName() string {
	return "payment_gateways"
}
