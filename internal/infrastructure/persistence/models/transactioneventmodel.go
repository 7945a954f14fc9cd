package models

import (
	"time"

	"gorm.io/datatypes"
)

// TransactionEventModel is one row of the append-only transaction audit trail.
type TransactionEventModel struct {
	ID            uint           `gorm:"primaryKey"`
	TransactionID string         `gorm:"column:transaction_id;size:32;not null;index"`
	Kind          string         `gorm:"column:kind;size:20;not null"`
	FromStatus    string         `gorm:"column:from_status;size:20"`
	ToStatus      string         `gorm:"column:to_status;size:20"`
	Source        string         `gorm:"column:source;size:64;not null"`
	Evidence      datatypes.JSON `gorm:"column:evidence"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
}

func (TransactionEventModel) TableName() string {
	return "payment_transaction_events"
}
