package models

import "time"

// RecoveryNotificationModel marks a transaction whose payer was reminded.
// The unique index on transaction_id is what keeps reminders single.
type RecoveryNotificationModel struct {
	ID            uint      `gorm:"primaryKey"`
	TransactionID string    `gorm:"column:transaction_id;size:32;not null;uniqueIndex"`
	Recipient     string    `gorm:"column:recipient;size:255;not null"`
	Template      string    `gorm:"column:template;size:64;not null"`
	SentAt        time.Time `gorm:"column:sent_at;not null"`
}

func (RecoveryNotificationModel) TableName() string {
	return "payment_recovery_notifications"
}
