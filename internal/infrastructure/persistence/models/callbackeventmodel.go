package models

import "time"

// CallbackEventModel records every inbound provider callback as received.
type CallbackEventModel struct {
	ID            string    `gorm:"primaryKey;size:36"`
	GatewayCode   string    `gorm:"column:gateway_code;size:32;not null;index"`
	Method        string    `gorm:"column:method;size:10;not null"`
	Payload       string    `gorm:"column:payload;type:text"`
	Signature     string    `gorm:"column:signature;size:512"`
	TransactionID string    `gorm:"column:transaction_id;size:32;index"`
	Outcome       string    `gorm:"column:outcome;size:20;not null"`
	Detail        string    `gorm:"column:detail;size:500"`
	ReceivedAt    time.Time `gorm:"column:received_at;not null"`
}

func (CallbackEventModel) TableName() string {
	return "payment_callback_events"
}
