package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TransactionModel is the GORM model for payment_transactions.
type TransactionModel struct {
	ID                    uint                `gorm:"primaryKey"`
	TransactionID         string              `gorm:"column:transaction_id;uniqueIndex;size:32;not null"`
	GatewayCode           string              `gorm:"column:gateway_code;size:32;not null;index:idx_gateway_provider"`
	ProviderTransactionID *string             `gorm:"column:provider_transaction_id;size:128;index:idx_gateway_provider"`
	UserID                uint                `gorm:"column:user_id;index;not null"`
	OrderIDs              datatypes.JSON      `gorm:"column:order_ids"`
	Amount                decimal.Decimal     `gorm:"column:amount;type:decimal(20,8);not null"`
	Currency              string              `gorm:"column:currency;size:3;not null"`
	ConvertedAmount       decimal.NullDecimal `gorm:"column:converted_amount;type:decimal(20,8)"`
	ConvertedCurrency     *string             `gorm:"column:converted_currency;size:3"`
	ConversionRate        decimal.NullDecimal `gorm:"column:conversion_rate;type:decimal(24,10)"`
	Status                string              `gorm:"column:status;size:20;not null;index:idx_status_created"`
	FailureReason         string              `gorm:"column:failure_reason;size:500"`
	NeedsReview           bool                `gorm:"column:needs_review;not null;default:false;index"`
	ReviewReason          string              `gorm:"column:review_reason;size:500"`
	CustomerName          string              `gorm:"column:customer_name;size:200"`
	CustomerEmail         string              `gorm:"column:customer_email;size:255"`
	CustomerPhone         string              `gorm:"column:customer_phone;size:50"`
	Metadata              datatypes.JSON      `gorm:"column:metadata"`
	RawResponse           datatypes.JSON      `gorm:"column:raw_response"`
	SuccessURL            string              `gorm:"column:success_url;type:text"`
	CancelURL             string              `gorm:"column:cancel_url;type:text"`
	ExpiresAt             *time.Time          `gorm:"column:expires_at;index"`
	CapturedAt            *time.Time          `gorm:"column:captured_at"`
	Version               int                 `gorm:"column:version;not null;default:1"`
	CreatedAt             time.Time           `gorm:"column:created_at;index:idx_status_created"`
	UpdatedAt             time.Time           `gorm:"column:updated_at"`
}

func (TransactionModel) TableName() string {
	return "payment_transactions"
}
