package models

import "github.com/shopspring/decimal"

// QuoteModel is a read-only view of the host application's quotes table.
type QuoteModel struct {
	ID            string          `gorm:"primaryKey;size:64"`
	UserID        uint            `gorm:"column:user_id"`
	TotalAmount   decimal.Decimal `gorm:"column:total_amount;type:decimal(20,8)"`
	Currency      string          `gorm:"column:currency;size:3"`
	CustomerName  string          `gorm:"column:customer_name"`
	CustomerEmail string          `gorm:"column:customer_email"`
	CustomerPhone string          `gorm:"column:customer_phone"`
}

func (QuoteModel) TableName() string {
	return "quotes"
}

// ProfileModel is a read-only view of the host application's customer profiles.
type ProfileModel struct {
	UserID   uint   `gorm:"primaryKey;column:user_id"`
	FullName string `gorm:"column:full_name"`
	Email    string `gorm:"column:email"`
	Phone    string `gorm:"column:phone"`
}

func (ProfileModel) TableName() string {
	return "profiles"
}
