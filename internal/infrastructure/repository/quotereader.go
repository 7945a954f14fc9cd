package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/infrastructure/persistence/models"
	"github.com/orris-inc/paygate/internal/shared/db"
)

// QuoteReader reads totals from the host application's quotes table.
type QuoteReader struct {
	db *gorm.DB
}

func NewQuoteReader(db *gorm.DB) *QuoteReader {
	return &QuoteReader{db: db}
}

var _ usecases.QuoteReader = (*QuoteReader)(nil)

func (r *QuoteReader) ReadQuotes(ctx context.Context, orderIDs []string) (*usecases.QuoteSummary, error) {
	if len(orderIDs) == 0 {
		return nil, usecases.ErrQuoteNotFound
	}

	var ms []models.QuoteModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("id IN ?", orderIDs).
		Order("id ASC").
		Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("failed to read quotes: %w", err)
	}

	found := make(map[string]struct{}, len(ms))
	for _, m := range ms {
		found[m.ID] = struct{}{}
	}
	for _, id := range orderIDs {
		if _, ok := found[id]; !ok {
			return nil, fmt.Errorf("%w: %s", usecases.ErrQuoteNotFound, id)
		}
	}

	summary := &usecases.QuoteSummary{
		UserID:   ms[0].UserID,
		Currency: strings.ToUpper(ms[0].Currency),
		Amount:   decimal.Zero,
	}
	for _, m := range ms {
		if m.UserID != summary.UserID || !strings.EqualFold(m.Currency, summary.Currency) {
			return nil, usecases.ErrQuoteMismatch
		}
		summary.OrderIDs = append(summary.OrderIDs, m.ID)
		summary.Amount = summary.Amount.Add(m.TotalAmount)
		if summary.Customer.Email == "" && m.CustomerEmail != "" {
			summary.Customer = payment.Customer{Name: m.CustomerName, Email: m.CustomerEmail, Phone: m.CustomerPhone}
		}
	}
	return summary, nil
}

// CustomerDirectory resolves contact details from the profiles table.
type CustomerDirectory struct {
	db *gorm.DB
}

func NewCustomerDirectory(db *gorm.DB) *CustomerDirectory {
	return &CustomerDirectory{db: db}
}

var _ usecases.CustomerDirectory = (*CustomerDirectory)(nil)

func (d *CustomerDirectory) LookupCustomer(ctx context.Context, userID uint) (*usecases.CustomerContact, error) {
	var m models.ProfileModel
	if err := db.GetTxFromContext(ctx, d.db).
		Where("user_id = ?", userID).
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, usecases.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}
	return &usecases.CustomerContact{Name: m.FullName, Email: m.Email}, nil
}
