package usecases

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/orris-inc/paygate/internal/domain/payment"
)

var (
	ErrQuoteNotFound    = errors.New("quote not found")
	ErrQuoteMismatch    = errors.New("quotes do not share one owner and currency")
	ErrCustomerNotFound = errors.New("customer not found")
)

// QuoteSummary is the payable total of a set of quotes.
type QuoteSummary struct {
	OrderIDs []string
	UserID   uint
	Amount   decimal.Decimal
	Currency string
	Customer payment.Customer
}

// QuoteReader reads order totals from the host application. Every id must
// exist; quotes of different owners or currencies cannot be paid together.
type QuoteReader interface {
	ReadQuotes(ctx context.Context, orderIDs []string) (*QuoteSummary, error)
}

type CustomerContact struct {
	Name  string
	Email string
}

// CustomerDirectory resolves a user's current contact details.
type CustomerDirectory interface {
	LookupCustomer(ctx context.Context, userID uint) (*CustomerContact, error)
}

// EmailDispatcher renders template with vars and delivers it to recipient.
type EmailDispatcher interface {
	Dispatch(ctx context.Context, recipient, template string, vars map[string]any) error
}

// FulfillmentPublisher tells downstream systems that a payment settled.
type FulfillmentPublisher interface {
	PublishCaptured(ctx context.Context, event *payment.PaymentCapturedEvent) error
}

// SweepLocker keeps concurrent sweeps from running on several instances.
// Acquire returns false when another holder owns the lock.
type SweepLocker interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}
