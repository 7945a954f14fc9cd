package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
)

// Customer is the payer contact captured at creation time.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Conversion records a currency conversion applied before the provider call.
type Conversion struct {
	Amount vo.Money
	Rate   decimal.Decimal
}

// Transaction is one payment attempt against one gateway. It is never deleted.
type Transaction struct {
	id                    uint
	transactionID         string
	gatewayCode           string
	providerTransactionID string
	userID                uint
	orderIDs              []string

	amount     vo.Money
	conversion *Conversion

	status        vo.TransactionStatus
	failureReason string
	needsReview   bool
	reviewReason  string

	customer    Customer
	metadata    map[string]string
	rawResponse map[string]any
	successURL  string
	cancelURL   string

	expiresAt  *time.Time
	capturedAt *time.Time

	version   int
	createdAt time.Time
	updatedAt time.Time
}

type NewTransactionParams struct {
	TransactionID string
	GatewayCode   string
	UserID        uint
	OrderIDs      []string
	Amount        vo.Money
	Conversion    *Conversion
	Customer      Customer
	Metadata      map[string]string
	SuccessURL    string
	CancelURL     string
	ExpiresAt     *time.Time
}

// NewTransaction creates a pending transaction.
func NewTransaction(p NewTransactionParams, now time.Time) (*Transaction, error) {
	if p.TransactionID == "" {
		return nil, fmt.Errorf("transaction id is required")
	}
	if p.GatewayCode == "" {
		return nil, fmt.Errorf("gateway code is required")
	}
	if len(p.OrderIDs) == 0 {
		return nil, fmt.Errorf("at least one order id is required")
	}
	if !p.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if p.Conversion != nil && !p.Conversion.Amount.IsPositive() {
		return nil, fmt.Errorf("converted %w", ErrInvalidAmount)
	}

	metadata := make(map[string]string, len(p.Metadata))
	for k, v := range p.Metadata {
		metadata[k] = v
	}

	return &Transaction{
		transactionID: p.TransactionID,
		gatewayCode:   strings.ToLower(p.GatewayCode),
		userID:        p.UserID,
		orderIDs:      dedupe(p.OrderIDs),
		amount:        p.Amount,
		conversion:    p.Conversion,
		status:        vo.StatusPending,
		customer:      p.Customer,
		metadata:      metadata,
		successURL:    p.SuccessURL,
		cancelURL:     p.CancelURL,
		expiresAt:     p.ExpiresAt,
		version:       1,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ReconstructParams carries persisted state back into the aggregate.
type ReconstructParams struct {
	ID                    uint
	TransactionID         string
	GatewayCode           string
	ProviderTransactionID string
	UserID                uint
	OrderIDs              []string
	Amount                vo.Money
	Conversion            *Conversion
	Status                vo.TransactionStatus
	FailureReason         string
	NeedsReview           bool
	ReviewReason          string
	Customer              Customer
	Metadata              map[string]string
	RawResponse           map[string]any
	SuccessURL            string
	CancelURL             string
	ExpiresAt             *time.Time
	CapturedAt            *time.Time
	Version               int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func ReconstructTransaction(p ReconstructParams) (*Transaction, error) {
	if p.TransactionID == "" {
		return nil, fmt.Errorf("transaction id is required")
	}
	if !p.Status.IsValid() {
		return nil, fmt.Errorf("invalid status %q", p.Status)
	}
	if p.Metadata == nil {
		p.Metadata = make(map[string]string)
	}
	return &Transaction{
		id:                    p.ID,
		transactionID:         p.TransactionID,
		gatewayCode:           p.GatewayCode,
		providerTransactionID: p.ProviderTransactionID,
		userID:                p.UserID,
		orderIDs:              p.OrderIDs,
		amount:                p.Amount,
		conversion:            p.Conversion,
		status:                p.Status,
		failureReason:         p.FailureReason,
		needsReview:           p.NeedsReview,
		reviewReason:          p.ReviewReason,
		customer:              p.Customer,
		metadata:              p.Metadata,
		rawResponse:           p.RawResponse,
		successURL:            p.SuccessURL,
		cancelURL:             p.CancelURL,
		expiresAt:             p.ExpiresAt,
		capturedAt:            p.CapturedAt,
		version:               p.Version,
		createdAt:             p.CreatedAt,
		updatedAt:             p.UpdatedAt,
	}, nil
}

func (t *Transaction) ID() uint { return t.id }
func (t *Transaction) TransactionID() string { return t.transactionID }
func (t *Transaction) GatewayCode() string { return t.gatewayCode }
func (t *Transaction) ProviderTransactionID() string { return t.providerTransactionID }
func (t *Transaction) UserID() uint { return t.userID }
func (t *Transaction) OrderIDs() []string { return append([]string(nil), t.orderIDs...) }
func (t *Transaction) Amount() vo.Money { return t.amount }
func (t *Transaction) Conversion() *Conversion { return t.conversion }
func (t *Transaction) Status() vo.TransactionStatus { return t.status }
func (t *Transaction) FailureReason() string { return t.failureReason }
func (t *Transaction) NeedsReview() bool { return t.needsReview }
func (t *Transaction) ReviewReason() string { return t.reviewReason }
func (t *Transaction) Customer() Customer { return t.customer }
func (t *Transaction) Metadata() map[string]string { return t.metadata }
func (t *Transaction) RawResponse() map[string]any { return t.rawResponse }
func (t *Transaction) SuccessURL() string { return t.successURL }
func (t *Transaction) CancelURL() string { return t.cancelURL }
func (t *Transaction) ExpiresAt() *time.Time { return t.expiresAt }
func (t *Transaction) CapturedAt() *time.Time { return t.capturedAt }
func (t *Transaction) Version() int { return t.version }
func (t *Transaction) CreatedAt() time.Time { return t.createdAt }
func (t *Transaction) UpdatedAt() time.Time { return t.updatedAt }
func (t *Transaction) SetID(id uint) { t.id = id }
func (t *Transaction) IsOwnedBy(userID uint) bool { return t.userID == userID }
func (t *Transaction) HasProviderTransactionID() bool { return t.providerTransactionID != "" }
func (t *Transaction) IsFinal() bool { return t.status.IsFinal() }

// ChargedAmount is what the provider was asked to collect: the converted
// amount when a conversion was applied, the original amount otherwise.
func (t *Transaction) ChargedAmount() vo.Money {
	if t.conversion != nil {
		return t.conversion.Amount
	}
	return t.amount
}

// MatchesCharged compares a provider reported amount with ChargedAmount
// after rounding both to the currency's minor unit.
func (t *Transaction) MatchesCharged(amount decimal.Decimal, currency string) bool {
	charged := t.ChargedAmount()
	if currency != "" && !strings.EqualFold(currency, charged.Currency()) {
		return false
	}
	scale := vo.MinorUnits(charged.Currency())
	return charged.Amount().Round(scale).Equal(amount.Round(scale))
}

// IsExpired reports whether the provider validity window has passed.
func (t *Transaction) IsExpired(now time.Time) bool {
	return t.expiresAt != nil && now.After(*t.expiresAt)
}

// Transition is the outcome of deciding a status change.
type Transition int

const (
	// TransitionApply means the status must change.
	TransitionApply Transition = iota
	// TransitionNoop means the target equals the current status.
	TransitionNoop
)

// DecideTransition applies the state machine rules without mutating anything.
// A repeated terminal status is a no-op, a different terminal status after a
// terminal one is ErrConflictingFinalState, and anything else that is not a
// forward edge is ErrInvalidTransition.
func DecideTransition(from, to vo.TransactionStatus) (Transition, error) {
	if !to.IsValid() {
		return 0, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if from == to {
		return TransitionNoop, nil
	}
	if from.IsFinal() {
		if to.IsFinal() {
			return 0, fmt.Errorf("%w: %s then %s", ErrConflictingFinalState, from, to)
		}
		return 0, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if !from.CanTransitionTo(to) {
		return 0, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return TransitionApply, nil
}

// TransitionTo moves the transaction to status. It returns false without
// error when the transaction is already in that status.
func (t *Transaction) TransitionTo(status vo.TransactionStatus, reason string, now time.Time) (bool, error) {
	decision, err := DecideTransition(t.status, status)
	if err != nil {
		return false, err
	}
	if decision == TransitionNoop {
		return false, nil
	}

	t.status = status
	switch status {
	case vo.StatusCaptured:
		t.capturedAt = &now
	case vo.StatusFailed, vo.StatusExpired:
		t.failureReason = reason
	}
	t.touch(now)
	return true, nil
}

// AttachProviderResult records the provider's id and response snapshot. An
// existing provider id is never overwritten with a different one.
func (t *Transaction) AttachProviderResult(providerTransactionID string, raw map[string]any, now time.Time) error {
	if providerTransactionID != "" {
		if t.providerTransactionID != "" && t.providerTransactionID != providerTransactionID {
			return fmt.Errorf("%w: have %s, got %s", ErrProviderIDMismatch, t.providerTransactionID, providerTransactionID)
		}
		t.providerTransactionID = providerTransactionID
	}
	if raw != nil {
		t.rawResponse = raw
	}
	t.touch(now)
	return nil
}

// SetExpiry records the provider validity window. It has no effect once the
// transaction is final.
func (t *Transaction) SetExpiry(expiresAt time.Time, now time.Time) {
	if t.status.IsFinal() {
		return
	}
	at := expiresAt.UTC()
	t.expiresAt = &at
	t.touch(now)
}

// FlagForReview marks the transaction for manual reconciliation.
func (t *Transaction) FlagForReview(reason string, now time.Time) {
	t.needsReview = true
	t.reviewReason = reason
	t.updatedAt = now
}

func (t *Transaction) touch(now time.Time) {
	t.version++
	t.updatedAt = now
}
