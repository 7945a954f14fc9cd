package payment

import (
	"time"

	"github.com/shopspring/decimal"

	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
)

// PaymentCapturedEvent is published once per transaction when it reaches captured.
type PaymentCapturedEvent struct {
	TransactionID string          `json:"transaction_id"`
	Gateway       string          `json:"gateway"`
	UserID        uint            `json:"user_id"`
	OrderIDs      []string        `json:"order_ids"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CapturedAt    time.Time       `json:"captured_at"`
}

func NewPaymentCapturedEvent(t *Transaction) *PaymentCapturedEvent {
	captured := t.UpdatedAt()
	if t.CapturedAt() != nil {
		captured = *t.CapturedAt()
	}
	return &PaymentCapturedEvent{
		TransactionID: t.TransactionID(),
		Gateway:       t.GatewayCode(),
		UserID:        t.UserID(),
		OrderIDs:      t.OrderIDs(),
		Amount:        t.Amount().Amount(),
		Currency:      t.Amount().Currency(),
		CapturedAt:    captured,
	}
}

// EventKind classifies an entry of the transaction audit trail.
type EventKind string

const (
	EventKindCreated    EventKind = "created"
	EventKindTransition EventKind = "transition"
	EventKindDuplicate  EventKind = "duplicate"
	EventKindConflict   EventKind = "conflict"
	EventKindProvider   EventKind = "provider_result"
)

// TransactionEvent is one row of the append-only audit trail.
type TransactionEvent struct {
	ID            uint
	TransactionID string
	Kind          EventKind
	FromStatus    vo.TransactionStatus
	ToStatus      vo.TransactionStatus
	Source        string
	Evidence      map[string]any
	CreatedAt     time.Time
}

// CallbackOutcome records what the processor did with an inbound callback.
type CallbackOutcome string

const (
	CallbackApplied   CallbackOutcome = "applied"
	CallbackDuplicate CallbackOutcome = "duplicate"
	CallbackConflict  CallbackOutcome = "conflict"
	CallbackRejected  CallbackOutcome = "rejected"
	CallbackNotFound  CallbackOutcome = "not_found"
	CallbackIgnored   CallbackOutcome = "ignored"
	CallbackError     CallbackOutcome = "error"
)

// CallbackEvent is the raw record of one inbound provider callback.
type CallbackEvent struct {
	ID            string
	GatewayCode   string
	Method        string
	Payload       string
	Signature     string
	TransactionID string
	Outcome       CallbackOutcome
	Detail        string
	ReceivedAt    time.Time
}

// RecoveryNotification marks that a reminder was sent for an abandoned transaction.
type RecoveryNotification struct {
	ID            uint
	TransactionID string
	Recipient     string
	Template      string
	SentAt        time.Time
}
