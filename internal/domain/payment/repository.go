package payment

import (
	"context"
	"time"

	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
)

type TransactionRepository interface {
	Create(ctx context.Context, txn *Transaction) error
	// GetByTransactionID returns ErrTransactionNotFound when no row matches.
	GetByTransactionID(ctx context.Context, transactionID string) (*Transaction, error)
	GetByProviderTransactionID(ctx context.Context, gatewayCode, providerTransactionID string) (*Transaction, error)
	// CompareAndUpdate persists txn only if the stored row still has
	// expectedStatus and expectedVersion. It reports whether a row changed.
	CompareAndUpdate(ctx context.Context, txn *Transaction, expectedStatus vo.TransactionStatus, expectedVersion int) (bool, error)
	MarkNeedsReview(ctx context.Context, transactionID, reason string) error
	// ListStalePending returns pending transactions created before cutoff that
	// have no recovery notification, oldest first.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*Transaction, error)
	// ListExpirable returns non-final transactions whose expires_at is before now.
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]*Transaction, error)
	ListNeedsReview(ctx context.Context, page, pageSize int) ([]*Transaction, int64, error)
}

type TransactionEventRepository interface {
	Append(ctx context.Context, event *TransactionEvent) error
	ListByTransactionID(ctx context.Context, transactionID string) ([]*TransactionEvent, error)
}

type CallbackEventRepository interface {
	Save(ctx context.Context, event *CallbackEvent) error
	ListByTransactionID(ctx context.Context, transactionID string) ([]*CallbackEvent, error)
}

type RecoveryNotificationRepository interface {
	// Record returns ErrAlreadyNotified when the transaction already has a notification.
	Record(ctx context.Context, n *RecoveryNotification) error
	Exists(ctx context.Context, transactionID string) (bool, error)
}
