package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orris-inc/paygate/internal/application/payment/ledger"
	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/shared/biztime"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

const (
	ReminderTemplate         = "payment_reminder"
	// NoRecipientMarker is recorded in place of a reminder when a stale
	// transaction has no address to write to, so it leaves the candidate set.
	NoRecipientMarker        = "no_recipient"
	DefaultReminderThreshold = 30 * time.Minute
	DefaultSweepBatchSize    = 100
)

type RecoverySweepConfig struct {
	Threshold time.Duration
	BatchSize int
}

// SweepError is one transaction the sweep could not remind.
type SweepError struct {
	TransactionID string `json:"transaction_id"`
	Error         string `json:"error"`
}

type SweepReport struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Scanned    int          `json:"scanned"`
	Notified   int          `json:"notified"`
	Skipped    int          `json:"skipped"`
	Errors     []SweepError `json:"errors,omitempty"`
	// LockHeld is true when another instance was sweeping and nothing ran.
	LockHeld bool `json:"lock_held"`
}

type RecoverySweepUseCase struct {
	ledger        *ledger.Service
	notifications payment.RecoveryNotificationRepository
	customers     CustomerDirectory
	email         EmailDispatcher
	locker        SweepLocker
	clock         biztime.Clock
	logger        logger.Interface
	config        RecoverySweepConfig
}

func NewRecoverySweepUseCase(
	ledgerService *ledger.Service,
	notifications payment.RecoveryNotificationRepository,
	email EmailDispatcher,
	logger logger.Interface,
	config RecoverySweepConfig,
) *RecoverySweepUseCase {
	if config.Threshold <= 0 {
		config.Threshold = DefaultReminderThreshold
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultSweepBatchSize
	}
	return &RecoverySweepUseCase{
		ledger:        ledgerService,
		notifications: notifications,
		email:         email,
		clock:         biztime.SystemClock(),
		logger:        logger,
		config:        config,
	}
}

// SetCustomerDirectory sets the recipient lookup (optional dependency injection)
func (uc *RecoverySweepUseCase) SetCustomerDirectory(customers CustomerDirectory) {
	uc.customers = customers
}

// SetLocker sets the distributed lock (optional dependency injection)
func (uc *RecoverySweepUseCase) SetLocker(locker SweepLocker) {
	uc.locker = locker
}

func (uc *RecoverySweepUseCase) SetClock(clock biztime.Clock) {
	uc.clock = clock
}

// Sweep reminds the payers of pending transactions older than the threshold.
// Each transaction is reminded at most once; a failure on one item is
// reported and the batch continues. No database transaction is held while
// an email is sent.
func (uc *RecoverySweepUseCase) Sweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{StartedAt: uc.clock.Now()}

	if uc.locker != nil {
		release, ok, err := uc.locker.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire sweep lock: %w", err)
		}
		if !ok {
			uc.logger.Infow("recovery sweep already running elsewhere, skipping")
			report.LockHeld = true
			report.FinishedAt = uc.clock.Now()
			return report, nil
		}
		defer release()
	}

	cutoff := report.StartedAt.Add(-uc.config.Threshold)
	stale, err := uc.ledger.ListStalePending(ctx, cutoff, uc.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale transactions: %w", err)
	}
	report.Scanned = len(stale)

	for _, txn := range stale {
		if ctx.Err() != nil {
			break
		}
		notified, err := uc.remind(ctx, txn)
		switch {
		case err != nil:
			uc.logger.Warnw("recovery reminder failed",
				"transaction_id", txn.TransactionID(),
				"error", err,
			)
			report.Errors = append(report.Errors, SweepError{TransactionID: txn.TransactionID(), Error: err.Error()})
		case notified:
			report.Notified++
		default:
			report.Skipped++
		}
	}

	report.FinishedAt = uc.clock.Now()
	if report.Scanned > 0 {
		uc.logger.Infow("recovery sweep finished",
			"scanned", report.Scanned,
			"notified", report.Notified,
			"skipped", report.Skipped,
			"errors", len(report.Errors),
		)
	}
	return report, ctx.Err()
}

// remind returns false without error when the transaction needs no reminder.
func (uc *RecoverySweepUseCase) remind(ctx context.Context, txn *payment.Transaction) (bool, error) {
	exists, err := uc.notifications.Exists(ctx, txn.TransactionID())
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	recipient, name := uc.recipient(ctx, txn)
	if recipient == "" {
		uc.logger.Infow("no recipient for stale transaction, marking it swept", "transaction_id", txn.TransactionID())
		err := uc.notifications.Record(ctx, &payment.RecoveryNotification{
			TransactionID: txn.TransactionID(),
			Template:      NoRecipientMarker,
			SentAt:        uc.clock.Now(),
		})
		if err != nil && !errors.Is(err, payment.ErrAlreadyNotified) {
			return false, fmt.Errorf("failed to record missing recipient: %w", err)
		}
		return false, nil
	}

	vars := map[string]any{
		"customer_name":  name,
		"transaction_id": txn.TransactionID(),
		"amount":         txn.Amount().StringFixed(),
		"currency":       txn.Amount().Currency(),
		"order_ids":      txn.OrderIDs(),
		"gateway":        txn.GatewayCode(),
		"created_at":     txn.CreatedAt().Format(time.RFC3339),
	}
	if err := uc.email.Dispatch(ctx, recipient, ReminderTemplate, vars); err != nil {
		return false, fmt.Errorf("failed to send reminder: %w", err)
	}

	err = uc.notifications.Record(ctx, &payment.RecoveryNotification{
		TransactionID: txn.TransactionID(),
		Recipient:     recipient,
		Template:      ReminderTemplate,
		SentAt:        uc.clock.Now(),
	})
	if errors.Is(err, payment.ErrAlreadyNotified) {
		uc.logger.Warnw("reminder raced with another sweep", "transaction_id", txn.TransactionID())
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("reminder sent but not recorded: %w", err)
	}
	return true, nil
}

func (uc *RecoverySweepUseCase) recipient(ctx context.Context, txn *payment.Transaction) (email, name string) {
	email, name = txn.Customer().Email, txn.Customer().Name
	if uc.customers == nil || txn.UserID() == 0 {
		return email, name
	}
	contact, err := uc.customers.LookupCustomer(ctx, txn.UserID())
	if err != nil {
		if !errors.Is(err, ErrCustomerNotFound) {
			uc.logger.Warnw("customer lookup failed, using transaction contact",
				"transaction_id", txn.TransactionID(),
				"error", err,
			)
		}
		return email, name
	}
	if contact.Email != "" {
		email = contact.Email
	}
	if contact.Name != "" {
		name = contact.Name
	}
	return email, name
}
