// Package ledger is the only writer of payment transactions. Every status
// change goes through TransitionStatus, which applies the state machine,
// persists with a conditional update and appends the audit trail in the
// same database transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/shared/biztime"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

const DefaultMaxRetries = 3

var errLostRace = errors.New("conditional update matched no row")

// TxManager runs fn inside one database transaction.
type TxManager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Evidence describes why a transition was requested.
type Evidence struct {
	// Source is one of create, callback:<code>, capture, expire, admin.
	Source string
	// Reason is stored as the failure reason on failed and expired.
	Reason  string
	Details map[string]any
}

func (e Evidence) toMap() map[string]any {
	out := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		out[k] = v
	}
	if e.Reason != "" {
		out["reason"] = e.Reason
	}
	return out
}

// TransitionResult reports what TransitionStatus did. Transaction is the
// state after the call, also on ErrConflictingFinalState.
type TransitionResult struct {
	Transaction *payment.Transaction
	From        vo.TransactionStatus
	Changed     bool
}

// CapturedNow reports whether this call moved the transaction to captured.
func (r *TransitionResult) CapturedNow() bool {
	return r.Changed && r.Transaction.Status().IsCaptured()
}

type Option func(*Service)

func WithClock(clock biztime.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

type Service struct {
	txns       payment.TransactionRepository
	events     payment.TransactionEventRepository
	tx         TxManager
	clock      biztime.Clock
	maxRetries int
	logger     logger.Interface
}

func NewService(
	txns payment.TransactionRepository,
	events payment.TransactionEventRepository,
	tx TxManager,
	log logger.Interface,
	opts ...Option,
) *Service {
	s := &Service{
		txns:       txns,
		events:     events,
		tx:         tx,
		clock:      biztime.SystemClock(),
		maxRetries: DefaultMaxRetries,
		logger:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now exposes the ledger clock so callers stamp related records consistently.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// CreateTransaction persists a new pending transaction with its created event.
func (s *Service) CreateTransaction(ctx context.Context, p payment.NewTransactionParams) (*payment.Transaction, error) {
	now := s.clock.Now()
	txn, err := payment.NewTransaction(p, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.txns.Create(ctx, txn); err != nil {
			return err
		}
		return s.events.Append(ctx, &payment.TransactionEvent{
			TransactionID: txn.TransactionID(),
			Kind:          payment.EventKindCreated,
			ToStatus:      txn.Status(),
			Source:        "create",
			Evidence: map[string]any{
				"gateway": txn.GatewayCode(),
				"amount":  txn.Amount().String(),
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	s.logger.Infow("payment transaction created",
		"transaction_id", txn.TransactionID(),
		"gateway", txn.GatewayCode(),
		"amount", txn.Amount().String(),
	)
	return txn, nil
}

// ProviderResult is what a provider returned when the intent was created.
type ProviderResult struct {
	ProviderTransactionID string
	Raw                   map[string]any
	ExpiresAt             *time.Time
}

// RecordProviderResult stores the provider's id, raw response and validity
// window. A different provider id than the one already stored is rejected
// with payment.ErrProviderIDMismatch.
func (s *Service) RecordProviderResult(ctx context.Context, transactionID string, result ProviderResult) (*payment.Transaction, error) {
	providerTransactionID := result.ProviderTransactionID
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		txn, err := s.txns.GetByTransactionID(ctx, transactionID)
		if err != nil {
			return nil, err
		}
		status, version := txn.Status(), txn.Version()
		now := s.clock.Now()

		if err := txn.AttachProviderResult(providerTransactionID, result.Raw, now); err != nil {
			s.logger.Errorw("provider returned a different transaction id",
				"transaction_id", transactionID,
				"stored", txn.ProviderTransactionID(),
				"received", providerTransactionID,
			)
			return nil, err
		}
		if result.ExpiresAt != nil {
			txn.SetExpiry(*result.ExpiresAt, now)
		}

		err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
			ok, err := s.txns.CompareAndUpdate(ctx, txn, status, version)
			if err != nil {
				return err
			}
			if !ok {
				return errLostRace
			}
			return s.events.Append(ctx, &payment.TransactionEvent{
				TransactionID: transactionID,
				Kind:          payment.EventKindProvider,
				FromStatus:    status,
				ToStatus:      status,
				Source:        "create",
				Evidence:      map[string]any{"provider_transaction_id": providerTransactionID},
				CreatedAt:     now,
			})
		})
		if errors.Is(err, errLostRace) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to record provider result: %w", err)
		}
		return txn, nil
	}
	return nil, payment.ErrStaleTransaction
}

// TransitionStatus moves a transaction to status. Repeating the current
// status succeeds with Changed=false. A different terminal status after a
// terminal one returns payment.ErrConflictingFinalState, keeps the first
// status and flags the transaction for review.
func (s *Service) TransitionStatus(ctx context.Context, transactionID string, to vo.TransactionStatus, ev Evidence) (*TransitionResult, error) {
	return s.transition(ctx, transactionID, to, ev, false)
}

// TransitionIfOpen is TransitionStatus for housekeeping jobs: a transaction
// that already reached a final status is left alone without a conflict.
func (s *Service) TransitionIfOpen(ctx context.Context, transactionID string, to vo.TransactionStatus, ev Evidence) (*TransitionResult, error) {
	return s.transition(ctx, transactionID, to, ev, true)
}

func (s *Service) transition(ctx context.Context, transactionID string, to vo.TransactionStatus, ev Evidence, onlyOpen bool) (*TransitionResult, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		txn, err := s.txns.GetByTransactionID(ctx, transactionID)
		if err != nil {
			return nil, err
		}
		from, version := txn.Status(), txn.Version()
		now := s.clock.Now()

		if onlyOpen && from.IsFinal() {
			return &TransitionResult{Transaction: txn, From: from}, nil
		}

		changed, err := txn.TransitionTo(to, ev.Reason, now)
		switch {
		case errors.Is(err, payment.ErrConflictingFinalState):
			return s.recordConflict(ctx, txn, to, ev, err)
		case err != nil:
			return nil, err
		case !changed:
			s.appendQuietly(ctx, &payment.TransactionEvent{
				TransactionID: transactionID,
				Kind:          payment.EventKindDuplicate,
				FromStatus:    from,
				ToStatus:      to,
				Source:        ev.Source,
				Evidence:      ev.toMap(),
				CreatedAt:     now,
			})
			return &TransitionResult{Transaction: txn, From: from}, nil
		}

		err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
			ok, err := s.txns.CompareAndUpdate(ctx, txn, from, version)
			if err != nil {
				return err
			}
			if !ok {
				return errLostRace
			}
			return s.events.Append(ctx, &payment.TransactionEvent{
				TransactionID: transactionID,
				Kind:          payment.EventKindTransition,
				FromStatus:    from,
				ToStatus:      to,
				Source:        ev.Source,
				Evidence:      ev.toMap(),
				CreatedAt:     now,
			})
		})
		if errors.Is(err, errLostRace) {
			s.logger.Debugw("transition lost a race, re-reading",
				"transaction_id", transactionID,
				"attempt", attempt+1,
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to persist transition: %w", err)
		}

		s.logger.Infow("payment transaction status changed",
			"transaction_id", transactionID,
			"from", from,
			"to", to,
			"source", ev.Source,
		)
		return &TransitionResult{Transaction: txn, From: from, Changed: true}, nil
	}
	return nil, payment.ErrStaleTransaction
}

func (s *Service) recordConflict(ctx context.Context, txn *payment.Transaction, to vo.TransactionStatus, ev Evidence, cause error) (*TransitionResult, error) {
	now := s.clock.Now()
	reason := fmt.Sprintf("%s reported %s after %s", ev.Source, to, txn.Status())

	s.logger.Errorw("conflicting final state reported",
		"transaction_id", txn.TransactionID(),
		"current", txn.Status(),
		"reported", to,
		"source", ev.Source,
	)

	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.txns.MarkNeedsReview(ctx, txn.TransactionID(), reason); err != nil {
			return err
		}
		return s.events.Append(ctx, &payment.TransactionEvent{
			TransactionID: txn.TransactionID(),
			Kind:          payment.EventKindConflict,
			FromStatus:    txn.Status(),
			ToStatus:      to,
			Source:        ev.Source,
			Evidence:      ev.toMap(),
			CreatedAt:     now,
		})
	})
	if err != nil {
		s.logger.Errorw("failed to flag transaction for review", "transaction_id", txn.TransactionID(), "error", err)
	} else {
		txn.FlagForReview(reason, now)
	}
	return &TransitionResult{Transaction: txn, From: txn.Status()}, cause
}

// appendQuietly records an audit row whose loss must not fail the caller.
func (s *Service) appendQuietly(ctx context.Context, e *payment.TransactionEvent) {
	if err := s.events.Append(ctx, e); err != nil {
		s.logger.Warnw("failed to append transaction event",
			"transaction_id", e.TransactionID,
			"kind", e.Kind,
			"error", err,
		)
	}
}

func (s *Service) Get(ctx context.Context, transactionID string) (*payment.Transaction, error) {
	return s.txns.GetByTransactionID(ctx, transactionID)
}

func (s *Service) FindByProviderID(ctx context.Context, gatewayCode, providerTransactionID string) (*payment.Transaction, error) {
	return s.txns.GetByProviderTransactionID(ctx, gatewayCode, providerTransactionID)
}

// ListForReview returns transactions flagged needs_review, newest first.
func (s *Service) ListForReview(ctx context.Context, page, pageSize int) ([]*payment.Transaction, int64, error) {
	return s.txns.ListNeedsReview(ctx, page, pageSize)
}

func (s *Service) Events(ctx context.Context, transactionID string) ([]*payment.TransactionEvent, error) {
	if _, err := s.txns.GetByTransactionID(ctx, transactionID); err != nil {
		return nil, err
	}
	return s.events.ListByTransactionID(ctx, transactionID)
}

// ListStalePending returns pending transactions created before cutoff that
// have not been reminded yet.
func (s *Service) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*payment.Transaction, error) {
	return s.txns.ListStalePending(ctx, cutoff, limit)
}

// ListExpirable returns non-final transactions past their validity window.
func (s *Service) ListExpirable(ctx context.Context, limit int) ([]*payment.Transaction, error) {
	return s.txns.ListExpirable(ctx, s.clock.Now(), limit)
}
