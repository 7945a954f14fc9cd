package usecases

import (
	"context"

	"github.com/orris-inc/paygate/internal/application/payment/ledger"
	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/shared/constants"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

// ListReviewQueueUseCase pages through transactions flagged for manual review.
type ListReviewQueueUseCase struct {
	ledger *ledger.Service
	logger logger.Interface
}

func NewListReviewQueueUseCase(ledgerService *ledger.Service, logger logger.Interface) *ListReviewQueueUseCase {
	return &ListReviewQueueUseCase{ledger: ledgerService, logger: logger}
}

func (uc *ListReviewQueueUseCase) Execute(ctx context.Context, page, pageSize int) ([]*payment.Transaction, int64, error) {
	if page < 1 {
		page = constants.DefaultPage
	}
	if pageSize < 1 {
		pageSize = constants.DefaultPageSize
	}
	if pageSize > constants.MaxPageSize {
		pageSize = constants.MaxPageSize
	}

	txns, total, err := uc.ledger.ListForReview(ctx, page, pageSize)
	if err != nil {
		uc.logger.Errorw("failed to list review queue", "page", page, "error", err)
		return nil, 0, err
	}
	return txns, total, nil
}

// TransactionAudit is everything recorded about one transaction.
type TransactionAudit struct {
	Transaction *payment.Transaction
	Events      []*payment.TransactionEvent
	Callbacks   []*payment.CallbackEvent
}

type GetTransactionAuditUseCase struct {
	ledger    *ledger.Service
	callbacks payment.CallbackEventRepository
	logger    logger.Interface
}

func NewGetTransactionAuditUseCase(
	ledgerService *ledger.Service,
	callbacks payment.CallbackEventRepository,
	logger logger.Interface,
) *GetTransactionAuditUseCase {
	return &GetTransactionAuditUseCase{ledger: ledgerService, callbacks: callbacks, logger: logger}
}

func (uc *GetTransactionAuditUseCase) Execute(ctx context.Context, transactionID string) (*TransactionAudit, error) {
	txn, err := uc.ledger.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	events, err := uc.ledger.Events(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	callbacks, err := uc.callbacks.ListByTransactionID(ctx, transactionID)
	if err != nil {
		uc.logger.Errorw("failed to load callback events", "transaction_id", transactionID, "error", err)
		return nil, err
	}
	return &TransactionAudit{Transaction: txn, Events: events, Callbacks: callbacks}, nil
}
