package usecases

import (
	"context"

	"github.com/orris-inc/paygate/internal/application/payment/ledger"
	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

type GetPaymentQuery struct {
	TransactionID string
	UserID        uint
}

type GetPaymentUseCase struct {
	ledger *ledger.Service
	logger logger.Interface
}

func NewGetPaymentUseCase(ledgerService *ledger.Service, logger logger.Interface) *GetPaymentUseCase {
	return &GetPaymentUseCase{ledger: ledgerService, logger: logger}
}

// Execute returns the caller's transaction. Transactions of other users are
// reported as not found.
func (uc *GetPaymentUseCase) Execute(ctx context.Context, q GetPaymentQuery) (*payment.Transaction, error) {
	txn, err := uc.ledger.Get(ctx, q.TransactionID)
	if err != nil {
		return nil, err
	}
	if !txn.IsOwnedBy(q.UserID) {
		uc.logger.Warnw("transaction requested by non-owner",
			"transaction_id", q.TransactionID,
			"user_id", q.UserID,
		)
		return nil, payment.ErrTransactionNotFound
	}
	return txn, nil
}
