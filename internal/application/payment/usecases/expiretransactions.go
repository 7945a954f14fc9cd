package usecases

import (
	"context"
	"fmt"

	"github.com/orris-inc/paygate/internal/application/payment/ledger"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

const expireBatchSize = 500

type ExpireTransactionsUseCase struct {
	ledger *ledger.Service
	logger logger.Interface
}

func NewExpireTransactionsUseCase(ledgerService *ledger.Service, logger logger.Interface) *ExpireTransactionsUseCase {
	return &ExpireTransactionsUseCase{ledger: ledgerService, logger: logger}
}

// Execute moves transactions past their provider validity window to expired
// and returns how many changed.
func (uc *ExpireTransactionsUseCase) Execute(ctx context.Context) (int, error) {
	expirable, err := uc.ledger.ListExpirable(ctx, expireBatchSize)
	if err != nil {
		uc.logger.Errorw("failed to list expirable transactions", "error", err)
		return 0, fmt.Errorf("failed to list expirable transactions: %w", err)
	}
	if len(expirable) == 0 {
		uc.logger.Debugw("no expirable transactions found")
		return 0, nil
	}

	uc.logger.Infow("expiring transactions", "count", len(expirable))

	expired := 0
	for _, txn := range expirable {
		res, err := uc.ledger.TransitionIfOpen(ctx, txn.TransactionID(), vo.StatusExpired, ledger.Evidence{
			Source: "expire",
			Reason: "provider validity window elapsed",
		})
		if err != nil {
			uc.logger.Errorw("failed to expire transaction",
				"transaction_id", txn.TransactionID(),
				"error", err,
			)
			continue
		}
		if res.Changed {
			expired++
		}
	}
	return expired, nil
}
