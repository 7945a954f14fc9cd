package usecases

import (
	"context"
	"time"

	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/shared/goroutine"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

const publishTimeout = 30 * time.Second

// publishCaptured notifies fulfillment in the background. The ledger already
// holds the captured status, so a publish failure is only logged.
func publishCaptured(log logger.Interface, publisher FulfillmentPublisher, txn *payment.Transaction) {
	if publisher == nil {
		return
	}
	event := payment.NewPaymentCapturedEvent(txn)
	goroutine.SafeGo(log, "payment-captured-publish", func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := publisher.PublishCaptured(ctx, event); err != nil {
			log.Errorw("failed to publish payment captured event",
				"transaction_id", event.TransactionID,
				"error", err,
			)
		}
	})
}
