package usecases_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

func TestListReviewQueue(t *testing.T) {
	h := newHarness(t)
	flagged := h.seed(t)
	h.seed(t)

	h.verifyAs(settled(flagged.TransactionID(), vo.StatusCaptured))
	_, err := h.deliver(t)
	require.NoError(t, err)
	h.verifyAs(settled(flagged.TransactionID(), vo.StatusFailed))
	_, err = h.deliver(t)
	require.NoError(t, err)

	uc := usecases.NewListReviewQueueUseCase(h.ledger, logger.NewNop())

	txns, total, err := uc.Execute(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, txns, 1)
	assert.Equal(t, flagged.TransactionID(), txns[0].TransactionID())

	txns, total, err = uc.Execute(context.Background(), 2, 500)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Empty(t, txns)
}

func TestGetTransactionAudit(t *testing.T) {
	h := newHarness(t)
	txn := h.seed(t)

	h.verifyAs(settled(txn.TransactionID(), vo.StatusCaptured))
	_, err := h.deliver(t)
	require.NoError(t, err)
	waitPublished(t, h.publisher)

	uc := usecases.NewGetTransactionAuditUseCase(h.ledger, h.callbacks, logger.NewNop())
	audit, err := uc.Execute(context.Background(), txn.TransactionID())
	require.NoError(t, err)

	assert.Equal(t, vo.StatusCaptured, audit.Transaction.Status())
	assert.Contains(t, kinds(audit.Events), payment.EventKindTransition)
	require.Len(t, audit.Callbacks, 1)
	assert.Equal(t, payment.CallbackApplied, audit.Callbacks[0].Outcome)

	_, err = uc.Execute(context.Background(), "missing")
	assert.ErrorIs(t, err, payment.ErrTransactionNotFound)
}

func kinds(events []*payment.TransactionEvent) []payment.EventKind {
	out := make([]payment.EventKind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}
