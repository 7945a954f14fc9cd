package usecases_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/application/payment/ledger"
	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

func (h *harness) seedApproved(t *testing.T) *payment.Transaction {
	t.Helper()
	txn := h.seed(t)
	_, err := h.ledger.RecordProviderResult(context.Background(), txn.TransactionID(), ledger.ProviderResult{ProviderTransactionID: "ORDER-9"})
	require.NoError(t, err)
	res, err := h.ledger.TransitionStatus(context.Background(), txn.TransactionID(), vo.StatusProcessing, ledger.Evidence{Source: "test"})
	require.NoError(t, err)
	return res.Transaction
}

func (h *harness) captureReturns(status vo.TransactionStatus, amount string) {
	h.adapter.CaptureFunc = func(_ context.Context, _ *gateway.Identity, orderID string) (*gateway.CaptureResult, error) {
		return &gateway.CaptureResult{
			ProviderTransactionID: orderID,
			Status:                status,
			Amount:                decimal.RequireFromString(amount),
			Currency:              "USD",
		}, nil
	}
}

func TestCapturePayment_Success(t *testing.T) {
	h := newHarness(t)
	txn := h.seedApproved(t)
	h.captureReturns(vo.StatusCaptured, "25.50")

	res, err := h.capture.Execute(context.Background(), usecases.CapturePaymentCommand{TransactionID: txn.TransactionID(), UserID: 11})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, vo.StatusProcessing, res.From)
	assert.Equal(t, vo.StatusCaptured, res.Transaction.Status())
	assert.Equal(t, []string{"ORDER-9"}, h.adapter.Captures())
	waitPublished(t, h.publisher)
}

func TestCapturePayment_AlreadyCapturedIsIdempotent(t *testing.T) {
	h := newHarness(t)
	txn := h.seedApproved(t)
	h.captureReturns(vo.StatusCaptured, "25.50")
	cmd := usecases.CapturePaymentCommand{TransactionID: txn.TransactionID(), UserID: 11}

	_, err := h.capture.Execute(context.Background(), cmd)
	require.NoError(t, err)
	waitPublished(t, h.publisher)

	res, err := h.capture.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Len(t, h.adapter.Captures(), 1)
	assertNotPublished(t, h.publisher)
}

func TestCapturePayment_AmountMismatchFails(t *testing.T) {
	h := newHarness(t)
	txn := h.seedApproved(t)
	h.captureReturns(vo.StatusCaptured, "20.00")

	res, err := h.capture.Execute(context.Background(), usecases.CapturePaymentCommand{TransactionID: txn.TransactionID(), UserID: 11})
	require.NoError(t, err)
	assert.Equal(t, vo.StatusFailed, res.Transaction.Status())
	assert.Contains(t, res.Transaction.FailureReason(), "amount mismatch")
	assertNotPublished(t, h.publisher)
}

func TestCapturePayment_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, h *harness) usecases.CapturePaymentCommand
		want    error
	}{
		{
			name: "other user",
			prepare: func(t *testing.T, h *harness) usecases.CapturePaymentCommand {
				return usecases.CapturePaymentCommand{TransactionID: h.seedApproved(t).TransactionID(), UserID: 12}
			},
			want: payment.ErrTransactionNotFound,
		},
		{
			name: "missing transaction",
			prepare: func(t *testing.T, h *harness) usecases.CapturePaymentCommand {
				return usecases.CapturePaymentCommand{TransactionID: "txnMissing", UserID: 11}
			},
			want: payment.ErrTransactionNotFound,
		},
		{
			name: "no provider order",
			prepare: func(t *testing.T, h *harness) usecases.CapturePaymentCommand {
				return usecases.CapturePaymentCommand{TransactionID: h.seed(t).TransactionID(), UserID: 11}
			},
			want: payment.ErrInvalidTransition,
		},
		{
			name: "already failed",
			prepare: func(t *testing.T, h *harness) usecases.CapturePaymentCommand {
				txn := h.seedApproved(t)
				_, err := h.ledger.TransitionStatus(context.Background(), txn.TransactionID(), vo.StatusFailed, ledger.Evidence{Source: "test"})
				require.NoError(t, err)
				return usecases.CapturePaymentCommand{TransactionID: txn.TransactionID(), UserID: 11}
			},
			want: payment.ErrInvalidTransition,
		},
		{
			name: "gateway without capture",
			prepare: func(t *testing.T, h *harness) usecases.CapturePaymentCommand {
				return usecases.CapturePaymentCommand{TransactionID: h.seedApproved(t).TransactionID(), UserID: 11}
			},
			want: payment.ErrCaptureNotSupported,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			cmd := tt.prepare(t, h)

			_, err := h.capture.Execute(context.Background(), cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// =====================================================================
// GetPayment
// =====================================================================

func TestGetPayment(t *testing.T) {
	h := newHarness(t)
	txn := h.seed(t)
	get := usecases.NewGetPaymentUseCase(h.ledger, logger.NewNop())

	got, err := get.Execute(context.Background(), usecases.GetPaymentQuery{TransactionID: txn.TransactionID(), UserID: 11})
	require.NoError(t, err)
	assert.Equal(t, txn.TransactionID(), got.TransactionID())

	_, err = get.Execute(context.Background(), usecases.GetPaymentQuery{TransactionID: txn.TransactionID(), UserID: 12})
	assert.ErrorIs(t, err, payment.ErrTransactionNotFound)

	_, err = get.Execute(context.Background(), usecases.GetPaymentQuery{TransactionID: "txnMissing", UserID: 11})
	assert.ErrorIs(t, err, payment.ErrTransactionNotFound)
}
