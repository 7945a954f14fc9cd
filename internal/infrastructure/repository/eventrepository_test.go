package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/infrastructure/persistence/models"
)

func TestTransactionEventRepository_AppendAndList(t *testing.T) {
	repo := NewTransactionEventRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, &payment.TransactionEvent{
		TransactionID: "txn1", Kind: payment.EventKindCreated, ToStatus: vo.StatusPending, Source: "create", CreatedAt: baseTime,
	}))
	require.NoError(t, repo.Append(ctx, &payment.TransactionEvent{
		TransactionID: "txn1", Kind: payment.EventKindTransition, FromStatus: vo.StatusPending, ToStatus: vo.StatusCaptured,
		Source: "callback:esewa", Evidence: map[string]any{"provider_transaction_id": "000AWEO"}, CreatedAt: baseTime,
	}))

	events, err := repo.ListByTransactionID(ctx, "txn1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, payment.EventKindCreated, events[0].Kind)
	assert.Equal(t, vo.StatusCaptured, events[1].ToStatus)
	assert.Equal(t, "000AWEO", events[1].Evidence["provider_transaction_id"])
}

func TestCallbackEventRepository_SaveAndList(t *testing.T) {
	repo := NewCallbackEventRepository(setupTestDB(t))
	ctx := context.Background()

	e := &payment.CallbackEvent{
		ID: uuid.NewString(), GatewayCode: "payu", Method: "POST", Payload: "txnid=txn2&status=success",
		TransactionID: "txn2", Outcome: payment.CallbackApplied, ReceivedAt: baseTime,
	}
	require.NoError(t, repo.Save(ctx, e))

	events, err := repo.ListByTransactionID(ctx, "txn2")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, payment.CallbackApplied, events[0].Outcome)
	assert.Equal(t, e.Payload, events[0].Payload)
}

func TestRecoveryNotificationRepository_RecordOnce(t *testing.T) {
	repo := NewRecoveryNotificationRepository(setupTestDB(t))
	ctx := context.Background()

	n := &payment.RecoveryNotification{TransactionID: "txn3", Recipient: "a@example.com", Template: "payment_reminder", SentAt: baseTime}
	require.NoError(t, repo.Record(ctx, n))

	again := *n
	again.ID = 0
	assert.ErrorIs(t, repo.Record(ctx, &again), payment.ErrAlreadyNotified)

	exists, err := repo.Exists(ctx, "txn3")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, "txn4")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestQuoteReader(t *testing.T) {
	gdb := setupTestDB(t)
	reader := NewQuoteReader(gdb)
	ctx := context.Background()

	require.NoError(t, gdb.Create(&[]models.QuoteModel{
		{ID: "Q-1", UserID: 5, TotalAmount: decimal.RequireFromString("60.50"), Currency: "npr"},
		{ID: "Q-2", UserID: 5, TotalAmount: decimal.RequireFromString("39.50"), Currency: "NPR", CustomerName: "Gita", CustomerEmail: "gita@example.com"},
		{ID: "Q-3", UserID: 6, TotalAmount: decimal.NewFromInt(10), Currency: "NPR"},
		{ID: "Q-4", UserID: 5, TotalAmount: decimal.NewFromInt(10), Currency: "USD"},
	}).Error)

	summary, err := reader.ReadQuotes(ctx, []string{"Q-2", "Q-1"})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(summary.Amount))
	assert.Equal(t, "NPR", summary.Currency)
	assert.Equal(t, uint(5), summary.UserID)
	assert.Equal(t, "gita@example.com", summary.Customer.Email)

	_, err = reader.ReadQuotes(ctx, []string{"Q-1", "Q-9"})
	assert.ErrorIs(t, err, usecases.ErrQuoteNotFound)

	_, err = reader.ReadQuotes(ctx, []string{"Q-1", "Q-3"})
	assert.ErrorIs(t, err, usecases.ErrQuoteMismatch)

	_, err = reader.ReadQuotes(ctx, []string{"Q-1", "Q-4"})
	assert.ErrorIs(t, err, usecases.ErrQuoteMismatch)
}

func TestCustomerDirectory(t *testing.T) {
	gdb := setupTestDB(t)
	dir := NewCustomerDirectory(gdb)

	require.NoError(t, gdb.Create(&models.ProfileModel{UserID: 9, FullName: "Maya", Email: "maya@example.com"}).Error)

	c, err := dir.LookupCustomer(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, "maya@example.com", c.Email)

	_, err = dir.LookupCustomer(context.Background(), 10)
	assert.ErrorIs(t, err, usecases.ErrCustomerNotFound)
}
