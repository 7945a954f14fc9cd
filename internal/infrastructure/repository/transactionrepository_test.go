package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/infrastructure/persistence/models"
	"github.com/orris-inc/paygate/internal/shared/id"
)

var baseTime = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.TransactionModel{},
		&models.TransactionEventModel{},
		&models.CallbackEventModel{},
		&models.RecoveryNotificationModel{},
		&models.QuoteModel{},
		&models.ProfileModel{},
	))
	return db
}

func newTransaction(t *testing.T, createdAt time.Time, mutate func(p *payment.NewTransactionParams)) *payment.Transaction {
	t.Helper()
	txnID, err := id.NewTransactionID()
	require.NoError(t, err)

	p := payment.NewTransactionParams{
		TransactionID: txnID,
		GatewayCode:   "paypal",
		UserID:        42,
		OrderIDs:      []string{"Q-100", "Q-101"},
		Amount:        vo.MustMoney("100.00", "NPR"),
		Conversion:    &payment.Conversion{Amount: vo.MustMoney("0.75", "USD"), Rate: decimal.NewFromInt(133)},
		Customer:      payment.Customer{Name: "Hari", Email: "hari@example.com"},
		Metadata:      map[string]string{"channel": "web"},
		SuccessURL:    "https://shop.example.com/ok",
		CancelURL:     "https://shop.example.com/cancel",
	}
	if mutate != nil {
		mutate(&p)
	}
	txn, err := payment.NewTransaction(p, createdAt)
	require.NoError(t, err)
	return txn
}

func TestTransactionRepository_CreateAndGet(t *testing.T) {
	repo := NewTransactionRepository(setupTestDB(t))
	ctx := context.Background()

	txn := newTransaction(t, baseTime, nil)
	require.NoError(t, repo.Create(ctx, txn))
	assert.NotZero(t, txn.ID())

	found, err := repo.GetByTransactionID(ctx, txn.TransactionID())
	require.NoError(t, err)

	assert.Equal(t, vo.StatusPending, found.Status())
	assert.Equal(t, []string{"Q-100", "Q-101"}, found.OrderIDs())
	assert.True(t, decimal.RequireFromString("100").Equal(found.Amount().Amount()))
	require.NotNil(t, found.Conversion())
	assert.Equal(t, "USD", found.Conversion().Amount.Currency())
	assert.True(t, decimal.RequireFromString("0.75").Equal(found.Conversion().Amount.Amount()))
	assert.True(t, decimal.NewFromInt(133).Equal(found.Conversion().Rate))
	assert.Equal(t, "web", found.Metadata()["channel"])
	assert.Equal(t, "hari@example.com", found.Customer().Email)
	assert.Equal(t, 1, found.Version())
}

func TestTransactionRepository_GetMissing(t *testing.T) {
	repo := NewTransactionRepository(setupTestDB(t))

	_, err := repo.GetByTransactionID(context.Background(), "txnNope")
	assert.ErrorIs(t, err, payment.ErrTransactionNotFound)

	_, err = repo.GetByProviderTransactionID(context.Background(), "paypal", "O-1")
	assert.ErrorIs(t, err, payment.ErrTransactionNotFound)
}

func TestTransactionRepository_DuplicateTransactionID(t *testing.T) {
	repo := NewTransactionRepository(setupTestDB(t))
	ctx := context.Background()

	txn := newTransaction(t, baseTime, nil)
	require.NoError(t, repo.Create(ctx, txn))

	dup := newTransaction(t, baseTime, func(p *payment.NewTransactionParams) { p.TransactionID = txn.TransactionID() })
	assert.Error(t, repo.Create(ctx, dup))
}

func TestTransactionRepository_CompareAndUpdate(t *testing.T) {
	repo := NewTransactionRepository(setupTestDB(t))
	ctx := context.Background()

	txn := newTransaction(t, baseTime, nil)
	require.NoError(t, repo.Create(ctx, txn))

	require.NoError(t, txn.AttachProviderResult("O-77", map[string]any{"status": "CREATED"}, baseTime))
	_, err := txn.TransitionTo(vo.StatusProcessing, "", baseTime)
	require.NoError(t, err)

	ok, err := repo.CompareAndUpdate(ctx, txn, vo.StatusPending, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	stale := newTransaction(t, baseTime, func(p *payment.NewTransactionParams) { p.TransactionID = txn.TransactionID() })
	_, err = stale.TransitionTo(vo.StatusFailed, "late", baseTime)
	require.NoError(t, err)
	ok, err = repo.CompareAndUpdate(ctx, stale, vo.StatusPending, 1)
	require.NoError(t, err)
	assert.False(t, ok, "a write based on an old version must not apply")

	found, err := repo.GetByProviderTransactionID(ctx, "paypal", "O-77")
	require.NoError(t, err)
	assert.Equal(t, vo.StatusProcessing, found.Status())
	assert.Equal(t, txn.Version(), found.Version())
	assert.Equal(t, "CREATED", found.RawResponse()["status"])
}

func TestTransactionRepository_MarkNeedsReview(t *testing.T) {
	repo := NewTransactionRepository(setupTestDB(t))
	ctx := context.Background()

	a := newTransaction(t, baseTime, nil)
	b := newTransaction(t, baseTime, nil)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	require.NoError(t, repo.MarkNeedsReview(ctx, a.TransactionID(), "captured then failed"))
	assert.ErrorIs(t, repo.MarkNeedsReview(ctx, "txnMissing", "x"), payment.ErrTransactionNotFound)

	items, total, err := repo.ListNeedsReview(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, a.TransactionID(), items[0].TransactionID())
	assert.Equal(t, "captured then failed", items[0].ReviewReason())
	assert.Equal(t, 1, items[0].Version())
}

func TestTransactionRepository_ListStalePending(t *testing.T) {
	gdb := setupTestDB(t)
	repo := NewTransactionRepository(gdb)
	notifications := NewRecoveryNotificationRepository(gdb)
	ctx := context.Background()

	old := newTransaction(t, baseTime.Add(-3*time.Hour), nil)
	older := newTransaction(t, baseTime.Add(-4*time.Hour), nil)
	notified := newTransaction(t, baseTime.Add(-5*time.Hour), nil)
	fresh := newTransaction(t, baseTime.Add(-10*time.Minute), nil)
	captured := newTransaction(t, baseTime.Add(-6*time.Hour), nil)
	_, err := captured.TransitionTo(vo.StatusCaptured, "", baseTime)
	require.NoError(t, err)

	for _, txn := range []*payment.Transaction{old, older, notified, fresh, captured} {
		require.NoError(t, repo.Create(ctx, txn))
	}
	require.NoError(t, notifications.Record(ctx, &payment.RecoveryNotification{
		TransactionID: notified.TransactionID(), Recipient: "a@example.com", Template: "payment_reminder", SentAt: baseTime,
	}))

	stale, err := repo.ListStalePending(ctx, baseTime.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, older.TransactionID(), stale[0].TransactionID())
	assert.Equal(t, old.TransactionID(), stale[1].TransactionID())

	limited, err := repo.ListStalePending(ctx, baseTime.Add(-time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, notifications.Record(ctx, &payment.RecoveryNotification{
		TransactionID: older.TransactionID(), Template: "no_recipient", SentAt: baseTime,
	}))
	stale, err = repo.ListStalePending(ctx, baseTime.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.TransactionID(), stale[0].TransactionID())
}

func TestTransactionRepository_ListExpirable(t *testing.T) {
	repo := NewTransactionRepository(setupTestDB(t))
	ctx := context.Background()

	past := baseTime.Add(-time.Minute)
	future := baseTime.Add(time.Hour)

	lapsed := newTransaction(t, baseTime, func(p *payment.NewTransactionParams) { p.ExpiresAt = &past })
	valid := newTransaction(t, baseTime, func(p *payment.NewTransactionParams) { p.ExpiresAt = &future })
	open := newTransaction(t, baseTime, nil)
	for _, txn := range []*payment.Transaction{lapsed, valid, open} {
		require.NoError(t, repo.Create(ctx, txn))
	}

	items, err := repo.ListExpirable(ctx, baseTime, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, lapsed.TransactionID(), items[0].TransactionID())
}
