package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/paygate/internal/application/payment/ledger"
	"github.com/orris-inc/paygate/internal/application/payment/testutil"
	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/shared/biztime"
	"github.com/orris-inc/paygate/internal/shared/id"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

type fixture struct {
	svc    *ledger.Service
	txns   *testutil.MockTransactionRepository
	events *testutil.MockTransactionEventRepository
	clock  *biztime.FixedClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		txns:   testutil.NewMockTransactionRepository(),
		events: testutil.NewMockTransactionEventRepository(),
		clock:  &biztime.FixedClock{At: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.svc = ledger.NewService(f.txns, f.events, testutil.PassthroughTxManager{}, logger.NewNop(), ledger.WithClock(f.clock))
	return f
}

func (f *fixture) create(t *testing.T) *payment.Transaction {
	t.Helper()
	txnID, err := id.NewTransactionID()
	require.NoError(t, err)
	txn, err := f.svc.CreateTransaction(context.Background(), payment.NewTransactionParams{
		TransactionID: txnID,
		GatewayCode:   "esewa",
		UserID:        7,
		OrderIDs:      []string{"Q-1"},
		Amount:        vo.MustMoney("100.00", "NPR"),
	})
	require.NoError(t, err)
	return txn
}

// =====================================================================
// CreateTransaction
// =====================================================================

func TestCreateTransaction(t *testing.T) {
	f := newFixture(t)

	a := f.create(t)
	b := f.create(t)

	assert.Equal(t, vo.StatusPending, a.Status())
	assert.NotEqual(t, a.TransactionID(), b.TransactionID())
	assert.Equal(t, 2, f.txns.Count())
	assert.Equal(t, []payment.EventKind{payment.EventKindCreated}, f.events.Kinds(a.TransactionID()))
}

func TestCreateTransaction_RejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateTransaction(context.Background(), payment.NewTransactionParams{
		TransactionID: "txnZero",
		GatewayCode:   "esewa",
		OrderIDs:      []string{"Q-1"},
		Amount:        vo.MustMoney("0", "NPR"),
	})
	assert.ErrorIs(t, err, payment.ErrInvalidAmount)
	assert.Equal(t, 0, f.txns.Count())
}

func TestCreateTransaction_RepositoryFailure(t *testing.T) {
	f := newFixture(t)
	f.txns.CreateError = errors.New("db down")

	_, err := f.svc.CreateTransaction(context.Background(), payment.NewTransactionParams{
		TransactionID: "txnFail",
		GatewayCode:   "esewa",
		OrderIDs:      []string{"Q-1"},
		Amount:        vo.MustMoney("5", "NPR"),
	})
	assert.Error(t, err)
}

// =====================================================================
// RecordProviderResult
// =====================================================================

func TestRecordProviderResult(t *testing.T) {
	f := newFixture(t)
	txn := f.create(t)
	ctx := context.Background()

	expires := f.clock.Now().Add(3 * time.Hour)
	updated, err := f.svc.RecordProviderResult(ctx, txn.TransactionID(), ledger.ProviderResult{
		ProviderTransactionID: "ORDER-1",
		Raw:                   map[string]any{"status": "CREATED"},
		ExpiresAt:             &expires,
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", updated.ProviderTransactionID())

	stored := f.txns.Stored(txn.TransactionID())
	assert.Equal(t, "ORDER-1", stored.ProviderTransactionID())
	assert.Equal(t, "CREATED", stored.RawResponse()["status"])
	require.NotNil(t, stored.ExpiresAt())
	assert.True(t, expires.Equal(*stored.ExpiresAt()))

	_, err = f.svc.RecordProviderResult(ctx, txn.TransactionID(), ledger.ProviderResult{ProviderTransactionID: "ORDER-1"})
	assert.NoError(t, err, "the same provider id may be recorded again")

	_, err = f.svc.RecordProviderResult(ctx, txn.TransactionID(), ledger.ProviderResult{ProviderTransactionID: "ORDER-2"})
	assert.ErrorIs(t, err, payment.ErrProviderIDMismatch)
	assert.Equal(t, "ORDER-1", f.txns.Stored(txn.TransactionID()).ProviderTransactionID())

	found, err := f.svc.FindByProviderID(ctx, "esewa", "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, txn.TransactionID(), found.TransactionID())
}

// =====================================================================
// TransitionStatus
// =====================================================================

func TestTransitionStatus_ForwardMoves(t *testing.T) {
	f := newFixture(t)
	txn := f.create(t)
	ctx := context.Background()

	res, err := f.svc.TransitionStatus(ctx, txn.TransactionID(), vo.StatusProcessing, ledger.Evidence{Source: "callback:paypal"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.CapturedNow())
	assert.Equal(t, vo.StatusPending, res.From)

	res, err = f.svc.TransitionStatus(ctx, txn.TransactionID(), vo.StatusCaptured, ledger.Evidence{Source: "capture"})
	require.NoError(t, err)
	assert.True(t, res.CapturedNow())
	assert.NotNil(t, res.Transaction.CapturedAt())

	assert.Equal(t, vo.StatusCaptured, f.txns.Stored(txn.TransactionID()).Status())
	assert.Equal(t, []payment.EventKind{
		payment.EventKindCreated, payment.EventKindTransition, payment.EventKindTransition,
	}, f.events.Kinds(txn.TransactionID()))
}

func TestTransitionStatus_DuplicateSuccessIsNoop(t *testing.T) {
	f := newFixture(t)
	txn := f.create(t)
	ctx := context.Background()

	first, err := f.svc.TransitionStatus(ctx, txn.TransactionID(), vo.StatusCaptured, ledger.Evidence{Source: "callback:esewa"})
	require.NoError(t, err)
	assert.True(t, first.CapturedNow())
	version := f.txns.Stored(txn.TransactionID()).Version()

	second, err := f.svc.TransitionStatus(ctx, txn.TransactionID(), vo.StatusCaptured, ledger.Evidence{Source: "callback:esewa"})
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.False(t, second.CapturedNow())
	assert.Equal(t, version, f.txns.Stored(txn.TransactionID()).Version())
	assert.Equal(t, payment.EventKindDuplicate, f.events.Kinds(txn.TransactionID())[2])
}

func TestTransitionStatus_ConflictingFinalState(t *testing.T) {
	f := newFixture(t)
	txn := f.create(t)
	ctx := context.Background()

	_, err := f.svc.TransitionStatus(ctx, txn.TransactionID(), vo.StatusCaptured, ledger.Evidence{Source: "callback:payu"})
	require.NoError(t, err)

	res, err := f.svc.TransitionStatus(ctx, txn.TransactionID(), vo.StatusFailed, ledger.Evidence{Source: "callback:payu", Reason: "bank declined"})
	assert.ErrorIs(t, err, payment.ErrConflictingFinalState)
	require.NotNil(t, res)
	assert.True(t, res.Transaction.NeedsReview())

	stored := f.txns.Stored(txn.TransactionID())
	assert.Equal(t, vo.StatusCaptured, stored.Status(), "the first final status wins")
	assert.True(t, stored.NeedsReview())
	assert.Contains(t, stored.ReviewReason(), "failed after captured")
	assert.Empty(t, stored.FailureReason())

	kinds := f.events.Kinds(txn.TransactionID())
	assert.Equal(t, payment.EventKindConflict, kinds[len(kinds)-1])

	review, total, err := f.svc.ListForReview(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, txn.TransactionID(), review[0].TransactionID())
}

func TestTransitionStatus_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup []vo.TransactionStatus
		to    vo.TransactionStatus
	}{
		{"processing back to pending", []vo.TransactionStatus{vo.StatusProcessing}, vo.StatusPending},
		{"captured back to processing", []vo.TransactionStatus{vo.StatusCaptured}, vo.StatusProcessing},
		{"expired back to pending", []vo.TransactionStatus{vo.StatusExpired}, vo.StatusPending},
		{"unknown status", nil, vo.TransactionStatus("refunded")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			txn := f.create(t)
			ctx := context.Background()
			for _, s := range tt.setup {
				_, err := f.svc.TransitionStatus(ctx, txn.TransactionID(), s, ledger.Evidence{Source: "admin"})
				require.NoError(t, err)
			}
			before := f.txns.Stored(txn.TransactionID())

			_, err := f.svc.TransitionStatus(ctx, txn.TransactionID(), tt.to, ledger.Evidence{Source: "admin"})
			assert.ErrorIs(t, err, payment.ErrInvalidTransition)

			after := f.txns.Stored(txn.TransactionID())
			assert.Equal(t, before.Status(), after.Status())
			assert.Equal(t, before.Version(), after.Version())
			assert.False(t, after.NeedsReview())
		})
	}
}

func TestTransitionStatus_FailureReasonStored(t *testing.T) {
	f := newFixture(t)
	txn := f.create(t)

	_, err := f.svc.TransitionStatus(context.Background(), txn.TransactionID(), vo.StatusFailed, ledger.Evidence{Source: "callback:esewa", Reason: "amount mismatch"})
	require.NoError(t, err)
	assert.Equal(t, "amount mismatch", f.txns.Stored(txn.TransactionID()).FailureReason())
}

func TestTransitionStatus_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.TransitionStatus(context.Background(), "txnMissing", vo.StatusCaptured, ledger.Evidence{Source: "admin"})
	assert.ErrorIs(t, err, payment.ErrTransactionNotFound)
}

func TestTransitionStatus_RetriesAfterLostRace(t *testing.T) {
	f := newFixture(t)
	txn := f.create(t)
	ctx := context.Background()

	// A competing writer captures the payment between our read and our write.
	var once sync.Once
	f.txns.BeforeCompareAndUpdate = func(*payment.Transaction) {
		once.Do(func() {
			competing := f.txns.Stored(txn.TransactionID())
			_, err := competing.TransitionTo(vo.StatusCaptured, "", f.clock.Now())
			require.NoError(t, err)
			f.txns.Put(competing)
		})
	}

	res, err := f.svc.TransitionStatus(ctx, txn.TransactionID(), vo.StatusCaptured, ledger.Evidence{Source: "callback:paypal"})
	require.NoError(t, err)
	assert.False(t, res.Changed, "the re-read sees captured and treats the request as a duplicate")
	assert.Equal(t, vo.StatusCaptured, f.txns.Stored(txn.TransactionID()).Status())
}

func TestTransitionStatus_GivesUpAfterMaxRetries(t *testing.T) {
	f := newFixture(t)
	f.svc = ledger.NewService(f.txns, f.events, testutil.PassthroughTxManager{}, logger.NewNop(), ledger.WithClock(f.clock), ledger.WithMaxRetries(2))
	txn := f.create(t)

	// Every write races with a metadata-only update that bumps the version.
	f.txns.BeforeCompareAndUpdate = func(*payment.Transaction) {
		bumped := f.txns.Stored(txn.TransactionID())
		require.NoError(t, bumped.AttachProviderResult("", map[string]any{"n": 1}, f.clock.Now()))
		f.txns.Put(bumped)
	}

	_, err := f.svc.TransitionStatus(context.Background(), txn.TransactionID(), vo.StatusCaptured, ledger.Evidence{Source: "admin"})
	assert.ErrorIs(t, err, payment.ErrStaleTransaction)
	assert.Equal(t, vo.StatusPending, f.txns.Stored(txn.TransactionID()).Status())
}

func TestTransitionStatus_ConcurrentCapturesApplyOnce(t *testing.T) {
	f := newFixture(t)
	f.svc = ledger.NewService(f.txns, f.events, testutil.PassthroughTxManager{}, logger.NewNop(), ledger.WithClock(f.clock), ledger.WithMaxRetries(10))
	txn := f.create(t)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.TransitionStatus(context.Background(), txn.TransactionID(), vo.StatusCaptured, ledger.Evidence{Source: "callback:esewa"})
			if err != nil {
				return
			}
			if res.CapturedNow() {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	transitions := 0
	for _, k := range f.events.Kinds(txn.TransactionID()) {
		if k == payment.EventKindTransition {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions)
}

// =====================================================================
// Reads
// =====================================================================

func TestEvents(t *testing.T) {
	f := newFixture(t)
	txn := f.create(t)
	ctx := context.Background()

	_, err := f.svc.TransitionStatus(ctx, txn.TransactionID(), vo.StatusFailed, ledger.Evidence{
		Source:  "callback:esewa",
		Reason:  "amount mismatch",
		Details: map[string]any{"declared_amount": decimal.NewFromInt(99).String()},
	})
	require.NoError(t, err)

	events, err := f.svc.Events(ctx, txn.TransactionID())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "amount mismatch", events[1].Evidence["reason"])
	assert.Equal(t, "99", events[1].Evidence["declared_amount"])

	_, err = f.svc.Events(ctx, "txnMissing")
	assert.ErrorIs(t, err, payment.ErrTransactionNotFound)
}

func TestTransitionIfOpen_LeavesFinalAlone(t *testing.T) {
	f := newFixture(t)
	txn := f.create(t)
	ctx := context.Background()

	_, err := f.svc.TransitionStatus(ctx, txn.TransactionID(), vo.StatusCaptured, ledger.Evidence{Source: "callback:esewa"})
	require.NoError(t, err)

	res, err := f.svc.TransitionIfOpen(ctx, txn.TransactionID(), vo.StatusExpired, ledger.Evidence{Source: "expire"})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	stored := f.txns.Stored(txn.TransactionID())
	assert.Equal(t, vo.StatusCaptured, stored.Status())
	assert.False(t, stored.NeedsReview())
}
