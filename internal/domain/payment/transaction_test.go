package payment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestTransaction(t *testing.T) *Transaction {
	t.Helper()
	txn, err := NewTransaction(NewTransactionParams{
		TransactionID: "txnAAAAAAAAAAAAAAAAAAAA",
		GatewayCode:   "ESEWA",
		UserID:        7,
		OrderIDs:      []string{"Q-1", "Q-2", "Q-1"},
		Amount:        vo.MustMoney("100.00", "NPR"),
		Customer:      Customer{Name: "Sita", Email: "sita@example.com"},
	}, testNow)
	require.NoError(t, err)
	return txn
}

// =====================================================================
// Creation
// =====================================================================

func TestNewTransaction_StartsPending(t *testing.T) {
	txn := newTestTransaction(t)

	assert.Equal(t, vo.StatusPending, txn.Status())
	assert.Equal(t, "esewa", txn.GatewayCode())
	assert.Equal(t, []string{"Q-1", "Q-2"}, txn.OrderIDs())
	assert.Equal(t, 1, txn.Version())
	assert.False(t, txn.IsFinal())
}

func TestNewTransaction_Validation(t *testing.T) {
	base := NewTransactionParams{
		TransactionID: "txnBBBBBBBBBBBBBBBBBBBB",
		GatewayCode:   "payu",
		OrderIDs:      []string{"Q-9"},
		Amount:        vo.MustMoney("10", "INR"),
	}

	tests := []struct {
		name   string
		mutate func(p *NewTransactionParams)
	}{
		{"missing id", func(p *NewTransactionParams) { p.TransactionID = "" }},
		{"missing gateway", func(p *NewTransactionParams) { p.GatewayCode = "" }},
		{"no orders", func(p *NewTransactionParams) { p.OrderIDs = nil }},
		{"zero amount", func(p *NewTransactionParams) { p.Amount = vo.MustMoney("0", "INR") }},
		{"negative amount", func(p *NewTransactionParams) { p.Amount = vo.MustMoney("-1", "INR") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, err := NewTransaction(p, testNow)
			assert.Error(t, err)
		})
	}
}

// =====================================================================
// Transitions
// =====================================================================

func TestTransitionTo_Captured(t *testing.T) {
	txn := newTestTransaction(t)

	changed, err := txn.TransitionTo(vo.StatusCaptured, "", testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, vo.StatusCaptured, txn.Status())
	require.NotNil(t, txn.CapturedAt())
	assert.Equal(t, 2, txn.Version())
}

func TestTransitionTo_SameTerminalIsNoop(t *testing.T) {
	txn := newTestTransaction(t)
	_, err := txn.TransitionTo(vo.StatusCaptured, "", testNow)
	require.NoError(t, err)

	changed, err := txn.TransitionTo(vo.StatusCaptured, "", testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 2, txn.Version())
}

func TestTransitionTo_DifferentTerminalConflicts(t *testing.T) {
	txn := newTestTransaction(t)
	_, err := txn.TransitionTo(vo.StatusCaptured, "", testNow)
	require.NoError(t, err)

	_, err = txn.TransitionTo(vo.StatusFailed, "late failure", testNow)
	assert.ErrorIs(t, err, ErrConflictingFinalState)
	assert.Equal(t, vo.StatusCaptured, txn.Status())
}

func TestTransitionTo_BackwardsIsInvalid(t *testing.T) {
	txn := newTestTransaction(t)
	_, err := txn.TransitionTo(vo.StatusProcessing, "", testNow)
	require.NoError(t, err)

	_, err = txn.TransitionTo(vo.StatusPending, "", testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = txn.TransitionTo(vo.StatusFailed, "declined", testNow)
	require.NoError(t, err)
	assert.Equal(t, "declined", txn.FailureReason())

	_, err = txn.TransitionTo(vo.StatusProcessing, "", testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDecideTransition(t *testing.T) {
	tests := []struct {
		from, to vo.TransactionStatus
		want     Transition
		wantErr  error
	}{
		{vo.StatusPending, vo.StatusProcessing, TransitionApply, nil},
		{vo.StatusPending, vo.StatusPending, TransitionNoop, nil},
		{vo.StatusProcessing, vo.StatusCaptured, TransitionApply, nil},
		{vo.StatusFailed, vo.StatusFailed, TransitionNoop, nil},
		{vo.StatusFailed, vo.StatusCaptured, 0, ErrConflictingFinalState},
		{vo.StatusExpired, vo.StatusFailed, 0, ErrConflictingFinalState},
		{vo.StatusCaptured, vo.StatusProcessing, 0, ErrInvalidTransition},
		{vo.StatusPending, "paid", 0, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got, err := DecideTransition(tt.from, tt.to)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =====================================================================
// Provider results and amounts
// =====================================================================

func TestAttachProviderResult_NeverOverwritesDifferentID(t *testing.T) {
	txn := newTestTransaction(t)

	require.NoError(t, txn.AttachProviderResult("PP-1", map[string]any{"status": "CREATED"}, testNow))
	require.NoError(t, txn.AttachProviderResult("PP-1", nil, testNow))
	assert.Equal(t, "CREATED", txn.RawResponse()["status"])

	err := txn.AttachProviderResult("PP-2", nil, testNow)
	assert.ErrorIs(t, err, ErrProviderIDMismatch)
	assert.Equal(t, "PP-1", txn.ProviderTransactionID())
}

func TestMatchesCharged_UsesConvertedAmount(t *testing.T) {
	txn, err := NewTransaction(NewTransactionParams{
		TransactionID: "txnCCCCCCCCCCCCCCCCCCCC",
		GatewayCode:   "paypal",
		OrderIDs:      []string{"Q-3"},
		Amount:        vo.MustMoney("100.00", "NPR"),
		Conversion: &Conversion{
			Amount: vo.MustMoney("0.75", "USD"),
			Rate:   decimal.NewFromInt(133),
		},
	}, testNow)
	require.NoError(t, err)

	assert.True(t, txn.MatchesCharged(decimal.RequireFromString("0.750"), "usd"))
	assert.False(t, txn.MatchesCharged(decimal.RequireFromString("100"), "NPR"))
	assert.False(t, txn.MatchesCharged(decimal.RequireFromString("0.76"), "USD"))
}

func TestIsExpired(t *testing.T) {
	txn := newTestTransaction(t)
	assert.False(t, txn.IsExpired(testNow.Add(24*time.Hour)))

	exp := testNow.Add(5 * time.Minute)
	txn.expiresAt = &exp
	assert.False(t, txn.IsExpired(testNow))
	assert.True(t, txn.IsExpired(testNow.Add(6*time.Minute)))
}

func TestNewPaymentCapturedEvent(t *testing.T) {
	txn := newTestTransaction(t)
	at := testNow.Add(2 * time.Minute)
	_, err := txn.TransitionTo(vo.StatusCaptured, "", at)
	require.NoError(t, err)

	evt := NewPaymentCapturedEvent(txn)
	assert.Equal(t, txn.TransactionID(), evt.TransactionID)
	assert.Equal(t, "NPR", evt.Currency)
	assert.Equal(t, at, evt.CapturedAt)
	assert.Equal(t, []string{"Q-1", "Q-2"}, evt.OrderIDs)
}
