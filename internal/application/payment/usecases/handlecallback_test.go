package usecases_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/application/payment/ledger"
	"github.com/orris-inc/paygate/internal/application/payment/testutil"
	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

func settled(ref string, status vo.TransactionStatus) gateway.Verification {
	return gateway.Verification{
		Valid:                 true,
		TransactionRef:        ref,
		ProviderTransactionID: "PRV-" + ref,
		DeclaredStatus:        status,
		Amount:                decimal.RequireFromString("25.50"),
		Currency:              "USD",
		Signature:             "sig",
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []payment.CallbackOutcome
}

func (o *recordingObserver) CallbackProcessed(_ string, outcome payment.CallbackOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

// =====================================================================
// Applying verified callbacks
// =====================================================================

func TestHandleCallback_CapturedIsApplied(t *testing.T) {
	h := newHarness(t)
	txn := h.seed(t)
	h.verifyAs(settled(txn.TransactionID(), vo.StatusCaptured))

	res, err := h.deliver(t)
	require.NoError(t, err)
	assert.Equal(t, payment.CallbackApplied, res.Outcome)
	assert.Equal(t, vo.StatusCaptured, res.Transaction.Status())

	stored := h.txns.Stored(txn.TransactionID())
	assert.Equal(t, vo.StatusCaptured, stored.Status())
	assert.Equal(t, "PRV-"+txn.TransactionID(), stored.ProviderTransactionID())
	require.NotNil(t, stored.CapturedAt())

	waitPublished(t, h.publisher)
	events := h.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, txn.TransactionID(), events[0].TransactionID)

	recorded := h.callbacks.All()
	require.Len(t, recorded, 1)
	assert.Equal(t, payment.CallbackApplied, recorded[0].Outcome)
	assert.Equal(t, txn.TransactionID(), recorded[0].TransactionID)
	assert.Equal(t, "sig", recorded[0].Signature)
	assert.Equal(t, `{"event":"test"}`, recorded[0].Payload)
	assert.True(t, baseTime.Equal(recorded[0].ReceivedAt))
}

func TestHandleCallback_DuplicateSuccessAppliesOnce(t *testing.T) {
	h := newHarness(t)
	txn := h.seed(t)
	h.verifyAs(settled(txn.TransactionID(), vo.StatusCaptured))

	first, err := h.deliver(t)
	require.NoError(t, err)
	second, err := h.deliver(t)
	require.NoError(t, err)

	assert.Equal(t, payment.CallbackApplied, first.Outcome)
	assert.Equal(t, payment.CallbackDuplicate, second.Outcome)

	waitPublished(t, h.publisher)
	assertNotPublished(t, h.publisher)
	assert.Len(t, h.publisher.Events(), 1)

	kinds := h.events.Kinds(txn.TransactionID())
	transitions := 0
	for _, k := range kinds {
		if k == payment.EventKindTransition {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions)
	assert.Contains(t, kinds, payment.EventKindDuplicate)
}

func TestHandleCallback_ConflictingFinalStateFlagsReview(t *testing.T) {
	h := newHarness(t)
	txn := h.seed(t)

	h.verifyAs(settled(txn.TransactionID(), vo.StatusCaptured))
	_, err := h.deliver(t)
	require.NoError(t, err)

	h.verifyAs(settled(txn.TransactionID(), vo.StatusFailed))
	res, err := h.deliver(t)
	require.NoError(t, err)
	assert.Equal(t, payment.CallbackConflict, res.Outcome)

	stored := h.txns.Stored(txn.TransactionID())
	assert.Equal(t, vo.StatusCaptured, stored.Status())
	assert.True(t, stored.NeedsReview())
	assert.Contains(t, stored.ReviewReason(), "failed after captured")
	assert.Contains(t, h.events.Kinds(txn.TransactionID()), payment.EventKindConflict)
}

func TestHandleCallback_BackwardsMoveIsIgnored(t *testing.T) {
	h := newHarness(t)
	txn := h.seed(t)

	h.verifyAs(settled(txn.TransactionID(), vo.StatusCaptured))
	_, err := h.deliver(t)
	require.NoError(t, err)

	h.verifyAs(settled(txn.TransactionID(), vo.StatusProcessing))
	res, err := h.deliver(t)
	require.NoError(t, err)
	assert.Equal(t, payment.CallbackIgnored, res.Outcome)
	assert.Equal(t, vo.StatusCaptured, h.txns.Stored(txn.TransactionID()).Status())
	assert.False(t, h.txns.Stored(txn.TransactionID()).NeedsReview())
}

func TestHandleCallback_PendingDeclarationIsIgnored(t *testing.T) {
	h := newHarness(t)
	txn := h.seed(t)
	h.verifyAs(settled(txn.TransactionID(), vo.StatusPending))

	res, err := h.deliver(t)
	require.NoError(t, err)
	assert.Equal(t, payment.CallbackIgnored, res.Outcome)

	stored := h.txns.Stored(txn.TransactionID())
	assert.Equal(t, vo.StatusPending, stored.Status())
	// The provider id is still learned from the callback.
	assert.Equal(t, "PRV-"+txn.TransactionID(), stored.ProviderTransactionID())
}

func TestHandleCallback_AmountMismatchFails(t *testing.T) {
	h := newHarness(t)
	txn := h.seed(t)
	v := settled(txn.TransactionID(), vo.StatusCaptured)
	v.Amount = decimal.RequireFromString("0.01")
	h.verifyAs(v)

	res, err := h.deliver(t)
	require.NoError(t, err)
	assert.Equal(t, payment.CallbackApplied, res.Outcome)

	stored := h.txns.Stored(txn.TransactionID())
	assert.Equal(t, vo.StatusFailed, stored.Status())
	assert.Contains(t, stored.FailureReason(), "amount mismatch")
	assertNotPublished(t, h.publisher)
}

func TestHandleCallback_ResolvesByProviderID(t *testing.T) {
	h := newHarness(t)
	txn := h.seed(t)
	_, err := h.ledger.RecordProviderResult(context.Background(), txn.TransactionID(), ledger.ProviderResult{ProviderTransactionID: "ORDER-7"})
	require.NoError(t, err)

	v := settled("", vo.StatusCaptured)
	v.ProviderTransactionID = "ORDER-7"
	h.verifyAs(v)

	res, err := h.deliver(t)
	require.NoError(t, err)
	assert.Equal(t, payment.CallbackApplied, res.Outcome)
	assert.Equal(t, txn.TransactionID(), res.Transaction.TransactionID())
}

// =====================================================================
// Rejected and unmatched callbacks
// =====================================================================

func TestHandleCallback_TamperedPayloadIsRejected(t *testing.T) {
	h := newHarness(t)
	txn := h.seed(t)

	res, err := h.deliver(t)
	assert.ErrorIs(t, err, payment.ErrSignatureInvalid)
	assert.Equal(t, payment.CallbackRejected, res.Outcome)
	assert.Nil(t, res.Transaction)

	assert.Equal(t, vo.StatusPending, h.txns.Stored(txn.TransactionID()).Status())
	recorded := h.callbacks.All()
	require.Len(t, recorded, 1)
	assert.Equal(t, payment.CallbackRejected, recorded[0].Outcome)
	assert.Equal(t, gateway.ReasonSignatureMismatch, recorded[0].Detail)
}

func TestHandleCallback_UnknownTransactionIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	h.verifyAs(settled("txnDoesNotExist000000", vo.StatusCaptured))

	res, err := h.deliver(t)
	require.NoError(t, err)
	assert.Equal(t, payment.CallbackNotFound, res.Outcome)
	assert.Nil(t, res.Transaction)
	assert.Equal(t, payment.CallbackNotFound, h.callbacks.All()[0].Outcome)
}

func TestHandleCallback_ProviderDoesNotKnowReference(t *testing.T) {
	h := newHarness(t)
	h.verifyAs(gateway.Verification{Valid: false, Reason: gateway.ReasonUnknownReference, Interactive: true})

	res, err := h.deliver(t)
	require.NoError(t, err)
	assert.Equal(t, payment.CallbackNotFound, res.Outcome)
	assert.True(t, res.Interactive)
	assert.Empty(t, res.RedirectURL)
}

func TestHandleCallback_OtherGatewaysTransactionNeverMatches(t *testing.T) {
	h := newHarness(t)
	txn := h.seed(t)

	other := testutil.NewFakeAdapter("otherpay")
	other.VerifyFunc = func(context.Context, *gateway.Identity, gateway.CallbackPayload) (*gateway.Verification, error) {
		v := settled(txn.TransactionID(), vo.StatusCaptured)
		return &v, nil
	}
	h.registry.Register(other)
	creds := testutil.NewStaticCredentialStore(testutil.TestIdentity("fakepay"), testutil.TestIdentity("otherpay"))
	callback := usecases.NewHandleCallbackUseCase(h.ledger, h.registry, creds, h.callbacks, h.capture, h.publisher, logger.NewNop())

	res, err := callback.Execute(context.Background(), usecases.HandleCallbackCommand{GatewayCode: "otherpay"})
	require.NoError(t, err)
	assert.Equal(t, payment.CallbackNotFound, res.Outcome)
	assert.Equal(t, vo.StatusPending, h.txns.Stored(txn.TransactionID()).Status())
}

func TestHandleCallback_VerificationUnavailable(t *testing.T) {
	h := newHarness(t)
	h.adapter.VerifyFunc = func(context.Context, *gateway.Identity, gateway.CallbackPayload) (*gateway.Verification, error) {
		return nil, &payment.UpstreamError{Gateway: "fakepay", Operation: "status", StatusCode: 502}
	}

	res, err := h.deliver(t)
	assert.ErrorIs(t, err, payment.ErrUpstream)
	assert.Equal(t, payment.CallbackError, res.Outcome)
	assert.Contains(t, h.callbacks.All()[0].Detail, "502")
}

func TestHandleCallback_UnknownGateway(t *testing.T) {
	h := newHarness(t)

	res, err := h.callback.Execute(context.Background(), usecases.HandleCallbackCommand{GatewayCode: "nope"})
	assert.ErrorIs(t, err, payment.ErrGatewayMisconfigured)
	assert.Equal(t, payment.CallbackError, res.Outcome)
}

// =====================================================================
// Capture on approval and interactive redirects
// =====================================================================

func TestHandleCallback_ApprovalTriggersCapture(t *testing.T) {
	h := newHarness(t)
	txn := h.seed(t)
	v := settled(txn.TransactionID(), vo.StatusProcessing)
	v.ProviderTransactionID = "ORDER-1"
	v.RequiresCapture = true
	h.verifyAs(v)
	h.adapter.CaptureFunc = func(_ context.Context, _ *gateway.Identity, orderID string) (*gateway.CaptureResult, error) {
		return &gateway.CaptureResult{
			ProviderTransactionID: orderID,
			Status:                vo.StatusCaptured,
			Amount:                decimal.RequireFromString("25.50"),
			Currency:              "USD",
		}, nil
	}

	res, err := h.deliver(t)
	require.NoError(t, err)
	assert.Equal(t, payment.CallbackApplied, res.Outcome)
	assert.Equal(t, vo.StatusCaptured, res.Transaction.Status())
	assert.Equal(t, []string{"ORDER-1"}, h.adapter.Captures())

	waitPublished(t, h.publisher)
	assertNotPublished(t, h.publisher)
}

func TestHandleCallback_CaptureFailureKeepsApproval(t *testing.T) {
	h := newHarness(t)
	txn := h.seed(t)
	v := settled(txn.TransactionID(), vo.StatusProcessing)
	v.RequiresCapture = true
	v.Interactive = true
	h.verifyAs(v)
	h.adapter.CaptureFunc = func(context.Context, *gateway.Identity, string) (*gateway.CaptureResult, error) {
		return nil, &payment.UpstreamError{Gateway: "fakepay", Operation: "capture", StatusCode: 500}
	}

	res, err := h.deliver(t)
	assert.ErrorIs(t, err, payment.ErrUpstream)
	assert.Equal(t, payment.CallbackError, res.Outcome)
	assert.Equal(t, vo.StatusProcessing, h.txns.Stored(txn.TransactionID()).Status())
	assert.Equal(t, txn.SuccessURL(), res.RedirectURL)
}

func TestHandleCallback_InteractiveRedirects(t *testing.T) {
	tests := []struct {
		name   string
		status vo.TransactionStatus
		want   string
	}{
		{"captured goes to success", vo.StatusCaptured, "https://shop.example.com/success"},
		{"processing goes to success", vo.StatusProcessing, "https://shop.example.com/success"},
		{"failed goes to cancel", vo.StatusFailed, "https://shop.example.com/cancel"},
		{"pending goes to cancel", vo.StatusPending, "https://shop.example.com/cancel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			txn := h.seed(t)
			v := settled(txn.TransactionID(), tt.status)
			v.Interactive = true
			h.verifyAs(v)

			res, err := h.deliver(t)
			require.NoError(t, err)
			assert.True(t, res.Interactive)
			assert.Equal(t, tt.want, res.RedirectURL)
		})
	}
}

func TestHandleCallback_ObserverSeesEveryOutcome(t *testing.T) {
	h := newHarness(t)
	obs := &recordingObserver{}
	h.callback.SetObserver(obs)
	txn := h.seed(t)

	_, _ = h.deliver(t)
	h.verifyAs(settled(txn.TransactionID(), vo.StatusCaptured))
	_, _ = h.deliver(t)

	assert.Equal(t, []payment.CallbackOutcome{payment.CallbackRejected, payment.CallbackApplied}, obs.outcomes)
}

func TestHandleCallback_OversizedPayloadIsCutOnRuneBoundary(t *testing.T) {
	h := newHarness(t)
	txn := h.seed(t)
	h.verifyAs(settled(txn.TransactionID(), vo.StatusCaptured))

	// two ASCII bytes shift the three-byte runes so the 64 KiB cut lands mid-rune
	body := "xy" + strings.Repeat("नमस्ते", 4000)
	_, err := h.callback.Execute(context.Background(), usecases.HandleCallbackCommand{
		GatewayCode: "fakepay",
		Payload:     gateway.CallbackPayload{Method: "POST", Body: []byte(body)},
	})
	require.NoError(t, err)

	recorded := h.callbacks.All()
	require.Len(t, recorded, 1)
	stored := recorded[0].Payload
	assert.True(t, utf8.ValidString(stored))
	assert.LessOrEqual(t, len(stored), 64<<10)
	assert.Greater(t, len(stored), 64<<10-utf8.UTFMax)
	assert.True(t, strings.HasPrefix(body, stored))
}
