package usecases_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/application/payment/ledger"
	"github.com/orris-inc/paygate/internal/application/payment/testutil"
	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/shared/biztime"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

var baseTime = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type harness struct {
	clock       *biztime.FixedClock
	txns        *testutil.MockTransactionRepository
	events      *testutil.MockTransactionEventRepository
	callbacks   *testutil.MockCallbackEventRepository
	reminders   *testutil.MockRecoveryNotificationRepository
	ledger      *ledger.Service
	adapter     *testutil.FakeAdapter
	registry    *gateway.Registry
	credentials *testutil.StaticCredentialStore
	publisher   *testutil.RecordingPublisher
	rates       *testutil.FixedRateProvider

	create   *usecases.CreatePaymentUseCase
	capture  *usecases.CapturePaymentUseCase
	callback *usecases.HandleCallbackUseCase
}

func newHarness(t *testing.T, currencies ...string) *harness {
	t.Helper()
	h := &harness{
		clock:     &biztime.FixedClock{At: baseTime},
		txns:      testutil.NewMockTransactionRepository(),
		events:    testutil.NewMockTransactionEventRepository(),
		callbacks: testutil.NewMockCallbackEventRepository(),
		reminders: testutil.NewMockRecoveryNotificationRepository(),
		adapter:   testutil.NewFakeAdapter("fakepay", currencies...),
		publisher: testutil.NewRecordingPublisher(),
		rates: &testutil.FixedRateProvider{Rates: map[string]decimal.Decimal{
			"USD/NPR": decimal.NewFromInt(133),
		}},
	}
	h.txns.Notified = h.reminders.Has
	log := logger.NewNop()
	h.ledger = ledger.NewService(h.txns, h.events, testutil.PassthroughTxManager{}, log, ledger.WithClock(h.clock))
	h.registry = gateway.NewRegistry(h.adapter)
	h.credentials = testutil.NewStaticCredentialStore(testutil.TestIdentity("fakepay"))

	h.create = usecases.NewCreatePaymentUseCase(h.ledger, h.registry, h.credentials, h.rates, log, usecases.CreatePaymentConfig{
		CallbackBaseURL: "https://pay.example.com/",
		ProviderTimeout: time.Second,
	})
	h.capture = usecases.NewCapturePaymentUseCase(h.ledger, h.registry, h.credentials, h.publisher, log)
	h.callback = usecases.NewHandleCallbackUseCase(h.ledger, h.registry, h.credentials, h.callbacks, h.capture, h.publisher, log)
	h.callback.SetClock(h.clock)
	return h
}

func validCommand() usecases.CreatePaymentCommand {
	return usecases.CreatePaymentCommand{
		UserID:     11,
		Gateway:    "fakepay",
		OrderIDs:   []string{"Q-1", "Q-2"},
		Amount:     decimal.RequireFromString("25.50"),
		Currency:   "USD",
		Customer:   payment.Customer{Name: "Sita Rai", Email: "sita@example.com"},
		SuccessURL: "https://shop.example.com/success",
		CancelURL:  "https://shop.example.com/cancel",
		Metadata:   map[string]string{"cart": "c-9"},
	}
}

// seed creates a pending transaction through the create use case.
func (h *harness) seed(t *testing.T) *payment.Transaction {
	t.Helper()
	res, err := h.create.Execute(context.Background(), validCommand())
	require.NoError(t, err)
	return res.Transaction
}

// verifyAs scripts the adapter to accept every callback with v.
func (h *harness) verifyAs(v gateway.Verification) {
	h.adapter.VerifyFunc = func(context.Context, *gateway.Identity, gateway.CallbackPayload) (*gateway.Verification, error) {
		cp := v
		return &cp, nil
	}
}

func (h *harness) deliver(t *testing.T) (*usecases.HandleCallbackResult, error) {
	t.Helper()
	return h.callback.Execute(context.Background(), usecases.HandleCallbackCommand{
		GatewayCode: "fakepay",
		Payload:     gateway.CallbackPayload{Method: "POST", Body: []byte(`{"event":"test"}`)},
	})
}

func waitPublished(t *testing.T, p *testutil.RecordingPublisher) {
	t.Helper()
	select {
	case <-p.Published():
	case <-time.After(2 * time.Second):
		t.Fatal("payment captured event was not published")
	}
}

// assertNotPublished gives a stray asynchronous publish time to show up.
func assertNotPublished(t *testing.T, p *testutil.RecordingPublisher) {
	t.Helper()
	select {
	case <-p.Published():
		t.Fatal("unexpected payment captured event")
	case <-time.After(50 * time.Millisecond):
	}
}
