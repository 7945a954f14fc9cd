package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/infrastructure/oauthtoken"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

// fakePayPal serves the token endpoint and a minimal Orders API backed by a map.
type fakePayPal struct {
	mu          sync.Mutex
	orders      map[string]map[string]any
	tokenCalls  atomic.Int32
	rejectToken string
	captures    atomic.Int32
	lastCreate  map[string]any
}

func newFakePayPal() *fakePayPal {
	return &fakePayPal{orders: map[string]map[string]any{}}
}

func (f *fakePayPal) putOrder(id, status, txnID, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[id] = map[string]any{
		"id":     id,
		"status": status,
		"purchase_units": []any{map[string]any{
			"reference_id": txnID,
			"custom_id":    txnID,
			"amount":       map[string]any{"currency_code": "USD", "value": value},
		}},
	}
}

func (f *fakePayPal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == tokenPath {
		n := f.tokenCalls.Add(1)
		_, _ = fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":32400}`, n)
		return
	}
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") || auth == "Bearer "+f.rejectToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == ordersPath:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastCreate = body
		unit := body["purchase_units"].([]any)[0].(map[string]any)
		id := "ORDER-" + unit["custom_id"].(string)
		f.orders[id] = map[string]any{"id": id, "status": "CREATED", "purchase_units": []any{unit}}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": id, "status": "CREATED", "purchase_units": []any{unit},
			"links": []any{
				map[string]any{"rel": "self", "href": "https://api/" + id},
				map[string]any{"rel": "approve", "href": "https://www.sandbox.paypal.com/checkoutnow?token=" + id},
			},
		})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/capture"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, ordersPath+"/"), "/capture")
		o, ok := f.orders[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if o["status"] != "APPROVED" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED"}]}`))
			return
		}
		f.captures.Add(1)
		unit := o["purchase_units"].([]any)[0].(map[string]any)
		unit["payments"] = map[string]any{"captures": []any{map[string]any{
			"id": "CAP-1", "status": "COMPLETED", "amount": unit["amount"],
		}}}
		o["status"] = "COMPLETED"
		_ = json.NewEncoder(w).Encode(o)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, ordersPath+"/"):
		o, ok := f.orders[strings.TrimPrefix(r.URL.Path, ordersPath+"/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(o)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func setup(t *testing.T) (*Adapter, *fakePayPal, *gateway.Identity) {
	t.Helper()
	fake := newFakePayPal()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	tokens := oauthtoken.NewCache(oauthtoken.NewMemoryStore(), oauthtoken.NewClientCredentialsFetcher(srv.Client()), logger.NewNop())
	id := &gateway.Identity{
		Code:        Code,
		Mode:        gateway.ModeTest,
		BaseURL:     srv.URL,
		Enabled:     true,
		Credentials: map[string]string{credClientID: "client", credClientSecret: "secret"},
	}
	return New(srv.Client(), tokens, logger.NewNop()), fake, id
}

func TestCreatePayment_CreatesOrder(t *testing.T) {
	a, fake, id := setup(t)

	res, err := a.CreatePayment(context.Background(), id, gateway.CreateRequest{
		TransactionID: "txnPP",
		Amount:        decimal.RequireFromString("0.75"),
		Currency:      "usd",
		Description:   "Order Q-1",
		CallbackURL:   "https://pay.example.com/callbacks/paypal",
	})
	require.NoError(t, err)

	assert.Equal(t, "ORDER-txnPP", res.ProviderTransactionID)
	assert.True(t, res.Acknowledged)
	assert.Contains(t, res.RedirectURL, "checkoutnow?token=ORDER-txnPP")
	require.NotNil(t, res.ExpiresAt)

	unit := fake.lastCreate["purchase_units"].([]any)[0].(map[string]any)
	assert.Equal(t, map[string]any{"currency_code": "USD", "value": "0.75"}, unit["amount"])
	appCtx := fake.lastCreate["application_context"].(map[string]any)
	assert.Equal(t, "https://pay.example.com/callbacks/paypal?outcome=cancel", appCtx["cancel_url"])
}

func TestCreatePayment_FormatsZeroDecimalCurrencies(t *testing.T) {
	a, fake, id := setup(t)

	_, err := a.CreatePayment(context.Background(), id, gateway.CreateRequest{
		TransactionID: "txnJP", Amount: decimal.RequireFromString("1200"), Currency: "JPY",
	})
	require.NoError(t, err)
	unit := fake.lastCreate["purchase_units"].([]any)[0].(map[string]any)
	assert.Equal(t, "1200", unit["amount"].(map[string]any)["value"])
}

func TestCreatePayment_RejectsUnsupportedCurrency(t *testing.T) {
	a, _, id := setup(t)
	_, err := a.CreatePayment(context.Background(), id, gateway.CreateRequest{Currency: "NPR"})
	assert.ErrorIs(t, err, payment.ErrUnsupportedCurrency)
}

func TestCreatePayment_MissingCredentials(t *testing.T) {
	a, _, id := setup(t)
	id.Credentials = nil
	_, err := a.CreatePayment(context.Background(), id, gateway.CreateRequest{Currency: "USD", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, payment.ErrGatewayMisconfigured)
}

func TestClient_RefreshesTokenOn401(t *testing.T) {
	a, fake, id := setup(t)
	fake.rejectToken = "tok-1"
	fake.putOrder("O-1", "CREATED", "txn1", "5.00")

	v, err := a.VerifyCallback(context.Background(), id, gateway.CallbackPayload{
		Method: http.MethodGet, Fields: url.Values{"token": {"O-1"}},
	})
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
}

func TestCapturePayment(t *testing.T) {
	a, fake, id := setup(t)
	fake.putOrder("O-2", "APPROVED", "txn2", "10.00")

	res, err := a.CapturePayment(context.Background(), id, "O-2")
	require.NoError(t, err)
	assert.Equal(t, vo.StatusCaptured, res.Status)
	assert.Equal(t, "O-2", res.ProviderTransactionID)
	assert.True(t, decimal.NewFromInt(10).Equal(res.Amount))

	again, err := a.CapturePayment(context.Background(), id, "O-2")
	require.NoError(t, err, "a repeated capture reads the order back")
	assert.Equal(t, vo.StatusCaptured, again.Status)
	assert.Equal(t, int32(1), fake.captures.Load())
}

func TestVerifyCallback(t *testing.T) {
	tests := []struct {
		name            string
		status          string
		payload         func(orderID string) gateway.CallbackPayload
		wantStatus      vo.TransactionStatus
		wantCapture     bool
		wantInteractive bool
	}{
		{
			name:   "approved return",
			status: "APPROVED",
			payload: func(id string) gateway.CallbackPayload {
				return gateway.CallbackPayload{Method: http.MethodGet, Fields: url.Values{"token": {id}, "PayerID": {"P"}}}
			},
			wantStatus:      vo.StatusProcessing,
			wantCapture:     true,
			wantInteractive: true,
		},
		{
			name:   "cancelled return",
			status: "PAYER_ACTION_REQUIRED",
			payload: func(id string) gateway.CallbackPayload {
				return gateway.CallbackPayload{Method: http.MethodGet, Fields: url.Values{"token": {id}, "outcome": {"cancel"}}}
			},
			wantStatus:      vo.StatusFailed,
			wantInteractive: true,
		},
		{
			name:   "order approved webhook",
			status: "APPROVED",
			payload: func(id string) gateway.CallbackPayload {
				return gateway.CallbackPayload{Method: http.MethodPost, Body: []byte(
					`{"event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"` + id + `","status":"COMPLETED"}}`)}
			},
			wantStatus:  vo.StatusProcessing,
			wantCapture: true,
		},
		{
			name:   "capture webhook with forged status",
			status: "VOIDED",
			payload: func(id string) gateway.CallbackPayload {
				return gateway.CallbackPayload{Method: http.MethodPost, Body: []byte(
					`{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-9","status":"COMPLETED","supplementary_data":{"related_ids":{"order_id":"` + id + `"}}}}`)}
			},
			wantStatus: vo.StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, fake, id := setup(t)
			fake.putOrder("O-3", tt.status, "txn3", "7.50")

			v, err := a.VerifyCallback(context.Background(), id, tt.payload("O-3"))
			require.NoError(t, err)
			require.True(t, v.Valid)
			assert.Equal(t, "txn3", v.TransactionRef)
			assert.Equal(t, "O-3", v.ProviderTransactionID)
			assert.Equal(t, tt.wantStatus, v.DeclaredStatus)
			assert.Equal(t, tt.wantCapture, v.RequiresCapture)
			assert.Equal(t, tt.wantInteractive, v.Interactive)
			assert.Equal(t, "USD", v.Currency)
		})
	}
}

func TestVerifyCallback_UnknownOrder(t *testing.T) {
	a, _, id := setup(t)
	v, err := a.VerifyCallback(context.Background(), id, gateway.CallbackPayload{
		Method: http.MethodGet, Fields: url.Values{"token": {"missing"}},
	})
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, gateway.ReasonUnknownReference, v.Reason)
}

func TestVerifyCallback_Malformed(t *testing.T) {
	a, _, id := setup(t)
	v, err := a.VerifyCallback(context.Background(), id, gateway.CallbackPayload{
		Method: http.MethodPost, Body: []byte(`{"event_type":"BILLING.PLAN.CREATED","resource":{"id":"P-1"}}`),
	})
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, gateway.ReasonMalformed, v.Reason)
}

func TestOrderStatus(t *testing.T) {
	declined := &order{Status: "COMPLETED", PurchaseUnits: []purchaseUnit{{Payments: &unitPayments{Captures: []capture{{Status: "DECLINED"}}}}}}
	pending := &order{Status: "COMPLETED", PurchaseUnits: []purchaseUnit{{Payments: &unitPayments{Captures: []capture{{Status: "PENDING"}}}}}}

	assert.Equal(t, vo.StatusFailed, orderStatus(declined))
	assert.Equal(t, vo.StatusProcessing, orderStatus(pending))
	assert.Equal(t, vo.StatusCaptured, orderStatus(&order{Status: "COMPLETED"}))
	assert.Equal(t, vo.StatusPending, orderStatus(&order{Status: "SAVED"}))
}
