package restclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

func TestDo_SendsJSONAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "req-1", r.Header.Get("PayPal-Request-Id"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"CREATED"}`))
	}))
	defer srv.Close()

	c := New("paypal", srv.Client(), logger.NewNop())
	resp, err := c.Do(context.Background(), Request{
		Operation: "create_order",
		Method:    http.MethodPost,
		URL:       srv.URL,
		Header:    http.Header{"PayPal-Request-Id": {"req-1"}},
		Body:      map[string]string{"intent": "CAPTURE"},
	})
	require.NoError(t, err)

	var out struct{ ID string }
	require.NoError(t, resp.Decode(&out))
	assert.Equal(t, "ORDER-1", out.ID)
	assert.Equal(t, "CREATED", resp.Raw()["status"])
}

func TestDo_Non2xxIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY"}`))
	}))
	defer srv.Close()

	_, err := New("paypal", srv.Client(), logger.NewNop()).Do(context.Background(), Request{
		Operation: "capture", Method: http.MethodPost, URL: srv.URL,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, payment.ErrUpstream)
	assert.True(t, IsStatus(err, http.StatusUnprocessableEntity))

	var up *payment.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Contains(t, up.Body, "UNPROCESSABLE_ENTITY")
}

func TestDo_TimeoutIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New("esewa", &http.Client{Timeout: 20 * time.Millisecond}, logger.NewNop())
	_, err := c.Do(context.Background(), Request{Operation: "status", Method: http.MethodGet, URL: srv.URL})
	assert.ErrorIs(t, err, payment.ErrUpstream)
	assert.False(t, IsStatus(err, http.StatusOK))
}
