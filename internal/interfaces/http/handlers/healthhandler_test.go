package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orris-inc/paygate/internal/interfaces/http/handlers/testutil"
)

func TestHealthHandler(t *testing.T) {
	up := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	t.Run("healthy", func(t *testing.T) {
		h := NewHealthHandler(map[string]Pinger{"database": up, "redis": up}, testutil.NewMockLogger())
		c, w := testutil.NewTestContext(http.MethodGet, "/health", nil)

		h.HealthCheck(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	})

	t.Run("dependency down", func(t *testing.T) {
		h := NewHealthHandler(map[string]Pinger{"database": up, "redis": down}, testutil.NewMockLogger())
		c, w := testutil.NewTestContext(http.MethodGet, "/health", nil)

		h.HealthCheck(c)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"redis":"down"`)
		assert.Contains(t, w.Body.String(), `"database":"up"`)
	})
}
