package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newCORSEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(CORS([]string{"https://shop.example.com"}), SecurityHeaders())
	engine.GET("/api/v1/payments/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	return engine
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantOrigin string
	}{
		{"allowed origin", http.MethodGet, "https://shop.example.com", http.StatusOK, "https://shop.example.com"},
		{"unknown origin", http.MethodGet, "https://evil.example.com", http.StatusOK, ""},
		{"no origin", http.MethodGet, "", http.StatusOK, ""},
		{"preflight", http.MethodOptions, "https://shop.example.com", http.StatusNoContent, "https://shop.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/payments/TXN-1", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			newCORSEngine().ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "Origin", w.Header().Get("Vary"))
			if tt.wantOrigin == "" {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
			} else {
				assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Location")
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	newCORSEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/payments/TXN-1", nil))

	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}
