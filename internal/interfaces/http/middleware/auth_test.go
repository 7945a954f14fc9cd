package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/paygate/internal/infrastructure/auth"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

type stubEnforcer struct {
	allowed map[string]bool
}

func (s stubEnforcer) Enforce(subject, resource, action string) (bool, error) {
	return s.allowed[subject+"|"+resource+"|"+action], nil
}

type failingEnforcer struct{}

func (failingEnforcer) Enforce(string, string, string) (bool, error) {
	return false, errors.New("policy store unavailable")
}

func newGuardedEngine(t *testing.T, enforcer PermissionEnforcer) (*gin.Engine, *auth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtSvc := auth.NewJWTService("test-secret", 15)
	authMW := NewAuthMiddleware(jwtSvc, logger.NewNop())
	permMW := NewPermissionMiddleware(enforcer, logger.NewNop())

	engine := gin.New()
	engine.GET("/me", authMW.RequireAuth(), func(c *gin.Context) {
		id, _ := CurrentUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})
	engine.GET("/admin", authMW.RequireAuth(), permMW.RequirePermission("transactions", "read"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return engine, jwtSvc
}

func doGet(engine *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	engine, jwtSvc := newGuardedEngine(t, stubEnforcer{})

	token, err := jwtSvc.Generate(42, "customer")
	require.NoError(t, err)

	w := doGet(engine, "/me", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":42`)

	assert.Equal(t, http.StatusUnauthorized, doGet(engine, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(engine, "/me", "not-a-jwt").Code)

	foreign, err := auth.NewJWTService("other-secret", 15).Generate(42, "customer")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, doGet(engine, "/me", foreign).Code)
}

func TestRequirePermission(t *testing.T) {
	enforcer := stubEnforcer{allowed: map[string]bool{
		"admin|transactions|read":  true,
		"user:7|transactions|read": true,
	}}
	engine, jwtSvc := newGuardedEngine(t, enforcer)

	tests := []struct {
		name   string
		userID uint
		role   string
		want   int
	}{
		{"admin role", 1, "admin", http.StatusNoContent},
		{"user granted directly", 7, "customer", http.StatusNoContent},
		{"customer denied", 9, "customer", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwtSvc.Generate(tt.userID, tt.role)
			require.NoError(t, err)
			assert.Equal(t, tt.want, doGet(engine, "/admin", token).Code)
		})
	}
}

func TestRequirePermission_EnforcerError(t *testing.T) {
	engine, jwtSvc := newGuardedEngine(t, failingEnforcer{})

	token, err := jwtSvc.Generate(1, "admin")
	require.NoError(t, err)

	w := doGet(engine, "/admin", token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "policy store")
}
