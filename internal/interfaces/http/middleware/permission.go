package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/paygate/internal/shared/constants"
	"github.com/orris-inc/paygate/internal/shared/logger"
	"github.com/orris-inc/paygate/internal/shared/utils"
)

// PermissionEnforcer decides whether a subject may perform action on resource.
type PermissionEnforcer interface {
	Enforce(subject, resource, action string) (bool, error)
}

type PermissionMiddleware struct {
	enforcer PermissionEnforcer
	logger   logger.Interface
}

func NewPermissionMiddleware(enforcer PermissionEnforcer, logger logger.Interface) *PermissionMiddleware {
	return &PermissionMiddleware{
		enforcer: enforcer,
		logger:   logger,
	}
}

// RequirePermission allows the request when the caller's role, or a role
// granted to the caller's user id, holds the permission.
func (m *PermissionMiddleware) RequirePermission(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := CurrentUserID(c)
		if !exists {
			utils.ErrorResponse(c, http.StatusUnauthorized, "user not authenticated")
			c.Abort()
			return
		}

		subjects := []string{"user:" + strconv.FormatUint(uint64(userID), 10)}
		if role := c.GetString(constants.ContextKeyRole); role != "" {
			subjects = append(subjects, role)
		}

		for _, subject := range subjects {
			allowed, err := m.enforcer.Enforce(subject, resource, action)
			if err != nil {
				m.logger.Errorw("permission check failed", "error", err, "user_id", userID, "resource", resource, "action", action)
				utils.ErrorResponse(c, http.StatusInternalServerError, "permission check failed")
				c.Abort()
				return
			}
			if allowed {
				c.Next()
				return
			}
		}

		m.logger.Warnw("permission denied", "user_id", userID, "resource", resource, "action", action)
		utils.ErrorResponse(c, http.StatusForbidden, "insufficient permissions")
		c.Abort()
	}
}
