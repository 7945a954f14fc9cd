package middleware

import (
	"errors"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/paygate/internal/shared/constants"
	"github.com/orris-inc/paygate/internal/shared/logger"
	"github.com/orris-inc/paygate/internal/shared/utils"
)

// redactedHeaders never reach the logs. Callback signatures are included so
// a logged panic cannot be replayed against the callback endpoint.
var redactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Paypal-Transmission-Sig",
	"Paypal-Auth-Algo",
	"Paypal-Cert-Url",
}

// Recovery turns a handler panic into a 500 and logs it with the request id
// and a redacted header set.
func Recovery(log logger.Interface) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		if isBrokenConnection(recovered) {
			log.Warnw("client connection broken during request",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"request_id", c.GetString(constants.ContextKeyRequestID),
				"error", recovered,
			)
			c.Abort()
			return
		}

		log.Errorw("panic recovered",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"request_id", c.GetString(constants.ContextKeyRequestID),
			"headers", safeHeaders(c.Request.Header),
			"panic", recovered,
			"stack", string(debug.Stack()),
		)
		utils.ErrorResponse(c, http.StatusInternalServerError, "internal server error")
	})
}

func safeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[name] = strings.Join(values, ", ")
	}
	for _, name := range redactedHeaders {
		if _, ok := out[http.CanonicalHeaderKey(name)]; ok {
			out[http.CanonicalHeaderKey(name)] = "*"
		}
	}
	return out
}

func isBrokenConnection(recovered any) bool {
	err, ok := recovered.(error)
	if !ok {
		return false
	}
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		return false
	}
	var sysErr *os.SyscallError
	if !errors.As(opErr, &sysErr) {
		return false
	}
	return errors.Is(sysErr, syscall.EPIPE) || errors.Is(sysErr, syscall.ECONNRESET)
}

// ErrorHandler renders the last error a handler attached with c.Error when
// the handler did not write a response itself.
func ErrorHandler(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		log.Errorw("handler error",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"request_id", c.GetString(constants.ContextKeyRequestID),
			"error", err,
		)
		if !c.Writer.Written() {
			utils.ErrorResponseWithError(c, err)
		}
	}
}
