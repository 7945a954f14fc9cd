package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPObserver records served requests.
type HTTPObserver interface {
	ObserveHTTP(method, route string, code int, elapsed time.Duration)
}

func Metrics(observer HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		observer.ObserveHTTP(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
