package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/paygate/internal/shared/logger"
	"github.com/orris-inc/paygate/internal/shared/utils"
)

// RateLimiter is a Redis fixed-window counter per client IP, shared by all
// instances. It fails open when Redis is unavailable so provider callbacks
// are never dropped because of a cache outage.
type RateLimiter struct {
	redisClient redis.Cmdable
	prefix      string
	limit       int
	window      time.Duration
	now         func() time.Time
	logger      logger.Interface
}

func NewRateLimiter(redisClient redis.Cmdable, prefix string, limit int, window time.Duration, log logger.Interface) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		prefix:      prefix,
		limit:       limit,
		window:      window,
		now:         time.Now,
		logger:      log,
	}
}

// Limit returns a Gin middleware that enforces the rate limit per client IP.
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		windowBucket := rl.now().Unix() / int64(rl.window.Seconds())
		key := fmt.Sprintf("paygate:ratelimit:%s:%s:%d", rl.prefix, c.ClientIP(), windowBucket)

		ctx := c.Request.Context()
		count, err := rl.redisClient.Incr(ctx, key).Result()
		if err != nil {
			rl.logger.Warnw("rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}

		if count == 1 {
			rl.redisClient.Expire(ctx, key, rl.window+time.Second)
		}

		remaining := int64(rl.limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(rl.limit) {
			utils.ErrorResponse(c, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			c.Abort()
			return
		}

		c.Next()
	}
}
