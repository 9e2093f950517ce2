package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimit admits the request under policy before the rest of the chain
// runs. Rejected requests get a 429 and never reach the handler.
func RateLimit(limiter *ratelimit.Limiter, policy ratelimit.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := limiter.AdmitRequest(c.Request.Context(), policy, requestFrom(c))

		// Nothing was counted (bypass, anonymous, store down): no headers.
		if d.Enforced {
			c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		}

		if !d.Admitted {
			c.Header("Retry-After", strconv.Itoa(int(d.RetryAfter/time.Second)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":     "Rate limit exceeded",
				"limit":     d.Limit,
				"remaining": 0,
				"reset":     d.ResetAt.Unix(),
			})
			return
		}

		c.Next()
	}
}

func requestFrom(c *gin.Context) ratelimit.Request {
	return ratelimit.Request{
		ForwardedFor: c.GetHeader("X-Forwarded-For"),
		RemoteAddr:   c.Request.RemoteAddr,
		Principal:    c.GetString(ContextUserID),
		Method:       c.Request.Method,
		Route:        c.FullPath(),
	}
}
