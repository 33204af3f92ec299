package middleware

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimiter is a simple per-IP token bucket limiter for routes that run
// before authentication, like the webhook endpoint and the global budget.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	requestsPerMinute int
	burst             int
}

// NewRateLimiter creates a per-IP rate limiter
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	return &RateLimiter{
		limiters:          make(map[string]*rate.Limiter),
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
	}
}

func (r *RateLimiter) limiterFor(ip string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[ip]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(float64(r.requestsPerMinute)/60.0), r.burst)
	r.limiters[ip] = l
	return l
}

// RateLimitMiddleware returns an Echo middleware enforcing the limit
func (r *RateLimiter) RateLimitMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !r.limiterFor(c.RealIP()).Allow() {
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error":   "rate_limit_exceeded",
					"message": "Too many requests, slow down",
				})
			}
			return next(c)
		}
	}
}
