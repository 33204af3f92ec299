package middleware

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/zaptask/zaptask/pkg/plan"
)

// PlanLimits defines rate limits for a subscription plan
type PlanLimits struct {
	RequestsPerMinute int
	Burst             int
}

// PlanRateLimiter applies per-user token bucket rate limits keyed by the
// company's subscription plan. Unauthenticated requests are limited per IP
// with a tighter budget.
type PlanRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	plans    map[string]PlanLimits

	unauthenticated PlanLimits
}

// NewPlanRateLimiter creates a rate limiter with default per-plan limits.
// Lifetime tiers get the BUSINESS budget of their recurring counterpart.
func NewPlanRateLimiter() *PlanRateLimiter {
	return &PlanRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		plans: map[string]PlanLimits{
			string(plan.Free):        {RequestsPerMinute: 60, Burst: 10},
			string(plan.Midi):        {RequestsPerMinute: 120, Burst: 20},
			string(plan.Maxi):        {RequestsPerMinute: 300, Burst: 50},
			string(plan.Business):    {RequestsPerMinute: 600, Burst: 100},
			string(plan.LTDSolo):     {RequestsPerMinute: 120, Burst: 20},
			string(plan.LTDTeam):     {RequestsPerMinute: 300, Burst: 50},
			string(plan.LTDAgency):   {RequestsPerMinute: 600, Burst: 100},
			string(plan.LTDBusiness): {RequestsPerMinute: 600, Burst: 100},
		},
		unauthenticated: PlanLimits{RequestsPerMinute: 30, Burst: 5},
	}
}

// GetPlanLimits returns the limits configured for a plan
func (p *PlanRateLimiter) GetPlanLimits(planName string) (PlanLimits, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	limits, ok := p.plans[planName]
	return limits, ok
}

// SetPlanLimits overrides the limits for a plan
func (p *PlanRateLimiter) SetPlanLimits(planName string, requestsPerMinute, burst int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plans[planName] = PlanLimits{RequestsPerMinute: requestsPerMinute, Burst: burst}
	// Drop cached limiters for this plan so the new limits take effect.
	for key := range p.limiters {
		delete(p.limiters, key)
	}
}

func (p *PlanRateLimiter) limiterFor(key, planName string) (*rate.Limiter, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	limits, ok := p.plans[planName]
	if !ok {
		limits = p.unauthenticated
		planName = "unauthenticated"
	}

	if l, ok := p.limiters[key]; ok {
		return l, planName
	}
	l := rate.NewLimiter(rate.Limit(float64(limits.RequestsPerMinute)/60.0), limits.Burst)
	p.limiters[key] = l
	return l, planName
}

// Middleware returns an Echo middleware enforcing the per-plan limits.
// Must run after the JWT middleware for authenticated routes so user_id
// and plan are in the context.
func (p *PlanRateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var key, planName string

			if userID := c.Get("user_id"); userID != nil {
				key = fmt.Sprintf("user:%v", userID)
				planName = string(plan.Free)
				if pl, ok := c.Get("plan").(string); ok && pl != "" {
					planName = pl
				}
			} else {
				key = "ip:" + c.RealIP()
				planName = "unauthenticated"
			}

			limiter, planName := p.limiterFor(key, planName)
			if !limiter.Allow() {
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error":   "rate_limit_exceeded",
					"message": fmt.Sprintf("Rate limit for plan %s exceeded, slow down", planName),
				})
			}

			return next(c)
		}
	}
}
