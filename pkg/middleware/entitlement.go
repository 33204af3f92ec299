package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/zaptask/zaptask/pkg/auth"
	"github.com/zaptask/zaptask/pkg/billing"
	"github.com/zaptask/zaptask/pkg/logger"
	"github.com/zaptask/zaptask/pkg/metrics"
	"github.com/zaptask/zaptask/pkg/models"
	"github.com/zaptask/zaptask/pkg/plan"
)

// EntitlementGate resolves the company's plan limits and denies requests
// from workspaces over their limits. A denial revokes the presented token,
// so the session cannot keep hammering protected routes; the client must
// log in again after the workspace is brought back under its limits.
//
// Unknown plans resolve to FREE limits rather than failing open.
type EntitlementGate struct {
	store     billing.CompanyStore
	usage     billing.UsageCounter
	blacklist *auth.TokenBlacklist
	log       logger.Logger
	metrics   *metrics.Metrics
}

// NewEntitlementGate creates an entitlement middleware
func NewEntitlementGate(store billing.CompanyStore, usage billing.UsageCounter, blacklist *auth.TokenBlacklist, log logger.Logger) *EntitlementGate {
	return &EntitlementGate{
		store:     store,
		usage:     usage,
		blacklist: blacklist,
		log:       log,
	}
}

// SetMetrics sets the metrics recorder
func (g *EntitlementGate) SetMetrics(m *metrics.Metrics) {
	g.metrics = m
}

// Middleware enforces plan limits. Must run after the JWT middleware.
func (g *EntitlementGate) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			companyID, ok := c.Get("company_id").(uuid.UUID)
			if !ok {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "unauthorized",
					Message: "Authentication required",
				})
			}

			ctx := c.Request().Context()
			company, err := g.store.GetCompany(ctx, companyID)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "company_not_found",
					Message: "Company not found",
				})
			}

			limits := plan.LimitsFor(company.SubscriptionType)

			if overLimit, which := g.checkLimits(c, companyID, limits); overLimit {
				g.revokeToken(c)
				g.metrics.RecordEntitlementDenial(which)
				g.log.Warn("entitlement denial",
					"company", company.Code, "plan", company.SubscriptionType, "limit", which)
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "plan_limit_exceeded",
					Message: fmt.Sprintf("Your workspace exceeds the %s limit of your plan, please upgrade or reduce usage", which),
				})
			}

			c.Set("company", company)
			c.Set("plan", string(company.SubscriptionType))

			return next(c)
		}
	}
}

// checkLimits returns whether the company is over any counted limit and
// which one. Usage lookups that fail are treated as in-limit; a transient
// storage error must not lock out the whole workspace.
func (g *EntitlementGate) checkLimits(c echo.Context, companyID uuid.UUID, limits plan.Limits) (bool, string) {
	ctx := c.Request().Context()

	if limits.Members != plan.Unlimited {
		if n, err := g.usage.CountActiveMembers(ctx, companyID); err == nil && n > limits.Members {
			return true, "members"
		}
	}
	if limits.Projects != plan.Unlimited {
		if n, err := g.usage.CountActiveProjects(ctx, companyID); err == nil && n > limits.Projects {
			return true, "projects"
		}
	}
	if limits.Clients != plan.Unlimited {
		if n, err := g.usage.CountActiveClients(ctx, companyID); err == nil && n > limits.Clients {
			return true, "clients"
		}
	}
	return false, ""
}

// revokeToken blacklists the presented JWT so the session ends now
func (g *EntitlementGate) revokeToken(c echo.Context) {
	if g.blacklist == nil {
		return
	}
	token, ok := c.Get("token").(string)
	if !ok || token == "" {
		return
	}
	if err := g.blacklist.Add(c.Request().Context(), token, 24*time.Hour); err != nil {
		g.log.Error("failed to blacklist token on entitlement denial", "error", err)
	}
}
