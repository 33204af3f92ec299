package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v76"

	apierrors "github.com/zaptask/zaptask/pkg/api/errors"
	"github.com/zaptask/zaptask/pkg/billing"
	"github.com/zaptask/zaptask/pkg/logger"
	"github.com/zaptask/zaptask/pkg/metrics"
	"github.com/zaptask/zaptask/pkg/models"
	"github.com/zaptask/zaptask/pkg/plan"
)

// PlanService is the slice of the orchestrator the handler needs
type PlanService interface {
	ChangePlan(ctx context.Context, companyID uuid.UUID, target plan.Plan) (*billing.ChangeResult, error)
	RedeemLifetimeCode(ctx context.Context, companyID, userID uuid.UUID, code string) (*billing.ChangeResult, error)
	CreatePortalSession(ctx context.Context, companyID uuid.UUID, returnURL string) (string, error)
}

// WebhookVerifier checks provider webhook signatures
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signature string) (stripe.Event, error)
}

// WebhookProcessor consumes verified provider events
type WebhookProcessor interface {
	HandleEvent(ctx context.Context, event stripe.Event) error
}

// BillingHandler handles subscription and billing requests
type BillingHandler struct {
	service   PlanService
	verifier  WebhookVerifier
	processor WebhookProcessor
	store     billing.CompanyStore
	usage     billing.UsageCounter
	catalog   *plan.Catalog
	validator *validator.Validate
	log       logger.Logger
	metrics   *metrics.Metrics

	frontendURL string
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(service PlanService, verifier WebhookVerifier, processor WebhookProcessor, store billing.CompanyStore, usage billing.UsageCounter, catalog *plan.Catalog, log logger.Logger, frontendURL string) *BillingHandler {
	return &BillingHandler{
		service:     service,
		verifier:    verifier,
		processor:   processor,
		store:       store,
		usage:       usage,
		catalog:     catalog,
		validator:   validator.New(),
		log:         log,
		frontendURL: frontendURL,
	}
}

// SetMetrics sets the metrics recorder
func (h *BillingHandler) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
}

// ChangePlan godoc
// @Summary Change subscription plan
// @Description Move the company to another plan: immediately, scheduled, or via checkout
// @Tags billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body models.PlanChangeRequest true "Target plan"
// @Success 200 {object} models.PlanChangeResponse "Change outcome"
// @Failure 400 {object} models.ErrorResponse "Unknown plan"
// @Failure 409 {object} models.ErrorResponse "Already on this plan"
// @Router /billing/plan [post]
func (h *BillingHandler) ChangePlan(c echo.Context) error {
	companyID, ok := c.Get("company_id").(uuid.UUID)
	if !ok {
		return apierrors.UnauthorizedError(c, "missing company in context")
	}

	var req models.PlanChangeRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	target, err := plan.Parse(req.Plan)
	if err != nil {
		return apierrors.ValidationError(c, err)
	}

	result, err := h.service.ChangePlan(c.Request().Context(), companyID, target)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrUnknownPlan):
			return apierrors.ValidationError(c, err)
		case errors.Is(err, billing.ErrSamePlan):
			return apierrors.ConflictError(c, "Company is already on the requested plan")
		case errors.Is(err, billing.ErrCompanyNotFound):
			return apierrors.NotFoundError(c, "company")
		default:
			return apierrors.InternalError(c, err)
		}
	}

	h.metrics.RecordPlanChange(string(result.Outcome))
	return c.JSON(http.StatusOK, models.PlanChangeResponse{
		Outcome:     string(result.Outcome),
		Plan:        string(result.Plan),
		EffectiveAt: result.EffectiveAt,
		CheckoutURL: result.CheckoutURL,
	})
}

// Redeem godoc
// @Summary Redeem a lifetime deal code
// @Description Consume a lifetime code and move the company to the code's tier
// @Tags billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body models.RedeemRequest true "Redemption code"
// @Success 200 {object} models.PlanChangeResponse "Redemption outcome"
// @Failure 404 {object} models.ErrorResponse "Code not found"
// @Failure 409 {object} models.ErrorResponse "Code already redeemed"
// @Router /billing/redeem [post]
func (h *BillingHandler) Redeem(c echo.Context) error {
	companyID, ok := c.Get("company_id").(uuid.UUID)
	if !ok {
		return apierrors.UnauthorizedError(c, "missing company in context")
	}
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return apierrors.UnauthorizedError(c, "missing user in context")
	}

	var req models.RedeemRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	result, err := h.service.RedeemLifetimeCode(c.Request().Context(), companyID, userID, strings.TrimSpace(req.Code))
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrCodeNotFound):
			return apierrors.NotFoundError(c, "redemption code")
		case errors.Is(err, billing.ErrCodeAlreadyRedeemed):
			return apierrors.ConflictError(c, "This code has already been redeemed")
		case errors.Is(err, billing.ErrCompanyNotFound):
			return apierrors.NotFoundError(c, "company")
		default:
			return apierrors.InternalError(c, err)
		}
	}

	h.metrics.RecordCodeRedeemed()
	return c.JSON(http.StatusOK, models.PlanChangeResponse{
		Outcome: string(result.Outcome),
		Plan:    string(result.Plan),
	})
}

// GetEntitlements godoc
// @Summary Get plan entitlements
// @Description Return the company's plan, limits and current usage
// @Tags billing
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.EntitlementsResponse "Entitlements"
// @Router /billing/entitlements [get]
func (h *BillingHandler) GetEntitlements(c echo.Context) error {
	companyID, ok := c.Get("company_id").(uuid.UUID)
	if !ok {
		return apierrors.UnauthorizedError(c, "missing company in context")
	}

	ctx := c.Request().Context()
	company, err := h.store.GetCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, billing.ErrCompanyNotFound) {
			return apierrors.NotFoundError(c, "company")
		}
		return apierrors.DatabaseError(c, err)
	}

	usage := models.Usage{}
	if usage.Members, err = h.usage.CountActiveMembers(ctx, companyID); err != nil {
		return apierrors.DatabaseError(c, err)
	}
	if usage.Projects, err = h.usage.CountActiveProjects(ctx, companyID); err != nil {
		return apierrors.DatabaseError(c, err)
	}
	if usage.Clients, err = h.usage.CountActiveClients(ctx, companyID); err != nil {
		return apierrors.DatabaseError(c, err)
	}

	return c.JSON(http.StatusOK, models.EntitlementsResponse{
		Plan:   string(company.SubscriptionType),
		Status: string(company.SubscriptionStatus),
		Limits: plan.LimitsFor(company.SubscriptionType),
		Usage:  usage,
	})
}

// CreatePortalSession godoc
// @Summary Open the billing portal
// @Description Create a provider-hosted billing portal session
// @Tags billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.CustomerPortalResponse "Portal URL"
// @Failure 400 {object} models.ErrorResponse "Invalid return URL"
// @Router /billing/portal [post]
func (h *BillingHandler) CreatePortalSession(c echo.Context) error {
	companyID, ok := c.Get("company_id").(uuid.UUID)
	if !ok {
		return apierrors.UnauthorizedError(c, "missing company in context")
	}

	var req struct {
		ReturnURL string `json:"return_url"`
	}
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = h.frontendURL + "/settings/billing"
	}
	if !h.validReturnURL(returnURL) {
		return apierrors.ValidationError(c, fmt.Errorf("return URL %q is not allowed", returnURL))
	}

	url, err := h.service.CreatePortalSession(c.Request().Context(), companyID, returnURL)
	if err != nil {
		if errors.Is(err, billing.ErrCompanyNotFound) {
			return apierrors.NotFoundError(c, "company")
		}
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, models.CustomerPortalResponse{URL: url})
}

// validReturnURL only allows redirects back into our own frontend
func (h *BillingHandler) validReturnURL(url string) bool {
	return strings.HasPrefix(url, h.frontendURL+"/") || url == h.frontendURL
}

// GetPricing godoc
// @Summary Get pricing tiers
// @Description List all purchasable plans with prices and limits
// @Tags billing
// @Produce json
// @Success 200 {object} models.PricingResponse "Pricing tiers"
// @Router /billing/pricing [get]
func (h *BillingHandler) GetPricing(c echo.Context) error {
	descriptors := h.catalog.Descriptors()
	tiers := make([]models.PricingTier, 0, len(descriptors))
	for _, d := range descriptors {
		tiers = append(tiers, models.PricingTier{
			Name:        string(d.Plan),
			Price:       d.PriceCents,
			Lifetime:    d.Lifetime,
			Description: d.Description,
			Members:     d.Limits.Members,
			Projects:    d.Limits.Projects,
			Clients:     d.Limits.Clients,
		})
	}
	return c.JSON(http.StatusOK, models.PricingResponse{Tiers: tiers})
}

// UpdateSettings godoc
// @Summary Update company settings
// @Description Update tenant feature toggles; logo upload requires a plan with that entitlement
// @Tags billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body models.CompanySettingsRequest true "Settings"
// @Success 200 {object} models.SuccessResponse "Settings updated"
// @Failure 403 {object} models.ErrorResponse "Plan does not allow logo upload"
// @Router /companies/settings [patch]
func (h *BillingHandler) UpdateSettings(c echo.Context) error {
	companyID, ok := c.Get("company_id").(uuid.UUID)
	if !ok {
		return apierrors.UnauthorizedError(c, "missing company in context")
	}

	var req models.CompanySettingsRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	ctx := c.Request().Context()
	company, err := h.store.GetCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, billing.ErrCompanyNotFound) {
			return apierrors.NotFoundError(c, "company")
		}
		return apierrors.DatabaseError(c, err)
	}

	if req.LogoURL != nil && *req.LogoURL != "" {
		if !plan.LimitsFor(company.SubscriptionType).LogoUpload {
			return apierrors.ForbiddenError(c, fmt.Sprintf("plan %s does not include logo upload", company.SubscriptionType))
		}
	}

	if err := h.store.UpdateSettings(ctx, companyID, req.PruneCompletedTasks, req.LogoURL); err != nil {
		return apierrors.DatabaseError(c, err)
	}

	return c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: "Settings updated"})
}

// HandleWebhook godoc
// @Summary Stripe webhook endpoint
// @Description Verify and process payment provider events
// @Tags billing
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool "Event received"
// @Failure 400 {object} models.ErrorResponse "Invalid signature"
// @Router /webhooks/stripe [post]
func (h *BillingHandler) HandleWebhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apierrors.ValidationError(c, err)
	}

	event, err := h.verifier.VerifyWebhook(payload, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		h.log.Warn("webhook signature verification failed", "error", err)
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_signature",
			Message: "Webhook signature verification failed",
		})
	}

	if err := h.processor.HandleEvent(c.Request().Context(), event); err != nil {
		// Non-nil means a transient failure; Stripe retries on 5xx.
		h.log.Error("webhook processing failed", "type", event.Type, "id", event.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "processing_failed",
			Message: "Event processing failed, will be retried",
		})
	}

	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}
