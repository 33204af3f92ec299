package models

import (
	"time"

	"github.com/zaptask/zaptask/pkg/plan"
)

// PlanChangeRequest represents a request to move the company to another plan
type PlanChangeRequest struct {
	Plan string `json:"plan" validate:"required"`
}

// PlanChangeResponse reports the outcome of a plan change request
type PlanChangeResponse struct {
	Outcome     string     `json:"outcome"` // applied | scheduled | checkout
	Plan        string     `json:"plan"`
	EffectiveAt *time.Time `json:"effective_at,omitempty"`
	CheckoutURL string     `json:"checkout_url,omitempty"`
}

// RedeemRequest represents a lifetime-code redemption request
type RedeemRequest struct {
	Code string `json:"code" validate:"required,min=8"`
}

// CompanySettingsRequest updates tenant-level feature toggles
type CompanySettingsRequest struct {
	PruneCompletedTasks *bool   `json:"prune_completed_tasks,omitempty"`
	LogoURL             *string `json:"logo_url,omitempty" validate:"omitempty,url"`
}

// Usage holds live usage counts for entitlement checks
type Usage struct {
	Members  int `json:"members"`
	Projects int `json:"projects"`
	Clients  int `json:"clients"`
}

// EntitlementsResponse reports the company's plan, limits and current usage
type EntitlementsResponse struct {
	Plan   string      `json:"plan"`
	Status string      `json:"status"`
	Limits plan.Limits `json:"limits"`
	Usage  Usage       `json:"usage"`
}

// CustomerPortalResponse represents a customer portal session response
type CustomerPortalResponse struct {
	URL string `json:"url"`
}

// PricingTier represents one purchasable tier
type PricingTier struct {
	Name        string `json:"name"`
	Price       int64  `json:"price_cents"`
	Lifetime    bool   `json:"lifetime"`
	Description string `json:"description"`
	Members     int    `json:"members"`
	Projects    int    `json:"projects"`
	Clients     int    `json:"clients"`
}

// PricingResponse represents pricing information for all tiers
type PricingResponse struct {
	Tiers []PricingTier `json:"tiers"`
}

// ErrorResponse is the generic error envelope
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse is the generic success envelope
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
