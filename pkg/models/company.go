package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/zaptask/zaptask/pkg/plan"
)

// SubscriptionStatus mirrors the provider-side subscription state.
// Only meaningful for recurring plans; FREE and LTD_* companies are
// always stored as active.
type SubscriptionStatus string

const (
	StatusActive     SubscriptionStatus = "active"
	StatusCanceled   SubscriptionStatus = "canceled"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusIncomplete SubscriptionStatus = "incomplete"
	StatusTrialing   SubscriptionStatus = "trialing"
)

// Company is the tenant and billing unit
type Company struct {
	ID           uuid.UUID `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	BillingEmail string    `json:"billing_email"`

	SubscriptionType   plan.Plan          `json:"subscription_type"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`

	// Provider linkage. Subscription ID is absent for FREE and LTD_* plans.
	StripeCustomerID     *string `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string `json:"stripe_subscription_id,omitempty"`

	SubscriptionEndsAt *time.Time `json:"subscription_ends_at,omitempty"`

	// Pending deferred transition. Both fields are set together or both nil.
	ScheduledSubscriptionType *plan.Plan `json:"scheduled_subscription_type,omitempty"`
	ScheduledChangeDate       *time.Time `json:"scheduled_change_date,omitempty"`

	PruneCompletedTasks bool    `json:"prune_completed_tasks"`
	LogoURL             *string `json:"logo_url,omitempty"`
	Subdomain           *string `json:"subdomain,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasActiveSubscription reports whether the company holds a live recurring
// subscription reference at the provider.
func (c *Company) HasActiveSubscription() bool {
	return c.StripeSubscriptionID != nil && *c.StripeSubscriptionID != ""
}

// HasCustomer reports whether the company is linked to a provider customer
func (c *Company) HasCustomer() bool {
	return c.StripeCustomerID != nil && *c.StripeCustomerID != ""
}

// RedemptionCode is a one-time lifetime-deal token, consumed exactly once
// under a row lock.
type RedemptionCode struct {
	ID         uuid.UUID  `json:"id"`
	Code       string     `json:"code"`
	Tier       plan.Plan  `json:"tier"`
	Redeemed   bool       `json:"redeemed"`
	RedeemedBy *uuid.UUID `json:"redeemed_by,omitempty"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
