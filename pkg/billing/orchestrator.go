package billing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/zaptask/zaptask/pkg/logger"
	"github.com/zaptask/zaptask/pkg/models"
	"github.com/zaptask/zaptask/pkg/plan"
)

// ChangeOutcome categorizes the result of a plan change request
type ChangeOutcome string

const (
	// OutcomeApplied means the plan was changed synchronously
	OutcomeApplied ChangeOutcome = "applied"
	// OutcomeScheduled means a downgrade was deferred to the paid period end
	OutcomeScheduled ChangeOutcome = "scheduled"
	// OutcomeCheckout means the caller must complete a provider-hosted checkout
	OutcomeCheckout ChangeOutcome = "checkout"
)

// ChangeResult reports what the orchestrator decided
type ChangeResult struct {
	Outcome     ChangeOutcome
	Plan        plan.Plan
	EffectiveAt *time.Time
	CheckoutURL string
}

// Orchestrator validates plan transitions and decides between immediate
// changes, scheduled downgrades and new checkout flows. Provider calls
// happen before any local write, so a failed call leaves no partial state.
type Orchestrator struct {
	store    CompanyStore
	codes    RedemptionStore
	catalog  *plan.Catalog
	provider PaymentProvider
	log      logger.Logger
}

// NewOrchestrator creates a plan change orchestrator
func NewOrchestrator(store CompanyStore, codes RedemptionStore, catalog *plan.Catalog, provider PaymentProvider, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		codes:    codes,
		catalog:  catalog,
		provider: provider,
		log:      log,
	}
}

// ChangePlan moves a company toward the target plan. The decision tree:
//
//  1. Lifetime target: one-time checkout, completed asynchronously.
//  2. Active subscription + lower-ranked target: schedule the change for
//     the current period end, keep the paid plan until then.
//  3. Active subscription + higher/equal target: update the provider price
//     and apply locally right away.
//  4. No subscription + FREE target: apply immediately.
//  5. Customer reference but stale subscription reference: adopt the
//     provider's live subscription instead of creating a duplicate.
//  6. Otherwise: new checkout session.
func (o *Orchestrator) ChangePlan(ctx context.Context, companyID uuid.UUID, target plan.Plan) (*ChangeResult, error) {
	desc, ok := o.catalog.Descriptor(target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, target)
	}

	company, err := o.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	if company.SubscriptionType == target {
		// Re-selecting the current plan cancels a pending scheduled downgrade.
		if company.ScheduledSubscriptionType != nil {
			// A pending FREE change also flagged the provider subscription
			// to lapse; switch renewal back on before forgetting the change.
			if *company.ScheduledSubscriptionType == plan.Free && company.HasActiveSubscription() {
				if _, err := o.provider.SetCancelAtPeriodEnd(ctx, *company.StripeSubscriptionID, false); err != nil {
					return nil, fmt.Errorf("failed to resume renewal: %w", err)
				}
			}
			if err := o.store.ClearScheduledChange(ctx, company.ID); err != nil {
				return nil, err
			}
			o.log.Info("canceled scheduled plan change", "company", company.Code, "plan", target)
			return &ChangeResult{Outcome: OutcomeApplied, Plan: target}, nil
		}
		return nil, ErrSamePlan
	}

	if desc.Lifetime {
		return o.beginCheckout(ctx, company, desc)
	}

	if company.HasActiveSubscription() {
		return o.changeRecurring(ctx, company, desc)
	}

	// No recurring subscription: free targets apply immediately.
	if target == plan.Free {
		if err := o.store.SetPlan(ctx, company.ID, plan.Free, models.StatusActive); err != nil {
			return nil, err
		}
		if err := o.store.ClearScheduledChange(ctx, company.ID); err != nil {
			return nil, err
		}
		o.log.Info("applied plan change", "company", company.Code, "plan", target)
		return &ChangeResult{Outcome: OutcomeApplied, Plan: target}, nil
	}

	// The local subscription reference may be stale while the provider still
	// holds a live one; adopt it rather than opening a duplicate checkout.
	if company.HasCustomer() {
		sub, err := o.provider.FindActiveSubscription(ctx, *company.StripeCustomerID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up existing subscription: %w", err)
		}
		if sub != nil {
			adopted := company.SubscriptionType
			if p, ok := o.catalog.PlanForPrice(sub.PriceID); ok {
				adopted = p
			}
			periodEnd := sub.CurrentPeriodEnd
			if err := o.store.AttachSubscription(ctx, company.ID, sub.ID, adopted, statusFromProvider(sub.Status), &periodEnd); err != nil {
				return nil, err
			}
			o.log.Info("adopted existing provider subscription", "company", company.Code, "subscription", sub.ID, "plan", adopted)

			if adopted == target {
				return &ChangeResult{Outcome: OutcomeApplied, Plan: target}, nil
			}

			company.StripeSubscriptionID = &sub.ID
			company.SubscriptionType = adopted
			company.SubscriptionEndsAt = &periodEnd
			return o.changeRecurring(ctx, company, desc)
		}
	}

	return o.beginCheckout(ctx, company, desc)
}

// changeRecurring handles transitions while a recurring subscription is active
func (o *Orchestrator) changeRecurring(ctx context.Context, company *models.Company, desc plan.Descriptor) (*ChangeResult, error) {
	if desc.Plan.Rank() < company.SubscriptionType.Rank() {
		// Downgrade: the customer keeps what they paid for until the period
		// ends. Record the deferred transition, and for a FREE target tell
		// the provider to stop renewing so no further charges happen. Paid
		// targets get their price swapped when the change is applied.
		endsAt := company.SubscriptionEndsAt
		if endsAt == nil {
			sub, err := o.provider.GetSubscription(ctx, *company.StripeSubscriptionID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve current period end: %w", err)
			}
			endsAt = &sub.CurrentPeriodEnd
		}
		if desc.Plan == plan.Free {
			if _, err := o.provider.SetCancelAtPeriodEnd(ctx, *company.StripeSubscriptionID, true); err != nil {
				return nil, fmt.Errorf("failed to stop renewal: %w", err)
			}
		}
		if err := o.store.ScheduleChange(ctx, company.ID, desc.Plan, *endsAt); err != nil {
			return nil, err
		}
		o.log.Info("scheduled plan downgrade", "company", company.Code, "from", company.SubscriptionType, "to", desc.Plan, "effective", endsAt)
		return &ChangeResult{Outcome: OutcomeScheduled, Plan: desc.Plan, EffectiveAt: endsAt}, nil
	}

	sub, err := o.provider.UpdateSubscriptionPrice(ctx, *company.StripeSubscriptionID, desc.PriceID)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription plan: %w", err)
	}

	periodEnd := sub.CurrentPeriodEnd
	if err := o.store.AttachSubscription(ctx, company.ID, sub.ID, desc.Plan, statusFromProvider(sub.Status), &periodEnd); err != nil {
		return nil, err
	}
	o.log.Info("applied plan change", "company", company.Code, "from", company.SubscriptionType, "to", desc.Plan)
	return &ChangeResult{Outcome: OutcomeApplied, Plan: desc.Plan}, nil
}

// beginCheckout opens a provider-hosted checkout; local plan state changes
// only once the reconciler sees the provider confirm payment.
func (o *Orchestrator) beginCheckout(ctx context.Context, company *models.Company, desc plan.Descriptor) (*ChangeResult, error) {
	customerID, err := o.ensureCustomer(ctx, company)
	if err != nil {
		return nil, err
	}

	sess, err := o.provider.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID: customerID,
		PriceID:    desc.PriceID,
		OneTime:    desc.Lifetime,
		Metadata: map[string]string{
			"company_id": company.ID.String(),
			"plan":       string(desc.Plan),
			"lifetime":   strconv.FormatBool(desc.Lifetime),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start checkout: %w", err)
	}

	o.log.Info("created checkout session", "company", company.Code, "plan", desc.Plan, "session", sess.ID)
	return &ChangeResult{Outcome: OutcomeCheckout, Plan: desc.Plan, CheckoutURL: sess.URL}, nil
}

// ensureCustomer returns the company's provider customer, creating one on demand.
// The customer reference is persisted right after the provider confirms creation.
func (o *Orchestrator) ensureCustomer(ctx context.Context, company *models.Company) (string, error) {
	if company.HasCustomer() {
		return *company.StripeCustomerID, nil
	}

	customerID, err := o.provider.CreateCustomer(ctx, company.BillingEmail, company.Name, map[string]string{
		"company_id": company.ID.String(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}

	if err := o.store.AttachCustomer(ctx, company.ID, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}

// RedeemLifetimeCode consumes a lifetime-deal code and moves the company to
// the code's tier. Consumption happens first under a row lock, so two
// concurrent attempts on the same code can never both succeed.
func (o *Orchestrator) RedeemLifetimeCode(ctx context.Context, companyID, userID uuid.UUID, code string) (*ChangeResult, error) {
	rc, err := o.codes.ConsumeRedemptionCode(ctx, code, userID)
	if err != nil {
		return nil, err
	}

	company, err := o.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	if company.HasActiveSubscription() {
		// Best effort: if the cancel fails the subscription.deleted webhook
		// will still arrive eventually and the reconciler keeps the lifetime
		// plan in place.
		if err := o.provider.CancelSubscription(ctx, *company.StripeSubscriptionID); err != nil {
			o.log.Warn("failed to cancel subscription after lifetime redemption", "company", company.Code, "error", err)
		}
	}

	if err := o.store.DetachProvider(ctx, company.ID, rc.Tier); err != nil {
		return nil, err
	}

	o.log.Info("redeemed lifetime code", "company", company.Code, "tier", rc.Tier, "code", rc.Code)
	return &ChangeResult{Outcome: OutcomeApplied, Plan: rc.Tier}, nil
}

// CreatePortalSession opens the provider's billing portal for the company
func (o *Orchestrator) CreatePortalSession(ctx context.Context, companyID uuid.UUID, returnURL string) (string, error) {
	company, err := o.store.GetCompany(ctx, companyID)
	if err != nil {
		return "", err
	}
	if !company.HasCustomer() {
		return "", fmt.Errorf("company has no billing account yet")
	}
	return o.provider.CreatePortalSession(ctx, *company.StripeCustomerID, returnURL)
}
