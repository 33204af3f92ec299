package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zaptask/zaptask/pkg/models"
	"github.com/zaptask/zaptask/pkg/plan"
)

// Domain errors surfaced by billing operations
var (
	ErrCompanyNotFound     = errors.New("company not found")
	ErrUnknownPlan         = errors.New("unknown plan")
	ErrSamePlan            = errors.New("company is already on the requested plan")
	ErrCodeNotFound        = errors.New("redemption code not found")
	ErrCodeAlreadyRedeemed = errors.New("redemption code already redeemed")
)

// CompanyStore abstracts persistence of the Company billing fields.
// Implementations must update the scheduled pair atomically: both fields
// set together or both cleared, never one without the other.
type CompanyStore interface {
	GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	GetCompanyByCode(ctx context.Context, code string) (*models.Company, error)
	GetCompanyBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Company, error)

	// SetPlan sets the current plan and status, leaving provider references
	// and any scheduled change untouched.
	SetPlan(ctx context.Context, id uuid.UUID, p plan.Plan, status models.SubscriptionStatus) error

	// SetStatus updates the provider-reported subscription status only.
	SetStatus(ctx context.Context, id uuid.UUID, status models.SubscriptionStatus) error

	// SetPeriodEnd records the current billing period end.
	SetPeriodEnd(ctx context.Context, id uuid.UUID, endsAt time.Time) error

	// AttachCustomer records the provider customer reference.
	AttachCustomer(ctx context.Context, id uuid.UUID, customerID string) error

	// AttachSubscription re-derives the full recurring-billing state from the
	// provider: subscription id, plan, status, period end. It also clears any
	// pending scheduled change, since the attached state supersedes it.
	AttachSubscription(ctx context.Context, id uuid.UUID, subscriptionID string, p plan.Plan, status models.SubscriptionStatus, periodEnd *time.Time) error

	// UpdateSubscriptionState refreshes status and period end without
	// touching the plan or a pending scheduled change.
	UpdateSubscriptionState(ctx context.Context, id uuid.UUID, status models.SubscriptionStatus, periodEnd time.Time) error

	// ScheduleChange records a deferred transition to target at the given time.
	ScheduleChange(ctx context.Context, id uuid.UUID, target plan.Plan, at time.Time) error

	// ClearScheduledChange removes a pending scheduled change, if any.
	ClearScheduledChange(ctx context.Context, id uuid.UUID) error

	// ApplyScheduledChange promotes a due scheduled change to the current
	// plan and clears the pair, guarded so a concurrent writer that already
	// applied or cleared it turns this into a no-op. Returns whether a
	// change was applied.
	ApplyScheduledChange(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// DetachProvider clears every provider reference (customer id,
	// subscription id, period end, scheduled pair) and moves the company to
	// the fallback plan with active status. A later re-subscription gets a
	// fresh provider customer created on demand.
	DetachProvider(ctx context.Context, id uuid.UUID, fallback plan.Plan) error

	// ListDueScheduledChanges returns companies whose scheduled change date
	// has passed. An empty code matches all companies.
	ListDueScheduledChanges(ctx context.Context, now time.Time, companyCode string) ([]*models.Company, error)

	// UpdateSettings updates tenant feature toggles. Nil fields are left unchanged.
	UpdateSettings(ctx context.Context, id uuid.UUID, pruneCompletedTasks *bool, logoURL *string) error
}

// RedemptionStore consumes lifetime-deal codes. Implementations must
// guarantee at-most-once consumption under concurrent attempts.
type RedemptionStore interface {
	ConsumeRedemptionCode(ctx context.Context, code string, userID uuid.UUID) (*models.RedemptionCode, error)
}

// UsageCounter reports live usage for entitlement checks
type UsageCounter interface {
	CountActiveMembers(ctx context.Context, companyID uuid.UUID) (int, error)
	CountActiveProjects(ctx context.Context, companyID uuid.UUID) (int, error)
	CountActiveClients(ctx context.Context, companyID uuid.UUID) (int, error)
}

// EmailSender abstracts email sending for billing notifications
type EmailSender interface {
	SendEmail(toEmail, toName, subject, htmlBody, plainTextBody string) error
}
