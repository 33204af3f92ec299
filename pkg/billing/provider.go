package billing

import (
	"context"
	"time"
)

// Subscription is the provider-side view of a recurring subscription
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	PriceID           string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

// CheckoutSession is a provider-hosted payment page
type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt int64
}

// CheckoutParams configures a new checkout session
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	// OneTime selects payment mode instead of subscription mode,
	// used for lifetime plans.
	OneTime  bool
	Metadata map[string]string
}

// PaymentProvider abstracts the payment provider API. The Stripe
// implementation lives in stripe.go; tests substitute fakes.
type PaymentProvider interface {
	CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	// UpdateSubscriptionPrice swaps the subscription to a new price and
	// resumes renewal if a cancellation was pending.
	UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) (*Subscription, error)
	// SetCancelAtPeriodEnd flags the subscription to lapse at the end of
	// the current period instead of renewing, or undoes that flag.
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	// FindActiveSubscription returns the customer's active subscription,
	// or nil when none exists.
	FindActiveSubscription(ctx context.Context, customerID string) (*Subscription, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}
