package billing

import "github.com/zaptask/zaptask/pkg/models"

// statusFromProvider maps a Stripe subscription status onto the local enum.
// Unknown provider statuses read as active so a vocabulary change on the
// provider side cannot lock customers out.
func statusFromProvider(s string) models.SubscriptionStatus {
	switch s {
	case "active":
		return models.StatusActive
	case "trialing":
		return models.StatusTrialing
	case "past_due", "unpaid":
		return models.StatusPastDue
	case "canceled":
		return models.StatusCanceled
	case "incomplete", "incomplete_expired":
		return models.StatusIncomplete
	default:
		return models.StatusActive
	}
}
