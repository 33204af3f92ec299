package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"

	"github.com/zaptask/zaptask/pkg/logger"
	"github.com/zaptask/zaptask/pkg/metrics"
	"github.com/zaptask/zaptask/pkg/models"
	"github.com/zaptask/zaptask/pkg/plan"
)

// Reconciler consumes asynchronous payment provider events and is the source
// of truth for state the provider confirms. Every handler re-derives state
// from the event payload itself, so duplicate and out-of-order delivery
// converge on the same end state.
//
// Events that cannot be correlated to a company are logged and dropped;
// there is no user in the loop to surface an error to.
type Reconciler struct {
	store    CompanyStore
	catalog  *plan.Catalog
	provider PaymentProvider
	email    EmailSender
	log      logger.Logger
	metrics  *metrics.Metrics

	frontendURL string
}

// NewReconciler creates a webhook event reconciler
func NewReconciler(store CompanyStore, catalog *plan.Catalog, provider PaymentProvider, log logger.Logger, frontendURL string) *Reconciler {
	return &Reconciler{
		store:       store,
		catalog:     catalog,
		provider:    provider,
		log:         log,
		frontendURL: frontendURL,
	}
}

// SetEmailSender sets the email sender for billing notifications
func (r *Reconciler) SetEmailSender(e EmailSender) {
	r.email = e
}

// SetMetrics sets the metrics recorder
func (r *Reconciler) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// HandleEvent dispatches a verified provider event to its handler
func (r *Reconciler) HandleEvent(ctx context.Context, event stripe.Event) error {
	r.log.Info("payment provider event received", "type", event.Type, "id", event.ID)

	var err error
	switch event.Type {
	case "checkout.session.completed":
		err = r.handleCheckoutCompleted(ctx, event)
	case "payment_intent.succeeded":
		err = r.handlePaymentIntentSucceeded(ctx, event)
	case "customer.subscription.created":
		err = r.handleSubscriptionCreated(ctx, event)
	case "customer.subscription.updated":
		err = r.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		err = r.handleSubscriptionDeleted(ctx, event)
	case "invoice.paid":
		err = r.handleInvoicePaid(ctx, event)
	case "invoice.payment_failed":
		err = r.handleInvoicePaymentFailed(ctx, event)
	default:
		r.log.Debug("unhandled provider event type", "type", event.Type)
		r.metrics.RecordWebhookEvent(string(event.Type), "ignored")
		return nil
	}

	if err != nil {
		r.metrics.RecordWebhookEvent(string(event.Type), "error")
		return err
	}
	r.metrics.RecordWebhookEvent(string(event.Type), "processed")
	return nil
}

// handleCheckoutCompleted records the customer reference and the purchased
// plan once checkout succeeds. Recurring checkouts also capture the new
// subscription id and its period end.
func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	companyID, p, ok := r.correlate(sess.Metadata, string(event.Type))
	if !ok {
		return nil
	}

	if sess.Customer != nil && sess.Customer.ID != "" {
		if err := r.store.AttachCustomer(ctx, companyID, sess.Customer.ID); err != nil {
			return fmt.Errorf("failed to store customer reference: %w", err)
		}
	}

	// One-time (lifetime) purchases carry no subscription.
	if sess.Mode == stripe.CheckoutSessionModePayment || p.Lifetime() {
		if err := r.store.SetPlan(ctx, companyID, p, models.StatusActive); err != nil {
			return fmt.Errorf("failed to apply lifetime plan: %w", err)
		}
		r.log.Info("lifetime checkout completed", "company_id", companyID, "plan", p)
		r.metrics.RecordPlanActivated(string(p))
		r.notifyActivated(ctx, companyID, p)
		return nil
	}

	if sess.Subscription != nil && sess.Subscription.ID != "" {
		var periodEnd *time.Time
		if sub, err := r.provider.GetSubscription(ctx, sess.Subscription.ID); err != nil {
			// Availability beats billing-date precision here: the period end
			// stays unset and a later subscription event fills it in.
			r.log.Warn("failed to fetch subscription period end, leaving unset", "subscription", sess.Subscription.ID, "error", err)
		} else {
			periodEnd = &sub.CurrentPeriodEnd
		}

		if err := r.store.AttachSubscription(ctx, companyID, sess.Subscription.ID, p, models.StatusActive, periodEnd); err != nil {
			return fmt.Errorf("failed to store subscription: %w", err)
		}
	} else {
		if err := r.store.SetPlan(ctx, companyID, p, models.StatusActive); err != nil {
			return fmt.Errorf("failed to apply plan: %w", err)
		}
	}

	r.log.Info("checkout completed", "company_id", companyID, "plan", p)
	r.metrics.RecordPlanActivated(string(p))
	r.notifyActivated(ctx, companyID, p)
	return nil
}

// handlePaymentIntentSucceeded applies lifetime purchases confirmed by a
// one-time payment. Non-lifetime payment intents belong to subscription
// invoices and are handled by the subscription events instead.
func (r *Reconciler) handlePaymentIntentSucceeded(ctx context.Context, event stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("failed to unmarshal payment intent: %w", err)
	}

	if pi.Metadata["lifetime"] != "true" {
		r.log.Debug("ignoring non-lifetime payment intent", "id", pi.ID)
		return nil
	}

	companyID, p, ok := r.correlate(pi.Metadata, string(event.Type))
	if !ok {
		return nil
	}
	if !p.Lifetime() {
		r.log.Warn("payment intent marked lifetime but plan is recurring, dropping", "id", pi.ID, "plan", p)
		return nil
	}

	if err := r.store.SetPlan(ctx, companyID, p, models.StatusActive); err != nil {
		return fmt.Errorf("failed to apply lifetime plan: %w", err)
	}

	r.log.Info("lifetime purchase completed", "company_id", companyID, "plan", p)
	r.metrics.RecordPlanActivated(string(p))
	r.notifyActivated(ctx, companyID, p)
	return nil
}

// handleSubscriptionCreated stores the subscription reference, plan, status
// and period end as reported by the provider.
func (r *Reconciler) handleSubscriptionCreated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	companyID, p, ok := r.correlate(sub.Metadata, string(event.Type))
	if !ok {
		return nil
	}

	if mapped, found := r.planFromSubscription(&sub); found {
		p = mapped
	}

	periodEnd := time.Unix(sub.CurrentPeriodEnd, 0)
	if sub.CurrentPeriodEnd == 0 {
		// Provider omitted the period end; estimate one cycle out rather
		// than leaving the paid period open-ended.
		periodEnd = time.Now().AddDate(0, 1, 0)
		r.log.Warn("subscription has no period end, estimating one month", "subscription", sub.ID)
	}

	if err := r.store.AttachSubscription(ctx, companyID, sub.ID, p, statusFromProvider(string(sub.Status)), &periodEnd); err != nil {
		return fmt.Errorf("failed to store subscription: %w", err)
	}

	r.log.Info("subscription created", "company_id", companyID, "subscription", sub.ID, "plan", p, "status", sub.Status)
	return nil
}

// handleSubscriptionUpdated refreshes status and period end, and promotes a
// pending scheduled change when the provider now reports its target plan.
func (r *Reconciler) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	company, err := r.store.GetCompanyBySubscriptionID(ctx, sub.ID)
	if err != nil {
		r.log.Warn("subscription update for unknown subscription, dropping", "subscription", sub.ID)
		return nil
	}

	status := statusFromProvider(string(sub.Status))
	periodEnd := time.Unix(sub.CurrentPeriodEnd, 0)
	if sub.CurrentPeriodEnd == 0 {
		// Partial payloads can omit the period end; keep the stored one
		// rather than rewinding the billing period to the epoch.
		if company.SubscriptionEndsAt != nil {
			periodEnd = *company.SubscriptionEndsAt
		} else {
			periodEnd = time.Now().AddDate(0, 1, 0)
			r.log.Warn("subscription update has no period end, estimating one month", "subscription", sub.ID)
		}
	}

	reported, found := r.planFromSubscription(&sub)
	if !found || reported == company.SubscriptionType {
		// Plain status/period refresh; a pending scheduled change stays pending.
		if err := r.store.UpdateSubscriptionState(ctx, company.ID, status, periodEnd); err != nil {
			return fmt.Errorf("failed to update subscription state: %w", err)
		}
		return nil
	}

	if company.ScheduledSubscriptionType != nil && *company.ScheduledSubscriptionType == reported {
		r.log.Info("promoting scheduled plan change", "company", company.Code, "from", company.SubscriptionType, "to", reported)
	} else {
		// The provider reports a plan matching neither the current nor the
		// scheduled one (e.g. a manual dashboard change). Applied as an
		// immediate change; the provider owns paid state.
		r.log.Warn("provider reports unexpected plan, applying immediately",
			"company", company.Code, "local", company.SubscriptionType, "reported", reported)
	}

	if err := r.store.AttachSubscription(ctx, company.ID, sub.ID, reported, status, &periodEnd); err != nil {
		return fmt.Errorf("failed to apply plan change: %w", err)
	}
	return nil
}

// handleSubscriptionDeleted clears every provider reference so the company
// can re-subscribe cleanly, falling back to the scheduled plan if one was
// pending and FREE otherwise. A lifetime plan purchased in the meantime is
// kept as-is.
func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	company, err := r.store.GetCompanyBySubscriptionID(ctx, sub.ID)
	if err != nil {
		r.log.Warn("subscription delete for unknown subscription, dropping", "subscription", sub.ID)
		return nil
	}

	fallback := plan.Free
	switch {
	case company.SubscriptionType.Lifetime():
		fallback = company.SubscriptionType
	case company.ScheduledSubscriptionType != nil:
		fallback = *company.ScheduledSubscriptionType
	}

	if err := r.store.DetachProvider(ctx, company.ID, fallback); err != nil {
		return fmt.Errorf("failed to detach provider state: %w", err)
	}

	r.log.Info("subscription deleted", "company", company.Code, "fallback_plan", fallback)
	if fallback == plan.Free {
		r.notifyCanceled(ctx, company.ID)
	}
	return nil
}

// handleInvoicePaid restores past_due companies to active once payment clears
func (r *Reconciler) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	if invoice.Subscription == nil || invoice.Subscription.ID == "" {
		r.log.Debug("invoice without subscription, dropping", "invoice", invoice.ID)
		return nil
	}

	company, err := r.store.GetCompanyBySubscriptionID(ctx, invoice.Subscription.ID)
	if err != nil {
		r.log.Warn("invoice for unknown subscription, dropping", "subscription", invoice.Subscription.ID)
		return nil
	}

	if company.SubscriptionStatus == models.StatusPastDue {
		if err := r.store.SetStatus(ctx, company.ID, models.StatusActive); err != nil {
			return fmt.Errorf("failed to restore active status: %w", err)
		}
		r.log.Info("restored company to active after payment", "company", company.Code)
	}

	if r.email != nil && invoice.BillingReason == stripe.InvoiceBillingReasonSubscriptionCycle {
		nextBilling := time.Unix(invoice.PeriodEnd, 0).Format("2006-01-02")
		subject, html, plain := buildSubscriptionRenewedEmail(company.Name, string(company.SubscriptionType), nextBilling, r.frontendURL)
		if err := r.email.SendEmail(company.BillingEmail, company.Name, subject, html, plain); err != nil {
			r.log.Warn("failed to send renewal email", "company", company.Code, "error", err)
		}
	}

	return nil
}

// handleInvoicePaymentFailed marks the company past_due and notifies it
func (r *Reconciler) handleInvoicePaymentFailed(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	if invoice.Subscription == nil || invoice.Subscription.ID == "" {
		r.log.Debug("failed invoice without subscription, dropping", "invoice", invoice.ID)
		return nil
	}

	company, err := r.store.GetCompanyBySubscriptionID(ctx, invoice.Subscription.ID)
	if err != nil {
		r.log.Warn("failed invoice for unknown subscription, dropping", "subscription", invoice.Subscription.ID)
		return nil
	}

	if err := r.store.SetStatus(ctx, company.ID, models.StatusPastDue); err != nil {
		return fmt.Errorf("failed to set past_due status: %w", err)
	}
	r.log.Info("company marked past_due after payment failure", "company", company.Code, "invoice", invoice.ID)

	if r.email != nil {
		subject, html, plain := buildPaymentFailedEmail(company.Name, r.frontendURL)
		if err := r.email.SendEmail(company.BillingEmail, company.Name, subject, html, plain); err != nil {
			r.log.Warn("failed to send payment failed email", "company", company.Code, "error", err)
		}
	}

	return nil
}

// correlate extracts the company id and plan from event metadata. Missing or
// malformed correlation data logs the event and drops it.
func (r *Reconciler) correlate(metadata map[string]string, eventType string) (uuid.UUID, plan.Plan, bool) {
	idStr, ok := metadata["company_id"]
	if !ok || idStr == "" {
		r.log.Warn("event missing company_id metadata, dropping", "type", eventType)
		return uuid.Nil, "", false
	}

	companyID, err := uuid.Parse(idStr)
	if err != nil {
		r.log.Warn("event carries malformed company_id, dropping", "type", eventType, "company_id", idStr)
		return uuid.Nil, "", false
	}

	p, err := plan.Parse(metadata["plan"])
	if err != nil {
		r.log.Warn("event carries unknown plan, dropping", "type", eventType, "plan", metadata["plan"])
		return uuid.Nil, "", false
	}

	return companyID, p, true
}

// planFromSubscription maps the subscription's first line-item price to a plan
func (r *Reconciler) planFromSubscription(sub *stripe.Subscription) (plan.Plan, bool) {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return "", false
	}
	return r.catalog.PlanForPrice(sub.Items.Data[0].Price.ID)
}

func (r *Reconciler) notifyActivated(ctx context.Context, companyID uuid.UUID, p plan.Plan) {
	if r.email == nil {
		return
	}
	company, err := r.store.GetCompany(ctx, companyID)
	if err != nil {
		return
	}
	subject, html, plain := buildSubscriptionActivatedEmail(company.Name, string(p), r.frontendURL)
	if err := r.email.SendEmail(company.BillingEmail, company.Name, subject, html, plain); err != nil {
		r.log.Warn("failed to send activation email", "company", company.Code, "error", err)
	}
}

func (r *Reconciler) notifyCanceled(ctx context.Context, companyID uuid.UUID) {
	if r.email == nil {
		return
	}
	company, err := r.store.GetCompany(ctx, companyID)
	if err != nil {
		return
	}
	subject, html, plain := buildSubscriptionCancelledEmail(company.Name, r.frontendURL)
	if err := r.email.SendEmail(company.BillingEmail, company.Name, subject, html, plain); err != nil {
		r.log.Warn("failed to send cancellation email", "company", company.Code, "error", err)
	}
}
