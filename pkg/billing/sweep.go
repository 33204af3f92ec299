package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/zaptask/zaptask/pkg/logger"
	"github.com/zaptask/zaptask/pkg/metrics"
	"github.com/zaptask/zaptask/pkg/models"
	"github.com/zaptask/zaptask/pkg/plan"
)

// SweepOptions narrows a sweep run
type SweepOptions struct {
	// DryRun reports what would be applied without writing anything.
	DryRun bool
	// CompanyCode restricts the sweep to a single company. Empty means all.
	CompanyCode string
}

// SweepEntry describes one company touched by a sweep
type SweepEntry struct {
	CompanyCode string    `json:"company_code"`
	FromPlan    plan.Plan `json:"from_plan"`
	ToPlan      plan.Plan `json:"to_plan"`
	DueAt       time.Time `json:"due_at"`
	Applied     bool      `json:"applied"`
}

// SweepReport summarizes a sweep run
type SweepReport struct {
	Applied int          `json:"applied"`
	Skipped int          `json:"skipped"`
	Entries []SweepEntry `json:"entries"`
}

// Sweeper applies scheduled plan changes whose effective date has passed.
// Each application is a guarded single-row update, so overlapping sweep
// runs and webhook-driven promotions cannot double-apply a change.
//
// FREE targets need no provider work here: their subscription was flagged
// to lapse at period end when the change was scheduled. Paid targets get
// their provider price swapped before the local plan moves.
type Sweeper struct {
	store    CompanyStore
	catalog  *plan.Catalog
	provider PaymentProvider
	log      logger.Logger
	metrics  *metrics.Metrics

	now func() time.Time
}

// NewSweeper creates a scheduled change sweeper
func NewSweeper(store CompanyStore, catalog *plan.Catalog, provider PaymentProvider, log logger.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		catalog:  catalog,
		provider: provider,
		log:      log,
		now:      time.Now,
	}
}

// SetMetrics sets the metrics recorder
func (s *Sweeper) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Sweep finds due scheduled changes and applies them. A failure on one
// company is logged and the sweep moves on; one broken row must not stall
// everyone else's downgrade.
func (s *Sweeper) Sweep(ctx context.Context, opts SweepOptions) (*SweepReport, error) {
	now := s.now()
	due, err := s.store.ListDueScheduledChanges(ctx, now, opts.CompanyCode)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Entries: make([]SweepEntry, 0, len(due))}
	for _, company := range due {
		if company.ScheduledSubscriptionType == nil || company.ScheduledChangeDate == nil {
			continue
		}

		entry := SweepEntry{
			CompanyCode: company.Code,
			FromPlan:    company.SubscriptionType,
			ToPlan:      *company.ScheduledSubscriptionType,
			DueAt:       *company.ScheduledChangeDate,
		}

		if opts.DryRun {
			s.log.Info("would apply scheduled plan change",
				"company", company.Code, "from", entry.FromPlan, "to", entry.ToPlan, "due", entry.DueAt)
			report.Skipped++
			report.Entries = append(report.Entries, entry)
			continue
		}

		if err := s.syncProviderPrice(ctx, company, entry.ToPlan); err != nil {
			s.log.Error("failed to move provider to scheduled price, keeping change pending",
				"company", company.Code, "to", entry.ToPlan, "error", err)
			report.Skipped++
			continue
		}

		applied, err := s.store.ApplyScheduledChange(ctx, company.ID, now)
		if err != nil {
			s.log.Error("failed to apply scheduled plan change", "company", company.Code, "error", err)
			report.Skipped++
			continue
		}
		if !applied {
			// Cleared or already applied since listing; nothing to do.
			report.Skipped++
			continue
		}

		entry.Applied = true
		report.Applied++
		report.Entries = append(report.Entries, entry)
		s.metrics.RecordScheduledApplied()
		s.log.Info("applied scheduled plan change",
			"company", company.Code, "from", entry.FromPlan, "to", entry.ToPlan)
	}

	return report, nil
}

// syncProviderPrice moves an active provider subscription to the price of a
// paid scheduled target. FREE and lifetime targets carry no recurring price
// and need nothing from the provider at apply time.
func (s *Sweeper) syncProviderPrice(ctx context.Context, company *models.Company, target plan.Plan) error {
	if target == plan.Free || target.Lifetime() || !company.HasActiveSubscription() {
		return nil
	}
	desc, ok := s.catalog.Descriptor(target)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlan, target)
	}
	_, err := s.provider.UpdateSubscriptionPrice(ctx, *company.StripeSubscriptionID, desc.PriceID)
	return err
}

// PendingChanges lists scheduled changes that are due without applying them
func (s *Sweeper) PendingChanges(ctx context.Context) (int, error) {
	due, err := s.store.ListDueScheduledChanges(ctx, s.now(), "")
	if err != nil {
		return 0, err
	}
	return len(due), nil
}
