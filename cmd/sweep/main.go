package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/zaptask/zaptask/config"
	"github.com/zaptask/zaptask/pkg/billing"
	"github.com/zaptask/zaptask/pkg/database"
	"github.com/zaptask/zaptask/pkg/logger"
	"github.com/zaptask/zaptask/pkg/plan"
	"github.com/zaptask/zaptask/pkg/storage"
)

// One-shot sweep of due scheduled plan changes. The API server runs the same
// sweep hourly; this binary exists for operations: dry runs, catching up
// after downtime, and targeting a single company.
func main() {
	dryRun := flag.Bool("dry-run", false, "report what would be applied without writing")
	companyCode := flag.String("company", "", "restrict the sweep to one company code")
	flag.Parse()

	cfg := config.Load()
	appLog := logger.New(cfg.LogLevel)

	catalog, err := plan.BuildCatalog(plan.PriceIDs{
		Midi:        cfg.PriceMidi,
		Maxi:        cfg.PriceMaxi,
		Business:    cfg.PriceBusiness,
		LTDSolo:     cfg.PriceLTDSolo,
		LTDTeam:     cfg.PriceLTDTeam,
		LTDAgency:   cfg.PriceLTDAgency,
		LTDBusiness: cfg.PriceLTDBusiness,
	})
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.NewClient(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	store := storage.NewStore(db.Pool)
	provider := billing.NewStripeProvider(billing.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
	})
	sweeper := billing.NewSweeper(store, catalog, provider, appLog)

	report, err := sweeper.Sweep(ctx, billing.SweepOptions{
		DryRun:      *dryRun,
		CompanyCode: *companyCode,
	})
	if err != nil {
		log.Fatalf("❌ Sweep failed: %v", err)
	}

	if *dryRun {
		log.Printf("✅ Dry run: %d scheduled changes due", len(report.Entries))
	} else {
		log.Printf("✅ Sweep completed: %d applied, %d skipped", report.Applied, report.Skipped)
	}
	for _, entry := range report.Entries {
		log.Printf("  %s: %s → %s (due %s, applied=%v)",
			entry.CompanyCode, entry.FromPlan, entry.ToPlan, entry.DueAt.Format(time.RFC3339), entry.Applied)
	}
}
