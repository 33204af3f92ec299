package jobs

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zaptask/zaptask/pkg/billing"
)

// CronManager manages scheduled billing jobs
type CronManager struct {
	cron    *cron.Cron
	sweeper *billing.Sweeper
	logger  *log.Logger
}

// NewCronManager creates a new cron manager
func NewCronManager(sweeper *billing.Sweeper, logger *log.Logger) *CronManager {
	if logger == nil {
		logger = log.Default()
	}

	return &CronManager{
		cron:    cron.New(),
		sweeper: sweeper,
		logger:  logger,
	}
}

// SetupJobs configures all scheduled jobs
func (cm *CronManager) SetupJobs() error {
	cm.logger.Println("Setting up cron jobs...")

	// Hourly: apply scheduled plan changes that are due
	_, err := cm.cron.AddFunc("0 * * * *", func() {
		cm.logger.Println("🕐 Running scheduled plan change sweep...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		report, err := cm.sweeper.Sweep(ctx, billing.SweepOptions{})
		if err != nil {
			cm.logger.Printf("❌ Sweep failed: %v", err)
			return
		}

		cm.logger.Printf("✅ Sweep completed: %d applied, %d skipped", report.Applied, report.Skipped)
	})

	if err != nil {
		return err
	}

	// Daily at 4 AM: log pending scheduled changes
	_, err = cm.cron.AddFunc("0 4 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()

		pending, err := cm.sweeper.PendingChanges(ctx)
		if err != nil {
			cm.logger.Printf("❌ Failed to count pending scheduled changes: %v", err)
			return
		}

		cm.logger.Printf("📊 Pending scheduled plan changes due: %d", pending)
	})

	if err != nil {
		return err
	}

	cm.logger.Println("✅ Cron jobs configured successfully")
	cm.logger.Println("  - Hourly: apply due scheduled plan changes")
	cm.logger.Println("  - Daily at 4 AM: log pending change counts")

	return nil
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.logger.Println("🚀 Starting cron scheduler...")
	cm.cron.Start()
}

// Stop stops the cron scheduler
func (cm *CronManager) Stop() {
	cm.logger.Println("🛑 Stopping cron scheduler...")
	cm.cron.Stop()
}
