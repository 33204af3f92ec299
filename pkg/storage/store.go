package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zaptask/zaptask/pkg/billing"
	"github.com/zaptask/zaptask/pkg/metrics"
	"github.com/zaptask/zaptask/pkg/models"
	"github.com/zaptask/zaptask/pkg/plan"
)

// Store implements the billing persistence ports on PostgreSQL.
// The scheduled pair invariant (both fields set or both null) is enforced
// twice: by a CHECK constraint on the table and by writing both columns in
// a single statement everywhere here.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a PostgreSQL-backed store
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SetMetrics sets the metrics recorder
func (s *Store) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// track times a query for the db_query_duration histogram
func (s *Store) track(operation string) func() {
	start := time.Now()
	return func() {
		s.metrics.RecordDBQuery(operation, time.Since(start))
	}
}

var (
	_ billing.CompanyStore    = (*Store)(nil)
	_ billing.RedemptionStore = (*Store)(nil)
	_ billing.UsageCounter    = (*Store)(nil)
)

const companyColumns = `id, code, name, billing_email, subscription_type, subscription_status,
	stripe_customer_id, stripe_subscription_id, subscription_ends_at,
	scheduled_subscription_type, scheduled_change_date,
	prune_completed_tasks, logo_url, subdomain, created_at, updated_at`

func scanCompany(row pgx.Row) (*models.Company, error) {
	var c models.Company
	var scheduledType *string
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.BillingEmail, &c.SubscriptionType, &c.SubscriptionStatus,
		&c.StripeCustomerID, &c.StripeSubscriptionID, &c.SubscriptionEndsAt,
		&scheduledType, &c.ScheduledChangeDate,
		&c.PruneCompletedTasks, &c.LogoURL, &c.Subdomain, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, billing.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("failed to scan company: %w", err)
	}
	if scheduledType != nil {
		p := plan.Plan(*scheduledType)
		c.ScheduledSubscriptionType = &p
	}
	return &c, nil
}

// GetCompany fetches a company by id
func (s *Store) GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	defer s.track("GetCompany")()
	row := s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)
	return scanCompany(row)
}

// GetCompanyByCode fetches a company by its public code
func (s *Store) GetCompanyByCode(ctx context.Context, code string) (*models.Company, error) {
	defer s.track("GetCompanyByCode")()
	row := s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE code = $1`, code)
	return scanCompany(row)
}

// GetCompanyBySubscriptionID fetches the company holding the given provider
// subscription reference.
func (s *Store) GetCompanyBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Company, error) {
	defer s.track("GetCompanyBySubscriptionID")()
	row := s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE stripe_subscription_id = $1`, subscriptionID)
	return scanCompany(row)
}

// CreateCompany inserts a new company on the FREE plan
func (s *Store) CreateCompany(ctx context.Context, c *models.Company) error {
	defer s.track("CreateCompany")()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.SubscriptionType == "" {
		c.SubscriptionType = plan.Free
	}
	if c.SubscriptionStatus == "" {
		c.SubscriptionStatus = models.StatusActive
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO companies (id, code, name, billing_email, subscription_type, subscription_status, subdomain)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Code, c.Name, c.BillingEmail, c.SubscriptionType, c.SubscriptionStatus, c.Subdomain,
	)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrCompanyNotFound
	}
	return nil
}

// SetPlan sets the current plan and status
func (s *Store) SetPlan(ctx context.Context, id uuid.UUID, p plan.Plan, status models.SubscriptionStatus) error {
	defer s.track("SetPlan")()
	return s.execOne(ctx, `
		UPDATE companies
		SET subscription_type = $2, subscription_status = $3, updated_at = now()
		WHERE id = $1`,
		id, p, status,
	)
}

// SetStatus updates the subscription status only
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status models.SubscriptionStatus) error {
	defer s.track("SetStatus")()
	return s.execOne(ctx, `
		UPDATE companies SET subscription_status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
}

// SetPeriodEnd records the current billing period end
func (s *Store) SetPeriodEnd(ctx context.Context, id uuid.UUID, endsAt time.Time) error {
	defer s.track("SetPeriodEnd")()
	return s.execOne(ctx, `
		UPDATE companies SET subscription_ends_at = $2, updated_at = now() WHERE id = $1`,
		id, endsAt,
	)
}

// AttachCustomer records the provider customer reference
func (s *Store) AttachCustomer(ctx context.Context, id uuid.UUID, customerID string) error {
	defer s.track("AttachCustomer")()
	return s.execOne(ctx, `
		UPDATE companies SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`,
		id, customerID,
	)
}

// AttachSubscription rewrites the full recurring-billing state and clears
// any pending scheduled change in the same statement.
func (s *Store) AttachSubscription(ctx context.Context, id uuid.UUID, subscriptionID string, p plan.Plan, status models.SubscriptionStatus, periodEnd *time.Time) error {
	defer s.track("AttachSubscription")()
	return s.execOne(ctx, `
		UPDATE companies
		SET stripe_subscription_id = $2,
		    subscription_type = $3,
		    subscription_status = $4,
		    subscription_ends_at = COALESCE($5, subscription_ends_at),
		    scheduled_subscription_type = NULL,
		    scheduled_change_date = NULL,
		    updated_at = now()
		WHERE id = $1`,
		id, subscriptionID, p, status, periodEnd,
	)
}

// UpdateSubscriptionState refreshes status and period end, leaving the plan
// and a pending scheduled change alone.
func (s *Store) UpdateSubscriptionState(ctx context.Context, id uuid.UUID, status models.SubscriptionStatus, periodEnd time.Time) error {
	defer s.track("UpdateSubscriptionState")()
	return s.execOne(ctx, `
		UPDATE companies
		SET subscription_status = $2, subscription_ends_at = $3, updated_at = now()
		WHERE id = $1`,
		id, status, periodEnd,
	)
}

// ScheduleChange records a deferred plan transition
func (s *Store) ScheduleChange(ctx context.Context, id uuid.UUID, target plan.Plan, at time.Time) error {
	defer s.track("ScheduleChange")()
	return s.execOne(ctx, `
		UPDATE companies
		SET scheduled_subscription_type = $2, scheduled_change_date = $3, updated_at = now()
		WHERE id = $1`,
		id, target, at,
	)
}

// ClearScheduledChange removes a pending scheduled change
func (s *Store) ClearScheduledChange(ctx context.Context, id uuid.UUID) error {
	defer s.track("ClearScheduledChange")()
	return s.execOne(ctx, `
		UPDATE companies
		SET scheduled_subscription_type = NULL, scheduled_change_date = NULL, updated_at = now()
		WHERE id = $1`,
		id,
	)
}

// ApplyScheduledChange promotes a due scheduled change to the current plan.
// The WHERE clause guards against concurrent application: a row whose
// scheduled change was cleared or already applied matches nothing and the
// call reports applied=false.
func (s *Store) ApplyScheduledChange(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	defer s.track("ApplyScheduledChange")()
	tag, err := s.pool.Exec(ctx, `
		UPDATE companies
		SET subscription_type = scheduled_subscription_type,
		    subscription_status = $3,
		    scheduled_subscription_type = NULL,
		    scheduled_change_date = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND scheduled_change_date IS NOT NULL
		  AND scheduled_change_date <= $2`,
		id, now, models.StatusActive,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DetachProvider clears every provider reference and moves the company to
// the fallback plan.
func (s *Store) DetachProvider(ctx context.Context, id uuid.UUID, fallback plan.Plan) error {
	defer s.track("DetachProvider")()
	return s.execOne(ctx, `
		UPDATE companies
		SET subscription_type = $2,
		    subscription_status = $3,
		    stripe_customer_id = NULL,
		    stripe_subscription_id = NULL,
		    subscription_ends_at = NULL,
		    scheduled_subscription_type = NULL,
		    scheduled_change_date = NULL,
		    updated_at = now()
		WHERE id = $1`,
		id, fallback, models.StatusActive,
	)
}

// ListDueScheduledChanges returns companies whose scheduled change is due
func (s *Store) ListDueScheduledChanges(ctx context.Context, now time.Time, companyCode string) ([]*models.Company, error) {
	defer s.track("ListDueScheduledChanges")()
	query := `SELECT ` + companyColumns + `
		FROM companies
		WHERE scheduled_change_date IS NOT NULL AND scheduled_change_date <= $1`
	args := []any{now}
	if companyCode != "" {
		query += ` AND code = $2`
		args = append(args, companyCode)
	}
	query += ` ORDER BY scheduled_change_date`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list due scheduled changes: %w", err)
	}
	defer rows.Close()

	var companies []*models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// UpdateSettings updates tenant feature toggles, leaving nil fields unchanged
func (s *Store) UpdateSettings(ctx context.Context, id uuid.UUID, pruneCompletedTasks *bool, logoURL *string) error {
	defer s.track("UpdateSettings")()
	return s.execOne(ctx, `
		UPDATE companies
		SET prune_completed_tasks = COALESCE($2, prune_completed_tasks),
		    logo_url = COALESCE($3, logo_url),
		    updated_at = now()
		WHERE id = $1`,
		id, pruneCompletedTasks, logoURL,
	)
}

// ConsumeRedemptionCode marks a code redeemed exactly once. The SELECT takes
// a row lock so two concurrent redemptions of the same code serialize and
// the loser sees redeemed=true.
func (s *Store) ConsumeRedemptionCode(ctx context.Context, code string, userID uuid.UUID) (*models.RedemptionCode, error) {
	defer s.track("ConsumeRedemptionCode")()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var rc models.RedemptionCode
	err = tx.QueryRow(ctx, `
		SELECT id, code, tier, redeemed, redeemed_by, redeemed_at, created_at
		FROM redemption_codes
		WHERE code = $1
		FOR UPDATE`,
		code,
	).Scan(&rc.ID, &rc.Code, &rc.Tier, &rc.Redeemed, &rc.RedeemedBy, &rc.RedeemedAt, &rc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, billing.ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to look up redemption code: %w", err)
	}

	if rc.Redeemed {
		return nil, billing.ErrCodeAlreadyRedeemed
	}

	now := time.Now()
	_, err = tx.Exec(ctx, `
		UPDATE redemption_codes
		SET redeemed = TRUE, redeemed_by = $2, redeemed_at = $3
		WHERE id = $1`,
		rc.ID, userID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume redemption code: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit redemption: %w", err)
	}

	rc.Redeemed = true
	rc.RedeemedBy = &userID
	rc.RedeemedAt = &now
	return &rc, nil
}

// CreateRedemptionCode inserts a new lifetime-deal code
func (s *Store) CreateRedemptionCode(ctx context.Context, code string, tier plan.Plan) (*models.RedemptionCode, error) {
	defer s.track("CreateRedemptionCode")()
	rc := &models.RedemptionCode{
		ID:        uuid.New(),
		Code:      code,
		Tier:      tier,
		CreatedAt: time.Now(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO redemption_codes (id, code, tier, created_at)
		VALUES ($1, $2, $3, $4)`,
		rc.ID, rc.Code, rc.Tier, rc.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redemption code: %w", err)
	}
	return rc, nil
}

// CountActiveMembers counts active members of a company
func (s *Store) CountActiveMembers(ctx context.Context, companyID uuid.UUID) (int, error) {
	defer s.track("CountActiveMembers")()
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM company_members WHERE company_id = $1 AND active`,
		companyID,
	).Scan(&n)
	return n, err
}

// CountActiveProjects counts non-archived projects of a company
func (s *Store) CountActiveProjects(ctx context.Context, companyID uuid.UUID) (int, error) {
	defer s.track("CountActiveProjects")()
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM projects WHERE company_id = $1 AND NOT archived`,
		companyID,
	).Scan(&n)
	return n, err
}

// CountActiveClients counts non-archived clients of a company
func (s *Store) CountActiveClients(ctx context.Context, companyID uuid.UUID) (int, error) {
	defer s.track("CountActiveClients")()
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM clients WHERE company_id = $1 AND NOT archived`,
		companyID,
	).Scan(&n)
	return n, err
}
