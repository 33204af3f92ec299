package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zaptask/zaptask/pkg/models"
	"github.com/zaptask/zaptask/pkg/plan"
)

// fakeStore is an in-memory CompanyStore and RedemptionStore. All methods
// are mutex-guarded so concurrency tests exercise real interleavings.
type fakeStore struct {
	mu        sync.Mutex
	companies map[uuid.UUID]*models.Company
	codes     map[string]*models.RedemptionCode

	failNext error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		companies: make(map[uuid.UUID]*models.Company),
		codes:     make(map[string]*models.RedemptionCode),
	}
}

func (s *fakeStore) addCompany(c *models.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.companies[c.ID] = &cp
}

func (s *fakeStore) company(id uuid.UUID) *models.Company {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.companies[id]
	return &cp
}

func (s *fakeStore) addCode(code string, tier plan.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = &models.RedemptionCode{ID: uuid.New(), Code: code, Tier: tier}
}

func (s *fakeStore) checkFail() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *fakeStore) GetCompany(_ context.Context, id uuid.UUID) (*models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return nil, err
	}
	c, ok := s.companies[id]
	if !ok {
		return nil, ErrCompanyNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) GetCompanyByCode(_ context.Context, code string) (*models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.companies {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrCompanyNotFound
}

func (s *fakeStore) GetCompanyBySubscriptionID(_ context.Context, subscriptionID string) (*models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.companies {
		if c.StripeSubscriptionID != nil && *c.StripeSubscriptionID == subscriptionID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrCompanyNotFound
}

func (s *fakeStore) SetPlan(_ context.Context, id uuid.UUID, p plan.Plan, status models.SubscriptionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return err
	}
	c, ok := s.companies[id]
	if !ok {
		return ErrCompanyNotFound
	}
	c.SubscriptionType = p
	c.SubscriptionStatus = status
	return nil
}

func (s *fakeStore) SetStatus(_ context.Context, id uuid.UUID, status models.SubscriptionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return ErrCompanyNotFound
	}
	c.SubscriptionStatus = status
	return nil
}

func (s *fakeStore) SetPeriodEnd(_ context.Context, id uuid.UUID, endsAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return ErrCompanyNotFound
	}
	c.SubscriptionEndsAt = &endsAt
	return nil
}

func (s *fakeStore) AttachCustomer(_ context.Context, id uuid.UUID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return err
	}
	c, ok := s.companies[id]
	if !ok {
		return ErrCompanyNotFound
	}
	c.StripeCustomerID = &customerID
	return nil
}

func (s *fakeStore) AttachSubscription(_ context.Context, id uuid.UUID, subscriptionID string, p plan.Plan, status models.SubscriptionStatus, periodEnd *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return err
	}
	c, ok := s.companies[id]
	if !ok {
		return ErrCompanyNotFound
	}
	c.StripeSubscriptionID = &subscriptionID
	c.SubscriptionType = p
	c.SubscriptionStatus = status
	if periodEnd != nil {
		c.SubscriptionEndsAt = periodEnd
	}
	c.ScheduledSubscriptionType = nil
	c.ScheduledChangeDate = nil
	return nil
}

func (s *fakeStore) UpdateSubscriptionState(_ context.Context, id uuid.UUID, status models.SubscriptionStatus, periodEnd time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return ErrCompanyNotFound
	}
	c.SubscriptionStatus = status
	c.SubscriptionEndsAt = &periodEnd
	return nil
}

func (s *fakeStore) ScheduleChange(_ context.Context, id uuid.UUID, target plan.Plan, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return err
	}
	c, ok := s.companies[id]
	if !ok {
		return ErrCompanyNotFound
	}
	c.ScheduledSubscriptionType = &target
	c.ScheduledChangeDate = &at
	return nil
}

func (s *fakeStore) ClearScheduledChange(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return ErrCompanyNotFound
	}
	c.ScheduledSubscriptionType = nil
	c.ScheduledChangeDate = nil
	return nil
}

func (s *fakeStore) ApplyScheduledChange(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return false, err
	}
	c, ok := s.companies[id]
	if !ok {
		return false, ErrCompanyNotFound
	}
	if c.ScheduledChangeDate == nil || c.ScheduledChangeDate.After(now) {
		return false, nil
	}
	c.SubscriptionType = *c.ScheduledSubscriptionType
	c.SubscriptionStatus = models.StatusActive
	c.ScheduledSubscriptionType = nil
	c.ScheduledChangeDate = nil
	return true, nil
}

func (s *fakeStore) DetachProvider(_ context.Context, id uuid.UUID, fallback plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return err
	}
	c, ok := s.companies[id]
	if !ok {
		return ErrCompanyNotFound
	}
	c.SubscriptionType = fallback
	c.SubscriptionStatus = models.StatusActive
	c.StripeCustomerID = nil
	c.StripeSubscriptionID = nil
	c.SubscriptionEndsAt = nil
	c.ScheduledSubscriptionType = nil
	c.ScheduledChangeDate = nil
	return nil
}

func (s *fakeStore) ListDueScheduledChanges(_ context.Context, now time.Time, companyCode string) ([]*models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*models.Company
	for _, c := range s.companies {
		if c.ScheduledChangeDate == nil || c.ScheduledChangeDate.After(now) {
			continue
		}
		if companyCode != "" && c.Code != companyCode {
			continue
		}
		cp := *c
		due = append(due, &cp)
	}
	return due, nil
}

func (s *fakeStore) UpdateSettings(_ context.Context, id uuid.UUID, pruneCompletedTasks *bool, logoURL *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return ErrCompanyNotFound
	}
	if pruneCompletedTasks != nil {
		c.PruneCompletedTasks = *pruneCompletedTasks
	}
	if logoURL != nil {
		c.LogoURL = logoURL
	}
	return nil
}

func (s *fakeStore) ConsumeRedemptionCode(_ context.Context, code string, userID uuid.UUID) (*models.RedemptionCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.codes[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	if rc.Redeemed {
		return nil, ErrCodeAlreadyRedeemed
	}
	now := time.Now()
	rc.Redeemed = true
	rc.RedeemedBy = &userID
	rc.RedeemedAt = &now
	cp := *rc
	return &cp, nil
}

var (
	_ CompanyStore    = (*fakeStore)(nil)
	_ RedemptionStore = (*fakeStore)(nil)
)

// fakeProvider is a scripted PaymentProvider
type fakeProvider struct {
	mu sync.Mutex

	subscriptions map[string]*Subscription
	activeSub     *Subscription // returned by FindActiveSubscription

	failCheckout     bool
	failUpdate       bool
	failCustomer     bool
	failCancel       bool
	failGet          bool
	failSetCancel    bool
	canceledSubs     []string
	checkoutRequests []CheckoutParams
	customerCounter  int

	// renewal flags recorded by SetCancelAtPeriodEnd, keyed by subscription id
	renewalStops map[string]bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subscriptions: make(map[string]*Subscription),
		renewalStops:  make(map[string]bool),
	}
}

func (p *fakeProvider) CreateCustomer(_ context.Context, _, _ string, _ map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failCustomer {
		return "", fmt.Errorf("provider unavailable")
	}
	p.customerCounter++
	return fmt.Sprintf("cus_%03d", p.customerCounter), nil
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, params CheckoutParams) (*CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failCheckout {
		return nil, fmt.Errorf("provider unavailable")
	}
	p.checkoutRequests = append(p.checkoutRequests, params)
	return &CheckoutSession{ID: "cs_test", URL: "https://checkout.example/cs_test"}, nil
}

func (p *fakeProvider) GetSubscription(_ context.Context, subscriptionID string) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failGet {
		return nil, fmt.Errorf("provider unavailable")
	}
	sub, ok := p.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("subscription %s not found", subscriptionID)
	}
	cp := *sub
	return &cp, nil
}

func (p *fakeProvider) UpdateSubscriptionPrice(_ context.Context, subscriptionID, priceID string) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failUpdate {
		return nil, fmt.Errorf("provider unavailable")
	}
	sub, ok := p.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("subscription %s not found", subscriptionID)
	}
	sub.PriceID = priceID
	sub.CancelAtPeriodEnd = false
	p.renewalStops[subscriptionID] = false
	cp := *sub
	return &cp, nil
}

func (p *fakeProvider) SetCancelAtPeriodEnd(_ context.Context, subscriptionID string, cancel bool) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSetCancel {
		return nil, fmt.Errorf("provider unavailable")
	}
	p.renewalStops[subscriptionID] = cancel
	sub, ok := p.subscriptions[subscriptionID]
	if !ok {
		return &Subscription{ID: subscriptionID, CancelAtPeriodEnd: cancel}, nil
	}
	sub.CancelAtPeriodEnd = cancel
	cp := *sub
	return &cp, nil
}

func (p *fakeProvider) renewalStop(subscriptionID string) (bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.renewalStops[subscriptionID]
	return v, ok
}

func (p *fakeProvider) CancelSubscription(_ context.Context, subscriptionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failCancel {
		return fmt.Errorf("provider unavailable")
	}
	p.canceledSubs = append(p.canceledSubs, subscriptionID)
	return nil
}

func (p *fakeProvider) FindActiveSubscription(_ context.Context, _ string) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.activeSub == nil {
		return nil, nil
	}
	cp := *p.activeSub
	return &cp, nil
}

func (p *fakeProvider) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	return "https://portal.example/" + customerID, nil
}

var _ PaymentProvider = (*fakeProvider)(nil)

// fakeEmail records sent emails
type fakeEmail struct {
	mu   sync.Mutex
	sent []string // subjects
}

func (f *fakeEmail) SendEmail(_, _, subject, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, subject)
	return nil
}

func (f *fakeEmail) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// testCatalog builds a catalog with deterministic price IDs
func testCatalog() *plan.Catalog {
	c, err := plan.BuildCatalog(plan.PriceIDs{
		Midi:        "price_midi",
		Maxi:        "price_maxi",
		Business:    "price_business",
		LTDSolo:     "price_ltd_solo",
		LTDTeam:     "price_ltd_team",
		LTDAgency:   "price_ltd_agency",
		LTDBusiness: "price_ltd_business",
	})
	if err != nil {
		panic(err)
	}
	return c
}
