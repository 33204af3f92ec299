package plan

import "fmt"

// PriceIDs holds the Stripe price IDs for every purchasable plan.
// Recurring plans map to recurring prices, LTD plans to one-time prices.
type PriceIDs struct {
	Midi        string
	Maxi        string
	Business    string
	LTDSolo     string
	LTDTeam     string
	LTDAgency   string
	LTDBusiness string
}

// Descriptor is the typed plan definition used across billing
type Descriptor struct {
	Plan        Plan
	PriceID     string // empty for FREE
	Lifetime    bool
	PriceCents  int64 // monthly for recurring plans, one-time for LTD plans
	Description string
	Limits      Limits
}

// Catalog maps plans to descriptors and Stripe prices back to plans.
// Built once at startup; invalid configuration fails fast.
type Catalog struct {
	byPlan  map[Plan]Descriptor
	byPrice map[string]Plan
}

// BuildCatalog validates the configured price IDs and returns the plan catalog
func BuildCatalog(prices PriceIDs) (*Catalog, error) {
	descriptors := []Descriptor{
		{Plan: Free, PriceCents: 0, Description: "For trying out ZapTask"},
		{Plan: Midi, PriceID: prices.Midi, PriceCents: 900, Description: "For small teams"},
		{Plan: Maxi, PriceID: prices.Maxi, PriceCents: 2900, Description: "For growing agencies"},
		{Plan: Business, PriceID: prices.Business, PriceCents: 7900, Description: "For large organizations"},
		{Plan: LTDSolo, PriceID: prices.LTDSolo, Lifetime: true, PriceCents: 4900, Description: "Lifetime deal, solo tier"},
		{Plan: LTDTeam, PriceID: prices.LTDTeam, Lifetime: true, PriceCents: 9900, Description: "Lifetime deal, team tier"},
		{Plan: LTDAgency, PriceID: prices.LTDAgency, Lifetime: true, PriceCents: 19900, Description: "Lifetime deal, agency tier"},
		{Plan: LTDBusiness, PriceID: prices.LTDBusiness, Lifetime: true, PriceCents: 29900, Description: "Lifetime deal, business tier"},
	}

	c := &Catalog{
		byPlan:  make(map[Plan]Descriptor, len(descriptors)),
		byPrice: make(map[string]Plan, len(descriptors)),
	}

	for _, d := range descriptors {
		if d.Plan != Free && d.PriceID == "" {
			return nil, fmt.Errorf("plan catalog: missing Stripe price ID for plan %s", d.Plan)
		}
		if d.PriceID != "" {
			if existing, dup := c.byPrice[d.PriceID]; dup {
				return nil, fmt.Errorf("plan catalog: price ID %s mapped to both %s and %s", d.PriceID, existing, d.Plan)
			}
			c.byPrice[d.PriceID] = d.Plan
		}
		d.Limits = LimitsFor(d.Plan)
		c.byPlan[d.Plan] = d
	}

	return c, nil
}

// Descriptor returns the descriptor for a plan
func (c *Catalog) Descriptor(p Plan) (Descriptor, bool) {
	d, ok := c.byPlan[p]
	return d, ok
}

// PlanForPrice maps a Stripe price ID back to the local plan
func (c *Catalog) PlanForPrice(priceID string) (Plan, bool) {
	p, ok := c.byPrice[priceID]
	return p, ok
}

// Descriptors returns all descriptors in rank order
func (c *Catalog) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(c.byPlan))
	for _, p := range All() {
		if d, ok := c.byPlan[p]; ok {
			out = append(out, d)
		}
	}
	return out
}
