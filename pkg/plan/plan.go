package plan

import (
	"fmt"
	"sort"
	"strings"
)

// Plan identifies a subscription plan
type Plan string

// Known plans. LTD_* plans are one-time lifetime purchases with no
// recurring Stripe subscription behind them.
const (
	Free        Plan = "FREE"
	Midi        Plan = "MIDI"
	Maxi        Plan = "MAXI"
	Business    Plan = "BUSINESS"
	LTDSolo     Plan = "LTD_SOLO"
	LTDTeam     Plan = "LTD_TEAM"
	LTDAgency   Plan = "LTD_AGENCY"
	LTDBusiness Plan = "LTD_BUSINESS"
)

// Unlimited is the sentinel limit for plans without a numeric cap.
// Kept as a plain int so usage checks stay simple comparisons.
const Unlimited = 1<<31 - 1

// Limits holds the entitlements derived from a plan
type Limits struct {
	Members        int  `json:"members"`
	Projects       int  `json:"projects"`
	Clients        int  `json:"clients"`
	LogoUpload     bool `json:"logo_upload"`
	CustomBranding bool `json:"custom_branding"`
}

// rank orders plans for upgrade/downgrade decisions. Higher means more entitlements.
var ranks = map[Plan]int{
	Free:        0,
	LTDSolo:     1,
	Midi:        2,
	LTDTeam:     3,
	Maxi:        4,
	LTDAgency:   5,
	Business:    6,
	LTDBusiness: 7,
}

var limits = map[Plan]Limits{
	Free:        {Members: 2, Projects: 1, Clients: 1},
	Midi:        {Members: 5, Projects: 10, Clients: 10, LogoUpload: true},
	Maxi:        {Members: 15, Projects: 50, Clients: 50, LogoUpload: true, CustomBranding: true},
	Business:    {Members: Unlimited, Projects: Unlimited, Clients: Unlimited, LogoUpload: true, CustomBranding: true},
	LTDSolo:     {Members: 1, Projects: 5, Clients: 5},
	LTDTeam:     {Members: 5, Projects: 15, Clients: 15, LogoUpload: true},
	LTDAgency:   {Members: 15, Projects: 50, Clients: 50, LogoUpload: true, CustomBranding: true},
	LTDBusiness: {Members: Unlimited, Projects: Unlimited, Clients: Unlimited, LogoUpload: true, CustomBranding: true},
}

// Parse converts a plan string to a Plan, case-insensitively
func Parse(s string) (Plan, error) {
	p := Plan(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown plan: %q", s)
	}
	return p, nil
}

// Valid reports whether p is a known plan
func (p Plan) Valid() bool {
	_, ok := ranks[p]
	return ok
}

// Lifetime reports whether p is a one-time lifetime plan
func (p Plan) Lifetime() bool {
	return strings.HasPrefix(string(p), "LTD_")
}

// Recurring reports whether p implies a recurring billing relationship
func (p Plan) Recurring() bool {
	return p == Midi || p == Maxi || p == Business
}

// Rank returns the ordering position of p. Unknown plans rank below FREE
// so comparisons against them always read as downgrades.
func (p Plan) Rank() int {
	if r, ok := ranks[p]; ok {
		return r
	}
	return -1
}

// LimitsFor resolves the entitlements for a plan. Unrecognized or legacy
// plan strings fall back to the FREE limits rather than failing.
func LimitsFor(p Plan) Limits {
	if l, ok := limits[p]; ok {
		return l
	}
	return limits[Free]
}

// All returns every known plan in rank order
func All() []Plan {
	out := make([]Plan, 0, len(ranks))
	for p := range ranks {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank() < out[j].Rank() })
	return out
}
