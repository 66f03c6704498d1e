package billing

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// UnlimitedCredits is the credit balance reported for unmetered tiers.
const UnlimitedCredits = -1

// Plan is a subscription tier offered by the pricing endpoint. Fields the
// client does not model are kept in Extra.
type Plan struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Credits  int             `json:"credits"`
	Interval string          `json:"interval,omitempty"`
	Features []string        `json:"features,omitempty"`
	Extra    map[string]any  `json:"-"`
}

// UnmarshalJSON decodes the known fields and retains the full object in Extra.
func (p *Plan) UnmarshalJSON(data []byte) error {
	type plain Plan
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	var extra map[string]any
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	*p = Plan(v)
	p.Extra = extra
	return nil
}

// Unlimited reports whether the plan grants unmetered credits.
func (p Plan) Unlimited() bool { return p.Credits == UnlimitedCredits }

// CreditPack is a one-off credit bundle.
type CreditPack struct {
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Credits int             `json:"credits"`
	Bonus   int             `json:"bonus,omitempty"`
}

// PricingPlans is the GET /pricing/plans payload.
type PricingPlans struct {
	Success bool `json:"success"`
	Plans   struct {
		Subscriptions map[string]Plan       `json:"subscriptions"`
		Credits       map[string]CreditPack `json:"credits"`
	} `json:"plans"`
}

// CheckoutSession is returned when a subscription checkout is created.
type CheckoutSession struct {
	Success     bool   `json:"success"`
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// CreditPurchase is returned when a credit checkout is created.
type CreditPurchase struct {
	Success      bool   `json:"success"`
	CheckoutURL  string `json:"checkout_url"`
	SessionID    string `json:"session_id"`
	TotalCredits int    `json:"total_credits"`
}

// SubscriptionStatus is the GET /subscriptions/status payload.
type SubscriptionStatus struct {
	Success bool   `json:"success"`
	Tier    string `json:"tier"`
	Credits int    `json:"credits"`
}

// Unlimited reports whether the account has unmetered credits.
func (s SubscriptionStatus) Unlimited() bool { return s.Credits == UnlimitedCredits }

// Analytics is the opaque analytics payload.
type Analytics map[string]any
