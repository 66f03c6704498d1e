package checkout

import (
	"context"

	"github.com/quill-hq/quill/pkg/billing"
	"github.com/quill-hq/quill/pkg/notifiers"
)

// BillingAPI is the subset of billing.Client the flow drives.
type BillingAPI interface {
	SetAuthToken(token string)
	GetPricingPlans(ctx context.Context) (*billing.PricingPlans, error)
	CreateSubscription(ctx context.Context, plan string) (*billing.CheckoutSession, error)
	PurchaseCredits(ctx context.Context, amount int) (*billing.CreditPurchase, error)
	GetSubscriptionStatus(ctx context.Context) (*billing.SubscriptionStatus, error)
	GetUserAnalytics(ctx context.Context, days int) (billing.Analytics, error)
}

// Alerter shows a short message to the user.
type Alerter interface {
	Alert(msg string)
}

// SessionStore persists the pending checkout session id between runs.
type SessionStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// URLOpener hands a checkout URL to the user agent.
type URLOpener interface {
	Open(url string) error
}

// EventPublisher receives checkout lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, evt notifiers.Event) (int, error)
}
