package notifiers

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the checkout flow.
const (
	EventSubscriptionCheckout = "checkout.subscription_created"
	EventCreditsCheckout      = "checkout.credits_created"
	EventCheckoutCompleted    = "checkout.completed"
)

// Event represents the payload published downstream.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	SessionID   string    `json:"session_id,omitempty"`
	Plan        string    `json:"plan,omitempty"`
	Amount      int       `json:"amount,omitempty"`
	CheckoutURL string    `json:"checkout_url,omitempty"`
	Tier        string    `json:"tier,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewEvent constructs an Event of the given type for a checkout session.
func NewEvent(typ, sessionID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		SessionID:  sessionID,
		OccurredAt: time.Now().UTC(),
	}
}
