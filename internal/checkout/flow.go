// Package checkout drives the pricing, subscription and credit checkout flow
// on top of the billing client.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/quill-hq/quill/internal/logger"
	"github.com/quill-hq/quill/pkg/billing"
	"github.com/quill-hq/quill/pkg/notifiers"
)

// SessionKey is the store key holding the id of the checkout in progress.
const SessionKey = "pending_checkout_session"

var (
	// ErrNoSession is returned by HandleSuccess when the redirect carries no session_id.
	ErrNoSession = errors.New("checkout: no session_id in redirect")
	// ErrRejected is returned when the API answers 2xx with success=false.
	ErrRejected = errors.New("checkout: request rejected by api")
)

// Deps are the collaborators of a Flow. API and Store are required.
type Deps struct {
	API       BillingAPI
	Store     SessionStore
	Out       io.Writer
	Alerter   Alerter
	Opener    URLOpener
	Publisher EventPublisher
	Log       logger.Logger
}

// Flow renders billing state and manages checkout redirects.
type Flow struct {
	api       BillingAPI
	store     SessionStore
	out       io.Writer
	alerter   Alerter
	opener    URLOpener
	publisher EventPublisher
	log       logger.Logger
}

// NewFlow validates deps and fills defaults for optional collaborators.
func NewFlow(d Deps) (*Flow, error) {
	if d.API == nil {
		return nil, errors.New("checkout: billing api is required")
	}
	if d.Store == nil {
		return nil, errors.New("checkout: session store is required")
	}
	f := &Flow{
		api:       d.API,
		store:     d.Store,
		out:       d.Out,
		alerter:   d.Alerter,
		opener:    d.Opener,
		publisher: d.Publisher,
		log:       d.Log,
	}
	if f.out == nil {
		f.out = io.Discard
	}
	if f.alerter == nil {
		f.alerter = NewConsoleAlerter(io.Discard)
	}
	if f.opener == nil {
		f.opener = NewPrintOpener(f.out)
	}
	if f.log == nil {
		f.log = logger.NopLogger{}
	}
	return f, nil
}

// Login installs the bearer token for subsequent calls.
func (f *Flow) Login(token string) {
	f.api.SetAuthToken(token)
}

// DisplayPlans prints the subscription and credit catalogue. On failure it
// logs and prints nothing.
func (f *Flow) DisplayPlans(ctx context.Context) error {
	plans, err := f.api.GetPricingPlans(ctx)
	if err != nil {
		f.log.ErrorObj("failed to load pricing plans", "error", err.Error())
		return err
	}

	var b strings.Builder
	b.WriteString("Subscription plans:\n")
	for _, id := range sortedKeys(plans.Plans.Subscriptions) {
		p := plans.Plans.Subscriptions[id]
		price := "$" + p.Price.StringFixed(2)
		if p.Interval != "" {
			price += "/" + p.Interval
		}
		fmt.Fprintf(&b, "  %-10s %-16s %-14s %s\n", id, p.Name, price, creditsLabel(p.Credits))
	}
	b.WriteString("Credit packs:\n")
	for _, id := range sortedKeys(plans.Plans.Credits) {
		c := plans.Plans.Credits[id]
		fmt.Fprintf(&b, "  %-10s %-16s %-14s %s\n", id, c.Name, "$"+c.Price.StringFixed(2), creditsLabel(c.Credits+c.Bonus))
	}
	_, err = io.WriteString(f.out, b.String())
	return err
}

// Subscribe creates a subscription checkout for plan, remembers its session
// id and opens the checkout page.
func (f *Flow) Subscribe(ctx context.Context, plan string) (*billing.CheckoutSession, error) {
	sess, err := f.api.CreateSubscription(ctx, plan)
	if err == nil && !sess.Success {
		err = ErrRejected
	}
	if err != nil {
		f.fail("subscription checkout failed", "Failed to start subscription checkout. Please try again.", err, map[string]any{"plan": plan})
		return nil, err
	}

	if err := f.beginCheckout(sess.SessionID, sess.CheckoutURL); err != nil {
		return sess, err
	}

	evt := notifiers.NewEvent(notifiers.EventSubscriptionCheckout, sess.SessionID)
	evt.Plan = plan
	evt.CheckoutURL = sess.CheckoutURL
	f.publish(ctx, evt)
	return sess, nil
}

// BuyCredits creates a credit checkout for amount credits.
func (f *Flow) BuyCredits(ctx context.Context, amount int) (*billing.CreditPurchase, error) {
	purchase, err := f.api.PurchaseCredits(ctx, amount)
	if err == nil && !purchase.Success {
		err = ErrRejected
	}
	if err != nil {
		f.fail("credit checkout failed", "Failed to start credit purchase. Please try again.", err, map[string]any{"amount": amount})
		return nil, err
	}

	if err := f.beginCheckout(purchase.SessionID, purchase.CheckoutURL); err != nil {
		return purchase, err
	}
	fmt.Fprintf(f.out, "Purchasing %d credits. Your balance after checkout: %d credits.\n", amount, purchase.TotalCredits)

	evt := notifiers.NewEvent(notifiers.EventCreditsCheckout, purchase.SessionID)
	evt.Amount = amount
	evt.CheckoutURL = purchase.CheckoutURL
	f.publish(ctx, evt)
	return purchase, nil
}

// ShowStatus prints the current tier and credit balance.
func (f *Flow) ShowStatus(ctx context.Context) (*billing.SubscriptionStatus, error) {
	status, err := f.api.GetSubscriptionStatus(ctx)
	if err != nil {
		f.log.ErrorObj("failed to load subscription status", "error", err.Error())
		return nil, err
	}
	f.renderStatus(status)
	return status, nil
}

// ShowAnalytics prints the analytics payload for the last days days.
func (f *Flow) ShowAnalytics(ctx context.Context, days int) (billing.Analytics, error) {
	data, err := f.api.GetUserAnalytics(ctx, days)
	if err != nil {
		f.log.ErrorObj("failed to load analytics", "error", err.Error())
		return nil, err
	}
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return data, err
	}
	return data, nil
}

// HandleSuccess processes the checkout success redirect. It reads session_id
// from rawURL, refreshes the status and clears the pending session.
func (f *Flow) HandleSuccess(ctx context.Context, rawURL string) (*billing.SubscriptionStatus, error) {
	sessionID, err := sessionFromURL(rawURL)
	if err != nil {
		return nil, err
	}

	status, err := f.api.GetSubscriptionStatus(ctx)
	if err != nil {
		f.fail("status refresh after checkout failed", "Payment received, but your status could not be refreshed.", err, map[string]any{"session_id": sessionID})
		return nil, err
	}

	fmt.Fprintln(f.out, "Payment successful!")
	f.renderStatus(status)

	if err := f.store.Delete(SessionKey); err != nil {
		f.log.WarnObj("failed to clear pending checkout session", "error", err.Error())
	}

	evt := notifiers.NewEvent(notifiers.EventCheckoutCompleted, sessionID)
	evt.Tier = status.Tier
	f.publish(ctx, evt)
	return status, nil
}

// PendingSession returns the stored checkout session id, if any.
func (f *Flow) PendingSession() (string, bool, error) {
	return f.store.Get(SessionKey)
}

func (f *Flow) beginCheckout(sessionID, checkoutURL string) error {
	if sessionID != "" {
		if err := f.store.Set(SessionKey, sessionID); err != nil {
			f.log.ErrorObj("failed to persist checkout session", "error", err.Error())
			return fmt.Errorf("persist checkout session: %w", err)
		}
	}
	if checkoutURL != "" {
		if err := f.opener.Open(checkoutURL); err != nil {
			f.log.WarnObj("failed to open checkout url", "error", err.Error())
		}
	}
	return nil
}

func (f *Flow) renderStatus(s *billing.SubscriptionStatus) {
	fmt.Fprintf(f.out, "Tier: %s\nCredits: %s\n", s.Tier, creditsValue(s.Credits))
}

func (f *Flow) fail(msg, alert string, err error, fields map[string]any) {
	fields["error"] = err.Error()
	f.log.ErrorObj(msg, "checkout_error", fields)
	f.alerter.Alert(alert)
}

func (f *Flow) publish(ctx context.Context, evt notifiers.Event) {
	if f.publisher == nil {
		return
	}
	if _, err := f.publisher.Publish(ctx, evt); err != nil {
		f.log.WarnObj("checkout event delivery failed", "notify_error", map[string]any{
			"event_id":   evt.ID,
			"event_type": evt.Type,
			"error":      err.Error(),
		})
	}
}

func sessionFromURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}
	sid := strings.TrimSpace(u.Query().Get("session_id"))
	if sid == "" {
		return "", ErrNoSession
	}
	return sid, nil
}

func creditsValue(n int) string {
	if n == billing.UnlimitedCredits {
		return "Unlimited"
	}
	return fmt.Sprintf("%d", n)
}

func creditsLabel(n int) string {
	if n == billing.UnlimitedCredits {
		return "unlimited credits"
	}
	return fmt.Sprintf("%d credits", n)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
