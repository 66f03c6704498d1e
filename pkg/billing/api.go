package billing

import (
	"context"
	"fmt"
	"net/http"
)

const (
	PathPricingPlans       = "/pricing/plans"
	PathCreateSubscription = "/subscriptions/create"
	PathPurchaseCredits    = "/credits/purchase"
	PathSubscriptionStatus = "/subscriptions/status"
	PathUserAnalytics      = "/users/analytics"

	DefaultAnalyticsDays = 30
)

// GetPricingPlans fetches the subscription and credit catalogue.
func (c *Client) GetPricingPlans(ctx context.Context) (*PricingPlans, error) {
	var out PricingPlans
	if err := c.Request(ctx, PathPricingPlans, RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSubscription starts a checkout session for plan.
func (c *Client) CreateSubscription(ctx context.Context, plan string) (*CheckoutSession, error) {
	var out CheckoutSession
	opts := RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"plan": plan},
	}
	if err := c.Request(ctx, PathCreateSubscription, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PurchaseCredits starts a checkout session for amount credits.
func (c *Client) PurchaseCredits(ctx context.Context, amount int) (*CreditPurchase, error) {
	var out CreditPurchase
	opts := RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]int{"amount": amount},
	}
	if err := c.Request(ctx, PathPurchaseCredits, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSubscriptionStatus returns the caller's tier and credit balance.
func (c *Client) GetSubscriptionStatus(ctx context.Context) (*SubscriptionStatus, error) {
	var out SubscriptionStatus
	if err := c.Request(ctx, PathSubscriptionStatus, RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUserAnalytics returns usage analytics for the last days days (30 when days <= 0).
func (c *Client) GetUserAnalytics(ctx context.Context, days int) (Analytics, error) {
	if days <= 0 {
		days = DefaultAnalyticsDays
	}
	var out Analytics
	path := fmt.Sprintf("%s?days=%d", PathUserAnalytics, days)
	if err := c.Request(ctx, path, RequestOptions{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
