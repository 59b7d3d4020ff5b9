// Package payments executes refunds against the payment processor.
package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v84"
)

// Client wraps the Stripe API for refund operations.
type Client struct {
	client *stripe.Client
}

// NewClient creates a payments client from a Stripe secret key.
func NewClient(secretKey string) *Client {
	return &Client{client: stripe.NewClient(secretKey)}
}

// Refund issues a full refund for the given payment intent and returns
// the refund identifier.
func (c *Client) Refund(ctx context.Context, paymentIntentID string) (string, error) {
	if ctx == nil {
		return "", fmt.Errorf("context is required")
	}
	if paymentIntentID == "" {
		return "", fmt.Errorf("payment intent id is required")
	}

	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}

	refund, err := c.client.V1Refunds.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create refund: %w", err)
	}

	return refund.ID, nil
}
