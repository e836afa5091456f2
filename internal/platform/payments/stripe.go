package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/palmbay/experience-bookings/internal/domain"
)

type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(apiKey string) *StripeGateway {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeGateway{api: api}
}

func (g *StripeGateway) CreateRefund(ctx context.Context, providerRef string, amountCents int64, currency string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(providerRef),
		Amount:        stripe.Int64(amountCents),
	}
	params.Context = ctx

	ref, err := g.api.Refunds.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe refund for %s: %v: %w", providerRef, err, domain.ErrExternalFailure)
	}
	return ref.ID, nil
}

func (g *StripeGateway) CancelPayment(ctx context.Context, providerRef string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := g.api.PaymentIntents.Cancel(providerRef, params); err != nil {
		return fmt.Errorf("stripe cancel for %s: %v: %w", providerRef, err, domain.ErrExternalFailure)
	}
	return nil
}

var _ Gateway = (*StripeGateway)(nil)
