package payments

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// DevGateway records gateway calls without talking to a provider. Used when
// no API key is configured.
type DevGateway struct {
	logger *slog.Logger
	seq    atomic.Int64
}

func NewDevGateway(logger *slog.Logger) *DevGateway {
	return &DevGateway{logger: logger}
}

func (g *DevGateway) CreateRefund(ctx context.Context, providerRef string, amountCents int64, currency string) (string, error) {
	id := fmt.Sprintf("dev_refund_%d", g.seq.Add(1))
	g.logger.InfoContext(ctx, "dev gateway refund",
		slog.String("provider_ref", providerRef),
		slog.Int64("amount_cents", amountCents),
		slog.String("currency", currency),
		slog.String("refund_id", id),
	)
	return id, nil
}

func (g *DevGateway) CancelPayment(ctx context.Context, providerRef string) error {
	g.logger.InfoContext(ctx, "dev gateway cancel", slog.String("provider_ref", providerRef))
	return nil
}

var _ Gateway = (*DevGateway)(nil)
