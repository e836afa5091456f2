package payments

import (
	"context"
	"fmt"

	"github.com/palmbay/experience-bookings/internal/domain"
)

// ErrRefundWindowExceeded blocks the cancellation of a paid booking when the
// refund window has closed. It unwraps to domain.ErrConflict.
var ErrRefundWindowExceeded = fmt.Errorf("refund window exceeded: %w", domain.ErrConflict)

// Gateway is the payment provider surface the cancellation flow needs.
// Refunds must succeed before a paid booking may change state; voiding an
// uncaptured payment is best effort.
type Gateway interface {
	CreateRefund(ctx context.Context, providerRef string, amountCents int64, currency string) (string, error)
	CancelPayment(ctx context.Context, providerRef string) error
}
