package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palmbay/experience-bookings/internal/domain"
)

// PaymentStore reads the payment state recorded by the webhook layer.
type PaymentStore interface {
	GetLatestByBooking(ctx context.Context, bookingID int64) (*domain.Payment, error)
}

type PaymentStoreImpl struct{ pool *pgxpool.Pool }

func NewPaymentStore(pool *pgxpool.Pool) *PaymentStoreImpl {
	return &PaymentStoreImpl{pool: pool}
}

func (r *PaymentStoreImpl) GetLatestByBooking(ctx context.Context, bookingID int64) (*domain.Payment, error) {
	const q = `SELECT id, booking_id, provider_ref, status, amount_cents, created_at, updated_at
		FROM payments WHERE booking_id=$1 ORDER BY created_at DESC LIMIT 1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var p domain.Payment
	err := r.pool.QueryRow(ctx, q, bookingID).Scan(
		&p.ID, &p.BookingID, &p.ProviderRef, &p.Status, &p.AmountCents, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no payment for booking %d: %w", bookingID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

var _ PaymentStore = (*PaymentStoreImpl)(nil)
