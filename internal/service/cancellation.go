package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/palmbay/experience-bookings/internal/domain"
	"github.com/palmbay/experience-bookings/internal/platform/payments"
	"github.com/palmbay/experience-bookings/internal/repo/postgres"
	"github.com/palmbay/experience-bookings/pkg/events"
	"github.com/palmbay/experience-bookings/pkg/logger"
)

// CancellationService orchestrates cancellation across the recorded payment
// state and the booking row. Gateway work happens before the database
// transition: if a required refund fails, the booking stays untouched and
// the caller can retry.
type CancellationService interface {
	CancelBooking(ctx context.Context, id int64, reason string) (*domain.Booking, error)
}

type cancellationService struct {
	bookings     postgres.BookingStore
	slots        postgres.SlotStore
	payments     postgres.PaymentStore
	gateway      payments.Gateway
	eventBus     events.Publisher
	refundWindow time.Duration
	now          func() time.Time
}

func NewCancellationService(
	bookings postgres.BookingStore,
	slots postgres.SlotStore,
	paymentStore postgres.PaymentStore,
	gateway payments.Gateway,
	eventBus events.Publisher,
	refundWindow time.Duration,
) CancellationService {
	return &cancellationService{
		bookings:     bookings,
		slots:        slots,
		payments:     paymentStore,
		gateway:      gateway,
		eventBus:     eventBus,
		refundWindow: refundWindow,
		now:          time.Now,
	}
}

func (s *cancellationService) CancelBooking(ctx context.Context, id int64, reason string) (*domain.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(booking.Status, domain.BookingCancelled) {
		return nil, fmt.Errorf("booking %d is %s and cannot be cancelled: %w", id, booking.Status, domain.ErrConflict)
	}

	now := s.now()

	if booking.Status == domain.BookingPending {
		cancelled, err := s.bookings.CancelPending(ctx, id, reason, now)
		if err != nil {
			return nil, err
		}
		s.publishCancelled(ctx, cancelled, false, 0)
		return cancelled, nil
	}

	refundIssued, refundCents, err := s.settlePayment(ctx, booking, now)
	if err != nil {
		return nil, err
	}

	cancelled, err := s.bookings.CancelConfirmed(ctx, id, reason, now)
	if err != nil {
		// The refund already went out; surface the state so support can
		// reconcile instead of silently retrying.
		if refundIssued {
			logger.ErrorContext(ctx, "Refund issued but booking cancellation failed",
				"error", err, "booking_id", id, "refund_cents", refundCents)
		}
		return nil, err
	}

	s.publishCancelled(ctx, cancelled, refundIssued, refundCents)
	return cancelled, nil
}

// settlePayment resolves the recorded payment before the booking row moves.
// Paid bookings inside the refund window get a refund that must succeed,
// outside the window the whole cancellation is refused; uncaptured payments
// are voided best effort.
func (s *cancellationService) settlePayment(ctx context.Context, booking *domain.Booking, now time.Time) (bool, int64, error) {
	payment, err := s.payments.GetLatestByBooking(ctx, booking.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}

	switch payment.Status {
	case domain.PaymentPaid:
		eligible, err := s.refundEligible(ctx, booking, now)
		if err != nil {
			return false, 0, err
		}
		if !eligible {
			// A paid booking past the window stays confirmed; the error
			// goes back to the caller with nothing mutated.
			return false, 0, fmt.Errorf("booking %d: %w", booking.ID, payments.ErrRefundWindowExceeded)
		}
		refundID, err := s.gateway.CreateRefund(ctx, payment.ProviderRef, payment.AmountCents, booking.Currency)
		if err != nil {
			return false, 0, fmt.Errorf("refund for booking %d: %w", booking.ID, err)
		}
		logger.InfoContext(ctx, "Refund issued",
			"booking_id", booking.ID, "refund_id", refundID, "amount_cents", payment.AmountCents)
		return true, payment.AmountCents, nil

	case domain.PaymentPending, domain.PaymentAuthorized:
		if err := s.gateway.CancelPayment(ctx, payment.ProviderRef); err != nil {
			// Voiding an uncaptured payment is advisory; the authorization
			// lapses on its own if this fails.
			logger.WarnContext(ctx, "Failed to void payment on cancellation",
				"error", err, "booking_id", booking.ID)
		}
		return false, 0, nil

	default:
		return false, 0, nil
	}
}

// refundEligible: a paid booking refunds in full when cancelled at least the
// refund window ahead of the slot start.
func (s *cancellationService) refundEligible(ctx context.Context, booking *domain.Booking, now time.Time) (bool, error) {
	slot, err := s.slots.GetByID(ctx, booking.SlotID)
	if err != nil {
		return false, err
	}
	return slot.StartTime.Sub(now) >= s.refundWindow, nil
}

func (s *cancellationService) publishCancelled(ctx context.Context, booking *domain.Booking, refundIssued bool, refundCents int64) {
	event := events.BookingCancelledEvent{
		BookingID:    booking.ID,
		UserID:       booking.UserID,
		UserEmail:    booking.UserEmail,
		Reason:       booking.CancelReason,
		RefundIssued: refundIssued,
		RefundCents:  refundCents,
		CancelledAt:  booking.UpdatedAt,
	}
	if err := s.eventBus.Publish(ctx, events.BookingCancelled, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish booking cancelled event", "error", err, "booking_id", booking.ID)
	}
}
