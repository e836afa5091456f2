package service

import (
	"context"
	"fmt"
	"time"

	"github.com/palmbay/experience-bookings/internal/domain"
	"github.com/palmbay/experience-bookings/internal/platform/rates"
	"github.com/palmbay/experience-bookings/internal/repo/postgres"
	"github.com/palmbay/experience-bookings/pkg/events"
	"github.com/palmbay/experience-bookings/pkg/logger"
)

// LifecycleService drives the booking state machine from creation through
// confirmation. Cancellation lives in CancellationService, expiry in the
// reaper.
type LifecycleService interface {
	CreateBooking(ctx context.Context, req *CreateBookingRequest) (*CreateBookingResult, error)
	ConfirmBooking(ctx context.Context, id int64) (*domain.Booking, error)
	GetBooking(ctx context.Context, id int64) (*domain.Booking, error)
	ListUserBookings(ctx context.Context, userID int64, limit, offset int) ([]domain.Booking, error)
	ListBookingsByStatus(ctx context.Context, status domain.BookingStatus, limit, offset int) ([]domain.Booking, error)
	QuoteSlot(ctx context.Context, slotID int64, adults, children int, currency string) (*SlotQuote, error)
	SlotAvailability(ctx context.Context, slotID int64) (*SlotAvailability, error)
}

type CreateBookingRequest struct {
	UserID         int64
	UserEmail      string
	ExperienceID   int64
	SlotID         int64
	Adults         int
	Children       int
	Currency       string
	ReferralCode   string
	IdempotencyKey string
}

type CreateBookingResult struct {
	Booking   *domain.Booking
	Remaining int
}

// SlotQuote is the price breakdown for a party, optionally converted into a
// display currency. The booking itself is always charged in the base
// currency.
type SlotQuote struct {
	SlotID   int64        `json:"slot_id"`
	Adults   int          `json:"adults"`
	Children int          `json:"children"`
	Quote    domain.Quote `json:"quote"`
	Currency string       `json:"currency"`

	DisplayCurrency   string `json:"display_currency,omitempty"`
	DisplayTotalCents int64  `json:"display_total_cents,omitempty"`
}

type SlotAvailability struct {
	SlotID    int64     `json:"slot_id"`
	Capacity  int       `json:"capacity"`
	Remaining int       `json:"remaining"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

const baseCurrency = "USD"

type lifecycleService struct {
	bookings   postgres.BookingStore
	slots      postgres.SlotStore
	eventBus   events.Publisher
	rateSource rates.Source
	pendingTTL time.Duration
	now        func() time.Time
}

func NewLifecycleService(
	bookings postgres.BookingStore,
	slots postgres.SlotStore,
	eventBus events.Publisher,
	rateSource rates.Source,
	pendingTTL time.Duration,
) LifecycleService {
	return &lifecycleService{
		bookings:   bookings,
		slots:      slots,
		eventBus:   eventBus,
		rateSource: rateSource,
		pendingTTL: pendingTTL,
		now:        time.Now,
	}
}

func (s *lifecycleService) validateCreate(req *CreateBookingRequest) error {
	if req.UserID <= 0 || req.ExperienceID <= 0 || req.SlotID <= 0 {
		return fmt.Errorf("user, experience and slot are required: %w", domain.ErrInvalidInput)
	}
	if req.Adults < 0 || req.Children < 0 || req.Adults+req.Children == 0 {
		return fmt.Errorf("party must hold at least one person: %w", domain.ErrInvalidInput)
	}
	return nil
}

func (s *lifecycleService) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*CreateBookingResult, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	now := s.now()
	currency := req.Currency
	if currency == "" {
		currency = baseCurrency
	}

	created, err := s.bookings.CreatePending(ctx, &postgres.CreatePendingParams{
		UserID:         req.UserID,
		UserEmail:      req.UserEmail,
		ExperienceID:   req.ExperienceID,
		SlotID:         req.SlotID,
		Adults:         req.Adults,
		Children:       req.Children,
		Currency:       currency,
		IdempotencyKey: req.IdempotencyKey,
		ReferralCode:   req.ReferralCode,
		ExpiresAt:      now.Add(s.pendingTTL),
		At:             now,
	})
	if err != nil {
		// A replayed idempotency key is a conflict, never a silent
		// dedup; the caller retries with a fresh key.
		return nil, err
	}

	booking := created.Booking
	event := events.BookingPendingCreatedEvent{
		BookingID:    booking.ID,
		UserID:       booking.UserID,
		UserEmail:    booking.UserEmail,
		ExperienceID: booking.ExperienceID,
		SlotID:       booking.SlotID,
		Adults:       booking.Adults,
		Children:     booking.Children,
		TotalCents:   booking.TotalCents,
		Currency:     booking.Currency,
		ExpiresAt:    *booking.ExpiresAt,
		CreatedAt:    booking.CreatedAt,
	}
	if err := s.eventBus.Publish(ctx, events.BookingPendingCreated, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish pending created event", "error", err, "booking_id", booking.ID)
	}

	return &CreateBookingResult{Booking: booking, Remaining: created.Remaining}, nil
}

func (s *lifecycleService) ConfirmBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	booking, err := s.bookings.ConfirmPending(ctx, id, s.now())
	if err != nil {
		return nil, err
	}

	event := events.BookingConfirmedEvent{
		BookingID:   booking.ID,
		UserID:      booking.UserID,
		UserEmail:   booking.UserEmail,
		TotalCents:  booking.TotalCents,
		Currency:    booking.Currency,
		ConfirmedAt: booking.UpdatedAt,
	}
	if err := s.eventBus.Publish(ctx, events.BookingConfirmed, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish booking confirmed event", "error", err, "booking_id", booking.ID)
	}

	return booking, nil
}

func (s *lifecycleService) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

func (s *lifecycleService) ListUserBookings(ctx context.Context, userID int64, limit, offset int) ([]domain.Booking, error) {
	return s.bookings.ListByUser(ctx, userID, limit, offset)
}

func (s *lifecycleService) ListBookingsByStatus(ctx context.Context, status domain.BookingStatus, limit, offset int) ([]domain.Booking, error) {
	return s.bookings.ListByStatus(ctx, status, limit, offset)
}

func (s *lifecycleService) QuoteSlot(ctx context.Context, slotID int64, adults, children int, currency string) (*SlotQuote, error) {
	if adults < 0 || children < 0 || adults+children == 0 {
		return nil, fmt.Errorf("party must hold at least one person: %w", domain.ErrInvalidInput)
	}

	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}

	quote := &SlotQuote{
		SlotID:   slotID,
		Adults:   adults,
		Children: children,
		Quote:    slot.PriceFor(adults, children),
		Currency: baseCurrency,
	}

	if currency != "" && currency != baseCurrency {
		rate, err := s.rateSource.Rate(ctx, baseCurrency, currency)
		if err != nil {
			// Conversion is display-only; a rate outage degrades to the
			// base currency instead of failing the quote.
			logger.WarnContext(ctx, "Rate lookup failed, quoting base currency only",
				"error", err, "currency", currency)
		} else {
			quote.DisplayCurrency = currency
			quote.DisplayTotalCents = rates.Convert(quote.Quote.TotalCents, rate)
		}
	}

	return quote, nil
}

func (s *lifecycleService) SlotAvailability(ctx context.Context, slotID int64) (*SlotAvailability, error) {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	remaining, err := s.slots.Remaining(ctx, slotID)
	if err != nil {
		return nil, err
	}
	return &SlotAvailability{
		SlotID:    slotID,
		Capacity:  slot.Capacity,
		Remaining: remaining,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
	}, nil
}
