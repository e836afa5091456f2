package service_test

import (
	"context"
	"fmt"
	"time"

	"github.com/palmbay/experience-bookings/internal/domain"
	"github.com/palmbay/experience-bookings/internal/repo/postgres"
)

// ---------- Mocks ----------

type publishedEvent struct {
	subject string
	data    interface{}
}

type mockPublisher struct {
	published  []publishedEvent
	publishErr error
}

func (m *mockPublisher) Publish(_ context.Context, subject string, data interface{}) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, publishedEvent{subject: subject, data: data})
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) bySubject(subject string) []publishedEvent {
	var out []publishedEvent
	for _, e := range m.published {
		if e.subject == subject {
			out = append(out, e)
		}
	}
	return out
}

type mockBookingStore struct {
	nextID   int64
	bookings map[int64]*domain.Booking
	byKey    map[string]int64
	slot     *domain.AvailabilitySlot
	capacity int
	held     int

	createErr  error
	confirmErr error
	cancelErr  error

	expireBatches [][]postgres.ExpiredBooking
	expireCalls   int
	expireErr     error
	expireBlocks  bool

	cancelPendingCalls   int
	cancelConfirmedCalls int
}

func newMockBookingStore(slot *domain.AvailabilitySlot) *mockBookingStore {
	return &mockBookingStore{
		nextID:   1,
		bookings: make(map[int64]*domain.Booking),
		byKey:    make(map[string]int64),
		slot:     slot,
		capacity: slot.Capacity,
	}
}

func (m *mockBookingStore) CreatePending(_ context.Context, p *postgres.CreatePendingParams) (*postgres.CreatePendingResult, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	seats := p.Adults + p.Children
	if p.IdempotencyKey != "" {
		if _, ok := m.byKey[p.IdempotencyKey]; ok {
			return nil, domain.ErrDuplicatePending
		}
	}
	if m.held+seats > m.capacity {
		return nil, fmt.Errorf("slot full: %w", domain.ErrInsufficientCapacity)
	}
	m.held += seats

	quote := m.slot.PriceFor(p.Adults, p.Children)
	expires := p.ExpiresAt
	b := &domain.Booking{
		ID:              m.nextID,
		UserID:          p.UserID,
		UserEmail:       p.UserEmail,
		ExperienceID:    p.ExperienceID,
		SlotID:          p.SlotID,
		Adults:          p.Adults,
		Children:        p.Children,
		SubtotalCents:   quote.SubtotalCents,
		CommissionCents: quote.CommissionCents,
		ResortNetCents:  quote.ResortNetCents,
		TotalCents:      quote.TotalCents,
		Currency:        p.Currency,
		Status:          domain.BookingPending,
		ExpiresAt:       &expires,
		IdempotencyKey:  p.IdempotencyKey,
		CreatedAt:       p.At,
		UpdatedAt:       p.At,
	}
	m.nextID++
	m.bookings[b.ID] = b
	if p.IdempotencyKey != "" {
		m.byKey[p.IdempotencyKey] = b.ID
	}
	return &postgres.CreatePendingResult{Booking: b, Remaining: m.capacity - m.held}, nil
}

func (m *mockBookingStore) GetByID(_ context.Context, id int64) (*domain.Booking, error) {
	b, ok := m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	return b, nil
}

func (m *mockBookingStore) ConfirmPending(_ context.Context, id int64, at time.Time) (*domain.Booking, error) {
	if m.confirmErr != nil {
		return nil, m.confirmErr
	}
	b, ok := m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	if b.Status != domain.BookingPending {
		return nil, fmt.Errorf("booking %d is %s: %w", id, b.Status, domain.ErrConflict)
	}
	if b.ExpiresAt != nil && !at.Before(*b.ExpiresAt) {
		return nil, fmt.Errorf("booking %d expired: %w", id, domain.ErrConflict)
	}
	b.Status = domain.BookingConfirmed
	b.ExpiresAt = nil
	b.UpdatedAt = at
	return b, nil
}

func (m *mockBookingStore) CancelPending(_ context.Context, id int64, reason string, at time.Time) (*domain.Booking, error) {
	m.cancelPendingCalls++
	return m.cancelAs(id, domain.BookingPending, reason, at)
}

func (m *mockBookingStore) CancelConfirmed(_ context.Context, id int64, reason string, at time.Time) (*domain.Booking, error) {
	m.cancelConfirmedCalls++
	return m.cancelAs(id, domain.BookingConfirmed, reason, at)
}

func (m *mockBookingStore) cancelAs(id int64, from domain.BookingStatus, reason string, at time.Time) (*domain.Booking, error) {
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	b, ok := m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	if b.Status != from {
		return nil, fmt.Errorf("booking %d is %s, not %s: %w", id, b.Status, from, domain.ErrConflict)
	}
	b.Status = domain.BookingCancelled
	b.CancelReason = reason
	b.UpdatedAt = at
	m.held -= b.Seats()
	return b, nil
}

func (m *mockBookingStore) ExpireBatch(ctx context.Context, limit int, _ time.Time) ([]postgres.ExpiredBooking, error) {
	if m.expireBlocks {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.expireErr != nil {
		return nil, m.expireErr
	}
	if m.expireCalls >= len(m.expireBatches) {
		return nil, nil
	}
	batch := m.expireBatches[m.expireCalls]
	m.expireCalls++
	if len(batch) > limit {
		batch = batch[:limit]
	}
	return batch, nil
}

func (m *mockBookingStore) ListByUser(_ context.Context, userID int64, _, _ int) ([]domain.Booking, error) {
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *mockBookingStore) ListByStatus(_ context.Context, status domain.BookingStatus, _, _ int) ([]domain.Booking, error) {
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.Status == status {
			out = append(out, *b)
		}
	}
	return out, nil
}

var _ postgres.BookingStore = (*mockBookingStore)(nil)

type mockSlotStore struct {
	slots map[int64]*domain.AvailabilitySlot

	remaining    map[int64]int
	sweepBatches []int64
	sweepCalls   int
	sweepErr     error
}

func newMockSlotStore(slots ...*domain.AvailabilitySlot) *mockSlotStore {
	m := &mockSlotStore{
		slots:     make(map[int64]*domain.AvailabilitySlot),
		remaining: make(map[int64]int),
	}
	for _, s := range slots {
		m.slots[s.ID] = s
		m.remaining[s.ID] = s.Capacity
	}
	return m
}

func (m *mockSlotStore) GetByID(_ context.Context, id int64) (*domain.AvailabilitySlot, error) {
	s, ok := m.slots[id]
	if !ok {
		return nil, fmt.Errorf("slot %d: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

func (m *mockSlotStore) Remaining(_ context.Context, slotID int64) (int, error) {
	r, ok := m.remaining[slotID]
	if !ok {
		return 0, fmt.Errorf("slot %d: %w", slotID, domain.ErrNotFound)
	}
	return r, nil
}

func (m *mockSlotStore) SweepExpiredLocks(_ context.Context, _ time.Time, _ int) (int64, error) {
	if m.sweepErr != nil {
		return 0, m.sweepErr
	}
	if m.sweepCalls >= len(m.sweepBatches) {
		return 0, nil
	}
	n := m.sweepBatches[m.sweepCalls]
	m.sweepCalls++
	return n, nil
}

var _ postgres.SlotStore = (*mockSlotStore)(nil)

type mockDiscountStore struct {
	vip      *domain.VipSubscription
	referral *domain.ReferralCode
	coupons  map[string]domain.UserCoupon

	categoryID int64
	resortID   int64

	referralUsed bool

	appliedBookingID int64
	appliedSources   []domain.DiscountSource
	applyResult      *domain.Booking
	applyErr         error
}

func newMockDiscountStore() *mockDiscountStore {
	return &mockDiscountStore{coupons: make(map[string]domain.UserCoupon)}
}

func (m *mockDiscountStore) ActiveVip(_ context.Context, userID int64, at time.Time) (*domain.VipSubscription, error) {
	if m.vip == nil || m.vip.UserID != userID || !m.vip.ActiveAt(at) {
		return nil, fmt.Errorf("no vip for user %d: %w", userID, domain.ErrNotFound)
	}
	return m.vip, nil
}

func (m *mockDiscountStore) ReferralByCode(_ context.Context, code string) (*domain.ReferralCode, error) {
	if m.referral == nil || m.referral.Code != code {
		return nil, fmt.Errorf("referral %q: %w", code, domain.ErrNotFound)
	}
	return m.referral, nil
}

func (m *mockDiscountStore) CouponsByCodes(_ context.Context, userID int64, codes []string) ([]domain.UserCoupon, error) {
	var out []domain.UserCoupon
	for _, code := range codes {
		if c, ok := m.coupons[code]; ok && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockDiscountStore) HasConfirmedReferralUse(_ context.Context, _, _ int64) (bool, error) {
	return m.referralUsed, nil
}

func (m *mockDiscountStore) ExperienceRefs(_ context.Context, _ int64) (int64, int64, error) {
	return m.categoryID, m.resortID, nil
}

func (m *mockDiscountStore) ApplyDiscounts(_ context.Context, bookingID int64, sources []domain.DiscountSource, _ time.Time) (*domain.Booking, error) {
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	m.appliedBookingID = bookingID
	m.appliedSources = sources
	return m.applyResult, nil
}

var _ postgres.DiscountStore = (*mockDiscountStore)(nil)

type mockPaymentStore struct {
	payments map[int64]*domain.Payment
}

func (m *mockPaymentStore) GetLatestByBooking(_ context.Context, bookingID int64) (*domain.Payment, error) {
	p, ok := m.payments[bookingID]
	if !ok {
		return nil, fmt.Errorf("no payment for booking %d: %w", bookingID, domain.ErrNotFound)
	}
	return p, nil
}

var _ postgres.PaymentStore = (*mockPaymentStore)(nil)

type mockGateway struct {
	refundCalls []refundCall
	cancelCalls []string
	refundErr   error
	cancelErr   error
}

type refundCall struct {
	providerRef string
	amountCents int64
}

func (m *mockGateway) CreateRefund(_ context.Context, providerRef string, amountCents int64, _ string) (string, error) {
	if m.refundErr != nil {
		return "", m.refundErr
	}
	m.refundCalls = append(m.refundCalls, refundCall{providerRef: providerRef, amountCents: amountCents})
	return "refund-1", nil
}

func (m *mockGateway) CancelPayment(_ context.Context, providerRef string) error {
	m.cancelCalls = append(m.cancelCalls, providerRef)
	return m.cancelErr
}

type mockRateSource struct {
	rate float64
	err  error
}

func (m *mockRateSource) Rate(_ context.Context, _, _ string) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.rate, nil
}

// testSlot is the shared fixture: 10 seats, adult 100.00 with 20.00
// commission, child 50.00 with 10.00 commission.
func testSlot() *domain.AvailabilitySlot {
	return &domain.AvailabilitySlot{
		ID:                      1,
		ExperienceID:            1,
		StartTime:               time.Now().Add(72 * time.Hour),
		EndTime:                 time.Now().Add(75 * time.Hour),
		Capacity:                10,
		PricePerAdultCents:      10000,
		PricePerChildCents:      5000,
		CommissionPerAdultCents: 2000,
		CommissionPerChildCents: 1000,
	}
}
