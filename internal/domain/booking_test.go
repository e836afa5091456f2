package domain_test

import (
	"testing"
	"time"

	"github.com/palmbay/experience-bookings/internal/domain"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct {
		from, to domain.BookingStatus
	}{
		{domain.BookingPending, domain.BookingConfirmed},
		{domain.BookingPending, domain.BookingCancelled},
		{domain.BookingPending, domain.BookingExpired},
		{domain.BookingConfirmed, domain.BookingCancelled},
		{domain.BookingConfirmed, domain.BookingCompleted},
		{domain.BookingConfirmed, domain.BookingRefunded},
	}
	for _, tc := range allowed {
		if !domain.CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct {
		from, to domain.BookingStatus
	}{
		{domain.BookingPending, domain.BookingCompleted},
		{domain.BookingPending, domain.BookingRefunded},
		{domain.BookingConfirmed, domain.BookingExpired},
		{domain.BookingConfirmed, domain.BookingPending},
		{domain.BookingCancelled, domain.BookingConfirmed},
		{domain.BookingExpired, domain.BookingConfirmed},
		{domain.BookingCompleted, domain.BookingCancelled},
		{domain.BookingRefunded, domain.BookingConfirmed},
	}
	for _, tc := range denied {
		if domain.CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestParseBookingStatus(t *testing.T) {
	if s, ok := domain.ParseBookingStatus("confirmed"); !ok || s != domain.BookingConfirmed {
		t.Errorf("expected confirmed, got %q ok=%v", s, ok)
	}
	if _, ok := domain.ParseBookingStatus("paid"); ok {
		t.Error("expected unknown status to fail")
	}
}

func TestCheckMoneyInvariant(t *testing.T) {
	b := &domain.Booking{
		CommissionCents: 2000,
		ResortNetCents:  8000,
		TotalCents:      10000,
	}
	if !b.CheckMoneyInvariant() {
		t.Error("expected invariant to hold")
	}

	b.TotalCents = 9999
	if b.CheckMoneyInvariant() {
		t.Error("expected invariant violation when total drifts")
	}

	b.TotalCents = 10000
	b.CommissionCents = -1
	b.ResortNetCents = 10001
	if b.CheckMoneyInvariant() {
		t.Error("expected negative commission to be rejected")
	}
}

func TestSlotPriceFor(t *testing.T) {
	slot := &domain.AvailabilitySlot{
		PricePerAdultCents:      10000,
		PricePerChildCents:      5000,
		CommissionPerAdultCents: 2000,
		CommissionPerChildCents: 1000,
	}

	q := slot.PriceFor(2, 1)
	if q.SubtotalCents != 25000 {
		t.Errorf("subtotal = %d, want 25000", q.SubtotalCents)
	}
	if q.CommissionCents != 5000 {
		t.Errorf("commission = %d, want 5000", q.CommissionCents)
	}
	if q.ResortNetCents != 20000 {
		t.Errorf("resort net = %d, want 20000", q.ResortNetCents)
	}
	if q.TotalCents != q.CommissionCents+q.ResortNetCents {
		t.Errorf("total %d != commission %d + resort net %d", q.TotalCents, q.CommissionCents, q.ResortNetCents)
	}
}

func TestLockActiveAndOrphaned(t *testing.T) {
	now := time.Now()
	future := now.Add(10 * time.Minute)
	past := now.Add(-10 * time.Minute)
	bookingID := int64(7)

	l := domain.InventoryLock{SlotID: 1, BookingID: &bookingID, Quantity: 2, ExpiresAt: future}
	if !l.Active(now) {
		t.Error("unexpired unconsumed lock should be active")
	}

	l.ExpiresAt = past
	if l.Active(now) {
		t.Error("expired lock should not be active")
	}
	if l.Orphaned(now) {
		t.Error("lock bound to a booking is not orphaned")
	}

	l.BookingID = nil
	if !l.Orphaned(now) {
		t.Error("expired unbound lock should be orphaned")
	}

	l.ExpiresAt = past
	consumed := now
	l.ConsumedAt = &consumed
	if !l.Active(now) {
		t.Error("consumed lock holds capacity even past expiry")
	}

	released := now
	l.ReleasedAt = &released
	if l.Active(now) {
		t.Error("released lock should not be active")
	}
}
