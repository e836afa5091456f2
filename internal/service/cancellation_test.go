package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/palmbay/experience-bookings/internal/domain"
	"github.com/palmbay/experience-bookings/internal/platform/payments"
	"github.com/palmbay/experience-bookings/internal/repo/postgres"
	"github.com/palmbay/experience-bookings/internal/service"
	"github.com/palmbay/experience-bookings/pkg/events"
)

type cancelFixture struct {
	store    *mockBookingStore
	slots    *mockSlotStore
	payments *mockPaymentStore
	gateway  *mockGateway
	bus      *mockPublisher
	svc      service.CancellationService
}

func newCancelFixture(t *testing.T) *cancelFixture {
	t.Helper()
	slot := testSlot()
	f := &cancelFixture{
		store:    newMockBookingStore(slot),
		slots:    newMockSlotStore(slot),
		payments: &mockPaymentStore{payments: make(map[int64]*domain.Payment)},
		gateway:  &mockGateway{},
		bus:      &mockPublisher{},
	}
	f.svc = service.NewCancellationService(f.store, f.slots, f.payments, f.gateway, f.bus, 48*time.Hour)
	return f
}

func (f *cancelFixture) addBooking(t *testing.T, status domain.BookingStatus) *domain.Booking {
	t.Helper()
	created, err := f.store.CreatePending(context.Background(), &postgres.CreatePendingParams{
		UserID: 42, UserEmail: "guest@example.com", ExperienceID: 1, SlotID: 1,
		Adults: 2, Currency: "USD",
		ExpiresAt: time.Now().Add(15 * time.Minute), At: time.Now(),
	})
	if err != nil {
		t.Fatalf("fixture create: %v", err)
	}
	b := created.Booking
	b.Status = status
	if status != domain.BookingPending {
		b.ExpiresAt = nil
	}
	return b
}

func TestCancelPendingBooking(t *testing.T) {
	f := newCancelFixture(t)
	b := f.addBooking(t, domain.BookingPending)

	cancelled, err := f.svc.CancelBooking(context.Background(), b.ID, "changed plans")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.BookingCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.CancelReason != "changed plans" {
		t.Errorf("reason = %q", cancelled.CancelReason)
	}
	if f.store.cancelPendingCalls != 1 || f.store.cancelConfirmedCalls != 0 {
		t.Error("pending cancellation must take the pending path")
	}
	if len(f.gateway.refundCalls) != 0 {
		t.Error("pending cancellation must not touch the gateway")
	}
	evs := f.bus.bySubject(events.BookingCancelled)
	if len(evs) != 1 {
		t.Fatalf("published %d cancelled events, want 1", len(evs))
	}
	if ev := evs[0].data.(events.BookingCancelledEvent); ev.RefundIssued {
		t.Error("no refund should be reported")
	}
}

func TestCancelConfirmedPaidRefunds(t *testing.T) {
	f := newCancelFixture(t)
	b := f.addBooking(t, domain.BookingConfirmed)
	f.payments.payments[b.ID] = &domain.Payment{
		BookingID: b.ID, ProviderRef: "pi_123",
		Status: domain.PaymentPaid, AmountCents: b.TotalCents,
	}

	cancelled, err := f.svc.CancelBooking(context.Background(), b.ID, "weather")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.BookingCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if len(f.gateway.refundCalls) != 1 {
		t.Fatalf("refund calls = %d, want 1", len(f.gateway.refundCalls))
	}
	if f.gateway.refundCalls[0].providerRef != "pi_123" || f.gateway.refundCalls[0].amountCents != b.TotalCents {
		t.Errorf("unexpected refund call %+v", f.gateway.refundCalls[0])
	}
	ev := f.bus.bySubject(events.BookingCancelled)[0].data.(events.BookingCancelledEvent)
	if !ev.RefundIssued || ev.RefundCents != b.TotalCents {
		t.Errorf("event refund = %v/%d, want full refund", ev.RefundIssued, ev.RefundCents)
	}
}

func TestCancelConfirmedPaidOutsideWindow(t *testing.T) {
	f := newCancelFixture(t)
	// Slot starts in 10 hours; the 48h refund window is missed.
	f.slots.slots[1].StartTime = time.Now().Add(10 * time.Hour)
	b := f.addBooking(t, domain.BookingConfirmed)
	f.payments.payments[b.ID] = &domain.Payment{
		BookingID: b.ID, ProviderRef: "pi_123",
		Status: domain.PaymentPaid, AmountCents: b.TotalCents,
	}

	// The closed window blocks the whole cancellation; the booking stays
	// confirmed and nothing reaches the gateway.
	_, err := f.svc.CancelBooking(context.Background(), b.ID, "late cancel")
	if !errors.Is(err, payments.ErrRefundWindowExceeded) {
		t.Fatalf("got %v, want ErrRefundWindowExceeded", err)
	}
	if !errors.Is(err, domain.ErrConflict) {
		t.Error("window error must unwrap to ErrConflict")
	}
	if f.store.bookings[b.ID].Status != domain.BookingConfirmed {
		t.Error("booking must stay confirmed")
	}
	if len(f.gateway.refundCalls) != 0 {
		t.Error("no refund may be attempted outside the window")
	}
	if len(f.bus.published) != 0 {
		t.Error("no event on a refused cancellation")
	}
}

func TestCancelRefundFailureLeavesBookingUntouched(t *testing.T) {
	f := newCancelFixture(t)
	b := f.addBooking(t, domain.BookingConfirmed)
	f.payments.payments[b.ID] = &domain.Payment{
		BookingID: b.ID, ProviderRef: "pi_123",
		Status: domain.PaymentPaid, AmountCents: b.TotalCents,
	}
	f.gateway.refundErr = domain.ErrExternalFailure

	_, err := f.svc.CancelBooking(context.Background(), b.ID, "weather")
	if !errors.Is(err, domain.ErrExternalFailure) {
		t.Fatalf("got %v, want ErrExternalFailure", err)
	}
	if f.store.bookings[b.ID].Status != domain.BookingConfirmed {
		t.Error("booking must stay confirmed when the refund fails")
	}
	if len(f.bus.published) != 0 {
		t.Error("no event on a failed cancellation")
	}
}

func TestCancelAuthorizedVoidsBestEffort(t *testing.T) {
	f := newCancelFixture(t)
	b := f.addBooking(t, domain.BookingConfirmed)
	f.payments.payments[b.ID] = &domain.Payment{
		BookingID: b.ID, ProviderRef: "pi_456",
		Status: domain.PaymentAuthorized, AmountCents: b.TotalCents,
	}
	f.gateway.cancelErr = domain.ErrExternalFailure

	// A failed void is advisory; cancellation proceeds.
	cancelled, err := f.svc.CancelBooking(context.Background(), b.ID, "plans")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.BookingCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if len(f.gateway.cancelCalls) != 1 {
		t.Errorf("void calls = %d, want 1", len(f.gateway.cancelCalls))
	}
}

func TestCancelTerminalStatesRejected(t *testing.T) {
	for _, status := range []domain.BookingStatus{
		domain.BookingCancelled, domain.BookingExpired,
		domain.BookingCompleted, domain.BookingRefunded,
	} {
		f := newCancelFixture(t)
		b := f.addBooking(t, status)
		if _, err := f.svc.CancelBooking(context.Background(), b.ID, "x"); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("cancel from %s: got %v, want ErrConflict", status, err)
		}
	}
}

func TestCancelUnknownBooking(t *testing.T) {
	f := newCancelFixture(t)
	if _, err := f.svc.CancelBooking(context.Background(), 999, "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
