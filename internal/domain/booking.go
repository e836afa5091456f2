package domain

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
	BookingExpired   BookingStatus = "expired"
	BookingRefunded  BookingStatus = "refunded"
)

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(s) {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted, BookingExpired, BookingRefunded:
		return BookingStatus(s), true
	default:
		return "", false
	}
}

// bookingTransitions is the closed transition table of the lifecycle state
// machine. Anything not listed here is illegal and must fail with ErrConflict.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled, BookingExpired},
	BookingConfirmed: {BookingCancelled, BookingCompleted, BookingRefunded},
}

// CanTransition reports whether moving from one booking status to another is
// a legal lifecycle transition.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Default cancel reason stamped by the reaper when none is set.
const ReasonPendingExpired = "pending_expired"

// Booking is the purchase record. Rows are mutated only through lifecycle
// transitions and never hard-deleted.
type Booking struct {
	ID           int64         `json:"id"`
	UserID       int64         `json:"user_id"`
	UserEmail    string        `json:"user_email"`
	ExperienceID int64         `json:"experience_id"`
	SlotID       int64         `json:"slot_id"`

	Adults   int `json:"adults"`
	Children int `json:"children"`

	SubtotalCents    int64  `json:"subtotal_cents"`
	TaxCents         int64  `json:"tax_cents"`
	CommissionCents  int64  `json:"commission_cents"`
	ResortNetCents   int64  `json:"resort_net_cents"`
	VipDiscountCents int64  `json:"vip_discount_cents"`
	TotalCents       int64  `json:"total_cents"`
	Currency         string `json:"currency"`

	Status         BookingStatus `json:"status"`
	ExpiresAt      *time.Time    `json:"expires_at,omitempty"`
	CancelReason   string        `json:"cancel_reason,omitempty"`
	IdempotencyKey string        `json:"-"`

	AgentID        *int64 `json:"agent_id,omitempty"`
	ReferralCodeID *int64 `json:"referral_code_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckMoneyInvariant enforces the canonical money relationship:
// total = commission + resortNet. Discounts reduce commission only, so the
// invariant holds across every discount application and re-application.
func (b *Booking) CheckMoneyInvariant() bool {
	return b.TotalCents == b.CommissionCents+b.ResortNetCents &&
		b.CommissionCents >= 0 && b.ResortNetCents >= 0
}

// Seats is the number of reserved seats backing this booking's lock.
func (b *Booking) Seats() int {
	return b.Adults + b.Children
}
