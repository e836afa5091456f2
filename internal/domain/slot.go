package domain

import "time"

// AvailabilitySlot is a bookable time window for one experience. Immutable
// once bookings exist against it, except for administrative capacity edits.
type AvailabilitySlot struct {
	ID           int64     `json:"id"`
	ExperienceID int64     `json:"experience_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`

	Capacity int `json:"capacity"` // seats, always >= 0

	PricePerAdultCents      int64 `json:"price_per_adult_cents"`
	PricePerChildCents      int64 `json:"price_per_child_cents"`
	CommissionPerAdultCents int64 `json:"commission_per_adult_cents"`
	CommissionPerChildCents int64 `json:"commission_per_child_cents"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Quote is the money breakdown for a party size on this slot.
// subtotal splits into the platform commission and the resort's net;
// the customer-facing total is commission + resortNet.
type Quote struct {
	SubtotalCents   int64 `json:"subtotal_cents"`
	CommissionCents int64 `json:"commission_cents"`
	ResortNetCents  int64 `json:"resort_net_cents"`
	TotalCents      int64 `json:"total_cents"`
}

// PriceFor computes the quote for the given party size.
func (s *AvailabilitySlot) PriceFor(adults, children int) Quote {
	subtotal := int64(adults)*s.PricePerAdultCents + int64(children)*s.PricePerChildCents
	commission := int64(adults)*s.CommissionPerAdultCents + int64(children)*s.CommissionPerChildCents
	resortNet := subtotal - commission
	return Quote{
		SubtotalCents:   subtotal,
		CommissionCents: commission,
		ResortNetCents:  resortNet,
		TotalCents:      commission + resortNet,
	}
}
