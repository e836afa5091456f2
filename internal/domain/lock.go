package domain

import "time"

// InventoryLock reserves quantity seats on one slot, optionally bound to a
// booking. It is the only path by which capacity is consumed. An unconsumed
// lock counts against capacity until it expires or is released; a consumed
// lock (confirmed booking) counts until released, with no expiry. Release of
// a consumed lock happens only when a confirmed booking is cancelled.
type InventoryLock struct {
	ID         string     `json:"id"`
	SlotID     int64      `json:"slot_id"`
	BookingID  *int64     `json:"booking_id,omitempty"`
	Quantity   int        `json:"quantity"` // always > 0
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Active reports whether the lock still counts against slot capacity.
func (l *InventoryLock) Active(now time.Time) bool {
	if l.ReleasedAt != nil {
		return false
	}
	return l.ConsumedAt != nil || now.Before(l.ExpiresAt)
}

// Orphaned reports whether the lock was never bound to a booking, e.g. the
// request died between the capacity reservation and the booking insert.
// Orphans are swept independently of booking expiry.
func (l *InventoryLock) Orphaned(now time.Time) bool {
	return l.BookingID == nil && l.ConsumedAt == nil && l.ReleasedAt == nil && !now.Before(l.ExpiresAt)
}
