package domain

import "time"

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentPaid       PaymentStatus = "paid"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentVoided     PaymentStatus = "voided"
)

// Payment mirrors the gateway state recorded by the webhook layer. The
// booking engine only reads it; cancellation decisions are made from this
// recorded state, never from re-querying the gateway.
type Payment struct {
	ID          int64         `json:"id"`
	BookingID   int64         `json:"booking_id"`
	ProviderRef string        `json:"provider_ref"`
	Status      PaymentStatus `json:"status"`
	AmountCents int64         `json:"amount_cents"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
