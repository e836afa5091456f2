package domain

import "errors"

// Error taxonomy for the booking engine. Callers match with errors.Is;
// repositories and services wrap these with context via fmt.Errorf("%w").
var (
	// ErrNotFound: slot, booking, coupon or referral code absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput: bad quantities, bad date ranges, unknown currency.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientCapacity: the slot cannot hold the requested quantity.
	// Distinct from ErrConflict so callers can offer alternative slots.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrConflict: illegal state transition, duplicate idempotency key,
	// influencer-code exclusivity violation, already-used coupon.
	ErrConflict = errors.New("conflict")

	// ErrDuplicatePending wraps ErrConflict: an active, unconsumed lock for
	// the same quantity already exists under the supplied idempotency key.
	ErrDuplicatePending = &wrappedSentinel{msg: "duplicate pending reservation", parent: ErrConflict}

	// ErrExternalFailure: a payment gateway or other collaborator call failed.
	ErrExternalFailure = errors.New("external failure")
)

type wrappedSentinel struct {
	msg    string
	parent error
}

func (e *wrappedSentinel) Error() string { return e.msg }
func (e *wrappedSentinel) Unwrap() error { return e.parent }
