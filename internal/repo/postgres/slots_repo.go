package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palmbay/experience-bookings/internal/domain"
)

// SlotStore holds per-slot capacity and the outstanding inventory locks.
// The Tx-suffixed primitives run inside a caller-owned transaction; the
// locking order is always slot row first, booking row second, so no two
// operations ever acquire the two lock types in reverse order.
type SlotStore interface {
	GetByID(ctx context.Context, id int64) (*domain.AvailabilitySlot, error)
	Remaining(ctx context.Context, slotID int64) (int, error)
	SweepExpiredLocks(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

type SlotStoreImpl struct{ pool *pgxpool.Pool }

func NewSlotStore(pool *pgxpool.Pool) *SlotStoreImpl { return &SlotStoreImpl{pool: pool} }

const slotCols = `id, experience_id, start_time, end_time, capacity,
price_per_adult_cents, price_per_child_cents,
commission_per_adult_cents, commission_per_child_cents,
created_at, updated_at`

func scanSlot(row pgx.Row) (*domain.AvailabilitySlot, error) {
	var s domain.AvailabilitySlot
	err := row.Scan(
		&s.ID, &s.ExperienceID, &s.StartTime, &s.EndTime, &s.Capacity,
		&s.PricePerAdultCents, &s.PricePerChildCents,
		&s.CommissionPerAdultCents, &s.CommissionPerChildCents,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SlotStoreImpl) GetByID(ctx context.Context, id int64) (*domain.AvailabilitySlot, error) {
	const q = `SELECT ` + slotCols + ` FROM availability_slots WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	s, err := scanSlot(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("slot %d: %w", id, domain.ErrNotFound)
	}
	return s, err
}

// Remaining returns the derived remaining capacity for a slot.
func (r *SlotStoreImpl) Remaining(ctx context.Context, slotID int64) (int, error) {
	const q = `SELECT remaining FROM slot_remaining_capacity WHERE slot_id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var remaining int
	err := r.pool.QueryRow(ctx, q, slotID).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("slot %d: %w", slotID, domain.ErrNotFound)
	}
	return remaining, err
}

// LockCapacityTx acquires an exclusive row lock on the slot, then computes
// remaining capacity from the active locks. It never mutates state: on
// insufficiency the caller decides whether to abort the transaction.
// With an idempotency key, an active unconsumed same-quantity lock already
// bound to that key signals a duplicate rather than a second reservation.
func (r *SlotStoreImpl) LockCapacityTx(ctx context.Context, tx pgx.Tx, slotID int64, quantity int, idempotencyKey string, at time.Time) (*domain.AvailabilitySlot, int, error) {
	if quantity <= 0 {
		return nil, 0, fmt.Errorf("quantity must be positive: %w", domain.ErrInvalidInput)
	}

	// Slot row lock first; this is the serialization point for all
	// concurrent reservations on the same slot.
	const lockQ = `SELECT ` + slotCols + ` FROM availability_slots WHERE id=$1 FOR UPDATE`
	slot, err := scanSlot(tx.QueryRow(ctx, lockQ, slotID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, fmt.Errorf("slot %d: %w", slotID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, 0, err
	}

	if idempotencyKey != "" {
		const dupQ = `SELECT 1 FROM inventory_locks il
			JOIN bookings b ON b.id = il.booking_id
			WHERE il.slot_id=$1 AND b.idempotency_key=$2 AND il.quantity=$3
			  AND il.consumed_at IS NULL AND il.released_at IS NULL AND il.expires_at > $4`
		var one int
		err := tx.QueryRow(ctx, dupQ, slotID, idempotencyKey, quantity, at).Scan(&one)
		if err == nil {
			return nil, 0, domain.ErrDuplicatePending
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, err
		}
	}

	const heldQ = `SELECT COALESCE(SUM(quantity), 0) FROM inventory_locks
		WHERE slot_id=$1 AND released_at IS NULL
		  AND (consumed_at IS NOT NULL OR expires_at > $2)`
	var held int
	if err := tx.QueryRow(ctx, heldQ, slotID, at).Scan(&held); err != nil {
		return nil, 0, err
	}

	remaining := slot.Capacity - held - quantity
	if remaining < 0 {
		return nil, 0, fmt.Errorf("slot %d has %d seats left, requested %d: %w",
			slotID, slot.Capacity-held, quantity, domain.ErrInsufficientCapacity)
	}
	return slot, remaining, nil
}

// CreateLockTx inserts the reservation record. Call only after LockCapacityTx
// succeeded in the same transaction.
func (r *SlotStoreImpl) CreateLockTx(ctx context.Context, tx pgx.Tx, slotID int64, bookingID *int64, quantity int, expiresAt time.Time) (*domain.InventoryLock, error) {
	const q = `INSERT INTO inventory_locks (id, slot_id, booking_id, quantity, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, slot_id, booking_id, quantity, expires_at, consumed_at, released_at, created_at`

	var l domain.InventoryLock
	err := tx.QueryRow(ctx, q, uuid.NewString(), slotID, bookingID, quantity, expiresAt).Scan(
		&l.ID, &l.SlotID, &l.BookingID, &l.Quantity, &l.ExpiresAt,
		&l.ConsumedAt, &l.ReleasedAt, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ReleaseLockTx gives the capacity back, whether or not the lock was
// consumed. Idempotent: an already released lock is left untouched.
func (r *SlotStoreImpl) ReleaseLockTx(ctx context.Context, tx pgx.Tx, bookingID int64, at time.Time) error {
	const q = `UPDATE inventory_locks SET released_at=$2
		WHERE booking_id=$1 AND released_at IS NULL`
	_, err := tx.Exec(ctx, q, bookingID, at)
	return err
}

// ConsumeLockTx marks the reservation as permanently realized; no capacity
// is ever returned for a consumed lock.
func (r *SlotStoreImpl) ConsumeLockTx(ctx context.Context, tx pgx.Tx, bookingID int64, at time.Time) error {
	const q = `UPDATE inventory_locks SET consumed_at=$2
		WHERE booking_id=$1 AND released_at IS NULL AND consumed_at IS NULL`
	_, err := tx.Exec(ctx, q, bookingID, at)
	return err
}

// SweepExpiredLocks releases orphaned locks: expired, never bound to a
// booking (the request died between reserve and booking insert). Bounded
// batches keep the sweep cheap under backlog.
func (r *SlotStoreImpl) SweepExpiredLocks(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	const q = `UPDATE inventory_locks SET released_at=$1
		WHERE id IN (
			SELECT id FROM inventory_locks
			WHERE booking_id IS NULL AND consumed_at IS NULL AND released_at IS NULL AND expires_at < $1
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, cutoff, batchSize)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

var _ SlotStore = (*SlotStoreImpl)(nil)
