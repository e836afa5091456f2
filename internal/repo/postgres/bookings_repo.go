package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palmbay/experience-bookings/internal/domain"
)

// BookingStore owns the booking rows and the transactions that pair them
// with inventory locks. Every mutating method is all-or-nothing: a failure
// anywhere rolls the whole transaction back, so a booking and its lock are
// created and retired together.
type BookingStore interface {
	CreatePending(ctx context.Context, p *CreatePendingParams) (*CreatePendingResult, error)
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	ConfirmPending(ctx context.Context, id int64, at time.Time) (*domain.Booking, error)
	CancelPending(ctx context.Context, id int64, reason string, at time.Time) (*domain.Booking, error)
	CancelConfirmed(ctx context.Context, id int64, reason string, at time.Time) (*domain.Booking, error)
	ExpireBatch(ctx context.Context, limit int, at time.Time) ([]ExpiredBooking, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Booking, error)
	ListByStatus(ctx context.Context, status domain.BookingStatus, limit, offset int) ([]domain.Booking, error)
}

type CreatePendingParams struct {
	UserID         int64
	UserEmail      string
	ExperienceID   int64
	SlotID         int64
	Adults         int
	Children       int
	Currency       string
	TaxCents       int64
	IdempotencyKey string
	ReferralCode   string
	ExpiresAt      time.Time
	At             time.Time
}

type CreatePendingResult struct {
	Booking *domain.Booking
	Lock    *domain.InventoryLock
	// Remaining capacity on the slot after this reservation.
	Remaining int
}

// ExpiredBooking carries just enough of an expired row for the reaper to
// publish its lifecycle event.
type ExpiredBooking struct {
	ID        int64
	UserID    int64
	UserEmail string
	SlotID    int64
}

type BookingStoreImpl struct {
	pool      *pgxpool.Pool
	slots     *SlotStoreImpl
	discounts *DiscountStoreImpl
}

func NewBookingStore(pool *pgxpool.Pool, slots *SlotStoreImpl, discounts *DiscountStoreImpl) *BookingStoreImpl {
	return &BookingStoreImpl{pool: pool, slots: slots, discounts: discounts}
}

const bookingCols = `id, user_id, user_email, experience_id, slot_id, adults, children,
subtotal_cents, tax_cents, commission_cents, resort_net_cents,
vip_discount_cents, total_cents, currency,
status, expires_at, cancel_reason, COALESCE(idempotency_key, ''),
agent_id, referral_code_id, created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID, &b.UserID, &b.UserEmail, &b.ExperienceID, &b.SlotID, &b.Adults, &b.Children,
		&b.SubtotalCents, &b.TaxCents, &b.CommissionCents, &b.ResortNetCents,
		&b.VipDiscountCents, &b.TotalCents, &b.Currency,
		&b.Status, &b.ExpiresAt, &b.CancelReason, &b.IdempotencyKey,
		&b.AgentID, &b.ReferralCodeID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreatePending reserves capacity, inserts the booking, resolves an optional
// referral code and binds the inventory lock, all inside one transaction.
// No partial lock/booking pair can ever exist.
func (r *BookingStoreImpl) CreatePending(ctx context.Context, p *CreatePendingParams) (*CreatePendingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	seats := p.Adults + p.Children

	var result CreatePendingResult
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		slot, remaining, err := r.slots.LockCapacityTx(ctx, tx, p.SlotID, seats, p.IdempotencyKey, p.At)
		if err != nil {
			return err
		}
		result.Remaining = remaining

		quote := slot.PriceFor(p.Adults, p.Children)

		var referralCodeID, agentID *int64
		if p.ReferralCode != "" {
			rc, err := r.discounts.ResolveReferralTx(ctx, tx, p.ReferralCode, p.UserID, p.ExperienceID, quote.TotalCents, p.At)
			if err != nil {
				return err
			}
			referralCodeID = &rc.ID
			agentID = &rc.AgentID
		}

		const insertQ = `INSERT INTO bookings (
			user_id, user_email, experience_id, slot_id, adults, children,
			subtotal_cents, tax_cents, commission_cents, resort_net_cents, total_cents,
			currency, status, expires_at, idempotency_key, agent_id, referral_code_id,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,'pending',$13,NULLIF($14,''),$15,$16,$17,$17)
		RETURNING ` + bookingCols

		b, err := scanBooking(tx.QueryRow(ctx, insertQ,
			p.UserID, p.UserEmail, p.ExperienceID, p.SlotID, p.Adults, p.Children,
			quote.SubtotalCents, p.TaxCents, quote.CommissionCents, quote.ResortNetCents, quote.TotalCents,
			p.Currency, p.ExpiresAt, p.IdempotencyKey, agentID, referralCodeID, p.At,
		))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("idempotency key already used: %w", domain.ErrConflict)
			}
			return err
		}

		lock, err := r.slots.CreateLockTx(ctx, tx, p.SlotID, &b.ID, seats, p.ExpiresAt)
		if err != nil {
			return err
		}

		result.Booking = b
		result.Lock = lock
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *BookingStoreImpl) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	b, err := scanBooking(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	return b, err
}

// lockBookingTx row-locks a booking and verifies its status matches want.
// Confirm, cancel and the reaper all re-check status under the row lock, so
// whichever transaction commits first wins and the loser sees a conflict.
func lockBookingTx(ctx context.Context, tx pgx.Tx, id int64, want domain.BookingStatus) (*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE id=$1 FOR UPDATE`
	b, err := scanBooking(tx.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if b.Status != want {
		return nil, fmt.Errorf("booking %d is %s, not %s: %w", id, b.Status, want, domain.ErrConflict)
	}
	return b, nil
}

// ConfirmPending is the only transition that permanently realizes the
// reservation: the booking goes to confirmed and its lock is consumed.
func (r *BookingStoreImpl) ConfirmPending(ctx context.Context, id int64, at time.Time) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var booking *domain.Booking
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		b, err := lockBookingTx(ctx, tx, id, domain.BookingPending)
		if err != nil {
			return err
		}
		// A pending booking past its TTL may not take a positive
		// transition even if the reaper has not swept it yet.
		if b.ExpiresAt != nil && !at.Before(*b.ExpiresAt) {
			return fmt.Errorf("booking %d reservation expired: %w", id, domain.ErrConflict)
		}

		const q = `UPDATE bookings SET status='confirmed', expires_at=NULL, updated_at=$2
			WHERE id=$1 RETURNING ` + bookingCols
		booking, err = scanBooking(tx.QueryRow(ctx, q, id, at))
		if err != nil {
			return err
		}
		return r.slots.ConsumeLockTx(ctx, tx, id, at)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// CancelPending cancels a pending booking and returns its capacity
// immediately.
func (r *BookingStoreImpl) CancelPending(ctx context.Context, id int64, reason string, at time.Time) (*domain.Booking, error) {
	return r.cancel(ctx, id, domain.BookingPending, reason, at)
}

// CancelConfirmed cancels a confirmed booking, releasing the consumed seat
// count back to the slot. Used by the cancellation orchestrator after any
// gateway work has been settled.
func (r *BookingStoreImpl) CancelConfirmed(ctx context.Context, id int64, reason string, at time.Time) (*domain.Booking, error) {
	return r.cancel(ctx, id, domain.BookingConfirmed, reason, at)
}

func (r *BookingStoreImpl) cancel(ctx context.Context, id int64, from domain.BookingStatus, reason string, at time.Time) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var booking *domain.Booking
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := lockBookingTx(ctx, tx, id, from); err != nil {
			return err
		}

		const q = `UPDATE bookings SET status='cancelled', cancel_reason=$2, updated_at=$3
			WHERE id=$1 RETURNING ` + bookingCols
		var err error
		booking, err = scanBooking(tx.QueryRow(ctx, q, id, reason, at))
		if err != nil {
			return err
		}
		return r.slots.ReleaseLockTx(ctx, tx, id, at)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// ExpireBatch claims up to limit timed-out pending bookings, oldest first,
// flips them to expired and bulk-releases their locks in the same
// transaction. SKIP LOCKED makes it safe to run from multiple reaper
// instances at once: each instance only touches rows it atomically claimed.
func (r *BookingStoreImpl) ExpireBatch(ctx context.Context, limit int, at time.Time) ([]ExpiredBooking, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var expired []ExpiredBooking
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const claimQ = `SELECT id, user_id, user_email, slot_id FROM bookings
			WHERE status='pending' AND expires_at < $1
			ORDER BY expires_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED`
		rows, err := tx.Query(ctx, claimQ, at, limit)
		if err != nil {
			return err
		}
		var ids []int64
		for rows.Next() {
			var e ExpiredBooking
			if err := rows.Scan(&e.ID, &e.UserID, &e.UserEmail, &e.SlotID); err != nil {
				rows.Close()
				return err
			}
			expired = append(expired, e)
			ids = append(ids, e.ID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		const expireQ = `UPDATE bookings
			SET status='expired',
			    cancel_reason = CASE WHEN cancel_reason = '' THEN $2 ELSE cancel_reason END,
			    updated_at=$3
			WHERE id = ANY($1)`
		if _, err := tx.Exec(ctx, expireQ, ids, domain.ReasonPendingExpired, at); err != nil {
			return err
		}

		const releaseQ = `UPDATE inventory_locks SET released_at=$2
			WHERE booking_id = ANY($1) AND consumed_at IS NULL AND released_at IS NULL`
		_, err = tx.Exec(ctx, releaseQ, ids, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

func (r *BookingStoreImpl) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE user_id=$1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	return r.list(ctx, q, userID, limit, offset)
}

func (r *BookingStoreImpl) ListByStatus(ctx context.Context, status domain.BookingStatus, limit, offset int) ([]domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE status=$1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	return r.list(ctx, q, status, limit, offset)
}

func (r *BookingStoreImpl) list(ctx context.Context, q string, key any, limit, offset int) ([]domain.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, key, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bs := make([]domain.Booking, 0, limit)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bs = append(bs, *b)
	}
	return bs, rows.Err()
}

var _ BookingStore = (*BookingStoreImpl)(nil)
