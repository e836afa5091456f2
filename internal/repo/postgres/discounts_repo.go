package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palmbay/experience-bookings/internal/domain"
)

// DiscountStore reads discount eligibility data and applies resolved
// discounts to pending bookings.
type DiscountStore interface {
	ActiveVip(ctx context.Context, userID int64, at time.Time) (*domain.VipSubscription, error)
	ReferralByCode(ctx context.Context, code string) (*domain.ReferralCode, error)
	CouponsByCodes(ctx context.Context, userID int64, codes []string) ([]domain.UserCoupon, error)
	HasConfirmedReferralUse(ctx context.Context, userID, referralCodeID int64) (bool, error)
	ExperienceRefs(ctx context.Context, experienceID int64) (categoryID, resortID int64, err error)
	ApplyDiscounts(ctx context.Context, bookingID int64, sources []domain.DiscountSource, at time.Time) (*domain.Booking, error)
}

type DiscountStoreImpl struct{ pool *pgxpool.Pool }

func NewDiscountStore(pool *pgxpool.Pool) *DiscountStoreImpl {
	return &DiscountStoreImpl{pool: pool}
}

const referralCols = `id, code, agent_id, referral_type, discount_type, discount_value,
max_discount_cents, min_purchase_cents, allow_stacking, usage_limit, usage_count,
is_active, expires_at`

func scanReferral(row pgx.Row) (*domain.ReferralCode, error) {
	var rc domain.ReferralCode
	err := row.Scan(
		&rc.ID, &rc.Code, &rc.AgentID, &rc.ReferralType, &rc.DiscountType, &rc.DiscountValue,
		&rc.MaxDiscountCents, &rc.MinPurchaseCents, &rc.AllowStacking, &rc.UsageLimit, &rc.UsageCount,
		&rc.IsActive, &rc.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *DiscountStoreImpl) ActiveVip(ctx context.Context, userID int64, at time.Time) (*domain.VipSubscription, error) {
	const q = `SELECT id, user_id, discount_type, discount_value, activated_at, expires_at, status
		FROM vip_subscriptions
		WHERE user_id=$1 AND status='active' AND activated_at <= $2 AND expires_at > $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var v domain.VipSubscription
	err := r.pool.QueryRow(ctx, q, userID, at).Scan(
		&v.ID, &v.UserID, &v.DiscountType, &v.DiscountValue, &v.ActivatedAt, &v.ExpiresAt, &v.Status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no active vip subscription for user %d: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *DiscountStoreImpl) ReferralByCode(ctx context.Context, code string) (*domain.ReferralCode, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	const q = `SELECT ` + referralCols + ` FROM referral_codes WHERE code=$1`
	rc, err := scanReferral(r.pool.QueryRow(ctx, q, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("referral code %q: %w", code, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadRestrictions(ctx, r.pool, rc); err != nil {
		return nil, err
	}
	return rc, nil
}

type restrictionQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *DiscountStoreImpl) loadRestrictions(ctx context.Context, q restrictionQuerier, rc *domain.ReferralCode) error {
	const restrQ = `SELECT kind, target_id FROM referral_code_restrictions WHERE referral_code_id=$1`
	rows, err := q.Query(ctx, restrQ, rc.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var restr domain.ReferralRestriction
		if err := rows.Scan(&restr.Kind, &restr.TargetID); err != nil {
			return err
		}
		rc.Restrictions = append(rc.Restrictions, restr)
	}
	return rows.Err()
}

func (r *DiscountStoreImpl) CouponsByCodes(ctx context.Context, userID int64, codes []string) ([]domain.UserCoupon, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	const q = `SELECT id, user_id, code, coupon_type, discount_type, discount_value,
		max_discount_cents, min_purchase_cents, is_used, is_active, expires_at
		FROM user_coupons WHERE user_id=$1 AND code = ANY($2)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	coupons := make([]domain.UserCoupon, 0, len(codes))
	for rows.Next() {
		var c domain.UserCoupon
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Code, &c.CouponType, &c.DiscountType, &c.DiscountValue,
			&c.MaxDiscountCents, &c.MinPurchaseCents, &c.IsUsed, &c.IsActive, &c.ExpiresAt,
		); err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}

// HasConfirmedReferralUse reports whether the user already has a confirmed or
// later booking carrying this referral code. Influencer codes are first
// purchase only.
func (r *DiscountStoreImpl) HasConfirmedReferralUse(ctx context.Context, userID, referralCodeID int64) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM bookings
		WHERE user_id=$1 AND referral_code_id=$2
		  AND status IN ('confirmed','completed','refunded')
	)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q, userID, referralCodeID).Scan(&exists)
	return exists, err
}

func (r *DiscountStoreImpl) ExperienceRefs(ctx context.Context, experienceID int64) (int64, int64, error) {
	const q = `SELECT category_id, resort_id FROM experiences WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var categoryID, resortID int64
	err := r.pool.QueryRow(ctx, q, experienceID).Scan(&categoryID, &resortID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, fmt.Errorf("experience %d: %w", experienceID, domain.ErrNotFound)
	}
	return categoryID, resortID, err
}

// ResolveReferralTx locks the code row, validates it against the purchase and
// claims one use. Runs inside the booking-creation transaction so a failed
// insert also rolls the usage claim back.
func (r *DiscountStoreImpl) ResolveReferralTx(ctx context.Context, tx pgx.Tx, code string, userID, experienceID int64, purchaseCents int64, at time.Time) (*domain.ReferralCode, error) {
	const q = `SELECT ` + referralCols + ` FROM referral_codes WHERE code=$1 FOR UPDATE`
	rc, err := scanReferral(tx.QueryRow(ctx, q, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("referral code %q: %w", code, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !rc.Usable(at, purchaseCents) {
		return nil, fmt.Errorf("referral code %q not usable: %w", code, domain.ErrInvalidInput)
	}
	if err := r.loadRestrictions(ctx, tx, rc); err != nil {
		return nil, err
	}
	categoryID, resortID, err := r.experienceRefsTx(ctx, tx, experienceID)
	if err != nil {
		return nil, err
	}
	if !rc.Matches(experienceID, categoryID, resortID) {
		return nil, fmt.Errorf("referral code %q does not apply to experience %d: %w",
			code, experienceID, domain.ErrInvalidInput)
	}

	const claimQ = `UPDATE referral_codes SET usage_count = usage_count + 1 WHERE id=$1`
	if _, err := tx.Exec(ctx, claimQ, rc.ID); err != nil {
		return nil, err
	}
	rc.UsageCount++
	return rc, nil
}

func (r *DiscountStoreImpl) experienceRefsTx(ctx context.Context, tx pgx.Tx, experienceID int64) (int64, int64, error) {
	const q = `SELECT category_id, resort_id FROM experiences WHERE id=$1`
	var categoryID, resortID int64
	err := tx.QueryRow(ctx, q, experienceID).Scan(&categoryID, &resortID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, fmt.Errorf("experience %d: %w", experienceID, domain.ErrNotFound)
	}
	return categoryID, resortID, err
}

// ApplyDiscounts writes a resolved discount set onto a pending booking.
// Re-application is idempotent: prior discount rows are rolled back into the
// commission before the new set is computed, so applying the same set twice
// yields the same totals. Discounts only ever reduce the commission share;
// the resort net and the money invariant are untouched.
func (r *DiscountStoreImpl) ApplyDiscounts(ctx context.Context, bookingID int64, sources []domain.DiscountSource, at time.Time) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var booking *domain.Booking
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		b, err := lockBookingTx(ctx, tx, bookingID, domain.BookingPending)
		if err != nil {
			return err
		}

		// Undo any previously applied set. The pre-discount commission is
		// the current commission plus everything handed out before, which
		// keeps manual commission adjustments intact.
		var priorCoupon, priorReferral int64
		const priorQ = `SELECT
			COALESCE((SELECT SUM(amount_cents) FROM booking_coupons WHERE booking_id=$1), 0),
			COALESCE((SELECT SUM(amount_cents) FROM booking_referral_codes WHERE booking_id=$1), 0)`
		if err := tx.QueryRow(ctx, priorQ, bookingID).Scan(&priorCoupon, &priorReferral); err != nil {
			return err
		}
		baseCommission := b.CommissionCents + priorCoupon + priorReferral + b.VipDiscountCents

		if _, err := tx.Exec(ctx, `DELETE FROM booking_coupons WHERE booking_id=$1`, bookingID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM booking_referral_codes WHERE booking_id=$1`, bookingID); err != nil {
			return err
		}

		// Amounts are computed against the pre-discount total and granted
		// in order until the commission is exhausted.
		totalBase := baseCommission + b.ResortNetCents
		remaining := baseCommission

		grant := func(amount int64) int64 {
			if amount > remaining {
				amount = remaining
			}
			if amount < 0 {
				amount = 0
			}
			remaining -= amount
			return amount
		}

		var vipGranted int64
		for _, src := range sources {
			amount := grant(src.ComputeAmount(totalBase))
			switch s := src.(type) {
			case domain.VipDiscount:
				vipGranted += amount
			case domain.ReferralDiscount:
				const q = `INSERT INTO booking_referral_codes (booking_id, referral_code_id, amount_cents)
					VALUES ($1, $2, $3)`
				if _, err := tx.Exec(ctx, q, bookingID, s.CodeID, amount); err != nil {
					return err
				}
			case domain.CouponDiscount:
				const q = `INSERT INTO booking_coupons (booking_id, user_coupon_id, amount_cents)
					VALUES ($1, $2, $3)`
				if _, err := tx.Exec(ctx, q, bookingID, s.CouponID, amount); err != nil {
					return err
				}
			}
		}

		newCommission := remaining
		const updateQ = `UPDATE bookings
			SET commission_cents=$2, vip_discount_cents=$3,
			    total_cents=$2 + resort_net_cents, updated_at=$4
			WHERE id=$1 RETURNING ` + bookingCols
		booking, err = scanBooking(tx.QueryRow(ctx, updateQ, bookingID, newCommission, vipGranted, at))
		return err
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

var _ DiscountStore = (*DiscountStoreImpl)(nil)
