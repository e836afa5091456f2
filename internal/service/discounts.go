package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/palmbay/experience-bookings/internal/domain"
	"github.com/palmbay/experience-bookings/internal/repo/postgres"
)

// DiscountService resolves a user's discount entitlements into a concrete
// discount set and applies it to a pending booking.
//
// Stacking rules:
//   - An active VIP subscription always contributes.
//   - Standard referral codes stack unless the code disallows it; every
//     referral code is one-time-use per user.
//   - Influencer referral codes are additionally exclusive: they combine
//     with nothing, not even VIP.
//   - Coupons are additive with each other and with VIP.
type DiscountService interface {
	ResolveDiscounts(ctx context.Context, req *DiscountRequest) ([]domain.DiscountSource, error)
	ApplyToBooking(ctx context.Context, bookingID int64, req *DiscountRequest) (*domain.Booking, error)
}

type DiscountRequest struct {
	UserID        int64
	ExperienceID  int64
	PurchaseCents int64
	ReferralCode  string
	CouponCodes   []string
}

type discountService struct {
	store postgres.DiscountStore
	now   func() time.Time
}

func NewDiscountService(store postgres.DiscountStore) DiscountService {
	return &discountService{store: store, now: time.Now}
}

// ResolveDiscounts validates each requested source and returns the ordered
// set: VIP first, then referral, then coupons. Application order matters
// because the commission pool is finite and granted first come first served.
func (s *discountService) ResolveDiscounts(ctx context.Context, req *DiscountRequest) ([]domain.DiscountSource, error) {
	now := s.now()
	var sources []domain.DiscountSource

	vip, err := s.store.ActiveVip(ctx, req.UserID, now)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	hasVip := vip != nil && vip.ActiveAt(now)

	var referral *domain.ReferralCode
	if req.ReferralCode != "" {
		referral, err = s.store.ReferralByCode(ctx, req.ReferralCode)
		if err != nil {
			return nil, err
		}
		if err := s.validateReferral(ctx, referral, req, hasVip, now); err != nil {
			return nil, err
		}
	}

	if hasVip {
		sources = append(sources, domain.VipDiscount{
			SubscriptionID: vip.ID,
			Type:           vip.DiscountType,
			Value:          vip.DiscountValue,
		})
	}

	if referral != nil {
		sources = append(sources, domain.ReferralDiscount{
			CodeID:   referral.ID,
			AgentID:  referral.AgentID,
			Type:     referral.DiscountType,
			Value:    referral.DiscountValue,
			MaxCents: referral.MaxDiscountCents,
		})
	}

	if len(req.CouponCodes) > 0 {
		coupons, err := s.store.CouponsByCodes(ctx, req.UserID, req.CouponCodes)
		if err != nil {
			return nil, err
		}
		found := make(map[string]domain.UserCoupon, len(coupons))
		for _, c := range coupons {
			found[c.Code] = c
		}
		for _, code := range req.CouponCodes {
			c, ok := found[code]
			if !ok {
				return nil, fmt.Errorf("coupon %q: %w", code, domain.ErrNotFound)
			}
			if !c.Redeemable(now, req.PurchaseCents) {
				return nil, fmt.Errorf("coupon %q not redeemable: %w", code, domain.ErrConflict)
			}
			sources = append(sources, domain.CouponDiscount{
				CouponID: c.ID,
				Code:     c.Code,
				Type:     c.DiscountType,
				Value:    c.DiscountValue,
				MaxCents: c.MaxDiscountCents,
			})
		}
	}

	return sources, nil
}

func (s *discountService) validateReferral(ctx context.Context, rc *domain.ReferralCode, req *DiscountRequest, hasVip bool, now time.Time) error {
	if !rc.Usable(now, req.PurchaseCents) {
		return fmt.Errorf("referral code %q not usable: %w", rc.Code, domain.ErrInvalidInput)
	}

	categoryID, resortID, err := s.store.ExperienceRefs(ctx, req.ExperienceID)
	if err != nil {
		return err
	}
	if !rc.Matches(req.ExperienceID, categoryID, resortID) {
		return fmt.Errorf("referral code %q does not apply here: %w", rc.Code, domain.ErrInvalidInput)
	}

	// Exclusivity is checked before any amount is computed so a rejected
	// combination never partially applies.
	exclusive := rc.ReferralType == domain.ReferralInfluencer || !rc.AllowStacking
	if exclusive && (hasVip || len(req.CouponCodes) > 0) {
		return fmt.Errorf("referral code %q cannot combine with other discounts: %w", rc.Code, domain.ErrConflict)
	}

	// One completed booking per user per code, regardless of type.
	used, err := s.store.HasConfirmedReferralUse(ctx, req.UserID, rc.ID)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("referral code %q already used by this user: %w", rc.Code, domain.ErrConflict)
	}
	return nil
}

func (s *discountService) ApplyToBooking(ctx context.Context, bookingID int64, req *DiscountRequest) (*domain.Booking, error) {
	sources, err := s.ResolveDiscounts(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.store.ApplyDiscounts(ctx, bookingID, sources, s.now())
}
