package domain

import "time"

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage" // value in basis points
	DiscountFixed      DiscountType = "fixed"      // value in cents
)

type ReferralType string

const (
	ReferralStandard   ReferralType = "standard"
	ReferralInfluencer ReferralType = "influencer"
)

type CouponType string

const (
	CouponUserEarned      CouponType = "user_earned"
	CouponVipSubscription CouponType = "vip_subscription"
	CouponPromotional     CouponType = "promotional"
)

// computeDiscount is the single discount formula shared by every source.
// Percentage values are basis points: floor(total * value / 10000).
// A non-zero maxCents caps the result.
func computeDiscount(totalCents int64, dt DiscountType, value int64, maxCents int64) int64 {
	var amount int64
	switch dt {
	case DiscountPercentage:
		amount = totalCents * value / 10000
	case DiscountFixed:
		amount = value
	}
	if amount < 0 {
		amount = 0
	}
	if maxCents > 0 && amount > maxCents {
		amount = maxCents
	}
	return amount
}

// DiscountSource is a closed sum over the three discount origins. The
// stacking and exclusivity rules in the discount engine match exhaustively
// over these variants.
type DiscountSource interface {
	ComputeAmount(totalCents int64) int64
	isDiscountSource()
}

type VipDiscount struct {
	SubscriptionID int64
	Type           DiscountType
	Value          int64
}

func (d VipDiscount) ComputeAmount(totalCents int64) int64 {
	return computeDiscount(totalCents, d.Type, d.Value, 0)
}
func (VipDiscount) isDiscountSource() {}

type ReferralDiscount struct {
	CodeID   int64
	AgentID  int64
	Type     DiscountType
	Value    int64
	MaxCents int64
}

func (d ReferralDiscount) ComputeAmount(totalCents int64) int64 {
	return computeDiscount(totalCents, d.Type, d.Value, d.MaxCents)
}
func (ReferralDiscount) isDiscountSource() {}

type CouponDiscount struct {
	CouponID int64
	Code     string
	Type     DiscountType
	Value    int64
	MaxCents int64
}

func (d CouponDiscount) ComputeAmount(totalCents int64) int64 {
	return computeDiscount(totalCents, d.Type, d.Value, d.MaxCents)
}
func (CouponDiscount) isDiscountSource() {}

// ReferralCode is a shareable code owned by a partner or agent. When
// restrictions exist, the code applies only if at least one matches.
type ReferralCode struct {
	ID               int64        `json:"id"`
	Code             string       `json:"code"`
	AgentID          int64        `json:"agent_id"`
	ReferralType     ReferralType `json:"referral_type"`
	DiscountType     DiscountType `json:"discount_type"`
	DiscountValue    int64        `json:"discount_value"`
	MaxDiscountCents int64        `json:"max_discount_cents"`
	MinPurchaseCents int64        `json:"min_purchase_cents"`
	AllowStacking    bool         `json:"allow_stacking"`
	UsageLimit       int          `json:"usage_limit"` // 0 = unlimited
	UsageCount       int          `json:"usage_count"`
	IsActive         bool         `json:"is_active"`
	ExpiresAt        *time.Time   `json:"expires_at,omitempty"`
	Restrictions     []ReferralRestriction `json:"restrictions,omitempty"`
}

type RestrictionKind string

const (
	RestrictExperience RestrictionKind = "experience"
	RestrictCategory   RestrictionKind = "category"
	RestrictResort     RestrictionKind = "resort"
)

type ReferralRestriction struct {
	Kind     RestrictionKind `json:"kind"`
	TargetID int64           `json:"target_id"`
}

// Usable reports whether the code can be applied to a purchase of the given
// amount at the given time. Restriction matching is checked separately.
func (rc *ReferralCode) Usable(now time.Time, purchaseCents int64) bool {
	if !rc.IsActive {
		return false
	}
	if rc.ExpiresAt != nil && !now.Before(*rc.ExpiresAt) {
		return false
	}
	if rc.UsageLimit > 0 && rc.UsageCount >= rc.UsageLimit {
		return false
	}
	if purchaseCents < rc.MinPurchaseCents {
		return false
	}
	return true
}

// Matches applies OR semantics over the restriction set: with no restrictions
// the code applies everywhere; otherwise at least one entry must match.
func (rc *ReferralCode) Matches(experienceID, categoryID, resortID int64) bool {
	if len(rc.Restrictions) == 0 {
		return true
	}
	for _, r := range rc.Restrictions {
		switch r.Kind {
		case RestrictExperience:
			if r.TargetID == experienceID {
				return true
			}
		case RestrictCategory:
			if r.TargetID == categoryID {
				return true
			}
		case RestrictResort:
			if r.TargetID == resortID {
				return true
			}
		}
	}
	return false
}

// UserCoupon is a per-user redeemable. It is marked used only once its parent
// booking reaches a payment-confirmed state; that decision lives outside this
// core.
type UserCoupon struct {
	ID               int64        `json:"id"`
	UserID           int64        `json:"user_id"`
	Code             string       `json:"code"`
	CouponType       CouponType   `json:"coupon_type"`
	DiscountType     DiscountType `json:"discount_type"`
	DiscountValue    int64        `json:"discount_value"`
	MaxDiscountCents int64        `json:"max_discount_cents"`
	MinPurchaseCents int64        `json:"min_purchase_cents"`
	IsUsed           bool         `json:"is_used"`
	IsActive         bool         `json:"is_active"`
	ExpiresAt        *time.Time   `json:"expires_at,omitempty"`
}

// Redeemable reports whether the coupon can contribute to a purchase of the
// given amount at the given time.
func (c *UserCoupon) Redeemable(now time.Time, purchaseCents int64) bool {
	if !c.IsActive || c.IsUsed {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	return purchaseCents >= c.MinPurchaseCents
}

type VipStatus string

const (
	VipActive    VipStatus = "active"
	VipExpired   VipStatus = "expired"
	VipCancelled VipStatus = "cancelled"
)

// VipSubscription confers a discount on every purchase while active. At most
// one active subscription exists per user; mutually exclusive with
// non-standard referral codes.
type VipSubscription struct {
	ID            int64        `json:"id"`
	UserID        int64        `json:"user_id"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue int64        `json:"discount_value"`
	ActivatedAt   time.Time    `json:"activated_at"`
	ExpiresAt     time.Time    `json:"expires_at"`
	Status        VipStatus    `json:"status"`
}

// ActiveAt reports whether the subscription confers a discount at the given
// time.
func (v *VipSubscription) ActiveAt(now time.Time) bool {
	return v.Status == VipActive && !now.Before(v.ActivatedAt) && now.Before(v.ExpiresAt)
}
