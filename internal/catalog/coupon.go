package catalog

import (
	"time"
)

// DiscountType selects how a coupon value is applied.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Valid reports whether the discount type is known.
func (d DiscountType) Valid() bool {
	return d == DiscountPercentage || d == DiscountFixed
}

// Coupon is a redeemable discount code.
type Coupon struct {
	ID            int64        `json:"id"`
	Code          string       `json:"code"`
	Description   string       `json:"description,omitempty"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue float64      `json:"discount_value"`
	MinPurchase   float64      `json:"minimum_purchase"`
	MaxDiscount   *float64     `json:"maximum_discount,omitempty"`
	ValidFrom     time.Time    `json:"valid_from"`
	ValidUntil    time.Time    `json:"valid_until"`
	UsageLimit    *int         `json:"usage_limit,omitempty"`
	TimesUsed     int          `json:"times_used"`
	IsActive      bool         `json:"is_active"`
	CreatedAt     time.Time    `json:"created_at"`
}

// CouponRejection identifies why a coupon was refused.
type CouponRejection string

const (
	CouponInactive    CouponRejection = "inactive"
	CouponNotStarted  CouponRejection = "not_started"
	CouponExpired     CouponRejection = "expired"
	CouponExhausted   CouponRejection = "usage_limit_reached"
	CouponMinPurchase CouponRejection = "minimum_purchase_not_met"
)

// Validate checks the coupon against a cart total at a point in time.
// Checks run in a fixed order so callers get a stable rejection reason:
// active, window start, window end, usage limit, minimum purchase.
func (c *Coupon) Validate(now time.Time, cartTotal float64) (bool, CouponRejection) {
	if !c.IsActive {
		return false, CouponInactive
	}
	if now.Before(c.ValidFrom) {
		return false, CouponNotStarted
	}
	if now.After(c.ValidUntil) {
		return false, CouponExpired
	}
	if c.UsageLimit != nil && c.TimesUsed >= *c.UsageLimit {
		return false, CouponExhausted
	}
	if cartTotal < c.MinPurchase {
		return false, CouponMinPurchase
	}
	return true, ""
}

// Discount computes the discount amount for a cart total. Percentage
// discounts are capped by MaxDiscount when set; every discount is
// capped at the cart total so it never goes negative.
func (c *Coupon) Discount(cartTotal float64) float64 {
	var amount float64
	switch c.DiscountType {
	case DiscountPercentage:
		amount = cartTotal * (c.DiscountValue / 100)
		if c.MaxDiscount != nil && amount > *c.MaxDiscount {
			amount = *c.MaxDiscount
		}
	case DiscountFixed:
		amount = c.DiscountValue
	}
	if amount > cartTotal {
		amount = cartTotal
	}
	return amount
}

// CreateCouponRequest carries validated input for coupon creation.
type CreateCouponRequest struct {
	Code          string       `json:"code" validate:"required,max=50"`
	Description   string       `json:"description,omitempty"`
	DiscountType  DiscountType `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue float64      `json:"discount_value" validate:"gt=0"`
	MinPurchase   float64      `json:"minimum_purchase" validate:"gte=0"`
	MaxDiscount   *float64     `json:"maximum_discount,omitempty" validate:"omitempty,gt=0"`
	ValidFrom     time.Time    `json:"valid_from" validate:"required"`
	ValidUntil    time.Time    `json:"valid_until" validate:"required"`
	UsageLimit    *int         `json:"usage_limit,omitempty" validate:"omitempty,gt=0"`
}
