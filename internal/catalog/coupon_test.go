package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validCoupon() Coupon {
	return Coupon{
		Code:          "SAVE10",
		DiscountType:  DiscountPercentage,
		DiscountValue: 10,
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidUntil:    time.Now().Add(time.Hour),
		IsActive:      true,
	}
}

func TestCouponValidateOrdering(t *testing.T) {
	now := time.Now()

	c := validCoupon()
	c.IsActive = false
	// Inactive wins even when the window is also wrong.
	c.ValidUntil = now.Add(-time.Minute)
	ok, reason := c.Validate(now, 100)
	require.False(t, ok)
	require.Equal(t, CouponInactive, reason)

	c = validCoupon()
	c.ValidFrom = now.Add(time.Minute)
	ok, reason = c.Validate(now, 100)
	require.False(t, ok)
	require.Equal(t, CouponNotStarted, reason)

	c = validCoupon()
	c.ValidUntil = now.Add(-time.Minute)
	ok, reason = c.Validate(now, 100)
	require.False(t, ok)
	require.Equal(t, CouponExpired, reason)

	limit := 5
	c = validCoupon()
	c.UsageLimit = &limit
	c.TimesUsed = 5
	ok, reason = c.Validate(now, 100)
	require.False(t, ok)
	require.Equal(t, CouponExhausted, reason)

	c = validCoupon()
	c.MinPurchase = 200
	ok, reason = c.Validate(now, 100)
	require.False(t, ok)
	require.Equal(t, CouponMinPurchase, reason)

	c = validCoupon()
	ok, reason = c.Validate(now, 100)
	require.True(t, ok)
	require.Empty(t, reason)
}

func TestCouponDiscountPercentage(t *testing.T) {
	c := validCoupon()
	require.InDelta(t, 10, c.Discount(100), 0.0001)

	maxDiscount := 5.0
	c.MaxDiscount = &maxDiscount
	require.InDelta(t, 5, c.Discount(100), 0.0001)
}

func TestCouponDiscountFixed(t *testing.T) {
	c := validCoupon()
	c.DiscountType = DiscountFixed
	c.DiscountValue = 15

	require.InDelta(t, 15, c.Discount(100), 0.0001)

	// Fixed discounts never exceed the cart total.
	require.InDelta(t, 8, c.Discount(8), 0.0001)
}

func TestCheckCouponService(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := repo.CreateCoupon(ctx, validCoupon())
	require.NoError(t, err)

	// Lookup is case-insensitive.
	coupon, discount, err := svc.CheckCoupon(ctx, "save10", 50)
	require.NoError(t, err)
	require.Equal(t, "SAVE10", coupon.Code)
	require.InDelta(t, 5, discount, 0.0001)

	_, _, err = svc.CheckCoupon(ctx, "MISSING", 50)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCheckCouponRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	c := validCoupon()
	c.MinPurchase = 100
	_, err := repo.CreateCoupon(ctx, c)
	require.NoError(t, err)

	_, _, err = svc.CheckCoupon(ctx, "SAVE10", 50)
	require.ErrorIs(t, err, ErrCouponRejected)
}

func TestCreateCouponValidatesWindow(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.CreateCoupon(context.Background(), CreateCouponRequest{
		Code:          "BAD",
		DiscountType:  DiscountFixed,
		DiscountValue: 5,
		ValidFrom:     time.Now(),
		ValidUntil:    time.Now().Add(-time.Hour),
	})
	require.Error(t, err)
}
