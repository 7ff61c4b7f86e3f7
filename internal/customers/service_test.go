package customers

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	customers map[int64]*Customer
	notes     []Note
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{customers: make(map[int64]*Customer)}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) Create(ctx context.Context, c Customer) (*Customer, error) {
	c.ID = r.id()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.customers[c.ID] = &c
	return &c, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (*Customer, error) {
	c, ok := r.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memoryRepo) GetByCustomerID(ctx context.Context, customerID string) (*Customer, error) {
	for _, c := range r.customers {
		if c.CustomerID == customerID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRepo) GetByPhone(ctx context.Context, phone string) (*Customer, error) {
	for _, c := range r.customers {
		if c.Phone == phone {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, filter ListCustomersRequest) ([]Customer, int, error) {
	var out []Customer
	for _, c := range r.customers {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Update(ctx context.Context, c Customer) error {
	if _, ok := r.customers[c.ID]; !ok {
		return ErrNotFound
	}
	r.customers[c.ID] = &c
	return nil
}

func (r *memoryRepo) UpdateLoyalty(ctx context.Context, id int64, points int, tier LoyaltyTier) error {
	c, ok := r.customers[id]
	if !ok {
		return ErrNotFound
	}
	c.LoyaltyPoints = points
	c.LoyaltyTier = tier
	return nil
}

func (r *memoryRepo) AddBalance(ctx context.Context, id int64, delta float64) (float64, error) {
	c, ok := r.customers[id]
	if !ok {
		return 0, ErrNotFound
	}
	c.CurrentBalance += delta
	return c.CurrentBalance, nil
}

func (r *memoryRepo) CreateNote(ctx context.Context, n Note) (*Note, error) {
	n.ID = r.id()
	n.CreatedAt = time.Now()
	r.notes = append(r.notes, n)
	return &n, nil
}

func (r *memoryRepo) ListNotes(ctx context.Context, customerID int64) ([]Note, error) {
	var out []Note
	for _, n := range r.notes {
		if n.CustomerID == customerID {
			out = append(out, n)
		}
	}
	return out, nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateGeneratesCustomerID(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	c, err := svc.Create(context.Background(), CreateCustomerRequest{Name: "Ama Mensah"})
	require.NoError(t, err)

	prefix := "CUST-" + time.Now().Format("200601") + "-"
	require.True(t, strings.HasPrefix(c.CustomerID, prefix), c.CustomerID)
	require.Len(t, c.CustomerID, len(prefix)+6)
	require.Equal(t, c.CustomerID, strings.ToUpper(c.CustomerID))
	require.Equal(t, TypeRetail, c.Type)
	require.Equal(t, TierBronze, c.LoyaltyTier)
	require.True(t, c.IsActive)
}

func TestTierForPoints(t *testing.T) {
	require.Equal(t, TierBronze, TierForPoints(0))
	require.Equal(t, TierBronze, TierForPoints(1999))
	require.Equal(t, TierSilver, TierForPoints(2000))
	require.Equal(t, TierGold, TierForPoints(5000))
	require.Equal(t, TierPlatinum, TierForPoints(10000))
}

func TestLoyaltyTierFollowsPoints(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateCustomerRequest{Name: "Kofi"})
	require.NoError(t, err)

	c, err = svc.AddLoyaltyPoints(ctx, c.ID, 2500)
	require.NoError(t, err)
	require.Equal(t, TierSilver, c.LoyaltyTier)

	c, err = svc.AddLoyaltyPoints(ctx, c.ID, 8000)
	require.NoError(t, err)
	require.Equal(t, TierPlatinum, c.LoyaltyTier)

	// A big redemption demotes the tier.
	c, err = svc.RedeemLoyaltyPoints(ctx, c.ID, 9000)
	require.NoError(t, err)
	require.Equal(t, 1500, c.LoyaltyPoints)
	require.Equal(t, TierBronze, c.LoyaltyTier)
}

func TestRedeemRejectsOverdraw(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateCustomerRequest{Name: "Kofi"})
	require.NoError(t, err)

	_, err = svc.RedeemLoyaltyPoints(ctx, c.ID, 10)
	require.ErrorIs(t, err, ErrInsufficientPoints)
}

func TestCreditLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateCustomerRequest{Name: "Wholesale Ltd", Type: TypeWholesale})
	require.NoError(t, err)

	balance, err := svc.AddCredit(ctx, c.ID, 150, "settlement shortfall")
	require.NoError(t, err)
	require.InDelta(t, 150, balance, 0.0001)

	balance, err = svc.SettleCredit(ctx, c.ID, 100, "invoice payment")
	require.NoError(t, err)
	require.InDelta(t, 50, balance, 0.0001)

	_, err = svc.AddCredit(ctx, c.ID, -5, "bad")
	require.Error(t, err)

	// Settling more than the outstanding credit stops at zero.
	balance, err = svc.SettleCredit(ctx, c.ID, 500, "overshoot")
	require.NoError(t, err)
	require.InDelta(t, 0, balance, 0.0001)
	require.InDelta(t, 0, repo.customers[c.ID].CurrentBalance, 0.0001)
}

func TestGetOrCreateByPhone(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.GetOrCreateByPhone(ctx, "0241234567", "Abena", "")
	require.NoError(t, err)
	require.Equal(t, "Abena", first.Name)

	again, err := svc.GetOrCreateByPhone(ctx, "0241234567", "", "")
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	anon, err := svc.GetOrCreateByPhone(ctx, "0209999999", "", "")
	require.NoError(t, err)
	require.Equal(t, "Walk-in 0209999999", anon.Name)
}

func TestGetOrCreateByPhoneRefreshesDetails(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	walkIn, err := svc.GetOrCreateByPhone(ctx, "0241234567", "", "")
	require.NoError(t, err)
	require.Equal(t, "Walk-in 0241234567", walkIn.Name)

	// The placeholder gets replaced once the cashier has a name, and a
	// later email lands on the same record.
	named, err := svc.GetOrCreateByPhone(ctx, "0241234567", "Abena Owusu", "")
	require.NoError(t, err)
	require.Equal(t, walkIn.ID, named.ID)
	require.Equal(t, "Abena Owusu", named.Name)

	withEmail, err := svc.GetOrCreateByPhone(ctx, "0241234567", "", "abena@example.com")
	require.NoError(t, err)
	require.Equal(t, "Abena Owusu", withEmail.Name)
	require.Equal(t, "abena@example.com", withEmail.Email)

	stored, err := svc.Get(ctx, walkIn.ID)
	require.NoError(t, err)
	require.Equal(t, "Abena Owusu", stored.Name)
	require.Equal(t, "abena@example.com", stored.Email)
}

func TestPricingProfile(t *testing.T) {
	c := Customer{Type: TypeWholesale, DiscountPct: 7.5}
	profile := c.PricingProfile()
	require.True(t, profile.Wholesale)
	require.InDelta(t, 7.5, profile.DiscountPct, 0.0001)

	c.Type = TypeVIP
	require.False(t, c.PricingProfile().Wholesale)
}

func TestTagList(t *testing.T) {
	c := Customer{Tags: "VIP, Wholesale , Regular"}
	require.Equal(t, []string{"VIP", "Wholesale", "Regular"}, c.TagList())
	require.Nil(t, (&Customer{}).TagList())
}
