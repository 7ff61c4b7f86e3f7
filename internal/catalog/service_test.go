package catalog

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

type memoryRepo struct {
	products    map[int64]*Product
	categories  map[int64]*Category
	coupons     map[string]*Coupon
	adjustments []InventoryAdjustment
	nextID      int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:   make(map[int64]*Product),
		categories: make(map[int64]*Category),
		coupons:    make(map[string]*Coupon),
	}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	for _, existing := range r.products {
		if existing.SKU == p.SKU {
			return nil, ErrDuplicate
		}
	}
	p.ID = r.id()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.products[p.ID] = &p
	return &p, nil
}

func (r *memoryRepo) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepo) GetProductBySKU(ctx context.Context, sku string) (*Product, error) {
	for _, p := range r.products {
		if p.SKU == sku {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRepo) GetProductByBarcode(ctx context.Context, barcode string) (*Product, error) {
	for _, p := range r.products {
		if p.Barcode != nil && *p.Barcode == barcode {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRepo) ListProducts(ctx context.Context, filter ListProductsRequest) ([]Product, int, error) {
	var out []Product
	for _, p := range r.products {
		if filter.LowStock && !p.IsLowStock() {
			continue
		}
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (r *memoryRepo) UpdateProduct(ctx context.Context, p Product) error {
	if _, ok := r.products[p.ID]; !ok {
		return ErrNotFound
	}
	r.products[p.ID] = &p
	return nil
}

func (r *memoryRepo) ListLowStock(ctx context.Context) ([]Product, error) {
	var out []Product
	for _, p := range r.products {
		if p.IsActive && p.IsLowStock() {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListAdjustments(ctx context.Context, productID int64, limit int) ([]InventoryAdjustment, error) {
	var out []InventoryAdjustment
	for _, a := range r.adjustments {
		if a.ProductID == productID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) CreateCategory(ctx context.Context, c Category) (*Category, error) {
	c.ID = r.id()
	r.categories[c.ID] = &c
	return &c, nil
}

func (r *memoryRepo) GetCategory(ctx context.Context, id int64) (*Category, error) {
	c, ok := r.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (r *memoryRepo) ListCategories(ctx context.Context, activeOnly bool) ([]Category, error) {
	var out []Category
	for _, c := range r.categories {
		out = append(out, *c)
	}
	return out, nil
}

func (r *memoryRepo) CreateCoupon(ctx context.Context, c Coupon) (*Coupon, error) {
	code := strings.ToUpper(c.Code)
	if _, ok := r.coupons[code]; ok {
		return nil, ErrDuplicate
	}
	c.ID = r.id()
	c.Code = code
	r.coupons[code] = &c
	return &c, nil
}

func (r *memoryRepo) GetCouponByCode(ctx context.Context, code string) (*Coupon, error) {
	c, ok := r.coupons[strings.ToUpper(code)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memoryRepo) ListCoupons(ctx context.Context, activeOnly bool) ([]Coupon, error) {
	var out []Coupon
	for _, c := range r.coupons {
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (r *memoryRepo) DeactivateCoupon(ctx context.Context, id int64) error {
	for _, c := range r.coupons {
		if c.ID == id {
			c.IsActive = false
			return nil
		}
	}
	return ErrNotFound
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, id int64) (*Product, error) {
	return tx.repo.GetProduct(ctx, id)
}

func (tx *memoryTx) UpdateProductStock(ctx context.Context, id int64, stock int) error {
	p, ok := tx.repo.products[id]
	if !ok {
		return ErrNotFound
	}
	p.Stock = stock
	return nil
}

func (tx *memoryTx) InsertAdjustment(ctx context.Context, adj InventoryAdjustment) (int64, error) {
	adj.ID = tx.repo.id()
	tx.repo.adjustments = append(tx.repo.adjustments, adj)
	return adj.ID, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, testLogger(), shared.DefaultSettings())
}

func seedProduct(t *testing.T, repo *memoryRepo, p Product) *Product {
	t.Helper()
	if p.Unit == "" {
		p.Unit = "piece"
	}
	created, err := repo.CreateProduct(context.Background(), p)
	require.NoError(t, err)
	return created
}

func TestCreateProductAppliesDefaults(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	cat, err := repo.CreateCategory(ctx, Category{Name: "Drinks"})
	require.NoError(t, err)

	p, err := svc.CreateProduct(ctx, CreateProductRequest{
		SKU:        "SKU-1",
		Name:       "Cola",
		CategoryID: cat.ID,
		CostPrice:  2,
		SellPrice:  3,
		Stock:      50,
	})
	require.NoError(t, err)
	require.InDelta(t, 0.15, p.TaxRate, 0.0001)
	require.Equal(t, 10, p.LowStockThreshold)
	require.Equal(t, "piece", p.Unit)
	require.True(t, p.IsActive)
	require.True(t, p.TrackStock)
}

func TestCreateProductUnknownCategory(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.CreateProduct(context.Background(), CreateProductRequest{
		SKU: "SKU-1", Name: "Cola", CategoryID: 99,
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAdjustStockWritesAuditRecord(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := shared.ContextWithActor(context.Background(), shared.Actor{Name: "ama", Role: shared.RoleManager})

	p := seedProduct(t, repo, Product{SKU: "SKU-1", Name: "Cola", Stock: 20, TrackStock: true, IsActive: true})

	adj, err := svc.AdjustStock(ctx, AdjustStockInput{
		ProductID: p.ID,
		Delta:     -5,
		Reason:    ReasonDamage,
		Notes:     "broken crate",
	})
	require.NoError(t, err)
	require.Equal(t, 20, adj.OldStock)
	require.Equal(t, 15, adj.NewStock)
	require.Equal(t, -5, adj.QuantityChange)
	require.Equal(t, "ama", adj.PerformedBy)

	got, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 15, got.Stock)
	require.Len(t, repo.adjustments, 1)
}

func TestAdjustStockRejectsNegativeResult(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	p := seedProduct(t, repo, Product{SKU: "SKU-1", Name: "Cola", Stock: 3, TrackStock: true, IsActive: true})

	_, err := svc.AdjustStock(context.Background(), AdjustStockInput{
		ProductID: p.ID,
		Delta:     -4,
		Reason:    ReasonSale,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	got, err := repo.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Stock)
	require.Empty(t, repo.adjustments)
}

func TestAdjustStockUntrackedMayGoNegative(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	p := seedProduct(t, repo, Product{SKU: "SRV-1", Name: "Delivery fee", Stock: 0, TrackStock: false, IsActive: true})

	adj, err := svc.AdjustStock(context.Background(), AdjustStockInput{
		ProductID: p.ID,
		Delta:     -2,
		Reason:    ReasonCorrection,
	})
	require.NoError(t, err)
	require.Equal(t, -2, adj.NewStock)
}

func TestAdjustStockInvalidReason(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	p := seedProduct(t, repo, Product{SKU: "SKU-1", Name: "Cola", Stock: 3, TrackStock: true, IsActive: true})

	_, err := svc.AdjustStock(context.Background(), AdjustStockInput{
		ProductID: p.ID,
		Delta:     1,
		Reason:    "shrinkage",
	})
	require.ErrorIs(t, err, ErrInvalidReason)
}

func TestLookupProductPrefersBarcode(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	barcode := "12345"
	seedProduct(t, repo, Product{SKU: "SKU-1", Barcode: &barcode, Name: "Cola", IsActive: true})
	bySKU := seedProduct(t, repo, Product{SKU: "12345", Name: "Decoy", IsActive: true})

	got, err := svc.LookupProduct(ctx, "12345")
	require.NoError(t, err)
	require.Equal(t, "Cola", got.Name)
	require.NotEqual(t, bySKU.ID, got.ID)

	got, err = svc.LookupProduct(ctx, "SKU-1")
	require.NoError(t, err)
	require.Equal(t, "Cola", got.Name)
}

func TestCanSell(t *testing.T) {
	p := Product{IsActive: true, TrackStock: true, Stock: 5}
	require.True(t, p.CanSell(5))
	require.False(t, p.CanSell(6))

	p.TrackStock = false
	require.True(t, p.CanSell(100))

	p.IsActive = false
	require.False(t, p.CanSell(1))
}

func TestPriceForWholesaleTierAndDiscount(t *testing.T) {
	wholesale := 8.0
	p := Product{SellPrice: 10, WholesalePrice: &wholesale, MinWholesaleQty: 12}

	price, label := p.PriceFor(PricingProfile{}, 1)
	require.InDelta(t, 10, price, 0.0001)
	require.Equal(t, "retail", label)

	// Wholesale customer below the minimum quantity pays retail.
	price, label = p.PriceFor(PricingProfile{Wholesale: true}, 11)
	require.InDelta(t, 10, price, 0.0001)
	require.Equal(t, "retail", label)

	price, label = p.PriceFor(PricingProfile{Wholesale: true}, 12)
	require.InDelta(t, 8, price, 0.0001)
	require.Equal(t, "wholesale", label)

	// Percentage discount stacks multiplicatively on the tier price.
	price, label = p.PriceFor(PricingProfile{Wholesale: true, DiscountPct: 10}, 12)
	require.InDelta(t, 7.2, price, 0.0001)
	require.Equal(t, "wholesale +10% discount", label)

	price, label = p.PriceFor(PricingProfile{DiscountPct: 5}, 1)
	require.InDelta(t, 9.5, price, 0.0001)
	require.Equal(t, "retail +5% discount", label)
}

func TestPriceForIgnoresUnsetWholesalePrice(t *testing.T) {
	p := Product{SellPrice: 10, MinWholesaleQty: 1}
	price, label := p.PriceFor(PricingProfile{Wholesale: true}, 10)
	require.InDelta(t, 10, price, 0.0001)
	require.Equal(t, "retail", label)
}
