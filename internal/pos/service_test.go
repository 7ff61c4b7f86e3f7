package pos

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/catalog"
	"github.com/meridian-pos/meridian-pos/internal/customers"
)

// memoryRepo backs the service with maps and honors rollback by
// snapshotting state before each transaction.
type memoryRepo struct {
	products    map[int64]*catalog.Product
	coupons     map[string]*catalog.Coupon
	balances    map[int64]float64
	sales       map[int64]*Sale
	saleItems   map[int64][]SaleItem
	payments    map[int64][]Payment
	adjustments []catalog.InventoryAdjustment
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:  make(map[int64]*catalog.Product),
		coupons:   make(map[string]*catalog.Coupon),
		balances:  make(map[int64]float64),
		sales:     make(map[int64]*Sale),
		saleItems: make(map[int64][]SaleItem),
		payments:  make(map[int64][]Payment),
	}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) snapshot() *memoryRepo {
	cp := newMemoryRepo()
	cp.nextID = r.nextID
	for id, p := range r.products {
		v := *p
		cp.products[id] = &v
	}
	for code, c := range r.coupons {
		v := *c
		cp.coupons[code] = &v
	}
	for id, b := range r.balances {
		cp.balances[id] = b
	}
	for id, s := range r.sales {
		v := *s
		cp.sales[id] = &v
	}
	for id, items := range r.saleItems {
		cp.saleItems[id] = append([]SaleItem(nil), items...)
	}
	for id, ps := range r.payments {
		cp.payments[id] = append([]Payment(nil), ps...)
	}
	cp.adjustments = append([]catalog.InventoryAdjustment(nil), r.adjustments...)
	return cp
}

func (r *memoryRepo) restore(from *memoryRepo) {
	r.products = from.products
	r.coupons = from.coupons
	r.balances = from.balances
	r.sales = from.sales
	r.saleItems = from.saleItems
	r.payments = from.payments
	r.adjustments = from.adjustments
	r.nextID = from.nextID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	before := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(before)
		return err
	}
	return nil
}

func (r *memoryRepo) GetSale(ctx context.Context, id int64) (*Sale, error) {
	s, ok := r.sales[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	cp.Items = append([]SaleItem(nil), r.saleItems[id]...)
	cp.Payments = append([]Payment(nil), r.payments[id]...)
	return &cp, nil
}

func (r *memoryRepo) GetSaleByReference(ctx context.Context, reference string) (*Sale, error) {
	for id, s := range r.sales {
		if s.Reference == reference {
			return r.GetSale(ctx, id)
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRepo) ListSales(ctx context.Context, filter ListSalesRequest) ([]Sale, int, error) {
	var out []Sale
	for _, s := range r.sales {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, *s)
	}
	return out, len(out), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) InsertSale(ctx context.Context, s Sale) (int64, error) {
	s.ID = tx.repo.id()
	tx.repo.sales[s.ID] = &s
	return s.ID, nil
}

func (tx *memoryTx) InsertSaleItems(ctx context.Context, saleID int64, items []SaleItem) ([]SaleItem, error) {
	out := make([]SaleItem, 0, len(items))
	for _, item := range items {
		item.ID = tx.repo.id()
		item.SaleID = saleID
		out = append(out, item)
	}
	tx.repo.saleItems[saleID] = out
	return out, nil
}

func (tx *memoryTx) InsertPayments(ctx context.Context, saleID int64, payments []Payment) ([]Payment, error) {
	out := make([]Payment, 0, len(payments))
	for _, p := range payments {
		p.ID = tx.repo.id()
		p.SaleID = &saleID
		out = append(out, p)
	}
	tx.repo.payments[saleID] = out
	return out, nil
}

func (tx *memoryTx) UpdateSaleAmounts(ctx context.Context, s Sale) error {
	stored, ok := tx.repo.sales[s.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Subtotal = s.Subtotal
	stored.Tax = s.Tax
	stored.Discount = s.Discount
	stored.Total = s.Total
	stored.CouponCode = s.CouponCode
	return nil
}

func (tx *memoryTx) UpdateSalePaymentStatus(ctx context.Context, saleID int64, status PaymentStatus, amountPaid float64) error {
	s, ok := tx.repo.sales[saleID]
	if !ok {
		return ErrNotFound
	}
	s.PaymentStatus = status
	s.AmountPaid = amountPaid
	return nil
}

func (tx *memoryTx) MarkSaleCompleted(ctx context.Context, saleID int64, at time.Time) error {
	s, ok := tx.repo.sales[saleID]
	if !ok {
		return ErrNotFound
	}
	s.Status = SaleStatusCompleted
	s.CompletedAt = &at
	return nil
}

func (tx *memoryTx) MarkSaleVoided(ctx context.Context, saleID int64, actor, reason string, at time.Time) error {
	s, ok := tx.repo.sales[saleID]
	if !ok {
		return ErrNotFound
	}
	s.Status = SaleStatusVoided
	s.VoidedAt = &at
	s.VoidedBy = actor
	s.VoidReason = reason
	return nil
}

func (tx *memoryTx) GetSaleForUpdate(ctx context.Context, id int64) (*Sale, error) {
	s, ok := tx.repo.sales[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (tx *memoryTx) ListSaleItems(ctx context.Context, saleID int64) ([]SaleItem, error) {
	return append([]SaleItem(nil), tx.repo.saleItems[saleID]...), nil
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, id int64) (*catalog.Product, error) {
	p, ok := tx.repo.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (tx *memoryTx) UpdateProductStock(ctx context.Context, id int64, stock int) error {
	p, ok := tx.repo.products[id]
	if !ok {
		return catalog.ErrNotFound
	}
	p.Stock = stock
	return nil
}

func (tx *memoryTx) InsertAdjustment(ctx context.Context, adj catalog.InventoryAdjustment) error {
	tx.repo.adjustments = append(tx.repo.adjustments, adj)
	return nil
}

func (tx *memoryTx) GetCouponForUpdate(ctx context.Context, code string) (*catalog.Coupon, error) {
	c, ok := tx.repo.coupons[strings.ToUpper(code)]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (tx *memoryTx) IncrementCouponUsage(ctx context.Context, couponID int64) error {
	for _, c := range tx.repo.coupons {
		if c.ID == couponID {
			c.TimesUsed++
			return nil
		}
	}
	return catalog.ErrNotFound
}

func (tx *memoryTx) AddCustomerBalance(ctx context.Context, customerID int64, delta float64) (float64, error) {
	tx.repo.balances[customerID] += delta
	return tx.repo.balances[customerID], nil
}

type memoryCustomers struct {
	byID map[int64]*customers.Customer
}

func (m *memoryCustomers) Get(ctx context.Context, id int64) (*customers.Customer, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, customers.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memoryCustomers) GetOrCreateByPhone(ctx context.Context, phone, name, email string) (*customers.Customer, error) {
	for _, c := range m.byID {
		if c.Phone == phone {
			cp := *c
			return &cp, nil
		}
	}
	c := &customers.Customer{ID: int64(len(m.byID) + 1000), Name: name, Phone: phone, Email: email, Type: customers.TypeRetail, IsActive: true}
	m.byID[c.ID] = c
	return c, nil
}

func newTestService(repo *memoryRepo, cust *memoryCustomers) *Service {
	return NewService(repo, cust, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedProduct(repo *memoryRepo, p catalog.Product) *catalog.Product {
	p.ID = repo.id()
	repo.products[p.ID] = &p
	return &p
}

func retailCustomer(id int64) *customers.Customer {
	return &customers.Customer{ID: id, Name: "Ama", Type: customers.TypeRetail, IsActive: true}
}

func wholesaleCustomer(id int64) *customers.Customer {
	return &customers.Customer{ID: id, Name: "Depot Ltd", Type: customers.TypeWholesale, IsActive: true}
}

func TestCreateSaleRetailHappyPath(t *testing.T) {
	repo := newMemoryRepo()
	cust := &memoryCustomers{byID: map[int64]*customers.Customer{1: retailCustomer(1)}}
	svc := newTestService(repo, cust)
	ctx := context.Background()

	p := seedProduct(repo, catalog.Product{SKU: "COLA", Name: "Cola", SellPrice: 10, TaxRate: 0.15, Stock: 20, TrackStock: true, IsActive: true})
	custID := int64(1)

	sale, err := svc.CreateSale(ctx, CreateSaleRequest{
		CustomerID: &custID,
		Items:      []SaleItemInput{{ProductID: p.ID, Quantity: 2}},
		Payments:   []PaymentInput{{Amount: 23, Method: MethodCash}},
	})
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(sale.Reference, "SALE-"))
	require.Equal(t, SaleStatusCompleted, sale.Status)
	require.Equal(t, PaymentStatusPaid, sale.PaymentStatus)
	require.InDelta(t, 20, sale.Subtotal, 0.001)
	require.InDelta(t, 3, sale.Tax, 0.001)
	require.InDelta(t, 23, sale.Total, 0.001)
	require.NotNil(t, sale.CompletedAt)

	// Stock deducted with exactly one adjustment row per tracked line.
	require.Equal(t, 18, repo.products[p.ID].Stock)
	require.Len(t, repo.adjustments, 1)
	require.Equal(t, -2, repo.adjustments[0].QuantityChange)
	require.Equal(t, catalog.ReasonSale, repo.adjustments[0].Reason)
}

func TestCreateSaleRetailRejectsShortPayment(t *testing.T) {
	repo := newMemoryRepo()
	cust := &memoryCustomers{byID: map[int64]*customers.Customer{1: retailCustomer(1)}}
	svc := newTestService(repo, cust)

	p := seedProduct(repo, catalog.Product{SKU: "COLA", Name: "Cola", SellPrice: 80, TaxRate: 0, Stock: 5, TrackStock: true, IsActive: true})
	custID := int64(1)

	_, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		CustomerID: &custID,
		Items:      []SaleItemInput{{ProductID: p.ID, Quantity: 1}},
		Payments:   []PaymentInput{{Amount: 79.99, Method: MethodCash}},
	})
	require.ErrorIs(t, err, ErrInsufficientPayment)

	// Rejection leaves no trace: no sale, no stock change, no adjustments.
	require.Equal(t, 5, repo.products[p.ID].Stock)
	require.Empty(t, repo.adjustments)
	require.Empty(t, repo.sales)

	sale, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		CustomerID: &custID,
		Items:      []SaleItemInput{{ProductID: p.ID, Quantity: 1}},
		Payments:   []PaymentInput{{Amount: 80.00, Method: MethodCash}},
	})
	require.NoError(t, err)
	require.Equal(t, SaleStatusCompleted, sale.Status)
}

func TestCreateSaleWholesaleSettlement(t *testing.T) {
	repo := newMemoryRepo()
	cust := &memoryCustomers{byID: map[int64]*customers.Customer{7: wholesaleCustomer(7)}}
	svc := newTestService(repo, cust)
	custID := int64(7)

	p := seedProduct(repo, catalog.Product{SKU: "RICE", Name: "Rice 25kg", SellPrice: 100, TaxRate: 0, Stock: 50, TrackStock: true, IsActive: true})

	// Below the 50% minimum: rejected, no balance mutation.
	_, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		CustomerID: &custID,
		Items:      []SaleItemInput{{ProductID: p.ID, Quantity: 1}},
		Payments:   []PaymentInput{{Amount: 40, Method: MethodCash}},
	})
	require.ErrorIs(t, err, ErrInsufficientPayment)
	require.InDelta(t, 0, repo.balances[custID], 0.0001)
	require.Equal(t, 50, repo.products[p.ID].Stock)

	// Exactly the minimum: accepted as partial, shortfall goes on account.
	sale, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		CustomerID: &custID,
		Items:      []SaleItemInput{{ProductID: p.ID, Quantity: 1}},
		Payments:   []PaymentInput{{Amount: 50, Method: MethodCash}},
	})
	require.NoError(t, err)
	require.Equal(t, PaymentStatusPartial, sale.PaymentStatus)
	require.Equal(t, SaleStatusCompleted, sale.Status)
	require.InDelta(t, 50, repo.balances[custID], 0.0001)
	require.Equal(t, 49, repo.products[p.ID].Stock)
}

func TestCreateSaleWholesaleFullPaymentNoCredit(t *testing.T) {
	repo := newMemoryRepo()
	cust := &memoryCustomers{byID: map[int64]*customers.Customer{7: wholesaleCustomer(7)}}
	svc := newTestService(repo, cust)
	custID := int64(7)

	p := seedProduct(repo, catalog.Product{SKU: "RICE", Name: "Rice 25kg", SellPrice: 100, TaxRate: 0, Stock: 50, TrackStock: true, IsActive: true})

	sale, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		CustomerID: &custID,
		Items:      []SaleItemInput{{ProductID: p.ID, Quantity: 1}},
		Payments:   []PaymentInput{{Amount: 100, Method: MethodCash}},
	})
	require.NoError(t, err)
	require.Equal(t, PaymentStatusPaid, sale.PaymentStatus)
	require.InDelta(t, 0, repo.balances[custID], 0.0001)
}

func TestCreateSaleWholesalePricing(t *testing.T) {
	repo := newMemoryRepo()
	cust := &memoryCustomers{byID: map[int64]*customers.Customer{7: wholesaleCustomer(7)}}
	svc := newTestService(repo, cust)
	custID := int64(7)

	wholesale := 8.0
	p := seedProduct(repo, catalog.Product{
		SKU: "COLA", Name: "Cola", SellPrice: 10, WholesalePrice: &wholesale,
		MinWholesaleQty: 10, TaxRate: 0, Stock: 100, TrackStock: true, IsActive: true,
	})

	sale, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		CustomerID: &custID,
		Items:      []SaleItemInput{{ProductID: p.ID, Quantity: 10}},
		Payments:   []PaymentInput{{Amount: 80, Method: MethodCash}},
	})
	require.NoError(t, err)
	require.InDelta(t, 8, sale.Items[0].UnitPrice, 0.0001)
	require.Equal(t, "wholesale", sale.Items[0].PriceType)
	require.InDelta(t, 80, sale.Total, 0.0001)
}

func TestCreateSaleCouponRedemption(t *testing.T) {
	repo := newMemoryRepo()
	cust := &memoryCustomers{byID: map[int64]*customers.Customer{1: retailCustomer(1)}}
	svc := newTestService(repo, cust)
	custID := int64(1)

	p := seedProduct(repo, catalog.Product{SKU: "COLA", Name: "Cola", SellPrice: 50, TaxRate: 0, Stock: 10, TrackStock: true, IsActive: true})
	maxDiscount := 5.0
	repo.coupons["SAVE10"] = &catalog.Coupon{
		ID: 99, Code: "SAVE10", DiscountType: catalog.DiscountPercentage,
		DiscountValue: 10, MaxDiscount: &maxDiscount,
		ValidFrom: time.Now().Add(-time.Hour), ValidUntil: time.Now().Add(time.Hour),
		IsActive: true,
	}

	sale, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		CustomerID: &custID,
		Items:      []SaleItemInput{{ProductID: p.ID, Quantity: 2}},
		Payments:   []PaymentInput{{Amount: 95, Method: MethodCash}},
		CouponCode: "save10",
	})
	require.NoError(t, err)
	// 10% of 100 is 10, capped by max_discount at 5.
	require.InDelta(t, 5, sale.Discount, 0.0001)
	require.InDelta(t, 95, sale.Total, 0.0001)
	require.Equal(t, "SAVE10", sale.CouponCode)
	require.Equal(t, 1, repo.coupons["SAVE10"].TimesUsed)
}

func TestCreateSaleCouponRejectionRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	cust := &memoryCustomers{byID: map[int64]*customers.Customer{1: retailCustomer(1)}}
	svc := newTestService(repo, cust)
	custID := int64(1)

	p := seedProduct(repo, catalog.Product{SKU: "COLA", Name: "Cola", SellPrice: 50, TaxRate: 0, Stock: 10, TrackStock: true, IsActive: true})
	repo.coupons["BIG50"] = &catalog.Coupon{
		ID: 99, Code: "BIG50", DiscountType: catalog.DiscountFixed, DiscountValue: 50,
		MinPurchase: 500,
		ValidFrom:   time.Now().Add(-time.Hour), ValidUntil: time.Now().Add(time.Hour),
		IsActive: true,
	}

	_, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		CustomerID: &custID,
		Items:      []SaleItemInput{{ProductID: p.ID, Quantity: 1}},
		Payments:   []PaymentInput{{Amount: 50, Method: MethodCash}},
		CouponCode: "BIG50",
	})
	require.ErrorIs(t, err, ErrCouponRejected)
	require.Equal(t, 0, repo.coupons["BIG50"].TimesUsed)
	require.Equal(t, 10, repo.products[p.ID].Stock)
	require.Empty(t, repo.sales)
}

func TestCreateSaleRejectsUnsellableProduct(t *testing.T) {
	repo := newMemoryRepo()
	cust := &memoryCustomers{byID: map[int64]*customers.Customer{1: retailCustomer(1)}}
	svc := newTestService(repo, cust)
	custID := int64(1)

	p := seedProduct(repo, catalog.Product{SKU: "COLA", Name: "Cola", SellPrice: 10, Stock: 1, TrackStock: true, IsActive: true})

	_, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		CustomerID: &custID,
		Items:      []SaleItemInput{{ProductID: p.ID, Quantity: 2}},
		Payments:   []PaymentInput{{Amount: 20, Method: MethodCash}},
	})
	require.ErrorIs(t, err, ErrCannotSell)
	require.Equal(t, 1, repo.products[p.ID].Stock)
}

func TestCreateSaleDuplicateLinesDeductCumulatively(t *testing.T) {
	repo := newMemoryRepo()
	cust := &memoryCustomers{byID: map[int64]*customers.Customer{1: retailCustomer(1)}}
	svc := newTestService(repo, cust)
	ctx := context.Background()
	custID := int64(1)

	p := seedProduct(repo, catalog.Product{SKU: "COLA", Name: "Cola", SellPrice: 10, TaxRate: 0, Stock: 10, TrackStock: true, IsActive: true})

	sale, err := svc.CreateSale(ctx, CreateSaleRequest{
		CustomerID: &custID,
		Items: []SaleItemInput{
			{ProductID: p.ID, Quantity: 3},
			{ProductID: p.ID, Quantity: 3},
		},
		Payments: []PaymentInput{{Amount: 60, Method: MethodCash}},
	})
	require.NoError(t, err)
	require.Equal(t, SaleStatusCompleted, sale.Status)

	// Both lines hit the shelf: 10 - 3 - 3.
	require.Equal(t, 4, repo.products[p.ID].Stock)
	require.Len(t, repo.adjustments, 2)
	require.Equal(t, 10, repo.adjustments[0].OldStock)
	require.Equal(t, 7, repo.adjustments[0].NewStock)
	require.Equal(t, 7, repo.adjustments[1].OldStock)
	require.Equal(t, 4, repo.adjustments[1].NewStock)

	_, err = svc.VoidSale(ctx, sale.ID, "keyed twice")
	require.NoError(t, err)
	require.Equal(t, 10, repo.products[p.ID].Stock)
}

func TestCreateSaleDuplicateLinesCannotOversell(t *testing.T) {
	repo := newMemoryRepo()
	cust := &memoryCustomers{byID: map[int64]*customers.Customer{1: retailCustomer(1)}}
	svc := newTestService(repo, cust)
	custID := int64(1)

	p := seedProduct(repo, catalog.Product{SKU: "COLA", Name: "Cola", SellPrice: 10, TaxRate: 0, Stock: 5, TrackStock: true, IsActive: true})

	// Each line fits on its own, but together they exceed stock.
	_, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		CustomerID: &custID,
		Items: []SaleItemInput{
			{ProductID: p.ID, Quantity: 3},
			{ProductID: p.ID, Quantity: 3},
		},
		Payments: []PaymentInput{{Amount: 60, Method: MethodCash}},
	})
	require.ErrorIs(t, err, ErrCannotSell)
	require.Equal(t, 5, repo.products[p.ID].Stock)
	require.Empty(t, repo.sales)
}

func TestVoidCompletedSaleRestoresStock(t *testing.T) {
	repo := newMemoryRepo()
	cust := &memoryCustomers{byID: map[int64]*customers.Customer{1: retailCustomer(1)}}
	svc := newTestService(repo, cust)
	ctx := context.Background()
	custID := int64(1)

	p := seedProduct(repo, catalog.Product{SKU: "COLA", Name: "Cola", SellPrice: 10, TaxRate: 0, Stock: 20, TrackStock: true, IsActive: true})

	sale, err := svc.CreateSale(ctx, CreateSaleRequest{
		CustomerID: &custID,
		Items:      []SaleItemInput{{ProductID: p.ID, Quantity: 3}},
		Payments:   []PaymentInput{{Amount: 30, Method: MethodCash}},
	})
	require.NoError(t, err)
	require.Equal(t, 17, repo.products[p.ID].Stock)

	voided, err := svc.VoidSale(ctx, sale.ID, "customer changed mind")
	require.NoError(t, err)
	require.Equal(t, SaleStatusVoided, voided.Status)
	require.Equal(t, "customer changed mind", voided.VoidReason)

	// Net stock unchanged after complete then void.
	require.Equal(t, 20, repo.products[p.ID].Stock)
	require.Len(t, repo.adjustments, 2)
	require.Equal(t, catalog.ReasonReturn, repo.adjustments[1].Reason)
}

func TestVoidPendingSaleDoesNotRestoreStock(t *testing.T) {
	repo := newMemoryRepo()
	cust := &memoryCustomers{byID: map[int64]*customers.Customer{}}
	svc := newTestService(repo, cust)
	ctx := context.Background()

	p := seedProduct(repo, catalog.Product{SKU: "COLA", Name: "Cola", Stock: 20, TrackStock: true, IsActive: true})

	// A pending sale that never deducted stock.
	saleID := repo.id()
	repo.sales[saleID] = &Sale{ID: saleID, Reference: "SALE-TEST", Status: SaleStatusPending}
	repo.saleItems[saleID] = []SaleItem{{SaleID: saleID, ProductID: p.ID, Quantity: 5}}

	voided, err := svc.VoidSale(ctx, saleID, "abandoned")
	require.NoError(t, err)
	require.Equal(t, SaleStatusVoided, voided.Status)
	require.Equal(t, 20, repo.products[p.ID].Stock)
	require.Empty(t, repo.adjustments)
}

func TestVoidTwiceFails(t *testing.T) {
	repo := newMemoryRepo()
	cust := &memoryCustomers{byID: map[int64]*customers.Customer{1: retailCustomer(1)}}
	svc := newTestService(repo, cust)
	ctx := context.Background()
	custID := int64(1)

	p := seedProduct(repo, catalog.Product{SKU: "COLA", Name: "Cola", SellPrice: 10, TaxRate: 0, Stock: 20, TrackStock: true, IsActive: true})

	sale, err := svc.CreateSale(ctx, CreateSaleRequest{
		CustomerID: &custID,
		Items:      []SaleItemInput{{ProductID: p.ID, Quantity: 1}},
		Payments:   []PaymentInput{{Amount: 10, Method: MethodCash}},
	})
	require.NoError(t, err)

	_, err = svc.VoidSale(ctx, sale.ID, "first")
	require.NoError(t, err)
	require.Equal(t, 20, repo.products[p.ID].Stock)

	_, err = svc.VoidSale(ctx, sale.ID, "second")
	require.ErrorIs(t, err, ErrAlreadyVoided)
	// No second restoration.
	require.Equal(t, 20, repo.products[p.ID].Stock)
}

func TestCalculateTotals(t *testing.T) {
	s := Sale{
		Discount: 2,
		Items: []SaleItem{
			{UnitPrice: 10, Quantity: 2, Discount: 1, TaxRate: 0.15, LineTotal: 19},
			{UnitPrice: 5, Quantity: 1, TaxRate: 0, LineTotal: 5},
		},
	}
	s.CalculateTotals()
	require.InDelta(t, 24, s.Subtotal, 0.0001)
	require.InDelta(t, 2.85, s.Tax, 0.0001) // (20-1)*0.15
	require.InDelta(t, 24.85, s.Total, 0.0001)
}

func TestCalculateTotalsClampsOversizedDiscount(t *testing.T) {
	s := Sale{
		Discount: 50,
		Items:    []SaleItem{{UnitPrice: 10, Quantity: 1, TaxRate: 0, LineTotal: 10}},
	}
	s.CalculateTotals()
	require.InDelta(t, 10, s.Subtotal, 0.0001)
	require.InDelta(t, 0, s.Total, 0.0001)
}

func TestCreateSaleAnonymousRetail(t *testing.T) {
	repo := newMemoryRepo()
	cust := &memoryCustomers{byID: map[int64]*customers.Customer{}}
	svc := newTestService(repo, cust)

	p := seedProduct(repo, catalog.Product{SKU: "COLA", Name: "Cola", SellPrice: 10, TaxRate: 0, Stock: 5, TrackStock: true, IsActive: true})

	sale, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		Items:    []SaleItemInput{{ProductID: p.ID, Quantity: 1}},
		Payments: []PaymentInput{{Amount: 10, Method: MethodCash}},
	})
	require.NoError(t, err)
	require.Nil(t, sale.CustomerID)
	require.Equal(t, PaymentStatusPaid, sale.PaymentStatus)
}

func TestSaleMethodMixed(t *testing.T) {
	require.Equal(t, MethodMixed, saleMethod([]PaymentInput{{Method: MethodCash}, {Method: MethodCard}}))
	require.Equal(t, MethodCard, saleMethod([]PaymentInput{{Method: MethodCard}}))
}
