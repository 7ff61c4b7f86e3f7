package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// ErrInsufficientStock indicates a sale or adjustment would drive stock negative.
var ErrInsufficientStock = fmt.Errorf("catalog: insufficient stock: %w", httpx.ErrBusinessRule)

// ErrInactiveProduct indicates the product is not available for sale.
var ErrInactiveProduct = fmt.Errorf("catalog: product inactive: %w", httpx.ErrBusinessRule)

// ErrInvalidReason indicates an unknown adjustment reason.
var ErrInvalidReason = fmt.Errorf("catalog: invalid adjustment reason: %w", httpx.ErrValidation)

// ErrCouponRejected wraps a coupon validation failure.
var ErrCouponRejected = fmt.Errorf("catalog: coupon rejected: %w", httpx.ErrBusinessRule)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateProduct(ctx context.Context, p Product) (*Product, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*Product, error)
	ListProducts(ctx context.Context, filter ListProductsRequest) ([]Product, int, error)
	UpdateProduct(ctx context.Context, p Product) error
	ListLowStock(ctx context.Context) ([]Product, error)
	ListAdjustments(ctx context.Context, productID int64, limit int) ([]InventoryAdjustment, error)
	CreateCategory(ctx context.Context, c Category) (*Category, error)
	GetCategory(ctx context.Context, id int64) (*Category, error)
	ListCategories(ctx context.Context, activeOnly bool) ([]Category, error)
	CreateCoupon(ctx context.Context, c Coupon) (*Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (*Coupon, error)
	ListCoupons(ctx context.Context, activeOnly bool) ([]Coupon, error)
	DeactivateCoupon(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates catalog operations.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	logger   *slog.Logger
	settings shared.Settings
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger, settings shared.Settings) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, settings: settings, now: time.Now}
}

// CreateProduct validates and stores a new product.
func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error) {
	if _, err := s.repo.GetCategory(ctx, req.CategoryID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("catalog: category %d: %w", req.CategoryID, ErrNotFound)
		}
		return nil, err
	}

	taxRate := s.settings.DefaultTaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}
	threshold := s.settings.LowStockThreshold
	if req.LowStockThreshold != nil {
		threshold = *req.LowStockThreshold
	}
	unit := req.Unit
	if unit == "" {
		unit = "piece"
	}
	trackStock := true
	if req.TrackStock != nil {
		trackStock = *req.TrackStock
	}

	p := Product{
		SKU:               req.SKU,
		Barcode:           req.Barcode,
		Name:              req.Name,
		Description:       req.Description,
		CategoryID:        req.CategoryID,
		CostPrice:         req.CostPrice,
		SellPrice:         req.SellPrice,
		WholesalePrice:    req.WholesalePrice,
		MinWholesaleQty:   req.MinWholesaleQty,
		TaxRate:           taxRate,
		Stock:             req.Stock,
		LowStockThreshold: threshold,
		Unit:              unit,
		IsActive:          true,
		TrackStock:        trackStock,
		CreatedBy:         shared.ActorFromContext(ctx).Name,
	}

	created, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "product.create", "product", created.ID, fmt.Sprintf("created product %s", created.SKU), nil)
	return created, nil
}

// GetProduct returns a product by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (*Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// LookupProduct resolves a scan code, trying barcode first then SKU.
func (s *Service) LookupProduct(ctx context.Context, code string) (*Product, error) {
	p, err := s.repo.GetProductByBarcode(ctx, code)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.repo.GetProductBySKU(ctx, code)
}

// ListProducts returns a filtered page of products.
func (s *Service) ListProducts(ctx context.Context, filter ListProductsRequest) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, filter)
}

// UpdateProduct applies a partial update.
func (s *Service) UpdateProduct(ctx context.Context, id int64, req UpdateProductRequest) (*Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.CategoryID != nil {
		if _, err := s.repo.GetCategory(ctx, *req.CategoryID); err != nil {
			return nil, err
		}
		p.CategoryID = *req.CategoryID
	}
	if req.Barcode != nil {
		p.Barcode = req.Barcode
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.CostPrice != nil {
		p.CostPrice = *req.CostPrice
	}
	if req.SellPrice != nil {
		p.SellPrice = *req.SellPrice
	}
	if req.WholesalePrice != nil {
		p.WholesalePrice = req.WholesalePrice
	}
	if req.MinWholesaleQty != nil {
		p.MinWholesaleQty = *req.MinWholesaleQty
	}
	if req.TaxRate != nil {
		p.TaxRate = *req.TaxRate
	}
	if req.LowStockThreshold != nil {
		p.LowStockThreshold = *req.LowStockThreshold
	}
	if req.Unit != nil {
		p.Unit = *req.Unit
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if req.TrackStock != nil {
		p.TrackStock = *req.TrackStock
	}

	if err := s.repo.UpdateProduct(ctx, *p); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "product.update", "product", p.ID, fmt.Sprintf("updated product %s", p.SKU), nil)
	return p, nil
}

// AdjustStock applies a stock delta inside a transaction, writing the
// immutable adjustment record alongside the stock update. Stock never
// goes negative for tracked products.
func (s *Service) AdjustStock(ctx context.Context, input AdjustStockInput) (*InventoryAdjustment, error) {
	if input.Delta == 0 {
		return nil, fmt.Errorf("catalog: zero quantity change: %w", ErrInvalidReason)
	}
	if !input.Reason.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReason, input.Reason)
	}
	if input.Actor == "" {
		input.Actor = shared.ActorFromContext(ctx).Name
	}

	var adj InventoryAdjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetProductForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}

		newStock := p.Stock + input.Delta
		if p.TrackStock && newStock < 0 {
			return fmt.Errorf("%w: product %s has %d, change %d", ErrInsufficientStock, p.SKU, p.Stock, input.Delta)
		}

		if err := tx.UpdateProductStock(ctx, p.ID, newStock); err != nil {
			return err
		}

		adj = InventoryAdjustment{
			ProductID:      p.ID,
			QuantityChange: input.Delta,
			OldStock:       p.Stock,
			NewStock:       newStock,
			Reason:         input.Reason,
			Notes:          input.Notes,
			PerformedBy:    input.Actor,
			Timestamp:      s.now(),
		}
		adj.ID, err = tx.InsertAdjustment(ctx, adj)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock adjusted",
		slog.Int64("product_id", adj.ProductID),
		slog.Int("change", adj.QuantityChange),
		slog.Int("new_stock", adj.NewStock),
		slog.String("reason", string(adj.Reason)),
	)
	s.recordAudit(ctx, "stock.adjust", "product", adj.ProductID,
		fmt.Sprintf("stock %+d (%s)", adj.QuantityChange, adj.Reason),
		map[string]any{"old_stock": adj.OldStock, "new_stock": adj.NewStock})
	return &adj, nil
}

// ListAdjustments returns adjustment history for a product.
func (s *Service) ListAdjustments(ctx context.Context, productID int64, limit int) ([]InventoryAdjustment, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListAdjustments(ctx, productID, limit)
}

// ListLowStock returns products at or below their low-stock threshold.
func (s *Service) ListLowStock(ctx context.Context) ([]Product, error) {
	return s.repo.ListLowStock(ctx)
}

// --- Categories ---

// CreateCategory stores a category, checking parent existence.
func (s *Service) CreateCategory(ctx context.Context, c Category) (*Category, error) {
	if c.Name == "" {
		return nil, errors.New("catalog: category name required")
	}
	if c.ParentID != nil {
		if _, err := s.repo.GetCategory(ctx, *c.ParentID); err != nil {
			return nil, err
		}
	}
	c.IsActive = true
	return s.repo.CreateCategory(ctx, c)
}

// ListCategories returns categories ordered for display.
func (s *Service) ListCategories(ctx context.Context, activeOnly bool) ([]Category, error) {
	return s.repo.ListCategories(ctx, activeOnly)
}

// --- Coupons ---

// CreateCoupon stores a new coupon.
func (s *Service) CreateCoupon(ctx context.Context, req CreateCouponRequest) (*Coupon, error) {
	if !req.ValidUntil.After(req.ValidFrom) {
		return nil, errors.New("catalog: valid_until must be after valid_from")
	}
	if req.DiscountType == DiscountPercentage && req.DiscountValue > 100 {
		return nil, errors.New("catalog: percentage discount cannot exceed 100")
	}

	c := Coupon{
		Code:          req.Code,
		Description:   req.Description,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MinPurchase:   req.MinPurchase,
		MaxDiscount:   req.MaxDiscount,
		ValidFrom:     req.ValidFrom,
		ValidUntil:    req.ValidUntil,
		UsageLimit:    req.UsageLimit,
		IsActive:      true,
	}
	created, err := s.repo.CreateCoupon(ctx, c)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "coupon.create", "coupon", created.ID, fmt.Sprintf("created coupon %s", created.Code), nil)
	return created, nil
}

// CheckCoupon validates a coupon code against a cart total and returns
// the coupon with the discount it would grant.
func (s *Service) CheckCoupon(ctx context.Context, code string, cartTotal float64) (*Coupon, float64, error) {
	c, err := s.repo.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, 0, err
	}
	if ok, reason := c.Validate(s.now(), cartTotal); !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrCouponRejected, reason)
	}
	return c, c.Discount(cartTotal), nil
}

// ListCoupons returns coupons, optionally only active ones.
func (s *Service) ListCoupons(ctx context.Context, activeOnly bool) ([]Coupon, error) {
	return s.repo.ListCoupons(ctx, activeOnly)
}

// DeactivateCoupon turns a coupon off.
func (s *Service) DeactivateCoupon(ctx context.Context, id int64) error {
	if err := s.repo.DeactivateCoupon(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "coupon.deactivate", "coupon", id, "deactivated coupon", nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, id int64, desc string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		Actor:       shared.ActorFromContext(ctx).Name,
		Action:      action,
		Entity:      entity,
		EntityID:    strconv.FormatInt(id, 10),
		Description: desc,
		Meta:        meta,
		At:          s.now(),
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
