package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for the catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrNotFound indicates resource not found.
var ErrNotFound = fmt.Errorf("catalog: %w", httpx.ErrNotFound)

// ErrDuplicate indicates a unique constraint violation.
var ErrDuplicate = fmt.Errorf("catalog: %w", httpx.ErrDuplicate)

// TxRepository exposes transactional operations used by services.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, id int64) (*Product, error)
	UpdateProductStock(ctx context.Context, id int64, stock int) error
	InsertAdjustment(ctx context.Context, adj InventoryAdjustment) (int64, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const productColumns = `id, sku, barcode, name, description, category_id, cost_price, sell_price,
	wholesale_price, minimum_wholesale_quantity, tax_rate, stock, low_stock_threshold,
	unit, is_active, track_stock, created_by, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.SKU, &p.Barcode, &p.Name, &p.Description, &p.CategoryID,
		&p.CostPrice, &p.SellPrice, &p.WholesalePrice, &p.MinWholesaleQty,
		&p.TaxRate, &p.Stock, &p.LowStockThreshold, &p.Unit, &p.IsActive,
		&p.TrackStock, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreateProduct inserts a product.
func (r *Repository) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	query := `
		INSERT INTO products (
			sku, barcode, name, description, category_id, cost_price, sell_price,
			wholesale_price, minimum_wholesale_quantity, tax_rate, stock,
			low_stock_threshold, unit, is_active, track_stock, created_by,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW(),NOW())
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		p.SKU, p.Barcode, p.Name, p.Description, p.CategoryID, p.CostPrice,
		p.SellPrice, p.WholesalePrice, p.MinWholesaleQty, p.TaxRate, p.Stock,
		p.LowStockThreshold, p.Unit, p.IsActive, p.TrackStock, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %s", ErrDuplicate, p.SKU)
		}
		return nil, err
	}
	return &p, nil
}

// GetProduct fetches a product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return scanProduct(r.pool.QueryRow(ctx, query, id))
}

// GetProductBySKU fetches a product by SKU.
func (r *Repository) GetProductBySKU(ctx context.Context, sku string) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE sku = $1`
	return scanProduct(r.pool.QueryRow(ctx, query, sku))
}

// GetProductByBarcode fetches a product by barcode.
func (r *Repository) GetProductByBarcode(ctx context.Context, barcode string) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE barcode = $1`
	return scanProduct(r.pool.QueryRow(ctx, query, barcode))
}

// ListProducts returns products matching the filter plus a total count.
func (r *Repository) ListProducts(ctx context.Context, filter ListProductsRequest) ([]Product, int, error) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.CategoryID != nil {
		add("category_id = $%d", *filter.CategoryID)
	}
	if filter.IsActive != nil {
		add("is_active = $%d", *filter.IsActive)
	}
	if filter.Search != "" {
		add("(name ILIKE $%d OR sku ILIKE $%[1]d OR barcode ILIKE $%[1]d)", "%"+filter.Search+"%")
	}
	if filter.LowStock {
		conds = append(conds, "track_stock AND stock <= low_stock_threshold")
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY name LIMIT $%d OFFSET $%d`,
		productColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	return products, total, rows.Err()
}

// UpdateProduct persists non-stock product fields.
func (r *Repository) UpdateProduct(ctx context.Context, p Product) error {
	query := `
		UPDATE products SET
			barcode = $2, name = $3, description = $4, category_id = $5,
			cost_price = $6, sell_price = $7, wholesale_price = $8,
			minimum_wholesale_quantity = $9, tax_rate = $10,
			low_stock_threshold = $11, unit = $12, is_active = $13,
			track_stock = $14, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		p.ID, p.Barcode, p.Name, p.Description, p.CategoryID, p.CostPrice,
		p.SellPrice, p.WholesalePrice, p.MinWholesaleQty, p.TaxRate,
		p.LowStockThreshold, p.Unit, p.IsActive, p.TrackStock,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLowStock returns active tracked products at or below threshold.
func (r *Repository) ListLowStock(ctx context.Context) ([]Product, error) {
	query := `SELECT ` + productColumns + `
		FROM products
		WHERE is_active AND track_stock AND stock <= low_stock_threshold
		ORDER BY stock ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// ListAdjustments returns the adjustment history for a product, newest first.
func (r *Repository) ListAdjustments(ctx context.Context, productID int64, limit int) ([]InventoryAdjustment, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, product_id, quantity_change, old_stock, new_stock, reason, notes, performed_by, timestamp
		FROM inventory_adjustments
		WHERE product_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjs []InventoryAdjustment
	for rows.Next() {
		var a InventoryAdjustment
		if err := rows.Scan(&a.ID, &a.ProductID, &a.QuantityChange, &a.OldStock,
			&a.NewStock, &a.Reason, &a.Notes, &a.PerformedBy, &a.Timestamp); err != nil {
			return nil, err
		}
		adjs = append(adjs, a)
	}
	return adjs, rows.Err()
}

// --- Category operations ---

// CreateCategory inserts a category.
func (r *Repository) CreateCategory(ctx context.Context, c Category) (*Category, error) {
	query := `
		INSERT INTO categories (name, description, parent_id, is_active, display_order, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		c.Name, c.Description, c.ParentID, c.IsActive, c.DisplayOrder,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: category %s", ErrDuplicate, c.Name)
		}
		return nil, err
	}
	return &c, nil
}

// GetCategory fetches a category by id.
func (r *Repository) GetCategory(ctx context.Context, id int64) (*Category, error) {
	query := `
		SELECT id, name, description, parent_id, is_active, display_order, created_at, updated_at
		FROM categories WHERE id = $1`

	var c Category
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Description, &c.ParentID, &c.IsActive,
		&c.DisplayOrder, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListCategories returns all categories ordered for display.
func (r *Repository) ListCategories(ctx context.Context, activeOnly bool) ([]Category, error) {
	query := `
		SELECT id, name, description, parent_id, is_active, display_order, created_at, updated_at
		FROM categories`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY display_order, name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.ParentID,
			&c.IsActive, &c.DisplayOrder, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// --- Coupon operations ---

const couponColumns = `id, code, description, discount_type, discount_value, minimum_purchase,
	maximum_discount, valid_from, valid_until, usage_limit, times_used, is_active, created_at`

func scanCoupon(row pgx.Row) (*Coupon, error) {
	var c Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &c.DiscountType, &c.DiscountValue,
		&c.MinPurchase, &c.MaxDiscount, &c.ValidFrom, &c.ValidUntil,
		&c.UsageLimit, &c.TimesUsed, &c.IsActive, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateCoupon inserts a coupon. Codes are stored uppercase.
func (r *Repository) CreateCoupon(ctx context.Context, c Coupon) (*Coupon, error) {
	query := `
		INSERT INTO coupons (
			code, description, discount_type, discount_value, minimum_purchase,
			maximum_discount, valid_from, valid_until, usage_limit, times_used,
			is_active, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,$10,NOW())
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		strings.ToUpper(c.Code), c.Description, c.DiscountType, c.DiscountValue,
		c.MinPurchase, c.MaxDiscount, c.ValidFrom, c.ValidUntil, c.UsageLimit,
		c.IsActive,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: coupon %s", ErrDuplicate, c.Code)
		}
		return nil, err
	}
	c.Code = strings.ToUpper(c.Code)
	return &c, nil
}

// GetCouponByCode fetches a coupon by its code, case-insensitively.
func (r *Repository) GetCouponByCode(ctx context.Context, code string) (*Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`
	return scanCoupon(r.pool.QueryRow(ctx, query, strings.ToUpper(code)))
}

// ListCoupons returns coupons, optionally only active ones.
func (r *Repository) ListCoupons(ctx context.Context, activeOnly bool) ([]Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY valid_until DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coupons []Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, *c)
	}
	return coupons, rows.Err()
}

// DeactivateCoupon turns a coupon off.
func (r *Repository) DeactivateCoupon(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE coupons SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Transactional operations ---

func (r *txRepo) GetProductForUpdate(ctx context.Context, id int64) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`
	return scanProduct(r.tx.QueryRow(ctx, query, id))
}

func (r *txRepo) UpdateProductStock(ctx context.Context, id int64, stock int) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE products SET stock = $2, updated_at = NOW() WHERE id = $1`, id, stock)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) InsertAdjustment(ctx context.Context, adj InventoryAdjustment) (int64, error) {
	query := `
		INSERT INTO inventory_adjustments (
			product_id, quantity_change, old_stock, new_stock, reason, notes, performed_by, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
		RETURNING id`

	var id int64
	err := r.tx.QueryRow(ctx, query,
		adj.ProductID, adj.QuantityChange, adj.OldStock, adj.NewStock,
		adj.Reason, adj.Notes, adj.PerformedBy,
	).Scan(&id)
	return id, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
