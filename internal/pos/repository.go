package pos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-pos/internal/catalog"
	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for sales.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrNotFound indicates resource not found.
var ErrNotFound = fmt.Errorf("pos: %w", httpx.ErrNotFound)

// TxRepository exposes every operation the sale unit of work touches.
// Completing a sale crosses products, coupons and customer balances,
// so the transaction owns all of them.
type TxRepository interface {
	InsertSale(ctx context.Context, s Sale) (int64, error)
	InsertSaleItems(ctx context.Context, saleID int64, items []SaleItem) ([]SaleItem, error)
	InsertPayments(ctx context.Context, saleID int64, payments []Payment) ([]Payment, error)
	UpdateSaleAmounts(ctx context.Context, s Sale) error
	UpdateSalePaymentStatus(ctx context.Context, saleID int64, status PaymentStatus, amountPaid float64) error
	MarkSaleCompleted(ctx context.Context, saleID int64, at time.Time) error
	MarkSaleVoided(ctx context.Context, saleID int64, actor, reason string, at time.Time) error
	GetSaleForUpdate(ctx context.Context, id int64) (*Sale, error)
	ListSaleItems(ctx context.Context, saleID int64) ([]SaleItem, error)

	GetProductForUpdate(ctx context.Context, id int64) (*catalog.Product, error)
	UpdateProductStock(ctx context.Context, id int64, stock int) error
	InsertAdjustment(ctx context.Context, adj catalog.InventoryAdjustment) error

	GetCouponForUpdate(ctx context.Context, code string) (*catalog.Coupon, error)
	IncrementCouponUsage(ctx context.Context, couponID int64) error

	AddCustomerBalance(ctx context.Context, customerID int64, delta float64) (float64, error)
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

const saleColumns = `id, reference, cashier, customer_id, subtotal, tax, discount, total,
	payment_method, payment_status, amount_paid, status, coupon_code, notes, terminal_id,
	created_at, completed_at, voided_at, voided_by, void_reason`

func scanSale(row pgx.Row) (*Sale, error) {
	var s Sale
	err := row.Scan(
		&s.ID, &s.Reference, &s.Cashier, &s.CustomerID, &s.Subtotal, &s.Tax,
		&s.Discount, &s.Total, &s.PaymentMethod, &s.PaymentStatus,
		&s.AmountPaid, &s.Status, &s.CouponCode, &s.Notes, &s.TerminalID,
		&s.CreatedAt, &s.CompletedAt, &s.VoidedAt, &s.VoidedBy, &s.VoidReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// GetSale fetches a sale with its items and payments.
func (r *Repository) GetSale(ctx context.Context, id int64) (*Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return r.loadChildren(ctx, sale)
}

// GetSaleByReference fetches a sale by its public reference.
func (r *Repository) GetSaleByReference(ctx context.Context, reference string) (*Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE reference = $1`, reference))
	if err != nil {
		return nil, err
	}
	return r.loadChildren(ctx, sale)
}

func (r *Repository) loadChildren(ctx context.Context, sale *Sale) (*Sale, error) {
	items, err := querySaleItems(ctx, r.pool, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Items = items

	rows, err := r.pool.Query(ctx, `
		SELECT id, sale_id, amount, method, status, transaction_id, card_last_four,
		       amount_tendered, change_amount, notes, created_at
		FROM payments WHERE sale_id = $1 ORDER BY id`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.SaleID, &p.Amount, &p.Method, &p.Status,
			&p.TransactionID, &p.CardLastFour, &p.AmountTendered, &p.ChangeAmount,
			&p.Notes, &p.CreatedAt); err != nil {
			return nil, err
		}
		sale.Payments = append(sale.Payments, p)
	}
	return sale, rows.Err()
}

// ListSales returns sales matching the filter plus a total count.
func (r *Repository) ListSales(ctx context.Context, filter ListSalesRequest) ([]Sale, int, error) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.CustomerID != nil {
		add("customer_id = $%d", *filter.CustomerID)
	}
	if filter.Cashier != "" {
		add("cashier = $%d", filter.Cashier)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM sales%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		saleColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		sales = append(sales, *s)
	}
	return sales, total, rows.Err()
}

// --- Transactional operations ---

func (r *txRepo) InsertSale(ctx context.Context, s Sale) (int64, error) {
	query := `
		INSERT INTO sales (
			reference, cashier, customer_id, subtotal, tax, discount, total,
			payment_method, payment_status, amount_paid, status, coupon_code,
			notes, terminal_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW())
		RETURNING id`

	var id int64
	err := r.tx.QueryRow(ctx, query,
		s.Reference, s.Cashier, s.CustomerID, s.Subtotal, s.Tax, s.Discount,
		s.Total, s.PaymentMethod, s.PaymentStatus, s.AmountPaid, s.Status,
		s.CouponCode, s.Notes, s.TerminalID,
	).Scan(&id)
	return id, err
}

func (r *txRepo) InsertSaleItems(ctx context.Context, saleID int64, items []SaleItem) ([]SaleItem, error) {
	query := `
		INSERT INTO sale_items (sale_id, product_id, sku, name, quantity, unit_price, price_type, tax_rate, discount, line_total)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id`

	out := make([]SaleItem, 0, len(items))
	for _, item := range items {
		item.SaleID = saleID
		err := r.tx.QueryRow(ctx, query,
			saleID, item.ProductID, item.SKU, item.Name, item.Quantity,
			item.UnitPrice, item.PriceType, item.TaxRate, item.Discount, item.LineTotal,
		).Scan(&item.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *txRepo) InsertPayments(ctx context.Context, saleID int64, payments []Payment) ([]Payment, error) {
	query := `
		INSERT INTO payments (sale_id, amount, method, status, transaction_id, card_last_four,
			amount_tendered, change_amount, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
		RETURNING id, created_at`

	out := make([]Payment, 0, len(payments))
	for _, p := range payments {
		p.SaleID = &saleID
		err := r.tx.QueryRow(ctx, query,
			saleID, p.Amount, p.Method, p.Status, p.TransactionID,
			p.CardLastFour, p.AmountTendered, p.ChangeAmount, p.Notes,
		).Scan(&p.ID, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *txRepo) UpdateSaleAmounts(ctx context.Context, s Sale) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE sales SET subtotal = $2, tax = $3, discount = $4, total = $5, coupon_code = $6
		WHERE id = $1`,
		s.ID, s.Subtotal, s.Tax, s.Discount, s.Total, s.CouponCode)
	return err
}

func (r *txRepo) UpdateSalePaymentStatus(ctx context.Context, saleID int64, status PaymentStatus, amountPaid float64) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE sales SET payment_status = $2, amount_paid = $3 WHERE id = $1`,
		saleID, status, amountPaid)
	return err
}

func (r *txRepo) MarkSaleCompleted(ctx context.Context, saleID int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE sales SET status = $2, completed_at = $3 WHERE id = $1`,
		saleID, SaleStatusCompleted, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) MarkSaleVoided(ctx context.Context, saleID int64, actor, reason string, at time.Time) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE sales SET status = $2, voided_at = $3, voided_by = $4, void_reason = $5 WHERE id = $1`,
		saleID, SaleStatusVoided, at, actor, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) GetSaleForUpdate(ctx context.Context, id int64) (*Sale, error) {
	return scanSale(r.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) ListSaleItems(ctx context.Context, saleID int64) ([]SaleItem, error) {
	return querySaleItems(ctx, r.tx, saleID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func querySaleItems(ctx context.Context, q querier, saleID int64) ([]SaleItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, sale_id, product_id, sku, name, quantity, unit_price, price_type, tax_rate, discount, line_total
		FROM sale_items WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SaleItem
	for rows.Next() {
		var item SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.SKU,
			&item.Name, &item.Quantity, &item.UnitPrice, &item.PriceType,
			&item.TaxRate, &item.Discount, &item.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const productColumns = `id, sku, barcode, name, description, category_id, cost_price, sell_price,
	wholesale_price, minimum_wholesale_quantity, tax_rate, stock, low_stock_threshold,
	unit, is_active, track_stock, created_by, created_at, updated_at`

func (r *txRepo) GetProductForUpdate(ctx context.Context, id int64) (*catalog.Product, error) {
	var p catalog.Product
	err := r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id).Scan(
		&p.ID, &p.SKU, &p.Barcode, &p.Name, &p.Description, &p.CategoryID,
		&p.CostPrice, &p.SellPrice, &p.WholesalePrice, &p.MinWholesaleQty,
		&p.TaxRate, &p.Stock, &p.LowStockThreshold, &p.Unit, &p.IsActive,
		&p.TrackStock, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *txRepo) UpdateProductStock(ctx context.Context, id int64, stock int) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE products SET stock = $2, updated_at = NOW() WHERE id = $1`, id, stock)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *txRepo) InsertAdjustment(ctx context.Context, adj catalog.InventoryAdjustment) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO inventory_adjustments (product_id, quantity_change, old_stock, new_stock, reason, notes, performed_by, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())`,
		adj.ProductID, adj.QuantityChange, adj.OldStock, adj.NewStock,
		adj.Reason, adj.Notes, adj.PerformedBy)
	return err
}

func (r *txRepo) GetCouponForUpdate(ctx context.Context, code string) (*catalog.Coupon, error) {
	var c catalog.Coupon
	err := r.tx.QueryRow(ctx, `
		SELECT id, code, description, discount_type, discount_value, minimum_purchase,
		       maximum_discount, valid_from, valid_until, usage_limit, times_used, is_active, created_at
		FROM coupons WHERE code = $1 FOR UPDATE`, strings.ToUpper(code)).Scan(
		&c.ID, &c.Code, &c.Description, &c.DiscountType, &c.DiscountValue,
		&c.MinPurchase, &c.MaxDiscount, &c.ValidFrom, &c.ValidUntil,
		&c.UsageLimit, &c.TimesUsed, &c.IsActive, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *txRepo) IncrementCouponUsage(ctx context.Context, couponID int64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE coupons SET times_used = times_used + 1 WHERE id = $1`, couponID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *txRepo) AddCustomerBalance(ctx context.Context, customerID int64, delta float64) (float64, error) {
	var balance float64
	err := r.tx.QueryRow(ctx, `
		UPDATE customers SET current_balance = current_balance + $2, updated_at = NOW()
		WHERE id = $1 RETURNING current_balance`,
		customerID, delta).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}
