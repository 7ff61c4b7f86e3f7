package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the aggregate queries behind each report.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SalesSummary aggregates completed sales between from and to inclusive.
func (r *Repository) SalesSummary(ctx context.Context, from, to time.Time) (SalesSummary, error) {
	var s SalesSummary
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(total), 0),
		       COALESCE(SUM(tax), 0),
		       COALESCE(SUM(discount), 0)
		FROM sales
		WHERE status = 'completed' AND created_at >= $1 AND created_at < $2`,
		from, to.AddDate(0, 0, 1)).Scan(&s.SaleCount, &s.Revenue, &s.Tax, &s.Discounts)
	if err != nil {
		return SalesSummary{}, err
	}
	s.From, s.To = from, to
	if s.SaleCount > 0 {
		s.AverageSale = s.Revenue / float64(s.SaleCount)
	}
	return s, nil
}

// TopProducts returns the best sellers by quantity over the range.
func (r *Repository) TopProducts(ctx context.Context, from, to time.Time, limit int) ([]TopProduct, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT si.product_id, si.sku, si.name,
		       SUM(si.quantity)::int AS quantity_sold,
		       COALESCE(SUM(si.line_total), 0) AS revenue
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.status = 'completed' AND s.created_at >= $1 AND s.created_at < $2
		GROUP BY si.product_id, si.sku, si.name
		ORDER BY quantity_sold DESC, revenue DESC
		LIMIT $3`, from, to.AddDate(0, 0, 1), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TopProduct
	for rows.Next() {
		var p TopProduct
		if err := rows.Scan(&p.ProductID, &p.SKU, &p.Name, &p.QuantitySold, &p.Revenue); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LowStock returns active tracked products at or below their threshold.
func (r *Repository) LowStock(ctx context.Context) ([]LowStockProduct, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sku, name, stock, low_stock_threshold
		FROM products
		WHERE is_active AND track_stock AND stock <= low_stock_threshold
		ORDER BY stock ASC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LowStockProduct
	for rows.Next() {
		var p LowStockProduct
		if err := rows.Scan(&p.ProductID, &p.SKU, &p.Name, &p.Stock, &p.Threshold); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Receivables totals billed versus paid across non-cancelled invoices.
func (r *Repository) Receivables(ctx context.Context) (ReceivablesSummary, error) {
	var s ReceivablesSummary
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_amount), 0),
		       COALESCE(SUM(amount_paid), 0),
		       COUNT(*) FILTER (WHERE payment_status = 'overdue')
		FROM invoices
		WHERE payment_status <> 'cancelled'`).Scan(&s.TotalBilled, &s.TotalPaid, &s.OverdueCount)
	if err != nil {
		return ReceivablesSummary{}, err
	}
	s.Outstanding = s.TotalBilled - s.TotalPaid
	return s, nil
}
