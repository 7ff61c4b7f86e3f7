package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/pos"
)

// Repository provides PostgreSQL backed persistence for invoices.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrNotFound indicates resource not found.
var ErrNotFound = fmt.Errorf("billing: %w", httpx.ErrNotFound)

// TxRepository exposes the operations the invoice unit of work touches.
type TxRepository interface {
	NextInvoiceNumber(ctx context.Context, year int) (int, error)
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	InsertInvoiceItems(ctx context.Context, invoiceID int64, items []InvoiceItem) ([]InvoiceItem, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error)
	GetInvoiceBySaleID(ctx context.Context, saleID int64) (*Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus, amountPaid float64) error
	InsertPayment(ctx context.Context, amount float64, method, notes string) (int64, error)
	InsertInvoicePayment(ctx context.Context, ip InvoicePayment) (int64, error)
	SumInvoicePayments(ctx context.Context, invoiceID int64) (float64, error)
	SettleCustomerBalance(ctx context.Context, customerID int64, amount float64) error
	GetSale(ctx context.Context, saleID int64) (*pos.Sale, error)
	ListSalePayments(ctx context.Context, saleID int64) ([]pos.Payment, error)
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

const invoiceColumns = `id, invoice_number, customer_id, sale_id, issue_date, due_date,
	payment_terms, subtotal, tax_amount, discount_amount, total_amount, amount_paid,
	payment_status, notes, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.CustomerID, &inv.SaleID,
		&inv.IssueDate, &inv.DueDate, &inv.PaymentTerms, &inv.Subtotal,
		&inv.TaxAmount, &inv.DiscountAmount, &inv.TotalAmount, &inv.AmountPaid,
		&inv.Status, &inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// GetInvoice fetches an invoice with its items and payment links.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return r.loadChildren(ctx, inv)
}

// GetInvoiceByNumber fetches an invoice by public number.
func (r *Repository) GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE invoice_number = $1`, number))
	if err != nil {
		return nil, err
	}
	return r.loadChildren(ctx, inv)
}

func (r *Repository) loadChildren(ctx context.Context, inv *Invoice) (*Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, product_id, description, quantity, unit_price, discount, tax_rate, total
		FROM invoice_items WHERE invoice_id = $1 ORDER BY id`, inv.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item InvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.ProductID, &item.Description,
			&item.Quantity, &item.UnitPrice, &item.Discount, &item.TaxRatePct, &item.Total); err != nil {
			return nil, err
		}
		inv.Items = append(inv.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, payment_id, amount, payment_date, notes, recorded_by
		FROM invoice_payments WHERE invoice_id = $1 ORDER BY payment_date DESC`, inv.ID)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var ip InvoicePayment
		if err := prows.Scan(&ip.ID, &ip.InvoiceID, &ip.PaymentID, &ip.Amount,
			&ip.PaymentDate, &ip.Notes, &ip.RecordedBy); err != nil {
			return nil, err
		}
		inv.Payments = append(inv.Payments, ip)
	}
	return inv, prows.Err()
}

// ListInvoices returns invoices matching the filter plus a total count.
func (r *Repository) ListInvoices(ctx context.Context, filter ListInvoicesRequest) ([]Invoice, int, error) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("payment_status = $%d", filter.Status)
	}
	if filter.CustomerID != nil {
		add("customer_id = $%d", *filter.CustomerID)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM invoices%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, total, rows.Err()
}

// MarkOverdue flips every past-due unpaid or partial invoice to overdue
// and returns the affected rows.
func (r *Repository) MarkOverdue(ctx context.Context, today time.Time) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE invoices SET payment_status = 'overdue', updated_at = NOW()
		WHERE payment_status IN ('unpaid', 'partial') AND due_date < $1
		RETURNING `+invoiceColumns, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// --- Transactional operations ---

// NextInvoiceNumber advances the per-year sequence. The upsert keeps
// concurrent creations from ever handing out the same number.
func (r *txRepo) NextInvoiceNumber(ctx context.Context, year int) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `
		INSERT INTO invoice_sequences (year, last_number)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_number = invoice_sequences.last_number + 1
		RETURNING last_number`, year).Scan(&seq)
	return seq, err
}

func (r *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	query := `
		INSERT INTO invoices (
			invoice_number, customer_id, sale_id, issue_date, due_date,
			payment_terms, subtotal, tax_amount, discount_amount, total_amount,
			amount_paid, payment_status, notes, created_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW(),NOW())
		RETURNING id`

	var id int64
	err := r.tx.QueryRow(ctx, query,
		inv.InvoiceNumber, inv.CustomerID, inv.SaleID, inv.IssueDate,
		inv.DueDate, inv.PaymentTerms, inv.Subtotal, inv.TaxAmount,
		inv.DiscountAmount, inv.TotalAmount, inv.AmountPaid, inv.Status,
		inv.Notes, inv.CreatedBy,
	).Scan(&id)
	return id, err
}

func (r *txRepo) InsertInvoiceItems(ctx context.Context, invoiceID int64, items []InvoiceItem) ([]InvoiceItem, error) {
	query := `
		INSERT INTO invoice_items (invoice_id, product_id, description, quantity, unit_price, discount, tax_rate, total)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`

	out := make([]InvoiceItem, 0, len(items))
	for _, item := range items {
		item.InvoiceID = invoiceID
		err := r.tx.QueryRow(ctx, query,
			invoiceID, item.ProductID, item.Description, item.Quantity,
			item.UnitPrice, item.Discount, item.TaxRatePct, item.Total,
		).Scan(&item.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *txRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) GetInvoiceBySaleID(ctx context.Context, saleID int64) (*Invoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE sale_id = $1`, saleID))
}

func (r *txRepo) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus, amountPaid float64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE invoices SET payment_status = $2, amount_paid = $3, updated_at = NOW() WHERE id = $1`,
		id, status, amountPaid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) InsertPayment(ctx context.Context, amount float64, method, notes string) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO payments (sale_id, amount, method, status, notes, created_at)
		VALUES (NULL, $1, $2, 'completed', $3, NOW())
		RETURNING id`, amount, method, notes).Scan(&id)
	return id, err
}

func (r *txRepo) InsertInvoicePayment(ctx context.Context, ip InvoicePayment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO invoice_payments (invoice_id, payment_id, amount, payment_date, notes, recorded_by)
		VALUES ($1, $2, $3, NOW(), $4, $5)
		RETURNING id`,
		ip.InvoiceID, ip.PaymentID, ip.Amount, ip.Notes, ip.RecordedBy).Scan(&id)
	return id, err
}

// SumInvoicePayments recomputes amount_paid from scratch so it never
// drifts from the linked payments.
func (r *txRepo) SumInvoicePayments(ctx context.Context, invoiceID int64) (float64, error) {
	var total float64
	err := r.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM invoice_payments WHERE invoice_id = $1`,
		invoiceID).Scan(&total)
	return total, err
}

// SettleCustomerBalance reduces what the customer owes, never below zero.
func (r *txRepo) SettleCustomerBalance(ctx context.Context, customerID int64, amount float64) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE customers SET current_balance = GREATEST(current_balance - $2, 0), updated_at = NOW()
		WHERE id = $1`, customerID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) GetSale(ctx context.Context, saleID int64) (*pos.Sale, error) {
	var s pos.Sale
	err := r.tx.QueryRow(ctx, `
		SELECT id, reference, cashier, customer_id, subtotal, tax, discount, total,
		       payment_method, payment_status, amount_paid, status, created_at
		FROM sales WHERE id = $1 FOR UPDATE`, saleID).Scan(
		&s.ID, &s.Reference, &s.Cashier, &s.CustomerID, &s.Subtotal, &s.Tax,
		&s.Discount, &s.Total, &s.PaymentMethod, &s.PaymentStatus,
		&s.AmountPaid, &s.Status, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pos.ErrNotFound
		}
		return nil, err
	}

	rows, err := r.tx.Query(ctx, `
		SELECT id, sale_id, product_id, sku, name, quantity, unit_price, price_type, tax_rate, discount, line_total
		FROM sale_items WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item pos.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.SKU,
			&item.Name, &item.Quantity, &item.UnitPrice, &item.PriceType,
			&item.TaxRate, &item.Discount, &item.LineTotal); err != nil {
			return nil, err
		}
		s.Items = append(s.Items, item)
	}
	return &s, rows.Err()
}

func (r *txRepo) ListSalePayments(ctx context.Context, saleID int64) ([]pos.Payment, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, sale_id, amount, method, status, created_at
		FROM payments WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []pos.Payment
	for rows.Next() {
		var p pos.Payment
		if err := rows.Scan(&p.ID, &p.SaleID, &p.Amount, &p.Method, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
