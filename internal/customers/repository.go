package customers

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

// Repository provides PostgreSQL backed persistence for customers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrNotFound indicates resource not found.
var ErrNotFound = fmt.Errorf("customers: %w", httpx.ErrNotFound)

// ErrDuplicate indicates a unique constraint violation.
var ErrDuplicate = fmt.Errorf("customers: %w", httpx.ErrDuplicate)

const customerColumns = `id, customer_id, name, email, phone, address_line1, address_line2,
	city, state, postal_code, country, tags, customer_type, loyalty_points, loyalty_tier,
	credit_limit, current_balance, discount_percentage, is_active, notes, date_of_birth,
	created_by, created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(
		&c.ID, &c.CustomerID, &c.Name, &c.Email, &c.Phone, &c.AddressLine1,
		&c.AddressLine2, &c.City, &c.State, &c.PostalCode, &c.Country, &c.Tags,
		&c.Type, &c.LoyaltyPoints, &c.LoyaltyTier, &c.CreditLimit,
		&c.CurrentBalance, &c.DiscountPct, &c.IsActive, &c.Notes,
		&c.DateOfBirth, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Create inserts a customer.
func (r *Repository) Create(ctx context.Context, c Customer) (*Customer, error) {
	query := `
		INSERT INTO customers (
			customer_id, name, email, phone, address_line1, address_line2,
			city, state, postal_code, country, tags, customer_type,
			loyalty_points, loyalty_tier, credit_limit, current_balance,
			discount_percentage, is_active, notes, date_of_birth, created_by,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,NOW(),NOW())
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		c.CustomerID, c.Name, c.Email, c.Phone, c.AddressLine1, c.AddressLine2,
		c.City, c.State, c.PostalCode, c.Country, c.Tags, c.Type,
		c.LoyaltyPoints, c.LoyaltyTier, c.CreditLimit, c.CurrentBalance,
		c.DiscountPct, c.IsActive, c.Notes, c.DateOfBirth, c.CreatedBy,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: customer %s", ErrDuplicate, c.CustomerID)
		}
		return nil, err
	}
	return &c, nil
}

// Get fetches a customer by internal id.
func (r *Repository) Get(ctx context.Context, id int64) (*Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	return scanCustomer(r.pool.QueryRow(ctx, query, id))
}

// GetByCustomerID fetches a customer by its public CUST identifier.
func (r *Repository) GetByCustomerID(ctx context.Context, customerID string) (*Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE customer_id = $1`
	return scanCustomer(r.pool.QueryRow(ctx, query, customerID))
}

// GetByPhone fetches the most recently created customer with the phone number.
func (r *Repository) GetByPhone(ctx context.Context, phone string) (*Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE phone = $1 ORDER BY created_at DESC LIMIT 1`
	return scanCustomer(r.pool.QueryRow(ctx, query, phone))
}

// List returns customers matching the filter plus a total count.
func (r *Repository) List(ctx context.Context, filter ListCustomersRequest) ([]Customer, int, error) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Type != "" {
		add("customer_type = $%d", filter.Type)
	}
	if filter.IsActive != nil {
		add("is_active = $%d", *filter.IsActive)
	}
	if filter.Search != "" {
		add("(name ILIKE $%d OR customer_id ILIKE $%[1]d OR phone ILIKE $%[1]d OR email ILIKE $%[1]d)",
			"%"+filter.Search+"%")
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM customers%s ORDER BY name LIMIT $%d OFFSET $%d`,
		customerColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, *c)
	}
	return customers, total, rows.Err()
}

// Update persists mutable customer fields.
func (r *Repository) Update(ctx context.Context, c Customer) error {
	query := `
		UPDATE customers SET
			name = $2, email = $3, phone = $4, address_line1 = $5,
			address_line2 = $6, city = $7, state = $8, postal_code = $9,
			country = $10, tags = $11, customer_type = $12, credit_limit = $13,
			discount_percentage = $14, is_active = $15, notes = $16,
			date_of_birth = $17, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		c.ID, c.Name, c.Email, c.Phone, c.AddressLine1, c.AddressLine2,
		c.City, c.State, c.PostalCode, c.Country, c.Tags, c.Type,
		c.CreditLimit, c.DiscountPct, c.IsActive, c.Notes, c.DateOfBirth,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLoyalty stores a new points balance and its derived tier.
func (r *Repository) UpdateLoyalty(ctx context.Context, id int64, points int, tier LoyaltyTier) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE customers SET loyalty_points = $2, loyalty_tier = $3, updated_at = NOW() WHERE id = $1`,
		id, points, tier)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddBalance applies a signed delta to current_balance and returns the
// new balance. A single UPDATE keeps concurrent settlements consistent.
func (r *Repository) AddBalance(ctx context.Context, id int64, delta float64) (float64, error) {
	var balance float64
	err := r.pool.QueryRow(ctx,
		`UPDATE customers SET current_balance = current_balance + $2, updated_at = NOW()
		 WHERE id = $1 RETURNING current_balance`,
		id, delta).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

// CreateNote attaches a note to a customer.
func (r *Repository) CreateNote(ctx context.Context, n Note) (*Note, error) {
	query := `
		INSERT INTO customer_notes (customer_id, note, created_by, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query, n.CustomerID, n.Note, n.CreatedBy).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListNotes returns a customer's notes, newest first.
func (r *Repository) ListNotes(ctx context.Context, customerID int64) ([]Note, error) {
	query := `
		SELECT id, customer_id, note, created_by, created_at
		FROM customer_notes
		WHERE customer_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.CustomerID, &n.Note, &n.CreatedBy, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
