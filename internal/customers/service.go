package customers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-pos/meridian-pos/internal/platform/httpx"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// ErrInsufficientPoints indicates a redemption larger than the balance.
var ErrInsufficientPoints = fmt.Errorf("customers: insufficient loyalty points: %w", httpx.ErrBusinessRule)

// ErrInactiveCustomer indicates the account is disabled.
var ErrInactiveCustomer = fmt.Errorf("customers: customer inactive: %w", httpx.ErrBusinessRule)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Create(ctx context.Context, c Customer) (*Customer, error)
	Get(ctx context.Context, id int64) (*Customer, error)
	GetByCustomerID(ctx context.Context, customerID string) (*Customer, error)
	GetByPhone(ctx context.Context, phone string) (*Customer, error)
	List(ctx context.Context, filter ListCustomersRequest) ([]Customer, int, error)
	Update(ctx context.Context, c Customer) error
	UpdateLoyalty(ctx context.Context, id int64, points int, tier LoyaltyTier) error
	AddBalance(ctx context.Context, id int64, delta float64) (float64, error)
	CreateNote(ctx context.Context, n Note) (*Note, error)
	ListNotes(ctx context.Context, customerID int64) ([]Note, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates customer operations.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// NewCustomerID builds a public customer identifier of the form
// CUST-YYYYMM-XXXXXX.
func NewCustomerID(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:6])
	return fmt.Sprintf("CUST-%s-%s", now.Format("200601"), suffix)
}

// Create stores a new customer with a generated identifier.
func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	ctype := req.Type
	if ctype == "" {
		ctype = TypeRetail
	}

	c := Customer{
		CustomerID:   NewCustomerID(s.now()),
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		State:        req.State,
		PostalCode:   req.PostalCode,
		Country:      req.Country,
		Tags:         req.Tags,
		Type:         ctype,
		LoyaltyTier:  TierBronze,
		CreditLimit:  req.CreditLimit,
		DiscountPct:  req.DiscountPct,
		IsActive:     true,
		Notes:        req.Notes,
		DateOfBirth:  req.DateOfBirth,
		CreatedBy:    shared.ActorFromContext(ctx).Name,
	}

	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "customer.create", created.ID, fmt.Sprintf("created customer %s", created.CustomerID), nil)
	return created, nil
}

// Get returns a customer by internal id.
func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

// GetByCustomerID returns a customer by public identifier.
func (s *Service) GetByCustomerID(ctx context.Context, customerID string) (*Customer, error) {
	return s.repo.GetByCustomerID(ctx, customerID)
}

// GetOrCreateByPhone finds a customer by phone, creating a minimal
// retail account when none exists. Used at the till for quick signup.
// An existing record picks up a supplied name or email, so the walk-in
// placeholder gets replaced once the cashier learns who they serve.
func (s *Service) GetOrCreateByPhone(ctx context.Context, phone, name, email string) (*Customer, error) {
	if phone == "" {
		return nil, errors.New("customers: phone required")
	}
	c, err := s.repo.GetByPhone(ctx, phone)
	if err == nil {
		changed := false
		if name != "" && name != c.Name {
			c.Name = name
			changed = true
		}
		if email != "" && email != c.Email {
			c.Email = email
			changed = true
		}
		if changed {
			if err := s.repo.Update(ctx, *c); err != nil {
				return nil, err
			}
		}
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if name == "" {
		name = "Walk-in " + phone
	}
	return s.Create(ctx, CreateCustomerRequest{Name: name, Phone: phone, Email: email})
}

// List returns a filtered page of customers.
func (s *Service) List(ctx context.Context, filter ListCustomersRequest) ([]Customer, int, error) {
	return s.repo.List(ctx, filter)
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id int64, req UpdateCustomerRequest) (*Customer, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Email != nil {
		c.Email = *req.Email
	}
	if req.Phone != nil {
		c.Phone = *req.Phone
	}
	if req.AddressLine1 != nil {
		c.AddressLine1 = *req.AddressLine1
	}
	if req.AddressLine2 != nil {
		c.AddressLine2 = *req.AddressLine2
	}
	if req.City != nil {
		c.City = *req.City
	}
	if req.State != nil {
		c.State = *req.State
	}
	if req.PostalCode != nil {
		c.PostalCode = *req.PostalCode
	}
	if req.Country != nil {
		c.Country = *req.Country
	}
	if req.Tags != nil {
		c.Tags = *req.Tags
	}
	if req.Type != nil {
		c.Type = *req.Type
	}
	if req.CreditLimit != nil {
		c.CreditLimit = *req.CreditLimit
	}
	if req.DiscountPct != nil {
		c.DiscountPct = *req.DiscountPct
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
	if req.Notes != nil {
		c.Notes = *req.Notes
	}
	if req.DateOfBirth != nil {
		c.DateOfBirth = req.DateOfBirth
	}

	if err := s.repo.Update(ctx, *c); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "customer.update", c.ID, fmt.Sprintf("updated customer %s", c.CustomerID), nil)
	return c, nil
}

// AddLoyaltyPoints credits points and rolls the tier forward.
func (s *Service) AddLoyaltyPoints(ctx context.Context, id int64, points int) (*Customer, error) {
	if points <= 0 {
		return nil, fmt.Errorf("customers: points must be positive: %w", httpx.ErrValidation)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.LoyaltyPoints += points
	c.LoyaltyTier = TierForPoints(c.LoyaltyPoints)
	if err := s.repo.UpdateLoyalty(ctx, c.ID, c.LoyaltyPoints, c.LoyaltyTier); err != nil {
		return nil, err
	}

	s.logger.Info("loyalty points added",
		slog.Int64("customer_id", c.ID),
		slog.Int("points", points),
		slog.String("tier", string(c.LoyaltyTier)),
	)
	return c, nil
}

// RedeemLoyaltyPoints debits points. The tier is recomputed so a large
// redemption can demote the account.
func (s *Service) RedeemLoyaltyPoints(ctx context.Context, id int64, points int) (*Customer, error) {
	if points <= 0 {
		return nil, fmt.Errorf("customers: points must be positive: %w", httpx.ErrValidation)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if points > c.LoyaltyPoints {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrInsufficientPoints, c.LoyaltyPoints, points)
	}

	c.LoyaltyPoints -= points
	c.LoyaltyTier = TierForPoints(c.LoyaltyPoints)
	if err := s.repo.UpdateLoyalty(ctx, c.ID, c.LoyaltyPoints, c.LoyaltyTier); err != nil {
		return nil, err
	}
	return c, nil
}

// AddCredit increases the amount the customer owes. Settlement uses
// this when a wholesale sale is completed below full payment.
func (s *Service) AddCredit(ctx context.Context, id int64, amount float64, reason string) (float64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("customers: credit amount must be positive: %w", httpx.ErrValidation)
	}
	balance, err := s.repo.AddBalance(ctx, id, amount)
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, "customer.credit", id, reason, map[string]any{"amount": amount, "balance": balance})
	return balance, nil
}

// SettleCredit reduces the amount owed, typically from an invoice
// payment. The balance never drops below zero; a payment larger than
// the outstanding credit applies only the outstanding part.
func (s *Service) SettleCredit(ctx context.Context, id int64, amount float64, reason string) (float64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("customers: settlement amount must be positive: %w", httpx.ErrValidation)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	applied := amount
	if applied > c.CurrentBalance {
		applied = c.CurrentBalance
	}
	if applied <= 0 {
		return c.CurrentBalance, nil
	}
	balance, err := s.repo.AddBalance(ctx, id, -applied)
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, "customer.settle", id, reason, map[string]any{"amount": applied, "balance": balance})
	return balance, nil
}

// AddNote attaches a note to a customer.
func (s *Service) AddNote(ctx context.Context, customerID int64, text string) (*Note, error) {
	if text == "" {
		return nil, fmt.Errorf("customers: note text required: %w", httpx.ErrValidation)
	}
	if _, err := s.repo.Get(ctx, customerID); err != nil {
		return nil, err
	}
	return s.repo.CreateNote(ctx, Note{
		CustomerID: customerID,
		Note:       text,
		CreatedBy:  shared.ActorFromContext(ctx).Name,
	})
}

// ListNotes returns a customer's notes.
func (s *Service) ListNotes(ctx context.Context, customerID int64) ([]Note, error) {
	if _, err := s.repo.Get(ctx, customerID); err != nil {
		return nil, err
	}
	return s.repo.ListNotes(ctx, customerID)
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, desc string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		Actor:       shared.ActorFromContext(ctx).Name,
		Action:      action,
		Entity:      "customer",
		EntityID:    strconv.FormatInt(id, 10),
		Description: desc,
		Meta:        meta,
		At:          s.now(),
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
