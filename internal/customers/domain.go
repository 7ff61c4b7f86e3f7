package customers

import (
	"strings"
	"time"

	"github.com/meridian-pos/meridian-pos/internal/catalog"
)

// CustomerType categorizes how a customer buys.
type CustomerType string

const (
	TypeRetail    CustomerType = "retail"
	TypeWholesale CustomerType = "wholesale"
	TypeVIP       CustomerType = "vip"
)

// Valid reports whether the customer type is known.
func (t CustomerType) Valid() bool {
	return t == TypeRetail || t == TypeWholesale || t == TypeVIP
}

// LoyaltyTier is derived purely from the points balance.
type LoyaltyTier string

const (
	TierBronze   LoyaltyTier = "bronze"
	TierSilver   LoyaltyTier = "silver"
	TierGold     LoyaltyTier = "gold"
	TierPlatinum LoyaltyTier = "platinum"
)

// TierForPoints returns the loyalty tier a points balance maps to.
func TierForPoints(points int) LoyaltyTier {
	switch {
	case points >= 10000:
		return TierPlatinum
	case points >= 5000:
		return TierGold
	case points >= 2000:
		return TierSilver
	default:
		return TierBronze
	}
}

// Customer is a store account. CurrentBalance is money owed to the
// store; wholesale settlement shortfalls land here and payments against
// sale-linked invoices settle it back down.
type Customer struct {
	ID             int64        `json:"id"`
	CustomerID     string       `json:"customer_id"`
	Name           string       `json:"name"`
	Email          string       `json:"email,omitempty"`
	Phone          string       `json:"phone,omitempty"`
	AddressLine1   string       `json:"address_line1,omitempty"`
	AddressLine2   string       `json:"address_line2,omitempty"`
	City           string       `json:"city,omitempty"`
	State          string       `json:"state,omitempty"`
	PostalCode     string       `json:"postal_code,omitempty"`
	Country        string       `json:"country,omitempty"`
	Tags           string       `json:"tags,omitempty"`
	Type           CustomerType `json:"customer_type"`
	LoyaltyPoints  int          `json:"loyalty_points"`
	LoyaltyTier    LoyaltyTier  `json:"loyalty_tier"`
	CreditLimit    float64      `json:"credit_limit"`
	CurrentBalance float64      `json:"current_balance"`
	DiscountPct    float64      `json:"discount_percentage"`
	IsActive       bool         `json:"is_active"`
	Notes          string       `json:"notes,omitempty"`
	DateOfBirth    *time.Time   `json:"date_of_birth,omitempty"`
	CreatedBy      string       `json:"created_by,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// TagList splits the comma-separated tags field.
func (c *Customer) TagList() []string {
	if c.Tags == "" {
		return nil
	}
	parts := strings.Split(c.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// FullAddress joins the non-empty address parts.
func (c *Customer) FullAddress() string {
	parts := []string{c.AddressLine1, c.AddressLine2, c.City, c.State, c.PostalCode, c.Country}
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// PricingProfile maps the customer onto the catalog's pricing inputs.
func (c *Customer) PricingProfile() catalog.PricingProfile {
	return catalog.PricingProfile{
		Wholesale:   c.Type == TypeWholesale,
		DiscountPct: c.DiscountPct,
	}
}

// Note is a timestamped interaction record attached to a customer.
type Note struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	Note       string    `json:"note"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateCustomerRequest carries validated input for customer creation.
type CreateCustomerRequest struct {
	Name         string       `json:"name" validate:"required,max=200"`
	Email        string       `json:"email,omitempty" validate:"omitempty,email"`
	Phone        string       `json:"phone,omitempty" validate:"omitempty,max=20"`
	AddressLine1 string       `json:"address_line1,omitempty" validate:"omitempty,max=255"`
	AddressLine2 string       `json:"address_line2,omitempty" validate:"omitempty,max=255"`
	City         string       `json:"city,omitempty" validate:"omitempty,max=100"`
	State        string       `json:"state,omitempty" validate:"omitempty,max=100"`
	PostalCode   string       `json:"postal_code,omitempty" validate:"omitempty,max=20"`
	Country      string       `json:"country,omitempty" validate:"omitempty,max=100"`
	Tags         string       `json:"tags,omitempty" validate:"omitempty,max=500"`
	Type         CustomerType `json:"customer_type,omitempty" validate:"omitempty,oneof=retail wholesale vip"`
	CreditLimit  float64      `json:"credit_limit" validate:"gte=0"`
	DiscountPct  float64      `json:"discount_percentage" validate:"gte=0,lte=100"`
	Notes        string       `json:"notes,omitempty"`
	DateOfBirth  *time.Time   `json:"date_of_birth,omitempty"`
}

// UpdateCustomerRequest carries partial updates; nil fields are untouched.
type UpdateCustomerRequest struct {
	Name         *string       `json:"name,omitempty" validate:"omitempty,max=200"`
	Email        *string       `json:"email,omitempty" validate:"omitempty,email"`
	Phone        *string       `json:"phone,omitempty" validate:"omitempty,max=20"`
	AddressLine1 *string       `json:"address_line1,omitempty"`
	AddressLine2 *string       `json:"address_line2,omitempty"`
	City         *string       `json:"city,omitempty"`
	State        *string       `json:"state,omitempty"`
	PostalCode   *string       `json:"postal_code,omitempty"`
	Country      *string       `json:"country,omitempty"`
	Tags         *string       `json:"tags,omitempty"`
	Type         *CustomerType `json:"customer_type,omitempty" validate:"omitempty,oneof=retail wholesale vip"`
	CreditLimit  *float64      `json:"credit_limit,omitempty" validate:"omitempty,gte=0"`
	DiscountPct  *float64      `json:"discount_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	IsActive     *bool         `json:"is_active,omitempty"`
	Notes        *string       `json:"notes,omitempty"`
	DateOfBirth  *time.Time    `json:"date_of_birth,omitempty"`
}

// ListCustomersRequest filters customer listings.
type ListCustomersRequest struct {
	Type     CustomerType
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}
