package catalog

import (
	"fmt"
	"time"
)

// AdjustmentReason enumerates why a stock level changed.
type AdjustmentReason string

const (
	ReasonSale       AdjustmentReason = "sale"
	ReasonReturn     AdjustmentReason = "return"
	ReasonDamage     AdjustmentReason = "damage"
	ReasonRestock    AdjustmentReason = "restock"
	ReasonCorrection AdjustmentReason = "correction"
	ReasonTransfer   AdjustmentReason = "transfer"
	ReasonOther      AdjustmentReason = "other"
)

// Valid reports whether the reason is one of the known values.
func (r AdjustmentReason) Valid() bool {
	switch r {
	case ReasonSale, ReasonReturn, ReasonDamage, ReasonRestock, ReasonCorrection, ReasonTransfer, ReasonOther:
		return true
	}
	return false
}

// Category groups products for navigation.
type Category struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	ParentID     *int64    `json:"parent_id,omitempty"`
	IsActive     bool      `json:"is_active"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Product is a catalog item. TaxRate is a fraction (0.15 means 15%);
// invoice lines carry their own percentage-scaled rate.
type Product struct {
	ID                 int64     `json:"id"`
	SKU                string    `json:"sku"`
	Barcode            *string   `json:"barcode,omitempty"`
	Name               string    `json:"name"`
	Description        string    `json:"description,omitempty"`
	CategoryID         int64     `json:"category_id"`
	CostPrice          float64   `json:"cost_price"`
	SellPrice          float64   `json:"sell_price"`
	WholesalePrice     *float64  `json:"wholesale_price,omitempty"`
	MinWholesaleQty    int       `json:"minimum_wholesale_quantity"`
	TaxRate            float64   `json:"tax_rate"`
	Stock              int       `json:"stock"`
	LowStockThreshold  int       `json:"low_stock_threshold"`
	Unit               string    `json:"unit"`
	IsActive           bool      `json:"is_active"`
	TrackStock         bool      `json:"track_stock"`
	CreatedBy          string    `json:"created_by,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsLowStock reports whether the product sits at or below its threshold.
func (p *Product) IsLowStock() bool {
	return p.TrackStock && p.Stock <= p.LowStockThreshold
}

// InventoryValue returns cost_price * stock.
func (p *Product) InventoryValue() float64 {
	return p.CostPrice * float64(p.Stock)
}

// CanSell reports whether the product can be sold in the given quantity.
func (p *Product) CanSell(quantity int) bool {
	if !p.IsActive {
		return false
	}
	if p.TrackStock && p.Stock < quantity {
		return false
	}
	return true
}

// PriceFor returns the unit price for a customer profile along with a
// label describing how the price was selected. Tier selection happens
// first, the customer percentage discount second, multiplicatively on
// the selected tier price.
func (p *Product) PriceFor(profile PricingProfile, quantity int) (float64, string) {
	price := p.SellPrice
	priceType := "retail"

	if profile.Wholesale && p.WholesalePrice != nil && *p.WholesalePrice > 0 && quantity >= p.MinWholesaleQty {
		price = *p.WholesalePrice
		priceType = "wholesale"
	}

	if profile.DiscountPct > 0 {
		price -= price * (profile.DiscountPct / 100)
		priceType = fmt.Sprintf("%s +%g%% discount", priceType, profile.DiscountPct)
	}

	return price, priceType
}

// PricingProfile carries the customer attributes pricing depends on,
// so catalog does not import the customers package.
type PricingProfile struct {
	Wholesale   bool
	DiscountPct float64
}

// InventoryAdjustment is the immutable audit record written for every
// stock mutation. Rows are only ever inserted.
type InventoryAdjustment struct {
	ID             int64            `json:"id"`
	ProductID      int64            `json:"product_id"`
	QuantityChange int              `json:"quantity_change"`
	OldStock       int              `json:"old_stock"`
	NewStock       int              `json:"new_stock"`
	Reason         AdjustmentReason `json:"reason"`
	Notes          string           `json:"notes,omitempty"`
	PerformedBy    string           `json:"performed_by,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// CreateProductRequest carries validated input for product creation.
type CreateProductRequest struct {
	SKU               string   `json:"sku" validate:"required,max=100"`
	Barcode           *string  `json:"barcode,omitempty" validate:"omitempty,max=100"`
	Name              string   `json:"name" validate:"required,max=255"`
	Description       string   `json:"description,omitempty"`
	CategoryID        int64    `json:"category_id" validate:"required,gt=0"`
	CostPrice         float64  `json:"cost_price" validate:"gte=0"`
	SellPrice         float64  `json:"sell_price" validate:"gte=0"`
	WholesalePrice    *float64 `json:"wholesale_price,omitempty" validate:"omitempty,gte=0"`
	MinWholesaleQty   int      `json:"minimum_wholesale_quantity" validate:"gte=0"`
	TaxRate           *float64 `json:"tax_rate,omitempty" validate:"omitempty,gte=0,lte=1"`
	Stock             int      `json:"stock" validate:"gte=0"`
	LowStockThreshold *int     `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
	Unit              string   `json:"unit,omitempty" validate:"omitempty,max=20"`
	TrackStock        *bool    `json:"track_stock,omitempty"`
}

// UpdateProductRequest carries partial updates; nil fields are untouched.
type UpdateProductRequest struct {
	Barcode           *string  `json:"barcode,omitempty"`
	Name              *string  `json:"name,omitempty" validate:"omitempty,max=255"`
	Description       *string  `json:"description,omitempty"`
	CategoryID        *int64   `json:"category_id,omitempty" validate:"omitempty,gt=0"`
	CostPrice         *float64 `json:"cost_price,omitempty" validate:"omitempty,gte=0"`
	SellPrice         *float64 `json:"sell_price,omitempty" validate:"omitempty,gte=0"`
	WholesalePrice    *float64 `json:"wholesale_price,omitempty" validate:"omitempty,gte=0"`
	MinWholesaleQty   *int     `json:"minimum_wholesale_quantity,omitempty" validate:"omitempty,gte=0"`
	TaxRate           *float64 `json:"tax_rate,omitempty" validate:"omitempty,gte=0,lte=1"`
	LowStockThreshold *int     `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
	Unit              *string  `json:"unit,omitempty" validate:"omitempty,max=20"`
	IsActive          *bool    `json:"is_active,omitempty"`
	TrackStock        *bool    `json:"track_stock,omitempty"`
}

// ListProductsRequest filters product listings.
type ListProductsRequest struct {
	CategoryID *int64
	IsActive   *bool
	Search     string
	LowStock   bool
	Limit      int
	Offset     int
}

// AdjustStockInput describes a manual or sale-driven stock mutation.
type AdjustStockInput struct {
	ProductID int64
	Delta     int
	Reason    AdjustmentReason
	Notes     string
	Actor     string
}
