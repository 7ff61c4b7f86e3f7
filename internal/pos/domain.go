package pos

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SaleStatus is the sale lifecycle state. Refunded exists for external
// processes that mark a sale refunded directly; no transition here
// produces it.
type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "pending"
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusVoided    SaleStatus = "voided"
	SaleStatusRefunded  SaleStatus = "refunded"
)

// PaymentStatus tracks how much of the sale total has been paid.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// PaymentMethod enumerates tender types.
type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodCard   PaymentMethod = "card"
	MethodMobile PaymentMethod = "mobile"
	MethodCheck  PaymentMethod = "check"
	MethodCredit PaymentMethod = "credit"
	MethodOther  PaymentMethod = "other"

	// MethodMixed appears only at the sale level when more than one
	// tender was used.
	MethodMixed PaymentMethod = "mixed"
)

// Valid reports whether the payment method is known.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodMobile, MethodCheck, MethodCredit, MethodOther:
		return true
	}
	return false
}

// Sale is the transaction header owning line items and payments.
type Sale struct {
	ID            int64         `json:"id"`
	Reference     string        `json:"reference"`
	Cashier       string        `json:"cashier"`
	CustomerID    *int64        `json:"customer_id,omitempty"`
	Subtotal      float64       `json:"subtotal"`
	Tax           float64       `json:"tax"`
	Discount      float64       `json:"discount"`
	Total         float64       `json:"total"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	AmountPaid    float64       `json:"amount_paid"`
	Status        SaleStatus    `json:"status"`
	CouponCode    string        `json:"coupon_code,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	TerminalID    string        `json:"terminal_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	VoidedAt      *time.Time    `json:"voided_at,omitempty"`
	VoidedBy      string        `json:"voided_by,omitempty"`
	VoidReason    string        `json:"void_reason,omitempty"`

	Items    []SaleItem `json:"items,omitempty"`
	Payments []Payment  `json:"payments,omitempty"`
}

// SaleItem is one product line. TaxRate is the fraction captured from
// the product at sale time, so later price changes do not rewrite history.
type SaleItem struct {
	ID        int64   `json:"id"`
	SaleID    int64   `json:"sale_id"`
	ProductID int64   `json:"product_id"`
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	PriceType string  `json:"price_type,omitempty"`
	TaxRate   float64 `json:"tax_rate"`
	Discount  float64 `json:"discount"`
	LineTotal float64 `json:"line_total"`
}

// TaxAmount computes tax on the discounted line value.
func (i SaleItem) TaxAmount() float64 {
	return (i.UnitPrice*float64(i.Quantity) - i.Discount) * i.TaxRate
}

// Payment is one tender attached to a sale.
type Payment struct {
	ID             int64         `json:"id"`
	SaleID         *int64        `json:"sale_id,omitempty"`
	Amount         float64       `json:"amount"`
	Method         PaymentMethod `json:"method"`
	Status         string        `json:"status"`
	TransactionID  string        `json:"transaction_id,omitempty"`
	CardLastFour   string        `json:"card_last_four,omitempty"`
	AmountTendered *float64      `json:"amount_tendered,omitempty"`
	ChangeAmount   *float64      `json:"change_amount,omitempty"`
	Notes          string        `json:"notes,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// NewSaleReference builds a sale reference of the form
// SALE-YYYYMMDDHHMMSS-XXXXXXXX.
func NewSaleReference(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("SALE-%s-%s", now.Format("20060102150405"), suffix)
}

// CalculateTotals recomputes the sale amounts from its items. The
// sale-level discount is subtracted after tax, mirroring how the till
// presents coupon and manual discounts. A discount larger than the
// goods value bottoms out at a free sale, never a negative total.
func (s *Sale) CalculateTotals() {
	var subtotal, tax float64
	for _, item := range s.Items {
		subtotal += item.LineTotal
		tax += item.TaxAmount()
	}
	s.Subtotal = roundTo2(subtotal)
	s.Tax = roundTo2(tax)
	s.Total = roundTo2(math.Max(s.Subtotal+s.Tax-s.Discount, 0))
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SaleItemInput is one requested line.
type SaleItemInput struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	Discount  float64 `json:"discount" validate:"gte=0"`
}

// PaymentInput is one tendered payment.
type PaymentInput struct {
	Amount         float64       `json:"amount" validate:"required,gt=0"`
	Method         PaymentMethod `json:"method" validate:"required,oneof=cash card mobile check credit other"`
	TransactionID  string        `json:"transaction_id,omitempty"`
	CardLastFour   string        `json:"card_last_four,omitempty" validate:"omitempty,len=4"`
	AmountTendered *float64      `json:"amount_tendered,omitempty" validate:"omitempty,gte=0"`
	ChangeAmount   *float64      `json:"change_amount,omitempty" validate:"omitempty,gte=0"`
}

// CreateSaleRequest is the complete till request: identity, cart, tenders.
type CreateSaleRequest struct {
	CustomerID    *int64          `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	CustomerPhone string          `json:"customer_phone,omitempty" validate:"omitempty,max=20"`
	CustomerName  string          `json:"customer_name,omitempty" validate:"omitempty,max=200"`
	CustomerEmail string          `json:"customer_email,omitempty" validate:"omitempty,email,max=254"`
	Items         []SaleItemInput `json:"items" validate:"required,min=1,dive"`
	Payments      []PaymentInput  `json:"payments" validate:"required,min=1,dive"`
	CouponCode    string          `json:"coupon_code,omitempty" validate:"omitempty,max=50"`
	Discount      float64         `json:"discount" validate:"gte=0"`
	Notes         string          `json:"notes,omitempty"`
}

// ListSalesRequest filters sale listings.
type ListSalesRequest struct {
	Status     SaleStatus
	CustomerID *int64
	Cashier    string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}
