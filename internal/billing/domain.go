package billing

import (
	"fmt"
	"math"
	"time"
)

// InvoiceStatus is the invoice payment lifecycle. Cancelled is terminal
// and set explicitly; every other value is derived from amounts and the
// due date.
type InvoiceStatus string

const (
	StatusUnpaid    InvoiceStatus = "unpaid"
	StatusPartial   InvoiceStatus = "partial"
	StatusPaid      InvoiceStatus = "paid"
	StatusOverdue   InvoiceStatus = "overdue"
	StatusCancelled InvoiceStatus = "cancelled"
)

// PaymentTerms controls how the due date derives from the issue date.
type PaymentTerms string

const (
	TermsNet30        PaymentTerms = "net_30"
	TermsNet15        PaymentTerms = "net_15"
	TermsNet7         PaymentTerms = "net_7"
	TermsDueOnReceipt PaymentTerms = "due_on_receipt"
	TermsCustom       PaymentTerms = "custom"
)

// Valid reports whether the terms value is known.
func (t PaymentTerms) Valid() bool {
	switch t {
	case TermsNet30, TermsNet15, TermsNet7, TermsDueOnReceipt, TermsCustom:
		return true
	}
	return false
}

// Days returns the net-terms day count. Custom carries no implicit
// offset; callers supply the due date themselves.
func (t PaymentTerms) Days() int {
	switch t {
	case TermsNet30:
		return 30
	case TermsNet15:
		return 15
	case TermsNet7:
		return 7
	default:
		return 0
	}
}

// Invoice tracks net-terms billing for a customer, optionally derived
// from a completed sale.
type Invoice struct {
	ID             int64         `json:"id"`
	InvoiceNumber  string        `json:"invoice_number"`
	CustomerID     int64         `json:"customer_id"`
	SaleID         *int64        `json:"sale_id,omitempty"`
	IssueDate      time.Time     `json:"issue_date"`
	DueDate        time.Time     `json:"due_date"`
	PaymentTerms   PaymentTerms  `json:"payment_terms"`
	Subtotal       float64       `json:"subtotal"`
	TaxAmount      float64       `json:"tax_amount"`
	DiscountAmount float64       `json:"discount_amount"`
	TotalAmount    float64       `json:"total_amount"`
	AmountPaid     float64       `json:"amount_paid"`
	Status         InvoiceStatus `json:"payment_status"`
	Notes          string        `json:"notes,omitempty"`
	CreatedBy      string        `json:"created_by,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	Items    []InvoiceItem    `json:"items,omitempty"`
	Payments []InvoicePayment `json:"payments,omitempty"`
}

// BalanceDue is the outstanding amount.
func (inv *Invoice) BalanceDue() float64 {
	return roundTo2(inv.TotalAmount - inv.AmountPaid)
}

// IsOverdue reports whether the invoice is past due and still owing.
func (inv *Invoice) IsOverdue(today time.Time) bool {
	if inv.Status == StatusPaid || inv.Status == StatusCancelled {
		return false
	}
	return inv.DueDate.Before(truncateToDay(today))
}

// RecomputeStatus derives the payment status from amounts, then applies
// the overdue override. Cancelled is terminal and never recomputed.
func (inv *Invoice) RecomputeStatus(today time.Time) {
	if inv.Status == StatusCancelled {
		return
	}
	switch {
	case inv.AmountPaid <= 0:
		inv.Status = StatusUnpaid
	case inv.AmountPaid >= inv.TotalAmount:
		inv.Status = StatusPaid
	default:
		inv.Status = StatusPartial
	}
	if inv.Status != StatusPaid && inv.DueDate.Before(truncateToDay(today)) {
		inv.Status = StatusOverdue
	}
}

// DueDateFor computes a due date from issue date and terms.
func DueDateFor(issue time.Time, terms PaymentTerms) time.Time {
	return truncateToDay(issue).AddDate(0, 0, terms.Days())
}

// InvoiceNumber formats the public identifier for a year and sequence.
func InvoiceNumber(year, seq int) string {
	return fmt.Sprintf("INV-%d-%04d", year, seq)
}

// InvoiceItem is one billed line. TaxRatePct is a percentage (15 means
// 15%), unlike the catalog's fractional product tax rate.
type InvoiceItem struct {
	ID          int64   `json:"id"`
	InvoiceID   int64   `json:"invoice_id"`
	ProductID   *int64  `json:"product_id,omitempty"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Discount    float64 `json:"discount"`
	TaxRatePct  float64 `json:"tax_rate"`
	Total       float64 `json:"total"`
}

// Subtotal is the line value before tax.
func (i InvoiceItem) Subtotal() float64 {
	return i.UnitPrice*float64(i.Quantity) - i.Discount
}

// TaxAmount computes tax on the discounted line value.
func (i InvoiceItem) TaxAmount() float64 {
	return i.Subtotal() * (i.TaxRatePct / 100)
}

// ComputeTotal fills in the line total from its parts.
func (i *InvoiceItem) ComputeTotal() {
	i.Total = roundTo2(i.Subtotal() + i.TaxAmount())
}

// InvoicePayment links a received payment to an invoice.
type InvoicePayment struct {
	ID          int64     `json:"id"`
	InvoiceID   int64     `json:"invoice_id"`
	PaymentID   int64     `json:"payment_id"`
	Amount      float64   `json:"amount"`
	PaymentDate time.Time `json:"payment_date"`
	Notes       string    `json:"notes,omitempty"`
	RecordedBy  string    `json:"recorded_by,omitempty"`
}

// InvoiceItemInput is one requested invoice line.
type InvoiceItemInput struct {
	ProductID   *int64  `json:"product_id,omitempty" validate:"omitempty,gt=0"`
	Description string  `json:"description" validate:"required,max=255"`
	Quantity    int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	Discount    float64 `json:"discount" validate:"gte=0"`
	TaxRatePct  float64 `json:"tax_rate" validate:"gte=0,lte=100"`
}

// CreateInvoiceRequest carries validated input for standalone invoices.
type CreateInvoiceRequest struct {
	CustomerID     int64              `json:"customer_id" validate:"required,gt=0"`
	PaymentTerms   PaymentTerms       `json:"payment_terms,omitempty" validate:"omitempty,oneof=net_30 net_15 net_7 due_on_receipt custom"`
	DueDate        *time.Time         `json:"due_date,omitempty"`
	DiscountAmount float64            `json:"discount_amount" validate:"gte=0"`
	Items          []InvoiceItemInput `json:"items" validate:"required,min=1,dive"`
	Notes          string             `json:"notes,omitempty"`
}

// CreateFromSaleRequest derives an invoice from a completed sale.
type CreateFromSaleRequest struct {
	SaleID       int64        `json:"sale_id" validate:"required,gt=0"`
	PaymentTerms PaymentTerms `json:"payment_terms,omitempty" validate:"omitempty,oneof=net_30 net_15 net_7 due_on_receipt custom"`
	DueDate      *time.Time   `json:"due_date,omitempty"`
	Notes        string       `json:"notes,omitempty"`
}

// RecordPaymentRequest applies a payment against an invoice balance.
type RecordPaymentRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Method string  `json:"method" validate:"required,oneof=cash card mobile check credit other"`
	Notes  string  `json:"notes,omitempty"`
}

// ListInvoicesRequest filters invoice listings.
type ListInvoicesRequest struct {
	Status     InvoiceStatus
	CustomerID *int64
	Limit      int
	Offset     int
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
