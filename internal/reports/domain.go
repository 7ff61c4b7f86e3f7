package reports

import "time"

// SalesSummary aggregates completed sales over a date range.
type SalesSummary struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	SaleCount   int       `json:"sale_count"`
	Revenue     float64   `json:"revenue"`
	Tax         float64   `json:"tax"`
	Discounts   float64   `json:"discounts"`
	AverageSale float64   `json:"average_sale"`
}

// TopProduct is one row of the best-sellers report.
type TopProduct struct {
	ProductID    int64   `json:"product_id"`
	SKU          string  `json:"sku"`
	Name         string  `json:"name"`
	QuantitySold int     `json:"quantity_sold"`
	Revenue      float64 `json:"revenue"`
}

// LowStockProduct is one row of the replenishment report.
type LowStockProduct struct {
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
}

// ReceivablesSummary totals open billing across all non-cancelled
// invoices.
type ReceivablesSummary struct {
	TotalBilled  float64 `json:"total_billed"`
	TotalPaid    float64 `json:"total_paid"`
	Outstanding  float64 `json:"outstanding"`
	OverdueCount int     `json:"overdue_count"`
}

// RangeFilter bounds a report to a closed date range.
type RangeFilter struct {
	From time.Time
	To   time.Time
}
