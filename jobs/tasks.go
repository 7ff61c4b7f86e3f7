package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBillingOverdueScan flips past-due invoices to overdue.
	TaskBillingOverdueScan = "billing:overdue_scan"
	// TaskCatalogLowStockScan flags products at or below threshold.
	TaskCatalogLowStockScan = "catalog:low_stock_scan"
)

// OverdueScanPayload configures the overdue invoice scan.
type OverdueScanPayload struct {
	// DryRun logs what would flip without writing.
	DryRun bool `json:"dry_run,omitempty"`
}

// NewOverdueScanTask constructs an Asynq task for the overdue scan.
func NewOverdueScanTask(payload OverdueScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBillingOverdueScan, data), nil
}

// LowStockScanPayload configures the low stock scan.
type LowStockScanPayload struct {
	// Limit caps how many products are reported per run. Zero means all.
	Limit int `json:"limit,omitempty"`
}

// NewLowStockScanTask constructs an Asynq task for the low stock scan.
func NewLowStockScanTask(payload LowStockScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogLowStockScan, data), nil
}
