package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-pos/meridian-pos/internal/jobs"
	"github.com/meridian-pos/meridian-pos/internal/reports"
)

// LowStockLister is the slice of the reports service the scan needs.
type LowStockLister interface {
	GetLowStock(ctx context.Context) ([]reports.LowStockProduct, error)
}

// LowStockScanJob logs every product at or below its threshold so the
// morning shift knows what to reorder.
type LowStockScanJob struct {
	Reports LowStockLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLowStockScanJob initialises the low stock scan handler.
func NewLowStockScanJob(reports LowStockLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{
		Reports: reports,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the low stock scan logic.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskCatalogLowStockScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting low stock scan")

	products, err := j.Reports.GetLowStock(ctx)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}
	if payload.Limit > 0 && len(products) > payload.Limit {
		products = products[:payload.Limit]
	}

	for _, p := range products {
		logger.Warn("product below threshold",
			slog.Int64("product_id", p.ProductID),
			slog.String("sku", p.SKU),
			slog.String("name", p.Name),
			slog.Int("stock", p.Stock),
			slog.Int("threshold", p.Threshold),
		)
	}
	j.metrics().AddLowStock(len(products))

	logger.Info("completed low stock scan",
		slog.Int("flagged", len(products)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCatalogLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskCatalogLowStockScan))
}

func (j *LowStockScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LowStockScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
