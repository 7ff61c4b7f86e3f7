package reports

import (
	"context"
	"time"
)

// RepositoryPort abstracts the aggregate queries for the service.
type RepositoryPort interface {
	SalesSummary(ctx context.Context, from, to time.Time) (SalesSummary, error)
	TopProducts(ctx context.Context, from, to time.Time, limit int) ([]TopProduct, error)
	LowStock(ctx context.Context) ([]LowStockProduct, error)
	Receivables(ctx context.Context) (ReceivablesSummary, error)
}

// Service resolves reports through the cache.
type Service struct {
	repo  RepositoryPort
	cache *Cache
}

// NewService builds Service. cache may be nil.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// GetSalesSummary resolves the range summary using cache-aware lookups.
func (s *Service) GetSalesSummary(ctx context.Context, filter RangeFilter) (SalesSummary, error) {
	loader := func(ctx context.Context) (interface{}, error) {
		return s.repo.SalesSummary(ctx, filter.From, filter.To)
	}
	if s.cache == nil {
		value, err := loader(ctx)
		if err != nil {
			return SalesSummary{}, err
		}
		return value.(SalesSummary), nil
	}
	key, err := s.cache.BuildKey(ctx, keySalesSummary(filter.From, filter.To))
	if err != nil {
		return SalesSummary{}, err
	}
	var summary SalesSummary
	if err := s.cache.FetchJSON(ctx, key, &summary, loader); err != nil {
		return SalesSummary{}, err
	}
	return summary, nil
}

// GetTopProducts resolves the best-sellers list.
func (s *Service) GetTopProducts(ctx context.Context, filter RangeFilter, limit int) ([]TopProduct, error) {
	if limit <= 0 {
		limit = 10
	}
	loader := func(ctx context.Context) (interface{}, error) {
		return s.repo.TopProducts(ctx, filter.From, filter.To, limit)
	}
	if s.cache == nil {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		return value.([]TopProduct), nil
	}
	key, err := s.cache.BuildKey(ctx, keyTopProducts(filter.From, filter.To, limit))
	if err != nil {
		return nil, err
	}
	var products []TopProduct
	if err := s.cache.FetchJSON(ctx, key, &products, loader); err != nil {
		return nil, err
	}
	return products, nil
}

// GetLowStock returns products needing replenishment. Never cached:
// the till moves stock constantly and stale rows here cost real money.
func (s *Service) GetLowStock(ctx context.Context) ([]LowStockProduct, error) {
	return s.repo.LowStock(ctx)
}

// GetReceivables resolves the open billing totals.
func (s *Service) GetReceivables(ctx context.Context) (ReceivablesSummary, error) {
	loader := func(ctx context.Context) (interface{}, error) {
		return s.repo.Receivables(ctx)
	}
	if s.cache == nil {
		value, err := loader(ctx)
		if err != nil {
			return ReceivablesSummary{}, err
		}
		return value.(ReceivablesSummary), nil
	}
	key, err := s.cache.BuildKey(ctx, keyReceivables())
	if err != nil {
		return ReceivablesSummary{}, err
	}
	var summary ReceivablesSummary
	if err := s.cache.FetchJSON(ctx, key, &summary, loader); err != nil {
		return ReceivablesSummary{}, err
	}
	return summary, nil
}

// Invalidate bumps the cache version after writes elsewhere.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
