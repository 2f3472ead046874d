// Package search serves catalog pages from Meilisearch with a Postgres
// fallback.
package search

import (
	"context"

	"catalog/api/internal/collection"
	"catalog/api/internal/loader"
	"catalog/api/internal/logger"
	"catalog/api/internal/store"
)

// Searcher is a gateway that knows whether it is currently usable.
type Searcher interface {
	loader.Gateway
	Healthy() bool
}

// Indexer pushes products into a search index.
type Indexer interface {
	IndexProducts(products []store.Product) error
	IndexedCount() (int64, error)
}

// ProductLister loads the full catalog for reindexing.
type ProductLister interface {
	AllProducts(ctx context.Context) ([]store.Product, error)
}

// Service is the facade that tries the search index first and falls back to
// the primary store.
type Service struct {
	primary  Searcher
	fallback loader.Gateway
	log      logger.Logger
}

// NewService creates a search service. primary may be nil when no search
// index is configured.
func NewService(primary Searcher, fallback loader.Gateway, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{primary: primary, fallback: fallback, log: log.With("component", "search")}
}

func (s *Service) Fetch(ctx context.Context, q loader.Query) ([]collection.Item, error) {
	if s.primary != nil && s.primary.Healthy() {
		items, err := s.primary.Fetch(ctx, q)
		if err == nil {
			return items, nil
		}
		s.log.Warn("search index failed, falling back to store", "error", err)
	}
	return s.fallback.Fetch(ctx, q)
}

// Healthy reports whether the fallback path is usable, which is what the
// service ultimately depends on.
func (s *Service) Healthy() bool {
	return s.fallback != nil
}

// Reindex loads every product from src and pushes it to idx when the index
// is empty.
func (s *Service) Reindex(ctx context.Context, src ProductLister, idx Indexer) {
	if idx == nil || s.primary == nil || !s.primary.Healthy() {
		return
	}
	count, err := idx.IndexedCount()
	if err != nil {
		s.log.Warn("reindex: read index stats", "error", err)
		return
	}
	if count > 0 {
		return
	}
	products, err := src.AllProducts(ctx)
	if err != nil {
		s.log.Warn("reindex: load products", "error", err)
		return
	}
	if err := idx.IndexProducts(products); err != nil {
		s.log.Warn("reindex: index products", "error", err)
		return
	}
	s.log.Info("reindexed products", "count", len(products))
}
