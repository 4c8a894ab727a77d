package search

import (
	"context"
	"log"

	"kpbuilder/api/internal/proposal"
)

const (
	SourceMeili    = "meilisearch"
	SourceFallback = "postgres"
)

// Service is the facade that tries Meilisearch first and falls back to the
// store.
type Service struct {
	primary  Searcher
	indexer  ProductIndexer
	fallback Searcher
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, fallback Searcher) *Service {
	s := &Service{fallback: fallback}
	if meili != nil {
		s.primary = meili
		s.indexer = meili
	}
	return s
}

// NewServiceWith wires arbitrary searchers, mostly for tests.
func NewServiceWith(primary Searcher, indexer ProductIndexer, fallback Searcher) *Service {
	return &Service{primary: primary, indexer: indexer, fallback: fallback}
}

// SearchProducts tries the primary index if healthy, otherwise the fallback.
func (s *Service) SearchProducts(ctx context.Context, q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.SearchProducts(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: SourceMeili}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	if s.fallback == nil {
		return Response{Results: []proposal.Product{}, Query: q.Text, Source: SourceFallback}
	}
	results, total, err := s.fallback.SearchProducts(ctx, q)
	if err != nil {
		log.Printf("search: postgres fallback error: %v", err)
		return Response{Results: []proposal.Product{}, Total: 0, Query: q.Text, Source: SourceFallback}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: SourceFallback}
}

// Healthy reports whether the primary index is serving.
func (s *Service) Healthy() bool {
	return s.primary != nil && s.primary.Healthy()
}

// Reindex pushes the full catalog synchronously. Called during bootstrap.
func (s *Service) Reindex(products []proposal.Product) error {
	if s.indexer == nil || !s.Healthy() {
		return nil
	}
	return s.indexer.IndexProducts(products)
}

func nonNil(results []proposal.Product) []proposal.Product {
	if results == nil {
		return []proposal.Product{}
	}
	return results
}
