package search

import (
	"context"
	"strings"

	"kpbuilder/api/internal/proposal"
)

// ProductStore is the subset of the store used by the fallback searcher.
type ProductStore interface {
	SearchProductsILIKE(ctx context.Context, workspaceID, query string, limit int) ([]proposal.Product, error)
	ListProducts(ctx context.Context, workspaceID string) ([]proposal.Product, error)
}

// StoreSearcher implements Searcher with a case-insensitive substring match
// in Postgres.
type StoreSearcher struct {
	store ProductStore
}

func NewStoreSearcher(store ProductStore) *StoreSearcher {
	return &StoreSearcher{store: store}
}

// Healthy always returns true; without Postgres the whole app is down.
func (s *StoreSearcher) Healthy() bool {
	return true
}

// SearchProducts lists the whole catalog for a blank query.
func (s *StoreSearcher) SearchProducts(ctx context.Context, q Query) ([]proposal.Product, int, error) {
	limit := normalizeLimit(q.Limit)
	var (
		products []proposal.Product
		err      error
	)
	if strings.TrimSpace(q.Text) == "" {
		products, err = s.store.ListProducts(ctx, q.WorkspaceID)
	} else {
		products, err = s.store.SearchProductsILIKE(ctx, q.WorkspaceID, q.Text, limit+max(q.Offset, 0))
	}
	if err != nil {
		return nil, 0, err
	}
	total := len(products)
	offset := max(q.Offset, 0)
	if offset >= len(products) {
		return []proposal.Product{}, total, nil
	}
	products = products[offset:]
	if len(products) > limit {
		products = products[:limit]
	}
	return products, total, nil
}
