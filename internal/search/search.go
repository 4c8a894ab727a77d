// Package search finds catalog products for import into a proposal. It
// prefers Meilisearch and falls back to a substring match in Postgres.
package search

import (
	"context"

	"kpbuilder/api/internal/proposal"
)

// Query describes a catalog search request.
type Query struct {
	WorkspaceID string
	Text        string
	Limit       int
	Offset      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []proposal.Product `json:"results"`
	Total   int                `json:"total"`
	Query   string             `json:"query"`
	Source  string             `json:"source"`
}

// Searcher can execute a product search.
type Searcher interface {
	SearchProducts(ctx context.Context, q Query) ([]proposal.Product, int, error)
	Healthy() bool
}

// ProductIndexer can push catalog entries into a search index.
type ProductIndexer interface {
	IndexProducts(products []proposal.Product) error
}

// ProductRecord is the data we index for a product.
type ProductRecord struct {
	ID          string  `json:"id"`
	WorkspaceID string  `json:"workspaceId"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	SKU         string  `json:"sku"`
	Price       float64 `json:"price"`
	Unit        string  `json:"unit"`
	Currency    string  `json:"currency"`
}

func recordFromProduct(p proposal.Product) ProductRecord {
	return ProductRecord(p)
}

func (r ProductRecord) product() proposal.Product {
	return proposal.Product(r)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
