package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"kpbuilder/api/internal/proposal"
)

const idxProducts = "kp_products"

// Meili implements Searcher and ProductIndexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the product index.
// An unreachable server is logged and retried by the health loop.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxProducts,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxProducts, err)
	}

	index := m.client.Index(idxProducts)
	filterable := []interface{}{"workspaceId", "currency"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxProducts, err)
	}
	searchable := []string{"name", "sku", "description"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxProducts, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) SearchProducts(_ context.Context, q Query) ([]proposal.Product, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	sr := &meili.SearchRequest{
		IndexUID: idxProducts,
		Query:    q.Text,
		Limit:    int64(normalizeLimit(q.Limit)),
		Offset:   int64(max(q.Offset, 0)),
	}
	if q.WorkspaceID != "" {
		sr.Filter = []string{workspaceFilter(q.WorkspaceID)}
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	products := make([]proposal.Product, 0)
	total := 0
	for _, res := range resp.Results {
		total += int(res.EstimatedTotalHits)
		for _, hit := range res.Hits {
			if p, ok := hitToProduct(hit); ok {
				products = append(products, p)
			}
		}
	}
	return products, total, nil
}

func workspaceFilter(workspaceID string) string {
	return fmt.Sprintf("workspaceId = %q", workspaceID)
}

func hitToProduct(hit meili.Hit) (proposal.Product, bool) {
	raw, err := json.Marshal(hit)
	if err != nil {
		return proposal.Product{}, false
	}
	var rec ProductRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.ID == "" {
		return proposal.Product{}, false
	}
	return rec.product(), true
}

// IndexProducts adds or updates catalog entries.
func (m *Meili) IndexProducts(products []proposal.Product) error {
	if len(products) == 0 {
		return nil
	}
	records := make([]ProductRecord, 0, len(products))
	for _, p := range products {
		records = append(records, recordFromProduct(p))
	}
	_, err := m.client.Index(idxProducts).AddDocuments(records, nil)
	return err
}
