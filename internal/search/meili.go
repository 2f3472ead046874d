package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"catalog/api/internal/collection"
	"catalog/api/internal/loader"
	"catalog/api/internal/logger"
	"catalog/api/internal/store"
)

const idxProducts = "catalog_products"

// internal attributes that never reach the table
var hiddenAttributes = []string{"createdAtUnix", "_formatted", "_rankingScore"}

// Meili implements loader.Gateway via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	log     logger.Logger
}

// NewMeili creates a Meilisearch client and configures the products index.
// An unreachable server is tolerated; the health loop picks it up later.
func NewMeili(url, apiKey string, log logger.Logger) *Meili {
	if log == nil {
		log = logger.Nop()
	}
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
		log:    log.With("component", "meili"),
	}

	if _, err := client.Health(); err != nil {
		m.log.Warn("meilisearch unavailable", "url", url, "error", err)
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
		m.log.Debug("create index (may already exist)", "index", idxProducts, "error", err)
	}

	index := m.client.Index(idxProducts)
	sortable := sortableAttributes()
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		m.log.Warn("update sortable attrs", "index", idxProducts, "error", err)
	}
	filterable := []interface{}{"createdAtUnix", "status"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warn("update filterable attrs", "index", idxProducts, "error", err)
	}
	searchable := []string{"title", "description"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn("update searchable attrs", "index", idxProducts, "error", err)
	}
}

// sortableAttributes lists every attribute searchRequest may sort on,
// including the id tie-break.
func sortableAttributes() []string {
	attrs := make([]string, 0, len(store.SortableFields)+1)
	for _, f := range store.SortableFields {
		attrs = append(attrs, f.Name)
	}
	return append(attrs, "id")
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
				m.log.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Fetch(ctx context.Context, q loader.Query) ([]collection.Item, error) {
	if !m.healthy.Load() {
		return nil, &loader.NetworkError{Op: "meilisearch", Err: fmt.Errorf("unhealthy")}
	}
	req, err := searchRequest(q)
	if err != nil {
		return nil, &loader.DecodeError{Err: err}
	}

	resp, err := m.client.Index(idxProducts).SearchWithContext(ctx, "", req)
	if err != nil {
		m.healthy.Store(false)
		return nil, &loader.NetworkError{Op: "meilisearch search", Err: err}
	}

	items := make([]collection.Item, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		item, err := hitToItem(hit)
		if err != nil {
			return nil, &loader.DecodeError{Err: err}
		}
		items = append(items, item)
	}
	return items, nil
}

func searchRequest(q loader.Query) (*meili.SearchRequest, error) {
	params, err := store.ParamsFromQuery(q)
	if err != nil {
		return nil, err
	}
	req := &meili.SearchRequest{
		Offset: int64(q.Offset),
		Limit:  int64(q.Limit),
		Sort:   []string{fmt.Sprintf("%s:%s", q.SortField, q.SortDirection), "id:asc"},
	}
	var filters []string
	if params.From != nil {
		filters = append(filters, fmt.Sprintf("createdAtUnix >= %d", params.From.Unix()))
	}
	if params.To != nil {
		filters = append(filters, fmt.Sprintf("createdAtUnix < %d", params.To.Unix()))
	}
	if len(filters) > 0 {
		req.Filter = filters
	}
	return req, nil
}

func hitToItem(hit meili.Hit) (collection.Item, error) {
	trimmed := make(map[string]json.RawMessage, len(hit))
	for k, v := range hit {
		trimmed[k] = v
	}
	for _, k := range hiddenAttributes {
		delete(trimmed, k)
	}
	data, err := json.Marshal(trimmed)
	if err != nil {
		return collection.Item{}, fmt.Errorf("encode hit: %w", err)
	}
	var item collection.Item
	if err := json.Unmarshal(data, &item); err != nil {
		return collection.Item{}, fmt.Errorf("decode hit: %w", err)
	}
	return item, nil
}

// ProductRecord is the data we index for a product.
type ProductRecord struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Price         float64 `json:"price"`
	Discount      float64 `json:"discount"`
	Quantity      int     `json:"quantity"`
	Sales         int     `json:"sales"`
	Status        int     `json:"status"`
	CreatedAt     string  `json:"createdAt"`
	CreatedAtUnix int64   `json:"createdAtUnix"`
}

func recordFromProduct(p store.Product) ProductRecord {
	return ProductRecord{
		ID:            p.ID,
		Title:         p.Title,
		Description:   p.Description,
		Price:         p.Price,
		Discount:      p.Discount,
		Quantity:      p.Quantity,
		Sales:         p.Sales,
		Status:        p.Status,
		CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339),
		CreatedAtUnix: p.CreatedAt.Unix(),
	}
}

// IndexProducts bulk-indexes products.
func (m *Meili) IndexProducts(products []store.Product) error {
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

// IndexedCount reports how many documents the products index holds.
func (m *Meili) IndexedCount() (int64, error) {
	stats, err := m.client.Index(idxProducts).GetStats()
	if err != nil {
		return 0, err
	}
	return stats.NumberOfDocuments, nil
}
