package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog/api/internal/cache"
	"catalog/api/internal/collection"
	"catalog/api/internal/config"
	"catalog/api/internal/loader"
	"catalog/api/internal/sorting"
	"catalog/api/internal/store"
)

func testRegistry(t *testing.T) *sorting.Registry {
	t.Helper()
	reg, err := sorting.NewRegistry(store.SortableFields)
	require.NoError(t, err)
	return reg
}

func catalog() []collection.Item {
	return []collection.Item{
		collection.NewItem("p1", map[string]any{"title": "lamp", "price": 35, "createdAt": "2024-01-10T00:00:00Z"}),
		collection.NewItem("p2", map[string]any{"title": "Desk", "price": 210, "createdAt": "2024-02-10T00:00:00Z"}),
		collection.NewItem("p3", map[string]any{"title": "chair", "price": 90, "createdAt": "2024-03-10T00:00:00Z"}),
		collection.NewItem("p4", map[string]any{"title": "Lamp", "price": 40, "createdAt": "2024-04-10T00:00:00Z"}),
	}
}

type countingSource struct {
	inner loader.Gateway
	err   error
	calls atomic.Int32
}

func (c *countingSource) Fetch(ctx context.Context, q loader.Query) ([]collection.Item, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Fetch(ctx, q)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()
	if opts.Registry == nil {
		opts.Registry = testRegistry(t)
	}
	if opts.Source == nil {
		opts.Source = NewMemorySource(opts.Registry, catalog())
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	return NewHTTPServer(opts).Handler()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func ids(t *testing.T, rr *httptest.ResponseRecorder) []string {
	t.Helper()
	var items []collection.Item
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	code, _ := body["code"].(string)
	return code
}

func TestHealthEndpoint(t *testing.T) {
	rr := get(t, newTestServer(t, Options{}), "/api/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("Should be ready when the database answers", func(t *testing.T) {
		h := newTestServer(t, Options{Database: pingFunc(func(context.Context) error { return nil })})
		rr := get(t, h, "/api/ready")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"status":"ready"`)
	})

	t.Run("Should report an unreachable database", func(t *testing.T) {
		h := newTestServer(t, Options{Database: pingFunc(func(context.Context) error { return errors.New("connection refused") })})
		rr := get(t, h, "/api/ready")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, rr.Body.String(), "connection refused")
	})
}

func TestProductsWindow(t *testing.T) {
	h := newTestServer(t, Options{})

	rr := get(t, h, "/api/products?_sort=price&_order=desc&_start=0&_end=2")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"p2", "p3"}, ids(t, rr))

	rr = get(t, h, "/api/products?_sort=price&_order=desc&_start=2&_end=4")
	assert.Equal(t, []string{"p4", "p1"}, ids(t, rr))

	rr = get(t, h, "/api/products?_sort=price&_order=desc&_start=4&_end=6")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestProductsWindowCap(t *testing.T) {
	reg := testRegistry(t)
	items := make([]collection.Item, 0, 150)
	for i := 0; i < 150; i++ {
		items = append(items, collection.NewItem(fmt.Sprintf("p%03d", i), map[string]any{"title": "x", "price": i}))
	}
	h := newTestServer(t, Options{Registry: reg, Source: NewMemorySource(reg, items)})

	rr := get(t, h, "/api/products?_sort=price&_start=0&_end=150")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, ids(t, rr), config.MaxPageSize)
}

func TestProductsTitleCollation(t *testing.T) {
	rr := get(t, newTestServer(t, Options{}), "/api/products?_sort=title&_order=asc")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"p3", "p2", "p4", "p1"}, ids(t, rr), "case-insensitive with uppercase first on ties")
}

func TestProductsDefaultSort(t *testing.T) {
	rr := get(t, newTestServer(t, Options{}), "/api/products")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"p3", "p2", "p4", "p1"}, ids(t, rr))
}

func TestProductsFilter(t *testing.T) {
	rr := get(t, newTestServer(t, Options{}), "/api/products?_sort=price&from=2024-02-01&to=2024-04-01")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"p3", "p2"}, ids(t, rr))
}

func TestProductsErrors(t *testing.T) {
	h := newTestServer(t, Options{})
	cases := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"unknown field", "/api/products?_sort=color", http.StatusUnprocessableEntity, "UNSORTABLE_FIELD"},
		{"bad order", "/api/products?_order=sideways", http.StatusBadRequest, "INVALID_QUERY"},
		{"bad start", "/api/products?_start=x", http.StatusBadRequest, "INVALID_QUERY"},
		{"inverted window", "/api/products?_start=10&_end=5", http.StatusBadRequest, "INVALID_QUERY"},
		{"bad bound", "/api/products?from=yesterday", http.StatusBadRequest, "INVALID_QUERY"},
		{"unknown route", "/api/orders", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := get(t, h, tc.target)
			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, tc.code, errorCode(t, rr))
		})
	}
}

func TestProductsSourceFailure(t *testing.T) {
	src := &countingSource{err: &loader.NetworkError{Op: "query", Err: errors.New("timeout")}}
	rr := get(t, newTestServer(t, Options{Source: src}), "/api/products")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "SOURCE_ERROR", errorCode(t, rr))
}

func TestProductsPageCache(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	pages := cache.NewRedisPagesWithClient(client, time.Minute)
	t.Cleanup(func() { _ = pages.Close() })

	reg := testRegistry(t)
	src := &countingSource{inner: NewMemorySource(reg, catalog())}
	h := newTestServer(t, Options{Registry: reg, Source: src, Cache: pages})

	first := get(t, h, "/api/products?_sort=price&_start=0&_end=2")
	second := get(t, h, "/api/products?_sort=price&_start=0&_end=2")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, ids(t, first), ids(t, second))
	assert.Equal(t, int32(1), src.calls.Load())

	get(t, h, "/api/products?_sort=price&_start=2&_end=4")
	assert.Equal(t, int32(2), src.calls.Load())

	rr := get(t, h, "/api/ready")
	assert.Contains(t, rr.Body.String(), `"cache"`)
}

func TestPurgeCache(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	pages := cache.NewRedisPagesWithClient(client, time.Minute)
	t.Cleanup(func() { _ = pages.Close() })

	reg := testRegistry(t)
	src := &countingSource{inner: NewMemorySource(reg, catalog())}
	server := NewHTTPServer(Options{Registry: reg, Source: src, Cache: pages, CORSOrigin: "*"})
	h := server.Handler()

	get(t, h, "/api/products?_sort=price&_start=0&_end=2")
	require.NotEmpty(t, s.Keys())

	require.NoError(t, server.PurgeCache(context.Background()))
	assert.Empty(t, s.Keys())
	get(t, h, "/api/products?_sort=price&_start=0&_end=2")
	assert.Equal(t, int32(2), src.calls.Load())

	s.Close()
	assert.Error(t, server.PurgeCache(context.Background()))
	assert.NoError(t, NewHTTPServer(Options{Registry: reg, Source: src}).PurgeCache(context.Background()))
}

func TestMemorySource(t *testing.T) {
	reg := testRegistry(t)
	src := NewMemorySource(reg, catalog())

	_, err := src.Fetch(context.Background(), loader.Query{SortField: "weight", SortDirection: sorting.Ascending, Limit: 2})
	var cfgErr *sorting.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	items, err := src.Fetch(context.Background(), loader.Query{SortField: "price", SortDirection: sorting.Ascending, Offset: 3, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Fetch(ctx, loader.Query{SortField: "price", SortDirection: sorting.Ascending, Limit: 10})
	var netErr *loader.NetworkError
	assert.ErrorAs(t, err, &netErr)
}
