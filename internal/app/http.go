package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"catalog/api/internal/collection"
	"catalog/api/internal/config"
	"catalog/api/internal/loader"
	"catalog/api/internal/logger"
	"catalog/api/internal/sorting"
	"catalog/api/internal/store"
)

const (
	defaultPageSize = 30
	resourceName    = "products"
)

// PageCache is a read-through cache for windows of the catalog.
type PageCache interface {
	Key(resource string, q loader.Query) string
	Get(ctx context.Context, key string) ([]collection.Item, bool, error)
	Set(ctx context.Context, key string, items []collection.Item) error
}

type cachePurger interface {
	Purge(ctx context.Context, resource string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Source     loader.Gateway
	Registry   *sorting.Registry
	Cache      PageCache
	Database   Pinger
	CORSOrigin string
	Logger     logger.Logger
}

type HTTPServer struct {
	source     loader.Gateway
	registry   *sorting.Registry
	cache      PageCache
	database   Pinger
	corsOrigin string
	log        logger.Logger
}

func NewHTTPServer(opts Options) *HTTPServer {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPServer{
		source:     opts.Source,
		registry:   opts.Registry,
		cache:      opts.Cache,
		database:   opts.Database,
		corsOrigin: opts.CORSOrigin,
		log:        log.With("component", "http"),
	}
}

// PurgeCache drops every cached page of the catalog. Pages written before a
// migration or reindex may no longer match the source.
func (s *HTTPServer) PurgeCache(ctx context.Context) error {
	purger, ok := s.cache.(cachePurger)
	if !ok {
		return nil
	}
	if err := purger.Purge(ctx, resourceName); err != nil {
		return err
	}
	s.log.Info("page cache purged", "resource", resourceName)
	return nil
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.URL.Path == "/api/"+resourceName {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		s.handleProducts(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}

	if s.database != nil {
		checks["database"] = map[string]any{"status": "ok"}
		if err := s.database.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}
	// cache failures never fail readiness
	if pinger, ok := s.cache.(Pinger); ok {
		checks["cache"] = map[string]any{"status": "ok"}
		if err := pinger.Ping(ctx); err != nil {
			checks["cache"] = map[string]any{"status": "degraded", "error": err.Error()}
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleProducts(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseQuery(r.URL.Query())
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	items, err := s.fetch(r.Context(), q)
	if err != nil {
		s.log.Warn("catalog fetch failed", "request_id", requestID(r.Context()), "error", err)
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	if items == nil {
		items = []collection.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

// parseQuery reads the _sort/_order/_start/_end window and the from/to
// filter. An absent _end means one default page.
func (s *HTTPServer) parseQuery(values url.Values) (loader.Query, error) {
	spec := s.registry.Default()
	if field := strings.TrimSpace(values.Get("_sort")); field != "" {
		spec.Field = field
		spec.Direction = sorting.Ascending
	}
	if order := strings.TrimSpace(values.Get("_order")); order != "" {
		dir, err := sorting.ParseDirection(strings.ToLower(order))
		if err != nil {
			return loader.Query{}, invalidQuery("Invalid _order", map[string]any{"_order": order})
		}
		spec.Direction = dir
	}
	if err := s.registry.Validate(spec); err != nil {
		return loader.Query{}, err
	}

	start, err := intParam(values, "_start", 0)
	if err != nil {
		return loader.Query{}, err
	}
	end, err := intParam(values, "_end", start+defaultPageSize)
	if err != nil {
		return loader.Query{}, err
	}
	if start < 0 || end < start {
		return loader.Query{}, invalidQuery("Invalid window", map[string]any{"_start": start, "_end": end})
	}
	limit := end - start
	if limit > config.MaxPageSize {
		limit = config.MaxPageSize
	}

	q := loader.Query{
		SortField:     spec.Field,
		SortDirection: spec.Direction,
		Offset:        start,
		Limit:         limit,
	}
	for _, key := range []string{"from", "to"} {
		if value := strings.TrimSpace(values.Get(key)); value != "" {
			if q.Filter == nil {
				q.Filter = map[string]string{}
			}
			q.Filter[key] = value
		}
	}
	if _, err := store.ParamsFromQuery(q); err != nil {
		return loader.Query{}, invalidQuery(err.Error(), nil)
	}
	return q, nil
}

func intParam(values url.Values, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidQuery("Invalid "+key, map[string]any{key: raw})
	}
	return parsed, nil
}

func (s *HTTPServer) fetch(ctx context.Context, q loader.Query) ([]collection.Item, error) {
	if q.Limit == 0 {
		return nil, nil
	}
	if s.cache == nil {
		return s.source.Fetch(ctx, q)
	}

	key := s.cache.Key(resourceName, q)
	items, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("page cache read failed", "key", key, "error", err)
	}
	if ok {
		return items, nil
	}

	items, err = s.source.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, items); err != nil {
		s.log.Warn("page cache write failed", "key", key, "error", err)
	}
	return items, nil
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		next.ServeHTTP(writer, r)

		s.log.Info("request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}
