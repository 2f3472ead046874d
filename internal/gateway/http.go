// Package gateway implements loader.Gateway over the catalog REST API.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"catalog/api/internal/collection"
	"catalog/api/internal/loader"
	"catalog/api/internal/logger"
)

type HTTPConfig struct {
	BaseURL    string
	Resource   string
	Timeout    time.Duration
	RetryCount int
	Headers    map[string]string
	Logger     logger.Logger
}

// HTTP speaks the `_sort/_order/_start/_end` paging contract: _start is
// inclusive and _end exclusive.
type HTTP struct {
	client   *resty.Client
	resource string
	log      logger.Logger
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeaders(cfg.Headers).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	client.AddRetryCondition(retryCondition)

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &HTTP{
		client:   client,
		resource: "/" + strings.Trim(cfg.Resource, "/"),
		log:      log.With("component", "gateway"),
	}
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// Params renders a query in the wire form.
func Params(q loader.Query) map[string]string {
	params := make(map[string]string, len(q.Filter)+4)
	for k, v := range q.Filter {
		params[k] = v
	}
	params["_sort"] = q.SortField
	params["_order"] = q.SortDirection.String()
	params["_start"] = strconv.Itoa(q.Offset)
	params["_end"] = strconv.Itoa(q.Offset + q.Limit)
	return params
}

func (h *HTTP) Fetch(ctx context.Context, q loader.Query) ([]collection.Item, error) {
	op := "GET " + h.resource
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParams(Params(q)).
		Get(h.resource)
	if err != nil {
		return nil, &loader.NetworkError{Op: op, Err: err}
	}
	if resp.IsError() {
		return nil, &loader.NetworkError{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))}
	}

	items, err := decodeItems(resp.Body())
	if err != nil {
		return nil, &loader.DecodeError{Err: err}
	}
	h.log.Debug("page fetched", "resource", h.resource, "offset", q.Offset, "count", len(items), "duration", resp.Time())
	return items, nil
}

func decodeItems(body []byte) ([]collection.Item, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("page is not a JSON array: %w", err)
	}
	items := make([]collection.Item, 0, len(raw))
	for i, entry := range raw {
		var item collection.Item
		if err := json.Unmarshal(entry, &item); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// WithDeadline bounds every fetch of gw by d. Expired fetches surface as
// *loader.NetworkError.
func WithDeadline(gw loader.Gateway, d time.Duration) loader.Gateway {
	if d <= 0 {
		return gw
	}
	return loader.GatewayFunc(func(ctx context.Context, q loader.Query) ([]collection.Item, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		items, err := gw.Fetch(ctx, q)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			var netErr *loader.NetworkError
			if !errors.As(err, &netErr) {
				return nil, &loader.NetworkError{Op: "fetch deadline", Err: err}
			}
		}
		return items, err
	})
}
