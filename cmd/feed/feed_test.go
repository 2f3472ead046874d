package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog/api/internal/app"
	"catalog/api/internal/collection"
	"catalog/api/internal/gateway"
	"catalog/api/internal/loader"
	"catalog/api/internal/sorting"
	"catalog/api/internal/store"
)

func catalogServer(t *testing.T, n int) *httptest.Server {
	t.Helper()
	reg, err := sorting.NewRegistry(store.SortableFields)
	require.NoError(t, err)
	items := make([]collection.Item, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, collection.NewItem(fmt.Sprintf("p%02d", i), map[string]any{
			"title": fmt.Sprintf("Item %02d", i),
			"price": i * 10,
		}))
	}
	server := app.NewHTTPServer(app.Options{
		Source:     app.NewMemorySource(reg, items),
		Registry:   reg,
		CORSOrigin: "*",
	})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func newTestSession(t *testing.T, baseURL string, limit int, out *bytes.Buffer) *session {
	t.Helper()
	gw := gateway.NewHTTP(gateway.HTTPConfig{BaseURL: baseURL + "/api", Resource: "products"})
	ctrl, err := loader.New(loader.Config{
		Fields:      store.SortableFields,
		Limit:       limit,
		InitialSort: sorting.Spec{Field: "price", Direction: sorting.Ascending},
	}, gateway.WithDeadline(gw, 2*time.Second))
	require.NoError(t, err)
	s := newSession(ctrl, out, sessionOptions{VisibleRows: limit, Wait: 10 * time.Millisecond, Settle: 3 * time.Second})
	t.Cleanup(s.close)
	return s
}

func TestSessionPaging(t *testing.T) {
	ts := catalogServer(t, 12)
	var out bytes.Buffer
	s := newTestSession(t, ts.URL, 5, &out)

	s.start()
	assert.Equal(t, loader.Ready, s.ctrl.State())
	assert.Contains(t, out.String(), "rows=5")

	require.NoError(t, s.run(strings.NewReader("more\nmore\nmore\n")))
	assert.Equal(t, loader.Exhausted, s.ctrl.State())
	assert.Len(t, s.ctrl.Snapshot(), 12)
	assert.Contains(t, out.String(), "nothing to load (exhausted)")
}

func TestSessionScrollLoadsMore(t *testing.T) {
	ts := catalogServer(t, 12)
	var out bytes.Buffer
	s := newTestSession(t, ts.URL, 5, &out)
	s.start()

	require.NoError(t, s.run(strings.NewReader("scroll 5\n")))
	assert.Len(t, s.ctrl.Snapshot(), 10)
	assert.Equal(t, loader.Ready, s.ctrl.State())
}

func TestSessionIgnoresStaleUpdates(t *testing.T) {
	ts := catalogServer(t, 12)
	var out bytes.Buffer
	s := newTestSession(t, ts.URL, 5, &out)
	s.start()

	s.updates <- loader.Ready
	s.updates <- loader.Failed
	require.NoError(t, s.run(strings.NewReader("more\n")))
	assert.Len(t, s.ctrl.Snapshot(), 10)
	assert.Equal(t, loader.Ready, s.ctrl.State())
}

func TestLimitFlagBounds(t *testing.T) {
	for _, limit := range []string{"0", "101", "150"} {
		cmd := newRootCommand()
		cmd.SetArgs([]string{"--url", "http://127.0.0.1:1/api", "--limit", limit})
		cmd.SetIn(strings.NewReader(""))
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		err := cmd.Execute()
		require.Error(t, err, limit)
		assert.Contains(t, err.Error(), "--limit", limit)
	}
}

func TestSessionSort(t *testing.T) {
	ts := catalogServer(t, 12)
	var out bytes.Buffer
	s := newTestSession(t, ts.URL, 5, &out)
	s.start()

	require.NoError(t, s.run(strings.NewReader("sort price\n")))
	assert.Equal(t, sorting.Spec{Field: "price", Direction: sorting.Descending}, s.ctrl.Sort())
	snapshot := s.ctrl.Snapshot()
	require.NotEmpty(t, snapshot)
	assert.Equal(t, "p12", snapshot[0].ID)
	assert.Contains(t, out.String(), "price ▼")

	out.Reset()
	require.NoError(t, s.run(strings.NewReader("sort color\nquit\nmore\n")))
	assert.Contains(t, out.String(), "color")
	assert.Len(t, s.ctrl.Snapshot(), 5, "commands after quit are ignored")
}

func TestSessionFilter(t *testing.T) {
	ts := catalogServer(t, 12)
	var out bytes.Buffer
	s := newTestSession(t, ts.URL, 5, &out)
	s.start()

	require.NoError(t, s.run(strings.NewReader("filter from=2024-01-01\n")))
	assert.Equal(t, loader.Empty, s.ctrl.State(), "items without createdAt fall outside any bound")

	require.NoError(t, s.run(strings.NewReader("filter\n")))
	assert.Equal(t, loader.Ready, s.ctrl.State())

	require.NoError(t, s.run(strings.NewReader("filter from=someday\n")))
	assert.Equal(t, loader.Failed, s.ctrl.State(), "the server rejects the bound")

	require.NoError(t, s.run(strings.NewReader("filter\nreload\n")))
	assert.Equal(t, loader.Ready, s.ctrl.State())
	assert.Len(t, s.ctrl.Snapshot(), 5)
}

func TestSessionFailure(t *testing.T) {
	ts := catalogServer(t, 3)
	var out bytes.Buffer
	s := newTestSession(t, ts.URL, 5, &out)
	ts.Close()

	s.start()
	assert.Equal(t, loader.Failed, s.ctrl.State())
	assert.Contains(t, out.String(), "failed")
}

func TestRenderTable(t *testing.T) {
	items := []collection.Item{collection.NewItem("p1", map[string]any{"title": "Lamp", "price": 35.5})}
	out := renderTable(store.SortableFields, sorting.Spec{Field: "title", Direction: sorting.Ascending}, items)
	assert.Contains(t, out, "title ▲")
	assert.Contains(t, out, "Lamp")
	assert.Contains(t, out, "35.5")
}
