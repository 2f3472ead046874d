package app

import (
	"context"
	"time"

	"catalog/api/internal/collection"
	"catalog/api/internal/loader"
	"catalog/api/internal/sorting"
	"catalog/api/internal/store"
)

// MemorySource serves a fixed catalog from memory, ordered with the
// registry's comparators. It backs demos and tests where no database runs.
type MemorySource struct {
	registry *sorting.Registry
	items    []collection.Item
}

func NewMemorySource(registry *sorting.Registry, items []collection.Item) *MemorySource {
	copied := make([]collection.Item, len(items))
	copy(copied, items)
	return &MemorySource{registry: registry, items: copied}
}

func (m *MemorySource) Fetch(ctx context.Context, q loader.Query) ([]collection.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, &loader.NetworkError{Op: "memory", Err: err}
	}
	spec := sorting.Spec{Field: q.SortField, Direction: q.SortDirection}
	if err := m.registry.Validate(spec); err != nil {
		return nil, err
	}
	params, err := store.ParamsFromQuery(q)
	if err != nil {
		return nil, &loader.DecodeError{Err: err}
	}

	matched := make([]collection.Item, 0, len(m.items))
	for _, item := range m.items {
		if inRange(item, params.From, params.To) {
			matched = append(matched, item)
		}
	}

	sorted := m.registry.Sort(matched, spec)
	if q.Offset >= len(sorted) {
		return []collection.Item{}, nil
	}
	end := q.Offset + q.Limit
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[q.Offset:end], nil
}

// inRange applies the created-at bounds. Items without a parseable
// createdAt only pass an unbounded filter.
func inRange(item collection.Item, from, to *time.Time) bool {
	if from == nil && to == nil {
		return true
	}
	raw, ok := item.String("createdAt")
	if !ok {
		return false
	}
	created, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return false
	}
	if from != nil && created.Before(*from) {
		return false
	}
	if to != nil && !created.Before(*to) {
		return false
	}
	return true
}
