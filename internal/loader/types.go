// Package loader drives an incrementally loaded, sortable collection: it
// decides when to fetch, what window to ask for, and how each response
// lands in the store.
package loader

import (
	"context"
	"errors"
	"fmt"

	"catalog/api/internal/collection"
	"catalog/api/internal/sorting"
)

type State int

const (
	Idle State = iota
	Loading
	Ready
	Empty
	Exhausted
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Empty:
		return "empty"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Query is the window and ordering handed to a Gateway.
type Query struct {
	SortField     string
	SortDirection sorting.Direction
	Offset        int
	Limit         int
	Filter        map[string]string
}

// Gateway fetches one sorted page. Implementations report transport
// failures as *NetworkError and malformed payloads as *DecodeError.
type Gateway interface {
	Fetch(ctx context.Context, q Query) ([]collection.Item, error)
}

// GatewayFunc adapts a plain function to Gateway.
type GatewayFunc func(ctx context.Context, q Query) ([]collection.Item, error)

func (f GatewayFunc) Fetch(ctx context.Context, q Query) ([]collection.Item, error) {
	return f(ctx, q)
}

// RenderFunc receives the state and a read-only snapshot after every
// transition.
type RenderFunc func(state State, items []collection.Item)

var ErrClosed = errors.New("loader: controller closed")

type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("network: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
