package loader

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/text/language"

	"catalog/api/internal/collection"
	"catalog/api/internal/logger"
	"catalog/api/internal/sorting"
)

const DefaultLimit = 30

// Config enumerates every controller option. Zero values take defaults:
// Limit becomes DefaultLimit, InitialSort the first field ascending,
// Language the root collation.
type Config struct {
	Fields      []sorting.Field
	Limit       int
	InitialSort sorting.Spec
	Filter      map[string]string
	Language    language.Tag
	Logger      logger.Logger
}

type ticket struct {
	seq        uint64
	generation uint64
	reset      bool
	query      Query
}

type notification struct {
	state State
	items []collection.Item
}

// Controller is the load state machine. Every public method and every fetch
// resolution is serialized by one mutex; listeners are invoked outside it,
// in transition order, so a listener may call back into the controller.
type Controller struct {
	registry *sorting.Registry
	gateway  Gateway
	log      logger.Logger
	limit    int

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	store      *collection.Store
	state      State
	sort       sorting.Spec
	filter     map[string]string
	generation uint64
	seq        uint64
	inflight   uint64
	failed     *ticket
	err        error
	closed     bool

	nextSubID   uint64
	subs        []*Subscription
	queue       []notification
	dispatching bool
}

func New(cfg Config, gw Gateway) (*Controller, error) {
	if gw == nil {
		return nil, &sorting.ConfigurationError{Reason: "nil gateway"}
	}
	registry, err := sorting.NewRegistry(cfg.Fields, sorting.WithLanguage(cfg.Language))
	if err != nil {
		return nil, err
	}

	limit := cfg.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 0 {
		return nil, &sorting.ConfigurationError{Reason: "page size must be positive"}
	}

	initial := cfg.InitialSort
	if initial.Field == "" {
		initial = registry.Default()
	}
	if initial.Direction == 0 {
		initial.Direction = sorting.Ascending
	}
	if err := registry.Validate(initial); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		registry: registry,
		gateway:  gw,
		log:      log.With("component", "loader"),
		limit:    limit,
		ctx:      ctx,
		cancel:   cancel,
		store:    collection.NewStore(),
		state:    Idle,
		sort:     initial,
		filter:   copyFilter(cfg.Filter),
	}, nil
}

// Start issues the first reset fetch. Only valid from Idle.
func (c *Controller) Start() bool {
	c.mu.Lock()
	if c.closed || c.state != Idle {
		c.mu.Unlock()
		return false
	}
	c.issueLocked(true)
	c.mu.Unlock()
	c.dispatch()
	return true
}

// ChangeSort toggles the sort for field, clears the stored rows and reloads
// from offset zero. Any in-flight fetch becomes stale.
func (c *Controller) ChangeSort(field string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	next := sorting.Toggle(c.sort, field)
	if err := c.registry.Validate(next); err != nil {
		c.mu.Unlock()
		return err
	}
	c.sort = next
	// rows ordered by the previous sort never outlive the change
	c.store.Reset()
	c.issueLocked(true)
	c.mu.Unlock()
	c.dispatch()
	return nil
}

// RequestMore loads the next page from Ready, or retries the failed fetch
// from Failed. Everywhere else it is a no-op and reports false.
func (c *Controller) RequestMore() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	switch c.state {
	case Ready:
		c.issueLocked(false)
	case Failed:
		reset := c.failed != nil && c.failed.reset
		c.issueLocked(reset)
	default:
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()
	c.dispatch()
	return true
}

// SetFilter replaces the pass-through filter and reloads with the current
// sort. Before Start it only records the filter.
func (c *Controller) SetFilter(filter map[string]string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.filter = copyFilter(filter)
	if c.state == Idle {
		c.mu.Unlock()
		return
	}
	c.issueLocked(true)
	c.mu.Unlock()
	c.dispatch()
}

// Reload re-issues a reset fetch for the current sort and filter.
func (c *Controller) Reload() bool {
	c.mu.Lock()
	if c.closed || c.state == Idle {
		c.mu.Unlock()
		return false
	}
	c.issueLocked(true)
	c.mu.Unlock()
	c.dispatch()
	return true
}

// Close tears the controller down. Outstanding responses are ignored and
// listeners are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.generation++
	c.inflight = 0
	c.subs = nil
	c.queue = nil
	c.cancel()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Sort() sorting.Spec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sort
}

func (c *Controller) Snapshot() []collection.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Snapshot()
}

func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Err is the cause of the latest Failed transition, nil otherwise.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) Limit() int {
	return c.limit
}

func (c *Controller) Fields() []sorting.Field {
	return c.registry.Fields()
}

func (c *Controller) issueLocked(reset bool) {
	if reset {
		c.generation++
	}
	offset := 0
	if !reset {
		offset = c.store.Size()
	}
	c.seq++
	t := ticket{
		seq:        c.seq,
		generation: c.generation,
		reset:      reset,
		query: Query{
			SortField:     c.sort.Field,
			SortDirection: c.sort.Direction,
			Offset:        offset,
			Limit:         c.limit,
			Filter:        copyFilter(c.filter),
		},
	}
	c.inflight = t.seq
	c.transitionLocked(Loading)
	c.log.Debug("fetch issued", "generation", t.generation, "reset", reset, "sort", c.sort.String(), "offset", offset, "limit", c.limit)

	ctx := c.ctx
	go func() {
		items, err := c.gateway.Fetch(ctx, t.query)
		c.resolve(t, items, err)
	}()
}

func (c *Controller) resolve(t ticket, items []collection.Item, err error) {
	c.mu.Lock()
	if c.closed || t.generation != c.generation || t.seq != c.inflight {
		c.mu.Unlock()
		c.log.Debug("stale response discarded", "generation", t.generation, "offset", t.query.Offset)
		return
	}
	c.inflight = 0

	if err != nil {
		c.failLocked(t, err)
		c.mu.Unlock()
		c.dispatch()
		return
	}

	if len(items) == 0 {
		c.err = nil
		c.failed = nil
		if t.reset {
			c.store.Reset()
			c.transitionLocked(Empty)
		} else {
			c.transitionLocked(Exhausted)
		}
		c.mu.Unlock()
		c.dispatch()
		return
	}

	if !c.registry.Ordered(items, c.sort) {
		c.log.Debug("page does not follow the active sort", "sort", c.sort.String(), "offset", t.query.Offset)
	}

	target := c.store
	if t.reset {
		target = collection.NewStore()
	}
	if err := target.Append(items); err != nil {
		c.failLocked(t, err)
		c.mu.Unlock()
		c.dispatch()
		return
	}
	c.store = target
	c.err = nil
	c.failed = nil
	if len(items) < c.limit {
		c.transitionLocked(Exhausted)
	} else {
		c.transitionLocked(Ready)
	}
	c.mu.Unlock()
	c.dispatch()
}

func (c *Controller) failLocked(t ticket, err error) {
	var dup *collection.DuplicateIdentityError
	if errors.As(err, &dup) {
		c.log.Warn("page rejected", "generation", t.generation, "offset", t.query.Offset, "duplicate_id", dup.ID)
	} else {
		c.log.Warn("fetch failed", "generation", t.generation, "offset", t.query.Offset, "error", err)
	}
	c.err = err
	c.failed = &t
	c.transitionLocked(Failed)
}

func (c *Controller) transitionLocked(next State) {
	c.state = next
	if len(c.subs) == 0 {
		return
	}
	c.queue = append(c.queue, notification{state: next, items: c.store.Snapshot()})
}

// dispatch drains the notification queue. Only one goroutine dispatches at
// a time; others enqueue and leave, which keeps delivery in order.
func (c *Controller) dispatch() {
	c.mu.Lock()
	if c.dispatching {
		c.mu.Unlock()
		return
	}
	c.dispatching = true
	for len(c.queue) > 0 {
		n := c.queue[0]
		c.queue = c.queue[1:]
		listeners := make([]RenderFunc, 0, len(c.subs))
		for _, sub := range c.subs {
			listeners = append(listeners, sub.fn)
		}
		c.mu.Unlock()
		for _, fn := range listeners {
			fn(n.state, n.items)
		}
		c.mu.Lock()
	}
	c.dispatching = false
	c.mu.Unlock()
}

func copyFilter(filter map[string]string) map[string]string {
	if len(filter) == 0 {
		return nil
	}
	out := make(map[string]string, len(filter))
	for k, v := range filter {
		out[k] = v
	}
	return out
}
