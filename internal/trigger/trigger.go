// Package trigger asks a paged controller for more rows when the viewport
// nears the end of the content.
package trigger

import (
	"sync"
	"time"

	"github.com/romdo/go-debounce"

	"catalog/api/internal/logger"
)

const (
	DefaultWait    = 100 * time.Millisecond
	DefaultMaxWait = time.Second
)

// Viewport is a snapshot of the scroll position, in pixels or rows.
type Viewport struct {
	ScrollTop      float64
	ViewportHeight float64
	ContentHeight  float64
}

// NearBottom reports whether fewer than threshold units remain below the
// visible area.
func NearBottom(v Viewport, threshold float64) bool {
	return v.ContentHeight-(v.ScrollTop+v.ViewportHeight) <= threshold
}

// Requester is satisfied by *loader.Controller.
type Requester interface {
	RequestMore() bool
}

type Config struct {
	Threshold float64
	Wait      time.Duration
	MaxWait   time.Duration
	Logger    logger.Logger
}

// Trigger coalesces scroll observations into RequestMore calls.
type Trigger struct {
	cfg    Config
	target Requester
	log    logger.Logger

	mu       sync.Mutex
	attached *Handle
	stopped  bool
}

// Handle is the one scroll handler a trigger owns while attached.
type Handle struct {
	t      *Trigger
	fire   func()
	cancel func()
	once   sync.Once
}

func New(cfg Config, target Requester) *Trigger {
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultWait
	}
	if cfg.MaxWait < cfg.Wait {
		cfg.MaxWait = DefaultMaxWait
		if cfg.MaxWait < cfg.Wait {
			cfg.MaxWait = cfg.Wait
		}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Trigger{cfg: cfg, target: target, log: log.With("component", "trigger")}
}

// Attach installs the handler. Attaching twice returns the live handle.
// A stopped trigger returns nil.
func (t *Trigger) Attach() *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil
	}
	if t.attached != nil {
		return t.attached
	}
	h := &Handle{t: t}
	h.fire, h.cancel = debounce.NewWithMaxWait(t.cfg.Wait, t.cfg.MaxWait, func() {
		t.request(h)
	})
	t.attached = h
	return h
}

// Detach removes the handler and drops any pending request. Safe to call
// more than once.
func (h *Handle) Detach() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.t.mu.Lock()
		if h.t.attached == h {
			h.t.attached = nil
		}
		h.t.mu.Unlock()
		h.cancel()
	})
}

// Observe feeds a scroll position. It returns true when a request was
// scheduled.
func (t *Trigger) Observe(v Viewport) bool {
	if !NearBottom(v, t.cfg.Threshold) {
		return false
	}
	t.mu.Lock()
	h := t.attached
	t.mu.Unlock()
	if h == nil {
		return false
	}
	h.fire()
	return true
}

// Stop detaches and refuses further attachment.
func (t *Trigger) Stop() {
	t.mu.Lock()
	t.stopped = true
	h := t.attached
	t.mu.Unlock()
	h.Detach()
}

func (t *Trigger) request(h *Handle) {
	t.mu.Lock()
	live := t.attached == h
	t.mu.Unlock()
	if !live {
		return
	}
	if !t.target.RequestMore() {
		t.log.Debug("near bottom, no request issued")
	}
}
