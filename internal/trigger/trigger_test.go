package trigger

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRequester struct {
	calls atomic.Int32
	ok    bool
}

func (r *countingRequester) RequestMore() bool {
	r.calls.Add(1)
	return r.ok
}

var bottom = Viewport{ScrollTop: 900, ViewportHeight: 100, ContentHeight: 1000}

func TestNearBottom(t *testing.T) {
	assert.True(t, NearBottom(bottom, 0))
	assert.False(t, NearBottom(Viewport{ScrollTop: 100, ViewportHeight: 100, ContentHeight: 1000}, 0))
	assert.True(t, NearBottom(Viewport{ScrollTop: 750, ViewportHeight: 100, ContentHeight: 1000}, 150))
	assert.False(t, NearBottom(Viewport{ScrollTop: 749, ViewportHeight: 100, ContentHeight: 1000}, 150))
	assert.True(t, NearBottom(Viewport{ViewportHeight: 500, ContentHeight: 200}, 0), "short content is at the bottom")
}

func TestObserveCoalesces(t *testing.T) {
	target := &countingRequester{ok: true}
	tr := New(Config{Wait: 20 * time.Millisecond, MaxWait: time.Second}, target)
	h := tr.Attach()
	defer h.Detach()

	for i := 0; i < 10; i++ {
		assert.True(t, tr.Observe(bottom))
	}
	require.Eventually(t, func() bool { return target.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), target.calls.Load())
}

func TestObserveAwayFromBottom(t *testing.T) {
	target := &countingRequester{}
	tr := New(Config{Wait: 10 * time.Millisecond}, target)
	defer tr.Stop()
	tr.Attach()

	assert.False(t, tr.Observe(Viewport{ScrollTop: 0, ViewportHeight: 100, ContentHeight: 1000}))
	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, target.calls.Load())
}

func TestAttachIsSingle(t *testing.T) {
	tr := New(Config{}, &countingRequester{})
	defer tr.Stop()
	a := tr.Attach()
	b := tr.Attach()
	assert.Same(t, a, b)

	a.Detach()
	c := tr.Attach()
	assert.NotSame(t, a, c)
}

func TestDetach(t *testing.T) {
	target := &countingRequester{}
	tr := New(Config{Wait: 30 * time.Millisecond}, target)
	h := tr.Attach()

	assert.True(t, tr.Observe(bottom))
	h.Detach()
	h.Detach()
	assert.False(t, tr.Observe(bottom))

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, target.calls.Load(), "pending request dropped on detach")
}

func TestStop(t *testing.T) {
	tr := New(Config{}, &countingRequester{})
	tr.Attach()
	tr.Stop()
	assert.Nil(t, tr.Attach())
	assert.False(t, tr.Observe(bottom))
}

func TestNewDefaults(t *testing.T) {
	tr := New(Config{}, &countingRequester{})
	assert.Equal(t, DefaultWait, tr.cfg.Wait)
	assert.Equal(t, DefaultMaxWait, tr.cfg.MaxWait)

	tr = New(Config{Wait: 2 * time.Second}, &countingRequester{})
	assert.Equal(t, 2*time.Second, tr.cfg.MaxWait)
}
