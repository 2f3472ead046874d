package loader

import "sync"

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	c    *Controller
	id   uint64
	fn   RenderFunc
	once sync.Once
}

// Subscribe registers fn for every later transition.
func (c *Controller) Subscribe(fn RenderFunc) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	sub := &Subscription{c: c, id: c.nextSubID, fn: fn}
	if !c.closed && fn != nil {
		c.subs = append(c.subs, sub)
	}
	return sub
}

// Unsubscribe is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.c.mu.Lock()
		defer s.c.mu.Unlock()
		for i, sub := range s.c.subs {
			if sub.id == s.id {
				s.c.subs = append(s.c.subs[:i:i], s.c.subs[i+1:]...)
				return
			}
		}
	})
}
