package collection

import "fmt"

// DuplicateIdentityError reports an appended item whose id is already stored
// (or repeated inside the same batch).
type DuplicateIdentityError struct {
	ID string
}

func (e *DuplicateIdentityError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("duplicate item identity %q", e.ID)
}

// Store is the ordered item sequence plus its id index. It never re-sorts:
// pages are trusted to arrive in the order of the active sort. Store is not
// safe for concurrent use; its owner serializes access.
type Store struct {
	items []Item
	ids   map[string]struct{}
}

func NewStore() *Store {
	return &Store{ids: make(map[string]struct{})}
}

func (s *Store) Reset() {
	s.items = nil
	s.ids = make(map[string]struct{})
}

// Append adds items at the tail. The batch is rejected in full on any
// duplicate identity.
func (s *Store) Append(items []Item) error {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if s.Contains(item.ID) {
			return &DuplicateIdentityError{ID: item.ID}
		}
		if _, ok := seen[item.ID]; ok {
			return &DuplicateIdentityError{ID: item.ID}
		}
		seen[item.ID] = struct{}{}
	}
	for id := range seen {
		s.ids[id] = struct{}{}
	}
	s.items = append(s.items, items...)
	return nil
}

func (s *Store) Size() int {
	return len(s.items)
}

func (s *Store) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Snapshot returns a copy of the current sequence.
func (s *Store) Snapshot() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}
