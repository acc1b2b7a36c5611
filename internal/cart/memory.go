package cart

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps carts in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string][]Item
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string][]Item)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(userID), nil
}

func (s *MemoryStore) Add(_ context.Context, userID string, item Item) ([]Item, error) {
	if err := item.validate(); err != nil {
		return nil, err
	}
	return s.mutate(userID, func(items []Item) []Item { return addItem(items, item) }), nil
}

func (s *MemoryStore) UpdateQuantity(_ context.Context, userID, productID string, delta int) ([]Item, error) {
	return s.mutate(userID, func(items []Item) []Item { return updateQuantity(items, productID, delta) }), nil
}

func (s *MemoryStore) Remove(_ context.Context, userID, productID string) ([]Item, error) {
	return s.mutate(userID, func(items []Item) []Item { return removeItem(items, productID) }), nil
}

func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	return nil
}

func (s *MemoryStore) mutate(userID string, fn func([]Item) []Item) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.carts[userID])
	if len(next) == 0 {
		delete(s.carts, userID)
	} else {
		s.carts[userID] = next
	}
	return s.snapshot(userID)
}

// snapshot returns a copy that is never nil; callers hold s.mu.
func (s *MemoryStore) snapshot(userID string) []Item {
	items := slices.Clone(s.carts[userID])
	if items == nil {
		items = []Item{}
	}
	return items
}
