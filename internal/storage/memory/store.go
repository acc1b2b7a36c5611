// Package memory keeps products and user ledgers in process memory. It backs
// local runs and tests and implements the same ports as the Postgres store.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"purchaseservice/internal/catalog"
	"purchaseservice/internal/purchase"

	"github.com/google/uuid"
)

type Store struct {
	mu       sync.RWMutex
	products map[string]*purchase.Product
	order    []string // product ids in creation order
	users    map[string]*purchase.User
	userIDs  []string // user ids in creation order
	now      func() time.Time
}

func New() *Store {
	return &Store{
		products: make(map[string]*purchase.Product),
		users:    make(map[string]*purchase.User),
		now:      time.Now,
	}
}

// Seed inserts or replaces a product as given. Intended for bootstrap code
// and tests.
func (s *Store) Seed(p purchase.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.products[p.ID] = &p
}

// SeedUser inserts a user with an empty ledger.
func (s *Store) SeedUser(id, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if _, ok := s.users[id]; !ok {
		s.userIDs = append(s.userIDs, id)
	}
	s.users[id] = &purchase.User{ID: id, Email: email, CreatedAt: now, UpdatedAt: now}
}

// ProductStore / LedgerStore

func (s *Store) FindByID(_ context.Context, id string) (*purchase.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findProduct(id)
}

func (s *Store) ApplyDebit(_ context.Context, id string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debit(id, quantity)
}

func (s *Store) Exists(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok, nil
}

func (s *Store) AppendPurchases(_ context.Context, userID string, records []purchase.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.appendRecords(userID, records)
	return err
}

// WithinTx runs fn while holding the store's write lock. Mutations made
// through the stores handed to fn are undone if fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, products purchase.ProductStore, ledger purchase.LedgerStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txView{s: s}
	if err := fn(ctx, tx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// unlocked helpers; callers hold s.mu

func (s *Store) findProduct(id string) (*purchase.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", purchase.ErrProductNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) debit(id string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("debit quantity must be positive, got %d", quantity)
	}
	p, ok := s.products[id]
	if !ok {
		return fmt.Errorf("%w: %s", purchase.ErrProductNotFound, id)
	}
	if p.Inventory < quantity {
		return fmt.Errorf("%w: %s has %d, need %d", purchase.ErrInsufficientInventory, id, p.Inventory, quantity)
	}
	p.Inventory -= quantity
	p.UpdatedAt = s.now().UTC()
	return nil
}

// appendRecords returns the ledger length before the append.
func (s *Store) appendRecords(userID string, records []purchase.Record) (int, error) {
	u, ok := s.users[userID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", purchase.ErrUserNotFound, userID)
	}
	before := len(u.Purchases)
	u.Purchases = append(u.Purchases, records...)
	u.UpdatedAt = s.now().UTC()
	return before, nil
}

type txView struct {
	s    *Store
	undo []func()
}

func (t *txView) FindByID(_ context.Context, id string) (*purchase.Product, error) {
	return t.s.findProduct(id)
}

func (t *txView) ApplyDebit(_ context.Context, id string, quantity int) error {
	if err := t.s.debit(id, quantity); err != nil {
		return err
	}
	p := t.s.products[id]
	t.undo = append(t.undo, func() { p.Inventory += quantity })
	return nil
}

func (t *txView) Exists(_ context.Context, userID string) (bool, error) {
	_, ok := t.s.users[userID]
	return ok, nil
}

func (t *txView) AppendPurchases(_ context.Context, userID string, records []purchase.Record) error {
	before, err := t.s.appendRecords(userID, records)
	if err != nil {
		return err
	}
	u := t.s.users[userID]
	t.undo = append(t.undo, func() { u.Purchases = u.Purchases[:before] })
	return nil
}

func (t *txView) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// catalog.Products

func (s *Store) CreateProduct(_ context.Context, in catalog.NewProduct) (*purchase.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := purchase.Product{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(in.Title),
		Price:     in.Price,
		Inventory: in.Inventory,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Seed(p)
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*purchase.Product, error) {
	return s.FindByID(ctx, id)
}

func (s *Store) ListProducts(_ context.Context, filter catalog.ProductFilter) ([]purchase.Product, int, error) {
	s.mu.RLock()
	all := make([]purchase.Product, 0, len(s.order))
	for _, id := range s.order {
		all = append(all, *s.products[id])
	}
	s.mu.RUnlock()

	page, total := filter.Apply(all)
	return page, total, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return fmt.Errorf("%w: %s", purchase.ErrProductNotFound, id)
	}
	delete(s.products, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return nil
}

// catalog.Users

func (s *Store) CreateUser(_ context.Context, email string) (*purchase.User, error) {
	if err := catalog.ValidateEmail(email); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return nil, catalog.ErrEmailTaken
		}
	}

	now := s.now().UTC()
	u := &purchase.User{ID: uuid.NewString(), Email: email, CreatedAt: now, UpdatedAt: now}
	s.users[u.ID] = u
	s.userIDs = append(s.userIDs, u.ID)
	return cloneUser(u), nil
}

func (s *Store) GetUser(_ context.Context, id string) (*purchase.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", purchase.ErrUserNotFound, id)
	}
	return cloneUser(u), nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("%w: %s", purchase.ErrUserNotFound, id)
	}
	delete(s.users, id)
	s.userIDs = slices.DeleteFunc(s.userIDs, func(v string) bool { return v == id })
	return nil
}

func (s *Store) ListUsers(_ context.Context, page catalog.Paging) ([]purchase.User, int, error) {
	page = page.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()
	start, end := page.Bounds(len(s.userIDs))
	users := make([]purchase.User, 0, end-start)
	for _, id := range s.userIDs[start:end] {
		users = append(users, *cloneUser(s.users[id]))
	}
	return users, len(s.userIDs), nil
}

func (s *Store) Purchases(ctx context.Context, userID string) ([]purchase.Record, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Purchases, nil
}

func cloneUser(u *purchase.User) *purchase.User {
	cp := *u
	cp.Purchases = slices.Clone(u.Purchases)
	if cp.Purchases == nil {
		cp.Purchases = []purchase.Record{}
	}
	return &cp
}
