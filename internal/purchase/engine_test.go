package purchase_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"purchaseservice/internal/purchase"
	"purchaseservice/internal/storage/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// countingProducts records every read so tests can assert no store access.
type countingProducts struct {
	purchase.ProductStore
	reads  atomic.Int32
	onRead func()
}

func (c *countingProducts) FindByID(ctx context.Context, id string) (*purchase.Product, error) {
	c.reads.Add(1)
	if c.onRead != nil {
		c.onRead()
	}
	return c.ProductStore.FindByID(ctx, id)
}

type failingLedger struct {
	purchase.LedgerStore
	err error
}

func (f failingLedger) AppendPurchases(context.Context, string, []purchase.Record) error {
	return f.err
}

// failingAppendTx runs the real transaction but breaks the ledger append.
type failingAppendTx struct {
	store *memory.Store
	err   error
}

func (f failingAppendTx) WithinTx(ctx context.Context, fn func(context.Context, purchase.ProductStore, purchase.LedgerStore) error) error {
	return f.store.WithinTx(ctx, func(ctx context.Context, p purchase.ProductStore, l purchase.LedgerStore) error {
		return fn(ctx, p, failingLedger{LedgerStore: l, err: f.err})
	})
}

type fixture struct {
	store    *memory.Store
	products *countingProducts
	engine   *purchase.Engine
}

func newFixture(t *testing.T, products ...purchase.Product) *fixture {
	t.Helper()
	store := memory.New()
	for _, p := range products {
		store.Seed(p)
	}
	store.SeedUser("u1", "u1@example.com")

	counting := &countingProducts{ProductStore: store}
	return &fixture{
		store:    store,
		products: counting,
		engine:   newEngine(t, counting, store, store),
	}
}

func newEngine(t *testing.T, products purchase.ProductStore, ledger purchase.LedgerStore, tx purchase.Transactor, opts ...purchase.Option) *purchase.Engine {
	opts = append([]purchase.Option{purchase.WithClock(func() time.Time { return fixedNow })}, opts...)
	return purchase.NewEngine(products, ledger, tx,
		zaptest.NewLogger(t),
		noop.NewTracerProvider().Tracer("test"),
		opts...,
	)
}

func product(id, title string, price string, inventory int) purchase.Product {
	return purchase.Product{ID: id, Title: title, Price: decimal.RequireFromString(price), Inventory: inventory}
}

func (f *fixture) inventory(t *testing.T, id string) int {
	t.Helper()
	p, err := f.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.Inventory
}

func (f *fixture) ledger(t *testing.T) []purchase.Record {
	t.Helper()
	records, err := f.store.Purchases(context.Background(), "u1")
	require.NoError(t, err)
	return records
}

func TestSettle_ConsolidatesDuplicateLines(t *testing.T) {
	f := newFixture(t, product("P1", "Mug", "9.99", 10))

	records, err := f.engine.Settle(context.Background(), "u1", []purchase.Item{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P1", Quantity: 3},
	})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "Mug", records[0].Title)
	assert.True(t, decimal.RequireFromString("9.99").Equal(records[0].Price))
	assert.Equal(t, 5, records[0].Quantity)
	assert.Equal(t, fixedNow, records[0].Date)

	assert.Equal(t, 5, f.inventory(t, "P1"))
	assert.Equal(t, records, f.ledger(t))
}

func TestSettle_MultipleProductsDebitExactlyTheDemand(t *testing.T) {
	f := newFixture(t,
		product("P1", "Mug", "5", 10),
		product("P2", "Plate", "7.50", 4),
		product("P3", "Bowl", "3", 1),
	)
	items := []purchase.Item{
		{ProductID: "P2", Quantity: 1},
		{ProductID: "P1", Quantity: 4},
		{ProductID: "P3", Quantity: 1},
		{ProductID: "P2", Quantity: 3},
	}

	records, err := f.engine.Settle(context.Background(), "u1", items)
	require.NoError(t, err)

	demand := purchase.Consolidate(items)
	require.Len(t, records, demand.Len())
	for i, line := range demand.Lines() {
		assert.Equal(t, line.Quantity, records[i].Quantity)
	}
	assert.Equal(t, []string{"Plate", "Mug", "Bowl"}, []string{records[0].Title, records[1].Title, records[2].Title})

	debited := (10 - f.inventory(t, "P1")) + (4 - f.inventory(t, "P2")) + (1 - f.inventory(t, "P3"))
	assert.Equal(t, demand.Total(), debited)
	assert.Len(t, f.ledger(t), 3)
}

func TestSettle_InsufficientInventoryLeavesStockUntouched(t *testing.T) {
	f := newFixture(t, product("P1", "Mug", "5", 1))

	_, err := f.engine.Settle(context.Background(), "u1", []purchase.Item{{ProductID: "P1", Quantity: 2}})

	var short *purchase.InsufficientInventoryError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "P1", short.ProductID)
	assert.Equal(t, "Mug", short.Title)
	assert.Equal(t, 2, short.Requested)
	assert.Equal(t, 1, short.Available)
	assert.Equal(t, purchase.KindInsufficientInventory, purchase.KindOf(err))

	assert.Equal(t, 1, f.inventory(t, "P1"))
	assert.Empty(t, f.ledger(t))
}

func TestSettle_MissingProductAbortsWholePurchase(t *testing.T) {
	f := newFixture(t, product("P1", "Mug", "5", 10), product("P2", "Plate", "5", 10))

	_, err := f.engine.Settle(context.Background(), "u1", []purchase.Item{
		{ProductID: "P1", Quantity: 1},
		{ProductID: "P2", Quantity: 1},
		{ProductID: "PX", Quantity: 1},
	})

	var missing *purchase.ProductNotFoundError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "PX", missing.ProductID)
	assert.ErrorIs(t, err, purchase.ErrProductNotFound)

	assert.Equal(t, 10, f.inventory(t, "P1"))
	assert.Equal(t, 10, f.inventory(t, "P2"))
	assert.Empty(t, f.ledger(t))
}

func TestSettle_UnknownUserFailsBeforeProductReads(t *testing.T) {
	f := newFixture(t, product("P1", "Mug", "5", 10))

	_, err := f.engine.Settle(context.Background(), "ghost", []purchase.Item{{ProductID: "P1", Quantity: 1}})

	assert.ErrorIs(t, err, purchase.ErrUserNotFound)
	assert.Equal(t, purchase.KindUserNotFound, purchase.KindOf(err))
	assert.Zero(t, f.products.reads.Load())
	assert.Equal(t, 10, f.inventory(t, "P1"))
}

func TestSettle_InvalidItemsAbortWithoutStoreAccess(t *testing.T) {
	tests := []struct {
		name  string
		items []purchase.Item
	}{
		{name: "empty", items: []purchase.Item{}},
		{name: "zero quantity last", items: []purchase.Item{{ProductID: "P1", Quantity: 1}, {ProductID: "P1", Quantity: 0}}},
		{name: "negative quantity", items: []purchase.Item{{ProductID: "P1", Quantity: -1}}},
		{name: "missing product id", items: []purchase.Item{{ProductID: "P1", Quantity: 1}, {Quantity: 1}}},
		{name: "duplicate lines overflow", items: []purchase.Item{{ProductID: "P1", Quantity: math.MaxInt}, {ProductID: "P1", Quantity: 2}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, product("P1", "Mug", "5", 10))

			_, err := f.engine.Settle(context.Background(), "ghost", tc.items)

			assert.ErrorIs(t, err, purchase.ErrInvalidRequest)
			assert.Zero(t, f.products.reads.Load())
			assert.Equal(t, 10, f.inventory(t, "P1"))
		})
	}
}

func TestSettle_CancelledBeforeCommitDoesNotMutate(t *testing.T) {
	f := newFixture(t, product("P1", "Mug", "5", 10))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.products.onRead = cancel

	_, err := f.engine.Settle(ctx, "u1", []purchase.Item{{ProductID: "P1", Quantity: 1}})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, purchase.KindStore, purchase.KindOf(err))
	assert.Equal(t, 10, f.inventory(t, "P1"))
	assert.Empty(t, f.ledger(t))
}

func TestSettle_LedgerFailureRollsBackDebits(t *testing.T) {
	store := memory.New()
	store.Seed(product("P1", "Mug", "5", 10))
	store.Seed(product("P2", "Plate", "5", 10))
	store.SeedUser("u1", "u1@example.com")

	diskFull := errors.New("disk full")
	engine := newEngine(t, store, store, failingAppendTx{store: store, err: diskFull})

	_, err := engine.Settle(context.Background(), "u1", []purchase.Item{
		{ProductID: "P1", Quantity: 3},
		{ProductID: "P2", Quantity: 2},
	})

	assert.ErrorIs(t, err, diskFull)
	assert.ErrorIs(t, err, purchase.ErrStore)

	for _, id := range []string{"P1", "P2"} {
		p, findErr := store.FindByID(context.Background(), id)
		require.NoError(t, findErr)
		assert.Equal(t, 10, p.Inventory, id)
	}
	records, err := store.Purchases(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

// racingTx runs the real transaction but calls beforeDebit ahead of every
// conditional debit, standing in for a writer that slipped in between the
// validate pass and the commit.
type racingTx struct {
	store       *memory.Store
	beforeDebit func(ctx context.Context, products purchase.ProductStore, id string) error
}

func (r racingTx) WithinTx(ctx context.Context, fn func(context.Context, purchase.ProductStore, purchase.LedgerStore) error) error {
	return r.store.WithinTx(ctx, func(ctx context.Context, p purchase.ProductStore, l purchase.LedgerStore) error {
		return fn(ctx, racingProducts{ProductStore: p, beforeDebit: r.beforeDebit}, l)
	})
}

type racingProducts struct {
	purchase.ProductStore
	beforeDebit func(ctx context.Context, products purchase.ProductStore, id string) error
}

func (r racingProducts) ApplyDebit(ctx context.Context, id string, quantity int) error {
	if err := r.beforeDebit(ctx, r.ProductStore, id); err != nil {
		return err
	}
	return r.ProductStore.ApplyDebit(ctx, id, quantity)
}

func TestSettle_CommitDebitShortfallReportsCurrentStock(t *testing.T) {
	store := memory.New()
	store.Seed(product("P1", "Mug", "5", 10))
	store.Seed(product("P2", "Plate", "7.50", 5))
	store.SeedUser("u1", "u1@example.com")

	// Another buyer takes 4 Plates after validation passed.
	tx := racingTx{store: store, beforeDebit: func(ctx context.Context, products purchase.ProductStore, id string) error {
		if id != "P2" {
			return nil
		}
		return products.ApplyDebit(ctx, "P2", 4)
	}}
	engine := newEngine(t, store, store, tx)

	_, err := engine.Settle(context.Background(), "u1", []purchase.Item{
		{ProductID: "P1", Quantity: 3},
		{ProductID: "P2", Quantity: 3},
	})

	var short *purchase.InsufficientInventoryError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "P2", short.ProductID)
	assert.Equal(t, "Plate", short.Title)
	assert.Equal(t, 3, short.Requested)
	assert.Equal(t, 1, short.Available)
	assert.Equal(t, purchase.KindInsufficientInventory, purchase.KindOf(err))
	assert.NotErrorIs(t, err, purchase.ErrStore)

	// The P1 debit and the racing debit were both rolled back.
	for id, want := range map[string]int{"P1": 10, "P2": 5} {
		p, findErr := store.FindByID(context.Background(), id)
		require.NoError(t, findErr)
		assert.Equal(t, want, p.Inventory, id)
	}
	records, err := store.Purchases(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSettle_CommitDebitMissingProductRollsBack(t *testing.T) {
	store := memory.New()
	store.Seed(product("P1", "Mug", "5", 10))
	store.Seed(product("P2", "Plate", "5", 10))
	store.SeedUser("u1", "u1@example.com")

	tx := racingTx{store: store, beforeDebit: func(_ context.Context, _ purchase.ProductStore, id string) error {
		if id == "P2" {
			return fmt.Errorf("debit %s: %w", id, purchase.ErrProductNotFound)
		}
		return nil
	}}
	engine := newEngine(t, store, store, tx)

	_, err := engine.Settle(context.Background(), "u1", []purchase.Item{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P2", Quantity: 1},
	})

	var missing *purchase.ProductNotFoundError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "P2", missing.ProductID)
	assert.Equal(t, purchase.KindProductNotFound, purchase.KindOf(err))

	p, err := store.FindByID(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 10, p.Inventory)
	records, err := store.Purchases(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSettle_CommitDebitUnexpectedErrorIsStoreError(t *testing.T) {
	store := memory.New()
	store.Seed(product("P1", "Mug", "5", 10))
	store.SeedUser("u1", "u1@example.com")

	connReset := errors.New("connection reset")
	tx := racingTx{store: store, beforeDebit: func(context.Context, purchase.ProductStore, string) error {
		return connReset
	}}
	engine := newEngine(t, store, store, tx)

	_, err := engine.Settle(context.Background(), "u1", []purchase.Item{{ProductID: "P1", Quantity: 1}})

	assert.ErrorIs(t, err, connReset)
	assert.Equal(t, purchase.KindStore, purchase.KindOf(err))
	p, findErr := store.FindByID(context.Background(), "P1")
	require.NoError(t, findErr)
	assert.Equal(t, 10, p.Inventory)
}

func TestSettle_ConcurrentBuyersOfLastUnit(t *testing.T) {
	f := newFixture(t, product("P1", "Mug", "5", 1))
	f.store.SeedUser("u2", "u2@example.com")

	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		errs     = make([]error, 2)
		userIDs  = []string{"u1", "u2"}
		requests = []purchase.Item{{ProductID: "P1", Quantity: 1}}
	)
	for i := range userIDs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.engine.Settle(context.Background(), userIDs[i], requests)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded, short := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, purchase.ErrInsufficientInventory):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, short)
	assert.Equal(t, 0, f.inventory(t, "P1"))
}

func TestSettle_ManyConcurrentBuyersNeverOversell(t *testing.T) {
	const (
		stock   = 25
		buyers  = 60
		perUser = 1
	)
	store := memory.New()
	store.Seed(product("P1", "Mug", "5", stock))
	store.Seed(product("P2", "Plate", "5", stock))

	// Two engines with separate lockers stand in for two service instances;
	// only the store's conditional debit stands between them.
	engines := []*purchase.Engine{
		newEngine(t, store, store, store),
		newEngine(t, store, store, store),
	}

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < buyers; i++ {
		userID := "buyer-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		store.SeedUser(userID, userID+"@example.com")

		wg.Add(1)
		go func(engine *purchase.Engine, userID string, flip bool) {
			defer wg.Done()
			items := []purchase.Item{{ProductID: "P1", Quantity: perUser}, {ProductID: "P2", Quantity: perUser}}
			if flip {
				items[0], items[1] = items[1], items[0]
			}
			_, err := engine.Settle(context.Background(), userID, items)
			if err == nil {
				succeeded.Add(1)
				return
			}
			assert.ErrorIs(t, err, purchase.ErrInsufficientInventory)
		}(engines[i%2], userID, i%3 == 0)
	}
	wg.Wait()

	assert.Equal(t, int32(stock), succeeded.Load())
	for _, id := range []string{"P1", "P2"} {
		p, err := store.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Zero(t, p.Inventory, id)
	}
}

func TestSettle_ReorderedRequestsDebitTheSame(t *testing.T) {
	a := []purchase.Item{{ProductID: "P1", Quantity: 2}, {ProductID: "P2", Quantity: 1}, {ProductID: "P1", Quantity: 1}}
	b := []purchase.Item{{ProductID: "P1", Quantity: 1}, {ProductID: "P1", Quantity: 2}, {ProductID: "P2", Quantity: 1}}

	remaining := func(items []purchase.Item) (int, int) {
		f := newFixture(t, product("P1", "Mug", "5", 10), product("P2", "Plate", "5", 10))
		_, err := f.engine.Settle(context.Background(), "u1", items)
		require.NoError(t, err)
		return f.inventory(t, "P1"), f.inventory(t, "P2")
	}

	a1, a2 := remaining(a)
	b1, b2 := remaining(b)
	assert.Equal(t, a1, b1)
	assert.Equal(t, a2, b2)
	assert.Equal(t, 7, a1)
	assert.Equal(t, 9, a2)
}
