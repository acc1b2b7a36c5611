package purchase

import "context"

// ProductStore is the inventory capability the engine needs.
type ProductStore interface {
	// FindByID returns ErrProductNotFound (possibly wrapped) for unknown ids.
	FindByID(ctx context.Context, id string) (*Product, error)
	// ApplyDebit subtracts quantity only if the result stays >= 0, returning
	// ErrInsufficientInventory otherwise and ErrProductNotFound for unknown ids.
	ApplyDebit(ctx context.Context, id string, quantity int) error
}

// LedgerStore is the user purchase-history capability the engine needs.
type LedgerStore interface {
	Exists(ctx context.Context, userID string) (bool, error)
	AppendPurchases(ctx context.Context, userID string, records []Record) error
}

// Transactor runs fn as one atomic unit over both stores. If fn returns an
// error, nothing fn did through the given stores is kept.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, products ProductStore, ledger LedgerStore) error) error
}
