package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"purchaseservice/internal/platform/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const defaultCommitTimeout = 10 * time.Second

// Engine settles purchase requests against the product and ledger stores.
// It is safe for concurrent use.
type Engine struct {
	products ProductStore
	ledger   LedgerStore
	tx       Transactor
	locks    *KeyLocker

	logger observability.Logger
	tracer observability.Tracer

	now           func() time.Time
	commitTimeout time.Duration
}

type Option func(*Engine)

// WithClock overrides the timestamp source for purchase records.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithCommitTimeout bounds the commit pass, which ignores caller cancellation.
func WithCommitTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.commitTimeout = d
		}
	}
}

// WithKeyLocker shares a locker between engines over the same stores.
func WithKeyLocker(l *KeyLocker) Option {
	return func(e *Engine) { e.locks = l }
}

func NewEngine(products ProductStore, ledger LedgerStore, tx Transactor, logger observability.Logger, tracer observability.Tracer, opts ...Option) *Engine {
	e := &Engine{
		products:      products,
		ledger:        ledger,
		tx:            tx,
		locks:         NewKeyLocker(),
		logger:        logger,
		tracer:        tracer,
		now:           time.Now,
		commitTimeout: defaultCommitTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settle validates and applies a purchase for userID. Either every
// consolidated line is debited and recorded, or nothing is.
func (e *Engine) Settle(ctx context.Context, userID string, items []Item) ([]Record, error) {
	ctx, span := e.tracer.Start(ctx, "purchase.settle")
	defer span.End()

	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.Int("purchase.items", len(items)),
	)

	records, err := e.settle(ctx, userID, items)
	if err != nil {
		kind := KindOf(err)
		span.SetAttributes(attribute.String("purchase.error_kind", kind.String()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if kind == KindStore {
			e.logger.Error("❌ Purchase settlement failed", zap.Error(err), zap.String("user_id", userID))
		} else {
			e.logger.Info("Purchase rejected",
				zap.String("user_id", userID),
				zap.String("reason", kind.String()),
				zap.Error(err),
			)
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int("purchase.lines", len(records)))
	span.SetStatus(codes.Ok, "purchase settled")
	e.logger.Info("✅ Purchase settled", zap.String("user_id", userID), zap.Int("lines", len(records)))
	return records, nil
}

func (e *Engine) settle(ctx context.Context, userID string, items []Item) ([]Record, error) {
	if err := ValidateItems(items); err != nil {
		return nil, err
	}

	ok, err := e.ledger.Exists(ctx, userID)
	if err != nil {
		return nil, &StoreError{Op: "lookup user", Err: err}
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}

	demand := Consolidate(items)

	unlock, err := e.locks.Lock(ctx, demand.ProductIDs()...)
	if err != nil {
		return nil, &StoreError{Op: "acquire product locks", Err: err}
	}
	defer unlock()

	records, err := e.validate(ctx, demand)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "settlement cancelled before commit", Err: err}
	}

	// Once started, the commit runs to completion as one unit.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.commitTimeout)
	defer cancel()

	if err := e.commit(commitCtx, userID, demand, records); err != nil {
		return nil, err
	}
	return records, nil
}

// validate reads every line without mutating anything and materialises the
// records that a successful commit will append.
func (e *Engine) validate(ctx context.Context, demand Demand) ([]Record, error) {
	settledAt := e.now().UTC()
	records := make([]Record, 0, demand.Len())

	for _, line := range demand.Lines() {
		product, err := e.products.FindByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				return nil, &ProductNotFoundError{ProductID: line.ProductID}
			}
			return nil, &StoreError{Op: "find product " + line.ProductID, Err: err}
		}

		if product.Inventory < line.Quantity {
			return nil, &InsufficientInventoryError{
				ProductID: line.ProductID,
				Title:     product.Title,
				Requested: line.Quantity,
				Available: product.Inventory,
			}
		}

		records = append(records, Record{
			Title:    product.Title,
			Price:    product.Price,
			Quantity: line.Quantity,
			Date:     settledAt,
		})
	}
	return records, nil
}

func (e *Engine) commit(ctx context.Context, userID string, demand Demand, records []Record) error {
	err := e.tx.WithinTx(ctx, func(ctx context.Context, products ProductStore, ledger LedgerStore) error {
		for _, line := range demand.Lines() {
			if err := products.ApplyDebit(ctx, line.ProductID, line.Quantity); err != nil {
				return e.debitError(ctx, products, line, err)
			}
		}
		if err := ledger.AppendPurchases(ctx, userID, records); err != nil {
			return &StoreError{Op: "append purchases", Err: err}
		}
		return nil
	})
	if err == nil {
		return nil
	}

	var storeErr *StoreError
	if KindOf(err) != KindStore || errors.As(err, &storeErr) {
		return err
	}
	return &StoreError{Op: "commit settlement", Err: err}
}

// debitError turns a failed conditional debit into a typed settlement error.
func (e *Engine) debitError(ctx context.Context, products ProductStore, line Line, err error) error {
	switch {
	case errors.Is(err, ErrProductNotFound):
		return &ProductNotFoundError{ProductID: line.ProductID}
	case errors.Is(err, ErrInsufficientInventory):
		detail := &InsufficientInventoryError{ProductID: line.ProductID, Requested: line.Quantity}
		if p, findErr := products.FindByID(ctx, line.ProductID); findErr == nil {
			detail.Title = p.Title
			detail.Available = p.Inventory
		}
		return detail
	default:
		return &StoreError{Op: "debit product " + line.ProductID, Err: err}
	}
}
