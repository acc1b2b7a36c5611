package purchase

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest        = errors.New("invalid purchase request")
	ErrUserNotFound          = errors.New("user not found")
	ErrProductNotFound       = errors.New("product not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrStore                 = errors.New("store failure")
)

// Kind classifies a settlement failure.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidRequest
	KindUserNotFound
	KindProductNotFound
	KindInsufficientInventory
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidRequest:
		return "invalid_request"
	case KindUserNotFound:
		return "user_not_found"
	case KindProductNotFound:
		return "product_not_found"
	case KindInsufficientInventory:
		return "insufficient_inventory"
	default:
		return "internal_error"
	}
}

// KindOf maps err onto the settlement taxonomy. Anything unrecognised,
// including context errors, is KindStore.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrUserNotFound):
		return KindUserNotFound
	case errors.Is(err, ErrProductNotFound):
		return KindProductNotFound
	case errors.Is(err, ErrInsufficientInventory):
		return KindInsufficientInventory
	default:
		return KindStore
	}
}

// InvalidItemError names the first malformed line of a request.
type InvalidItemError struct {
	Index  int
	Item   Item
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid purchase item at index %d (productId=%q, quantity=%d): %s",
		e.Index, e.Item.ProductID, e.Item.Quantity, e.Reason)
}

func (e *InvalidItemError) Is(target error) bool { return target == ErrInvalidRequest }

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found for ID: %s", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

type InsufficientInventoryError struct {
	ProductID string
	Title     string
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for product: %s (requested %d, available %d)",
		e.Title, e.Requested, e.Available)
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}

// StoreError wraps a collaborator failure. Callers should surface it as an
// opaque internal error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }
