// Package cart keeps per-user shopping carts between page views and turns a
// cart into a purchase at checkout.
package cart

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"purchaseservice/internal/purchase"
)

var ErrInvalidItem = errors.New("invalid cart item")

// Item is one cart line.
type Item struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
}

// Store owns cart state. Every method returns the cart as it stands after
// the call; an unknown user has an empty cart.
type Store interface {
	Get(ctx context.Context, userID string) ([]Item, error)
	Add(ctx context.Context, userID string, item Item) ([]Item, error)
	UpdateQuantity(ctx context.Context, userID, productID string, delta int) ([]Item, error)
	Remove(ctx context.Context, userID, productID string) ([]Item, error)
	Clear(ctx context.Context, userID string) error
}

func (i Item) validate() error {
	if strings.TrimSpace(i.ProductID) == "" {
		return fmt.Errorf("%w: productId is required", ErrInvalidItem)
	}
	if i.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be a positive integer", ErrInvalidItem)
	}
	return nil
}

// addItem merges item into an existing line for the same product.
func addItem(items []Item, item Item) []Item {
	items = slices.Clone(items)
	for i := range items {
		if items[i].ProductID == item.ProductID {
			items[i].Quantity += item.Quantity
			if item.Title != "" {
				items[i].Title = item.Title
			}
			return items
		}
	}
	return append(items, item)
}

// updateQuantity shifts a line by delta, never dropping it below one. Unknown
// products leave the cart unchanged.
func updateQuantity(items []Item, productID string, delta int) []Item {
	items = slices.Clone(items)
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity = max(items[i].Quantity+delta, 1)
		}
	}
	return items
}

func removeItem(items []Item, productID string) []Item {
	return slices.DeleteFunc(slices.Clone(items), func(it Item) bool { return it.ProductID == productID })
}

// PurchaseItems converts cart lines into a purchase request.
func PurchaseItems(items []Item) []purchase.Item {
	out := make([]purchase.Item, len(items))
	for i, it := range items {
		out[i] = purchase.Item{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return out
}

// Checkout settles the user's cart and empties it on success. A failed
// settlement leaves the cart as it was.
func Checkout(ctx context.Context, store Store, settler purchase.Settler, userID string) ([]purchase.Record, error) {
	items, err := store.Get(ctx, userID)
	if err != nil {
		return nil, &purchase.StoreError{Op: "load cart", Err: err}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", purchase.ErrInvalidRequest)
	}

	records, err := settler.Settle(ctx, userID, PurchaseItems(items))
	if err != nil {
		return nil, err
	}

	// The purchase is committed; a stale cart is not worth failing it for.
	if err := store.Clear(context.WithoutCancel(ctx), userID); err != nil {
		return records, &ClearError{Err: err}
	}
	return records, nil
}

// ClearError reports a checkout that settled but could not empty the cart.
type ClearError struct {
	Err error
}

func (e *ClearError) Error() string { return "purchase settled but cart not cleared: " + e.Err.Error() }

func (e *ClearError) Unwrap() error { return e.Err }
