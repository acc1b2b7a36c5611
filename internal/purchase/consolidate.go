package purchase

import (
	"fmt"
	"math"
)

// Line is one consolidated product demand.
type Line struct {
	ProductID string
	Quantity  int
}

// Demand holds the summed quantity per product. Lines are kept in the order
// each product first appeared in the request.
type Demand struct {
	lines []Line
	index map[string]int
}

// Consolidate folds items into a Demand, summing duplicate product ids.
// Items are expected to have passed ValidateItems.
func Consolidate(items []Item) Demand {
	d := Demand{
		lines: make([]Line, 0, len(items)),
		index: make(map[string]int, len(items)),
	}
	for _, item := range items {
		if i, ok := d.index[item.ProductID]; ok {
			d.lines[i].Quantity += item.Quantity
			continue
		}
		d.index[item.ProductID] = len(d.lines)
		d.lines = append(d.lines, Line{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return d
}

func (d Demand) Lines() []Line {
	out := make([]Line, len(d.lines))
	copy(out, d.lines)
	return out
}

func (d Demand) Len() int { return len(d.lines) }

// Quantity returns the total demanded for productID, zero when absent.
func (d Demand) Quantity(productID string) int {
	if i, ok := d.index[productID]; ok {
		return d.lines[i].Quantity
	}
	return 0
}

func (d Demand) ProductIDs() []string {
	ids := make([]string, len(d.lines))
	for i, l := range d.lines {
		ids[i] = l.ProductID
	}
	return ids
}

// Total is the number of units across all lines.
func (d Demand) Total() int {
	total := 0
	for _, l := range d.lines {
		total += l.Quantity
	}
	return total
}

// ValidateItems rejects an empty request or the first malformed item. An
// item whose quantity would push its product's total past math.MaxInt is
// malformed, so Consolidate never wraps.
func ValidateItems(items []Item) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: expected a non-empty list of purchases", ErrInvalidRequest)
	}
	totals := make(map[string]int, len(items))
	for i, item := range items {
		switch {
		case item.ProductID == "":
			return &InvalidItemError{Index: i, Item: item, Reason: "missing productId"}
		case item.Quantity <= 0:
			return &InvalidItemError{Index: i, Item: item, Reason: "quantity must be a positive integer"}
		case totals[item.ProductID] > math.MaxInt-item.Quantity:
			return &InvalidItemError{Index: i, Item: item, Reason: "total quantity for product is too large"}
		}
		totals[item.ProductID] += item.Quantity
	}
	return nil
}
