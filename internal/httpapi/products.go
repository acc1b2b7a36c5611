package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"purchaseservice/internal/catalog"
	"purchaseservice/internal/purchase"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Page is the envelope for every paginated listing.
type Page[T any] struct {
	Data       []T `json:"data"`
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
	TotalItems int `json:"totalItems"`
}

func newPage[T any](data []T, paging catalog.Paging, total int) Page[T] {
	return Page[T]{Data: data, Page: paging.Page, TotalPages: paging.TotalPages(total), TotalItems: total}
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req catalog.NewProduct
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, purchase.KindInvalidRequest.String(), "Invalid JSON body")
		return
	}

	product, err := h.products.CreateProduct(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.DeleteProduct(r.Context(), chi.URLParam(r, "productID")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseProductFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, purchase.KindInvalidRequest.String(), err.Error())
		return
	}

	products, total, err := h.products.ListProducts(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPage(products, filter.Paging, total))
}

// parseProductFilter reads filter, minPrice, maxPrice, inventory, date,
// page and limit.
func parseProductFilter(q url.Values) (catalog.ProductFilter, error) {
	f := catalog.ProductFilter{Title: q.Get("filter")}

	for name, dst := range map[string]**decimal.Decimal{"minPrice": &f.MinPrice, "maxPrice": &f.MaxPrice} {
		if v := q.Get(name); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return f, fmt.Errorf("%s must be a number", name)
			}
			*dst = &d
		}
	}

	switch inv := catalog.InventoryState(q.Get("inventory")); inv {
	case catalog.InventoryAny, catalog.InventorySoldOut, catalog.InventoryAvailable:
		f.Inventory = inv
	default:
		return f, fmt.Errorf("inventory must be %q or %q", catalog.InventorySoldOut, catalog.InventoryAvailable)
	}

	switch date := catalog.DateOrder(q.Get("date")); date {
	case catalog.DateUnsorted, catalog.DateNewest, catalog.DateOldest:
		f.Date = date
	default:
		return f, fmt.Errorf("date must be %q or %q", catalog.DateNewest, catalog.DateOldest)
	}

	paging, err := parsePaging(q)
	if err != nil {
		return f, err
	}
	f.Paging = paging
	return f, nil
}

// parsePaging reads page and limit, defaulting whichever is absent.
func parsePaging(q url.Values) (catalog.Paging, error) {
	var p catalog.Paging
	for name, dst := range map[string]*int{"page": &p.Page, "limit": &p.Limit} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return p, fmt.Errorf("%s must be a positive integer", name)
			}
			*dst = n
		}
	}
	return p.Normalize(), nil
}
