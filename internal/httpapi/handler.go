// Package httpapi exposes settlement, catalog and cart operations over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"purchaseservice/internal/cart"
	"purchaseservice/internal/catalog"
	"purchaseservice/internal/platform/observability"
	"purchaseservice/internal/purchase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const defaultRequestTimeout = 30 * time.Second

type Handler struct {
	settler   purchase.Settler
	products  catalog.Products
	users     catalog.Users
	carts     cart.Store
	publisher purchase.OutcomePublisher
	logger    observability.Logger

	requestTimeout time.Duration
}

type Option func(*Handler)

// WithPublisher announces HTTP settlements on the outcome topic.
func WithPublisher(p purchase.OutcomePublisher) Option {
	return func(h *Handler) { h.publisher = p }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.requestTimeout = d
		}
	}
}

func New(settler purchase.Settler, products catalog.Products, users catalog.Users, carts cart.Store, logger observability.Logger, opts ...Option) *Handler {
	h := &Handler{
		settler:        settler,
		products:       products,
		users:          users,
		carts:          carts,
		logger:         logger,
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes builds the service router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.requestTimeout))

	r.Get("/health", h.Health)

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/{productID}", h.GetProduct)
		r.Delete("/{productID}", h.DeleteProduct)
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Post("/", h.CreateUser)
		r.Route("/{userID}", func(r chi.Router) {
			r.Get("/", h.GetUser)
			r.Delete("/", h.DeleteUser)
			r.Get("/purchases", h.ListPurchases)
			r.Post("/purchases", h.Purchase)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Delete("/", h.ClearCart)
				r.Post("/items", h.AddCartItem)
				r.Patch("/items/{productID}", h.UpdateCartItem)
				r.Delete("/items/{productID}", h.RemoveCartItem)
				r.Post("/checkout", h.Checkout)
			})
		})
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
