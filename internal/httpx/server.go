package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-engine/internal/storefront"
)

type RouterDeps struct {
	Service *storefront.Service
	Logger  *zap.Logger
	// Gatherer backs /metrics. Nil hides the endpoint.
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
}

func NewRouter(deps RouterDeps) *chi.Mux {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 15 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(deps.Logger), middleware.Recoverer)
	r.Use(middleware.Timeout(deps.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	h := &Handler{svc: deps.Service}
	r.Get("/products/{id}", h.getProduct)

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Get("/cart", h.getCart)
		r.Post("/cart/lines", h.addCartLine)
		r.Post("/cart/lines/{id}", h.updateCartLine)
		r.Delete("/cart/lines/{id}", h.removeCartLine)

		r.Post("/checkout", h.checkout)
		r.Post("/bookings", h.book)
		r.Get("/orders", h.listOrders)
		r.Get("/bookings", h.listBookings)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/orders", h.listAllOrders)
			r.Get("/bookings", h.listAllBookings)
			r.Post("/orders/{id}/status", h.setOrderStatus)
		})
	})
	return r
}
