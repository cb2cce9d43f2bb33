package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the service's HTTP surface: buyer checkout routes plus
// the role-gated admin subtree.
func NewRouter(orders *OrderHandler, coupons *CouponHandler, requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(HeaderAuthMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/coupons/validate", coupons.Validate)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orders.Create)
			r.Get("/", orders.List)
			r.Get("/{order_id}", orders.Get)
			r.Post("/{order_id}/cancel", orders.Cancel)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole("admin"))
			r.Route("/coupons", func(r chi.Router) {
				r.Post("/", coupons.Create)
				r.Get("/", coupons.List)
				r.Get("/{coupon_id}", coupons.Get)
				r.Put("/{coupon_id}", coupons.Update)
				r.Delete("/{coupon_id}", coupons.Deactivate)
			})
			r.Post("/orders/{order_id}/refund", orders.Refund)
		})
	})

	return r
}
