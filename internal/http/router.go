package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	Logger         zerolog.Logger
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

func NewRouter(cfg RouterConfig, carts *CartHandler, checkout *CheckoutHandler, orders *OrdersHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(cfg.Logger))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-ID"))
	r.Use(hlog.AccessHandler(accessLog))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	if cfg.MaxBodyBytes > 0 {
		r.Use(middleware.RequestSize(cfg.MaxBodyBytes))
	}
	r.Use(IdentityMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", carts.GetCart)
			r.Post("/", carts.AddItem)
			r.Put("/", carts.ReplaceItem)
			r.Delete("/", carts.RemoveItem)
			r.Put("/selection", carts.SetSelection)
			r.With(RequireUser).Post("/merge", carts.Merge)
		})
		r.Route("/orders", func(r chi.Router) {
			r.Use(RequireUser)
			r.Get("/", orders.ListOrders)
			r.Post("/", checkout.Submit)
			r.Get("/settlement", checkout.Settlement)
			r.Get("/{order_id}", orders.GetOrder)
		})
	})

	return otelhttp.NewHandler(r, "mall-http")
}
