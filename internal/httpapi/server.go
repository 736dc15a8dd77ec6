// Package httpapi exposes the cart and checkout services over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/nazeru/quickmart-checkout-go/internal/cart"
	"github.com/nazeru/quickmart-checkout-go/internal/checkout"
	"github.com/nazeru/quickmart-checkout-go/pkg/metrics"
)

const serviceName = "checkout-service"

type Config struct {
	JWTSecret      string
	CheckoutRPS    float64
	CheckoutBurst  int
	RequestTimeout time.Duration
}

type Server struct {
	carts    *cart.Service
	checkout *checkout.Service
	cfg      Config
	metrics  *metrics.ServerMetrics
	gatherer prometheus.Gatherer
	limiter  *rate.Limiter
}

func NewServer(carts *cart.Service, co *checkout.Service, cfg Config, reg *prometheus.Registry) *Server {
	s := &Server{
		carts:    carts,
		checkout: co,
		cfg:      cfg,
		metrics:  metrics.NewServerMetrics(reg, "api"),
		gatherer: reg,
	}
	if cfg.CheckoutRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.CheckoutRPS), cfg.CheckoutBurst)
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler(s.gatherer))

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
				next.ServeHTTP(w, r)
			})
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.getCart)
			r.Post("/add", s.addToCart)
			r.Put("/items/{itemID}", s.updateCartItem)
			r.Delete("/items/{itemID}", s.removeCartItem)
			r.Delete("/clear", s.clearCart)
		})
		r.Route("/orders", func(r chi.Router) {
			r.With(s.rateLimit).Post("/", s.createOrder)
			r.Get("/", s.listOrders)
			r.Get("/{orderID}", s.getOrder)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"message": msg})
}
