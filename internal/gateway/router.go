package gateway

import (
	"log/slog"
	"net/http"

	"github.com/fatiha-mvv/microservice-panier-railway/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// NewRouter serves the cart routes under both /api/cart and /api/panier.
// Backend calls are bounded by the forwarder's client timeout alone, so a hung
// backend yields exactly one 503 response.
func NewRouter(h *CartHandler, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)

	r.Get("/api/health", h.Health)

	r.Mount("/api/cart", h.Routes())
	r.Mount("/api/panier", h.Routes())

	return r
}
