package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/fatiha-mvv/microservice-panier-railway/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

const BasePath = "/api/panier"

func NewRouter(h *CartHandler, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)

	r.Mount(BasePath, h.Routes())
	return r
}
