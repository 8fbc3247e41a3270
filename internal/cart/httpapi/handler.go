package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fatiha-mvv/microservice-panier-railway/internal/cart/domain"
	"github.com/fatiha-mvv/microservice-panier-railway/internal/cart/service"
	"github.com/fatiha-mvv/microservice-panier-railway/internal/logger"
	"github.com/go-chi/chi/v5"
)

// CartAPI is the part of the cart service the HTTP layer depends on.
type CartAPI interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddArticle(ctx context.Context, userID string, article domain.Article) (*domain.Cart, error)
	RemoveArticle(ctx context.Context, userID, articleID string) (*domain.Cart, error)
	ClearCart(ctx context.Context, userID string) (bool, error)
	HealthCheck() service.Health
}

type CartHandler struct {
	carts       CartAPI
	log         *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

func NewCartHandler(carts CartAPI, log *slog.Logger, timeout time.Duration, maxBodySize int64) *CartHandler {
	return &CartHandler{
		carts:       carts,
		log:         log,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

type ErrorResponse struct {
	Message string `json:"message"`
}

// Routes registers the cart endpoints; mount the result under /api/panier.
func (h *CartHandler) Routes() chi.Router {
	r := chi.NewRouter()
	// registered ahead of /{userID}: GET for a user literally named "health" returns health
	r.Get("/health", h.Health)
	r.Get("/{userID}", h.GetCart)
	r.Delete("/{userID}", h.ClearCart)
	r.Post("/{userID}/articles", h.AddArticle)
	r.Delete("/{userID}/articles/{articleID}", h.RemoveArticle)
	return r
}

// GET /api/panier/{userID}
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := chi.URLParam(r, "userID")
	logger.With(ctx, h.log).Info("get cart", slog.String("user_id", userID))

	cart, err := h.carts.GetCart(ctx, userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

// POST /api/panier/{userID}/articles
func (h *CartHandler) AddArticle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := chi.URLParam(r, "userID")

	var article domain.Article
	body := http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := json.NewDecoder(body).Decode(&article); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	logger.With(ctx, h.log).Info("add article",
		slog.String("user_id", userID),
		slog.String("name", article.Name),
		slog.Int("quantity", article.Quantity),
	)

	cart, err := h.carts.AddArticle(ctx, userID, article)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

// DELETE /api/panier/{userID}/articles/{articleID}
func (h *CartHandler) RemoveArticle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := chi.URLParam(r, "userID")
	articleID := chi.URLParam(r, "articleID")
	logger.With(ctx, h.log).Info("remove article",
		slog.String("user_id", userID), slog.String("article_id", articleID))

	cart, err := h.carts.RemoveArticle(ctx, userID, articleID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

// DELETE /api/panier/{userID}
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := chi.URLParam(r, "userID")
	logger.With(ctx, h.log).Info("clear cart", slog.String("user_id", userID))

	existed, err := h.carts.ClearCart(ctx, userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if !existed {
		respondError(w, http.StatusNotFound, domain.ErrCartNotFound.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GET /api/panier/health
func (h *CartHandler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.carts.HealthCheck())
}

func (h *CartHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrCartNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		logger.With(r.Context(), h.log).Error("cart request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("failed to encode response", slog.Any("error", err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Message: message})
}
