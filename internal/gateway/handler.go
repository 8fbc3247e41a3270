package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	ServiceName = "gateway"

	// backendBasePath is where the cart service serves carts.
	backendBasePath = "/api/panier"
)

// Upstream is the forwarding dependency of the handlers.
type Upstream interface {
	Forward(ctx context.Context, method, path string, body []byte) (*UpstreamResponse, error)
	BaseURL() string
}

type CartHandler struct {
	upstream    Upstream
	log         *slog.Logger
	maxBodySize int64
	now         func() time.Time
}

func NewCartHandler(upstream Upstream, log *slog.Logger, maxBodySize int64) *CartHandler {
	return &CartHandler{
		upstream:    upstream,
		log:         log,
		maxBodySize: maxBodySize,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

type HealthResponse struct {
	Status             string    `json:"status"`
	Service            string    `json:"service"`
	Timestamp          time.Time `json:"timestamp"`
	ResolvedBackendURL string    `json:"resolvedBackendUrl"`
}

// Routes registers the cart routes relative to a prefix such as /api/cart.
func (h *CartHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{userID}", h.GetCart)
	r.Delete("/{userID}", h.ClearCart)
	r.Post("/{userID}/articles", h.AddArticle)
	r.Delete("/{userID}/articles/{articleID}", h.RemoveArticle)
	return r
}

// GET /api/cart/{userID}
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	path := cartPath(chi.URLParam(r, "userID"))
	resp, err := h.upstream.Forward(r.Context(), http.MethodGet, path, nil)
	h.relay(w, resp, err, http.StatusOK)
}

// POST /api/cart/{userID}/articles
func (h *CartHandler) AddArticle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "request body too large or unreadable", "")
		return
	}
	if !json.Valid(body) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", "")
		return
	}

	path := cartPath(chi.URLParam(r, "userID")) + "/articles"
	resp, err := h.upstream.Forward(r.Context(), http.MethodPost, path, body)
	h.relay(w, resp, err, http.StatusOK)
}

// DELETE /api/cart/{userID}/articles/{articleID}
func (h *CartHandler) RemoveArticle(w http.ResponseWriter, r *http.Request) {
	path := cartPath(chi.URLParam(r, "userID")) + "/articles/" + segment(chi.URLParam(r, "articleID"))
	resp, err := h.upstream.Forward(r.Context(), http.MethodDelete, path, nil)
	h.relay(w, resp, err, http.StatusOK)
}

// DELETE /api/cart/{userID}
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	path := cartPath(chi.URLParam(r, "userID"))
	resp, err := h.upstream.Forward(r.Context(), http.MethodDelete, path, nil)
	h.relay(w, resp, err, http.StatusNoContent)
}

// GET /api/health
func (h *CartHandler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:             "healthy",
		Service:            ServiceName,
		Timestamp:          h.now(),
		ResolvedBackendURL: h.upstream.BaseURL(),
	})
}

// relay writes the upstream outcome back to the client. Backend error responses pass
// through untouched; a 503 is synthesized only when no response was received.
func (h *CartHandler) relay(w http.ResponseWriter, resp *UpstreamResponse, err error, successStatus int) {
	if err != nil {
		handleForwardError(w, err)
		return
	}

	if resp.Success() {
		if successStatus == http.StatusNoContent {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(successStatus)
		_, _ = w.Write(resp.Body)
		return
	}

	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func handleForwardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTransport), errors.Is(err, ErrBreakerOpen):
		respondError(w, http.StatusServiceUnavailable, "transport_failure", "cart service unavailable", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "generic_failure", "cart service communication error", err.Error())
	}
}

func cartPath(userID string) string {
	return fmt.Sprintf("%s/%s", backendBasePath, segment(userID))
}

// segment re-escapes a path parameter that chi may hand back still escaped.
func segment(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		s = u
	}
	return url.PathEscape(s)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("failed to encode response", slog.Any("error", err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message, detail string) {
	respondJSON(w, status, ErrorResponse{
		Message: message,
		Code:    code,
		Detail:  detail,
	})
}
