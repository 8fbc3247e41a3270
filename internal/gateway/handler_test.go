package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method      string
	Path        string
	RawPath     string
	ContentType string
	Body        string
}

// fakeBackend is a stand-in cart service answering every call with a canned response.
type fakeBackend struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	body     string
	ctype    string
	server   *httptest.Server
}

func newFakeBackend(t *testing.T, status int, body string) *fakeBackend {
	b := &fakeBackend{status: status, body: body, ctype: "application/json; charset=utf-8"}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.requests = append(b.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			RawPath:     r.URL.EscapedPath(),
			ContentType: r.Header.Get("Content-Type"),
			Body:        string(data),
		})
		status, respBody, ctype := b.status, b.body, b.ctype
		b.mu.Unlock()

		w.Header().Set("Content-Type", ctype)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, respBody)
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) recorded() []recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedRequest(nil), b.requests...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGateway(resolver BaseURLResolver, bs BreakerSettings) http.Handler {
	fwd := NewForwarderWithClient(&http.Client{Timeout: 2 * time.Second}, resolver, bs, discardLogger())
	h := NewCartHandler(fwd, discardLogger(), 1<<20)
	return NewRouter(h, discardLogger())
}

func unreachableURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func send(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, request)
	return recorder
}

const cartJSON = `{"userId":"u1","articles":[],"total":0,"itemCount":0}`

func TestGetCart_Forwarded(t *testing.T) {
	backend := newFakeBackend(t, http.StatusOK, cartJSON)
	gw := newGateway(ResolverFunc(func() string { return backend.server.URL }), BreakerSettings{})

	for _, prefix := range []string{"/api/cart", "/api/panier"} {
		rec := send(gw, http.MethodGet, prefix+"/u1", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, cartJSON, rec.Body.String())
	}

	reqs := backend.recorded()
	require.Len(t, reqs, 2)
	for _, r := range reqs {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/panier/u1", r.Path)
	}
}

func TestAddArticle_ForwardsBody(t *testing.T) {
	backend := newFakeBackend(t, http.StatusOK, cartJSON)
	gw := newGateway(ResolverFunc(func() string { return backend.server.URL }), BreakerSettings{})

	body := `{"name":"Book","price":12.50,"quantity":2}`
	rec := send(gw, http.MethodPost, "/api/cart/alice/articles", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	reqs := backend.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/api/panier/alice/articles", reqs[0].Path)
	assert.Equal(t, "application/json", reqs[0].ContentType)
	assert.JSONEq(t, body, reqs[0].Body)
}

func TestAddArticle_InvalidJSONNotForwarded(t *testing.T) {
	backend := newFakeBackend(t, http.StatusOK, cartJSON)
	gw := newGateway(ResolverFunc(func() string { return backend.server.URL }), BreakerSettings{})

	rec := send(gw, http.MethodPost, "/api/cart/alice/articles", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "invalid_request", resp.Code)
	assert.Empty(t, backend.recorded())
}

func TestAddArticle_BackendValidationErrorRelayed(t *testing.T) {
	backend := newFakeBackend(t, http.StatusBadRequest, `{"message":"quantity must be greater than 0"}`)
	gw := newGateway(ResolverFunc(func() string { return backend.server.URL }), BreakerSettings{})

	rec := send(gw, http.MethodPost, "/api/cart/alice/articles", `{"name":"Book","price":1,"quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"quantity must be greater than 0"}`, rec.Body.String())
}

func TestRemoveArticle_Forwarded(t *testing.T) {
	backend := newFakeBackend(t, http.StatusOK, cartJSON)
	gw := newGateway(ResolverFunc(func() string { return backend.server.URL }), BreakerSettings{})

	rec := send(gw, http.MethodDelete, "/api/cart/u1/articles/a-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	reqs := backend.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodDelete, reqs[0].Method)
	assert.Equal(t, "/api/panier/u1/articles/a-1", reqs[0].Path)
}

func TestRemoveArticle_EscapesPathSegments(t *testing.T) {
	backend := newFakeBackend(t, http.StatusOK, cartJSON)
	gw := newGateway(ResolverFunc(func() string { return backend.server.URL }), BreakerSettings{})

	rec := send(gw, http.MethodDelete, "/api/cart/jean%20dupont/articles/a%2F1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	reqs := backend.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/panier/jean%20dupont/articles/a%2F1", reqs[0].RawPath)
}

func TestClearCart_Returns204(t *testing.T) {
	backend := newFakeBackend(t, http.StatusNoContent, "")
	gw := newGateway(ResolverFunc(func() string { return backend.server.URL }), BreakerSettings{})

	rec := send(gw, http.MethodDelete, "/api/cart/u1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	reqs := backend.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodDelete, reqs[0].Method)
	assert.Equal(t, "/api/panier/u1", reqs[0].Path)
}

func TestBackendNotFound_RelayedVerbatim(t *testing.T) {
	notFound := `{"message":"cart not found"}`
	backend := newFakeBackend(t, http.StatusNotFound, notFound)
	gw := newGateway(ResolverFunc(func() string { return backend.server.URL }), BreakerSettings{})

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"get", http.MethodGet, "/api/cart/u1"},
		{"remove", http.MethodDelete, "/api/cart/u1/articles/x"},
		{"clear", http.MethodDelete, "/api/cart/u1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := send(gw, tt.method, tt.path, "")
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, notFound, rec.Body.String())
			assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		})
	}
}

func TestBackendServerError_Relayed(t *testing.T) {
	backend := newFakeBackend(t, http.StatusInternalServerError, `{"message":"internal server error"}`)
	gw := newGateway(ResolverFunc(func() string { return backend.server.URL }), BreakerSettings{ConsecutiveFailures: 1})

	for i := 0; i < 3; i++ {
		rec := send(gw, http.MethodGet, "/api/cart/u1", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code, "backend statuses must not trip the breaker")
	}
	assert.Len(t, backend.recorded(), 3)
}

func TestBackendUnreachable_Returns503(t *testing.T) {
	gw := newGateway(ResolverFunc(func() string { return unreachableURL(t) }), BreakerSettings{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"get", http.MethodGet, "/api/cart/u1", ""},
		{"add", http.MethodPost, "/api/cart/u1/articles", `{"name":"Book","price":1,"quantity":1}`},
		{"remove", http.MethodDelete, "/api/cart/u1/articles/a", ""},
		{"clear", http.MethodDelete, "/api/cart/u1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := send(gw, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, "transport_failure", resp.Code)
			assert.Equal(t, "cart service unavailable", resp.Message)
			assert.NotEmpty(t, resp.Detail)
		})
	}
}

func TestBackendHangs_SingleTransportFailureResponse(t *testing.T) {
	block := make(chan struct{})
	hung := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer hung.Close()
	defer close(block)

	fwd := NewForwarderWithClient(&http.Client{Timeout: 100 * time.Millisecond},
		ResolverFunc(func() string { return hung.URL }), BreakerSettings{}, discardLogger())
	gw := httptest.NewServer(NewRouter(NewCartHandler(fwd, discardLogger(), 1<<20), discardLogger()))
	defer gw.Close()

	resp, err := http.Get(gw.URL + "/api/cart/u1")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	dec := json.NewDecoder(resp.Body)
	var body ErrorResponse
	require.NoError(t, dec.Decode(&body))
	assert.Equal(t, "transport_failure", body.Code)
	assert.False(t, dec.More())
}

func TestInvalidBaseURL_ReturnsGenericFailure(t *testing.T) {
	gw := newGateway(ResolverFunc(func() string { return "http://bad host" }), BreakerSettings{})

	rec := send(gw, http.MethodGet, "/api/cart/u1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "generic_failure", resp.Code)
}

func TestBreaker_OpensAfterConsecutiveTransportFailures(t *testing.T) {
	backend := newFakeBackend(t, http.StatusOK, cartJSON)
	dead := unreachableURL(t)

	var mu sync.Mutex
	target := dead
	resolver := ResolverFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		return target
	})
	gw := newGateway(resolver, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		rec := send(gw, http.MethodGet, "/api/cart/u1", "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}

	mu.Lock()
	target = backend.server.URL
	mu.Unlock()

	rec := send(gw, http.MethodGet, "/api/cart/u1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "transport_failure", resp.Code)
	assert.Contains(t, resp.Detail, "circuit breaker is open")
	assert.Empty(t, backend.recorded(), "open breaker must not reach the backend")
}

func TestBaseURL_ResolvedPerRequest(t *testing.T) {
	first := newFakeBackend(t, http.StatusOK, cartJSON)
	second := newFakeBackend(t, http.StatusOK, cartJSON)

	var mu sync.Mutex
	target := first.server.URL
	gw := newGateway(ResolverFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		return target
	}), BreakerSettings{})

	send(gw, http.MethodGet, "/api/cart/u1", "")
	mu.Lock()
	target = second.server.URL
	mu.Unlock()
	send(gw, http.MethodGet, "/api/cart/u1", "")

	assert.Len(t, first.recorded(), 1)
	assert.Len(t, second.recorded(), 1)
}

func TestHealth_DoesNotCallBackend(t *testing.T) {
	backend := newFakeBackend(t, http.StatusOK, cartJSON)
	gw := newGateway(ResolverFunc(func() string { return backend.server.URL }), BreakerSettings{})

	rec := send(gw, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "gateway", health.Service)
	assert.Equal(t, backend.server.URL, health.ResolvedBackendURL)
	assert.WithinDuration(t, time.Now(), health.Timestamp, time.Minute)
	assert.Empty(t, backend.recorded())
}

func TestSegment(t *testing.T) {
	assert.Equal(t, "u1", segment("u1"))
	assert.Equal(t, "a%2Fb", segment("a%2Fb"))
	assert.Equal(t, "a%2Fb", segment("a/b"))
	assert.Equal(t, "jean%20dupont", segment("jean dupont"))
}
