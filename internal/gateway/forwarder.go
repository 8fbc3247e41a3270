package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fatiha-mvv/microservice-panier-railway/internal/logger"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	// ErrTransport means no response was received from the cart service.
	ErrTransport = errors.New("cart service unreachable")
	// ErrBreakerOpen means the call was not attempted because of recent transport failures.
	ErrBreakerOpen = errors.New("circuit breaker is open")
)

// BaseURLResolver returns the cart service base URL; it is consulted on every call.
type BaseURLResolver interface {
	Resolve() string
}

type ResolverFunc func() string

func (f ResolverFunc) Resolve() string { return f() }

type UpstreamResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (u *UpstreamResponse) Success() bool {
	return u.StatusCode >= 200 && u.StatusCode < 300
}

type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// Forwarder makes exactly one outbound attempt per call, without retries.
type Forwarder struct {
	client   *http.Client
	resolver BaseURLResolver
	breaker  *gobreaker.CircuitBreaker[*UpstreamResponse]
	log      *slog.Logger
}

func NewForwarder(resolver BaseURLResolver, timeout time.Duration, bs BreakerSettings, log *slog.Logger) *Forwarder {
	client := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	return NewForwarderWithClient(client, resolver, bs, log)
}

func NewForwarderWithClient(client *http.Client, resolver BaseURLResolver, bs BreakerSettings, log *slog.Logger) *Forwarder {
	return &Forwarder{
		client:   client,
		resolver: resolver,
		breaker:  newBreaker(bs, log),
		log:      log,
	}
}

func newBreaker(bs BreakerSettings, log *slog.Logger) *gobreaker.CircuitBreaker[*UpstreamResponse] {
	threshold := bs.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker[*UpstreamResponse](gobreaker.Settings{
		Name:        "cart-service",
		MaxRequests: 1,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
}

// BaseURL exposes the currently resolved backend, for the health endpoint.
func (f *Forwarder) BaseURL() string {
	return f.resolver.Resolve()
}

// Forward sends method+path (path includes the leading slash) to the cart service.
// A response with any status is returned as-is; errors wrap ErrTransport or ErrBreakerOpen
// when no response was obtained.
func (f *Forwarder) Forward(ctx context.Context, method, path string, body []byte) (*UpstreamResponse, error) {
	target := f.resolver.Resolve() + path
	log := logger.With(ctx, f.log).With(slog.String("method", method), slog.String("url", target))
	log.Info("forwarding request to cart service")

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	// the outbound call is not tied to the inbound connection; the client timeout bounds it
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), method, target, reader)
	if err != nil {
		log.Error("could not build upstream request", slog.Any("error", err))
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.breaker.Execute(func() (*UpstreamResponse, error) {
		return f.do(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn("cart service call short-circuited", slog.Any("error", err))
			return nil, fmt.Errorf("%w: %v", ErrBreakerOpen, err)
		}
		log.Error("cart service call failed", slog.Any("error", err))
		return nil, err
	}

	if resp.Success() {
		log.Info("cart service call succeeded", slog.Int("status", resp.StatusCode))
	} else {
		log.Warn("cart service returned an error status", slog.Int("status", resp.StatusCode))
	}
	return resp, nil
}

func (f *Forwarder) do(req *http.Request) (*UpstreamResponse, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}
	return &UpstreamResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
