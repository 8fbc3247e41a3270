package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatiha-mvv/microservice-panier-railway/internal/config"
	"github.com/fatiha-mvv/microservice-panier-railway/internal/gateway"
	"github.com/fatiha-mvv/microservice-panier-railway/internal/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	src := config.NewSourceFromEnv()
	cfg := config.LoadGateway(src)
	log := logger.New(gateway.ServiceName, cfg.LogLevel)

	resolver := config.NewBackendResolver(src, log)
	log.Info("gateway configuration",
		slog.String("port", cfg.HTTPPort),
		slog.String("cart_service_url", resolver.Resolve()),
		slog.Duration("request_timeout", cfg.RequestTimeout),
	)

	forwarder := gateway.NewForwarder(resolver, cfg.RequestTimeout, gateway.BreakerSettings{
		ConsecutiveFailures: cfg.BreakerFailures,
		OpenTimeout:         cfg.BreakerOpenTimeout,
	}, log)
	cartHandler := gateway.NewCartHandler(forwarder, log, cfg.MaxRequestBodySize)
	router := gateway.NewRouter(cartHandler, log)

	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, gateway.ServiceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("gateway starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server exited")
}
