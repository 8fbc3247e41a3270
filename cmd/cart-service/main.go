package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatiha-mvv/microservice-panier-railway/internal/cart/httpapi"
	"github.com/fatiha-mvv/microservice-panier-railway/internal/cart/poller"
	"github.com/fatiha-mvv/microservice-panier-railway/internal/cart/service"
	"github.com/fatiha-mvv/microservice-panier-railway/internal/cart/store"
	"github.com/fatiha-mvv/microservice-panier-railway/internal/config"
	"github.com/fatiha-mvv/microservice-panier-railway/internal/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.LoadCartService(config.NewSourceFromEnv())
	log := logger.New(service.ServiceName, cfg.LogLevel)

	if cfg.RedisOrigin == config.FromDefault {
		log.Warn("no redis configuration found, using local fallback")
	}
	redisOpts, err := store.ParseConnectionString(cfg.RedisConnection)
	if err != nil {
		log.Error("invalid redis connection string", slog.Any("error", err))
		os.Exit(1)
	}

	// one client for the whole process, shared by every request
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	cartStore := store.NewRedisStore(redisClient, cfg.CartTTL)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	err = cartStore.Ping(pingCtx)
	cancelPing()
	if err != nil {
		log.Error("redis connection failed", slog.String("redis", store.Redacted(cfg.RedisConnection)), slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("redis ping succeeded", slog.String("redis", store.Redacted(cfg.RedisConnection)), slog.Duration("cart_ttl", cfg.CartTTL))

	carts := service.NewCartService(cartStore, log, service.WithLoadTimeout(cfg.RequestTimeout))
	cartHandler := httpapi.NewCartHandler(carts, log, cfg.RequestTimeout, cfg.MaxRequestBodySize)

	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTPPort,
		Handler:      httpapi.NewRouter(cartHandler, log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	pollCtx, stopPolling := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(carts, log, cfg.ClearTopic, cfg.KafkaBrokers...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer p.Close()
			log.Info("checkout consumer started", slog.String("topic", cfg.ClearTopic))
			p.Run(pollCtx)
		}()
	}

	go func() {
		log.Info("cart service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down cart service...")
	stopPolling()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", slog.Any("error", err))
	}
	wg.Wait()
	log.Info("cart service stopped")
}
