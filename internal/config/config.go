// Package config resolves settings from the environment, an optional dotenv file and defaults,
// in that order of precedence.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultConfigFile = ".env"

	DefaultBackendURL      = "http://localhost:5001"
	DefaultRedisConnection = "localhost:6379"
)

// Origin tells which layer a value came from.
type Origin int

const (
	FromEnv Origin = iota
	FromFile
	FromDefault
)

func (o Origin) String() string {
	switch o {
	case FromEnv:
		return "env"
	case FromFile:
		return "file"
	default:
		return "default"
	}
}

// Source looks values up in the process environment first, then in a dotenv file.
// The file is re-read on every lookup so edits are picked up without a restart.
type Source struct {
	lookupEnv func(string) (string, bool)
	file      string
}

func NewSource(file string) *Source {
	return &Source{lookupEnv: os.LookupEnv, file: file}
}

// NewSourceFromEnv picks the dotenv file named by CONFIG_FILE, or .env.
func NewSourceFromEnv() *Source {
	file := DefaultConfigFile
	if v, ok := os.LookupEnv("CONFIG_FILE"); ok && v != "" {
		file = v
	}
	return NewSource(file)
}

func (s *Source) fileValues() map[string]string {
	if s.file == "" {
		return nil
	}
	values, err := godotenv.Read(s.file)
	if err != nil {
		// missing or unreadable file is an empty layer
		return nil
	}
	return values
}

// Lookup returns envKey from the environment, else fileKey from the dotenv file, else fallback.
func (s *Source) Lookup(envKey, fileKey, fallback string) (string, Origin) {
	if v, ok := s.lookupEnv(envKey); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), FromEnv
	}
	if fileKey != "" {
		if v := strings.TrimSpace(s.fileValues()[fileKey]); v != "" {
			return v, FromFile
		}
	}
	return fallback, FromDefault
}

// Get is Lookup with the same key in both layers.
func (s *Source) Get(key, defaultValue string) string {
	v, _ := s.Lookup(key, key, defaultValue)
	return v
}

func (s *Source) Duration(key string, defaultValue time.Duration) time.Duration {
	v, origin := s.Lookup(key, key, "")
	if origin == FromDefault {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func (s *Source) Uint(key string, defaultValue uint32) uint32 {
	v, origin := s.Lookup(key, key, "")
	if origin == FromDefault {
		return defaultValue
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil || n == 0 {
		return defaultValue
	}
	return uint32(n)
}

func (s *Source) List(key string) []string {
	v := s.Get(key, "")
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// BackendResolver computes the cart service base URL. It is meant to be called per request.
type BackendResolver struct {
	src *Source
	log *slog.Logger
}

func NewBackendResolver(src *Source, log *slog.Logger) *BackendResolver {
	return &BackendResolver{src: src, log: log}
}

// Resolve prefers CART_API_URL, then SERVICES_CART_API from the config file, then the local
// fallback. A value without an http:// or https:// prefix gets http:// prepended.
func (r *BackendResolver) Resolve() string {
	url, origin := r.src.Lookup("CART_API_URL", "SERVICES_CART_API", DefaultBackendURL)
	if origin == FromDefault {
		r.log.Warn("no cart service url configured, using local fallback", slog.String("url", url))
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		r.log.Warn("cart service url has no scheme, prepending http://", slog.String("url", url))
		url = "http://" + url
	}
	url = strings.TrimRight(url, "/")
	r.log.Debug("resolved cart service url", slog.String("url", url), slog.String("origin", origin.String()))
	return url
}

type GatewayConfig struct {
	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
	LogLevel           string
}

func LoadGateway(src *Source) *GatewayConfig {
	return &GatewayConfig{
		HTTPPort:           src.Get("PORT", "5000"),
		RequestTimeout:     src.Duration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    src.Duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: 1 << 20, // 1MB
		BreakerFailures:    src.Uint("BREAKER_FAILURES", 5),
		BreakerOpenTimeout: src.Duration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
		LogLevel:           src.Get("LOG_LEVEL", "info"),
	}
}

type CartServiceConfig struct {
	HTTPPort           string
	RedisConnection    string
	RedisOrigin        Origin
	CartTTL            time.Duration
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	KafkaBrokers       []string
	ClearTopic         string
	LogLevel           string
}

func LoadCartService(src *Source) *CartServiceConfig {
	redisConn, origin := src.Lookup("REDIS_URL", "CONNECTIONSTRINGS_REDIS", DefaultRedisConnection)
	return &CartServiceConfig{
		HTTPPort:           src.Get("PORT", "5001"),
		RedisConnection:    redisConn,
		RedisOrigin:        origin,
		CartTTL:            src.Duration("CART_TTL", 7*24*time.Hour),
		RequestTimeout:     src.Duration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    src.Duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: 1 << 20,
		KafkaBrokers:       src.List("KAFKA_BROKERS"),
		ClearTopic:         src.Get("CART_CLEAR_TOPIC", "checkout-outbox"),
		LogLevel:           src.Get("LOG_LEVEL", "info"),
	}
}
