package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewMemoryStore returns a process-local rate limit store.
func NewMemoryStore(prefix string) limiter.Store {
	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          prefix,
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	})
}

// NewRedisStore returns a rate limit store shared by all instances using
// client.
func NewRedisStore(client redis.UniversalClient, prefix string) (limiter.Store, error) {
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   prefix,
		MaxRetry: limiter.DefaultMaxRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis rate limit store: %w", err)
	}
	return store, nil
}

// RateLimitConfig describes one limit.
type RateLimitConfig struct {
	// Name distinguishes limits sharing a store.
	Name              string
	RequestsPerMinute int
	Store             limiter.Store
}

// RateLimit limits requests per client. The client key is the API key when
// present, otherwise the remote address, so it must run after TrustedRealIP.
// Rejected requests get 429 with the standard X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	rate := limiter.Rate{Period: time.Minute, Limit: int64(cfg.RequestsPerMinute)}
	lim := limiter.New(cfg.Store, rate)

	mw := stdlib.NewMiddleware(lim,
		stdlib.WithKeyGetter(func(r *http.Request) string {
			return cfg.Name + ":" + clientKey(r)
		}),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			slog.Warn("rate limit exceeded", "limit", cfg.Name, "path", r.URL.Path, "ip", r.RemoteAddr)
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded", "RATE001")
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Error("rate limit store failed", "limit", cfg.Name, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "rate limit unavailable", "ERR000")
		}),
	)
	return mw.Handler
}

func clientKey(r *http.Request) string {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		sum := sha256.Sum256([]byte(key))
		return "key:" + hex.EncodeToString(sum[:8])
	}
	if ip := extractIP(r.RemoteAddr); ip != nil {
		return "ip:" + ip.String()
	}
	return "ip:" + r.RemoteAddr
}
