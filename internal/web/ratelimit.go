package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/rosterimport/internal/config"
	"github.com/JonMunkholm/rosterimport/internal/logging"
)

var errRateLimited = errors.New("rate limit exceeded")

// rateLimiter decides whether a client may make another request in the
// current window.
type rateLimiter interface {
	// Allow consumes one request for key. When the request is refused, retry
	// is how long until the window resets.
	Allow(ctx context.Context, key string) (allowed bool, retry time.Duration, err error)
	Close() error
}

// newRateLimiter returns a Redis-backed limiter when REDIS_URL is set, so that
// several instances share one budget per client, and an in-process limiter
// otherwise.
func newRateLimiter(cfg config.RateLimitConfig) (rateLimiter, error) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return newRedisLimiter(redis.NewClient(opts), cfg.RequestsPerMinute, time.Minute), nil
	}
	return newMemoryLimiter(cfg.RequestsPerMinute, time.Minute), nil
}

// rateLimit returns middleware that rate limits by client IP. Limiter
// failures are logged and the request is let through.
func rateLimit(l rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retry, err := l.Allow(r.Context(), clientIP(r))
			if err != nil {
				logging.FromContext(r.Context()).Warn("rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", retryAfter(retry))
				respondError(w, r, errRateLimited, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the host part of RemoteAddr, which TrustedRealIP has
// already resolved.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// memoryLimiter implements a fixed-window limiter per IP.
type memoryLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func newMemoryLimiter(rate int, window time.Duration) *memoryLimiter {
	l := &memoryLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// cleanup removes stale visitor entries every window.
func (l *memoryLimiter) cleanup() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			for ip, v := range l.visitors {
				if l.now().Sub(v.lastReset) > l.window*2 {
					delete(l.visitors, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *memoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[key]
	if !ok || now.Sub(v.lastReset) >= l.window {
		l.visitors[key] = &visitor{tokens: l.rate - 1, lastReset: now}
		return true, 0, nil
	}
	if v.tokens <= 0 {
		return false, l.window - now.Sub(v.lastReset), nil
	}
	v.tokens--
	return true, 0, nil
}

func (l *memoryLimiter) Close() error {
	l.stopOnce.Do(func() { close(l.stop) })
	return nil
}

// redisLimiter counts requests in Redis under one key per client per window.
type redisLimiter struct {
	client *redis.Client
	rate   int
	window time.Duration
	prefix string
	now    func() time.Time
}

func newRedisLimiter(client *redis.Client, rate int, window time.Duration) *redisLimiter {
	return &redisLimiter{
		client: client,
		rate:   rate,
		window: window,
		prefix: "rosterimport:ratelimit:",
		now:    time.Now,
	}
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	slot := now.UnixNano() / int64(l.window)
	redisKey := l.prefix + key + ":" + strconv.FormatInt(slot, 10)

	pipe := l.client.Pipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit counter: %w", err)
	}

	if count.Val() > int64(l.rate) {
		windowEnd := time.Unix(0, (slot+1)*int64(l.window))
		return false, windowEnd.Sub(now), nil
	}
	return true, 0, nil
}

func (l *redisLimiter) Close() error {
	return l.client.Close()
}
