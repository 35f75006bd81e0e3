package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/rosterimport/internal/config"
	"github.com/JonMunkholm/rosterimport/internal/store/memstore"
)

func TestMemoryLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newMemoryLimiter(2, time.Minute)
	l.now = func() time.Time { return now }
	defer l.Close()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}

	now = now.Add(20 * time.Second)
	ok, retry, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, retry)

	ok, _, _ = l.Allow(ctx, "5.6.7.8")
	assert.True(t, ok, "budgets are per client")

	now = now.Add(time.Minute)
	ok, _, _ = l.Allow(ctx, "1.2.3.4")
	assert.True(t, ok, "window resets")
}

func newMiniredisLimiter(t *testing.T, rate int) (*redisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	l := newRedisLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}), rate, time.Minute)
	t.Cleanup(func() { _ = l.Close() })
	return l, mr
}

func TestRedisLimiter(t *testing.T) {
	l, mr := newMiniredisLimiter(t, 2)
	now := time.Date(2024, 1, 1, 12, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, retry, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 50*time.Second, retry)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "rosterimport:ratelimit:1.2.3.4:")
	assert.Equal(t, time.Minute, mr.TTL(keys[0]))

	now = now.Add(time.Minute)
	ok, _, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok, "next window has a fresh budget")
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	l, mr := newMiniredisLimiter(t, 2)
	mr.Close()

	_, _, err := l.Allow(context.Background(), "1.2.3.4")
	assert.Error(t, err)
}

func TestRateLimitMiddleware(t *testing.T) {
	l, mr := newMiniredisLimiter(t, 1)
	h := rateLimit(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/viewData", nil)
		req.RemoteAddr = "192.0.2.10:4321"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call().Code)

	rec := call()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE001")

	mr.Close()
	assert.Equal(t, http.StatusNoContent, call().Code, "fails open when redis is down")
}

func TestNewServer_RedisURL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, RedisURL: "redis://" + mr.Addr()}
	s := newTestServer(t, memstore.New(), cfg)
	require.IsType(t, &redisLimiter{}, s.limiter)

	assert.Equal(t, http.StatusOK, serve(s, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(s, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestNewServer_BadRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, RedisURL: "not a url"}

	_, err := NewServer(nil, cfg)
	assert.ErrorContains(t, err, "REDIS_URL")
}
