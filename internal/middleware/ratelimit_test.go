package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aman-churiwal/edge-gateway/internal/ratelimit"
	"github.com/aman-churiwal/edge-gateway/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStore(t *testing.T) (*storage.RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := storage.NewRedis(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func okHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func get(r http.Handler, path, remoteAddr string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_HeadersAndRejection(t *testing.T) {
	store, _ := newStore(t)
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	limiter := ratelimit.New(store, ratelimit.WithClock(clock.Now))

	r := gin.New()
	r.GET("/jobs/:id", RateLimit(limiter, ratelimit.Policy{Scope: ratelimit.ScopeIP, Limit: 2, Window: time.Minute}), okHandler)

	w := get(r, "/jobs/1", "10.0.0.1:5000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, strconv.FormatInt(clock.Now().Add(time.Minute).Unix(), 10), w.Header().Get("X-RateLimit-Reset"))

	w = get(r, "/jobs/1", "10.0.0.1:5001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	clock.Advance(10 * time.Second)
	w = get(r, "/jobs/1", "10.0.0.1:5002", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 50, retry, 1)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Rate limit exceeded", body["error"])
	assert.Equal(t, float64(2), body["limit"])
	assert.Equal(t, float64(0), body["remaining"])
	assert.Equal(t, float64(clock.Now().Add(50*time.Second).Unix()), body["reset"])

	w = get(r, "/jobs/1", "10.0.0.2:5000", nil)
	assert.Equal(t, http.StatusOK, w.Code, "other clients keep their own window")
}

func TestRateLimit_ForwardedForWinsOverPeer(t *testing.T) {
	store, _ := newStore(t)
	limiter := ratelimit.New(store)

	r := gin.New()
	r.GET("/jobs", RateLimit(limiter, ratelimit.Policy{Scope: ratelimit.ScopeIP, Limit: 1, Window: time.Minute}), okHandler)

	xff := http.Header{"X-Forwarded-For": {"203.0.113.5, 10.0.0.1"}}
	assert.Equal(t, http.StatusOK, get(r, "/jobs", "10.0.0.1:1", xff).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/jobs", "10.0.0.9:1", xff).Code)
	assert.Equal(t, http.StatusOK, get(r, "/jobs", "10.0.0.1:1", nil).Code)
}

func TestRateLimit_EndpointScopeUsesRouteTemplate(t *testing.T) {
	store, _ := newStore(t)
	limiter := ratelimit.New(store)

	r := gin.New()
	r.GET("/jobs/:id", RateLimit(limiter, ratelimit.Policy{Scope: ratelimit.ScopeEndpoint, Limit: 1, Window: time.Minute}), okHandler)

	assert.Equal(t, http.StatusOK, get(r, "/jobs/1", "10.0.0.1:1", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/jobs/2", "10.0.0.2:1", nil).Code)
}

func TestRateLimit_NoHeadersWhenNotEnforced(t *testing.T) {
	store, _ := newStore(t)

	bypassed := ratelimit.New(store, ratelimit.WithBypass(true))
	limiter := ratelimit.New(store)

	r := gin.New()
	r.GET("/bypass", RateLimit(bypassed, ratelimit.Policy{Scope: ratelimit.ScopeIP, Limit: 1, Window: time.Minute}), okHandler)
	r.GET("/anon", RateLimit(limiter, ratelimit.Policy{Scope: ratelimit.ScopeUser, Limit: 1, Window: time.Minute}), okHandler)

	for i := 0; i < 3; i++ {
		w := get(r, "/bypass", "10.0.0.1:1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))

		w = get(r, "/anon", "10.0.0.1:1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimit_FailsOpenWhenStoreDown(t *testing.T) {
	store, mr := newStore(t)
	limiter := ratelimit.New(store)

	r := gin.New()
	r.GET("/jobs", RateLimit(limiter, ratelimit.Policy{Scope: ratelimit.ScopeIP, Limit: 1, Window: time.Minute}), okHandler)

	mr.SetError("ERR injected failure")
	defer mr.SetError("")

	for i := 0; i < 3; i++ {
		w := get(r, "/jobs", "10.0.0.1:1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Remaining"))
	}
}
