package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/metrics"
	"github.com/aman-churiwal/edge-gateway/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix        = "cache:"
	generationPrefix = "cachegen:"
	versionPrefix    = "cachever:"

	// versionTTL only has to outlive the slowest compute; it is refreshed
	// on every invalidation.
	versionTTL = 24 * time.Hour
)

// Store is what the response cache needs from the shared store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetIfVersion(ctx context.Context, key string, value []byte, ttl time.Duration, versionKey string, version int64) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	IncrAtomic(ctx context.Context, key string, initial int64, ttl time.Duration) (int64, error)
}

// ComputeFunc produces the payload on a miss.
type ComputeFunc func(ctx context.Context) ([]byte, error)

type entry struct {
	Payload   []byte `json:"payload"`
	ExpiresAt int64  `json:"expires_at"` // unix ms
}

// ResponseCache stores opaque response payloads in the shared store.
type ResponseCache struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	now     func() time.Time
	group   *singleflight.Group
}

type Option func(*ResponseCache)

func WithTimeout(d time.Duration) Option {
	return func(c *ResponseCache) { c.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) { c.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *ResponseCache) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *ResponseCache) { c.metrics = m }
}

// WithSingleFlight collapses concurrent computes for the same key in this
// process into one.
func WithSingleFlight(enabled bool) Option {
	return func(c *ResponseCache) {
		if enabled {
			c.group = &singleflight.Group{}
		} else {
			c.group = nil
		}
	}
}

func New(store Store, opts ...Option) *ResponseCache {
	c := &ResponseCache{
		store:   store,
		logger:  zap.NewNop(),
		timeout: 100 * time.Millisecond,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the live payload for key. Expired entries, absent keys and
// store failures all report a miss.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.store.Get(ctx, keyPrefix+key)
	if errors.Is(err, storage.ErrNotFound) {
		c.metrics.CacheLookup(metrics.CacheMiss)
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache read failed, treating as miss", zap.String("key", key), zap.Error(err))
		c.metrics.StoreError("cache", "get")
		c.metrics.CacheLookup(metrics.CacheError)
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.logger.Warn("corrupt cache entry, treating as miss", zap.String("key", key), zap.Error(err))
		c.metrics.CacheLookup(metrics.CacheError)
		return nil, false
	}

	if c.now().UnixMilli() >= e.ExpiresAt {
		c.metrics.CacheLookup(metrics.CacheExpired)
		return nil, false
	}

	c.metrics.CacheLookup(metrics.CacheHit)
	return e.Payload, true
}

// Set stores payload under key for ttl. A ttl <= 0 stores nothing.
// Failures are logged and swallowed: the next read is simply a miss.
func (c *ResponseCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	raw, ok := c.encode(key, payload, ttl)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.Set(ctx, keyPrefix+key, raw, ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		c.metrics.StoreError("cache", "set")
	}
}

// setIfVersion stores payload only while key is still at version, so a
// result computed before an invalidation never lands after it.
func (c *ResponseCache) setIfVersion(ctx context.Context, key string, payload []byte, ttl time.Duration, version int64) {
	raw, ok := c.encode(key, payload, ttl)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stored, err := c.store.SetIfVersion(ctx, keyPrefix+key, raw, ttl, versionPrefix+key, version)
	if err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		c.metrics.StoreError("cache", "set")
		return
	}
	if !stored {
		c.logger.Debug("discarding entry invalidated while computing", zap.String("key", key))
	}
}

func (c *ResponseCache) encode(key string, payload []byte, ttl time.Duration) ([]byte, bool) {
	if ttl <= 0 {
		return nil, false
	}

	raw, err := json.Marshal(entry{
		Payload:   payload,
		ExpiresAt: c.now().Add(ttl).UnixMilli(),
	})
	if err != nil {
		c.logger.Error("failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return raw, true
}

// GetOrCompute returns the cached payload for key, or calls compute, stores
// its result for ttl and returns it. Compute errors are returned unchanged
// and nothing is stored.
func (c *ResponseCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) ([]byte, error) {
	if payload, ok := c.Get(ctx, key); ok {
		return payload, nil
	}

	if c.group == nil {
		return c.computeAndStore(ctx, key, ttl, compute)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.computeAndStore(ctx, key, ttl, compute)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *ResponseCache) computeAndStore(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) ([]byte, error) {
	if ttl <= 0 {
		return compute(ctx)
	}

	// The version is read before computing: an invalidation that lands
	// while compute runs moves it on and the result is not stored.
	version, verr := c.readCounter(ctx, versionPrefix+key)

	payload, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	if verr != nil {
		c.logger.Warn("cache version read failed, not storing", zap.String("key", key), zap.Error(verr))
		c.metrics.StoreError("cache", "version")
		return payload, nil
	}

	c.setIfVersion(ctx, key, payload, ttl, version)
	return payload, nil
}

// Invalidate bumps the version of each key and deletes its entry. Once it
// returns nil the next lookup of any of them is a miss, including entries
// whose compute started before the call.
func (c *ResponseCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	storeKeys := make([]string, len(keys))
	for i, k := range keys {
		storeKeys[i] = keyPrefix + k
		if _, err := c.store.IncrAtomic(ctx, versionPrefix+k, 1, versionTTL); err != nil {
			return c.invalidationFailed(keys, "incr_version", err)
		}
	}

	if err := c.store.Delete(ctx, storeKeys...); err != nil {
		return c.invalidationFailed(keys, "delete", err)
	}

	c.metrics.Invalidation(true)
	return nil
}

func (c *ResponseCache) invalidationFailed(keys []string, op string, err error) error {
	c.logger.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	c.metrics.StoreError("cache", op)
	c.metrics.Invalidation(false)
	return fmt.Errorf("invalidate %v: %w", keys, err)
}

// Namespace returns the current key prefix for a family of entries, e.g.
// "job-list:g3". Keys built under it go stale together when the namespace
// is invalidated.
func (c *ResponseCache) Namespace(ctx context.Context, name string) (string, error) {
	gen, err := c.readCounter(ctx, generationPrefix+name)
	if err != nil {
		c.metrics.StoreError("cache", "namespace")
		return "", fmt.Errorf("read generation for %s: %w", name, err)
	}

	return name + ":g" + strconv.FormatInt(gen, 10), nil
}

// readCounter reads a generation or version counter. Absent counts as 0.
func (c *ResponseCache) readCounter(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

// InvalidateNamespace bumps the generation of name so every key built under
// the previous generation is unreachable. Old entries age out by ttl.
func (c *ResponseCache) InvalidateNamespace(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.store.IncrAtomic(ctx, generationPrefix+name, 1, 0); err != nil {
		c.logger.Warn("cache namespace invalidation failed", zap.String("namespace", name), zap.Error(err))
		c.metrics.StoreError("cache", "incr_generation")
		c.metrics.Invalidation(false)
		return fmt.Errorf("invalidate namespace %s: %w", name, err)
	}

	c.metrics.Invalidation(true)
	return nil
}
