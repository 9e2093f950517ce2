package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("storage: key not found")

// Counter is the state of a windowed counter after an IncrWindow call.
type Counter struct {
	Count    int64
	ResetAt  time.Time
	Admitted bool

	// Now is the instant the decision was made at, on the same clock as
	// ResetAt.
	Now time.Time
}

// incrWindowScript admits one request against a fixed window that starts at
// the first request. The window is restarted once now >= reset even if the
// hash has not expired yet (it lives for window + grace). A now of 0 reads
// the server clock so every gateway instance shares one time source.
//
// KEYS[1] counter hash
// ARGV[1] now (unix ms, 0 for server time), ARGV[2] window (ms),
// ARGV[3] limit, ARGV[4] ttl (ms)
//
// Returns {count, reset_ms, admitted, now_ms}.
var incrWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

if now == 0 then
	local t = redis.call('TIME')
	now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
end

local state = redis.call('HMGET', KEYS[1], 'count', 'reset')
local count = nil
local reset = nil
if state[1] and state[2] then
	count = tonumber(state[1])
	reset = tonumber(state[2])
end

if count == nil or reset == nil or now >= reset then
	reset = now + window
	redis.call('HSET', KEYS[1], 'count', 1, 'reset', reset)
	redis.call('PEXPIRE', KEYS[1], ttl)
	return {1, reset, 1, now}
end

if count < limit then
	count = redis.call('HINCRBY', KEYS[1], 'count', 1)
	return {count, reset, 1, now}
end

return {count, reset, 0, now}
`)

// incrAtomicScript sets KEYS[1] to ARGV[1] when absent, increments it
// otherwise, and refreshes the expiry when ARGV[2] > 0.
var incrAtomicScript = redis.NewScript(`
local value
if redis.call('EXISTS', KEYS[1]) == 0 then
	redis.call('SET', KEYS[1], ARGV[1])
	value = tonumber(ARGV[1])
else
	value = redis.call('INCR', KEYS[1])
end

if tonumber(ARGV[2]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end

return value
`)

// setIfVersionScript stores ARGV[1] at KEYS[1] only while the version at
// KEYS[2] still equals ARGV[3]. An absent version counts as 0.
//
// Returns 1 when stored, 0 when the version moved on.
var setIfVersionScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[2]) or '0')
if current ~= tonumber(ARGV[3]) then
	return 0
end

if tonumber(ARGV[2]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// RedisClient is the shared store adapter used by the rate limiter and the
// response cache. It is created once at startup and closed on shutdown.
type RedisClient struct {
	client *redis.Client
}

// NewRedis configures the client without dialing. Connections are opened
// lazily and re-established after an outage, so an unreachable store at
// startup does not stop the gateway. Callers Ping to report reachability.
func NewRedis(addr, password string, db int) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	return &RedisClient{client: client}
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Get returns the value stored at key or ErrNotFound.
func (r *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	return val, nil
}

// Set stores value at key. A ttl of zero keeps the key until deleted.
func (r *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del %v: %w", keys, err)
	}
	return nil
}

// SetIfVersion stores value at key only if the integer at versionKey still
// equals version, and reports whether it did. Check and write are atomic.
func (r *RedisClient) SetIfVersion(ctx context.Context, key string, value []byte, ttl time.Duration, versionKey string, version int64) (bool, error) {
	stored, err := setIfVersionScript.Run(ctx, r.client, []string{key, versionKey}, value, ttl.Milliseconds(), version).Int64()
	if err != nil {
		return false, fmt.Errorf("redis set %s if version %d: %w", key, version, err)
	}
	return stored == 1, nil
}

// IncrAtomic initializes key to initial when absent and increments it
// otherwise, refreshing the expiry when ttl > 0. Returns the new value.
func (r *RedisClient) IncrAtomic(ctx context.Context, key string, initial int64, ttl time.Duration) (int64, error) {
	val, err := incrAtomicScript.Run(ctx, r.client, []string{key}, initial, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return val, nil
}

// IncrWindow atomically applies one request to the windowed counter at key.
// A zero now uses the store's clock.
func (r *RedisClient) IncrWindow(ctx context.Context, key string, limit int64, window, grace time.Duration, now time.Time) (Counter, error) {
	var nowMs int64
	if !now.IsZero() {
		nowMs = now.UnixMilli()
	}

	ttl := window + grace
	res, err := incrWindowScript.Run(ctx, r.client, []string{key},
		nowMs, window.Milliseconds(), limit, ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Counter{}, fmt.Errorf("redis incr window %s: %w", key, err)
	}
	if len(res) != 4 {
		return Counter{}, fmt.Errorf("redis incr window %s: unexpected reply %v", key, res)
	}

	return Counter{
		Count:    res[0],
		ResetAt:  time.UnixMilli(res[1]),
		Admitted: res[2] == 1,
		Now:      time.UnixMilli(res[3]),
	}, nil
}
