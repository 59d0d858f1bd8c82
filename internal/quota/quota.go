// Package quota is an opt-in token-bucket rate limiter layered on top of
// the hard per-invocation counters the core sandbox always enforces (see
// internal/capability's RateLimit.RequestsPerMinute). A deployment that
// wants the looser requests_per_hour budget honored, or limits shared across
// many concurrent invocations of the same tool, wires a Limiter in; nothing
// in the Invocation Engine's Invoke path requires one.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// tokenBucketScript atomically refills and debits a Redis-backed bucket.
// KEYS[1] = bucket key; ARGV = max_tokens, refill_rate (tokens/sec), now
// (unix seconds), requested.
var tokenBucketScript = redis.NewScript(`
local bucket = redis.call('HMGET', KEYS[1], 'tokens', 'last_refill')
local tokens = tonumber(bucket[1]) or tonumber(ARGV[1])
local last = tonumber(bucket[2]) or tonumber(ARGV[3])

local elapsed = tonumber(ARGV[3]) - last
tokens = math.min(tonumber(ARGV[1]), tokens + elapsed * tonumber(ARGV[2]))

local allowed = 0
if tokens >= tonumber(ARGV[4]) then
    tokens = tokens - tonumber(ARGV[4])
    allowed = 1
end

redis.call('HMSET', KEYS[1], 'tokens', tokens, 'last_refill', ARGV[3])
redis.call('EXPIRE', KEYS[1], math.ceil(tonumber(ARGV[1]) / tonumber(ARGV[2])) + 10)

return {allowed, math.floor(tokens)}
`)

// Decision is the result of one Allow check.
type Decision struct {
	Allowed   bool
	Remaining int
}

// Backend is the minimum surface a token-bucket store must provide.
type Backend interface {
	CheckRateLimit(ctx context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error)
}

// Limiter is the token-bucket extension: a key (the sandbox uses KeyForTool,
// "lemonhost:quota:<tool>:<class>", so budget is shared across invocations of
// one tool) backed by whatever Backend it's constructed with.
type Limiter struct {
	backend Backend
}

// New builds a Limiter over backend (a RedisBackend, a LocalBackend, or a
// FallbackBackend composing both).
func New(backend Backend) *Limiter {
	return &Limiter{backend: backend}
}

// Allow checks out one token from key's bucket, sized maxTokens with a
// refillRate of tokens per second.
func (l *Limiter) Allow(ctx context.Context, key string, maxTokens int, refillRate float64) (Decision, error) {
	allowed, remaining, err := l.backend.CheckRateLimit(ctx, key, maxTokens, refillRate, 1)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: allowed, Remaining: remaining}, nil
}

// KeyForTool scopes a bucket to one tool's class of action (e.g. "http",
// "exec", "tool_invoke") process-wide, independent of any single invocation.
func KeyForTool(tool, class string) string {
	return fmt.Sprintf("lemonhost:quota:%s:%s", tool, class)
}

// RedisBackend implements Backend against a go-redis client.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend builds a Backend backed by client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client, prefix: "lemonhost:quota:"}
}

// CheckRateLimit runs the token-bucket Lua script atomically against Redis.
func (b *RedisBackend) CheckRateLimit(ctx context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error) {
	now := float64(time.Now().Unix())
	result, err := tokenBucketScript.Run(ctx, b.client, []string{key}, maxTokens, refillRate, now, requested).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("quota redis check: %w", err)
	}
	if len(result) != 2 {
		return false, 0, fmt.Errorf("quota redis check: unexpected result length %d", len(result))
	}
	allowed, _ := result[0].(int64)
	remaining, _ := result[1].(int64)
	return allowed == 1, int(remaining), nil
}
