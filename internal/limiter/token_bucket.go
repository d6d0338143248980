package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "limiter:tb"

// TokenBucketLimiter 令牌桶限流器，桶状态保存在 Redis 哈希中，由 Lua 脚本原子更新
type TokenBucketLimiter struct {
	client redis.Cmdable
	config Config
	now    func() time.Time
}

// NewTokenBucketLimiter 创建令牌桶限流器
func NewTokenBucketLimiter(client redis.Cmdable, config Config) (*TokenBucketLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is required", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaultKeyPrefix
	}
	return &TokenBucketLimiter{client: client, config: config, now: time.Now}, nil
}

// 令牌按毫秒精度连续补充。返回 {是否允许, 剩余令牌, 重试毫秒}。
const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local window_ms = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])
local now_ms = tonumber(ARGV[5])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1]) or capacity
local last_refill = tonumber(bucket[2]) or now_ms

local elapsed = math.max(0, now_ms - last_refill)
tokens = math.min(capacity, tokens + elapsed * rate / window_ms)

local allowed = 0
local retry_ms = 0
if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
else
    retry_ms = math.ceil((requested - tokens) * window_ms / rate)
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill', now_ms)
redis.call('PEXPIRE', key, window_ms * 2)

return {allowed, math.floor(tokens), retry_ms}
`

func (tb *TokenBucketLimiter) key(key string) string {
	return tb.config.KeyPrefix + ":" + key
}

// Allow 消耗一个令牌
func (tb *TokenBucketLimiter) Allow(ctx context.Context, key string) (*LimitResult, error) {
	return tb.AllowN(ctx, key, 1)
}

// AllowN 消耗 n 个令牌
func (tb *TokenBucketLimiter) AllowN(ctx context.Context, key string, n int64) (*LimitResult, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: requested tokens must be positive, got %d", ErrInvalidConfig, n)
	}

	res, err := tb.client.Eval(ctx, tokenBucketScript,
		[]string{tb.key(key)},
		tb.config.Burst,
		tb.config.Rate,
		tb.config.Window.Milliseconds(),
		n,
		tb.now().UnixMilli(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to execute token bucket script: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return nil, fmt.Errorf("unexpected token bucket result: %v", res)
	}
	allowed, ok1 := values[0].(int64)
	remaining, ok2 := values[1].(int64)
	retryMs, ok3 := values[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("unexpected token bucket result: %v", values)
	}

	return &LimitResult{
		Allowed:    allowed == 1,
		Limit:      tb.config.Burst,
		Remaining:  remaining,
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
	}, nil
}

// Reset 清空令牌桶
func (tb *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	if err := tb.client.Del(ctx, tb.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset token bucket: %w", err)
	}
	return nil
}
