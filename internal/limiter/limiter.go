// Package limiter 提供基于 Redis 的令牌桶限流及其 gin 中间件。
package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig 限流配置不合法
var ErrInvalidConfig = errors.New("invalid limiter config")

// LimitResult 限流结果
type LimitResult struct {
	Allowed    bool          `json:"allowed"`     // 是否允许通过
	Limit      int64         `json:"limit"`       // 桶容量
	Remaining  int64         `json:"remaining"`   // 剩余令牌
	RetryAfter time.Duration `json:"retry_after"` // 建议重试时间
}

// Limiter 限流器接口
type Limiter interface {
	Allow(ctx context.Context, key string) (*LimitResult, error)
	AllowN(ctx context.Context, key string, n int64) (*LimitResult, error)
	Reset(ctx context.Context, key string) error
}

// Config 令牌桶配置：每个 Window 补充 Rate 个令牌，桶容量为 Burst
type Config struct {
	Rate      int64         `json:"rate"`
	Window    time.Duration `json:"window"`
	Burst     int64         `json:"burst"`
	KeyPrefix string        `json:"key_prefix"`
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.Rate <= 0 {
		return fmt.Errorf("%w: rate must be positive, got %d", ErrInvalidConfig, c.Rate)
	}
	if c.Window < time.Millisecond {
		return fmt.Errorf("%w: window must be at least 1ms, got %s", ErrInvalidConfig, c.Window)
	}
	if c.Burst <= 0 {
		return fmt.Errorf("%w: burst must be positive, got %d", ErrInvalidConfig, c.Burst)
	}
	return nil
}
