package limiter

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prmnaa30/vintage-marketplace/internal/middleware"
	"github.com/prmnaa30/vintage-marketplace/internal/resp"
)

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	Limiter Limiter
	Logger  *zap.Logger

	// KeyGenerator 生成限流 key，默认按客户端 IP
	KeyGenerator func(*gin.Context) string

	// Timeout 单次限流检查的超时
	Timeout time.Duration

	Headers *HeaderConfig
}

// HeaderConfig 响应头配置
type HeaderConfig struct {
	Enable           bool
	LimitHeader      string
	RemainingHeader  string
	RetryAfterHeader string
}

// DefaultHeaderConfig 默认头配置
func DefaultHeaderConfig() *HeaderConfig {
	return &HeaderConfig{
		Enable:           true,
		LimitHeader:      "X-RateLimit-Limit",
		RemainingHeader:  "X-RateLimit-Remaining",
		RetryAfterHeader: "Retry-After",
	}
}

// IPKeyGenerator 按客户端 IP 生成 key
func IPKeyGenerator(c *gin.Context) string {
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// RateLimitMiddleware 创建限流中间件。
// 限流器本身出错时放行请求并记录告警，超出配额时返回 429。
func RateLimitMiddleware(config MiddlewareConfig) gin.HandlerFunc {
	if config.KeyGenerator == nil {
		config.KeyGenerator = IPKeyGenerator
	}
	if config.Headers == nil {
		config.Headers = DefaultHeaderConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		key := config.KeyGenerator(c)
		reqID := middleware.RequestIDFromContext(c.Request.Context())

		ctx, cancel := context.WithTimeout(c.Request.Context(), config.Timeout)
		result, err := config.Limiter.Allow(ctx, key)
		cancel()
		if err != nil {
			config.Logger.Warn("rate limiter unavailable, allowing request",
				zap.String("key", key),
				zap.String("request_id", reqID),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if config.Headers.Enable {
			setRateLimitHeaders(c, result, config.Headers)
		}

		if !result.Allowed {
			config.Logger.Info("rate limit reached",
				zap.String("key", key),
				zap.String("request_id", reqID),
				zap.Duration("retry_after", result.RetryAfter),
			)
			resp.Error(c.Writer, http.StatusTooManyRequests, resp.CodeTooManyRequests,
				"too many requests, please retry later", reqID, middleware.TraceIDFromContext(c.Request.Context()))
			c.Abort()
			return
		}

		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, result *LimitResult, headers *HeaderConfig) {
	if headers.LimitHeader != "" {
		c.Header(headers.LimitHeader, strconv.FormatInt(result.Limit, 10))
	}
	if headers.RemainingHeader != "" {
		c.Header(headers.RemainingHeader, strconv.FormatInt(result.Remaining, 10))
	}
	if headers.RetryAfterHeader != "" && result.RetryAfter > 0 {
		secs := int64(math.Ceil(result.RetryAfter.Seconds()))
		c.Header(headers.RetryAfterHeader, strconv.FormatInt(secs, 10))
	}
}

// CatalogScanMiddleware 全量扫描类接口（随机抽样）的限流，按客户端 IP 计数
func CatalogScanMiddleware(limiter Limiter, logger *zap.Logger) gin.HandlerFunc {
	return RateLimitMiddleware(MiddlewareConfig{
		Limiter: limiter,
		Logger:  logger,
		KeyGenerator: func(c *gin.Context) string {
			return fmt.Sprintf("catalog:scan:ip:%s", c.ClientIP())
		},
		Headers: DefaultHeaderConfig(),
	})
}
