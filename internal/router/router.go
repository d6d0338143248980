// Package router 提供 HTTP 路由设置和中间件配置功能
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prmnaa30/vintage-marketplace/internal/api"
	"github.com/prmnaa30/vintage-marketplace/internal/config"
	"github.com/prmnaa30/vintage-marketplace/internal/limiter"
	"github.com/prmnaa30/vintage-marketplace/internal/middleware"
	"github.com/prmnaa30/vintage-marketplace/internal/service"
)

// Dependencies 包含路由设置所需的所有依赖
type Dependencies struct {
	CatalogHandler *api.CatalogHandler
	Sessions       *service.SessionManager
	Tokens         service.SessionTokenService
	// ScanLimiter 为空时随机抽样接口不限流
	ScanLimiter limiter.Limiter
	// HealthCheck 返回存储等依赖的健康状态，为空时只报告进程存活
	HealthCheck func(r *http.Request) error
}

// Router 路由器接口
type Router interface {
	Setup(cfg *config.Config, deps *Dependencies, lg *zap.Logger) http.Handler
}

// GinRouter Gin路由器实现
type GinRouter struct {
	engine *gin.Engine
	deps   *Dependencies
	logger *zap.Logger
	cfg    *config.Config
}

// New 创建新的路由器实例
func New() Router {
	return &GinRouter{}
}

// Setup 设置路由。请求 ID、恢复、超时、CORS、访问日志由外层 net/http 中间件链负责。
func (r *GinRouter) Setup(cfg *config.Config, deps *Dependencies, lg *zap.Logger) http.Handler {
	if cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r.engine = gin.New()
	r.deps = deps
	r.logger = lg
	r.cfg = cfg

	r.setupRoutes()
	return r.engine
}

func (r *GinRouter) setupRoutes() {
	r.engine.GET("/healthz", r.healthCheck)

	h := r.deps.CatalogHandler
	catalog := r.engine.Group("/api/v1/catalog")
	catalog.Use(wrapMiddleware(middleware.Session(r.deps.Sessions, r.deps.Tokens, r.logger)))
	{
		catalog.GET("/products", r.wrapHandler(h.ListProducts))
		catalog.POST("/products/more", r.wrapHandler(h.LoadMore))
		catalog.GET("/products/:id", r.wrapHandler(h.GetProduct))
		catalog.GET("/products/:id/related", r.wrapHandler(h.Related))
		catalog.GET("/metadata", r.wrapHandler(h.Metadata))
		catalog.GET("/home", r.wrapHandler(h.Home))

		random := []gin.HandlerFunc{}
		if r.deps.ScanLimiter != nil {
			random = append(random, limiter.CatalogScanMiddleware(r.deps.ScanLimiter, r.logger))
		}
		random = append(random, r.wrapHandler(h.Random))
		catalog.GET("/random", random...)
	}
}

// healthCheck 健康检查处理器
func (r *GinRouter) healthCheck(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":   "ok",
		"version":  r.cfg.App.Version,
		"sessions": r.deps.Sessions.Len(),
	}
	if r.deps.HealthCheck != nil {
		if err := r.deps.HealthCheck(c.Request); err != nil {
			r.logger.Warn("health check failed", zap.Error(err))
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// wrapHandler 将标准的 http.HandlerFunc 包装为 gin.HandlerFunc
func (r *GinRouter) wrapHandler(handler func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return gin.WrapF(handler)
}

// wrapMiddleware 将 net/http 中间件适配为 gin 中间件，
// 中间件未调用下游时中止后续处理器。
func wrapMiddleware(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		called := false
		mw(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			called = true
			c.Request = req
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)
		if !called {
			c.Abort()
		}
	}
}
