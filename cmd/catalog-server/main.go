package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/prmnaa30/vintage-marketplace/internal/api"
	"github.com/prmnaa30/vintage-marketplace/internal/cache"
	"github.com/prmnaa30/vintage-marketplace/internal/config"
	"github.com/prmnaa30/vintage-marketplace/internal/database"
	"github.com/prmnaa30/vintage-marketplace/internal/docstore"
	"github.com/prmnaa30/vintage-marketplace/internal/limiter"
	"github.com/prmnaa30/vintage-marketplace/internal/logger"
	mw "github.com/prmnaa30/vintage-marketplace/internal/middleware"
	"github.com/prmnaa30/vintage-marketplace/internal/repo"
	"github.com/prmnaa30/vintage-marketplace/internal/router"
	"github.com/prmnaa30/vintage-marketplace/internal/seed"
	"github.com/prmnaa30/vintage-marketplace/internal/service"
)

// storeBundle 文档存储及其生命周期函数
type storeBundle struct {
	store docstore.Store
	// health 检查后端连通性，内存存储为空
	health func(ctx context.Context) error
	close  func()
}

// initConfigAndLogger 初始化配置和日志器
func initConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, cfg.App.Name, cfg.App.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, lg, nil
}

// initStore 按配置连接文档存储；SQL 后端在启动时执行迁移
func initStore(ctx context.Context, cfg *config.Config, lg *zap.Logger) (*storeBundle, error) {
	var bundle *storeBundle

	switch cfg.Store.Backend {
	case config.StoreMemory:
		mem, err := loadMemoryStore(ctx, cfg, lg)
		if err != nil {
			return nil, err
		}
		bundle = &storeBundle{store: mem, close: func() {}}

	case config.StoreFirestore:
		fs, err := docstore.NewFirestoreStore(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsFile)
		if err != nil {
			return nil, err
		}
		lg.Sugar().Infow("firestore connected", "project", cfg.Firestore.ProjectID)
		bundle = &storeBundle{
			store: fs,
			close: func() {
				if err := fs.Close(); err != nil {
					lg.Sugar().Errorw("failed to close firestore client", "err", err)
				}
			},
		}

	case config.StoreMySQL:
		db, err := database.New(cfg, lg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		lg.Sugar().Infow("using migrations directory", "path", cfg.Migrations.Dir)
		if err := db.RunMigrations(cfg.Migrations.Dir); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		bundle = &storeBundle{
			store:  docstore.NewMySQLStore(db.DB),
			health: db.PingContext,
			close: func() {
				if err := db.Close(); err != nil {
					lg.Sugar().Errorw("failed to close database connection", "err", err)
				}
			},
		}

	case config.StorePostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres.URL, lg)
		if err != nil {
			return nil, err
		}
		if err := database.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		bundle = &storeBundle{
			store:  docstore.NewPostgresStore(pool),
			health: pool.Ping,
			close:  pool.Close,
		}

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	bundle.store = docstore.Instrument(bundle.store, cfg.Store.Backend)
	return bundle, nil
}

// loadMemoryStore 创建内存存储，配置了 STORE_SEED_FILE 时先导入商品
func loadMemoryStore(ctx context.Context, cfg *config.Config, lg *zap.Logger) (*docstore.MemoryStore, error) {
	mem := docstore.NewMemoryStore()
	if cfg.Store.SeedFile == "" {
		lg.Warn("using in-memory document store without STORE_SEED_FILE, catalog starts empty")
		return mem, nil
	}

	products, err := seed.ReadFile(cfg.Store.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("load seed file: %w", err)
	}
	cols := repo.Collections{
		Products:    cfg.Catalog.ProductsCollection,
		Metadata:    cfg.Catalog.MetadataCollection,
		MetadataDoc: cfg.Catalog.MetadataDocID,
	}
	meta, err := seed.Import(ctx, repo.NewCatalogWriter(mem, cols), products, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("import seed file: %w", err)
	}
	lg.Sugar().Infow("in-memory catalog seeded",
		"file", cfg.Store.SeedFile,
		"products", len(products),
		"brands", len(meta.Brands),
		"categories", len(meta.Categories),
	)
	return mem, nil
}

// initCache 初始化缓存实例；Redis 不可用时回退到内存缓存
func initCache(cfg *config.Config, lg *zap.Logger) cache.Cache {
	if !cfg.Cache.Enabled {
		lg.Sugar().Infow("cache disabled")
		return cache.NewNullCache()
	}

	switch cfg.Cache.Type {
	case "redis":
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		redisCache, err := cache.NewRedisCache(addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			lg.Sugar().Warnw("failed to connect to Redis, falling back to memory cache", "error", err)
			return cache.NewMemoryCache()
		}
		lg.Sugar().Infow("cache enabled", "type", "redis", "addr", addr, "ttl", cfg.Cache.TTL)
		return redisCache
	case "memory":
		lg.Sugar().Infow("cache enabled", "type", "memory", "ttl", cfg.Cache.TTL)
		return cache.NewMemoryCache()
	default:
		lg.Sugar().Warnw("unknown cache type, using memory cache", "type", cfg.Cache.Type)
		return cache.NewMemoryCache()
	}
}

// initLimiter 随机抽样接口的限流器，复用 Redis 缓存连接，否则单独建立连接。
// 未启用或 Redis 不可用时返回 nil（不限流）。
func initLimiter(cfg *config.Config, cacheInstance cache.Cache, lg *zap.Logger) limiter.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}

	redisCache, ok := cacheInstance.(*cache.RedisCache)
	if !ok {
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		rc, err := cache.NewRedisCache(addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			lg.Sugar().Warnw("rate limiting disabled, redis unavailable", "error", err)
			return nil
		}
		redisCache = rc
	}

	l, err := limiter.NewTokenBucketLimiter(redisCache.Client(), limiter.Config{
		Rate:   cfg.RateLimit.Rate,
		Window: cfg.RateLimit.Window,
		Burst:  cfg.RateLimit.Burst,
	})
	if err != nil {
		lg.Sugar().Warnw("rate limiting disabled, invalid config", "error", err)
		return nil
	}
	lg.Sugar().Infow("rate limiting enabled", "rate", cfg.RateLimit.Rate, "window", cfg.RateLimit.Window, "burst", cfg.RateLimit.Burst)
	return l
}

// initDependencies 初始化依赖注入链：存储 -> 仓储 -> 会话 -> 处理器
func initDependencies(cfg *config.Config, bundle *storeBundle, cacheInstance cache.Cache, lg *zap.Logger) *router.Dependencies {
	cols := repo.Collections{
		Products:    cfg.Catalog.ProductsCollection,
		Metadata:    cfg.Catalog.MetadataCollection,
		MetadataDoc: cfg.Catalog.MetadataDocID,
	}

	productRepo := repo.NewProductRepository(bundle.store, cols)
	if cfg.Cache.Enabled {
		productRepo = repo.NewCachedProductRepository(productRepo, cacheInstance, cfg.Cache.TTL)
	}

	sessions := service.NewSessionManager(func() *service.CatalogSession {
		return service.NewCatalogSession(productRepo, lg,
			service.WithPageSize(cfg.Catalog.PageSize),
			service.WithRelatedSize(cfg.Catalog.RelatedSize),
		)
	}, cfg.Session.TTL, lg)

	deps := &router.Dependencies{
		CatalogHandler: api.NewCatalogHandler(lg),
		Sessions:       sessions,
		Tokens:         service.NewSessionTokenService(cfg.Session.Secret, cfg.App.Name, cfg.Session.TTL, lg),
		ScanLimiter:    initLimiter(cfg, cacheInstance, lg),
	}
	if bundle.health != nil {
		deps.HealthCheck = func(r *http.Request) error {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			return bundle.health(ctx)
		}
	}
	return deps
}

// setupRoutes 设置路由和中间件
func setupRoutes(cfg *config.Config, deps *router.Dependencies, lg *zap.Logger) http.Handler {
	handler := router.New().Setup(cfg, deps, lg)

	// 请求进入时执行顺序为 otel → access log → CORS → timeout → recovery → request ID
	handler = mw.RequestID(handler)
	handler = mw.Recovery(lg)(handler)
	handler = mw.Timeout(cfg.App.RequestTimeout)(handler)
	handler = mw.CORS(mw.CORSConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
	})(handler)
	handler = mw.AccessLog(lg)(handler)
	handler = otelhttp.NewHandler(handler, cfg.App.Name)

	return handler
}

// startServer 启动服务器并处理优雅关闭，ctx 结束时同时停止会话清理
func startServer(ctx context.Context, cfg *config.Config, handler http.Handler, sessions *service.SessionManager, lg *zap.Logger) {
	addr := fmt.Sprintf(":%d", cfg.App.Port)
	lg.Sugar().Infow("server starting", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sessions.Run(sweepCtx, cfg.Session.SweepInterval)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Sugar().Errorw("server error", "err", err)
		}
	case <-ctx.Done():
		lg.Sugar().Infow("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Sugar().Errorw("server shutdown error", "err", err)
	}
	lg.Sugar().Infow("server exited")
}

func main() {
	cfg, lg, err := initConfigAndLogger()
	if err != nil {
		log.Fatalf("failed to initialize config and logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bundle, err := initStore(ctx, cfg, lg)
	if err != nil {
		lg.Sugar().Fatalw("failed to initialize document store", "backend", cfg.Store.Backend, "err", err)
	}
	defer bundle.close()

	cacheInstance := initCache(cfg, lg)
	defer func() {
		if err := cacheInstance.Close(); err != nil {
			lg.Sugar().Errorw("failed to close cache", "err", err)
		}
	}()

	deps := initDependencies(cfg, bundle, cacheInstance, lg)
	handler := setupRoutes(cfg, deps, lg)

	startServer(ctx, cfg, handler, deps.Sessions, lg)
}
