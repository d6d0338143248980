package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prmnaa30/vintage-marketplace/internal/api"
	"github.com/prmnaa30/vintage-marketplace/internal/config"
	"github.com/prmnaa30/vintage-marketplace/internal/docstore"
	"github.com/prmnaa30/vintage-marketplace/internal/domain"
	"github.com/prmnaa30/vintage-marketplace/internal/limiter"
	"github.com/prmnaa30/vintage-marketplace/internal/middleware"
	"github.com/prmnaa30/vintage-marketplace/internal/repo"
	"github.com/prmnaa30/vintage-marketplace/internal/service"
)

// denyAll 拒绝所有请求的限流器
type denyAll struct{}

func (denyAll) Allow(ctx context.Context, key string) (*limiter.LimitResult, error) {
	return &limiter.LimitResult{Allowed: false, Limit: 1, RetryAfter: time.Second}, nil
}

func (d denyAll) AllowN(ctx context.Context, key string, _ int64) (*limiter.LimitResult, error) {
	return d.Allow(ctx, key)
}

func (denyAll) Reset(context.Context, string) error { return nil }

func newTestRouter(t *testing.T, deps func(*Dependencies)) http.Handler {
	t.Helper()
	store := docstore.NewMemoryStore()
	w := repo.NewCatalogWriter(store, repo.DefaultCollections())
	p := &domain.Product{ID: "p1", Name: "Corduroy Jacket", Price: decimal.NewFromInt(40), Brand: "gap", Category: "jackets", CreatedAt: time.Now()}
	p.SearchKeywords = domain.BuildSearchKeywords(p)
	require.NoError(t, w.SaveProduct(context.Background(), p))

	productRepo := repo.NewProductRepository(store, repo.DefaultCollections())
	d := &Dependencies{
		CatalogHandler: api.NewCatalogHandler(zap.NewNop()),
		Sessions: service.NewSessionManager(func() *service.CatalogSession {
			return service.NewCatalogSession(productRepo, zap.NewNop())
		}, time.Minute, zap.NewNop()),
		Tokens: service.NewSessionTokenService("secret", "vintage-catalog", time.Minute, zap.NewNop()),
	}
	if deps != nil {
		deps(d)
	}

	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.App.Version = "1.2.3"
	return New().Setup(cfg, d, zap.NewNop())
}

func TestRouter_Healthz(t *testing.T) {
	h := newTestRouter(t, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
}

func TestRouter_HealthzDegraded(t *testing.T) {
	h := newTestRouter(t, func(d *Dependencies) {
		d.HealthCheck = func(*http.Request) error { return errors.New("store unreachable") }
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.NotContains(t, body, "error")
	assert.NotContains(t, rr.Body.String(), "store unreachable")
}

func TestRouter_CatalogRoutes(t *testing.T) {
	h := newTestRouter(t, nil)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/catalog/products", http.StatusOK},
		{http.MethodPost, "/api/v1/catalog/products/more", http.StatusOK},
		{http.MethodGet, "/api/v1/catalog/products/p1", http.StatusOK},
		{http.MethodGet, "/api/v1/catalog/products/zz", http.StatusNotFound},
		{http.MethodGet, "/api/v1/catalog/products/p1/related", http.StatusOK},
		{http.MethodGet, "/api/v1/catalog/random?count=1", http.StatusOK},
		{http.MethodGet, "/api/v1/catalog/metadata", http.StatusOK},
		{http.MethodGet, "/api/v1/catalog/home", http.StatusOK},
		{http.MethodGet, "/api/v1/catalog/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestRouter_SessionHeaderIssued(t *testing.T) {
	h := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products", nil))
	assert.NotEmpty(t, rr.Header().Get(middleware.HeaderSession))
}

func TestRouter_RandomIsRateLimited(t *testing.T) {
	h := newTestRouter(t, func(d *Dependencies) {
		d.ScanLimiter = denyAll{}
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/random", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// 其他接口不受影响
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/home", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
