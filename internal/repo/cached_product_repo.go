// Package repo 提供带缓存的商品仓储实现
package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/prmnaa30/vintage-marketplace/internal/cache"
	"github.com/prmnaa30/vintage-marketplace/internal/docstore"
	"github.com/prmnaa30/vintage-marketplace/internal/domain"
)

const metadataCacheKey = "catalog:metadata"

// CachedProductRepository 带缓存的商品仓储
type CachedProductRepository struct {
	repo  ProductRepository
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedProductRepository 创建带缓存的商品仓储
func NewCachedProductRepository(repo ProductRepository, cache cache.Cache, ttl time.Duration) ProductRepository {
	return &CachedProductRepository{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
	}
}

// GetByID 根据ID获取商品（带缓存）
func (r *CachedProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	cacheKey := r.getProductCacheKey(id)

	var product domain.Product
	if err := r.cache.Get(ctx, cacheKey, &product); err == nil {
		return &product, nil
	}

	// 缓存未命中，从存储获取；不缓存未找到的结果
	result, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	_ = r.cache.Set(ctx, cacheKey, result, r.ttl)
	return result, nil
}

// Find 分页查询（不缓存，因为游标与参数组合太多）
func (r *CachedProductRepository) Find(ctx context.Context, q docstore.Query) (*ProductPage, error) {
	return r.repo.Find(ctx, q)
}

// All 全量读取（不缓存，随机抽样需要最新数据）
func (r *CachedProductRepository) All(ctx context.Context) ([]domain.Product, error) {
	return r.repo.All(ctx)
}

// GetMetadata 获取筛选项（带缓存）
func (r *CachedProductRepository) GetMetadata(ctx context.Context) (*domain.FacetMetadata, error) {
	var meta domain.FacetMetadata
	if err := r.cache.Get(ctx, metadataCacheKey, &meta); err == nil {
		return &meta, nil
	}

	result, err := r.repo.GetMetadata(ctx)
	if err != nil {
		return nil, err
	}

	// 不完整的筛选项不写缓存，下一个会话仍会重新读取
	if result.Complete() {
		_ = r.cache.Set(ctx, metadataCacheKey, result, r.ttl)
	}
	return result, nil
}

func (r *CachedProductRepository) getProductCacheKey(id string) string {
	return fmt.Sprintf("catalog:product:%s", id)
}
