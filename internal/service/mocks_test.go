package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prmnaa30/vintage-marketplace/internal/docstore"
	"github.com/prmnaa30/vintage-marketplace/internal/domain"
	"github.com/prmnaa30/vintage-marketplace/internal/repo"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// spyRepo 包装真实仓储：记录查询、注入错误、可在 Find 中阻塞
type spyRepo struct {
	repo.ProductRepository

	mu      sync.Mutex
	queries []docstore.Query
	finds   int
	alls    int
	metas   int
	gets    int

	findErr error
	allErr  error
	metaErr error

	// gate 非空时 Find 在 started 上发信号后等待 gate 关闭
	gate    chan struct{}
	started chan struct{}
}

func (s *spyRepo) Find(ctx context.Context, q docstore.Query) (*repo.ProductPage, error) {
	s.mu.Lock()
	s.finds++
	s.queries = append(s.queries, q)
	err := s.findErr
	gate, started := s.gate, s.started
	s.mu.Unlock()

	if gate != nil {
		started <- struct{}{}
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return s.ProductRepository.Find(ctx, q)
}

func (s *spyRepo) All(ctx context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	s.alls++
	err := s.allErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.ProductRepository.All(ctx)
}

func (s *spyRepo) GetMetadata(ctx context.Context) (*domain.FacetMetadata, error) {
	s.mu.Lock()
	s.metas++
	err := s.metaErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.ProductRepository.GetMetadata(ctx)
}

func (s *spyRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.ProductRepository.GetByID(ctx, id)
}

func (s *spyRepo) setFindErr(err error) {
	s.mu.Lock()
	s.findErr = err
	s.mu.Unlock()
}

func (s *spyRepo) findCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finds
}

// fixture 构造商品的简写
type fixture struct {
	id       string
	name     string
	brand    string
	category string
	likes    int
	minute   int
}

func newSpyRepo(t *testing.T, fixtures ...fixture) (*spyRepo, *docstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore()
	w := repo.NewCatalogWriter(store, repo.DefaultCollections())
	ctx := context.Background()

	for _, f := range fixtures {
		name := f.name
		if name == "" {
			name = "Vintage Item " + f.id
		}
		p := &domain.Product{
			ID:          f.id,
			Name:        name,
			Price:       decimal.RequireFromString("25.50"),
			ShippingFee: decimal.NewFromInt(3),
			Stock:       1,
			Brand:       f.brand,
			Category:    f.category,
			LikesCount:  f.likes,
			CreatedAt:   baseTime.Add(time.Duration(f.minute) * time.Minute),
		}
		p.SearchKeywords = domain.BuildSearchKeywords(p)
		require.NoError(t, w.SaveProduct(ctx, p))
	}
	return &spyRepo{ProductRepository: repo.NewProductRepository(store, repo.DefaultCollections())}, store
}

// numbered 生成 n 个同品牌同分类的商品，ID 为 prefix00 起
func numbered(prefix string, n int, brand, category string) []fixture {
	out := make([]fixture, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fixture{
			id:       fmt.Sprintf("%s%02d", prefix, i),
			brand:    brand,
			category: category,
			minute:   i,
		})
	}
	return out
}

func newTestSession(r repo.ProductRepository, opts ...SessionOption) *CatalogSession {
	return NewCatalogSession(r, zap.NewNop(), opts...)
}

func productIDs(products []domain.Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}
