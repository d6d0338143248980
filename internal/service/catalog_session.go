// Package service 实现商品目录的查询与分页引擎。
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"github.com/prmnaa30/vintage-marketplace/internal/docstore"
	"github.com/prmnaa30/vintage-marketplace/internal/domain"
	"github.com/prmnaa30/vintage-marketplace/internal/repo"
)

// 默认参数
const (
	DefaultPageSize    = 18
	DefaultRelatedSize = 8
	relatedCategoryCap = 4
	homeSectionSize    = 5
)

// SessionOption 会话可选参数
type SessionOption func(*CatalogSession)

// WithPageSize 设置分页大小
func WithPageSize(n int) SessionOption {
	return func(s *CatalogSession) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithRelatedSize 设置相关商品数量上限
func WithRelatedSize(n int) SessionOption {
	return func(s *CatalogSession) {
		if n > 0 {
			s.relatedSize = n
		}
	}
}

// WithRandom 替换随机数源，intn 需返回 [0, n) 内的整数
func WithRandom(intn func(n int) int) SessionOption {
	return func(s *CatalogSession) {
		if intn != nil {
			s.intn = intn
		}
	}
}

// CatalogSession 一个浏览会话的目录状态：结果集、分页游标、加载与错误状态等。
// 所有状态由 mu 保护；存储调用期间不持锁，完成后按完成顺序写回（后完成者覆盖）。
type CatalogSession struct {
	repo        repo.ProductRepository
	logger      *zap.Logger
	pageSize    int
	relatedSize int
	intn        func(n int) int

	mu           sync.Mutex
	products     []domain.Product
	cursor       *docstore.Cursor
	hasMore      bool
	listInFlight int
	inFlight     int
	err          error
	lastRequest  domain.FilterRequest
	related      []domain.Product
	random       []domain.Product
	current      *domain.Product
	metadata     domain.FacetMetadata
	home         domain.HomeData
}

// NewCatalogSession 创建会话
func NewCatalogSession(productRepo repo.ProductRepository, logger *zap.Logger, opts ...SessionOption) *CatalogSession {
	s := &CatalogSession{
		repo:        productRepo,
		logger:      logger,
		pageSize:    DefaultPageSize,
		relatedSize: DefaultRelatedSize,
		intn:        rand.IntN,
		hasMore:     true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchProducts 按筛选请求获取一页商品。
//
// isLoadMore 为 false 时清空结果集与游标后获取第一页，失败时返回错误；
// 为 true 时在已无更多数据或已有列表请求进行中时直接返回，
// 否则从游标之后获取下一页并追加，失败只记录到 Err() 而不清空已有结果。
func (s *CatalogSession) FetchProducts(ctx context.Context, req domain.FilterRequest, isLoadMore bool) error {
	err := s.fetchPage(ctx, req, isLoadMore)
	if isLoadMore {
		return nil
	}
	return err
}

// fetchPage 执行一次列表请求，返回本次调用自身的失败（已记录到 Err()）；
// 加载更多被跳过时返回 nil。
func (s *CatalogSession) fetchPage(ctx context.Context, req domain.FilterRequest, isLoadMore bool) error {
	req = req.Clone()

	s.mu.Lock()
	if isLoadMore && (!s.hasMore || s.listInFlight > 0) {
		s.mu.Unlock()
		return nil
	}
	if !isLoadMore {
		s.products = nil
		s.cursor = nil
		s.hasMore = true
	}
	s.lastRequest = req
	s.listInFlight++
	s.inFlight++
	s.err = nil
	qc := BuildQueryConstraints(req, isLoadMore, s.cursor, s.pageSize)
	s.mu.Unlock()

	page, err := s.repo.Find(ctx, qc.Query)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.listInFlight--
	s.inFlight--

	if err != nil {
		s.err = err
		s.logger.Warn("fetch products failed",
			zap.Bool("load_more", isLoadMore),
			zap.Error(err),
		)
		return fmt.Errorf("fetch products: %w", err)
	}

	results := page.Products
	if qc.NeedsClientCategoryFilter {
		results = FilterByCategories(results, qc.Categories)
	}

	// 游标与“是否还有更多”只看原始页，与客户端过滤后的数量无关
	if page.Cursor != nil {
		s.cursor = page.Cursor
	}
	if len(page.Products) < s.pageSize {
		s.hasMore = false
	}

	if isLoadMore {
		s.products = append(s.products, results...)
	} else {
		s.products = results
	}

	s.logger.Debug("products fetched",
		zap.Bool("load_more", isLoadMore),
		zap.Int("raw", len(page.Products)),
		zap.Int("kept", len(results)),
		zap.Bool("has_more", s.hasMore),
	)
	return nil
}

// LoadMore 使用最近一次的筛选请求获取下一页。
// 返回值只反映本次调用：跳过时为 nil，失败时为本次的错误（同时记录到 Err()，已有结果保留）。
// 调用方应将其视为非致命错误。
func (s *CatalogSession) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	req := s.lastRequest
	s.mu.Unlock()
	return s.fetchPage(ctx, req, true)
}

// FetchProductByID 获取单个商品并设为当前商品
func (s *CatalogSession) FetchProductByID(ctx context.Context, id string) (*domain.Product, error) {
	s.begin()
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.fail(err, "fetch product failed", zap.String("product_id", id))
		return nil, fmt.Errorf("fetch product %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	cp := *p
	s.current = &cp
	return p, nil
}

// FetchHomeData 并发获取最受欢迎与最新上架的各 5 件商品
func (s *CatalogSession) FetchHomeData(ctx context.Context) (*domain.HomeData, error) {
	s.begin()
	home, err := fetchHome(ctx, s.repo)
	if err != nil {
		s.fail(err, "fetch home data failed")
		return nil, fmt.Errorf("fetch home data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	s.home = *home
	return home, nil
}

// begin 标记一个非列表请求开始
func (s *CatalogSession) begin() {
	s.mu.Lock()
	s.inFlight++
	s.err = nil
	s.mu.Unlock()
}

// fail 记录错误并结束请求
func (s *CatalogSession) fail(err error, msg string, fields ...zap.Field) {
	s.mu.Lock()
	s.inFlight--
	s.err = err
	s.mu.Unlock()

	level := s.logger.Warn
	if errors.Is(err, domain.ErrProductNotFound) {
		level = s.logger.Info
	}
	level(msg, append(fields, zap.Error(err))...)
}

// Products 当前结果集的副本
func (s *CatalogSession) Products() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Product(nil), s.products...)
}

// HasMore 是否还有下一页
func (s *CatalogSession) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// IsLoading 是否有任意存储请求进行中
func (s *CatalogSession) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight > 0
}

// Err 最近一次操作记录的错误
func (s *CatalogSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// LastRequest 最近一次列表请求
func (s *CatalogSession) LastRequest() domain.FilterRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRequest.Clone()
}

// Related 最近一次组装的相关商品
func (s *CatalogSession) Related() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Product(nil), s.related...)
}

// RandomProducts 最近一次随机抽样结果
func (s *CatalogSession) RandomProducts() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Product(nil), s.random...)
}

// CurrentProduct 最近一次获取的单个商品
func (s *CatalogSession) CurrentProduct() *domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// Home 最近一次获取的首页数据
func (s *CatalogSession) Home() domain.HomeData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.HomeData{
		Popular: append([]domain.Product(nil), s.home.Popular...),
		Newest:  append([]domain.Product(nil), s.home.Newest...),
	}
}

// Brands 已加载的品牌列表
func (s *CatalogSession) Brands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.metadata.Brands...)
}

// Categories 已加载的分类列表
func (s *CatalogSession) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.metadata.Categories...)
}
