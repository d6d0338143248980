package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prmnaa30/vintage-marketplace/internal/docstore"
	"github.com/prmnaa30/vintage-marketplace/internal/domain"
)

var errBackendDown = fmt.Errorf("dial backend: %w", docstore.ErrUnavailable)

func TestCatalogSession_PaginatesUntilExhausted(t *testing.T) {
	spy, _ := newSpyRepo(t, numbered("p", 20, "nike", "tops")...)
	s := newTestSession(spy)
	ctx := context.Background()

	require.NoError(t, s.FetchProducts(ctx, domain.FilterRequest{}, false))
	assert.Len(t, s.Products(), 18)
	assert.True(t, s.HasMore())
	// 按 createdAt 倒序
	assert.Equal(t, "p19", s.Products()[0].ID)

	require.NoError(t, s.LoadMore(ctx))
	products := s.Products()
	assert.Len(t, products, 20)
	assert.False(t, s.HasMore())
	assert.Equal(t, "p00", products[19].ID)

	// 已无更多数据：不再发起查询
	before := spy.findCount()
	require.NoError(t, s.LoadMore(ctx))
	assert.Equal(t, before, spy.findCount())
	assert.Len(t, s.Products(), 20)
	assert.False(t, s.IsLoading())
	assert.NoError(t, s.Err())
}

func TestCatalogSession_ExactMultipleNeedsOneEmptyPage(t *testing.T) {
	spy, _ := newSpyRepo(t, numbered("p", 18, "nike", "tops")...)
	s := newTestSession(spy)
	ctx := context.Background()

	require.NoError(t, s.FetchProducts(ctx, domain.FilterRequest{}, false))
	assert.True(t, s.HasMore())

	require.NoError(t, s.LoadMore(ctx))
	assert.False(t, s.HasMore())
	assert.Len(t, s.Products(), 18)

	// 空页不移动游标
	last := spy.queries[len(spy.queries)-1]
	require.NotNil(t, last.StartAfter)
	assert.Equal(t, "p00", last.StartAfter.DocID)
}

func TestCatalogSession_SearchWithCategoriesFiltersPerPage(t *testing.T) {
	var fixtures []fixture
	for i := 0; i < 20; i++ {
		category := "pants"
		if i < 5 {
			category = "jackets"
		}
		fixtures = append(fixtures, fixture{
			id:       fmt.Sprintf("d%02d", i),
			name:     fmt.Sprintf("Denim Piece %d", i),
			brand:    "levi",
			category: category,
			minute:   i,
		})
	}
	fixtures = append(fixtures, fixture{id: "x00", name: "Wool Coat", brand: "levi", category: "jackets"})

	spy, _ := newSpyRepo(t, fixtures...)
	s := newTestSession(spy)
	ctx := context.Background()
	req := domain.FilterRequest{Search: "Denim", Categories: []string{"jackets"}}

	require.NoError(t, s.FetchProducts(ctx, req, false))
	assert.Equal(t, []string{"d00", "d01", "d02", "d03", "d04"}, productIDs(s.Products()))
	// 原始页满 18 条，仍有下一页
	assert.True(t, s.HasMore())

	require.NoError(t, s.LoadMore(ctx))
	assert.Len(t, s.Products(), 5)
	assert.False(t, s.HasMore())

	// 游标来自原始页最后一条，而不是过滤后的最后一条
	second := spy.queries[1]
	require.NotNil(t, second.StartAfter)
	assert.Equal(t, "d17", second.StartAfter.DocID)
	assert.False(t, hasOp(second, domain.FieldCategory, docstore.OpIn))
}

func TestCatalogSession_CategoriesUseInPredicate(t *testing.T) {
	fixtures := append(numbered("t", 3, "nike", "tops"), numbered("s", 2, "nike", "shoes")...)
	fixtures = append(fixtures, numbered("h", 2, "nike", "hats")...)
	spy, _ := newSpyRepo(t, fixtures...)
	s := newTestSession(spy)

	require.NoError(t, s.FetchProducts(context.Background(), domain.FilterRequest{Categories: []string{"tops", "hats"}}, false))
	for _, p := range s.Products() {
		assert.Contains(t, []string{"tops", "hats"}, p.Category)
	}
	assert.Len(t, s.Products(), 5)
	assert.False(t, s.HasMore())
}

func TestCatalogSession_FreshFetchResetsState(t *testing.T) {
	fixtures := append(numbered("n", 20, "nike", "tops"), numbered("a", 2, "adidas", "tops")...)
	spy, _ := newSpyRepo(t, fixtures...)
	s := newTestSession(spy)
	ctx := context.Background()

	require.NoError(t, s.FetchProducts(ctx, domain.FilterRequest{}, false))
	require.NoError(t, s.LoadMore(ctx))
	assert.False(t, s.HasMore())

	require.NoError(t, s.FetchProducts(ctx, domain.FilterRequest{Brand: "adidas"}, false))
	assert.Len(t, s.Products(), 2)
	assert.Nil(t, spy.queries[len(spy.queries)-1].StartAfter)
	assert.Equal(t, "adidas", s.LastRequest().Brand)
}

func TestCatalogSession_FreshFetchError(t *testing.T) {
	spy, _ := newSpyRepo(t, numbered("p", 3, "nike", "tops")...)
	s := newTestSession(spy)
	ctx := context.Background()

	spy.setFindErr(errBackendDown)
	err := s.FetchProducts(ctx, domain.FilterRequest{}, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, docstore.ErrUnavailable))
	assert.True(t, errors.Is(s.Err(), docstore.ErrUnavailable))
	assert.Empty(t, s.Products())
	assert.False(t, s.IsLoading())

	// 下一次成功的操作清除错误
	spy.setFindErr(nil)
	require.NoError(t, s.FetchProducts(ctx, domain.FilterRequest{}, false))
	assert.NoError(t, s.Err())
	assert.Len(t, s.Products(), 3)
}

func TestCatalogSession_LoadMoreErrorKeepsResults(t *testing.T) {
	spy, _ := newSpyRepo(t, numbered("p", 20, "nike", "tops")...)
	s := newTestSession(spy)
	ctx := context.Background()

	require.NoError(t, s.FetchProducts(ctx, domain.FilterRequest{}, false))

	spy.setFindErr(errBackendDown)
	assert.ErrorIs(t, s.LoadMore(ctx), docstore.ErrUnavailable)
	assert.True(t, errors.Is(s.Err(), docstore.ErrUnavailable))
	assert.Len(t, s.Products(), 18)

	// 通过 FetchProducts 加载更多时错误只记录不返回
	require.NoError(t, s.FetchProducts(ctx, s.LastRequest(), true))
	assert.True(t, errors.Is(s.Err(), docstore.ErrUnavailable))
	assert.Len(t, s.Products(), 18)
	assert.True(t, s.HasMore())

	// 游标未前进，重试得到剩余两条且没有重复
	spy.setFindErr(nil)
	require.NoError(t, s.LoadMore(ctx))
	assert.Len(t, s.Products(), 20)
	seen := map[string]bool{}
	for _, id := range productIDs(s.Products()) {
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
}

func TestCatalogSession_SkippedLoadMoreReportsNoError(t *testing.T) {
	spy, _ := newSpyRepo(t, numbered("p", 3, "nike", "tops")...)
	s := newTestSession(spy)
	ctx := context.Background()

	require.NoError(t, s.FetchProducts(ctx, domain.FilterRequest{}, false))
	require.False(t, s.HasMore())

	_, err := s.FetchProductByID(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	// 已无更多数据，本次调用被跳过，返回值不反映之前的失败
	assert.NoError(t, s.LoadMore(ctx))
	assert.Equal(t, 1, spy.findCount())
	assert.Len(t, s.Products(), 3)
}

func TestCatalogSession_LoadMoreWhileInFlightIsNoop(t *testing.T) {
	spy, _ := newSpyRepo(t, numbered("p", 20, "nike", "tops")...)
	s := newTestSession(spy)
	ctx := context.Background()

	spy.gate = make(chan struct{})
	spy.started = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		done <- s.FetchProducts(ctx, domain.FilterRequest{}, false)
	}()
	<-spy.started

	assert.True(t, s.IsLoading())
	require.NoError(t, s.LoadMore(ctx))
	assert.Equal(t, 1, spy.findCount())

	close(spy.gate)
	require.NoError(t, <-done)
	assert.Len(t, s.Products(), 18)
	assert.False(t, s.IsLoading())
}

func TestCatalogSession_ProductsReturnsCopy(t *testing.T) {
	spy, _ := newSpyRepo(t, numbered("p", 2, "nike", "tops")...)
	s := newTestSession(spy)
	require.NoError(t, s.FetchProducts(context.Background(), domain.FilterRequest{}, false))

	got := s.Products()
	got[0].Name = "changed"
	assert.NotEqual(t, "changed", s.Products()[0].Name)
}

func TestCatalogSession_WithPageSize(t *testing.T) {
	spy, _ := newSpyRepo(t, numbered("p", 5, "nike", "tops")...)
	s := newTestSession(spy, WithPageSize(2))
	ctx := context.Background()

	require.NoError(t, s.FetchProducts(ctx, domain.FilterRequest{}, false))
	for s.HasMore() {
		require.NoError(t, s.LoadMore(ctx))
	}
	assert.Len(t, s.Products(), 5)
	// 2 + 2 + 1
	assert.Equal(t, 3, spy.findCount())
}

func TestCatalogSession_FetchProductByID(t *testing.T) {
	spy, _ := newSpyRepo(t, numbered("p", 2, "nike", "tops")...)
	s := newTestSession(spy)
	ctx := context.Background()

	p, err := s.FetchProductByID(ctx, "p01")
	require.NoError(t, err)
	assert.Equal(t, "p01", p.ID)
	require.NotNil(t, s.CurrentProduct())
	assert.Equal(t, "p01", s.CurrentProduct().ID)

	_, err = s.FetchProductByID(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrProductNotFound))
	assert.True(t, errors.Is(s.Err(), domain.ErrProductNotFound))
	// 失败不覆盖当前商品
	assert.Equal(t, "p01", s.CurrentProduct().ID)
}

func TestCatalogSession_FetchHomeData(t *testing.T) {
	fixtures := []fixture{
		{id: "a", likes: 1, minute: 6},
		{id: "b", likes: 9, minute: 5},
		{id: "c", likes: 4, minute: 4},
		{id: "d", likes: 7, minute: 3},
		{id: "e", likes: 2, minute: 2},
		{id: "f", likes: 8, minute: 1},
		{id: "g", likes: 0, minute: 0},
	}
	spy, _ := newSpyRepo(t, fixtures...)
	s := newTestSession(spy)

	home, err := s.FetchHomeData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "f", "d", "c", "e"}, productIDs(home.Popular))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, productIDs(home.Newest))
	assert.Equal(t, productIDs(home.Popular), productIDs(s.Home().Popular))

	spy.setFindErr(errBackendDown)
	_, err = s.FetchHomeData(context.Background())
	assert.True(t, errors.Is(err, docstore.ErrUnavailable))
	// 失败保留上一次的数据
	assert.Len(t, s.Home().Newest, 5)
}
