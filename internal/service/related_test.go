package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prmnaa30/vintage-marketplace/internal/docstore"
	"github.com/prmnaa30/vintage-marketplace/internal/domain"
)

func relatedFixtures() []fixture {
	return []fixture{
		{id: "t0", brand: "levi", category: "tops", minute: 0},
		{id: "t1", brand: "levi", category: "tops", minute: 1},
		{id: "t2", brand: "levi", category: "tops", minute: 2},
		{id: "t3", brand: "levi", category: "tops", minute: 3},
		{id: "t4", brand: "levi", category: "tops", minute: 4},
		{id: "t5", brand: "nike", category: "tops", minute: 5},
		{id: "n0", brand: "nike", category: "shoes", minute: 10},
		{id: "n1", brand: "nike", category: "shoes", minute: 11},
		{id: "n2", brand: "nike", category: "shoes", minute: 12},
		{id: "o0", brand: "gap", category: "hats", minute: 20},
		{id: "o1", brand: "gap", category: "hats", minute: 21},
		{id: "o2", brand: "gap", category: "hats", minute: 22},
		{id: "o3", brand: "gap", category: "hats", minute: 23},
	}
}

func TestCatalogSession_FetchRelatedTiers(t *testing.T) {
	spy, _ := newSpyRepo(t, relatedFixtures()...)
	s := newTestSession(spy)

	related, err := s.FetchRelated(context.Background(), "t5", "nike", "tops")
	require.NoError(t, err)

	// 同分类 4 件 -> 同品牌补 3 件 -> 最新商品补 1 件
	assert.Equal(t, []string{"t4", "t3", "t2", "t1", "n2", "n1", "n0", "o3"}, productIDs(related))
	assert.Equal(t, productIDs(related), productIDs(s.Related()))
	assert.Equal(t, 3, spy.findCount())
}

func TestCatalogSession_FetchRelatedInvariants(t *testing.T) {
	tests := []struct {
		name     string
		anchor   string
		brand    string
		category string
	}{
		{name: "category and brand", anchor: "t5", brand: "nike", category: "tops"},
		{name: "brand only", anchor: "n1", brand: "nike"},
		{name: "category only", anchor: "o0", category: "hats"},
		{name: "neither", anchor: "o3"},
		{name: "unknown anchor", anchor: "zz", brand: "gap", category: "tops"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy, _ := newSpyRepo(t, relatedFixtures()...)
			s := newTestSession(spy)

			related, err := s.FetchRelated(context.Background(), tt.anchor, tt.brand, tt.category)
			require.NoError(t, err)

			assert.LessOrEqual(t, len(related), DefaultRelatedSize)
			// 商品总数足够时总能填满
			assert.Len(t, related, DefaultRelatedSize)

			seen := map[string]bool{}
			for _, p := range related {
				assert.NotEqual(t, tt.anchor, p.ID)
				assert.False(t, seen[p.ID], "duplicate %s", p.ID)
				seen[p.ID] = true
			}
		})
	}
}

func TestCatalogSession_FetchRelatedCategoryCap(t *testing.T) {
	spy, _ := newSpyRepo(t, relatedFixtures()...)
	s := newTestSession(spy)

	related, err := s.FetchRelated(context.Background(), "t0", "", "tops")
	require.NoError(t, err)

	tops := 0
	for _, p := range related {
		if p.Category == "tops" {
			tops++
		}
	}
	// 同分类最多 4 件，其余来自全站最新商品
	assert.Equal(t, 4, tops)
	assert.Equal(t, []string{"t5", "t4", "t3", "t2", "o3", "o2", "o1", "o0"}, productIDs(related))
}

func TestCatalogSession_FetchRelatedSmallCatalog(t *testing.T) {
	spy, _ := newSpyRepo(t,
		fixture{id: "a", brand: "nike", category: "tops", minute: 1},
		fixture{id: "b", brand: "nike", category: "tops", minute: 2},
		fixture{id: "c", brand: "gap", category: "hats", minute: 3},
	)
	s := newTestSession(spy)

	related, err := s.FetchRelated(context.Background(), "a", "nike", "tops")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, productIDs(related))
}

func TestCatalogSession_FetchRelatedErrorKeepsSlate(t *testing.T) {
	spy, _ := newSpyRepo(t, relatedFixtures()...)
	s := newTestSession(spy)
	ctx := context.Background()

	_, err := s.FetchRelated(ctx, "t5", "nike", "tops")
	require.NoError(t, err)
	before := productIDs(s.Related())

	spy.setFindErr(errBackendDown)
	_, err = s.FetchRelated(ctx, "n0", "nike", "shoes")
	assert.True(t, errors.Is(err, docstore.ErrUnavailable))
	assert.True(t, errors.Is(s.Err(), docstore.ErrUnavailable))
	assert.Equal(t, before, productIDs(s.Related()))
}

func TestCatalogSession_FetchRelatedQueriesAreSupported(t *testing.T) {
	spy, _ := newSpyRepo(t, relatedFixtures()...)
	s := newTestSession(spy)

	_, err := s.FetchRelated(context.Background(), "t5", "nike", "tops")
	require.NoError(t, err)
	for _, q := range spy.queries {
		assert.NoError(t, q.Validate())
		assert.Equal(t, []docstore.Order{{Field: domain.FieldCreatedAt, Direction: docstore.Desc}}, q.OrderBy)
	}
}
