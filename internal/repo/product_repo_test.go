package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prmnaa30/vintage-marketplace/internal/docstore"
	"github.com/prmnaa30/vintage-marketplace/internal/domain"
)

var baseTime = time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

func newSeededRepo(t *testing.T, n int) (ProductRepository, *docstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore()
	w := NewCatalogWriter(store, DefaultCollections())
	ctx := context.Background()

	for i := 0; i < n; i++ {
		p := &domain.Product{
			ID:          fmt.Sprintf("p%02d", i),
			Name:        fmt.Sprintf("Vintage Tee %d", i),
			Price:       decimal.RequireFromString("19.99"),
			ShippingFee: decimal.NewFromInt(2),
			Stock:       1,
			Brand:       "nike",
			Category:    "tops",
			CreatedAt:   baseTime.Add(time.Duration(i) * time.Minute),
		}
		p.SearchKeywords = domain.BuildSearchKeywords(p)
		require.NoError(t, w.SaveProduct(ctx, p))
	}
	return NewProductRepository(store, DefaultCollections()), store
}

func TestProductRepo_GetByID(t *testing.T) {
	r, _ := newSeededRepo(t, 2)
	ctx := context.Background()

	p, err := r.GetByID(ctx, "p01")
	require.NoError(t, err)
	assert.Equal(t, "p01", p.ID)
	assert.Equal(t, "Vintage Tee 1", p.Name)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("19.99")))
	assert.True(t, p.CreatedAt.Equal(baseTime.Add(time.Minute)))
	assert.Contains(t, p.SearchKeywords, "tee")

	_, err = r.GetByID(ctx, "nope")
	assert.True(t, errors.Is(err, domain.ErrProductNotFound))
}

func TestProductRepo_FindPaged(t *testing.T) {
	r, _ := newSeededRepo(t, 5)
	ctx := context.Background()

	q := docstore.Query{
		OrderBy: []docstore.Order{{Field: domain.FieldCreatedAt, Direction: docstore.Desc}},
		Limit:   3,
	}
	page, err := r.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, page.Products, 3)
	assert.Equal(t, "p04", page.Products[0].ID)
	require.NotNil(t, page.Cursor)
	assert.Equal(t, "p02", page.Cursor.DocID)
}

func TestProductRepo_FindEmptyQueryScans(t *testing.T) {
	r, _ := newSeededRepo(t, 4)

	page, err := r.Find(context.Background(), docstore.Query{})
	require.NoError(t, err)
	assert.Len(t, page.Products, 4)
}

func TestProductRepo_Metadata(t *testing.T) {
	r, store := newSeededRepo(t, 0)
	ctx := context.Background()

	_, err := r.GetMetadata(ctx)
	assert.True(t, errors.Is(err, docstore.ErrNotFound))

	w := NewCatalogWriter(store, DefaultCollections())
	require.NoError(t, w.SaveMetadata(ctx, domain.FacetMetadata{
		Brands:     []string{"levis", "nike"},
		Categories: []string{"tops"},
	}))

	meta, err := r.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"levis", "nike"}, meta.Brands)
	assert.Equal(t, []string{"tops"}, meta.Categories)
}

func TestCatalogWriter_RejectsInvalidProduct(t *testing.T) {
	w := NewCatalogWriter(docstore.NewMemoryStore(), DefaultCollections())

	err := w.SaveProduct(context.Background(), &domain.Product{ID: "x", Name: "bad", Stock: -1})
	assert.True(t, errors.Is(err, domain.ErrInvalidProduct))
}
