// Package repo 实现数据访问层，负责商品文档与领域模型之间的转换。
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/prmnaa30/vintage-marketplace/internal/docstore"
	"github.com/prmnaa30/vintage-marketplace/internal/domain"
)

// Collections 商品目录使用的集合名称
type Collections struct {
	Products    string
	Metadata    string
	MetadataDoc string
}

// DefaultCollections 默认集合：products 与 metadata/attributes
func DefaultCollections() Collections {
	return Collections{
		Products:    "products",
		Metadata:    "metadata",
		MetadataDoc: "attributes",
	}
}

// ProductPage 一页原始查询结果（未经客户端过滤）
type ProductPage struct {
	Products []domain.Product
	// Cursor 指向本页最后一个原始文档，空页时为 nil
	Cursor *docstore.Cursor
}

// ProductRepository 定义商品目录的数据访问接口
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	Find(ctx context.Context, q docstore.Query) (*ProductPage, error)
	All(ctx context.Context) ([]domain.Product, error)
	GetMetadata(ctx context.Context) (*domain.FacetMetadata, error)
}

// productRepo 基于文档存储的实现
type productRepo struct {
	store docstore.Store
	cols  Collections
}

// NewProductRepository 创建商品仓储实例
func NewProductRepository(store docstore.Store, cols Collections) ProductRepository {
	return &productRepo{store: store, cols: cols}
}

// GetByID 根据ID获取商品，不存在时返回 domain.ErrProductNotFound
func (r *productRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	doc, err := r.store.Get(ctx, r.cols.Products, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("product %s: %w", id, domain.ErrProductNotFound)
		}
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}

	p, err := decodeProduct(*doc)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Find 执行查询；查询不含任何指令时退化为全集合读取
func (r *productRepo) Find(ctx context.Context, q docstore.Query) (*ProductPage, error) {
	if q.IsEmpty() {
		docs, err := r.store.ScanAll(ctx, r.cols.Products)
		if err != nil {
			return nil, fmt.Errorf("failed to scan products: %w", err)
		}
		products, err := decodeProducts(docs)
		if err != nil {
			return nil, err
		}
		page := &ProductPage{Products: products}
		if n := len(docs); n > 0 {
			page.Cursor = &docstore.Cursor{DocID: docs[n-1].ID}
		}
		return page, nil
	}

	page, err := r.store.Query(ctx, r.cols.Products, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	products, err := decodeProducts(page.Documents)
	if err != nil {
		return nil, err
	}
	return &ProductPage{Products: products, Cursor: page.Cursor}, nil
}

// All 读取全部商品
func (r *productRepo) All(ctx context.Context) ([]domain.Product, error) {
	docs, err := r.store.ScanAll(ctx, r.cols.Products)
	if err != nil {
		return nil, fmt.Errorf("failed to scan products: %w", err)
	}
	return decodeProducts(docs)
}

// GetMetadata 读取品牌与分类筛选项
func (r *productRepo) GetMetadata(ctx context.Context) (*domain.FacetMetadata, error) {
	doc, err := r.store.Get(ctx, r.cols.Metadata, r.cols.MetadataDoc)
	if err != nil {
		return nil, fmt.Errorf("failed to get facet metadata: %w", err)
	}

	var meta domain.FacetMetadata
	if err := doc.DataTo(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func decodeProduct(doc docstore.Document) (domain.Product, error) {
	var p domain.Product
	if err := doc.DataTo(&p); err != nil {
		return domain.Product{}, err
	}
	p.ID = doc.ID
	return p, nil
}

func decodeProducts(docs []docstore.Document) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		p, err := decodeProduct(doc)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}
