package repo

import (
	"context"
	"fmt"

	"github.com/prmnaa30/vintage-marketplace/internal/docstore"
	"github.com/prmnaa30/vintage-marketplace/internal/domain"
)

// CatalogWriter 将商品与筛选项写入文档存储，供数据导入使用
type CatalogWriter struct {
	w    docstore.Writer
	cols Collections
}

// NewCatalogWriter 创建写入器
func NewCatalogWriter(w docstore.Writer, cols Collections) *CatalogWriter {
	return &CatalogWriter{w: w, cols: cols}
}

// SaveProduct 校验并写入商品
func (c *CatalogWriter) SaveProduct(ctx context.Context, p *domain.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := c.w.Put(ctx, c.cols.Products, p.ID, ProductFields(p)); err != nil {
		return fmt.Errorf("failed to save product %s: %w", p.ID, err)
	}
	return nil
}

// SaveMetadata 写入筛选项文档
func (c *CatalogWriter) SaveMetadata(ctx context.Context, meta domain.FacetMetadata) error {
	fields := map[string]any{
		"brands":     meta.Brands,
		"categories": meta.Categories,
	}
	if err := c.w.Put(ctx, c.cols.Metadata, c.cols.MetadataDoc, fields); err != nil {
		return fmt.Errorf("failed to save facet metadata: %w", err)
	}
	return nil
}

// ProductFields 将商品转换为文档字段；
// 金额以数值存储，createdAt 保留 time.Time 以便各后端按时间排序。
func ProductFields(p *domain.Product) map[string]any {
	keywords := p.SearchKeywords
	if keywords == nil {
		keywords = []string{}
	}
	return map[string]any{
		"name":                     p.Name,
		domain.FieldSearchKeywords: keywords,
		"price":                    p.Price.InexactFloat64(),
		"shippingFee":              p.ShippingFee.InexactFloat64(),
		"stock":                    p.Stock,
		domain.FieldBrand:          p.Brand,
		domain.FieldCategory:       p.Category,
		"color":                    p.Color,
		"image":                    p.Image,
		"size":                     p.Size,
		"condition":                p.Condition,
		domain.FieldLikesCount:     p.LikesCount,
		"description":              p.Description,
		domain.FieldCreatedAt:      p.CreatedAt,
	}
}
