// Package seed 读取商品导入文件并写入文档存储。
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/prmnaa30/vintage-marketplace/internal/domain"
	"github.com/prmnaa30/vintage-marketplace/internal/repo"
)

// writeConcurrency 并发写入的商品数上限
const writeConcurrency = 8

// ReadFile 读取商品数组文件，.gz 后缀按 gzip 解压
func ReadFile(path string) ([]domain.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return Decode(r)
}

// Decode 读取商品数组
func Decode(r io.Reader) ([]domain.Product, error) {
	var products []domain.Product
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

// Import 补全缺省字段后并发写入商品，最后写入由商品推导出的筛选项。
// 任一商品校验或写入失败时不写筛选项。
func Import(ctx context.Context, w *repo.CatalogWriter, products []domain.Product, now time.Time) (domain.FacetMetadata, error) {
	for i := range products {
		p := &products[i]
		if strings.TrimSpace(p.ID) == "" {
			p.ID = uuid.NewString()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.SearchKeywords = domain.BuildSearchKeywords(p)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(writeConcurrency)
	for i := range products {
		p := &products[i]
		g.Go(func() error {
			return w.SaveProduct(gctx, p)
		})
	}
	if err := g.Wait(); err != nil {
		return domain.FacetMetadata{}, err
	}

	meta := DeriveMetadata(products)
	if err := w.SaveMetadata(ctx, meta); err != nil {
		return domain.FacetMetadata{}, err
	}
	return meta, nil
}

// DeriveMetadata 收集去重排序后的品牌和分类
func DeriveMetadata(products []domain.Product) domain.FacetMetadata {
	brands := map[string]struct{}{}
	categories := map[string]struct{}{}
	for _, p := range products {
		if b := strings.TrimSpace(p.Brand); b != "" {
			brands[b] = struct{}{}
		}
		if c := strings.TrimSpace(p.Category); c != "" {
			categories[c] = struct{}{}
		}
	}
	return domain.FacetMetadata{Brands: sortedKeys(brands), Categories: sortedKeys(categories)}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
