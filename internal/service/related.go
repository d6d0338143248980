package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/prmnaa30/vintage-marketplace/internal/docstore"
	"github.com/prmnaa30/vintage-marketplace/internal/domain"
)

// relatedTier 相关商品的一级回退查询
type relatedTier struct {
	name  string
	field string
	value string
	quota int
}

// FetchRelated 为 anchorID 组装相关商品：
// 同分类最新 4 件，同品牌补足至上限，不足时用全站最新商品填充。
// 结果去重、不含锚点商品，最多 relatedSize 件。失败时保留上一次的结果并返回错误。
func (s *CatalogSession) FetchRelated(ctx context.Context, anchorID, brand, category string) ([]domain.Product, error) {
	s.begin()
	related, err := s.assembleRelated(ctx, anchorID, strings.TrimSpace(brand), strings.TrimSpace(category))
	if err != nil {
		s.fail(err, "fetch related products failed", zap.String("anchor_id", anchorID))
		return nil, fmt.Errorf("fetch related products: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	s.related = related
	return append([]domain.Product(nil), related...), nil
}

func (s *CatalogSession) assembleRelated(ctx context.Context, anchorID, brand, category string) ([]domain.Product, error) {
	target := s.relatedSize
	collected := make([]domain.Product, 0, target)
	seen := map[string]struct{}{anchorID: {}}

	var tiers []relatedTier
	if category != "" {
		tiers = append(tiers, relatedTier{name: "category", field: domain.FieldCategory, value: category, quota: min(relatedCategoryCap, target)})
	}
	if brand != "" {
		tiers = append(tiers, relatedTier{name: "brand", field: domain.FieldBrand, value: brand})
	}
	tiers = append(tiers, relatedTier{name: "newest"})

	for _, tier := range tiers {
		quota := tier.quota
		if quota == 0 {
			quota = target - len(collected)
		}
		if quota <= 0 || len(collected) >= target {
			break
		}

		q := docstore.Query{
			OrderBy: []docstore.Order{{Field: domain.FieldCreatedAt, Direction: docstore.Desc}},
			// 锚点与已收集的商品可能出现在结果中，多取以保证去重后仍能填满配额
			Limit: quota + len(collected) + 1,
		}
		if tier.field != "" {
			q.Filters = []docstore.Filter{{Field: tier.field, Op: docstore.OpEqual, Value: tier.value}}
		}

		page, err := s.repo.Find(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("%s tier: %w", tier.name, err)
		}

		added := 0
		for _, p := range page.Products {
			if added >= quota {
				break
			}
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			collected = append(collected, p)
			added++
		}
	}

	if len(collected) > target {
		collected = collected[:target]
	}
	return collected, nil
}
