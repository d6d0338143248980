package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/prmnaa30/vintage-marketplace/internal/docstore"
	"github.com/prmnaa30/vintage-marketplace/internal/domain"
	"github.com/prmnaa30/vintage-marketplace/internal/repo"
)

// fetchHome 并发查询首页的两个列表，任一失败即返回错误
func fetchHome(ctx context.Context, productRepo repo.ProductRepository) (*domain.HomeData, error) {
	var home domain.HomeData
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		page, err := productRepo.Find(gctx, docstore.Query{
			OrderBy: []docstore.Order{{Field: domain.FieldLikesCount, Direction: docstore.Desc}},
			Limit:   homeSectionSize,
		})
		if err != nil {
			return err
		}
		home.Popular = page.Products
		return nil
	})

	g.Go(func() error {
		page, err := productRepo.Find(gctx, docstore.Query{
			OrderBy: []docstore.Order{{Field: domain.FieldCreatedAt, Direction: docstore.Desc}},
			Limit:   homeSectionSize,
		})
		if err != nil {
			return err
		}
		home.Newest = page.Products
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &home, nil
}
