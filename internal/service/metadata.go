package service

import (
	"context"

	"go.uber.org/zap"
)

// EnsureMetadata 按需加载品牌与分类筛选项，已加载时不访问存储。
// 加载失败只记录日志，筛选项保持为空，下次调用会重试。
func (s *CatalogSession) EnsureMetadata(ctx context.Context) {
	s.mu.Lock()
	if s.metadata.Complete() {
		s.mu.Unlock()
		return
	}
	s.inFlight++
	s.mu.Unlock()

	meta, err := s.repo.GetMetadata(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	if err != nil {
		s.logger.Warn("load facet metadata failed", zap.Error(err))
		return
	}
	s.metadata.Brands = append([]string(nil), meta.Brands...)
	s.metadata.Categories = append([]string(nil), meta.Categories...)
}
