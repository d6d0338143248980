package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/prmnaa30/vintage-marketplace/internal/domain"
)

// SampleIndices 从 [0, total) 中均匀抽取 desired 个互不相同的下标（拒绝采样）。
// desired >= total 时返回全部下标，desired <= 0 时返回空。
func SampleIndices(total, desired int, intn func(n int) int) []int {
	if total <= 0 || desired <= 0 {
		return []int{}
	}
	if desired >= total {
		all := make([]int, total)
		for i := range all {
			all[i] = i
		}
		return all
	}

	picked := make(map[int]struct{}, desired)
	out := make([]int, 0, desired)
	for len(out) < desired {
		i := intn(total)
		if _, dup := picked[i]; dup {
			continue
		}
		picked[i] = struct{}{}
		out = append(out, i)
	}
	return out
}

// SampleRandom 读取全部商品后随机抽取 count 件
func (s *CatalogSession) SampleRandom(ctx context.Context, count int) ([]domain.Product, error) {
	s.begin()
	all, err := s.repo.All(ctx)
	if err != nil {
		s.fail(err, "sample random products failed", zap.Int("count", count))
		return nil, fmt.Errorf("sample random products: %w", err)
	}

	var sample []domain.Product
	if count >= len(all) {
		sample = all
	} else {
		s.mu.Lock()
		intn := s.intn
		s.mu.Unlock()

		idx := SampleIndices(len(all), count, intn)
		sample = make([]domain.Product, 0, len(idx))
		for _, i := range idx {
			sample = append(sample, all[i])
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	s.random = sample
	return append([]domain.Product(nil), sample...), nil
}
