package domain

import "strings"

// FilterRequest 描述一次商品列表查询的筛选意图。
// Categories 之间为“或”关系；Search 与 Brand 为空表示不筛选。
type FilterRequest struct {
	Search     string   `json:"search,omitempty"`
	Brand      string   `json:"brand,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// SearchTerm 返回去除首尾空白后的检索词
func (r FilterRequest) SearchTerm() string {
	return strings.TrimSpace(r.Search)
}

// HasCategories 是否指定了分类筛选
func (r FilterRequest) HasCategories() bool {
	return len(r.Categories) > 0
}

// Clone 返回请求的深拷贝，避免调用方后续修改影响会话内保存的请求
func (r FilterRequest) Clone() FilterRequest {
	out := r
	if r.Categories != nil {
		out.Categories = append([]string(nil), r.Categories...)
	}
	return out
}

// FacetMetadata 品牌与分类的筛选项列表
type FacetMetadata struct {
	Brands     []string `json:"brands"`
	Categories []string `json:"categories"`
}

// Complete 两个列表均非空时视为已加载
func (m FacetMetadata) Complete() bool {
	return len(m.Brands) > 0 && len(m.Categories) > 0
}

// HomeData 首页数据：最受欢迎与最新上架商品
type HomeData struct {
	Popular []Product `json:"popular"`
	Newest  []Product `json:"newest"`
}
