package service

import (
	"strings"

	"github.com/prmnaa30/vintage-marketplace/internal/docstore"
	"github.com/prmnaa30/vintage-marketplace/internal/domain"
)

// QueryConstraints 由筛选请求推导出的查询指令
type QueryConstraints struct {
	Query docstore.Query
	// NeedsClientCategoryFilter 为 true 时分类谓词未下推到存储，需在页内按 Categories 过滤
	NeedsClientCategoryFilter bool
	Categories                []string
}

// BuildQueryConstraints 将筛选请求翻译为存储查询。
// 同一请求与游标总是得到相同的结果，函数不修改任何输入。
//
// 规则：
//   - 品牌非空：brand 等值谓词；
//   - 检索词非空：searchKeywords array-contains 小写检索词，
//     此时若还有分类，则分类改为客户端过滤，不下推 in 谓词；
//   - 检索词为空：分类非空时下推 category in 谓词，并总是按 createdAt 倒序；
//   - 加载更多且存在游标：从游标之后开始；
//   - 总是限制为 pageSize 条。
func BuildQueryConstraints(req domain.FilterRequest, isLoadMore bool, cursor *docstore.Cursor, pageSize int) QueryConstraints {
	var qc QueryConstraints

	if brand := strings.TrimSpace(req.Brand); brand != "" {
		qc.Query.Filters = append(qc.Query.Filters, docstore.Filter{
			Field: domain.FieldBrand,
			Op:    docstore.OpEqual,
			Value: brand,
		})
	}

	categories := nonBlank(req.Categories)

	if term := req.SearchTerm(); term != "" {
		qc.Query.Filters = append(qc.Query.Filters, docstore.Filter{
			Field: domain.FieldSearchKeywords,
			Op:    docstore.OpArrayContains,
			Value: strings.ToLower(term),
		})
		if len(categories) > 0 {
			qc.NeedsClientCategoryFilter = true
			qc.Categories = categories
		}
	} else {
		if len(categories) > 0 {
			qc.Query.Filters = append(qc.Query.Filters, docstore.Filter{
				Field: domain.FieldCategory,
				Op:    docstore.OpIn,
				Value: categories,
			})
		}
		qc.Query.OrderBy = append(qc.Query.OrderBy, docstore.Order{
			Field:     domain.FieldCreatedAt,
			Direction: docstore.Desc,
		})
	}

	if isLoadMore && cursor != nil {
		qc.Query.StartAfter = cursor
	}

	qc.Query.Limit = pageSize
	return qc
}

// FilterByCategories 保留分类属于 categories 的商品，返回新切片
func FilterByCategories(products []domain.Product, categories []string) []domain.Product {
	allowed := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		allowed[c] = struct{}{}
	}

	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if _, ok := allowed[p.Category]; ok {
			out = append(out, p)
		}
	}
	return out
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
