// Package domain 定义商品目录相关的领域模型和核心业务规则。
package domain

import (
	"errors"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// 商品文档中参与查询的字段名。
const (
	FieldBrand          = "brand"
	FieldCategory       = "category"
	FieldSearchKeywords = "searchKeywords"
	FieldCreatedAt      = "createdAt"
	FieldLikesCount     = "likesCount"
)

// 领域错误
var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidProduct  = errors.New("invalid product")
)

// Product 表示目录中的一件商品
type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	SearchKeywords []string        `json:"searchKeywords"`
	Price          decimal.Decimal `json:"price"`
	ShippingFee    decimal.Decimal `json:"shippingFee"`
	Stock          int             `json:"stock"`
	Brand          string          `json:"brand"`
	Category       string          `json:"category"`
	Color          string          `json:"color"`
	Image          string          `json:"image"`
	Size           string          `json:"size"`
	Condition      string          `json:"condition"`
	LikesCount     int             `json:"likesCount"`
	Description    string          `json:"description"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Validate 校验商品的基本不变量
func (p *Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.Join(ErrInvalidProduct, errors.New("id is required"))
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.Join(ErrInvalidProduct, errors.New("name is required"))
	}
	if p.Price.IsNegative() {
		return errors.Join(ErrInvalidProduct, errors.New("price must not be negative"))
	}
	if p.ShippingFee.IsNegative() {
		return errors.Join(ErrInvalidProduct, errors.New("shipping fee must not be negative"))
	}
	if p.Stock < 0 {
		return errors.Join(ErrInvalidProduct, errors.New("stock must not be negative"))
	}
	return nil
}

// InStock 判断商品是否有库存
func (p *Product) InStock() bool {
	return p.Stock > 0
}

// BuildSearchKeywords 生成用于 array-contains 检索的小写关键词。
// 关键词来自名称、品牌、分类、颜色、成色的分词结果以及完整名称，去重后排序。
func BuildSearchKeywords(p *Product) []string {
	set := make(map[string]struct{})
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			set[s] = struct{}{}
		}
	}

	add(p.Name)
	add(p.Brand)
	for _, text := range []string{p.Name, p.Brand, p.Category, p.Color, p.Condition} {
		for _, token := range strings.FieldsFunc(text, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			add(token)
		}
	}

	keywords := make([]string, 0, len(set))
	for k := range set {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	return keywords
}
