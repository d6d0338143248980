// Package docstore 定义商品目录所依赖的远程文档存储抽象，
// 并提供内存、Firestore、MySQL 与 PostgreSQL 四种实现。
//
// 查询能力刻意收敛为：等值 / in / array-contains 三种谓词的合取、
// 排序、start-after 游标与 limit。
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
)

// 存储层错误
var (
	ErrNotFound         = errors.New("docstore: document not found")
	ErrUnavailable      = errors.New("docstore: store unavailable")
	ErrUnsupportedQuery = errors.New("docstore: unsupported query")
)

// maxInValues 单个 in 谓词允许的最大取值数
const maxInValues = 30

// Op 谓词操作符
type Op string

const (
	OpEqual         Op = "=="
	OpIn            Op = "in"
	OpArrayContains Op = "array-contains"
)

// Direction 排序方向
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// Filter 单个字段谓词
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order 排序指令
type Order struct {
	Field     string
	Direction Direction
}

// Cursor 指向某页最后一个文档的不透明游标
type Cursor struct {
	DocID  string
	Values map[string]any

	// 后端私有的定位信息（如 Firestore 的快照），可能为空
	handle any
}

// Query 一次有序、限量的集合查询
type Query struct {
	Filters    []Filter
	OrderBy    []Order
	StartAfter *Cursor
	Limit      int
}

// IsEmpty 查询不含任何指令时，调用方应直接扫描整个集合
func (q Query) IsEmpty() bool {
	return len(q.Filters) == 0 && len(q.OrderBy) == 0 && q.StartAfter == nil && q.Limit <= 0
}

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate 检查查询是否落在所有后端都能执行的能力范围内
func (q Query) Validate() error {
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrUnsupportedQuery, q.Limit)
	}

	var contains, in int
	for _, f := range q.Filters {
		if !fieldNamePattern.MatchString(f.Field) {
			return fmt.Errorf("%w: invalid field name %q", ErrUnsupportedQuery, f.Field)
		}
		switch f.Op {
		case OpEqual:
		case OpIn:
			in++
			n, ok := sliceLen(f.Value)
			if !ok || n == 0 {
				return fmt.Errorf("%w: in on %q requires a non-empty list", ErrUnsupportedQuery, f.Field)
			}
			if n > maxInValues {
				return fmt.Errorf("%w: in on %q has %d values, max %d", ErrUnsupportedQuery, f.Field, n, maxInValues)
			}
		case OpArrayContains:
			contains++
		default:
			return fmt.Errorf("%w: operator %q", ErrUnsupportedQuery, f.Op)
		}
	}
	if contains > 1 {
		return fmt.Errorf("%w: at most one array-contains predicate", ErrUnsupportedQuery)
	}
	if contains > 0 && in > 0 {
		return fmt.Errorf("%w: array-contains cannot be combined with in", ErrUnsupportedQuery)
	}
	if in > 1 {
		return fmt.Errorf("%w: at most one in predicate", ErrUnsupportedQuery)
	}

	for _, o := range q.OrderBy {
		if !fieldNamePattern.MatchString(o.Field) {
			return fmt.Errorf("%w: invalid order field %q", ErrUnsupportedQuery, o.Field)
		}
	}
	return nil
}

// Document 存储中的一个文档
type Document struct {
	ID     string
	Fields map[string]any
}

// DataTo 将文档字段解码到 dest（按 JSON 标签映射）
func (d Document) DataTo(dest any) error {
	raw, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Page 一页查询结果；Cursor 指向本页最后一个文档，空页时为 nil
type Page struct {
	Documents []Document
	Cursor    *Cursor
}

// Store 商品目录依赖的只读文档存储
type Store interface {
	// Get 按 ID 读取单个文档，不存在时返回 ErrNotFound
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Query 执行带谓词、排序、游标与限量的查询
	Query(ctx context.Context, collection string, q Query) (*Page, error)
	// ScanAll 读取整个集合，仅供随机抽样使用
	ScanAll(ctx context.Context, collection string) ([]Document, error)
}

// Writer 写入文档，仅供数据导入使用
type Writer interface {
	Put(ctx context.Context, collection, id string, fields map[string]any) error
}

// cursorFor 为页内最后一个文档生成游标
func cursorFor(last Document, orders []Order, handle any) *Cursor {
	values := make(map[string]any, len(orders))
	for _, o := range orders {
		values[o.Field] = last.Fields[o.Field]
	}
	return &Cursor{DocID: last.ID, Values: values, handle: handle}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// sliceLen 返回切片类型取值的长度
func sliceLen(v any) (int, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return 0, false
	}
	return rv.Len(), true
}

// sliceValues 将任意切片展开为 []any
func sliceValues(v any) []any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
