package docstore

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore 内存文档存储（用于开发和测试），查询语义与 Firestore 保持一致：
// 缺少排序字段的文档不出现在排序查询结果中，同值时按文档 ID 决定先后。
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]map[string]any
}

// NewMemoryStore 创建内存存储实例
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]map[string]any),
	}
}

// Put 写入或覆盖文档
func (m *MemoryStore) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return unavailable("memory put", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.data[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		m.data[collection] = coll
	}
	coll[id] = maps.Clone(fields)
	return nil
}

// Get 读取单个文档
func (m *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("memory get", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	fields, ok := m.data[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return &Document{ID: id, Fields: maps.Clone(fields)}, nil
}

// ScanAll 按文档 ID 顺序返回整个集合
func (m *MemoryStore) ScanAll(ctx context.Context, collection string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("memory scan", err)
	}

	docs := m.snapshot(collection)
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Query 执行查询
func (m *MemoryStore) Query(ctx context.Context, collection string, q Query) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("memory query", err)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var docs []Document
	for _, d := range m.snapshot(collection) {
		if matchesAll(d, q.Filters) && hasOrderFields(d, q.OrderBy) {
			docs = append(docs, d)
		}
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return comparePosition(docs[i].Fields, docs[i].ID, docs[j].Fields, docs[j].ID, q.OrderBy) < 0
	})

	if c := q.StartAfter; c != nil {
		start := len(docs)
		for i, d := range docs {
			if comparePosition(d.Fields, d.ID, c.Values, c.DocID, q.OrderBy) > 0 {
				start = i
				break
			}
		}
		docs = docs[start:]
	}

	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}

	page := &Page{Documents: docs}
	if len(docs) > 0 {
		page.Cursor = cursorFor(docs[len(docs)-1], q.OrderBy, nil)
	}
	return page, nil
}

// snapshot 复制集合中的全部文档，避免持锁期间执行排序与过滤
func (m *MemoryStore) snapshot(collection string) []Document {
	m.mu.RLock()
	defer m.mu.RUnlock()

	coll := m.data[collection]
	docs := make([]Document, 0, len(coll))
	for id, fields := range coll {
		docs = append(docs, Document{ID: id, Fields: maps.Clone(fields)})
	}
	return docs
}

func matchesAll(d Document, filters []Filter) bool {
	for _, f := range filters {
		if !matches(d.Fields[f.Field], f) {
			return false
		}
	}
	return true
}

func matches(v any, f Filter) bool {
	switch f.Op {
	case OpEqual:
		return v != nil && compareValues(v, f.Value) == 0
	case OpIn:
		if v == nil {
			return false
		}
		for _, candidate := range sliceValues(f.Value) {
			if compareValues(v, candidate) == 0 {
				return true
			}
		}
	case OpArrayContains:
		for _, elem := range sliceValues(v) {
			if compareValues(elem, f.Value) == 0 {
				return true
			}
		}
	}
	return false
}

func hasOrderFields(d Document, orders []Order) bool {
	for _, o := range orders {
		if _, ok := d.Fields[o.Field]; !ok {
			return false
		}
	}
	return true
}

// comparePosition 比较两个文档在给定排序下的先后，同值时按 ID 排序，
// ID 的方向跟随最后一个排序字段。
func comparePosition(aFields map[string]any, aID string, bFields map[string]any, bID string, orders []Order) int {
	for _, o := range orders {
		c := compareValues(aFields[o.Field], bFields[o.Field])
		if o.Direction == Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	c := strings.Compare(aID, bID)
	if len(orders) > 0 && orders[len(orders)-1].Direction == Desc {
		c = -c
	}
	return c
}

// compareValues 比较两个字段值；类型不同时按 nil < bool < 数值 < 时间 < 字符串 排序
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case rankBool:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case rankNumber:
		x, _ := toFloat(a)
		y, _ := toFloat(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case rankTime:
		return a.(time.Time).Compare(b.(time.Time))
	case rankString:
		return strings.Compare(a.(string), b.(string))
	}
	return 0
}

const (
	rankNil = iota
	rankBool
	rankNumber
	rankTime
	rankString
	rankOther
)

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return rankNil
	case bool:
		return rankBool
	case int, int32, int64, float32, float64:
		return rankNumber
	case time.Time:
		return rankTime
	case string:
		return rankString
	default:
		return rankOther
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
