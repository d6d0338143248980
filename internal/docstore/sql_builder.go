package docstore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// 文档表结构（MySQL 与 PostgreSQL 共用）：
//
//	documents(collection, id, body JSON, created_at)
//
// createdAt 字段冗余到 created_at 列以便走索引排序。
const (
	documentsTable   = "documents"
	createdAtField   = "createdAt"
	createdAtColumn  = "created_at"
	documentIDColumn = "id"
)

// sqlDialect 屏蔽 JSON 取值与占位符的方言差异
type sqlDialect interface {
	placeholder(n int) string
	textField(field string) string
	numberField(field string) string
	arrayContains(field, ph string) string
	containsArg(v any) (any, error)
}

type mysqlDialect struct{}

func (mysqlDialect) placeholder(int) string { return "?" }

func (mysqlDialect) textField(field string) string {
	return fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(body, '$.%s'))", field)
}

func (mysqlDialect) numberField(field string) string {
	return fmt.Sprintf("CAST(JSON_EXTRACT(body, '$.%s') AS DECIMAL(20,6))", field)
}

func (mysqlDialect) arrayContains(field, ph string) string {
	return fmt.Sprintf("JSON_CONTAINS(JSON_EXTRACT(body, '$.%s'), %s)", field, ph)
}

func (mysqlDialect) containsArg(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

type postgresDialect struct{}

func (postgresDialect) placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) textField(field string) string {
	return fmt.Sprintf("body->>'%s'", field)
}

func (postgresDialect) numberField(field string) string {
	return fmt.Sprintf("(body->>'%s')::numeric", field)
}

func (postgresDialect) arrayContains(field, ph string) string {
	return fmt.Sprintf("body->'%s' @> %s::jsonb", field, ph)
}

func (postgresDialect) containsArg(v any) (any, error) {
	raw, err := json.Marshal([]any{v})
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// sqlStatement 构建中的 SQL 语句及其参数
type sqlStatement struct {
	dialect sqlDialect
	args    []any
}

func (s *sqlStatement) bind(v any) string {
	s.args = append(s.args, v)
	return s.dialect.placeholder(len(s.args))
}

// buildSelect 将 Query 渲染为 SELECT 语句。
// 排序字段仅支持 createdAt 与数值字段；多个排序字段必须同向，以便使用行比较实现 start-after。
func buildSelect(d sqlDialect, collection string, q Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	st := &sqlStatement{dialect: d}
	var sb strings.Builder
	sb.WriteString("SELECT id, body FROM ")
	sb.WriteString(documentsTable)
	sb.WriteString(" WHERE collection = ")
	sb.WriteString(st.bind(collection))

	for _, f := range q.Filters {
		cond, err := st.filter(f)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" AND ")
		sb.WriteString(cond)
	}

	orderExprs := make([]string, 0, len(q.OrderBy)+1)
	dir := Asc
	for i, o := range q.OrderBy {
		if i > 0 && o.Direction != dir {
			return "", nil, fmt.Errorf("%w: mixed order directions", ErrUnsupportedQuery)
		}
		dir = o.Direction
		expr := orderExpr(d, o.Field)
		orderExprs = append(orderExprs, expr)
		sb.WriteString(" AND ")
		sb.WriteString(expr)
		sb.WriteString(" IS NOT NULL")
	}
	orderExprs = append(orderExprs, documentIDColumn)

	if c := q.StartAfter; c != nil {
		cmp := ">"
		if dir == Desc {
			cmp = "<"
		}
		if len(orderExprs) == 1 {
			fmt.Fprintf(&sb, " AND id %s %s", cmp, st.bind(c.DocID))
		} else {
			tuple := strings.Join(orderExprs, ", ")
			fmt.Fprintf(&sb, " AND (%s) %s (SELECT %s FROM %s WHERE collection = %s AND id = %s)",
				tuple, cmp, tuple, documentsTable, st.bind(collection), st.bind(c.DocID))
		}
	}

	sb.WriteString(" ORDER BY ")
	for i, expr := range orderExprs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(expr)
		if dir == Desc {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}

	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	return sb.String(), st.args, nil
}

func (s *sqlStatement) filter(f Filter) (string, error) {
	switch f.Op {
	case OpEqual:
		switch v := f.Value.(type) {
		case string:
			return fmt.Sprintf("%s = %s", s.dialect.textField(f.Field), s.bind(v)), nil
		case int, int32, int64, float32, float64:
			return fmt.Sprintf("%s = %s", s.dialect.numberField(f.Field), s.bind(v)), nil
		default:
			return "", fmt.Errorf("%w: equality on %q with %T", ErrUnsupportedQuery, f.Field, f.Value)
		}
	case OpIn:
		values := sliceValues(f.Value)
		phs := make([]string, len(values))
		for i, v := range values {
			str, ok := v.(string)
			if !ok {
				return "", fmt.Errorf("%w: in on %q requires string values", ErrUnsupportedQuery, f.Field)
			}
			phs[i] = s.bind(str)
		}
		return fmt.Sprintf("%s IN (%s)", s.dialect.textField(f.Field), strings.Join(phs, ", ")), nil
	case OpArrayContains:
		arg, err := s.dialect.containsArg(f.Value)
		if err != nil {
			return "", fmt.Errorf("%w: encode contains value: %w", ErrUnsupportedQuery, err)
		}
		return s.dialect.arrayContains(f.Field, s.bind(arg)), nil
	}
	return "", fmt.Errorf("%w: operator %q", ErrUnsupportedQuery, f.Op)
}

func orderExpr(d sqlDialect, field string) string {
	if field == createdAtField {
		return createdAtColumn
	}
	return d.numberField(field)
}

// encodeBody 序列化文档字段，并提取 created_at 列的值
func encodeBody(fields map[string]any) (string, *time.Time, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", nil, fmt.Errorf("encode document body: %w", err)
	}
	var createdAt *time.Time
	if t, ok := fields[createdAtField].(time.Time); ok {
		utc := t.UTC()
		createdAt = &utc
	}
	return string(raw), createdAt, nil
}

// decodeBody 反序列化文档字段
func decodeBody(id string, body []byte) (Document, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal(body, &fields); err != nil {
		return Document{}, fmt.Errorf("decode document %s: %w", id, err)
	}
	return Document{ID: id, Fields: fields}, nil
}
