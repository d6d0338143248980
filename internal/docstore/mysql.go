package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// MySQLStore 基于 MySQL JSON 列的文档存储
type MySQLStore struct {
	db      *sql.DB
	dialect mysqlDialect
}

// NewMySQLStore 创建 MySQL 文档存储，表结构由迁移负责创建
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// Get 读取单个文档
func (s *MySQLStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND id = ?", collection, id,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return nil, unavailable("mysql get", err)
	}

	doc, err := decodeBody(id, body)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Query 执行查询
func (s *MySQLStore) Query(ctx context.Context, collection string, q Query) (*Page, error) {
	query, args, err := buildSelect(s.dialect, collection, q)
	if err != nil {
		return nil, err
	}

	docs, err := s.queryDocuments(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	page := &Page{Documents: docs}
	if n := len(docs); n > 0 {
		page.Cursor = cursorFor(docs[n-1], q.OrderBy, nil)
	}
	return page, nil
}

// ScanAll 读取整个集合
func (s *MySQLStore) ScanAll(ctx context.Context, collection string) ([]Document, error) {
	return s.queryDocuments(ctx, "SELECT id, body FROM documents WHERE collection = ? ORDER BY id", collection)
}

// Put 写入或覆盖文档
func (s *MySQLStore) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	body, createdAt, err := encodeBody(fields)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, created_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE body = VALUES(body), created_at = VALUES(created_at)`,
		collection, id, body, createdAt,
	)
	if err != nil {
		return unavailable("mysql put", err)
	}
	return nil
}

func (s *MySQLStore) queryDocuments(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("mysql query", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, unavailable("mysql scan row", err)
		}
		doc, err := decodeBody(id, body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("mysql iterate rows", err)
	}
	return docs, nil
}
