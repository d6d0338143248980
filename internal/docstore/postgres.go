package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore 基于 PostgreSQL JSONB 列的文档存储
type PostgresStore struct {
	pool    *pgxpool.Pool
	dialect postgresDialect
}

// NewPostgresStore 创建 PostgreSQL 文档存储
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get 读取单个文档
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		"SELECT body FROM documents WHERE collection = $1 AND id = $2", collection, id,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return nil, unavailable("postgres get", err)
	}

	doc, err := decodeBody(id, body)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Query 执行查询
func (s *PostgresStore) Query(ctx context.Context, collection string, q Query) (*Page, error) {
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
func (s *PostgresStore) ScanAll(ctx context.Context, collection string) ([]Document, error) {
	return s.queryDocuments(ctx, "SELECT id, body FROM documents WHERE collection = $1 ORDER BY id", collection)
}

// Put 写入或覆盖文档
func (s *PostgresStore) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	body, createdAt, err := encodeBody(fields)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, body, created_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, created_at = EXCLUDED.created_at`,
		collection, id, body, createdAt,
	)
	if err != nil {
		return unavailable("postgres put", err)
	}
	return nil
}

func (s *PostgresStore) queryDocuments(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("postgres query", err)
	}

	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Document, error) {
		var (
			id   string
			body []byte
		)
		if err := row.Scan(&id, &body); err != nil {
			return Document{}, err
		}
		return decodeBody(id, body)
	})
	if err != nil {
		return nil, unavailable("postgres collect rows", err)
	}
	return docs, nil
}
