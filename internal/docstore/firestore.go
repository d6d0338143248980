package docstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore 基于 Cloud Firestore 的文档存储
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore 连接 Firestore；credentialsFile 为空时使用默认凭据
// （设置 FIRESTORE_EMULATOR_HOST 时连接模拟器）。
func NewFirestoreStore(ctx context.Context, projectID, credentialsFile string) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

// NewFirestoreStoreFromClient 使用已有客户端构建存储
func NewFirestoreStoreFromClient(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// Get 读取单个文档
func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if isFirestoreNotFound(err) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return nil, unavailable("firestore get", err)
	}
	if snap == nil || !snap.Exists() {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return &Document{ID: snap.Ref.ID, Fields: snap.Data()}, nil
}

// Query 将查询翻译为 Firestore 查询执行
func (s *FirestoreStore) Query(ctx context.Context, collection string, q Query) (*Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	fq := s.client.Collection(collection).Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}
	for _, o := range q.OrderBy {
		dir := firestore.Asc
		if o.Direction == Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(o.Field, dir)
	}
	if q.StartAfter != nil {
		snap, err := s.cursorSnapshot(ctx, collection, q.StartAfter)
		if err != nil {
			return nil, err
		}
		fq = fq.StartAfter(snap)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}

	snaps, err := fq.Documents(ctx).GetAll()
	if err != nil {
		return nil, queryError(err)
	}

	page := &Page{Documents: make([]Document, 0, len(snaps))}
	for _, snap := range snaps {
		page.Documents = append(page.Documents, Document{ID: snap.Ref.ID, Fields: snap.Data()})
	}
	if n := len(snaps); n > 0 {
		page.Cursor = cursorFor(page.Documents[n-1], q.OrderBy, snaps[n-1])
	}
	return page, nil
}

// ScanAll 读取整个集合
func (s *FirestoreStore) ScanAll(ctx context.Context, collection string) ([]Document, error) {
	snaps, err := s.client.Collection(collection).Documents(ctx).GetAll()
	if err != nil {
		return nil, unavailable("firestore scan", err)
	}
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, Document{ID: snap.Ref.ID, Fields: snap.Data()})
	}
	return docs, nil
}

// Put 写入或覆盖文档
func (s *FirestoreStore) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, fields); err != nil {
		return unavailable("firestore put", err)
	}
	return nil
}

// Close 关闭客户端
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// cursorSnapshot 优先复用游标携带的快照，否则按文档 ID 重新读取
func (s *FirestoreStore) cursorSnapshot(ctx context.Context, collection string, c *Cursor) (*firestore.DocumentSnapshot, error) {
	if snap, ok := c.handle.(*firestore.DocumentSnapshot); ok && snap != nil {
		return snap, nil
	}
	snap, err := s.client.Collection(collection).Doc(c.DocID).Get(ctx)
	if err != nil {
		if isFirestoreNotFound(err) {
			return nil, fmt.Errorf("cursor document %s: %w", c.DocID, ErrNotFound)
		}
		return nil, unavailable("firestore cursor", err)
	}
	return snap, nil
}

func isFirestoreNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// queryError 缺少复合索引等查询形态问题归为 ErrUnsupportedQuery
func queryError(err error) error {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.FailedPrecondition:
		return fmt.Errorf("firestore query: %w: %w", ErrUnsupportedQuery, err)
	}
	return unavailable("firestore query", err)
}
