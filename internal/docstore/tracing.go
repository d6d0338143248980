package docstore

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/prmnaa30/vintage-marketplace/internal/docstore"

// tracedStore 为每次存储调用创建 span
type tracedStore struct {
	next    Store
	tracer  trace.Tracer
	backend string
}

// Instrument 使用全局 TracerProvider 包装存储；未配置导出器时为空操作
func Instrument(next Store, backend string) Store {
	return &tracedStore{
		next:    next,
		tracer:  otel.Tracer(tracerName),
		backend: backend,
	}
}

func (s *tracedStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	ctx, span := s.start(ctx, "docstore.Get", collection, attribute.String("docstore.id", id))
	defer span.End()

	doc, err := s.next.Get(ctx, collection, id)
	record(span, err)
	return doc, err
}

func (s *tracedStore) Query(ctx context.Context, collection string, q Query) (*Page, error) {
	ctx, span := s.start(ctx, "docstore.Query", collection,
		attribute.Int("docstore.filters", len(q.Filters)),
		attribute.Int("docstore.limit", q.Limit),
		attribute.Bool("docstore.start_after", q.StartAfter != nil),
	)
	defer span.End()

	page, err := s.next.Query(ctx, collection, q)
	if err == nil {
		span.SetAttributes(attribute.Int("docstore.results", len(page.Documents)))
	}
	record(span, err)
	return page, err
}

func (s *tracedStore) ScanAll(ctx context.Context, collection string) ([]Document, error) {
	ctx, span := s.start(ctx, "docstore.ScanAll", collection)
	defer span.End()

	docs, err := s.next.ScanAll(ctx, collection)
	if err == nil {
		span.SetAttributes(attribute.Int("docstore.results", len(docs)))
	}
	record(span, err)
	return docs, err
}

func (s *tracedStore) start(ctx context.Context, name, collection string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("docstore.backend", s.backend),
		attribute.String("docstore.collection", collection),
	)
	return s.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func record(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
