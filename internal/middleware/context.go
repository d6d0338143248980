// Package middleware 提供 HTTP 中间件：请求 ID、恢复、超时、CORS、访问日志与浏览会话。
package middleware

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/prmnaa30/vintage-marketplace/internal/service"
)

// contextKey 用于在上下文中存取特定键，避免与外部键冲突。
type contextKey string

// 约定的上下文键集合。
const (
	contextKeyRequestID contextKey = "request_id"
	contextKeySession   contextKey = "catalog_session"
	contextKeySessionID contextKey = "catalog_session_id"
)

// withRequestID 将请求 ID 写入上下文。
func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}

// RequestIDFromContext 从上下文中读取请求 ID（可能为空）。
func RequestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return s
	}
	return ""
}

// TraceIDFromContext 读取当前 span 的 trace ID，未启用追踪时为空。
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func withSession(ctx context.Context, id string, s *service.CatalogSession) context.Context {
	ctx = context.WithValue(ctx, contextKeySessionID, id)
	return context.WithValue(ctx, contextKeySession, s)
}

// SessionFromContext 读取 Session 中间件注入的目录会话
func SessionFromContext(ctx context.Context) *service.CatalogSession {
	if s, ok := ctx.Value(contextKeySession).(*service.CatalogSession); ok {
		return s
	}
	return nil
}

// SessionIDFromContext 读取会话 ID
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeySessionID).(string); ok {
		return id
	}
	return ""
}
