// Package api 提供商品目录的 HTTP API 处理器。
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/prmnaa30/vintage-marketplace/internal/docstore"
	"github.com/prmnaa30/vintage-marketplace/internal/domain"
	"github.com/prmnaa30/vintage-marketplace/internal/middleware"
	"github.com/prmnaa30/vintage-marketplace/internal/resp"
	"github.com/prmnaa30/vintage-marketplace/internal/service"
)

const (
	defaultRandomCount = 8
	maxRandomCount     = 50
)

// CatalogHandler 商品目录处理器，所有接口都作用于 Session 中间件注入的浏览会话
type CatalogHandler struct {
	logger *zap.Logger
}

// NewCatalogHandler 创建处理器
func NewCatalogHandler(logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{logger: logger}
}

// ProductListResponse 商品列表响应
type ProductListResponse struct {
	Products []domain.Product `json:"products"`
	Count    int              `json:"count"`
	HasMore  bool             `json:"hasMore"`
	// Error 加载更多失败时的错误信息，已有结果保持不变
	Error string `json:"error,omitempty"`
}

// MetadataResponse 筛选项响应
type MetadataResponse struct {
	Brands     []string `json:"brands"`
	Categories []string `json:"categories"`
}

// ListProducts 按筛选条件获取第一页商品
// GET /api/v1/catalog/products?q=&brand=&categories=a,b
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	req := filterFromQuery(r)
	if err := session.FetchProducts(r.Context(), req, false); err != nil {
		h.writeError(w, r, "list products failed", err)
		return
	}

	resp.OK(w, listResponse(session), middleware.RequestIDFromContext(r.Context()), middleware.TraceIDFromContext(r.Context()))
}

// LoadMore 使用会话中最近一次的筛选条件获取下一页
// POST /api/v1/catalog/products/more
func (h *CatalogHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	// 加载失败不影响已有结果，只在响应中附带本次的错误
	err := session.LoadMore(r.Context())
	out := listResponse(session)
	if err != nil {
		h.logger.Warn("load more failed",
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		out.Error = publicMessage(err)
	}
	resp.OK(w, out, middleware.RequestIDFromContext(r.Context()), middleware.TraceIDFromContext(r.Context()))
}

// GetProduct 获取单个商品
// GET /api/v1/catalog/products/{id}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	id, ok := productIDFromPath(r.URL.Path)
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid product ID", middleware.RequestIDFromContext(r.Context()), "")
		return
	}

	product, err := session.FetchProductByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get product failed", err)
		return
	}
	resp.OK(w, product, middleware.RequestIDFromContext(r.Context()), middleware.TraceIDFromContext(r.Context()))
}

// Related 获取相关商品。brand 与 category 都未提供时使用锚点商品自身的品牌与分类。
// GET /api/v1/catalog/products/{id}/related?brand=&category=
func (h *CatalogHandler) Related(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	id, ok := productIDFromPath(r.URL.Path)
	if !ok {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "invalid product ID", middleware.RequestIDFromContext(r.Context()), "")
		return
	}

	query := r.URL.Query()
	brand := strings.TrimSpace(query.Get("brand"))
	category := strings.TrimSpace(query.Get("category"))
	if brand == "" && category == "" {
		anchor, err := h.anchor(r.Context(), session, id)
		if err != nil {
			h.writeError(w, r, "load related anchor failed", err)
			return
		}
		brand, category = anchor.Brand, anchor.Category
	}

	related, err := session.FetchRelated(r.Context(), id, brand, category)
	if err != nil {
		h.writeError(w, r, "fetch related products failed", err)
		return
	}
	resp.OK(w, related, middleware.RequestIDFromContext(r.Context()), middleware.TraceIDFromContext(r.Context()))
}

// Random 随机抽取商品
// GET /api/v1/catalog/random?count=N
func (h *CatalogHandler) Random(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	count := defaultRandomCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRandomCount {
			resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam,
				"count must be between 1 and "+strconv.Itoa(maxRandomCount), middleware.RequestIDFromContext(r.Context()), "")
			return
		}
		count = n
	}

	sample, err := session.SampleRandom(r.Context(), count)
	if err != nil {
		h.writeError(w, r, "sample random products failed", err)
		return
	}
	resp.OK(w, sample, middleware.RequestIDFromContext(r.Context()), middleware.TraceIDFromContext(r.Context()))
}

// Metadata 获取品牌与分类筛选项，加载失败时返回空列表
// GET /api/v1/catalog/metadata
func (h *CatalogHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	session.EnsureMetadata(r.Context())
	out := MetadataResponse{
		Brands:     nonNil(session.Brands()),
		Categories: nonNil(session.Categories()),
	}
	resp.OK(w, out, middleware.RequestIDFromContext(r.Context()), middleware.TraceIDFromContext(r.Context()))
}

// Home 首页数据
// GET /api/v1/catalog/home
func (h *CatalogHandler) Home(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	home, err := session.FetchHomeData(r.Context())
	if err != nil {
		h.writeError(w, r, "fetch home data failed", err)
		return
	}
	resp.OK(w, home, middleware.RequestIDFromContext(r.Context()), middleware.TraceIDFromContext(r.Context()))
}

func (h *CatalogHandler) session(w http.ResponseWriter, r *http.Request) (*service.CatalogSession, bool) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		reqID := middleware.RequestIDFromContext(r.Context())
		h.logger.Error("catalog session missing from context", zap.String("request_id", reqID))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "session unavailable", reqID, "")
		return nil, false
	}
	return session, true
}

// anchor 优先复用会话中的当前商品
func (h *CatalogHandler) anchor(ctx context.Context, session *service.CatalogSession, id string) (*domain.Product, error) {
	if current := session.CurrentProduct(); current != nil && current.ID == id {
		return current, nil
	}
	return session.FetchProductByID(ctx, id)
}

// writeError 将服务层错误映射为 HTTP 响应
func (h *CatalogHandler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	reqID := middleware.RequestIDFromContext(r.Context())
	traceID := middleware.TraceIDFromContext(r.Context())
	code := errorCode(err)

	fields := []zap.Field{zap.String("request_id", reqID), zap.Int("code", code), zap.Error(err)}
	switch code {
	case resp.CodeNotFound, resp.CodeInvalidParam:
		h.logger.Info(msg, fields...)
	default:
		h.logger.Error(msg, fields...)
	}

	resp.Error(w, resp.HTTPStatusFromCode(code), code, publicMessage(err), reqID, traceID)
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrProductNotFound), errors.Is(err, docstore.ErrNotFound):
		return resp.CodeNotFound
	case errors.Is(err, docstore.ErrUnsupportedQuery):
		return resp.CodeInvalidParam
	case errors.Is(err, context.DeadlineExceeded):
		return resp.CodeTimeout
	case errors.Is(err, docstore.ErrUnavailable):
		return resp.CodeUnavailable
	default:
		return resp.CodeInternalError
	}
}

func publicMessage(err error) string {
	switch errorCode(err) {
	case resp.CodeNotFound:
		return "product not found"
	case resp.CodeInvalidParam:
		return "unsupported filter combination"
	case resp.CodeTimeout:
		return "request timeout"
	case resp.CodeUnavailable:
		return "catalog temporarily unavailable"
	default:
		return "internal server error"
	}
}

func listResponse(session *service.CatalogSession) ProductListResponse {
	products := session.Products()
	if products == nil {
		products = []domain.Product{}
	}
	return ProductListResponse{
		Products: products,
		Count:    len(products),
		HasMore:  session.HasMore(),
	}
}

// filterFromQuery 解析 q、brand、categories（逗号分隔）
func filterFromQuery(r *http.Request) domain.FilterRequest {
	query := r.URL.Query()
	req := domain.FilterRequest{
		Search: strings.TrimSpace(query.Get("q")),
		Brand:  strings.TrimSpace(query.Get("brand")),
	}
	for _, raw := range query["categories"] {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				req.Categories = append(req.Categories, c)
			}
		}
	}
	return req
}

// productIDFromPath 取路径中 products 之后的一段
// /api/v1/catalog/products/{id}[/related]
func productIDFromPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if p == "products" && i+1 < len(parts) {
			id := parts[i+1]
			if id == "" || id == "more" {
				return "", false
			}
			return id, true
		}
	}
	return "", false
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
