package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/prmnaa30/vintage-marketplace/internal/resp"
	"github.com/prmnaa30/vintage-marketplace/internal/service"
)

// HeaderSession 携带目录会话令牌的请求/响应头
const HeaderSession = "X-Catalog-Session"

// Session 目录会话中间件。
// 请求头中的令牌有效且会话仍存在时沿用该会话，否则新建会话；
// 每次响应都在 X-Catalog-Session 中返回重新签发的令牌以延长有效期。
func Session(manager *service.SessionManager, tokens service.SessionTokenService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := RequestIDFromContext(r.Context())

			id, session := resolveSession(r, manager, tokens, logger, reqID)

			token, err := tokens.Issue(id)
			if err != nil {
				logger.Error("failed to issue session token",
					zap.String("request_id", reqID),
					zap.Error(err),
				)
				resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "session unavailable", reqID, TraceIDFromContext(r.Context()))
				return
			}
			w.Header().Set(HeaderSession, token)

			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), id, session)))
		})
	}
}

func resolveSession(r *http.Request, manager *service.SessionManager, tokens service.SessionTokenService, logger *zap.Logger, reqID string) (string, *service.CatalogSession) {
	raw := strings.TrimSpace(r.Header.Get(HeaderSession))
	if raw != "" {
		claims, err := tokens.Validate(raw)
		if err == nil {
			if session, err := manager.Get(claims.SessionID); err == nil {
				return claims.SessionID, session
			}
			logger.Debug("catalog session expired, opening a new one",
				zap.String("request_id", reqID),
				zap.String("session_id", claims.SessionID),
			)
		} else {
			logger.Debug("invalid session token, opening a new session",
				zap.String("request_id", reqID),
				zap.Error(err),
			)
		}
	}
	return manager.Open()
}
