// Package resp 提供统一的 JSON 响应封装。
package resp

import (
	"encoding/json"
	"net/http"
)

// 业务错误码，0 表示成功。
const (
	CodeOK              = 0
	CodeInvalidParam    = 40001
	CodeNotFound        = 40401
	CodeTooManyRequests = 42901
	CodeInternalError   = 50001
	CodeUnavailable     = 50301
	CodeTimeout         = 50401
)

// Response 统一响应结构
type Response struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// OK 写入成功响应
func OK(w http.ResponseWriter, data any, reqID, traceID string) {
	write(w, http.StatusOK, Response{
		Code:      CodeOK,
		Message:   "ok",
		Data:      data,
		RequestID: reqID,
		TraceID:   traceID,
	})
}

// Error 写入错误响应
func Error(w http.ResponseWriter, httpStatus, code int, msg, reqID, traceID string) {
	write(w, httpStatus, Response{
		Code:      code,
		Message:   msg,
		RequestID: reqID,
		TraceID:   traceID,
	})
}

// HTTPStatusFromCode 将业务错误码映射为 HTTP 状态码
func HTTPStatusFromCode(code int) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func write(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
