// Package resp 定义统一的 HTTP JSON 响应信封。
package resp

import (
	"encoding/json"
	"net/http"
)

// 业务错误码，0 表示成功
const (
	CodeOK           = 0
	CodeInvalidParam = 40000
	// 订单与库存相关的业务失败，HTTP 层统一按 400 返回
	CodeIllegalTransition = 40001
	CodeOutOfStock        = 40002
	CodeProductInactive   = 40003
	CodeUnauthorized      = 40100
	CodeForbidden         = 40300
	CodeNotFound          = 40400
	CodeConflict          = 40900
	CodeRateLimited       = 42900
	CodeInternalError     = 50000
	CodeTimeout           = 50400
)

// Response 统一响应结构
type Response[T any] struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      T      `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// HTTPStatusFromCode 将业务错误码映射为 HTTP 状态码
func HTTPStatusFromCode(code int) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidParam, CodeIllegalTransition, CodeOutOfStock, CodeProductInactive:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON 写出完整的响应信封
func WriteJSON[T any](w http.ResponseWriter, status, code int, msg string, data T, reqID, traceID string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if reqID != "" {
		w.Header().Set("X-Request-ID", reqID)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response[T]{
		Code:      code,
		Message:   msg,
		Data:      data,
		RequestID: reqID,
		TraceID:   traceID,
	})
}

// OK 返回成功响应
func OK[T any](w http.ResponseWriter, data T, reqID, traceID string) {
	WriteJSON(w, http.StatusOK, CodeOK, "success", data, reqID, traceID)
}

// Created 返回 201 响应
func Created[T any](w http.ResponseWriter, data T, reqID, traceID string) {
	WriteJSON(w, http.StatusCreated, CodeOK, "created", data, reqID, traceID)
}

// Error 返回错误响应，data 为空
func Error(w http.ResponseWriter, status, code int, msg, reqID, traceID string) {
	WriteJSON[any](w, status, code, msg, nil, reqID, traceID)
}
