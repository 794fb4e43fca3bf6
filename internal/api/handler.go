// Package api 提供HTTP API处理器实现。
// API层负责处理HTTP请求/响应，进行数据验证和格式转换。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/domain"
	"github.com/MorseWayne/fridge_shop/internal/limiter"
	"github.com/MorseWayne/fridge_shop/internal/middleware"
	"github.com/MorseWayne/fridge_shop/internal/resp"
	"github.com/MorseWayne/fridge_shop/internal/service"
)

const maxBodyBytes = 1 << 20

// decodeJSON 解析请求体；allowEmpty 为 true 时空请求体不算错误
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return domain.NewValidationError("invalid request body")
	}
	return nil
}

// pathID 读取路径参数中的正整数 ID
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("invalid %s", name)
	}
	return id, nil
}

// queryInt 读取整数查询参数，缺省或非法时返回 def
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

// writeError 把业务错误翻译为统一的错误响应，未知错误只返回通用信息
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var rl *service.RateLimitError
	if errors.As(err, &rl) {
		limiter.SetHeaders(w, rl.Result)
		data := map[string]int{"retry_after": limiter.RetryAfterSeconds(rl.Result)}
		resp.WriteJSON(w, http.StatusTooManyRequests, resp.CodeRateLimited, "too many attempts, try again later", data, reqID, "")
		return
	}

	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, ve.Msg, reqID, "")
	case errors.Is(err, domain.ErrIllegalTransition):
		var te *domain.TransitionError
		msg := "illegal order transition"
		if errors.As(err, &te) {
			msg = te.Error()
		}
		resp.Error(w, http.StatusBadRequest, resp.CodeIllegalTransition, msg, reqID, "")
	case errors.Is(err, domain.ErrOutOfStock):
		resp.Error(w, http.StatusBadRequest, resp.CodeOutOfStock, "product is out of stock", reqID, "")
	case errors.Is(err, domain.ErrProductInactive):
		resp.Error(w, http.StatusBadRequest, resp.CodeProductInactive, "product is not available", reqID, "")
	case errors.Is(err, domain.ErrNotFound):
		resp.Error(w, http.StatusNotFound, resp.CodeNotFound, "resource not found", reqID, "")
	case errors.Is(err, domain.ErrConflict):
		resp.Error(w, http.StatusConflict, resp.CodeConflict, "resource was modified concurrently, retry", reqID, "")
	case errors.Is(err, service.ErrInvalidCredentials):
		resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "invalid email or password", reqID, "")
	case errors.Is(err, service.ErrUnauthenticated):
		resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "invalid or expired token", reqID, "")
	case errors.Is(err, service.ErrForbidden):
		resp.Error(w, http.StatusForbidden, resp.CodeForbidden, "insufficient permissions", reqID, "")
	case errors.Is(err, context.DeadlineExceeded):
		resp.Error(w, resp.HTTPStatusFromCode(resp.CodeTimeout), resp.CodeTimeout, "request timeout", reqID, "")
	default:
		logger.Error("request failed", zap.String("request_id", reqID), zap.String("path", r.URL.Path), zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "internal server error", reqID, "")
	}
}
