package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/cache"
	"github.com/MorseWayne/fridge_shop/internal/resp"
)

// HeaderIdempotencyKey 客户端重试时携带的幂等键
const HeaderIdempotencyKey = "X-Idempotency-Key"

// HeaderIdempotentReplay 标记响应来自幂等缓存
const HeaderIdempotentReplay = "Idempotent-Replayed"

// IdempotencyConfig 幂等性中间件配置
type IdempotencyConfig struct {
	// 跳过的方法
	SkipMethods []string
	// 处理中占位的过期时间，防止处理器崩溃后键永久占用
	LockTTL time.Duration
	// 完成后响应的保留时间
	CacheTTL  time.Duration
	KeyPrefix string
}

// DefaultIdempotencyConfig 默认幂等性配置
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		SkipMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		LockTTL:     30 * time.Second,
		CacheTTL:    24 * time.Hour,
		KeyPrefix:   "idem:",
	}
}

// idempotencyRecord 缓存中的记录。Done 为 false 表示仍在处理。
type idempotencyRecord struct {
	Done        bool   `json:"done"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency 带幂等键的写请求只执行一次：
// 首个请求占位并执行，完成后缓存响应；重复请求直接重放缓存的响应，
// 首个请求尚未完成时返回 409。5xx 响应不缓存，允许客户端重试。
// 没有幂等键的请求原样放行。
func Idempotency(c cache.Cache, cfg IdempotencyConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idemKey := r.Header.Get(HeaderIdempotencyKey)
			if idemKey == "" || slices.Contains(cfg.SkipMethods, r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			reqID := RequestIDFromContext(ctx)
			key := cfg.KeyPrefix + idempotencyFingerprint(r, idemKey)

			acquired, err := c.SetNX(ctx, key, idempotencyRecord{}, cfg.LockTTL)
			if err != nil {
				logger.Error("idempotency store unavailable", zap.String("request_id", reqID), zap.Error(err))
				resp.Error(w, http.StatusInternalServerError, resp.CodeInternalError, "internal server error", reqID, "")
				return
			}
			if !acquired {
				var rec idempotencyRecord
				if err := c.Get(ctx, key, &rec); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
					logger.Error("idempotency lookup failed", zap.String("request_id", reqID), zap.Error(err))
				}
				if !rec.Done {
					resp.Error(w, http.StatusConflict, resp.CodeConflict, "request with this idempotency key is in progress", reqID, "")
					return
				}
				if rec.ContentType != "" {
					w.Header().Set("Content-Type", rec.ContentType)
				}
				w.Header().Set(HeaderIdempotentReplay, "true")
				w.WriteHeader(rec.Status)
				w.Write(rec.Body)
				return
			}

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusInternalServerError {
				if err := c.Del(ctx, key); err != nil {
					logger.Warn("failed to release idempotency key", zap.String("request_id", reqID), zap.Error(err))
				}
				return
			}
			done := idempotencyRecord{
				Done:        true,
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}
			if err := c.Set(ctx, key, done, cfg.CacheTTL); err != nil {
				logger.Warn("failed to store idempotent response", zap.String("request_id", reqID), zap.Error(err))
			}
		})
	}
}

// idempotencyFingerprint 幂等键按方法、路径和调用者区分
func idempotencyFingerprint(r *http.Request, idemKey string) string {
	caller := ""
	if id := IdentityFromContext(r.Context()); id != nil {
		caller = strconv.FormatInt(id.UserID, 10)
	}
	sum := sha256.Sum256([]byte(r.Method + "\n" + r.URL.Path + "\n" + caller + "\n" + idemKey))
	return hex.EncodeToString(sum[:])
}

// recordingWriter 边写边记录响应
type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (w *recordingWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}
