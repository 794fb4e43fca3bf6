// Package middleware 提供 HTTP 中间件：请求 ID、恢复、超时、CORS、访问日志、认证等。
package middleware

import (
	"context"

	"github.com/MorseWayne/fridge_shop/internal/domain"
)

// contextKey 用于在上下文中存取特定键，避免与外部键冲突。
type contextKey string

// 约定的上下文键集合。
const (
	contextKeyRequestID contextKey = "request_id"
	contextKeyIdentity  contextKey = "identity"
)

// withRequestID 将请求 ID 写入上下文。
func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}

// RequestIDFromContext 从上下文中读取请求 ID（可能为空）。
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(contextKeyRequestID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithIdentity 将已认证主体写入上下文。
func WithIdentity(ctx context.Context, id *domain.Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, id)
}

// IdentityFromContext 读取已认证主体，未认证时返回 nil。
func IdentityFromContext(ctx context.Context) *domain.Identity {
	id, _ := ctx.Value(contextKeyIdentity).(*domain.Identity)
	return id
}
