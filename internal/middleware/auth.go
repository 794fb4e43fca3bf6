package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/domain"
	"github.com/MorseWayne/fridge_shop/internal/resp"
	"github.com/MorseWayne/fridge_shop/internal/service"
)

// Authenticator 从访问令牌还原主体，由 service.AuthService 实现
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Identity, error)
}

// BearerToken 提取 Authorization: Bearer 后的令牌，没有时返回 false
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}

// Authenticate 作用于所有路由的认证过滤器。
// 没有 bearer 令牌时以匿名身份放行，由后续的路由守卫决定；
// 带了令牌但无效、过期或已吊销时立即返回 401。
// lenientPaths 中的路径遇到无效令牌时按匿名放行，登出接口需要接受已吊销的令牌。
func Authenticate(auth Authenticator, logger *zap.Logger, lenientPaths ...string) func(http.Handler) http.Handler {
	lenient := make(map[string]struct{}, len(lenientPaths))
	for _, p := range lenientPaths {
		lenient[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			reqID := RequestIDFromContext(r.Context())
			id, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if _, ok := lenient[r.URL.Path]; ok {
					next.ServeHTTP(w, r)
					return
				}
				logger.Warn("token rejected", zap.String("request_id", reqID), zap.Error(err))
				resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, tokenErrorMessage(err), reqID, "")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func tokenErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, service.ErrTokenRevoked):
		return "token revoked"
	default:
		return "invalid token"
	}
}

// RequireAuth 要求请求已认证
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()) == nil {
			resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "authentication required", RequestIDFromContext(r.Context()), "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole 角色授权中间件：未认证 401，角色不符 403
func RequireRole(role domain.UserRole, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := RequestIDFromContext(r.Context())
			id := IdentityFromContext(r.Context())
			if id == nil {
				resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "authentication required", reqID, "")
				return
			}
			if !id.HasRole(role) {
				logger.Warn("insufficient permissions",
					zap.String("request_id", reqID),
					zap.Int64("user_id", id.UserID),
					zap.String("required_role", string(role)),
				)
				resp.Error(w, http.StatusForbidden, resp.CodeForbidden, "insufficient permissions", reqID, "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin 是 RequireRole(ADMIN) 的便捷包装
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRole(domain.UserRoleAdmin, logger)
}
