// Package router 提供 HTTP 路由设置和中间件配置功能
package router

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/api"
	"github.com/MorseWayne/fridge_shop/internal/cache"
	"github.com/MorseWayne/fridge_shop/internal/config"
	"github.com/MorseWayne/fridge_shop/internal/metrics"
	"github.com/MorseWayne/fridge_shop/internal/middleware"
	"github.com/MorseWayne/fridge_shop/internal/resp"
)

// Dependencies 包含路由设置所需的所有依赖
type Dependencies struct {
	AuthHandler    *api.AuthHandler
	UserHandler    *api.UserHandler
	ProductHandler *api.ProductHandler
	OrderHandler   *api.OrderHandler
	Authenticator  middleware.Authenticator
	// Cache 用于下单幂等键
	Cache cache.Cache
	// Health 健康检查探针，返回错误时 /healthz 报 503
	Health func(ctx context.Context) error
}

const logoutPath = "/api/v1/auth/logout"

// Router 路由器接口
type Router interface {
	Setup(cfg *config.Config, deps *Dependencies, lg *zap.Logger) http.Handler
}

type muxRouter struct {
	mux    *http.ServeMux
	cfg    *config.Config
	deps   *Dependencies
	logger *zap.Logger
}

// New 创建新的路由器实例
func New() Router {
	return &muxRouter{}
}

// Setup 设置路由和中间件，返回完整的处理链
func (r *muxRouter) Setup(cfg *config.Config, deps *Dependencies, lg *zap.Logger) http.Handler {
	r.mux = http.NewServeMux()
	r.cfg = cfg
	r.deps = deps
	r.logger = lg

	r.setupRoutes()

	// 由外到内：请求 ID → 恢复 → 超时 → CORS → 访问日志 → 认证过滤器 → 路由
	var h http.Handler = r.mux
	h = middleware.Authenticate(deps.Authenticator, lg, logoutPath)(h)
	h = middleware.AccessLog(lg)(h)
	h = middleware.CORS(cfg.CORS)(h)
	h = middleware.Timeout(cfg.App.RequestTimeout)(h)
	h = middleware.Recovery(lg)(h)
	h = middleware.RequestID(h)
	return h
}

// handle 注册路由并按路由模板记录指标
func (r *muxRouter) handle(pattern string, h http.Handler, mws ...func(http.Handler) http.Handler) {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	r.mux.Handle(pattern, middleware.Metrics(pattern)(h))
}

// setupRoutes 设置所有路由
func (r *muxRouter) setupRoutes() {
	d := r.deps
	admin := middleware.RequireAdmin(r.logger)
	idem := middleware.Idempotency(d.Cache, middleware.DefaultIdempotencyConfig(), r.logger)

	r.handle("GET /healthz", http.HandlerFunc(r.healthCheck))
	r.mux.Handle("GET /metrics", metrics.Handler())

	// 认证路由；登录限流在认证网关内完成
	r.handle("POST /api/v1/auth/login", http.HandlerFunc(d.AuthHandler.Login))
	r.handle("POST /api/v1/auth/refresh", http.HandlerFunc(d.AuthHandler.Refresh))
	r.handle("POST "+logoutPath, http.HandlerFunc(d.AuthHandler.Logout))

	// 用户路由（需要认证）
	r.handle("GET /api/v1/users/profile", http.HandlerFunc(d.UserHandler.Profile), middleware.RequireAuth)

	// 商品路由（公开）
	r.handle("GET /api/v1/products", http.HandlerFunc(d.ProductHandler.List))
	r.handle("GET /api/v1/products/{id}", http.HandlerFunc(d.ProductHandler.Get))

	// 订单路由（柜机匿名下单）
	r.handle("POST /api/v1/orders", http.HandlerFunc(d.OrderHandler.Create), idem)
	r.handle("GET /api/v1/orders/{id}", http.HandlerFunc(d.OrderHandler.Get))

	// 管理员路由（需要认证+管理员权限）
	r.handle("GET /api/v1/admin/orders", http.HandlerFunc(d.OrderHandler.List), admin)
	r.handle("GET /api/v1/admin/orders/stats", http.HandlerFunc(d.OrderHandler.Stats), admin)
	r.handle("PUT /api/v1/admin/orders/{id}", http.HandlerFunc(d.OrderHandler.Transition), admin)
	r.handle("GET /api/v1/admin/products", http.HandlerFunc(d.ProductHandler.AdminList), admin)
	r.handle("POST /api/v1/admin/products", http.HandlerFunc(d.ProductHandler.Create), admin)
	r.handle("PUT /api/v1/admin/products/{id}", http.HandlerFunc(d.ProductHandler.Update), admin)
}

// healthCheck 健康检查处理器
func (r *muxRouter) healthCheck(w http.ResponseWriter, req *http.Request) {
	reqID := middleware.RequestIDFromContext(req.Context())
	if r.deps.Health != nil {
		if err := r.deps.Health(req.Context()); err != nil {
			r.logger.Warn("health check failed", zap.Error(err))
			resp.Error(w, http.StatusServiceUnavailable, resp.CodeInternalError, "unhealthy", reqID, "")
			return
		}
	}
	resp.OK(w, map[string]string{
		"status":  "ok",
		"version": r.cfg.App.Version,
	}, reqID, "")
}
