package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/domain"
	"github.com/MorseWayne/fridge_shop/internal/limiter"
	"github.com/MorseWayne/fridge_shop/internal/middleware"
	"github.com/MorseWayne/fridge_shop/internal/resp"
	"github.com/MorseWayne/fridge_shop/internal/service"
)

// AuthHandler 登录、刷新、登出
type AuthHandler struct {
	auth       service.AuthService
	trustProxy bool
	logger     *zap.Logger
}

// NewAuthHandler 创建认证处理器；trustProxy 为 true 时按 X-Forwarded-For 识别客户端
func NewAuthHandler(auth service.AuthService, trustProxy bool, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, trustProxy: trustProxy, logger: logger}
}

// Login 处理用户登录请求
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.LoginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password, limiter.ClientKey(r, h.trustProxy))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	limiter.SetHeaders(w, res.RateLimit)
	resp.OK(w, &domain.LoginResponse{
		User:         res.User,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    res.Tokens.ExpiresIn,
	}, reqID, "")
}

// Refresh 用刷新令牌换取新的访问令牌
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.RefreshTokenRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.RefreshToken == "" {
		resp.Error(w, http.StatusBadRequest, resp.CodeInvalidParam, "refresh_token is required", reqID, "")
		return
	}

	res, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp.OK(w, &domain.RefreshTokenResponse{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   res.ExpiresIn,
	}, reqID, "")
}

// Logout 吊销当前访问令牌，请求体中带了刷新令牌时一并吊销
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.LogoutRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	access, _ := middleware.BearerToken(r)

	if err := h.auth.Logout(r.Context(), access, req.RefreshToken); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp.OK(w, map[string]bool{"logged_out": true}, reqID, "")
}
