package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/domain"
	"github.com/MorseWayne/fridge_shop/internal/middleware"
	"github.com/MorseWayne/fridge_shop/internal/resp"
	"github.com/MorseWayne/fridge_shop/internal/service"
)

// UserHandler 用户相关的HTTP处理器
type UserHandler struct {
	users  service.UserService
	logger *zap.Logger
}

// NewUserHandler 创建用户处理器实例
func NewUserHandler(users service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// ProfileResponse 当前主体及其存储中的资料。
// Roles 取自令牌，User.Role 取自存储，两者在令牌重新签发前可能不一致。
type ProfileResponse struct {
	Identity *domain.Identity `json:"identity"`
	User     *domain.User     `json:"user"`
}

// Profile 返回当前登录用户的资料
// GET /api/v1/users/profile
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	id := middleware.IdentityFromContext(r.Context())
	if id == nil {
		resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "authentication required", reqID, "")
		return
	}

	user, err := h.users.GetUserByID(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp.OK(w, &ProfileResponse{Identity: id, User: user}, reqID, "")
}
