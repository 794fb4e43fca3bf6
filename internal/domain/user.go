// Package domain 定义业务领域模型和核心业务规则。
// 领域模型是业务逻辑的核心，独立于外部依赖（数据库、HTTP等）。
package domain

import (
	"strings"
	"time"
)

// UserRole 定义用户角色类型，取值为封闭集合
type UserRole string

const (
	UserRoleUser  UserRole = "USER"  // 普通用户
	UserRoleAdmin UserRole = "ADMIN" // 管理员
)

// Valid 判断角色是否属于已知集合
func (r UserRole) Valid() bool {
	return r == UserRoleUser || r == UserRoleAdmin
}

// ParseUserRole 解析角色字符串，大小写不敏感，兼容 ROLE_ 前缀
func ParseUserRole(s string) (UserRole, bool) {
	s = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "ROLE_")
	r := UserRole(s)
	return r, r.Valid()
}

// User 表示用户领域模型
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // JSON序列化时忽略密码哈希
	Role         UserRole  `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin 判断用户是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// Roles 返回写入令牌的角色集合
func (u *User) Roles() []UserRole {
	return []UserRole{u.Role}
}

// NormalizeEmail 统一邮箱格式，邮箱唯一性按小写比较
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Identity 是从访问令牌中还原出的已认证主体。
// 角色取自令牌本身，不回查存储，因此角色变更要到下一次签发令牌才生效。
type Identity struct {
	UserID int64      `json:"user_id"`
	Email  string     `json:"email"`
	Roles  []UserRole `json:"roles"`
}

// HasRole 判断主体是否拥有指定角色
func (i *Identity) HasRole(role UserRole) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// LoginRequest 表示用户登录请求
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate 校验登录请求
func (r *LoginRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" || r.Password == "" {
		return NewValidationError("email and password are required")
	}
	return nil
}

// LoginResponse 表示登录成功的响应
type LoginResponse struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshTokenRequest 表示刷新令牌请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshTokenResponse 刷新只签发新的访问令牌，刷新令牌原样沿用
type RefreshTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// LogoutRequest 登出时可顺带吊销刷新令牌
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}
