package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/domain"
	"github.com/MorseWayne/fridge_shop/internal/repo"
)

// ErrUserNotFound 用户不存在
var ErrUserNotFound = errors.New("user not found")

// UserService 定义用户服务接口
type UserService interface {
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	// EnsureAdmin 启动时写入管理员：不存在则创建，存在则重置口令并提升为管理员
	EnsureAdmin(ctx context.Context, email, password, username string) (*domain.User, error)
}

// userService 是 UserService 接口的实现
type userService struct {
	users  repo.UserRepository
	hasher PasswordHasher
	logger *zap.Logger
}

// NewUserService 创建用户服务实例
func NewUserService(users repo.UserRepository, hasher PasswordHasher, logger *zap.Logger) UserService {
	return &userService{users: users, hasher: hasher, logger: logger}
}

func (s *userService) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w: %w", id, ErrUserNotFound, domain.ErrNotFound)
	}
	return user, nil
}

func (s *userService) EnsureAdmin(ctx context.Context, email, password, username string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.NewValidationError("admin email and password are required")
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	if existing != nil {
		if err := s.users.UpdatePassword(ctx, existing.ID, hash); err != nil {
			return nil, fmt.Errorf("reset admin password: %w", err)
		}
		if existing.Role != domain.UserRoleAdmin {
			if err := s.users.UpdateRole(ctx, existing.ID, domain.UserRoleAdmin); err != nil {
				return nil, fmt.Errorf("promote admin: %w", err)
			}
		}
		s.logger.Info("admin account refreshed", zap.Int64("user_id", existing.ID))
		return s.GetUserByID(ctx, existing.ID)
	}

	if username == "" {
		username = "admin"
	}
	admin := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.UserRoleAdmin,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	s.logger.Info("admin account created", zap.Int64("user_id", admin.ID))
	return admin, nil
}
