package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/domain"
	"github.com/MorseWayne/fridge_shop/internal/limiter"
	"github.com/MorseWayne/fridge_shop/internal/metrics"
	"github.com/MorseWayne/fridge_shop/internal/repo"
)

// 认证网关对外的错误
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("too many attempts")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
)

// RateLimitError 登录被限流，携带重试等待时间
type RateLimitError struct {
	Result *limiter.LimitResult
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.RetryAfter())
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfter 距离下一次补充的时间
func (e *RateLimitError) RetryAfter() time.Duration {
	if e.Result == nil {
		return 0
	}
	return e.Result.RetryAfter
}

// LoginResult 登录成功的结果
type LoginResult struct {
	User      *domain.User
	Tokens    *TokenPair
	RateLimit *limiter.LimitResult
}

// RefreshResult 刷新只返回新的访问令牌
type RefreshResult struct {
	AccessToken string
	ExpiresIn   int64
}

// AuthService 认证网关
type AuthService interface {
	Login(ctx context.Context, email, password, clientKey string) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error)
	// Logout 吊销访问令牌，refreshToken 非空时一并吊销
	Logout(ctx context.Context, accessToken, refreshToken string) error
	// Authenticate 从访问令牌还原主体，不查询用户存储
	Authenticate(ctx context.Context, token string) (*domain.Identity, error)
}

type authService struct {
	users   repo.UserRepository
	hasher  PasswordHasher
	tokens  TokenService
	limiter limiter.Limiter
	logger  *zap.Logger

	// dummyHash 邮箱不存在时也做一次校验，使响应耗时与密码错误一致
	dummyHash string
}

// NewAuthService 创建认证网关
func NewAuthService(users repo.UserRepository, hasher PasswordHasher, tokens TokenService, lim limiter.Limiter, logger *zap.Logger) (AuthService, error) {
	dummy, err := hasher.Hash("fridge-shop-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &authService{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		limiter:   lim,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

// Login 先限流，再校验凭证，成功后签发令牌对
func (s *authService) Login(ctx context.Context, email, password, clientKey string) (*LoginResult, error) {
	res, err := s.limiter.Allow(ctx, clientKey)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		s.logger.Error("rate limiter unavailable", zap.Error(err))
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !res.Allowed {
		metrics.LoginAttemptsTotal.WithLabelValues("rate_limited").Inc()
		s.logger.Warn("login rate limited",
			zap.String("client", clientKey),
			zap.Duration("retry_after", res.RetryAfter),
		)
		return nil, &RateLimitError{Result: res}
	}

	user, err := s.verifyCredentials(ctx, domain.NormalizeEmail(email), password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			s.logger.Warn("login failed", zap.String("client", clientKey))
		} else {
			metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	pair, err := s.tokens.IssueTokenPair(user)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.logger.Info("user logged in", zap.Int64("user_id", user.ID), zap.String("client", clientKey))
	return &LoginResult{User: user, Tokens: pair, RateLimit: res}, nil
}

// verifyCredentials 邮箱不存在、账号停用、密码错误都返回同一个错误
func (s *authService) verifyCredentials(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		s.logger.Error("failed to load user", zap.Error(err))
		return nil, fmt.Errorf("get user: %w", err)
	}

	hash := s.dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	ok, err := s.hasher.Verify(password, hash)
	if err != nil {
		s.logger.Error("stored password hash is malformed", zap.Error(err))
		return nil, err
	}
	if user == nil || !ok || !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Refresh 校验刷新令牌后按存储中的最新用户信息签发访问令牌
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.tokens.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || !user.IsActive {
		metrics.TokenRefreshTotal.WithLabelValues("rejected").Inc()
		s.logger.Warn("refresh for missing or inactive user", zap.Int64("user_id", claims.UserID))
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrInvalidToken)
	}

	access, _, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	metrics.TokenRefreshTotal.WithLabelValues("success").Inc()
	return &RefreshResult{
		AccessToken: access,
		ExpiresIn:   int64(s.tokens.AccessTokenTTL() / time.Second),
	}, nil
}

// Logout 对未知、无效或已吊销的令牌静默成功，只有名单写入失败才报错
func (s *authService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	var errs []error
	for _, tok := range []string{accessToken, refreshToken} {
		if tok == "" {
			continue
		}
		if err := s.tokens.Revoke(ctx, tok); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *authService) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	claims, err := s.tokens.ValidateAccessToken(ctx, token)
	if err != nil {
		metrics.AuthFailuresTotal.WithLabelValues(authFailureReason(err)).Inc()
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return claims.Identity(), nil
}

func authFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, ErrTokenBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrInvalidToken):
		return "invalid"
	default:
		return "error"
	}
}
