// Package service 提供业务逻辑层实现。
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/config"
	"github.com/MorseWayne/fridge_shop/internal/domain"
	"github.com/MorseWayne/fridge_shop/internal/metrics"
	"github.com/MorseWayne/fridge_shop/internal/repo"
)

// 令牌校验失败的类型
var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenBadSignature = errors.New("token signature invalid")
	ErrTokenRevoked      = errors.New("token revoked")
)

// TokenType 区分访问令牌和刷新令牌
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// RoleList 是令牌中的角色声明。
// 声明缺失、格式错误或包含未知角色时，对应部分按无角色处理。
type RoleList []domain.UserRole

// UnmarshalJSON 解析失败不报错，只是得到空角色集
func (l *RoleList) UnmarshalJSON(b []byte) error {
	var raw []string
	if err := json.Unmarshal(b, &raw); err != nil {
		*l = nil
		return nil
	}
	out := make(RoleList, 0, len(raw))
	for _, s := range raw {
		if r, ok := domain.ParseUserRole(s); ok {
			out = append(out, r)
		}
	}
	*l = out
	return nil
}

// Claims 定义JWT载荷结构
type Claims struct {
	UserID int64     `json:"uid"`
	Email  string    `json:"email"`
	Roles  RoleList  `json:"roles,omitempty"`
	Type   TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Identity 把声明转换为已认证主体
func (c *Claims) Identity() *domain.Identity {
	return &domain.Identity{
		UserID: c.UserID,
		Email:  c.Email,
		Roles:  append([]domain.UserRole(nil), c.Roles...),
	}
}

// TokenPair 表示访问令牌和刷新令牌对
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	// ExpiresIn 访问令牌剩余秒数
	ExpiresIn int64 `json:"expires_in"`
}

// TokenService 负责令牌签发、校验与吊销
type TokenService interface {
	IssueAccessToken(user *domain.User) (string, *Claims, error)
	IssueRefreshToken(user *domain.User) (string, *Claims, error)
	IssueTokenPair(user *domain.User) (*TokenPair, error)
	// ParseAndVerify 校验签名、过期与吊销状态，不限令牌类型
	ParseAndVerify(ctx context.Context, token string) (*Claims, error)
	ValidateAccessToken(ctx context.Context, token string) (*Claims, error)
	ValidateRefreshToken(ctx context.Context, token string) (*Claims, error)
	// Revoke 幂等；无法解析或已过期的令牌直接忽略
	Revoke(ctx context.Context, token string) error
	AccessTokenTTL() time.Duration
}

// TokenOption 配置 TokenService
type TokenOption func(*tokenService)

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) TokenOption {
	return func(s *tokenService) { s.now = now }
}

type tokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	blacklist  repo.TokenBlacklistRepository
	logger     *zap.Logger
	now        func() time.Time
}

// NewTokenService 创建令牌服务
func NewTokenService(cfg config.JWTConfig, blacklist repo.TokenBlacklistRepository, logger *zap.Logger, opts ...TokenOption) TokenService {
	s := &tokenService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		blacklist:  blacklist,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *tokenService) AccessTokenTTL() time.Duration { return s.accessTTL }

func (s *tokenService) IssueAccessToken(user *domain.User) (string, *Claims, error) {
	return s.issue(user, TokenTypeAccess, s.accessTTL)
}

func (s *tokenService) IssueRefreshToken(user *domain.User) (string, *Claims, error) {
	return s.issue(user, TokenTypeRefresh, s.refreshTTL)
}

// IssueTokenPair 为用户生成访问令牌和刷新令牌对
func (s *tokenService) IssueTokenPair(user *domain.User) (*TokenPair, error) {
	access, _, err := s.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.IssueRefreshToken(user)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

func (s *tokenService) issue(user *domain.User, typ TokenType, ttl time.Duration) (string, *Claims, error) {
	if user == nil {
		return "", nil, fmt.Errorf("issue %s token: nil user", typ)
	}
	now := s.now()
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Roles:  RoleList(user.Roles()),
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		s.logger.Error("failed to sign token", zap.String("type", string(typ)), zap.Error(err))
		return "", nil, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, claims, nil
}

// ParseAndVerify 先查吊销名单，再校验签名和过期时间
func (s *tokenService) ParseAndVerify(ctx context.Context, token string) (*Claims, error) {
	revoked, err := s.blacklist.Contains(ctx, Fingerprint(token))
	if err != nil {
		// 名单不可用时拒绝，不放行
		s.logger.Error("revocation lookup failed", zap.Error(err))
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return s.parse(token)
}

func (s *tokenService) ValidateAccessToken(ctx context.Context, token string) (*Claims, error) {
	return s.validate(ctx, token, TokenTypeAccess)
}

func (s *tokenService) ValidateRefreshToken(ctx context.Context, token string) (*Claims, error) {
	return s.validate(ctx, token, TokenTypeRefresh)
}

func (s *tokenService) validate(ctx context.Context, token string, expected TokenType) (*Claims, error) {
	claims, err := s.ParseAndVerify(ctx, token)
	if err != nil {
		return nil, err
	}
	if claims.Type != expected {
		s.logger.Warn("token type mismatch",
			zap.String("expected", string(expected)),
			zap.String("actual", string(claims.Type)),
		)
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// parse 只做签名与声明校验，不查吊销名单
func (s *tokenService) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrInvalidToken
	}
}

// Revoke 把令牌指纹写入吊销名单，有效期截至令牌过期
func (s *tokenService) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		// 本来就会被拒绝的令牌不必登记
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.blacklist.Add(ctx, Fingerprint(token), ttl); err != nil {
		s.logger.Error("failed to revoke token", zap.Error(err))
		return fmt.Errorf("revoke token: %w", err)
	}
	metrics.TokensRevokedTotal.Inc()
	s.logger.Info("token revoked",
		zap.Int64("user_id", claims.UserID),
		zap.String("type", string(claims.Type)),
		zap.String("jti", claims.ID),
	)
	return nil
}

// Fingerprint 吊销名单只保存令牌的 sha256 摘要
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
