package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/MorseWayne/fridge_shop/internal/cache"
)

// TokenBlacklistRepository 令牌吊销名单。
// 条目以令牌指纹为键，TTL 等于令牌剩余有效期，令牌自然过期后条目随之消失。
type TokenBlacklistRepository interface {
	Add(ctx context.Context, fingerprint string, ttl time.Duration) error
	Contains(ctx context.Context, fingerprint string) (bool, error)
}

const blacklistKeyPrefix = "revoked:"

// cacheTokenBlacklist 基于 cache.Cache 的吊销名单，内存或 Redis 由注入的缓存决定
type cacheTokenBlacklist struct {
	cache cache.Cache
}

// NewTokenBlacklistRepository 创建吊销名单仓储
func NewTokenBlacklistRepository(c cache.Cache) TokenBlacklistRepository {
	return &cacheTokenBlacklist{cache: c}
}

// Add 写入指纹，ttl<=0 说明令牌已过期，无需记录
func (r *cacheTokenBlacklist) Add(ctx context.Context, fingerprint string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.cache.Set(ctx, blacklistKeyPrefix+fingerprint, time.Now().Add(ttl).Unix(), ttl); err != nil {
		return fmt.Errorf("add token to blacklist: %w", err)
	}
	return nil
}

// Contains 判断指纹是否已被吊销
func (r *cacheTokenBlacklist) Contains(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := r.cache.Exists(ctx, blacklistKeyPrefix+fingerprint)
	if err != nil {
		return false, fmt.Errorf("check token blacklist: %w", err)
	}
	return ok, nil
}
