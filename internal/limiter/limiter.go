// Package limiter 提供按 key 的令牌桶限流，用于保护登录等敏感接口。
//
// 桶采用周期性整桶补充：每个 key 初始有 Capacity 个令牌，每经过一个 Window
// 就恢复到满桶。因此同一个 key 在任意一个固定窗口内最多成功 Capacity 次。
// 拒绝的请求不修改桶状态，调用方立即得到结果，不会阻塞等待。
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LimitResult 限流结果
type LimitResult struct {
	Allowed    bool          `json:"allowed"`     // 是否允许通过
	Limit      int64         `json:"limit"`       // 桶容量
	Remaining  int64         `json:"remaining"`   // 剩余令牌
	RetryAfter time.Duration `json:"retry_after"` // 被拒绝时距离下次补充的时间
}

// Limiter 限流器接口
type Limiter interface {
	// Allow 尝试消费一个令牌
	Allow(ctx context.Context, key string) (*LimitResult, error)

	// AllowN 尝试原子地消费 n 个令牌，不足时拒绝且不扣减
	AllowN(ctx context.Context, key string, n int64) (*LimitResult, error)

	// Reset 丢弃 key 的桶，下次访问时重新以满桶创建
	Reset(ctx context.Context, key string) error

	// GetInfo 查看 key 当前状态，不消费令牌也不创建桶
	GetInfo(ctx context.Context, key string) (*LimitInfo, error)
}

// LimitInfo 限流信息
type LimitInfo struct {
	Limit     int64         `json:"limit"`      // 桶容量
	Remaining int64         `json:"remaining"`  // 剩余令牌
	Window    time.Duration `json:"window"`     // 补充周期
	ResetTime time.Time     `json:"reset_time"` // 下次整桶补充的时间
}

// Config 限流配置
type Config struct {
	Capacity  int64         // 桶容量，默认 5
	Window    time.Duration // 整桶补充周期，默认 60s
	IdleTTL   time.Duration // 空闲多久后丢弃桶，不得短于 Window
	MaxKeys   int           // 内存实现最多保留的 key 数
	KeyPrefix string        // Redis key 前缀
}

// DefaultConfig 登录接口的默认限流配置：每分钟 5 次
func DefaultConfig() Config {
	return Config{
		Capacity:  5,
		Window:    time.Minute,
		IdleTTL:   2 * time.Minute,
		MaxKeys:   10000,
		KeyPrefix: "rl:login:",
	}
}

func (c *Config) normalize() error {
	def := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = def.Capacity
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.IdleTTL == 0 {
		c.IdleTTL = 2 * c.Window
	}
	if c.IdleTTL < c.Window {
		return fmt.Errorf("limiter: idle ttl %s shorter than window %s", c.IdleTTL, c.Window)
	}
	if c.MaxKeys <= 0 {
		c.MaxKeys = def.MaxKeys
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = def.KeyPrefix
	}
	return nil
}

// Store 限流状态的存储方式
type Store string

const (
	StoreMemory Store = "memory" // 进程内，单实例部署
	StoreRedis  Store = "redis"  // Redis，多实例共享
)

// New 按存储方式创建限流器，StoreRedis 需要传入 client
func New(store Store, cfg Config, client redis.Cmdable) (Limiter, error) {
	switch store {
	case StoreMemory:
		return NewMemoryLimiter(cfg)
	case StoreRedis:
		if client == nil {
			return nil, fmt.Errorf("limiter: redis store requires a client")
		}
		return NewTokenBucketLimiter(client, cfg)
	default:
		return nil, fmt.Errorf("limiter: unknown store %q", store)
	}
}
