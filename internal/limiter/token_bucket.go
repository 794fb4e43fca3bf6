package limiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBucketLimiter 基于 Redis Lua 脚本的令牌桶，多实例共享同一份限流状态。
// 补充方式与内存实现一致：按整周期补满，周期起点对齐。
type TokenBucketLimiter struct {
	client redis.Cmdable
	config Config
	now    func() time.Time
}

// NewTokenBucketLimiter 创建 Redis 令牌桶限流器
func NewTokenBucketLimiter(client redis.Cmdable, cfg Config) (*TokenBucketLimiter, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &TokenBucketLimiter{client: client, config: cfg, now: time.Now}, nil
}

// KEYS[1]: 桶 key
// ARGV[1]: 当前毫秒时间戳
// ARGV[2]: 容量
// ARGV[3]: 周期毫秒数
// ARGV[4]: 请求令牌数
// ARGV[5]: 空闲过期毫秒数
// 返回 {是否允许, 剩余令牌, 距下次补充毫秒数}
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local window_ms = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])
local idle_ms = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'window_start')
local tokens = tonumber(state[1])
local window_start = tonumber(state[2])

if tokens == nil or window_start == nil then
    tokens = capacity
    window_start = now_ms
end

local elapsed = now_ms - window_start
if elapsed >= window_ms then
    tokens = capacity
    window_start = window_start + math.floor(elapsed / window_ms) * window_ms
end

local retry_ms = window_start + window_ms - now_ms

if requested > 0 and tokens >= requested then
    tokens = tokens - requested
    redis.call('HSET', key, 'tokens', tokens, 'window_start', window_start)
    redis.call('PEXPIRE', key, idle_ms)
    return {1, tokens, 0}
end

return {0, tokens, retry_ms}
`)

func (tb *TokenBucketLimiter) key(key string) string {
	return tb.config.KeyPrefix + key
}

// Allow 尝试消费一个令牌
func (tb *TokenBucketLimiter) Allow(ctx context.Context, key string) (*LimitResult, error) {
	return tb.AllowN(ctx, key, 1)
}

// AllowN 尝试消费 n 个令牌
func (tb *TokenBucketLimiter) AllowN(ctx context.Context, key string, n int64) (*LimitResult, error) {
	vals, err := tokenBucketScript.Run(ctx, tb.client, []string{tb.key(key)},
		tb.now().UnixMilli(),
		tb.config.Capacity,
		tb.config.Window.Milliseconds(),
		n,
		tb.config.IdleTTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to execute token bucket script: %w", err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("unexpected token bucket script result: %v", vals)
	}

	return &LimitResult{
		Allowed:    vals[0] == 1,
		Limit:      tb.config.Capacity,
		Remaining:  vals[1],
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// Reset 删除令牌桶
func (tb *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	if err := tb.client.Del(ctx, tb.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset token bucket: %w", err)
	}
	return nil
}

// GetInfo 读取令牌桶当前状态
func (tb *TokenBucketLimiter) GetInfo(ctx context.Context, key string) (*LimitInfo, error) {
	vals, err := tb.client.HMGet(ctx, tb.key(key), "tokens", "window_start").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get token bucket info: %w", err)
	}

	now := tb.now()
	info := &LimitInfo{
		Limit:     tb.config.Capacity,
		Remaining: tb.config.Capacity,
		Window:    tb.config.Window,
		ResetTime: now.Add(tb.config.Window),
	}

	tokens, ok1 := parseInt(vals[0])
	start, ok2 := parseInt(vals[1])
	if !ok1 || !ok2 {
		return info, nil
	}
	windowStart := time.UnixMilli(start)
	if now.Sub(windowStart) < tb.config.Window {
		info.Remaining = tokens
		info.ResetTime = windowStart.Add(tb.config.Window)
	}
	return info, nil
}

func parseInt(v interface{}) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
