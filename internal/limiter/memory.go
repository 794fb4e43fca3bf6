package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// bucket 单个 key 的令牌桶
type bucket struct {
	mu          sync.Mutex
	tokens      int64
	windowStart time.Time // 当前补充周期的起点
}

// refill 跨过一个或多个完整周期时补满，并把周期起点对齐到最近的整周期
func (b *bucket) refill(now time.Time, capacity int64, window time.Duration) {
	elapsed := now.Sub(b.windowStart)
	if elapsed < window {
		return
	}
	b.tokens = capacity
	b.windowStart = b.windowStart.Add(elapsed / window * window)
}

func (b *bucket) resetAt(window time.Duration) time.Time {
	return b.windowStart.Add(window)
}

// MemoryLimiter 进程内令牌桶限流器。
// 桶保存在带容量上限和空闲 TTL 的 LRU 中，key 数量不会无限增长。
// 空闲 TTL 不短于补充周期，因空闲过期的桶重建时本来也已经补满，外部行为不变。
// 达到 MaxKeys 时见 evictOne：优先淘汰不丢状态的桶，样本里找不到时会丢掉
// 损失最小的那个桶已消耗的令牌，这是有界 map 的代价。
type MemoryLimiter struct {
	cfg Config

	mu      sync.Mutex // 保证同一 key 的查找或创建是原子的
	buckets *expirable.LRU[string, *bucket]

	now func() time.Time
}

// NewMemoryLimiter 创建进程内限流器
func NewMemoryLimiter(cfg Config) (*MemoryLimiter, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &MemoryLimiter{
		cfg:     cfg,
		buckets: expirable.NewLRU[string, *bucket](cfg.MaxKeys, nil, cfg.IdleTTL),
		now:     time.Now,
	}, nil
}

// bucketFor 查找或创建桶，并刷新其空闲 TTL
func (l *MemoryLimiter) bucketFor(key string, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets.Get(key)
	if !ok {
		if l.buckets.Len() >= l.cfg.MaxKeys {
			l.evictOne(now)
		}
		b = &bucket{tokens: l.cfg.Capacity, windowStart: now}
	}
	// expirable.LRU 的 TTL 从最近一次 Add 起算
	l.buckets.Add(key, b)
	return b
}

// evictSample 容量满时检查的最旧桶数量
const evictSample = 16

// evictOne 在最旧的若干个桶中挑一个淘汰：重建后剩余令牌不变的（周期已过或满桶）
// 最先被选中，否则选剩余令牌最多的，已耗尽的桶最后才会被淘汰。调用方持有 l.mu。
func (l *MemoryLimiter) evictOne(now time.Time) {
	keys := l.buckets.Keys()
	if len(keys) > evictSample {
		keys = keys[:evictSample]
	}
	victim, kept := "", int64(-1)
	for _, k := range keys {
		b, ok := l.buckets.Peek(k)
		if !ok {
			continue
		}
		b.mu.Lock()
		remaining := b.tokens
		if now.Sub(b.windowStart) >= l.cfg.Window {
			remaining = l.cfg.Capacity
		}
		b.mu.Unlock()
		if remaining > kept {
			victim, kept = k, remaining
		}
		if kept == l.cfg.Capacity {
			break
		}
	}
	if kept >= 0 {
		l.buckets.Remove(victim)
	}
}

// Allow 尝试消费一个令牌
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (*LimitResult, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN 尝试消费 n 个令牌
func (l *MemoryLimiter) AllowN(ctx context.Context, key string, n int64) (*LimitResult, error) {
	now := l.now()
	b := l.bucketFor(key, now)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now, l.cfg.Capacity, l.cfg.Window)

	res := &LimitResult{Limit: l.cfg.Capacity}
	if n > 0 && b.tokens >= n {
		b.tokens -= n
		res.Allowed = true
	} else {
		res.RetryAfter = b.resetAt(l.cfg.Window).Sub(now)
	}
	res.Remaining = b.tokens
	return res, nil
}

// Reset 删除 key 的桶
func (l *MemoryLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets.Remove(key)
	return nil
}

// GetInfo 查看 key 当前状态，不存在时视为满桶
func (l *MemoryLimiter) GetInfo(ctx context.Context, key string) (*LimitInfo, error) {
	now := l.now()
	info := &LimitInfo{Limit: l.cfg.Capacity, Remaining: l.cfg.Capacity, Window: l.cfg.Window, ResetTime: now.Add(l.cfg.Window)}

	b, ok := l.buckets.Peek(key)
	if !ok {
		return info, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Sub(b.windowStart) < l.cfg.Window {
		info.Remaining = b.tokens
		info.ResetTime = b.resetAt(l.cfg.Window)
	}
	return info, nil
}

// Len 当前跟踪的 key 数
func (l *MemoryLimiter) Len() int {
	return l.buckets.Len()
}
