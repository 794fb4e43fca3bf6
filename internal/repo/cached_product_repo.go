package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/cache"
	"github.com/MorseWayne/fridge_shop/internal/domain"
)

// CachedProductRepository 商品目录的读穿缓存。
// 只缓存按 ID 读取的单个商品；下单扣减库存走订单仓储的原子语句，
// 不经过这里，所以缓存中的 stock 仅用于展示，最多滞后一个 TTL。
type CachedProductRepository struct {
	repo   ProductRepository
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProductRepository 创建带缓存的商品仓储，ttl<=0 时不包装
func NewCachedProductRepository(repo ProductRepository, c cache.Cache, ttl time.Duration, logger *zap.Logger) ProductRepository {
	if c == nil || ttl <= 0 {
		return repo
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProductRepository{repo: repo, cache: c, ttl: ttl, logger: logger}
}

// Create 创建商品，新 ID 不可能已在缓存中
func (r *CachedProductRepository) Create(ctx context.Context, product *domain.Product) error {
	return r.repo.Create(ctx, product)
}

// GetByID 先查缓存，未命中再查底层仓储并回填。缓存故障时降级为直接读库。
func (r *CachedProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	key := productCacheKey(id)

	var cached domain.Product
	err := r.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn("product cache read failed", zap.Int64("product_id", id), zap.Error(err))
	}

	p, err := r.repo.GetByID(ctx, id)
	if err != nil || p == nil {
		return p, err
	}
	if err := r.cache.Set(ctx, key, p, r.ttl); err != nil {
		r.logger.Warn("product cache write failed", zap.Int64("product_id", id), zap.Error(err))
	}
	return p, nil
}

// Update 更新后删除缓存条目
func (r *CachedProductRepository) Update(ctx context.Context, id int64, req *domain.UpdateProductRequest) error {
	if err := r.repo.Update(ctx, id, req); err != nil {
		return err
	}
	r.Invalidate(ctx, id)
	return nil
}

// List 不缓存，分页和筛选组合太多
func (r *CachedProductRepository) List(ctx context.Context, req *domain.ProductListRequest) ([]*domain.Product, int64, error) {
	return r.repo.List(ctx, req)
}

// Invalidate 删除单个商品的缓存
func (r *CachedProductRepository) Invalidate(ctx context.Context, id int64) {
	if err := r.cache.Del(ctx, productCacheKey(id)); err != nil {
		r.logger.Warn("product cache invalidate failed", zap.Int64("product_id", id), zap.Error(err))
	}
}

func productCacheKey(id int64) string {
	return fmt.Sprintf("product:id:%d", id)
}
