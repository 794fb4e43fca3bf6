package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/api"
	"github.com/MorseWayne/fridge_shop/internal/cache"
	"github.com/MorseWayne/fridge_shop/internal/config"
	"github.com/MorseWayne/fridge_shop/internal/database"
	"github.com/MorseWayne/fridge_shop/internal/limiter"
	"github.com/MorseWayne/fridge_shop/internal/logger"
	"github.com/MorseWayne/fridge_shop/internal/mq"
	"github.com/MorseWayne/fridge_shop/internal/repo"
	"github.com/MorseWayne/fridge_shop/internal/router"
	"github.com/MorseWayne/fridge_shop/internal/service"
)

// app 持有运行期依赖，退出时按相反顺序释放
type app struct {
	handler http.Handler
	closers []func() error
	logger  *zap.Logger
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close 释放所有资源
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close resource failed", zap.Error(err))
		}
	}
	a.closers = nil
}

// stores 三个仓储和可选的数据库探针
type stores struct {
	users    repo.UserRepository
	products repo.ProductRepository
	orders   repo.OrderRepository
	ping     func(ctx context.Context) error
}

// initStores 按 DB_DRIVER 创建仓储；mysql 模式在启动时执行迁移
func initStores(cfg *config.Config, a *app) (*stores, error) {
	if cfg.Database.Driver == "memory" {
		a.logger.Warn("using in-memory store, data is lost on restart")
		ms := repo.NewMemoryStore()
		return &stores{users: ms.Users(), products: ms.Products(), orders: ms.Orders()}, nil
	}

	db, err := database.New(cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.onClose(db.Close)

	a.logger.Info("using migrations directory", zap.String("path", cfg.Migrations.Dir))
	if err := db.RunMigrations(cfg.Migrations.Dir); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &stores{
		users:    repo.NewUserRepository(db.DB),
		products: repo.NewProductRepository(db.DB),
		orders:   repo.NewOrderRepository(db.DB),
		ping:     db.PingContext,
	}, nil
}

// initCache 按 CACHE_TYPE 创建缓存；redis 客户端同时供限流器复用
func initCache(cfg *config.Config, a *app) (cache.Cache, *redis.Client, error) {
	needRedis := cfg.Cache.Type == "redis" || cfg.RateLimit.Store == string(limiter.StoreRedis)

	var client *redis.Client
	if needRedis {
		var err error
		client, err = cache.NewRedisClient(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		a.onClose(client.Close)
		a.logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	if cfg.Cache.Type == "redis" {
		return cache.NewRedisCache(client), client, nil
	}
	mc := cache.NewMemoryCache(cfg.Cache.CleanupInterval)
	a.onClose(mc.Close)
	return mc, client, nil
}

// initPublisher MQ 关闭时退化为只写日志的发布器
func initPublisher(ctx context.Context, cfg *config.Config, a *app) (service.OrderEventPublisher, error) {
	if !cfg.MQ.Enabled {
		return service.NewLogPublisher(a.logger), nil
	}
	cm := mq.NewConnectionManager(cfg.MQ, a.logger)
	if err := cm.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	a.onClose(cm.Close)

	p := mq.NewOrderEventProducer(cm, mq.ProducerConfig{
		Exchange:         cfg.MQ.Exchange,
		PublishTimeout:   cfg.MQ.PublishTimeout,
		MaxRetryAttempts: 2,
		RetryInterval:    200 * time.Millisecond,
	}, a.logger)
	a.onClose(p.Close)
	return p, nil
}

// newApp 组装依赖：仓储 -> 服务 -> 处理器 -> 路由
func newApp(ctx context.Context, cfg *config.Config, lg *zap.Logger) (_ *app, err error) {
	a := &app{logger: lg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	st, err := initStores(cfg, a)
	if err != nil {
		return nil, err
	}
	c, redisClient, err := initCache(cfg, a)
	if err != nil {
		return nil, err
	}

	var limClient redis.Cmdable
	if redisClient != nil {
		limClient = redisClient
	}
	lim, err := limiter.New(limiter.Store(cfg.RateLimit.Store), limiter.Config{
		Capacity:  int64(cfg.RateLimit.Capacity),
		Window:    cfg.RateLimit.Window,
		IdleTTL:   cfg.RateLimit.IdleTTL,
		MaxKeys:   cfg.RateLimit.MaxKeys,
		KeyPrefix: cfg.RateLimit.KeyPrefix,
	}, limClient)
	if err != nil {
		return nil, fmt.Errorf("init limiter: %w", err)
	}

	publisher, err := initPublisher(ctx, cfg, a)
	if err != nil {
		return nil, err
	}

	hasher := service.NewBcryptHasher()
	tokens := service.NewTokenService(cfg.JWT, repo.NewTokenBlacklistRepository(c), lg)
	authService, err := service.NewAuthService(st.users, hasher, tokens, lim, lg)
	if err != nil {
		return nil, fmt.Errorf("init auth service: %w", err)
	}
	userService := service.NewUserService(st.users, hasher, lg)
	productService := service.NewProductService(repo.NewCachedProductRepository(st.products, c, cfg.Cache.TTL, lg), lg)
	orderService := service.NewOrderService(st.orders, publisher, lg)

	if cfg.Seed.AdminEmail != "" {
		if _, err := userService.EnsureAdmin(ctx, cfg.Seed.AdminEmail, cfg.Seed.AdminPassword, cfg.Seed.AdminUsername); err != nil {
			return nil, fmt.Errorf("seed admin: %w", err)
		}
	}

	a.handler = router.New().Setup(cfg, &router.Dependencies{
		AuthHandler:    api.NewAuthHandler(authService, cfg.RateLimit.TrustProxy, lg),
		UserHandler:    api.NewUserHandler(userService, lg),
		ProductHandler: api.NewProductHandler(productService, lg),
		OrderHandler:   api.NewOrderHandler(orderService, lg),
		Authenticator:  authService,
		Cache:          c,
		Health: func(ctx context.Context) error {
			if st.ping != nil {
				if err := st.ping(ctx); err != nil {
					return fmt.Errorf("database: %w", err)
				}
			}
			if err := c.Ping(ctx); err != nil {
				return fmt.Errorf("cache: %w", err)
			}
			return nil
		},
	}, lg)
	return a, nil
}

// serve 启动服务器并处理优雅关闭
func serve(ctx context.Context, cfg *config.Config, handler http.Handler, lg *zap.Logger) error {
	addr := fmt.Sprintf(":%d", cfg.App.Port)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		lg.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	lg.Info("server exited")
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, cfg.App.Name, cfg.App.Version)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	if err := serve(ctx, cfg, a.handler, lg); err != nil {
		lg.Error("server error", zap.Error(err))
	}
}
