package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/domain"
	"github.com/MorseWayne/fridge_shop/internal/metrics"
	"github.com/MorseWayne/fridge_shop/internal/repo"
)

// maxTransitionAttempts 状态 CAS 冲突时的最大重读次数
const maxTransitionAttempts = 5

// OrderEventPublisher 订单事件发布器。发布在事务提交之后进行，失败不回滚订单。
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, evt domain.OrderEvent) error
}

// LogPublisher 未启用消息队列时只记录日志
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher 创建日志发布器
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishOrderEvent(ctx context.Context, evt domain.OrderEvent) error {
	p.logger.Info("order event",
		zap.String("type", string(evt.Type)),
		zap.Int64("order_id", evt.OrderID),
		zap.String("from", string(evt.From)),
		zap.String("to", string(evt.To)),
	)
	return nil
}

// OrderService 订单生命周期管理
type OrderService interface {
	// CreateOrder 扣减库存并创建 PENDING 订单
	CreateOrder(ctx context.Context, productID int64) (*domain.Order, error)
	// TransitionOrder 按状态机迁移订单，非法迁移返回 *domain.TransitionError
	TransitionOrder(ctx context.Context, orderID int64, target domain.OrderStatus) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, req *domain.OrderListRequest) (*domain.OrderListResponse, error)
	Stats(ctx context.Context) (*domain.OrderStats, error)
}

type orderService struct {
	orders    repo.OrderRepository
	publisher OrderEventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrderService 创建订单服务
func NewOrderService(orders repo.OrderRepository, publisher OrderEventPublisher, logger *zap.Logger) OrderService {
	if publisher == nil {
		publisher = NewLogPublisher(logger)
	}
	return &orderService{
		orders:    orders,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *orderService) CreateOrder(ctx context.Context, productID int64) (*domain.Order, error) {
	if productID <= 0 {
		return nil, domain.NewValidationError("product_id must be positive")
	}

	order, err := s.orders.Checkout(ctx, productID, s.now())
	if err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, domain.ErrOutOfStock):
			outcome = "out_of_stock"
		case errors.Is(err, domain.ErrProductInactive):
			outcome = "product_inactive"
		case errors.Is(err, domain.ErrNotFound):
			outcome = "not_found"
		default:
			s.logger.Error("checkout failed", zap.Int64("product_id", productID), zap.Error(err))
		}
		metrics.OrdersCreatedTotal.WithLabelValues(outcome).Inc()
		return nil, err
	}

	metrics.OrdersCreatedTotal.WithLabelValues("created").Inc()
	s.logger.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("product_id", productID),
		zap.String("price", order.ProductPrice.StringFixed(2)),
	)
	s.publish(ctx, domain.NewOrderCreatedEvent(order))
	return order, nil
}

// TransitionOrder 读取-校验-CAS 写入；CAS 失败说明并发修改过，重读后重新校验
func (s *orderService) TransitionOrder(ctx context.Context, orderID int64, target domain.OrderStatus) (*domain.Order, error) {
	if !target.Valid() {
		return nil, domain.NewValidationError("unknown order status %q", target)
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		order, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}

		from := order.Status
		if err := order.TransitionTo(target, s.now()); err != nil {
			metrics.OrderTransitionsTotal.WithLabelValues(string(from), string(target), "rejected").Inc()
			s.logger.Warn("illegal order transition",
				zap.Int64("order_id", orderID),
				zap.String("from", string(from)),
				zap.String("to", string(target)),
			)
			return nil, err
		}

		ok, err := s.orders.CompareAndSetStatus(ctx, orderID, from, target, order.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("update order status: %w", err)
		}
		if !ok {
			continue
		}

		metrics.OrderTransitionsTotal.WithLabelValues(string(from), string(target), "ok").Inc()
		s.logger.Info("order transitioned",
			zap.Int64("order_id", orderID),
			zap.String("from", string(from)),
			zap.String("to", string(target)),
		)
		s.publish(ctx, domain.NewOrderStatusChangedEvent(order, from))
		return order, nil
	}

	s.logger.Warn("order transition contention", zap.Int64("order_id", orderID))
	return nil, fmt.Errorf("order %d changed concurrently: %w", orderID, domain.ErrConflict)
}

func (s *orderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, req *domain.OrderListRequest) (*domain.OrderListResponse, error) {
	if req == nil {
		req = &domain.OrderListRequest{}
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, domain.NewValidationError("unknown order status %q", *req.Status)
	}
	req.Page, req.PageSize = domain.NormalizePage(req.Page, req.PageSize)

	orders, total, err := s.orders.List(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return &domain.OrderListResponse{
		Orders:   orders,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	}, nil
}

func (s *orderService) Stats(ctx context.Context) (*domain.OrderStats, error) {
	stats, err := s.orders.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}
	return stats, nil
}

// publish 尽力而为，失败只记日志
func (s *orderService) publish(ctx context.Context, evt domain.OrderEvent) {
	if err := s.publisher.PublishOrderEvent(ctx, evt); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(string(evt.Type), "error").Inc()
		s.logger.Warn("failed to publish order event",
			zap.String("type", string(evt.Type)),
			zap.Int64("order_id", evt.OrderID),
			zap.Error(err),
		)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(evt.Type), "ok").Inc()
}
