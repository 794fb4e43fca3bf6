package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/domain"
)

// Channel 生产者用到的 amqp.Channel 方法子集
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Confirm(noWait bool) error
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// ChannelOpener 打开新通道
type ChannelOpener func() (Channel, error)

// ProducerConfig 生产者配置
type ProducerConfig struct {
	Exchange         string
	PublishTimeout   time.Duration
	MaxRetryAttempts int
	RetryInterval    time.Duration
}

// Producer 把订单事件发布到 topic 交换机。
// 路由键：order.created，以及 order.status_changed.<目标状态小写>，
// 柜机控制端绑定 order.status_changed.released 即可收到开门指令。
type Producer struct {
	open   ChannelOpener
	cfg    ProducerConfig
	logger *zap.Logger

	mu sync.Mutex // 同一通道上的发布与确认串行进行
	ch Channel
}

// NewProducer 创建生产者
func NewProducer(open ChannelOpener, cfg ProducerConfig, logger *zap.Logger) *Producer {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 3 * time.Second
	}
	if cfg.MaxRetryAttempts < 0 {
		cfg.MaxRetryAttempts = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{open: open, cfg: cfg, logger: logger}
}

// ConnectionOpener 把 ConnectionManager 适配为 ChannelOpener
func ConnectionOpener(cm *ConnectionManager) ChannelOpener {
	return func() (Channel, error) {
		ch, err := cm.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
}

// RoutingKey 事件对应的路由键
func RoutingKey(evt domain.OrderEvent) string {
	if evt.Type == domain.OrderEventStatusChanged {
		return string(evt.Type) + "." + strings.ToLower(string(evt.To))
	}
	return string(evt.Type)
}

// PublishOrderEvent 发布订单事件，失败时重开通道重试
func (p *Producer) PublishOrderEvent(ctx context.Context, evt domain.OrderEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.EventID,
		Type:         string(evt.Type),
		Timestamp:    evt.OccurredAt,
		AppId:        "fridge-shop",
		Body:         body,
	}
	key := RoutingKey(evt)

	var lastErr error
	maxAttempts := p.cfg.MaxRetryAttempts + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lastErr = p.publishOnce(ctx, key, msg); lastErr == nil {
			return nil
		}
		p.logger.Warn("order event publish failed",
			zap.String("routing_key", key),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(p.cfg.RetryInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("publish %s after %d attempts: %w", key, maxAttempts, lastErr)
}

func (p *Producer) publishOnce(ctx context.Context, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()

	dc, err := ch.PublishWithDeferredConfirmWithContext(publishCtx, p.cfg.Exchange, key, false, false, msg)
	if err != nil {
		p.resetLocked()
		return fmt.Errorf("failed to publish message: %w", err)
	}
	if dc == nil {
		return nil
	}
	acked, err := dc.WaitContext(publishCtx)
	if err != nil {
		p.resetLocked()
		return fmt.Errorf("publish confirmation: %w", err)
	}
	if !acked {
		return fmt.Errorf("message was nacked by broker")
	}
	return nil
}

// channelLocked 懒加载通道：声明交换机并开启发布确认
func (p *Producer) channelLocked() (Channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	ch, err := p.open()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", p.cfg.Exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *Producer) resetLocked() {
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
}

// Reset 丢弃当前通道，下次发布时重新打开
func (p *Producer) Reset() {
	p.mu.Lock()
	p.resetLocked()
	p.mu.Unlock()
}

// Close 关闭通道
func (p *Producer) Close() error {
	p.Reset()
	return nil
}

// NewOrderEventProducer 基于连接管理器创建生产者，重连后自动丢弃旧通道
func NewOrderEventProducer(cm *ConnectionManager, cfg ProducerConfig, logger *zap.Logger) *Producer {
	p := NewProducer(ConnectionOpener(cm), cfg, logger)
	cm.onReconnected = p.Reset
	return p
}
