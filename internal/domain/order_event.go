package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderEventType 订单事件类型，同时用作消息路由键
type OrderEventType string

const (
	OrderEventCreated       OrderEventType = "order.created"
	OrderEventStatusChanged OrderEventType = "order.status_changed"
)

// OrderEvent 订单生命周期事件。柜机控制端订阅 RELEASED 事件开门。
type OrderEvent struct {
	EventID    string          `json:"event_id"`
	Type       OrderEventType  `json:"type"`
	OrderID    int64           `json:"order_id"`
	ProductID  int64           `json:"product_id"`
	From       OrderStatus     `json:"from,omitempty"`
	To         OrderStatus     `json:"to"`
	Price      decimal.Decimal `json:"price"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewOrderCreatedEvent 下单成功事件
func NewOrderCreatedEvent(o *Order) OrderEvent {
	return OrderEvent{
		EventID:    uuid.NewString(),
		Type:       OrderEventCreated,
		OrderID:    o.ID,
		ProductID:  o.ProductID,
		To:         o.Status,
		Price:      o.ProductPrice,
		OccurredAt: o.CreatedAt,
	}
}

// NewOrderStatusChangedEvent 状态迁移事件
func NewOrderStatusChangedEvent(o *Order, from OrderStatus) OrderEvent {
	return OrderEvent{
		EventID:    uuid.NewString(),
		Type:       OrderEventStatusChanged,
		OrderID:    o.ID,
		ProductID:  o.ProductID,
		From:       from,
		To:         o.Status,
		Price:      o.ProductPrice,
		OccurredAt: o.UpdatedAt,
	}
}
