package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 定义订单状态类型
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"   // 待支付
	OrderStatusPaid      OrderStatus = "PAID"      // 已支付，等待开柜
	OrderStatusReleased  OrderStatus = "RELEASED"  // 已开柜取货，终态
	OrderStatusCancelled OrderStatus = "CANCELLED" // 已取消，终态
)

// orderTransitions 合法迁移表，未列出的迁移一律非法
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusReleased, OrderStatusCancelled},
}

// Valid 判断状态是否属于已知集合
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusReleased, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal 终态不允许任何迁移
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusReleased || s == OrderStatusCancelled
}

// CanTransitionTo 判断从 s 到 target 是否合法
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	for _, next := range orderTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// ParseOrderStatus 解析状态字符串，大小写不敏感
func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", NewValidationError("unknown order status %q", s)
	}
	return st, nil
}

// Order 表示订单领域模型。
// 商品名称和价格是下单时的快照，之后商品目录的修改不会影响历史订单。
type Order struct {
	ID           int64           `json:"id"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductPrice decimal.Decimal `json:"product_price"`
	Status       OrderStatus     `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewPendingOrder 基于商品快照创建待支付订单
func NewPendingOrder(p *Product, now time.Time) *Order {
	return &Order{
		ProductID:    p.ID,
		ProductName:  p.Name,
		ProductPrice: p.Price,
		Status:       OrderStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// TransitionTo 校验并执行状态迁移，非法时订单保持不变
func (o *Order) TransitionTo(target OrderStatus, now time.Time) error {
	if !o.Status.CanTransitionTo(target) {
		return &TransitionError{From: o.Status, To: target}
	}
	o.Status = target
	o.UpdatedAt = now
	return nil
}

// CreateOrderRequest 表示下单请求
type CreateOrderRequest struct {
	ProductID int64 `json:"product_id"`
}

// Validate 校验下单请求
func (r *CreateOrderRequest) Validate() error {
	if r.ProductID <= 0 {
		return NewValidationError("product_id must be a positive integer")
	}
	return nil
}

// UpdateOrderStatusRequest 表示管理员修改订单状态请求
type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
}

// OrderListRequest 表示订单列表查询请求
type OrderListRequest struct {
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Status   *OrderStatus `json:"status"`
}

// OrderListResponse 表示订单列表查询响应
type OrderListResponse struct {
	Orders   []*Order `json:"orders"`
	Total    int64    `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// OrderStats 订单统计。营收按已支付和已开柜的订单快照价格累加。
type OrderStats struct {
	Total     int64           `json:"total"`
	Pending   int64           `json:"pending"`
	Paid      int64           `json:"paid"`
	Released  int64           `json:"released"`
	Cancelled int64           `json:"cancelled"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// 分页默认值，与管理后台一致
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizePage 修正分页参数
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// Add 累加某个状态下的订单数量与金额，营收只计入已支付和已开柜的订单
func (s *OrderStats) Add(status OrderStatus, count int64, amount decimal.Decimal) {
	s.Total += count
	switch status {
	case OrderStatusPending:
		s.Pending += count
	case OrderStatusPaid:
		s.Paid += count
		s.Revenue = s.Revenue.Add(amount)
	case OrderStatusReleased:
		s.Released += count
		s.Revenue = s.Revenue.Add(amount)
	case OrderStatusCancelled:
		s.Cancelled += count
	}
}
