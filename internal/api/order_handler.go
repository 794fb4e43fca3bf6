package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/domain"
	"github.com/MorseWayne/fridge_shop/internal/middleware"
	"github.com/MorseWayne/fridge_shop/internal/resp"
	"github.com/MorseWayne/fridge_shop/internal/service"
)

// OrderHandler 订单相关的HTTP处理器
type OrderHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

// NewOrderHandler 创建订单处理器实例
func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// Create 下单，扣减一件库存
// POST /api/v1/orders
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOrderRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	order, err := h.orders.CreateOrder(r.Context(), req.ProductID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp.Created(w, order, middleware.RequestIDFromContext(r.Context()), "")
}

// Get 订单详情
// GET /api/v1/orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp.OK(w, order, middleware.RequestIDFromContext(r.Context()), "")
}

// List 按状态分页查询订单
// GET /api/v1/admin/orders?status=&page=&page_size=
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	req := &domain.OrderListRequest{
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", domain.DefaultPageSize),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status, err := domain.ParseOrderStatus(s)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		req.Status = &status
	}
	out, err := h.orders.ListOrders(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp.OK(w, out, middleware.RequestIDFromContext(r.Context()), "")
}

// Transition 修改订单状态
// PUT /api/v1/admin/orders/{id}
func (h *OrderHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req domain.UpdateOrderStatusRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	target, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	order, err := h.orders.TransitionOrder(r.Context(), id, target)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp.OK(w, order, middleware.RequestIDFromContext(r.Context()), "")
}

// Stats 订单统计
// GET /api/v1/admin/orders/stats
func (h *OrderHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orders.Stats(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp.OK(w, stats, middleware.RequestIDFromContext(r.Context()), "")
}
