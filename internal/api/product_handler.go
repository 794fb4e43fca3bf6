package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/domain"
	"github.com/MorseWayne/fridge_shop/internal/middleware"
	"github.com/MorseWayne/fridge_shop/internal/resp"
	"github.com/MorseWayne/fridge_shop/internal/service"
)

// ProductHandler 商品相关的HTTP处理器
type ProductHandler struct {
	products service.ProductService
	logger   *zap.Logger
}

// NewProductHandler 创建商品处理器实例
func NewProductHandler(products service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{products: products, logger: logger}
}

func listRequest(r *http.Request, activeOnly bool) *domain.ProductListRequest {
	return &domain.ProductListRequest{
		Page:       queryInt(r, "page", 1),
		PageSize:   queryInt(r, "page_size", domain.DefaultPageSize),
		ActiveOnly: activeOnly,
	}
}

// List 柜内在售商品
// GET /api/v1/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

// AdminList 全部商品，包括已下架
// GET /api/v1/admin/products
func (h *ProductHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *ProductHandler) list(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	out, err := h.products.ListProducts(r.Context(), listRequest(r, activeOnly))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp.OK(w, out, middleware.RequestIDFromContext(r.Context()), "")
}

// Get 商品详情，下架商品对外不可见
// GET /api/v1/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.products.GetProduct(r.Context(), id, true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp.OK(w, p, middleware.RequestIDFromContext(r.Context()), "")
}

// Create 上架新商品
// POST /api/v1/admin/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateProductRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.products.CreateProduct(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp.Created(w, p, middleware.RequestIDFromContext(r.Context()), "")
}

// Update 修改商品信息、库存或上下架状态
// PUT /api/v1/admin/products/{id}
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req domain.UpdateProductRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.products.UpdateProduct(r.Context(), id, &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp.OK(w, p, middleware.RequestIDFromContext(r.Context()), "")
}
