package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product 表示冰箱里售卖的商品。
// 订单核心只读取它并扣减库存，其余字段归商品目录管理。
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Active      bool            `json:"active"`
	ImageURL    string          `json:"image_url"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsAvailable 判断商品是否可下单
func (p *Product) IsAvailable() bool {
	return p.Active && p.Stock >= 1
}

// CheckoutError 返回该商品无法下单的原因，可下单时返回 nil
func (p *Product) CheckoutError() error {
	if p.IsAvailable() {
		return nil
	}
	switch {
	case !p.Active:
		return ErrProductInactive
	default:
		return ErrOutOfStock
	}
}

// CreateProductRequest 表示创建商品请求
type CreateProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Active      *bool           `json:"active"`
	ImageURL    string          `json:"image_url"`
}

// Validate 校验创建请求
func (r *CreateProductRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" || len(r.Name) > 255 {
		return NewValidationError("name is required and must be at most 255 characters")
	}
	if !r.Price.IsPositive() {
		return NewValidationError("price must be greater than 0")
	}
	if r.Stock < 0 {
		return NewValidationError("stock must not be negative")
	}
	return nil
}

// ToProduct 转换为领域模型，未指定 active 时默认上架
func (r *CreateProductRequest) ToProduct() *Product {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return &Product{
		Name:        strings.TrimSpace(r.Name),
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		Active:      active,
		ImageURL:    r.ImageURL,
	}
}

// UpdateProductRequest 表示更新商品请求，nil 字段保持不变
type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
	Active      *bool            `json:"active"`
	ImageURL    *string          `json:"image_url"`
}

// Validate 校验更新请求
func (r *UpdateProductRequest) Validate() error {
	if r.Name != nil && (strings.TrimSpace(*r.Name) == "" || len(*r.Name) > 255) {
		return NewValidationError("name must be 1-255 characters")
	}
	if r.Price != nil && !r.Price.IsPositive() {
		return NewValidationError("price must be greater than 0")
	}
	if r.Stock != nil && *r.Stock < 0 {
		return NewValidationError("stock must not be negative")
	}
	return nil
}

// Apply 将更新应用到商品上
func (r *UpdateProductRequest) Apply(p *Product) {
	if r.Name != nil {
		p.Name = strings.TrimSpace(*r.Name)
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.Stock != nil {
		p.Stock = *r.Stock
	}
	if r.Active != nil {
		p.Active = *r.Active
	}
	if r.ImageURL != nil {
		p.ImageURL = *r.ImageURL
	}
}

// ProductListRequest 表示商品列表查询请求
type ProductListRequest struct {
	Page       int  `json:"page"`        // 页码，从1开始
	PageSize   int  `json:"page_size"`   // 每页大小
	ActiveOnly bool `json:"active_only"` // 仅返回上架商品
}

// ProductListResponse 表示商品列表查询响应
type ProductListResponse struct {
	Products []*Product `json:"products"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}
