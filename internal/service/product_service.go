package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/domain"
	"github.com/MorseWayne/fridge_shop/internal/repo"
)

// ProductService 定义商品业务逻辑接口
type ProductService interface {
	CreateProduct(ctx context.Context, req *domain.CreateProductRequest) (*domain.Product, error)
	// GetProduct activeOnly 为 true 时下架商品视为不存在
	GetProduct(ctx context.Context, id int64, activeOnly bool) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id int64, req *domain.UpdateProductRequest) (*domain.Product, error)
	ListProducts(ctx context.Context, req *domain.ProductListRequest) (*domain.ProductListResponse, error)
}

// productService 实现ProductService接口
type productService struct {
	products repo.ProductRepository
	logger   *zap.Logger
}

// NewProductService 创建商品服务实例
func NewProductService(products repo.ProductRepository, logger *zap.Logger) ProductService {
	return &productService{products: products, logger: logger}
}

// CreateProduct 创建商品
func (s *productService) CreateProduct(ctx context.Context, req *domain.CreateProductRequest) (*domain.Product, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p := req.ToProduct()
	if err := s.products.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	s.logger.Info("product created", zap.Int64("product_id", p.ID), zap.String("name", p.Name), zap.Int("stock", p.Stock))
	return p, nil
}

func (s *productService) GetProduct(ctx context.Context, id int64, activeOnly bool) (*domain.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if p == nil || (activeOnly && !p.Active) {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// UpdateProduct 只修改请求中出现的字段
func (s *productService) UpdateProduct(ctx context.Context, id int64, req *domain.UpdateProductRequest) (*domain.Product, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.products.Update(ctx, id, req); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	s.logger.Info("product updated", zap.Int64("product_id", id))
	return s.GetProduct(ctx, id, false)
}

func (s *productService) ListProducts(ctx context.Context, req *domain.ProductListRequest) (*domain.ProductListResponse, error) {
	if req == nil {
		req = &domain.ProductListRequest{}
	}
	req.Page, req.PageSize = domain.NormalizePage(req.Page, req.PageSize)
	products, total, err := s.products.List(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return &domain.ProductListResponse{
		Products: products,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	}, nil
}
