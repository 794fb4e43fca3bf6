package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/MorseWayne/fridge_shop/internal/domain"
)

// ProductRepository 定义商品数据访问接口
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	// Update 只改写请求中给出的字段，未给出的列（尤其是 stock）保持数据库中的当前值
	Update(ctx context.Context, id int64, req *domain.UpdateProductRequest) error
	List(ctx context.Context, req *domain.ProductListRequest) ([]*domain.Product, int64, error)
}

// productRepo 实现 ProductRepository 接口
type productRepo struct {
	db *sql.DB
}

// NewProductRepository 创建商品仓储实例
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepo{db: db}
}

const productColumns = `id, name, description, price, stock, active, image_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	var desc sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &desc, &p.Price, &p.Stock, &p.Active, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Description = desc.String
	return p, nil
}

// Create 创建商品
func (r *productRepo) Create(ctx context.Context, p *domain.Product) error {
	query := `
		INSERT INTO products (name, description, price, stock, active, image_url)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query, p.Name, p.Description, p.Price, p.Stock, p.Active, p.ImageURL)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

// GetByID 根据ID获取商品，不存在时返回 (nil, nil)
func (r *productRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product by id: %w", err)
	}
	return p, nil
}

// Update 按请求拼出 SET 子句。
// 库存只在管理员显式补货时写入，下单扣减与目录编辑互不覆盖。
func (r *productRepo) Update(ctx context.Context, id int64, req *domain.UpdateProductRequest) error {
	var (
		sets []string
		args []any
	)
	if req.Name != nil {
		sets, args = append(sets, "name = ?"), append(args, strings.TrimSpace(*req.Name))
	}
	if req.Description != nil {
		sets, args = append(sets, "description = ?"), append(args, *req.Description)
	}
	if req.Price != nil {
		sets, args = append(sets, "price = ?"), append(args, *req.Price)
	}
	if req.Stock != nil {
		sets, args = append(sets, "stock = ?"), append(args, *req.Stock)
	}
	if req.Active != nil {
		sets, args = append(sets, "active = ?"), append(args, *req.Active)
	}
	if req.ImageURL != nil {
		sets, args = append(sets, "image_url = ?"), append(args, *req.ImageURL)
	}
	if len(sets) == 0 {
		return r.ensureExists(ctx, id)
	}

	query := "UPDATE products SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	result, err := r.db.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		// MySQL 在值未变化时也返回 0，需要再确认一次是否存在
		return r.ensureExists(ctx, id)
	}
	return nil
}

func (r *productRepo) ensureExists(ctx context.Context, id int64) error {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrNotFound
	}
	return nil
}

// List 分页查询商品
func (r *productRepo) List(ctx context.Context, req *domain.ProductListRequest) ([]*domain.Product, int64, error) {
	page, size := domain.NormalizePage(req.Page, req.PageSize)

	where := ""
	var args []any
	if req.ActiveOnly {
		where = "WHERE active = ?"
		args = append(args, true)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM products %s ORDER BY id ASC LIMIT ? OFFSET ?", productColumns, where)
	rows, err := r.db.QueryContext(ctx, query, append(args, size, (page-1)*size)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := make([]*domain.Product, 0, size)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, total, nil
}
