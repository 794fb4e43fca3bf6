package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MorseWayne/fridge_shop/internal/domain"
)

// OrderRepository 定义订单数据访问接口
type OrderRepository interface {
	// Checkout 在同一个工作单元内扣减库存并写入待支付订单。
	// 商品不存在返回 domain.ErrNotFound，下架返回 domain.ErrProductInactive，
	// 库存不足返回 domain.ErrOutOfStock；失败时库存与订单均不变。
	Checkout(ctx context.Context, productID int64, now time.Time) (*domain.Order, error)
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	// CompareAndSetStatus 仅当当前状态等于 from 时改为 to，返回是否更新成功
	CompareAndSetStatus(ctx context.Context, id int64, from, to domain.OrderStatus, now time.Time) (bool, error)
	List(ctx context.Context, req *domain.OrderListRequest) ([]*domain.Order, int64, error)
	Stats(ctx context.Context) (*domain.OrderStats, error)
}

// orderRepo 实现 OrderRepository 接口
type orderRepo struct {
	db *sql.DB
}

// NewOrderRepository 创建订单仓储实例
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepo{db: db}
}

const orderColumns = `id, product_id, product_name, product_price, status, created_at, updated_at`

func scanOrder(row rowScanner) (*domain.Order, error) {
	o := &domain.Order{}
	if err := row.Scan(&o.ID, &o.ProductID, &o.ProductName, &o.ProductPrice, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return o, nil
}

// Checkout 下单。
// 条件 UPDATE 只在商品上架且库存>=1 时扣减，InnoDB 行锁保证同一商品的并发扣减串行化，
// 之后在同一事务里读取快照并插入订单。
func (r *orderRepo) Checkout(ctx context.Context, productID int64, now time.Time) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - 1
		WHERE id = ? AND active = 1 AND stock >= 1
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrement stock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return nil, classifyCheckoutFailure(ctx, tx, productID)
	}

	var (
		name  string
		price decimal.Decimal
	)
	if err := tx.QueryRowContext(ctx, `SELECT name, price FROM products WHERE id = ?`, productID).Scan(&name, &price); err != nil {
		return nil, fmt.Errorf("failed to read product snapshot: %w", err)
	}

	order := domain.NewPendingOrder(&domain.Product{ID: productID, Name: name, Price: price}, now)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO orders (product_id, product_name, product_price, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, order.ProductID, order.ProductName, order.ProductPrice, string(order.Status), order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}
	if order.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}
	return order, nil
}

// classifyCheckoutFailure 条件扣减未命中时，区分商品不存在、已下架和售罄
func classifyCheckoutFailure(ctx context.Context, tx *sql.Tx, productID int64) error {
	var (
		active bool
		stock  int
	)
	err := tx.QueryRowContext(ctx, `SELECT active, stock FROM products WHERE id = ?`, productID).Scan(&active, &stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to read product: %w", err)
	}
	return (&domain.Product{Active: active, Stock: stock}).CheckoutError()
}

// GetByID 根据ID查询订单，不存在时返回 (nil, nil)
func (r *orderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // 订单不存在
		}
		return nil, fmt.Errorf("failed to get order by id: %w", err)
	}
	return o, nil
}

// CompareAndSetStatus 以当前状态作为条件更新，并发迁移只有一个能成功
func (r *orderRepo) CompareAndSetStatus(ctx context.Context, id int64, from, to domain.OrderStatus, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), now, id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// List 按状态分页查询订单，最新的在前
func (r *orderRepo) List(ctx context.Context, req *domain.OrderListRequest) ([]*domain.Order, int64, error) {
	page, size := domain.NormalizePage(req.Page, req.PageSize)

	where := ""
	var args []any
	if req.Status != nil {
		where = "WHERE status = ?"
		args = append(args, string(*req.Status))
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM orders %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?", orderColumns, where)
	rows, err := r.db.QueryContext(ctx, query, append(args, size, (page-1)*size)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0, size)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, total, nil
}

// Stats 按状态聚合订单数量与营收
func (r *orderRepo) Stats(ctx context.Context) (*domain.OrderStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(product_price), 0)
		FROM orders
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query order stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.OrderStats{Revenue: decimal.Zero}
	for rows.Next() {
		var (
			status domain.OrderStatus
			count  int64
			sum    decimal.Decimal
		)
		if err := rows.Scan(&status, &count, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan order stats: %w", err)
		}
		stats.Add(status, count, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order stats: %w", err)
	}
	return stats, nil
}
