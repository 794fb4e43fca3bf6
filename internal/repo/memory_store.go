package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MorseWayne/fridge_shop/internal/domain"
)

// MemoryStore 是用户、商品、订单三个仓储的内存实现，供测试和 DB_DRIVER=memory 使用。
// 所有读写共用一把锁，下单时的扣库存和写订单在同一个临界区内完成。
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[int64]*domain.User
	products map[int64]*domain.Product
	orders   map[int64]*domain.Order
	nextID   map[string]int64
	now      func() time.Time
}

var (
	_ UserRepository    = memoryUsers{}
	_ ProductRepository = memoryProducts{}
	_ OrderRepository   = memoryOrders{}
)

// NewMemoryStore 创建空的内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[int64]*domain.User),
		products: make(map[int64]*domain.Product),
		orders:   make(map[int64]*domain.Order),
		nextID:   make(map[string]int64),
		now:      time.Now,
	}
}

// Users 返回用户仓储视图
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

// Products 返回商品仓储视图
func (s *MemoryStore) Products() ProductRepository { return memoryProducts{s} }

// Orders 返回订单仓储视图
func (s *MemoryStore) Orders() OrderRepository { return memoryOrders{s} }

func (s *MemoryStore) allocID(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

// ---- users ----

type memoryUsers struct{ s *MemoryStore }

func (u memoryUsers) Create(ctx context.Context, user *domain.User) error {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	email := domain.NormalizeEmail(user.Email)
	for _, existing := range s.users {
		if existing.Email == email {
			return domain.ErrConflict
		}
	}
	now := s.now()
	cp := *user
	cp.ID = s.allocID("users")
	cp.Email = email
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.users[cp.ID] = &cp

	user.ID, user.Email, user.CreatedAt, user.UpdatedAt = cp.ID, cp.Email, now, now
	return nil
}

func (u memoryUsers) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	if user, ok := u.s.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, nil
}

func (u memoryUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	for _, user := range u.s.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, nil
}

func (u memoryUsers) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return u.update(id, func(user *domain.User) { user.PasswordHash = passwordHash })
}

func (u memoryUsers) UpdateRole(ctx context.Context, id int64, role domain.UserRole) error {
	return u.update(id, func(user *domain.User) { user.Role = role })
}

func (u memoryUsers) update(id int64, fn func(*domain.User)) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(user)
	user.UpdatedAt = u.s.now()
	return nil
}

// ---- products ----

type memoryProducts struct{ s *MemoryStore }

func (m memoryProducts) Create(ctx context.Context, p *domain.Product) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cp := *p
	cp.ID = s.allocID("products")
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.products[cp.ID] = &cp
	p.ID, p.CreatedAt, p.UpdatedAt = cp.ID, now, now
	return nil
}

func (m memoryProducts) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.products[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m memoryProducts) Update(ctx context.Context, id int64, req *domain.UpdateProductRequest) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.products[id]
	if !ok {
		return domain.ErrNotFound
	}
	// 在持有锁的当前记录上修改，与 Checkout 的扣减串行
	cp := *existing
	req.Apply(&cp)
	cp.UpdatedAt = s.now()
	s.products[id] = &cp
	return nil
}

func (m memoryProducts) List(ctx context.Context, req *domain.ProductListRequest) ([]*domain.Product, int64, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if req.ActiveOnly && !p.Active {
			continue
		}
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, req.Page, req.PageSize), int64(len(all)), nil
}

// ---- orders ----

type memoryOrders struct{ s *MemoryStore }

func (o memoryOrders) Checkout(ctx context.Context, productID int64, now time.Time) (*domain.Order, error) {
	s := o.s
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := p.CheckoutError(); err != nil {
		return nil, err
	}
	p.Stock--
	p.UpdatedAt = now

	order := domain.NewPendingOrder(p, now)
	order.ID = s.allocID("orders")
	cp := *order
	s.orders[order.ID] = &cp
	return order, nil
}

func (o memoryOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()
	if order, ok := o.s.orders[id]; ok {
		cp := *order
		return &cp, nil
	}
	return nil, nil
}

func (o memoryOrders) CompareAndSetStatus(ctx context.Context, id int64, from, to domain.OrderStatus, now time.Time) (bool, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	order, ok := o.s.orders[id]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	order.UpdatedAt = now
	return true, nil
}

func (o memoryOrders) List(ctx context.Context, req *domain.OrderListRequest) ([]*domain.Order, int64, error) {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()

	all := make([]*domain.Order, 0, len(o.s.orders))
	for _, order := range o.s.orders {
		if req.Status != nil && order.Status != *req.Status {
			continue
		}
		cp := *order
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return paginate(all, req.Page, req.PageSize), int64(len(all)), nil
}

func (o memoryOrders) Stats(ctx context.Context) (*domain.OrderStats, error) {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()
	stats := &domain.OrderStats{Revenue: decimal.Zero}
	for _, order := range o.s.orders {
		stats.Add(order.Status, 1, order.ProductPrice)
	}
	return stats, nil
}

func paginate[T any](items []T, page, size int) []T {
	page, size = domain.NormalizePage(page, size)
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
