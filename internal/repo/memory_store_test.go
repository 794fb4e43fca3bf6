package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MorseWayne/fridge_shop/internal/domain"
)

func seedProduct(t *testing.T, s *MemoryStore, stock int, active bool) *domain.Product {
	t.Helper()
	p := &domain.Product{Name: "Water", Price: decimal.RequireFromString("1.20"), Stock: stock, Active: active}
	require.NoError(t, s.Products().Create(context.Background(), p))
	return p
}

func TestMemoryStore_ConcurrentCheckoutLastUnit(t *testing.T) {
	s := NewMemoryStore()
	p := seedProduct(t, s, 1, true)

	const workers = 2
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		outOfStock int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.Orders().Checkout(context.Background(), p.ID, time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrOutOfStock):
				outOfStock++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, outOfStock)

	got, err := s.Products().GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)

	_, total, err := s.Orders().List(context.Background(), &domain.OrderListRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestMemoryStore_CheckoutManyNeverOversells(t *testing.T) {
	s := NewMemoryStore()
	p := seedProduct(t, s, 10, true)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Orders().Checkout(context.Background(), p.ID, time.Now())
		}()
	}
	wg.Wait()

	got, _ := s.Products().GetByID(context.Background(), p.ID)
	assert.Equal(t, 0, got.Stock)
	_, total, _ := s.Orders().List(context.Background(), &domain.OrderListRequest{PageSize: 100})
	assert.Equal(t, int64(10), total)
}

func TestMemoryStore_CheckoutInactiveLeavesStock(t *testing.T) {
	s := NewMemoryStore()
	p := seedProduct(t, s, 3, false)

	_, err := s.Orders().Checkout(context.Background(), p.ID, time.Now())
	assert.True(t, errors.Is(err, domain.ErrProductInactive))

	got, _ := s.Products().GetByID(context.Background(), p.ID)
	assert.Equal(t, 3, got.Stock)

	_, err = s.Orders().Checkout(context.Background(), 999, time.Now())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMemoryStore_CompareAndSetStatus(t *testing.T) {
	s := NewMemoryStore()
	p := seedProduct(t, s, 1, true)
	order, err := s.Orders().Checkout(context.Background(), p.ID, time.Now())
	require.NoError(t, err)

	ok, err := s.Orders().CompareAndSetStatus(context.Background(), order.ID, domain.OrderStatusPending, domain.OrderStatusPaid, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Orders().CompareAndSetStatus(context.Background(), order.ID, domain.OrderStatusPending, domain.OrderStatusCancelled, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, _ := s.Orders().GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.OrderStatusPaid, got.Status)
}

func TestMemoryStore_Users(t *testing.T) {
	s := NewMemoryStore()
	users := s.Users()
	ctx := context.Background()

	u := &domain.User{Username: "bob", Email: "Bob@Example.com", PasswordHash: "h", Role: domain.UserRoleUser, IsActive: true}
	require.NoError(t, users.Create(ctx, u))
	assert.Equal(t, "bob@example.com", u.Email)

	err := users.Create(ctx, &domain.User{Email: "bob@example.com"})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	got, err := users.GetByEmail(ctx, "BOB@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	require.NoError(t, users.UpdateRole(ctx, u.ID, domain.UserRoleAdmin))
	got, _ = users.GetByID(ctx, u.ID)
	assert.Equal(t, domain.UserRoleAdmin, got.Role)

	missing, err := users.GetByID(ctx, 404)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_ProductListPaging(t *testing.T) {
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		seedProduct(t, s, 1, i%2 == 0)
	}

	items, total, err := s.Products().List(context.Background(), &domain.ProductListRequest{Page: 1, PageSize: 2, ActiveOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, items, 2)

	items, _, _ = s.Products().List(context.Background(), &domain.ProductListRequest{Page: 9, PageSize: 2})
	assert.Empty(t, items)
}
