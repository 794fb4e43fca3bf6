package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/domain"
	"github.com/MorseWayne/fridge_shop/internal/repo"
)

func newOrderFixture(t *testing.T) (OrderService, *repo.MemoryStore, *recordingPublisher) {
	t.Helper()
	store := repo.NewMemoryStore()
	pub := &recordingPublisher{}
	return NewOrderService(store.Orders(), pub, zap.NewNop()), store, pub
}

func seedProduct(t *testing.T, store *repo.MemoryStore, stock int, active bool) *domain.Product {
	t.Helper()
	p := &domain.Product{Name: "Oat Milk", Price: decimal.RequireFromString("3.50"), Stock: stock, Active: active}
	if err := store.Products().Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func productStock(t *testing.T, store *repo.MemoryStore, id int64) int {
	t.Helper()
	p, err := store.Products().GetByID(context.Background(), id)
	if err != nil || p == nil {
		t.Fatalf("get product: %v", err)
	}
	return p.Stock
}

func TestOrderService_CreateOrder(t *testing.T) {
	svc, store, pub := newOrderFixture(t)
	p := seedProduct(t, store, 2, true)

	order, err := svc.CreateOrder(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("expected PENDING, got %s", order.Status)
	}
	if order.ProductName != "Oat Milk" || !order.ProductPrice.Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("unexpected snapshot: %+v", order)
	}
	if got := productStock(t, store, p.ID); got != 1 {
		t.Errorf("expected stock 1, got %d", got)
	}

	events := pub.Events()
	if len(events) != 1 || events[0].Type != domain.OrderEventCreated || events[0].OrderID != order.ID {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestOrderService_CreateOrderFailures(t *testing.T) {
	svc, store, pub := newOrderFixture(t)
	ctx := context.Background()
	empty := seedProduct(t, store, 0, true)
	inactive := seedProduct(t, store, 5, false)

	if _, err := svc.CreateOrder(ctx, empty.ID); !errors.Is(err, domain.ErrOutOfStock) {
		t.Errorf("expected ErrOutOfStock, got %v", err)
	}
	if _, err := svc.CreateOrder(ctx, inactive.ID); !errors.Is(err, domain.ErrProductInactive) {
		t.Errorf("expected ErrProductInactive, got %v", err)
	}
	if _, err := svc.CreateOrder(ctx, 404); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.CreateOrder(ctx, 0); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}

	if got := productStock(t, store, inactive.ID); got != 5 {
		t.Errorf("inactive product stock changed: %d", got)
	}
	if len(pub.Events()) != 0 {
		t.Error("no events expected for failed checkouts")
	}
}

func TestOrderService_Lifecycle(t *testing.T) {
	svc, store, pub := newOrderFixture(t)
	ctx := context.Background()
	p := seedProduct(t, store, 10, true)

	newOrder := func() *domain.Order {
		o, err := svc.CreateOrder(ctx, p.ID)
		if err != nil {
			t.Fatal(err)
		}
		return o
	}

	// PENDING -> PAID -> RELEASED
	o := newOrder()
	if _, err := svc.TransitionOrder(ctx, o.ID, domain.OrderStatusPaid); err != nil {
		t.Fatalf("PENDING->PAID: %v", err)
	}
	released, err := svc.TransitionOrder(ctx, o.ID, domain.OrderStatusReleased)
	if err != nil {
		t.Fatalf("PAID->RELEASED: %v", err)
	}
	if released.Status != domain.OrderStatusReleased {
		t.Errorf("expected RELEASED, got %s", released.Status)
	}

	// RELEASED -> CANCELLED 被拒绝
	_, err = svc.TransitionOrder(ctx, o.ID, domain.OrderStatusCancelled)
	var te *domain.TransitionError
	if !errors.As(err, &te) || te.From != domain.OrderStatusReleased || te.To != domain.OrderStatusCancelled {
		t.Fatalf("expected RELEASED->CANCELLED TransitionError, got %v", err)
	}

	// PENDING -> RELEASED 被拒绝且订单不变
	o2 := newOrder()
	if _, err := svc.TransitionOrder(ctx, o2.ID, domain.OrderStatusReleased); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	got, _ := svc.GetOrder(ctx, o2.ID)
	if got.Status != domain.OrderStatusPending {
		t.Errorf("order modified by illegal transition: %s", got.Status)
	}

	// PENDING -> CANCELLED
	if _, err := svc.TransitionOrder(ctx, o2.ID, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("PENDING->CANCELLED: %v", err)
	}

	// PAID -> CANCELLED
	o3 := newOrder()
	if _, err := svc.TransitionOrder(ctx, o3.ID, domain.OrderStatusPaid); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.TransitionOrder(ctx, o3.ID, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("PAID->CANCELLED: %v", err)
	}

	// 取消不回补库存
	if got := productStock(t, store, p.ID); got != 7 {
		t.Errorf("expected stock 7, got %d", got)
	}

	changed := 0
	for _, e := range pub.Events() {
		if e.Type == domain.OrderEventStatusChanged {
			changed++
		}
	}
	if changed != 5 {
		t.Errorf("expected 5 status change events, got %d", changed)
	}
}

func TestOrderService_TransitionValidation(t *testing.T) {
	svc, _, _ := newOrderFixture(t)
	ctx := context.Background()

	if _, err := svc.TransitionOrder(ctx, 1, domain.OrderStatus("SHIPPED")); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if _, err := svc.TransitionOrder(ctx, 999, domain.OrderStatusPaid); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOrderService_ConcurrentTransitionsSerialize(t *testing.T) {
	svc, store, _ := newOrderFixture(t)
	ctx := context.Background()
	p := seedProduct(t, store, 1, true)
	o, err := svc.CreateOrder(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		illegal   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.TransitionOrder(ctx, o.ID, domain.OrderStatusPaid)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrIllegalTransition):
				illegal++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || illegal != workers-1 {
		t.Errorf("expected 1 success and %d illegal, got %d/%d", workers-1, succeeded, illegal)
	}
}

func TestOrderService_ConcurrentCheckoutNeverOversells(t *testing.T) {
	svc, store, _ := newOrderFixture(t)
	ctx := context.Background()
	p := seedProduct(t, store, 3, true)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CreateOrder(ctx, p.ID); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrOutOfStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 3 {
		t.Errorf("expected 3 orders, got %d", created)
	}
	if got := productStock(t, store, p.ID); got != 0 {
		t.Errorf("expected stock 0, got %d", got)
	}
}

func TestOrderService_PublishFailureDoesNotFailOrder(t *testing.T) {
	svc, store, pub := newOrderFixture(t)
	pub.err = errors.New("broker down")
	p := seedProduct(t, store, 1, true)

	if _, err := svc.CreateOrder(context.Background(), p.ID); err != nil {
		t.Fatalf("publish failure must not fail checkout: %v", err)
	}
}

func TestOrderService_ListAndStats(t *testing.T) {
	svc, store, _ := newOrderFixture(t)
	ctx := context.Background()
	p := seedProduct(t, store, 10, true)

	var ids []int64
	for i := 0; i < 4; i++ {
		o, err := svc.CreateOrder(ctx, p.ID)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, o.ID)
	}
	svc.TransitionOrder(ctx, ids[0], domain.OrderStatusPaid)
	svc.TransitionOrder(ctx, ids[1], domain.OrderStatusPaid)
	svc.TransitionOrder(ctx, ids[1], domain.OrderStatusReleased)
	svc.TransitionOrder(ctx, ids[2], domain.OrderStatusCancelled)

	pending := domain.OrderStatusPending
	list, err := svc.ListOrders(ctx, &domain.OrderListRequest{Status: &pending})
	if err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || len(list.Orders) != 1 || list.Orders[0].ID != ids[3] {
		t.Errorf("unexpected pending list: %+v", list)
	}
	if list.Page != 1 || list.PageSize != domain.DefaultPageSize {
		t.Errorf("expected default paging, got %d/%d", list.Page, list.PageSize)
	}

	all, err := svc.ListOrders(ctx, &domain.OrderListRequest{Page: 2, PageSize: 3})
	if err != nil {
		t.Fatal(err)
	}
	if all.Total != 4 || len(all.Orders) != 1 {
		t.Errorf("expected 1 order on page 2, got %d of %d", len(all.Orders), all.Total)
	}

	bogus := domain.OrderStatus("LOST")
	if _, err := svc.ListOrders(ctx, &domain.OrderListRequest{Status: &bogus}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 4 || stats.Pending != 1 || stats.Paid != 1 || stats.Released != 1 || stats.Cancelled != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if !stats.Revenue.Equal(decimal.RequireFromString("7.00")) {
		t.Errorf("expected revenue 7.00, got %s", stats.Revenue)
	}
}
