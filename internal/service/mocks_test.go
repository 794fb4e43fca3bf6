package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MorseWayne/fridge_shop/internal/domain"
)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// mockBlacklist 内存吊销名单，可注入错误
type mockBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Duration
	err     error
}

func newMockBlacklist() *mockBlacklist {
	return &mockBlacklist{entries: make(map[string]time.Duration)}
}

func (m *mockBlacklist) Add(ctx context.Context, fingerprint string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries[fingerprint] = ttl
	return nil
}

func (m *mockBlacklist) Contains(ctx context.Context, fingerprint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.entries[fingerprint]
	return ok, nil
}

func (m *mockBlacklist) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// countingHasher 记录校验次数，用明文前缀代替真实哈希
type countingHasher struct {
	mu       sync.Mutex
	verifies int
}

func (h *countingHasher) Hash(plain string) (string, error) {
	return "plain:" + plain, nil
}

func (h *countingHasher) Verify(plain, hash string) (bool, error) {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	if len(hash) < 6 || hash[:6] != "plain:" {
		return false, errors.New("malformed hash")
	}
	return hash == "plain:"+plain, nil
}

func (h *countingHasher) Verifies() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}

// recordingPublisher 记录发布的订单事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(ctx context.Context, evt domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) Events() []domain.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OrderEvent(nil), p.events...)
}

func testUser(id int64, role domain.UserRole) *domain.User {
	return &domain.User{
		ID:       id,
		Username: "fridge-user",
		Email:    "user@example.com",
		Role:     role,
		IsActive: true,
	}
}
