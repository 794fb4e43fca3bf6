package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/domain"
	"github.com/MorseWayne/fridge_shop/internal/repo"
)

func TestUserService_EnsureAdmin(t *testing.T) {
	store := repo.NewMemoryStore()
	hasher := &countingHasher{}
	svc := NewUserService(store.Users(), hasher, zap.NewNop())
	ctx := context.Background()

	admin, err := svc.EnsureAdmin(ctx, "Ops@Fridge.io", "first-pass", "")
	if err != nil {
		t.Fatalf("EnsureAdmin failed: %v", err)
	}
	if !admin.IsAdmin() || admin.Email != "ops@fridge.io" || admin.Username != "admin" {
		t.Errorf("unexpected admin: %+v", admin)
	}

	// 再次调用重置口令，不重复创建
	again, err := svc.EnsureAdmin(ctx, "ops@fridge.io", "second-pass", "")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != admin.ID {
		t.Errorf("expected same admin id, got %d vs %d", again.ID, admin.ID)
	}
	if ok, _ := hasher.Verify("second-pass", again.PasswordHash); !ok {
		t.Error("password should have been reset")
	}

	if _, err := svc.EnsureAdmin(ctx, "", "x", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestUserService_EnsureAdminPromotesExistingUser(t *testing.T) {
	store := repo.NewMemoryStore()
	svc := NewUserService(store.Users(), &countingHasher{}, zap.NewNop())
	ctx := context.Background()

	u := &domain.User{Username: "carol", Email: "carol@example.com", PasswordHash: "plain:x", Role: domain.UserRoleUser, IsActive: true}
	if err := store.Users().Create(ctx, u); err != nil {
		t.Fatal(err)
	}

	admin, err := svc.EnsureAdmin(ctx, "carol@example.com", "new-pass", "ignored")
	if err != nil {
		t.Fatal(err)
	}
	if admin.ID != u.ID || admin.Role != domain.UserRoleAdmin || admin.Username != "carol" {
		t.Errorf("unexpected promoted user: %+v", admin)
	}
}

func TestUserService_GetUserByID(t *testing.T) {
	svc := NewUserService(repo.NewMemoryStore().Users(), &countingHasher{}, zap.NewNop())
	_, err := svc.GetUserByID(context.Background(), 5)
	if !errors.Is(err, ErrUserNotFound) || !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
