package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/domain"
	"github.com/MorseWayne/fridge_shop/internal/service"
)

// mockAuthenticator 是用于测试的认证器模拟实现
type mockAuthenticator struct {
	identities map[string]*domain.Identity
	failures   map[string]error
	calls      int
}

func newMockAuthenticator() *mockAuthenticator {
	return &mockAuthenticator{
		identities: map[string]*domain.Identity{
			"user-token":  {UserID: 1, Email: "u@example.com", Roles: []domain.UserRole{domain.UserRoleUser}},
			"admin-token": {UserID: 2, Email: "a@example.com", Roles: []domain.UserRole{domain.UserRoleAdmin}},
			"no-roles":    {UserID: 3, Email: "n@example.com"},
		},
		failures: map[string]error{
			"expired-token": service.ErrTokenExpired,
			"revoked-token": service.ErrTokenRevoked,
		},
	}
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	m.calls++
	if err, ok := m.failures[token]; ok {
		return nil, fmt.Errorf("%w: %w", service.ErrUnauthenticated, err)
	}
	if id, ok := m.identities[token]; ok {
		return id, nil
	}
	return nil, fmt.Errorf("%w: %w", service.ErrUnauthenticated, service.ErrTokenMalformed)
}

// identityEcho 把上下文中的主体写回响应
func identityEcho() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFromContext(r.Context())
		if id == nil {
			w.Write([]byte("anonymous"))
			return
		}
		fmt.Fprintf(w, "user:%d", id.UserID)
	}
}

func serve(h http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAuthenticate_ValidToken(t *testing.T) {
	h := Authenticate(newMockAuthenticator(), zap.NewNop())(identityEcho())

	rr := serve(h, "Bearer user-token")
	if rr.Code != http.StatusOK || rr.Body.String() != "user:1" {
		t.Errorf("expected user:1, got %d %q", rr.Code, rr.Body.String())
	}

	// 前缀大小写不敏感
	rr = serve(h, "bearer admin-token")
	if rr.Body.String() != "user:2" {
		t.Errorf("expected user:2, got %q", rr.Body.String())
	}
}

func TestAuthenticate_NoTokenPassesThrough(t *testing.T) {
	auth := newMockAuthenticator()
	h := Authenticate(auth, zap.NewNop())(identityEcho())

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer"} {
		rr := serve(h, header)
		if rr.Code != http.StatusOK || rr.Body.String() != "anonymous" {
			t.Errorf("%q: expected anonymous pass-through, got %d %q", header, rr.Code, rr.Body.String())
		}
	}
	if auth.calls != 0 {
		t.Errorf("authenticator should not be called, got %d calls", auth.calls)
	}
}

func TestAuthenticate_InvalidTokenRejected(t *testing.T) {
	h := Authenticate(newMockAuthenticator(), zap.NewNop())(identityEcho())

	cases := map[string]string{
		"Bearer garbage":       "invalid token",
		"Bearer expired-token": "token expired",
		"Bearer revoked-token": "token revoked",
	}
	for header, msg := range cases {
		rr := serve(h, header)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%q: expected 401, got %d", header, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), msg) {
			t.Errorf("%q: expected message %q in %s", header, msg, rr.Body.String())
		}
	}
}

func TestAuthenticate_LenientPathTreatsInvalidAsAnonymous(t *testing.T) {
	h := Authenticate(newMockAuthenticator(), zap.NewNop(), "/test")(identityEcho())

	rr := serve(h, "Bearer revoked-token")
	if rr.Code != http.StatusOK || rr.Body.String() != "anonymous" {
		t.Errorf("expected anonymous pass-through, got %d %q", rr.Code, rr.Body.String())
	}
	if rr = serve(h, "Bearer user-token"); rr.Body.String() != "user:1" {
		t.Errorf("valid token should still attach identity, got %q", rr.Body.String())
	}
}

func TestRequireAuth(t *testing.T) {
	h := Authenticate(newMockAuthenticator(), zap.NewNop())(RequireAuth(identityEcho()))

	if rr := serve(h, ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rr.Code)
	}
	if rr := serve(h, "Bearer user-token"); rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestRequireRole(t *testing.T) {
	h := Authenticate(newMockAuthenticator(), zap.NewNop())(RequireAdmin(zap.NewNop())(identityEcho()))

	tests := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer user-token", http.StatusForbidden},
		{"Bearer no-roles", http.StatusForbidden},
		{"Bearer admin-token", http.StatusOK},
	}
	for _, tt := range tests {
		if rr := serve(h, tt.header); rr.Code != tt.want {
			t.Errorf("%q: expected %d, got %d", tt.header, tt.want, rr.Code)
		}
	}
}

func TestIdentityFromContext(t *testing.T) {
	if IdentityFromContext(context.Background()) != nil {
		t.Error("expected nil identity")
	}
	id := &domain.Identity{UserID: 9}
	if got := IdentityFromContext(WithIdentity(context.Background(), id)); got != id {
		t.Errorf("expected %v, got %v", id, got)
	}
}
