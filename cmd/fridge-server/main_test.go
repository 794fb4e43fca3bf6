package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/fridge_shop/internal/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Name: "fridge-shop", Env: "test", Port: 8080, Version: "test", RequestTimeout: 5 * time.Second},
		Database: config.DatabaseConfig{Driver: "memory"},
		Cache:    config.CacheConfig{Type: "memory", TTL: time.Minute},
		JWT: config.JWTConfig{
			Secret:          "main-test-secret-main-test-secret-0000",
			Issuer:          "fridge-shop",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: time.Hour,
		},
		RateLimit: config.RateLimitConfig{Store: "memory", Capacity: 5, Window: time.Minute, IdleTTL: 2 * time.Minute},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
		Seed:      config.SeedConfig{AdminEmail: "ops@fridge.io", AdminPassword: "ops-pass", AdminUsername: "ops"},
	}
}

func TestNewApp_Healthz(t *testing.T) {
	a, err := newApp(context.Background(), memoryConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	rw := httptest.NewRecorder()
	a.handler.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var body struct {
		Code int               `json:"code"`
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body.Code != 0 || body.Data["status"] != "ok" || body.Data["version"] != "test" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestNewApp_SeededAdminCanLogin(t *testing.T) {
	a, err := newApp(context.Background(), memoryConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	payload, _ := json.Marshal(map[string]string{"email": "ops@fridge.io", "password": "ops-pass"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rw := httptest.NewRecorder()
	a.handler.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}

	var body struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders/stats", nil)
	req.Header.Set("Authorization", "Bearer "+body.Data.AccessToken)
	rw = httptest.NewRecorder()
	a.handler.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("admin stats: expected 200, got %d", rw.Code)
	}
}

func TestNewApp_CloseReleasesInReverseOrder(t *testing.T) {
	var order []int
	a := &app{logger: zap.NewNop()}
	a.onClose(func() error { order = append(order, 1); return nil })
	a.onClose(func() error { order = append(order, 2); return nil })
	a.Close()
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("unexpected close order: %v", order)
	}
}
