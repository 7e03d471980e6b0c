package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runHealth(t *testing.T, h echo.HandlerFunc) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec, body
}

func TestHealthHandler_AllHealthy(t *testing.T) {
	h := HealthHandler(map[string]CheckFunc{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return nil },
	}, func() *PoolStats { return &PoolStats{TotalConns: 3, MaxConns: 20} })

	rec, body := runHealth(t, h)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
	pool, ok := body["pool"].(map[string]interface{})
	if !ok || pool["max_conns"].(float64) != 20 {
		t.Errorf("expected pool stats in body, got %v", body["pool"])
	}
}

func TestHealthHandler_OneFailing(t *testing.T) {
	h := HealthHandler(map[string]CheckFunc{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}, nil)

	rec, body := runHealth(t, h)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	checks := body["checks"].(map[string]interface{})
	if checks["redis"] != "connection refused" {
		t.Errorf("expected redis failure message, got %v", checks["redis"])
	}
	if checks["postgres"] != "ok" {
		t.Errorf("expected postgres ok, got %v", checks["postgres"])
	}
	if _, ok := body["pool"]; ok {
		t.Error("expected no pool stats when stats func is nil")
	}
}
