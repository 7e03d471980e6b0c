package settings

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinicsuite/agenda/internal/platform/db"
)

func newTestHandler() *Handler {
	return NewHandler(NewService(newMockRepo(), nil, 0))
}

func newCtx(method, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, "/api/tenant/settings", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(db.WithTenant(req.Context(), "clinic-a"))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Get(t *testing.T) {
	h := newTestHandler()
	c, rec := newCtx(http.MethodGet, "")
	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"monday"`) {
		t.Errorf("expected working hours in body, got %s", rec.Body.String())
	}
}

func TestHandler_Update(t *testing.T) {
	h := newTestHandler()
	c, rec := newCtx(http.MethodPut, `{"working_hours":{"monday":{"enabled":true,"start":"08:00","end":"18:00","break_start":"12:00","break_end":"13:00"}},"holidays":[{"date":"2024-12-25","closed":true}]}`)
	if err := h.Update(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_Update_Invalid(t *testing.T) {
	h := newTestHandler()
	c, _ := newCtx(http.MethodPut, `{"working_hours":{"monday":{"enabled":true,"start":"08:00","end":"18:00","break_start":"12:00"}}}`)
	err := h.Update(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Update_MalformedJSON(t *testing.T) {
	h := newTestHandler()
	c, _ := newCtx(http.MethodPut, `{"working_hours":`)
	err := h.Update(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
