package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func TestSessionRoutes(t *testing.T) {
	p := NewProvider("secret")
	app := fiber.New()
	RegisterRoutes(app.Group("/session"), p)

	req := httptest.NewRequest(http.MethodPut, "/session", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without token, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodPut, "/session", strings.NewReader(`{"token":"garbage"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}

	body := `{"token":"` + signToken(t, "secret", "user-9", time.Hour) + `"}`
	req = httptest.NewRequest(http.MethodPut, "/session", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/session", nil))
	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !state.Authenticated || state.UserID != "user-9" {
		t.Fatalf("unexpected state %+v", state)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodDelete, "/session", nil))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if p.Current().Authenticated {
		t.Fatalf("expected signed out")
	}
}
