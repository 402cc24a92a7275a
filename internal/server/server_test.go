package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dtorcivia/calmerge/internal/config"
	"github.com/dtorcivia/calmerge/internal/database"
)

func newTestServer(t *testing.T, token string) http.Handler {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Auth.APIToken = token
	cfg.Server.RateLimit = 0

	srv, err := New(cfg, db)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv.Handler()
}

func TestHealth(t *testing.T) {
	handler := newTestServer(t, "")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}

	var body struct {
		Status   string   `json:"status"`
		Backends []string `json:"backends"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Status != "healthy" {
		t.Fatalf("expected healthy, got %q", body.Status)
	}
	if len(body.Backends) != 1 || body.Backends[0] != database.BackendICS {
		t.Fatalf("expected only the ics backend, got %v", body.Backends)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	handler := newTestServer(t, "cm_test")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/accounts", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req := httptest.NewRequest("GET", "/api/accounts", nil)
	req.Header.Set("Authorization", "Bearer cm_test")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOAuthRoutesArePublic(t *testing.T) {
	handler := newTestServer(t, "cm_test")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/oauth/google/start", nil))
	// Google is not configured: the route answers without demanding a token.
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for unconfigured Google, got %d", rr.Code)
	}
}
