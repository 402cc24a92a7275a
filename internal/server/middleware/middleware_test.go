package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dtorcivia/calmerge/internal/crypto"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestBearerAuth(t *testing.T) {
	verifier, err := crypto.NewTokenVerifier("cm_secret", "server-secret")
	if err != nil {
		t.Fatalf("NewTokenVerifier failed: %v", err)
	}
	handler := BearerAuth(verifier)(okHandler)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic cm_secret", http.StatusUnauthorized},
		{"wrong token", "Bearer cm_other", http.StatusUnauthorized},
		{"valid", "Bearer cm_secret", http.StatusOK},
		{"case insensitive scheme", "bearer cm_secret", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/api/occurrences", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, rr.Code)
		}
	}
}

func TestBearerAuthDisabled(t *testing.T) {
	handler := BearerAuth(nil)(okHandler)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/occurrences", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with auth disabled, got %d", rr.Code)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if seen == "" || rr.Header().Get("X-Request-ID") != seen {
		t.Fatalf("expected generated request id, got %q / %q", seen, rr.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "req_client")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "req_client" {
		t.Fatalf("expected client request id to be kept, got %q", seen)
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(60, 2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := rl.Allow("1.2.3.4"); !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	ok, wait := rl.Allow("1.2.3.4")
	if ok {
		t.Fatalf("expected burst to be exhausted")
	}
	if wait != 1 {
		t.Fatalf("expected 1 second wait, got %d", wait)
	}
	if ok, _ := rl.Allow("5.6.7.8"); !ok {
		t.Fatalf("other clients should not be limited")
	}

	now = now.Add(time.Second)
	if ok, _ := rl.Allow("1.2.3.4"); !ok {
		t.Fatalf("expected a token after refill")
	}

	rl.Cleanup(0)
	now = now.Add(time.Minute)
	rl.Cleanup(time.Second)
	if len(rl.buckets) != 0 {
		t.Fatalf("expected stale buckets removed, got %d", len(rl.buckets))
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	handler := rl.Middleware(okHandler)

	req := httptest.NewRequest("GET", "/api/occurrences", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	if NewRateLimiter(0, 0) != nil {
		t.Fatalf("expected disabled limiter to be nil")
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://app.example.com"})(okHandler)

	req := httptest.NewRequest("OPTIONS", "/api/occurrences", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("expected allowed origin header")
	}

	req = httptest.NewRequest("GET", "/api/occurrences", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected CORS header for unknown origin")
	}
}
