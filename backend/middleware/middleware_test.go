package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestRateLimiter ensures requests exceed limit produce 429 and include Retry-After.
func TestRateLimiter(t *testing.T) {
	rl := RateLimiter(3) // 3 per minute
	hits := 5
	handled := 0
	h := rl(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handled++; w.WriteHeader(200) }))
	for i := 0; i < hits; i++ {
		req := httptest.NewRequest("GET", "http://example.test/", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if i < 3 && rec.Code != 200 {
			t.Fatalf("expected 200 before limit, got %d", rec.Code)
		}
		if i >= 3 && rec.Code != 429 {
			t.Fatalf("expected 429 after limit, got %d", rec.Code)
		}
		if i >= 3 && rec.Header().Get("Retry-After") == "" {
			t.Fatalf("expected Retry-After header on 429")
		}
	}
	if handled != 3 {
		t.Fatalf("expected handled=3 got %d", handled)
	}
	// advance time by forcing sleep past a minute boundary (short sleep then manual wait) -- to keep test fast we won't actually wait 60s but ensure bucket not refilled yet.
	// NOTE: For a production-grade limiter, inject clock; here we only validate immediate window behaviour.
}
