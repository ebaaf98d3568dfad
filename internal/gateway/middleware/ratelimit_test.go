package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(burst int, enabled bool) *RateLimiter {
	return NewRateLimiter(RateLimiterConfig{
		RequestsPerMinute: 60,
		Burst:             burst,
		Enabled:           enabled,
		CleanupInterval:   time.Minute,
	})
}

func TestRateLimiterBurstThenDeny(t *testing.T) {
	rl := newTestLimiter(3, true)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		allowed, remaining, _ := rl.Allow("127.0.0.1")
		if !allowed {
			t.Fatalf("request %d denied inside burst", i+1)
		}
		if want := 2 - i; remaining != want {
			t.Errorf("request %d: remaining = %d, want %d", i+1, remaining, want)
		}
	}

	allowed, remaining, reset := rl.Allow("127.0.0.1")
	if allowed {
		t.Error("request past burst was allowed")
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
	if !reset.After(time.Now()) {
		t.Error("reset time is not in the future")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerMinute: 600, // 10/s so the test refills quickly
		Burst:             1,
		Enabled:           true,
		CleanupInterval:   time.Minute,
	})
	defer rl.Stop()

	if allowed, _, _ := rl.Allow("127.0.0.1"); !allowed {
		t.Fatal("first request denied")
	}
	if allowed, _, _ := rl.Allow("127.0.0.1"); allowed {
		t.Fatal("second immediate request allowed")
	}

	time.Sleep(150 * time.Millisecond)

	if allowed, _, _ := rl.Allow("127.0.0.1"); !allowed {
		t.Error("request denied after refill window")
	}
}

func TestRateLimiterPerClientBuckets(t *testing.T) {
	rl := newTestLimiter(1, true)
	defer rl.Stop()

	rl.Allow("127.0.0.1")
	if allowed, _, _ := rl.Allow("127.0.0.1"); allowed {
		t.Fatal("first client not limited")
	}
	if allowed, _, _ := rl.Allow("192.168.0.7"); !allowed {
		t.Error("second client shares the first client's bucket")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := newTestLimiter(1, false)
	defer rl.Stop()

	for i := 0; i < 50; i++ {
		if allowed, _, _ := rl.Allow("127.0.0.1"); !allowed {
			t.Fatalf("request %d denied while disabled", i+1)
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := newTestLimiter(2, true)
	defer rl.Stop()

	handler := rl.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/files/tree", nil)
		req.RemoteAddr = "127.0.0.1:51000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		rec := do()
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "60" {
			t.Errorf("X-RateLimit-Limit = %s, want 60", rec.Header().Get("X-RateLimit-Limit"))
		}
	}

	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}
