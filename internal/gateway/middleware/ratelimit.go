package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiterConfig tunes the per-client token bucket.
type RateLimiterConfig struct {
	// RequestsPerMinute is the sustained refill rate.
	RequestsPerMinute int
	// Burst is the bucket capacity.
	Burst int
	// Enabled turns limiting off entirely when false.
	Enabled bool
	// CleanupInterval is how often idle buckets are dropped.
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig returns limits sized for a single local UI. The
// guard is against a runaway render loop hammering the file-tree endpoints,
// so the ceiling sits well above normal interactive traffic.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerMinute: 300,
		Burst:             30,
		Enabled:           true,
		CleanupInterval:   5 * time.Minute,
	}
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// take refills the bucket for the elapsed time, then tries to spend one
// token. It reports whether the request may proceed, the tokens left, and
// when the bucket will be full again.
func (b *bucket) take(rate float64, capacity int) (bool, int, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * rate
	if b.tokens > float64(capacity) {
		b.tokens = float64(capacity)
	}
	b.lastRefill = now

	reset := now.Add(time.Duration((float64(capacity) - b.tokens) / rate * float64(time.Second)))

	if b.tokens < 1 {
		return false, 0, reset
	}
	b.tokens--
	return true, int(b.tokens), reset
}

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	config  RateLimiterConfig
	mu      sync.RWMutex
	buckets map[string]*bucket
	stopCh  chan struct{}
}

// NewRateLimiter creates a rate limiter and, when enabled, starts the idle
// bucket sweeper.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	if config.Enabled && config.CleanupInterval > 0 {
		go rl.sweep()
	}
	return rl
}

// Stop terminates the sweeper goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * rl.config.CleanupInterval)
			rl.mu.Lock()
			for addr, b := range rl.buckets {
				b.mu.Lock()
				idle := b.lastRefill.Before(cutoff)
				b.mu.Unlock()
				if idle {
					delete(rl.buckets, addr)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *RateLimiter) bucketFor(addr string) *bucket {
	rl.mu.RLock()
	b, ok := rl.buckets[addr]
	rl.mu.RUnlock()
	if ok {
		return b
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok = rl.buckets[addr]; ok {
		return b
	}
	b = &bucket{tokens: float64(rl.config.Burst), lastRefill: time.Now()}
	rl.buckets[addr] = b
	return b
}

// Allow reports whether a request from addr may proceed, along with the
// remaining tokens and the time the bucket refills completely.
func (rl *RateLimiter) Allow(addr string) (bool, int, time.Time) {
	if !rl.config.Enabled {
		return true, rl.config.RequestsPerMinute, time.Now().Add(time.Minute)
	}
	rate := float64(rl.config.RequestsPerMinute) / 60.0
	return rl.bucketFor(addr).take(rate, rl.config.Burst)
}

// RateLimit rejects over-limit requests with 429 and annotates every
// response with the usual X-RateLimit headers.
func (rl *RateLimiter) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, reset := rl.Allow(clientAddr(r))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(reset).Seconds())+1, 10))
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
