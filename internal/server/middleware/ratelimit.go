package middleware

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/dtorcivia/calmerge/internal/response"
)

// RateLimiter implements per-client rate limiting using token buckets.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	perMinute int
	burst     int
	now       func() time.Time
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter allows perMinute requests per client with the given burst.
// A non-positive perMinute returns nil, which disables limiting.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &RateLimiter{
		buckets:   make(map[string]*tokenBucket),
		perMinute: perMinute,
		burst:     burst,
		now:       time.Now,
	}
}

func (rl *RateLimiter) refillRate() float64 {
	return float64(rl.perMinute) / 60.0
}

// Allow takes a token for key. When none is left it returns false and the
// seconds until one is available.
func (rl *RateLimiter) Allow(key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bucket, ok := rl.buckets[key]
	if !ok {
		bucket = &tokenBucket{tokens: float64(rl.burst), lastRefill: now}
		rl.buckets[key] = bucket
	}

	bucket.tokens += now.Sub(bucket.lastRefill).Seconds() * rl.refillRate()
	if bucket.tokens > float64(rl.burst) {
		bucket.tokens = float64(rl.burst)
	}
	bucket.lastRefill = now

	if bucket.tokens >= 1.0 {
		bucket.tokens--
		return true, 0
	}
	wait := int(math.Ceil((1.0 - bucket.tokens) / rl.refillRate()))
	return false, wait
}

// Cleanup removes buckets that have not been used for maxAge.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxAge)
	for key, bucket := range rl.buckets {
		if bucket.lastRefill.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// Middleware limits requests by client address. A nil limiter passes everything.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ok, wait := rl.Allow(ClientIP(r)); !ok {
			response.WriteRateLimited(w, wait)
			return
		}
		next.ServeHTTP(w, r)
	})
}
