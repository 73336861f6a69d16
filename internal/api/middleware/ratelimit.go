package middleware

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Limiter decides whether one more request for key may proceed. The Redis
// sliding-window limiter satisfies it for multi-instance deployments.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// ──────────────────────────────────────────────────────────────────────────────
// Token Bucket Rate Limiter (single instance)
// ──────────────────────────────────────────────────────────────────────────────

// bucket is a simple in-memory token bucket for one caller.
type bucket struct {
	tokens    float64
	lastRefil time.Time
	mu        sync.Mutex
}

// MemoryLimiter holds per-caller buckets and the shared read-write lock.
type MemoryLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   float64 // maximum token capacity
}

// NewMemoryLimiter creates a limiter with the given requests-per-second
// allowance. The burst capacity is max(10, rps). Stale buckets are evicted
// until ctx is cancelled.
func NewMemoryLimiter(ctx context.Context, rps int) *MemoryLimiter {
	burst := float64(rps)
	if burst < 10 {
		burst = 10
	}
	rl := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		rate:    float64(rps),
		burst:   burst,
	}
	go rl.evictLoop(ctx)
	return rl
}

// Allow deducts one token from key's bucket.
func (rl *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	// Fast path: bucket exists
	rl.mu.RLock()
	b, ok := rl.buckets[key]
	rl.mu.RUnlock()

	if !ok {
		rl.mu.Lock()
		if b, ok = rl.buckets[key]; !ok {
			b = &bucket{tokens: rl.burst, lastRefil: time.Now()}
			rl.buckets[key] = b
		}
		rl.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefil).Seconds() * rl.rate
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.lastRefil = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

func (rl *MemoryLimiter) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-10 * time.Minute)
			for key, b := range rl.buckets {
				b.mu.Lock()
				if b.lastRefil.Before(cutoff) {
					delete(rl.buckets, key)
				}
				b.mu.Unlock()
			}
			rl.mu.Unlock()
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Middleware
// ──────────────────────────────────────────────────────────────────────────────

// RateLimitMiddleware rejects callers over the limiter's allowance with 429.
// Authenticated callers are keyed by user id, everyone else by IP, so it
// should run after JWTMiddleware. A nil limiter disables the check; a limiter
// error lets the request through.
func RateLimitMiddleware(scope string, limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := scope + ":ip:" + c.ClientIP()
		if id := GetUserID(c); id != uuid.Nil {
			key = scope + ":user:" + id.String()
		}

		ok, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Printf("[ratelimit] WARN: %s: %v", key, err)
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "too many requests, please slow down",
				"code":    "ERR_RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
