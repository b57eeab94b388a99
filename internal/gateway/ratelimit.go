package gateway

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/agentmesh/core/internal/config"
	"github.com/agentmesh/core/internal/metrics"
)

// bucket is one caller's refillable allowance within a pool. Tokens accrue
// continuously at the pool's per-minute rate up to the burst cap; each
// admitted request draws one.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time // for pool eviction
}

// bucketPool is one set of per-key buckets sharing one rate/burst. The
// gateway keeps one pool for GET-shaped routes and one for mutation routes
// (the webhook ingress POST), matching the RATE_LIMIT_GET /
// RATE_LIMIT_MUTATION split.
type bucketPool struct {
	mu         sync.RWMutex
	buckets    map[string]*bucket
	refillRate float64 // tokens per second
	burst      float64
}

func newBucketPool(cfg config.BucketConfig, fallbackRPM, fallbackBurst int) *bucketPool {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = fallbackRPM
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = fallbackBurst
	}
	return &bucketPool{
		buckets:    make(map[string]*bucket),
		refillRate: float64(cfg.RequestsPerMinute) / 60.0,
		burst:      float64(cfg.BurstSize),
	}
}

// allow refills key's bucket for the elapsed time and draws one token. On
// denial it also reports how long until the next token accrues, which the
// middleware surfaces as Retry-After so well-behaved senders (GitHub
// redelivery included) back off instead of hammering.
func (p *bucketPool) allow(key string) (bool, time.Duration) {
	b := p.get(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * p.refillRate
	if b.tokens > p.burst {
		b.tokens = p.burst
	}
	b.lastRefill = now
	b.lastAccess = now

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true, 0
	}
	deficit := (1.0 - b.tokens) / p.refillRate
	return false, time.Duration(deficit * float64(time.Second))
}

func (p *bucketPool) get(key string) *bucket {
	p.mu.RLock()
	b, exists := p.buckets[key]
	p.mu.RUnlock()
	if exists {
		return b
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if b, exists = p.buckets[key]; exists {
		return b
	}
	now := time.Now()
	b = &bucket{tokens: p.burst, lastRefill: now, lastAccess: now}
	p.buckets[key] = b
	return b
}

func (p *bucketPool) evictStale(cutoff time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	evicted := 0
	for key, b := range p.buckets {
		b.mu.Lock()
		stale := b.lastAccess.Before(cutoff)
		b.mu.Unlock()
		if stale {
			delete(p.buckets, key)
			evicted++
		}
	}
	return evicted
}

func (p *bucketPool) count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.buckets)
}

// RateLimitMiddleware enforces per-key HTTP rate limits using token
// buckets, split into a GET pool and a mutation pool so a burst of
// webhook deliveries cannot starve read traffic and vice versa; the
// health and metrics paths bypass the limiter altogether. Rejections are
// counted on http_requests_total with status_code
// "429" when a metrics registry is wired in.
type RateLimitMiddleware struct {
	get      *bucketPool
	mutation *bucketPool
	enabled  bool
	metrics  *metrics.Registry
}

// NewRateLimitMiddleware creates a rate limit middleware from config. reg
// may be nil, in which case rejections are not counted.
func NewRateLimitMiddleware(cfg config.RateLimitConfig, reg *metrics.Registry) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		get:      newBucketPool(cfg.Get, 120, 30),
		mutation: newBucketPool(cfg.Mutation, 30, 10),
		enabled:  cfg.Enabled,
		metrics:  reg,
	}
}

// StartEviction launches a background goroutine that periodically removes
// stale buckets (no requests in the last maxAge). This prevents unbounded
// memory growth from unique API keys or IP addresses.
func (rl *RateLimitMiddleware) StartEviction(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.EvictStale(maxAge)
			}
		}
	}()
}

// EvictStale removes buckets that haven't been accessed within maxAge,
// from both the GET and mutation pools.
func (rl *RateLimitMiddleware) EvictStale(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	evicted := rl.get.evictStale(cutoff) + rl.mutation.evictStale(cutoff)
	if evicted > 0 {
		slog.Debug("rate limiter eviction", "evicted", evicted, "remaining", rl.get.count()+rl.mutation.count())
	}
}

// BucketCount returns the current number of tracked buckets across both
// pools (for testing/metrics).
func (rl *RateLimitMiddleware) BucketCount() int {
	return rl.get.count() + rl.mutation.count()
}

// Wrap wraps an http.Handler with rate limiting. GET/HEAD requests draw
// from the GET pool; everything else (the webhook ingress POST) draws
// from the mutation pool, so a flood of one shape never starves the
// other.
func (rl *RateLimitMiddleware) Wrap(next http.Handler) http.Handler {
	if !rl.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isMonitoringPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := ExtractAPIKey(r)
		if key == "" {
			key = r.RemoteAddr // fallback to IP-based bucketing
		}

		pool := rl.mutation
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			pool = rl.get
		}

		allowed, retryAfter := pool.allow(key)
		if !allowed {
			if rl.metrics != nil {
				rl.metrics.Counter("http_requests_total", "Total HTTP requests handled.").
					Inc(map[string]string{"method": r.Method, "route": r.URL.Path, "status_code": "429"})
			}
			secs := int(math.Ceil(retryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
