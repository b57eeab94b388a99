package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentmesh/core/internal/config"
)

func TestBucketPool_DeniesAfterBurstWithRetryAfter(t *testing.T) {
	p := newBucketPool(config.BucketConfig{RequestsPerMinute: 60, BurstSize: 2}, 0, 0)

	for i := 0; i < 2; i++ {
		if ok, _ := p.allow("alice"); !ok {
			t.Fatalf("expected burst request %d admitted", i)
		}
	}
	ok, retryAfter := p.allow("alice")
	if ok {
		t.Fatal("expected denial once burst is spent")
	}
	if retryAfter <= 0 || retryAfter > time.Second {
		t.Fatalf("expected retryAfter within one refill period, got %s", retryAfter)
	}
}

func TestBucketPool_KeysAreIndependent(t *testing.T) {
	p := newBucketPool(config.BucketConfig{RequestsPerMinute: 60, BurstSize: 1}, 0, 0)

	if ok, _ := p.allow("alice"); !ok {
		t.Fatal("expected alice admitted")
	}
	if ok, _ := p.allow("alice"); ok {
		t.Fatal("expected alice denied after her burst")
	}
	if ok, _ := p.allow("bob"); !ok {
		t.Fatal("expected bob unaffected by alice's bucket")
	}
}

func TestRateLimitMiddleware_SplitsGetAndMutationPools(t *testing.T) {
	rl := NewRateLimitMiddleware(config.RateLimitConfig{
		Enabled:  true,
		Get:      config.BucketConfig{RequestsPerMinute: 60, BurstSize: 100},
		Mutation: config.BucketConfig{RequestsPerMinute: 60, BurstSize: 1},
	}, nil)
	h := rl.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := post(); got != http.StatusOK {
		t.Fatalf("expected first POST admitted, got %d", got)
	}
	rec2code := post()
	if rec2code != http.StatusTooManyRequests {
		t.Fatalf("expected second POST rate-limited, got %d", rec2code)
	}

	// The GET pool is untouched by the mutation flood.
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected GET unaffected by mutation limit, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware_SetsRetryAfterHeader(t *testing.T) {
	rl := NewRateLimitMiddleware(config.RateLimitConfig{
		Enabled:  true,
		Mutation: config.BucketConfig{RequestsPerMinute: 6, BurstSize: 1},
	}, nil)
	h := rl.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if i == 1 {
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("expected 429, got %d", rec.Code)
			}
			if rec.Header().Get("Retry-After") == "" {
				t.Fatal("expected Retry-After header on rejection")
			}
		}
	}
}

func TestRateLimitMiddleware_EvictStale(t *testing.T) {
	rl := NewRateLimitMiddleware(config.RateLimitConfig{
		Enabled: true,
		Get:     config.BucketConfig{RequestsPerMinute: 60, BurstSize: 10},
	}, nil)
	rl.get.allow("stale-key")
	if rl.BucketCount() != 1 {
		t.Fatalf("expected 1 tracked bucket, got %d", rl.BucketCount())
	}

	rl.EvictStale(time.Minute)
	if rl.BucketCount() != 1 {
		t.Fatal("expected fresh bucket to survive eviction")
	}

	rl.EvictStale(-time.Minute) // cutoff in the future; everything is stale
	if rl.BucketCount() != 0 {
		t.Fatalf("expected bucket evicted, got %d", rl.BucketCount())
	}
}
