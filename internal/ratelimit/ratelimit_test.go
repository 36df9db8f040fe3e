package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNoOpRateLimiter(t *testing.T) {
	limiter := &NoOpRateLimiter{}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(ctx, "any-key")
		if err != nil {
			t.Errorf("Allow() error = %v, want nil", err)
		}
		if !allowed {
			t.Errorf("Allow() = false, want true")
		}
	}

	if err := limiter.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestNewRedisRateLimiter_Disabled(t *testing.T) {
	limiter, err := NewRedisRateLimiter("", 100, time.Minute, true)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v, want nil", err)
	}

	allowed, err := limiter.Allow(context.Background(), "test-key")
	if err != nil {
		t.Errorf("Allow() error = %v, want nil", err)
	}
	if !allowed {
		t.Errorf("Allow() = false, want true (disabled limiter should allow all)")
	}

	if err := limiter.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestNewRedisRateLimiter_InvalidURL(t *testing.T) {
	_, err := NewRedisRateLimiter("not-a-valid-url", 100, time.Minute, false)
	if err == nil {
		t.Error("NewRedisRateLimiter() with invalid URL should return error")
	}
}

func TestAllow_EnforcesLimit(t *testing.T) {
	limiter := NewWithClient(setupTestRedis(t), 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "client-a")
		if err != nil {
			t.Fatalf("Allow() request %d error = %v", i+1, err)
		}
		if !allowed {
			t.Errorf("Allow() request %d = false, want true", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, "client-a")
	if err != nil {
		t.Fatalf("Allow() over-limit error = %v", err)
	}
	if allowed {
		t.Error("Allow() request 4 = true, want false (should be rate limited)")
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	limiter := NewWithClient(setupTestRedis(t), 1, time.Minute)
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "client-a")
	if err != nil || !allowed {
		t.Fatalf("Allow(client-a) = %v, %v, want true, nil", allowed, err)
	}

	allowed, err = limiter.Allow(ctx, "client-b")
	if err != nil {
		t.Fatalf("Allow(client-b) error = %v", err)
	}
	if !allowed {
		t.Error("Allow(client-b) = false, want true (keys have independent limits)")
	}
}

func TestMiddleware(t *testing.T) {
	limiter := NewWithClient(setupTestRedis(t), 2, time.Minute)
	handler := Middleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("request %d status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("over-limit status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}

	// A different client IP is not affected.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/analyze", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want %d", rec.Code, http.StatusOK)
	}
}
