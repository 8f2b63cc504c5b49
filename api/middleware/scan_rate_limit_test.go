package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeLimiterStore struct {
	counts map[string]int64
}

func newFakeLimiterStore() *fakeLimiterStore {
	return &fakeLimiterStore{counts: make(map[string]int64)}
}

func (f *fakeLimiterStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.counts[key]++
	return f.counts[key], nil
}

func TestScanRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	policy := NewScanRateLimitPolicy("scans", 0, 0, 0)
	called := false
	handler := ScanRateLimit(policy, newFakeLimiterStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", strings.NewReader(`{}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatal("expected handler to run with disabled policy")
	}
}

func TestScanRateLimitBlocksOverIPLimit(t *testing.T) {
	policy := NewScanRateLimitPolicy("scans", time.Minute, 2, 0)
	store := newFakeLimiterStore()
	handler := ScanRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", strings.NewReader(`{}`))
		req.RemoteAddr = "10.0.0.1:5000"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i+1, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", strings.NewReader(`{}`))
	req.RemoteAddr = "10.0.0.1:5000"
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
}

func TestScanRateLimitBlocksOverStoreLimit(t *testing.T) {
	policy := NewScanRateLimitPolicy("scans", time.Minute, 0, 1)
	store := newFakeLimiterStore()
	handler := ScanRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"store_id":"store-7"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", strings.NewReader(body))
	req.RemoteAddr = "10.0.0.1:5000"
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/scans", strings.NewReader(body))
	req.RemoteAddr = "10.0.0.2:5000"
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
}

func TestScanRateLimitPreservesRequestBody(t *testing.T) {
	policy := NewScanRateLimitPolicy("scans", time.Minute, 0, 10)
	var seen string
	handler := ScanRateLimit(policy, newFakeLimiterStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		seen = string(raw)
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"store_id":"store-9","client_event_id":"evt-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", strings.NewReader(body))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != body {
		t.Fatalf("expected handler to see original body, got %s", seen)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.0.1:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected forwarded ip, got %s", got)
	}
}
