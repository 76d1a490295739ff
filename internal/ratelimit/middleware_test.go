package ratelimit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/maltehedderich/toolgate-go/internal/kvstore"
)

const testBody = `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search"}}`

type rpcErrorEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   struct {
		Code    int                    `json:"code"`
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	} `json:"error"`
}

func newTestHandler(limiter *Limiter, next http.Handler) http.Handler {
	if next == nil {
		next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}
	return Middleware(limiter, 1<<20)(next)
}

func TestMiddlewareAllowsAndForwards(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()
	limiter := newTestLimiter(store, DefaultLimits())

	var forwardedBody string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		forwardedBody = string(body)
		w.WriteHeader(http.StatusOK)
	})

	handler := newTestHandler(limiter, next)

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(testBody))
	req.RemoteAddr = "198.51.100.7:4242"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if forwardedBody != testBody {
		t.Error("Expected the body to be restored for the downstream handler")
	}
	if rec.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("Expected X-RateLimit-Limit header")
	}
	if rec.Header().Get("X-RateLimit-Remaining") == "" {
		t.Error("Expected X-RateLimit-Remaining header")
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("Expected X-RateLimit-Reset header")
	}
	if rec.Header().Get("X-RateLimit-Window") == "" {
		t.Error("Expected X-RateLimit-Window header")
	}
}

func TestMiddlewareRejectsRateLimited(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()

	// A zero minute ceiling rejects the very first request, keeping the
	// test independent of wall-clock window boundaries.
	limiter := newTestLimiter(store, Limits{
		RequestsPerMinute: 0,
		RequestsPerHour:   1000,
		CostPerMinute:     1000,
		CostPerHour:       1000,
	})

	handler := newTestHandler(limiter, nil)

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(testBody))
	req.RemoteAddr = "198.51.100.7:4242"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header on rejection")
	}

	var envelope rpcErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Failed to parse error response: %v", err)
	}
	if envelope.JSONRPC != "2.0" {
		t.Errorf("Expected jsonrpc 2.0, got %s", envelope.JSONRPC)
	}
	if envelope.Error.Code != -32000 {
		t.Errorf("Expected code -32000, got %d", envelope.Error.Code)
	}
	if envelope.Error.Message != "Rate limit exceeded" {
		t.Errorf("Unexpected message: %s", envelope.Error.Message)
	}
	if string(envelope.ID) != "1" {
		t.Errorf("Expected request id to be echoed, got %s", envelope.ID)
	}
	if _, ok := envelope.Error.Data["retryAfter"]; !ok {
		t.Error("Expected retryAfter in error data")
	}
}

func TestMiddlewareRejectsBlocked(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()
	limiter := newTestLimiter(store, DefaultLimits())

	if _, err := limiter.Blocklist().Block(context.Background(), "198.51.100.7", "manual", 0, time.Now(), time.Hour); err != nil {
		t.Fatalf("Block failed: %v", err)
	}

	handler := newTestHandler(limiter, nil)

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(testBody))
	req.RemoteAddr = "198.51.100.7:4242"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", rec.Code)
	}

	var envelope rpcErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Failed to parse error response: %v", err)
	}
	if envelope.Error.Code != -32001 {
		t.Errorf("Expected code -32001, got %d", envelope.Error.Code)
	}
	if envelope.Error.Message != "IP blocked" {
		t.Errorf("Unexpected message: %s", envelope.Error.Message)
	}
}

func TestMiddlewareParseErrorStillLimited(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()
	limiter := newTestLimiter(store, DefaultLimits())

	handler := newTestHandler(limiter, nil)

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader("{not json"))
	req.RemoteAddr = "198.51.100.7:4242"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	var envelope rpcErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Failed to parse error response: %v", err)
	}
	if envelope.Error.Code != -32700 {
		t.Errorf("Expected code -32700, got %d", envelope.Error.Code)
	}
	if string(envelope.ID) != "null" {
		t.Errorf("Expected null id for unparseable request, got %s", envelope.ID)
	}

	// The malformed request was still charged to the request counter.
	count, err := limiter.Violations().Count(context.Background(), "198.51.100.7")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("A single malformed request under the limit should not be a violation, got %d", count)
	}
}

func TestMiddlewareOversizeBody(t *testing.T) {
	store := kvstore.NewMemoryStore()
	defer store.Close()
	limiter := newTestLimiter(store, DefaultLimits())

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Oversize request must not reach the downstream handler")
	})
	handler := Middleware(limiter, 16)(next)

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(testBody))
	req.RemoteAddr = "198.51.100.7:4242"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected 413, got %d", rec.Code)
	}
}

func TestClientIPExtraction(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expected   string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "198.51.100.7:4242",
			expected:   "198.51.100.7",
		},
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9"},
			expected:   "203.0.113.9",
		},
		{
			name:       "x-forwarded-for chain takes first",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.2, 10.0.0.3"},
			expected:   "203.0.113.9",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "203.0.113.10"},
			expected:   "203.0.113.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			if got := ClientIP(req); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}
