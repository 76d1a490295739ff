package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestProxyForwards(t *testing.T) {
	var received *http.Request
	var receivedBody string

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Clone(r.Context())
		body, _ := io.ReadAll(r.Body)
		receivedBody = string(body)

		w.Header().Set("X-Backend", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))
	defer upstream.Close()

	p, err := New(upstream.URL, &Config{
		Timeout:    time.Second,
		MaxRetries: 0,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	req.RemoteAddr = "198.51.100.7:4242"
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	p.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Backend") != "yes" {
		t.Error("Expected backend response headers to be copied")
	}
	if !strings.Contains(rec.Body.String(), "result") {
		t.Error("Expected backend body to be streamed")
	}

	if received == nil {
		t.Fatal("Expected the upstream to receive the request")
	}
	if receivedBody != body {
		t.Error("Expected the request body to be forwarded unchanged")
	}
	if received.Header.Get("X-Forwarded-For") != "198.51.100.7" {
		t.Errorf("Expected X-Forwarded-For, got %q", received.Header.Get("X-Forwarded-For"))
	}
	if !strings.Contains(received.Header.Get("Via"), "toolgate") {
		t.Errorf("Expected Via header, got %q", received.Header.Get("Via"))
	}
}

func TestProxyStripsHopHeaders(t *testing.T) {
	var received http.Header

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	p, err := New(upstream.URL, &Config{Timeout: time.Second})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.Header.Set("Keep-Alive", "timeout=5")
	req.Header.Set("Proxy-Authorization", "Basic xyz")
	req.Header.Set("X-Custom", "kept")
	rec := httptest.NewRecorder()

	p.Handler().ServeHTTP(rec, req)

	if received.Get("Keep-Alive") != "" {
		t.Error("Expected Keep-Alive to be stripped")
	}
	if received.Get("Proxy-Authorization") != "" {
		t.Error("Expected Proxy-Authorization to be stripped")
	}
	if received.Get("X-Custom") != "kept" {
		t.Error("Expected end-to-end headers to be forwarded")
	}
}

func TestProxyUpstreamErrorStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	p, err := New(upstream.URL, &Config{Timeout: time.Second})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	rec := httptest.NewRecorder()

	p.Handler().ServeHTTP(rec, req)

	// Backend status codes pass through untouched; they are not errors
	// from the proxy's point of view.
	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 passthrough, got %d", rec.Code)
	}
	if p.BreakerState().String() != "closed" {
		t.Errorf("Expected breaker to stay closed, got %s", p.BreakerState())
	}
}

func TestProxyInvalidUpstreamURL(t *testing.T) {
	if _, err := New("not-a-url", nil); err == nil {
		t.Error("Expected error for relative upstream URL")
	}
	if _, err := New("://bad", nil); err == nil {
		t.Error("Expected error for malformed upstream URL")
	}
}
