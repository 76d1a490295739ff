package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maltehedderich/toolgate-go/internal/logger"
)

func TestChainOrder(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := NewChain(mw("first"), mw("second")).Append(mw("third")).Then(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	expected := []string{"first", "second", "third", "handler"}
	if len(order) != len(expected) {
		t.Fatalf("Expected %d invocations, got %d", len(expected), len(order))
	}
	for i, name := range expected {
		if order[i] != name {
			t.Errorf("Position %d: expected %s, got %s", i, name, order[i])
		}
	}
}

func TestCorrelationIDGenerated(t *testing.T) {
	var captured string
	handler := CorrelationID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = logger.GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if captured == "" {
		t.Error("Expected a generated correlation ID in the request context")
	}
	if rec.Header().Get(CorrelationIDHeader) != captured {
		t.Error("Expected the correlation ID to be echoed in the response header")
	}
}

func TestCorrelationIDPropagated(t *testing.T) {
	var captured string
	handler := CorrelationID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = logger.GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "incoming-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if captured != "incoming-123" {
		t.Errorf("Expected incoming correlation ID to be kept, got %s", captured)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := Recovery()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %s", ct)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5000"
	if got := ClientIP(req); got != "192.0.2.1" {
		t.Errorf("Expected 192.0.2.1, got %s", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.5" {
		t.Errorf("Expected 203.0.113.5, got %s", got)
	}
}
