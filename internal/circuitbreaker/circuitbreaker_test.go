package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errFail = errors.New("backend failure")

func newTestBreaker() *CircuitBreaker {
	return New("test", &Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          20 * time.Millisecond,
		MaxRequests:      2,
	})
}

func TestBreakerStartsClosed(t *testing.T) {
	cb := newTestBreaker()
	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed, got %s", cb.GetState())
	}

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute failed: %v", err)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errFail })
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("Expected open after 3 failures, got %s", cb.GetState())
	}

	if err := cb.Execute(func() error { return nil }); err != ErrCircuitOpen {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker()

	_ = cb.Execute(func() error { return errFail })
	_ = cb.Execute(func() error { return errFail })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errFail })
	_ = cb.Execute(func() error { return errFail })

	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed after interleaved successes, got %s", cb.GetState())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errFail })
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected open, got %s", cb.GetState())
	}

	time.Sleep(30 * time.Millisecond)

	// Two successes in half-open close the breaker.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Expected half-open probe to pass: %v", err)
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("Expected half-open, got %s", cb.GetState())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Expected second probe to pass: %v", err)
	}

	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed after recovery, got %s", cb.GetState())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errFail })
	}

	time.Sleep(30 * time.Millisecond)

	_ = cb.Execute(func() error { return errFail })

	if cb.GetState() != StateOpen {
		t.Errorf("Expected open after half-open failure, got %s", cb.GetState())
	}
}

func TestBreakerReset(t *testing.T) {
	cb := newTestBreaker()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errFail })
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected open, got %s", cb.GetState())
	}

	cb.Reset()

	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed after reset, got %s", cb.GetState())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute failed after reset: %v", err)
	}
}

func TestStateString(t *testing.T) {
	if StateClosed.String() != "closed" {
		t.Errorf("Unexpected string for closed: %s", StateClosed.String())
	}
	if StateOpen.String() != "open" {
		t.Errorf("Unexpected string for open: %s", StateOpen.String())
	}
	if StateHalfOpen.String() != "half-open" {
		t.Errorf("Unexpected string for half-open: %s", StateHalfOpen.String())
	}
}
