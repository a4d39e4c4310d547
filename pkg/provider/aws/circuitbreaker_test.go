package aws

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerStartsClosed(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute)
	if b.State() != "closed" {
		t.Fatalf("got %q, want closed", b.State())
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(2, time.Minute)
	failing := errors.New("boom")
	for i := 0; i < 2; i++ {
		if err := b.Call(func() error { return failing }); !errors.Is(err, failing) {
			t.Fatalf("call %d: got %v, want %v", i, err, failing)
		}
	}
	if b.State() != "open" {
		t.Fatalf("got %q, want open after reaching the failure threshold", b.State())
	}
}

func TestCircuitBreakerFailsFastWhileOpen(t *testing.T) {
	b := NewCircuitBreaker(1, time.Minute)
	_ = b.Call(func() error { return errors.New("boom") })
	if b.State() != "open" {
		t.Fatalf("got %q, want open", b.State())
	}
	called := false
	err := b.Call(func() error { called = true; return nil })
	if called {
		t.Fatal("expected the guarded call to be skipped while the breaker is open")
	}
	var openErr ErrCircuitOpen
	if !errors.As(err, &openErr) {
		t.Fatalf("got %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerHalfOpensAfterRecoveryTimeout(t *testing.T) {
	b := NewCircuitBreaker(1, 20*time.Millisecond)
	_ = b.Call(func() error { return errors.New("boom") })
	time.Sleep(30 * time.Millisecond)

	called := false
	if err := b.Call(func() error { called = true; return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected the probe call to go through once the recovery timeout elapsed")
	}
	if b.State() != "closed" {
		t.Fatalf("got %q, want closed after a successful probe", b.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewCircuitBreaker(1, 20*time.Millisecond)
	_ = b.Call(func() error { return errors.New("boom") })
	time.Sleep(30 * time.Millisecond)

	_ = b.Call(func() error { return errors.New("still failing") })
	if b.State() != "open" {
		t.Fatalf("got %q, want open after a failed probe", b.State())
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute)
	_ = b.Call(func() error { return errors.New("boom") })
	_ = b.Call(func() error { return nil })
	_ = b.Call(func() error { return errors.New("boom") })
	_ = b.Call(func() error { return errors.New("boom") })
	if b.State() != "closed" {
		t.Fatalf("got %q, want closed since the intervening success reset the failure count below threshold", b.State())
	}
}

func TestNewCircuitBreakerAppliesDefaults(t *testing.T) {
	b := NewCircuitBreaker(0, 0)
	if b.failureThreshold != 5 {
		t.Fatalf("got threshold %d, want default 5", b.failureThreshold)
	}
	if b.recoveryTimeout != 30*time.Second {
		t.Fatalf("got recovery timeout %v, want default 30s", b.recoveryTimeout)
	}
}
