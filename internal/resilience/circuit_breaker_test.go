package resilience

import (
	"errors"
	"testing"
	"time"
)

// fakeClock lets tests move the breaker past its reset timeout without sleeping
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker("test", maxFailures, 30*time.Second)
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreaker_StateClosed(t *testing.T) {
	cb, _ := newTestBreaker(3)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected initial state to be Closed, got %s", cb.GetState())
	}

	if !cb.Allow() {
		t.Error("Expected to allow request in Closed state")
	}
}

func TestCircuitBreaker_OpenAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)

	cb.RecordResult(false)
	cb.RecordResult(false)
	if cb.GetState() != StateClosed {
		t.Error("Expected state to still be Closed after 2 failures")
	}

	cb.RecordResult(false)
	if cb.GetState() != StateOpen {
		t.Error("Expected state to be Open after 3 failures")
	}

	if cb.Allow() {
		t.Error("Expected to not allow request in Open state")
	}
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(true)
	cb.RecordResult(false)
	cb.RecordResult(false)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected Closed when failures are not consecutive, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(3)

	for i := 0; i < 3; i++ {
		cb.RecordResult(false)
	}

	clock.advance(10 * time.Second)
	if cb.Allow() {
		t.Error("Expected request to be rejected before reset timeout")
	}

	clock.advance(25 * time.Second)
	if !cb.Allow() {
		t.Error("Expected to allow a trial request after timeout")
	}
	if cb.GetState() != StateHalfOpen {
		t.Errorf("Expected state to be HalfOpen, got %s", cb.GetState())
	}

	// Only one trial request is admitted at a time
	if cb.Allow() {
		t.Error("Expected second concurrent trial to be rejected")
	}
}

func TestCircuitBreaker_CloseAfterSuccess(t *testing.T) {
	cb, clock := newTestBreaker(3)

	for i := 0; i < 3; i++ {
		cb.RecordResult(false)
	}
	clock.advance(31 * time.Second)

	if !cb.Allow() {
		t.Fatal("Expected trial request to be allowed")
	}
	cb.RecordResult(true)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected state to be Closed after trial success, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_OpenAfterFailureInHalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(3)

	for i := 0; i < 3; i++ {
		cb.RecordResult(false)
	}
	clock.advance(31 * time.Second)

	if !cb.Allow() {
		t.Fatal("Expected trial request to be allowed")
	}
	cb.RecordResult(false)

	if cb.GetState() != StateOpen {
		t.Errorf("Expected state to be Open after failure in HalfOpen, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_Call(t *testing.T) {
	cb, _ := newTestBreaker(3)

	err := cb.Call(func() error {
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	err = cb.Call(func() error {
		return errors.New("test error")
	})
	if err == nil || err.Error() != "test error" {
		t.Errorf("Expected 'test error', got %v", err)
	}
}

func TestCircuitBreaker_CallOpen(t *testing.T) {
	cb, _ := newTestBreaker(1)
	cb.RecordResult(false)

	called := false
	err := cb.Call(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Expected function not to run while circuit is open")
	}
}

func TestCircuitBreaker_StateListener(t *testing.T) {
	cb, clock := newTestBreaker(1)

	var transitions []string
	cb.OnStateChange(func(name string, from, to CircuitState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	cb.RecordResult(false)
	clock.advance(31 * time.Second)
	cb.Allow()
	cb.RecordResult(true)

	expected := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(expected) {
		t.Fatalf("Expected transitions %v, got %v", expected, transitions)
	}
	for i := range expected {
		if transitions[i] != expected[i] {
			t.Errorf("Expected transition %d to be %s, got %s", i, expected[i], transitions[i])
		}
	}
}

func TestCircuitBreaker_GetStats(t *testing.T) {
	cb, _ := newTestBreaker(3)

	cb.RecordResult(true)
	cb.RecordResult(true)
	cb.RecordResult(false)

	state, requestCount, failureCount, failureRate := cb.GetStats()

	if state != StateClosed {
		t.Errorf("Expected state Closed, got %s", state)
	}
	if requestCount != 3 {
		t.Errorf("Expected 3 requests, got %d", requestCount)
	}
	if failureCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failureCount)
	}
	if failureRate < 33.0 || failureRate > 34.0 {
		t.Errorf("Expected failure rate around 33.33%%, got %.2f%%", failureRate)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(3)

	for i := 0; i < 3; i++ {
		cb.RecordResult(false)
	}
	if cb.GetState() != StateOpen {
		t.Fatal("Expected circuit to be Open")
	}

	cb.Reset()

	state, requestCount, failureCount, _ := cb.GetStats()
	if state != StateClosed || requestCount != 0 || failureCount != 0 {
		t.Errorf("Expected stats to be reset, got state=%s requests=%d failures=%d", state, requestCount, failureCount)
	}
}
