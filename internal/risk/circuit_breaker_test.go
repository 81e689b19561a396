package risk

import (
	"context"
	"testing"

	"market_maker/internal/state"
	"market_maker/pkg/logging"
)

func newCircuitBreakerFixture(t *testing.T, maxFailures int) (*CircuitBreaker, *state.Repository) {
	t.Helper()
	repo, err := state.Open(":memory:")
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	logger, err := logging.NewZapLogger("ERROR")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	cb := NewCircuitBreaker(repo, logger, CircuitBreakerConfig{MaxConsecutiveFailures: maxFailures})
	return cb, repo
}

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newCircuitBreakerFixture(t, 3)
	ctx := context.Background()

	tripped, err := cb.IsTripped(ctx)
	if err != nil || tripped {
		t.Fatalf("should not be tripped initially, tripped=%v err=%v", tripped, err)
	}

	for i := 0; i < 2; i++ {
		if err := cb.RecordFailure(ctx); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	tripped, _ = cb.IsTripped(ctx)
	if tripped {
		t.Error("should not trip before reaching MaxConsecutiveFailures")
	}

	if err := cb.RecordFailure(ctx); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	tripped, _ = cb.IsTripped(ctx)
	if !tripped {
		t.Error("should trip after reaching MaxConsecutiveFailures")
	}
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb, _ := newCircuitBreakerFixture(t, 1)
	ctx := context.Background()

	if err := cb.RecordFailure(ctx); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	tripped, _ := cb.IsTripped(ctx)
	if !tripped {
		t.Fatal("should be tripped")
	}

	if err := cb.RecordSuccess(ctx); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	tripped, _ = cb.IsTripped(ctx)
	if tripped {
		t.Error("should not be tripped after a recorded success")
	}
}
