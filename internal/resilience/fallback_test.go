package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFallbackGroup_PrimaryServes(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup("a", "primary", FallbackConfig{})
	fg.AddFallback("secondary", "b")

	var tried []string
	err := fg.Execute(context.Background(), func(_ context.Context, v string) error {
		tried = append(tried, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tried) != 1 || tried[0] != "a" {
		t.Errorf("tried = %v, want [a]", tried)
	}
}

func TestFallbackGroup_FailsOverInOrder(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup("a", "primary", FallbackConfig{})
	fg.AddFallback("secondary", "b")
	fg.AddFallback("tertiary", "c")

	got, err := ExecuteWithResult(context.Background(), fg, func(_ context.Context, v string) (string, error) {
		if v == "c" {
			return "served by " + v, nil
		}
		return "", errTest
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "served by c" {
		t.Errorf("result = %q", got)
	}
}

func TestFallbackGroup_AllFailedJoinsErrors(t *testing.T) {
	t.Parallel()

	errA := errors.New("a down")
	errB := errors.New("b down")
	fg := NewFallbackGroup("a", "primary", FallbackConfig{})
	fg.AddFallback("secondary", "b")

	err := fg.Execute(context.Background(), func(_ context.Context, v string) error {
		if v == "a" {
			return errA
		}
		return errB
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("err = %v, want both entry errors joined", err)
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup("a", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	fg.AddFallback("secondary", "b")

	calls := map[string]int{}
	fn := func(_ context.Context, v string) error {
		calls[v]++
		if v == "a" {
			return errTest
		}
		return nil
	}
	ctx := context.Background()
	_ = fg.Execute(ctx, fn)
	_ = fg.Execute(ctx, fn)

	if calls["a"] != 1 {
		t.Errorf("primary calls = %d, want 1 (breaker open on second round)", calls["a"])
	}
	if calls["b"] != 2 {
		t.Errorf("secondary calls = %d, want 2", calls["b"])
	}

	st := fg.Status()
	if len(st) != 2 || st[0].State != StateOpen || st[1].State != StateClosed {
		t.Errorf("Status = %+v", st)
	}

	fg.Reset()
	if fg.Status()[0].State != StateClosed {
		t.Error("primary still open after Reset")
	}
}

func TestFallbackGroup_StopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	fg := NewFallbackGroup("a", "primary", FallbackConfig{})
	fg.AddFallback("secondary", "b")

	var tried []string
	err := fg.Execute(ctx, func(_ context.Context, v string) error {
		tried = append(tried, v)
		cancel()
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(tried) != 1 {
		t.Errorf("tried = %v, want only the primary", tried)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup(1, "gemini", FallbackConfig{})
	fg.AddFallback("openai", 2)
	names := fg.Names()
	if fg.Len() != 2 || names[0] != "gemini" || names[1] != "openai" {
		t.Errorf("Names = %v, Len = %d", names, fg.Len())
	}
}
