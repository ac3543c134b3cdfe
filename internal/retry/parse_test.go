package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseValid(t *testing.T) {
	cases := []string{
		"stop_after_attempt(5) & wait_none",
		"stop_any(stop_after_attempt(3), stop_after_delay(60)) | wait_exponential(1,1,30)",
		"stop_never & wait_fixed(2)",
		"wait_combine(wait_fixed(1), wait_random(0,1))",
		"stop_all(stop_after_attempt(2), stop_after_delay(10))",
		"wait_chain(wait_fixed(1), wait_fixed(2), wait_fixed(3))",
	}
	for _, expr := range cases {
		if _, err := Parse(expr); err != nil {
			t.Errorf("Parse(%q) failed: %v", expr, err)
		}
	}
}

func TestParseInvalidIsConfigError(t *testing.T) {
	cases := []string{
		"eval(1+1)",
		"stop_after_attempt(abc)",
		"stop_bogus(1)",
		"wait_bogus(1)",
		"stop_after_attempt(1",
	}
	for _, expr := range cases {
		_, err := Parse(expr)
		if err == nil {
			t.Fatalf("Parse(%q) unexpectedly succeeded", expr)
		}
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("Parse(%q) error is not a ConfigError: %v", expr, err)
		}
	}
}

func TestRunRetriesUntilAttemptLimit(t *testing.T) {
	p, err := Parse("stop_after_attempt(5) & wait_none")
	if err != nil {
		t.Fatal(err)
	}
	p.Wait = WaitNone()

	calls := 0
	boom := errors.New("boom")
	err = p.run(context.Background(), func(context.Context) error {
		calls++
		return boom
	}, func(context.Context, time.Duration) {})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls != 5 {
		t.Fatalf("expected 5 attempts, got %d", calls)
	}
}

func TestParseStopOrIsAny(t *testing.T) {
	p, err := Parse("stop_after_attempt(5) | stop_after_delay(3600)")
	if err != nil {
		t.Fatal(err)
	}
	// A delay of 3600s has clearly not elapsed; OR means the attempt
	// count alone is enough to stop.
	attempts := make([]Attempt, 5)
	if !p.Stop.ShouldStop(attempts, 0) {
		t.Fatal("stop_any should trigger once either clause is satisfied")
	}
}

func TestParseStopAmpersandIsAll(t *testing.T) {
	p, err := Parse("stop_after_attempt(5) & stop_after_delay(3600)")
	if err != nil {
		t.Fatal(err)
	}
	attempts := make([]Attempt, 5)
	if p.Stop.ShouldStop(attempts, 0) {
		t.Fatal("stop_all should not trigger until every clause is satisfied")
	}
	if !p.Stop.ShouldStop(attempts, 3600*time.Second) {
		t.Fatal("stop_all should trigger once every clause is satisfied")
	}
}

func TestRunSucceedsEventually(t *testing.T) {
	p := Policy{Stop: StopAfterAttempt(10), Wait: WaitNone()}
	calls := 0
	err := p.run(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, func(context.Context, time.Duration) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestWaitExponential(t *testing.T) {
	w := WaitExponential(1*time.Second, 1*time.Second, 8*time.Second)
	attempts := []Attempt{{Number: 1}}
	if got := w.NextWait(attempts); got != 1*time.Second {
		t.Errorf("attempt 1: got %v", got)
	}
	attempts = append(attempts, Attempt{Number: 2})
	if got := w.NextWait(attempts); got != 2*time.Second {
		t.Errorf("attempt 2: got %v", got)
	}
	attempts = append(attempts, Attempt{Number: 3}, Attempt{Number: 4}, Attempt{Number: 5})
	if got := w.NextWait(attempts); got != 8*time.Second {
		t.Errorf("clamp to max: got %v", got)
	}
}
