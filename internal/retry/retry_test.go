package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDoSucceedsOnLaterAttempt(t *testing.T) {
	var sleeps []time.Duration
	p := Policy{
		Attempts: 10,
		Delay:    2 * time.Second,
		Sleep:    func(d time.Duration) { sleeps = append(sleeps, d) },
	}

	calls := 0
	err := p.Do(context.Background(), func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on attempt 3, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if len(sleeps) != 2 {
		t.Errorf("expected 2 sleeps, got %d", len(sleeps))
	}
	for _, d := range sleeps {
		if d != 2*time.Second {
			t.Errorf("expected fixed 2s delay, got %v", d)
		}
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	sleeps := 0
	p := Policy{
		Attempts: 10,
		Delay:    time.Second,
		Sleep:    func(time.Duration) { sleeps++ },
	}

	calls := 0
	wantErr := errors.New("still broken")
	err := p.Do(context.Background(), func(int) error {
		calls++
		return fmt.Errorf("attempt %d: %w", calls, wantErr)
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("expected last op error, got %v", err)
	}
	if calls != 10 {
		t.Errorf("expected 10 attempts, got %d", calls)
	}
	// No sleep after the final attempt.
	if sleeps != 9 {
		t.Errorf("expected 9 sleeps, got %d", sleeps)
	}
}

func TestDoFirstAttemptSuccessNeverSleeps(t *testing.T) {
	sleeps := 0
	p := Policy{Attempts: 10, Delay: time.Second, Sleep: func(time.Duration) { sleeps++ }}

	if err := p.Do(context.Background(), func(int) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sleeps != 0 {
		t.Errorf("expected no sleeps, got %d", sleeps)
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	p := Policy{
		Attempts: 10,
		Delay:    time.Second,
		Sleep: func(time.Duration) {
			cancel()
		},
	}

	err := p.Do(ctx, func(int) error {
		calls++
		return errors.New("nope")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", calls)
	}
}
