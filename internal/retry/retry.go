package retry

import (
	"context"
	"time"
)

// Policy is a bounded fixed-delay retry policy. The review server applies
// some writes with a delay, so callers poll with Do until the server state
// has materialized or the attempt budget is spent.
type Policy struct {
	Attempts int
	Delay    time.Duration

	// Sleep is called between attempts. Nil means time.Sleep; tests inject
	// a recorder to avoid real waiting.
	Sleep func(time.Duration)
}

// Do invokes op until it returns nil, the attempt budget is exhausted, or
// ctx is cancelled. It returns nil on the first success, the last op error
// after the final attempt, or the context error on cancellation.
func (p Policy) Do(ctx context.Context, op func(attempt int) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = op(attempt); err == nil {
			return nil
		}
		if attempt < p.Attempts {
			sleep(p.Delay)
		}
	}
	return err
}
