package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Until calls condition every interval until it returns true, returns an error, or
// timeout elapses.
func Until(ctx context.Context, condition func() (bool, error), timeout, interval time.Duration) error {
	return until(ctx, clockwork.NewRealClock(), condition, timeout, interval)
}

func until(ctx context.Context, clock clockwork.Clock, condition func() (bool, error), timeout, interval time.Duration) error {
	ctx, cancel := clockwork.WithTimeout(ctx, clock, timeout)
	defer cancel()

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := condition()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("polling cancelled or timed out: %w", ctx.Err())
		case <-ticker.Chan():
		}
	}
}
