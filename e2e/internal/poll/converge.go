package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/bfdconverge/e2e/internal/jsoncmp"
)

const (
	DefaultAttempts = 30
	DefaultInterval = 1 * time.Second
)

var ErrExhausted = errors.New("attempts exhausted without convergence")

type State int

const (
	StatePolling State = iota
	StateConverged
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateConverged:
		return "converged"
	case StateExhausted:
		return "exhausted"
	}
	return "unknown"
}

// Querier returns a fresh snapshot of a target's state on every call.
type Querier interface {
	Query(ctx context.Context) (jsoncmp.Value, error)
}

type QuerierFunc func(ctx context.Context) (jsoncmp.Value, error)

func (f QuerierFunc) Query(ctx context.Context) (jsoncmp.Value, error) { return f(ctx) }

// Observer sees every successfully queried snapshot, before it is compared.
type Observer func(attempt int, observed jsoncmp.Value)

type Config struct {
	// Attempts is the maximum number of ticks. Zero means DefaultAttempts.
	Attempts int
	// Interval is the wait between ticks. Zero means DefaultInterval.
	Interval time.Duration

	Clock    clockwork.Clock
	Logger   *slog.Logger
	Observer Observer
}

func (c *Config) Validate() error {
	if c.Attempts < 0 {
		return fmt.Errorf("attempts must be non-negative, got %d", c.Attempts)
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must be non-negative, got %s", c.Interval)
	}
	if c.Attempts == 0 {
		c.Attempts = DefaultAttempts
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Budget is the longest time Converge waits between ticks.
func (c Config) Budget() time.Duration {
	if c.Attempts <= 1 {
		return 0
	}
	return time.Duration(c.Attempts-1) * c.Interval
}

type Result struct {
	Target   string
	State    State
	Attempts int
	Elapsed  time.Duration

	// Observed, Divergence and QueryErr describe the last tick only.
	Observed   jsoncmp.Value
	Divergence *jsoncmp.Divergence
	QueryErr   error
}

func (r *Result) Converged() bool {
	return r.State == StateConverged
}

// Err is nil when the target converged, and otherwise wraps ErrExhausted with the
// last divergence or query error.
func (r *Result) Err() error {
	switch r.State {
	case StateConverged:
		return nil
	case StateExhausted:
		if r.QueryErr != nil {
			return fmt.Errorf("%s: %w after %d attempts: %w", r.Target, ErrExhausted, r.Attempts, r.QueryErr)
		}
		if r.Divergence != nil {
			return fmt.Errorf("%s: %w after %d attempts: %s", r.Target, ErrExhausted, r.Attempts, r.Divergence)
		}
		return fmt.Errorf("%s: %w after %d attempts", r.Target, ErrExhausted, r.Attempts)
	}
	return fmt.Errorf("%s: polling did not finish after %d attempts", r.Target, r.Attempts)
}

// Converge queries the target at a fixed interval until its state satisfies
// expected or the attempt budget is spent. Query failures count as unmatched
// ticks. The returned error is non-nil only for an invalid config or a cancelled
// context; exhaustion is reported through the result.
func Converge(ctx context.Context, cfg Config, target string, q Querier, expected jsoncmp.Value) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid poll config: %w", err)
	}
	if q == nil {
		return nil, errors.New("querier is required")
	}
	if expected == nil {
		return nil, errors.New("expected document is required")
	}

	log := cfg.Logger.With("target", target)
	res := &Result{Target: target, State: StatePolling}
	start := cfg.Clock.Now()

	log.Info("==> Polling for convergence", "attempts", cfg.Attempts, "interval", cfg.Interval)

	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		res.Attempts = attempt
		MetricAttempts.WithLabelValues(target).Inc()

		observed, err := q.Query(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Elapsed = cfg.Clock.Since(start)
			return res, fmt.Errorf("polling %s cancelled: %w", target, ctxErr)
		}
		if err != nil {
			res.Observed, res.Divergence, res.QueryErr = nil, nil, err
			MetricQueryErrors.WithLabelValues(target).Inc()
			log.Debug("--> Query failed", "attempt", attempt, "error", err)
		} else {
			if cfg.Observer != nil {
				cfg.Observer(attempt, observed)
			}
			res.Observed, res.QueryErr = observed, nil
			res.Divergence = jsoncmp.Compare(expected, observed)
			if res.Divergence == nil {
				res.State = StateConverged
				break
			}
			MetricDivergences.WithLabelValues(target).Inc()
			log.Debug("--> State diverges", "attempt", attempt, "divergence", res.Divergence.String())
		}

		if attempt == cfg.Attempts {
			res.State = StateExhausted
			break
		}

		select {
		case <-ctx.Done():
			res.Elapsed = cfg.Clock.Since(start)
			return res, fmt.Errorf("polling %s cancelled: %w", target, ctx.Err())
		case <-cfg.Clock.After(cfg.Interval):
		}
	}

	res.Elapsed = cfg.Clock.Since(start)
	MetricResults.WithLabelValues(target, res.State.String()).Inc()
	MetricDuration.WithLabelValues(res.State.String()).Observe(res.Elapsed.Seconds())

	if res.Converged() {
		log.Info("--> Converged", "attempts", res.Attempts, "elapsed", res.Elapsed)
	} else {
		log.Warn("--> Exhausted", "attempts", res.Attempts, "elapsed", res.Elapsed, "error", res.Err())
	}
	return res, nil
}
