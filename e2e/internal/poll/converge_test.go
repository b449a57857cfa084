package poll_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/bfdconverge/e2e/internal/jsoncmp"
	"github.com/malbeclabs/bfdconverge/e2e/internal/poll"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var (
	expectedUp = jsoncmp.MustParse(`{"peers":[{"peer":"10.1.0.2","status":"up"}]}`)
	observedDn = jsoncmp.MustParse(`{"peers":[{"peer":"10.1.0.2","status":"down","extra":1}]}`)
	observedUp = jsoncmp.MustParse(`{"peers":[{"peer":"10.1.0.2","status":"up","extra":1}]}`)
)

type stubQuerier struct {
	mu      sync.Mutex
	calls   int
	respond func(call int) (jsoncmp.Value, error)
}

func (q *stubQuerier) Query(context.Context) (jsoncmp.Value, error) {
	q.mu.Lock()
	q.calls++
	call := q.calls
	q.mu.Unlock()
	return q.respond(call)
}

func (q *stubQuerier) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

type convergeOut struct {
	res *poll.Result
	err error
}

// runConverge runs Converge in the background and advances the fake clock through
// up to ticks-1 waits.
func runConverge(t *testing.T, ctx context.Context, clock *clockwork.FakeClock, cfg poll.Config, target string, q poll.Querier, ticks int) convergeOut {
	t.Helper()

	cfg.Clock = clock
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

	done := make(chan convergeOut, 1)
	go func() {
		res, err := poll.Converge(ctx, cfg, target, q, expectedUp)
		done <- convergeOut{res, err}
	}()

	for i := 1; i < ticks; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(cfg.Interval)
	}

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		t.Fatalf("converge did not return: %v", ctx.Err())
	}
	return convergeOut{}
}

func TestPoll_Converge_ConvergesAtTickK(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	const k = 4
	q := &stubQuerier{respond: func(call int) (jsoncmp.Value, error) {
		if call < k {
			return observedDn, nil
		}
		return observedUp, nil
	}}

	clock := clockwork.NewFakeClock()
	out := runConverge(t, ctx, clock, poll.Config{Attempts: 10, Interval: time.Second}, "converge-at-k", q, k)
	require.NoError(t, out.err)
	require.True(t, out.res.Converged())
	require.Equal(t, poll.StateConverged, out.res.State)
	require.Equal(t, k, out.res.Attempts)
	require.Equal(t, k, q.Calls())
	require.Equal(t, time.Duration(k-1)*time.Second, out.res.Elapsed)
	require.Nil(t, out.res.Divergence)
	require.NoError(t, out.res.Err())

	require.Equal(t, float64(k), testutil.ToFloat64(poll.MetricAttempts.WithLabelValues("converge-at-k")))
	require.Equal(t, float64(k-1), testutil.ToFloat64(poll.MetricDivergences.WithLabelValues("converge-at-k")))
	require.Equal(t, float64(1), testutil.ToFloat64(poll.MetricResults.WithLabelValues("converge-at-k", "converged")))
}

func TestPoll_Converge_FirstTickMatchDoesNotWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	q := &stubQuerier{respond: func(int) (jsoncmp.Value, error) { return observedUp, nil }}
	clock := clockwork.NewFakeClock()
	out := runConverge(t, ctx, clock, poll.Config{Attempts: 3, Interval: time.Second}, "first-tick", q, 1)
	require.NoError(t, out.err)
	require.Equal(t, poll.StateConverged, out.res.State)
	require.Equal(t, 1, out.res.Attempts)
	require.Zero(t, out.res.Elapsed)
}

func TestPoll_Converge_ExhaustsAfterExactlyMaxAttempts(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	const attempts = 5
	q := &stubQuerier{respond: func(int) (jsoncmp.Value, error) { return observedDn, nil }}
	clock := clockwork.NewFakeClock()
	out := runConverge(t, ctx, clock, poll.Config{Attempts: attempts, Interval: time.Second}, "exhaust", q, attempts)
	require.NoError(t, out.err)
	require.Equal(t, poll.StateExhausted, out.res.State)
	require.Equal(t, attempts, out.res.Attempts)
	require.Equal(t, attempts, q.Calls())

	// No wait follows the last tick.
	require.Equal(t, time.Duration(attempts-1)*time.Second, out.res.Elapsed)

	require.NotNil(t, out.res.Divergence)
	require.Equal(t, "$.peers[0].status", out.res.Divergence.Path.String())
	require.Equal(t, observedDn, out.res.Observed)

	err := out.res.Err()
	require.ErrorIs(t, err, poll.ErrExhausted)
	require.ErrorContains(t, err, "$.peers[0].status")
	require.Equal(t, float64(1), testutil.ToFloat64(poll.MetricResults.WithLabelValues("exhaust", "exhausted")))
}

func TestPoll_Converge_QueryErrorsAreFailedTicks(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	errUnreachable := errors.New("node unreachable")
	q := &stubQuerier{respond: func(call int) (jsoncmp.Value, error) {
		if call <= 2 {
			return nil, errUnreachable
		}
		return observedUp, nil
	}}
	clock := clockwork.NewFakeClock()
	out := runConverge(t, ctx, clock, poll.Config{Attempts: 5, Interval: time.Second}, "query-errors", q, 3)
	require.NoError(t, out.err)
	require.Equal(t, poll.StateConverged, out.res.State)
	require.Equal(t, 3, out.res.Attempts)
	require.NoError(t, out.res.QueryErr)
	require.Equal(t, float64(2), testutil.ToFloat64(poll.MetricQueryErrors.WithLabelValues("query-errors")))
}

func TestPoll_Converge_ExhaustedWithLastQueryError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	errUnreachable := errors.New("node unreachable")
	q := &stubQuerier{respond: func(call int) (jsoncmp.Value, error) {
		if call == 1 {
			return observedDn, nil
		}
		return nil, errUnreachable
	}}
	clock := clockwork.NewFakeClock()
	out := runConverge(t, ctx, clock, poll.Config{Attempts: 3, Interval: 2 * time.Second}, "last-query-error", q, 3)
	require.NoError(t, out.err)
	require.Equal(t, poll.StateExhausted, out.res.State)
	require.ErrorIs(t, out.res.QueryErr, errUnreachable)
	require.Nil(t, out.res.Divergence)
	require.Nil(t, out.res.Observed)
	require.ErrorIs(t, out.res.Err(), poll.ErrExhausted)
	require.ErrorIs(t, out.res.Err(), errUnreachable)
	require.Equal(t, 4*time.Second, out.res.Elapsed)
}

func TestPoll_Converge_ObserverSeesEverySnapshot(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	q := &stubQuerier{respond: func(call int) (jsoncmp.Value, error) {
		switch call {
		case 1:
			return nil, errors.New("timeout")
		case 2:
			return observedDn, nil
		}
		return observedUp, nil
	}}

	var seen []int
	cfg := poll.Config{
		Attempts: 5,
		Interval: time.Second,
		Observer: func(attempt int, observed jsoncmp.Value) {
			if observed != nil {
				seen = append(seen, attempt)
			}
		},
	}
	clock := clockwork.NewFakeClock()
	out := runConverge(t, ctx, clock, cfg, "observer", q, 3)
	require.NoError(t, out.err)
	require.Equal(t, []int{2, 3}, seen)
}

func TestPoll_Converge_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	q := &stubQuerier{respond: func(int) (jsoncmp.Value, error) { return observedDn, nil }}
	clock := clockwork.NewFakeClock()

	done := make(chan convergeOut, 1)
	go func() {
		res, err := poll.Converge(ctx, poll.Config{Attempts: 10, Interval: time.Second, Clock: clock}, "cancelled", q, expectedUp)
		done <- convergeOut{res, err}
	}()

	waitCtx, waitCancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	out := <-done
	require.ErrorIs(t, out.err, context.Canceled)
	require.Equal(t, poll.StatePolling, out.res.State)
	require.Equal(t, 1, out.res.Attempts)
}

func TestPoll_Converge_InvalidConfig(t *testing.T) {
	t.Parallel()

	q := &stubQuerier{respond: func(int) (jsoncmp.Value, error) { return observedUp, nil }}

	_, err := poll.Converge(t.Context(), poll.Config{Attempts: -1}, "invalid", q, expectedUp)
	require.ErrorContains(t, err, "attempts must be non-negative")

	_, err = poll.Converge(t.Context(), poll.Config{Interval: -time.Second}, "invalid", q, expectedUp)
	require.ErrorContains(t, err, "interval must be non-negative")

	_, err = poll.Converge(t.Context(), poll.Config{}, "invalid", nil, expectedUp)
	require.ErrorContains(t, err, "querier is required")

	_, err = poll.Converge(t.Context(), poll.Config{}, "invalid", q, nil)
	require.ErrorContains(t, err, "expected document is required")
	require.Zero(t, q.Calls())
}

func TestPoll_Config_Defaults(t *testing.T) {
	t.Parallel()

	cfg := poll.Config{}
	require.NoError(t, cfg.Validate())
	require.Equal(t, poll.DefaultAttempts, cfg.Attempts)
	require.Equal(t, poll.DefaultInterval, cfg.Interval)
	require.NotNil(t, cfg.Clock)
	require.NotNil(t, cfg.Logger)
	require.Equal(t, 29*time.Second, cfg.Budget())
}
