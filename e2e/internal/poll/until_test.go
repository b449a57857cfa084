package poll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/malbeclabs/bfdconverge/e2e/internal/poll"
	"github.com/stretchr/testify/require"
)

func TestPoll_Until(t *testing.T) {
	t.Parallel()

	calls := 0
	err := poll.Until(t.Context(), func() (bool, error) {
		calls++
		return calls == 3, nil
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestPoll_Until_ConditionError(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	err := poll.Until(t.Context(), func() (bool, error) { return false, errBoom }, 5*time.Second, time.Millisecond)
	require.ErrorIs(t, err, errBoom)
}

func TestPoll_Until_Timeout(t *testing.T) {
	t.Parallel()

	err := poll.Until(t.Context(), func() (bool, error) { return false, nil }, 20*time.Millisecond, time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorContains(t, err, "polling cancelled or timed out")
}
