package verify_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/malbeclabs/bfdconverge/e2e/internal/bfd"
	"github.com/malbeclabs/bfdconverge/e2e/internal/fixtures"
	"github.com/malbeclabs/bfdconverge/e2e/internal/jsoncmp"
	"github.com/malbeclabs/bfdconverge/e2e/internal/poll"
	"github.com/malbeclabs/bfdconverge/e2e/internal/topology"
	"github.com/malbeclabs/bfdconverge/e2e/internal/verify"
	"github.com/stretchr/testify/require"
)

// convergedPeers fakes FRR output for router: expected sessions up, excluded
// sessions stuck in status.
func convergedPeers(topo *topology.Topology, router, excludedStatus string) jsoncmp.Value {
	var seq jsoncmp.Sequence
	for _, s := range topo.SessionsFor(router) {
		status := bfd.StatusUp
		if s.Excluded() {
			status = excludedStatus
		}
		seq = append(seq, jsoncmp.Mapping{
			"peer":     jsoncmp.String(s.Peer.Addr.String()),
			"local":    jsoncmp.String(s.Local.Addr.String()),
			"multihop": jsoncmp.Bool(s.HopMode == topology.MultiHop),
			"status":   jsoncmp.String(status),
			"vrf":      jsoncmp.String("default"),
			"uptime":   jsoncmp.Int(3),
		})
	}
	return seq
}

func topo4Verifier(t *testing.T) (*topology.Topology, *verify.Verifier) {
	t.Helper()

	fsys := os.DirFS("../../fixtures")
	topo, err := topology.Load(fsys, "bfd_topo4/topology.yaml")
	require.NoError(t, err)

	loader := fixtures.NewLoader(fsys, fixtures.WithNormalizer(bfd.Normalize))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return topo, verify.New(logger, loader, poll.Config{Attempts: 2, Interval: time.Millisecond})
}

func frrQuerier(doc func() jsoncmp.Value) poll.Querier {
	return poll.QuerierFunc(func(context.Context) (jsoncmp.Value, error) {
		return bfd.Normalize(doc())
	})
}

func TestVerify_BFDTargets_Topo4Converges(t *testing.T) {
	t.Parallel()

	topo, v := topo4Verifier(t)
	queriers := map[string]poll.Querier{}
	for _, r := range topo.RouterNames() {
		queriers[r] = frrQuerier(func() jsoncmp.Value { return convergedPeers(topo, r, bfd.StatusInit) })
	}

	targets, err := verify.BFDTargets(topo, "bfd_topo4", queriers)
	require.NoError(t, err)
	require.Len(t, targets, 3)
	require.Equal(t, "bfd_topo4/r2/bfd-peers.json", targets[1].Source)

	report, err := v.Run(t.Context(), targets)
	require.NoError(t, err)
	require.True(t, report.Passed(), report.Err())
}

func TestVerify_BFDTargets_ExcludedSessionUp(t *testing.T) {
	t.Parallel()

	topo, v := topo4Verifier(t)
	queriers := map[string]poll.Querier{}
	for _, r := range topo.RouterNames() {
		status := bfd.StatusDown
		if r == "r2" {
			status = bfd.StatusUp
		}
		queriers[r] = frrQuerier(func() jsoncmp.Value { return convergedPeers(topo, r, status) })
	}

	targets, err := verify.BFDTargets(topo, "bfd_topo4", queriers)
	require.NoError(t, err)

	report, err := v.Run(t.Context(), targets)
	require.NoError(t, err)
	require.False(t, report.Passed())
	require.Equal(t, verify.OutcomePassed, report.Results[0].Outcome)
	require.Equal(t, verify.OutcomeFailed, report.Results[1].Outcome)
	require.Equal(t, verify.OutcomePassed, report.Results[2].Outcome)
	require.True(t, report.Results[1].Poll.Converged())
	require.ErrorIs(t, report.Err(), bfd.ErrExcludedSessionUp)
}

func TestVerify_BFDTargets_MissingQuerier(t *testing.T) {
	t.Parallel()

	topo, _ := topo4Verifier(t)
	_, err := verify.BFDTargets(topo, "bfd_topo4", map[string]poll.Querier{})
	require.ErrorContains(t, err, "no querier for router r1")
}
