package verify

import (
	"fmt"
	"path"

	"github.com/malbeclabs/bfdconverge/e2e/internal/bfd"
	"github.com/malbeclabs/bfdconverge/e2e/internal/jsoncmp"
	"github.com/malbeclabs/bfdconverge/e2e/internal/poll"
	"github.com/malbeclabs/bfdconverge/e2e/internal/topology"
)

// ExpectedPeersFile is the per-router expected document under a fixture directory.
const ExpectedPeersFile = "bfd-peers.json"

// BFDTargets returns one target per router in topology order. Each target's
// expected document is dir/<router>/bfd-peers.json and its guard fails on any
// excluded session reported up.
func BFDTargets(topo *topology.Topology, dir string, queriers map[string]poll.Querier) ([]Target, error) {
	targets := make([]Target, 0, len(topo.Routers))
	for _, name := range topo.RouterNames() {
		q, ok := queriers[name]
		if !ok {
			return nil, fmt.Errorf("no querier for router %s", name)
		}
		excluded := topo.Excluded(name)
		targets = append(targets, Target{
			Node:    name,
			Querier: q,
			Source:  path.Join(dir, name, ExpectedPeersFile),
			Guard: func(observed jsoncmp.Value) error {
				return bfd.CheckExcluded(observed, excluded)
			},
		})
	}
	return targets, nil
}
